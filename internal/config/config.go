package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const envPrefix = "KNNVISION_"

type Config struct {
	Http struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		BodyLimitMB    int      `yaml:"body_limit_mb"`
	} `yaml:"http"`
	Model struct {
		Dir          string `yaml:"dir"`
		SnapshotName string `yaml:"snapshot_name"`
		Width        int    `yaml:"width"`
		Height       int    `yaml:"height"`
		Neighbors    int    `yaml:"neighbors"`
		MinClasses   int    `yaml:"min_classes"`
		MinSamples   int    `yaml:"min_samples"`
		CacheSize    int    `yaml:"cache_size"`
		MaxPixels    int    `yaml:"max_pixels"`
	} `yaml:"model"`
	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
}

func Default() *Config {
	var c Config
	c.Http.Port = 5000
	c.Http.AllowedOrigins = []string{"*"}
	c.Http.BodyLimitMB = 64
	c.Model.Dir = "model"
	c.Model.SnapshotName = "model.snap"
	c.Model.Width = 64
	c.Model.Height = 64
	c.Model.Neighbors = 3
	c.Model.MinClasses = 2
	c.Model.MinSamples = 10
	c.Model.CacheSize = 256
	c.Model.MaxPixels = 40_000_000
	c.History.Path = "model/history.db"
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	return &c
}

// Load reads the YAML file at path on top of the defaults, then applies
// .env and KNNVISION_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, config.Validate()
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(envPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		c.Http.Port = port
	}
	if v, ok := os.LookupEnv(envPrefix + "MODEL_DIR"); ok {
		c.Model.Dir = v
	}
	if v, ok := os.LookupEnv(envPrefix + "HISTORY_PATH"); ok {
		c.History.Path = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_FILE"); ok {
		c.Log.File = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Http.Port)
	}
	if c.Model.Width <= 0 || c.Model.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", c.Model.Width, c.Model.Height)
	}
	if c.Model.MaxPixels <= 0 {
		return fmt.Errorf("invalid max pixels %d", c.Model.MaxPixels)
	}
	if c.Model.Dir == "" {
		return errors.New("model dir is required")
	}
	return nil
}
