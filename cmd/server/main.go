package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rupamthxt/knnvision/internal/config"
	"github.com/rupamthxt/knnvision/internal/history"
	vectorHttp "github.com/rupamthxt/knnvision/internal/http"
	"github.com/rupamthxt/knnvision/internal/logging"
	"github.com/rupamthxt/knnvision/internal/model"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logOpts := logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
	logger, err := logging.New(logOpts, logging.Writer(logOpts))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ledger, err := history.Open(cfg.History.Path)
	if err != nil {
		logger.Fatal("failed to open training history", zap.String("path", cfg.History.Path), zap.Error(err))
	}
	defer ledger.Close()

	manager, err := model.NewManager(model.Options{
		Dir:          cfg.Model.Dir,
		SnapshotName: cfg.Model.SnapshotName,
		Width:        cfg.Model.Width,
		Height:       cfg.Model.Height,
		Neighbors:    cfg.Model.Neighbors,
		MinClasses:   cfg.Model.MinClasses,
		MinSamples:   cfg.Model.MinSamples,
		CacheSize:    cfg.Model.CacheSize,
		MaxPixels:    cfg.Model.MaxPixels,
		Ledger:       ledger,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("failed to build model manager", zap.Error(err))
	}

	if _, err := os.Stat(manager.SnapshotPath()); err == nil {
		logger.Info("found snapshot, it will be loaded on first prediction", zap.String("path", manager.SnapshotPath()))
	} else {
		logger.Info("no snapshot found, starting fresh")
	}

	app := vectorHttp.NewApp(vectorHttp.NewHandler(manager, logger), vectorHttp.AppConfig{
		AllowedOrigins: cfg.Http.AllowedOrigins,
		BodyLimitMB:    cfg.Http.BodyLimitMB,
		AccessLog:      true,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			logger.Error("forced shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Http.Port)
	logger.Info("knnvision listening", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
