package model

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rupamthxt/knnvision/internal/store"
)

const (
	SnapshotExt     = ".snap"
	snapshotVersion = 1
	snapshotKind    = "knn"
)

// Snapshot is the single persisted artifact: the fitted parameters plus the
// exact training set they were fit on.
type Snapshot struct {
	Version   int
	Kind      string
	Width     int
	Height    int
	Neighbors int
	Labels    []string
	Vectors   []float32
	TrainedAt time.Time
}

func (s *Snapshot) Samples() store.Samples {
	return store.Samples{
		Dim:     s.Width * s.Height,
		Vectors: s.Vectors,
		Labels:  s.Labels,
	}
}

// Classes returns the sorted distinct labels.
func (s *Snapshot) Classes() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, l := range s.Labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (s *Snapshot) validate() error {
	if s.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	if s.Kind != snapshotKind {
		return fmt.Errorf("unsupported model type %q", s.Kind)
	}
	if len(s.Labels) == 0 {
		return errors.New("snapshot has no samples")
	}
	return s.Samples().Validate()
}

// writeSnapshot encodes snap next to path and renames it into place, so a
// reader never sees a half-written file. It returns the file size.
func writeSnapshot(path string, snap *Snapshot) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	file, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, err
	}
	tmp := file.Name()
	defer os.Remove(tmp)

	w := bufio.NewWriter(file)
	if err := gob.NewEncoder(w).Encode(snap); err != nil {
		file.Close()
		return 0, err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return 0, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return 0, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return 0, err
	}
	if err := file.Close(); err != nil {
		return 0, err
	}

	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func readSnapshot(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var snap Snapshot
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot: %w", err)
	}
	if err := snap.validate(); err != nil {
		return nil, fmt.Errorf("corrupt snapshot: %w", err)
	}
	return &snap, nil
}

// SnapshotInfo describes one snapshot file. Classes and TotalSamples are best
// effort; Error is set when the file could not be read.
type SnapshotInfo struct {
	Name         string   `json:"name"`
	Path         string   `json:"path"`
	Size         int64    `json:"size"`
	SizeMB       float64  `json:"size_mb"`
	ModelType    string   `json:"model_type,omitempty"`
	Classes      []string `json:"classes,omitempty"`
	TotalSamples int      `json:"total_samples,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func listSnapshots(dir string) ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []SnapshotInfo{}, nil
		}
		return nil, err
	}

	infos := make([]SnapshotInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), SnapshotExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info := SnapshotInfo{Name: entry.Name(), Path: path}

		stat, err := entry.Info()
		if err != nil {
			info.Error = err.Error()
			infos = append(infos, info)
			continue
		}
		info.Size = stat.Size()
		info.SizeMB = math.Round(float64(stat.Size())/(1024*1024)*100) / 100

		snap, err := readSnapshot(path)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.ModelType = snap.Kind
			info.Classes = snap.Classes()
			info.TotalSamples = len(snap.Labels)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
