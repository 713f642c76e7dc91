package model

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/rupamthxt/knnvision/internal/confidence"
	"github.com/rupamthxt/knnvision/internal/features"
	"github.com/rupamthxt/knnvision/internal/history"
	"github.com/rupamthxt/knnvision/internal/knn"
	"github.com/rupamthxt/knnvision/internal/metrics"
	"github.com/rupamthxt/knnvision/internal/store"
)

const (
	DefaultSnapshotName = "model" + SnapshotExt
	DefaultMinClasses   = 2
	DefaultMinSamples   = 10
	DefaultCacheSize    = 256
)

type State int

const (
	StateAbsent State = iota
	StateFitted
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateFitted:
		return "fitted"
	case StateLoaded:
		return "loaded"
	default:
		return "absent"
	}
}

type Options struct {
	Dir          string
	SnapshotName string
	Width        int
	Height       int
	Neighbors    int
	MinClasses   int
	MinSamples   int
	CacheSize    int
	MaxPixels    int

	// Optional
	Ledger *history.Ledger
	Logger *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Dir == "" {
		o.Dir = "model"
	}
	if o.SnapshotName == "" {
		o.SnapshotName = DefaultSnapshotName
	}
	if !strings.HasSuffix(o.SnapshotName, SnapshotExt) {
		o.SnapshotName += SnapshotExt
	}
	if o.Width <= 0 {
		o.Width = features.DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = features.DefaultHeight
	}
	if o.Neighbors <= 0 {
		o.Neighbors = knn.DefaultNeighbors
	}
	if o.MinClasses <= 0 {
		o.MinClasses = DefaultMinClasses
	}
	if o.MinSamples <= 0 {
		o.MinSamples = DefaultMinSamples
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type TrainResult struct {
	Classes      []string
	TotalSamples int
	Snapshot     string
}

type Prediction struct {
	Label            string
	Confidence       float64
	Distances        []float64
	AvailableClasses []string
}

// Manager owns the training set, the classifier slot and the snapshot on
// disk. One Manager is built at startup and shared by every request.
//
// mu guards samples, clf, state and generation. ioMu serializes the
// lifecycle transitions (train, clear, load, unload) and every snapshot file
// access, so disk I/O never runs under mu and the snapshot on disk always
// matches the serving model. Lock order is ioMu, then mu. generation changes
// whenever the classifier slot does and scopes the prediction cache.
type Manager struct {
	mu         sync.RWMutex
	samples    *store.SampleStore
	clf        *knn.Classifier
	state      State
	generation uint64

	ioMu sync.Mutex

	opts      Options
	path      string
	extractor *features.Extractor
	scorer    confidence.Scorer
	cache     *lru.Cache[string, Prediction]
	ledger    *history.Ledger
	log       *zap.Logger
}

func NewManager(opts Options) (*Manager, error) {
	opts.setDefaults()

	cache, err := lru.New[string, Prediction](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("prediction cache: %w", err)
	}

	extractor := features.NewExtractor(opts.Width, opts.Height).WithMaxPixels(opts.MaxPixels)
	return &Manager{
		samples:   store.NewSampleStore(extractor.Dim()),
		opts:      opts,
		path:      filepath.Join(opts.Dir, opts.SnapshotName),
		extractor: extractor,
		scorer:    confidence.NewScorer(opts.Width, opts.Height),
		cache:     cache,
		ledger:    opts.Ledger,
		log:       opts.Logger,
	}, nil
}

// SnapshotPath is where the active snapshot lives.
func (m *Manager) SnapshotPath() string { return m.path }

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AddSamples decodes every image first and appends them only if all decode.
func (m *Manager) AddSamples(ctx context.Context, images []string, label string) (int, error) {
	if label == "" {
		return 0, ErrLabelRequired
	}

	vectors := make([][]float32, 0, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		vec, err := m.extractor.ExtractHex(img)
		if err != nil {
			metrics.UploadFailures.Inc()
			return 0, fmt.Errorf("image %d: %w", i, err)
		}
		vectors = append(vectors, vec)
	}

	m.mu.Lock()
	count, err := m.samples.AppendBatch(vectors, label)
	m.mu.Unlock()
	if err != nil {
		return count, err
	}

	metrics.SamplesAdded.Add(float64(len(vectors)))
	metrics.TrainingSamples.Set(float64(count))
	m.log.Debug("samples added", zap.String("label", label), zap.Int("added", len(vectors)), zap.Int("count", count))
	return count, nil
}

func (m *Manager) ClassCounts() (map[string]int, int) {
	return m.samples.ClassCounts()
}

// Clear drops the training set and the classifier, and deletes the snapshot.
func (m *Manager) Clear(ctx context.Context) error {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	m.mu.Lock()
	m.samples.Reset()
	m.clf = nil
	m.state = StateAbsent
	m.generation++
	m.mu.Unlock()
	m.cache.Purge()

	metrics.TrainingSamples.Set(0)
	metrics.ModelState.Set(float64(StateAbsent))

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}

	m.record(history.Event{Kind: history.KindCleared})
	m.log.Info("training data cleared")
	return nil
}

// Train fits a classifier on the whole training set, persists it and only
// then swaps it in. A failed write leaves the serving model untouched.
func (m *Manager) Train(ctx context.Context) (TrainResult, error) {
	start := time.Now()

	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	m.mu.RLock()
	if n := m.samples.DistinctLabels(); n < m.opts.MinClasses {
		m.mu.RUnlock()
		metrics.TrainRuns.WithLabelValues("rejected").Inc()
		return TrainResult{}, &InsufficientDataError{Reason: ErrTooFewClasses, Have: n, Need: m.opts.MinClasses}
	}
	if n := m.samples.Len(); n < m.opts.MinSamples {
		m.mu.RUnlock()
		metrics.TrainRuns.WithLabelValues("rejected").Inc()
		return TrainResult{}, &InsufficientDataError{Reason: ErrTooFewSamples, Have: n, Need: m.opts.MinSamples}
	}
	samples := m.samples.Snapshot()
	m.mu.RUnlock()

	clf := knn.New(m.opts.Neighbors)
	if err := clf.Fit(samples); err != nil {
		metrics.TrainRuns.WithLabelValues("failed").Inc()
		return TrainResult{}, fmt.Errorf("fit: %w", err)
	}

	snap := &Snapshot{
		Version:   snapshotVersion,
		Kind:      snapshotKind,
		Width:     m.opts.Width,
		Height:    m.opts.Height,
		Neighbors: clf.Neighbors(),
		Labels:    samples.Labels,
		Vectors:   samples.Vectors,
		TrainedAt: time.Now().UTC(),
	}
	size, err := writeSnapshot(m.path, snap)
	if err != nil {
		metrics.TrainRuns.WithLabelValues("failed").Inc()
		m.log.Error("snapshot write failed, keeping previous model", zap.String("path", m.path), zap.Error(err))
		return TrainResult{}, fmt.Errorf("persist snapshot: %w", err)
	}

	m.mu.Lock()
	m.clf = clf
	m.state = StateFitted
	m.generation++
	m.mu.Unlock()
	m.cache.Purge()
	metrics.ModelState.Set(float64(StateFitted))

	result := TrainResult{
		Classes:      clf.Classes(),
		TotalSamples: clf.Len(),
		Snapshot:     m.opts.SnapshotName,
	}
	m.record(history.Event{
		Kind:         history.KindTrained,
		Classes:      result.Classes,
		TotalSamples: result.TotalSamples,
		Snapshot:     result.Snapshot,
		SizeBytes:    size,
	})

	metrics.TrainRuns.WithLabelValues("ok").Inc()
	metrics.TrainDuration.Observe(time.Since(start).Seconds())
	m.log.Info("model trained",
		zap.Strings("classes", result.Classes),
		zap.Int("samples", result.TotalSamples),
		zap.Int64("snapshot_bytes", size),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

// EnsureLoaded makes sure a classifier is available. The in-process model is
// preferred; otherwise the persisted snapshot is loaded, replacing the
// training set with the one it was fit on.
func (m *Manager) EnsureLoaded(ctx context.Context) error {
	if m.State() != StateAbsent {
		return nil
	}

	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	// another caller may have loaded or trained while we waited
	if m.State() != StateAbsent {
		return nil
	}

	snap, err := readSnapshot(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrModelNotFound
		}
		return fmt.Errorf("load snapshot: %w", err)
	}
	if dim := snap.Width * snap.Height; dim != m.extractor.Dim() {
		return fmt.Errorf("load snapshot: dimension %d does not match configured %d", dim, m.extractor.Dim())
	}

	clf := knn.New(snap.Neighbors)
	if err := clf.Fit(snap.Samples()); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.samples.Replace(snap.Samples()); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	m.clf = clf
	m.state = StateLoaded
	m.generation++

	metrics.SnapshotLoads.Inc()
	metrics.ModelState.Set(float64(StateLoaded))
	metrics.TrainingSamples.Set(float64(clf.Len()))
	m.log.Info("model loaded from snapshot", zap.String("path", m.path), zap.Int("samples", clf.Len()))
	return nil
}

// Unload forgets the in-memory classifier and training set, as a restart would.
func (m *Manager) Unload() {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	m.mu.Lock()
	m.samples.Reset()
	m.clf = nil
	m.state = StateAbsent
	m.generation++
	m.mu.Unlock()
	m.cache.Purge()
	metrics.ModelState.Set(float64(StateAbsent))
	metrics.TrainingSamples.Set(0)
}

func (m *Manager) classifier(ctx context.Context) (*knn.Classifier, uint64, error) {
	if err := m.EnsureLoaded(ctx); err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	clf, gen := m.clf, m.generation
	m.mu.RUnlock()
	if clf == nil {
		return nil, 0, ErrModelNotFound
	}
	return clf, gen, nil
}

// Predict classifies a hex-encoded image.
func (m *Manager) Predict(ctx context.Context, image string) (Prediction, error) {
	start := time.Now()
	clf, _, err := m.classifier(ctx)
	if err != nil {
		return Prediction{}, err
	}

	vec, err := m.extractor.ExtractHex(image)
	if err != nil {
		return Prediction{}, err
	}

	pred, err := m.classify(clf, vec)
	if err != nil {
		return Prediction{}, err
	}
	metrics.Predictions.WithLabelValues("predict").Inc()
	metrics.PredictDuration.Observe(time.Since(start).Seconds())
	return pred, nil
}

// PredictStream is Predict for high-frequency polling: repeated frames are
// answered from a cache tied to the current model.
func (m *Manager) PredictStream(ctx context.Context, image string) (Prediction, error) {
	start := time.Now()
	clf, gen, err := m.classifier(ctx)
	if err != nil {
		return Prediction{}, err
	}

	raw, err := features.DecodeHex(image)
	if err != nil {
		return Prediction{}, err
	}

	key := fmt.Sprintf("%d:%x", gen, sha256.Sum256(raw))
	if pred, ok := m.cache.Get(key); ok {
		metrics.PredictionCacheHits.Inc()
		metrics.Predictions.WithLabelValues("stream").Inc()
		return pred, nil
	}

	vec, err := m.extractor.Extract(raw)
	if err != nil {
		return Prediction{}, err
	}
	pred, err := m.classify(clf, vec)
	if err != nil {
		return Prediction{}, err
	}
	m.cache.Add(key, pred)

	metrics.Predictions.WithLabelValues("stream").Inc()
	metrics.PredictDuration.Observe(time.Since(start).Seconds())
	return pred, nil
}

// PredictVector classifies an already extracted feature vector.
func (m *Manager) PredictVector(ctx context.Context, vec []float32) (Prediction, error) {
	clf, _, err := m.classifier(ctx)
	if err != nil {
		return Prediction{}, err
	}
	return m.classify(clf, vec)
}

func (m *Manager) classify(clf *knn.Classifier, vec []float32) (Prediction, error) {
	k := min(m.opts.Neighbors, clf.Len())
	label, distances, err := clf.PredictWithNeighbors(vec, k)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{
		Label:            label,
		Confidence:       m.scorer.Score(distances[0]),
		Distances:        distances,
		AvailableClasses: clf.Classes(),
	}, nil
}

// ListSnapshots describes every snapshot file in the model directory.
func (m *Manager) ListSnapshots() ([]SnapshotInfo, error) {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()
	return listSnapshots(m.opts.Dir)
}

// History returns recent train and clear events, newest first.
func (m *Manager) History(limit int) ([]history.Event, error) {
	if m.ledger == nil {
		return []history.Event{}, nil
	}
	return m.ledger.Recent(limit)
}

func (m *Manager) record(ev history.Event) {
	if m.ledger == nil {
		return
	}
	if _, err := m.ledger.Record(ev); err != nil {
		m.log.Warn("history write failed", zap.String("kind", ev.Kind), zap.Error(err))
	}
}
