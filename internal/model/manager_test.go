package model

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rupamthxt/knnvision/internal/features"
	"github.com/rupamthxt/knnvision/internal/history"
)

func grayHex(t *testing.T, level uint8) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return hex.EncodeToString(buf.Bytes())
}

func stripedHex(t *testing.T, a, b uint8) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			if x < 32 {
				img.SetGray(x, y, color.Gray{Y: a})
			} else {
				img.SetGray(x, y, color.Gray{Y: b})
			}
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return hex.EncodeToString(buf.Bytes())
}

func newTestManager(t *testing.T, dir string) *Manager {
	t.Helper()
	m, err := NewManager(Options{Dir: dir})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

// loadCatsAndDogs uploads 6 dark "cat" images and 6 bright "dog" images.
func loadCatsAndDogs(t *testing.T, m *Manager) {
	t.Helper()
	ctx := context.Background()
	var cats, dogs []string
	for i := range 6 {
		cats = append(cats, grayHex(t, uint8(10+i*5)))
		dogs = append(dogs, grayHex(t, uint8(200+i*5)))
	}
	if _, err := m.AddSamples(ctx, cats, "cat"); err != nil {
		t.Fatalf("add cats: %v", err)
	}
	if _, err := m.AddSamples(ctx, dogs, "dog"); err != nil {
		t.Fatalf("add dogs: %v", err)
	}
}

func TestPredictOnFreshProcess(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	_, err := m.Predict(context.Background(), grayHex(t, 1))
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestClassCountsTrackAppends(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	ctx := context.Background()

	n, err := m.AddSamples(ctx, []string{grayHex(t, 1), grayHex(t, 2)}, "a")
	if err != nil || n != 2 {
		t.Fatalf("add: n=%d err=%v", n, err)
	}
	n, err = m.AddSamples(ctx, []string{grayHex(t, 3)}, "b")
	if err != nil || n != 3 {
		t.Fatalf("add: n=%d err=%v", n, err)
	}

	counts, total := m.ClassCounts()
	if total != 3 || counts["a"] != 2 || counts["b"] != 1 {
		t.Fatalf("unexpected counts: total=%d %v", total, counts)
	}
}

func TestAddSamplesFailsWholeBatchOnBadImage(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	ctx := context.Background()

	_, err := m.AddSamples(ctx, []string{grayHex(t, 1), "0badc0de", grayHex(t, 2)}, "a")
	var decodeErr *features.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if _, total := m.ClassCounts(); total != 0 {
		t.Fatalf("expected nothing appended, got %d", total)
	}

	if _, err := m.AddSamples(ctx, []string{grayHex(t, 1)}, ""); !errors.Is(err, ErrLabelRequired) {
		t.Fatalf("expected ErrLabelRequired, got %v", err)
	}
}

func TestTrainPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("too few classes", func(t *testing.T) {
		m := newTestManager(t, t.TempDir())
		var imgs []string
		for i := range 20 {
			imgs = append(imgs, grayHex(t, uint8(i)))
		}
		m.AddSamples(ctx, imgs, "only")

		_, err := m.Train(ctx)
		if !errors.Is(err, ErrTooFewClasses) || !errors.Is(err, ErrInsufficientData) {
			t.Fatalf("expected too few classes, got %v", err)
		}
	})

	t.Run("too few samples", func(t *testing.T) {
		m := newTestManager(t, t.TempDir())
		m.AddSamples(ctx, []string{grayHex(t, 1), grayHex(t, 2), grayHex(t, 3)}, "a")
		m.AddSamples(ctx, []string{grayHex(t, 200), grayHex(t, 201)}, "b")

		_, err := m.Train(ctx)
		if !errors.Is(err, ErrTooFewSamples) {
			t.Fatalf("expected too few samples, got %v", err)
		}
		var insufficient *InsufficientDataError
		if !errors.As(err, &insufficient) || insufficient.ReasonCode() != "too_few_samples" {
			t.Fatalf("unexpected error shape: %v", err)
		}
	})

	t.Run("empty store reports classes first", func(t *testing.T) {
		m := newTestManager(t, t.TempDir())
		if _, err := m.Train(ctx); !errors.Is(err, ErrTooFewClasses) {
			t.Fatalf("expected too few classes, got %v", err)
		}
	})
}

func TestTrainAndPredictCatsAndDogs(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	ctx := context.Background()
	loadCatsAndDogs(t, m)

	result, err := m.Train(ctx)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if result.TotalSamples != 12 {
		t.Errorf("expected 12 samples, got %d", result.TotalSamples)
	}
	if len(result.Classes) != 2 || result.Classes[0] != "cat" || result.Classes[1] != "dog" {
		t.Errorf("unexpected classes: %v", result.Classes)
	}
	if m.State() != StateFitted {
		t.Errorf("expected fitted state, got %s", m.State())
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultSnapshotName)); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	pred, err := m.Predict(ctx, grayHex(t, 42))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred.Label != "cat" {
		t.Errorf("expected cat, got %s", pred.Label)
	}
	if pred.Confidence <= 0 || pred.Confidence > 1 {
		t.Errorf("confidence out of range: %v", pred.Confidence)
	}
	if len(pred.Distances) != 3 {
		t.Errorf("expected 3 distances, got %d", len(pred.Distances))
	}
	if len(pred.AvailableClasses) != 2 {
		t.Errorf("unexpected available classes: %v", pred.AvailableClasses)
	}
}

func TestExactMatchHasFullConfidence(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	ctx := context.Background()
	loadCatsAndDogs(t, m)
	m.AddSamples(ctx, []string{stripedHex(t, 0, 255)}, "zebra")
	if _, err := m.Train(ctx); err != nil {
		t.Fatalf("train: %v", err)
	}

	pred, err := m.Predict(ctx, stripedHex(t, 0, 255))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred.Label != "zebra" || pred.Confidence != 1.0 {
		t.Fatalf("expected zebra with confidence 1, got %s %v", pred.Label, pred.Confidence)
	}
}

func TestClearDeletesSnapshot(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	ctx := context.Background()
	loadCatsAndDogs(t, m)
	if _, err := m.Train(ctx); err != nil {
		t.Fatalf("train: %v", err)
	}

	if err := m.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(m.SnapshotPath()); !os.IsNotExist(err) {
		t.Fatalf("snapshot should be gone, stat err=%v", err)
	}
	if _, err := m.Predict(ctx, grayHex(t, 10)); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound after clear, got %v", err)
	}
	if _, total := m.ClassCounts(); total != 0 {
		t.Fatalf("expected empty training set, got %d", total)
	}

	// A second clear with nothing on disk is fine.
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestSnapshotRoundTripAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	m := newTestManager(t, dir)
	loadCatsAndDogs(t, m)
	if _, err := m.Train(ctx); err != nil {
		t.Fatalf("train: %v", err)
	}

	query := grayHex(t, 120)
	before, err := m.Predict(ctx, query)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	m.Unload()
	if m.State() != StateAbsent {
		t.Fatalf("expected absent state after unload")
	}
	restarted := newTestManager(t, dir)

	for name, mgr := range map[string]*Manager{"unloaded": m, "restarted": restarted} {
		if err := mgr.EnsureLoaded(ctx); err != nil {
			t.Fatalf("%s: ensure loaded: %v", name, err)
		}
		if mgr.State() != StateLoaded {
			t.Fatalf("%s: expected loaded state, got %s", name, mgr.State())
		}
		after, err := mgr.Predict(ctx, query)
		if err != nil {
			t.Fatalf("%s: predict: %v", name, err)
		}
		if after.Label != before.Label || after.Confidence != before.Confidence {
			t.Fatalf("%s: prediction changed: before %+v after %+v", name, before, after)
		}
		if _, total := mgr.ClassCounts(); total != 12 {
			t.Fatalf("%s: training set not restored, have %d", name, total)
		}
	}
}

func TestPredictStreamUsesCache(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	ctx := context.Background()
	loadCatsAndDogs(t, m)
	if _, err := m.Train(ctx); err != nil {
		t.Fatalf("train: %v", err)
	}

	query := grayHex(t, 230)
	full, err := m.Predict(ctx, query)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	for range 3 {
		got, err := m.PredictStream(ctx, query)
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		if got.Label != full.Label || got.Confidence != full.Confidence {
			t.Fatalf("stream disagrees with predict: %+v vs %+v", got, full)
		}
	}
	if m.cache.Len() != 1 {
		t.Fatalf("expected one cached prediction, got %d", m.cache.Len())
	}

	if _, err := m.Train(ctx); err != nil {
		t.Fatalf("retrain: %v", err)
	}
	if m.cache.Len() != 0 {
		t.Fatalf("cache should be purged after retrain, has %d", m.cache.Len())
	}
}

func TestListSnapshots(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	ctx := context.Background()

	infos, err := m.ListSnapshots()
	if err != nil || len(infos) != 0 {
		t.Fatalf("expected empty listing, got %v %v", infos, err)
	}

	loadCatsAndDogs(t, m)
	if _, err := m.Train(ctx); err != nil {
		t.Fatalf("train: %v", err)
	}
	os.WriteFile(filepath.Join(dir, "broken.snap"), []byte("not gob"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	infos, err = m.ListSnapshots()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(infos), infos)
	}

	byName := map[string]SnapshotInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	good := byName[DefaultSnapshotName]
	if good.Error != "" || good.TotalSamples != 12 || len(good.Classes) != 2 || good.ModelType != "knn" || good.Size == 0 {
		t.Errorf("unexpected active snapshot entry: %+v", good)
	}
	broken := byName["broken.snap"]
	if broken.Error == "" || broken.Size != 7 {
		t.Errorf("expected error entry for broken snapshot: %+v", broken)
	}
}

func TestListSnapshotsMissingDir(t *testing.T) {
	m := newTestManager(t, filepath.Join(t.TempDir(), "does-not-exist"))
	infos, err := m.ListSnapshots()
	if err != nil || len(infos) != 0 {
		t.Fatalf("expected empty listing, got %v %v", infos, err)
	}
}

func TestCorruptActiveSnapshot(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, DefaultSnapshotName), []byte("garbage"), 0o644)

	m := newTestManager(t, dir)
	err := m.EnsureLoaded(context.Background())
	if err == nil || errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected a load error, got %v", err)
	}
}

func TestHistoryRecordsTrainAndClear(t *testing.T) {
	dir := t.TempDir()
	ledger, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()

	m, err := NewManager(Options{Dir: dir, Ledger: ledger})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ctx := context.Background()
	loadCatsAndDogs(t, m)
	if _, err := m.Train(ctx); err != nil {
		t.Fatalf("train: %v", err)
	}
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	events, err := m.History(0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != history.KindCleared || events[1].Kind != history.KindTrained {
		t.Fatalf("unexpected event order: %+v", events)
	}
	if events[1].TotalSamples != 12 || events[1].SizeBytes == 0 {
		t.Errorf("trained event missing details: %+v", events[1])
	}
}
