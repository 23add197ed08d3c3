package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWatcher_Validation(t *testing.T) {
	t.Parallel()

	sink, _ := newMemorySink(t, 3)
	p, err := NewPipeline(&fakeEmbedder{dimension: 3}, sink, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	src := &sliceSource{}

	if _, err := NewWatcher(nil, src, "path", nil); err == nil {
		t.Error("expected error for nil pipeline")
	}
	if _, err := NewWatcher(p, nil, "path", nil); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := NewWatcher(p, src, "path", nil); err != nil {
		t.Errorf("valid watcher: %v", err)
	}
}

func TestWatcher_MissingPath(t *testing.T) {
	t.Parallel()

	sink, _ := newMemorySink(t, 3)
	p, err := NewPipeline(&fakeEmbedder{dimension: 3}, sink, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	w, err := NewWatcher(p, &sliceSource{}, filepath.Join(t.TempDir(), "gone.csv"), discardLogger())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	if err := w.Run(context.Background()); err == nil {
		t.Error("expected error for missing watch path")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink, _ := newMemorySink(t, 3)
	p, err := NewPipeline(&fakeEmbedder{dimension: 3}, sink, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	w, err := NewWatcher(p, &sliceSource{}, dir, discardLogger())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

// TestWatcher_ReingestsOnWrite exercises the full loop: a file write inside
// the watched directory triggers a debounced re-ingest.
func TestWatcher_ReingestsOnWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink, store := newMemorySink(t, 3)
	p, err := NewPipeline(&fakeEmbedder{dimension: 3}, sink, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	src := &DirSource{Path: dir}
	w, err := NewWatcher(p, src, dir, discardLogger())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register before producing the event.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("fresh document"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for store.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if store.Len() != 1 {
		t.Fatalf("expected the write to trigger a re-ingest, store has %d documents", store.Len())
	}

	cancel()
	<-done
}
