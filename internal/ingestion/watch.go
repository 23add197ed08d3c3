package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay batches bursts of filesystem events (editors and exporters
// typically produce several writes per save) into a single re-ingest.
const debounceDelay = 500 * time.Millisecond

// Watcher re-runs the ingestion pipeline whenever the documents source
// changes on disk, turning batch ingestion into continuous ingestion.
// Because document IDs are content hashes, a re-ingest only adds records
// that are genuinely new; queries keep answering from the store's snapshot
// the whole time.
type Watcher struct {
	// pipeline performs each re-ingest.
	pipeline *Pipeline

	// src is the re-readable record source.
	src Source

	// path is the filesystem path to watch.
	path string

	// log is the structured logger for watch events.
	log *slog.Logger
}

// NewWatcher constructs a Watcher over the given source path.
func NewWatcher(pipeline *Pipeline, src Source, path string, log *slog.Logger) (*Watcher, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("ingestion: pipeline must not be nil")
	}
	if src == nil {
		return nil, fmt.Errorf("ingestion: source must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{pipeline: pipeline, src: src, path: path, log: log}, nil
}

// Run blocks, re-ingesting on every relevant filesystem event until the
// context is cancelled. For a file path the parent directory is watched,
// since editors replace files by rename and the watch would otherwise be
// lost after the first save.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingestion: create watcher: %w", err)
	}
	defer fsw.Close()

	watchPath := w.path
	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("ingestion: stat %s: %w", w.path, err)
	}
	if !info.IsDir() {
		watchPath = filepath.Dir(w.path)
	}
	if err := fsw.Add(watchPath); err != nil {
		return fmt.Errorf("ingestion: watch %s: %w", watchPath, err)
	}

	w.log.Info("watching documents source",
		slog.String("path", w.path),
	)

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !info.IsDir() && filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceDelay)
				debounceCh = debounce.C
			} else {
				debounce.Reset(debounceDelay)
			}

		case <-debounceCh:
			debounce = nil
			debounceCh = nil
			added, err := w.pipeline.Ingest(ctx, w.src, nil)
			if err != nil {
				// A transient read/embed failure must not kill the
				// watcher; the next event retries.
				w.log.Warn("re-ingest failed",
					slog.String("path", w.path),
					slog.Any("error", err),
				)
				continue
			}
			w.log.Info("re-ingest complete",
				slog.String("path", w.path),
				slog.Int("documents", added),
			)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", slog.Any("error", err))
		}
	}
}
