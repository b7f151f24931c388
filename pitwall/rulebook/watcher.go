package rulebook

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher re-ingests regulation files as they change on disk.
type Watcher struct {
	ingester *Ingester
	root     string
	settle   time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher watches root and every directory below it. Bursts of writes to
// one file are collapsed into a single ingest after settle.
func NewWatcher(ingester *Ingester, root string, settle time.Duration, logger zerolog.Logger) *Watcher {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &Watcher{
		ingester: ingester,
		root:     root,
		settle:   settle,
		logger:   logger.With().Str("component", "rulebook_watcher").Logger(),
		pending:  make(map[string]*time.Timer),
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	w.logger.Info().Str("dir", w.root).Msg("watching regulations")

	defer w.stopPending()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fw, ev)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, ev.Name); err != nil {
				w.logger.Warn().Err(err).Str("dir", ev.Name).Msg("failed to watch new directory")
			}
			return
		}
	}
	if !Supported(ev.Name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
		if err := w.ingester.Forget(ctx, ev.Name); err != nil {
			w.logger.Warn().Err(err).Str("path", ev.Name).Msg("failed to drop removed file")
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.schedule(ctx, ev.Name)
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if _, _, err := w.ingester.IngestFile(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn().Err(err).Str("path", path).Msg("re-ingest failed")
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}
