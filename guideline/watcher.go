package guideline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var watchExcludes = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

// Watcher invalidates a Reader's cache when directive files change on
// disk. Changes are debounced so editor save bursts collapse into one
// invalidation.
type Watcher struct {
	reader   *Reader
	root     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]struct{}
}

// NewWatcher creates a watcher over the directory tree rooted at root.
func NewWatcher(reader *Reader, root string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		reader:   reader,
		root:     root,
		watcher:  fsw,
		debounce: debounce,
		logger:   logger.With("component", "guideline-watcher"),
		pending:  make(map[string]struct{}),
	}, nil
}

// Start adds recursive watches and begins processing events until ctx
// is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.root); err != nil {
		return err
	}
	go w.processEvents(ctx)
	w.logger.Info("guideline watcher started", "root", w.root, "debounce", w.debounce)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if watchExcludes[base] || (strings.HasPrefix(base, ".") && path != root) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !isCandidate(filepath.Base(event.Name)) {
		return
	}
	w.pendingMu.Lock()
	w.pending[event.Name] = struct{}{}
	w.pendingMu.Unlock()
}

func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		w.reader.Invalidate(abs)
		w.logger.Debug("directive cache invalidated", "path", abs)
	}
}

func isCandidate(name string) bool {
	for _, c := range CandidateFilenames {
		if name == c {
			return true
		}
	}
	return false
}
