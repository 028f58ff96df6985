package rag

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"openworker/internal/logging"
	"openworker/internal/pathguard"
)

// Validator reports whether a path lies inside an allowed folder.
type Validator interface {
	Validate(target string) bool
}

// Watcher re-indexes files under the watched roots when they change on disk.
// Writes are batched for Debounce so an editor saving in several steps
// triggers one re-index.
type Watcher struct {
	store    *Store
	guard    Validator
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	Debounce time.Duration

	mu      sync.Mutex
	roots   []string
	pending map[string]fsnotify.Op
}

func NewWatcher(store *Store, guard Validator, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		store:    store,
		guard:    guard,
		fsw:      fsw,
		logger:   logging.OrDiscard(logger),
		Debounce: 500 * time.Millisecond,
		pending:  map[string]fsnotify.Op{},
	}, nil
}

// Add watches root and every non-hidden directory below it.
func (w *Watcher) Add(root string) error {
	root, err := pathguard.Canonicalize(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.roots = append(w.roots, root)
	w.mu.Unlock()
	return w.addTree(root)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("rag.watch_failed", "path", path, "error", err)
		}
		return nil
	})
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("rag.watch_error", "error", err)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) Close() error { return w.fsw.Close() }

func (w *Watcher) handle(ev fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("rag.watch_failed", "path", ev.Name, "error", err)
			}
			return
		}
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	w.pending[ev.Name] |= ev.Op
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	batch := w.pending
	w.pending = map[string]fsnotify.Op{}
	w.mu.Unlock()

	for path := range batch {
		if ctx.Err() != nil {
			return
		}
		w.sync(ctx, path)
	}
}

// sync brings the index in line with the file at path: re-indexed when it
// exists and changed, dropped when it is gone.
func (w *Watcher) sync(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		abs, aerr := pathguard.CanonicalizeTarget(path)
		if aerr != nil {
			return
		}
		if err := w.store.RemoveFile(ctx, abs); err != nil {
			w.logger.Warn("rag.remove_failed", "path", abs, "error", err)
			return
		}
		w.logger.Debug("rag.removed", "path", abs)
		return
	}
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if !w.guard.Validate(path) {
		w.logger.Debug("rag.watch_skip", "path", path)
		return
	}
	root, ok := w.rootOf(path)
	if !ok {
		return
	}

	changed, err := w.store.IndexFile(ctx, root, path)
	if err != nil {
		w.logger.Warn("rag.reindex_failed", "path", path, "error", err)
		return
	}
	if changed {
		w.logger.Info("rag.reindexed", "path", path)
	}
}

// rootOf returns the innermost watched root containing path.
func (w *Watcher) rootOf(path string) (string, bool) {
	resolved, err := pathguard.Canonicalize(path)
	if err != nil {
		return "", false
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	best := ""
	for _, r := range w.roots {
		if pathguard.Within(r, resolved) && len(r) > len(best) {
			best = r
		}
	}
	return best, best != ""
}
