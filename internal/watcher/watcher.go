// Package watcher keeps the corpus in sync with directories on disk. File events are
// debounced and flushed to a Sink as one batch, so a burst of edits costs one rebuild.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Sink applies a batch of file changes.
type Sink interface {
	IndexFiles(ctx context.Context, paths []string, allowedExts []string) (int, error)
	DeleteFiles(ctx context.Context, paths []string) error
}

type change int

const (
	changeIndex change = iota + 1
	changeRemove
)

// Watcher watches directory trees and forwards debounced changes to a Sink.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	sink       Sink
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]change
	done    chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = utils.LoggerOrNop(l) }
}

// WithDebounce sets the quiet period before pending changes are flushed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over roots. extensions filter which files are forwarded; empty means all.
func New(roots, extensions []string, recursive bool, sink Sink, opts ...Option) *Watcher {
	w := &Watcher{
		roots:      roots,
		extensions: extensions,
		recursive:  recursive,
		sink:       sink,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]change),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers the roots and begins watching in the background until ctx is done.
// Missing roots are created.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, root := range w.roots {
		if err := w.addTree(fsw, root); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()
	w.logger.Info("watching directories",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	go w.run(ctx, fsw)
	return nil
}

// Done is closed once the watcher has stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	defer fsw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if w.handleEvent(fsw, ev) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			w.flush(ctx)
		}
	}
}

// handleEvent records the change for ev and reports whether anything became pending.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) bool {
	path := filepath.Clean(ev.Name)
	if isHidden(path) {
		return false
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.IsDir() {
			return w.handleNewDirectory(fsw, path)
		}
		if !w.matchExtension(path) {
			return false
		}
		w.mark(path, changeIndex)
		return true
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if !w.matchExtension(path) {
			return false
		}
		w.mark(path, changeRemove)
		return true
	}
	return false
}

// handleNewDirectory watches a directory created or moved under a root and queues its files.
func (w *Watcher) handleNewDirectory(fsw *fsnotify.Watcher, dir string) bool {
	if !w.recursive {
		return false
	}
	if err := w.addTree(fsw, dir); err != nil {
		w.logger.Warn("failed to watch new directory", zap.String("path", dir), zap.Error(err))
	}
	queued := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && isHidden(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isHidden(path) && w.matchExtension(path) {
			w.mark(path, changeIndex)
			queued = true
		}
		return nil
	})
	return queued
}

func (w *Watcher) mark(path string, c change) {
	w.mu.Lock()
	w.pending[path] = c
	w.mu.Unlock()
}

// flush hands all pending changes to the sink: removals first, then (re)indexing.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]change)
	w.mu.Unlock()

	var indexPaths, removePaths []string
	for path, c := range pending {
		if c == changeIndex {
			indexPaths = append(indexPaths, path)
		} else {
			removePaths = append(removePaths, path)
		}
	}
	sort.Strings(indexPaths)
	sort.Strings(removePaths)

	if len(removePaths) > 0 {
		if err := w.sink.DeleteFiles(ctx, removePaths); err != nil {
			w.logger.Warn("failed to remove files", zap.Strings("paths", removePaths), zap.Error(err))
		}
	}
	if len(indexPaths) > 0 {
		n, err := w.sink.IndexFiles(ctx, indexPaths, w.extensions)
		if err != nil {
			w.logger.Warn("failed to index files", zap.Strings("paths", indexPaths), zap.Error(err))
			return
		}
		w.logger.Debug("watcher flushed", zap.Int("indexed", n), zap.Int("removed", len(removePaths)))
	}
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !w.recursive {
		return fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	return append([]string(nil), w.roots...)
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// isHidden reports whether the base name marks an editor or VCS artifact.
func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~")
}
