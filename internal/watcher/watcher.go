// Package watcher reloads readers when a new index snapshot is published.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher observes the parent directory of an index dir. A publish swaps a fully
// written staging directory into place and then removes the build lock, so either
// event means a new snapshot is readable. Bursts are collapsed into one callback.
type Watcher struct {
	dir       string
	lockPath  string
	onPublish func()
	debounce  time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the quiet period before onPublish runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for the index directory dir. onPublish runs on its
// own goroutine after each publish settles.
func NewWatcher(dir string, onPublish func(), opts ...Option) *Watcher {
	dir = filepath.Clean(dir)
	w := &Watcher{
		dir:       dir,
		lockPath:  dir + ".lock",
		onPublish: onPublish,
		debounce:  defaultDebounce,
		logger:    zap.NewNop(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts watching. It runs until ctx is cancelled or Stop is called. The
// parent directory is created when missing so a first build can be observed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	parent := filepath.Dir(w.dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(parent); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw
	w.started = true
	w.logger.Debug("index watcher starting", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("index watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !w.isPublish(ev) {
		return
	}
	w.logger.Debug("index watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	w.schedule()
}

// isPublish reports whether ev marks a completed snapshot swap.
func (w *Watcher) isPublish(ev fsnotify.Event) bool {
	switch filepath.Clean(ev.Name) {
	case w.dir:
		return ev.Has(fsnotify.Create)
	case w.lockPath:
		return ev.Has(fsnotify.Remove)
	}
	return false
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.timer = nil
		active := w.started
		w.mu.Unlock()
		if !active {
			return
		}
		if _, err := os.Stat(w.dir); err != nil {
			w.logger.Debug("index dir not present after event", zap.String("dir", w.dir), zap.Error(err))
			return
		}
		w.logger.Debug("index published (debounced)", zap.String("dir", w.dir))
		if w.onPublish != nil {
			w.onPublish()
		}
	})
}

// Stop stops the watcher and releases resources. Pending callbacks are cancelled.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
