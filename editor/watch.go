package editor

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the interval over which bursts of filesystem events are
// coalesced into one change callback.
const DefaultDebounce = 100 * time.Millisecond

// Watcher keeps a Workspace's project file listing in sync with the disk and
// reports tree changes (create, remove, rename) through a callback.
type Watcher struct {
	ws       *Workspace
	onChange func(ctx context.Context)
	interval time.Duration
}

type WatchOption func(*Watcher)

// WithDebounce sets the debounce interval. Zero fires on every event.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) { w.interval = d }
}

// NewWatcher creates a Watcher over ws. onChange may be nil.
func NewWatcher(ws *Workspace, onChange func(ctx context.Context), opts ...WatchOption) *Watcher {
	w := &Watcher{ws: ws, onChange: onChange, interval: DefaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the project roots until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() {
		_ = fw.Close()
	}()

	for _, root := range w.ws.Roots() {
		w.addTree(fw, root, root)
	}

	db := &debouncer{interval: w.interval, fire: func() {
		w.ws.InvalidateFiles()
		if w.onChange != nil {
			w.onChange(ctx)
		}
	}}
	defer db.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			root := w.rootOf(ev.Name)
			if root != "" && w.ws.Ignored(root, ev.Name, false) {
				continue
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() && root != "" {
					w.addTree(fw, root, ev.Name)
				}
				db.trigger()
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				db.trigger()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.ws.log.DebugContext(ctx, "fsnotify error", slog.String("err", err.Error()))
		}
	}
}

// addTree watches dir and every non-ignored directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, root, dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != root && w.ws.Ignored(root, p, true) {
			return fs.SkipDir
		}
		if err := fw.Add(p); err != nil {
			w.ws.log.Debug("fsnotify add failed", slog.String("path", p), slog.String("err", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) rootOf(p string) string {
	for _, root := range w.ws.Roots() {
		rel, err := filepath.Rel(root, p)
		if err == nil && rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel) {
			return root
		}
	}
	return ""
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	pending  bool
	stopped  bool
	interval time.Duration
	fire     func()
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.interval <= 0 {
		d.mu.Unlock()
		d.fire()
		return
	}
	defer d.mu.Unlock()
	if d.pending {
		return
	}
	d.pending = true
	if d.timer == nil {
		d.timer = time.AfterFunc(d.interval, d.flush)
	} else {
		d.timer.Reset(d.interval)
	}
}

func (d *debouncer) flush() {
	d.mu.Lock()
	d.pending = false
	stopped := d.stopped
	d.mu.Unlock()
	if !stopped {
		d.fire()
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
}
