package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk. Editors replace
// files rather than rewriting them in place, so the parent directory is
// watched and events are filtered by name.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config, error)

	running atomic.Bool
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for path. onChange receives either the
// freshly loaded config or the load error; it is never called concurrently.
func NewWatcher(path string, debounce time.Duration, onChange func(*Config, error)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{path: path, debounce: debounce, onChange: onChange}, nil
}

// Start begins watching until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("config watcher already running")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.running.Store(false)
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		w.running.Store(false)
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = fw
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.watcher.Close()
	defer w.running.Store(false)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.onChange(Load(w.path))
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
