// Package shaders watches the stage program sources so edits can be picked
// up without restarting.
package shaders

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

var sourceExts = map[string]bool{
	".task": true,
	".mesh": true,
	".frag": true,
	".comp": true,
	".glsl": true,
}

// Watcher flags shader source changes from a background goroutine. Programs
// are rebuilt by the render thread when it polls.
type Watcher struct {
	watcher *fsnotify.Watcher
	log     *slog.Logger
	dirty   atomic.Bool
	done    chan struct{}
	stopped chan struct{}
}

// Watch starts watching dir.
func Watch(dir string, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create shader watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w := &Watcher{
		watcher: fw,
		log:     log,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !sourceExts[filepath.Ext(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.log.Debug("shader source changed", "file", event.Name, "op", event.Op.String())
				w.dirty.Store(true)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("shader watcher", "err", err)
		}
	}
}

// Pending reports whether sources changed since the last call.
func (w *Watcher) Pending() bool {
	return w.dirty.Swap(false)
}

// Poll runs reload if sources changed since the last poll. A failed reload
// is retried on the next change only.
func (w *Watcher) Poll(reload func() error) error {
	if !w.Pending() {
		return nil
	}
	if err := reload(); err != nil {
		return fmt.Errorf("reload shaders: %w", err)
	}
	w.log.Info("shaders reloaded")
	return nil
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	<-w.stopped
	return err
}
