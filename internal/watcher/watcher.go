// Package watcher hot-reloads configuration files edited outside the app.
// It watches the config directory rather than the files themselves so that
// editors replacing a file through rename are still observed.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/wailsapp/wails/v2/pkg/logger"
)

// DefaultSettle is how long a file must stay quiet before its handler runs.
const DefaultSettle = 250 * time.Millisecond

// ChangeHandler is invoked with the absolute path of a changed file.
type ChangeHandler func(path string)

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// ConfigWatcher watches named files inside one directory and calls their
// handlers once writes settle.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	settle   time.Duration
	log      logger.Logger
	handlers map[string]ChangeHandler // base name -> handler
	timers   map[string]*time.Timer   // base name -> pending settle timer
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewConfigWatcher starts watching dir. A settle of zero uses DefaultSettle.
func NewConfigWatcher(dir string, settle time.Duration, log logger.Logger) (*ConfigWatcher, error) {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cw := &ConfigWatcher{
		watcher:  w,
		dir:      filepath.Clean(dir),
		settle:   settle,
		log:      log,
		handlers: make(map[string]ChangeHandler),
		timers:   make(map[string]*time.Timer),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

// Watch registers a handler for a file name inside the watched directory.
func (cw *ConfigWatcher) Watch(name string, handler ChangeHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers[filepath.Base(name)] = handler
}

func (cw *ConfigWatcher) run() {
	defer close(cw.done)
	for {
		select {
		case <-cw.ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				cw.schedule(event.Name)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warning(fmt.Sprintf("[watcher] %v", err))
		}
	}
}

// schedule (re)starts the settle timer of a watched file.
func (cw *ConfigWatcher) schedule(path string) {
	if filepath.Dir(filepath.Clean(path)) != cw.dir {
		return
	}
	name := filepath.Base(path)

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.ctx.Err() != nil {
		return
	}
	handler, ok := cw.handlers[name]
	if !ok {
		return
	}
	if t, pending := cw.timers[name]; pending {
		t.Stop()
	}
	full := filepath.Join(cw.dir, name)
	cw.timers[name] = time.AfterFunc(cw.settle, func() {
		cw.mu.Lock()
		delete(cw.timers, name)
		stopped := cw.ctx.Err() != nil
		cw.mu.Unlock()
		if stopped {
			return
		}
		cw.log.Debug(fmt.Sprintf("[watcher] %s changed", name))
		handler(full)
	})
}

// Close stops watching and cancels pending handlers.
func (cw *ConfigWatcher) Close() {
	cw.cancel()
	cw.watcher.Close()
	<-cw.done

	cw.mu.Lock()
	defer cw.mu.Unlock()
	for name, t := range cw.timers {
		t.Stop()
		delete(cw.timers, name)
	}
}
