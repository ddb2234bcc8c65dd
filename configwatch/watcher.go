// Package configwatch publishes container events when watched files change.
package configwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/appctx"
	"github.com/GoCodeAlone/appctx/event"
	"github.com/GoCodeAlone/appctx/registry"
)

// WatcherName is the component name used by Register.
const WatcherName = "configWatcher"

// EventTypeChanged is the CloudEvent type of ChangedEvent.
const EventTypeChanged = "com.appctx.configwatch.changed"

var (
	ErrNoPaths     = errors.New("configwatch: no paths to watch")
	ErrNoPublisher = errors.New("configwatch: no publisher set")
)

// ChangedEvent reports a change to a watched file.
type ChangedEvent struct {
	event.Base
	Path string
	Op   string
}

func (*ChangedEvent) EventType() string { return EventTypeChanged }

func (e *ChangedEvent) EventData() any {
	return map[string]string{"path": e.Path, "op": e.Op}
}

const watchedOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watcher is a lifecycle component that watches files and publishes a
// ChangedEvent for every write, create, remove or rename. Parent directories
// are watched so that files replaced by rename keep being tracked.
type Watcher struct {
	mu        sync.Mutex
	paths     []string
	files     map[string]bool
	publisher appctx.Publisher
	logger    appctx.Logger

	fs      *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewWatcher creates a stopped watcher for paths.
func NewWatcher(paths ...string) *Watcher {
	w := &Watcher{
		files:  make(map[string]bool),
		logger: slog.Default(),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = filepath.Clean(p)
		}
		if !w.files[abs] {
			w.files[abs] = true
			w.paths = append(w.paths, abs)
		}
	}
	return w
}

// Register adds a watcher definition for paths to reg.
func Register(reg *registry.Registry, paths ...string) error {
	return reg.Register(WatcherName, &registry.Definition{
		Type: reflect.TypeFor[*Watcher](),
		Role: registry.RoleInfrastructure,
		Supplier: func(registry.Resolver) (any, error) {
			return NewWatcher(paths...), nil
		},
		Description: "Publishes configuration file changes",
	})
}

// Paths returns the watched files.
func (w *Watcher) Paths() []string {
	return slices.Clone(w.paths)
}

// SetPublisher implements appctx.PublisherAware.
func (w *Watcher) SetPublisher(p appctx.Publisher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.publisher = p
}

// SetLogger implements appctx.LoggerAware.
func (w *Watcher) SetLogger(l appctx.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if l != nil {
		w.logger = l
	}
}

// Start begins watching.
func (w *Watcher) Start(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if len(w.paths) == 0 {
		return ErrNoPaths
	}
	if w.publisher == nil {
		return ErrNoPublisher
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("configwatch: creating watcher: %w", err)
	}
	dirs := make(map[string]bool)
	for _, p := range w.paths {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		if err := fs.Add(dir); err != nil {
			_ = fs.Close()
			return fmt.Errorf("configwatch: watching %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.fs, w.cancel, w.done = fs, cancel, make(chan struct{})
	w.running = true
	go w.loop(ctx, fs, w.publisher, w.logger, w.done)

	w.logger.Info("Watching configuration files", "paths", w.paths)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fs *fsnotify.Watcher, pub appctx.Publisher, logger appctx.Logger, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-fs.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(ev.Name)] || ev.Op&watchedOps == 0 {
				continue
			}
			changed := &ChangedEvent{Base: event.NewBase(w), Path: filepath.Clean(ev.Name), Op: ev.Op.String()}
			logger.Debug("Configuration file changed", "path", changed.Path, "op", changed.Op)
			if err := pub.PublishEvent(ctx, changed); err != nil {
				logger.Error("Failed to publish configuration change", "path", changed.Path, "error", err)
			}
		case err, ok := <-fs.Errors:
			if !ok {
				return
			}
			logger.Error("Configuration watcher error", "error", err)
		}
	}
}

// Stop closes the watcher and waits for the event loop to exit or ctx to be
// done.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	fs, cancel, done := w.fs, w.cancel, w.done
	w.fs, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()

	cancel()
	err := fs.Close()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("configwatch: closing watcher: %w", err)
	}
	return nil
}

// IsRunning implements lifecycle.Lifecycle.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
