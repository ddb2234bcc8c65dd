package configwatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/appctx"
	"github.com/GoCodeAlone/appctx/event"
)

type changes struct {
	mu   sync.Mutex
	seen []*ChangedEvent
}

func (c *changes) listener() event.Listener {
	return event.On(func(_ context.Context, e *ChangedEvent) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.seen = append(c.seen, e)
		return nil
	})
}

func (c *changes) paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.seen))
	for _, e := range c.seen {
		out = append(out, e.Path)
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestWatcherPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "app.yaml")
	other := filepath.Join(dir, "other.yaml")
	writeFile(t, watched, "name: one\n")

	var got changes
	c, err := appctx.New(
		appctx.WithLogger(appctx.NewSlogLogger(nil, "error")),
		appctx.WithListeners(got.listener()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	require.NoError(t, Register(c.Registry(), watched))
	require.NoError(t, c.Refresh(context.Background()))

	w, err := appctx.Get[*Watcher](c, WatcherName)
	require.NoError(t, err)
	require.True(t, w.IsRunning())

	writeFile(t, other, "ignored\n")
	writeFile(t, watched, "name: two\n")

	require.Eventually(t, func() bool {
		return len(got.paths()) > 0
	}, 3*time.Second, 20*time.Millisecond)
	for _, p := range got.paths() {
		assert.Equal(t, watched, p, "only watched files produce events")
	}

	got.mu.Lock()
	first := got.seen[0]
	got.mu.Unlock()
	assert.Equal(t, EventTypeChanged, event.TypeOf(first))
	assert.NotEmpty(t, first.Op)
	assert.Same(t, w, first.EventSource())

	require.NoError(t, c.Close(context.Background()))
	assert.False(t, w.IsRunning())
}

func TestWatcherTracksReplacedFiles(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "app.toml")
	writeFile(t, watched, "name = \"one\"\n")

	var got changes
	bus := event.NewSimpleMulticaster()
	bus.AddListener(got.listener())

	w := NewWatcher(watched)
	w.SetPublisher(publisherFunc(func(ctx context.Context, v any) error {
		return bus.Multicast(ctx, v.(event.Event))
	}))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	tmp := filepath.Join(dir, "app.toml.tmp")
	writeFile(t, tmp, "name = \"two\"\n")
	require.NoError(t, os.Rename(tmp, watched))

	require.Eventually(t, func() bool {
		return len(got.paths()) > 0
	}, 3*time.Second, 20*time.Millisecond)
	assert.Contains(t, got.paths(), watched)
}

func TestWatcherStartValidation(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, NewWatcher().Start(ctx), ErrNoPaths)
	assert.ErrorIs(t, NewWatcher(filepath.Join(t.TempDir(), "x.yaml")).Start(ctx), ErrNoPublisher)

	w := NewWatcher(filepath.Join(t.TempDir(), "missing", "x.yaml"))
	w.SetPublisher(publisherFunc(func(context.Context, any) error { return nil }))
	assert.Error(t, w.Start(ctx), "a missing directory cannot be watched")
	assert.False(t, w.IsRunning())
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "x.yaml"), filepath.Join(t.TempDir(), "x.yaml"))
	w.SetPublisher(publisherFunc(func(context.Context, any) error { return nil }))
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop(context.Background()))
	require.NoError(t, w.Stop(context.Background()))
	assert.Len(t, w.Paths(), 2)
}

type publisherFunc func(ctx context.Context, v any) error

func (f publisherFunc) PublishEvent(ctx context.Context, v any) error { return f(ctx, v) }
