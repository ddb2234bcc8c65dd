package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/appctx/factory"
	"github.com/GoCodeAlone/appctx/registry"
)

type service struct {
	name    string
	phase   int
	auto    *bool
	running bool
	log     *[]string
	failOn  string
	waitCtx bool
}

func (s *service) Start(context.Context) error {
	if s.failOn == "start" {
		return errors.New("start failed")
	}
	s.running = true
	*s.log = append(*s.log, "start:"+s.name)
	return nil
}

func (s *service) Stop(ctx context.Context) error {
	if s.waitCtx {
		<-ctx.Done()
	}
	s.running = false
	*s.log = append(*s.log, "stop:"+s.name)
	if s.failOn == "stop" {
		return errors.New("stop failed")
	}
	return nil
}

func (s *service) IsRunning() bool { return s.running }
func (s *service) Phase() int      { return s.phase }

type autoService struct{ *service }

func (a autoService) AutoStartup() bool { return *a.auto }

type fakeSource struct {
	names      []string
	components map[string]any
}

func (f *fakeSource) NamesForType(t reflect.Type, _ bool) []string {
	var out []string
	for _, n := range f.names {
		if reflect.TypeOf(f.components[n]).AssignableTo(t) {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeSource) Get(name string) (any, error) {
	c, ok := f.components[name]
	if !ok {
		return nil, fmt.Errorf("no %s", name)
	}
	return c, nil
}

func (f *fakeSource) add(name string, c any) {
	if f.components == nil {
		f.components = map[string]any{}
	}
	f.names = append(f.names, name)
	f.components[name] = c
}

func TestStartAscendingStopDescending(t *testing.T) {
	t.Parallel()

	var log []string
	src := &fakeSource{}
	src.add("late", &service{name: "late", phase: 10, log: &log})
	src.add("a", &service{name: "a", log: &log})
	src.add("early", &service{name: "early", phase: -5, log: &log})
	src.add("b", &service{name: "b", log: &log})
	src.add("plain", "not a lifecycle component")

	c := NewDefaultCoordinator(src)
	ctx := context.Background()
	require.NoError(t, c.OnRefresh(ctx))
	assert.True(t, c.IsRunning())
	assert.Equal(t, []string{"start:early", "start:a", "start:b", "start:late"}, log)

	log = nil
	require.NoError(t, c.OnClose(ctx))
	assert.False(t, c.IsRunning())
	assert.Equal(t, []string{"stop:late", "stop:b", "stop:a", "stop:early"}, log)
}

func TestAutoStartupOptOut(t *testing.T) {
	t.Parallel()

	var log []string
	off := false
	src := &fakeSource{}
	src.add("manual", autoService{service: &service{name: "manual", log: &log, auto: &off}})

	c := NewDefaultCoordinator(src)
	ctx := context.Background()
	require.NoError(t, c.OnRefresh(ctx))
	assert.Empty(t, log, "opted-out components are not started on refresh")

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []string{"start:manual"}, log, "explicit start includes them")

	require.NoError(t, c.Start(ctx))
	assert.Len(t, log, 1, "running components are not restarted")
}

func TestStartFailureStops(t *testing.T) {
	t.Parallel()

	var log []string
	src := &fakeSource{}
	src.add("ok", &service{name: "ok", log: &log})
	src.add("bad", &service{name: "bad", phase: 1, log: &log, failOn: "start"})

	c := NewDefaultCoordinator(src)
	err := c.OnRefresh(context.Background())
	require.ErrorIs(t, err, ErrStartFailed)
	assert.ErrorContains(t, err, "bad")
	assert.False(t, c.IsRunning())
}

func TestStopJoinsErrorsAndHonoursTimeout(t *testing.T) {
	t.Parallel()

	var log []string
	src := &fakeSource{}
	src.add("slow", &service{name: "slow", log: &log, waitCtx: true})
	src.add("broken", &service{name: "broken", phase: 1, log: &log, failOn: "stop"})

	c := NewDefaultCoordinator(src, WithStopTimeout(20*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, c.OnRefresh(ctx))

	started := time.Now()
	err := c.Stop(ctx)
	assert.Less(t, time.Since(started), 5*time.Second)
	require.ErrorIs(t, err, ErrStopFailed)
	assert.Equal(t, []string{"start:slow", "start:broken", "stop:broken", "stop:slow"}, log)
}

func TestNoSource(t *testing.T) {
	t.Parallel()

	c := &DefaultCoordinator{}
	assert.ErrorIs(t, c.OnRefresh(context.Background()), ErrNoSource)
	assert.Equal(t, DefaultStopTimeout, c.StopTimeout())
}

func TestCoordinatorOverFactory(t *testing.T) {
	t.Parallel()

	var log []string
	reg := registry.NewRegistry(nil)
	f := factory.New(reg)
	require.NoError(t, reg.Register("svc", registry.Instance(&service{name: "svc", log: &log})))
	require.NoError(t, reg.Register("coordinator", registry.OfType[*DefaultCoordinator]()))

	instance, err := f.Get("coordinator")
	require.NoError(t, err)
	c := instance.(*DefaultCoordinator)
	c.SetFactory(f)

	ctx := context.Background()
	require.NoError(t, c.OnRefresh(ctx), "the coordinator skips itself")
	assert.Equal(t, []string{"start:svc"}, log)
	require.NoError(t, c.OnClose(ctx))
}
