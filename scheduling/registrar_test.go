package scheduling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/appctx"
	"github.com/GoCodeAlone/appctx/order"
	"github.com/GoCodeAlone/appctx/registry"
)

type tickTask struct {
	spec string
	runs atomic.Int32
	err  error
}

func (t *tickTask) CronSpec() string { return t.spec }

func (t *tickTask) Run(context.Context) error {
	t.runs.Add(1)
	return t.err
}

func newContainer(t *testing.T, defs map[string]*registry.Definition) *appctx.Container {
	t.Helper()
	c, err := appctx.New(appctx.WithLogger(appctx.NewSlogLogger(nil, "error")))
	require.NoError(t, err)
	require.NoError(t, Register(c.Registry()))
	for name, def := range defs {
		require.NoError(t, c.RegisterDefinition(name, def))
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestRegistrarSchedulesTaskComponents(t *testing.T) {
	task := &tickTask{spec: "@every 1s"}
	c := newContainer(t, map[string]*registry.Definition{"ticker": registry.Instance(task)})
	require.NoError(t, c.Refresh(context.Background()))

	r, err := appctx.Get[*Registrar](c, RegistrarName)
	require.NoError(t, err)
	assert.True(t, r.IsRunning(), "the registrar starts with the container")

	tasks := r.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "ticker", tasks[0].Name)
	assert.Equal(t, "@every 1s", tasks[0].Spec)

	require.Eventually(t, func() bool { return task.runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Close(context.Background()))
	assert.False(t, r.IsRunning())
}

func TestInvalidSpecFailsComponentCreation(t *testing.T) {
	c := newContainer(t, map[string]*registry.Definition{
		"broken": registry.Instance(&tickTask{spec: "every tuesday"}),
	})
	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSpec)

	var ie *appctx.InitError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "broken", ie.Component)
}

func TestRegistrarRank(t *testing.T) {
	r := NewRegistrar()
	assert.Equal(t, order.RankOrdered, order.Classify(r))
	assert.Equal(t, order.LowestPrecedence, r.Order())
	assert.Equal(t, Phase, r.Phase())
}

func TestStandaloneRegistrar(t *testing.T) {
	r := NewRegistrar(WithSeconds(), WithLocation(time.UTC))
	failing := &tickTask{spec: "* * * * * *", err: errors.New("nope")}
	require.NoError(t, r.Schedule("failing", failing))
	assert.True(t, r.Tasks()[0].Next.IsZero(), "no activation is planned while stopped")

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()), "starting twice is a no-op")
	require.Eventually(t, func() bool { return failing.runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
	assert.False(t, r.Tasks()[0].Next.IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx), "stopping twice is a no-op")

	_, err := r.AfterInit(&tickTask{spec: "61 * * * * *"}, "bad")
	assert.ErrorIs(t, err, ErrInvalidSpec)
	same, err := r.AfterInit("not a task", "plain")
	require.NoError(t, err)
	assert.Equal(t, "not a task", same)
}
