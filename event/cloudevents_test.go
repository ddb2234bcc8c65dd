package event

import (
	"context"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customTyped struct{ Base }

func (customTyped) EventType() string { return "com.example.custom" }
func (customTyped) EventData() any    { return map[string]string{"k": "v"} }

func TestTypeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "com.appctx.test", TypeOf(newTestEvent("x")))
	assert.Equal(t, "com.appctx.other", TypeOf(&otherEvent{}))
	assert.Equal(t, "com.example.custom", TypeOf(customTyped{}))
	assert.Equal(t, "com.appctx.payload.string", TypeOf(NewPayloadEvent(nil, "s")))
}

func TestToCloudEvent(t *testing.T) {
	t.Parallel()

	pe := NewPayloadEvent(nil, map[string]int{"n": 1})
	ce, err := ToCloudEvent(pe, "appctx://test")
	require.NoError(t, err)
	assert.Equal(t, pe.EventID(), ce.ID())
	assert.Equal(t, "appctx://test", ce.Source())
	assert.Equal(t, cloudevents.VersionV1, ce.SpecVersion())
	assert.JSONEq(t, `{"n":1}`, string(ce.Data()))

	custom, err := ToCloudEvent(customTyped{Base: NewBase(nil)}, "appctx://test")
	require.NoError(t, err)
	assert.Equal(t, "com.example.custom", custom.Type())
	assert.JSONEq(t, `{"k":"v"}`, string(custom.Data()))

	_, err = ToCloudEvent(newTestEvent("x"), "")
	assert.Error(t, err, "empty source fails validation")
}

func TestCloudEventListener(t *testing.T) {
	t.Parallel()

	var got []cloudevents.Event
	l := NewCloudEventListener("appctx://test", func(_ context.Context, ce cloudevents.Event) error {
		got = append(got, ce)
		return nil
	}, "com.appctx.test")

	m := NewSimpleMulticaster()
	m.AddListener(l)
	ctx := context.Background()
	require.NoError(t, m.Multicast(ctx, newTestEvent("a")))
	require.NoError(t, m.Multicast(ctx, &otherEvent{Base: NewBase(nil)}))

	require.Len(t, got, 1)
	assert.Equal(t, "com.appctx.test", got[0].Type())
}
