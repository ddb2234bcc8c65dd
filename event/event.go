// Package event provides the container-wide event bus: typed events,
// listeners, a synchronous multicaster and the early-event buffer used while
// the container is still bootstrapping.
package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Static errors for event package
var (
	ErrListenerPanic   = errors.New("listener panicked")
	ErrNotListener     = errors.New("component is not an event listener")
	ErrBusActive       = errors.New("event bus already active")
	ErrNilEvent        = errors.New("event cannot be nil")
	ErrNilMulticaster  = errors.New("multicaster cannot be nil")
	ErrInvalidListener = errors.New("listener cannot be nil")
)

// Event is published through the bus. Implementations are treated as
// immutable once published.
type Event interface {
	// EventSource returns the object the event originated from, usually the container.
	EventSource() any
	EventID() string
	Timestamp() time.Time
}

// Base carries the metadata every event has. Embed it in concrete events.
type Base struct {
	ID     string
	Source any
	Time   time.Time
}

// NewBase creates event metadata for source with a fresh time-ordered ID.
func NewBase(source any) Base {
	return Base{ID: newEventID(), Source: source, Time: time.Now()}
}

func (b Base) EventSource() any     { return b.Source }
func (b Base) EventID() string      { return b.ID }
func (b Base) Timestamp() time.Time { return b.Time }

// PayloadEvent wraps an arbitrary published object that is not itself an Event.
type PayloadEvent struct {
	Base
	Payload any
}

// NewPayloadEvent wraps payload in an event originating from source.
func NewPayloadEvent(source, payload any) *PayloadEvent {
	return &PayloadEvent{Base: NewBase(source), Payload: payload}
}

// Wrap returns v as an Event, wrapping non-event values in a PayloadEvent.
func Wrap(source, v any) Event {
	if e, ok := v.(Event); ok {
		return e
	}
	return NewPayloadEvent(source, v)
}

// newEventID generates a UUIDv7 so IDs sort by creation time.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// Listener receives events from the bus.
type Listener interface {
	OnEvent(ctx context.Context, e Event) error
}

// ListenerFunc adapts a function to Listener. A ListenerFunc is not
// comparable, so it cannot be removed once added; use On or a named type when
// removal is needed.
type ListenerFunc func(ctx context.Context, e Event) error

func (f ListenerFunc) OnEvent(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Filter is implemented by listeners that only accept some events. Listeners
// without it receive everything.
type Filter interface {
	Supports(e Event) bool
}

// Supports reports whether l accepts e.
func Supports(l Listener, e Event) bool {
	if f, ok := l.(Filter); ok {
		return f.Supports(e)
	}
	return true
}

type typedListener[E Event] struct {
	fn func(ctx context.Context, e E) error
}

// On returns a listener that only receives events of type E.
func On[E Event](fn func(ctx context.Context, e E) error) Listener {
	return &typedListener[E]{fn: fn}
}

func (l *typedListener[E]) Supports(e Event) bool {
	_, ok := e.(E)
	return ok
}

func (l *typedListener[E]) OnEvent(ctx context.Context, e Event) error {
	typed, ok := e.(E)
	if !ok {
		return nil
	}
	return l.fn(ctx, typed)
}

type payloadListener[T any] struct {
	fn func(ctx context.Context, payload T) error
}

// OnPayload returns a listener that receives the payloads of PayloadEvents
// whose payload is a T.
func OnPayload[T any](fn func(ctx context.Context, payload T) error) Listener {
	return &payloadListener[T]{fn: fn}
}

func (l *payloadListener[T]) Supports(e Event) bool {
	pe, ok := e.(*PayloadEvent)
	if !ok {
		return false
	}
	_, ok = pe.Payload.(T)
	return ok
}

func (l *payloadListener[T]) OnEvent(ctx context.Context, e Event) error {
	pe, ok := e.(*PayloadEvent)
	if !ok {
		return nil
	}
	payload, ok := pe.Payload.(T)
	if !ok {
		return nil
	}
	return l.fn(ctx, payload)
}
