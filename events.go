package appctx

import (
	"github.com/GoCodeAlone/appctx/event"
)

// Container event types, in CloudEvents reverse domain notation.
const (
	EventTypeRefreshed = "com.appctx.container.refreshed"
	EventTypeStarted   = "com.appctx.container.started"
	EventTypeStopped   = "com.appctx.container.stopped"
	EventTypeClosed    = "com.appctx.container.closed"
)

type containerEvent struct {
	event.Base
}

// Container returns the container that published the event.
func (e containerEvent) Container() *Container {
	c, _ := e.Source.(*Container)
	return c
}

// EventData reports the publishing container in CloudEvents form.
func (e containerEvent) EventData() any {
	c := e.Container()
	if c == nil {
		return nil
	}
	return map[string]string{"id": c.ID(), "name": c.Name()}
}

// RefreshedEvent is published once the container has finished refreshing and
// its lifecycle components have started.
type RefreshedEvent struct{ containerEvent }

// StartedEvent is published by an explicit Start.
type StartedEvent struct{ containerEvent }

// StoppedEvent is published by an explicit Stop.
type StoppedEvent struct{ containerEvent }

// ClosedEvent is published when the container begins to close.
type ClosedEvent struct{ containerEvent }

func (*RefreshedEvent) EventType() string { return EventTypeRefreshed }
func (*StartedEvent) EventType() string   { return EventTypeStarted }
func (*StoppedEvent) EventType() string   { return EventTypeStopped }
func (*ClosedEvent) EventType() string    { return EventTypeClosed }

func newContainerEvent(c *Container) containerEvent {
	return containerEvent{Base: event.NewBase(c)}
}
