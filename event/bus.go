package event

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
)

type active struct {
	m Multicaster
}

// Bus is the container-facing event bus. Until Activate is called it buffers
// published events and holds listener registrations; Activate hands the
// listeners to a multicaster and replays the buffer in arrival order.
// Afterwards every call goes straight to the multicaster.
type Bus struct {
	ready atomic.Pointer[active]

	mu        sync.Mutex
	pending   []Event
	listeners []Listener
	names     []string
}

// NewBus creates a bus in the buffering state.
func NewBus() *Bus {
	return &Bus{}
}

// Ready reports whether the bus has been activated.
func (b *Bus) Ready() bool {
	return b.ready.Load() != nil
}

// Multicaster returns the active multicaster, or nil while buffering.
func (b *Bus) Multicaster() Multicaster {
	if a := b.ready.Load(); a != nil {
		return a.m
	}
	return nil
}

// Publish delivers e, or buffers it while the bus is not ready. Buffered
// events report no error to the publisher.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e == nil {
		return ErrNilEvent
	}
	if a := b.ready.Load(); a != nil {
		return a.m.Multicast(ctx, e)
	}

	b.mu.Lock()
	if a := b.ready.Load(); a != nil {
		b.mu.Unlock()
		return a.m.Multicast(ctx, e)
	}
	b.pending = append(b.pending, e)
	b.mu.Unlock()
	return nil
}

// Activate makes m the delivery target. Held listeners are transferred to m,
// direct references first, then names. Buffered events are then delivered in
// the order they were published and the buffer is discarded. Events published
// by listeners during the replay are delivered immediately.
func (b *Bus) Activate(ctx context.Context, m Multicaster) error {
	if m == nil {
		return ErrNilMulticaster
	}

	b.mu.Lock()
	if b.ready.Load() != nil {
		b.mu.Unlock()
		return ErrBusActive
	}
	for _, l := range b.listeners {
		m.AddListener(l)
	}
	for _, name := range b.names {
		m.AddListenerName(name)
	}
	early := b.pending
	b.listeners, b.names, b.pending = nil, nil, nil
	b.ready.Store(&active{m: m})
	b.mu.Unlock()

	var errs []error
	for _, e := range early {
		if err := m.Multicast(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddListener registers l with the multicaster, or holds it until activation.
// A listener added after activation does not see earlier events.
func (b *Bus) AddListener(l Listener) error {
	if l == nil {
		return ErrInvalidListener
	}
	if a := b.ready.Load(); a != nil {
		a.m.AddListener(l)
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if a := b.ready.Load(); a != nil {
		a.m.AddListener(l)
		return nil
	}
	if !slices.ContainsFunc(b.listeners, func(x Listener) bool { return sameListener(x, l) }) {
		b.listeners = append(b.listeners, l)
	}
	return nil
}

// AddListenerName registers a listener component by name.
func (b *Bus) AddListenerName(name string) {
	if a := b.ready.Load(); a != nil {
		a.m.AddListenerName(name)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if a := b.ready.Load(); a != nil {
		a.m.AddListenerName(name)
		return
	}
	if !slices.Contains(b.names, name) {
		b.names = append(b.names, name)
	}
}

// RemoveListener unregisters l.
func (b *Bus) RemoveListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a := b.ready.Load(); a != nil {
		a.m.RemoveListener(l)
		return
	}
	b.listeners = slices.DeleteFunc(b.listeners, func(x Listener) bool { return sameListener(x, l) })
}

// RemoveListenerName unregisters a named listener.
func (b *Bus) RemoveListenerName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a := b.ready.Load(); a != nil {
		a.m.RemoveListenerName(name)
		return
	}
	b.names = slices.DeleteFunc(b.names, func(n string) bool { return n == name })
}

// PendingListeners returns the directly registered listeners held before
// activation. It is empty once the bus is ready.
func (b *Bus) PendingListeners() []Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.listeners)
}

// PendingNames returns the listener names held before activation.
func (b *Bus) PendingNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.names)
}

// Buffered returns the number of events waiting for activation.
func (b *Bus) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
