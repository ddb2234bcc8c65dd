package event

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Multicaster delivers events to the listeners registered with it.
type Multicaster interface {
	AddListener(l Listener)
	// AddListenerName registers a listener by component name. The component is
	// looked up when events are delivered.
	AddListenerName(name string)
	RemoveListener(l Listener)
	RemoveListenerName(name string)
	RemoveAllListeners()
	Multicast(ctx context.Context, e Event) error
}

// ListenerResolver looks up listener components by name.
type ListenerResolver interface {
	Get(name string) (any, error)
}

// creationChecker is implemented by resolvers that know when a listener is
// still being created. Such listeners are skipped rather than looked up.
type creationChecker interface {
	InCreation(name string) bool
}

// ErrorHandler receives listener failures. When set on a multicaster the
// failures are not returned to the publisher. l is nil when a named listener
// could not be resolved.
type ErrorHandler func(ctx context.Context, e Event, l Listener, err error)

// MulticasterOption configures a SimpleMulticaster.
type MulticasterOption func(*SimpleMulticaster)

// WithErrorHandler routes listener failures to h.
func WithErrorHandler(h ErrorHandler) MulticasterOption {
	return func(m *SimpleMulticaster) {
		m.errorHandler = h
	}
}

// WithResolver sets the resolver used for listeners registered by name.
func WithResolver(r ListenerResolver) MulticasterOption {
	return func(m *SimpleMulticaster) {
		m.resolver = r
	}
}

// SimpleMulticaster delivers each event synchronously on the publishing
// goroutine, in registration order: direct listeners first, then listeners
// registered by name. A failing or panicking listener does not prevent
// delivery to the rest. It is safe for concurrent use.
type SimpleMulticaster struct {
	mu           sync.RWMutex
	listeners    []Listener
	names        []string
	resolver     ListenerResolver
	errorHandler ErrorHandler
}

// NewSimpleMulticaster creates a multicaster.
func NewSimpleMulticaster(opts ...MulticasterOption) *SimpleMulticaster {
	m := &SimpleMulticaster{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetResolver sets the resolver for named listeners. It is used when a
// multicaster is supplied as a component and the container wires it.
func (m *SimpleMulticaster) SetResolver(r ListenerResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolver = r
}

// SetErrorHandler replaces the error handler.
func (m *SimpleMulticaster) SetErrorHandler(h ErrorHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorHandler = h
}

func (m *SimpleMulticaster) AddListener(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = slices.DeleteFunc(m.listeners, func(x Listener) bool { return sameListener(x, l) })
	m.listeners = append(m.listeners, l)
}

func (m *SimpleMulticaster) AddListenerName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.names, name) {
		m.names = append(m.names, name)
	}
}

func (m *SimpleMulticaster) RemoveListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = slices.DeleteFunc(m.listeners, func(x Listener) bool { return sameListener(x, l) })
}

func (m *SimpleMulticaster) RemoveListenerName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = slices.DeleteFunc(m.names, func(n string) bool { return n == name })
}

func (m *SimpleMulticaster) RemoveAllListeners() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = nil
	m.names = nil
}

// Listeners returns the listeners that would receive e, in delivery order.
// Named listeners that cannot be resolved are reported in the error.
func (m *SimpleMulticaster) Listeners(e Event) ([]Listener, error) {
	m.mu.RLock()
	direct := slices.Clone(m.listeners)
	names := slices.Clone(m.names)
	resolver := m.resolver
	m.mu.RUnlock()

	var matched []Listener
	for _, l := range direct {
		if Supports(l, e) {
			matched = append(matched, l)
		}
	}
	if len(names) == 0 {
		return matched, nil
	}
	if resolver == nil {
		return matched, fmt.Errorf("%w: no resolver for named listeners %v", ErrNotListener, names)
	}

	checker, _ := resolver.(creationChecker)
	var errs []error
	for _, name := range names {
		if checker != nil && checker.InCreation(name) {
			continue
		}
		component, err := resolver.Get(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolving listener %q: %w", name, err))
			continue
		}
		l, ok := component.(Listener)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s is %T", ErrNotListener, name, component))
			continue
		}
		if slices.ContainsFunc(direct, func(x Listener) bool { return sameListener(x, l) }) {
			continue
		}
		if Supports(l, e) {
			matched = append(matched, l)
		}
	}
	return matched, errors.Join(errs...)
}

// Multicast delivers e to every matching listener and returns the joined
// listener errors, or nil when an ErrorHandler is installed.
func (m *SimpleMulticaster) Multicast(ctx context.Context, e Event) error {
	if e == nil {
		return ErrNilEvent
	}
	listeners, resolveErr := m.Listeners(e)

	m.mu.RLock()
	handler := m.errorHandler
	m.mu.RUnlock()

	var errs []error
	if resolveErr != nil {
		if handler != nil {
			handler(ctx, e, nil, resolveErr)
		} else {
			errs = append(errs, resolveErr)
		}
	}
	for _, l := range listeners {
		if err := invoke(ctx, l, e); err != nil {
			if handler != nil {
				handler(ctx, e, l, err)
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func invoke(ctx context.Context, l Listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %T: %v", ErrListenerPanic, l, r)
		}
	}()
	return l.OnEvent(ctx, e)
}

// sameListener compares listeners by identity where the dynamic type allows it.
func sameListener(a, b Listener) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
