// Package appctx provides a component container with a phased refresh
// protocol.
//
// A Container holds component definitions in a registry and builds them
// through a factory. Refresh runs registry extensions until no new ones
// appear, installs instance extensions that intercept every later component
// creation, activates the event bus (replaying events published while it was
// buffering), creates every eager singleton, starts lifecycle components and
// finally publishes a RefreshedEvent.
//
// Basic usage:
//
//	c, err := appctx.New(appctx.WithLogger(slog.Default()))
//	if err != nil { ... }
//	_ = c.RegisterDefinition("clock", registry.OfType[*Clock]())
//	if err := c.Refresh(ctx); err != nil { ... }
//	defer c.Close(ctx)
//	clock, err := appctx.Get[*Clock](c, "clock")
package appctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/appctx/config"
	"github.com/GoCodeAlone/appctx/event"
	"github.com/GoCodeAlone/appctx/factory"
	"github.com/GoCodeAlone/appctx/lifecycle"
	"github.com/GoCodeAlone/appctx/registry"
)

// Built-in component names.
const (
	MulticasterName = "eventMulticaster"
	CoordinatorName = "lifecycleCoordinator"
	ConfigName      = "containerConfig"
)

// State is the refresh state of a container.
type State int32

const (
	StateNew State = iota
	StateRefreshing
	StateRefreshed
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRefreshing:
		return "refreshing"
	case StateRefreshed:
		return "refreshed"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// NamedComponent pairs a component with its name.
type NamedComponent struct {
	Name      string
	Component any
}

type pendingSingleton struct {
	name     string
	instance any
}

type pendingDefinition struct {
	name string
	def  *registry.Definition
}

// Container orchestrates the registry, factory, event bus and lifecycle
// coordinator. Refresh and Close are serialized by one bootstrap lock; the
// lookup and publish paths are safe for concurrent use once refreshed.
type Container struct {
	id     string
	name   string
	logger Logger
	config *config.Config

	recorder         StartupRecorder
	allowOverride    bool
	stopTimeout      time.Duration
	multicasterOpts  []event.MulticasterOption
	refreshHook      RefreshHook
	extensions       []FactoryExtension
	initialDefs      []pendingDefinition
	initialSingleton []pendingSingleton

	registry *registry.Registry
	factory  *factory.Factory
	bus      *event.Bus
	detector *listenerDetector

	// bootstrap serializes Refresh, Close, Start and Stop.
	bootstrap sync.Mutex
	state     atomic.Int32

	mu          sync.RWMutex
	coordinator lifecycle.Coordinator
	refreshedAt time.Time
}

// New creates a container. Options that register definitions or singletons
// are applied in the order given.
func New(opts ...Option) (*Container, error) {
	c := &Container{
		id:            uuid.NewString(),
		name:          "appctx",
		logger:        slog.Default(),
		recorder:      noopRecorder{},
		allowOverride: true,
		stopTimeout:   lifecycle.DefaultStopTimeout,
		bus:           event.NewBus(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	c.registry = registry.NewRegistry(&registry.Config{AllowOverride: c.allowOverride})
	c.factory = factory.New(c.registry)
	c.detector = &listenerDetector{container: c}

	if c.config != nil {
		if err := c.factory.RegisterSingleton(ConfigName, c.config); err != nil {
			return nil, err
		}
	}
	for _, p := range c.initialDefs {
		if err := c.registry.Register(p.name, p.def); err != nil {
			return nil, fmt.Errorf("failed to register definition: %w", err)
		}
	}
	for _, p := range c.initialSingleton {
		if err := c.factory.RegisterSingleton(p.name, p.instance); err != nil {
			return nil, fmt.Errorf("failed to register singleton: %w", err)
		}
	}
	c.initialDefs, c.initialSingleton = nil, nil
	return c, nil
}

// ID returns the unique container ID.
func (c *Container) ID() string { return c.id }

// Name returns the container display name.
func (c *Container) Name() string { return c.name }

// Logger returns the container logger.
func (c *Container) Logger() Logger { return c.logger }

// Config returns the bound configuration, or nil.
func (c *Container) Config() *config.Config { return c.config }

// Registry returns the definition registry.
func (c *Container) Registry() *registry.Registry { return c.registry }

// Factory returns the component factory.
func (c *Container) Factory() *factory.Factory { return c.factory }

// State returns the current refresh state.
func (c *Container) State() State {
	return State(c.state.Load())
}

// RefreshedAt returns when the last refresh completed.
func (c *Container) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

// RegisterDefinition adds a definition. Definitions registered after refresh
// are only created on lookup.
func (c *Container) RegisterDefinition(name string, def *registry.Definition) error {
	if err := c.registry.Register(name, def); err != nil {
		return fmt.Errorf("failed to register definition: %w", err)
	}
	return nil
}

// RegisterSingleton adds a fully built component. It does not pass through
// instance extensions.
func (c *Container) RegisterSingleton(name string, instance any) error {
	if err := c.factory.RegisterSingleton(name, instance); err != nil {
		return fmt.Errorf("failed to register singleton: %w", err)
	}
	return nil
}

// AddFactoryExtension supplies an extension directly. A RegistryExtension
// supplied here runs before every registered one. Extensions added after
// refresh has started have no effect.
func (c *Container) AddFactoryExtension(ext FactoryExtension) error {
	if ext == nil {
		return ErrNilExtension
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extensions = append(c.extensions, ext)
	return nil
}

func (c *Container) suppliedExtensions() []FactoryExtension {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.extensions)
}

// AddListener registers l. Before the event bus is ready the registration is
// held and transferred on activation; afterwards it applies to later events
// only.
func (c *Container) AddListener(l event.Listener) error {
	if l == nil {
		return ErrNilListener
	}
	return c.bus.AddListener(l)
}

// RemoveListener unregisters l.
func (c *Container) RemoveListener(l event.Listener) {
	c.bus.RemoveListener(l)
}

// PublishEvent publishes v. Values that are not an event.Event are wrapped in
// an event.PayloadEvent. Before the bus is ready the event is buffered and
// nil is returned; afterwards the joined listener errors are returned.
func (c *Container) PublishEvent(ctx context.Context, v any) error {
	if v == nil {
		return event.ErrNilEvent
	}
	return c.bus.Publish(ctx, event.Wrap(c, v))
}

// Refresh runs the bootstrap protocol. It can succeed at most once; any
// later call returns ErrNotRepeatable without side effects. On failure the
// container is left in StateFailed and the error is an *InitError.
func (c *Container) Refresh(ctx context.Context) error {
	c.bootstrap.Lock()
	defer c.bootstrap.Unlock()

	if !c.state.CompareAndSwap(int32(StateNew), int32(StateRefreshing)) {
		return fmt.Errorf("%w: container is %s", ErrNotRepeatable, c.State())
	}

	started := time.Now()
	c.logger.Info("Refreshing container", "container", c.name, "id", c.id)
	step := c.recorder.Start("refresh")
	err := c.refresh(ctx)
	step.End(err)
	if err != nil {
		c.state.Store(int32(StateFailed))
		c.logger.Error("Container refresh failed", "container", c.name, "error", err)
		return err
	}
	c.logger.Info("Container refreshed", "container", c.name,
		"components", c.registry.Count(), "duration", time.Since(started))
	return nil
}

func (c *Container) refresh(ctx context.Context) error {
	steps := []struct {
		phase string
		run   func(context.Context) error
	}{
		{PhasePrepare, c.prepareFactory},
		{PhaseRegistry, func(context.Context) error { return c.invokeFactoryExtensions(c.suppliedExtensions()) }},
		{PhaseInstanceExt, func(context.Context) error { return c.registerInstanceExtensions() }},
		{PhaseEventBus, c.initEventBus},
		{PhaseRefreshHook, c.onRefresh},
		{PhaseListeners, c.registerListeners},
		{PhaseSingletons, c.instantiateSingletons},
		{PhaseLifecycle, c.initCoordinator},
		{PhaseFinish, c.finishRefresh},
	}

	c.factory.SetStrictCreation(true)
	defer c.factory.SetStrictCreation(false)

	for _, s := range steps {
		c.logger.Debug("Refresh step", "step", s.phase)
		step := c.recorder.Start(s.phase)
		err := s.run(ctx)
		step.End(err)
		if err != nil {
			return newInitError(s.phase, err)
		}
	}
	return nil
}

func newInitError(phase string, err error) error {
	var ie *InitError
	if errors.As(err, &ie) {
		return ie
	}
	out := &InitError{Phase: phase, Cause: err}
	var ee *extensionError
	var ce *factory.CreationError
	switch {
	case errors.As(err, &ee):
		out.Component = ee.name
	case errors.As(err, &ce):
		out.Component = ce.Name
	}
	return out
}

func (c *Container) prepareFactory(context.Context) error {
	c.factory.RegisterResolvable(reflect.TypeFor[*Container](), c)
	c.factory.RegisterResolvable(reflect.TypeFor[Publisher](), c)
	c.factory.RegisterResolvable(reflect.TypeFor[*factory.Factory](), c.factory)
	c.factory.RegisterResolvable(reflect.TypeFor[*registry.Registry](), c.registry)

	c.factory.AddInstanceExtension(&awareExtension{container: c})
	c.factory.AddInstanceExtension(c.detector)
	return nil
}

type resolverSetter interface {
	SetResolver(r event.ListenerResolver)
}

func (c *Container) initEventBus(ctx context.Context) error {
	var m event.Multicaster
	if c.factory.Contains(MulticasterName) {
		instance, err := c.factory.Get(MulticasterName)
		if err != nil {
			return err
		}
		var ok bool
		if m, ok = instance.(event.Multicaster); !ok {
			return fmt.Errorf("%w: got %T", ErrInvalidMulticaster, instance)
		}
		if rs, ok := m.(resolverSetter); ok {
			rs.SetResolver(c.factory)
		}
		c.logger.Debug("Using registered event multicaster", "type", fmt.Sprintf("%T", m))
	} else {
		opts := append([]event.MulticasterOption{event.WithResolver(c.factory)}, c.multicasterOpts...)
		m = event.NewSimpleMulticaster(opts...)
		if err := c.factory.RegisterSingleton(MulticasterName, m); err != nil {
			return err
		}
	}

	// Listener definitions must be known before buffered events are replayed.
	c.addListenerNames()
	buffered := c.bus.Buffered()
	if err := c.bus.Activate(ctx, m); err != nil {
		return fmt.Errorf("delivering buffered events: %w", err)
	}
	c.logger.Debug("Event bus ready", "replayed", buffered)
	return nil
}

func (c *Container) onRefresh(ctx context.Context) error {
	if c.refreshHook == nil {
		return nil
	}
	return c.refreshHook(ctx, c)
}

// registerListeners picks up listener definitions added after the bus became
// ready, such as those registered by the refresh hook.
func (c *Container) registerListeners(context.Context) error {
	names := c.addListenerNames()
	c.logger.Debug("Registered listener components by name", "count", len(names))
	return nil
}

func (c *Container) addListenerNames() []string {
	names := c.factory.NamesForType(listenerType, true)
	for _, name := range names {
		c.bus.AddListenerName(name)
	}
	return names
}

// instantiateSingletons creates the remaining singletons. Up to here every
// component is created on the refreshing goroutine; lifecycle components
// started next may create components concurrently.
func (c *Container) instantiateSingletons(context.Context) error {
	defer c.factory.SetStrictCreation(false)
	return c.factory.PreInstantiateSingletons()
}

func (c *Container) initCoordinator(ctx context.Context) error {
	var coord lifecycle.Coordinator
	if c.factory.Contains(CoordinatorName) {
		instance, err := c.factory.Get(CoordinatorName)
		if err != nil {
			return err
		}
		var ok bool
		if coord, ok = instance.(lifecycle.Coordinator); !ok {
			return fmt.Errorf("%w: got %T", ErrInvalidCoordinator, instance)
		}
	} else {
		coord = lifecycle.NewDefaultCoordinator(c.factory,
			lifecycle.WithStopTimeout(c.stopTimeout),
			lifecycle.WithLogger(c.logger))
		if err := c.factory.RegisterSingleton(CoordinatorName, coord); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.coordinator = coord
	c.mu.Unlock()

	return coord.OnRefresh(ctx)
}

func (c *Container) finishRefresh(ctx context.Context) error {
	c.mu.Lock()
	c.refreshedAt = time.Now()
	c.mu.Unlock()
	c.state.Store(int32(StateRefreshed))

	if err := c.bus.Publish(ctx, &RefreshedEvent{newContainerEvent(c)}); err != nil {
		c.logger.Error("Listener failed handling refreshed event", "container", c.name, "error", err)
	}
	return nil
}

func (c *Container) lifecycleCoordinator() lifecycle.Coordinator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coordinator
}

// Start starts every lifecycle component, including those that opted out of
// auto startup, and publishes a StartedEvent.
func (c *Container) Start(ctx context.Context) error {
	c.bootstrap.Lock()
	defer c.bootstrap.Unlock()
	if err := c.checkRefreshed(); err != nil {
		return err
	}
	if err := c.lifecycleCoordinator().Start(ctx); err != nil {
		return err
	}
	return c.bus.Publish(ctx, &StartedEvent{newContainerEvent(c)})
}

// Stop stops every running lifecycle component and publishes a StoppedEvent.
func (c *Container) Stop(ctx context.Context) error {
	c.bootstrap.Lock()
	defer c.bootstrap.Unlock()
	if err := c.checkRefreshed(); err != nil {
		return err
	}
	if err := c.lifecycleCoordinator().Stop(ctx); err != nil {
		return err
	}
	return c.bus.Publish(ctx, &StoppedEvent{newContainerEvent(c)})
}

// IsRunning reports whether the container is refreshed and its lifecycle
// components are running.
func (c *Container) IsRunning() bool {
	if c.State() != StateRefreshed {
		return false
	}
	coord := c.lifecycleCoordinator()
	return coord != nil && coord.IsRunning()
}

// Close publishes a ClosedEvent, stops lifecycle components and destroys
// singletons in reverse creation order. Closing a failed container destroys
// whatever singletons exist. Close is idempotent.
func (c *Container) Close(ctx context.Context) error {
	c.bootstrap.Lock()
	defer c.bootstrap.Unlock()

	previous := c.State()
	if previous == StateClosed {
		return nil
	}
	c.logger.Info("Closing container", "container", c.name, "state", previous)

	var errs []error
	if previous == StateRefreshed {
		if err := c.bus.Publish(ctx, &ClosedEvent{newContainerEvent(c)}); err != nil {
			c.logger.Error("Listener failed handling closed event", "container", c.name, "error", err)
		}
	}
	if coord := c.lifecycleCoordinator(); coord != nil {
		if err := coord.OnClose(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.factory.DestroySingletons(); err != nil {
		errs = append(errs, err)
	}
	if m := c.bus.Multicaster(); m != nil {
		m.RemoveAllListeners()
	}
	c.state.Store(int32(StateClosed))
	return errors.Join(errs...)
}

func (c *Container) checkActive() error {
	switch c.State() {
	case StateRefreshing, StateRefreshed:
		return nil
	case StateNew:
		return ErrNotRefreshed
	case StateFailed:
		return ErrContainerFailed
	default:
		return ErrContainerClosed
	}
}

func (c *Container) checkRefreshed() error {
	if s := c.State(); s != StateRefreshed {
		if err := c.checkActive(); err != nil {
			return err
		}
		return ErrNotRefreshed
	}
	return nil
}

// GetComponent returns the component registered under name.
func (c *Container) GetComponent(name string) (any, error) {
	if err := c.checkActive(); err != nil {
		return nil, err
	}
	return c.factory.Get(name)
}

// GetComponentAs returns the component registered under name, checking that
// it is assignable to t.
func (c *Container) GetComponentAs(name string, t reflect.Type) (any, error) {
	instance, err := c.GetComponent(name)
	if err != nil {
		return nil, err
	}
	if !reflect.TypeOf(instance).AssignableTo(t) {
		return nil, fmt.Errorf("%w: %s is %T, want %s", ErrComponentType, name, instance, t)
	}
	return instance, nil
}

// Get returns the component registered under name as a T.
func Get[T any](c *Container, name string) (T, error) {
	var zero T
	instance, err := c.GetComponent(name)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, want %s", ErrComponentType, name, instance, reflect.TypeFor[T]())
	}
	return typed, nil
}

// ComponentsOfType returns every component assignable to t, singletons and
// non-singletons, in registration order.
func (c *Container) ComponentsOfType(t reflect.Type) ([]NamedComponent, error) {
	if err := c.checkActive(); err != nil {
		return nil, err
	}
	var out []NamedComponent
	for _, name := range c.factory.NamesForType(t, true) {
		instance, err := c.factory.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, NamedComponent{Name: name, Component: instance})
	}
	return out, nil
}

// ComponentsOf returns every component that is a T, in registration order.
func ComponentsOf[T any](c *Container) ([]T, error) {
	found, err := c.ComponentsOfType(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(found))
	for _, n := range found {
		if typed, ok := n.Component.(T); ok {
			out = append(out, typed)
		}
	}
	return out, nil
}

// ComponentNames returns definition names in registration order followed by
// singletons registered without a definition.
func (c *Container) ComponentNames() []string {
	names := c.registry.Names()
	for _, name := range c.factory.SingletonNames() {
		if !c.registry.Contains(name) {
			names = append(names, name)
		}
	}
	return names
}

// Definition returns a copy of the definition registered under name.
func (c *Container) Definition(name string) (*registry.Definition, error) {
	def, err := c.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return def.Clone(), nil
}
