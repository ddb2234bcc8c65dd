package lifecycle

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/appctx/factory"
)

// DefaultStopTimeout bounds how long one phase may take to stop.
const DefaultStopTimeout = 30 * time.Second

type member struct {
	name      string
	phase     int
	component Lifecycle
}

// CoordinatorOption configures a DefaultCoordinator.
type CoordinatorOption func(*DefaultCoordinator)

// WithStopTimeout sets the per-phase stop timeout.
func WithStopTimeout(d time.Duration) CoordinatorOption {
	return func(c *DefaultCoordinator) {
		if d > 0 {
			c.stopTimeout = d
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l Logger) CoordinatorOption {
	return func(c *DefaultCoordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// DefaultCoordinator starts lifecycle components in ascending phase order and
// stops them in reverse. Components in the same phase start in discovery
// order and stop in reverse discovery order.
type DefaultCoordinator struct {
	mu          sync.Mutex
	source      Source
	logger      Logger
	stopTimeout time.Duration
	running     atomic.Bool
}

// NewDefaultCoordinator creates a coordinator reading components from source.
func NewDefaultCoordinator(source Source, opts ...CoordinatorOption) *DefaultCoordinator {
	c := &DefaultCoordinator{
		source:      source,
		logger:      slog.Default(),
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetFactory makes f the component source. The container calls it when the
// coordinator is itself a registered component.
func (c *DefaultCoordinator) SetFactory(f *factory.Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		c.source = f
	}
}

// SetLogger replaces the logger.
func (c *DefaultCoordinator) SetLogger(l Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l != nil {
		c.logger = l
	}
}

// StopTimeout returns the per-phase stop timeout.
func (c *DefaultCoordinator) StopTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyDefaults()
	return c.stopTimeout
}

func (c *DefaultCoordinator) OnRefresh(ctx context.Context) error {
	return c.start(ctx, true)
}

func (c *DefaultCoordinator) Start(ctx context.Context) error {
	return c.start(ctx, false)
}

func (c *DefaultCoordinator) OnClose(ctx context.Context) error {
	return c.stop(ctx)
}

func (c *DefaultCoordinator) Stop(ctx context.Context) error {
	return c.stop(ctx)
}

func (c *DefaultCoordinator) IsRunning() bool {
	return c.running.Load()
}

// applyDefaults fills in a zero value built by the factory.
func (c *DefaultCoordinator) applyDefaults() {
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.stopTimeout <= 0 {
		c.stopTimeout = DefaultStopTimeout
	}
}

func (c *DefaultCoordinator) start(ctx context.Context, autoOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyDefaults()

	members, err := c.collect()
	if err != nil {
		return err
	}

	for _, m := range members {
		if autoOnly && !autoStartup(m.component) {
			c.logger.Debug("Skipping component without auto startup", "component", m.name)
			continue
		}
		if m.component.IsRunning() {
			continue
		}
		c.logger.Debug("Starting component", "component", m.name, "phase", m.phase)
		if err := m.component.Start(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrStartFailed, m.name, err)
		}
	}
	c.running.Store(true)
	c.logger.Info("Lifecycle components started", "count", len(members))
	return nil
}

func (c *DefaultCoordinator) stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyDefaults()

	members, err := c.collect()
	if err != nil {
		return err
	}
	slices.Reverse(members)
	slices.SortStableFunc(members, func(a, b member) int {
		return cmp.Compare(b.phase, a.phase)
	})

	var errs []error
	for phase := range phases(members) {
		phaseCtx, cancel := context.WithTimeout(ctx, c.stopTimeout)
		for _, m := range phase {
			if !m.component.IsRunning() {
				continue
			}
			c.logger.Info("Stopping component", "component", m.name, "phase", m.phase)
			if err := m.component.Stop(phaseCtx); err != nil {
				c.logger.Error("Error stopping component", "component", m.name, "error", err)
				errs = append(errs, fmt.Errorf("%w: %s: %w", ErrStopFailed, m.name, err))
			}
		}
		cancel()
	}
	c.running.Store(false)
	return errors.Join(errs...)
}

// phases yields consecutive runs of members sharing a phase.
func phases(members []member) func(yield func([]member) bool) {
	return func(yield func([]member) bool) {
		for start := 0; start < len(members); {
			end := start + 1
			for end < len(members) && members[end].phase == members[start].phase {
				end++
			}
			if !yield(members[start:end]) {
				return
			}
			start = end
		}
	}
}

func (c *DefaultCoordinator) collect() ([]member, error) {
	if c.source == nil {
		return nil, ErrNoSource
	}

	var members []member
	for _, name := range c.source.NamesForType(lifecycleType, false) {
		instance, err := c.source.Get(name)
		if err != nil {
			return nil, fmt.Errorf("resolving lifecycle component %q: %w", name, err)
		}
		if instance == any(c) {
			continue
		}
		l, ok := instance.(Lifecycle)
		if !ok {
			continue
		}
		members = append(members, member{name: name, phase: PhaseOf(instance), component: l})
	}
	slices.SortStableFunc(members, func(a, b member) int {
		return cmp.Compare(a.phase, b.phase)
	})
	return members, nil
}
