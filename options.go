package appctx

import (
	"fmt"
	"time"

	"github.com/GoCodeAlone/appctx/config"
	"github.com/GoCodeAlone/appctx/event"
	"github.com/GoCodeAlone/appctx/factory"
	"github.com/GoCodeAlone/appctx/registry"
)

// Option configures a Container during New.
type Option func(*Container) error

// WithLogger sets the container logger. A nil logger keeps the slog default.
func WithLogger(logger Logger) Option {
	return func(c *Container) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithName sets the container display name.
func WithName(name string) Option {
	return func(c *Container) error {
		if name == "" {
			return fmt.Errorf("%w: container name", registry.ErrEmptyName)
		}
		c.name = name
		return nil
	}
}

// WithConfig binds cfg to the container. It is registered as the
// containerConfig singleton and supplies the name, override policy and stop
// timeout.
func WithConfig(cfg *config.Config) Option {
	return func(c *Container) error {
		if cfg == nil {
			return config.ErrNilConfig
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
		c.config = cfg
		c.name = cfg.Name
		c.allowOverride = cfg.AllowDefinitionOverriding
		c.stopTimeout = cfg.StopTimeout
		return nil
	}
}

// WithAllowOverriding controls whether a definition may replace an existing
// one with the same name.
func WithAllowOverriding(allow bool) Option {
	return func(c *Container) error {
		c.allowOverride = allow
		return nil
	}
}

// WithStopTimeout bounds how long each lifecycle phase may take to stop.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Container) error {
		if d <= 0 {
			return fmt.Errorf("%w: got %s", config.ErrInvalidTimeout, d)
		}
		c.stopTimeout = d
		return nil
	}
}

// WithStartupRecorder observes refresh steps.
func WithStartupRecorder(r StartupRecorder) Option {
	return func(c *Container) error {
		if r != nil {
			c.recorder = r
		}
		return nil
	}
}

// WithExtensions supplies factory and registry extensions directly.
func WithExtensions(exts ...FactoryExtension) Option {
	return func(c *Container) error {
		for _, ext := range exts {
			if ext == nil {
				return ErrNilExtension
			}
		}
		c.extensions = append(c.extensions, exts...)
		return nil
	}
}

// WithListeners registers listeners that receive every event, including
// those published before refresh.
func WithListeners(listeners ...event.Listener) Option {
	return func(c *Container) error {
		for _, l := range listeners {
			if l == nil {
				return ErrNilListener
			}
			if err := c.bus.AddListener(l); err != nil {
				return fmt.Errorf("failed to add listener: %w", err)
			}
		}
		return nil
	}
}

// WithDefinition registers def under name.
func WithDefinition(name string, def *registry.Definition) Option {
	return func(c *Container) error {
		if def == nil {
			return registry.ErrNilDefinition
		}
		c.initialDefs = append(c.initialDefs, pendingDefinition{name: name, def: def})
		return nil
	}
}

// WithSingleton registers a fully built component under name.
func WithSingleton(name string, instance any) Option {
	return func(c *Container) error {
		if instance == nil {
			return fmt.Errorf("%w: singleton %q", factory.ErrNilInstance, name)
		}
		c.initialSingleton = append(c.initialSingleton, pendingSingleton{name: name, instance: instance})
		return nil
	}
}

// WithRefreshHook runs hook after the event bus is ready and before eager
// singletons are created.
func WithRefreshHook(hook RefreshHook) Option {
	return func(c *Container) error {
		c.refreshHook = hook
		return nil
	}
}

// WithMulticasterOptions configures the default multicaster. They are
// ignored when an eventMulticaster component is registered.
func WithMulticasterOptions(opts ...event.MulticasterOption) Option {
	return func(c *Container) error {
		c.multicasterOpts = append(c.multicasterOpts, opts...)
		return nil
	}
}
