package appctx

import (
	"context"

	"github.com/GoCodeAlone/appctx/factory"
	"github.com/GoCodeAlone/appctx/registry"
)

// FactoryExtension runs once per refresh after every registry extension,
// before any ordinary component is created. It may inspect or adjust the
// factory, for example by registering singletons or resolvable references.
type FactoryExtension interface {
	PostProcessFactory(f *factory.Factory) error
}

// RegistryExtension may add, remove or modify definitions before the factory
// creates anything. Definitions for further registry extensions registered
// here are discovered and executed within the same refresh.
type RegistryExtension interface {
	FactoryExtension
	PostProcessRegistry(r *registry.Registry) error
}

// RegistryExtensionFuncs adapts functions to RegistryExtension. Nil fields
// are no-ops.
type RegistryExtensionFuncs struct {
	Registry func(r *registry.Registry) error
	Factory  func(f *factory.Factory) error
}

func (e *RegistryExtensionFuncs) PostProcessRegistry(r *registry.Registry) error {
	if e.Registry == nil {
		return nil
	}
	return e.Registry(r)
}

func (e *RegistryExtensionFuncs) PostProcessFactory(f *factory.Factory) error {
	if e.Factory == nil {
		return nil
	}
	return e.Factory(f)
}

// FactoryExtensionFunc adapts a function to FactoryExtension.
type FactoryExtensionFunc func(f *factory.Factory) error

func (fn FactoryExtensionFunc) PostProcessFactory(f *factory.Factory) error {
	return fn(f)
}

// RefreshHook runs after the event bus is ready and before listeners declared
// in the registry are registered.
type RefreshHook func(ctx context.Context, c *Container) error

// Publisher publishes events through the container.
type Publisher interface {
	PublishEvent(ctx context.Context, v any) error
}
