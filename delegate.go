package appctx

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/GoCodeAlone/appctx/event"
	"github.com/GoCodeAlone/appctx/factory"
	"github.com/GoCodeAlone/appctx/order"
)

var (
	registryExtensionType = reflect.TypeFor[RegistryExtension]()
	factoryExtensionType  = reflect.TypeFor[FactoryExtension]()
	instanceExtensionType = reflect.TypeFor[factory.InstanceExtension]()
	listenerType          = reflect.TypeFor[event.Listener]()
)

// extensionError attributes a refresh failure to one extension.
type extensionError struct {
	name string
	err  error
}

func (e *extensionError) Error() string {
	return fmt.Sprintf("extension %q: %v", e.name, e.err)
}

func (e *extensionError) Unwrap() error { return e.err }

type named[T any] struct {
	name string
	ext  T
}

func sortNamed[T any](list []named[T]) {
	slices.SortStableFunc(list, func(a, b named[T]) int {
		return order.Compare(a.ext, b.ext)
	})
}

// rankOf classifies a component by its declared or known type. A component
// declared through an interface is created so that its concrete type decides.
func (c *Container) rankOf(name string) (order.Rank, error) {
	t, ok := c.factory.TypeOf(name)
	if !ok {
		return order.RankUnordered, nil
	}
	if t.Kind() != reflect.Interface {
		return order.ClassifyType(t), nil
	}
	instance, err := c.factory.Get(name)
	if err != nil {
		return order.RankUnordered, &extensionError{name: name, err: err}
	}
	return order.Classify(instance), nil
}

func materialize[T any](c *Container, name string) (named[T], error) {
	instance, err := c.factory.Get(name)
	if err != nil {
		return named[T]{}, &extensionError{name: name, err: err}
	}
	ext, ok := instance.(T)
	if !ok {
		return named[T]{}, &extensionError{
			name: name,
			err:  fmt.Errorf("%w: %T is not %s", ErrNotExtension, instance, reflect.TypeFor[T]()),
		}
	}
	return named[T]{name: name, ext: ext}, nil
}

// invokeFactoryExtensions runs registry extensions to a fixed point and then
// every factory extension. supplied are the extensions handed to the
// container directly; they run before any registered one.
func (c *Container) invokeFactoryExtensions(supplied []FactoryExtension) error {
	processed := make(map[string]bool)
	var executed []named[RegistryExtension]
	var plain []named[FactoryExtension]

	for i, ext := range supplied {
		name := fmt.Sprintf("supplied[%d] %T", i, ext)
		re, ok := ext.(RegistryExtension)
		if !ok {
			plain = append(plain, named[FactoryExtension]{name: name, ext: ext})
			continue
		}
		if err := c.runRegistryExtension(named[RegistryExtension]{name: name, ext: re}); err != nil {
			return err
		}
		executed = append(executed, named[RegistryExtension]{name: name, ext: re})
	}

	// Highest priority first, then ordered. An extension registered during
	// the first pass with the highest-priority marker runs in the ordered pass.
	for _, limit := range []order.Rank{order.RankHighest, order.RankOrdered} {
		var current []named[RegistryExtension]
		for _, name := range c.factory.NamesForType(registryExtensionType, true) {
			if processed[name] {
				continue
			}
			rank, err := c.rankOf(name)
			if err != nil {
				return err
			}
			if rank > limit {
				continue
			}
			ext, err := materialize[RegistryExtension](c, name)
			if err != nil {
				return err
			}
			current = append(current, ext)
			processed[name] = true
		}
		sortNamed(current)
		for _, ext := range current {
			if err := c.runRegistryExtension(ext); err != nil {
				return err
			}
		}
		executed = append(executed, current...)
	}

	for {
		var current []named[RegistryExtension]
		for _, name := range c.factory.NamesForType(registryExtensionType, true) {
			if processed[name] {
				continue
			}
			ext, err := materialize[RegistryExtension](c, name)
			if err != nil {
				return err
			}
			current = append(current, ext)
			processed[name] = true
		}
		if len(current) == 0 {
			break
		}
		for _, ext := range current {
			if err := c.runRegistryExtension(ext); err != nil {
				return err
			}
		}
		executed = append(executed, current...)
	}

	for _, ext := range executed {
		if err := c.runFactoryExtension(named[FactoryExtension]{name: ext.name, ext: ext.ext}); err != nil {
			return err
		}
	}
	for _, ext := range plain {
		if err := c.runFactoryExtension(ext); err != nil {
			return err
		}
	}

	var highest, ordered, unordered []string
	for _, name := range c.factory.NamesForType(factoryExtensionType, true) {
		if processed[name] {
			continue
		}
		rank, err := c.rankOf(name)
		if err != nil {
			return err
		}
		switch rank {
		case order.RankHighest:
			highest = append(highest, name)
		case order.RankOrdered:
			ordered = append(ordered, name)
		default:
			unordered = append(unordered, name)
		}
	}
	for _, bucket := range []struct {
		names []string
		sort  bool
	}{{highest, true}, {ordered, true}, {unordered, false}} {
		var current []named[FactoryExtension]
		for _, name := range bucket.names {
			ext, err := materialize[FactoryExtension](c, name)
			if err != nil {
				return err
			}
			current = append(current, ext)
		}
		if bucket.sort {
			sortNamed(current)
		}
		for _, ext := range current {
			if err := c.runFactoryExtension(ext); err != nil {
				return err
			}
		}
	}

	c.logger.Info("Registry extensions processed",
		"registryExtensions", len(executed), "definitions", c.registry.Count())
	return nil
}

func (c *Container) runRegistryExtension(ext named[RegistryExtension]) error {
	c.logger.Debug("Invoking registry extension", "extension", ext.name, "rank", order.Classify(ext.ext))
	if err := ext.ext.PostProcessRegistry(c.registry); err != nil {
		return &extensionError{name: ext.name, err: err}
	}
	return nil
}

func (c *Container) runFactoryExtension(ext named[FactoryExtension]) error {
	c.logger.Debug("Invoking factory extension", "extension", ext.name, "rank", order.Classify(ext.ext))
	if err := ext.ext.PostProcessFactory(c.factory); err != nil {
		return &extensionError{name: ext.name, err: err}
	}
	return nil
}

// registerInstanceExtensions installs every instance extension found in the
// registry: highest priority, then ordered, then unordered, then internal
// extensions, then the listener detector. Each bucket is materialized only
// after the previous one is installed so earlier extensions see later ones
// being created.
func (c *Container) registerInstanceExtensions() error {
	var highestNames, orderedNames, unorderedNames []string
	for _, name := range c.factory.NamesForType(instanceExtensionType, true) {
		rank, err := c.rankOf(name)
		if err != nil {
			return err
		}
		switch rank {
		case order.RankHighest:
			highestNames = append(highestNames, name)
		case order.RankOrdered:
			orderedNames = append(orderedNames, name)
		default:
			unorderedNames = append(unorderedNames, name)
		}
	}

	var internal []named[factory.InstanceExtension]
	install := func(names []string, sorted bool) error {
		var current []named[factory.InstanceExtension]
		for _, name := range names {
			ext, err := materialize[factory.InstanceExtension](c, name)
			if err != nil {
				return err
			}
			current = append(current, ext)
			if _, ok := ext.ext.(factory.InternalExtension); ok {
				internal = append(internal, ext)
			}
		}
		if sorted {
			sortNamed(current)
		}
		for _, ext := range current {
			c.logger.Debug("Installing instance extension", "extension", ext.name, "rank", order.Classify(ext.ext))
			c.factory.AddInstanceExtension(ext.ext)
		}
		return nil
	}

	if err := install(highestNames, true); err != nil {
		return err
	}
	if err := install(orderedNames, true); err != nil {
		return err
	}
	if err := install(unorderedNames, false); err != nil {
		return err
	}

	sortNamed(internal)
	for _, ext := range internal {
		c.factory.AddInstanceExtension(ext.ext)
	}
	c.factory.AddInstanceExtension(c.detector)

	c.logger.Info("Instance extensions registered", "count", len(c.factory.Extensions()))
	return nil
}
