// Package registry holds component definitions in registration order.
package registry

import (
	"fmt"
	"reflect"
	"slices"
)

// Scope controls how many instances a definition produces.
type Scope int

const (
	// ScopeSingleton definitions produce one shared instance for the container lifetime.
	ScopeSingleton Scope = iota
	// ScopePrototype definitions produce a new instance on every lookup.
	ScopePrototype
)

func (s Scope) String() string {
	if s == ScopePrototype {
		return "prototype"
	}
	return "singleton"
}

// Role distinguishes application components from container infrastructure.
type Role int

const (
	// RoleApplication is the role of ordinary user components.
	RoleApplication Role = iota
	// RoleInfrastructure marks components that exist to support the container itself.
	RoleInfrastructure
)

func (r Role) String() string {
	if r == RoleInfrastructure {
		return "infrastructure"
	}
	return "application"
}

// Resolver looks up other components while a component is being built.
// Suppliers must use the Resolver they are given rather than the factory
// directly so that circular references are detected.
type Resolver interface {
	// Get returns the component registered under name, creating it if needed.
	Get(name string) (any, error)

	// Resolvable returns the built-in reference registered for t, if any.
	Resolvable(t reflect.Type) (any, bool)
}

// Supplier creates a component instance explicitly.
type Supplier func(r Resolver) (any, error)

// Definition describes how to build one component.
//
// Exactly one of Type, Supplier or FactoryComponent drives creation. When a
// Supplier or FactoryComponent is set, Type is optional and only declares the
// type used for lookups by type before the component exists.
type Definition struct {
	// Type is the component type. Pointer-to-struct types are instantiated
	// with reflect.New; other kinds need a Supplier or factory reference.
	// Extensions are ranked from Type before they are created unless Type is
	// an interface, in which case the created instance is ranked.
	Type reflect.Type

	Scope Scope
	Role  Role

	// Supplier builds the instance explicitly.
	Supplier Supplier

	// FactoryComponent and FactoryMethod name a component and one of its
	// exported methods that returns the instance. The method takes no
	// arguments and returns either (T) or (T, error).
	FactoryComponent string
	FactoryMethod    string

	// DependsOn names components that must exist before this one is created.
	DependsOn []string

	// Lazy singletons are skipped by eager instantiation.
	Lazy bool

	Description string
}

// IsSingleton reports whether the definition produces a shared instance.
func (d *Definition) IsSingleton() bool {
	return d.Scope == ScopeSingleton
}

// IsInfrastructure reports whether the definition is container infrastructure.
func (d *Definition) IsInfrastructure() bool {
	return d.Role == RoleInfrastructure
}

// Validate checks that the definition has a creation target.
func (d *Definition) Validate() error {
	switch {
	case d.FactoryMethod != "" && d.FactoryComponent == "":
		return fmt.Errorf("%w: factory method %q without factory component", ErrInvalidDefinition, d.FactoryMethod)
	case d.FactoryComponent != "" && d.FactoryMethod == "":
		return fmt.Errorf("%w: factory component %q without factory method", ErrInvalidDefinition, d.FactoryComponent)
	case d.Supplier != nil && d.FactoryComponent != "":
		return fmt.Errorf("%w: both supplier and factory reference set", ErrInvalidDefinition)
	case d.Type == nil && d.Supplier == nil && d.FactoryComponent == "":
		return ErrNoTarget
	}
	return nil
}

// Clone returns a copy that shares no slices with d.
func (d *Definition) Clone() *Definition {
	c := *d
	c.DependsOn = slices.Clone(d.DependsOn)
	return &c
}

// Of returns a singleton definition instantiated from type t.
func Of(t reflect.Type) *Definition {
	return &Definition{Type: t}
}

// OfType returns a singleton definition instantiated from T. T is usually a
// pointer to a struct.
func OfType[T any]() *Definition {
	return &Definition{Type: reflect.TypeFor[T]()}
}

// Provide returns a singleton definition built by fn. The declared type is T.
func Provide[T any](fn func(r Resolver) (T, error)) *Definition {
	return &Definition{
		Type: reflect.TypeFor[T](),
		Supplier: func(r Resolver) (any, error) {
			return fn(r)
		},
	}
}

// Instance returns a singleton definition that always supplies v.
func Instance(v any) *Definition {
	return &Definition{
		Type: reflect.TypeOf(v),
		Supplier: func(Resolver) (any, error) {
			return v, nil
		},
	}
}

// FromFactory returns a singleton definition produced by method on the
// component named component.
func FromFactory(component, method string) *Definition {
	return &Definition{FactoryComponent: component, FactoryMethod: method}
}
