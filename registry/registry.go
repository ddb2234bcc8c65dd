package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Static errors for registry package
var (
	ErrDefinitionNotFound = errors.New("definition not found")
	ErrDefinitionOverride = errors.New("definition already registered and overriding is disabled")
	ErrEmptyName          = errors.New("definition name cannot be empty")
	ErrNilDefinition      = errors.New("definition cannot be nil")
	ErrNoTarget           = errors.New("definition has no type, supplier or factory reference")
	ErrInvalidDefinition  = errors.New("invalid definition")
)

// Config controls registry behaviour.
type Config struct {
	// AllowOverride lets a registration replace an existing definition of the same name.
	AllowOverride bool
}

// Registry is an ordered name to definition store. It is safe for concurrent
// use, although during refresh it is only mutated by the refreshing goroutine.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]*Definition
	names  []string
	config Config
}

// NewRegistry creates a registry. A nil config allows overriding.
func NewRegistry(config *Config) *Registry {
	if config == nil {
		config = &Config{AllowOverride: true}
	}
	return &Registry{
		defs:   make(map[string]*Definition),
		config: *config,
	}
}

// Register stores def under name. Re-registering a name replaces the prior
// definition in place unless overriding is disabled.
func (r *Registry) Register(name string, def *Definition) error {
	if name == "" {
		return ErrEmptyName
	}
	if def == nil {
		return fmt.Errorf("%w: %s", ErrNilDefinition, name)
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("definition %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[name]; exists {
		if !r.config.AllowOverride {
			return fmt.Errorf("%w: %s", ErrDefinitionOverride, name)
		}
		r.defs[name] = def
		return nil
	}
	r.defs[name] = def
	r.names = append(r.names, name)
	return nil
}

// Remove deletes the definition registered under name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrDefinitionNotFound, name)
	}
	delete(r.defs, name)
	r.names = slices.DeleteFunc(r.names, func(n string) bool { return n == name })
	return nil
}

// Get returns the definition registered under name. The returned definition
// is the stored one; registry extensions may modify it in place.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.defs[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, name)
	}
	return def, nil
}

// Contains reports whether a definition is registered under name.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.defs[name]
	return exists
}

// Names returns all definition names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.names)
}

// Count returns the number of definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// AllowsOverride reports whether re-registration replaces definitions.
func (r *Registry) AllowsOverride() bool {
	return r.config.AllowOverride
}
