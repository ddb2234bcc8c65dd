// Package factory creates components from registry definitions and owns the
// singleton pool.
package factory

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/GoCodeAlone/appctx/registry"
)

// Static errors for factory package
var (
	ErrComponentNotFound = errors.New("component not found")
	ErrCircularReference = errors.New("circular component reference")
	ErrCreationFailed    = errors.New("component creation failed")
	ErrNotInstantiable   = errors.New("type cannot be instantiated without a supplier")
	ErrNilInstance       = errors.New("component instance is nil")
	ErrSingletonExists   = errors.New("singleton already registered")
	ErrFactoryMethod     = errors.New("invalid factory method")
	ErrTypeMismatch      = errors.New("component is not of the requested type")
)

// CreationError reports a failure while building the named component.
type CreationError struct {
	Name string
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("creating component %q: %v", e.Name, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// Is matches ErrCreationFailed.
func (e *CreationError) Is(target error) bool { return target == ErrCreationFailed }

var errorType = reflect.TypeFor[error]()

// Factory builds components described by a registry. Singletons are created
// at most once; concurrent lookups of the same singleton wait for the first
// creation to finish.
type Factory struct {
	registry *registry.Registry

	mu         sync.RWMutex
	singletons map[string]any
	manual     []string
	created    []string
	locks      map[string]*sync.Mutex
	creating   map[string]bool
	strict     bool
	extensions []InstanceExtension
	resolvable map[reflect.Type]any
}

// New creates a factory over reg.
func New(reg *registry.Registry) *Factory {
	return &Factory{
		registry:   reg,
		singletons: make(map[string]any),
		locks:      make(map[string]*sync.Mutex),
		creating:   make(map[string]bool),
		resolvable: make(map[reflect.Type]any),
	}
}

// Registry returns the registry the factory builds from.
func (f *Factory) Registry() *registry.Registry {
	return f.registry
}

// Get returns the component registered under name, creating it if needed.
func (f *Factory) Get(name string) (any, error) {
	return f.get(name, nil)
}

// GetAs returns the component registered under name as a T.
func GetAs[T any](f *Factory, name string) (T, error) {
	var zero T
	instance, err := f.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, want %s", ErrTypeMismatch, name, instance, reflect.TypeFor[T]())
	}
	return typed, nil
}

func (f *Factory) get(name string, c *chain) (any, error) {
	if instance, ok := f.singleton(name); ok {
		return instance, nil
	}

	def, err := f.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, name)
	}
	if c.contains(name) {
		return nil, fmt.Errorf("%w: %s", ErrCircularReference, strings.Join(append(c.path(), name), " -> "))
	}

	if !def.IsSingleton() {
		return f.create(name, def, c.push(name))
	}
	if f.reentered(name) {
		return nil, fmt.Errorf("%w: %s is still being created (requested via %s)",
			ErrCircularReference, name, strings.Join(append(c.path(), name), " -> "))
	}

	lock := f.creationLock(name)
	lock.Lock()
	defer lock.Unlock()

	if instance, ok := f.singleton(name); ok {
		return instance, nil
	}
	f.setCreating(name, true)
	defer f.setCreating(name, false)
	instance, err := f.create(name, def, c.push(name))
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.singletons[name] = instance
	f.created = append(f.created, name)
	f.mu.Unlock()
	return instance, nil
}

func (f *Factory) setCreating(name string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if on {
		f.creating[name] = true
		return
	}
	delete(f.creating, name)
}

// SetStrictCreation makes a lookup of a singleton that is still being created
// fail with ErrCircularReference instead of waiting for the creation to
// finish. Enable it only while a single goroutine creates components: a
// lookup of an in-flight singleton can then only come from inside its own
// creation, where waiting would never end.
func (f *Factory) SetStrictCreation(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strict = on
}

func (f *Factory) reentered(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.strict && f.creating[name]
}

// InCreation reports whether the named singleton is being created.
func (f *Factory) InCreation(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.creating[name]
}

func (f *Factory) singleton(name string) (any, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	instance, ok := f.singletons[name]
	return instance, ok
}

func (f *Factory) creationLock(name string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[name] = lock
	}
	return lock
}

func (f *Factory) create(name string, def *registry.Definition, c *chain) (any, error) {
	r := &boundResolver{factory: f, chain: c}

	for _, dep := range def.DependsOn {
		if _, err := r.Get(dep); err != nil {
			return nil, &CreationError{Name: name, Err: fmt.Errorf("resolving dependency %q: %w", dep, err)}
		}
	}

	instance, err := instantiate(def, r)
	if err != nil {
		return nil, &CreationError{Name: name, Err: err}
	}
	if isNil(instance) {
		return nil, &CreationError{Name: name, Err: ErrNilInstance}
	}

	instance, err = f.initialize(instance, name)
	if err != nil {
		return nil, &CreationError{Name: name, Err: err}
	}
	return instance, nil
}

func instantiate(def *registry.Definition, r registry.Resolver) (any, error) {
	switch {
	case def.Supplier != nil:
		return def.Supplier(r)
	case def.FactoryComponent != "":
		return invokeFactoryMethod(def, r)
	default:
		return newInstance(def.Type)
	}
}

func newInstance(t reflect.Type) (any, error) {
	switch {
	case t == nil:
		return nil, registry.ErrNoTarget
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		return reflect.New(t.Elem()).Interface(), nil
	case t.Kind() == reflect.Struct:
		return reflect.New(t).Elem().Interface(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotInstantiable, t)
}

func invokeFactoryMethod(def *registry.Definition, r registry.Resolver) (any, error) {
	owner, err := r.Get(def.FactoryComponent)
	if err != nil {
		return nil, err
	}
	method := reflect.ValueOf(owner).MethodByName(def.FactoryMethod)
	if !method.IsValid() {
		return nil, fmt.Errorf("%w: %T has no method %s", ErrFactoryMethod, owner, def.FactoryMethod)
	}
	mt := method.Type()
	if mt.NumIn() != 0 || mt.NumOut() < 1 || mt.NumOut() > 2 || (mt.NumOut() == 2 && !mt.Out(1).Implements(errorType)) {
		return nil, fmt.Errorf("%w: %T.%s must have signature func() T or func() (T, error)", ErrFactoryMethod, owner, def.FactoryMethod)
	}

	out := method.Call(nil)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

func (f *Factory) initialize(instance any, name string) (any, error) {
	exts := f.Extensions()

	for _, ext := range exts {
		next, err := ext.BeforeInit(instance, name)
		if err != nil {
			return nil, fmt.Errorf("extension %T before init: %w", ext, err)
		}
		if next != nil {
			instance = next
		}
	}

	if init, ok := instance.(Initializer); ok {
		if err := init.Initialize(); err != nil {
			return nil, fmt.Errorf("initialize: %w", err)
		}
	}

	for _, ext := range exts {
		next, err := ext.AfterInit(instance, name)
		if err != nil {
			return nil, fmt.Errorf("extension %T after init: %w", ext, err)
		}
		if next != nil {
			instance = next
		}
	}
	return instance, nil
}

// TypeOf returns the type of the named component without creating it when
// the type can be known from the definition. Definitions built only by a
// Supplier without a declared Type are reported as unknown until created.
func (f *Factory) TypeOf(name string) (reflect.Type, bool) {
	return f.typeOf(name, nil)
}

func (f *Factory) typeOf(name string, seen []string) (reflect.Type, bool) {
	if instance, ok := f.singleton(name); ok {
		return reflect.TypeOf(instance), true
	}
	def, err := f.registry.Get(name)
	if err != nil {
		return nil, false
	}
	if def.Type != nil {
		return def.Type, true
	}
	if def.FactoryComponent == "" || slices.Contains(seen, name) {
		return nil, false
	}

	ownerType, ok := f.typeOf(def.FactoryComponent, append(seen, name))
	if !ok {
		return nil, false
	}
	method, ok := ownerType.MethodByName(def.FactoryMethod)
	if !ok || method.Type.NumOut() < 1 {
		return nil, false
	}
	return method.Type.Out(0), true
}

// IsTypeMatch reports whether the named component is assignable to t.
func (f *Factory) IsTypeMatch(name string, t reflect.Type) bool {
	typ, ok := f.TypeOf(name)
	return ok && typ.AssignableTo(t)
}

// NamesForType returns the names of components assignable to t: registry
// definitions in registration order followed by manually registered
// singletons. Non-singleton definitions are only included when asked for.
func (f *Factory) NamesForType(t reflect.Type, includeNonSingletons bool) []string {
	var names []string
	for _, name := range f.registry.Names() {
		def, err := f.registry.Get(name)
		if err != nil {
			continue
		}
		if !includeNonSingletons && !def.IsSingleton() {
			continue
		}
		if f.IsTypeMatch(name, t) {
			names = append(names, name)
		}
	}

	f.mu.RLock()
	manual := slices.Clone(f.manual)
	f.mu.RUnlock()
	for _, name := range manual {
		if f.registry.Contains(name) {
			continue
		}
		if f.IsTypeMatch(name, t) {
			names = append(names, name)
		}
	}
	return names
}

// RegisterSingleton adds a fully built instance under name. It bypasses
// instance extensions.
func (f *Factory) RegisterSingleton(name string, instance any) error {
	if name == "" {
		return registry.ErrEmptyName
	}
	if isNil(instance) {
		return fmt.Errorf("%w: %s", ErrNilInstance, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.singletons[name]; exists {
		return fmt.Errorf("%w: %s", ErrSingletonExists, name)
	}
	f.singletons[name] = instance
	f.manual = append(f.manual, name)
	f.created = append(f.created, name)
	return nil
}

// ContainsSingleton reports whether a singleton instance exists under name.
func (f *Factory) ContainsSingleton(name string) bool {
	_, ok := f.singleton(name)
	return ok
}

// Contains reports whether name is a definition or a registered singleton.
func (f *Factory) Contains(name string) bool {
	return f.ContainsSingleton(name) || f.registry.Contains(name)
}

// SingletonNames returns existing singleton names in creation order.
func (f *Factory) SingletonNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.created)
}

// AddInstanceExtension appends ext to the extension list. An extension that
// is already installed is moved to the end.
func (f *Factory) AddInstanceExtension(ext InstanceExtension) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extensions = slices.DeleteFunc(f.extensions, func(e InstanceExtension) bool {
		return sameInstance(e, ext)
	})
	f.extensions = append(f.extensions, ext)
}

// Extensions returns the installed instance extensions in invocation order.
func (f *Factory) Extensions() []InstanceExtension {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.extensions)
}

// RegisterResolvable makes v available to suppliers under type t.
func (f *Factory) RegisterResolvable(t reflect.Type, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolvable[t] = v
}

// Resolvable returns the built-in reference registered for t.
func (f *Factory) Resolvable(t reflect.Type) (any, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.resolvable[t]
	return v, ok
}

// PreInstantiateSingletons creates every non-lazy singleton definition in
// registration order.
func (f *Factory) PreInstantiateSingletons() error {
	for _, name := range f.registry.Names() {
		def, err := f.registry.Get(name)
		if err != nil {
			continue
		}
		if !def.IsSingleton() || def.Lazy {
			continue
		}
		if _, err := f.Get(name); err != nil {
			return err
		}
	}
	return nil
}

// DestroySingletons destroys singletons in reverse creation order and empties
// the pool. Every Disposable is called even when an earlier one fails.
func (f *Factory) DestroySingletons() error {
	f.mu.Lock()
	names := f.created
	instances := f.singletons
	f.created = nil
	f.manual = nil
	f.singletons = make(map[string]any)
	f.mu.Unlock()

	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		if d, ok := instances[name].(Disposable); ok {
			if err := d.Destroy(); err != nil {
				errs = append(errs, fmt.Errorf("destroying %q: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

type chain struct {
	name   string
	parent *chain
}

func (c *chain) push(name string) *chain {
	return &chain{name: name, parent: c}
}

func (c *chain) contains(name string) bool {
	for p := c; p != nil; p = p.parent {
		if p.name == name {
			return true
		}
	}
	return false
}

func (c *chain) path() []string {
	var path []string
	for p := c; p != nil; p = p.parent {
		path = append(path, p.name)
	}
	slices.Reverse(path)
	return path
}

type boundResolver struct {
	factory *Factory
	chain   *chain
}

func (r *boundResolver) Get(name string) (any, error) {
	return r.factory.get(name, r.chain)
}

func (r *boundResolver) Resolvable(t reflect.Type) (any, bool) {
	return r.factory.Resolvable(t)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
