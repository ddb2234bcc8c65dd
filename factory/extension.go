package factory

// InstanceExtension intercepts every component the factory creates. Either
// hook may return a replacement instance; returning nil keeps the current one.
type InstanceExtension interface {
	BeforeInit(instance any, name string) (any, error)
	AfterInit(instance any, name string) (any, error)
}

// InternalExtension marks an instance extension that the container installs
// after every other extension regardless of declared rank.
type InternalExtension interface {
	InstanceExtension
	InternalExtension()
}

// Initializer is implemented by components that need a setup step after
// BeforeInit hooks have run.
type Initializer interface {
	Initialize() error
}

// Disposable is implemented by singletons that release resources when the
// factory is destroyed.
type Disposable interface {
	Destroy() error
}

// ExtensionFuncs adapts plain functions to InstanceExtension. Nil fields pass
// the instance through.
type ExtensionFuncs struct {
	Before func(instance any, name string) (any, error)
	After  func(instance any, name string) (any, error)
}

func (e *ExtensionFuncs) BeforeInit(instance any, name string) (any, error) {
	if e.Before == nil {
		return instance, nil
	}
	return e.Before(instance, name)
}

func (e *ExtensionFuncs) AfterInit(instance any, name string) (any, error) {
	if e.After == nil {
		return instance, nil
	}
	return e.After(instance, name)
}
