package appctx

import (
	"github.com/GoCodeAlone/appctx/factory"
)

// ContainerAware components receive the container before initialization.
type ContainerAware interface {
	SetContainer(c *Container)
}

// FactoryAware components receive the component factory before initialization.
type FactoryAware interface {
	SetFactory(f *factory.Factory)
}

// PublisherAware components receive an event publisher before initialization.
type PublisherAware interface {
	SetPublisher(p Publisher)
}

// NameAware components receive the name they are registered under.
type NameAware interface {
	SetComponentName(name string)
}

// LoggerAware components receive the container logger.
type LoggerAware interface {
	SetLogger(l Logger)
}

// awareExtension hands container references to components that ask for them.
// It is installed before any registered instance extension.
type awareExtension struct {
	container *Container
}

func (a *awareExtension) BeforeInit(instance any, name string) (any, error) {
	if x, ok := instance.(NameAware); ok {
		x.SetComponentName(name)
	}
	if x, ok := instance.(LoggerAware); ok {
		x.SetLogger(a.container.logger)
	}
	if x, ok := instance.(FactoryAware); ok {
		x.SetFactory(a.container.factory)
	}
	if x, ok := instance.(PublisherAware); ok {
		x.SetPublisher(a.container)
	}
	if x, ok := instance.(ContainerAware); ok {
		x.SetContainer(a.container)
	}
	return instance, nil
}

func (a *awareExtension) AfterInit(instance any, _ string) (any, error) {
	return instance, nil
}
