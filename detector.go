package appctx

import (
	"github.com/GoCodeAlone/appctx/event"
)

// listenerDetector registers singleton components that implement
// event.Listener with the event bus once they are fully initialized. The
// container keeps it at the end of the instance extension list.
type listenerDetector struct {
	container *Container
}

func (d *listenerDetector) BeforeInit(instance any, _ string) (any, error) {
	return instance, nil
}

func (d *listenerDetector) AfterInit(instance any, name string) (any, error) {
	l, ok := instance.(event.Listener)
	if !ok {
		return instance, nil
	}
	if def, err := d.container.registry.Get(name); err == nil && !def.IsSingleton() {
		d.container.logger.Debug("Skipping non-singleton listener; it is resolved by name on each event", "component", name)
		return instance, nil
	}
	if err := d.container.bus.AddListener(l); err != nil {
		return nil, err
	}
	d.container.logger.Debug("Registered listener component", "component", name)
	return instance, nil
}
