package appctx

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/GoCodeAlone/appctx/event"
	"github.com/GoCodeAlone/appctx/factory"
	"github.com/GoCodeAlone/appctx/registry"
)

// journal is a concurrency-safe ordered log shared by test components.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

func (j *journal) count(entry string) int {
	n := 0
	for _, e := range j.list() {
		if e == entry {
			n++
		}
	}
	return n
}

func (j *journal) filter(keep func(string) bool) []string {
	var out []string
	for _, e := range j.list() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

type addition struct {
	name string
	def  *registry.Definition
}

// plainRegistryExt is an unordered registry extension that logs its
// execution and registers further definitions.
type plainRegistryExt struct {
	id   string
	log  *journal
	adds []addition
	fail error
}

func (e *plainRegistryExt) PostProcessRegistry(r *registry.Registry) error {
	e.log.add(e.id)
	if e.fail != nil {
		return e.fail
	}
	for _, a := range e.adds {
		if err := r.Register(a.name, a.def); err != nil {
			return err
		}
	}
	return nil
}

func (e *plainRegistryExt) PostProcessFactory(*factory.Factory) error {
	e.log.add("factory:" + e.id)
	return nil
}

type orderedRegistryExt struct {
	plainRegistryExt
	order int
}

func (e *orderedRegistryExt) Order() int { return e.order }

type highestRegistryExt struct {
	plainRegistryExt
}

func (*highestRegistryExt) HighestPriority() {}

// plainFactoryExt is a factory-only extension.
type plainFactoryExt struct {
	id  string
	log *journal
}

func (e *plainFactoryExt) PostProcessFactory(*factory.Factory) error {
	e.log.add("factory:" + e.id)
	return nil
}

type orderedFactoryExt struct {
	plainFactoryExt
	order int
}

func (e *orderedFactoryExt) Order() int { return e.order }

// tracingExt records every AfterInit of the widget component.
type tracingExt struct {
	id  string
	log *journal
}

func (e *tracingExt) BeforeInit(instance any, _ string) (any, error) { return instance, nil }

func (e *tracingExt) AfterInit(instance any, name string) (any, error) {
	if name == "widget" {
		e.log.add(e.id)
	}
	return instance, nil
}

type orderedTracingExt struct {
	tracingExt
	order int
}

func (e *orderedTracingExt) Order() int { return e.order }

type highestTracingExt struct {
	tracingExt
}

func (*highestTracingExt) HighestPriority() {}

type internalTracingExt struct {
	orderedTracingExt
}

func (*internalTracingExt) InternalExtension() {}

type widget struct {
	Label string
}

// collector is a listener component that records every event type it sees.
type collector struct {
	log *journal
}

func (c *collector) OnEvent(_ context.Context, e event.Event) error {
	c.log.add(event.TypeOf(e))
	return nil
}

// lateListener is instantiated by the factory, so it records into its own
// journal.
type lateListener struct {
	log journal
}

func (l *lateListener) OnEvent(_ context.Context, e event.Event) error {
	l.log.add(event.TypeOf(e))
	return nil
}

// service is a lifecycle component.
type service struct {
	id      string
	log     *journal
	phase   int
	manual  bool
	running bool
	stopErr error
}

func (s *service) Start(context.Context) error {
	s.log.add("start:" + s.id)
	s.running = true
	return nil
}

func (s *service) Stop(context.Context) error {
	s.log.add("stop:" + s.id)
	s.running = false
	return s.stopErr
}

func (s *service) IsRunning() bool { return s.running }
func (s *service) Phase() int { return s.phase }
func (s *service) AutoStartup() bool { return !s.manual }

// disposable records its destruction.
type disposable struct {
	id  string
	log *journal
}

func (d *disposable) Destroy() error {
	d.log.add("destroy:" + d.id)
	return nil
}

// awareComponent captures every reference the aware extension hands out.
type awareComponent struct {
	container *Container
	factory   *factory.Factory
	publisher Publisher
	name      string
	logger    Logger
}

func (a *awareComponent) SetContainer(c *Container) { a.container = c }
func (a *awareComponent) SetFactory(f *factory.Factory) { a.factory = f }
func (a *awareComponent) SetPublisher(p Publisher) { a.publisher = p }
func (a *awareComponent) SetComponentName(name string) { a.name = name }
func (a *awareComponent) SetLogger(l Logger) { a.logger = l }

var errBoom = errors.New("boom")
