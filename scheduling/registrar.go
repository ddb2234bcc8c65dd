// Package scheduling runs container components on cron schedules.
//
// A component opts in by implementing Task. The Registrar is an instance
// extension, so every Task created by the container after the registrar is
// installed is scheduled, and a lifecycle component, so schedules only fire
// while the container is running.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/appctx"
	"github.com/GoCodeAlone/appctx/order"
	"github.com/GoCodeAlone/appctx/registry"
)

// RegistrarName is the component name used by Register.
const RegistrarName = "scheduledTaskRegistrar"

// Phase starts the registrar after ordinary lifecycle components and stops it
// before them.
const Phase = math.MaxInt32 / 2

// ErrInvalidSpec reports a Task whose cron spec cannot be parsed.
var ErrInvalidSpec = errors.New("scheduling: invalid cron spec")

// Task is a component that runs on a cron schedule. CronSpec accepts the
// standard five-field syntax and descriptors such as "@hourly" or
// "@every 1m30s".
type Task interface {
	CronSpec() string
	Run(ctx context.Context) error
}

// ScheduledTask describes one registered task.
type ScheduledTask struct {
	Name string    `json:"name" yaml:"name"`
	Spec string    `json:"spec" yaml:"spec"`
	Next time.Time `json:"next" yaml:"next"`
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithLocation evaluates schedules in loc.
func WithLocation(loc *time.Location) Option {
	return func(r *Registrar) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithSeconds accepts an optional leading seconds field in cron specs.
func WithSeconds() Option {
	return func(r *Registrar) {
		r.parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	}
}

type entry struct {
	name string
	spec string
	id   cron.EntryID
}

// Registrar collects Task components and runs them.
type Registrar struct {
	mu       sync.Mutex
	logger   appctx.Logger
	location *time.Location
	parser   cron.ScheduleParser
	cron     *cron.Cron
	entries  []entry
	runCtx   context.Context
	cancel   context.CancelFunc
	running  bool
}

// NewRegistrar creates a stopped registrar.
func NewRegistrar(opts ...Option) *Registrar {
	r := &Registrar{
		logger:   slog.Default(),
		location: time.Local,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, opt := range opts {
		opt(r)
	}
	log := cronLogger{r}
	r.cron = cron.New(
		cron.WithLocation(r.location),
		cron.WithParser(r.parser),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	return r
}

// Register adds a registrar definition to reg.
func Register(reg *registry.Registry, opts ...Option) error {
	return reg.Register(RegistrarName, &registry.Definition{
		Type: reflect.TypeFor[*Registrar](),
		Role: registry.RoleInfrastructure,
		Supplier: func(registry.Resolver) (any, error) {
			return NewRegistrar(opts...), nil
		},
		Description: "Runs Task components on their cron schedules",
	})
}

// SetLogger implements appctx.LoggerAware.
func (r *Registrar) SetLogger(l appctx.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l != nil {
		r.logger = l
	}
}

// Order places the registrar after every other ordered instance extension.
func (r *Registrar) Order() int { return order.LowestPrecedence }

// Phase implements lifecycle.Phased.
func (r *Registrar) Phase() int { return Phase }

// BeforeInit passes instances through.
func (r *Registrar) BeforeInit(instance any, _ string) (any, error) {
	return instance, nil
}

// AfterInit schedules instance when it is a Task. An invalid spec fails the
// creation of that component.
func (r *Registrar) AfterInit(instance any, name string) (any, error) {
	task, ok := instance.(Task)
	if !ok {
		return instance, nil
	}
	if err := r.Schedule(name, task); err != nil {
		return nil, err
	}
	return instance, nil
}

// Schedule registers task under name.
func (r *Registrar) Schedule(name string, task Task) error {
	spec := task.CronSpec()
	schedule, err := r.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("%w: %s: %q: %w", ErrInvalidSpec, name, spec, err)
	}

	id := r.cron.Schedule(schedule, cron.FuncJob(func() { r.run(name, task) }))

	r.mu.Lock()
	r.entries = append(r.entries, entry{name: name, spec: spec, id: id})
	logger := r.logger
	r.mu.Unlock()

	logger.Debug("Scheduled task", "task", name, "spec", spec)
	return nil
}

func (r *Registrar) run(name string, task Task) {
	r.mu.Lock()
	ctx, logger := r.runCtx, r.logger
	r.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	started := time.Now()
	if err := task.Run(ctx); err != nil {
		logger.Error("Scheduled task failed", "task", name, "error", err)
		return
	}
	logger.Debug("Scheduled task completed", "task", name, "duration", time.Since(started))
}

// Tasks returns the registered tasks in registration order with their next
// activation. Next is zero while the registrar is stopped.
func (r *Registrar) Tasks() []ScheduledTask {
	r.mu.Lock()
	entries := slices.Clone(r.entries)
	r.mu.Unlock()

	out := make([]ScheduledTask, 0, len(entries))
	for _, e := range entries {
		out = append(out, ScheduledTask{Name: e.name, Spec: e.spec, Next: r.cron.Entry(e.id).Next})
	}
	return out
}

// Start begins firing schedules. Tasks run with a context derived from
// context.Background that is cancelled on Stop.
func (r *Registrar) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	r.runCtx, r.cancel = context.WithCancel(context.Background())
	r.cron.Start()
	r.running = true
	r.logger.Info("Task registrar started", "tasks", len(r.entries))
	return nil
}

// Stop cancels running tasks and waits for them until ctx is done.
func (r *Registrar) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	logger := r.logger
	r.mu.Unlock()

	done := r.cron.Stop()
	select {
	case <-done.Done():
		logger.Info("Task registrar stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduling: waiting for running tasks: %w", ctx.Err())
	}
}

// IsRunning implements lifecycle.Lifecycle.
func (r *Registrar) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// cronLogger adapts the registrar logger to cron.Logger.
type cronLogger struct {
	r *Registrar
}

func (l cronLogger) current() appctx.Logger {
	l.r.mu.Lock()
	defer l.r.mu.Unlock()
	return l.r.logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.current().Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.current().Error(msg, append(keysAndValues, "error", err)...)
}
