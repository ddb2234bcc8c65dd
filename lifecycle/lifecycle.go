// Package lifecycle starts and stops the container's lifecycle components.
package lifecycle

import (
	"context"
	"errors"
	"reflect"
)

// Static errors for lifecycle package
var (
	ErrNoSource    = errors.New("lifecycle coordinator has no component source")
	ErrStartFailed = errors.New("failed to start lifecycle component")
	ErrStopFailed  = errors.New("failed to stop lifecycle component")
	ErrNotRunning  = errors.New("lifecycle coordinator is not running")
)

// DefaultPhase is the phase of components that do not implement Phased.
const DefaultPhase = 0

// Lifecycle is implemented by components that run between container start
// and stop.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// Phased components start in ascending phase order and stop in descending
// phase order.
type Phased interface {
	Phase() int
}

// AutoStarter lets a component opt out of being started when the container
// refreshes. Components without it are started automatically.
type AutoStarter interface {
	AutoStartup() bool
}

// Coordinator drives every lifecycle component in aggregate.
type Coordinator interface {
	// OnRefresh starts auto-startup components once the container is refreshed.
	OnRefresh(ctx context.Context) error
	// OnClose stops running components when the container closes.
	OnClose(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// Source supplies lifecycle components. The component factory satisfies it.
type Source interface {
	NamesForType(t reflect.Type, includeNonSingletons bool) []string
	Get(name string) (any, error)
}

// Logger is the subset of the container logger the coordinator uses.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

var lifecycleType = reflect.TypeFor[Lifecycle]()

// PhaseOf returns the phase of v.
func PhaseOf(v any) int {
	if p, ok := v.(Phased); ok {
		return p.Phase()
	}
	return DefaultPhase
}

func autoStartup(v any) bool {
	if a, ok := v.(AutoStarter); ok {
		return a.AutoStartup()
	}
	return true
}
