package appctx

import (
	"errors"
	"fmt"
)

// Container errors
var (
	// Refresh errors
	ErrRefreshFailed   = errors.New("container initialization failed")
	ErrNotRepeatable   = errors.New("container does not support multiple refresh attempts")
	ErrContainerFailed = errors.New("container failed to refresh and must be discarded")
	ErrNotRefreshed    = errors.New("container has not been refreshed")
	ErrContainerClosed = errors.New("container is closed")

	// Extension errors
	ErrNotExtension       = errors.New("component does not implement the expected extension interface")
	ErrInvalidMulticaster = errors.New("eventMulticaster component is not an event.Multicaster")
	ErrInvalidCoordinator = errors.New("lifecycleCoordinator component is not a lifecycle.Coordinator")

	// Lookup errors
	ErrComponentType = errors.New("component is not of the requested type")
	ErrNilListener   = errors.New("listener cannot be nil")
	ErrNilExtension  = errors.New("extension cannot be nil")
)

// Refresh phases reported in InitError.
const (
	PhasePrepare     = "prepare"
	PhaseRegistry    = "registry-extensions"
	PhaseInstanceExt = "instance-extensions"
	PhaseEventBus    = "event-bus"
	PhaseRefreshHook = "refresh-hook"
	PhaseListeners   = "listeners"
	PhaseSingletons  = "singletons"
	PhaseLifecycle   = "lifecycle"
	PhaseFinish      = "finish"
)

// InitError is the single error returned by a failed refresh. Component is
// set when the failure is attributable to one component.
type InitError struct {
	Phase     string
	Component string
	Cause     error
}

func (e *InitError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%v: phase %s: component %q: %v", ErrRefreshFailed, e.Phase, e.Component, e.Cause)
	}
	return fmt.Sprintf("%v: phase %s: %v", ErrRefreshFailed, e.Phase, e.Cause)
}

func (e *InitError) Unwrap() error { return e.Cause }

// Is matches ErrRefreshFailed.
func (e *InitError) Is(target error) bool { return target == ErrRefreshFailed }
