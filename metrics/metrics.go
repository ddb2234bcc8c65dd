// Package metrics exports refresh and event statistics to Prometheus.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	rec, _ := metrics.NewStartupRecorder(reg, "")
//	counter, _ := metrics.NewEventCounter(reg, "")
//	c, _ := appctx.New(appctx.WithStartupRecorder(rec), appctx.WithListeners(counter))
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoCodeAlone/appctx"
	"github.com/GoCodeAlone/appctx/event"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "appctx"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var errNilRegisterer = errors.New("metrics: nil prometheus registerer")

// StartupRecorder records the duration and outcome of every refresh step.
// It exposes:
//
//	appctx_refresh_step_duration_seconds{step="<phase>"}
//	appctx_refresh_steps_total{step="<phase>",outcome="success|failure"}
type StartupRecorder struct {
	duration *prometheus.HistogramVec
	steps    *prometheus.CounterVec
	now      func() time.Time
}

// NewStartupRecorder creates a recorder and registers its metrics with reg.
func NewStartupRecorder(reg prometheus.Registerer, namespace string) (*StartupRecorder, error) {
	if reg == nil {
		return nil, errNilRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	r := &StartupRecorder{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_step_duration_seconds",
			Help:      "Duration of container refresh steps.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"step"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_steps_total",
			Help:      "Completed container refresh steps by outcome.",
		}, []string{"step", "outcome"}),
		now: time.Now,
	}
	for _, c := range []prometheus.Collector{r.duration, r.steps} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register startup recorder: %w", err)
		}
	}
	return r, nil
}

// Start begins timing the named step.
func (r *StartupRecorder) Start(name string) appctx.StartupStep {
	return &step{recorder: r, name: name, started: r.now()}
}

type step struct {
	recorder *StartupRecorder
	name     string
	started  time.Time
}

func (s *step) End(err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	s.recorder.duration.WithLabelValues(s.name).Observe(s.recorder.now().Sub(s.started).Seconds())
	s.recorder.steps.WithLabelValues(s.name, outcome).Inc()
}

// EventCounter is a listener that counts delivered events by CloudEvent type:
//
//	appctx_events_total{type="<type>"}
type EventCounter struct {
	events *prometheus.CounterVec
}

// NewEventCounter creates a counter and registers it with reg.
func NewEventCounter(reg prometheus.Registerer, namespace string) (*EventCounter, error) {
	if reg == nil {
		return nil, errNilRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	c := &EventCounter{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events delivered through the container event bus.",
		}, []string{"type"}),
	}
	if err := reg.Register(c.events); err != nil {
		return nil, fmt.Errorf("metrics: register event counter: %w", err)
	}
	return c, nil
}

// OnEvent counts e.
func (c *EventCounter) OnEvent(_ context.Context, e event.Event) error {
	c.events.WithLabelValues(event.TypeOf(e)).Inc()
	return nil
}
