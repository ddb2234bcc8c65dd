package cmd

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoCodeAlone/appctx"
	"github.com/GoCodeAlone/appctx/actuator"
	"github.com/GoCodeAlone/appctx/config"
	"github.com/GoCodeAlone/appctx/configwatch"
	"github.com/GoCodeAlone/appctx/event"
	"github.com/GoCodeAlone/appctx/metrics"
	"github.com/GoCodeAlone/appctx/registry"
	"github.com/GoCodeAlone/appctx/scheduling"
)

// HeartbeatSpec is the schedule of the built-in heartbeat task.
const HeartbeatSpec = "@every 1m"

// heartbeat logs on every tick while scheduling is enabled.
type heartbeat struct {
	logger appctx.Logger
	beats  int
}

func (h *heartbeat) SetLogger(l appctx.Logger) { h.logger = l }
func (h *heartbeat) CronSpec() string { return HeartbeatSpec }

func (h *heartbeat) Run(context.Context) error {
	h.beats++
	h.logger.Info("Heartbeat", "beats", h.beats)
	return nil
}

// Assembly is a container built from configuration with its metrics registry.
type Assembly struct {
	Container *appctx.Container
	Metrics   *prometheus.Registry
}

// Assemble builds a container from cfg. Logs go to logOut.
func Assemble(cfg *config.Config, logOut io.Writer) (*Assembly, error) {
	logger := appctx.NewSlogLogger(logOut, cfg.LogLevel)
	promReg := prometheus.NewRegistry()

	recorder, err := metrics.NewStartupRecorder(promReg, metrics.DefaultNamespace)
	if err != nil {
		return nil, err
	}
	counter, err := metrics.NewEventCounter(promReg, metrics.DefaultNamespace)
	if err != nil {
		return nil, err
	}

	onChange := event.On(func(_ context.Context, e *configwatch.ChangedEvent) error {
		logger.Warn("Configuration file changed, restart to apply", "path", e.Path, "op", e.Op)
		return nil
	})

	c, err := appctx.New(
		appctx.WithConfig(cfg),
		appctx.WithLogger(logger),
		appctx.WithStartupRecorder(recorder),
		appctx.WithListeners(counter, onChange),
	)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}

	reg := c.Registry()
	if cfg.Scheduling.Enabled {
		if err := scheduling.Register(reg); err != nil {
			return nil, err
		}
		if err := reg.Register("heartbeat", &registry.Definition{
			Type:        reflect.TypeFor[*heartbeat](),
			Description: "Logs a heartbeat every minute",
		}); err != nil {
			return nil, err
		}
	}
	if len(cfg.Watch.Paths) > 0 {
		if err := configwatch.Register(reg, cfg.Watch.Paths...); err != nil {
			return nil, err
		}
	}
	if cfg.Actuator.Enabled {
		if err := actuator.Register(reg, cfg.Actuator.Address, promReg); err != nil {
			return nil, err
		}
	}
	return &Assembly{Container: c, Metrics: promReg}, nil
}
