// Package config holds the container configuration and the feeders that
// populate it from YAML, TOML and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Static errors for the configuration package
var (
	ErrNilConfig       = errors.New("config is nil")
	ErrEmptyName       = errors.New("config: name must not be empty")
	ErrInvalidTimeout  = errors.New("config: stop timeout must be positive")
	ErrInvalidLogLevel = errors.New("config: unknown log level")
	ErrMissingAddress  = errors.New("config: actuator address is required when the actuator is enabled")
	ErrFeedFailed      = errors.New("config: feeder failed")
)

// Defaults applied by Default and Load.
const (
	DefaultName            = "appctx"
	DefaultStopTimeout     = 30 * time.Second
	DefaultLogLevel        = "info"
	DefaultActuatorAddress = ":8081"
)

// Config is the container configuration.
type Config struct {
	Name                      string        `yaml:"name" toml:"name" env:"NAME"`
	AllowDefinitionOverriding bool          `yaml:"allowDefinitionOverriding" toml:"allowDefinitionOverriding" env:"ALLOW_DEFINITION_OVERRIDING"`
	StopTimeout               time.Duration `yaml:"stopTimeout" toml:"stopTimeout" env:"STOP_TIMEOUT"`
	LogLevel                  string        `yaml:"logLevel" toml:"logLevel" env:"LOG_LEVEL"`

	Actuator   ActuatorConfig   `yaml:"actuator" toml:"actuator" env:"ACTUATOR"`
	Watch      WatchConfig      `yaml:"watch" toml:"watch" env:"WATCH"`
	Scheduling SchedulingConfig `yaml:"scheduling" toml:"scheduling" env:"SCHEDULING"`
}

// ActuatorConfig configures the HTTP inspection endpoints.
type ActuatorConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Address string `yaml:"address" toml:"address" env:"ADDRESS"`
}

// WatchConfig lists files whose changes are published as events.
type WatchConfig struct {
	Paths []string `yaml:"paths" toml:"paths" env:"PATHS"`
}

// SchedulingConfig toggles the cron task registrar.
type SchedulingConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled" env:"ENABLED"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Name:                      DefaultName,
		AllowDefinitionOverriding: true,
		StopTimeout:               DefaultStopTimeout,
		LogLevel:                  DefaultLogLevel,
		Actuator:                  ActuatorConfig{Address: DefaultActuatorAddress},
	}
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate checks the configuration. All problems are reported together.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	var errs []error
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, ErrEmptyName)
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %s", ErrInvalidTimeout, c.StopTimeout))
	}
	if !logLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel))
	}
	if c.Actuator.Enabled && c.Actuator.Address == "" {
		errs = append(errs, ErrMissingAddress)
	}
	return errors.Join(errs...)
}
