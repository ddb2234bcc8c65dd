package config

import (
	"fmt"
)

// Load returns the defaults overlaid by each feeder in order, then validates
// the result. Later feeders override earlier ones field by field.
func Load(feeders ...Feeder) (*Config, error) {
	cfg := Default()
	for _, f := range feeders {
		if f == nil {
			continue
		}
		if err := f.Feed(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v: %w", ErrFeedFailed, f, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads the file at path, if any, followed by the APPCTX_
// environment.
func LoadFile(path string) (*Config, error) {
	var feeders []Feeder
	if path != "" {
		feeders = append(feeders, FileFeeder(path))
	}
	feeders = append(feeders, NewEnvFeeder(EnvPrefix))
	cfg, err := Load(feeders...)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", path, err)
	}
	return cfg, nil
}
