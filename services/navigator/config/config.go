// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the navigation engine configuration.
//
// Configuration comes from a YAML file with defaults applied first, and
// can be hot-reloaded with Watch. The capability flags here replace the
// browser feature sniffing the engine would otherwise need.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	// IdentifierTemplate is appended to every request URL so servers can
	// distinguish fragment requests from full page loads. A "__type__"
	// placeholder is substituted with the request kind. Templates
	// starting with "?" merge into the query string; anything else is a
	// literal suffix.
	IdentifierTemplate string `yaml:"identifier_template" validate:"required"`

	// RequestTimeout bounds every network fetch. Zero disables the
	// timeout.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`

	// CacheTTL is the lifetime of cached responses. Zero disables
	// caching entirely.
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`

	// CachePath, when set, stores responses in a Badger database at this
	// directory instead of process memory.
	CachePath string `yaml:"cache_path"`

	// RedirectLimit caps payload redirect chains before the navigation
	// gives up and falls back to a full page load.
	RedirectLimit int `yaml:"redirect_limit" validate:"gte=1,lte=100"`

	// TransitionsEnabled is the capability flag for animated region
	// replacement. Off, every region swaps immediately.
	TransitionsEnabled bool `yaml:"transitions_enabled"`

	// TransitionDuration is how long the timed step of a region
	// transition waits before unwrapping the pending content.
	TransitionDuration time.Duration `yaml:"transition_duration" validate:"gte=0"`

	// ClassPrefix prefixes the CSS classes the transition engine applies.
	ClassPrefix string `yaml:"class_prefix" validate:"required"`

	// PreloadRate limits background preloads, in requests per second.
	// Zero means unlimited.
	PreloadRate float64 `yaml:"preload_rate" validate:"gte=0"`

	// PreloadBurst is the preload rate limiter burst size.
	PreloadBurst int `yaml:"preload_burst" validate:"gte=0"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		IdentifierTemplate: "?frag=__type__",
		RequestTimeout:     30 * time.Second,
		CacheTTL:           10 * time.Minute,
		RedirectLimit:      10,
		TransitionsEnabled: true,
		TransitionDuration: 400 * time.Millisecond,
		ClassPrefix:        "frag",
		PreloadRate:        4,
		PreloadBurst:       2,
	}
}

// Load reads path, layers it over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks structural constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
