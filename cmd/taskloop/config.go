// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	taskloop "github.com/joeycumines/go-taskloop"
	"github.com/joeycumines/logiface"
	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration file format.
type Config struct {
	// LogLevel is one of the syslog keywords used by logiface, e.g. "info",
	// "debug", or "disabled".
	LogLevel string `yaml:"log_level"`
	// ResetPolicy is "drift" (default) or "fixed".
	ResetPolicy string `yaml:"reset_policy"`
	// WaitForDue sleeps until each delayed task is due.
	WaitForDue bool `yaml:"wait_for_due"`
	// Timeout bounds the whole run, zero for none.
	Timeout           time.Duration `yaml:"timeout"`
	DisableShortTasks bool          `yaml:"disable_short_tasks"`
	DisableTimers     bool          `yaml:"disable_timers"`
	// Console binds console.* to stdout. Defaults to true.
	Console *bool `yaml:"console"`
	// LogRateLimits are applied per call site, for rate-limited log lines
	// (e.g. task failures).
	LogRateLimits []RateLimit `yaml:"log_rate_limits"`
}

// RateLimit allows Count events per Window.
type RateLimit struct {
	Window time.Duration `yaml:"window"`
	Count  int           `yaml:"count"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:    logiface.LevelInformational.String(),
		ResetPolicy: "drift",
		LogRateLimits: []RateLimit{
			{Window: time.Second, Count: 10},
			{Window: time.Minute, Count: 100},
		},
	}
}

// LoadConfig reads a YAML configuration file, over the defaults. Unknown
// fields are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration, over the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative: %s", c.Timeout)
	}
	for _, limit := range c.LogRateLimits {
		if limit.Window <= 0 || limit.Count <= 0 {
			return fmt.Errorf("config: invalid log rate limit: window=%s count=%d", limit.Window, limit.Count)
		}
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logiface.Level, error) {
	return parseLevel(c.LogLevel)
}

// Policy parses ResetPolicy.
func (c *Config) Policy() (taskloop.ResetPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(c.ResetPolicy)) {
	case ``, `drift`, taskloop.ResetDriftCorrecting.String():
		return taskloop.ResetDriftCorrecting, nil
	case `fixed`, taskloop.ResetFixedIncrement.String():
		return taskloop.ResetFixedIncrement, nil
	default:
		return 0, fmt.Errorf("config: unknown reset policy: %q", c.ResetPolicy)
	}
}

// ConsoleEnabled reports whether console.* should be bound.
func (c *Config) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}

// RateLimits converts LogRateLimits to the form accepted by logiface.
func (c *Config) RateLimits() map[time.Duration]int {
	if len(c.LogRateLimits) == 0 {
		return nil
	}
	limits := make(map[time.Duration]int, len(c.LogRateLimits))
	for _, limit := range c.LogRateLimits {
		limits[limit.Window] = limit.Count
	}
	return limits
}

func parseLevel(s string) (logiface.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == `` {
		return logiface.LevelInformational, nil
	}
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	switch s {
	case `error`:
		return logiface.LevelError, nil
	case `warn`:
		return logiface.LevelWarning, nil
	}
	return 0, fmt.Errorf("config: unknown log level: %q", s)
}
