// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskloop

import (
	"time"

	"github.com/joeycumines/logiface"
)

// Clock provides the current instant, used to compute due instants and to
// reset repeating timers.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the [Clock] interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the default [Clock], backed by [time.Now].
var SystemClock Clock = ClockFunc(time.Now)

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	clock       Clock
	logger      *logiface.Logger[logiface.Event]
	resetPolicy ResetPolicy
	waitForDue  bool
}

// registryOptions holds configuration options for DelayedTaskRegistry creation.
type registryOptions struct {
	clock Clock
}

// --- Scheduler Options ---

// Option configures a [Scheduler] instance.
type Option interface {
	applyScheduler(*schedulerOptions)
}

// RegistryOption configures a [DelayedTaskRegistry] instance.
type RegistryOption interface {
	applyRegistry(*registryOptions)
}

// SharedOption configures both a [Scheduler] and a [DelayedTaskRegistry].
type SharedOption interface {
	Option
	RegistryOption
}

// schedulerOptionImpl implements Option.
type schedulerOptionImpl struct {
	applySchedulerFunc func(*schedulerOptions)
}

func (o *schedulerOptionImpl) applyScheduler(opts *schedulerOptions) {
	o.applySchedulerFunc(opts)
}

// clockOption implements SharedOption.
type clockOption struct {
	clock Clock
}

func (o clockOption) applyScheduler(opts *schedulerOptions) { opts.clock = o.clock }

func (o clockOption) applyRegistry(opts *registryOptions) { opts.clock = o.clock }

// WithClock sets the source of the current instant. Defaults to
// [SystemClock]. A nil clock restores the default.
//
// The scheduler and the registry it drives should share a clock.
func WithClock(clock Clock) SharedOption {
	return clockOption{clock: clock}
}

// WithLogger attaches a structured logger. A nil logger (the default)
// disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &schedulerOptionImpl{func(opts *schedulerOptions) {
		opts.logger = logger
	}}
}

// WithResetPolicy sets how repeating timers are rescheduled.
// Defaults to [ResetDriftCorrecting].
func WithResetPolicy(policy ResetPolicy) Option {
	return &schedulerOptionImpl{func(opts *schedulerOptions) {
		opts.resetPolicy = policy
	}}
}

// WithWaitForDue sets whether the scheduler waits for a delayed task's due
// instant before invoking it. When disabled (default), delayed tasks run
// back to back, in due order, without waiting.
func WithWaitForDue(enabled bool) Option {
	return &schedulerOptionImpl{func(opts *schedulerOptions) {
		opts.waitForDue = enabled
	}}
}

// resolveSchedulerOptions applies Option instances to schedulerOptions.
func resolveSchedulerOptions(opts []Option) *schedulerOptions {
	cfg := &schedulerOptions{
		resetPolicy: ResetDriftCorrecting,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		opt.applyScheduler(cfg)
	}
	if cfg.clock == nil {
		cfg.clock = SystemClock
	}
	return cfg
}

// resolveRegistryOptions applies RegistryOption instances to registryOptions.
func resolveRegistryOptions(opts []RegistryOption) *registryOptions {
	cfg := &registryOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyRegistry(cfg)
	}
	if cfg.clock == nil {
		cfg.clock = SystemClock
	}
	return cfg
}
