// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gojaengine

import (
	"io"

	taskloop "github.com/joeycumines/go-taskloop"
	"github.com/joeycumines/logiface"
)

// engineOptions holds configuration options for Engine creation.
type engineOptions struct {
	clock            taskloop.Clock
	console          io.Writer
	logger           *logiface.Logger[logiface.Event]
	schedulerOptions []taskloop.Option
	noShortTasks     bool
	noTimers         bool
}

// Option configures an [Engine] instance.
type Option interface {
	applyEngine(*engineOptions)
}

// engineOptionImpl implements Option.
type engineOptionImpl struct {
	applyEngineFunc func(*engineOptions)
}

func (o *engineOptionImpl) applyEngine(opts *engineOptions) {
	o.applyEngineFunc(opts)
}

// WithoutShortTasks disables the short-task queue. The queueMicrotask
// global will not be bound.
func WithoutShortTasks() Option {
	return &engineOptionImpl{func(opts *engineOptions) {
		opts.noShortTasks = true
	}}
}

// WithoutTimers disables the delayed-task registry. The timer and
// immediate globals will not be bound.
func WithoutTimers() Option {
	return &engineOptionImpl{func(opts *engineOptions) {
		opts.noTimers = true
	}}
}

// WithClock sets the clock shared by the registry and the scheduler.
func WithClock(clock taskloop.Clock) Option {
	return &engineOptionImpl{func(opts *engineOptions) {
		opts.clock = clock
	}}
}

// WithConsole binds a minimal console object, writing to w.
func WithConsole(w io.Writer) Option {
	return &engineOptionImpl{func(opts *engineOptions) {
		opts.console = w
	}}
}

// WithLogger attaches a structured logger, which is also passed to the
// scheduler.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &engineOptionImpl{func(opts *engineOptions) {
		opts.logger = logger
	}}
}

// WithSchedulerOptions passes options through to [taskloop.New].
// They are applied after those derived from the engine's own options.
func WithSchedulerOptions(options ...taskloop.Option) Option {
	return &engineOptionImpl{func(opts *engineOptions) {
		opts.schedulerOptions = append(opts.schedulerOptions, options...)
	}}
}

func resolveEngineOptions(opts []Option) *engineOptions {
	cfg := &engineOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyEngine(cfg)
	}
	return cfg
}
