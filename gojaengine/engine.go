// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gojaengine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dop251/goja"
	taskloop "github.com/joeycumines/go-taskloop"
	"github.com/joeycumines/logiface"
)

// Job is a callable scheduled against the runtime: Fn is invoked with This
// (undefined if nil) and Args.
type Job struct {
	Fn   goja.Callable
	This goja.Value
	Args []goja.Value
}

// NativeJob adapts a Go function to a [Job]. A non-nil error is reported as
// a task failure, like an uncaught exception.
func NativeJob(fn func() error) Job {
	return Job{Fn: func(goja.Value, ...goja.Value) (goja.Value, error) {
		return nil, fn()
	}}
}

// ScriptError is an uncaught JavaScript exception.
type ScriptError struct {
	Exception *goja.Exception
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return "gojaengine: uncaught exception: " + e.Exception.Error()
}

// Unwrap returns the underlying goja exception.
func (e *ScriptError) Unwrap() error {
	return e.Exception
}

// Value returns the thrown JavaScript value.
func (e *ScriptError) Value() goja.Value {
	return e.Exception.Value()
}

// Engine binds a [goja.Runtime] to a [taskloop.Scheduler].
//
// The runtime must only be used from the goroutine calling [Engine.RunScript]
// (or [Engine.Run]), and from within the jobs it executes.
type Engine struct {
	runtime   *goja.Runtime
	short     *taskloop.ShortTaskQueue[Job]
	timers    *taskloop.DelayedTaskRegistry[Job]
	scheduler *taskloop.Scheduler[Job]
	console   io.Writer
	logger    *logiface.Logger[logiface.Event]
}

var _ taskloop.Engine[Job] = (*Engine)(nil)

// New creates an Engine for the given runtime. Call [Engine.Bind] to expose
// the scheduling globals to scripts.
func New(runtime *goja.Runtime, opts ...Option) (*Engine, error) {
	if runtime == nil {
		return nil, fmt.Errorf("runtime cannot be nil")
	}

	cfg := resolveEngineOptions(opts)

	e := &Engine{
		runtime: runtime,
		console: cfg.console,
		logger:  cfg.logger,
	}

	var schedulerOptions []taskloop.Option
	if cfg.clock != nil {
		schedulerOptions = append(schedulerOptions, taskloop.WithClock(cfg.clock))
	}
	if cfg.logger != nil {
		schedulerOptions = append(schedulerOptions, taskloop.WithLogger(cfg.logger))
	}
	schedulerOptions = append(schedulerOptions, cfg.schedulerOptions...)

	if !cfg.noShortTasks {
		e.short = taskloop.NewShortTaskQueue[Job]()
	}
	if !cfg.noTimers {
		e.timers = taskloop.NewDelayedTaskRegistry[Job](taskloop.WithClock(cfg.clock))
	}
	e.scheduler = taskloop.New(e.short, e.timers, schedulerOptions...)

	return e, nil
}

// Runtime returns the Goja runtime.
func (e *Engine) Runtime() *goja.Runtime { return e.runtime }

// Scheduler returns the scheduler.
func (e *Engine) Scheduler() *taskloop.Scheduler[Job] { return e.scheduler }

// ShortTasks returns the short-task queue, nil if disabled.
func (e *Engine) ShortTasks() *taskloop.ShortTaskQueue[Job] { return e.short }

// Timers returns the delayed-task registry, nil if disabled.
func (e *Engine) Timers() *taskloop.DelayedTaskRegistry[Job] { return e.timers }

// Invoke calls job.Fn, converting an uncaught exception into a
// [*ScriptError]. Any promise reactions the call queued within the runtime
// have run by the time it returns.
func (e *Engine) Invoke(job Job) error {
	if job.Fn == nil {
		return nil
	}
	this := job.This
	if this == nil {
		this = goja.Undefined()
	}
	_, err := job.Fn(this, job.Args...)
	return wrapError(err)
}

// QueueMicrotask posts a job to the short-task queue. It is safe to call
// from any goroutine.
func (e *Engine) QueueMicrotask(job Job) error {
	if e.short == nil {
		return ErrShortTasksDisabled
	}
	e.short.Enqueue(job)
	return nil
}

// Post posts a one-shot job to the delayed-task registry, e.g. the
// completion of a native operation. It is safe to call from any goroutine.
func (e *Engine) Post(job Job) (taskloop.TaskID, error) {
	if e.timers == nil {
		return 0, ErrTimersDisabled
	}
	return e.timers.Post(job), nil
}

// Compile compiles a script, without running it.
func (e *Engine) Compile(name, src string) (*goja.Program, error) {
	program, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("gojaengine: compile %s: %w", name, err)
	}
	return program, nil
}

// Evaluate runs a compiled program. It does not run the scheduler.
func (e *Engine) Evaluate(program *goja.Program) error {
	_, err := e.runtime.RunProgram(program)
	return wrapError(err)
}

// Run runs the scheduler until there is no more work, or ctx is done, in
// which case a running script is interrupted.
func (e *Engine) Run(ctx context.Context) error {
	defer e.interruptOnDone(ctx)()
	return e.scheduler.Run(ctx, e)
}

// RunScript compiles and evaluates a script, then runs the scheduler until
// there is no more work. If evaluation fails, the scheduler is not run.
func (e *Engine) RunScript(ctx context.Context, name, src string) error {
	program, err := e.Compile(name, src)
	if err != nil {
		return err
	}

	e.logger.Debug().
		Str(`script`, name).
		Log(`evaluating script`)

	if err := func() error {
		defer e.interruptOnDone(ctx)()
		return e.Evaluate(program)
	}(); err != nil {
		e.logger.Err().
			Str(`script`, name).
			Err(err).
			Log(`script evaluation failed`)
		return err
	}

	return e.Run(ctx)
}

// interruptOnDone interrupts the runtime if ctx is done before the returned
// function is called.
func (e *Engine) interruptOnDone(ctx context.Context) func() {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(done)
		e.runtime.Interrupt(ctx.Err())
	})
	return func() {
		if !stop() {
			<-done
			e.runtime.ClearInterrupt()
		}
	}
}

// Errors returned when posting to a disabled category.
var (
	ErrShortTasksDisabled = errors.New("gojaengine: short tasks are disabled")
	ErrTimersDisabled     = errors.New("gojaengine: timers are disabled")
)

func wrapError(err error) error {
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &ScriptError{Exception: exception}
	}
	return err
}
