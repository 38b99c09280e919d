// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gojaengine

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/dop251/goja"
	taskloop "github.com/joeycumines/go-taskloop"
)

// maxDelayMs is the largest delay a timer may be given, larger values are
// clamped, matching the 32-bit signed limit of web browsers.
const maxDelayMs = math.MaxInt32

// Bind creates the scheduling globals in the runtime's global scope.
// Globals for a disabled category are not created.
//
// After calling Bind(), the following globals become available:
//   - setTimeout(callback, delay?, ...args) → task ID
//   - clearTimeout(id) → undefined
//   - setInterval(callback, delay?, ...args) → task ID
//   - clearInterval(id) → undefined
//   - setImmediate(callback, ...args) → task ID
//   - clearImmediate(id) → undefined
//   - queueMicrotask(callback) → undefined
//   - console (if configured)
func (e *Engine) Bind() error {
	if e.timers != nil {
		for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
			"setTimeout":     e.setTimeout,
			"clearTimeout":   e.clearTask,
			"setInterval":    e.setInterval,
			"clearInterval":  e.clearTask,
			"setImmediate":   e.setImmediate,
			"clearImmediate": e.clearTask,
		} {
			if err := e.runtime.Set(name, fn); err != nil {
				return fmt.Errorf("gojaengine: bind %s: %w", name, err)
			}
		}
	}

	if e.short != nil {
		if err := e.runtime.Set("queueMicrotask", e.queueMicrotask); err != nil {
			return fmt.Errorf("gojaengine: bind queueMicrotask: %w", err)
		}
	}

	if e.console != nil {
		if err := e.bindConsole(); err != nil {
			return fmt.Errorf("gojaengine: bind console: %w", err)
		}
	}

	return nil
}

// callbackArgument returns the callable at index 0 of call, or throws a
// TypeError.
func (e *Engine) callbackArgument(name string, call goja.FunctionCall) goja.Callable {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(e.runtime.NewTypeError("%s requires a function as first argument", name))
	}
	return fn
}

// delayArgument converts the delay at index 1 of call, treating negative and
// non-numeric values as zero.
func delayArgument(call goja.FunctionCall) time.Duration {
	ms := call.Argument(1).ToInteger()
	ms = min(max(ms, 0), maxDelayMs)
	return time.Duration(ms) * time.Millisecond
}

// restArguments returns a copy of the arguments from index i onwards.
func restArguments(call goja.FunctionCall, i int) []goja.Value {
	if len(call.Arguments) <= i {
		return nil
	}
	return append([]goja.Value(nil), call.Arguments[i:]...)
}

func (e *Engine) setTimeout(call goja.FunctionCall) goja.Value {
	fn := e.callbackArgument("setTimeout", call)
	id := e.timers.SetTimeout(Job{Fn: fn, Args: restArguments(call, 2)}, delayArgument(call))
	return e.runtime.ToValue(uint64(id))
}

func (e *Engine) setInterval(call goja.FunctionCall) goja.Value {
	fn := e.callbackArgument("setInterval", call)
	id := e.timers.SetInterval(Job{Fn: fn, Args: restArguments(call, 2)}, delayArgument(call))
	return e.runtime.ToValue(uint64(id))
}

func (e *Engine) setImmediate(call goja.FunctionCall) goja.Value {
	fn := e.callbackArgument("setImmediate", call)
	id := e.timers.Post(Job{Fn: fn, Args: restArguments(call, 1)})
	return e.runtime.ToValue(uint64(id))
}

// clearTask implements clearTimeout, clearInterval and clearImmediate, which
// share an id space. Unknown ids are silently ignored (matches browser
// behavior).
func (e *Engine) clearTask(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		return goja.Undefined()
	}
	if id := arg.ToInteger(); id > 0 {
		e.timers.Cancel(taskloop.TaskID(id))
	}
	return goja.Undefined()
}

func (e *Engine) queueMicrotask(call goja.FunctionCall) goja.Value {
	fn := e.callbackArgument("queueMicrotask", call)
	e.short.Enqueue(Job{Fn: fn})
	return goja.Undefined()
}

func (e *Engine) bindConsole() error {
	console := e.runtime.NewObject()
	for _, name := range [...]string{"log", "info", "debug", "warn", "error"} {
		if err := console.Set(name, e.consoleWrite); err != nil {
			return err
		}
	}
	return e.runtime.Set("console", console)
}

// consoleWrite writes its arguments, space separated, as a single line.
func (e *Engine) consoleWrite(call goja.FunctionCall) goja.Value {
	var b strings.Builder
	for i, arg := range call.Arguments {
		if i != 0 {
			b.WriteByte(' ')
		}
		b.WriteString(arg.String())
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(e.console, b.String())
	return goja.Undefined()
}
