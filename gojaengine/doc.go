// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package gojaengine drives the [taskloop] scheduler with the [goja]
// JavaScript runtime.
//
// # Overview
//
// An [Engine] owns a [taskloop.ShortTaskQueue], a
// [taskloop.DelayedTaskRegistry] and the [taskloop.Scheduler] driving them,
// for a single [goja.Runtime]. It implements [taskloop.Engine] for [Job]
// values, reporting an uncaught exception as a [*ScriptError].
//
// # Bound JavaScript APIs
//
// After calling [Engine.Bind]:
//   - setTimeout / clearTimeout
//   - setInterval / clearInterval
//   - setImmediate / clearImmediate
//   - queueMicrotask
//   - console.log, console.info, console.debug, console.warn, console.error
//     (only if configured [WithConsole])
//
// # Ordering
//
// Goja runs its own promise reactions before returning from each call into
// the runtime. Those reactions therefore complete before any job queued via
// queueMicrotask (or [Engine.QueueMicrotask]) that was queued by the same
// call, and both complete before the next delayed task is selected.
//
// # Usage
//
//	rt := goja.New()
//	engine, _ := gojaengine.New(rt, gojaengine.WithConsole(os.Stdout))
//	_ = engine.Bind()
//
//	err := engine.RunScript(ctx, "main.js", `
//	    setTimeout(() => console.log("world"), 10);
//	    queueMicrotask(() => console.log("hello"));
//	`)
//
// [taskloop]: github.com/joeycumines/go-taskloop
// [goja]: github.com/dop251/goja
package gojaengine
