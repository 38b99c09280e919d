// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package taskloop implements the task-queue scheduler of an embedded script
// engine, emulating the engine's concurrency model on a single goroutine.
//
// # Architecture
//
// Work arrives in two categories:
//   - Short tasks ([ShortTaskQueue]): zero-delay continuations, such as
//     promise reactions, executed in strict FIFO order.
//   - Delayed tasks ([DelayedTaskRegistry]): timers and one-shots keyed by
//     [TaskID], selected one at a time by earliest due instant, with ties
//     broken by ascending TaskID.
//
// A [Scheduler] owns (shared) references to at most one of each, and its
// [Scheduler.Run] method services all pending work, plus anything that work
// spawns, before returning:
//
//  1. Drain every short task, including those enqueued mid-drain.
//  2. Pick the delayed task that is due soonest, and invoke it.
//  3. Reschedule it (repeating timer) or remove it (everything else).
//  4. Drain every short task again, then repeat from step 2.
//
// The callable type is a type parameter. An [Engine] knows how to invoke it,
// and reports failure (a pending exception) as a non-nil error. The
// gojaengine sub-package provides an [Engine] backed by goja.
//
// # Failure Model
//
// A failing task never stops the scheduler. Failures are aggregated into an
// [*AggregateError] (matching [ErrTaskFailed]), which is returned once the
// run completes. Panics are recovered, as [PanicError].
//
// # Thread Safety
//
// All tasks execute on the goroutine calling [Scheduler.Run]. Posting work
// ([ShortTaskQueue.Enqueue], [DelayedTaskRegistry.SetTimeout], etc) is safe
// from any goroutine, including from within a running task. Neither queue's
// lock is held while a task executes.
//
// # Usage
//
//	short := taskloop.NewShortTaskQueue[func() error]()
//	timers := taskloop.NewDelayedTaskRegistry[func() error]()
//	scheduler := taskloop.New(short, timers)
//
//	timers.SetTimeout(func() error {
//	    short.Enqueue(func() error {
//	        fmt.Println("continuation")
//	        return nil
//	    })
//	    return nil
//	}, 10*time.Millisecond)
//
//	if err := scheduler.Run(context.Background(), taskloop.FuncEngine{}); err != nil {
//	    log.Fatal(err)
//	}
package taskloop
