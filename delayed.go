// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskloop

import (
	"fmt"
	"sync/atomic"
	"time"
)

// minInterval is the smallest interval a repeating timer may have.
const minInterval = time.Millisecond

// TaskKind discriminates the variants of [DelayedTask].
type TaskKind uint8

const (
	// KindTimer is a timer, with a due instant, that may repeat.
	KindTimer TaskKind = iota + 1
	// KindOneShot runs once, as soon as it is selected.
	KindOneShot
)

func (k TaskKind) String() string {
	switch k {
	case KindTimer:
		return "timer"
	case KindOneShot:
		return "one-shot"
	default:
		return fmt.Sprintf("TaskKind(%d)", k)
	}
}

// ResetPolicy determines how a repeating timer's due instant advances, after
// it executes.
type ResetPolicy uint8

const (
	// ResetDriftCorrecting advances the due instant by the interval until it
	// is after the current instant. A scheduler that fell behind skips the
	// missed repetitions, rather than compounding the drift.
	ResetDriftCorrecting ResetPolicy = iota
	// ResetFixedIncrement advances the due instant by the interval, once.
	ResetFixedIncrement
)

func (p ResetPolicy) String() string {
	switch p {
	case ResetDriftCorrecting:
		return "drift-correcting"
	case ResetFixedIncrement:
		return "fixed-increment"
	default:
		return fmt.Sprintf("ResetPolicy(%d)", p)
	}
}

// DelayedTask is a tagged union of the delayed task kinds, see [TaskKind].
//
// While a task is registered, its due instant is guarded by the owning
// [DelayedTaskRegistry]. The cancelled flag may be set from any goroutine.
type DelayedTask[C any] struct {
	due       time.Time
	callable  C
	interval  time.Duration
	cancelled atomic.Bool
	kind      TaskKind
	repeat    bool
}

// NewTimer returns a timer due at the given instant. If repeat is true it
// will be rescheduled every interval (minimum 1ms), until cancelled.
func NewTimer[C any](fn C, due time.Time, interval time.Duration, repeat bool) *DelayedTask[C] {
	if repeat && interval < minInterval {
		interval = minInterval
	}
	return &DelayedTask[C]{
		kind:     KindTimer,
		callable: fn,
		due:      due,
		interval: interval,
		repeat:   repeat,
	}
}

// NewOneShot returns a one-shot task. Its due instant is assigned when it is
// inserted into a registry, making it eligible immediately.
func NewOneShot[C any](fn C) *DelayedTask[C] {
	return &DelayedTask[C]{
		kind:     KindOneShot,
		callable: fn,
	}
}

// Kind returns the task's variant.
func (x *DelayedTask[C]) Kind() TaskKind { return x.kind }

// Callable returns the task's callable.
func (x *DelayedTask[C]) Callable() C { return x.callable }

// Due returns the instant the task becomes eligible. It must not be called
// concurrently with a running scheduler, see [DelayedTaskRegistry.Due].
func (x *DelayedTask[C]) Due() time.Time { return x.due }

// Interval returns the repeat interval, and whether the task repeats.
func (x *DelayedTask[C]) Interval() (time.Duration, bool) { return x.interval, x.repeat }

// Cancel marks the task as cancelled. A cancelled timer will not be
// rescheduled, even if it is currently executing.
func (x *DelayedTask[C]) Cancel() { x.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (x *DelayedTask[C]) Cancelled() bool { return x.cancelled.Load() }

// reset is called once after each execution of a timer. It returns true if
// the timer should stay registered, having advanced its due instant.
//
// CALLER MUST HOLD THE REGISTRY MUTEX.
func (x *DelayedTask[C]) reset(now time.Time, policy ResetPolicy) bool {
	if x.kind != KindTimer || !x.repeat || x.cancelled.Load() {
		return false
	}
	x.due = x.due.Add(x.interval)
	if policy == ResetDriftCorrecting && !x.due.After(now) {
		missed := now.Sub(x.due)/x.interval + 1
		x.due = x.due.Add(missed * x.interval)
	}
	return true
}
