// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskloop

import (
	"errors"
	"fmt"
	"strings"
)

// Standard errors.
var (
	// ErrTaskFailed is matched (via [errors.Is]) by every error returned by
	// [Scheduler.Run] or [ShortTaskQueue.Drain] that was caused by one or more
	// failed task invocations.
	ErrTaskFailed = errors.New("taskloop: task failed")

	// ErrReentrantRun is returned when Run is called from within a task.
	ErrReentrantRun = errors.New("taskloop: cannot call Run from within a task")

	// ErrRegistryInconsistent indicates the registry's cached next id
	// referenced a task that was no longer present. It is logged, never
	// returned, as the scheduler recovers by recomputing.
	ErrRegistryInconsistent = errors.New("taskloop: registry inconsistent")
)

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("taskloop: task panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// If the panic Value is not an error, returns nil.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// TaskError describes a single failed task invocation.
type TaskError struct {
	// Cause is the error reported by the [Engine], or a [PanicError].
	Cause error
	// ID is the delayed task's id, or zero for a short task.
	ID TaskID
	// Kind is the delayed task's kind. It is meaningless if ID is zero.
	Kind TaskKind
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	var b strings.Builder
	if e.ID == 0 {
		b.WriteString("taskloop: short task failed")
	} else {
		b.WriteString("taskloop: ")
		b.WriteString(e.Kind.String())
		b.WriteString(" ")
		b.WriteString(e.ID.String())
		b.WriteString(" failed")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// AggregateError collects every failure recorded during a drain or run.
// It always matches [ErrTaskFailed].
type AggregateError struct {
	// Errors contains one entry per failure, in execution order.
	Errors []error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	switch len(e.Errors) {
	case 0:
		return ErrTaskFailed.Error()
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", e.Errors[0].Error(), len(e.Errors)-1)
	}
}

// Unwrap returns the errors slice for multi-error unwrapping.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Is reports true for [ErrTaskFailed], and for any [*AggregateError].
func (e *AggregateError) Is(target error) bool {
	if target == ErrTaskFailed {
		return true
	}
	var aggTarget *AggregateError
	return errors.As(target, &aggTarget)
}

// failures accumulates task errors, for a single drain or run.
type failures struct {
	errs []error
}

func (x *failures) add(err error) {
	if err == nil {
		return
	}
	// flatten, so nested drains don't produce nested aggregates
	var agg *AggregateError
	if errors.As(err, &agg) {
		x.errs = append(x.errs, agg.Errors...)
		return
	}
	x.errs = append(x.errs, err)
}

func (x *failures) err() error {
	if len(x.errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: x.errs}
}
