// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskloop

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// ErrAlreadyRunning is returned when Run is called, from another goroutine,
// while the scheduler is running.
var ErrAlreadyRunning = errors.New("taskloop: scheduler is already running")

// Scheduler drives a [ShortTaskQueue] and a [DelayedTaskRegistry], invoking
// their tasks against an [Engine] in the order script semantics require.
//
// Either queue may be nil, disabling that category of work. There should be
// exactly one Scheduler per engine session, sharing its queues with the
// layers that post work.
type Scheduler[C any] struct {
	// Prevent copying
	_ [0]func()

	short   *ShortTaskQueue[C]
	delayed *DelayedTaskRegistry[C]
	clock   Clock
	logger  *logiface.Logger[logiface.Event]
	stats   counters

	// goroutine that is currently within Run, zero if not running
	goroutine atomic.Uint64
	running   atomic.Bool

	resetPolicy ResetPolicy
	waitForDue  bool
}

// New returns a scheduler for the given queues, either of which may be nil.
func New[C any](short *ShortTaskQueue[C], delayed *DelayedTaskRegistry[C], opts ...Option) *Scheduler[C] {
	cfg := resolveSchedulerOptions(opts)
	return &Scheduler[C]{
		short:       short,
		delayed:     delayed,
		clock:       cfg.clock,
		logger:      cfg.logger,
		resetPolicy: cfg.resetPolicy,
		waitForDue:  cfg.waitForDue,
	}
}

// ShortTasks returns the short-task queue, which may be nil.
func (s *Scheduler[C]) ShortTasks() *ShortTaskQueue[C] { return s.short }

// DelayedTasks returns the delayed-task registry, which may be nil.
func (s *Scheduler[C]) DelayedTasks() *DelayedTaskRegistry[C] { return s.delayed }

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler[C]) Stats() Stats { return s.stats.snapshot() }

// Run services all pending work, and anything it transitively spawns:
//
//  1. If both queues are nil, it returns nil immediately.
//  2. Short tasks are drained.
//  3. While delayed tasks remain, the one due soonest is invoked, then
//     rescheduled or removed, then short tasks are drained again.
//
// A failing task never stops the run. If any task failed, the returned error
// is an [*AggregateError], matching [ErrTaskFailed]. Run stops early if ctx
// is cancelled, between delayed tasks, returning ctx.Err() (joined with any
// failures).
//
// Run must not be called from within a task ([ErrReentrantRun]), or
// concurrently ([ErrAlreadyRunning]).
func (s *Scheduler[C]) Run(ctx context.Context, engine Engine[C]) error {
	if s.short == nil && s.delayed == nil {
		return nil
	}

	gid := getGoroutineID()
	if !s.running.CompareAndSwap(false, true) {
		if s.goroutine.Load() == gid {
			return ErrReentrantRun
		}
		return ErrAlreadyRunning
	}
	s.goroutine.Store(gid)
	defer func() {
		s.goroutine.Store(0)
		s.running.Store(false)
	}()

	s.stats.runs.Add(1)
	s.logger.Debug().Log(`run started`)

	var f failures
	err := s.run(ctx, engine, &f)
	if err == nil {
		err = f.err()
	} else if failed := f.err(); failed != nil {
		err = errors.Join(err, failed)
	}

	if b := s.logger.Debug(); b.Enabled() {
		b.Int(`failures`, len(f.errs)).
			Log(`run stopped`)
	}

	return err
}

// run implements the loop of Run, returning only ctx errors; task failures
// are recorded in f.
func (s *Scheduler[C]) run(ctx context.Context, engine Engine[C], f *failures) error {
	s.drainShort(engine, f)

	if s.delayed == nil {
		return nil
	}

	for !s.delayed.IsEmpty() {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, task, due, ok := s.delayed.peek()
		if id == 0 {
			// an in-flight task may have removed everything
			break
		}
		if !ok {
			s.stats.inconsistencies.Add(1)
			s.logger.Err().
				Err(ErrRegistryInconsistent).
				Uint64(`task_id`, uint64(id)).
				Log(`next task not found`)
			s.delayed.FindNext()
			s.drainShort(engine, f)
			continue
		}

		if s.waitForDue {
			if wait := due.Sub(s.clock.Now()); wait > 0 {
				if err := sleep(ctx, wait); err != nil {
					return err
				}
				// the registry may have changed while waiting
				continue
			}
		}

		s.stats.delayedTasks.Add(1)
		if cause := invoke(engine, task.callable); cause != nil {
			s.fail(f, &TaskError{ID: id, Kind: task.kind, Cause: cause})
		}

		if s.delayed.reschedule(id, task, s.clock.Now(), s.resetPolicy) {
			s.stats.rescheduled.Add(1)
		}
		s.delayed.FindNext()

		s.drainShort(engine, f)
	}

	return nil
}

func (s *Scheduler[C]) drainShort(engine Engine[C], f *failures) {
	if s.short == nil {
		return
	}
	n, _ := s.short.drain(engine, func(err *TaskError) {
		s.fail(f, err)
	})
	s.stats.shortTasks.Add(uint64(n))
}

func (s *Scheduler[C]) fail(f *failures, err *TaskError) {
	s.stats.failures.Add(1)
	f.add(err)
	if b := s.logger.Err(); b.Enabled() {
		if err.ID != 0 {
			b = b.Uint64(`task_id`, uint64(err.ID)).
				Str(`kind`, err.Kind.String())
		}
		b.Limit().
			Err(err.Cause).
			Log(`task failed`)
	}
}

// sleep blocks for d, or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
