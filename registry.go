// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskloop

import (
	"sync"
	"time"
)

// DelayedTaskRegistry holds pending timers and one-shots keyed by [TaskID],
// caching the id of the task that is due soonest.
//
// All methods are safe to call from any goroutine, including from within a
// task that the scheduler is executing. The zero value is not usable, use
// [NewDelayedTaskRegistry].
type DelayedTaskRegistry[C any] struct {
	clock Clock
	tasks map[TaskID]*DelayedTask[C]
	ids   idAllocator
	mu    sync.Mutex
	// next is the cached earliest-due id, zero if there is none
	next TaskID
}

// NewDelayedTaskRegistry returns an empty registry.
func NewDelayedTaskRegistry[C any](opts ...RegistryOption) *DelayedTaskRegistry[C] {
	cfg := resolveRegistryOptions(opts)
	return &DelayedTaskRegistry[C]{
		clock: cfg.clock,
		tasks: make(map[TaskID]*DelayedTask[C]),
	}
}

// Insert allocates the next id, and registers task under it.
// One-shot tasks are assigned a due instant of now.
func (r *DelayedTaskRegistry[C]) Insert(task *DelayedTask[C]) TaskID {
	if task == nil {
		panic("taskloop: nil task")
	}
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if task.kind == KindOneShot {
		task.due = now
	}
	id := r.ids.next()
	r.tasks[id] = task
	r.findNextLocked()
	return id
}

// Remove deletes the task registered under id. Unknown ids are ignored.
func (r *DelayedTaskRegistry[C]) Remove(id TaskID) {
	r.mu.Lock()
	r.removeLocked(id)
	r.mu.Unlock()
}

func (r *DelayedTaskRegistry[C]) removeLocked(id TaskID) bool {
	if _, ok := r.tasks[id]; !ok {
		return false
	}
	delete(r.tasks, id)
	r.findNextLocked()
	return true
}

// Next returns the cached id of the task that is due soonest.
func (r *DelayedTaskRegistry[C]) Next() (TaskID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next, r.next != 0
}

// FindNext recomputes the cached value returned by Next.
// Every mutating method already calls it.
func (r *DelayedTaskRegistry[C]) FindNext() {
	r.mu.Lock()
	r.findNextLocked()
	r.mu.Unlock()
}

// findNextLocked scans every pending task. Ties on due are broken by the
// lower (earlier inserted) id.
func (r *DelayedTaskRegistry[C]) findNextLocked() {
	var (
		nextID  TaskID
		nextDue time.Time
	)
	for id, task := range r.tasks {
		if nextID == 0 ||
			task.due.Before(nextDue) ||
			(task.due.Equal(nextDue) && id < nextID) {
			nextID = id
			nextDue = task.due
		}
	}
	r.next = nextID
}

// Get returns the task registered under id.
func (r *DelayedTaskRegistry[C]) Get(id TaskID) (*DelayedTask[C], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	return task, ok
}

// Due returns the due instant of the task registered under id.
func (r *DelayedTaskRegistry[C]) Due(id TaskID) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok := r.tasks[id]; ok {
		return task.due, true
	}
	return time.Time{}, false
}

// Len returns the number of pending tasks.
func (r *DelayedTaskRegistry[C]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// IsEmpty reports whether there are no pending tasks.
func (r *DelayedTaskRegistry[C]) IsEmpty() bool {
	return r.Len() == 0
}

// Now returns the registry clock's current instant.
func (r *DelayedTaskRegistry[C]) Now() time.Time {
	return r.clock.Now()
}

// SetTimeout registers a timer that runs fn once, after delay.
// Negative delays are treated as zero.
func (r *DelayedTaskRegistry[C]) SetTimeout(fn C, delay time.Duration) TaskID {
	return r.Insert(NewTimer(fn, r.clock.Now().Add(max(delay, 0)), 0, false))
}

// SetInterval registers a timer that runs fn every interval (minimum 1ms),
// starting after one interval, until cancelled.
func (r *DelayedTaskRegistry[C]) SetInterval(fn C, interval time.Duration) TaskID {
	interval = max(interval, minInterval)
	return r.Insert(NewTimer(fn, r.clock.Now().Add(interval), interval, true))
}

// Post registers a one-shot task that runs fn as soon as it is selected.
func (r *DelayedTaskRegistry[C]) Post(fn C) TaskID {
	return r.Insert(NewOneShot(fn))
}

// Cancel marks the task registered under id as cancelled, and removes it.
// Cancelling a timer from within its own callable prevents it from being
// rescheduled. Returns false if id was not pending.
func (r *DelayedTaskRegistry[C]) Cancel(id TaskID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return false
	}
	task.Cancel()
	return r.removeLocked(id)
}

// peek returns the cached next id, and the task it references. If id is
// non-zero but ok is false, the cache is inconsistent with the contents.
func (r *DelayedTaskRegistry[C]) peek() (id TaskID, task *DelayedTask[C], due time.Time, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id = r.next
	if id == 0 {
		return
	}
	if task, ok = r.tasks[id]; ok {
		due = task.due
	}
	return
}

// reschedule applies the post-execution policy to the task registered under
// id: timers are reset, and kept if the reset reports repeat, everything else
// is removed. The task must be the one that executed; a task that removed
// itself during execution is already gone, and is ignored.
func (r *DelayedTaskRegistry[C]) reschedule(id TaskID, task *DelayedTask[C], now time.Time, policy ResetPolicy) (kept bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.tasks[id]
	if !ok || current != task {
		return false
	}
	if task.kind == KindTimer && task.reset(now, policy) {
		r.findNextLocked()
		return true
	}
	r.removeLocked(id)
	return false
}
