// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskloop

import (
	"sync"
)

// ShortTaskQueue is a strict FIFO queue of zero-delay continuations, e.g.
// promise reactions. It is the "microtask" queue of a typical script engine.
//
// Enqueue is safe to call from any goroutine, including from within a job
// that is currently being drained. The zero value is not usable, use
// [NewShortTaskQueue].
type ShortTaskQueue[C any] struct {
	queue *chunkedQueue[C]
	mu    sync.Mutex
}

// NewShortTaskQueue returns an empty queue.
func NewShortTaskQueue[C any]() *ShortTaskQueue[C] {
	return &ShortTaskQueue[C]{queue: new(chunkedQueue[C])}
}

// Enqueue appends job to the tail of the queue.
func (q *ShortTaskQueue[C]) Enqueue(job C) {
	q.mu.Lock()
	q.queue.Push(job)
	q.mu.Unlock()
}

// Len returns the number of queued jobs.
func (q *ShortTaskQueue[C]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Length()
}

// Drain pops and invokes jobs until the queue is empty, including any jobs
// enqueued while draining. A failing job does not stop the drain. Returns an
// [*AggregateError] if any job failed.
func (q *ShortTaskQueue[C]) Drain(engine Engine[C]) error {
	_, err := q.drain(engine, nil)
	return err
}

func (q *ShortTaskQueue[C]) pop() (job C, ok bool) {
	q.mu.Lock()
	job, ok = q.queue.Pop()
	q.mu.Unlock()
	return
}

// drain implements Drain, calling observe (if non-nil) for every failure.
// The lock is never held while a job is invoked.
func (q *ShortTaskQueue[C]) drain(engine Engine[C], observe func(err *TaskError)) (n int, err error) {
	var f failures
	for {
		job, ok := q.pop()
		if !ok {
			break
		}
		n++
		if cause := invoke(engine, job); cause != nil {
			taskErr := &TaskError{Cause: cause}
			if observe != nil {
				observe(taskErr)
			}
			f.add(taskErr)
		}
	}
	return n, f.err()
}
