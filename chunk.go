// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskloop

import (
	"sync"
)

// chunkSize is the number of jobs per node in the chunkedQueue linked list.
const chunkSize = 128

// chunkedQueue is a chunked linked-list FIFO.
//
// Thread Safety: This struct is NOT thread-safe.
// The caller must provide external synchronization.
//
// Fixed-size arrays amortize allocations, and exhausted chunks are recycled
// through a per-queue pool.
type chunkedQueue[T any] struct { // betteralign:ignore
	head   *chunk[T]
	tail   *chunk[T]
	pool   sync.Pool
	length int
}

// chunk is a fixed-size node in the chunked linked-list.
// It uses readPos/pos cursors for O(1) push/pop without shifting.
type chunk[T any] struct {
	items   [chunkSize]T
	next    *chunk[T]
	readPos int // First unread slot
	pos     int // First unused slot
}

func (q *chunkedQueue[T]) newChunk() *chunk[T] {
	if c, ok := q.pool.Get().(*chunk[T]); ok {
		return c
	}
	return new(chunk[T])
}

// returnChunk returns an exhausted chunk to the pool, clearing every slot
// so it doesn't retain references to executed jobs.
func (q *chunkedQueue[T]) returnChunk(c *chunk[T]) {
	var zero T
	for i := 0; i < c.pos; i++ {
		c.items[i] = zero
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	q.pool.Put(c)
}

// Push appends to the tail.
//
// CALLER MUST HOLD EXTERNAL MUTEX.
func (q *chunkedQueue[T]) Push(item T) {
	if q.tail == nil {
		q.tail = q.newChunk()
		q.head = q.tail
	}

	if q.tail.pos == len(q.tail.items) {
		newTail := q.newChunk()
		q.tail.next = newTail
		q.tail = newTail
	}

	q.tail.items[q.tail.pos] = item
	q.tail.pos++
	q.length++
}

// Pop removes and returns the head, or false if the queue is empty.
//
// CALLER MUST HOLD EXTERNAL MUTEX.
func (q *chunkedQueue[T]) Pop() (item T, ok bool) {
	if q.length == 0 {
		return
	}

	var zero T
	item = q.head.items[q.head.readPos]
	q.head.items[q.head.readPos] = zero
	q.head.readPos++
	q.length--

	// exhausted: free it, or reset cursors if it's the last one
	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
		} else {
			oldHead := q.head
			q.head = q.head.next
			q.returnChunk(oldHead)
		}
	}

	return item, true
}

// Length returns the queue length.
//
// CALLER MUST HOLD EXTERNAL MUTEX.
func (q *chunkedQueue[T]) Length() int {
	return q.length
}
