// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskloop

import (
	"strconv"
)

// maxSafeInteger is `2^53 - 1`, the maximum safe integer in JavaScript
const maxSafeInteger = 9007199254740991

// TaskID identifies a delayed task. IDs are allocated in increasing order,
// starting at 1, and are never reused. The zero value is not a valid ID.
type TaskID uint64

func (x TaskID) String() string {
	return strconv.FormatUint(uint64(x), 10)
}

// idAllocator issues TaskIDs.
//
// CALLER MUST HOLD EXTERNAL MUTEX.
type idAllocator struct {
	last uint64
}

// next allocates the next id, panicking if ids that scripts can represent
// exactly have been exhausted.
func (x *idAllocator) next() TaskID {
	if x.last >= maxSafeInteger {
		panic("taskloop: task ID exceeded MAX_SAFE_INTEGER")
	}
	x.last++
	return TaskID(x.last)
}
