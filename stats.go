// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskloop

import (
	"sync/atomic"
)

// Stats is a snapshot of a [Scheduler]'s counters.
// Counters accumulate over the lifetime of the scheduler.
type Stats struct {
	// Runs is the number of Run calls that performed scheduling.
	Runs uint64
	// ShortTasks is the number of short tasks invoked.
	ShortTasks uint64
	// DelayedTasks is the number of delayed tasks invoked.
	DelayedTasks uint64
	// Rescheduled is the number of timer executions that were kept.
	Rescheduled uint64
	// Failures is the number of failed invocations, of either kind.
	Failures uint64
	// Inconsistencies is the number of times the registry's cached next id
	// referenced a missing task.
	Inconsistencies uint64
}

// counters are the live, thread-safe, equivalent of Stats.
type counters struct {
	runs            atomic.Uint64
	shortTasks      atomic.Uint64
	delayedTasks    atomic.Uint64
	rescheduled     atomic.Uint64
	failures        atomic.Uint64
	inconsistencies atomic.Uint64
}

func (x *counters) snapshot() Stats {
	return Stats{
		Runs:            x.runs.Load(),
		ShortTasks:      x.shortTasks.Load(),
		DelayedTasks:    x.delayedTasks.Load(),
		Rescheduled:     x.rescheduled.Load(),
		Failures:        x.failures.Load(),
		Inconsistencies: x.inconsistencies.Load(),
	}
}
