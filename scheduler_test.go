package taskloop

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_Run_NothingConfigured(t *testing.T) {
	s := New[func() error](nil, nil)
	engine := EngineFunc[func() error](func(fn func() error) error {
		t.Error("unexpected invocation")
		return nil
	})
	if err := s.Run(context.Background(), engine); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if stats := s.Stats(); stats.Runs != 0 {
		t.Fatalf("expected no runs, got %d", stats.Runs)
	}
}

// TestScheduler_Run_TimersInDueOrder registers A (due=10ms) and B (due=5ms):
// B runs first, both are removed, and the result is success.
func TestScheduler_Run_TimersInDueOrder(t *testing.T) {
	s, _, timers, _ := newTestScheduler()
	var r recorder

	a := timers.SetTimeout(r.task("A"), 10*time.Millisecond)
	b := timers.SetTimeout(r.task("B"), 5*time.Millisecond)

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))

	assert.Equal(t, []string{"B", "A"}, r.order)
	_, ok := timers.Get(a)
	assert.False(t, ok)
	_, ok = timers.Get(b)
	assert.False(t, ok)
	_, ok = timers.Next()
	assert.False(t, ok)
}

func TestScheduler_Run_EqualDueInInsertionOrder(t *testing.T) {
	s, _, timers, _ := newTestScheduler()
	var r recorder

	timers.SetTimeout(r.task("1"), 5*time.Millisecond)
	timers.Post(r.task("0"))
	timers.SetTimeout(r.task("2"), 5*time.Millisecond)
	timers.SetTimeout(r.task("3"), 5*time.Millisecond)
	timers.SetTimeout(r.task("4"), 7*time.Millisecond)

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, r.order)
}

func TestScheduler_Run_ShortTasksFirstAndAfterEachDelayedTask(t *testing.T) {
	s, short, timers, _ := newTestScheduler()
	var r recorder

	timers.SetTimeout(func() error {
		r.order = append(r.order, "timer1")
		short.Enqueue(func() error {
			r.order = append(r.order, "short-from-timer1")
			short.Enqueue(r.task("short-from-short"))
			return nil
		})
		return nil
	}, time.Millisecond)
	timers.SetTimeout(r.task("timer2"), 2*time.Millisecond)
	short.Enqueue(r.task("short1"))
	short.Enqueue(r.task("short2"))

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))

	assert.Equal(t, []string{
		"short1",
		"short2",
		"timer1",
		"short-from-timer1",
		"short-from-short",
		"timer2",
	}, r.order)
	assert.Equal(t, 0, short.Len())

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Runs)
	assert.Equal(t, uint64(4), stats.ShortTasks)
	assert.Equal(t, uint64(2), stats.DelayedTasks)
	assert.Equal(t, uint64(0), stats.Failures)
}

func TestScheduler_Run_OneShotRunsOnce(t *testing.T) {
	s, _, timers, _ := newTestScheduler()
	calls := 0
	id := timers.Post(func() error {
		calls++
		return nil
	})

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	require.NoError(t, s.Run(context.Background(), FuncEngine{}))

	assert.Equal(t, 1, calls)
	_, ok := timers.Get(id)
	assert.False(t, ok)
}

func TestScheduler_Run_RepeatingTimerResetOncePerExecution(t *testing.T) {
	s, short, timers, _ := newTestScheduler(WithResetPolicy(ResetFixedIncrement))

	var (
		calls int
		dues  []time.Duration
		id    TaskID
	)
	id = timers.SetInterval(func() error {
		calls++
		if calls == 3 {
			task, _ := timers.Get(id)
			task.Cancel()
		}
		short.Enqueue(func() error {
			if due, ok := timers.Due(id); ok {
				dues = append(dues, due.Sub(epoch))
			}
			return nil
		})
		return nil
	}, 100*time.Millisecond)

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))

	assert.Equal(t, 3, calls)
	// still registered (and advanced once) after each of the first two
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 300 * time.Millisecond}, dues)
	assert.True(t, timers.IsEmpty())
	assert.Equal(t, uint64(2), s.Stats().Rescheduled)
}

// TestScheduler_Run_DriftCorrectingReset runs an interval (100ms, due=0)
// when the current instant is 250ms, its due instant advances to 300ms.
func TestScheduler_Run_DriftCorrectingReset(t *testing.T) {
	s, short, timers, clock := newTestScheduler()

	var (
		id  TaskID
		due time.Time
	)
	id = timers.Insert(NewTimer(func() error {
		short.Enqueue(func() error {
			due, _ = timers.Due(id)
			timers.Cancel(id)
			return nil
		})
		return nil
	}, epoch, 100*time.Millisecond, true))
	clock.Set(epoch.Add(250 * time.Millisecond))

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	assert.Equal(t, epoch.Add(300*time.Millisecond), due)
}

func TestScheduler_Run_RemovedBeforeSelectionNeverRuns(t *testing.T) {
	s, _, timers, _ := newTestScheduler()
	var r recorder

	var b TaskID
	timers.SetTimeout(func() error {
		r.order = append(r.order, "A")
		timers.Remove(b)
		return nil
	}, 5*time.Millisecond)
	b = timers.SetTimeout(r.task("B"), 10*time.Millisecond)
	timers.SetTimeout(r.task("C"), 15*time.Millisecond)

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	assert.Equal(t, []string{"A", "C"}, r.order)
}

func TestScheduler_Run_TaskInsertsEarlierTask(t *testing.T) {
	s, _, timers, _ := newTestScheduler()
	var r recorder

	timers.SetTimeout(func() error {
		r.order = append(r.order, "A")
		timers.SetTimeout(r.task("C"), 0)
		return nil
	}, 5*time.Millisecond)
	timers.SetTimeout(r.task("B"), 10*time.Millisecond)

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	assert.Equal(t, []string{"A", "C", "B"}, r.order)
}

func TestScheduler_Run_TimerRemovesItself(t *testing.T) {
	s, _, timers, _ := newTestScheduler()
	calls := 0

	var id TaskID
	id = timers.SetInterval(func() error {
		calls++
		timers.Remove(id)
		return nil
	}, time.Millisecond)

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	assert.Equal(t, 1, calls)
	assert.True(t, timers.IsEmpty())
	assert.Equal(t, uint64(0), s.Stats().Inconsistencies)
}

func TestScheduler_Run_IntervalClearedFromAnotherTask(t *testing.T) {
	s, _, timers, _ := newTestScheduler()
	calls := 0

	interval := timers.SetInterval(func() error {
		calls++
		return nil
	}, 10*time.Millisecond)
	timers.SetTimeout(func() error {
		timers.Cancel(interval)
		return nil
	}, 35*time.Millisecond)

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	// the clock never moves, so each reset lands on the next multiple
	assert.Equal(t, 3, calls)
	assert.True(t, timers.IsEmpty())
}

func TestScheduler_Run_FailuresAreAggregated(t *testing.T) {
	s, short, timers, _ := newTestScheduler()
	var r recorder
	errScript := errors.New("uncaught exception")

	failing := timers.SetTimeout(func() error {
		r.order = append(r.order, "failing")
		short.Enqueue(r.task("short-from-failing"))
		return errScript
	}, time.Millisecond)
	timers.SetTimeout(func() error {
		r.order = append(r.order, "ok")
		short.Enqueue(r.task("short-from-ok"))
		return nil
	}, 2*time.Millisecond)
	timers.SetTimeout(func() error {
		panic("native bug")
	}, 3*time.Millisecond)
	short.Enqueue(func() error {
		return errScript
	})

	err := s.Run(context.Background(), FuncEngine{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTaskFailed))
	assert.True(t, errors.Is(err, errScript))

	assert.Equal(t, []string{"failing", "short-from-failing", "ok", "short-from-ok"}, r.order)
	assert.True(t, timers.IsEmpty())

	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	require.Len(t, agg.Errors, 3)

	var taskErr *TaskError
	require.True(t, errors.As(agg.Errors[0], &taskErr))
	assert.Equal(t, TaskID(0), taskErr.ID)

	require.True(t, errors.As(agg.Errors[1], &taskErr))
	assert.Equal(t, failing, taskErr.ID)
	assert.Equal(t, KindTimer, taskErr.Kind)

	var panicErr PanicError
	require.True(t, errors.As(agg.Errors[2], &panicErr))
	assert.Equal(t, "native bug", panicErr.Value)

	assert.Equal(t, uint64(3), s.Stats().Failures)
}

func TestScheduler_Run_OnlyShortTasks(t *testing.T) {
	short := NewShortTaskQueue[func() error]()
	s := New(short, nil)
	var r recorder
	short.Enqueue(r.task("a"))

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	assert.Equal(t, []string{"a"}, r.order)
}

func TestScheduler_Run_OnlyDelayedTasks(t *testing.T) {
	timers := NewDelayedTaskRegistry[func() error]()
	s := New(nil, timers)
	var r recorder
	timers.SetTimeout(r.task("b"), time.Millisecond)
	timers.Post(r.task("a"))

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	assert.Equal(t, []string{"a", "b"}, r.order)
}

func TestScheduler_Run_Reentrant(t *testing.T) {
	s, _, timers, _ := newTestScheduler()
	var inner error
	timers.Post(func() error {
		inner = s.Run(context.Background(), FuncEngine{})
		return nil
	})

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	assert.ErrorIs(t, inner, ErrReentrantRun)
}

func TestScheduler_Run_Concurrent(t *testing.T) {
	s, _, timers, _ := newTestScheduler()
	started := make(chan struct{})
	release := make(chan struct{})
	timers.Post(func() error {
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), FuncEngine{}) }()

	<-started
	assert.ErrorIs(t, s.Run(context.Background(), FuncEngine{}), ErrAlreadyRunning)
	close(release)
	require.NoError(t, <-done)
}

func TestScheduler_Run_ContextCancelled(t *testing.T) {
	s, _, timers, _ := newTestScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	timers.SetInterval(func() error {
		calls++
		if calls == 3 {
			cancel()
		}
		if calls == 2 {
			return errors.New("second call failed")
		}
		return nil
	}, time.Millisecond)

	err := s.Run(ctx, FuncEngine{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrTaskFailed)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, timers.Len())
}

func TestScheduler_Run_RegistryInconsistency(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)),
	).Logger()

	s, _, timers, _ := newTestScheduler(WithLogger(logger))
	var r recorder
	timers.SetTimeout(r.task("a"), time.Millisecond)

	// corrupt the cache, as a mutation-ordering bug would
	timers.mu.Lock()
	timers.next = 999
	timers.mu.Unlock()

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	assert.Equal(t, []string{"a"}, r.order)
	assert.Equal(t, uint64(1), s.Stats().Inconsistencies)
	assert.Contains(t, buf.String(), `next task not found`)
	assert.Contains(t, buf.String(), `"task_id":`)
	assert.Contains(t, buf.String(), `999`)
}

func TestScheduler_Run_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()

	s, _, timers, _ := newTestScheduler(WithLogger(logger))
	timers.SetTimeout(func() error { return errors.New("kaboom") }, time.Millisecond)

	require.Error(t, s.Run(context.Background(), FuncEngine{}))

	out := buf.String()
	assert.Contains(t, out, `run started`)
	assert.Contains(t, out, `"err":"kaboom"`)
	assert.Contains(t, out, `"kind":"timer"`)
	assert.Contains(t, out, `task failed`)
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestScheduler_Run_WaitForDue(t *testing.T) {
	short := NewShortTaskQueue[func() error]()
	timers := NewDelayedTaskRegistry[func() error]()
	s := New(short, timers, WithWaitForDue(true))

	var r recorder
	start := time.Now()
	timers.SetTimeout(r.task("late"), 30*time.Millisecond)
	timers.SetTimeout(r.task("early"), 10*time.Millisecond)

	require.NoError(t, s.Run(context.Background(), FuncEngine{}))
	assert.Equal(t, []string{"early", "late"}, r.order)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestScheduler_Run_WaitForDueCancelled(t *testing.T) {
	timers := NewDelayedTaskRegistry[func() error]()
	s := New(nil, timers, WithWaitForDue(true))
	timers.SetTimeout(func() error {
		t.Error("should not run")
		return nil
	}, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, s.Run(ctx, FuncEngine{}), context.DeadlineExceeded)
	assert.Equal(t, 1, timers.Len())
}

func TestScheduler_Accessors(t *testing.T) {
	s, short, timers, _ := newTestScheduler()
	assert.Same(t, short, s.ShortTasks())
	assert.Same(t, timers, s.DelayedTasks())
}
