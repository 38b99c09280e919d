// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskloop

// Engine invokes callables against the embedding script engine.
//
// Invoke is always called on the goroutine running the scheduler, and never
// concurrently. A non-nil error indicates the invocation left the engine
// with a pending exception. Invoke may itself cause the engine to run its own
// internal continuation jobs, before returning.
type Engine[C any] interface {
	Invoke(fn C) error
}

// EngineFunc adapts a function to the [Engine] interface.
type EngineFunc[C any] func(fn C) error

// FuncEngine is an [Engine] for native Go callables, that simply calls them.
type FuncEngine struct{}

var (
	// compile time assertions

	_ Engine[func() error] = EngineFunc[func() error](nil)
	_ Engine[func() error] = FuncEngine{}
)

// Invoke calls f(fn).
func (f EngineFunc[C]) Invoke(fn C) error {
	return f(fn)
}

// Invoke calls fn, if it is non-nil.
func (FuncEngine) Invoke(fn func() error) error {
	if fn == nil {
		return nil
	}
	return fn()
}

// invoke calls engine.Invoke, converting any panic into a [PanicError].
func invoke[C any](engine Engine[C], fn C) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return engine.Invoke(fn)
}
