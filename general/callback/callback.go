/*
Package callback provides the continuation passing form of a latency bearing operation.

Let's define some terms:

	Handler: The on-done function an operation calls with its result or an error.
	Task: A unit of work that is started with a Context and a Handler and reports to that Handler once.

	- Nothing is forwarded for you. A caller that chains Tasks must check the error it is handed and
	  decide itself whether to start the next Task.
	- Cancelling the Context passed to a Task asks it to stop. The Task still reports once, usually
	  with the Context's error.

Example:

	transcribe.Task(id)(ctx, func(t asr.Transcript, err error) {
		if err != nil {
			fail(err)
			return
		}
		normalize.Task(t)(ctx, func(text asr.NormalizedText, err error) {
			...
		})
	})
*/
package callback

import (
	"context"
	"errors"
	"sync/atomic"
)

// Handler receives the result of a Task.
type Handler[T any] func(T, error)

// Task is a unit of work that reports to its Handler exactly once.
type Task[T any] func(ctx context.Context, done Handler[T])

// ErrCalledTwice is reported when a Handler wrapped by Once() is invoked more than once.
var ErrCalledTwice = errors.New("callback: handler called more than once")

// Once wraps h so that only the first call is delivered. Later calls are dropped and, if
// report != nil, report is called with ErrCalledTwice.
func Once[T any](h Handler[T], report func(error)) Handler[T] {
	if h == nil {
		panic("Once cannot be called with h == nil")
	}
	var called atomic.Bool
	return func(v T, err error) {
		if called.Swap(true) {
			if report != nil {
				report(ErrCalledTwice)
			}
			return
		}
		h(v, err)
	}
}

// Value returns a Task that immediately reports v.
func Value[T any](v T) Task[T] {
	return func(ctx context.Context, done Handler[T]) {
		done(v, nil)
	}
}

// Fail returns a Task that immediately reports err.
func Fail[T any](err error) Task[T] {
	return func(ctx context.Context, done Handler[T]) {
		var zero T
		done(zero, err)
	}
}
