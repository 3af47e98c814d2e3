/*
Package promise provides deferred values that are settled on a single-threaded loop.Loop.

This package is useful when each operation produces a single result at some future point and you want
to describe a sequence of those operations as one chain with one place to handle failure.

Let's define some terms:

	Promise: An object that will have the result of an operation at some future point.
	Reaction: A function attached to a Promise that runs once the Promise settles.
	Chain: Promises linked with Then() or Map(), where each link waits on the one before it.

	- A Promise settles once. The first resolve or reject wins and later ones are ignored.
	- Reactions never run synchronously. They are posted to the Loop, even if the Promise had already
	  settled when the reaction was attached.
	- A rejection skips every Then() and Map() after it until it reaches a Catch().
	- Promises are not safe for concurrent use. Create, resolve and chain them from Loop callbacks.

A Pipeline Example:

	transcribe(ctx, id) // returns *Promise[asr.Transcript]

	p := promise.Then(transcribe(ctx, id), func(t asr.Transcript) *promise.Promise[asr.NormalizedText] {
		log.Println("Step 1: Raw Transcription received:", t.Text)
		return normalize(ctx, t)
	})
	s := promise.Then(p, func(text asr.NormalizedText) *promise.Promise[asr.Sentiment] {
		log.Println("Step 2: Post-processed text:", text)
		return analyze(ctx, text)
	})
	s.OnSettled(func(sentiment asr.Sentiment, err error) {
		// A single place that sees the first failure of any step above.
	})

As you can see from the example, each step returns the next Promise and the chain waits on it before
moving to the following step.
*/
package promise

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnsiilver/asrpipe/general/callback"
	"github.com/johnsiilver/asrpipe/internal/loop"
)

// State is the settlement state of a Promise.
type State int8

const (
	// Pending means the Promise has not settled.
	Pending State = iota
	// Fulfilled means the Promise settled with a value.
	Fulfilled
	// Rejected means the Promise settled with an error.
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("State(%d)", int8(s))
}

var (
	// ErrPending is returned by Result() when the Promise has not settled.
	ErrPending = errors.New("promise: not settled")
	// ErrNilPromise rejects a chain whose Then() func returned a nil Promise.
	ErrNilPromise = errors.New("promise: Then func returned a nil Promise")
)

// Promise is a value that will exist once the operation behind it finishes.
type Promise[T any] struct {
	loop *loop.Loop

	state     State
	value     T
	err       error
	reactions []func()
}

func newPromise[T any](l *loop.Loop) *Promise[T] {
	if l == nil {
		panic("promise cannot be created with a nil Loop")
	}
	return &Promise[T]{loop: l}
}

// New creates a Promise and calls executor synchronously with the functions that settle it. If
// executor panics, the Promise is rejected.
func New[T any](l *loop.Loop, executor func(resolve func(T), reject func(error))) *Promise[T] {
	p := newPromise[T](l)
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.settle(Rejected, *new(T), fmt.Errorf("promise: executor panic: %v", r))
			}
		}()
		executor(p.resolve, p.reject)
	}()
	return p
}

// WithResolvers returns a pending Promise with the functions that settle it.
func WithResolvers[T any](l *loop.Loop) (p *Promise[T], resolve func(T), reject func(error)) {
	p = newPromise[T](l)
	return p, p.resolve, p.reject
}

// Resolve returns a Promise already fulfilled with v.
func Resolve[T any](l *loop.Loop, v T) *Promise[T] {
	p := newPromise[T](l)
	p.resolve(v)
	return p
}

// Reject returns a Promise already rejected with err.
func Reject[T any](l *loop.Loop, err error) *Promise[T] {
	p := newPromise[T](l)
	p.reject(err)
	return p
}

// FromTask starts task and returns a Promise for its result.
func FromTask[T any](l *loop.Loop, ctx context.Context, task callback.Task[T]) *Promise[T] {
	return New(l, func(resolve func(T), reject func(error)) {
		task(ctx, func(v T, err error) {
			if err != nil {
				reject(err)
				return
			}
			resolve(v)
		})
	})
}

// State returns the current state of the Promise.
func (p *Promise[T]) State() State {
	return p.state
}

// Result returns the settled value or error. If the Promise is still pending, ErrPending is returned.
func (p *Promise[T]) Result() (T, error) {
	if p.state == Pending {
		var zero T
		return zero, ErrPending
	}
	return p.value, p.err
}

// OnSettled attaches a terminal reaction that receives the value or the error.
func (p *Promise[T]) OnSettled(f func(T, error)) {
	p.subscribe(func() { f(p.value, p.err) })
}

// Catch returns a Promise that follows p, except that a rejection is handed to f. Whatever f
// returns settles the returned Promise.
func (p *Promise[T]) Catch(f func(error) (T, error)) *Promise[T] {
	next := newPromise[T](p.loop)
	p.subscribe(func() {
		if p.state == Fulfilled {
			next.resolve(p.value)
			return
		}
		v, err := f(p.err)
		next.settleWith(v, err)
	})
	return next
}

// Finally returns a Promise that settles like p after running f.
func (p *Promise[T]) Finally(f func()) *Promise[T] {
	next := newPromise[T](p.loop)
	p.subscribe(func() {
		f()
		next.settle(p.state, p.value, p.err)
	})
	return next
}

// Then returns a Promise for the Promise returned by f. f only runs if p is fulfilled. A rejection
// of p or of the Promise from f rejects the returned Promise.
func Then[T, U any](p *Promise[T], f func(T) *Promise[U]) *Promise[U] {
	next := newPromise[U](p.loop)
	p.subscribe(func() {
		if p.state == Rejected {
			next.reject(p.err)
			return
		}
		q := f(p.value)
		if q == nil {
			next.reject(ErrNilPromise)
			return
		}
		q.subscribe(func() { next.settle(q.state, q.value, q.err) })
	})
	return next
}

// Map returns a Promise for the result of f applied to the value of p. f only runs if p is fulfilled.
func Map[T, U any](p *Promise[T], f func(T) (U, error)) *Promise[U] {
	next := newPromise[U](p.loop)
	p.subscribe(func() {
		if p.state == Rejected {
			next.reject(p.err)
			return
		}
		next.settleWith(f(p.value))
	})
	return next
}

// All returns a Promise for the values of ps, in the same order. The first rejection rejects the
// returned Promise.
func All[T any](l *loop.Loop, ps ...*Promise[T]) *Promise[[]T] {
	next := newPromise[[]T](l)
	if len(ps) == 0 {
		next.resolve([]T{})
		return next
	}

	values := make([]T, len(ps))
	left := len(ps)
	for i, p := range ps {
		i, p := i, p
		p.subscribe(func() {
			if p.state == Rejected {
				next.reject(p.err)
				return
			}
			values[i] = p.value
			left--
			if left == 0 {
				next.resolve(values)
			}
		})
	}
	return next
}

func (p *Promise[T]) resolve(v T) {
	p.settle(Fulfilled, v, nil)
}

func (p *Promise[T]) reject(err error) {
	if err == nil {
		err = errors.New("promise: rejected with a nil error")
	}
	var zero T
	p.settle(Rejected, zero, err)
}

func (p *Promise[T]) settleWith(v T, err error) {
	if err != nil {
		p.reject(err)
		return
	}
	p.resolve(v)
}

func (p *Promise[T]) settle(state State, v T, err error) {
	if p.state != Pending {
		return
	}
	p.state = state
	p.value = v
	p.err = err

	for _, r := range p.reactions {
		p.loop.Post(r)
	}
	p.reactions = nil
}

func (p *Promise[T]) subscribe(r func()) {
	if p.state != Pending {
		p.loop.Post(r)
		return
	}
	p.reactions = append(p.reactions, r)
}
