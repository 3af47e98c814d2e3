/*
Package async lets a sequence of Promises be written as straight-line code.

A body started with Run() reads like blocking code, but every Await() is a suspension point: the body
stops, the Loop goes on running anything else it has, and the body picks up where it left off once the
awaited Promise settles.

	- Exactly one of the Loop and the body is running at any time. Control is handed back and forth,
	  so the body may touch Promises and other Loop-owned state.
	- The body runs synchronously from Run() until its first Await().
	- Whatever the body returns settles the Promise from Run(). A panic in the body rejects it with
	  ErrPanic.
	- Await() must only be called from the body it was handed to.
	- A body waiting on a Promise that never settles stays parked for the life of the process.

Example:

	p := async.Run(l, func(a *async.Awaiter) (Result, error) {
		t, err := async.Await(a, transcribe(ctx, id))
		if err != nil {
			return Result{}, err
		}
		text, err := async.Await(a, normalize(ctx, t))
		if err != nil {
			return Result{}, err
		}
		...
	})
*/
package async

import (
	"errors"
	"fmt"

	"github.com/johnsiilver/asrpipe/general/promise"
	"github.com/johnsiilver/asrpipe/internal/loop"
)

// ErrPanic is wrapped by the error a body's Promise is rejected with when the body panics.
var ErrPanic = errors.New("async: body panicked")

// Awaiter is handed to a body started by Run() and is needed to Await() inside it.
type Awaiter struct {
	// resume passes control from the Loop to the body, yield passes it back.
	resume chan struct{}
	yield  chan struct{}

	finished bool
	// settle settles the Promise returned by Run() once the body has finished.
	settle func()
}

// Run starts body as a coroutine on l and returns a Promise for its result. Run must be called
// from a Loop callback or before the Loop is running.
func Run[T any](l *loop.Loop, body func(a *Awaiter) (T, error)) *promise.Promise[T] {
	if body == nil {
		panic("Run cannot be called with body == nil")
	}
	p, resolve, reject := promise.WithResolvers[T](l)

	a := &Awaiter{
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
	}

	var (
		v   T
		err error
	)
	go func() {
		<-a.resume
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
			a.finished = true
			a.yield <- struct{}{}
		}()
		v, err = body(a)
	}()

	a.settle = func() {
		if err != nil {
			reject(err)
			return
		}
		resolve(v)
	}
	a.step()
	return p
}

// step gives control to the body until it yields or finishes.
func (a *Awaiter) step() {
	a.resume <- struct{}{}
	<-a.yield
	if a.finished {
		a.settle()
	}
}

// Await suspends the body until p settles and returns its value or error.
func Await[T any](a *Awaiter, p *promise.Promise[T]) (T, error) {
	var (
		v   T
		err error
	)
	// The reaction runs on the Loop. It stores the result and hands control back to us.
	p.OnSettled(func(pv T, perr error) {
		v, err = pv, perr
		a.step()
	})

	a.yield <- struct{}{}
	<-a.resume
	return v, err
}
