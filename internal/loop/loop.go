/*
Package loop provides a single-threaded executor that runs tasks and timer callbacks one at a
time on the goroutine that calls Run().

Let's define some terms:

	Task: A func() that is ready to run. Tasks run in the order they were posted.
	Timer: A func() that becomes a Task once its deadline has passed on the Loop's Clock.
	Clock: The source of time. RealClock uses wall time, VirtualClock jumps to the next deadline.

	- Nothing the Loop runs ever runs concurrently with anything else the Loop runs, so state only
	  touched from loop callbacks needs no locking.
	- Post() and Hold() are safe to call from any goroutine. AfterFunc() and Timer.Stop() are too,
	  but are meant to be called from loop callbacks.
	- Run() returns once there are no ready tasks, no timers and no holds.

Example:

	l := loop.New(loop.NewVirtualClock(time.Time{}))
	l.AfterFunc(2*time.Second, func() {
		fmt.Println("fired at", l.Elapsed())
	})
	fmt.Println("scheduled")
	if err := l.Run(ctx); err != nil {
		...
	}

Output:

	scheduled
	fired at 2s
*/
package loop

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Loop is a single-threaded executor.
type Loop struct {
	clock Clock
	start time.Time

	mu     sync.Mutex
	ready  []func()
	timers timerHeap
	seq    uint64
	holds  int
	wake   chan struct{}

	running bool
}

// New creates a new Loop using clock. If clock is nil, RealClock is used.
func New(clock Clock) *Loop {
	if clock == nil {
		clock = RealClock{}
	}
	return &Loop{
		clock: clock,
		start: clock.Now(),
		wake:  make(chan struct{}, 1),
	}
}

// Now returns the current time on the Loop's Clock.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Elapsed returns how much time has passed on the Loop's Clock since New() was called.
func (l *Loop) Elapsed() time.Duration {
	return l.clock.Now().Sub(l.start)
}

// Post schedules fn to run on the Loop as soon as all previously posted tasks have run.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		panic("Post cannot be called with fn == nil")
	}
	l.mu.Lock()
	l.ready = append(l.ready, fn)
	l.mu.Unlock()
	l.signal()
}

// Hold keeps Run() from returning until the returned release func is called. This is used when
// something outside the Loop may still Post() to it. release may be called more than once.
func (l *Loop) Hold() (release func()) {
	l.mu.Lock()
	l.holds++
	l.mu.Unlock()

	once := sync.Once{}
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.holds--
			l.mu.Unlock()
			l.signal()
		})
	}
}

// AfterFunc schedules fn to run on the Loop after d has passed. Timers with the same deadline fire
// in the order they were scheduled.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	if fn == nil {
		panic("AfterFunc cannot be called with fn == nil")
	}
	if d < 0 {
		d = 0
	}

	l.mu.Lock()
	l.seq++
	t := &Timer{loop: l, when: l.clock.Now().Add(d), seq: l.seq, fn: fn}
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	l.signal()
	return t
}

// Run executes tasks and timers until there is nothing left to do or ctx is done. Run must not
// be called concurrently with itself.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		panic("Loop.Run() called while already running")
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fn, wait, idle := l.next()
		switch {
		case fn != nil:
			fn()
		case idle:
			return nil
		case wait < 0:
			// Only an outside Post() or a release can give us more work.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.wake:
			}
		default:
			if err := l.clock.Wait(ctx, wait, l.wake); err != nil {
				return err
			}
		}
	}
}

// next returns the next task to run. If there is none, it returns how long until the next timer
// fires or idle if there is nothing pending at all. A wait of -1 means block until woken.
func (l *Loop) next() (fn func(), wait time.Duration, idle bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.ready) > 0 {
		fn = l.ready[0]
		l.ready[0] = nil
		l.ready = l.ready[1:]
		return fn, 0, false
	}

	if len(l.timers) > 0 {
		t := l.timers[0]
		wait = t.when.Sub(l.clock.Now())
		if wait <= 0 {
			heap.Pop(&l.timers)
			t.fired = true
			return t.fn, 0, false
		}
		return nil, wait, false
	}

	if l.holds > 0 {
		return nil, -1, false
	}
	return nil, 0, true
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Timer is a callback scheduled with Loop.AfterFunc().
type Timer struct {
	loop  *Loop
	when  time.Time
	seq   uint64
	fn    func()
	index int
	fired bool
}

// Stop prevents the Timer from firing. It returns false if the Timer already fired or was stopped.
func (t *Timer) Stop() bool {
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()

	if t.fired || t.index < 0 {
		return false
	}
	heap.Remove(&l.timers, t.index)
	return true
}

// timerHeap orders Timers by deadline, then by the order they were scheduled.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
