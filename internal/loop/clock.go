package loop

import (
	"context"
	"sync"
	"time"
)

// Clock provides the Loop with a notion of time. Wait is only ever called from the
// goroutine running Loop.Run.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Wait pauses until d has passed, wake receives or ctx is done. Returning early
	// because of wake is not an error.
	Wait(ctx context.Context, d time.Duration, wake <-chan struct{}) error
}

// RealClock is a Clock backed by wall time.
type RealClock struct{}

// Now implements Clock.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// Wait implements Clock.Wait().
func (RealClock) Wait(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
	case <-timer.C:
	}
	return nil
}

// VirtualClock is a Clock that never sleeps. Wait moves the clock forward by the
// full duration immediately, so a pipeline that would take seconds of wall time
// completes instantly while still observing the same simulated timeline.
type VirtualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewVirtualClock returns a VirtualClock starting at start. A zero start uses the Unix epoch.
func NewVirtualClock(start time.Time) *VirtualClock {
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	return &VirtualClock{now: start}
}

// Now implements Clock.Now().
func (v *VirtualClock) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Advance moves the clock forward by d.
func (v *VirtualClock) Advance(d time.Duration) {
	v.mu.Lock()
	v.now = v.now.Add(d)
	v.mu.Unlock()
}

// Wait implements Clock.Wait().
func (v *VirtualClock) Wait(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Work posted from another goroutine must be seen before time jumps.
	select {
	case <-wake:
		return nil
	default:
	}
	v.Advance(d)
	return nil
}
