package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
)

func TestTimersFireInDeadlineOrder(t *testing.T) {
	l := New(NewVirtualClock(time.Time{}))

	type fired struct {
		Name string
		At   time.Duration
	}
	var got []fired
	record := func(name string) func() {
		return func() { got = append(got, fired{Name: name, At: l.Elapsed()}) }
	}

	l.AfterFunc(2*time.Second, record("a"))
	l.AfterFunc(1500*time.Millisecond, record("b"))
	l.AfterFunc(2*time.Second, record("c")) // Same deadline as "a", scheduled after it.
	l.Post(record("posted"))

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("TestTimersFireInDeadlineOrder: Run() error: %s", err)
	}

	want := []fired{
		{Name: "posted", At: 0},
		{Name: "b", At: 1500 * time.Millisecond},
		{Name: "a", At: 2 * time.Second},
		{Name: "c", At: 2 * time.Second},
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestTimersFireInDeadlineOrder: -want/+got:\n%s", diff)
	}
}

func TestNestedTimersAccumulate(t *testing.T) {
	l := New(NewVirtualClock(time.Time{}))

	var at []time.Duration
	l.AfterFunc(2*time.Second, func() {
		at = append(at, l.Elapsed())
		l.AfterFunc(1500*time.Millisecond, func() {
			at = append(at, l.Elapsed())
			l.AfterFunc(2*time.Second, func() {
				at = append(at, l.Elapsed())
			})
		})
	})

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("TestNestedTimersAccumulate: Run() error: %s", err)
	}

	want := []time.Duration{2 * time.Second, 3500 * time.Millisecond, 5500 * time.Millisecond}
	if diff := pretty.Compare(want, at); diff != "" {
		t.Errorf("TestNestedTimersAccumulate: -want/+got:\n%s", diff)
	}
}

func TestTimerStop(t *testing.T) {
	l := New(NewVirtualClock(time.Time{}))

	ran := false
	timer := l.AfterFunc(time.Second, func() { ran = true })
	other := l.AfterFunc(2*time.Second, func() {})

	if !timer.Stop() {
		t.Errorf("TestTimerStop: first Stop(): got false, want true")
	}
	if timer.Stop() {
		t.Errorf("TestTimerStop: second Stop(): got true, want false")
	}

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("TestTimerStop: Run() error: %s", err)
	}
	if ran {
		t.Errorf("TestTimerStop: stopped timer fired")
	}
	if other.Stop() {
		t.Errorf("TestTimerStop: Stop() after fire: got true, want false")
	}
	if l.Elapsed() != 2*time.Second {
		t.Errorf("TestTimerStop: Elapsed(): got %v, want 2s", l.Elapsed())
	}
}

func TestHoldKeepsLoopAlive(t *testing.T) {
	l := New(RealClock{})

	release := l.Hold()
	got := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Post(func() {
			close(got)
			release()
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.Run(ctx); err != nil {
		t.Fatalf("TestHoldKeepsLoopAlive: Run() error: %s", err)
	}
	select {
	case <-got:
	default:
		t.Errorf("TestHoldKeepsLoopAlive: Run() returned before the posted task ran")
	}
}

func TestHoldWithVirtualClockDoesNotAdvanceTime(t *testing.T) {
	l := New(NewVirtualClock(time.Time{}))

	release := l.Hold()
	go func() {
		time.Sleep(5 * time.Millisecond)
		release()
	}()

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("TestHoldWithVirtualClockDoesNotAdvanceTime: Run() error: %s", err)
	}
	if l.Elapsed() != 0 {
		t.Errorf("TestHoldWithVirtualClockDoesNotAdvanceTime: Elapsed(): got %v, want 0", l.Elapsed())
	}
}

func TestRunContextCancel(t *testing.T) {
	l := New(RealClock{})
	l.AfterFunc(time.Hour, func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("TestRunContextCancel: got err == %v, want context.DeadlineExceeded", err)
	}
}

func TestRealClockTimer(t *testing.T) {
	l := New(RealClock{})

	start := time.Now()
	var firedAfter time.Duration
	l.AfterFunc(20*time.Millisecond, func() { firedAfter = time.Since(start) })

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("TestRealClockTimer: Run() error: %s", err)
	}
	if firedAfter < 20*time.Millisecond {
		t.Errorf("TestRealClockTimer: timer fired after %v, want >= 20ms", firedAfter)
	}
}
