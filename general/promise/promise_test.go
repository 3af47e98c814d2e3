package promise

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/johnsiilver/asrpipe/general/callback"
	"github.com/johnsiilver/asrpipe/internal/loop"
	"github.com/kylelemons/godebug/pretty"
)

func newLoop() *loop.Loop {
	return loop.New(loop.NewVirtualClock(time.Time{}))
}

// after returns a Promise fulfilled with v once d has passed on l.
func after[T any](l *loop.Loop, d time.Duration, v T) *Promise[T] {
	return New(l, func(resolve func(T), reject func(error)) {
		l.AfterFunc(d, func() { resolve(v) })
	})
}

func failAfter[T any](l *loop.Loop, d time.Duration, err error) *Promise[T] {
	return New(l, func(resolve func(T), reject func(error)) {
		l.AfterFunc(d, func() { reject(err) })
	})
}

func run(t *testing.T, l *loop.Loop) {
	t.Helper()
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Loop.Run() error: %s", err)
	}
}

func TestThenWaitsOnReturnedPromise(t *testing.T) {
	l := newLoop()

	var log []string
	p := Then(after(l, 2*time.Second, 1), func(v int) *Promise[string] {
		log = append(log, "step1 at "+l.Elapsed().String())
		return after(l, 1500*time.Millisecond, strconv.Itoa(v+1))
	})
	q := Then(p, func(s string) *Promise[string] {
		log = append(log, "step2 at "+l.Elapsed().String())
		return after(l, 2*time.Second, s+"!")
	})

	var got string
	q.OnSettled(func(v string, err error) {
		if err != nil {
			t.Errorf("TestThenWaitsOnReturnedPromise: got err == %s", err)
		}
		got = v
		log = append(log, "done at "+l.Elapsed().String())
	})

	run(t, l)

	if got != "2!" {
		t.Errorf("TestThenWaitsOnReturnedPromise: got %q, want %q", got, "2!")
	}
	want := []string{"step1 at 2s", "step2 at 3.5s", "done at 5.5s"}
	if diff := pretty.Compare(want, log); diff != "" {
		t.Errorf("TestThenWaitsOnReturnedPromise: -want/+got:\n%s", diff)
	}
}

func TestFirstFailureSkipsRemainingSteps(t *testing.T) {
	l := newLoop()
	boom := errors.New("boom")

	secondRan, thirdRan := false, false
	p := Then(failAfter[int](l, time.Second, boom), func(v int) *Promise[int] {
		secondRan = true
		return Resolve(l, v)
	})
	p = Then(p, func(v int) *Promise[int] {
		thirdRan = true
		return Resolve(l, v)
	})

	var caught error
	recovered := p.Catch(func(err error) (int, error) {
		caught = err
		return -1, nil
	})

	run(t, l)

	if secondRan || thirdRan {
		t.Errorf("TestFirstFailureSkipsRemainingSteps: steps after the failure ran (second=%v, third=%v)", secondRan, thirdRan)
	}
	if !errors.Is(caught, boom) {
		t.Errorf("TestFirstFailureSkipsRemainingSteps: Catch got %v, want boom", caught)
	}
	v, err := recovered.Result()
	if err != nil || v != -1 {
		t.Errorf("TestFirstFailureSkipsRemainingSteps: recovered Result(): got (%d, %v), want (-1, nil)", v, err)
	}
}

func TestSettlesOnce(t *testing.T) {
	l := newLoop()

	p, resolve, reject := WithResolvers[string](l)
	resolve("first")
	resolve("second")
	reject(errors.New("late"))

	v, err := p.Result()
	if err != nil || v != "first" {
		t.Errorf("TestSettlesOnce: got (%q, %v), want (\"first\", nil)", v, err)
	}
	if p.State() != Fulfilled {
		t.Errorf("TestSettlesOnce: got state %s, want %s", p.State(), Fulfilled)
	}
}

func TestReactionsAreAsynchronous(t *testing.T) {
	l := newLoop()

	var log []string
	p := Resolve(l, 1)
	p.OnSettled(func(int, error) { log = append(log, "reaction") })
	log = append(log, "after attach")

	run(t, l)

	want := []string{"after attach", "reaction"}
	if diff := pretty.Compare(want, log); diff != "" {
		t.Errorf("TestReactionsAreAsynchronous: -want/+got:\n%s", diff)
	}
}

func TestResultPending(t *testing.T) {
	l := newLoop()
	p, _, _ := WithResolvers[int](l)
	if _, err := p.Result(); !errors.Is(err, ErrPending) {
		t.Errorf("TestResultPending: got err == %v, want ErrPending", err)
	}
}

func TestMapAndFinally(t *testing.T) {
	l := newLoop()

	finallyRan := false
	p := Map(after(l, time.Second, 21), func(v int) (int, error) { return v * 2, nil }).
		Finally(func() { finallyRan = true })

	bad := Map(Resolve(l, 1), func(int) (int, error) { return 0, errors.New("bad") })

	run(t, l)

	if v, err := p.Result(); err != nil || v != 42 {
		t.Errorf("TestMapAndFinally: got (%d, %v), want (42, nil)", v, err)
	}
	if !finallyRan {
		t.Errorf("TestMapAndFinally: Finally func did not run")
	}
	if _, err := bad.Result(); err == nil {
		t.Errorf("TestMapAndFinally: got err == nil, want err != nil")
	}
}

func TestAll(t *testing.T) {
	tests := []struct {
		desc    string
		ps      func(l *loop.Loop) []*Promise[int]
		want    []int
		wantErr bool
		elapsed time.Duration
	}{
		{
			desc:    "Empty",
			ps:      func(l *loop.Loop) []*Promise[int] { return nil },
			want:    []int{},
			elapsed: 0,
		},
		{
			desc: "Runs concurrently, keeps order",
			ps: func(l *loop.Loop) []*Promise[int] {
				return []*Promise[int]{after(l, 2*time.Second, 1), after(l, time.Second, 2), after(l, 3*time.Second, 3)}
			},
			want:    []int{1, 2, 3},
			elapsed: 3 * time.Second,
		},
		{
			desc: "First rejection wins",
			ps: func(l *loop.Loop) []*Promise[int] {
				return []*Promise[int]{after(l, 2*time.Second, 1), failAfter[int](l, time.Second, errors.New("boom"))}
			},
			wantErr: true,
			elapsed: 2 * time.Second,
		},
	}

	for _, test := range tests {
		l := newLoop()
		p := All(l, test.ps(l)...)
		run(t, l)

		got, err := p.Result()
		switch {
		case err == nil && test.wantErr:
			t.Errorf("TestAll(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.wantErr:
			t.Errorf("TestAll(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestAll(%s): -want/+got:\n%s", test.desc, diff)
		}
		if l.Elapsed() != test.elapsed {
			t.Errorf("TestAll(%s): elapsed %v, want %v", test.desc, l.Elapsed(), test.elapsed)
		}
	}
}

func TestFromTask(t *testing.T) {
	l := newLoop()

	var task callback.Task[string] = func(ctx context.Context, done callback.Handler[string]) {
		l.AfterFunc(time.Second, func() { done("ok", nil) })
	}
	p := FromTask(l, context.Background(), task)
	run(t, l)

	if v, err := p.Result(); err != nil || v != "ok" {
		t.Errorf("TestFromTask: got (%q, %v), want (\"ok\", nil)", v, err)
	}
}

func TestExecutorPanicRejects(t *testing.T) {
	l := newLoop()
	p := New(l, func(resolve func(int), reject func(error)) { panic("oops") })
	if _, err := p.Result(); err == nil {
		t.Errorf("TestExecutorPanicRejects: got err == nil, want err != nil")
	}
}

func TestThenNilPromise(t *testing.T) {
	l := newLoop()
	p := Then(Resolve(l, 1), func(int) *Promise[int] { return nil })
	run(t, l)
	if _, err := p.Result(); !errors.Is(err, ErrNilPromise) {
		t.Errorf("TestThenNilPromise: got err == %v, want ErrNilPromise", err)
	}
}

var result int

func BenchmarkThenChain(b *testing.B) {
	b.ReportAllocs()

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l := newLoop()
		p := Resolve(l, 0)
		for x := 0; x < 3; x++ {
			p = Then(p, func(v int) *Promise[int] { return after(l, time.Second, v+1) })
		}
		if err := l.Run(ctx); err != nil {
			panic(err)
		}
		result, _ = p.Result()
	}
}
