package callback

import (
	"context"
	"errors"
	"testing"
)

func TestOnce(t *testing.T) {
	calls := 0
	var reported []error

	h := Once(func(v int, err error) {
		calls++
		if v != 1 {
			t.Errorf("TestOnce: got v == %d, want 1", v)
		}
	}, func(err error) { reported = append(reported, err) })

	h(1, nil)
	h(2, nil)
	h(3, errors.New("late"))

	if calls != 1 {
		t.Errorf("TestOnce: handler called %d times, want 1", calls)
	}
	if len(reported) != 2 {
		t.Fatalf("TestOnce: got %d reports, want 2", len(reported))
	}
	for _, err := range reported {
		if !errors.Is(err, ErrCalledTwice) {
			t.Errorf("TestOnce: got report %v, want ErrCalledTwice", err)
		}
	}
}

func TestValueAndFail(t *testing.T) {
	ctx := context.Background()

	Value("hello")(ctx, func(v string, err error) {
		if err != nil || v != "hello" {
			t.Errorf("TestValueAndFail(Value): got (%q, %v), want (\"hello\", nil)", v, err)
		}
	})

	boom := errors.New("boom")
	Fail[string](boom)(ctx, func(v string, err error) {
		if !errors.Is(err, boom) || v != "" {
			t.Errorf("TestValueAndFail(Fail): got (%q, %v), want (\"\", boom)", v, err)
		}
	})
}
