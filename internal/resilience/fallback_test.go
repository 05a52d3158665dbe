package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type backend struct {
	name  string
	err   error
	calls int
}

func callBackend(b *backend) (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	return b.name, nil
}

func TestCall_PrefersFirstHealthy(t *testing.T) {
	g := NewGroup[*backend](BreakerConfig{Threshold: 5})
	a, b := &backend{name: "a"}, &backend{name: "b"}
	g.Add("a", a)
	g.Add("b", b)

	got, err := Call(context.Background(), g, nil, callBackend)
	if err != nil || got != "a" {
		t.Fatalf("got %q, %v", got, err)
	}
	if b.calls != 0 {
		t.Errorf("b called %d times", b.calls)
	}
}

func TestCall_FailsOver(t *testing.T) {
	g := NewGroup[*backend](BreakerConfig{Threshold: 5})
	a, b := &backend{name: "a", err: errBackend}, &backend{name: "b"}
	g.Add("a", a)
	g.Add("b", b)

	got, err := Call(context.Background(), g, nil, callBackend)
	if err != nil || got != "b" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestCall_AllFailedJoinsErrors(t *testing.T) {
	g := NewGroup[*backend](BreakerConfig{Threshold: 5})
	other := errors.New("quota exceeded")
	g.Add("a", &backend{err: errBackend})
	g.Add("b", &backend{err: other})

	_, err := Call(context.Background(), g, nil, callBackend)
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errBackend) || !errors.Is(err, other) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "a: ") || !strings.Contains(err.Error(), "b: ") {
		t.Errorf("err lacks member names: %v", err)
	}
}

func TestCall_SkipsOpenCircuit(t *testing.T) {
	g := NewGroup[*backend](BreakerConfig{Threshold: 1})
	a, b := &backend{name: "a", err: errBackend}, &backend{name: "b"}
	g.Add("a", a)
	g.Add("b", b)

	_, _ = Call(context.Background(), g, nil, callBackend)
	if g.States()["a"] != StateOpen {
		t.Fatalf("states = %v", g.States())
	}
	got, err := Call(context.Background(), g, nil, callBackend)
	if err != nil || got != "b" {
		t.Fatalf("got %q, %v", got, err)
	}
	if a.calls != 1 {
		t.Errorf("a called %d times, want 1", a.calls)
	}
}

func TestCall_SkipFilter(t *testing.T) {
	g := NewGroup[*backend](BreakerConfig{})
	a, b := &backend{name: "a"}, &backend{name: "b"}
	g.Add("a", a)
	g.Add("b", b)

	got, err := Call(context.Background(), g, func(x *backend) bool { return x.name == "a" }, callBackend)
	if err != nil || got != "b" || a.calls != 0 {
		t.Fatalf("got %q, %v, a.calls=%d", got, err, a.calls)
	}
}

func TestCall_CancelledContext(t *testing.T) {
	g := NewGroup[*backend](BreakerConfig{})
	a := &backend{name: "a"}
	g.Add("a", a)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Call(ctx, g, nil, callBackend); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if a.calls != 0 {
		t.Errorf("a called on cancelled context")
	}
}

func TestCall_EmptyGroup(t *testing.T) {
	g := NewGroup[*backend](BreakerConfig{})
	if _, err := Call(context.Background(), g, nil, callBackend); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("len = %d", g.Len())
	}
}
