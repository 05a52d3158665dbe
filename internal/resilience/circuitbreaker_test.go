package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(cfg)
	b.now = clk.Now
	return b, clk
}

func fail() error { return errBackend }
func pass() error { return nil }

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "vision"})
	if b.cfg.Threshold != 5 || b.cfg.Cooldown != 30*time.Second || b.cfg.Probes != 2 {
		t.Errorf("cfg = %+v", b.cfg)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v", b.State())
	}
	if b.Name() != "vision" {
		t.Errorf("name = %q", b.Name())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 3})

	for i := 0; i < 3; i++ {
		if err := b.Do(fail); !errors.Is(err, errBackend) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 3})
	_ = b.Do(fail)
	_ = b.Do(fail)
	_ = b.Do(pass)
	_ = b.Do(fail)
	_ = b.Do(fail)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	var transitions []string
	b, clk := newTestBreaker(BreakerConfig{
		Name:      "gemini",
		Threshold: 1,
		Cooldown:  10 * time.Second,
		Probes:    2,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s:%s->%s", name, from, to))
		},
	})

	_ = b.Do(fail)
	clk.Advance(9 * time.Second)
	if b.State() != StateOpen {
		t.Fatalf("state before cooldown = %v", b.State())
	}
	clk.Advance(time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state after cooldown = %v", b.State())
	}

	if err := b.Do(pass); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state after one probe = %v", b.State())
	}
	if err := b.Do(pass); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state after probes = %v", b.State())
	}

	want := []string{"gemini:closed->open", "gemini:open->half-open", "gemini:half-open->closed"}
	if fmt.Sprint(transitions) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Second})
	_ = b.Do(fail)
	_ = b.Do(fail)
	clk.Advance(time.Second)

	if err := b.Do(fail); !errors.Is(err, errBackend) {
		t.Fatalf("probe err = %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	// Cool-down restarts from the failed probe.
	clk.Advance(500 * time.Millisecond)
	if err := b.Do(pass); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second, Probes: 1})
	_ = b.Do(fail)
	clk.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Do(pass); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_CancellationNotCounted(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 1})
	err := b.Do(func() error { return fmt.Errorf("vision: %w", context.Canceled) })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	_ = b.Do(fail)
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v", b.State())
	}
	if err := b.Do(pass); err != nil {
		t.Fatal(err)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("State(%d) = %q, want %q", int(s), s.String(), want)
		}
	}
}

func TestBreaker_Concurrent(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = b.Do(fail)
			} else {
				_ = b.Do(pass)
			}
		}(i)
	}
	wg.Wait()
	if b.State() != StateClosed {
		t.Errorf("state = %v", b.State())
	}
}
