// Package resilience guards calls to remote model backends.
//
// [Breaker] is a three-state circuit breaker that stops hammering a backend
// after repeated failures and probes it again once a cool-down has passed.
// [Group] layers ordered failover on top, one breaker per member, and
// [LLMFallback] applies that to analysis completions.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down elapses.
	StateOpen
	// StateHalfOpen lets a limited number of probes through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// Threshold is the number of consecutive failures that opens the
	// breaker. Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close
	// again. Default: 2.
	Probes int

	// OnStateChange, if set, is called after every transition. It runs
	// with the breaker unlocked.
	OnStateChange func(name string, from, to State)
}

// Breaker is a consecutive-failure circuit breaker. It is safe for
// concurrent use.
//
// Caller cancellation (context.Canceled) is not counted as a backend failure.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inflight int
	passed   int
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Name returns the configured label.
func (b *Breaker) Name() string { return b.cfg.Name }

// Do runs fn unless the breaker is open. The error from fn is returned
// unchanged.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(probe, err)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	var from State
	changed := false
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		from, changed = b.state, true
		b.state, b.inflight, b.passed = StateHalfOpen, 0, 0
	}
	switch b.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.inflight+b.passed >= b.cfg.Probes {
			err = ErrCircuitOpen
		} else {
			b.inflight++
			probe = true
		}
	}
	b.mu.Unlock()
	if changed {
		b.changed(from, StateHalfOpen)
	}
	return probe, err
}

func (b *Breaker) settle(probe bool, err error) {
	if errors.Is(err, context.Canceled) {
		if probe {
			b.mu.Lock()
			b.inflight--
			b.mu.Unlock()
		}
		return
	}

	b.mu.Lock()
	from := b.state
	if probe {
		b.inflight--
	}
	switch {
	case err != nil && (probe || b.state == StateHalfOpen):
		b.trip()
	case err != nil:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			b.trip()
		}
	case probe:
		b.passed++
		if b.passed >= b.cfg.Probes {
			b.state, b.failures = StateClosed, 0
		}
	default:
		b.failures = 0
	}
	to := b.state
	failures := b.failures
	b.mu.Unlock()

	if from != to {
		if to == StateOpen {
			slog.Warn("circuit opened", "name", b.cfg.Name, "failures", failures)
		}
		b.changed(from, to)
	}
}

// trip opens the breaker. Caller holds b.mu.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = b.cfg.Threshold
}

func (b *Breaker) changed(from, to State) {
	slog.Debug("circuit state change", "name", b.cfg.Name, "from", from, "to", to)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State reports the current state. An open breaker whose cool-down has
// elapsed reports half-open; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state, b.failures, b.inflight, b.passed = StateClosed, 0, 0, 0
	b.mu.Unlock()
	if from != StateClosed {
		b.changed(from, StateClosed)
	}
}
