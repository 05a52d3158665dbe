package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed wraps the combined error when no member of a [Group] served a
// call.
var ErrAllFailed = errors.New("resilience: all backends failed")

// errSkipped marks a member the caller chose not to try.
var errSkipped = errors.New("skipped")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group holds an ordered list of interchangeable backends, each behind its
// own [Breaker]. Members are added before first use; calls are safe for
// concurrent use afterwards.
type Group[T any] struct {
	cfg     BreakerConfig
	members []member[T]
}

// NewGroup returns a group whose members share cfg (with Name replaced per
// member).
func NewGroup[T any](cfg BreakerConfig) *Group[T] {
	return &Group[T]{cfg: cfg}
}

// Add appends a backend. Earlier members are preferred.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Len returns the number of members.
func (g *Group[T]) Len() int { return len(g.members) }

// States maps member name to breaker state.
func (g *Group[T]) States() map[string]State {
	out := make(map[string]State, len(g.members))
	for _, m := range g.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

// Call tries fn on each member in order and returns the first success.
// skip, if non-nil, filters members before their breaker is consulted.
// A cancelled ctx stops the walk early.
func Call[T, R any](ctx context.Context, g *Group[T], skip func(T) bool, fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, m := range g.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if skip != nil && skip(m.value) {
			errs = append(errs, fmt.Errorf("%s: %w", m.name, errSkipped))
			continue
		}
		var out R
		err := m.breaker.Do(func() error {
			var err error
			out, err = fn(m.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("backend skipped, circuit open", "backend", m.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	if len(errs) == 0 {
		return zero, fmt.Errorf("%w: empty group", ErrAllFailed)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
