// Package mock fakes the s2s transport for tests. [Provider] hands out
// [Session]s that the test drives from the remote side:
//
//	p := &mock.Provider{}
//	// ... code under test calls p.Connect
//	remote := p.Last()
//	remote.Emit(s2s.TranscriptEvent(s2s.SpeakerRemote, "hello"))
//	remote.Hangup()
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/iq360/pkg/audio"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
)

var (
	_ s2s.Provider      = (*Provider)(nil)
	_ s2s.SessionHandle = (*Session)(nil)
)

// ConnectCall is one recorded Connect.
type ConnectCall struct {
	Ctx context.Context
	Cfg s2s.SessionConfig
}

// Provider records Connect calls. Configure it before first use.
type Provider struct {
	// ConnectFunc replaces the default behaviour when set.
	ConnectFunc func(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error)
	// ConnectErr fails Connect.
	ConnectErr error
	Caps       s2s.Capabilities

	mu       sync.Mutex
	calls    []ConnectCall
	sessions []*Session
}

// Connect returns a fresh [Session] unless ConnectFunc or ConnectErr says
// otherwise.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	p.calls = append(p.calls, ConnectCall{Ctx: ctx, Cfg: cfg})
	p.mu.Unlock()

	if p.ConnectFunc != nil {
		return p.ConnectFunc(ctx, cfg)
	}
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	s := NewSession()
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

func (p *Provider) Capabilities() s2s.Capabilities { return p.Caps }

func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// Last is the newest session Connect created, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.sessions); n > 0 {
		return p.sessions[n-1]
	}
	return nil
}

// Session keeps the stream contract: at most one terminal event, after
// which the channel is closed and Send reports [s2s.ErrClosed].
type Session struct {
	// SendErr fails Send while the session is open.
	SendErr error

	mu     sync.Mutex
	events chan s2s.Event
	ended  bool
	sent   []audio.Frame
	closes int
}

func NewSession() *Session {
	return &Session{events: make(chan s2s.Event, 256)}
}

// Emit delivers ev as if the remote sent it. Terminal events end the
// stream; anything after the end is dropped.
func (s *Session) Emit(ev s2s.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.events <- ev
	if ev.Terminal() {
		s.ended = true
		close(s.events)
	}
}

// Fail ends the stream with an error event.
func (s *Session) Fail(err error) { s.Emit(s2s.ErrorEvent(err)) }

// Hangup ends the stream the way a remote close does.
func (s *Session) Hangup() { s.Emit(s2s.ClosedEvent()) }

func (s *Session) Send(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.ended:
		return s2s.ErrClosed
	case s.SendErr != nil:
		return s.SendErr
	}
	s.sent = append(s.sent, frame)
	return nil
}

// Frames lists the frames Send accepted.
func (s *Session) Frames() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

func (s *Session) Events() <-chan s2s.Event { return s.events }

// Close counts the call and hangs up.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.Hangup()
	return nil
}

// Closes reports how often Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
