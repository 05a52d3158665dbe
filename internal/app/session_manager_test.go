package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/iq360/internal/app"
	"github.com/MrWong99/iq360/internal/config"
	"github.com/MrWong99/iq360/internal/persona"
	"github.com/MrWong99/iq360/internal/voice"
	audiomock "github.com/MrWong99/iq360/pkg/audio/mock"
	"github.com/MrWong99/iq360/pkg/audio/playback"
	memorymock "github.com/MrWong99/iq360/pkg/memory/mock"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
	s2smock "github.com/MrWong99/iq360/pkg/provider/s2s/mock"
)

type smFixture struct {
	sm       *app.SessionManager
	provider *s2smock.Provider
	mic      *audiomock.Source
	opened   atomic.Int32
	closed   atomic.Int32
}

func newTestSessionManager(t *testing.T) *smFixture {
	t.Helper()
	reg, err := persona.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	f := &smFixture{provider: &s2smock.Provider{}, mic: &audiomock.Source{}}
	f.sm = app.NewSessionManager(app.SessionManagerConfig{
		Provider: f.provider,
		Mic:      f.mic,
		Output: func() (playback.Output, func() error, error) {
			f.opened.Add(1)
			return audiomock.NewOutput(), func() error { f.closed.Add(1); return nil }, nil
		},
		Personas:     reg,
		Audio:        config.AudioConfig{FrameSize: 512, TranscriptWindow: 5},
		SessionStore: &memorymock.SessionStore{},
	})
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionManager_StartStop(t *testing.T) {
	t.Parallel()
	f := newTestSessionManager(t)
	ctx := context.Background()

	var states atomic.Int32
	sess, err := f.sm.Start(ctx, persona.Atlas, func(ev voice.Event) {
		if ev.Kind == voice.EventState {
			states.Add(1)
		}
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !f.sm.IsActive() {
		t.Fatal("expected session to be active after Start")
	}
	info := f.sm.Info()
	if info.SessionID != sess.ID() || info.PersonaID != persona.Atlas {
		t.Errorf("info = %+v", info)
	}
	if got := len(f.provider.Calls()); got != 1 {
		t.Fatalf("Connect calls = %d, want 1", got)
	}

	if err := f.sm.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if f.sm.IsActive() {
		t.Fatal("expected session to be inactive after Stop")
	}
	if sess.State() != voice.Closed {
		t.Errorf("state = %v, want Closed", sess.State())
	}
	if f.closed.Load() != 1 {
		t.Errorf("output closed %d times, want 1", f.closed.Load())
	}
	if f.mic.Live() {
		t.Error("microphone still held after Stop")
	}
	waitFor(t, "state events", func() bool { return states.Load() >= 3 })
}

func TestSessionManager_DefaultPersona(t *testing.T) {
	t.Parallel()
	f := newTestSessionManager(t)

	if _, err := f.sm.Start(context.Background(), "", nil); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.sm.Stop(context.Background()) })
	if got := f.sm.Info().PersonaID; got != persona.Echo {
		t.Errorf("persona = %q, want %q", got, persona.Echo)
	}
}

func TestSessionManager_SecondStartFails(t *testing.T) {
	t.Parallel()
	f := newTestSessionManager(t)
	ctx := context.Background()

	if _, err := f.sm.Start(ctx, "", nil); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.sm.Stop(ctx) })
	if _, err := f.sm.Start(ctx, "", nil); !errors.Is(err, app.ErrSessionActive) {
		t.Errorf("err = %v, want ErrSessionActive", err)
	}
	if f.opened.Load() != 1 {
		t.Errorf("output opened %d times, want 1", f.opened.Load())
	}
}

func TestSessionManager_StopWithoutSession(t *testing.T) {
	t.Parallel()
	f := newTestSessionManager(t)
	if err := f.sm.Stop(context.Background()); !errors.Is(err, app.ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestSessionManager_UnknownPersona(t *testing.T) {
	t.Parallel()
	f := newTestSessionManager(t)
	if _, err := f.sm.Start(context.Background(), "nobody", nil); !errors.Is(err, persona.ErrNotFound) {
		t.Errorf("err = %v, want persona.ErrNotFound", err)
	}
	if f.opened.Load() != 0 {
		t.Error("output opened for an unknown persona")
	}
}

func TestSessionManager_ConnectFailure(t *testing.T) {
	t.Parallel()
	f := newTestSessionManager(t)
	f.provider.ConnectErr = errors.New("401 unauthorized")

	_, err := f.sm.Start(context.Background(), "", nil)
	if voice.KindOf(err) != voice.ConnectionError {
		t.Fatalf("err = %v, want ConnectionError", err)
	}
	if f.sm.IsActive() {
		t.Error("manager active after failed Start")
	}
	if f.closed.Load() != 1 {
		t.Errorf("output closed %d times, want 1", f.closed.Load())
	}
}

func TestSessionManager_RemoteCloseReleases(t *testing.T) {
	t.Parallel()
	f := newTestSessionManager(t)

	if _, err := f.sm.Start(context.Background(), "", nil); err != nil {
		t.Fatal(err)
	}
	f.provider.Last().Hangup()

	waitFor(t, "manager to release", func() bool { return !f.sm.IsActive() })
	if f.closed.Load() != 1 {
		t.Errorf("output closed %d times, want 1", f.closed.Load())
	}
	// A new session can start once the old one is gone.
	if _, err := f.sm.Start(context.Background(), "", nil); err != nil {
		t.Fatalf("restart: %v", err)
	}
	_ = f.sm.Stop(context.Background())
}

func TestSessionManager_StopAbortsConnecting(t *testing.T) {
	t.Parallel()
	f := newTestSessionManager(t)
	dialing := make(chan struct{})
	f.provider.ConnectFunc = func(ctx context.Context, _ s2s.SessionConfig) (s2s.SessionHandle, error) {
		close(dialing)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	errc := make(chan error, 1)
	go func() {
		_, err := f.sm.Start(context.Background(), persona.Echo, nil)
		errc <- err
	}()
	<-dialing

	// The handshake holds no lock the accessors need.
	if !f.sm.IsActive() {
		t.Error("connecting session not reported active")
	}
	if info := f.sm.Info(); info.PersonaID != persona.Echo || info.SessionID == "" {
		t.Errorf("info = %+v", info)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.sm.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start still blocked after Stop")
	}
	if f.sm.IsActive() {
		t.Error("manager still active")
	}
	if f.closed.Load() != 1 {
		t.Errorf("output closed %d times, want 1", f.closed.Load())
	}
}
