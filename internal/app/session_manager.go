package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/iq360/internal/config"
	"github.com/MrWong99/iq360/internal/observe"
	"github.com/MrWong99/iq360/internal/persona"
	"github.com/MrWong99/iq360/internal/voice"
	"github.com/MrWong99/iq360/pkg/audio/capture"
	"github.com/MrWong99/iq360/pkg/audio/playback"
	"github.com/MrWong99/iq360/pkg/memory"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
)

// ErrSessionActive is returned by Start while another session is running.
var ErrSessionActive = errors.New("app: a voice session is already active")

// ErrNoSession is returned by Stop when nothing is running.
var ErrNoSession = errors.New("app: no active voice session")

// SessionInfo holds metadata about the active voice session.
type SessionInfo struct {
	SessionID string
	PersonaID string
	StartedAt time.Time
}

// OutputFunc opens the playback device for one session. The returned close
// function releases it.
type OutputFunc func() (playback.Output, func() error, error)

// SessionManagerConfig holds the dependencies of a [SessionManager].
type SessionManagerConfig struct {
	Provider s2s.Provider
	Mic      capture.Source
	Output   OutputFunc
	Personas *persona.Registry
	Audio    config.AudioConfig

	// SessionStore, if set, receives every transcript line.
	SessionStore memory.SessionStore
	Metrics      *observe.Metrics
}

// SessionManager runs at most one voice session at a time. All exported
// methods are safe for concurrent use.
type SessionManager struct {
	cfg SessionManagerConfig

	mu          sync.Mutex
	sess        *voice.Session
	closeOutput func() error
	info        SessionInfo
}

// NewSessionManager returns an idle manager.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{cfg: cfg}
}

// Start opens a session with the persona personaID; an empty ID selects the
// registry default. onEvent, if non-nil, is installed before the session
// opens so it observes every state change.
//
// The session counts as active from the moment the handshake starts, so a
// concurrent Stop aborts a connecting session. The manager forgets the
// session once it ends, whether through Stop, a remote close or a transport
// error.
func (sm *SessionManager) Start(ctx context.Context, personaID string, onEvent func(voice.Event)) (*voice.Session, error) {
	p := sm.cfg.Personas.Default()
	if personaID != "" {
		var err error
		if p, err = sm.cfg.Personas.Get(personaID); err != nil {
			return nil, err
		}
	}

	sm.mu.Lock()
	if sm.sess != nil {
		id := sm.info.SessionID
		sm.mu.Unlock()
		return nil, fmt.Errorf("%w (id=%s)", ErrSessionActive, id)
	}

	out, closeOutput, err := sm.cfg.Output()
	if err != nil {
		sm.mu.Unlock()
		return nil, &voice.Error{Kind: voice.PermissionDenied, Err: fmt.Errorf("open output: %w", err)}
	}

	opts := []voice.Option{
		voice.WithFrameSize(sm.cfg.Audio.FrameSize),
		voice.WithTranscriptWindow(sm.cfg.Audio.TranscriptWindow),
	}
	if sm.cfg.Metrics != nil {
		opts = append(opts, voice.WithMetrics(sm.cfg.Metrics))
	}
	if sm.cfg.SessionStore != nil {
		opts = append(opts, voice.WithSessionStore(sm.cfg.SessionStore))
	}
	sess := voice.New(sm.cfg.Provider, sm.cfg.Mic, out, opts...)
	if onEvent != nil {
		sess.OnEvent(onEvent)
	}

	// The slot is taken before the handshake so Stop can abort it.
	sm.sess = sess
	sm.closeOutput = closeOutput
	sm.info = SessionInfo{
		SessionID: sess.ID(),
		PersonaID: p.ID,
		StartedAt: time.Now().UTC(),
	}
	sm.mu.Unlock()

	if err := sess.Open(ctx, p); err != nil {
		sm.mu.Lock()
		if sm.sess == sess {
			sm.release()
		}
		sm.mu.Unlock()
		return nil, err
	}
	go sm.reap(sess)

	slog.Info("voice session started", "session_id", sess.ID(), "persona", p.ID)
	return sess, nil
}

// reap releases the output once sess ends on its own.
func (sm *SessionManager) reap(sess *voice.Session) {
	<-sess.Done()
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.sess != sess {
		return
	}
	sm.release()
}

// release must be called with sm.mu held.
func (sm *SessionManager) release() {
	if sm.closeOutput != nil {
		if err := sm.closeOutput(); err != nil {
			slog.Warn("close output", "session_id", sm.info.SessionID, "err", err)
		}
	}
	sm.sess = nil
	sm.closeOutput = nil
	sm.info = SessionInfo{}
}

// Stop closes the active session and waits for it to release its resources
// or for ctx to expire.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	sess := sm.sess
	info := sm.info
	sm.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	_ = sess.Close()
	select {
	case <-sess.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	sm.mu.Lock()
	if sm.sess == sess {
		sm.release()
	}
	sm.mu.Unlock()

	slog.Info("voice session stopped",
		"session_id", info.SessionID,
		"duration", time.Since(info.StartedAt).Round(time.Second),
	)
	return nil
}

// IsActive reports whether a session is running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.sess != nil
}

// Info returns metadata about the active session. The zero value means no
// session is running.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}
