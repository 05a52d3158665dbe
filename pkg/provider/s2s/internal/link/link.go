// Package link runs an s2s session over a JSON WebSocket. Transports supply
// a [Codec] for their wire protocol; link owns the goroutines, the outbound
// queue and the terminal-event contract of [s2s.SessionHandle].
package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/iq360/pkg/audio"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
)

// ErrMalformed marks an inbound message that could not be decoded. Such
// messages are skipped.
var ErrMalformed = errors.New("malformed message")

// Codec translates between frames, events and wire messages. Decode is only
// ever called from one goroutine, so codecs may keep per-session state.
type Codec interface {
	Encode(f audio.Frame) any
	// Decode returns the events for one message. A non-nil error other than
	// ErrMalformed ends the stream with that error.
	Decode(data []byte) ([]s2s.Event, error)
}

// Config tunes a session.
type Config struct {
	Name      string        // log and error prefix, e.g. "gemini"
	Queue     int           // outbound frame buffer
	PingEvery time.Duration // zero disables keepalive pings
}

const pingTimeout = 5 * time.Second

type session struct {
	cfg    Config
	conn   *websocket.Conn
	codec  Codec
	outbox chan audio.Frame
	events chan s2s.Event

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	failOnce sync.Once
	failure  error
}

// Start takes over conn, which must have completed the transport's setup.
func Start(conn *websocket.Conn, codec Codec, cfg Config) s2s.SessionHandle {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		cfg:    cfg,
		conn:   conn,
		codec:  codec,
		outbox: make(chan audio.Frame, max(cfg.Queue, 1)),
		events: make(chan s2s.Event, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	go s.recvLoop()
	go s.sendLoop()
	return s
}

func (s *session) fail(err error) { s.failOnce.Do(func() { s.failure = err }) }

func (s *session) recvLoop() {
	defer s.finish()
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.fail(fmt.Errorf("%s: read: %w", s.cfg.Name, err))
			}
			return
		}
		evs, err := s.codec.Decode(data)
		if errors.Is(err, ErrMalformed) {
			slog.Debug("s2s: dropping inbound message", "transport", s.cfg.Name, "err", err)
			continue
		}
		for _, ev := range evs {
			select {
			case s.events <- ev:
			case <-s.ctx.Done():
				return
			}
		}
		if err != nil {
			s.fail(err)
			return
		}
	}
}

func (s *session) sendLoop() {
	var ping <-chan time.Time
	if s.cfg.PingEvery > 0 {
		t := time.NewTicker(s.cfg.PingEvery)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ping:
			ctx, cancel := context.WithTimeout(s.ctx, pingTimeout)
			_ = s.conn.Ping(ctx)
			cancel()
		case f := <-s.outbox:
			if err := Write(s.ctx, s.conn, s.codec.Encode(f)); err != nil {
				if s.ctx.Err() == nil {
					s.fail(fmt.Errorf("%s: write: %w", s.cfg.Name, err))
					s.conn.CloseNow()
				}
				return
			}
		}
	}
}

// finish runs once, as recvLoop exits.
func (s *session) finish() {
	s.cancel()
	s.conn.CloseNow()
	s.failOnce.Do(func() {}) // a late fail from sendLoop is now a no-op
	ev := s2s.ClosedEvent()
	if s.failure != nil {
		ev = s2s.ErrorEvent(s.failure)
	}
	s.events <- ev
	close(s.events)
}

func (s *session) Send(frame audio.Frame) error {
	if s.closed.Load() || s.ctx.Err() != nil {
		return s2s.ErrClosed
	}
	select {
	case s.outbox <- frame:
		return nil
	default:
		return s2s.ErrBackpressure
	}
}

func (s *session) Events() <-chan s2s.Event { return s.events }

func (s *session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

// Write sends v as one JSON text message.
func Write(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Read receives one JSON message into v. A payload that does not decode
// yields an error wrapping [ErrMalformed].
func Read(ctx context.Context, conn *websocket.Conn, v any) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	return Unmarshal(data, v)
}

// Unmarshal decodes data into v, wrapping failures in [ErrMalformed].
func Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}
