// Package openai is the OpenAI Realtime transport. The Realtime API speaks
// 24 kHz PCM16 both ways, so microphone frames are resampled on the way up.
// Server-side VAD drives barge-in: speech_started surfaces as
// [s2s.EventInterrupted].
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/iq360/pkg/provider/s2s"
	"github.com/MrWong99/iq360/pkg/provider/s2s/internal/link"
)

var _ s2s.Provider = (*Provider)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// realtimeRate is the only PCM16 rate the endpoint accepts.
	realtimeRate = 24000
)

// Provider dials Realtime sessions.
type Provider struct {
	apiKey       string
	model        string
	baseURL      string
	asrModel     string
	queueSize    int
	setupTimeout time.Duration
}

type Option func(*Provider)

func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithBaseURL replaces the wss:// endpoint, e.g. with a test server.
func WithBaseURL(u string) Option { return func(p *Provider) { p.baseURL = u } }

// WithTranscriptionModel picks the model that transcribes the caller when
// input transcription is on. Default whisper-1.
func WithTranscriptionModel(model string) Option {
	return func(p *Provider) { p.asrModel = model }
}

// WithQueueSize is the number of frames Send buffers before it reports
// [s2s.ErrBackpressure]. Non-positive values are ignored.
func WithQueueSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithSetupTimeout bounds the wait for session.updated. Non-positive values
// are ignored.
func WithSetupTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.setupTimeout = d
		}
	}
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		baseURL:      defaultBaseURL,
		asrModel:     "whisper-1",
		queueSize:    32,
		setupTimeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

var voices = []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"}

func (p *Provider) Capabilities() s2s.Capabilities {
	caps := s2s.Capabilities{
		MaxSessionDuration: 30 * time.Minute,
		InputSampleRate:    realtimeRate,
		OutputSampleRate:   realtimeRate,
	}
	for _, v := range voices {
		caps.Voices = append(caps.Voices, s2s.Voice{ID: v, Name: strings.ToUpper(v[:1]) + v[1:]})
	}
	return caps
}

// Connect dials the endpoint and returns once the server confirmed the
// session.update. The returned session outlives ctx.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	endpoint := p.baseURL + "?" + url.Values{"model": {p.model}}.Encode()
	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": {"Bearer " + p.apiKey},
			"OpenAI-Beta":   {"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}
	conn.SetReadLimit(4 << 20)

	if err := p.configure(ctx, conn, cfg); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("openai: session update: %w", err)
	}
	return link.Start(conn, &codec{remoteText: cfg.OutputTranscription}, link.Config{
		Name:  "openai",
		Queue: p.queueSize,
	}), nil
}

// configure sends session.update and waits for the verdict. session.created
// and anything else that arrives first is skipped.
func (p *Provider) configure(ctx context.Context, conn *websocket.Conn, cfg s2s.SessionConfig) error {
	ctx, cancel := context.WithTimeout(ctx, p.setupTimeout)
	defer cancel()
	if err := link.Write(ctx, conn, p.sessionUpdate(cfg)); err != nil {
		return err
	}
	for {
		var ev serverEvent
		if err := link.Read(ctx, conn, &ev); err != nil {
			if errors.Is(err, link.ErrMalformed) {
				continue
			}
			return err
		}
		switch ev.Type {
		case "session.updated":
			return nil
		case "error":
			return ev.err()
		}
	}
}
