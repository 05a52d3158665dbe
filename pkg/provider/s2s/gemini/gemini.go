// Package gemini is the Gemini Live transport: one BidiGenerateContent
// WebSocket per session. Microphone frames go up as base64 PCM media chunks;
// agent speech, transcripts and barge-in notices come back as [s2s.Event]s
// in arrival order.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/iq360/pkg/audio"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
	"github.com/MrWong99/iq360/pkg/provider/s2s/internal/link"
)

var _ s2s.Provider = (*Provider)(nil)

const (
	defaultModel   = "gemini-2.5-flash-native-audio-preview-12-2025"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	bidiPath       = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// maxMessage bounds one inbound message; audio turns can be large.
	maxMessage = 4 << 20
)

// Provider dials Gemini Live sessions.
type Provider struct {
	apiKey       string
	model        string
	baseURL      string
	queueSize    int
	setupTimeout time.Duration
}

type Option func(*Provider)

func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithBaseURL replaces the wss:// endpoint, e.g. with a test server.
func WithBaseURL(u string) Option { return func(p *Provider) { p.baseURL = u } }

// WithQueueSize is the number of frames Send buffers before it reports
// [s2s.ErrBackpressure]. Non-positive values are ignored.
func WithQueueSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithSetupTimeout bounds the setup handshake. Non-positive values are
// ignored.
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
		queueSize:    32,
		setupTimeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

var prebuiltVoices = []string{"Aoede", "Charon", "Fenrir", "Kore", "Puck"}

func (p *Provider) Capabilities() s2s.Capabilities {
	voices := make([]s2s.Voice, len(prebuiltVoices))
	for i, v := range prebuiltVoices {
		voices[i] = s2s.Voice{ID: v, Name: v}
	}
	return s2s.Capabilities{
		MaxSessionDuration: 15 * time.Minute,
		InputSampleRate:    audio.CaptureSampleRate,
		OutputSampleRate:   audio.PlaybackSampleRate,
		Voices:             voices,
	}
}

// Connect dials the endpoint and returns after the server acknowledged the
// setup. The returned session outlives ctx.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	endpoint := p.baseURL + bidiPath + "?" + url.Values{"key": {p.apiKey}}.Encode()
	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{"Content-Type": {"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	conn.SetReadLimit(maxMessage)

	if err := p.handshake(ctx, conn, cfg); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}
	return link.Start(conn, codec{}, link.Config{
		Name:      "gemini",
		Queue:     p.queueSize,
		PingEvery: 20 * time.Second,
	}), nil
}

func (p *Provider) handshake(ctx context.Context, conn *websocket.Conn, cfg s2s.SessionConfig) error {
	ctx, cancel := context.WithTimeout(ctx, p.setupTimeout)
	defer cancel()
	if err := link.Write(ctx, conn, newSetup(p.model, cfg)); err != nil {
		return err
	}
	// Anything before the acknowledgement is ignored.
	for {
		var msg serverMessage
		if err := link.Read(ctx, conn, &msg); err != nil {
			if errors.Is(err, link.ErrMalformed) {
				continue
			}
			return err
		}
		switch {
		case msg.Error != nil:
			return msg.Error
		case msg.SetupComplete != nil:
			return nil
		}
	}
}
