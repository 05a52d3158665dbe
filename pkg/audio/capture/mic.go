package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/iq360/pkg/audio"
)

// Compile-time assertion that Mic satisfies Source.
var _ Source = (*Mic)(nil)

// ── Options ────────────────────────────────────────────────────────────────────

// MicOption configures a [Mic].
type MicOption func(*Mic)

// WithSampleRate sets the capture rate. Default: 16000.
func WithSampleRate(rate int) MicOption {
	return func(m *Mic) {
		if rate > 0 {
			m.rate = rate
		}
	}
}

// WithFramesPerBuffer sets the device buffer size in samples. Default: 1024.
func WithFramesPerBuffer(n int) MicOption {
	return func(m *Mic) {
		if n > 0 {
			m.framesPerBuffer = n
		}
	}
}

// WithQueueSize sets how many sample blocks may wait for the consumer before
// new blocks are dropped. Default: 32.
func WithQueueSize(n int) MicOption {
	return func(m *Mic) {
		if n > 0 {
			m.queue = n
		}
	}
}

// ── Mic ────────────────────────────────────────────────────────────────────────

// Mic captures mono audio from the host's default input device via portaudio.
type Mic struct {
	rate            int
	framesPerBuffer int
	queue           int

	mu     sync.Mutex
	active *micStream
}

// NewMic returns a Mic with the given options applied.
func NewMic(opts ...MicOption) *Mic {
	m := &Mic{
		rate:            audio.CaptureSampleRate,
		framesPerBuffer: 1024,
		queue:           32,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open acquires the default input device. Any failure to open or start the
// device is reported as [ErrPermissionDenied]; a second Open while a stream
// is live returns [ErrBusy].
func (m *Mic) Open(ctx context.Context) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, ErrBusy
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrPermissionDenied, err)
	}

	buf := make([]float32, m.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.rate), m.framesPerBuffer, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: open input stream: %v", ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: start input stream: %v", ErrPermissionDenied, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	ms := &micStream{
		mic:     m,
		stream:  stream,
		buf:     buf,
		out:     make(chan []float32, m.queue),
		format:  audio.Format{SampleRate: m.rate, Channels: 1},
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	m.active = ms
	go ms.readLoop(sctx)
	return ms, nil
}

func (m *Mic) release(ms *micStream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == ms {
		m.active = nil
	}
}

// ── stream ─────────────────────────────────────────────────────────────────────

type micStream struct {
	mic    *Mic
	stream *portaudio.Stream
	buf    []float32
	out    chan []float32
	format audio.Format

	cancel    context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
}

func (s *micStream) Samples() <-chan []float32 { return s.out }

func (s *micStream) Format() audio.Format { return s.format }

// readLoop owns the portaudio stream: it performs the blocking reads and
// tears the device down when it exits.
func (s *micStream) readLoop(ctx context.Context) {
	defer func() {
		_ = s.stream.Stop()
		_ = s.stream.Close()
		_ = portaudio.Terminate()
		close(s.out)
		s.mic.release(s)
		close(s.stopped)
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			slog.Debug("capture: read error", "err", err)
			return
		}

		block := append([]float32(nil), s.buf...)
		select {
		case s.out <- block:
		default:
			slog.Debug("capture: consumer behind, dropping block", "samples", len(block))
		}
	}
}

// Close stops capture and waits until the device has been released.
func (s *micStream) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.stopped
	return nil
}
