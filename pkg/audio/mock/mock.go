// Package mock provides in-memory implementations of [capture.Source],
// [capture.Stream], and [playback.Output] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{}
//	out := mock.NewOutput()
//	sess := voice.New(provider, src, out)
//	...
//	src.Stream().Push(samples)   // feed the microphone
//	out.SetNow(200 * time.Millisecond)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/iq360/pkg/audio"
	"github.com/MrWong99/iq360/pkg/audio/capture"
	"github.com/MrWong99/iq360/pkg/audio/playback"
)

// Compile-time assertions.
var (
	_ capture.Source  = (*Source)(nil)
	_ capture.Stream  = (*Stream)(nil)
	_ playback.Output = (*Output)(nil)
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock [capture.Source]. Each successful Open returns a fresh
// [Stream]; only one may be live at a time, matching the real microphone.
type Source struct {
	mu sync.Mutex

	// OpenErr, when non-nil, is returned by Open.
	OpenErr error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	streams []*Stream
	live    *Stream
}

// Open implements [capture.Source].
func (s *Source) Open(_ context.Context) (capture.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountOpen++
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	if s.live != nil {
		return nil, capture.ErrBusy
	}
	st := &Stream{
		src: s,
		ch:  make(chan []float32, 64),
	}
	s.streams = append(s.streams, st)
	s.live = st
	return st, nil
}

// Stream returns the most recently opened stream, or nil.
func (s *Source) Stream() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.streams) == 0 {
		return nil
	}
	return s.streams[len(s.streams)-1]
}

// Live reports whether a stream is currently held.
func (s *Source) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live != nil
}

func (s *Source) release(st *Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == st {
		s.live = nil
	}
}

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock [capture.Stream] fed by [Stream.Push].
type Stream struct {
	src *Source
	ch  chan []float32

	mu     sync.Mutex
	closed bool

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Push delivers one block of samples to the consumer. It is a no-op after
// Close.
func (s *Stream) Push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- samples
}

// Samples implements [capture.Stream].
func (s *Stream) Samples() <-chan []float32 { return s.ch }

// Format implements [capture.Stream].
func (s *Stream) Format() audio.Format {
	return audio.Format{SampleRate: audio.CaptureSampleRate, Channels: 1}
}

// Close implements [capture.Stream]. Only the first call releases the stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	s.src.release(s)
	return nil
}

// Closes returns how many times Close was called.
func (s *Stream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose
}

// ─── Output ───────────────────────────────────────────────────────────────────

// ScheduleCall records one call to [Output.Schedule].
type ScheduleCall struct {
	At       time.Duration
	Duration time.Duration
	Voice    *Voice
}

// Output is a mock [playback.Output] with a manually driven clock. Scheduled
// buffers never finish on their own; call [Output.Finish] or
// [Output.Advance] to complete them.
type Output struct {
	mu    sync.Mutex
	now   time.Duration
	calls []ScheduleCall
}

// NewOutput returns an Output whose clock starts at zero.
func NewOutput() *Output { return &Output{} }

// Now implements [playback.Output].
func (o *Output) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// SetNow moves the clock to d without completing any voice.
func (o *Output) SetNow(d time.Duration) {
	o.mu.Lock()
	o.now = d
	o.mu.Unlock()
}

// Advance moves the clock to d and completes every voice whose end time is
// not after d.
func (o *Output) Advance(d time.Duration) {
	o.mu.Lock()
	o.now = d
	var done []*Voice
	for _, c := range o.calls {
		if c.At+c.Duration <= d {
			done = append(done, c.Voice)
		}
	}
	o.mu.Unlock()
	for _, v := range done {
		v.finish()
	}
}

// Schedule implements [playback.Output].
func (o *Output) Schedule(buf playback.Buffer, at time.Duration, onEnded func()) playback.Voice {
	v := &Voice{ended: onEnded}
	o.mu.Lock()
	o.calls = append(o.calls, ScheduleCall{At: at, Duration: buf.Duration(), Voice: v})
	o.mu.Unlock()
	return v
}

// Calls returns a copy of all recorded Schedule calls.
func (o *Output) Calls() []ScheduleCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ScheduleCall, len(o.calls))
	copy(out, o.calls)
	return out
}

// Finish completes the i-th scheduled voice as if it had played out.
func (o *Output) Finish(i int) {
	o.mu.Lock()
	v := o.calls[i].Voice
	o.mu.Unlock()
	v.finish()
}

// Voice is the [playback.Voice] handed out by [Output].
type Voice struct {
	ended func()

	mu      sync.Mutex
	done    bool
	stopped int
}

// Stop implements [playback.Voice].
func (v *Voice) Stop() {
	v.mu.Lock()
	v.stopped++
	v.mu.Unlock()
	v.finish()
}

// Stopped reports whether Stop was called at least once.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped > 0
}

func (v *Voice) finish() {
	v.mu.Lock()
	if v.done {
		v.mu.Unlock()
		return
	}
	v.done = true
	v.mu.Unlock()
	if v.ended != nil {
		v.ended()
	}
}
