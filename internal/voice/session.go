// Package voice runs one realtime spoken conversation between the local
// microphone and speaker and a hosted speech-to-speech model.
//
// A [Session] owns three concurrent activities once open:
//
//   - the capture pump reads microphone blocks, cuts them into fixed-size
//     frames, encodes them to 16-bit PCM, and hands them to the transport;
//   - the dispatch loop is the single consumer of the transport's event
//     stream and the only caller of the playback scheduler and transcript
//     aggregator;
//   - the notifier delivers [Event] values to the registered observer.
//
// Every exit path (local Close, remote close, transport failure, microphone
// failure) converges on a single release step that stops capture, cuts off
// playback, closes the transport, and frees the microphone exactly once.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/iq360/internal/observe"
	"github.com/MrWong99/iq360/internal/persona"
	"github.com/MrWong99/iq360/internal/transcript"
	"github.com/MrWong99/iq360/pkg/audio"
	"github.com/MrWong99/iq360/pkg/audio/capture"
	"github.com/MrWong99/iq360/pkg/audio/playback"
	"github.com/MrWong99/iq360/pkg/memory"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
)

// Option configures a [Session].
type Option func(*Session)

// WithFrameSize sets the number of samples per outbound frame. Default
// [audio.DefaultFrameSize].
func WithFrameSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.frameSize = n
		}
	}
}

// WithTranscriptWindow sets how many transcript lines are retained. Default
// [transcript.DefaultWindow].
func WithTranscriptWindow(n int) Option {
	return func(s *Session) { s.window = n }
}

// WithMetrics sets the metrics sink. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithSessionStore persists every transcript line to store.
func WithSessionStore(store memory.SessionStore) Option {
	return func(s *Session) { s.store = store }
}

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session is one voice conversation. Create it with [New], start it with
// [Session.Open], and end it with [Session.Close]. A Session cannot be
// reopened; create a new one instead.
//
// All methods are safe for concurrent use.
type Session struct {
	id        string
	provider  s2s.Provider
	mic       capture.Source
	sched     *playback.Scheduler
	agg       *transcript.Aggregator
	metrics   *observe.Metrics
	store     memory.SessionStore
	frameSize int
	window    int
	log       *slog.Logger

	notify *notifier

	mu             sync.Mutex
	state          State
	err            error
	persona        persona.Persona
	stream         capture.Stream
	handle         s2s.SessionHandle
	recorder       *transcript.Recorder
	cancelOpen     context.CancelFunc
	cancelRun      context.CancelFunc
	closeRequested bool
	counted        bool

	wg          sync.WaitGroup
	releaseOnce sync.Once
	done        chan struct{}
}

// New returns an Idle session that will talk to provider, capture from mic,
// and play synthesised speech on out.
func New(provider s2s.Provider, mic capture.Source, out playback.Output, opts ...Option) *Session {
	s := &Session{
		provider:  provider,
		mic:       mic,
		sched:     playback.NewScheduler(out),
		frameSize: audio.DefaultFrameSize,
		notify:    newNotifier(),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.agg = transcript.NewAggregator(s.window)
	s.log = slog.With("session_id", s.id)
	go s.notify.run()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// OnEvent registers the observer. Re-registering replaces the previous
// handler; nil removes it. The handler is called from a dedicated goroutine,
// one event at a time, and may call back into the session.
func (s *Session) OnEvent(h func(Event)) { s.notify.setHandler(h) }

// Open acquires the microphone, connects to the remote model with p's
// configuration, and starts streaming. It blocks until the remote accepts or
// rejects the session.
//
// On failure the session is Errored and the returned error is a *Error of
// kind PermissionDenied or ConnectionError. No audio is sent in either case.
func (s *Session) Open(ctx context.Context, p persona.Persona) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = Connecting
	s.persona = p
	openCtx, cancelOpen := context.WithCancel(ctx)
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelOpen = cancelOpen
	s.cancelRun = cancelRun
	s.log = s.log.With("persona", p.ID)
	s.mu.Unlock()
	defer cancelOpen()

	s.emitState(Connecting)

	stream, err := s.mic.Open(runCtx)
	if err != nil {
		return s.openFailed(ctx, PermissionDenied, err)
	}

	handle, err := s.provider.Connect(openCtx, p.SessionConfig())
	if err != nil {
		_ = stream.Close()
		return s.openFailed(ctx, ConnectionError, err)
	}

	s.mu.Lock()
	s.stream = stream
	s.handle = handle
	if s.closeRequested {
		s.state = Closed
		s.mu.Unlock()
		s.emitState(Closed)
		s.release()
		return fmt.Errorf("voice: open: %w", context.Canceled)
	}
	if s.store != nil {
		s.recorder = transcript.NewRecorder(s.store, s.id, p.ID, p.Name)
	}
	s.state = Open
	s.counted = true
	s.wg.Add(2)
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(context.Background(), 1)
	s.log.Info("voice session open")
	s.emitState(Open)

	go s.capture(stream, handle)
	go s.dispatch(handle)
	return nil
}

// openFailed moves a Connecting session to Errored, or to Closed if Close
// raced the handshake or the caller cancelled ctx.
func (s *Session) openFailed(ctx context.Context, kind ErrorKind, cause error) error {
	s.mu.Lock()
	if s.closeRequested || errors.Is(ctx.Err(), context.Canceled) {
		s.state = Closed
		s.mu.Unlock()
		s.emitState(Closed)
		s.release()
		return fmt.Errorf("voice: open: %w", context.Canceled)
	}
	s.mu.Unlock()
	err := &Error{Kind: kind, Err: cause}
	s.fail(err)
	return err
}

// Send forwards one frame to the transport. It never blocks; see
// [s2s.SessionHandle.Send] for the error contract.
func (s *Session) Send(f audio.Frame) error {
	s.mu.Lock()
	h := s.handle
	open := s.state == Open
	s.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	return h.Send(f)
}

// Close ends the session and releases every resource. It is idempotent and
// always returns nil. Closing during Open makes Open return early.
func (s *Session) Close() error {
	s.mu.Lock()
	switch s.state {
	case Idle, Open:
		s.state = Closed
		s.mu.Unlock()
		s.log.Info("voice session closed")
		s.emitState(Closed)
		s.release()
	case Connecting:
		s.closeRequested = true
		cancel := s.cancelOpen
		s.mu.Unlock()
		cancel()
	default:
		s.mu.Unlock()
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that moved the session to Errored, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Status returns a short human-readable status line.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return statusText(s.state, KindOf(s.err), s.persona.Name)
}

// Persona returns the persona the session was opened with.
func (s *Session) Persona() persona.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

// Transcript returns the rolling transcript window, oldest first.
func (s *Session) Transcript() []transcript.Line { return s.agg.Lines() }

// Done is closed once the session has ended and all of its goroutines,
// including the observer, have finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// NextStartTime returns the playback scheduler's cursor.
func (s *Session) NextStartTime() time.Duration { return s.sched.NextStartTime() }

// ActivePlayback returns the number of speech buffers still scheduled.
func (s *Session) ActivePlayback() int { return s.sched.Active() }

func (s *Session) capture(st capture.Stream, h s2s.SessionHandle) {
	defer s.wg.Done()

	format := st.Format()
	framer := audio.NewFramer(s.frameSize, format.SampleRate)
	for block := range st.Samples() {
		if format.Channels > 1 {
			block = audio.DownmixToMono(block, format.Channels)
		}
		for _, f := range framer.Push(block) {
			s.sendFrame(h, f)
		}
	}

	if s.State() == Open {
		s.fail(&Error{Kind: TransportError, Err: errCaptureStopped})
	}
}

func (s *Session) sendFrame(h s2s.SessionHandle, f audio.Frame) {
	ctx := context.Background()
	switch err := h.Send(f); {
	case err == nil:
		s.metrics.FramesSent.Add(ctx, 1)
	case errors.Is(err, s2s.ErrBackpressure):
		s.metrics.RecordFrameDropped(ctx, "backpressure")
		s.log.Debug("outbound queue full, frame dropped")
	case errors.Is(err, s2s.ErrClosed):
		s.metrics.RecordFrameDropped(ctx, "closed")
	default:
		s.metrics.RecordFrameDropped(ctx, "error")
		s.log.Warn("failed to send frame", "err", err)
	}
}

func (s *Session) dispatch(h s2s.SessionHandle) {
	defer s.wg.Done()
	ctx := context.Background()

	for ev := range h.Events() {
		switch ev.Kind {
		case s2s.EventAudio:
			if _, err := s.sched.Enqueue(ev.Audio); err != nil {
				s.metrics.DecodeErrors.Add(ctx, 1)
				s.log.Warn("dropping malformed audio chunk", "err", err)
				s.notify.push(Event{Kind: EventChunkDropped, Err: &Error{Kind: DecodeError, Err: err}})
				continue
			}
			s.metrics.ChunksScheduled.Add(ctx, 1)

		case s2s.EventTranscript:
			sp := transcript.Local
			if ev.Speaker == s2s.SpeakerRemote {
				sp = transcript.Remote
			}
			line, ok := s.agg.Append(sp, ev.Text)
			if !ok {
				continue
			}
			s.mu.Lock()
			rec := s.recorder
			s.mu.Unlock()
			if rec != nil {
				rec.Record(line)
			}
			s.metrics.RecordTranscriptLine(ctx, sp.String())
			s.notify.push(Event{Kind: EventTranscript, Line: line})

		case s2s.EventInterrupted:
			n := s.sched.Interrupt()
			s.metrics.Interruptions.Add(ctx, 1)
			s.log.Debug("playback interrupted", "stopped", n)
			s.notify.push(Event{Kind: EventInterrupted, Stopped: n})

		case s2s.EventError:
			s.fail(&Error{Kind: TransportError, Err: ev.Err})

		case s2s.EventClosed:
			s.remoteClosed()
		}
	}

	// The stream ended without a terminal event; treat it as a remote close.
	s.remoteClosed()
}

func (s *Session) remoteClosed() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	s.mu.Unlock()
	s.log.Info("voice session closed by remote")
	s.emitState(Closed)
	s.release()
}

// fail moves the session to Errored unless it already ended.
func (s *Session) fail(err *Error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = Errored
	s.err = err
	s.mu.Unlock()

	s.metrics.RecordSessionError(context.Background(), err.Kind.String())
	s.log.Warn("voice session failed", "kind", err.Kind.String(), "err", err.Err)
	s.notify.push(Event{Kind: EventError, Err: err})
	s.emitState(Errored)
	s.release()
}

func (s *Session) emitState(st State) {
	s.mu.Lock()
	status := statusText(st, KindOf(s.err), s.persona.Name)
	s.mu.Unlock()
	s.notify.push(Event{Kind: EventState, State: st, Status: status})
}

// release frees everything the session acquired. It runs at most once and
// does not wait for the session goroutines, so it is safe to call from them.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		stream, handle, rec := s.stream, s.handle, s.recorder
		cancelRun, counted := s.cancelRun, s.counted
		s.mu.Unlock()

		if stream != nil {
			if err := stream.Close(); err != nil {
				s.log.Warn("failed to release microphone", "err", err)
			}
		}
		_ = s.sched.Close()
		if handle != nil {
			if err := handle.Close(); err != nil {
				s.log.Debug("transport close", "err", err)
			}
		}
		if cancelRun != nil {
			cancelRun()
		}
		if counted {
			s.metrics.ActiveSessions.Add(context.Background(), -1)
		}

		go func() {
			s.wg.Wait()
			if rec != nil {
				rec.Close()
			}
			s.notify.stop()
			<-s.notify.done
			close(s.done)
		}()
	})
}
