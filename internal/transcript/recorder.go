package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/iq360/pkg/memory"
)

const (
	defaultRecorderQueue = 64
	writeTimeout         = 5 * time.Second
)

// RecorderOption configures a [Recorder].
type RecorderOption func(*Recorder)

// WithQueueSize sets how many lines may wait for storage before new ones are
// dropped.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithDropHook registers a callback invoked whenever a line is dropped because
// the queue is full.
func WithDropHook(fn func()) RecorderOption {
	return func(r *Recorder) { r.onDrop = fn }
}

// Recorder persists transcript lines of one voice session to a
// [memory.SessionStore]. Record never blocks.
type Recorder struct {
	store      memory.SessionStore
	sessionID  string
	persona    string
	personaTag string

	queueSize int
	onDrop    func()

	queue chan memory.TranscriptEntry
	mu    sync.Mutex
	done  bool
	wg    sync.WaitGroup
}

// NewRecorder starts a Recorder writing to store under sessionID. personaID
// and personaName annotate every entry.
func NewRecorder(store memory.SessionStore, sessionID, personaID, personaName string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:      store,
		sessionID:  sessionID,
		persona:    personaID,
		personaTag: personaName,
		queueSize:  defaultRecorderQueue,
	}
	for _, o := range opts {
		o(r)
	}
	r.queue = make(chan memory.TranscriptEntry, r.queueSize)
	r.wg.Add(1)
	go r.run()
	return r
}

// Record queues l for storage. When the queue is full the line is dropped and
// a warning is logged. Record after Close is a no-op.
func (r *Recorder) Record(l Line) {
	e := memory.TranscriptEntry{
		SpeakerID:   memory.SpeakerUser,
		SpeakerName: "User",
		Persona:     r.persona,
		Text:        l.Text,
		Timestamp:   l.At,
	}
	if l.Speaker == Remote {
		e.SpeakerID = memory.SpeakerAssistant
		e.SpeakerName = r.personaTag
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	select {
	case r.queue <- e:
	default:
		slog.Warn("transcript recorder queue full, dropping line", "session_id", r.sessionID)
		if r.onDrop != nil {
			r.onDrop()
		}
	}
}

// Close stops accepting lines and waits until queued lines are written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.store.WriteEntry(ctx, r.sessionID, e); err != nil {
			slog.Warn("failed to persist transcript line", "session_id", r.sessionID, "err", err)
		}
		cancel()
	}
}
