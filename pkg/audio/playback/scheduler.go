// Package playback turns a stream of inbound speech chunks into continuous
// audio on an output device.
//
// The [Scheduler] keeps a monotonic "next start time" cursor against the
// output clock: each decoded chunk starts at max(cursor, now) and pushes the
// cursor forward by its duration, so chunks play back to back with neither
// gaps nor overlap regardless of how fast they arrive. [Scheduler.Interrupt]
// stops everything that is scheduled and pulls the cursor back to the current
// output clock so that a barge-in never leaves stale audio playing.
//
// [Timeline] is a pure-Go [Output] that mixes scheduled buffers by sample
// position; [Speaker] drives a Timeline from a portaudio output stream.
package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/iq360/pkg/audio"
)

// Buffer is a decoded, playable block of mono float32 samples.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(len(b.Samples)) * int64(time.Second) / int64(b.SampleRate))
}

// Voice is one buffer placed on an [Output]. Stop cuts it off immediately;
// calling Stop on a voice that has already finished is a no-op.
type Voice interface {
	Stop()
}

// Output is an audio sink with its own monotonic clock.
//
// Schedule places buf to start at the given output-clock time. onEnded must be
// invoked exactly once, when the buffer finishes playing or is stopped, and
// never while the Output holds a lock that Schedule or Now would need.
type Output interface {
	Now() time.Duration
	Schedule(buf Buffer, at time.Duration, onEnded func()) Voice
}

// DecodeError reports an inbound chunk that could not be decoded into a
// playable buffer. The chunk is dropped; scheduler state is unchanged.
type DecodeError struct {
	Size int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("playback: decode %d-byte chunk: %v", e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Handle represents one scheduled buffer. It stays in the scheduler's active
// set until playback completes or the scheduler is interrupted.
type Handle struct {
	ID       uint64
	Start    time.Duration
	Duration time.Duration

	mu      sync.Mutex
	voice   Voice
	stopped bool
}

// End returns the output-clock time at which the buffer finishes.
func (h *Handle) End() time.Duration { return h.Start + h.Duration }

func (h *Handle) attach(v Voice) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		v.Stop()
		return
	}
	h.voice = v
	h.mu.Unlock()
}

func (h *Handle) stop() {
	h.mu.Lock()
	h.stopped = true
	v := h.voice
	h.mu.Unlock()
	if v != nil {
		v.Stop()
	}
}

// Scheduler schedules decoded chunks for gapless sequential playback on an
// [Output]. It is safe for concurrent use: the output's completion callbacks
// may arrive from an audio device goroutine.
type Scheduler struct {
	out Output

	mu     sync.Mutex
	next   time.Duration
	active map[uint64]*Handle
	seq    uint64
}

// NewScheduler returns a Scheduler writing to out.
func NewScheduler(out Output) *Scheduler {
	return &Scheduler{
		out:    out,
		active: make(map[uint64]*Handle),
	}
}

// Enqueue decodes c and schedules it at max(NextStartTime, output clock),
// advancing the cursor by the buffer's duration. A malformed chunk yields a
// [*DecodeError] and leaves the schedule untouched.
func (s *Scheduler) Enqueue(c audio.Chunk) (*Handle, error) {
	samples, err := audio.DecodeChunk(c)
	if err != nil {
		return nil, &DecodeError{Size: len(c.Data), Err: err}
	}
	rate := c.SampleRate
	if rate <= 0 {
		rate = audio.PlaybackSampleRate
	}
	samples = audio.DownmixToMono(samples, c.Channels)
	buf := Buffer{Samples: samples, SampleRate: rate}

	s.mu.Lock()
	start := max(s.next, s.out.Now())
	s.seq++
	h := &Handle{ID: s.seq, Start: start, Duration: buf.Duration()}
	s.next = h.End()
	s.active[h.ID] = h
	s.mu.Unlock()

	id := h.ID
	v := s.out.Schedule(buf, start, func() { s.remove(id) })
	h.attach(v)
	return h, nil
}

// Interrupt stops every active buffer, clears the active set, and resets the
// cursor to the current output clock. It returns the number of buffers
// stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	clear(s.active)
	s.next = s.out.Now()
	s.mu.Unlock()

	for _, h := range handles {
		h.stop()
	}
	return len(handles)
}

// NextStartTime returns the output-clock time at which the next enqueued
// chunk would start if the clock has not yet passed it.
func (s *Scheduler) NextStartTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Active returns the number of scheduled buffers that have not yet finished.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Close stops all playback. It is equivalent to [Scheduler.Interrupt] and is
// safe to call more than once.
func (s *Scheduler) Close() error {
	s.Interrupt()
	return nil
}

func (s *Scheduler) remove(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}
