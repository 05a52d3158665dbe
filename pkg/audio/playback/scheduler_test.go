package playback_test

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/iq360/pkg/audio"
	"github.com/MrWong99/iq360/pkg/audio/mock"
	"github.com/MrWong99/iq360/pkg/audio/playback"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// pcmChunk builds a base64 PCM16 chunk of n samples all equal to v at 24 kHz.
func pcmChunk(n int, v int16) audio.Chunk {
	raw := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
	}
	return audio.Chunk{
		Data:       []byte(base64.StdEncoding.EncodeToString(raw)),
		Encoding:   audio.EncodingPCM16Base64,
		SampleRate: audio.PlaybackSampleRate,
	}
}

// chunkOf builds a silent chunk lasting d at 24 kHz.
func chunkOf(d time.Duration) audio.Chunk {
	n := int(int64(d) * audio.PlaybackSampleRate / int64(time.Second))
	return pcmChunk(n, 0)
}

func mustEnqueue(t *testing.T, s *playback.Scheduler, c audio.Chunk) *playback.Handle {
	t.Helper()
	h, err := s.Enqueue(c)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return h
}

// ── Scheduling ────────────────────────────────────────────────────────────────

func TestScheduler_GaplessSequence(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	t0 := 3 * time.Second
	out.SetNow(t0)
	s := playback.NewScheduler(out)

	durations := []time.Duration{
		120 * time.Millisecond,
		40 * time.Millisecond,
		500 * time.Millisecond,
		10 * time.Millisecond,
	}
	var cum time.Duration
	for i, d := range durations {
		h := mustEnqueue(t, s, chunkOf(d))
		if want := t0 + cum; h.Start != want {
			t.Errorf("chunk %d start = %v, want %v", i, h.Start, want)
		}
		if h.Duration != d {
			t.Errorf("chunk %d duration = %v, want %v", i, h.Duration, d)
		}
		cum += d
	}
	if got, want := s.NextStartTime(), t0+cum; got != want {
		t.Errorf("NextStartTime = %v, want %v", got, want)
	}
	if got := s.Active(); got != len(durations) {
		t.Errorf("Active = %d, want %d", got, len(durations))
	}
}

func TestScheduler_ClockPastCursorStartsNow(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	s := playback.NewScheduler(out)

	mustEnqueue(t, s, chunkOf(100*time.Millisecond))
	out.Advance(2 * time.Second)

	h := mustEnqueue(t, s, chunkOf(100*time.Millisecond))
	if h.Start != 2*time.Second {
		t.Errorf("start = %v, want 2s (current clock)", h.Start)
	}
	if got := s.NextStartTime(); got != 2100*time.Millisecond {
		t.Errorf("NextStartTime = %v, want 2.1s", got)
	}
}

func TestScheduler_CompletionRemovesHandle(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	s := playback.NewScheduler(out)

	mustEnqueue(t, s, chunkOf(100*time.Millisecond))
	mustEnqueue(t, s, chunkOf(100*time.Millisecond))
	if s.Active() != 2 {
		t.Fatalf("Active = %d, want 2", s.Active())
	}

	out.Finish(0)
	if s.Active() != 1 {
		t.Errorf("Active after first finish = %d, want 1", s.Active())
	}
	out.Advance(time.Second)
	if s.Active() != 0 {
		t.Errorf("Active after advance = %d, want 0", s.Active())
	}
}

// ── Interruption ──────────────────────────────────────────────────────────────

// TestScheduler_EndToEndInterrupt walks the canonical barge-in scenario: two
// chunks queued back to back, then an interruption part-way into the first.
func TestScheduler_EndToEndInterrupt(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	t0 := 10 * time.Second
	out.SetNow(t0)
	s := playback.NewScheduler(out)

	first := mustEnqueue(t, s, chunkOf(500*time.Millisecond))
	if first.Start != t0 {
		t.Fatalf("first start = %v, want %v", first.Start, t0)
	}
	if got := s.NextStartTime(); got != t0+500*time.Millisecond {
		t.Fatalf("cursor after first = %v, want t0+500ms", got)
	}

	second := mustEnqueue(t, s, chunkOf(300*time.Millisecond))
	if second.Start != t0+500*time.Millisecond {
		t.Fatalf("second start = %v, want t0+500ms", second.Start)
	}
	if got := s.NextStartTime(); got != t0+800*time.Millisecond {
		t.Fatalf("cursor after second = %v, want t0+800ms", got)
	}

	out.SetNow(t0 + 200*time.Millisecond)
	if n := s.Interrupt(); n != 2 {
		t.Errorf("Interrupt stopped %d, want 2", n)
	}
	if s.Active() != 0 {
		t.Errorf("Active after interrupt = %d, want 0", s.Active())
	}
	if got := s.NextStartTime(); got != t0+200*time.Millisecond {
		t.Errorf("cursor after interrupt = %v, want t0+200ms", got)
	}
	for i, c := range out.Calls() {
		if !c.Voice.Stopped() {
			t.Errorf("voice %d was not stopped", i)
		}
	}

	next := mustEnqueue(t, s, chunkOf(100*time.Millisecond))
	if next.Start != t0+200*time.Millisecond {
		t.Errorf("post-interrupt start = %v, want t0+200ms", next.Start)
	}
}

func TestScheduler_InterruptWhenIdle(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	out.SetNow(time.Second)
	s := playback.NewScheduler(out)

	if n := s.Interrupt(); n != 0 {
		t.Errorf("Interrupt stopped %d, want 0", n)
	}
	if got := s.NextStartTime(); got != time.Second {
		t.Errorf("NextStartTime = %v, want 1s", got)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// ── Decode errors ─────────────────────────────────────────────────────────────

func TestScheduler_DecodeErrorDropsChunk(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	s := playback.NewScheduler(out)
	mustEnqueue(t, s, chunkOf(100*time.Millisecond))
	before := s.NextStartTime()

	_, err := s.Enqueue(audio.Chunk{Data: []byte("%%%"), Encoding: audio.EncodingPCM16Base64})
	var de *playback.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	if de.Size != 3 {
		t.Errorf("DecodeError.Size = %d, want 3", de.Size)
	}
	if s.NextStartTime() != before {
		t.Errorf("cursor moved on decode error: %v -> %v", before, s.NextStartTime())
	}
	if len(out.Calls()) != 1 {
		t.Errorf("Schedule calls = %d, want 1", len(out.Calls()))
	}

	// Later chunks still play.
	h := mustEnqueue(t, s, chunkOf(100*time.Millisecond))
	if h.Start != before {
		t.Errorf("next start = %v, want %v", h.Start, before)
	}
}

func TestScheduler_OddLengthPCM(t *testing.T) {
	t.Parallel()

	s := playback.NewScheduler(mock.NewOutput())
	_, err := s.Enqueue(audio.Chunk{
		Data:     []byte(base64.StdEncoding.EncodeToString([]byte{1, 2, 3})),
		Encoding: audio.EncodingPCM16Base64,
	})
	if !errors.Is(err, audio.ErrOddLength) {
		t.Errorf("err = %v, want wrapping ErrOddLength", err)
	}
}
