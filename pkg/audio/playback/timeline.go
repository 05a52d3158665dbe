package playback

import (
	"sync"
	"time"

	"github.com/MrWong99/iq360/pkg/audio"
)

// Compile-time assertion that Timeline satisfies Output.
var _ Output = (*Timeline)(nil)

// Timeline is an [Output] whose clock is the number of samples rendered so
// far. Scheduled buffers are resampled to the timeline rate and mixed by
// sample position on every call to [Timeline.Render].
//
// Timeline is safe for concurrent use; Render is normally called from an audio
// device callback while Schedule is called from the session goroutine.
type Timeline struct {
	rate int

	mu     sync.Mutex
	pos    int64
	voices []*timelineVoice
}

type timelineVoice struct {
	t       *Timeline
	start   int64
	samples []float32
	ended   func()
	once    sync.Once
}

// NewTimeline returns a Timeline rendering mono audio at rate Hz.
func NewTimeline(rate int) *Timeline {
	if rate <= 0 {
		rate = audio.PlaybackSampleRate
	}
	return &Timeline{rate: rate}
}

// SampleRate returns the rendering rate in Hz.
func (t *Timeline) SampleRate() int { return t.rate }

// Now returns the output clock: the duration of audio rendered so far.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.toDuration(t.pos)
}

// Schedule implements [Output].
func (t *Timeline) Schedule(buf Buffer, at time.Duration, onEnded func()) Voice {
	v := &timelineVoice{
		t:       t,
		start:   t.toSamples(at),
		samples: audio.Resample(buf.Samples, buf.SampleRate, t.rate),
		ended:   onEnded,
	}
	if len(v.samples) == 0 {
		v.finish()
		return v
	}
	t.mu.Lock()
	t.voices = append(t.voices, v)
	t.mu.Unlock()
	return v
}

// Render mixes every voice overlapping the next len(out) samples into out,
// clamps the mix to [-1, 1], and advances the clock. Voices that finish within
// the rendered window have their completion callbacks invoked after the
// internal lock is released.
func (t *Timeline) Render(out []float32) {
	clear(out)

	t.mu.Lock()
	begin := t.pos
	end := begin + int64(len(out))
	var finished []*timelineVoice
	keep := t.voices[:0]
	for _, v := range t.voices {
		vEnd := v.start + int64(len(v.samples))
		for i := max(begin, v.start); i < min(end, vEnd); i++ {
			out[i-begin] += v.samples[i-v.start]
		}
		if vEnd <= end {
			finished = append(finished, v)
		} else {
			keep = append(keep, v)
		}
	}
	clear(t.voices[len(keep):])
	t.voices = keep
	t.pos = end
	t.mu.Unlock()

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}
	for _, v := range finished {
		v.finish()
	}
}

// Pending returns the number of voices not yet fully rendered.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

func (t *Timeline) remove(v *timelineVoice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cur := range t.voices {
		if cur == v {
			t.voices = append(t.voices[:i], t.voices[i+1:]...)
			return
		}
	}
}

// toSamples rounds to the nearest sample so that durations truncated to the
// nanosecond still land on the sample they were computed from.
func (t *Timeline) toSamples(d time.Duration) int64 {
	return (int64(d)*int64(t.rate) + int64(time.Second)/2) / int64(time.Second)
}

func (t *Timeline) toDuration(samples int64) time.Duration {
	return time.Duration(samples * int64(time.Second) / int64(t.rate))
}

// Stop implements [Voice].
func (v *timelineVoice) Stop() {
	v.t.remove(v)
	v.finish()
}

func (v *timelineVoice) finish() {
	v.once.Do(func() {
		if v.ended != nil {
			v.ended()
		}
	})
}
