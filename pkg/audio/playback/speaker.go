package playback

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// defaultFramesPerBuffer is roughly 42 ms at 24 kHz.
const defaultFramesPerBuffer = 1024

// Speaker plays a [Timeline] through the host's default output device. The
// portaudio callback renders the timeline, so the output clock advances in
// lock step with the hardware.
type Speaker struct {
	*Timeline

	stream    *portaudio.Stream
	closeOnce sync.Once
	closeErr  error
}

// OpenSpeaker initialises portaudio and starts a mono output stream at rate
// Hz. framesPerBuffer <= 0 selects a default of 1024.
func OpenSpeaker(rate, framesPerBuffer int) (*Speaker, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("playback: portaudio init: %w", err)
	}

	tl := NewTimeline(rate)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(tl.SampleRate()), framesPerBuffer, tl.Render)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("playback: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("playback: start output stream: %w", err)
	}
	return &Speaker{Timeline: tl, stream: stream}, nil
}

// Close stops the output stream and releases the device. Idempotent.
func (s *Speaker) Close() error {
	s.closeOnce.Do(func() {
		if err := s.stream.Stop(); err != nil {
			s.closeErr = fmt.Errorf("playback: stop output stream: %w", err)
		}
		_ = s.stream.Close()
		_ = portaudio.Terminate()
	})
	return s.closeErr
}
