// Package audio defines the audio value types shared by capture, playback,
// and the speech-to-speech transports, together with the PCM conversion
// helpers that move samples between them.
//
// Outbound audio travels as [Frame] values: fixed-size blocks of signed 16-bit
// samples produced by [Framer] and [Encode] from the microphone's float32
// stream. Inbound synthesised speech arrives as [Chunk] values whose payload is
// left exactly as the transport delivered it; decoding is the playback
// scheduler's job so that a corrupt chunk can be dropped in one place.
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// CaptureSampleRate is the rate at which microphone audio is captured and
	// sent to the remote model.
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the rate of synthesised speech returned by the
	// remote model.
	PlaybackSampleRate = 24000

	// DefaultFrameSize is the number of samples per outbound frame.
	DefaultFrameSize = 4096
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Frame is one fixed-length block of outbound audio as signed 16-bit samples.
// A Frame is immutable once produced and is consumed exactly once by a
// session transport.
type Frame struct {
	// Samples holds interleaved int16 samples.
	Samples []int16

	// SampleRate in Hz (16000 for microphone capture).
	SampleRate int

	// Channels is 1 for mono capture.
	Channels int
}

// Bytes returns the frame as little-endian 16-bit PCM.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// MIMEType returns the media type announced to the remote model, e.g.
// "audio/pcm;rate=16000".
func (f Frame) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", f.SampleRate)
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return samplesDuration(len(f.Samples), f.SampleRate, f.Channels)
}

// Encoding identifies how an inbound [Chunk] payload is represented.
type Encoding string

const (
	// EncodingPCM16Base64 is base64 text wrapping little-endian 16-bit PCM.
	// Both Gemini Live and OpenAI Realtime deliver audio this way.
	EncodingPCM16Base64 Encoding = "pcm16/base64"

	// EncodingPCM16 is raw little-endian 16-bit PCM.
	EncodingPCM16 Encoding = "pcm16"
)

// Chunk is one inbound unit of synthesised speech of variable size. Data is
// opaque until decoded by the playback scheduler.
type Chunk struct {
	Data       []byte
	Encoding   Encoding
	SampleRate int
	Channels   int
}

func samplesDuration(samples, rate, channels int) time.Duration {
	if rate <= 0 {
		return 0
	}
	if channels <= 0 {
		channels = 1
	}
	frames := int64(samples / channels)
	return time.Duration(frames * int64(time.Second) / int64(rate))
}
