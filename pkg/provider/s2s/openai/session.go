package openai

import (
	"encoding/base64"

	"github.com/MrWong99/iq360/pkg/audio"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
	"github.com/MrWong99/iq360/pkg/provider/s2s/internal/link"
)

var _ link.Codec = (*codec)(nil)

type codec struct {
	remoteText bool

	// pending collects transcript deltas of the current response.
	pending string
}

func (c *codec) Encode(f audio.Frame) any {
	return bufferAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(toRealtimeRate(f).Bytes()),
	}
}

func (c *codec) Decode(data []byte) ([]s2s.Event, error) {
	var ev serverEvent
	if err := link.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	switch ev.Type {
	case "response.audio.delta":
		if ev.Delta != "" {
			return one(s2s.AudioEvent(audio.Chunk{
				Data:       []byte(ev.Delta),
				Encoding:   audio.EncodingPCM16Base64,
				SampleRate: realtimeRate,
				Channels:   1,
			}))
		}
	case "input_audio_buffer.speech_started":
		return one(s2s.InterruptedEvent())
	case "response.audio_transcript.delta":
		c.pending += ev.Delta
	case "response.audio_transcript.done":
		text := ev.Transcript
		if text == "" {
			text = c.pending
		}
		c.pending = ""
		if text != "" && c.remoteText {
			return one(s2s.TranscriptEvent(s2s.SpeakerRemote, text))
		}
	case "conversation.item.input_audio_transcription.completed":
		if ev.Transcript != "" {
			return one(s2s.TranscriptEvent(s2s.SpeakerLocal, ev.Transcript))
		}
	case "error":
		return nil, ev.err()
	}
	return nil, nil
}

func one(ev s2s.Event) ([]s2s.Event, error) { return []s2s.Event{ev}, nil }

// toRealtimeRate converts f to 24 kHz mono unless it already is.
func toRealtimeRate(f audio.Frame) audio.Frame {
	if f.SampleRate == realtimeRate && f.Channels <= 1 {
		return f
	}
	pcm := make([]float32, len(f.Samples))
	for i, s := range f.Samples {
		pcm[i] = float32(s) / 32768
	}
	if f.Channels > 1 {
		pcm = audio.DownmixToMono(pcm, f.Channels)
	}
	return audio.Encode(audio.Resample(pcm, f.SampleRate, realtimeRate), realtimeRate)
}
