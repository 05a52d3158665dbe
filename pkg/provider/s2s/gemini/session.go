package gemini

import (
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/MrWong99/iq360/pkg/audio"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
	"github.com/MrWong99/iq360/pkg/provider/s2s/internal/link"
)

var _ link.Codec = codec{}

// codec is stateless; every server message stands on its own.
type codec struct{}

func (codec) Encode(f audio.Frame) any {
	var msg realtimeInputMessage
	msg.RealtimeInput.MediaChunks = []blob{{
		MIMEType: f.MIMEType(),
		Data:     base64.StdEncoding.EncodeToString(f.Bytes()),
	}}
	return msg
}

// Decode emits audio first, then the barge-in notice, then transcripts.
func (codec) Decode(data []byte) ([]s2s.Event, error) {
	var msg serverMessage
	if err := link.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, msg.Error
	}
	if msg.GoAway != nil {
		slog.Warn("gemini: server is going away", "time_left", msg.GoAway.TimeLeft)
	}
	sc := msg.ServerContent
	if sc == nil {
		return nil, nil
	}

	var out []s2s.Event
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			b := p.InlineData
			if b == nil || b.Data == "" || !strings.HasPrefix(b.MIMEType, "audio/") {
				continue
			}
			out = append(out, s2s.AudioEvent(audio.Chunk{
				Data:       []byte(b.Data),
				Encoding:   audio.EncodingPCM16Base64,
				SampleRate: rateFromMIME(b.MIMEType, audio.PlaybackSampleRate),
				Channels:   1,
			}))
		}
	}
	if sc.Interrupted {
		out = append(out, s2s.InterruptedEvent())
	}
	if t := sc.OutputTranscription; t != nil && t.Text != "" {
		out = append(out, s2s.TranscriptEvent(s2s.SpeakerRemote, t.Text))
	}
	if t := sc.InputTranscription; t != nil && t.Text != "" {
		out = append(out, s2s.TranscriptEvent(s2s.SpeakerLocal, t.Text))
	}
	return out, nil
}
