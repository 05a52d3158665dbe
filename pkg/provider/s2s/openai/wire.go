package openai

import (
	"fmt"

	"github.com/MrWong99/iq360/pkg/provider/s2s"
)

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string       `json:"modalities,omitempty"`
	Voice                   string         `json:"voice,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *modelRef      `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetection `json:"turn_detection,omitempty"`
}

type modelRef struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type string `json:"type"`
}

func (p *Provider) sessionUpdate(cfg s2s.SessionConfig) sessionUpdate {
	params := sessionParams{
		Modalities:        []string{"audio", "text"},
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		TurnDetection:     &turnDetection{Type: "server_vad"},
	}
	if cfg.Modality() == s2s.ModalityText {
		params.Modalities = []string{"text"}
	}
	if cfg.InputTranscription {
		params.InputAudioTranscription = &modelRef{Model: p.asrModel}
	}
	return sessionUpdate{Type: "session.update", Session: params}
}

// bufferAppend carries base64 PCM16 at 24 kHz.
type bufferAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// serverEvent is the union of the server events this transport reads.
type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *serverEvent) err() error {
	msg, code := "unknown error", ""
	if e.Error != nil {
		if e.Error.Message != "" {
			msg = e.Error.Message
		}
		code = e.Error.Code
	}
	if code != "" {
		return fmt.Errorf("openai: %s (%s)", msg, code)
	}
	return fmt.Errorf("openai: %s", msg)
}
