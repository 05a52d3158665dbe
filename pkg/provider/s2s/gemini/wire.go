package gemini

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/iq360/pkg/provider/s2s"
)

// Client to server.

type setupMessage struct {
	Setup struct {
		Model            string `json:"model"`
		GenerationConfig struct {
			ResponseModalities []string      `json:"responseModalities"`
			SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
		} `json:"generationConfig"`
		SystemInstruction        *content  `json:"systemInstruction,omitempty"`
		InputAudioTranscription  *struct{} `json:"inputAudioTranscription,omitempty"`
		OutputAudioTranscription *struct{} `json:"outputAudioTranscription,omitempty"`
	} `json:"setup"`
}

type speechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type realtimeInputMessage struct {
	RealtimeInput struct {
		MediaChunks []blob `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

// blob carries base64 data in both directions.
type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

func newSetup(model string, cfg s2s.SessionConfig) setupMessage {
	var m setupMessage
	m.Setup.Model = "models/" + model
	m.Setup.GenerationConfig.ResponseModalities = []string{string(cfg.Modality())}
	if cfg.Voice != "" {
		sc := &speechConfig{}
		sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cfg.Voice
		m.Setup.GenerationConfig.SpeechConfig = sc
	}
	if cfg.Instructions != "" {
		m.Setup.SystemInstruction = &content{Parts: []part{{Text: cfg.Instructions}}}
	}
	if cfg.InputTranscription {
		m.Setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		m.Setup.OutputAudioTranscription = &struct{}{}
	}
	return m
}

// Server to client.

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *struct {
		ModelTurn           *content `json:"modelTurn,omitempty"`
		Interrupted         bool     `json:"interrupted,omitempty"`
		TurnComplete        bool     `json:"turnComplete,omitempty"`
		InputTranscription  *text    `json:"inputTranscription,omitempty"`
		OutputTranscription *text    `json:"outputTranscription,omitempty"`
	} `json:"serverContent,omitempty"`
	GoAway *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway,omitempty"`
	Error *serverError `json:"error,omitempty"`
}

type text struct {
	Text string `json:"text"`
}

// serverError is the error payload the endpoint sends before closing.
type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *serverError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Status == "" {
		return "gemini: " + msg
	}
	return fmt.Sprintf("gemini: %s (%d %s)", msg, e.Code, e.Status)
}

// rateFromMIME reads the rate parameter of e.g. "audio/pcm;rate=24000".
func rateFromMIME(mime string, fallback int) int {
	_, params, _ := strings.Cut(mime, ";")
	for p := range strings.SplitSeq(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || k != "rate" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
