// Package s2s defines the Provider interface for speech-to-speech backends.
//
// An S2S provider wraps a hosted realtime voice model that accepts microphone
// audio and answers with synthesised speech in a single, stateful duplex
// session. Examples are the Gemini Live API and the OpenAI Realtime API.
//
// The central abstraction is [SessionHandle]. Outbound audio is queued with
// [SessionHandle.Send]; everything the remote side produces arrives on one
// ordered [Event] stream returned by [SessionHandle.Events]. The stream carries
// exactly one terminal event ([EventError] or [EventClosed]) and is then
// closed. Consumers must drain Events until it is closed to avoid leaking the
// session's receive goroutine.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/iq360/pkg/audio"
)

var (
	// ErrClosed is returned by Send after the session has been closed.
	ErrClosed = errors.New("s2s: session closed")

	// ErrBackpressure is returned by Send when the outbound queue is full. The
	// frame is dropped.
	ErrBackpressure = errors.New("s2s: outbound queue full")
)

// Modality selects what the remote model answers with.
type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Voice identifies one synthesised voice offered by a provider.
type Voice struct {
	ID   string
	Name string
}

// SessionConfig is supplied once when a session is opened.
type SessionConfig struct {
	// Instructions is the persona's system prompt.
	Instructions string

	// Voice is the provider-specific voice identifier (e.g. "Kore").
	Voice string

	// ResponseModality defaults to [ModalityAudio] when empty.
	ResponseModality Modality

	// InputTranscription enables transcripts of the local speaker.
	InputTranscription bool

	// OutputTranscription enables transcripts of the synthesised speech.
	OutputTranscription bool
}

// Modality returns the configured response modality, defaulting to audio.
func (c SessionConfig) Modality() Modality {
	if c.ResponseModality == "" {
		return ModalityAudio
	}
	return c.ResponseModality
}

// Capabilities describes static properties of a provider.
type Capabilities struct {
	// MaxSessionDuration is the provider-imposed session lifetime. Zero means
	// no documented limit.
	MaxSessionDuration time.Duration

	// InputSampleRate is the rate the provider expects outbound audio at.
	InputSampleRate int

	// OutputSampleRate is the rate of the synthesised speech.
	OutputSampleRate int

	// Voices lists the voices available for this provider.
	Voices []Voice
}

// Speaker identifies which side of the conversation a transcript belongs to.
type Speaker int

const (
	// SpeakerLocal is the person at the microphone.
	SpeakerLocal Speaker = iota + 1

	// SpeakerRemote is the synthesised voice.
	SpeakerRemote
)

// String returns "local" or "remote".
func (s Speaker) String() string {
	switch s {
	case SpeakerLocal:
		return "local"
	case SpeakerRemote:
		return "remote"
	default:
		return fmt.Sprintf("speaker(%d)", int(s))
	}
}

// EventKind discriminates [Event] variants.
type EventKind int

const (
	// EventAudio carries one inbound speech chunk in Event.Audio.
	EventAudio EventKind = iota + 1

	// EventTranscript carries Event.Speaker and Event.Text.
	EventTranscript

	// EventInterrupted signals that the local speaker barged in and local
	// playback must stop.
	EventInterrupted

	// EventError is terminal; Event.Err holds the cause.
	EventError

	// EventClosed is terminal; the remote side or a local Close ended the
	// session.
	EventClosed
)

// String returns a short lowercase name for the kind.
func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventTranscript:
		return "transcript"
	case EventInterrupted:
		return "interrupted"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one message on a session's inbound stream. Only the fields that
// belong to Kind are set.
type Event struct {
	Kind    EventKind
	Audio   audio.Chunk
	Speaker Speaker
	Text    string
	Err     error
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == EventError || e.Kind == EventClosed
}

// AudioEvent returns an [EventAudio] event.
func AudioEvent(c audio.Chunk) Event { return Event{Kind: EventAudio, Audio: c} }

// TranscriptEvent returns an [EventTranscript] event.
func TranscriptEvent(sp Speaker, text string) Event {
	return Event{Kind: EventTranscript, Speaker: sp, Text: text}
}

// InterruptedEvent returns an [EventInterrupted] event.
func InterruptedEvent() Event { return Event{Kind: EventInterrupted} }

// ErrorEvent returns an [EventError] event.
func ErrorEvent(err error) Event { return Event{Kind: EventError, Err: err} }

// ClosedEvent returns an [EventClosed] event.
func ClosedEvent() Event { return Event{Kind: EventClosed} }

// SessionHandle is one live duplex session.
type SessionHandle interface {
	// Send queues one outbound frame. Frames are transmitted in Send order by
	// a single writer. Send never blocks: it returns [ErrBackpressure] when the
	// queue is full and [ErrClosed] after Close.
	Send(frame audio.Frame) error

	// Events returns the inbound event stream. The same channel is returned
	// on every call.
	Events() <-chan Event

	// Close terminates the session and releases the transport. Idempotent.
	Close() error
}

// Provider opens sessions against one hosted realtime model.
type Provider interface {
	// Connect dials the service, sends the session configuration, and blocks
	// until the remote side accepts or rejects it, or ctx is done.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about the provider.
	Capabilities() Capabilities
}
