package voice

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a [Session].
type State int

const (
	// Idle is a new session that has not been opened.
	Idle State = iota

	// Connecting means the microphone is being acquired and the remote
	// handshake is in progress.
	Connecting

	// Open means audio is flowing in both directions.
	Open

	// Closed is terminal: the session was closed locally or by the remote.
	Closed

	// Errored is terminal: the session failed. [Session.Err] holds the cause.
	Errored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == Closed || s == Errored }

// ErrorKind classifies session failures.
type ErrorKind int

const (
	// PermissionDenied: the microphone could not be acquired.
	PermissionDenied ErrorKind = iota + 1

	// ConnectionError: the remote session could not be established.
	ConnectionError

	// TransportError: the session failed after it was open.
	TransportError

	// DecodeError: an inbound audio chunk was malformed. Never terminal.
	DecodeError
)

// String returns the kind name, used as a metric attribute.
func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "PermissionDenied"
	case ConnectionError:
		return "ConnectionError"
	case TransportError:
		return "TransportError"
	case DecodeError:
		return "DecodeError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

var (
	// ErrAlreadyStarted is returned by Open on a session that is not Idle.
	ErrAlreadyStarted = errors.New("voice: session already started")

	// ErrNotOpen is returned by Send when the session is not Open.
	ErrNotOpen = errors.New("voice: session not open")

	// errCaptureStopped is the cause reported when the microphone stream ends
	// while the session is still open.
	errCaptureStopped = errors.New("voice: microphone stream ended")
)

// Error is a classified session failure.
//
// errors.Is(err, &Error{Kind: k}) matches any *Error of kind k, so callers can
// test the kind without unwrapping.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "voice: " + e.Kind.String()
	}
	return fmt.Sprintf("voice: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Kind and a nil Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the [ErrorKind] of err, or 0 if err is not a voice error.
func KindOf(err error) ErrorKind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return 0
}

// statusText renders the user-facing status line. It never includes raw
// error text.
func statusText(st State, kind ErrorKind, name string) string {
	switch st {
	case Idle:
		return "System link ready"
	case Connecting:
		return "Initializing handshake"
	case Open:
		if name == "" {
			name = "Agent"
		}
		return name + " online"
	case Closed:
		return "Link severed"
	case Errored:
		switch kind {
		case PermissionDenied:
			return "Microphone access denied"
		case ConnectionError:
			return "Connection failed"
		default:
			return "Link lost"
		}
	}
	return "Unknown"
}
