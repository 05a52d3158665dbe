// Package capture acquires microphone audio for a voice session.
//
// A [Source] hands out at most one live [Stream] at a time: opening a second
// stream while the first is still held fails with [ErrBusy]. Streams deliver
// float32 sample blocks of whatever size the host prefers; framing into
// fixed-size outbound frames is done by [audio.Framer].
package capture

import (
	"context"
	"errors"

	"github.com/MrWong99/iq360/pkg/audio"
)

var (
	// ErrPermissionDenied is returned when the host refuses access to the
	// input device.
	ErrPermissionDenied = errors.New("capture: microphone access denied")

	// ErrBusy is returned when the source already has a live stream.
	ErrBusy = errors.New("capture: microphone already in use")
)

// Stream is an open microphone. Samples is closed when the stream stops,
// either because Close was called, the open context was cancelled, or the
// device failed.
type Stream interface {
	Samples() <-chan []float32
	Format() audio.Format
	Close() error
}

// Source opens microphone streams.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}
