package voice

import (
	"sync"

	"github.com/MrWong99/iq360/internal/transcript"
)

// EventKind discriminates [Event] values delivered to a session observer.
type EventKind int

const (
	// EventState reports a lifecycle transition. Event.State and
	// Event.Status are set.
	EventState EventKind = iota + 1

	// EventTranscript carries a new line in Event.Line.
	EventTranscript

	// EventInterrupted reports a barge-in; Event.Stopped is the number of
	// playback buffers cut off.
	EventInterrupted

	// EventChunkDropped reports a malformed inbound chunk. Event.Err is a
	// *Error of kind DecodeError. The session continues.
	EventChunkDropped

	// EventError reports the failure that moved the session to Errored.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventTranscript:
		return "transcript"
	case EventInterrupted:
		return "interrupted"
	case EventChunkDropped:
		return "chunk_dropped"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one notification to the session observer.
type Event struct {
	Kind    EventKind
	State   State
	Status  string
	Line    transcript.Line
	Stopped int
	Err     error
}

// notifier delivers events to the registered handler on its own goroutine,
// in order and one at a time. Pushing never blocks, so the dispatch loop and
// the capture pump are never held up by a slow observer and a handler may
// call back into the session.
type notifier struct {
	mu      sync.Mutex
	handler func(Event)
	queue   []Event
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newNotifier() *notifier {
	return &notifier{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (n *notifier) setHandler(h func(Event)) {
	n.mu.Lock()
	n.handler = h
	n.mu.Unlock()
}

func (n *notifier) push(ev Event) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, ev)
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// stop lets already queued events drain, then ends run.
func (n *notifier) stop() {
	n.mu.Lock()
	n.stopped = true
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) run() {
	defer close(n.done)
	for range n.wake {
		for {
			n.mu.Lock()
			if len(n.queue) == 0 {
				stopped := n.stopped
				n.mu.Unlock()
				if stopped {
					return
				}
				break
			}
			ev := n.queue[0]
			n.queue = n.queue[1:]
			h := n.handler
			n.mu.Unlock()
			if h != nil {
				h(ev)
			}
		}
	}
}
