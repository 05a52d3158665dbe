// Package transcript keeps the rolling conversation window shown alongside a
// voice session and optionally persists every line.
//
// The [Aggregator] is a bounded, ordered window: appending beyond capacity
// evicts the oldest line. A [Recorder] forwards lines to a
// [memory.SessionStore] on its own goroutine so that slow storage never stalls
// the session's dispatch loop.
package transcript

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultWindow is the number of lines kept when no capacity is given.
const DefaultWindow = 5

// Speaker identifies which side of the conversation produced a line.
type Speaker int

const (
	// Local is the person at the microphone.
	Local Speaker = iota + 1

	// Remote is the persona's synthesised voice.
	Remote
)

// String returns the label used when rendering a line.
func (s Speaker) String() string {
	switch s {
	case Local:
		return "User"
	case Remote:
		return "AI"
	default:
		return fmt.Sprintf("Speaker(%d)", int(s))
	}
}

// Line is one transcript entry.
type Line struct {
	Speaker Speaker
	Text    string
	At      time.Time
}

// String renders the line as "User: text" or "AI: text".
func (l Line) String() string {
	return l.Speaker.String() + ": " + l.Text
}

// Aggregator is a bounded, arrival-ordered transcript window.
// It is safe for concurrent use.
type Aggregator struct {
	mu    sync.Mutex
	cap   int
	lines []Line
	now   func() time.Time
}

// NewAggregator returns an Aggregator holding at most capacity lines.
// A non-positive capacity selects [DefaultWindow].
func NewAggregator(capacity int) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return &Aggregator{
		cap:   capacity,
		lines: make([]Line, 0, capacity),
		now:   time.Now,
	}
}

// Append adds a line, evicting the oldest one if the window is full. Text
// that is empty after trimming whitespace is ignored. It returns the stored
// line and whether anything was appended.
func (a *Aggregator) Append(sp Speaker, text string) (Line, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Line{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	l := Line{Speaker: sp, Text: text, At: a.now()}
	if len(a.lines) == a.cap {
		copy(a.lines, a.lines[1:])
		a.lines = a.lines[:a.cap-1]
	}
	a.lines = append(a.lines, l)
	return l, true
}

// Lines returns a copy of the window, oldest first.
func (a *Aggregator) Lines() []Line {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Line, len(a.lines))
	copy(out, a.lines)
	return out
}

// Len returns the number of lines currently held.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.lines)
}

// Cap returns the window capacity.
func (a *Aggregator) Cap() int { return a.cap }
