package transcript

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/iq360/pkg/memory"
	memorymock "github.com/MrWong99/iq360/pkg/memory/mock"
)

func TestRecorder_PersistsLines(t *testing.T) {
	t.Parallel()

	store := &memorymock.SessionStore{}
	r := NewRecorder(store, "sess-1", "echo", "Echo")

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.Record(Line{Speaker: Local, Text: "Pull comps for 1204 Oak", At: at})
	r.Record(Line{Speaker: Remote, Text: "On it.", At: at.Add(time.Second)})
	r.Close()

	entries := store.Entries()
	if len(entries) != 2 {
		t.Fatalf("stored %d entries, want 2", len(entries))
	}
	if e := entries[0]; e.SpeakerID != memory.SpeakerUser || e.SpeakerName != "User" || e.Persona != "echo" || !e.Timestamp.Equal(at) {
		t.Errorf("entry 0 = %+v", e)
	}
	if e := entries[1]; !e.IsAssistant() || e.SpeakerName != "Echo" || e.Text != "On it." {
		t.Errorf("entry 1 = %+v", e)
	}
	for _, c := range store.Calls() {
		if c.Method == "WriteEntry" && c.Args[0] != "sess-1" {
			t.Errorf("WriteEntry session = %v, want sess-1", c.Args[0])
		}
	}
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	store := &memorymock.SessionStore{
		WriteEntryHook: func(string, memory.TranscriptEntry) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
		},
	}
	var dropped atomic.Int32
	r := NewRecorder(store, "sess-1", "atlas", "Atlas",
		WithQueueSize(1),
		WithDropHook(func() { dropped.Add(1) }),
	)

	// First line is picked up by the writer and blocks in the hook.
	r.Record(Line{Speaker: Local, Text: "a", At: time.Now()})
	<-started
	// Second fills the queue, third is dropped.
	r.Record(Line{Speaker: Local, Text: "b", At: time.Now()})
	r.Record(Line{Speaker: Local, Text: "c", At: time.Now()})

	if got := dropped.Load(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
	close(release)
	r.Close()

	if got := store.CallCount("WriteEntry"); got != 2 {
		t.Errorf("WriteEntry calls = %d, want 2", got)
	}
}

func TestRecorder_StoreErrorDoesNotStop(t *testing.T) {
	t.Parallel()

	store := &memorymock.SessionStore{WriteEntryErr: errors.New("db down")}
	r := NewRecorder(store, "sess-1", "echo", "Echo")
	r.Record(Line{Speaker: Local, Text: "a", At: time.Now()})
	r.Record(Line{Speaker: Remote, Text: "b", At: time.Now()})
	r.Close()

	if got := store.CallCount("WriteEntry"); got != 2 {
		t.Errorf("WriteEntry calls = %d, want 2", got)
	}
}

func TestRecorder_CloseIdempotentAndRecordAfterClose(t *testing.T) {
	t.Parallel()

	store := &memorymock.SessionStore{}
	r := NewRecorder(store, "sess-1", "echo", "Echo")
	r.Close()
	r.Close()
	r.Record(Line{Speaker: Local, Text: "late", At: time.Now()})

	if got := store.CallCount("WriteEntry"); got != 0 {
		t.Errorf("WriteEntry calls = %d, want 0", got)
	}
}
