package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/iq360/pkg/memory"
	"github.com/MrWong99/iq360/pkg/memory/mock"
)

func TestSessionStore_RecentAndSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &mock.SessionStore{}
	now := time.Now()

	for _, w := range []struct {
		session string
		entry   memory.TranscriptEntry
	}{
		{"s1", memory.TranscriptEntry{SpeakerID: memory.SpeakerUser, Text: "How bad is the Roof?", Timestamp: now.Add(-time.Hour)}},
		{"s1", memory.TranscriptEntry{SpeakerID: memory.SpeakerAssistant, Text: "The roof needs work.", Timestamp: now.Add(-time.Minute)}},
		{"s2", memory.TranscriptEntry{SpeakerID: memory.SpeakerUser, Text: "roof again"}},
	} {
		if err := store.WriteEntry(ctx, w.session, w.entry); err != nil {
			t.Fatal(err)
		}
	}

	recent, _ := store.GetRecent(ctx, "s1", 10*time.Minute)
	if len(recent) != 1 || !recent[0].IsAssistant() {
		t.Errorf("GetRecent = %+v", recent)
	}
	if none, _ := store.GetRecent(ctx, "s9", time.Hour); none == nil || len(none) != 0 {
		t.Errorf("GetRecent unknown session = %#v, want empty non-nil", none)
	}

	tests := []struct {
		name string
		opts memory.SearchOpts
		want int
	}{
		{"all", memory.SearchOpts{}, 3},
		{"session", memory.SearchOpts{SessionID: "s1"}, 2},
		{"speaker", memory.SearchOpts{SpeakerID: memory.SpeakerAssistant}, 1},
		{"after", memory.SearchOpts{After: now.Add(-30 * time.Minute)}, 2},
		{"limit", memory.SearchOpts{Limit: 1}, 1},
	}
	for _, tt := range tests {
		got, err := store.Search(ctx, "ROOF", tt.opts)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tt.want {
			t.Errorf("%s: %d results, want %d", tt.name, len(got), tt.want)
		}
	}
	if n := store.CallCount("Search"); n != len(tests) {
		t.Errorf("Search calls = %d", n)
	}
}

func TestSessionStore_WriteErrorNotKept(t *testing.T) {
	t.Parallel()
	store := &mock.SessionStore{WriteEntryErr: errors.New("down")}
	if err := store.WriteEntry(context.Background(), "s", memory.TranscriptEntry{Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if got, _ := store.Search(context.Background(), "x", memory.SearchOpts{}); len(got) != 0 {
		t.Errorf("failed write was kept: %+v", got)
	}
	if len(store.Entries()) != 1 {
		t.Errorf("Entries() should include the attempted write")
	}
}

func TestAnalysisStore_Nearest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &mock.AnalysisStore{}
	_ = store.SaveAnalysis(ctx, memory.AnalysisRecord{ID: "a", Hash: 0xFF00})
	_ = store.SaveAnalysis(ctx, memory.AnalysisRecord{ID: "b", Hash: 0x00FF})
	_ = store.SaveAnalysis(ctx, memory.AnalysisRecord{ID: "a", Hash: 0xFF01, Address: "updated"})

	rec, dist, err := store.NearestAnalysis(ctx, 0xFF03, 2)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.ID != "a" || rec.Address != "updated" || dist != 1 {
		t.Errorf("nearest = %+v dist %d", rec, dist)
	}
	if rec, _, _ := store.NearestAnalysis(ctx, 0xF0F0, 2); rec != nil {
		t.Errorf("expected no match, got %+v", rec)
	}
}
