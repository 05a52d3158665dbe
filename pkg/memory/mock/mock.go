// Package mock holds in-memory fakes of the memory stores. Both keep what
// they are given and answer queries from it, so they can stand in for the
// Postgres store; every call is also recorded for assertions:
//
//	store := &mock.SessionStore{}
//	// ... run the code under test
//	if n := store.CallCount("WriteEntry"); n != 2 {
//		t.Errorf("WriteEntry calls = %d, want 2", n)
//	}
package mock

import (
	"context"
	"math/bits"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/iq360/pkg/memory"
)

var (
	_ memory.SessionStore  = (*SessionStore)(nil)
	_ memory.AnalysisStore = (*AnalysisStore)(nil)
)

// Call is one recorded method invocation, context omitted.
type Call struct {
	Method string
	Args   []any
}

type recorder struct {
	mu    sync.Mutex
	calls []Call
}

// record appends a call; the caller holds mu.
func (r *recorder) record(method string, args ...any) {
	r.calls = append(r.calls, Call{Method: method, Args: args})
}

// Calls snapshots the recorded invocations in order.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallCount reports how often method was invoked.
func (r *recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

type loggedEntry struct {
	session string
	memory.TranscriptEntry
}

// SessionStore is an in-memory transcript log. Search matches the query as
// a case-insensitive substring.
type SessionStore struct {
	recorder

	// WriteEntryErr fails every write; failed writes are not kept.
	WriteEntryErr error

	// WriteEntryHook runs before each write, outside the lock, so tests can
	// block the writer.
	WriteEntryHook func(sessionID string, entry memory.TranscriptEntry)

	log []loggedEntry
}

func (m *SessionStore) WriteEntry(_ context.Context, sessionID string, entry memory.TranscriptEntry) error {
	if m.WriteEntryHook != nil {
		m.WriteEntryHook(sessionID, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("WriteEntry", sessionID, entry)
	if m.WriteEntryErr != nil {
		return m.WriteEntryErr
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	m.log = append(m.log, loggedEntry{sessionID, entry})
	return nil
}

// Entries lists every entry passed to WriteEntry, failed ones included.
func (m *SessionStore) Entries() []memory.TranscriptEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []memory.TranscriptEntry
	for _, c := range m.calls {
		if c.Method == "WriteEntry" {
			out = append(out, c.Args[1].(memory.TranscriptEntry))
		}
	}
	return out
}

func (m *SessionStore) GetRecent(_ context.Context, sessionID string, window time.Duration) ([]memory.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetRecent", sessionID, window)
	since := time.Now().Add(-window)
	return m.filter(func(e loggedEntry) bool {
		return e.session == sessionID && !e.Timestamp.Before(since)
	}, 0), nil
}

func (m *SessionStore) Search(_ context.Context, query string, opts memory.SearchOpts) ([]memory.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Search", query, opts)
	q := strings.ToLower(query)
	return m.filter(func(e loggedEntry) bool {
		switch {
		case !strings.Contains(strings.ToLower(e.Text), q):
		case opts.SessionID != "" && e.session != opts.SessionID:
		case opts.SpeakerID != "" && e.SpeakerID != opts.SpeakerID:
		case !opts.After.IsZero() && !e.Timestamp.After(opts.After):
		case !opts.Before.IsZero() && !e.Timestamp.Before(opts.Before):
		default:
			return true
		}
		return false
	}, opts.Limit), nil
}

// filter returns matching entries oldest first, at most limit when positive.
func (m *SessionStore) filter(keep func(loggedEntry) bool, limit int) []memory.TranscriptEntry {
	out := []memory.TranscriptEntry{}
	for _, e := range m.log {
		if keep(e) {
			out = append(out, e.TranscriptEntry)
		}
	}
	slices.SortStableFunc(out, func(a, b memory.TranscriptEntry) int { return a.Timestamp.Compare(b.Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// AnalysisStore is an in-memory analysis index with a linear Hamming scan.
type AnalysisStore struct {
	recorder

	SaveErr    error
	NearestErr error

	records []memory.AnalysisRecord
}

func (m *AnalysisStore) SaveAnalysis(_ context.Context, rec memory.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SaveAnalysis", rec)
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if i := slices.IndexFunc(m.records, func(r memory.AnalysisRecord) bool { return r.ID == rec.ID }); i >= 0 {
		m.records[i] = rec
	} else {
		m.records = append(m.records, rec)
	}
	return nil
}

func (m *AnalysisStore) NearestAnalysis(_ context.Context, hash uint64, maxDistance int) (*memory.AnalysisRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("NearestAnalysis", hash, maxDistance)
	if m.NearestErr != nil {
		return nil, 0, m.NearestErr
	}
	var best *memory.AnalysisRecord
	bestDist := maxDistance + 1
	for _, r := range m.records {
		if d := bits.OnesCount64(r.Hash ^ hash); d < bestDist {
			best, bestDist = &r, d
		}
	}
	if best == nil {
		return nil, 0, nil
	}
	return best, bestDist, nil
}
