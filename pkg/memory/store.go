// Package memory declares the persistence contracts of IQ 360: the
// transcript log written during voice sessions and the index of property
// analyses keyed by image hash. Implementations live in subpackages and must
// be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// SessionStore is an append-only transcript log. Queries return entries
// oldest first, and an empty non-nil slice when nothing matches.
type SessionStore interface {
	// WriteEntry appends entry under sessionID, which must not be empty.
	WriteEntry(ctx context.Context, sessionID string, entry TranscriptEntry) error

	// GetRecent lists sessionID's entries no older than window.
	GetRecent(ctx context.Context, sessionID string, window time.Duration) ([]TranscriptEntry, error)

	// Search matches query against entry text, narrowed by opts.
	Search(ctx context.Context, query string, opts SearchOpts) ([]TranscriptEntry, error)
}

// AnalysisStore indexes property reports by 64-bit perceptual hash.
type AnalysisStore interface {
	// SaveAnalysis upserts rec by ID.
	SaveAnalysis(ctx context.Context, rec AnalysisRecord) error

	// NearestAnalysis finds the record with the smallest Hamming distance
	// to hash. Distances above maxDistance count as no match, reported as
	// a nil record and nil error.
	NearestAnalysis(ctx context.Context, hash uint64, maxDistance int) (*AnalysisRecord, int, error)
}

// Speaker IDs used in transcript entries.
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// TranscriptEntry is one committed transcript line. Field order matches
// the column order the Postgres log scans into.
type TranscriptEntry struct {
	SpeakerID   string // SpeakerUser or SpeakerAssistant
	SpeakerName string // display name, e.g. "You" or the persona's name
	Persona     string // persona ID of the session
	Text        string
	Timestamp   time.Time
}

func (e TranscriptEntry) IsAssistant() bool { return e.SpeakerID == SpeakerAssistant }

// SearchOpts narrows a transcript search. Zero fields do not filter.
type SearchOpts struct {
	SessionID string
	SpeakerID string
	After     time.Time // exclusive
	Before    time.Time // exclusive
	Limit     int       // 0 lets the store decide
}

// AnalysisRecord is a stored property report.
type AnalysisRecord struct {
	ID        string // UUID
	Hash      uint64
	Address   string
	Report    []byte // JSON
	CreatedAt time.Time
}
