package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/iq360/pkg/memory"
)

// TranscriptLog keeps session transcripts in session_entries. Text search
// uses the english GIN index.
type TranscriptLog struct {
	pool *pgxpool.Pool
}

var errNoSession = errors.New("empty session id")

// WriteEntry appends entry to sessionID's log. A zero timestamp is
// replaced with the current time.
func (l *TranscriptLog) WriteEntry(ctx context.Context, sessionID string, entry memory.TranscriptEntry) error {
	if sessionID == "" {
		return fmt.Errorf("postgres: write entry: %w", errNoSession)
	}
	at := entry.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO session_entries (session_id, speaker_id, speaker_name, persona, text, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sessionID, entry.SpeakerID, entry.SpeakerName, entry.Persona, entry.Text, at)
	if err != nil {
		return fmt.Errorf("postgres: write entry: %w", err)
	}
	return nil
}

// GetRecent lists sessionID's entries from the last window, oldest first.
func (l *TranscriptLog) GetRecent(ctx context.Context, sessionID string, window time.Duration) ([]memory.TranscriptEntry, error) {
	var f filter
	f.add("session_id = ", sessionID)
	f.add("timestamp >= ", time.Now().Add(-window))
	entries, err := l.query(ctx, &f)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent entries: %w", err)
	}
	return entries, nil
}

// Search runs a plain-language full-text query over entry text, narrowed
// by the non-zero fields of opts.
func (l *TranscriptLog) Search(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.TranscriptEntry, error) {
	var f filter
	f.add("to_tsvector('english', text) @@ plainto_tsquery('english', ", query, ")")
	if opts.SessionID != "" {
		f.add("session_id = ", opts.SessionID)
	}
	if opts.SpeakerID != "" {
		f.add("speaker_id = ", opts.SpeakerID)
	}
	if !opts.After.IsZero() {
		f.add("timestamp > ", opts.After)
	}
	if !opts.Before.IsZero() {
		f.add("timestamp < ", opts.Before)
	}
	f.limit = opts.Limit
	entries, err := l.query(ctx, &f)
	if err != nil {
		return nil, fmt.Errorf("postgres: search entries: %w", err)
	}
	return entries, nil
}

func (l *TranscriptLog) query(ctx context.Context, f *filter) ([]memory.TranscriptEntry, error) {
	rows, err := l.pool.Query(ctx, f.sql(), f.args...)
	if err != nil {
		return nil, err
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[memory.TranscriptEntry])
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []memory.TranscriptEntry{}
	}
	return entries, nil
}

// filter accumulates positional WHERE conditions over session_entries.
type filter struct {
	conds []string
	args  []any
	limit int
}

// add appends prefix + $n + suffix and binds v to $n.
func (f *filter) add(prefix string, v any, suffix ...string) {
	f.args = append(f.args, v)
	f.conds = append(f.conds, prefix+"$"+strconv.Itoa(len(f.args))+strings.Join(suffix, ""))
}

func (f *filter) sql() string {
	var b strings.Builder
	b.WriteString("SELECT speaker_id, speaker_name, persona, text, timestamp FROM session_entries")
	if len(f.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(f.conds, " AND "))
	}
	b.WriteString(" ORDER BY timestamp, id")
	if f.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(f.limit))
	}
	return b.String()
}
