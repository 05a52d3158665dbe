package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// hashBits is the dimension of the 0/1 vector a perceptual hash is stored
// as. The squared L2 distance of two such vectors is their Hamming distance.
const hashBits = 64

type migration struct {
	version int
	stmt    string
}

// migrations are applied in order, each at most once. Append only.
var migrations = []migration{
	{1, `
CREATE TABLE session_entries (
    id           BIGSERIAL   PRIMARY KEY,
    session_id   TEXT        NOT NULL,
    speaker_id   TEXT        NOT NULL DEFAULT '',
    speaker_name TEXT        NOT NULL DEFAULT '',
    persona      TEXT        NOT NULL DEFAULT '',
    text         TEXT        NOT NULL,
    timestamp    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX session_entries_by_session ON session_entries (session_id, timestamp);
CREATE INDEX session_entries_fts ON session_entries USING GIN (to_tsvector('english', text));`},
	{2, fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE property_analyses (
    id         TEXT        PRIMARY KEY,
    phash      BIGINT      NOT NULL,
    embedding  vector(%d)  NOT NULL,
    address    TEXT        NOT NULL DEFAULT '',
    report     JSONB       NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX property_analyses_by_phash ON property_analyses (phash);`, hashBits)},
}

// DB is satisfied by both *pgx.Conn and *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrate brings the schema up to date. The applied version is tracked in
// schema_version, so calling it on every start is cheap.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INT NOT NULL)`); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		// Serialise concurrent starts.
		if _, err := tx.Exec(ctx, `LOCK TABLE schema_version IN EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("postgres: migrate: lock: %w", err)
		}
		var current int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
			return fmt.Errorf("postgres: migrate: read version: %w", err)
		}
		for _, m := range migrations {
			if m.version <= current {
				continue
			}
			if _, err := tx.Exec(ctx, m.stmt); err != nil {
				return fmt.Errorf("postgres: migrate to v%d: %w", m.version, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, m.version); err != nil {
				return fmt.Errorf("postgres: migrate to v%d: %w", m.version, err)
			}
		}
		return nil
	})
}
