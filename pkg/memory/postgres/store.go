// Package postgres persists IQ 360 transcripts and property analyses in
// PostgreSQL through a shared pgx pool.
//
// Analyses are indexed with pgvector, so the target database needs the
// vector extension available; [Migrate] enables it.
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//	err = store.Transcripts().WriteEntry(ctx, sessionID, entry)
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/iq360/pkg/memory"
)

var (
	_ memory.SessionStore  = (*TranscriptLog)(nil)
	_ memory.AnalysisStore = (*AnalysisIndex)(nil)
)

// Store owns the pool behind both stores. Safe for concurrent use.
type Store struct {
	pool        *pgxpool.Pool
	transcripts *TranscriptLog
	analyses    *AnalysisIndex
}

// Option tunes the pool before it connects.
type Option func(*pgxpool.Config)

// WithMaxConns caps the number of pooled connections.
func WithMaxConns(n int32) Option {
	return func(c *pgxpool.Config) { c.MaxConns = n }
}

// WithConnLifetime recycles connections older than d.
func WithConnLifetime(d time.Duration) Option {
	return func(c *pgxpool.Config) { c.MaxConnLifetime = d }
}

// NewStore connects to dsn, applies pending migrations and opens the pool.
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	for _, o := range opts {
		o(cfg)
	}

	// The vector type exists only after migration, so migrate over a
	// plain connection before any pooled one tries to register it.
	boot, err := pgx.ConnectConfig(ctx, cfg.ConnConfig.Copy())
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	err = Migrate(ctx, boot)
	_ = boot.Close(ctx)
	if err != nil {
		return nil, err
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{
		pool:        pool,
		transcripts: &TranscriptLog{pool: pool},
		analyses:    &AnalysisIndex{pool: pool},
	}, nil
}

// Transcripts returns the [memory.SessionStore] view.
func (s *Store) Transcripts() *TranscriptLog { return s.transcripts }

// Analyses returns the [memory.AnalysisStore] view.
func (s *Store) Analyses() *AnalysisIndex { return s.analyses }

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() { s.pool.Close() }
