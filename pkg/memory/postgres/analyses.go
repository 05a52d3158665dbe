package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/MrWong99/iq360/pkg/memory"
)

// AnalysisIndex stores property reports next to their image hash. The hash
// is kept as BIGINT for display and as a 0/1 pgvector for the <-> search.
type AnalysisIndex struct {
	pool *pgxpool.Pool
}

// SaveAnalysis inserts rec, replacing any record with the same ID.
func (x *AnalysisIndex) SaveAnalysis(ctx context.Context, rec memory.AnalysisRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := x.pool.Exec(ctx, `
INSERT INTO property_analyses (id, phash, embedding, address, report, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET phash = EXCLUDED.phash, embedding = EXCLUDED.embedding, address = EXCLUDED.address,
    report = EXCLUDED.report, created_at = EXCLUDED.created_at`,
		rec.ID, int64(rec.Hash), HashVector(rec.Hash), rec.Address, rec.Report, created)
	if err != nil {
		return fmt.Errorf("postgres: save analysis %s: %w", rec.ID, err)
	}
	return nil
}

// NearestAnalysis returns the closest stored record within maxDistance
// differing bits, or nil.
func (x *AnalysisIndex) NearestAnalysis(ctx context.Context, hash uint64, maxDistance int) (*memory.AnalysisRecord, int, error) {
	probe := HashVector(hash)
	var (
		rec   memory.AnalysisRecord
		phash int64
		l2    float64
	)
	err := x.pool.QueryRow(ctx, `
SELECT id, phash, address, report, created_at, embedding <-> $1
FROM property_analyses
ORDER BY embedding <-> $1
LIMIT 1`, probe).Scan(&rec.ID, &phash, &rec.Address, &rec.Report, &rec.CreatedAt, &l2)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, 0, nil
	case err != nil:
		return nil, 0, fmt.Errorf("postgres: nearest analysis: %w", err)
	}

	bits := int(math.Round(l2 * l2))
	if bits > maxDistance {
		return nil, 0, nil
	}
	rec.Hash = uint64(phash)
	return &rec, bits, nil
}

// HashVector spreads hash over a 0/1 vector, most significant bit first.
func HashVector(hash uint64) pgvector.Vector {
	v := make([]float32, hashBits)
	for i := range v {
		v[i] = float32(hash >> (hashBits - 1 - i) & 1)
	}
	return pgvector.NewVector(v)
}
