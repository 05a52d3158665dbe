package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"log/slog"
	"math/bits"
	"slices"
	"sync"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/google/uuid"

	"github.com/MrWong99/iq360/pkg/memory"
)

// DefaultMaxDistance is the Hamming distance at or below which two photos
// count as the same shot.
const DefaultMaxDistance = 4

// defaultCacheSize bounds the in-process cache.
const defaultCacheSize = 256

// imageHash returns the 64-bit perceptual hash of an encoded image.
func imageHash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("analysis: decode image: %w", err)
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("analysis: perception hash: %w", err)
	}
	return h.GetHash(), nil
}

type cached struct {
	hash   uint64
	report PropertyReport
}

// HashCache remembers property reports by perceptual hash so re-uploads and
// near-duplicate photos skip the vision call. Lookups check the in-process
// ring first, then the optional persistent store.
type HashCache struct {
	store       memory.AnalysisStore
	maxDistance int
	size        int

	mu      sync.Mutex
	entries []cached
	next    int
}

// CacheOption configures a [HashCache].
type CacheOption func(*HashCache)

// WithStore backs the cache with a persistent [memory.AnalysisStore].
func WithStore(s memory.AnalysisStore) CacheOption {
	return func(c *HashCache) { c.store = s }
}

// WithMaxDistance sets the near-duplicate threshold.
func WithMaxDistance(d int) CacheOption {
	return func(c *HashCache) { c.maxDistance = d }
}

// WithCacheSize sets how many reports are kept in process.
func WithCacheSize(n int) CacheOption {
	return func(c *HashCache) {
		if n > 0 {
			c.size = n
		}
	}
}

// NewHashCache returns an empty cache.
func NewHashCache(opts ...CacheOption) *HashCache {
	c := &HashCache{maxDistance: DefaultMaxDistance, size: defaultCacheSize}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Lookup returns the closest cached report within the distance threshold.
// Store errors are logged and treated as a miss.
func (c *HashCache) Lookup(ctx context.Context, hash uint64) (PropertyReport, bool) {
	c.mu.Lock()
	best, bestDist := -1, c.maxDistance+1
	for i, e := range c.entries {
		if d := bits.OnesCount64(e.hash ^ hash); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best >= 0 {
		r := c.entries[best].report
		c.mu.Unlock()
		r.DistressMarkers = slices.Clone(r.DistressMarkers)
		return r, true
	}
	c.mu.Unlock()

	if c.store == nil {
		return PropertyReport{}, false
	}
	rec, dist, err := c.store.NearestAnalysis(ctx, hash, c.maxDistance)
	if err != nil {
		slog.Warn("analysis cache lookup failed", "err", err)
		return PropertyReport{}, false
	}
	if rec == nil {
		return PropertyReport{}, false
	}
	var r PropertyReport
	if err := json.Unmarshal(rec.Report, &r); err != nil {
		slog.Warn("analysis cache record unreadable", "id", rec.ID, "err", err)
		return PropertyReport{}, false
	}
	slog.Debug("analysis cache hit from store", "id", rec.ID, "distance", dist)
	c.remember(hash, r)
	return r, true
}

// Put stores a report in process and, when configured, in the store.
func (c *HashCache) Put(ctx context.Context, hash uint64, address string, r PropertyReport) error {
	c.remember(hash, r)
	if c.store == nil {
		return nil
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("analysis: encode report: %w", err)
	}
	rec := memory.AnalysisRecord{
		ID:        uuid.NewString(),
		Hash:      hash,
		Address:   address,
		Report:    body,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.SaveAnalysis(ctx, rec); err != nil {
		return fmt.Errorf("analysis: save report: %w", err)
	}
	return nil
}

func (c *HashCache) remember(hash uint64, r PropertyReport) {
	r.DistressMarkers = slices.Clone(r.DistressMarkers)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) < c.size {
		c.entries = append(c.entries, cached{hash: hash, report: r})
		return
	}
	c.entries[c.next] = cached{hash: hash, report: r}
	c.next = (c.next + 1) % c.size
}

// Len returns the number of in-process entries.
func (c *HashCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
