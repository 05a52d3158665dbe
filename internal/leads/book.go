package leads

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no lead has the requested ID.
	ErrNotFound = errors.New("leads: not found")

	// ErrDuplicateID is returned by Add when the ID is already taken.
	ErrDuplicateID = errors.New("leads: duplicate id")

	// ErrBackwardsStatus is returned when a status change would move a lead
	// back down the pipeline.
	ErrBackwardsStatus = errors.New("leads: status cannot move backwards")

	// ErrClosed is returned for work requested on a CLOSED lead.
	ErrClosed = errors.New("leads: lead is closed")
)

// Book is a thread-safe, in-memory lead store. The zero value is ready to
// use.
type Book struct {
	mu    sync.RWMutex
	leads map[string]Lead
	order []string
}

// NewBook returns a book pre-filled with seed. The first invalid or
// duplicate lead aborts construction.
func NewBook(seed ...Lead) (*Book, error) {
	b := &Book{}
	for _, l := range seed {
		if _, err := b.Add(context.Background(), l); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Add validates l, assigns an ID if it has none and stores it.
func (b *Book) Add(_ context.Context, l Lead) (Lead, error) {
	if l.Status == "" {
		l.Status = StatusIdentified
	}
	if err := Validate(l); err != nil {
		return Lead{}, fmt.Errorf("leads: lead %q: %w", l.Address, err)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.leads == nil {
		b.leads = make(map[string]Lead)
	}
	if _, ok := b.leads[l.ID]; ok {
		return Lead{}, fmt.Errorf("%w: %s", ErrDuplicateID, l.ID)
	}
	l = l.clone()
	b.leads[l.ID] = l
	b.order = append(b.order, l.ID)
	return l.clone(), nil
}

// Merge adds every lead in ls whose ID the book does not know yet. Known
// leads keep their current state. It returns the number added and the
// validation errors of the leads it skipped.
func (b *Book) Merge(ctx context.Context, ls []Lead) (int, error) {
	var (
		added int
		errs  []error
	)
	for _, l := range ls {
		if l.ID != "" {
			if _, err := b.Get(ctx, l.ID); err == nil {
				continue
			}
		}
		if _, err := b.Add(ctx, l); err != nil {
			errs = append(errs, err)
			continue
		}
		added++
	}
	return added, errors.Join(errs...)
}

// Get returns the lead with the given ID.
func (b *Book) Get(_ context.Context, id string) (Lead, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.leads[id]
	if !ok {
		return Lead{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return l.clone(), nil
}

// ListOptions filters and orders List results.
type ListOptions struct {
	// Status, when set, keeps only leads in that status.
	Status Status

	// ByNexus sorts by NexusScore descending instead of insertion order.
	ByNexus bool
}

// List returns a copy of the matching leads.
func (b *Book) List(_ context.Context, opts ListOptions) []Lead {
	b.mu.RLock()
	out := make([]Lead, 0, len(b.order))
	for _, id := range b.order {
		l := b.leads[id]
		if opts.Status != "" && l.Status != opts.Status {
			continue
		}
		out = append(out, l.clone())
	}
	b.mu.RUnlock()

	if opts.ByNexus {
		slices.SortStableFunc(out, func(a, b Lead) int { return cmp.Compare(b.NexusScore, a.NexusScore) })
	}
	return out
}

// Len returns the number of leads.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Advance moves a lead to status. Moving to the current status is a no-op;
// moving backwards returns ErrBackwardsStatus.
func (b *Book) Advance(_ context.Context, id string, status Status) (Lead, error) {
	if !status.IsValid() {
		return Lead{}, fmt.Errorf("leads: unknown status %q", status)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.leads[id]
	if !ok {
		return Lead{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if status.rank() < l.Status.rank() {
		return Lead{}, fmt.Errorf("%w: %s -> %s", ErrBackwardsStatus, l.Status, status)
	}
	l.Status = status
	b.leads[id] = l
	return l.clone(), nil
}

// ApplyAnalysis records a condition assessment on a lead and moves it to
// ANALYZED if it was still IDENTIFIED.
func (b *Book) ApplyAnalysis(_ context.Context, id string, healthScore float64, markers []string) (Lead, error) {
	if healthScore < 0 || healthScore > 1 {
		return Lead{}, fmt.Errorf("leads: health score %.2f outside 0..1", healthScore)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.leads[id]
	if !ok {
		return Lead{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	l.HealthScore = healthScore
	l.DistressMarkers = slices.Clone(markers)
	if l.Status == StatusIdentified {
		l.Status = StatusAnalyzed
	}
	b.leads[id] = l
	return l.clone(), nil
}
