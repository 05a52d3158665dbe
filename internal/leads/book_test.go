package leads

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func sampleLead(id string, nexus int) Lead {
	return Lead{
		ID:              id,
		Address:         "4521 Oak Grove Ave, Atlanta, GA",
		Price:           185000,
		MarketValue:     310000,
		Status:          StatusIdentified,
		NexusScore:      nexus,
		MotivationDelta: 0.9,
		HealthScore:     0.45,
		DistressMarkers: []string{"Roof Damage"},
	}
}

func TestBook_AddGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := &Book{}

	added, err := b.Add(ctx, Lead{Address: "1 Main St", Price: 1, MarketValue: 2})
	if err != nil {
		t.Fatal(err)
	}
	if added.ID == "" {
		t.Fatal("expected generated ID")
	}
	if added.Status != StatusIdentified {
		t.Errorf("status = %q, want IDENTIFIED default", added.Status)
	}

	got, err := b.Get(ctx, added.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Address != "1 Main St" || got.Equity() != 1 {
		t.Errorf("got %+v", got)
	}

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := b.Add(ctx, Lead{ID: added.ID, Address: "dup"}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
}

func TestBook_ReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, err := NewBook(sampleLead("1", 50))
	if err != nil {
		t.Fatal(err)
	}
	l, _ := b.Get(ctx, "1")
	l.DistressMarkers[0] = "mutated"
	again, _ := b.Get(ctx, "1")
	if again.DistressMarkers[0] != "Roof Damage" {
		t.Errorf("book mutated through returned lead: %v", again.DistressMarkers)
	}
}

func TestBook_List(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, c := sampleLead("a", 40), sampleLead("c", 90)
	c.Status = StatusNegotiating
	b, err := NewBook(a, sampleLead("b", 70), c)
	if err != nil {
		t.Fatal(err)
	}

	ids := func(ls []Lead) string {
		var s []string
		for _, l := range ls {
			s = append(s, l.ID)
		}
		return strings.Join(s, ",")
	}
	if got := ids(b.List(ctx, ListOptions{})); got != "a,b,c" {
		t.Errorf("insertion order = %s", got)
	}
	if got := ids(b.List(ctx, ListOptions{ByNexus: true})); got != "c,b,a" {
		t.Errorf("nexus order = %s", got)
	}
	if got := ids(b.List(ctx, ListOptions{Status: StatusNegotiating})); got != "c" {
		t.Errorf("status filter = %s", got)
	}
	if b.Len() != 3 {
		t.Errorf("len = %d", b.Len())
	}
}

func TestBook_Advance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _ := NewBook(sampleLead("1", 10))

	l, err := b.Advance(ctx, "1", StatusContractTriggered)
	if err != nil || l.Status != StatusContractTriggered {
		t.Fatalf("advance: %+v, %v", l, err)
	}
	if _, err := b.Advance(ctx, "1", StatusContractTriggered); err != nil {
		t.Errorf("same status: %v", err)
	}
	if _, err := b.Advance(ctx, "1", StatusAnalyzed); !errors.Is(err, ErrBackwardsStatus) {
		t.Errorf("err = %v, want ErrBackwardsStatus", err)
	}
	if _, err := b.Advance(ctx, "1", "SOLD"); err == nil {
		t.Error("expected error for unknown status")
	}
	if _, err := b.Advance(ctx, "nope", StatusClosed); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBook_ApplyAnalysis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	negotiating := sampleLead("2", 10)
	negotiating.Status = StatusNegotiating
	b, _ := NewBook(sampleLead("1", 10), negotiating)

	l, err := b.ApplyAnalysis(ctx, "1", 0.7, []string{"Gutter Damage"})
	if err != nil {
		t.Fatal(err)
	}
	if l.Status != StatusAnalyzed || l.HealthScore != 0.7 || l.DistressMarkers[0] != "Gutter Damage" {
		t.Errorf("got %+v", l)
	}

	l, _ = b.ApplyAnalysis(ctx, "2", 0.5, nil)
	if l.Status != StatusNegotiating {
		t.Errorf("status = %q, later status must be kept", l.Status)
	}
	if _, err := b.ApplyAnalysis(ctx, "1", 1.5, nil); err == nil {
		t.Error("expected range error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	bad := Lead{Price: -1, Status: "SOLD", NexusScore: 120, HealthScore: 2}
	err := Validate(bad)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"address", "negative", "SOLD", "120", "health score"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q lacks %q", err, want)
		}
	}
	if err := Validate(sampleLead("", 0)); err != nil {
		t.Errorf("valid lead: %v", err)
	}
}

func TestBook_Concurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := &Book{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := b.Add(ctx, sampleLead("", 1))
			if err != nil {
				t.Error(err)
				return
			}
			_, _ = b.ApplyAnalysis(ctx, l.ID, 0.5, nil)
			_ = b.List(ctx, ListOptions{ByNexus: true})
		}()
	}
	wg.Wait()
	if b.Len() != 20 {
		t.Errorf("len = %d", b.Len())
	}
}

func TestBook_Merge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, err := NewBook(sampleLead("1", 50))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Advance(ctx, "1", StatusNegotiating); err != nil {
		t.Fatal(err)
	}

	bad := sampleLead("3", 50)
	bad.Address = ""
	added, err := b.Merge(ctx, []Lead{sampleLead("1", 10), sampleLead("2", 60), bad})
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if err == nil {
		t.Error("expected validation error for lead 3")
	}
	l, _ := b.Get(ctx, "1")
	if l.Status != StatusNegotiating || l.NexusScore != 50 {
		t.Errorf("known lead overwritten: %+v", l)
	}
	if b.Len() != 2 {
		t.Errorf("len = %d, want 2", b.Len())
	}
}
