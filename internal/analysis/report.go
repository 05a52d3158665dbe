// Package analysis runs the request/response intelligence calls behind the
// dashboard: condition reports from property photos, market comps summaries,
// and assignment contract drafting.
//
// All model access goes through [llm.Provider], so a [Service] can be backed
// by OpenAI, Gemini's OpenAI-compatible endpoint, any-llm backends, a
// [resilience.LLMFallback] chain, or a mock.
package analysis

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Strategy is the recommended acquisition play for a property.
type Strategy string

const (
	StrategyFixAndFlip    Strategy = "FIX & FLIP"
	StrategyBuyAndHold    Strategy = "BUY & HOLD"
	StrategyWholesale     Strategy = "WHOLESALE"
	StrategySellerOptions Strategy = "SELLER OPTIONS"
)

// Complexity is the estimated rehab effort.
type Complexity string

const (
	ComplexityLow    Complexity = "Low"
	ComplexityMedium Complexity = "Medium"
	ComplexityHigh   Complexity = "High"
)

// PropertyReport is the condition assessment produced from one photo.
type PropertyReport struct {
	HealthScore              float64    `json:"healthScore"`
	DistressMarkers          []string   `json:"distressMarkers"`
	VisualDescription        string     `json:"visualDescription"`
	AcquisitionStrategy      Strategy   `json:"acquisitionStrategy"`
	EstimatedRehabComplexity Complexity `json:"estimatedRehabComplexity"`
}

// normalize clamps the score, canonicalises the enum spellings the model
// tends to vary, and guarantees a non-nil marker slice.
func (r *PropertyReport) normalize() {
	r.HealthScore = min(max(r.HealthScore, 0), 1)
	if r.DistressMarkers == nil {
		r.DistressMarkers = []string{}
	}
	r.DistressMarkers = slices.DeleteFunc(r.DistressMarkers, func(s string) bool { return strings.TrimSpace(s) == "" })

	s := strings.ToUpper(strings.TrimSpace(string(r.AcquisitionStrategy)))
	s = strings.NewReplacer("AND", "&", "_", " ", "-", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	for _, known := range []Strategy{StrategyFixAndFlip, StrategyBuyAndHold, StrategyWholesale, StrategySellerOptions} {
		if s == string(known) {
			r.AcquisitionStrategy = known
		}
	}

	c := strings.TrimSpace(string(r.EstimatedRehabComplexity))
	for _, known := range []Complexity{ComplexityLow, ComplexityMedium, ComplexityHigh} {
		if strings.EqualFold(c, string(known)) {
			r.EstimatedRehabComplexity = known
		}
	}
}

// Source is a web reference cited by a market summary.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// MarketReport is a market comps summary with its cited sources.
type MarketReport struct {
	Summary string   `json:"summary"`
	Sources []Source `json:"sources"`
}

// Assessment bundles the two halves of a full property assessment.
type Assessment struct {
	Property PropertyReport `json:"property"`
	Market   MarketReport   `json:"market"`
	// Cached reports whether Property came from the perceptual-hash cache.
	Cached bool `json:"cached"`
}

var (
	// ErrEmptyImage is returned when no image bytes were supplied.
	ErrEmptyImage = errors.New("analysis: empty image")

	// ErrImageTooLarge is returned for photos over [MaxImageBytes].
	ErrImageTooLarge = errors.New("analysis: image too large")

	// ErrEmptyAddress is returned when a comps lookup has no address.
	ErrEmptyAddress = errors.New("analysis: empty address")

	// ErrMalformedReply wraps model output that could not be decoded.
	ErrMalformedReply = errors.New("analysis: malformed model reply")
)

func malformed(err error) error { return fmt.Errorf("%w: %w", ErrMalformedReply, err) }
