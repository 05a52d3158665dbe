// Package leads holds the property lead book: acquisition targets with owner
// context and underwriting numbers, seeded from YAML and updated as the
// analysis service and contract desk work them.
package leads

import (
	"errors"
	"fmt"
	"slices"
)

// Status is a lead's position in the acquisition pipeline.
type Status string

const (
	StatusIdentified        Status = "IDENTIFIED"
	StatusAnalyzed          Status = "ANALYZED"
	StatusNegotiating       Status = "NEGOTIATING"
	StatusContractTriggered Status = "CONTRACT_TRIGGERED"
	StatusClosed            Status = "CLOSED"
)

var pipeline = []Status{
	StatusIdentified,
	StatusAnalyzed,
	StatusNegotiating,
	StatusContractTriggered,
	StatusClosed,
}

// IsValid reports whether s is a known pipeline status.
func (s Status) IsValid() bool { return slices.Contains(pipeline, s) }

// rank orders statuses along the pipeline; unknown statuses rank -1.
func (s Status) rank() int { return slices.Index(pipeline, s) }

// Owner is what is known about the current title holder.
type Owner struct {
	Name            string `yaml:"name"             json:"name"`
	FinancialStrain string `yaml:"financial_strain" json:"financialStrain"`
	LastContact     string `yaml:"last_contact"     json:"lastContact"`
}

// Financials are the underwriting figures for a lead. Rates are fractions
// (0.32 means 32%).
type Financials struct {
	IRR          float64 `yaml:"irr"           json:"irr"`
	NPV          float64 `yaml:"npv"           json:"npv"`
	CoC          float64 `yaml:"coc"           json:"coc"`
	ExitForecast float64 `yaml:"exit_forecast" json:"exitForecast"`
}

// Lead is one property under consideration.
type Lead struct {
	ID              string     `yaml:"id"               json:"id"`
	Address         string     `yaml:"address"          json:"address"`
	Price           float64    `yaml:"price"            json:"price"`
	MarketValue     float64    `yaml:"market_value"     json:"marketValue"`
	Status          Status     `yaml:"status"           json:"status"`
	NexusScore      int        `yaml:"nexus_score"      json:"nexusScore"`
	MotivationDelta float64    `yaml:"motivation_delta" json:"motivationDelta"`
	HealthScore     float64    `yaml:"health_score"     json:"healthScore"`
	DistressMarkers []string   `yaml:"distress_markers" json:"distressMarkers"`
	Owner           Owner      `yaml:"owner"            json:"ownerInfo"`
	Financials      Financials `yaml:"financials"       json:"financials"`
}

// Equity is the spread between market value and asking price.
func (l Lead) Equity() float64 { return l.MarketValue - l.Price }

func (l Lead) clone() Lead {
	l.DistressMarkers = slices.Clone(l.DistressMarkers)
	return l
}

// Validate checks a lead's fields. An empty ID is allowed; the book assigns
// one on Add.
func Validate(l Lead) error {
	var errs []error
	if l.Address == "" {
		errs = append(errs, errors.New("address must not be empty"))
	}
	if l.Price < 0 || l.MarketValue < 0 {
		errs = append(errs, errors.New("price and market value must not be negative"))
	}
	if !l.Status.IsValid() {
		errs = append(errs, fmt.Errorf("status %q is not a pipeline status", l.Status))
	}
	if l.NexusScore < 0 || l.NexusScore > 100 {
		errs = append(errs, fmt.Errorf("nexus score %d outside 0..100", l.NexusScore))
	}
	for name, v := range map[string]float64{"motivation delta": l.MotivationDelta, "health score": l.HealthScore} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f outside 0..1", name, v))
		}
	}
	return errors.Join(errs...)
}
