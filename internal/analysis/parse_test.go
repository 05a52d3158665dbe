package analysis

import (
	"errors"
	"reflect"
	"testing"
)

func TestStripFences(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"healthScore":0.5}`, `{"healthScore":0.5}`},
		{"json fence", "```json\n{\"healthScore\":0.5}\n```", `{"healthScore":0.5}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around fence", "Here you go:\n```json\n{\"a\":1}\n```\nThanks!", `{"a":1}`},
		{"prose before object", "Sure! {\"a\":1}", `{"a":1}`},
		{"empty", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFences(tt.in); got != tt.want {
				t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeReport(t *testing.T) {
	t.Parallel()
	reply := "```json\n" + `{
  "healthScore": 1.4,
  "distressMarkers": ["Roof Damage", " ", "Cracked Foundation"],
  "visualDescription": "Two-storey colonial with sagging porch.",
  "acquisitionStrategy": "fix and flip",
  "estimatedRehabComplexity": "high"
}` + "\n```"

	r, err := decodeReport(reply)
	if err != nil {
		t.Fatal(err)
	}
	want := PropertyReport{
		HealthScore:              1,
		DistressMarkers:          []string{"Roof Damage", "Cracked Foundation"},
		VisualDescription:        "Two-storey colonial with sagging porch.",
		AcquisitionStrategy:      StrategyFixAndFlip,
		EstimatedRehabComplexity: ComplexityHigh,
	}
	if !reflect.DeepEqual(r, want) {
		t.Errorf("report = %+v\nwant     %+v", r, want)
	}
}

func TestDecodeReport_EmptyAndMalformed(t *testing.T) {
	t.Parallel()
	r, err := decodeReport("")
	if err != nil {
		t.Fatal(err)
	}
	if r.DistressMarkers == nil || len(r.DistressMarkers) != 0 {
		t.Errorf("markers = %#v, want empty non-nil", r.DistressMarkers)
	}

	if _, err := decodeReport("The roof looks fine."); !errors.Is(err, ErrMalformedReply) {
		t.Errorf("err = %v, want ErrMalformedReply", err)
	}
}

func TestNormalize_Strategies(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Strategy{
		"BUY & HOLD":     StrategyBuyAndHold,
		"buy_and_hold":   StrategyBuyAndHold,
		"Wholesale":      StrategyWholesale,
		"seller-options": StrategySellerOptions,
		"LEASE":          "LEASE",
	} {
		r := PropertyReport{AcquisitionStrategy: Strategy(in), HealthScore: -0.2}
		r.normalize()
		if r.AcquisitionStrategy != want {
			t.Errorf("%q -> %q, want %q", in, r.AcquisitionStrategy, want)
		}
		if r.HealthScore != 0 {
			t.Errorf("health score not clamped: %v", r.HealthScore)
		}
	}
}

func TestExtractSources(t *testing.T) {
	t.Parallel()
	text := `Median sale price near Oak Grove is $305k ([Zillow](https://www.zillow.com/atlanta-ga/)).
Days on market fell per [Redfin report](https://www.redfin.com/news/atl).
See also https://www.realtor.com/research/data/, and the Zillow page again: https://www.zillow.com/atlanta-ga/.`

	got := extractSources(text)
	want := []Source{
		{Title: "Zillow", URI: "https://www.zillow.com/atlanta-ga/"},
		{Title: "Redfin report", URI: "https://www.redfin.com/news/atl"},
		{Title: "www.realtor.com", URI: "https://www.realtor.com/research/data/"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sources = %+v\nwant      %+v", got, want)
	}

	if got := extractSources("no links here"); got == nil || len(got) != 0 {
		t.Errorf("sources = %#v, want empty non-nil", got)
	}
}
