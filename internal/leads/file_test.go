package leads

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestLoadFile_Seed(t *testing.T) {
	t.Parallel()
	b, err := LoadFile("../../configs/leads.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}
	l, err := b.Get(context.Background(), "2")
	if err != nil {
		t.Fatal(err)
	}
	if l.Owner.Name != "Sarah Jennings" || l.Status != StatusNegotiating || l.Financials.ExitForecast != 610000 {
		t.Errorf("lead 2 = %+v", l)
	}
}

func TestLoadFromReader(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantLen int
		wantErr string
	}{
		{name: "empty", yaml: "", wantLen: 0},
		{name: "minimal", yaml: "leads:\n  - address: 9 Elm St\n", wantLen: 1},
		{name: "unknown key", yaml: "leads:\n  - address: 9 Elm St\n    colour: red\n", wantErr: "colour"},
		{name: "invalid lead", yaml: "leads:\n  - address: 9 Elm St\n    status: SOLD\n", wantErr: "SOLD"},
		{name: "duplicate", yaml: "leads:\n  - {id: x, address: a}\n  - {id: x, address: b}\n", wantErr: "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := LoadFromReader(strings.NewReader(tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if b.Len() != tt.wantLen {
				t.Errorf("len = %d, want %d", b.Len(), tt.wantLen)
			}
		})
	}
}

func TestLead_JSONNames(t *testing.T) {
	t.Parallel()
	// The API serves the camelCase names the dashboard consumes.
	var l Lead
	for field, tag := range map[string]string{"Owner": "ownerInfo", "MarketValue": "marketValue", "NexusScore": "nexusScore"} {
		if got := jsonTag(l, field); got != tag {
			t.Errorf("%s json tag = %q, want %q", field, got, tag)
		}
	}
}

func jsonTag(v any, field string) string {
	f, ok := reflect.TypeOf(v).FieldByName(field)
	if !ok {
		return ""
	}
	return f.Tag.Get("json")
}
