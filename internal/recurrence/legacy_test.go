package recurrence

import (
	"testing"
	"time"
)

func TestDecodeLegacy_typeCodes(t *testing.T) {
	tests := []struct {
		name string
		blob string
		want Type
		ok   bool
	}{
		{"daily", `{"type":16,"interval":3}`, Daily, true},
		{"weekly", `{"type":256,"weekday":2}`, Weekly, true},
		{"monthly", `{"type":8,"day_of_month":31}`, Monthly, true},
		{"unknown code", `{"type":42}`, "", false},
		{"missing type", `{"interval":2}`, "", false},
		{"not json", `\x00\x01repeat`, "", false},
		{"empty", ``, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := DecodeLegacy([]byte(tt.blob))
			if ok != tt.ok {
				t.Fatalf("DecodeLegacy() ok = %v, want %v", ok, tt.ok)
			}
			if ok && r.Type != tt.want {
				t.Errorf("DecodeLegacy() type = %q, want %q", r.Type, tt.want)
			}
		})
	}
}

func TestDecodeLegacy_dates(t *testing.T) {
	want := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		blob string
	}{
		{"epoch seconds", `{"type":16,"anchor_date":1769904000}`},
		{"epoch milliseconds", `{"type":16,"anchor_date":1769904000000}`},
		{"iso date", `{"type":16,"anchor_date":"2026-02-01"}`},
		{"rfc3339", `{"type":16,"anchor_date":"2026-02-01T00:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := DecodeLegacy([]byte(tt.blob))
			if !ok {
				t.Fatal("DecodeLegacy() not ok")
			}
			if r.AnchorDate == nil || !r.AnchorDate.Equal(want) {
				t.Errorf("anchor = %v, want %v", r.AnchorDate, want)
			}
		})
	}
}

func TestDecodeLegacy_permissive(t *testing.T) {
	// Garbage fields on a recognized type decode to a usable rule.
	r, ok := DecodeLegacy([]byte(`{"type":256,"interval":0,"anchor_date":"soon","extra":true}`))
	if !ok {
		t.Fatal("DecodeLegacy() not ok")
	}
	if r.Interval != 1 {
		t.Errorf("interval = %d, want 1", r.Interval)
	}
	if r.AnchorDate != nil {
		t.Errorf("anchor = %v, want nil", r.AnchorDate)
	}

	// A recognized type with an out-of-range weekday is still rejected as
	// "not repeating", never an error.
	if _, ok := DecodeLegacy([]byte(`{"type":256,"weekday":12}`)); ok {
		t.Error("out-of-range weekday should decode as not repeating")
	}
}
