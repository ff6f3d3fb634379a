package task

import (
	"testing"
	"time"

	"satchel/internal/recurrence"
)

func TestDecodeRule(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want recurrence.Type
		ok   bool
	}{
		{"canonical", `{"type":"weekly","interval":2,"weekday":1}`, recurrence.Weekly, true},
		{"legacy code", `{"type":16,"interval":3}`, recurrence.Daily, true},
		{"empty", ``, "", false},
		{"garbage", `---`, "", false},
		{"unknown canonical type", `{"type":"hourly"}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := decodeRule([]byte(tt.raw))
			if ok != tt.ok {
				t.Fatalf("decodeRule() ok = %v, want %v", ok, tt.ok)
			}
			if ok && r.Type != tt.want {
				t.Errorf("decodeRule() type = %q, want %q", r.Type, tt.want)
			}
		})
	}
}

// A rule carrying a fixed anchor must not freeze the series: once an
// instance has its own deadline, the next deadline derives from that, so
// every completion moves forward instead of recomputing the same date.
func TestCompletionAnchor(t *testing.T) {
	now := time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC)
	anchor := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, time.April, 4, 0, 0, 0, 0, time.UTC)
	rule := recurrence.Rule{Type: recurrence.Daily, Interval: 3, AnchorDate: &anchor}

	instance := &Task{Deadline: &deadline}
	if got := completionAnchor(instance, rule, now); !got.Equal(deadline) {
		t.Errorf("with deadline: anchor = %v, want the instance deadline %v", got, deadline)
	}
	next, ok := rule.Next(completionAnchor(instance, rule, now))
	if !ok {
		t.Fatal("rule.Next() returned no occurrence")
	}
	if want := deadline.AddDate(0, 0, 3); !next.Equal(want) {
		t.Errorf("next deadline = %v, want %v", next, want)
	}
	if next.Equal(deadline) {
		t.Error("next deadline equals the instance's own deadline")
	}

	if got := completionAnchor(&Task{}, rule, now); !got.Equal(anchor) {
		t.Errorf("without deadline: anchor = %v, want the rule anchor %v", got, anchor)
	}
	if got := completionAnchor(&Task{}, recurrence.Rule{Type: recurrence.Daily}, now); !got.Equal(now) {
		t.Errorf("bare rule: anchor = %v, want now %v", got, now)
	}
}
