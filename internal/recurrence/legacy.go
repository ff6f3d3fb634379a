package recurrence

import (
	"encoding/json"
	"time"
)

// Vendor type codes from the external task manager satchel imports from.
const (
	legacyDaily   = 16
	legacyWeekly  = 256
	legacyMonthly = 8
)

// DecodeLegacy parses a recurrence payload imported from an external task
// manager into a canonical Rule. The payloads are externally authored and
// unvalidated, so anything unrecognized decodes as "not repeating" rather
// than failing the import.
func DecodeLegacy(blob []byte) (Rule, bool) {
	if len(blob) == 0 {
		return Rule{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal(blob, &raw); err != nil {
		return Rule{}, false
	}

	code, ok := legacyInt(raw["type"])
	if !ok {
		return Rule{}, false
	}
	var typ Type
	switch code {
	case legacyDaily:
		typ = Daily
	case legacyWeekly:
		typ = Weekly
	case legacyMonthly:
		typ = Monthly
	default:
		return Rule{}, false
	}

	r := Rule{Type: typ, Interval: 1}
	if n, ok := legacyInt(raw["interval"]); ok && n >= 1 {
		r.Interval = n
	}
	if n, ok := legacyInt(raw["weekday"]); ok {
		r.Weekday = &n
	}
	if n, ok := legacyInt(raw["day_of_month"]); ok {
		r.DayOfMonth = &n
	}
	r.AnchorDate = legacyDate(raw["anchor_date"])
	r.StartDate = legacyDate(raw["start_date"])
	r.EndDate = legacyDate(raw["end_date"])

	if !r.Valid() {
		return Rule{}, false
	}
	return r, true
}

func legacyInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// legacyDate accepts epoch seconds, epoch milliseconds, and ISO-8601 strings.
func legacyDate(v any) *time.Time {
	switch d := v.(type) {
	case float64:
		if d <= 0 {
			return nil
		}
		var t time.Time
		if d > 1e12 { // milliseconds
			t = time.UnixMilli(int64(d)).UTC()
		} else {
			t = time.Unix(int64(d), 0).UTC()
		}
		return &t
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, d); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}
