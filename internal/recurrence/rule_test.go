package recurrence

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intp(n int) *int { return &n }

func TestNext_daily(t *testing.T) {
	r := Rule{Type: Daily, Interval: 3}
	got, ok := r.Next(date(2026, time.January, 1))
	if !ok {
		t.Fatal("Next() not ok")
	}
	if want := date(2026, time.January, 4); !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}
}

func TestNext_weekly(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		from time.Time
		want time.Time
	}{
		{
			// 2026-01-05 is a Monday. When from already falls on the
			// target weekday, the occurrence advances a full cadence.
			name: "same weekday advances full interval",
			rule: Rule{Type: Weekly, Interval: 2, Weekday: intp(int(time.Monday))},
			from: date(2026, time.January, 5),
			want: date(2026, time.January, 19),
		},
		{
			name: "next weekday within the week",
			rule: Rule{Type: Weekly, Interval: 1, Weekday: intp(int(time.Tuesday))},
			from: date(2026, time.January, 5),
			want: date(2026, time.January, 6),
		},
		{
			name: "interval counted from the first match",
			rule: Rule{Type: Weekly, Interval: 2, Weekday: intp(int(time.Tuesday))},
			from: date(2026, time.January, 5),
			want: date(2026, time.January, 13),
		},
		{
			name: "no weekday steps whole weeks",
			rule: Rule{Type: Weekly, Interval: 3},
			from: date(2026, time.January, 5),
			want: date(2026, time.January, 26),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rule.Next(tt.from)
			if !ok {
				t.Fatal("Next() not ok")
			}
			if !got.Equal(tt.want) {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNext_monthly(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		from time.Time
		want time.Time
	}{
		{
			name: "day 31 clamps to february",
			rule: Rule{Type: Monthly, Interval: 1, DayOfMonth: intp(31)},
			from: date(2026, time.January, 31),
			want: date(2026, time.February, 28),
		},
		{
			name: "day 31 clamps to leap february",
			rule: Rule{Type: Monthly, Interval: 1, DayOfMonth: intp(31)},
			from: date(2028, time.January, 31),
			want: date(2028, time.February, 29),
		},
		{
			name: "short month back to long month",
			rule: Rule{Type: Monthly, Interval: 1, DayOfMonth: intp(31)},
			from: date(2026, time.February, 28),
			want: date(2026, time.March, 31),
		},
		{
			name: "interval of two months",
			rule: Rule{Type: Monthly, Interval: 2, DayOfMonth: intp(15)},
			from: date(2026, time.January, 15),
			want: date(2026, time.March, 15),
		},
		{
			name: "no day uses from's day",
			rule: Rule{Type: Monthly, Interval: 1},
			from: date(2026, time.April, 10),
			want: date(2026, time.May, 10),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rule.Next(tt.from)
			if !ok {
				t.Fatal("Next() not ok")
			}
			if !got.Equal(tt.want) {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNext_bounds(t *testing.T) {
	end := date(2026, time.January, 3)
	r := Rule{Type: Daily, Interval: 5, EndDate: &end}
	if _, ok := r.Next(date(2026, time.January, 1)); ok {
		t.Error("Next() past end date should not produce an occurrence")
	}

	start := date(2026, time.March, 1)
	r = Rule{Type: Daily, Interval: 2, StartDate: &start}
	got, ok := r.Next(date(2026, time.January, 1))
	if !ok {
		t.Fatal("Next() not ok")
	}
	if want := date(2026, time.March, 3); !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}

	if _, ok := (Rule{Type: "yearly"}).Next(date(2026, time.January, 1)); ok {
		t.Error("invalid type should not produce an occurrence")
	}
	if _, ok := (Rule{Type: Weekly, Weekday: intp(9)}).Next(date(2026, time.January, 1)); ok {
		t.Error("out-of-range weekday should not produce an occurrence")
	}
}

func TestNext_zeroIntervalDefaultsToOne(t *testing.T) {
	r := Rule{Type: Daily}
	got, ok := r.Next(date(2026, time.January, 1))
	if !ok {
		t.Fatal("Next() not ok")
	}
	if want := date(2026, time.January, 2); !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}
}
