package calc

import (
	"strings"
	"time"
)

type Window string

const (
	ThisWeek  Window = "this_week"
	ThisMonth Window = "this_month"
	LastMonth Window = "last_month"
)

// ParseWindow maps a window name to a Window. Anything unrecognised is
// treated as the current month.
func ParseWindow(s string) Window {
	switch Window(strings.ToLower(strings.TrimSpace(s))) {
	case ThisWeek:
		return ThisWeek
	case LastMonth:
		return LastMonth
	default:
		return ThisMonth
	}
}

// Label is the phrase used in result sentences.
func (w Window) Label() string {
	switch w {
	case ThisWeek:
		return "this week"
	case LastMonth:
		return "last month"
	default:
		return "this month"
	}
}

type WeekStart string

const (
	// WeekStartSunday reaches back weekday+1 days (Monday=0), so a Monday
	// question covers Sunday..Monday and a Sunday question the full prior week.
	WeekStartSunday WeekStart = "sunday"
	WeekStartMonday WeekStart = "monday"
)

func ParseWeekStart(s string) WeekStart {
	if strings.EqualFold(s, string(WeekStartMonday)) {
		return WeekStartMonday
	}
	return WeekStartSunday
}

// Range is an inclusive span of calendar days.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(r.From) && !d.After(r.To)
}

// Resolve returns the day span covered by w when "today" is today.
func (w Window) Resolve(today time.Time, week WeekStart) Range {
	today = truncateDay(today)
	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	switch w {
	case LastMonth:
		end := firstOfMonth.AddDate(0, 0, -1)
		start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Range{From: start, To: end}
	case ThisWeek:
		mondayIndex := (int(today.Weekday()) + 6) % 7
		back := mondayIndex + 1
		if week == WeekStartMonday {
			back = mondayIndex
		}
		return Range{From: today.AddDate(0, 0, -back), To: today}
	default:
		return Range{From: firstOfMonth, To: today}
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
