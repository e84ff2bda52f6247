// Package recurrence decides on which solar days a reminder is active and
// when its alerts are due. Everything here is pure: the only collaborator is
// the calendar converter, which is synchronous and never does I/O.
package recurrence

import (
	"time"

	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
)

// DefaultAnchorYear fixes the weekday of a WEEKLY reminder that has no
// anchor year. This is an approximation carried over from the legacy
// behaviour: a lunar month/day falls on a different weekday every year.
const DefaultAnchorYear = 2024

// Matches reports whether reminder r is active on the solar date d.
//
// Precedence:
//  1. an exception for d always wins
//  2. WEEKLY compares weekdays with the anchor date
//  3. MONTHLY compares the day of month (solar or lunar)
//  4. SOLAR ANNUALLY/NONE compare month/day (and year)
//  5. LUNAR ANNUALLY/NONE convert d and compare lunar month/day (and year)
//
// Conversion failures are treated as "no match".
func Matches(conv lunar.Converter, r model.Reminder, d model.SolarDate) bool {
	if r.HasException(d) {
		return false
	}

	switch r.Recurrence {
	case model.RecurWeekly:
		wd, ok := anchorWeekday(conv, r)
		return ok && d.Weekday() == wd
	case model.RecurMonthly:
		if r.Type == model.Solar {
			return d.Day == r.Day
		}
		l, err := conv.SolarToLunar(d.Year, d.Month, d.Day)
		return err == nil && l.Day == r.Day
	}

	if r.Type == model.Solar {
		if r.Recurrence == model.RecurAnnually {
			return d.Month == r.Month && d.Day == r.Day
		}
		return d.Year == r.Year && d.Month == r.Month && d.Day == r.Day
	}

	l, err := conv.SolarToLunar(d.Year, d.Month, d.Day)
	if err != nil || l.Leap != r.Leap {
		return false
	}
	if r.Recurrence == model.RecurAnnually {
		return l.Month == r.Month && l.Day == r.Day
	}
	return l.Year == r.Year && l.Month == r.Month && l.Day == r.Day
}

// anchorWeekday returns the weekday of the reminder's anchor date, using
// DefaultAnchorYear when the reminder has none. A lunar anchor that does
// not exist in that year yields ok == false.
func anchorWeekday(conv lunar.Converter, r model.Reminder) (wd time.Weekday, ok bool) {
	year := r.Year
	if year == 0 {
		year = DefaultAnchorYear
	}
	if r.Type == model.Solar {
		return model.SolarDate{Year: year, Month: r.Month, Day: r.Day}.Weekday(), true
	}
	_, wd, err := conv.LunarToSolar(year, r.Month, r.Day, r.Leap)
	if err != nil {
		return 0, false
	}
	return wd, true
}
