package recurrence

import (
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
)

// MaxRangeDays caps how many days Occurrences will scan; callers exposing
// user-chosen ranges should reject anything longer.
const MaxRangeDays = 3 * 366

// Occurrences returns every (reminder, date) pair in the inclusive range
// [from, to], ordered by date and then by input order. Malformed records are
// skipped so one bad row cannot break a whole month view.
func Occurrences(conv lunar.Converter, reminders []model.Reminder, from, to model.SolarDate) []model.Occurrence {
	usable := make([]model.Reminder, 0, len(reminders))
	for _, r := range reminders {
		if r.Wellformed() {
			usable = append(usable, r)
		}
	}

	var out []model.Occurrence
	for d, n := from, 0; !to.Before(d) && n < MaxRangeDays; d, n = d.AddDays(1), n+1 {
		for _, r := range usable {
			if Matches(conv, r, d) {
				out = append(out, model.Occurrence{Reminder: r, Date: d})
			}
		}
	}
	return out
}

// OnDate returns the reminders active on d.
func OnDate(conv lunar.Converter, reminders []model.Reminder, d model.SolarDate) []model.Reminder {
	var out []model.Reminder
	for _, r := range reminders {
		if r.Wellformed() && Matches(conv, r, d) {
			out = append(out, r)
		}
	}
	return out
}
