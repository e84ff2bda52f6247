package recurrence

import (
	"fmt"
	"time"

	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
)

// Due is an alert that should fire at the current minute.
type Due struct {
	Reminder model.Reminder
	// Label is the human-readable lead time ("starting now", "in 1 hour",
	// "tomorrow").
	Label string
	// EventAt is the occurrence instant the alert is about.
	EventAt time.Time
	// AlertAt is EventAt minus the alert offset, truncated to the minute.
	AlertAt time.Time
}

// Key identifies a fired alert for deduplication: one per reminder per
// calendar minute.
func (d Due) Key() string {
	return fmt.Sprintf("%d@%s", d.Reminder.ID, d.AlertAt.Format("2006-01-02T15:04"))
}

// Label returns the lead-time label for an alert offset.
func Label(a model.AlertOffset) string {
	switch a {
	case model.AlertAtTime:
		return "starting now"
	case model.AlertOneHourBefore:
		return "in 1 hour"
	case model.AlertOneDayBefore:
		return "tomorrow"
	}
	return ""
}

// eventFor returns the occurrence instant whose alert falls on alertAt.
// The one-day offset is a calendar day, so it crosses month and year
// boundaries and keeps the wall-clock time across DST changes.
func eventFor(a model.AlertOffset, alertAt time.Time) (time.Time, bool) {
	switch a {
	case model.AlertAtTime:
		return alertAt, true
	case model.AlertOneHourBefore:
		return alertAt.Add(time.Hour), true
	case model.AlertOneDayBefore:
		return alertAt.AddDate(0, 0, 1), true
	}
	return time.Time{}, false
}

// DueAlerts returns the alerts that fire during the minute containing now.
//
// An alert is due when the occurrence it announces (now plus the offset)
// falls on a day the reminder matches, that day is not excepted, and the
// occurrence clock equals the reminder's time. Reminders without a time or
// with alerts turned off never fire. DueAlerts does not deduplicate; callers
// that run more than once per minute must track Due.Key themselves.
func DueAlerts(conv lunar.Converter, reminders []model.Reminder, now time.Time) []Due {
	// Drop seconds in wall-clock terms; Truncate works on absolute time.
	alertAt := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, now.Location())

	var out []Due
	for _, r := range reminders {
		if r.AlertTiming == "" || r.AlertTiming == model.AlertNone || r.Time == "" || !r.Wellformed() {
			continue
		}
		hour, minute, err := model.ParseClock(r.Time)
		if err != nil {
			continue
		}
		eventAt, ok := eventFor(r.AlertTiming, alertAt)
		if !ok || eventAt.Hour() != hour || eventAt.Minute() != minute {
			continue
		}
		day := model.DateOf(eventAt)
		if IsExcepted(r, day) || !Matches(conv, r, day) {
			continue
		}
		out = append(out, Due{
			Reminder: r,
			Label:    Label(r.AlertTiming),
			EventAt:  eventAt,
			AlertAt:  alertAt,
		})
	}
	return out
}
