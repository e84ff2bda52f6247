package recurrence

import (
	"testing"
	"time"

	"lunarcal/internal/model"
)

func at(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func TestDayBeforeAlertForMonthlyReminder(t *testing.T) {
	r := model.Reminder{
		ID: 42, Title: "rent", Type: model.Solar, Month: 1, Day: 15,
		Recurrence: model.RecurMonthly, Time: "09:00", AlertTiming: model.AlertOneDayBefore,
	}
	rs := []model.Reminder{r}

	due := DueAlerts(nil, rs, at(2025, 3, 14, 9, 0, 42))
	if len(due) != 1 {
		t.Fatalf("due on the 14th at 09:00 = %d, want 1", len(due))
	}
	if due[0].Label != "tomorrow" {
		t.Errorf("label = %q", due[0].Label)
	}
	if !due[0].EventAt.Equal(at(2025, 3, 15, 9, 0, 0)) {
		t.Errorf("EventAt = %v", due[0].EventAt)
	}
	if due[0].Key() != "42@2025-03-14T09:00" {
		t.Errorf("Key = %q", due[0].Key())
	}

	for _, now := range []time.Time{
		at(2025, 3, 15, 9, 0, 0),
		at(2025, 3, 14, 9, 1, 0),
		at(2025, 3, 14, 8, 59, 59),
	} {
		if got := DueAlerts(nil, rs, now); len(got) != 0 {
			t.Errorf("DueAlerts(%v) = %d, want 0", now, len(got))
		}
	}
}

func TestDueAlertsOffsets(t *testing.T) {
	newYear := model.Reminder{ID: 1, Title: "ny", Type: model.Solar, Month: 1, Day: 1, Recurrence: model.RecurAnnually}

	tests := []struct {
		name  string
		time  string
		alert model.AlertOffset
		now   time.Time
		label string
	}{
		{"at time", "10:15", model.AlertAtTime, at(2025, 1, 1, 10, 15, 5), "starting now"},
		{"hour before", "10:15", model.AlertOneHourBefore, at(2025, 1, 1, 9, 15, 0), "in 1 hour"},
		{"hour before across midnight", "00:30", model.AlertOneHourBefore, at(2024, 12, 31, 23, 30, 0), "in 1 hour"},
		{"day before across year", "09:00", model.AlertOneDayBefore, at(2024, 12, 31, 9, 0, 0), "tomorrow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newYear
			r.Time = tt.time
			r.AlertTiming = tt.alert
			due := DueAlerts(nil, []model.Reminder{r}, tt.now)
			if len(due) != 1 {
				t.Fatalf("due = %d, want 1", len(due))
			}
			if due[0].Label != tt.label {
				t.Errorf("label = %q, want %q", due[0].Label, tt.label)
			}
		})
	}
}

func TestDueAlertsSkips(t *testing.T) {
	now := at(2025, 6, 1, 8, 0, 0)
	base := model.Reminder{ID: 7, Title: "x", Type: model.Solar, Month: 6, Day: 1, Recurrence: model.RecurAnnually, Time: "08:00", AlertTiming: model.AlertAtTime}

	if len(DueAlerts(nil, []model.Reminder{base}, now)) != 1 {
		t.Fatal("baseline reminder should be due")
	}

	cases := map[string]func(*model.Reminder){
		"alert none":   func(r *model.Reminder) { r.AlertTiming = model.AlertNone },
		"alert empty":  func(r *model.Reminder) { r.AlertTiming = "" },
		"no time":      func(r *model.Reminder) { r.Time = "" },
		"bad time":     func(r *model.Reminder) { r.Time = "8am" },
		"other day":    func(r *model.Reminder) { r.Day = 2 },
		"excepted":     func(r *model.Reminder) { r.Exceptions = []model.SolarDate{{Year: 2025, Month: 6, Day: 1}} },
		"malformed":    func(r *model.Reminder) { r.Month = 0 },
		"wrong minute": func(r *model.Reminder) { r.Time = "08:01" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := base
			mutate(&r)
			if got := DueAlerts(nil, []model.Reminder{r}, now); len(got) != 0 {
				t.Errorf("due = %+v, want none", got)
			}
		})
	}
}

func TestDueAlertsDayBeforeRespectsExceptionOfEventDay(t *testing.T) {
	r := model.Reminder{
		ID: 9, Title: "weekly", Type: model.Solar, Year: 2025, Month: 3, Day: 1,
		Recurrence: model.RecurWeekly, Time: "18:00", AlertTiming: model.AlertOneDayBefore,
		Exceptions: []model.SolarDate{{Year: 2025, Month: 3, Day: 8}},
	}
	// Friday 2025-03-07 announces Saturday 2025-03-08, which is excepted.
	if got := DueAlerts(nil, []model.Reminder{r}, at(2025, 3, 7, 18, 0, 0)); len(got) != 0 {
		t.Errorf("excepted occurrence still alerted: %+v", got)
	}
	if got := DueAlerts(nil, []model.Reminder{r}, at(2025, 3, 14, 18, 0, 0)); len(got) != 1 {
		t.Errorf("next week's alert missing")
	}
}
