package ics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
	"lunarcal/internal/recurrence"
)

const (
	productID = "-//lunarcal//Lunar Reminders//EN"

	// Custom properties that let Parse restore what plain iCalendar cannot
	// express (lunar anchors, the reminder id).
	propID     ical.ComponentProperty = "X-LUNARCAL-ID"
	propType   ical.ComponentProperty = "X-LUNARCAL-TYPE"
	propAnchor ical.ComponentProperty = "X-LUNARCAL-ANCHOR"
	propLeap   ical.ComponentProperty = "X-LUNARCAL-LEAP"
	propRecur  ical.ComponentProperty = "X-LUNARCAL-RECURRENCE"
	// Lunar events are expanded and carry no RRULE, so their exceptions
	// travel here as comma-separated DATE values.
	propExdate ical.ComponentProperty = "X-LUNARCAL-EXDATE"

	floatingLayout = "20060102T150405"
	dateLayout     = "20060102"
)

// ExportConfig controls the exported window. Solar reminders become one
// VEVENT with an RRULE and are not bounded by the window except for the
// choice of DTSTART; lunar reminders have no RRULE equivalent and are
// expanded to one VEVENT per occurrence inside [From, To].
type ExportConfig struct {
	From, To model.SolarDate
	// Stamp is written as DTSTAMP; zero means now.
	Stamp time.Time
}

// Export renders reminders as an iCalendar document.
func Export(conv lunar.Converter, reminders []model.Reminder, cfg ExportConfig) (string, error) {
	if cfg.To.Before(cfg.From) {
		return "", fmt.Errorf("export: range end %s is before start %s", cfg.To, cfg.From)
	}
	if cfg.From.AddDays(recurrence.MaxRangeDays - 1).Before(cfg.To) {
		return "", fmt.Errorf("export: range %s..%s exceeds %d days", cfg.From, cfg.To, recurrence.MaxRangeDays)
	}
	if cfg.Stamp.IsZero() {
		cfg.Stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetCalscale("GREGORIAN")
	cal.SetXWRCalName("Lunar Reminders")

	for _, r := range reminders {
		if !r.Wellformed() {
			appLog.Warn("export: skipping malformed reminder", "id", r.ID)
			continue
		}
		var err error
		if r.Type == model.Solar {
			err = addSolar(cal, conv, r, cfg)
		} else {
			addLunar(cal, conv, r, cfg)
		}
		if err != nil {
			return "", err
		}
	}

	return cal.Serialize(), nil
}

// addSolar writes a solar reminder as a single (possibly recurring) event.
func addSolar(cal *ical.Calendar, conv lunar.Converter, r model.Reminder, cfg ExportConfig) error {
	var start model.SolarDate
	if r.Recurrence == model.RecurNone {
		start = model.SolarDate{Year: r.Year, Month: r.Month, Day: r.Day}
	} else {
		// DTSTART must be a real occurrence: the first one in the window.
		r0 := r
		r0.Exceptions = nil
		occ := recurrence.Occurrences(conv, []model.Reminder{r0}, cfg.From, cfg.To)
		if len(occ) == 0 {
			return nil
		}
		start = occ[0].Date
	}

	ev := newEvent(cal, fmt.Sprintf("lunarcal-%d@lunarcal", r.ID), r, start, cfg.Stamp)

	if r.Recurrence != model.RecurNone {
		rule, err := ruleFor(r.Recurrence)
		if err != nil {
			return fmt.Errorf("reminder %d: %w", r.ID, err)
		}
		ev.AddProperty(ical.ComponentPropertyRrule, rule)
		for _, ex := range r.Exceptions {
			addExdate(ev, r, ex)
		}
	}
	return nil
}

// addLunar expands a lunar reminder into individual events.
func addLunar(cal *ical.Calendar, conv lunar.Converter, r model.Reminder, cfg ExportConfig) {
	for _, occ := range recurrence.Occurrences(conv, []model.Reminder{r}, cfg.From, cfg.To) {
		uid := fmt.Sprintf("lunarcal-%d-%s@lunarcal", r.ID, occ.Date.Time(time.UTC).Format(dateLayout))
		ev := newEvent(cal, uid, r, occ.Date, cfg.Stamp)
		if len(r.Exceptions) > 0 {
			ev.SetProperty(propExdate, exceptionList(r.Exceptions))
		}
	}
}

func exceptionList(dates []model.SolarDate) string {
	parts := make([]string, 0, len(dates))
	for _, d := range dates {
		parts = append(parts, d.Time(time.UTC).Format(dateLayout))
	}
	return strings.Join(parts, ",")
}

func newEvent(cal *ical.Calendar, uid string, r model.Reminder, day model.SolarDate, stamp time.Time) *ical.VEvent {
	ev := cal.AddEvent(uid)
	ev.SetDtStampTime(stamp)
	ev.SetSummary(r.Title)

	if hour, minute, err := model.ParseClock(r.Time); r.Time != "" && err == nil {
		start := time.Date(day.Year, time.Month(day.Month), day.Day, hour, minute, 0, 0, time.Local)
		ev.SetProperty(ical.ComponentPropertyDtStart, start.Format(floatingLayout))
		ev.SetProperty(ical.ComponentPropertyDtEnd, start.Add(time.Hour).Format(floatingLayout))
		addAlarm(ev, r)
	} else {
		ev.SetAllDayStartAt(day.Time(time.UTC))
		ev.SetAllDayEndAt(day.AddDays(1).Time(time.UTC))
	}

	ev.SetProperty(propID, strconv.FormatInt(r.ID, 10))
	ev.SetProperty(propType, string(r.Type))
	ev.SetProperty(propRecur, string(r.Recurrence))
	ev.SetProperty(propAnchor, anchorString(r))
	if r.Leap {
		ev.SetProperty(propLeap, "TRUE")
	}
	return ev
}

func addExdate(ev *ical.VEvent, r model.Reminder, d model.SolarDate) {
	if hour, minute, err := model.ParseClock(r.Time); r.Time != "" && err == nil {
		t := time.Date(d.Year, time.Month(d.Month), d.Day, hour, minute, 0, 0, time.Local)
		ev.AddProperty(ical.ComponentPropertyExdate, t.Format(floatingLayout))
		return
	}
	ev.AddProperty(ical.ComponentPropertyExdate, d.Time(time.UTC).Format(dateLayout), ical.WithValue("DATE"))
}

// triggers maps alert offsets to VALARM TRIGGER durations.
var triggers = map[model.AlertOffset]string{
	model.AlertAtTime:        "PT0S",
	model.AlertOneHourBefore: "-PT1H",
	model.AlertOneDayBefore:  "-P1D",
}

func addAlarm(ev *ical.VEvent, r model.Reminder) {
	trigger, ok := triggers[r.AlertTiming]
	if !ok {
		return
	}
	alarm := ev.AddAlarm()
	alarm.SetProperty(ical.ComponentPropertyAction, "DISPLAY")
	alarm.SetProperty(ical.ComponentPropertyTrigger, trigger)
	alarm.SetProperty(ical.ComponentPropertyDescription, r.Title+" "+recurrence.Label(r.AlertTiming))
}

// ruleFor builds the RRULE value for a recurrence policy.
func ruleFor(rec model.Recurrence) (string, error) {
	var freq rrule.Frequency
	switch rec {
	case model.RecurAnnually:
		freq = rrule.YEARLY
	case model.RecurMonthly:
		freq = rrule.MONTHLY
	case model.RecurWeekly:
		freq = rrule.WEEKLY
	default:
		return "", fmt.Errorf("no RRULE for recurrence %q", rec)
	}
	opt := rrule.ROption{Freq: freq}
	return opt.RRuleString(), nil
}

func anchorString(r model.Reminder) string {
	if r.Year == 0 {
		return fmt.Sprintf("--%02d-%02d", r.Month, r.Day)
	}
	return fmt.Sprintf("%04d-%02d-%02d", r.Year, r.Month, r.Day)
}
