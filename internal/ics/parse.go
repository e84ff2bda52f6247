package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/model"
)

// Parse reads an iCalendar document back into reminders.
//
//   - RRULE FREQ=YEARLY/MONTHLY/WEEKLY map to ANNUALLY/MONTHLY/WEEKLY; other
//     frequencies are skipped.
//   - EXDATE and X-LUNARCAL-EXDATE values become exceptions.
//   - The first VALARM with a known TRIGGER sets the alert timing.
//   - X-LUNARCAL-* properties written by Export take precedence, so lunar
//     reminders expanded into many VEVENTs collapse back into one.
//
// Events that cannot be mapped are logged and skipped. IDs are taken from
// X-LUNARCAL-ID when present and left 0 otherwise.
func Parse(body []byte) ([]model.Reminder, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if !bytes.Contains(body, []byte("BEGIN:VCALENDAR")) {
		return nil, errors.New("not an iCalendar document")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	seen := make(map[int64]bool)
	out := make([]model.Reminder, 0)
	for _, ve := range cal.Events() {
		r, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Warn("ics: skipping vevent", "uid", propValue(ve, ical.ComponentPropertyUniqueId), "err", perr.Error())
			continue
		}
		if r.ID != 0 {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
		}
		out = append(out, r)
	}

	appLog.Info("ics parse completed", "event_count", len(cal.Events()), "reminder_count", len(out))
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (model.Reminder, error) {
	var r model.Reminder

	r.Title = strings.TrimSpace(propValue(ve, ical.ComponentPropertySummary))
	if r.Title == "" {
		return r, errors.New("missing SUMMARY")
	}

	if v := propValue(ve, propID); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return r, fmt.Errorf("bad %s %q", propID, v)
		}
		r.ID = id
	}

	r.Type = model.Solar
	if v := propValue(ve, propType); v != "" {
		r.Type = model.CalendarType(strings.ToUpper(strings.TrimSpace(v)))
	}
	r.Leap = strings.EqualFold(propValue(ve, propLeap), "TRUE")

	rec, err := recurrenceOf(ve)
	if err != nil {
		return r, err
	}
	r.Recurrence = rec

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return r, errors.New("missing DTSTART")
	}
	// The library resolves TZID and UTC values; all-day dates keep their
	// calendar day.
	start, err := ve.GetStartAt()
	if err != nil {
		return r, fmt.Errorf("DTSTART: %w", err)
	}
	timed := strings.Contains(dtStart.Value, "T")
	if timed {
		start = start.In(time.Local)
		r.Time = start.Format("15:04")
	}
	r.Year, r.Month, r.Day = start.Year(), int(start.Month()), start.Day()

	if v := propValue(ve, propAnchor); v != "" {
		y, m, d, err := parseAnchor(v)
		if err != nil {
			return r, err
		}
		r.Year, r.Month, r.Day = y, m, d
	}

	exdates := ve.GetProperties(ical.ComponentPropertyExdate)
	exdates = append(exdates, ve.GetProperties(propExdate)...)
	for _, p := range exdates {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, _, err := parseICSTime(part); err == nil {
				d := model.DateOf(t)
				if !r.HasException(d) {
					r.Exceptions = append(r.Exceptions, d)
				}
			}
		}
	}

	r.AlertTiming = model.AlertNone
	if timed {
		r.AlertTiming = alertOf(ve)
	}

	r.Normalize()
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

// recurrenceOf prefers the explicit X-LUNARCAL-RECURRENCE marker, which
// lunar events need because their VEVENTs carry no RRULE.
func recurrenceOf(ve *ical.VEvent) (model.Recurrence, error) {
	if v := propValue(ve, propRecur); v != "" {
		rec := model.Recurrence(strings.ToUpper(strings.TrimSpace(v)))
		if !rec.Valid() {
			return "", fmt.Errorf("unknown recurrence %q", v)
		}
		return rec, nil
	}

	raw := propValue(ve, ical.ComponentPropertyRrule)
	if raw == "" {
		return model.RecurNone, nil
	}
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return "", fmt.Errorf("RRULE %q: %w", raw, err)
	}
	switch opt.Freq {
	case rrule.YEARLY:
		return model.RecurAnnually, nil
	case rrule.MONTHLY:
		return model.RecurMonthly, nil
	case rrule.WEEKLY:
		return model.RecurWeekly, nil
	}
	return "", fmt.Errorf("unsupported RRULE frequency in %q", raw)
}

func alertOf(ve *ical.VEvent) model.AlertOffset {
	for _, c := range ve.Components {
		alarm, ok := c.(*ical.VAlarm)
		if !ok {
			continue
		}
		p := alarm.GetProperty(ical.ComponentPropertyTrigger)
		if p == nil {
			continue
		}
		trigger := strings.ToUpper(strings.TrimSpace(p.Value))
		for offset, want := range triggers {
			if trigger == want {
				return offset
			}
		}
		switch trigger {
		case "PT0M", "-PT0S", "-PT0M":
			return model.AlertAtTime
		case "-PT60M":
			return model.AlertOneHourBefore
		case "-PT24H", "-P1DT0H":
			return model.AlertOneDayBefore
		}
	}
	return model.AlertNone
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

// parseAnchor accepts "YYYY-MM-DD" and the yearless "--MM-DD".
func parseAnchor(v string) (year, month, day int, err error) {
	v = strings.TrimSpace(v)
	if rest, ok := strings.CutPrefix(v, "--"); ok {
		t, err := time.Parse("01-02", rest)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("bad anchor %q", v)
		}
		return 0, int(t.Month()), t.Day(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad anchor %q", v)
	}
	return t.Year(), int(t.Month()), t.Day(), nil
}

// parseICSTime parses EXDATE entries: DATE, floating DATE-TIME and UTC
// DATE-TIME values.
// UTC values are converted to local wall-clock time. timed is false for a
// plain DATE.
func parseICSTime(v string) (t time.Time, timed bool, err error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, false, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		t, err = time.Parse("20060102T150405Z", v)
		return t.Local(), true, err
	case strings.Contains(v, "T"):
		t, err = time.ParseInLocation(floatingLayout, v, time.Local)
		return t, true, err
	default:
		t, err = time.ParseInLocation(dateLayout, v, time.Local)
		return t, false, err
	}
}
