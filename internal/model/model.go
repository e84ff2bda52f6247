package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CalendarType says which calendar a reminder's anchor date is expressed in.
type CalendarType string

const (
	Solar CalendarType = "SOLAR"
	Lunar CalendarType = "LUNAR"
)

// AlertOffset is how long before an occurrence the alert fires. The string
// values are the persisted alertTiming codes.
type AlertOffset string

const (
	AlertNone          AlertOffset = "none"
	AlertAtTime        AlertOffset = "at_time"
	AlertOneHourBefore AlertOffset = "1h_before"
	AlertOneDayBefore  AlertOffset = "1d_before"
)

// Recurrence is how a reminder repeats.
type Recurrence string

const (
	RecurNone     Recurrence = "NONE"
	RecurAnnually Recurrence = "ANNUALLY"
	RecurMonthly  Recurrence = "MONTHLY"
	RecurWeekly   Recurrence = "WEEKLY"
)

// Valid reports whether c is a known calendar type.
func (c CalendarType) Valid() bool { return c == Solar || c == Lunar }

// Valid reports whether a is a known alert offset.
func (a AlertOffset) Valid() bool {
	switch a {
	case AlertNone, AlertAtTime, AlertOneHourBefore, AlertOneDayBefore:
		return true
	}
	return false
}

// Valid reports whether r is a known recurrence policy.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurNone, RecurAnnually, RecurMonthly, RecurWeekly:
		return true
	}
	return false
}

// SolarDate is a Gregorian calendar date without a time of day.
type SolarDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) SolarDate {
	return SolarDate{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// Time returns midnight of d in loc.
func (d SolarDate) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, loc)
}

// Weekday returns the day of the week (Sunday = 0).
func (d SolarDate) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

// AddDays returns the date n days after d.
func (d SolarDate) AddDays(n int) SolarDate {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than o.
func (d SolarDate) Before(o SolarDate) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// Valid reports whether d names a real Gregorian date.
func (d SolarDate) Valid() bool {
	if d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return false
	}
	return d.Day <= DaysInMonth(d.Year, d.Month)
}

func (d SolarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// ParseSolarDate parses a YYYY-MM-DD string.
func ParseSolarDate(s string) (SolarDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return SolarDate{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// DaysInMonth returns the number of days in the Gregorian month.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// LunarDate is a Chinese lunar calendar date. Term is the solar term that
// falls on the day, if any; it is display-only.
type LunarDate struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Day   int    `json:"day"`
	Leap  bool   `json:"isLeap,omitempty"`
	Term  string `json:"term,omitempty"`
}

// Reminder is one recurring or one-off event definition.
type Reminder struct {
	ID    int64        `json:"id"`
	Title string       `json:"title"`
	Type  CalendarType `json:"type"`

	// Year is the anchor year; 0 means any year.
	Year  int `json:"year,omitempty"`
	Month int `json:"month"`
	Day   int `json:"day"`
	// Leap marks a lunar anchor in a leap month. Only the conversion adapter
	// honours it.
	Leap bool `json:"isLeap,omitempty"`

	// Time is a local "HH:MM" or empty.
	Time        string      `json:"time,omitempty"`
	AlertTiming AlertOffset `json:"alertTiming"`
	Recurrence  Recurrence  `json:"recurrence"`

	Exceptions []SolarDate `json:"exceptions"`
}

// Occurrence is a derived (reminder, date) pair on which the reminder is
// active. It is never stored.
type Occurrence struct {
	Reminder Reminder  `json:"reminder"`
	Date     SolarDate `json:"date"`
}

var (
	ErrEmptyTitle       = errors.New("title must not be empty")
	ErrInvalidType      = errors.New("invalid calendar type")
	ErrInvalidMonth     = errors.New("month must be between 1 and 12")
	ErrInvalidDay       = errors.New("day is out of range for the calendar")
	ErrYearRequired     = errors.New("a one-off reminder needs a year")
	ErrInvalidTime      = errors.New("time must be HH:MM")
	ErrInvalidAlert     = errors.New("invalid alert timing")
	ErrInvalidRecurring = errors.New("invalid recurrence")
	ErrInvalidDate      = errors.New("not a valid solar date")
)

// Normalize fills defaults for fields that legacy rows leave empty.
func (r *Reminder) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Time = strings.TrimSpace(r.Time)
	if r.AlertTiming == "" {
		r.AlertTiming = AlertNone
	}
	if r.Recurrence == "" {
		r.Recurrence = RecurNone
	}
	if r.Type == Solar {
		r.Leap = false
	}
}

// Validate checks the reminder invariants.
func (r Reminder) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrEmptyTitle
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, r.Type)
	}
	if !r.Recurrence.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRecurring, r.Recurrence)
	}
	if r.AlertTiming != "" && !r.AlertTiming.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAlert, r.AlertTiming)
	}
	if r.Month < 1 || r.Month > 12 {
		return ErrInvalidMonth
	}
	if r.Recurrence == RecurNone && r.Year == 0 {
		return ErrYearRequired
	}
	switch r.Type {
	case Solar:
		var maxDay int
		switch {
		case r.Year != 0:
			maxDay = DaysInMonth(r.Year, r.Month)
		case r.Month == 2:
			maxDay = 29
		default:
			maxDay = DaysInMonth(2023, r.Month)
		}
		if r.Day < 1 || r.Day > maxDay {
			return ErrInvalidDay
		}
	case Lunar:
		if r.Day < 1 || r.Day > 30 {
			return ErrInvalidDay
		}
	}
	if r.Time != "" {
		if _, _, err := ParseClock(r.Time); err != nil {
			return err
		}
	}
	return nil
}

// Wellformed reports whether the record carries enough data to be matched.
// Scans skip records that fail it instead of aborting.
func (r Reminder) Wellformed() bool {
	return r.Type.Valid() && r.Month >= 1 && r.Month <= 12 && r.Day >= 1
}

// ParseClock parses "HH:MM" (a single-digit hour is accepted).
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t.Hour(), t.Minute(), nil
}

// HasException reports whether d is in the reminder's exception set.
func (r Reminder) HasException(d SolarDate) bool {
	for _, ex := range r.Exceptions {
		if ex == d {
			return true
		}
	}
	return false
}
