package lunar

import (
	"errors"
	"fmt"
	"time"

	"github.com/6tail/lunar-go/calendar"

	"lunarcal/internal/model"
)

// ErrInvalidLunarDate is returned for lunar dates that do not exist, such as
// a leap month in a year without one or day 30 of a 29-day month.
var ErrInvalidLunarDate = errors.New("invalid lunar date")

// Converter is the calendar conversion capability consumed by the
// recurrence engine. Implementations must be safe to call from a single
// goroutine without blocking.
type Converter interface {
	SolarToLunar(year, month, day int) (model.LunarDate, error)
	LunarToSolar(year, month, day int, leap bool) (model.SolarDate, time.Weekday, error)
}

// Supported solar range of the underlying tables.
const (
	minYear = 1
	maxYear = 9999
)

// Adapter implements Converter on top of github.com/6tail/lunar-go.
type Adapter struct{}

// New returns the default lunar-go backed converter.
func New() *Adapter {
	return &Adapter{}
}

// SolarToLunar converts a Gregorian date. The returned month is always
// positive; Leap reports whether it is the leap (intercalary) month.
func (a *Adapter) SolarToLunar(year, month, day int) (out model.LunarDate, err error) {
	if year < minYear || year > maxYear || !(model.SolarDate{Year: year, Month: month, Day: day}).Valid() {
		return out, fmt.Errorf("solar date %04d-%02d-%02d out of range", year, month, day)
	}
	defer recoverInto(&err, "solar to lunar")

	l := calendar.NewSolarFromYmd(year, month, day).GetLunar()
	m := l.GetMonth()
	out = model.LunarDate{
		Year:  l.GetYear(),
		Month: abs(m),
		Day:   l.GetDay(),
		Leap:  m < 0,
		Term:  l.GetJieQi(),
	}
	return out, nil
}

// LunarToSolar converts a lunar date to its Gregorian equivalent and weekday.
// The library signals a leap month with a negative month number and panics
// on dates that do not exist; both are handled here.
func (a *Adapter) LunarToSolar(year, month, day int, leap bool) (out model.SolarDate, wd time.Weekday, err error) {
	if year < minYear || year > maxYear || month < 1 || month > 12 || day < 1 || day > 30 {
		return out, 0, fmt.Errorf("%w: %d-%d-%d", ErrInvalidLunarDate, year, month, day)
	}
	defer recoverInto(&err, "lunar to solar")

	m := month
	if leap {
		m = -month
	}
	s := calendar.NewLunarFromYmd(year, m, day).GetSolar()
	out = model.SolarDate{Year: s.GetYear(), Month: s.GetMonth(), Day: s.GetDay()}
	return out, time.Weekday(s.GetWeek()), nil
}

func recoverInto(err *error, op string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s: %v", ErrInvalidLunarDate, op, r)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
