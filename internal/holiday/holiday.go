package holiday

import (
	"time"

	"lunarcal/internal/model"
)

type monthDay struct{ month, day int }

// Korean holidays fixed on the lunar calendar.
var koreanLunar = map[monthDay]string{
	{1, 1}:  "설날",
	{1, 15}: "정월대보름",
	{4, 8}:  "부처님오신날",
	{5, 5}:  "단오",
	{8, 15}: "추석",
}

// Korean holidays fixed on the solar calendar.
var koreanSolar = map[monthDay]string{
	{1, 1}:   "신정",
	{3, 1}:   "삼일절",
	{5, 5}:   "어린이날",
	{6, 6}:   "현충일",
	{8, 15}:  "광복절",
	{10, 3}:  "개천절",
	{10, 9}:  "한글날",
	{12, 25}: "성탄절",
}

// US federal holidays on a fixed date.
var usFixed = map[monthDay]string{
	{1, 1}:   "New Year's Day",
	{6, 19}:  "Juneteenth",
	{7, 4}:   "Independence Day",
	{11, 11}: "Veterans Day",
	{12, 25}: "Christmas Day",
}

// nthWeekday holidays: the nth given weekday of a month (nth < 0 = last).
var usFloating = []struct {
	month   int
	nth     int
	weekday time.Weekday
	name    string
}{
	{1, 3, time.Monday, "MLK Day"},
	{2, 3, time.Monday, "Presidents' Day"},
	{5, -1, time.Monday, "Memorial Day"},
	{9, 1, time.Monday, "Labor Day"},
	{10, 2, time.Monday, "Columbus Day"},
	{11, 4, time.Thursday, "Thanksgiving"},
}

// KoreanLunar returns the Korean holiday on a lunar month/day, or "".
// Days inside a leap month are never holidays.
func KoreanLunar(l model.LunarDate) string {
	if l.Leap {
		return ""
	}
	return koreanLunar[monthDay{l.Month, l.Day}]
}

// KoreanSolar returns the Korean holiday on a solar month/day, or "".
func KoreanSolar(d model.SolarDate) string {
	return koreanSolar[monthDay{d.Month, d.Day}]
}

// US returns the US federal holiday on d, or "".
func US(d model.SolarDate) string {
	if name, ok := usFixed[monthDay{d.Month, d.Day}]; ok {
		return name
	}
	for _, f := range usFloating {
		if f.month == d.Month && nthWeekday(d.Year, f.month, f.nth, f.weekday) == d.Day {
			return f.name
		}
	}
	return ""
}

// Names lists every holiday on the day, lunar first, then Korean solar,
// then US.
func Names(d model.SolarDate, l model.LunarDate) []string {
	var out []string
	for _, n := range []string{KoreanLunar(l), KoreanSolar(d), US(d)} {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// nthWeekday returns the day of month of the nth weekday (nth = -1 for the
// last one), or -1 when there is none.
func nthWeekday(year, month, nth int, wd time.Weekday) int {
	if nth < 0 {
		last := model.DaysInMonth(year, month)
		t := time.Date(year, time.Month(month), last, 0, 0, 0, 0, time.UTC)
		back := (int(t.Weekday()) - int(wd) + 7) % 7
		return last - back
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	day := 1 + offset + (nth-1)*7
	if day > model.DaysInMonth(year, month) {
		return -1
	}
	return day
}
