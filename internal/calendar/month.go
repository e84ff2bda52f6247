// Package calendar builds the month grid: every solar day of a month with its
// lunar date, solar term, holidays and the reminders active on it.
package calendar

import (
	"time"

	"lunarcal/internal/holiday"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
	"lunarcal/internal/recurrence"
)

// Day is one cell of the month grid.
type Day struct {
	Date      model.SolarDate  `json:"date"`
	Weekday   time.Weekday     `json:"weekday"`
	Lunar     *model.LunarDate `json:"lunar,omitempty"`
	Holidays  []string         `json:"holidays,omitempty"`
	Today     bool             `json:"today"`
	Reminders []model.Reminder `json:"reminders"`
}

// Month is a rendered month grid.
type Month struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	WeekStart string `json:"week_start"`
	// Padding is the number of empty cells before day 1.
	Padding  int            `json:"padding"`
	Weekdays []time.Weekday `json:"weekdays"`
	Days     []Day          `json:"days"`
}

// BuildMonth lays out year/month. weekStart is "sunday" or "monday"; today
// marks the current day. Malformed reminders are dropped up front.
func BuildMonth(conv lunar.Converter, reminders []model.Reminder, year, month int, weekStart string, today model.SolarDate) Month {
	first := time.Weekday(0)
	if weekStart == "monday" {
		first = time.Monday
	} else {
		weekStart = "sunday"
	}

	usable := make([]model.Reminder, 0, len(reminders))
	for _, r := range reminders {
		if !r.Wellformed() {
			appLog.Warn("skipping malformed reminder", "id", r.ID, "title", r.Title)
			continue
		}
		usable = append(usable, r)
	}

	m := Month{
		Year:      year,
		Month:     month,
		WeekStart: weekStart,
		Weekdays:  make([]time.Weekday, 7),
	}
	for i := range m.Weekdays {
		m.Weekdays[i] = (first + time.Weekday(i)) % 7
	}

	start := model.SolarDate{Year: year, Month: month, Day: 1}
	m.Padding = (int(start.Weekday()) - int(first) + 7) % 7

	n := model.DaysInMonth(year, month)
	m.Days = make([]Day, 0, n)
	for d := 1; d <= n; d++ {
		date := model.SolarDate{Year: year, Month: month, Day: d}
		cell := Day{
			Date:      date,
			Weekday:   date.Weekday(),
			Today:     date == today,
			Reminders: recurrence.OnDate(conv, usable, date),
		}
		if cell.Reminders == nil {
			cell.Reminders = []model.Reminder{}
		}

		var l model.LunarDate
		if conv != nil {
			if got, err := conv.SolarToLunar(year, month, d); err == nil {
				l = got
				cell.Lunar = &got
			}
		}
		cell.Holidays = holiday.Names(date, l)
		m.Days = append(m.Days, cell)
	}
	return m
}
