package holiday

import (
	"sort"

	"lunarcal/internal/model"
)

// Seed id suffixes keep the three holiday groups apart when they share a
// date (e.g. 1/1 is both 설날 on the lunar calendar and 신정).
const (
	suffixKoreanLunar = 1
	suffixUS          = 2
	suffixKoreanSolar = 3
)

// seedTime is the time of day given to seeded holidays.
const seedTime = "09:00"

// Seed builds one-off holiday reminders for every year in [fromYear,
// toYear]: Korean lunar holidays, Korean solar holidays and fixed-date US
// holidays. Floating US holidays are not seeded; the month grid derives them.
// IDs are deterministic (99YYYYMMDDk) so seeding twice inserts nothing new.
func Seed(fromYear, toYear int) []model.Reminder {
	var out []model.Reminder
	for y := fromYear; y <= toYear; y++ {
		out = appendGroup(out, y, koreanLunar, model.Lunar, suffixKoreanLunar)
		out = appendGroup(out, y, koreanSolar, model.Solar, suffixKoreanSolar)
		out = appendGroup(out, y, usFixed, model.Solar, suffixUS)
	}
	return out
}

func appendGroup(out []model.Reminder, year int, names map[monthDay]string, typ model.CalendarType, suffix int64) []model.Reminder {
	keys := make([]monthDay, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].month != keys[j].month {
			return keys[i].month < keys[j].month
		}
		return keys[i].day < keys[j].day
	})

	for _, k := range keys {
		out = append(out, model.Reminder{
			ID:          SeedID(year, k.month, k.day, suffix),
			Title:       names[k],
			Type:        typ,
			Year:        year,
			Month:       k.month,
			Day:         k.day,
			Time:        seedTime,
			AlertTiming: model.AlertNone,
			Recurrence:  model.RecurNone,
		})
	}
	return out
}

// SeedID renders the legacy 99YYYYMMDDk id as an integer.
func SeedID(year, month, day int, suffix int64) int64 {
	return ((((99*10000+int64(year))*100+int64(month))*100+int64(day))*10 + suffix)
}
