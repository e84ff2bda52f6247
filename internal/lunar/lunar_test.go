package lunar

import (
	"errors"
	"testing"
	"time"

	"lunarcal/internal/model"
)

func TestLunarNewYear(t *testing.T) {
	conv := New()
	cases := []struct {
		year    int
		solar   model.SolarDate
		weekday time.Weekday
	}{
		{2024, model.SolarDate{Year: 2024, Month: 2, Day: 10}, time.Saturday},
		{2025, model.SolarDate{Year: 2025, Month: 1, Day: 29}, time.Wednesday},
		{2026, model.SolarDate{Year: 2026, Month: 2, Day: 17}, time.Tuesday},
	}
	for _, c := range cases {
		got, wd, err := conv.LunarToSolar(c.year, 1, 1, false)
		if err != nil {
			t.Fatalf("LunarToSolar(%d,1,1): %v", c.year, err)
		}
		if got != c.solar || wd != c.weekday {
			t.Errorf("LunarToSolar(%d,1,1) = %v %v, want %v %v", c.year, got, wd, c.solar, c.weekday)
		}

		l, err := conv.SolarToLunar(c.solar.Year, c.solar.Month, c.solar.Day)
		if err != nil {
			t.Fatalf("SolarToLunar(%v): %v", c.solar, err)
		}
		if l.Year != c.year || l.Month != 1 || l.Day != 1 || l.Leap {
			t.Errorf("SolarToLunar(%v) = %+v, want %d-1-1", c.solar, l, c.year)
		}
	}
}

func TestChuseok2024(t *testing.T) {
	l, err := New().SolarToLunar(2024, 9, 17)
	if err != nil {
		t.Fatal(err)
	}
	if l.Month != 8 || l.Day != 15 {
		t.Errorf("2024-09-17 = lunar %d/%d, want 8/15", l.Month, l.Day)
	}
}

func TestLeapMonthReportedPositive(t *testing.T) {
	// 2025 has a leap sixth month starting on 2025-07-25.
	l, err := New().SolarToLunar(2025, 7, 25)
	if err != nil {
		t.Fatal(err)
	}
	if l.Month != 6 || !l.Leap || l.Day != 1 {
		t.Errorf("2025-07-25 = %+v, want leap 6/1", l)
	}

	s, _, err := New().LunarToSolar(2025, 6, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if s != (model.SolarDate{Year: 2025, Month: 7, Day: 25}) {
		t.Errorf("leap 6/1 2025 = %v", s)
	}
}

func TestInvalidLunarDates(t *testing.T) {
	conv := New()
	cases := []struct {
		name             string
		year, month, day int
		leap             bool
	}{
		{"no leap month that year", 2024, 6, 1, true},
		{"month 13", 2024, 13, 1, false},
		{"day 31", 2024, 1, 31, false},
		{"day 0", 2024, 1, 0, false},
		{"year past range", 10000, 1, 1, false},
		{"far future year", 200000, 1, 1, false},
		{"year 0", 0, 1, 1, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := conv.LunarToSolar(c.year, c.month, c.day, c.leap)
			if !errors.Is(err, ErrInvalidLunarDate) {
				t.Fatalf("err = %v, want ErrInvalidLunarDate", err)
			}
		})
	}
}

func TestSolarTermPresent(t *testing.T) {
	l, err := New().SolarToLunar(2024, 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if l.Term == "" {
		t.Error("expected a solar term on 2024-02-04")
	}
}

func TestSolarToLunarRejectsInvalidSolar(t *testing.T) {
	if _, err := New().SolarToLunar(2023, 2, 29); err == nil {
		t.Fatal("expected error for 2023-02-29")
	}
}
