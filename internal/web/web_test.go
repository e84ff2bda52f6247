package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lunarcal/internal/alert"
	"lunarcal/internal/auth"
	"lunarcal/internal/calendar"
	"lunarcal/internal/config"
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
	"lunarcal/internal/recurrence"
	"lunarcal/internal/store"
)

var fixedNow = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	h     http.Handler
	store *store.SQLiteStore
	feed  *alert.Feed
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	if mutate != nil {
		mutate(cfg)
	}
	feed := alert.NewFeed(10)
	srv := NewServer(cfg, st, lunar.New(), feed)
	srv.now = func() time.Time { return fixedNow }
	return &testEnv{srv: srv, h: srv.Handler(), store: st, feed: feed}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

// ============================================================
// Reminders
// ============================================================

func TestCreateAndList(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/reminders",
		`{"title":"추석","type":"LUNAR","month":8,"day":15,"recurrence":"ANNUALLY","alertTiming":"none"}`)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[model.Reminder](t, rec)
	if created.ID != fixedNow.UnixMilli() {
		t.Errorf("id = %d, want clock-assigned %d", created.ID, fixedNow.UnixMilli())
	}

	rec = e.do(t, http.MethodGet, "/api/reminders", "")
	expectStatus(t, rec, http.StatusOK)
	list := decode[[]model.Reminder](t, rec)
	if len(list) != 1 || list[0].Title != "추석" || list[0].Type != model.Lunar {
		t.Fatalf("list = %+v", list)
	}
}

func TestCreateLegacyRepeatFlag(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/reminders",
		`{"id":42,"title":"old","type":"SOLAR","month":5,"day":5,"repeat":true}`)
	expectStatus(t, rec, http.StatusCreated)

	got, err := e.store.GetReminder(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if got.Recurrence != model.RecurAnnually || got.AlertTiming != model.AlertNone {
		t.Errorf("legacy reminder = %+v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	cases := []struct {
		name, body string
	}{
		{"empty title", `{"title":" ","type":"SOLAR","year":2025,"month":1,"day":1}`},
		{"bad type", `{"title":"x","type":"MOON","year":2025,"month":1,"day":1}`},
		{"one-off without year", `{"title":"x","type":"SOLAR","month":1,"day":1}`},
		{"bad day", `{"title":"x","type":"SOLAR","year":2025,"month":2,"day":30}`},
		{"bad json", `{"title":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/reminders", tc.body)
			expectStatus(t, rec, http.StatusBadRequest)
			if msg := decode[map[string]string](t, rec)["error"]; msg == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestUpdateReminder(t *testing.T) {
	e := newTestEnv(t, nil)
	body := `{"title":"gym","type":"SOLAR","year":2025,"month":1,"day":6,"recurrence":"WEEKLY","time":"07:00","alertTiming":"at_time"}`

	rec := e.do(t, http.MethodPut, "/api/reminders/77", body)
	expectStatus(t, rec, http.StatusNotFound)

	e.do(t, http.MethodPost, "/api/reminders", strings.Replace(body, `"title"`, `"id":77,"title"`, 1))
	rec = e.do(t, http.MethodPut, "/api/reminders/77", strings.Replace(body, "07:00", "06:30", 1))
	expectStatus(t, rec, http.StatusOK)

	got, _ := e.store.GetReminder(context.Background(), 77)
	if got.Time != "06:30" {
		t.Errorf("time = %q", got.Time)
	}

	rec = e.do(t, http.MethodPut, "/api/reminders/abc", body)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestDeleteReminderAndSeries(t *testing.T) {
	e := newTestEnv(t, nil)
	for _, body := range []string{
		`{"id":1,"title":"설날","type":"LUNAR","year":2025,"month":1,"day":1}`,
		`{"id":2,"title":"설날","type":"LUNAR","year":2026,"month":1,"day":1}`,
		`{"id":3,"title":"other","type":"SOLAR","year":2026,"month":1,"day":1}`,
	} {
		expectStatus(t, e.do(t, http.MethodPost, "/api/reminders", body), http.StatusCreated)
	}

	rec := e.do(t, http.MethodDelete, "/api/reminders/by-title/%EC%84%A4%EB%82%A0", "")
	expectStatus(t, rec, http.StatusOK)
	if n := decode[countResponse](t, rec).Count; n != 2 {
		t.Errorf("series delete count = %d, want 2", n)
	}

	expectStatus(t, e.do(t, http.MethodDelete, "/api/reminders/3", ""), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodDelete, "/api/reminders/3", ""), http.StatusNotFound)
}

// ============================================================
// Exceptions
// ============================================================

func TestAddException(t *testing.T) {
	e := newTestEnv(t, nil)
	e.do(t, http.MethodPost, "/api/reminders",
		`{"id":5,"title":"weekly","type":"SOLAR","year":2026,"month":3,"day":1,"recurrence":"WEEKLY"}`)
	e.do(t, http.MethodPost, "/api/reminders",
		`{"id":6,"title":"once","type":"SOLAR","year":2026,"month":3,"day":1}`)

	rec := e.do(t, http.MethodPost, "/api/reminders/5/exceptions", `{"date":"2026-03-08"}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Reminder](t, rec); !got.HasException(model.SolarDate{Year: 2026, Month: 3, Day: 8}) {
		t.Errorf("response exceptions = %+v", got.Exceptions)
	}
	// Repeating is a no-op.
	expectStatus(t, e.do(t, http.MethodPost, "/api/reminders/5/exceptions", `{"date":"2026-03-08"}`), http.StatusOK)

	stored, _ := e.store.GetReminder(context.Background(), 5)
	if len(stored.Exceptions) != 1 {
		t.Errorf("stored exceptions = %+v", stored.Exceptions)
	}

	expectStatus(t, e.do(t, http.MethodPost, "/api/reminders/6/exceptions", `{"date":"2026-03-01"}`), http.StatusConflict)
	expectStatus(t, e.do(t, http.MethodPost, "/api/reminders/999/exceptions", `{"date":"2026-03-01"}`), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodPost, "/api/reminders/5/exceptions", `{"date":"2026-02-30"}`), http.StatusBadRequest)
}

func TestAddExceptionWithDateFields(t *testing.T) {
	e := newTestEnv(t, nil)
	e.do(t, http.MethodPost, "/api/reminders",
		`{"id":5,"title":"weekly","type":"SOLAR","year":2026,"month":3,"day":1,"recurrence":"WEEKLY"}`)

	rec := e.do(t, http.MethodPost, "/api/reminders/5/exceptions", `{"year":2026,"month":3,"day":8}`)
	expectStatus(t, rec, http.StatusOK)
	stored, err := e.store.GetReminder(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.HasException(model.SolarDate{Year: 2026, Month: 3, Day: 8}) {
		t.Errorf("stored exceptions = %+v", stored.Exceptions)
	}

	for _, body := range []string{`{"year":2026,"month":2,"day":30}`, `{"month":3,"day":8}`, `{}`} {
		rec := e.do(t, http.MethodPost, "/api/reminders/5/exceptions", body)
		expectStatus(t, rec, http.StatusBadRequest)
	}
}

// ============================================================
// Import / export / seed
// ============================================================

func TestImportJSONSkipsExisting(t *testing.T) {
	e := newTestEnv(t, nil)
	body := `[
		{"id":10,"title":"a","type":"SOLAR","year":2025,"month":1,"day":1,"recurrence":"NONE"},
		{"id":11,"title":"b","type":"LUNAR","month":8,"day":15,"recurrence":"ANNUALLY","exceptions":[{"year":2025,"month":10,"day":6}]}
	]`
	rec := e.do(t, http.MethodPost, "/api/seed-holidays", body)
	expectStatus(t, rec, http.StatusOK)
	if n := decode[countResponse](t, rec).Count; n != 2 {
		t.Errorf("first import = %d", n)
	}
	rec = e.do(t, http.MethodPost, "/api/seed-holidays", body)
	if n := decode[countResponse](t, rec).Count; n != 0 {
		t.Errorf("second import = %d, want 0", n)
	}

	rec = e.do(t, http.MethodPost, "/api/seed-holidays", `[{"id":12,"title":"","type":"SOLAR","year":2025,"month":1,"day":1}]`)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestSeedHolidays(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/holidays/seed?from=2025&to=2025", "")
	expectStatus(t, rec, http.StatusOK)
	if n := decode[countResponse](t, rec).Count; n == 0 {
		t.Fatal("seeding inserted nothing")
	}

	rec = e.do(t, http.MethodPost, "/api/holidays/seed?from=2025&to=2025", "")
	if n := decode[countResponse](t, rec).Count; n != 0 {
		t.Errorf("reseed inserted %d, want 0", n)
	}

	expectStatus(t, e.do(t, http.MethodPost, "/api/holidays/seed?from=2030&to=2025", ""), http.StatusBadRequest)
}

func TestExportJSON(t *testing.T) {
	e := newTestEnv(t, nil)
	e.do(t, http.MethodPost, "/api/reminders", `{"id":1,"title":"x","type":"SOLAR","month":1,"day":2,"recurrence":"ANNUALLY"}`)

	rec := e.do(t, http.MethodGet, "/api/export", "")
	expectStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "lunar-reminders.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if list := decode[[]model.Reminder](t, rec); len(list) != 1 {
		t.Errorf("export = %+v", list)
	}
}

func TestICSRoundTripThroughAPI(t *testing.T) {
	src := newTestEnv(t, nil)
	src.do(t, http.MethodPost, "/api/reminders",
		`{"id":1,"title":"rent","type":"SOLAR","month":1,"day":25,"recurrence":"MONTHLY","time":"09:00","alertTiming":"1d_before"}`)
	src.do(t, http.MethodPost, "/api/reminders",
		`{"id":2,"title":"설날","type":"LUNAR","month":1,"day":1,"recurrence":"ANNUALLY"}`)

	rec := src.do(t, http.MethodGet, "/api/export.ics?from=2025-01-01&to=2026-12-31", "")
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "RRULE:FREQ=MONTHLY") {
		t.Errorf("export missing RRULE:\n%s", body)
	}

	dst := newTestEnv(t, nil)
	rec = dst.do(t, http.MethodPost, "/api/import.ics", body)
	expectStatus(t, rec, http.StatusOK)
	if n := decode[countResponse](t, rec).Count; n != 2 {
		t.Fatalf("imported %d, want 2", n)
	}
	lunarNY, err := dst.store.GetReminder(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if lunarNY.Type != model.Lunar || lunarNY.Month != 1 || lunarNY.Day != 1 || lunarNY.Year != 0 {
		t.Errorf("lunar after import = %+v", lunarNY)
	}

	expectStatus(t, src.do(t, http.MethodGet, "/api/export.ics?from=nope", ""), http.StatusBadRequest)
	expectStatus(t, src.do(t, http.MethodGet, "/api/export.ics?from=2025-01-01&to=2035-01-01", ""), http.StatusBadRequest)
	expectStatus(t, dst.do(t, http.MethodPost, "/api/import.ics", "garbage"), http.StatusBadRequest)
}

// ============================================================
// Calendar, conversion, alerts
// ============================================================

func TestCalendarMonth(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.WeekStart = "monday" })
	rec := e.do(t, http.MethodGet, "/api/calendar?year=2025&month=10", "")
	expectStatus(t, rec, http.StatusOK)
	m := decode[calendar.Month](t, rec)
	if m.Padding != 2 || len(m.Days) != 31 || m.WeekStart != "monday" {
		t.Errorf("month = padding %d, days %d, week start %q", m.Padding, len(m.Days), m.WeekStart)
	}
	if !m.Days[14].Today {
		t.Error("2025-10-15 should be today")
	}

	rec = e.do(t, http.MethodGet, "/api/calendar", "")
	expectStatus(t, rec, http.StatusOK)
	if m := decode[calendar.Month](t, rec); m.Year != 2025 || m.Month != 10 {
		t.Errorf("default month = %d-%d", m.Year, m.Month)
	}

	expectStatus(t, e.do(t, http.MethodGet, "/api/calendar?year=2025&month=13", ""), http.StatusBadRequest)
}

func TestConvertLunar(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/api/convert/lunar?year=2025&month=1&day=1", "")
	expectStatus(t, rec, http.StatusOK)
	got := decode[convertResponse](t, rec)
	if got.Date != "2025-01-29" || got.Weekday != "Wednesday" {
		t.Errorf("convert = %+v", got)
	}

	expectStatus(t, e.do(t, http.MethodGet, "/api/convert/lunar?year=2025&month=13&day=1", ""), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, "/api/convert/lunar?year=2025", ""), http.StatusBadRequest)
}

func TestAlertsFeed(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/api/alerts", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]alert.Fired](t, rec); len(got) != 0 {
		t.Fatalf("empty feed = %+v", got)
	}

	due := recurrence.Due{
		Reminder: model.Reminder{ID: 9, Title: "rent"},
		Label:    "tomorrow",
		EventAt:  fixedNow.Add(24 * time.Hour),
		AlertAt:  fixedNow,
	}
	if err := e.feed.Notify(context.Background(), due); err != nil {
		t.Fatal(err)
	}
	got := decode[[]alert.Fired](t, e.do(t, http.MethodGet, "/api/alerts", ""))
	if len(got) != 1 || got[0].ReminderID != 9 || got[0].Message != "Event tomorrow" {
		t.Errorf("feed = %+v", got)
	}
}

func TestUnknownAPIPath(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/api/nope", "")
	expectStatus(t, rec, http.StatusNotFound)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestWrongMethodOnKnownRoute(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/calendar", "")
	expectStatus(t, rec, http.StatusMethodNotAllowed)
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, http.MethodGet) {
		t.Errorf("Allow = %q", allow)
	}
}

// ============================================================
// Basic auth
// ============================================================

func TestBasicAuth(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})

	expectStatus(t, e.do(t, http.MethodGet, "/health", ""), http.StatusOK)

	rec := e.do(t, http.MethodGet, "/api/reminders", "")
	expectStatus(t, rec, http.StatusUnauthorized)
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/reminders", nil)
	req.SetBasicAuth("admin", "secret")
	ok := httptest.NewRecorder()
	e.h.ServeHTTP(ok, req)
	expectStatus(t, ok, http.StatusOK)

	req = httptest.NewRequest(http.MethodGet, "/api/reminders", nil)
	req.SetBasicAuth("admin", "wrong")
	bad := httptest.NewRecorder()
	e.h.ServeHTTP(bad, req)
	expectStatus(t, bad, http.StatusUnauthorized)
}

func TestBasicAuthPasswordHash(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	e := newTestEnv(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", PasswordHash: hash}
	})

	for _, tc := range []struct {
		password string
		want     int
	}{
		{"s3cret", http.StatusOK},
		{"", http.StatusUnauthorized},
		{"wrong", http.StatusUnauthorized},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
		req.SetBasicAuth("admin", tc.password)
		rec := httptest.NewRecorder()
		e.h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("password %q: status = %d, want %d", tc.password, rec.Code, tc.want)
		}
	}
}

func TestSecureCompare(t *testing.T) {
	if !secureCompare("abc", "abc") || secureCompare("abc", "abd") || secureCompare("abc", "ab") {
		t.Error("secureCompare mismatch")
	}
}
