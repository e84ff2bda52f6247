package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lunarcal/internal/alert"
	"lunarcal/internal/auth"
	"lunarcal/internal/calendar"
	"lunarcal/internal/config"
	"lunarcal/internal/holiday"
	"lunarcal/internal/ics"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
	"lunarcal/internal/recurrence"
	"lunarcal/internal/store"
)

// maxBodyBytes caps JSON and ICS uploads.
const maxBodyBytes = 5 << 20

// ReminderStore is the persistence the API needs. *store.SQLiteStore
// satisfies it.
type ReminderStore interface {
	ListReminders(ctx context.Context) ([]model.Reminder, error)
	GetReminder(ctx context.Context, id int64) (model.Reminder, error)
	CreateReminder(ctx context.Context, r model.Reminder) (int64, error)
	UpdateReminder(ctx context.Context, r model.Reminder) error
	DeleteByID(ctx context.Context, id int64) error
	DeleteByTitle(ctx context.Context, title string) (int64, error)
	AppendException(ctx context.Context, reminderID int64, d model.SolarDate) error
	ImportReminders(ctx context.Context, reminders []model.Reminder) (int, error)
}

// Server provides the reminder HTTP API.
type Server struct {
	cfg   *config.Config
	store ReminderStore
	conv  lunar.Converter
	feed  *alert.Feed
	loc   *time.Location
	mux   *http.ServeMux

	// now is swapped in tests.
	now func() time.Time
}

// NewServer constructs a new Server. feed may be nil, in which case
// /api/alerts always reports an empty list.
func NewServer(cfg *config.Config, st ReminderStore, conv lunar.Converter, feed *alert.Feed) *Server {
	s := &Server{
		cfg:   cfg,
		store: st,
		conv:  conv,
		feed:  feed,
		loc:   ResolveLocation(cfg.Timezone),
		mux:   http.NewServeMux(),
		now:   time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	ba := s.cfg.BasicAuth
	return ba.Username != "" && (ba.Password != "" || ba.PasswordHash != "")
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	ba := *s.cfg.BasicAuth

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, ba.Username) || !passwordMatches(ba, p) {
			appLog.Warn("rejected API credentials", "remote", r.RemoteAddr, "user", u)
			w.Header().Set("WWW-Authenticate", `Basic realm="lunarcal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func passwordMatches(ba config.BasicAuthConfig, password string) bool {
	if ba.PasswordHash == "" {
		return secureCompare(password, ba.Password)
	}
	ok, err := auth.VerifyPassword(password, ba.PasswordHash)
	if err != nil {
		appLog.Error("basic auth password_hash is unusable", err)
		return false
	}
	return ok
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/reminders", s.handleListReminders)
	s.mux.HandleFunc("POST /api/reminders", s.handleCreateReminder)
	s.mux.HandleFunc("PUT /api/reminders/{id}", s.handleUpdateReminder)
	s.mux.HandleFunc("DELETE /api/reminders/{id}", s.handleDeleteReminder)
	s.mux.HandleFunc("DELETE /api/reminders/by-title/{title}", s.handleDeleteSeries)
	s.mux.HandleFunc("POST /api/reminders/{id}/exceptions", s.handleAddException)

	s.mux.HandleFunc("POST /api/seed-holidays", s.handleImportJSON)
	s.mux.HandleFunc("POST /api/holidays/seed", s.handleSeedHolidays)
	s.mux.HandleFunc("GET /api/export", s.handleExportJSON)
	s.mux.HandleFunc("GET /api/export.ics", s.handleExportICS)
	s.mux.HandleFunc("POST /api/import.ics", s.handleImportICS)

	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /api/convert/lunar", s.handleConvertLunar)
	s.mux.HandleFunc("GET /api/alerts", s.handleAlerts)

	// Unknown API paths answer in JSON rather than the mux's text 404. Only
	// GET is claimed so wrong methods on known routes still get a 405.
	s.mux.HandleFunc("GET /api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// reminderPayload is a reminder as sent by clients. Older clients send a
// boolean "repeat" instead of "recurrence"; true means ANNUALLY.
type reminderPayload struct {
	model.Reminder
	Repeat *bool `json:"repeat,omitempty"`
}

func (p reminderPayload) toModel() model.Reminder {
	r := p.Reminder
	if r.Recurrence == "" && p.Repeat != nil && *p.Repeat {
		r.Recurrence = model.RecurAnnually
	}
	if r.Exceptions == nil {
		r.Exceptions = []model.SolarDate{}
	}
	r.Normalize()
	return r
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListReminders(r.Context())
	if err != nil {
		s.fail(w, "list reminders", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var p reminderPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rem := p.toModel()
	if rem.ID == 0 {
		rem.ID = s.now().UnixMilli()
	}

	id, err := s.store.CreateReminder(r.Context(), rem)
	if err != nil {
		s.fail(w, "create reminder", err)
		return
	}
	rem.ID = id
	appLog.Info("reminder created", "id", id, "title", rem.Title, "recurrence", rem.Recurrence)
	writeJSON(w, http.StatusCreated, rem)
}

func (s *Server) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p reminderPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rem := p.toModel()
	rem.ID = id

	if err := s.store.UpdateReminder(r.Context(), rem); err != nil {
		s.fail(w, "update reminder", err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteByID(r.Context(), id); err != nil {
		s.fail(w, "delete reminder", err)
		return
	}
	appLog.Info("reminder deleted", "id", id)
	writeJSON(w, http.StatusOK, countResponse{Count: 1})
}

// handleDeleteSeries removes every reminder sharing a title, which is how
// seeded holidays (one record per year) are deleted as a series.
func (s *Server) handleDeleteSeries(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.PathValue("title"))
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	n, err := s.store.DeleteByTitle(r.Context(), title)
	if err != nil {
		s.fail(w, "delete series", err)
		return
	}
	appLog.Info("reminder series deleted", "title", title, "count", n)
	writeJSON(w, http.StatusOK, countResponse{Count: int(n)})
}

// exceptionRequest names the occurrence to drop. Clients send the solar
// date as {year, month, day}; "date" (YYYY-MM-DD) is accepted instead.
type exceptionRequest struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Day   int    `json:"day"`
	Date  string `json:"date,omitempty"`
}

func (req exceptionRequest) solarDate() (model.SolarDate, error) {
	if v := strings.TrimSpace(req.Date); v != "" {
		d, err := model.ParseSolarDate(v)
		if err != nil {
			return d, errors.New("date must be YYYY-MM-DD")
		}
		return d, nil
	}
	d := model.SolarDate{Year: req.Year, Month: req.Month, Day: req.Day}
	if d.Year < 1 || !d.Valid() {
		return d, errors.New("year, month and day must form a valid date")
	}
	return d, nil
}

// handleAddException deletes a single occurrence of a recurring reminder
// and answers 200 with the updated reminder, also when the date was
// already excepted.
func (s *Server) handleAddException(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req exceptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := req.solarDate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	rem, err := s.store.GetReminder(ctx, id)
	if err != nil {
		s.fail(w, "load reminder", err)
		return
	}
	updated, err := recurrence.AddException(rem, d)
	if err != nil {
		s.fail(w, "add exception", err)
		return
	}
	if err := s.store.AppendException(ctx, id, d); err != nil {
		s.fail(w, "add exception", err)
		return
	}
	appLog.Info("occurrence excepted", "id", id, "date", d.String())
	writeJSON(w, http.StatusOK, updated)
}

type countResponse struct {
	Count int `json:"count"`
}

// handleImportJSON bulk-inserts a JSON array of reminders, skipping ids that
// already exist. The client-side holiday seeder and backup restore use it.
func (s *Server) handleImportJSON(w http.ResponseWriter, r *http.Request) {
	var payload []reminderPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	batch := make([]model.Reminder, 0, len(payload))
	for _, p := range payload {
		batch = append(batch, p.toModel())
	}
	s.importBatch(w, r, batch, "json")
}

// handleSeedHolidays generates the holiday seed set server-side.
func (s *Server) handleSeedHolidays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := parseIntDefault(q.Get("from"), s.cfg.HolidaySeed.FromYear)
	to := parseIntDefault(q.Get("to"), s.cfg.HolidaySeed.ToYear)
	if from < 1 || to < from || to-from > 100 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid seed range %d-%d", from, to))
		return
	}
	s.importBatch(w, r, holiday.Seed(from, to), "holidays")
}

func (s *Server) handleImportICS(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	batch, err := ics.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.importBatch(w, r, batch, "ics")
}

func (s *Server) importBatch(w http.ResponseWriter, r *http.Request, batch []model.Reminder, source string) {
	base := s.now().UnixMilli()
	for i := range batch {
		if batch[i].ID == 0 {
			batch[i].ID = base + int64(i)
		}
	}
	n, err := s.store.ImportReminders(r.Context(), batch)
	if err != nil {
		s.fail(w, "import reminders", err)
		return
	}
	appLog.Info("reminders imported", "source", source, "received", len(batch), "inserted", n)
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListReminders(r.Context())
	if err != nil {
		s.fail(w, "export reminders", err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="lunar-reminders.json"`)
	writeJSON(w, http.StatusOK, list)
}

// handleExportICS exports reminders as iCalendar. Lunar reminders are
// expanded inside [from, to], which defaults to this year and next.
//
// GET /api/export.ics?from=2025-01-01&to=2026-12-31
func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request) {
	today := s.today()
	cfg := ics.ExportConfig{
		From:  model.SolarDate{Year: today.Year, Month: 1, Day: 1},
		To:    model.SolarDate{Year: today.Year + 1, Month: 12, Day: 31},
		Stamp: s.now(),
	}
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *model.SolarDate
	}{{"from", &cfg.From}, {"to", &cfg.To}} {
		if v := q.Get(p.name); v != "" {
			d, err := model.ParseSolarDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, p.name+" must be YYYY-MM-DD")
				return
			}
			*p.dst = d
		}
	}

	if cfg.From.AddDays(recurrence.MaxRangeDays - 1).Before(cfg.To) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("range must not exceed %d days", recurrence.MaxRangeDays))
		return
	}

	list, err := s.store.ListReminders(r.Context())
	if err != nil {
		s.fail(w, "export ics", err)
		return
	}
	body, err := ics.Export(s.conv, list, cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="lunar-reminders.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

// handleCalendar returns the month grid.
//
// GET /api/calendar?year=2025&month=10
//   - year, month: default to the current month in the configured timezone
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	today := s.today()
	q := r.URL.Query()
	year := parseIntDefault(q.Get("year"), today.Year)
	month := parseIntDefault(q.Get("month"), today.Month)
	if year < 1 || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid year or month")
		return
	}

	list, err := s.store.ListReminders(r.Context())
	if err != nil {
		s.fail(w, "calendar", err)
		return
	}
	writeJSON(w, http.StatusOK, calendar.BuildMonth(s.conv, list, year, month, s.cfg.WeekStart, today))
}

type convertResponse struct {
	Solar   model.SolarDate `json:"solar"`
	Date    string          `json:"date"`
	Weekday string          `json:"weekday"`
}

// handleConvertLunar converts a lunar date to its solar date and weekday.
//
// GET /api/convert/lunar?year=2025&month=6&day=1&leap=true
func (s *Server) handleConvertLunar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, errY := strconv.Atoi(q.Get("year"))
	month, errM := strconv.Atoi(q.Get("month"))
	day, errD := strconv.Atoi(q.Get("day"))
	if errY != nil || errM != nil || errD != nil {
		writeError(w, http.StatusBadRequest, "year, month and day are required integers")
		return
	}
	leap, _ := strconv.ParseBool(q.Get("leap"))

	d, wd, err := s.conv.LunarToSolar(year, month, day, leap)
	if err != nil {
		s.fail(w, "convert lunar", err)
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{Solar: d, Date: d.String(), Weekday: wd.String()})
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	if s.feed == nil {
		writeJSON(w, http.StatusOK, []alert.Fired{})
		return
	}
	writeJSON(w, http.StatusOK, s.feed.Recent())
}

func (s *Server) today() model.SolarDate {
	return model.DateOf(s.now().In(s.loc))
}

// fail maps domain errors to status codes and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		appLog.Error("api "+op+" failed", err)
		writeError(w, status, op+" failed")
		return
	}
	appLog.Debug("api "+op+" rejected", "status", status, "err", err.Error())
	writeError(w, status, err.Error())
}

var badRequestErrors = []error{
	model.ErrEmptyTitle,
	model.ErrInvalidType,
	model.ErrInvalidMonth,
	model.ErrInvalidDay,
	model.ErrYearRequired,
	model.ErrInvalidTime,
	model.ErrInvalidAlert,
	model.ErrInvalidRecurring,
	model.ErrInvalidDate,
	lunar.ErrInvalidLunarDate,
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, recurrence.ErrNotRecurring):
		return http.StatusConflict
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ResolveLocation loads an IANA zone, falling back to the host clock.
func ResolveLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
