package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"lunarcal/internal/model"
)

// reminderRow mirrors a reminders row, nullable columns included.
type reminderRow struct {
	ID          int64          `db:"id"`
	Title       string         `db:"title"`
	Type        string         `db:"type"`
	Year        sql.NullInt64  `db:"year"`
	Month       int            `db:"month"`
	Day         int            `db:"day"`
	IsLeap      bool           `db:"is_leap"`
	Time        sql.NullString `db:"time"`
	AlertTiming sql.NullString `db:"alertTiming"`
	Recurrence  sql.NullString `db:"recurrence_type"`
}

const reminderColumns = `id, title, type, year, month, day, is_leap, time, alertTiming, recurrence_type`

func (row reminderRow) toModel() model.Reminder {
	r := model.Reminder{
		ID:          row.ID,
		Title:       row.Title,
		Type:        model.CalendarType(row.Type),
		Year:        int(row.Year.Int64),
		Month:       row.Month,
		Day:         row.Day,
		Leap:        row.IsLeap,
		Time:        row.Time.String,
		AlertTiming: model.AlertOffset(row.AlertTiming.String),
		Recurrence:  model.Recurrence(row.Recurrence.String),
		Exceptions:  []model.SolarDate{},
	}
	r.Normalize()
	return r
}

// reminderArgs returns the column values for r in reminderColumns order,
// without the id.
func reminderArgs(r model.Reminder) []any {
	var year sql.NullInt64
	if r.Year != 0 {
		year = sql.NullInt64{Int64: int64(r.Year), Valid: true}
	}
	var clock sql.NullString
	if r.Time != "" {
		clock = sql.NullString{String: r.Time, Valid: true}
	}
	alert := r.AlertTiming
	if alert == "" {
		alert = model.AlertNone
	}
	recur := r.Recurrence
	if recur == "" {
		recur = model.RecurNone
	}
	return []any{r.Title, string(r.Type), year, r.Month, r.Day, r.Leap, clock, string(alert), string(recur)}
}

type exceptionRow struct {
	ReminderID int64 `db:"reminder_id"`
	Year       int   `db:"ex_year"`
	Month      int   `db:"ex_month"`
	Day        int   `db:"ex_day"`
}

// ListReminders returns every reminder with its exceptions, ordered by id.
func (s *SQLiteStore) ListReminders(ctx context.Context) ([]model.Reminder, error) {
	var rows []reminderRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT "+reminderColumns+" FROM reminders ORDER BY id"); err != nil {
		return nil, fmt.Errorf("querying reminders: %w", err)
	}

	var exRows []exceptionRow
	if err := s.db.SelectContext(ctx, &exRows, `
		SELECT reminder_id, ex_year, ex_month, ex_day
		FROM reminder_exceptions
		ORDER BY reminder_id, ex_year, ex_month, ex_day`); err != nil {
		return nil, fmt.Errorf("querying exceptions: %w", err)
	}

	byID := make(map[int64][]model.SolarDate)
	for _, e := range exRows {
		byID[e.ReminderID] = append(byID[e.ReminderID], model.SolarDate{Year: e.Year, Month: e.Month, Day: e.Day})
	}

	out := make([]model.Reminder, 0, len(rows))
	for _, row := range rows {
		r := row.toModel()
		if ex, ok := byID[r.ID]; ok {
			r.Exceptions = ex
		}
		out = append(out, r)
	}
	return out, nil
}

// GetReminder returns one reminder with its exceptions.
func (s *SQLiteStore) GetReminder(ctx context.Context, id int64) (model.Reminder, error) {
	var row reminderRow
	err := s.db.GetContext(ctx, &row, "SELECT "+reminderColumns+" FROM reminders WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reminder{}, fmt.Errorf("reminder %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Reminder{}, fmt.Errorf("querying reminder %d: %w", id, err)
	}

	r := row.toModel()
	var exRows []exceptionRow
	if err := s.db.SelectContext(ctx, &exRows, `
		SELECT reminder_id, ex_year, ex_month, ex_day
		FROM reminder_exceptions WHERE reminder_id = ?
		ORDER BY ex_year, ex_month, ex_day`, id); err != nil {
		return model.Reminder{}, fmt.Errorf("querying exceptions for %d: %w", id, err)
	}
	for _, e := range exRows {
		r.Exceptions = append(r.Exceptions, model.SolarDate{Year: e.Year, Month: e.Month, Day: e.Day})
	}
	return r, nil
}

// CreateReminder inserts r (and any exceptions it carries). A zero ID lets
// SQLite assign one. The stored id is returned.
func (s *SQLiteStore) CreateReminder(ctx context.Context, r model.Reminder) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, _, err := insertReminder(ctx, tx, "INSERT", r)
	if err != nil {
		return 0, err
	}
	if err := insertExceptions(ctx, tx, id, r.Exceptions); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing reminder: %w", err)
	}
	return id, nil
}

// insertReminder runs verb ("INSERT" or "INSERT OR IGNORE") for r and
// reports the row id and whether a row was written.
func insertReminder(ctx context.Context, tx *sqlx.Tx, verb string, r model.Reminder) (int64, bool, error) {
	var id any
	if r.ID != 0 {
		id = r.ID
	}
	args := append([]any{id}, reminderArgs(r)...)
	res, err := tx.ExecContext(ctx,
		verb+" INTO reminders ("+reminderColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", args...)
	if err != nil {
		return 0, false, fmt.Errorf("inserting reminder %q: %w", r.Title, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return r.ID, false, nil
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("reading reminder id: %w", err)
	}
	return newID, true, nil
}

func insertExceptions(ctx context.Context, tx *sqlx.Tx, reminderID int64, dates []model.SolarDate) error {
	for _, d := range dates {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO reminder_exceptions (reminder_id, ex_year, ex_month, ex_day)
			VALUES (?, ?, ?, ?)`, reminderID, d.Year, d.Month, d.Day); err != nil {
			return fmt.Errorf("inserting exception %s for %d: %w", d, reminderID, err)
		}
	}
	return nil
}

// UpdateReminder replaces every field of an existing reminder except its
// exceptions.
func (s *SQLiteStore) UpdateReminder(ctx context.Context, r model.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	args := append(reminderArgs(r), r.ID)
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET
			title = ?, type = ?, year = ?, month = ?, day = ?, is_leap = ?,
			time = ?, alertTiming = ?, recurrence_type = ?
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating reminder %d: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder %d: %w", r.ID, ErrNotFound)
	}
	return nil
}

// DeleteByID removes a reminder; its exceptions cascade.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting reminder %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteByTitle removes every reminder sharing title (a whole series) and
// returns how many were deleted.
func (s *SQLiteStore) DeleteByTitle(ctx context.Context, title string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reminders WHERE title = ?", title)
	if err != nil {
		return 0, fmt.Errorf("deleting series %q: %w", title, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ImportReminders bulk-inserts reminders in one transaction, skipping ids
// that already exist. It returns the number of reminders inserted.
func (s *SQLiteStore) ImportReminders(ctx context.Context, reminders []model.Reminder) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for i, r := range reminders {
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("record %d (%q): %w", i, r.Title, err)
		}
		id, ok, err := insertReminder(ctx, tx, "INSERT OR IGNORE", r)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		if err := insertExceptions(ctx, tx, id, r.Exceptions); err != nil {
			return 0, err
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return inserted, nil
}
