package store

import (
	"context"
	"fmt"

	"lunarcal/internal/model"
)

// AppendException suppresses the occurrence of reminderID on d. Appending
// the same date twice stores it once.
func (s *SQLiteStore) AppendException(ctx context.Context, reminderID int64, d model.SolarDate) error {
	var exists int
	if err := s.db.GetContext(ctx, &exists,
		"SELECT COUNT(*) FROM reminders WHERE id = ?", reminderID); err != nil {
		return fmt.Errorf("checking reminder %d: %w", reminderID, err)
	}
	if exists == 0 {
		return fmt.Errorf("reminder %d: %w", reminderID, ErrNotFound)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reminder_exceptions (reminder_id, ex_year, ex_month, ex_day)
		VALUES (?, ?, ?, ?)`, reminderID, d.Year, d.Month, d.Day)
	if err != nil {
		return fmt.Errorf("adding exception %s to reminder %d: %w", d, reminderID, err)
	}
	return nil
}
