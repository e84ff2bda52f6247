package recurrence

import (
	"errors"
	"fmt"
	"slices"

	"lunarcal/internal/model"
)

// ErrNotRecurring is returned when an exception is requested for a one-off
// reminder. The caller should delete the reminder instead.
var ErrNotRecurring = errors.New("reminder does not recur; delete it instead")

// AddException returns a copy of r with d added to its exception set.
// Adding a date that is already excepted is a no-op.
func AddException(r model.Reminder, d model.SolarDate) (model.Reminder, error) {
	if r.Recurrence == model.RecurNone {
		return r, ErrNotRecurring
	}
	if !d.Valid() {
		return r, fmt.Errorf("exception %s: %w", d, model.ErrInvalidDate)
	}
	if r.HasException(d) {
		return r, nil
	}
	r.Exceptions = append(slices.Clone(r.Exceptions), d)
	return r, nil
}

// IsExcepted reports whether the occurrence of r on d was suppressed.
func IsExcepted(r model.Reminder, d model.SolarDate) bool {
	return r.HasException(d)
}
