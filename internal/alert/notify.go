package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/recurrence"
)

// Notifier delivers a due alert. Delivery is the only side effect of an
// alert check; deciding what is due stays in recurrence.DueAlerts.
type Notifier interface {
	Notify(ctx context.Context, due recurrence.Due) error
}

// LogNotifier writes each alert as a log line.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, due recurrence.Due) error {
	appLog.Info("reminder alert",
		"id", due.Reminder.ID,
		"title", due.Reminder.Title,
		"label", due.Label,
		"event_at", due.EventAt.Format(time.RFC3339),
	)
	return nil
}

// MultiNotifier fans an alert out to several notifiers and joins their
// errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, due recurrence.Due) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, due); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fired is one delivered alert as exposed to API clients.
type Fired struct {
	ReminderID int64     `json:"reminder_id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	EventAt    time.Time `json:"event_at"`
	FiredAt    time.Time `json:"fired_at"`
}

// Feed keeps the most recent alerts in memory so a UI can poll them.
type Feed struct {
	mu    sync.RWMutex
	size  int
	items []Fired
	now   func() time.Time
}

// NewFeed returns a Feed remembering at most size alerts.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 50
	}
	return &Feed{size: size, now: time.Now}
}

func (f *Feed) Notify(_ context.Context, due recurrence.Due) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, Fired{
		ReminderID: due.Reminder.ID,
		Title:      due.Reminder.Title,
		Message:    "Event " + due.Label,
		EventAt:    due.EventAt,
		FiredAt:    f.now(),
	})
	if over := len(f.items) - f.size; over > 0 {
		f.items = append([]Fired(nil), f.items[over:]...)
	}
	return nil
}

// Recent returns alerts newest first.
func (f *Feed) Recent() []Fired {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Fired, len(f.items))
	for i, it := range f.items {
		out[len(f.items)-1-i] = it
	}
	return out
}
