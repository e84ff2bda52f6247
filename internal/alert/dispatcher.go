package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "lunarcal/internal/log"
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
	"lunarcal/internal/recurrence"
)

// dedupWindow is how long fired keys are remembered. Keys are per minute, so
// anything longer than one scheduling period is enough.
const dedupWindow = 2 * time.Hour

// checkTimeout bounds a single store read during a scheduled check.
const checkTimeout = 15 * time.Second

// ReminderLister is the part of the reminder store the dispatcher reads.
type ReminderLister interface {
	ListReminders(ctx context.Context) ([]model.Reminder, error)
}

// Dispatcher runs periodic alert checks: it snapshots the reminders, asks
// recurrence.DueAlerts what is due, and notifies each alert at most once.
type Dispatcher struct {
	store    ReminderLister
	conv     lunar.Converter
	notifier Notifier
	loc      *time.Location
	now      func() time.Time

	mu    sync.Mutex
	fired map[string]time.Time

	cron *cron.Cron
}

// NewDispatcher constructs a Dispatcher. A nil loc means time.Local.
func NewDispatcher(store ReminderLister, conv lunar.Converter, notifier Notifier, loc *time.Location) *Dispatcher {
	if loc == nil {
		loc = time.Local
	}
	return &Dispatcher{
		store:    store,
		conv:     conv,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
		fired:    make(map[string]time.Time),
	}
}

// Check evaluates the alerts due at now and delivers those not already
// fired. It returns the alerts delivered by this call.
func (d *Dispatcher) Check(ctx context.Context, now time.Time) ([]recurrence.Due, error) {
	reminders, err := d.store.ListReminders(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing reminders: %w", err)
	}

	now = now.In(d.loc)
	due := recurrence.DueAlerts(d.conv, reminders, now)

	var delivered []recurrence.Due
	var errs []error
	for _, a := range due {
		if !d.claim(a.Key(), now) {
			continue
		}
		if err := d.notifier.Notify(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("notify reminder %d: %w", a.Reminder.ID, err))
			continue
		}
		delivered = append(delivered, a)
	}

	d.prune(now)
	return delivered, errors.Join(errs...)
}

// claim records key as fired and reports whether it was new.
func (d *Dispatcher) claim(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.fired[key]; seen {
		return false
	}
	d.fired[key] = now
	return true
}

func (d *Dispatcher) prune(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, t := range d.fired {
		if now.Sub(t) > dedupWindow {
			delete(d.fired, k)
		}
	}
}

// Start schedules Check on the given cron spec. Overlapping runs are skipped.
func (d *Dispatcher) Start(spec string) error {
	c := cron.New(
		cron.WithLocation(d.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		delivered, err := d.Check(ctx, d.now())
		if err != nil {
			appLog.Error("alert check failed", err)
		}
		if len(delivered) > 0 {
			appLog.Debug("alert check delivered", "count", len(delivered))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid alert schedule %q: %w", spec, err)
	}

	d.cron = c
	c.Start()
	appLog.Info("alert scheduler started", "schedule", spec, "timezone", d.loc.String())
	return nil
}

// Stop halts the schedule and waits for a running check to finish.
func (d *Dispatcher) Stop() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
	appLog.Info("alert scheduler stopped")
}
