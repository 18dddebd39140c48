// Package scheduler drives event reminders from outside the registration
// core. It only reads through the public query surface and hands intents to
// the notification dispatcher.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-registration/internal/config"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/notify"
)

// Directory is the read surface a reminder sweep needs.
type Directory interface {
	ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]model.Event, error)
	ListConfirmedAttendees(ctx context.Context, eventID string) ([]model.Registration, error)
}

// Reminders sends a reminder to every confirmed attendee of events starting
// in [now+lead, now+lead+window). With window equal to the cron period each
// event is swept exactly once.
type Reminders struct {
	dir      Directory
	notifier notify.Dispatcher
	lead     time.Duration
	window   time.Duration
	log      *zap.Logger
	cron     *cron.Cron

	mu  sync.Mutex
	ctx context.Context
}

// NewReminders constructs the scheduler and registers the sweep on the
// configured cron spec.
func NewReminders(dir Directory, notifier notify.Dispatcher, cfg config.ReminderConfig, log *zap.Logger) (*Reminders, error) {
	cl := cronLogger{log.Sugar()}
	r := &Reminders{
		dir:      dir,
		notifier: notifier,
		lead:     cfg.Lead,
		window:   cfg.Window,
		log:      log,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx: context.Background(),
	}
	if _, err := r.cron.AddFunc(cfg.Schedule, r.tick); err != nil {
		return nil, fmt.Errorf("register reminder job %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

func (r *Reminders) tick() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	if _, err := r.RunOnce(ctx, time.Now().UTC()); err != nil {
		r.log.Error("reminder sweep failed", zap.Error(err))
	}
}

// RunOnce performs one sweep at now and returns how many reminders were
// dispatched. A failing event does not stop the others; their errors are
// joined.
func (r *Reminders) RunOnce(ctx context.Context, now time.Time) (int, error) {
	from := now.Add(r.lead)
	to := from.Add(r.window)

	events, err := r.dir.ListEventsStartingBetween(ctx, from, to)
	if err != nil {
		return 0, err
	}

	var (
		sent int
		errs []error
	)
	for _, event := range events {
		attendees, err := r.dir.ListConfirmedAttendees(ctx, event.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", event.ID, err))
			continue
		}
		for _, reg := range attendees {
			err := r.notifier.Dispatch(ctx, notify.Intent{
				Kind:           notify.KindReminder,
				RegistrationID: reg.ID,
				EventID:        event.ID,
				EventName:      event.Name,
				StartsAt:       event.StartsAt,
				RecipientEmail: reg.Contact.Email,
				RecipientName:  reg.Contact.Name,
			})
			if err != nil {
				r.log.Error("notification dispatch failed",
					zap.String("kind", string(notify.KindReminder)),
					zap.String("registration_id", reg.ID),
					zap.Error(err),
				)
				continue
			}
			sent++
		}
	}

	r.log.Info("reminder sweep finished",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("events", len(events)),
		zap.Int("sent", sent),
	)
	return sent, errors.Join(errs...)
}

// Start runs the cron loop. Sweeps use ctx for their queries.
func (r *Reminders) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.log.Info("starting reminder scheduler", zap.Duration("lead", r.lead), zap.Duration("window", r.window))
	r.cron.Start()
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (r *Reminders) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("reminder scheduler stopped")
}

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
