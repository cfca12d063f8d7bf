// Package cron schedules pipeline runs for the batch server.
//
// A Trigger fires a callback on a cron schedule; the Manager builds one
// Trigger per entry of a multi-trigger specification and starts them
// together. Triggers run until the context is cancelled.
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// Trigger fires a callback according to a cron schedule.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	fire     func() error
	logger   *slog.Logger
}

// NewTrigger creates a Trigger from a standard 5-field cron spec
// (minute, hour, day of month, month, weekday).
func NewTrigger(spec string, fire func() error, logger *slog.Logger) (*Trigger, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}

	return &Trigger{
		spec:     spec,
		schedule: schedule,
		fire:     fire,
		logger:   logger,
	}, nil
}

// Start launches the scheduling loop in a goroutine. Returns immediately;
// the goroutine exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

// NextRun returns the next scheduled fire time from now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(time.Now())
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		next := t.schedule.Next(time.Now())
		wait := time.Until(next)

		t.logger.Debug("waiting for next scheduled run",
			"schedule", t.spec,
			"next_run", next,
			"wait_duration", wait,
		)

		select {
		case <-ctx.Done():
			t.logger.Info("cron trigger shutting down", "schedule", t.spec)
			return
		case <-time.After(wait):
			t.logger.Info("starting scheduled pipeline run", "schedule", t.spec)
			if err := t.fire(); err != nil {
				t.logger.Warn("scheduled run not started", "error", err)
			}
		}
	}
}
