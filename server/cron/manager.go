package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Runnable is implemented by anything the scheduler can start.
type Runnable interface {
	Run(names []string) error
}

// Manager owns one Trigger per entry of a multi-trigger specification.
type Manager struct {
	triggers []*Trigger
	logger   *slog.Logger
}

// NewManager builds triggers from a multi-trigger specification.
// The spec format is: run1,run2:cron_expression;run3:cron_expression2
//
// Example:
//
//	"sub-01,sub-02:0 2 * * *;sub-03:0 4 * * *"
func NewManager(spec string, runnable Runnable, logger *slog.Logger, availableRuns map[string]bool) (*Manager, error) {
	triggerSpecs, err := ParseTriggerSpecs(spec, availableRuns)
	if err != nil {
		return nil, err
	}

	triggers := make([]*Trigger, 0, len(triggerSpecs))
	for _, ts := range triggerSpecs {
		runs := ts.Runs // capture per trigger
		trigger, err := NewTrigger(ts.CronSpec, func() error {
			return runnable.Run(runs)
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating trigger for %q: %w",
				strings.Join(ts.Runs, ",")+":"+ts.CronSpec, err)
		}
		triggers = append(triggers, trigger)

		logger.Info("trigger registered",
			"runs", ts.Runs,
			"schedule", ts.CronSpec,
			"next_run", trigger.NextRun(),
		)
	}

	return &Manager{triggers: triggers, logger: logger}, nil
}

// Start launches all triggers. Each runs in its own goroutine until ctx is
// cancelled.
func (m *Manager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// NextRun returns the earliest scheduled fire time across all triggers, or
// the zero time when no triggers exist.
func (m *Manager) NextRun() time.Time {
	if len(m.triggers) == 0 {
		return time.Time{}
	}

	earliest := m.triggers[0].NextRun()
	for _, trigger := range m.triggers[1:] {
		if next := trigger.NextRun(); next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}
