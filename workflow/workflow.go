// Package workflow provides dependency-ordered execution of pipeline stages.
//
// A Stage is a single unit of work, typically one external tool invocation.
// Stages are registered on an Engine together with the names of the stages
// they must run after. The engine executes every stage in its own goroutine,
// gated on the completion of its dependencies, so independent stages run
// concurrently while the dependency order is preserved. A failed stage causes
// every transitively dependent stage to be skipped; the engine records a
// Result for every stage either way.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Stage represents a single step of a pipeline.
//
// Init is called before any stage executes and should validate configuration;
// an Init failure aborts the run before any work starts. Execute performs the
// work and should honor context cancellation.
type Stage interface {
	// Name identifies the stage within one engine. Must be unique.
	Name() string

	// Init validates the stage's configuration.
	Init() error

	// Execute performs the stage's work.
	Execute(ctx context.Context) error
}

// StageState tracks where a stage is in its lifecycle.
type StageState int

const (
	// NotStarted: the stage never progressed past registration.
	NotStarted StageState = iota
	// Pending: the run started and the stage is waiting on dependencies.
	Pending
	// Running: the stage is currently executing.
	Running
	// Completed: Execute returned; check the result error for the outcome.
	Completed
	// Skipped: a dependency failed or the run was cancelled first.
	Skipped
)

// String returns the state name used in logs and JSON.
func (s StageState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s StageState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Result is the outcome of one stage within a run.
type Result struct {
	// State is the stage's final (or current) lifecycle state.
	State StageState

	// Err is the error returned by Execute, or the reason the stage was
	// skipped. Nil on success or before completion.
	Err error

	// StartedAt is when Execute began. Zero if it never ran.
	StartedAt time.Time

	// Duration is how long Execute took. Zero if it never ran.
	Duration time.Duration
}

// IsSuccess reports whether the stage ran and returned no error.
// Skipped stages are not successful even though their Err may be set.
func (r *Result) IsSuccess() bool {
	return r != nil && r.State == Completed && r.Err == nil
}

// Workflow is an executable set of stages with inspectable results.
type Workflow interface {
	// Execute runs the workflow to completion.
	Execute(ctx context.Context) error

	// Results returns a copy of every stage's result keyed by stage name.
	Results() map[string]*Result
}

// Compose creates a workflow that executes the given workflows in sequence.
// Execution continues past a failed workflow; errors are combined.
func Compose(workflows ...Workflow) Workflow {
	return &composite{workflows: workflows}
}

type composite struct {
	workflows []Workflow
}

func (c *composite) Execute(ctx context.Context) error {
	var errs []string
	for i, w := range c.workflows {
		if err := w.Execute(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("workflow %d failed: %v", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d workflow(s) failed:\n  - %s", len(errs), strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *composite) Results() map[string]*Result {
	results := make(map[string]*Result)
	for _, w := range c.workflows {
		for name, result := range w.Results() {
			results[name] = result
		}
	}
	return results
}
