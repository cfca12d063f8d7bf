// Package runner executes named pipeline runs for the batch server.
//
// The runner starts runs in the background, refuses overlapping batches,
// tracks the current status and persists a record per completed run. Run
// definitions come from the server configuration; a batch executes the named
// definitions sequentially since they compete for the same compute resources.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nsap/goconnectome/config"
	"github.com/nsap/goconnectome/metrics"
	"github.com/nsap/goconnectome/pipeline"
)

// ErrRunInProgress is returned when starting a batch while one is running.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// ErrUnknownRun is returned when a requested run name has no definition.
var ErrUnknownRun = errors.New("unknown run")

// ExecuteFunc executes one pipeline run. It matches pipeline.Run and exists
// so tests can substitute the execution.
type ExecuteFunc func(ctx context.Context, cfg config.Config, p pipeline.Params, logger *slog.Logger, opts ...pipeline.RunOption) (pipeline.Result, error)

// Runner manages pipeline run execution.
type Runner struct {
	logger  *slog.Logger
	cfg     config.Config
	store   Store
	execute ExecuteFunc
	metrics *metrics.RunMetrics

	mu     sync.Mutex
	status Status
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore persists completed runs to the given store.
func WithStore(store Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithExecuteFunc overrides how a run executes.
func WithExecuteFunc(execute ExecuteFunc) Option {
	return func(r *Runner) {
		r.execute = execute
	}
}

// WithRunMetrics reports run outcomes on the given instruments.
func WithRunMetrics(m *metrics.RunMetrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// New creates a Runner over the given configuration.
func New(logger *slog.Logger, cfg config.Config, opts ...Option) *Runner {
	r := &Runner{
		logger:  logger,
		cfg:     cfg,
		store:   NewMemoryStore(),
		execute: pipeline.Run,
		status:  Status{State: RunStateIdle},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the named run definitions in the background, in order. Returns
// ErrUnknownRun if a name has no definition and ErrRunInProgress if a batch
// is already executing.
func (r *Runner) Run(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("no runs named")
	}
	for _, name := range names {
		if _, ok := r.cfg.Server.Runs[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownRun, name)
		}
	}

	if !r.tryStart(names[0]) {
		return ErrRunInProgress
	}

	r.logger.Info("starting pipeline batch", "runs", names)

	go func() {
		err := r.executeBatch(context.Background(), names)
		r.finish(err)
	}()

	return nil
}

// Status returns the runner's current status.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// IsRunning returns true if a batch is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.State == RunStateRunning
}

// History returns completed run records, most recent first.
func (r *Runner) History() []RunRecord {
	return r.store.Runs()
}

// RunNames returns the configured run definition names.
func (r *Runner) RunNames() []string {
	names := make([]string, 0, len(r.cfg.Server.Runs))
	for name := range r.cfg.Server.Runs {
		names = append(names, name)
	}
	return names
}

// tryStart attempts the idle to running transition.
func (r *Runner) tryStart(current string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.State == RunStateRunning {
		return false
	}

	now := time.Now()
	r.status = Status{
		State:     RunStateRunning,
		Current:   current,
		StartedAt: &now,
	}
	return true
}

// finish transitions back to idle and records the batch outcome.
func (r *Runner) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.status.State = RunStateIdle
	r.status.Current = ""
	r.status.EndedAt = &now

	if err != nil {
		r.status.Error = err.Error()
		r.logger.Error("pipeline batch failed", "error", err)
	} else {
		r.status.Error = ""
		r.logger.Info("pipeline batch completed")
	}
}

// executeBatch runs the named definitions sequentially, persisting a record
// per run. A failing run does not stop the rest of the batch; the first
// error is reported as the batch outcome.
func (r *Runner) executeBatch(ctx context.Context, names []string) error {
	var firstErr error
	for _, name := range names {
		r.setCurrent(name)

		record, err := r.executeOne(ctx, name)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("run %q: %w", name, err)
		}
		if saveErr := r.store.Save(record); saveErr != nil {
			r.logger.Error("saving run record failed", "run", name, "error", saveErr)
		}
	}
	return firstErr
}

// executeOne executes a single named run definition.
func (r *Runner) executeOne(ctx context.Context, name string) (RunRecord, error) {
	rc := r.cfg.Server.Runs[name]
	p := paramsFromRunConfig(rc)
	logger := r.logger.With("run", name)

	var opts []pipeline.RunOption
	if r.metrics != nil {
		opts = append(opts, pipeline.WithRunMetrics(r.metrics))
	}

	started := time.Now()
	result, err := r.execute(ctx, r.cfg, p, logger, opts...)

	record := RunRecord{
		Name:           name,
		Variant:        rc.Variant,
		StartedAt:      started,
		EndedAt:        time.Now(),
		OutDir:         rc.OutDir,
		StageDurations: result.StageDurations,
	}
	record.ID = record.CalculateID()
	if err != nil {
		record.Error = err.Error()
	}
	return record, err
}

// setCurrent updates the name shown by Status during a batch.
func (r *Runner) setCurrent(name string) {
	r.mu.Lock()
	r.status.Current = name
	r.mu.Unlock()
}

// paramsFromRunConfig maps a run definition onto pipeline parameters.
// Defaults for the unset tractography fields are applied by the pipeline.
func paramsFromRunConfig(rc config.RunConfig) pipeline.Params {
	return pipeline.Params{
		Variant:        pipeline.Variant(rc.Variant),
		T1Brain:        rc.T1Brain,
		DWI:            rc.DWI,
		BVals:          rc.BVals,
		BVecs:          rc.BVecs,
		NodifBrainMask: rc.NodifBrainMask,
		Parc:           rc.Parc,
		ParcLUT:        rc.ParcLUT,
		ConnectomeLUT:  rc.ConnectomeLUT,
		FSDir:          rc.FSDir,
		SubjectID:      rc.SubjectID,
		OutDir:         rc.OutDir,
		TempDir:        rc.TempDir,
	}
}
