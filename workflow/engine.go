package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Engine executes registered stages with dependency ordering.
type Engine struct {
	logger *slog.Logger

	stages  map[string]Stage
	deps    map[string][]string      // stage name -> names it runs after
	order   []string                 // registration order, for deterministic init
	done    map[string]chan struct{} // closed when the stage finishes
	results map[string]*Result

	mu sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.With("component", "workflow")
	}
}

// NewEngine creates an empty engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:  slog.Default().With("component", "workflow"),
		stages:  make(map[string]Stage),
		deps:    make(map[string][]string),
		done:    make(map[string]chan struct{}),
		results: make(map[string]*Result),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Add registers a stage that runs after the named stages. The dependency
// names may refer to stages registered later; they are resolved at Execute.
// Returns an error if a stage with the same name is already registered.
func (e *Engine) Add(stage Stage, after ...string) error {
	name := stage.Name()
	if name == "" {
		return fmt.Errorf("stage has an empty name")
	}
	if _, exists := e.stages[name]; exists {
		return fmt.Errorf("stage %q already registered", name)
	}

	e.stages[name] = stage
	e.deps[name] = append([]string(nil), after...)
	e.order = append(e.order, name)
	e.results[name] = &Result{State: NotStarted}

	e.logger.Debug("stage registered", "stage", name, "after", after)
	return nil
}

// Execute runs all stages. After Execute returns, every stage has a Result:
// stages that never ran because validation or Init failed stay NotStarted,
// stages whose dependency failed (or whose wait was cancelled) are Skipped,
// and everything that ran is Completed with its Execute error recorded.
// The first stage error encountered is returned.
func (e *Engine) Execute(ctx context.Context) error {
	if len(e.stages) == 0 {
		e.logger.Info("no stages to execute")
		return nil
	}

	if err := e.validate(); err != nil {
		e.logger.Error("stage graph validation failed", "error", err)
		return err
	}

	// Init every stage before any executes, in registration order.
	for _, name := range e.order {
		if err := e.stages[name].Init(); err != nil {
			e.logger.Error("stage initialization failed", "stage", name, "error", err)
			return fmt.Errorf("stage %s initialization failed: %w", name, err)
		}
	}

	e.logger.Info("starting execution", "stage_count", len(e.stages))

	for name := range e.stages {
		e.done[name] = make(chan struct{})
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(e.stages))

	for _, name := range e.order {
		wg.Add(1)
		go e.runStage(ctx, name, &wg, errCh)
	}

	go func() {
		wg.Wait()
		close(errCh)
	}()

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		e.logger.Error("execution completed with errors", "error_count", len(errs))
		return errs[0]
	}

	e.logger.Info("execution completed successfully")
	return nil
}

// Results returns a copy of every stage's result keyed by stage name.
func (e *Engine) Results() map[string]*Result {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make(map[string]*Result, len(e.results))
	for name, result := range e.results {
		results[name] = result
	}
	return results
}

// Result returns the result for a single stage, or nil if unknown.
func (e *Engine) Result(name string) *Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.results[name]
}

// runStage waits for the stage's dependencies, then executes it.
func (e *Engine) runStage(ctx context.Context, name string, wg *sync.WaitGroup, errCh chan<- error) {
	defer wg.Done()
	logger := e.logger.With("stage", name)

	e.setResult(name, &Result{State: Pending})

	for _, dep := range e.deps[name] {
		select {
		case <-ctx.Done():
			logger.Warn("stage cancelled", "error", ctx.Err())
			e.setResult(name, &Result{State: Skipped, Err: fmt.Errorf("cancelled: %w", ctx.Err())})
			e.finish(name)
			errCh <- fmt.Errorf("stage %s cancelled: %w", name, ctx.Err())
			return
		case <-e.done[dep]:
			if depResult := e.Result(dep); !depResult.IsSuccess() {
				err := fmt.Errorf("dependency %s failed", dep)
				if depResult.Err != nil {
					err = fmt.Errorf("dependency %s failed: %w", dep, depResult.Err)
				}
				logger.Warn("stage skipped", "dependency", dep)
				e.setResult(name, &Result{State: Skipped, Err: err})
				e.finish(name)
				return
			}
			logger.Debug("dependency satisfied", "dependency", dep)
		}
	}

	logger.Info("stage started")
	start := time.Now()
	e.setResult(name, &Result{State: Running, StartedAt: start})

	err := e.stages[name].Execute(ctx)
	duration := time.Since(start)

	e.setResult(name, &Result{State: Completed, Err: err, StartedAt: start, Duration: duration})
	e.finish(name)

	if err != nil {
		logger.Error("stage failed", "duration", duration, "error", err)
		errCh <- fmt.Errorf("stage %s failed: %w", name, err)
		return
	}
	logger.Info("stage completed", "duration", duration)
}

// finish signals the stage's completion channel.
func (e *Engine) finish(name string) {
	close(e.done[name])
}

// setResult stores a stage result under lock.
func (e *Engine) setResult(name string, r *Result) {
	e.mu.Lock()
	e.results[name] = r
	e.mu.Unlock()
}

// validate checks that every dependency exists and the graph is acyclic
// using Kahn's algorithm.
func (e *Engine) validate() error {
	inDegree := make(map[string]int, len(e.stages))
	for name, deps := range e.deps {
		for _, dep := range deps {
			if _, exists := e.stages[dep]; !exists {
				return fmt.Errorf("stage %s depends on unknown stage %s", name, dep)
			}
		}
		inDegree[name] = len(deps)
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}

	processed := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		processed++

		for name, deps := range e.deps {
			for _, dep := range deps {
				if dep == current {
					inDegree[name]--
					if inDegree[name] == 0 {
						queue = append(queue, name)
					}
				}
			}
		}
	}

	if processed != len(e.stages) {
		return fmt.Errorf("circular dependency detected: only %d of %d stages can be ordered",
			processed, len(e.stages))
	}
	return nil
}
