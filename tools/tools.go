// Package tools defines how goconnectome invokes external neuroimaging
// binaries. The FSL, MRtrix and Freesurfer suite wrappers all execute through
// the Runner interface, so a pipeline can run on the local machine or on a
// remote compute node without the stage code knowing the difference.
package tools

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Command describes a single external tool invocation.
type Command struct {
	// Name is the binary name or path.
	Name string
	// Args are the arguments passed to the binary.
	Args []string
	// Env holds extra "KEY=VALUE" entries appended to the base environment.
	// Later entries win, so suite wrappers can override inherited variables.
	Env []string
	// Dir is the working directory. Empty means the runner's default.
	Dir string
}

// Output captures what a completed invocation produced.
type Output struct {
	Stdout string
	Stderr string
}

// Runner executes external tool commands.
type Runner interface {
	// Run executes the command and captures its output. A non-zero exit
	// status is reported as an error carrying the stderr tail.
	Run(ctx context.Context, cmd Command) (Output, error)

	// Look resolves the named tool in the runner's environment, returning
	// its path. The extra env entries participate in PATH resolution.
	Look(name string, env []string) (string, error)
}

// Invocation is the record of one completed tool run, kept for the
// runtime log.
type Invocation struct {
	Tool      string    `json:"tool"`
	Args      []string  `json:"args"`
	StartedAt time.Time `json:"started_at"`
	Duration  float64   `json:"duration_seconds"`
	Error     string    `json:"error,omitempty"`
}

// RecordingRunner wraps a Runner and keeps an Invocation per Run call.
// It is safe for concurrent use.
type RecordingRunner struct {
	inner Runner

	mu          sync.Mutex
	invocations []Invocation
}

// NewRecordingRunner wraps the given runner.
func NewRecordingRunner(inner Runner) *RecordingRunner {
	return &RecordingRunner{inner: inner}
}

// Run executes the command on the wrapped runner and records the invocation.
func (r *RecordingRunner) Run(ctx context.Context, cmd Command) (Output, error) {
	start := time.Now()
	out, err := r.inner.Run(ctx, cmd)

	inv := Invocation{
		Tool:      cmd.Name,
		Args:      cmd.Args,
		StartedAt: start,
		Duration:  time.Since(start).Seconds(),
	}
	if err != nil {
		inv.Error = err.Error()
	}

	r.mu.Lock()
	r.invocations = append(r.invocations, inv)
	r.mu.Unlock()

	return out, err
}

// Look resolves on the wrapped runner. Lookups are not recorded.
func (r *RecordingRunner) Look(name string, env []string) (string, error) {
	return r.inner.Look(name, env)
}

// Invocations returns a copy of the recorded invocations in run order.
func (r *RecordingRunner) Invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Invocation, len(r.invocations))
	copy(out, r.invocations)
	return out
}

// PathFromEnv extracts the PATH value from a "KEY=VALUE" slice, scanning from
// the end so later overrides win. Returns "" if no PATH entry exists.
func PathFromEnv(env []string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], "PATH=") {
			return strings.TrimPrefix(env[i], "PATH=")
		}
	}
	return ""
}
