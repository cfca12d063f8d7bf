package runner

import (
	"encoding/json"
	"time"
)

// RunState represents what the runner is currently doing.
type RunState int

const (
	// RunStateIdle indicates no pipeline run is in progress.
	RunStateIdle RunState = iota
	// RunStateRunning indicates a pipeline run is in progress.
	RunStateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *RunState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "running":
		*s = RunStateRunning
	default:
		*s = RunStateIdle
	}
	return nil
}

// Status describes the runner's current state and, when idle, the outcome of
// the last batch.
type Status struct {
	// State is the current state of the runner.
	State RunState `json:"state"`
	// Current is the name of the run definition executing right now.
	Current string `json:"current,omitempty"`
	// StartedAt is when the batch started. Nil if no batch has run.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is when the batch ended. Nil while running or before any run.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Error holds the first error of the last batch. Empty on success.
	Error string `json:"error,omitempty"`
}

// RunRecord is the persisted summary of one completed pipeline run.
type RunRecord struct {
	// ID identifies the record, derived from the start time and run name.
	ID string `json:"id"`
	// Name is the run definition name from the configuration.
	Name string `json:"name"`
	// Variant is the pipeline variant that executed.
	Variant string `json:"variant"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// OutDir is where the run wrote its connectome and JSON logs.
	OutDir string `json:"outdir"`

	// StageDurations maps completed stage names to wall-clock seconds.
	StageDurations map[string]float64 `json:"stage_durations,omitempty"`

	// Error holds the failure, empty when the run completed.
	Error string `json:"error,omitempty"`
}

// CalculateID derives the record ID from the start time and run name.
func (r RunRecord) CalculateID() string {
	return r.StartedAt.UTC().Format("20060102T150405Z") + "-" + r.Name
}

// Failed reports whether the run ended with an error.
func (r RunRecord) Failed() bool {
	return r.Error != ""
}
