// Package handlers provides the HTTP handlers for the batch server.
//
// Each handler implements http.Handler and reaches its dependencies through
// small interfaces, so tests can substitute them and the server package does
// not leak into handler code.
package handlers

import (
	"time"

	"github.com/nsap/goconnectome/server/runner"
)

// PipelineRunner can start pipeline runs by name.
type PipelineRunner interface {
	Run(names []string) error
}

// StatusProvider provides the runner status, the configured run names and
// the next scheduled run time (nil when no schedule is configured).
type StatusProvider interface {
	Status() runner.Status
	RunNames() []string
	NextRun() *time.Time
}

// HistoryProvider provides access to completed run records.
type HistoryProvider interface {
	History() []runner.RunRecord
}
