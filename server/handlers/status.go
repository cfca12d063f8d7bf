package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/nsap/goconnectome/buildinfo"
	"github.com/nsap/goconnectome/server/runner"
)

// NextRunResponse describes the next scheduled run, if any.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// StatusResponse is the consolidated response for GET /api/status.
type StatusResponse struct {
	Version string          `json:"version"`
	Run     runner.Status   `json:"run"`
	Runs    []string        `json:"runs"` // configured run definition names
	NextRun NextRunResponse `json:"next_run"`
}

// StatusHandler handles requests for the consolidated status endpoint.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

// ServeHTTP implements http.Handler.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	names := h.provider.RunNames()
	sort.Strings(names)

	next := h.provider.NextRun()

	writeJSON(w, http.StatusOK, StatusResponse{
		Version: buildinfo.Get().Version,
		Run:     h.provider.Status(),
		Runs:    names,
		NextRun: NextRunResponse{
			Scheduled: next != nil,
			NextRun:   next,
		},
	})
}
