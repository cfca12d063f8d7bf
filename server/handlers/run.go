package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nsap/goconnectome/server/runner"
)

// RunRequest is the body of a request to start pipeline runs.
type RunRequest struct {
	Runs []string `json:"runs"`
}

// RunHandler handles requests to start pipeline runs.
type RunHandler struct {
	runner PipelineRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(runner PipelineRunner) *RunHandler {
	return &RunHandler{runner: runner}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON in request body"})
		return
	}

	if len(req.Runs) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "runs array cannot be empty"})
		return
	}

	seen := make(map[string]bool, len(req.Runs))
	for _, name := range req.Runs {
		if seen[name] {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "duplicate run name: " + name})
			return
		}
		seen[name] = true
	}

	if err := h.runner.Run(req.Runs); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, runner.ErrRunInProgress) {
			status = http.StatusConflict
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
