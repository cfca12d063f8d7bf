package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics holds the instruments describing pipeline runs. Both the CLI
// (push) and the batch server (scrape) report through the same set.
type RunMetrics struct {
	runDuration   GaugeVec
	runSuccess    GaugeVec
	stageDuration GaugeVec
	runsTotal     CounterVec
}

// NewRunMetrics registers the run instruments on the given registry.
func NewRunMetrics(reg Registry) (*RunMetrics, error) {
	runDuration, err := reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "run_duration_seconds",
		Help: "Wall-clock duration of the last pipeline run.",
	}, []string{"variant"})
	if err != nil {
		return nil, fmt.Errorf("creating run duration metric: %w", err)
	}

	runSuccess, err := reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "run_success",
		Help: "1 if the last pipeline run completed, 0 if it failed.",
	}, []string{"variant"})
	if err != nil {
		return nil, fmt.Errorf("creating run success metric: %w", err)
	}

	stageDuration, err := reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stage_duration_seconds",
		Help: "Duration of each pipeline stage in the last run.",
	}, []string{"variant", "stage"})
	if err != nil {
		return nil, fmt.Errorf("creating stage duration metric: %w", err)
	}

	runsTotal, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "runs_total",
		Help: "Pipeline runs by variant and outcome.",
	}, []string{"variant", "status"})
	if err != nil {
		return nil, fmt.Errorf("creating runs total metric: %w", err)
	}

	return &RunMetrics{
		runDuration:   runDuration,
		runSuccess:    runSuccess,
		stageDuration: stageDuration,
		runsTotal:     runsTotal,
	}, nil
}

// ObserveRun records the outcome of one pipeline run.
func (m *RunMetrics) ObserveRun(variant string, success bool, durationSeconds float64, stageDurations map[string]float64) {
	m.runDuration.With(prometheus.Labels{"variant": variant}).Set(durationSeconds)

	successValue := 0.0
	status := "failed"
	if success {
		successValue = 1.0
		status = "completed"
	}
	m.runSuccess.With(prometheus.Labels{"variant": variant}).Set(successValue)
	m.runsTotal.With(prometheus.Labels{"variant": variant, "status": status}).Inc()

	for stage, seconds := range stageDurations {
		m.stageDuration.With(prometheus.Labels{"variant": variant, "stage": stage}).Set(seconds)
	}
}
