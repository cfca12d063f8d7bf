package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsap/goconnectome/config"
	"github.com/nsap/goconnectome/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Server.Runs = map[string]config.RunConfig{
		"sub-01": {
			Variant: "preregistered",
			DWI:     "/data/sub-01/dwi.nii.gz",
			OutDir:  "/data/sub-01/out",
			TempDir: "/data/sub-01/tmp",
		},
		"sub-02": {
			Variant:   "freesurfer",
			DWI:       "/data/sub-02/dwi.nii.gz",
			FSDir:     "/subjects",
			SubjectID: "sub-02",
			OutDir:    "/data/sub-02/out",
			TempDir:   "/data/sub-02/tmp",
		},
	}
	return cfg
}

// fakeExecute records executed runs and waits for completion signals.
type fakeExecute struct {
	mu     sync.Mutex
	params []pipeline.Params
	err    error
	block  chan struct{} // when non-nil, execution waits until closed
	done   chan string   // receives the run's outdir per execution
}

func (f *fakeExecute) fn(ctx context.Context, cfg config.Config, p pipeline.Params, logger *slog.Logger, opts ...pipeline.RunOption) (pipeline.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.params = append(f.params, p)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- p.OutDir
	}
	return pipeline.Result{StageDurations: map[string]float64{"tracks": 1.5}}, f.err
}

func (f *fakeExecute) executed() []pipeline.Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pipeline.Params, len(f.params))
	copy(out, f.params)
	return out
}

// waitIdle polls until the runner leaves the running state.
func waitIdle(t *testing.T, r *Runner) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for r.IsRunning() {
		select {
		case <-deadline:
			t.Fatal("runner did not become idle")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunnerUnknownRun(t *testing.T) {
	r := New(testLogger(), testConfig())

	err := r.Run([]string{"sub-99"})
	assert.ErrorIs(t, err, ErrUnknownRun)
	assert.ErrorContains(t, err, "sub-99")
}

func TestRunnerEmptyBatch(t *testing.T) {
	r := New(testLogger(), testConfig())
	assert.Error(t, r.Run(nil))
}

func TestRunnerExecutesBatchInOrder(t *testing.T) {
	fake := &fakeExecute{done: make(chan string, 2)}
	r := New(testLogger(), testConfig(), WithExecuteFunc(fake.fn))

	require.NoError(t, r.Run([]string{"sub-01", "sub-02"}))

	assert.Equal(t, "/data/sub-01/out", <-fake.done)
	assert.Equal(t, "/data/sub-02/out", <-fake.done)
	waitIdle(t, r)

	executed := fake.executed()
	require.Len(t, executed, 2)
	assert.Equal(t, pipeline.PreRegistered, executed[0].Variant)
	assert.Equal(t, pipeline.Freesurfer, executed[1].Variant)
	assert.Equal(t, "sub-02", executed[1].SubjectID)

	history := r.History()
	require.Len(t, history, 2)
	// Most recent first.
	assert.Equal(t, "sub-02", history[0].Name)
	assert.Equal(t, "sub-01", history[1].Name)
	assert.False(t, history[0].Failed())
	assert.Equal(t, map[string]float64{"tracks": 1.5}, history[0].StageDurations)

	status := r.Status()
	assert.Equal(t, RunStateIdle, status.State)
	assert.Empty(t, status.Error)
	require.NotNil(t, status.EndedAt)
}

func TestRunnerRejectsOverlap(t *testing.T) {
	fake := &fakeExecute{block: make(chan struct{}), done: make(chan string, 1)}
	r := New(testLogger(), testConfig(), WithExecuteFunc(fake.fn))

	require.NoError(t, r.Run([]string{"sub-01"}))
	assert.True(t, r.IsRunning())
	assert.Equal(t, "sub-01", r.Status().Current)

	err := r.Run([]string{"sub-02"})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(fake.block)
	<-fake.done
	waitIdle(t, r)

	// Idle again, a new batch is accepted.
	fake.block = nil
	require.NoError(t, r.Run([]string{"sub-02"}))
	<-fake.done
	waitIdle(t, r)
}

func TestRunnerFailureContinuesBatch(t *testing.T) {
	fake := &fakeExecute{err: errors.New("tckgen exploded"), done: make(chan string, 2)}
	r := New(testLogger(), testConfig(), WithExecuteFunc(fake.fn))

	require.NoError(t, r.Run([]string{"sub-01", "sub-02"}))
	<-fake.done
	<-fake.done
	waitIdle(t, r)

	// Both ran despite the first failing.
	assert.Len(t, fake.executed(), 2)

	history := r.History()
	require.Len(t, history, 2)
	assert.True(t, history[0].Failed())
	assert.Contains(t, history[0].Error, "tckgen exploded")

	status := r.Status()
	assert.Contains(t, status.Error, `run "sub-01"`)
}

func TestRunnerRunNames(t *testing.T) {
	r := New(testLogger(), testConfig())
	assert.ElementsMatch(t, []string{"sub-01", "sub-02"}, r.RunNames())
}
