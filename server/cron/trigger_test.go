package cron

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewTriggerInvalidSpec(t *testing.T) {
	_, err := NewTrigger("not a cron", func() error { return nil }, testLogger())
	assert.ErrorIs(t, err, ErrInvalidCronSpec)
}

func TestTriggerNextRun(t *testing.T) {
	trigger, err := NewTrigger("0 2 * * *", func() error { return nil }, testLogger())
	require.NoError(t, err)

	next := trigger.NextRun()
	assert.True(t, next.After(time.Now()))
	assert.Equal(t, 2, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

// fakeRunnable records the run names it was started with.
type fakeRunnable struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeRunnable) Run(names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, names)
	return f.err
}

func (f *fakeRunnable) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestManagerUnknownRun(t *testing.T) {
	_, err := NewManager("sub-99:0 2 * * *", &fakeRunnable{}, testLogger(), available)
	assert.ErrorContains(t, err, "unknown run")
}

func TestManagerNextRunEarliest(t *testing.T) {
	mgr, err := NewManager("sub-01:0 2 * * *;sub-02:0 4 * * *", &fakeRunnable{}, testLogger(), available)
	require.NoError(t, err)

	next := mgr.NextRun()
	assert.False(t, next.IsZero())
	// The earliest of the two schedules.
	assert.Contains(t, []int{2, 4}, next.Hour())
}

func TestManagerEmpty(t *testing.T) {
	mgr := &Manager{logger: testLogger()}
	assert.True(t, mgr.NextRun().IsZero())
}

func TestManagerTriggerRunsNamedRuns(t *testing.T) {
	runnable := &fakeRunnable{}
	mgr, err := NewManager("sub-01,sub-02:0 2 * * *", runnable, testLogger(), available)
	require.NoError(t, err)
	require.Len(t, mgr.triggers, 1)

	// Fire the trigger callback directly; the schedule wait is the cron
	// library's concern.
	require.NoError(t, mgr.triggers[0].fire())
	require.Equal(t, 1, runnable.count())
	assert.Equal(t, []string{"sub-01", "sub-02"}, runnable.calls[0])
}
