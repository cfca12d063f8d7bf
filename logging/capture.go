package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// CaptureHandler is an slog.Handler that records every record it receives.
// Tests hand it to the component under test and assert on what was logged.
type CaptureHandler struct {
	state *captureState
	attrs []slog.Attr
}

type captureState struct {
	mu      sync.Mutex
	entries []Entry
}

// NewCaptureHandler creates an empty CaptureHandler.
func NewCaptureHandler() *CaptureHandler {
	return &CaptureHandler{state: &captureState{}}
}

// Enabled reports true for every level so no record is filtered out.
func (h *CaptureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle records the log entry.
func (h *CaptureHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := Entry{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   make(map[string]any, r.NumAttrs()+len(h.attrs)),
	}
	for _, attr := range h.attrs {
		entry.Attrs[attr.Key] = attr.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.Attrs[a.Key] = a.Value.Resolve().Any()
		return true
	})

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.entries = append(h.state.entries, entry)
	return nil
}

// WithAttrs returns a handler that tags captured entries with the given
// attributes. Entries still land in the same backing store.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &CaptureHandler{state: h.state, attrs: merged}
}

// WithGroup is accepted but groups are flattened into the entry attributes.
func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	return h
}

// Entries returns a copy of the captured entries in arrival order.
func (h *CaptureHandler) Entries() []Entry {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	out := make([]Entry, len(h.state.entries))
	copy(out, h.state.entries)
	return out
}

// Messages returns just the captured messages in arrival order.
func (h *CaptureHandler) Messages() []string {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	out := make([]string, len(h.state.entries))
	for i, e := range h.state.entries {
		out[i] = e.Message
	}
	return out
}
