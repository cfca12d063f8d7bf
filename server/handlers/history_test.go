package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsap/goconnectome/server/runner"
)

type mockHistoryProvider struct {
	records []runner.RunRecord
}

func (m *mockHistoryProvider) History() []runner.RunRecord {
	return m.records
}

func TestHistoryHandler_Empty(t *testing.T) {
	handler := NewHistoryHandler(&mockHistoryProvider{})

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, "null", w.Body.String())
}

func TestHistoryHandler_ReturnsRecords(t *testing.T) {
	started := time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)
	record := runner.RunRecord{
		Name:      "sub-01",
		Variant:   "preregistered",
		StartedAt: started,
		EndedAt:   started.Add(4 * time.Hour),
		OutDir:    "/data/sub-01/out",
	}
	record.ID = record.CalculateID()

	handler := NewHistoryHandler(&mockHistoryProvider{records: []runner.RunRecord{record}})

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var got []runner.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "20250301T020000Z-sub-01", got[0].ID)
	assert.Equal(t, "sub-01", got[0].Name)
}
