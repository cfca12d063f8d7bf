package runlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterCreatesLogsDir(t *testing.T) {
	outdir := t.TempDir()
	w := NewWriter(outdir)

	require.NoError(t, w.WriteInputs(map[string]any{"dwi": "/data/dwi.nii.gz"}))

	info, err := os.Stat(filepath.Join(outdir, "logs"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(outdir, "logs"), w.Dir())
}

func TestWriterRoundTrip(t *testing.T) {
	outdir := t.TempDir()
	w := NewWriter(outdir)

	inputs := map[string]any{
		"dwi":     "/data/dwi.nii.gz",
		"mtracks": 10,
		"cutoff":  0.06,
	}
	require.NoError(t, w.WriteInputs(inputs))

	data, err := os.ReadFile(filepath.Join(outdir, "logs", InputsFile))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "/data/dwi.nii.gz", got["dwi"])
	assert.Equal(t, float64(10), got["mtracks"])
	assert.Equal(t, 0.06, got["cutoff"])
}

func TestWriterSortedKeysPrettyPrinted(t *testing.T) {
	outdir := t.TempDir()
	w := NewWriter(outdir)

	require.NoError(t, w.WriteRuntime(map[string]any{
		"timestamp": "2026-01-02T03:04:05Z",
		"hostname":  "node-1",
		"status":    "completed",
	}))

	data, err := os.ReadFile(filepath.Join(outdir, "logs", RuntimeFile))
	require.NoError(t, err)
	text := string(data)

	// Map keys marshal in sorted order.
	assert.Less(t, strings.Index(text, `"hostname"`), strings.Index(text, `"status"`))
	assert.Less(t, strings.Index(text, `"status"`), strings.Index(text, `"timestamp"`))

	// Pretty-printed, one key per line, trailing newline.
	assert.Contains(t, text, "\n  \"hostname\"")
	assert.True(t, strings.HasSuffix(text, "\n"))
}

func TestWriterAllThreeDocuments(t *testing.T) {
	outdir := t.TempDir()
	w := NewWriter(outdir)

	require.NoError(t, w.WriteInputs(map[string]any{"dwi": "a"}))
	require.NoError(t, w.WriteOutputs(map[string]any{"connectome": "b"}))
	require.NoError(t, w.WriteRuntime(map[string]any{"status": "completed"}))

	for _, name := range []string{InputsFile, OutputsFile, RuntimeFile} {
		_, err := os.Stat(filepath.Join(outdir, "logs", name))
		assert.NoError(t, err, name)
	}
}

func TestWriterBadOutdir(t *testing.T) {
	// A file where the outdir should be makes MkdirAll fail.
	base := t.TempDir()
	blocker := filepath.Join(base, "out")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	w := NewWriter(blocker)
	err := w.WriteInputs(map[string]any{"dwi": "a"})
	assert.ErrorContains(t, err, "creating logs directory")
}
