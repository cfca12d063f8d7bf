package localrunner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeTool(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), mode))
	return path
}

func TestLook_EnvPathOverride(t *testing.T) {
	dir := t.TempDir()
	want := writeFakeTool(t, dir, "tckgen", 0755)

	r := New()
	got, err := r.Look("tckgen", []string{"FSLOUTPUTTYPE=NIFTI_GZ", "PATH=" + dir})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLook_NotFound(t *testing.T) {
	r := New()
	_, err := r.Look("definitely-not-a-real-tool", []string{"PATH=" + t.TempDir()})
	assert.Error(t, err)
}

func TestLook_NotExecutable(t *testing.T) {
	dir := t.TempDir()
	writeFakeTool(t, dir, "flirt", 0644)

	r := New()
	_, err := r.Look("flirt", []string{"PATH=" + dir})
	assert.Error(t, err)
}

func TestLook_AbsolutePath(t *testing.T) {
	dir := t.TempDir()
	want := writeFakeTool(t, dir, "mrconvert", 0755)

	r := New()
	got, err := r.Look(want, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLook_AbsolutePathToDirectory(t *testing.T) {
	r := New()
	_, err := r.Look(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("  short \n"))

	long := make([]byte, stderrTailBytes*2)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, tail(string(long)), stderrTailBytes)
}
