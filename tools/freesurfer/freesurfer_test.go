package freesurfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsap/goconnectome/tools"
	"github.com/nsap/goconnectome/tools/toolstest"
)

func TestSuite_Run_Env(t *testing.T) {
	runner := &toolstest.FakeRunner{}
	suite := New("/opt/freesurfer", "/data/fs-subjects", runner)

	_, err := suite.Run(context.Background(), "bbregister",
		"--s", "sub-01", "--mov", "nodif.nii.gz", "--reg", "register.dat", "--dti", "--init-fsl")
	require.NoError(t, err)

	calls := runner.CallsFor("bbregister")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Env, "FREESURFER_HOME=/opt/freesurfer")
	assert.Contains(t, calls[0].Env, "SUBJECTS_DIR=/data/fs-subjects")

	path := tools.PathFromEnv(calls[0].Env)
	assert.Contains(t, path, filepath.Join("/opt/freesurfer", "bin"))
}

func TestSuite_SubjectVolume(t *testing.T) {
	suite := New("/opt/freesurfer", "/data/fs-subjects", &toolstest.FakeRunner{})

	got := suite.SubjectVolume("sub-01", "aparc+aseg.mgz")
	assert.Equal(t, filepath.Join("/data/fs-subjects", "sub-01", "mri", "aparc+aseg.mgz"), got)
}

func TestHome(t *testing.T) {
	got, err := Home("/opt/freesurfer")
	require.NoError(t, err)
	assert.Equal(t, "/opt/freesurfer", got)

	t.Setenv("FREESURFER_HOME", "/usr/local/freesurfer")
	got, err = Home("")
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/freesurfer", got)

	t.Setenv("FREESURFER_HOME", "")
	_, err = Home("")
	assert.Error(t, err)
}

func TestDefaultColorLUT(t *testing.T) {
	home := t.TempDir()
	lut := filepath.Join(home, ColorLUTName)
	require.NoError(t, os.WriteFile(lut, []byte("0 Unknown 0 0 0 0\n"), 0644))

	got, err := DefaultColorLUT(home)
	require.NoError(t, err)
	assert.Equal(t, lut, got)
}

func TestDefaultColorLUT_Missing(t *testing.T) {
	_, err := DefaultColorLUT(t.TempDir())
	assert.Error(t, err)
}
