package mrtrix

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsap/goconnectome/tools"
	"github.com/nsap/goconnectome/tools/toolstest"
)

func TestParseVersionBanner(t *testing.T) {
	tests := []struct {
		name    string
		banner  string
		want    string
		wantErr bool
	}{
		{
			name:   "plain banner",
			banner: "== mrinfo 3.0.4 ==\n",
			want:   "3.0.4",
		},
		{
			name: "banner with build details",
			banner: "== mrinfo 3.0.3-51-g52a2540d ==\n" +
				"64 bit release version, built Jan 1 2021\n",
			want: "3.0.3-51-g52a2540d",
		},
		{
			name:   "banner preceded by warnings",
			banner: "mrinfo: [WARNING] something\n== mrinfo 3.0.4 ==\n",
			want:   "3.0.4",
		},
		{
			name:    "garbage",
			banner:  "command not found",
			wantErr: true,
		},
		{
			name:    "empty",
			banner:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersionBanner(tt.banner)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuite_Version(t *testing.T) {
	runner := &toolstest.FakeRunner{
		RunFunc: func(cmd tools.Command) (tools.Output, error) {
			return tools.Output{Stdout: "== mrinfo 3.0.4 ==\n"}, nil
		},
	}
	suite := New(runner)

	version, err := suite.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.0.4", version)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "mrinfo", calls[0].Name)
	assert.Equal(t, []string{"-version"}, calls[0].Args)
}

func TestSuite_Run_GlobalFlags(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{
			name: "default verbosity, no threads",
			opts: nil,
			want: []string{"in.mif", "out.mif"},
		},
		{
			name: "quiet with threads",
			opts: []Option{WithNThreads(4), WithVerbosity(0)},
			want: []string{"in.mif", "out.mif", "-nthreads", "4", "-quiet"},
		},
		{
			name: "debug",
			opts: []Option{WithVerbosity(2)},
			want: []string{"in.mif", "out.mif", "-debug"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &toolstest.FakeRunner{}
			suite := New(runner, tt.opts...)

			_, err := suite.Run(context.Background(), "mrconvert", "in.mif", "out.mif")
			require.NoError(t, err)

			calls := runner.CallsFor("mrconvert")
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].Args)
		})
	}
}

func TestSuite_Run_BinDirAndEnv(t *testing.T) {
	runner := &toolstest.FakeRunner{}
	suite := New(runner,
		WithBinDir("/opt/mrtrix3/bin"),
		WithEnv([]string{"FSLOUTPUTTYPE=NIFTI_GZ"}),
	)

	_, err := suite.Run(context.Background(), "5ttgen", "fsl", "t1.nii.gz", "5tt.mif")
	require.NoError(t, err)

	calls := runner.CallsFor("/opt/mrtrix3/bin/5ttgen")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Env, "FSLOUTPUTTYPE=NIFTI_GZ")
}

func TestSuite_Run_MissingTool(t *testing.T) {
	runner := &toolstest.FakeRunner{
		LookFunc: func(name string, env []string) (string, error) {
			return "", errors.New("not found")
		},
	}
	suite := New(runner)

	_, err := suite.Run(context.Background(), "tckgen", "fod.mif", "tracks.tck")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tckgen")
	assert.Empty(t, runner.CallsFor("tckgen"))
}

func TestDefaultConnectomeLUT(t *testing.T) {
	root := t.TempDir()
	binDir := filepath.Join(root, "bin")
	lutDir := filepath.Join(root, "share", "mrtrix3", "labelconvert")
	require.NoError(t, os.MkdirAll(binDir, 0755))
	require.NoError(t, os.MkdirAll(lutDir, 0755))

	lut := filepath.Join(lutDir, "fs_default.txt")
	require.NoError(t, os.WriteFile(lut, []byte("0 Unknown\n"), 0644))

	got, err := DefaultConnectomeLUT(filepath.Join(binDir, "mrinfo"))
	require.NoError(t, err)
	assert.Equal(t, lut, got)
}

func TestDefaultConnectomeLUT_Missing(t *testing.T) {
	_, err := DefaultConnectomeLUT(filepath.Join(t.TempDir(), "mrinfo"))
	assert.Error(t, err)
}
