package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsap/goconnectome/tools"
	"github.com/nsap/goconnectome/tools/freesurfer"
	"github.com/nsap/goconnectome/tools/fsl"
	"github.com/nsap/goconnectome/tools/mrtrix"
	"github.com/nsap/goconnectome/tools/toolstest"
)

const fakeFSLEnv = "FSLDIR=/usr/share/fsl/5.0\nFSLOUTPUTTYPE=NIFTI_GZ\nPATH=/usr/share/fsl/5.0/bin:/usr/bin\n"

// newFakeRunner answers the suite probes (environment sourcing, version
// files, version banners) and succeeds on everything else.
func newFakeRunner() *toolstest.FakeRunner {
	fake := &toolstest.FakeRunner{}
	fake.RunFunc = func(cmd tools.Command) (tools.Output, error) {
		if cmd.Name == "sh" && len(cmd.Args) == 2 {
			switch {
			case strings.HasSuffix(cmd.Args[1], "; env"):
				return tools.Output{Stdout: fakeFSLEnv}, nil
			case strings.Contains(cmd.Args[1], "fslversion"):
				return tools.Output{Stdout: "5.0.11\n"}, nil
			}
		}
		if len(cmd.Args) == 1 && cmd.Args[0] == "-version" {
			return tools.Output{Stdout: "== mrinfo 3.0.4 ==\n"}, nil
		}
		return tools.Output{}, nil
	}
	return fake
}

func newTestSuites(fake *toolstest.FakeRunner) Suites {
	return Suites{
		FSL:        fsl.New("/etc/fsl/5.0/fsl.sh", fake),
		MRtrix:     mrtrix.New(fake, mrtrix.WithNThreads(1)),
		Freesurfer: freesurfer.New("/opt/freesurfer", "/subjects", fake),
	}
}

// singleCall asserts the tool ran exactly once and returns its argv.
func singleCall(t *testing.T, fake *toolstest.FakeRunner, tool string) []string {
	t.Helper()
	calls := fake.CallsFor(tool)
	require.Len(t, calls, 1, "calls for %s", tool)
	return calls[0].Args
}

func TestPreRegisteredStageCommands(t *testing.T) {
	p := writeInputFiles(t)
	out := PlanOutputs(p, ".nii.gz")
	fake := newFakeRunner()

	engine, err := Build(p, out, newTestSuites(fake))
	require.NoError(t, err)
	require.NoError(t, engine.Execute(context.Background()))

	assert.Equal(t, []string{
		p.DWI, out.DWIMif, "-fslgrad", p.BVecs, p.BVals, "-nthreads", "1",
	}, singleCall(t, fake, "mrconvert"))

	assert.Equal(t, []string{
		"fsl", p.T1Brain, out.FiveTissue, "-premasked", "-nthreads", "1",
	}, singleCall(t, fake, "5ttgen"))

	assert.Equal(t, []string{
		"tournier", out.DWIMif, out.Response, "-mask", p.NodifBrainMask, "-nthreads", "1",
	}, singleCall(t, fake, "dwi2response"))

	assert.Equal(t, []string{
		"csd", out.DWIMif, out.Response, out.FOD, "-mask", p.NodifBrainMask, "-nthreads", "1",
	}, singleCall(t, fake, "dwi2fod"))

	assert.Equal(t, []string{
		out.FOD, out.Tracks,
		"-act", out.FiveTissue,
		"-seed_dynamic", out.FOD,
		"-maxlength", "250",
		"-cutoff", "0.06",
		"-select", "10000000",
		"-nthreads", "1",
	}, singleCall(t, fake, "tckgen"))

	assert.Equal(t, []string{
		out.Tracks, out.FOD, out.SIFTTracks,
		"-act", out.FiveTissue,
		"-term_number", "2000000",
		"-nthreads", "1",
	}, singleCall(t, fake, "tcksift"))

	assert.Equal(t, []string{
		p.Parc, p.ParcLUT, p.ConnectomeLUT, out.Nodes, "-nthreads", "1",
	}, singleCall(t, fake, "labelconvert"))

	assert.Equal(t, []string{
		out.SIFTTracks, out.Nodes, out.Connectome, "-zero_diagonal", "-nthreads", "1",
	}, singleCall(t, fake, "tck2connectome"))
}

func TestFreesurferStageCommands(t *testing.T) {
	p := writeInputFiles(t)
	p.Variant = Freesurfer
	p.Parc = ""
	p.FSDir = "/subjects"
	p.SubjectID = "sub-01"
	out := PlanOutputs(p, ".nii.gz")
	fake := newFakeRunner()

	engine, err := Build(p, out, newTestSuites(fake))
	require.NoError(t, err)
	require.NoError(t, engine.Execute(context.Background()))

	// fslroi gets the base name; FSL appends the configured extension.
	assert.Equal(t, []string{
		p.DWI, strings.TrimSuffix(out.Nodif, ".nii.gz"), "0", "1",
	}, singleCall(t, fake, "fslroi"))

	assert.Equal(t, []string{
		"--s", "sub-01",
		"--mov", out.Nodif,
		"--reg", out.Registration,
		"--dti",
		"--init-fsl",
	}, singleCall(t, fake, "bbregister"))

	assert.Equal(t, []string{
		"--mov", out.Nodif,
		"--targ", "/subjects/sub-01/mri/aparc+aseg.mgz",
		"--inv",
		"--interp", "nearest",
		"--o", out.ParcInDWI,
		"--reg", out.Registration,
		"--no-save-reg",
	}, singleCall(t, fake, "mri_vol2vol"))

	// The segmentation and the node image both come from the resampled
	// parcellation.
	assert.Equal(t, []string{
		"freesurfer", out.ParcInDWI, out.FiveTissue, "-nthreads", "1",
	}, singleCall(t, fake, "5ttgen"))

	assert.Equal(t, []string{
		out.ParcInDWI, p.ParcLUT, p.ConnectomeLUT, out.Nodes, "-nthreads", "1",
	}, singleCall(t, fake, "labelconvert"))
}

func TestBuildMissingSuites(t *testing.T) {
	p := writeInputFiles(t)
	out := PlanOutputs(p, ".nii.gz")

	_, err := Build(p, out, Suites{})
	assert.ErrorContains(t, err, "MRtrix suite")

	p.Variant = Freesurfer
	fake := newFakeRunner()
	_, err = Build(p, out, Suites{MRtrix: mrtrix.New(fake)})
	assert.ErrorContains(t, err, "freesurfer variant needs")
}

func TestStageFailureSkipsDownstream(t *testing.T) {
	p := writeInputFiles(t)
	out := PlanOutputs(p, ".nii.gz")
	fake := newFakeRunner()

	inner := fake.RunFunc
	fake.RunFunc = func(cmd tools.Command) (tools.Output, error) {
		if cmd.Name == "dwi2response" {
			return tools.Output{}, assert.AnError
		}
		return inner(cmd)
	}

	engine, err := Build(p, out, newTestSuites(fake))
	require.NoError(t, err)

	err = engine.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "response")

	// Everything downstream of the response function never ran.
	assert.Empty(t, fake.CallsFor("dwi2fod"))
	assert.Empty(t, fake.CallsFor("tckgen"))
	assert.Empty(t, fake.CallsFor("tcksift"))
	assert.Empty(t, fake.CallsFor("tck2connectome"))

	// Independent branches still completed.
	assert.Len(t, fake.CallsFor("5ttgen"), 1)
	assert.Len(t, fake.CallsFor("labelconvert"), 1)
}

func TestTrimImageExt(t *testing.T) {
	assert.Equal(t, "/tmp/nodif", trimImageExt("/tmp/nodif.nii.gz"))
	assert.Equal(t, "/tmp/nodif", trimImageExt("/tmp/nodif.nii"))
	assert.Equal(t, "/tmp/nodif", trimImageExt("/tmp/nodif"))
}
