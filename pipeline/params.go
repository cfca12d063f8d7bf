// Package pipeline builds and executes the connectome computation as an
// ordered set of external tool invocations (FSL, MRtrix, Freesurfer) driven
// through the workflow engine. Two variants exist: the pre-registered variant
// assumes the parcellation is already aligned with the diffusion data, the
// freesurfer variant registers it first from a Freesurfer reconstruction.
package pipeline

import (
	"fmt"
	"os"

	"github.com/nsap/goconnectome/config"
)

// Variant selects which stage sequence a run executes.
type Variant string

const (
	// PreRegistered assumes the parcellation is already in DWI space.
	PreRegistered Variant = "preregistered"
	// Freesurfer registers the subject's parcellation into DWI space first.
	Freesurfer Variant = "freesurfer"
)

// streamlinesPerMillion converts the CLI's millions-of-tracks flags into the
// counts MRtrix expects.
const streamlinesPerMillion = 1_000_000

// Params is the fully resolved input set of one pipeline run. It is what
// inputs.json records.
type Params struct {
	Variant Variant

	// Input images and gradient tables.
	T1Brain        string // brain-extracted T1, pre-registered variant
	DWI            string
	BVals          string
	BVecs          string
	NodifBrainMask string

	// Parcellation. Parc is required by the pre-registered variant; the
	// freesurfer variant takes it from the reconstruction instead.
	Parc          string
	ParcLUT       string
	ConnectomeLUT string

	// Freesurfer reconstruction, freesurfer variant only.
	FSDir     string
	SubjectID string

	// Output locations.
	OutDir  string
	TempDir string

	// Tractography parameters.
	MTracks     int // millions of streamlines generated by tckgen
	SIFTMTracks int // millions of streamlines kept by tcksift
	MaxLength   int // mm
	Cutoff      float64
	NThreads    int

	// Tool environment.
	FSLInit string
	Verbose int // 0, 1 or 2
}

// ApplyDefaults fills unset fields from the configuration.
func (p *Params) ApplyDefaults(cfg config.Config) {
	if p.FSLInit == "" {
		p.FSLInit = cfg.Tools.FSLInit
	}
	if p.MTracks == 0 {
		p.MTracks = cfg.Tractography.MTracks
	}
	if p.SIFTMTracks == 0 {
		p.SIFTMTracks = cfg.Tractography.SIFTMTracks
	}
	if p.MaxLength == 0 {
		p.MaxLength = cfg.Tractography.MaxLength
	}
	if p.Cutoff == 0 {
		p.Cutoff = cfg.Tractography.Cutoff
	}
	if p.NThreads == 0 {
		p.NThreads = cfg.Tractography.NThreads
	}
}

// Validate rejects the parameter set before any tool runs: required paths
// must name existing files, counts must be positive and verbosity must be
// one of 0, 1, 2. The LUT fields are checked only when set, since their
// defaults are resolved later against the installed suites.
func (p *Params) Validate() error {
	switch p.Variant {
	case PreRegistered:
		for _, f := range []struct{ flag, path string }{
			{"t1-brain", p.T1Brain},
			{"dwi", p.DWI},
			{"bvals", p.BVals},
			{"bvecs", p.BVecs},
			{"nodif-brain-mask", p.NodifBrainMask},
			{"parc", p.Parc},
		} {
			if err := requireFile(f.flag, f.path); err != nil {
				return err
			}
		}
	case Freesurfer:
		for _, f := range []struct{ flag, path string }{
			{"t1-brain", p.T1Brain},
			{"dwi", p.DWI},
			{"bvals", p.BVals},
			{"bvecs", p.BVecs},
			{"nodif-brain-mask", p.NodifBrainMask},
		} {
			if err := requireFile(f.flag, f.path); err != nil {
				return err
			}
		}
		if err := requireDir("fsdir", p.FSDir); err != nil {
			return err
		}
		if p.SubjectID == "" {
			return fmt.Errorf("subjectid is required")
		}
	default:
		return fmt.Errorf("unknown pipeline variant %q", p.Variant)
	}

	if err := requireFileIfSet("parc-lut", p.ParcLUT); err != nil {
		return err
	}
	if err := requireFileIfSet("connectome-lut", p.ConnectomeLUT); err != nil {
		return err
	}

	if p.OutDir == "" {
		return fmt.Errorf("outdir is required")
	}
	if p.TempDir == "" {
		return fmt.Errorf("tempdir is required")
	}
	if p.MTracks < 1 {
		return fmt.Errorf("mtracks must be at least 1")
	}
	if p.SIFTMTracks < 1 {
		return fmt.Errorf("sift-mtracks must be at least 1")
	}
	if p.SIFTMTracks > p.MTracks {
		return fmt.Errorf("sift-mtracks (%d) cannot exceed mtracks (%d)", p.SIFTMTracks, p.MTracks)
	}
	if p.MaxLength <= 0 {
		return fmt.Errorf("maxlength must be positive")
	}
	if p.Cutoff <= 0 {
		return fmt.Errorf("cutoff must be positive")
	}
	if p.NThreads < 1 {
		return fmt.Errorf("nthreads must be at least 1")
	}
	if p.Verbose < 0 || p.Verbose > 2 {
		return fmt.Errorf("verbose must be 0, 1 or 2, got %d", p.Verbose)
	}
	return nil
}

// SelectCount is the tckgen -select value.
func (p *Params) SelectCount() int {
	return p.MTracks * streamlinesPerMillion
}

// TermNumber is the tcksift -term_number value.
func (p *Params) TermNumber() int {
	return p.SIFTMTracks * streamlinesPerMillion
}

// LogFields renders the parameter set for inputs.json.
func (p *Params) LogFields() map[string]any {
	fields := map[string]any{
		"variant":          string(p.Variant),
		"t1_brain":         p.T1Brain,
		"dwi":              p.DWI,
		"bvals":            p.BVals,
		"bvecs":            p.BVecs,
		"nodif_brain_mask": p.NodifBrainMask,
		"parc_lut":         p.ParcLUT,
		"connectome_lut":   p.ConnectomeLUT,
		"outdir":           p.OutDir,
		"tempdir":          p.TempDir,
		"mtracks":          p.MTracks,
		"sift_mtracks":     p.SIFTMTracks,
		"maxlength":        p.MaxLength,
		"cutoff":           p.Cutoff,
		"nthreads":         p.NThreads,
		"fsl_init":         p.FSLInit,
		"verbose":          p.Verbose,
	}
	switch p.Variant {
	case PreRegistered:
		fields["parc"] = p.Parc
	case Freesurfer:
		fields["fsdir"] = p.FSDir
		fields["subjectid"] = p.SubjectID
	}
	return fields
}

func requireFile(flag, path string) error {
	if path == "" {
		return fmt.Errorf("%s is required", flag)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %q is not an existing file", flag, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%s: %q is a directory, expected a file", flag, path)
	}
	return nil
}

func requireFileIfSet(flag, path string) error {
	if path == "" {
		return nil
	}
	return requireFile(flag, path)
}

func requireDir(flag, path string) error {
	if path == "" {
		return fmt.Errorf("%s is required", flag)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %q is not an existing directory", flag, path)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %q is not a directory", flag, path)
	}
	return nil
}
