package pipeline

import (
	"context"
	"strconv"

	"github.com/nsap/goconnectome/tools/mrtrix"
)

// Stage names. Dependency edges in the builders refer to these.
const (
	StageConvertDWI   = "convert-dwi"
	StageFiveTissue   = "five-tissue"
	StageResponse     = "response"
	StageFOD          = "fod"
	StageTracks       = "tracks"
	StageSIFT         = "sift"
	StageNodes        = "nodes"
	StageConnectome   = "connectome"
	StageExtractNodif = "extract-nodif"
	StageRegister     = "register"
	StageResampleParc = "resample-parc"
)

// convertDWI attaches the FSL-style gradient table to the diffusion data and
// converts it to MRtrix format.
type convertDWI struct {
	MRtrix *mrtrix.Suite
	Params Params
	Out    Outputs
}

func (s *convertDWI) Name() string { return StageConvertDWI }

func (s *convertDWI) Init() error { return nil }

func (s *convertDWI) Execute(ctx context.Context) error {
	_, err := s.MRtrix.Run(ctx, "mrconvert",
		s.Params.DWI, s.Out.DWIMif,
		"-fslgrad", s.Params.BVecs, s.Params.BVals,
	)
	return err
}

// fiveTissue produces the five-tissue-type segmentation used for
// anatomically constrained tractography. The pre-registered variant segments
// the brain-extracted T1 (hence -premasked); the freesurfer variant derives
// the segmentation from the resampled parcellation instead.
type fiveTissue struct {
	MRtrix *mrtrix.Suite
	Params Params
	Out    Outputs
}

func (s *fiveTissue) Name() string { return StageFiveTissue }

func (s *fiveTissue) Init() error { return nil }

func (s *fiveTissue) Execute(ctx context.Context) error {
	if s.Params.Variant == Freesurfer {
		_, err := s.MRtrix.Run(ctx, "5ttgen", "freesurfer", s.Out.ParcInDWI, s.Out.FiveTissue)
		return err
	}
	_, err := s.MRtrix.Run(ctx, "5ttgen", "fsl", s.Params.T1Brain, s.Out.FiveTissue, "-premasked")
	return err
}

// response estimates the single-fiber response function.
type response struct {
	MRtrix *mrtrix.Suite
	Params Params
	Out    Outputs
}

func (s *response) Name() string { return StageResponse }

func (s *response) Init() error { return nil }

func (s *response) Execute(ctx context.Context) error {
	_, err := s.MRtrix.Run(ctx, "dwi2response", "tournier",
		s.Out.DWIMif, s.Out.Response,
		"-mask", s.Params.NodifBrainMask,
	)
	return err
}

// fod computes the fiber orientation distributions by constrained spherical
// deconvolution.
type fod struct {
	MRtrix *mrtrix.Suite
	Params Params
	Out    Outputs
}

func (s *fod) Name() string { return StageFOD }

func (s *fod) Init() error { return nil }

func (s *fod) Execute(ctx context.Context) error {
	_, err := s.MRtrix.Run(ctx, "dwi2fod", "csd",
		s.Out.DWIMif, s.Out.Response, s.Out.FOD,
		"-mask", s.Params.NodifBrainMask,
	)
	return err
}

// tracks generates the raw tractogram.
type tracks struct {
	MRtrix *mrtrix.Suite
	Params Params
	Out    Outputs
}

func (s *tracks) Name() string { return StageTracks }

func (s *tracks) Init() error { return nil }

func (s *tracks) Execute(ctx context.Context) error {
	_, err := s.MRtrix.Run(ctx, "tckgen",
		s.Out.FOD, s.Out.Tracks,
		"-act", s.Out.FiveTissue,
		"-seed_dynamic", s.Out.FOD,
		"-maxlength", strconv.Itoa(s.Params.MaxLength),
		"-cutoff", strconv.FormatFloat(s.Params.Cutoff, 'g', -1, 64),
		"-select", strconv.Itoa(s.Params.SelectCount()),
	)
	return err
}

// sift filters the tractogram so the streamline densities match the FODs.
type sift struct {
	MRtrix *mrtrix.Suite
	Params Params
	Out    Outputs
}

func (s *sift) Name() string { return StageSIFT }

func (s *sift) Init() error { return nil }

func (s *sift) Execute(ctx context.Context) error {
	_, err := s.MRtrix.Run(ctx, "tcksift",
		s.Out.Tracks, s.Out.FOD, s.Out.SIFTTracks,
		"-act", s.Out.FiveTissue,
		"-term_number", strconv.Itoa(s.Params.TermNumber()),
	)
	return err
}

// nodes relabels the parcellation image into the consecutive node indices
// the connectome construction expects.
type nodes struct {
	MRtrix *mrtrix.Suite
	Params Params
	Out    Outputs

	// Parc is the parcellation to convert: the input parcellation for the
	// pre-registered variant, the resampled one for the freesurfer variant.
	Parc string
}

func (s *nodes) Name() string { return StageNodes }

func (s *nodes) Init() error { return nil }

func (s *nodes) Execute(ctx context.Context) error {
	_, err := s.MRtrix.Run(ctx, "labelconvert",
		s.Parc, s.Params.ParcLUT, s.Params.ConnectomeLUT, s.Out.Nodes,
	)
	return err
}

// connectome builds the connectivity matrix from the filtered tractogram.
type connectome struct {
	MRtrix *mrtrix.Suite
	Params Params
	Out    Outputs
}

func (s *connectome) Name() string { return StageConnectome }

func (s *connectome) Init() error { return nil }

func (s *connectome) Execute(ctx context.Context) error {
	_, err := s.MRtrix.Run(ctx, "tck2connectome",
		s.Out.SIFTTracks, s.Out.Nodes, s.Out.Connectome,
		"-zero_diagonal",
	)
	return err
}
