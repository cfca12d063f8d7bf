package pipeline

import (
	"context"

	"github.com/nsap/goconnectome/tools/freesurfer"
	"github.com/nsap/goconnectome/tools/fsl"
)

// parcVolume is the Freesurfer reconstruction volume used as the subject's
// parcellation.
const parcVolume = "aparc+aseg.mgz"

// extractNodif pulls the first (b=0) volume out of the diffusion series; the
// registration stages align against it.
type extractNodif struct {
	FSL    *fsl.Suite
	Params Params
	Out    Outputs
}

func (s *extractNodif) Name() string { return StageExtractNodif }

func (s *extractNodif) Init() error { return nil }

func (s *extractNodif) Execute(ctx context.Context) error {
	// fslroi takes the output base name and appends the configured
	// extension itself.
	base := trimImageExt(s.Out.Nodif)
	_, err := s.FSL.Run(ctx, "fslroi", s.Params.DWI, base, "0", "1")
	return err
}

// register computes the DWI-to-T1 transform against the Freesurfer
// reconstruction using boundary-based registration.
type register struct {
	Freesurfer *freesurfer.Suite
	Params     Params
	Out        Outputs
}

func (s *register) Name() string { return StageRegister }

func (s *register) Init() error { return nil }

func (s *register) Execute(ctx context.Context) error {
	_, err := s.Freesurfer.Run(ctx, "bbregister",
		"--s", s.Params.SubjectID,
		"--mov", s.Out.Nodif,
		"--reg", s.Out.Registration,
		"--dti",
		"--init-fsl",
	)
	return err
}

// resampleParc brings the subject's parcellation into DWI space by applying
// the inverse of the registration, with nearest-neighbour interpolation so
// label values survive.
type resampleParc struct {
	Freesurfer *freesurfer.Suite
	Params     Params
	Out        Outputs
}

func (s *resampleParc) Name() string { return StageResampleParc }

func (s *resampleParc) Init() error { return nil }

func (s *resampleParc) Execute(ctx context.Context) error {
	_, err := s.Freesurfer.Run(ctx, "mri_vol2vol",
		"--mov", s.Out.Nodif,
		"--targ", s.Freesurfer.SubjectVolume(s.Params.SubjectID, parcVolume),
		"--inv",
		"--interp", "nearest",
		"--o", s.Out.ParcInDWI,
		"--reg", s.Out.Registration,
		"--no-save-reg",
	)
	return err
}

// trimImageExt strips a known image extension from a planned output path so
// it can be handed to FSL tools that append the extension themselves.
func trimImageExt(path string) string {
	for _, ext := range []string{".nii.gz", ".nii", ".img.gz", ".img"} {
		if len(path) > len(ext) && path[len(path)-len(ext):] == ext {
			return path[:len(path)-len(ext)]
		}
	}
	return path
}
