package pipeline

import "path/filepath"

// Outputs holds the artifact paths a run produces. Intermediates live under
// the temp directory; the connectome matrix is the deliverable and lands in
// the output directory. The paths are planned before execution so stages can
// be wired to each other and outputs.json can be written even for a run that
// fails partway.
type Outputs struct {
	DWIMif     string `json:"dwi_mif"`     // DWI converted to MRtrix format with gradients attached
	FiveTissue string `json:"five_tissue"` // anatomically constrained tractography segmentation
	Response   string `json:"response"`    // single-fiber response function
	FOD        string `json:"fod"`         // fiber orientation distributions
	Tracks     string `json:"tracks"`      // raw tractogram
	SIFTTracks string `json:"sift_tracks"` // SIFT-filtered tractogram
	Nodes      string `json:"nodes"`       // parcellation converted to connectome node indices
	Connectome string `json:"connectome"`  // connectivity matrix

	// Freesurfer variant registration intermediates.
	Nodif        string `json:"nodif,omitempty"`        // first DWI volume (b=0)
	Registration string `json:"registration,omitempty"` // bbregister transform
	ParcInDWI    string `json:"parc_in_dwi,omitempty"`  // parcellation resampled into DWI space
}

// PlanOutputs lays out the artifact paths for a run. fslExt is the image
// extension the FSL environment produces (".nii.gz" for NIFTI_GZ); it is only
// used by the freesurfer variant, whose registration starts from an
// FSL-extracted volume.
func PlanOutputs(p Params, fslExt string) Outputs {
	o := Outputs{
		DWIMif:     filepath.Join(p.TempDir, "dwi.mif"),
		FiveTissue: filepath.Join(p.TempDir, "5tt.mif"),
		Response:   filepath.Join(p.TempDir, "response.txt"),
		FOD:        filepath.Join(p.TempDir, "wm_fod.mif"),
		Tracks:     filepath.Join(p.TempDir, "tracks.tck"),
		SIFTTracks: filepath.Join(p.TempDir, "sift_tracks.tck"),
		Nodes:      filepath.Join(p.TempDir, "nodes.mif"),
		Connectome: filepath.Join(p.OutDir, "connectome.csv"),
	}
	if p.Variant == Freesurfer {
		o.Nodif = filepath.Join(p.TempDir, "nodif") + fslExt
		o.Registration = filepath.Join(p.TempDir, "dwi_to_t1.dat")
		o.ParcInDWI = filepath.Join(p.TempDir, "parc_in_dwi.nii.gz")
	}
	return o
}

// LogFields renders the artifact paths for outputs.json.
func (o Outputs) LogFields() map[string]any {
	fields := map[string]any{
		"dwi_mif":     o.DWIMif,
		"five_tissue": o.FiveTissue,
		"response":    o.Response,
		"fod":         o.FOD,
		"tracks":      o.Tracks,
		"sift_tracks": o.SIFTTracks,
		"nodes":       o.Nodes,
		"connectome":  o.Connectome,
	}
	if o.Nodif != "" {
		fields["nodif"] = o.Nodif
		fields["registration"] = o.Registration
		fields["parc_in_dwi"] = o.ParcInDWI
	}
	return fields
}
