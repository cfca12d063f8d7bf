package pipeline

import (
	"fmt"

	"github.com/nsap/goconnectome/tools/freesurfer"
	"github.com/nsap/goconnectome/tools/fsl"
	"github.com/nsap/goconnectome/tools/mrtrix"
	"github.com/nsap/goconnectome/workflow"
)

// Suites bundles the tool wrappers a pipeline runs against.
type Suites struct {
	FSL        *fsl.Suite
	MRtrix     *mrtrix.Suite
	Freesurfer *freesurfer.Suite // freesurfer variant only
}

// Build assembles the stage graph for the given parameters on a fresh
// workflow engine. The pre-registered graph:
//
//	convert-dwi -> response -> fod ----\
//	five-tissue -----------------------+-> tracks -> sift --\
//	nodes -------------------------------------------------+-> connectome
//
// The freesurfer graph prepends extract-nodif -> register -> resample-parc
// and hangs five-tissue and nodes off the resampled parcellation.
func Build(p Params, out Outputs, s Suites, opts ...workflow.Option) (*workflow.Engine, error) {
	engine := workflow.NewEngine(opts...)

	type edge struct {
		stage workflow.Stage
		after []string
	}
	var edges []edge

	parc := p.Parc
	fiveTissueAfter := []string{}
	nodesAfter := []string{}

	if p.Variant == Freesurfer {
		if s.FSL == nil || s.Freesurfer == nil {
			return nil, fmt.Errorf("freesurfer variant needs the FSL and Freesurfer suites")
		}
		parc = out.ParcInDWI
		fiveTissueAfter = []string{StageResampleParc}
		nodesAfter = []string{StageResampleParc}

		edges = append(edges,
			edge{&extractNodif{FSL: s.FSL, Params: p, Out: out}, nil},
			edge{&register{Freesurfer: s.Freesurfer, Params: p, Out: out}, []string{StageExtractNodif}},
			edge{&resampleParc{Freesurfer: s.Freesurfer, Params: p, Out: out}, []string{StageRegister}},
		)
	}

	if s.MRtrix == nil {
		return nil, fmt.Errorf("pipeline needs the MRtrix suite")
	}

	edges = append(edges,
		edge{&convertDWI{MRtrix: s.MRtrix, Params: p, Out: out}, nil},
		edge{&fiveTissue{MRtrix: s.MRtrix, Params: p, Out: out}, fiveTissueAfter},
		edge{&response{MRtrix: s.MRtrix, Params: p, Out: out}, []string{StageConvertDWI}},
		edge{&fod{MRtrix: s.MRtrix, Params: p, Out: out}, []string{StageResponse}},
		edge{&tracks{MRtrix: s.MRtrix, Params: p, Out: out}, []string{StageFOD, StageFiveTissue}},
		edge{&sift{MRtrix: s.MRtrix, Params: p, Out: out}, []string{StageTracks}},
		edge{&nodes{MRtrix: s.MRtrix, Params: p, Out: out, Parc: parc}, nodesAfter},
		edge{&connectome{MRtrix: s.MRtrix, Params: p, Out: out}, []string{StageSIFT, StageNodes}},
	)

	for _, e := range edges {
		if err := engine.Add(e.stage, e.after...); err != nil {
			return nil, err
		}
	}
	return engine, nil
}
