// Command connectome-fs computes a structural connectome from diffusion MRI
// data and a Freesurfer reconstruction, registering the subject's
// parcellation into diffusion space first.
package main

import (
	"os"

	"github.com/nsap/goconnectome/cli"
	"github.com/nsap/goconnectome/pipeline"
)

func main() {
	app := &cli.App{Name: "connectome-fs", Variant: pipeline.Freesurfer}
	os.Exit(app.Main(os.Args[1:]))
}
