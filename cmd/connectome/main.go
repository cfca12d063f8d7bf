// Command connectome computes a structural connectome from diffusion MRI
// data using a parcellation already registered to the diffusion space.
package main

import (
	"os"

	"github.com/nsap/goconnectome/cli"
	"github.com/nsap/goconnectome/pipeline"
)

func main() {
	app := &cli.App{Name: "connectome", Variant: pipeline.PreRegistered}
	os.Exit(app.Main(os.Args[1:]))
}
