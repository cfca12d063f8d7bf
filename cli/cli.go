// Package cli implements the two connectome command line front ends. The
// pre-registered front end takes a parcellation already aligned with the
// diffusion data; the freesurfer front end takes a Freesurfer reconstruction
// and registers the parcellation itself. Everything past flag parsing is
// shared.
package cli

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsap/goconnectome/buildinfo"
	"github.com/nsap/goconnectome/config"
	"github.com/nsap/goconnectome/logging"
	"github.com/nsap/goconnectome/metrics"
	"github.com/nsap/goconnectome/pipeline"
)

const flushTimeout = 30 * time.Second

// App is one front end. Name is the binary name used in usage output and
// Variant selects the stage sequence.
type App struct {
	Name    string
	Variant pipeline.Variant

	// execute is swapped out in tests.
	execute func(ctx context.Context, cfg config.Config, p pipeline.Params, logger *slog.Logger, opts ...pipeline.RunOption) (pipeline.Result, error)
}

// Args is the parsed command line.
type Args struct {
	Params      pipeline.Params
	ConfigPath  string
	ShowVersion bool
}

// ParseArgs parses the command line for this front end. Each flag has a
// short and a long form. Numeric flags left at zero are filled from the
// configuration before the run starts.
func (a *App) ParseArgs(args []string) (Args, error) {
	var parsed Args
	p := &parsed.Params
	p.Variant = a.Variant

	fs := flag.NewFlagSet(a.Name, flag.ContinueOnError)

	stringFlag(fs, &p.T1Brain, "a", "t1-brain", "brain-extracted T1 image")
	stringFlag(fs, &p.DWI, "i", "dwi", "diffusion-weighted image")
	stringFlag(fs, &p.BVals, "b", "bvals", "b-values file")
	stringFlag(fs, &p.BVecs, "r", "bvecs", "b-vectors file")
	stringFlag(fs, &p.NodifBrainMask, "m", "nodif-brain-mask", "brain mask in diffusion space")
	stringFlag(fs, &p.OutDir, "o", "outdir", "output directory")
	stringFlag(fs, &p.TempDir, "d", "tempdir", "working directory for intermediate images")
	stringFlag(fs, &p.ParcLUT, "f", "parc-lut", "parcellation color lookup table")
	stringFlag(fs, &p.ConnectomeLUT, "c", "connectome-lut", "connectome node lookup table")
	stringFlag(fs, &p.FSLInit, "F", "fsl-init", "FSL environment setup script")

	intFlag(fs, &p.MTracks, "t", "mtracks", "millions of streamlines to generate")
	intFlag(fs, &p.SIFTMTracks, "z", "sift-mtracks", "millions of streamlines to keep after SIFT")
	intFlag(fs, &p.MaxLength, "l", "maxlength", "maximum streamline length in mm")
	intFlag(fs, &p.NThreads, "n", "nthreads", "threads for the MRtrix tools")
	intFlag(fs, &p.Verbose, "v", "verbose", "verbosity, 0 to 2")

	fs.Float64Var(&p.Cutoff, "s", 0, "FOD amplitude cutoff for tracking")
	fs.Float64Var(&p.Cutoff, "cutoff", 0, "FOD amplitude cutoff for tracking")

	switch a.Variant {
	case pipeline.Freesurfer:
		stringFlag(fs, &p.FSDir, "g", "fsdir", "Freesurfer subjects directory")
		stringFlag(fs, &p.SubjectID, "u", "subjectid", "Freesurfer subject ID")
	default:
		stringFlag(fs, &p.Parc, "p", "parc", "parcellation image in diffusion space")
	}

	fs.StringVar(&parsed.ConfigPath, "config", "", "path to config file")
	fs.BoolVar(&parsed.ShowVersion, "version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n\n", a.Name)
		fmt.Fprintf(fs.Output(), "Computes a structural connectome from diffusion MRI data.\n\n")
		fmt.Fprintf(fs.Output(), "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return Args{}, err
	}
	if fs.NArg() > 0 {
		return Args{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return parsed, nil
}

// Main parses the command line and executes the run, printing errors to
// stderr. It returns the process exit code.
func (a *App) Main(args []string) int {
	if err := a.run(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (a *App) run(args []string) error {
	parsed, err := a.ParseArgs(args)
	if err != nil {
		return err
	}

	if parsed.ShowVersion {
		props := buildinfo.Get()
		fmt.Printf("%s %s\n", a.Name, props.Version)
		fmt.Printf("Built: %s\n", props.BuildTime)
		fmt.Printf("Commit: %s\n", props.GitCommit)
		return nil
	}

	cfg := config.Default()
	if parsed.ConfigPath != "" {
		cfg, err = config.LoadConfig(parsed.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	level, err := logging.LevelForVerbosity(parsed.Params.Verbose)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:     level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	props := buildinfo.Get()
	logger.Info(a.Name+" started",
		"version", props.Version,
		"build_time", props.BuildTime,
		"git_commit", props.GitCommit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	execute := a.execute
	if execute == nil {
		execute = pipeline.Run
	}

	var opts []pipeline.RunOption
	var registry *metrics.PushRegistry
	if cfg.Monitoring.VictoriaMetricsURL != "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		registry = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: hostname,
		})
		runMetrics, err := metrics.NewRunMetrics(registry)
		if err != nil {
			return fmt.Errorf("failed to create run metrics: %w", err)
		}
		opts = append(opts, pipeline.WithRunMetrics(runMetrics))
	}

	result, runErr := execute(ctx, cfg, parsed.Params, logger.Logger, opts...)

	if registry != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := registry.Flush(flushCtx); err != nil {
			logger.Warn("failed to push metrics", "error", err)
		}
		cancel()
	}

	if runErr != nil {
		return runErr
	}

	logger.Info("connectome computed",
		"connectome", result.Outputs.Connectome,
		"duration", result.Duration.Round(time.Second).String(),
	)
	return nil
}

func stringFlag(fs *flag.FlagSet, target *string, short, long, usage string) {
	fs.StringVar(target, short, "", usage)
	fs.StringVar(target, long, "", usage)
}

func intFlag(fs *flag.FlagSet, target *int, short, long, usage string) {
	fs.IntVar(target, short, 0, usage)
	fs.IntVar(target, long, 0, usage)
}
