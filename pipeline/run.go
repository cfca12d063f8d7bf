package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nsap/goconnectome/config"
	"github.com/nsap/goconnectome/metrics"
	"github.com/nsap/goconnectome/runlog"
	"github.com/nsap/goconnectome/tools"
	"github.com/nsap/goconnectome/tools/freesurfer"
	"github.com/nsap/goconnectome/tools/fsl"
	"github.com/nsap/goconnectome/tools/localrunner"
	"github.com/nsap/goconnectome/tools/mrtrix"
	"github.com/nsap/goconnectome/tools/sshrunner"
	"github.com/nsap/goconnectome/workflow"
)

// Result is what a finished run reports, successful or not.
type Result struct {
	Outputs        Outputs
	FSLVersion     string
	MRtrixVersion  string
	StageDurations map[string]float64
	Duration       time.Duration
	Invocations    []tools.Invocation
}

// RunOption configures a Run.
type RunOption func(*runOptions)

type runOptions struct {
	runMetrics *metrics.RunMetrics
	runner     tools.Runner
}

// WithRunMetrics reports the run outcome on the given instruments.
func WithRunMetrics(m *metrics.RunMetrics) RunOption {
	return func(o *runOptions) {
		o.runMetrics = m
	}
}

// WithRunner overrides the runner the tool suites execute through, instead
// of building one from the execution config.
func WithRunner(r tools.Runner) RunOption {
	return func(o *runOptions) {
		o.runner = r
	}
}

// Run executes one pipeline run end to end: resolve defaults, validate,
// probe the tool suites, write inputs.json, execute the stage graph, and
// write outputs.json and runtime.json. The runtime log is written even when
// the run fails, recording the error and whatever stages did complete.
func Run(ctx context.Context, cfg config.Config, p Params, logger *slog.Logger, opts ...RunOption) (Result, error) {
	var options runOptions
	for _, opt := range opts {
		opt(&options)
	}

	p.ApplyDefaults(cfg)

	base := options.runner
	if base == nil {
		var closer func() error
		var err error
		base, closer, err = buildRunner(cfg, logger)
		if err != nil {
			return Result{}, err
		}
		if closer != nil {
			defer closer()
		}
	}
	if timeout := cfg.Tools.ToolTimeout; timeout > 0 {
		base = &timeoutRunner{inner: base, timeout: timeout}
	}
	recording := tools.NewRecordingRunner(base)

	fslSuite := fsl.New(p.FSLInit, recording, fsl.WithLogger(logger))

	// Reject bad parameters before anything shells out.
	if err := resolveLUTs(&p, cfg, recording); err != nil {
		return Result{}, err
	}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	// Source the FSL environment up front. A broken init script fails the
	// run here, before anything touches the data, and the MRtrix scripts
	// that drive FSL internally (5ttgen fsl) inherit it.
	fslEnv, err := fslSuite.Env(ctx)
	if err != nil {
		return Result{}, err
	}

	mrtrixOpts := []mrtrix.Option{
		mrtrix.WithLogger(logger),
		mrtrix.WithEnv(fslEnv),
		mrtrix.WithNThreads(p.NThreads),
		mrtrix.WithVerbosity(p.Verbose),
	}
	if cfg.Tools.MRtrixPath != "" {
		mrtrixOpts = append(mrtrixOpts, mrtrix.WithBinDir(cfg.Tools.MRtrixPath))
	}
	mrtrixSuite := mrtrix.New(recording, mrtrixOpts...)

	suites := Suites{FSL: fslSuite, MRtrix: mrtrixSuite}
	if p.Variant == Freesurfer {
		home, err := freesurfer.Home(cfg.Tools.FreesurferHome)
		if err != nil {
			return Result{}, err
		}
		suites.Freesurfer = freesurfer.New(home, p.FSDir, recording, freesurfer.WithLogger(logger))
	}

	fslVersion, err := fslSuite.Version(ctx)
	if err != nil {
		return Result{}, err
	}
	mrtrixVersion, err := mrtrixSuite.Version(ctx)
	if err != nil {
		return Result{}, err
	}
	logger.Info("tool suites probed", "fsl_version", fslVersion, "mrtrix_version", mrtrixVersion)

	for _, dir := range []string{p.OutDir, p.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	fslExt, err := fslSuite.OutputExtension(ctx)
	if err != nil {
		return Result{}, err
	}
	outputs := PlanOutputs(p, fslExt)

	writer := runlog.NewWriter(p.OutDir)
	if err := writer.WriteInputs(p.LogFields()); err != nil {
		return Result{}, err
	}

	engine, err := Build(p, outputs, suites, workflow.WithLogger(logger))
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	runErr := engine.Execute(ctx)
	duration := time.Since(start)

	result := Result{
		Outputs:        outputs,
		FSLVersion:     fslVersion,
		MRtrixVersion:  mrtrixVersion,
		StageDurations: stageDurations(engine),
		Duration:       duration,
		Invocations:    recording.Invocations(),
	}

	if err := writer.WriteOutputs(outputs.LogFields()); err != nil {
		logger.Error("writing outputs log failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	if err := writer.WriteRuntime(runtimeFields(p, result, runErr)); err != nil {
		logger.Error("writing runtime log failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	if options.runMetrics != nil {
		options.runMetrics.ObserveRun(string(p.Variant), runErr == nil,
			duration.Seconds(), result.StageDurations)
	}

	return result, runErr
}

// buildRunner selects local or SSH execution from the config. The returned
// closer is non-nil for connection-backed runners.
func buildRunner(cfg config.Config, logger *slog.Logger) (tools.Runner, func() error, error) {
	switch cfg.Execution.Mode {
	case "", "local":
		return localrunner.New(localrunner.WithLogger(logger)), nil, nil
	case "ssh":
		key, err := os.ReadFile(cfg.Execution.PrivateKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading SSH private key: %w", err)
		}
		runner, err := sshrunner.New(cfg.Execution.Host, cfg.Execution.User, string(key))
		if err != nil {
			return nil, nil, err
		}
		return runner, runner.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown execution mode %q", cfg.Execution.Mode)
	}
}

// resolveLUTs fills the lookup-table defaults: the Freesurfer color table for
// parc-lut and the fs_default.txt shipped with MRtrix for connectome-lut.
// Both probes touch the local filesystem, so remote runs must pass the flags.
func resolveLUTs(p *Params, cfg config.Config, runner tools.Runner) error {
	if p.ParcLUT == "" {
		home, err := freesurfer.Home(cfg.Tools.FreesurferHome)
		if err != nil {
			return fmt.Errorf("resolving default parc-lut: %w", err)
		}
		lut, err := freesurfer.DefaultColorLUT(home)
		if err != nil {
			return fmt.Errorf("resolving default parc-lut: %w", err)
		}
		p.ParcLUT = lut
	}

	if p.ConnectomeLUT == "" {
		name := "mrinfo"
		if cfg.Tools.MRtrixPath != "" {
			name = filepath.Join(cfg.Tools.MRtrixPath, name)
		}
		path, err := runner.Look(name, nil)
		if err != nil {
			return fmt.Errorf("resolving default connectome-lut: %w", err)
		}
		lut, err := mrtrix.DefaultConnectomeLUT(path)
		if err != nil {
			return fmt.Errorf("resolving default connectome-lut: %w", err)
		}
		p.ConnectomeLUT = lut
	}
	return nil
}

// stageDurations extracts per-stage wall-clock seconds for completed stages.
func stageDurations(engine *workflow.Engine) map[string]float64 {
	durations := make(map[string]float64)
	for name, result := range engine.Results() {
		if result.State == workflow.Completed {
			durations[name] = result.Duration.Seconds()
		}
	}
	return durations
}

// runtimeFields renders the runtime.json document.
func runtimeFields(p Params, result Result, runErr error) map[string]any {
	hostname, _ := os.Hostname()

	status := "completed"
	errText := ""
	if runErr != nil {
		status = "failed"
		errText = runErr.Error()
	}

	return map[string]any{
		"cmd":              strings.Join(os.Args, " "),
		"timestamp":        time.Now().Format(time.RFC3339),
		"hostname":         hostname,
		"fsl_version":      result.FSLVersion,
		"mrtrix_version":   result.MRtrixVersion,
		"duration_seconds": result.Duration.Seconds(),
		"stage_durations":  result.StageDurations,
		"status":           status,
		"error":            errText,
		"invocations":      result.Invocations,
	}
}

// timeoutRunner bounds each tool invocation with the configured timeout.
type timeoutRunner struct {
	inner   tools.Runner
	timeout time.Duration
}

func (r *timeoutRunner) Run(ctx context.Context, cmd tools.Command) (tools.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.inner.Run(ctx, cmd)
}

func (r *timeoutRunner) Look(name string, env []string) (string, error) {
	return r.inner.Look(name, env)
}
