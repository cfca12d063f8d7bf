// Package fsl wraps the FSL tool suite.
//
// FSL tools only work inside the environment produced by sourcing the FSL
// init script (by default /etc/fsl/5.0/fsl.sh), which sets FSLDIR,
// FSLOUTPUTTYPE and the PATH entries for the suite binaries. The Suite builds
// that environment once through the configured runner, validates
// FSLOUTPUTTYPE, probes each tool for existence before its first use, and
// reports the suite version from $FSLDIR/etc/fslversion.
package fsl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nsap/goconnectome/tools"
)

// ErrMissingOutputType is returned when the sourced environment carries no
// FSLOUTPUTTYPE, which means the init script is not a usable FSL setup.
var ErrMissingOutputType = fmt.Errorf("FSLOUTPUTTYPE not set by FSL init script")

// outputExtensions maps FSLOUTPUTTYPE values to the image extension FSL
// tools produce.
var outputExtensions = map[string]string{
	"NIFTI":         ".nii",
	"NIFTI_GZ":      ".nii.gz",
	"NIFTI_PAIR":    ".img",
	"NIFTI_PAIR_GZ": ".img.gz",
	"ANALYZE":       ".img",
	"ANALYZE_GZ":    ".img.gz",
}

// Suite wraps the FSL installation reachable through a runner.
type Suite struct {
	initScript string
	runner     tools.Runner
	logger     *slog.Logger

	mu      sync.Mutex
	env     []string        // sourced environment, nil until first use
	outType string          // validated FSLOUTPUTTYPE
	probed  map[string]bool // tools confirmed present
}

// Option configures a Suite.
type Option func(*Suite)

// WithLogger sets a custom logger for the suite.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Suite) {
		s.logger = logger.With("component", "fsl")
	}
}

// New creates an FSL suite wrapper that sources the given init script.
func New(initScript string, runner tools.Runner, opts ...Option) *Suite {
	s := &Suite{
		initScript: initScript,
		runner:     runner,
		logger:     slog.Default().With("component", "fsl"),
		probed:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Env returns the environment produced by sourcing the init script.
// The result is cached after the first call.
func (s *Suite) Env(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envLocked(ctx)
}

func (s *Suite) envLocked(ctx context.Context) ([]string, error) {
	if s.env != nil {
		return s.env, nil
	}

	out, err := s.runner.Run(ctx, tools.Command{
		Name: "sh",
		Args: []string{"-c", fmt.Sprintf(". %s > /dev/null 2>&1; env", s.initScript)},
	})
	if err != nil {
		return nil, fmt.Errorf("sourcing FSL init script %s: %w", s.initScript, err)
	}

	env := parseEnv(out.Stdout)
	outType := valueFromEnv(env, "FSLOUTPUTTYPE")
	if outType == "" {
		return nil, fmt.Errorf("%w (script: %s)", ErrMissingOutputType, s.initScript)
	}
	if _, ok := outputExtensions[outType]; !ok {
		return nil, fmt.Errorf("unknown FSLOUTPUTTYPE %q set by %s", outType, s.initScript)
	}

	s.logger.Debug("FSL environment sourced",
		"init_script", s.initScript,
		"fsldir", valueFromEnv(env, "FSLDIR"),
		"output_type", outType,
	)

	s.env = env
	s.outType = outType
	return s.env, nil
}

// OutputExtension returns the image extension matching the configured
// FSLOUTPUTTYPE (".nii.gz" for NIFTI_GZ and so on).
func (s *Suite) OutputExtension(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.envLocked(ctx); err != nil {
		return "", err
	}
	return outputExtensions[s.outType], nil
}

// Version reports the installed FSL version from $FSLDIR/etc/fslversion.
func (s *Suite) Version(ctx context.Context) (string, error) {
	env, err := s.Env(ctx)
	if err != nil {
		return "", err
	}

	out, err := s.runner.Run(ctx, tools.Command{
		Name: "sh",
		Args: []string{"-c", `cat "$FSLDIR/etc/fslversion"`},
		Env:  env,
	})
	if err != nil {
		return "", fmt.Errorf("reading FSL version: %w", err)
	}

	version := strings.TrimSpace(out.Stdout)
	if version == "" {
		return "", fmt.Errorf("empty FSL version file under %s", valueFromEnv(env, "FSLDIR"))
	}
	return version, nil
}

// Run executes an FSL tool inside the sourced environment. The tool is
// probed for existence before its first use; a missing binary fails here
// rather than mid-pipeline.
func (s *Suite) Run(ctx context.Context, tool string, args ...string) (tools.Output, error) {
	env, err := s.Env(ctx)
	if err != nil {
		return tools.Output{}, err
	}

	if err := s.probe(tool, env); err != nil {
		return tools.Output{}, err
	}

	s.logger.Info("running FSL tool", "tool", tool, "args", args)
	return s.runner.Run(ctx, tools.Command{Name: tool, Args: args, Env: env})
}

// probe confirms the tool resolves in the FSL environment, once per tool.
func (s *Suite) probe(tool string, env []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.probed[tool] {
		return nil
	}
	path, err := s.runner.Look(tool, env)
	if err != nil {
		return fmt.Errorf("FSL tool %q not available: %w", tool, err)
	}
	s.logger.Debug("FSL tool resolved", "tool", tool, "path", path)
	s.probed[tool] = true
	return nil
}

// parseEnv converts `env` output into a "KEY=VALUE" slice, dropping lines
// that are not plain assignments (exported bash functions span multiple
// lines and carry % in their synthetic names).
func parseEnv(envOutput string) []string {
	lines := strings.Split(envOutput, "\n")
	env := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if name, _, ok := strings.Cut(line, "="); !ok || name == "" || strings.ContainsAny(name, " \t%") {
			continue
		}
		env = append(env, line)
	}
	return env
}

// valueFromEnv returns the value of key in a "KEY=VALUE" slice, last wins.
func valueFromEnv(env []string, key string) string {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return strings.TrimPrefix(env[i], prefix)
		}
	}
	return ""
}
