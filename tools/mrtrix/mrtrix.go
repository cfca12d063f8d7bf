// Package mrtrix wraps the MRtrix3 tool suite.
//
// MRtrix tools share a set of global flags (-nthreads, -quiet, -debug) and a
// common version banner. The Suite injects the global flags on every
// invocation, probes tools before first use, and discovers the suite version
// by parsing the `mrinfo -version` banner.
package mrtrix

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nsap/goconnectome/tools"
)

// versionTool is the binary probed for the suite version banner.
const versionTool = "mrinfo"

// Suite wraps the MRtrix installation reachable through a runner.
type Suite struct {
	runner    tools.Runner
	logger    *slog.Logger
	binDir    string   // optional directory holding the suite binaries
	env       []string // extra environment for every invocation (e.g. FSL vars for 5ttgen fsl)
	nthreads  int
	verbosity int

	mu     sync.Mutex
	probed map[string]bool
}

// Option configures a Suite.
type Option func(*Suite)

// WithLogger sets a custom logger for the suite.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Suite) {
		s.logger = logger.With("component", "mrtrix")
	}
}

// WithBinDir pins the suite to a specific MRtrix build instead of whatever
// is first on PATH.
func WithBinDir(dir string) Option {
	return func(s *Suite) {
		s.binDir = dir
	}
}

// WithEnv appends extra environment entries to every invocation. The MRtrix
// scripts that drive FSL internally (5ttgen fsl) need the FSL environment.
func WithEnv(env []string) Option {
	return func(s *Suite) {
		s.env = env
	}
}

// WithNThreads sets the -nthreads value added to every invocation.
// Zero leaves thread selection to the tool.
func WithNThreads(n int) Option {
	return func(s *Suite) {
		s.nthreads = n
	}
}

// WithVerbosity maps the CLI verbosity to MRtrix global flags:
// 0 adds -quiet, 1 adds nothing, 2 adds -debug.
func WithVerbosity(v int) Option {
	return func(s *Suite) {
		s.verbosity = v
	}
}

// New creates an MRtrix suite wrapper.
func New(runner tools.Runner, opts ...Option) *Suite {
	s := &Suite{
		runner:    runner,
		logger:    slog.Default().With("component", "mrtrix"),
		verbosity: 1,
		probed:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Version reports the installed MRtrix version.
func (s *Suite) Version(ctx context.Context) (string, error) {
	out, err := s.runner.Run(ctx, tools.Command{
		Name: s.toolPath(versionTool),
		Args: []string{"-version"},
		Env:  s.env,
	})
	if err != nil {
		return "", fmt.Errorf("probing MRtrix version: %w", err)
	}
	return ParseVersionBanner(out.Stdout)
}

// Run executes an MRtrix tool with the suite's global flags appended.
func (s *Suite) Run(ctx context.Context, tool string, args ...string) (tools.Output, error) {
	if err := s.probe(tool); err != nil {
		return tools.Output{}, err
	}

	args = append(args, s.globalArgs()...)
	s.logger.Info("running MRtrix tool", "tool", tool, "args", args)

	return s.runner.Run(ctx, tools.Command{
		Name: s.toolPath(tool),
		Args: args,
		Env:  s.env,
	})
}

// globalArgs renders the suite-wide flags shared by all MRtrix tools.
func (s *Suite) globalArgs() []string {
	var args []string
	if s.nthreads > 0 {
		args = append(args, "-nthreads", fmt.Sprintf("%d", s.nthreads))
	}
	switch {
	case s.verbosity <= 0:
		args = append(args, "-quiet")
	case s.verbosity >= 2:
		args = append(args, "-debug")
	}
	return args
}

// toolPath resolves a tool name against the pinned bin dir, if any.
func (s *Suite) toolPath(tool string) string {
	if s.binDir == "" {
		return tool
	}
	return filepath.Join(s.binDir, tool)
}

// probe confirms the tool resolves for this runner, once per tool.
func (s *Suite) probe(tool string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.probed[tool] {
		return nil
	}
	path, err := s.runner.Look(s.toolPath(tool), s.env)
	if err != nil {
		return fmt.Errorf("MRtrix tool %q not available: %w", tool, err)
	}
	s.logger.Debug("MRtrix tool resolved", "tool", tool, "path", path)
	s.probed[tool] = true
	return nil
}

// ParseVersionBanner extracts the version from an MRtrix banner line such as
// "== mrinfo 3.0.4 ==".
func ParseVersionBanner(banner string) (string, error) {
	for _, line := range strings.Split(banner, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "==") {
			continue
		}
		fields := strings.Fields(strings.Trim(line, "= "))
		if len(fields) >= 2 {
			return fields[1], nil
		}
	}
	return "", fmt.Errorf("unrecognized MRtrix version banner: %q", strings.TrimSpace(banner))
}

// DefaultConnectomeLUT resolves the fs_default.txt connectome lookup table
// shipped in the MRtrix share directory, located relative to the suite
// binaries. The probe runs through the local filesystem, so it only applies
// to local execution; remote runs must pass -c explicitly.
func DefaultConnectomeLUT(mrinfoPath string) (string, error) {
	binDir := filepath.Dir(mrinfoPath)
	candidates := []string{
		filepath.Join(binDir, "..", "share", "mrtrix3", "labelconvert", "fs_default.txt"),
		filepath.Join(binDir, "..", "share", "mrtrix", "labelconvert", "fs_default.txt"),
	}
	for _, candidate := range candidates {
		candidate = filepath.Clean(candidate)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("fs_default.txt not found near %s", mrinfoPath)
}
