// Package freesurfer wraps the Freesurfer tool suite and resolves the lookup
// tables shipped with it.
//
// Freesurfer tools locate the installation via FREESURFER_HOME and the
// per-study reconstructions via SUBJECTS_DIR; the Suite injects both on every
// invocation instead of relying on the caller's shell.
package freesurfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nsap/goconnectome/tools"
)

// ColorLUTName is the parcellation lookup table shipped with Freesurfer.
const ColorLUTName = "FreeSurferColorLUT.txt"

// Suite wraps a Freesurfer installation reachable through a runner.
type Suite struct {
	home        string // FREESURFER_HOME
	subjectsDir string // SUBJECTS_DIR
	runner      tools.Runner
	logger      *slog.Logger

	mu     sync.Mutex
	probed map[string]bool
}

// Option configures a Suite.
type Option func(*Suite)

// WithLogger sets a custom logger for the suite.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Suite) {
		s.logger = logger.With("component", "freesurfer")
	}
}

// New creates a Freesurfer suite wrapper rooted at home, operating on the
// reconstructions under subjectsDir.
func New(home, subjectsDir string, runner tools.Runner, opts ...Option) *Suite {
	s := &Suite{
		home:        home,
		subjectsDir: subjectsDir,
		runner:      runner,
		logger:      slog.Default().With("component", "freesurfer"),
		probed:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// env renders the suite environment for one invocation.
func (s *Suite) env() []string {
	env := []string{"FREESURFER_HOME=" + s.home}
	if s.subjectsDir != "" {
		env = append(env, "SUBJECTS_DIR="+s.subjectsDir)
	}
	// Freesurfer binaries live under $FREESURFER_HOME/bin; prepend so the
	// pinned installation wins over anything already on PATH.
	if path := os.Getenv("PATH"); path != "" {
		env = append(env, "PATH="+filepath.Join(s.home, "bin")+string(os.PathListSeparator)+path)
	} else {
		env = append(env, "PATH="+filepath.Join(s.home, "bin"))
	}
	return env
}

// Run executes a Freesurfer tool with the suite environment.
func (s *Suite) Run(ctx context.Context, tool string, args ...string) (tools.Output, error) {
	env := s.env()
	if err := s.probe(tool, env); err != nil {
		return tools.Output{}, err
	}

	s.logger.Info("running Freesurfer tool", "tool", tool, "args", args)
	return s.runner.Run(ctx, tools.Command{Name: tool, Args: args, Env: env})
}

// SubjectVolume returns the path of a volume in a subject's mri directory,
// e.g. SubjectVolume("sub-01", "aparc+aseg.mgz").
func (s *Suite) SubjectVolume(subjectID, name string) string {
	return filepath.Join(s.subjectsDir, subjectID, "mri", name)
}

// probe confirms the tool resolves for this runner, once per tool.
func (s *Suite) probe(tool string, env []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.probed[tool] {
		return nil
	}
	path, err := s.runner.Look(tool, env)
	if err != nil {
		return fmt.Errorf("Freesurfer tool %q not available: %w", tool, err)
	}
	s.logger.Debug("Freesurfer tool resolved", "tool", tool, "path", path)
	s.probed[tool] = true
	return nil
}

// Home resolves the Freesurfer installation root: the configured value if
// non-empty, otherwise the FREESURFER_HOME environment variable.
func Home(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if home := os.Getenv("FREESURFER_HOME"); home != "" {
		return home, nil
	}
	return "", fmt.Errorf("FREESURFER_HOME is not set and no freesurfer_home is configured")
}

// DefaultColorLUT returns the path of FreeSurferColorLUT.txt under the given
// installation root, verifying it exists.
func DefaultColorLUT(home string) (string, error) {
	lut := filepath.Join(home, ColorLUTName)
	info, err := os.Stat(lut)
	if err != nil {
		return "", fmt.Errorf("parcellation LUT not found under %s: %w", home, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("parcellation LUT %s is a directory", lut)
	}
	return lut, nil
}
