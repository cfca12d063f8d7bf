// Package localrunner executes external tools on the local machine.
package localrunner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nsap/goconnectome/tools"
)

// stderrTailBytes bounds how much stderr ends up in error messages.
const stderrTailBytes = 2048

// Runner executes tool commands via os/exec.
type Runner struct {
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger.With("component", "localrunner")
	}
}

// New creates a local runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		logger: slog.Default().With("component", "localrunner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the command locally, capturing stdout and stderr separately.
func (r *Runner) Run(ctx context.Context, cmd tools.Command) (tools.Output, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Env = append(os.Environ(), cmd.Env...)
	c.Dir = cmd.Dir

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	r.logger.Debug("running tool", "tool", cmd.Name, "args", cmd.Args)

	err := c.Run()
	out := tools.Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		return out, fmt.Errorf("%s failed: %w: %s", cmd.Name, err, tail(out.Stderr))
	}
	return out, nil
}

// Look resolves the named tool. Names containing a path separator are
// checked directly; bare names are searched on the effective PATH, which is
// the process PATH unless the env slice overrides it.
func (r *Runner) Look(name string, env []string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		if err := checkExecutable(name); err != nil {
			return "", err
		}
		return name, nil
	}

	path := tools.PathFromEnv(env)
	if path == "" {
		path = os.Getenv("PATH")
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if err := checkExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("tool %q not found on PATH", name)
}

// checkExecutable reports whether path is an executable regular file.
func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

// tail returns the last stderrTailBytes of s with surrounding space trimmed.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
	}
	return s
}
