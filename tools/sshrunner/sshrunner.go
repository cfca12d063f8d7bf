// Package sshrunner executes external tools on a remote compute node over a
// persistent SSH connection. This is how a pipeline runs on a cluster head
// node while the CLI stays on a workstation.
package sshrunner

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/nsap/goconnectome/tools"
)

// Runner manages a persistent SSH connection for running tool commands.
type Runner struct {
	client *ssh.Client
}

// New creates a Runner connected to the given host with the provided user and
// private key (PEM format). Host must include a port.
func New(host, user, privateKeyPEM string) (*Runner, error) {
	signer, err := ssh.ParsePrivateKey([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // NOTE: for production, use a proper callback
	}

	client, err := ssh.Dial("tcp", host, config)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}

	return &Runner{client: client}, nil
}

// Run executes the command on the remote host using a new session on the
// existing connection. Context cancellation closes the session.
func (r *Runner) Run(ctx context.Context, cmd tools.Command) (tools.Output, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return tools.Output{}, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(BuildShellCommand(cmd))
	}()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return tools.Output{Stdout: stdout.String(), Stderr: stderr.String()},
			fmt.Errorf("%s cancelled: %w", cmd.Name, ctx.Err())
	case err := <-done:
		out := tools.Output{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			return out, fmt.Errorf("%s failed: %w: %s", cmd.Name, err, strings.TrimSpace(out.Stderr))
		}
		return out, nil
	}
}

// Look resolves the named tool on the remote host via `command -v`.
func (r *Runner) Look(name string, env []string) (string, error) {
	probe := tools.Command{
		Name: "command",
		Args: []string{"-v", name},
		Env:  env,
	}
	out, err := r.Run(context.Background(), probe)
	if err != nil {
		return "", fmt.Errorf("tool %q not found on remote host: %w", name, err)
	}
	path := strings.TrimSpace(out.Stdout)
	if path == "" {
		return "", fmt.Errorf("tool %q not found on remote host", name)
	}
	return path, nil
}

// Close closes the underlying SSH connection.
func (r *Runner) Close() error {
	return r.client.Close()
}

// BuildShellCommand renders a Command as a single shell line with env
// assignments prefixed and every argument quoted.
func BuildShellCommand(cmd tools.Command) string {
	var b strings.Builder
	for _, kv := range cmd.Env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		b.WriteString("export ")
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(quote(value))
		b.WriteString(" && ")
	}
	if cmd.Dir != "" {
		b.WriteString("cd ")
		b.WriteString(quote(cmd.Dir))
		b.WriteString(" && ")
	}
	b.WriteString(quote(cmd.Name))
	for _, arg := range cmd.Args {
		b.WriteString(" ")
		b.WriteString(quote(arg))
	}
	return b.String()
}

// quote single-quotes a string for POSIX shells.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
