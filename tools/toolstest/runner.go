// Package toolstest provides a fake tools.Runner for suite and stage tests,
// so tool invocations can be asserted argv-for-argv without shelling out.
package toolstest

import (
	"context"
	"sync"

	"github.com/nsap/goconnectome/tools"
)

// FakeRunner records every command it is asked to run and answers with
// configurable responses.
type FakeRunner struct {
	mu    sync.Mutex
	calls []tools.Command

	// RunFunc, when set, produces the response for Run. Defaults to an
	// empty successful output.
	RunFunc func(cmd tools.Command) (tools.Output, error)

	// LookFunc, when set, resolves Look calls. Defaults to "/usr/bin/<name>".
	LookFunc func(name string, env []string) (string, error)
}

// Run records the command and returns the configured response.
func (f *FakeRunner) Run(ctx context.Context, cmd tools.Command) (tools.Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.RunFunc != nil {
		return f.RunFunc(cmd)
	}
	return tools.Output{}, nil
}

// Look resolves the named tool via LookFunc.
func (f *FakeRunner) Look(name string, env []string) (string, error) {
	if f.LookFunc != nil {
		return f.LookFunc(name, env)
	}
	return "/usr/bin/" + name, nil
}

// Calls returns a copy of all recorded commands in run order.
func (f *FakeRunner) Calls() []tools.Command {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]tools.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor returns the recorded commands whose Name matches name.
func (f *FakeRunner) CallsFor(name string) []tools.Command {
	var out []tools.Command
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
