// Package runlog persists the per-run JSON documents under <outdir>/logs/.
//
// Every pipeline run produces three documents: inputs.json with the resolved
// parameter set (written before any stage executes), outputs.json with the
// produced artifact paths, and runtime.json with timing, tool versions and
// exit status. Each file is pretty-printed with sorted keys and written once.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File names under <outdir>/logs/.
const (
	InputsFile  = "inputs.json"
	OutputsFile = "outputs.json"
	RuntimeFile = "runtime.json"

	logsDirName = "logs"
)

// Writer writes the run log documents for one run.
type Writer struct {
	dir string
}

// NewWriter returns a writer targeting <outdir>/logs. The directory is
// created on the first write.
func NewWriter(outdir string) *Writer {
	return &Writer{dir: filepath.Join(outdir, logsDirName)}
}

// Dir returns the logs directory this writer targets.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteInputs persists the resolved parameter set as inputs.json.
func (w *Writer) WriteInputs(fields map[string]any) error {
	return w.write(InputsFile, fields)
}

// WriteOutputs persists the produced artifact paths as outputs.json.
func (w *Writer) WriteOutputs(fields map[string]any) error {
	return w.write(OutputsFile, fields)
}

// WriteRuntime persists the runtime metadata as runtime.json.
func (w *Writer) WriteRuntime(fields map[string]any) error {
	return w.write(RuntimeFile, fields)
}

// write marshals the document pretty-printed (JSON object keys come out
// sorted) and writes it atomically enough for a write-once file.
func (w *Writer) write(name string, doc any) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating logs directory %s: %w", w.dir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	data = append(data, '\n')

	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
