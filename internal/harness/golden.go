package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stratagem/internal/ir"
)

// GoldenDir is where golden traces live, relative to the test package.
const GoldenDir = "testdata/golden"

// ErrGoldenMismatch is returned by CompareGolden when the trace differs.
var ErrGoldenMismatch = errors.New("trace differs from golden file")

// TraceSnapshot is the golden form of a run: canonical JSON of every
// transaction and message.
type TraceSnapshot struct {
	ScenarioName string            `json:"scenario_name"`
	Addresses    map[string]string `json:"addresses,omitempty"`
	Trace        []TraceEvent      `json:"trace"`
}

// Snapshot renders a result as canonical JSON.
func Snapshot(name string, result *Result) ([]byte, error) {
	return ir.MarshalCanonical(TraceSnapshot{
		ScenarioName: name,
		Addresses:    result.Addresses,
		Trace:        result.Trace,
	})
}

func newGoldie(t *testing.T, opts ...goldie.Option) *goldie.Goldie {
	defaults := []goldie.Option{
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	}
	return goldie.New(t, append(defaults, opts...)...)
}

// RunWithGolden executes a scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result, opts...)
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, name string, result *Result, opts ...goldie.Option) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	newGoldie(t, opts...).Assert(t, name, data)
	return nil
}

// CompareGolden checks data against the golden file at path, or rewrites
// the file when update is set. It serves callers outside go test.
func CompareGolden(path string, data []byte, update bool) error {
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create golden dir: %w", err)
		}
		return os.WriteFile(path, data, 0o644)
	}
	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return fmt.Errorf("%w: %s", ErrGoldenMismatch, path)
	}
	return nil
}
