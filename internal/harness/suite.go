package harness

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/stratagem/internal/logging"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path         string
	ResolvedPath string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q does not exist (resolved to: %s)", e.Path, e.ResolvedPath)
}

// ExpandScenarios turns files and directories into a sorted list of
// scenario files. A directory contributes its *.yaml and *.yml files.
func ExpandScenarios(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: p, ResolvedPath: abs}
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, abs)
			continue
		}
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(abs, pattern))
			if err != nil {
				return nil, err
			}
			out = append(out, matches...)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SuiteOptions configures RunSuite.
type SuiteOptions struct {
	// GoldenDir, when set, compares each trace with GoldenDir/{name}.golden.
	GoldenDir string
	// Update rewrites golden files instead of comparing.
	Update bool
	Logger *slog.Logger
}

// SuiteResult summarizes a batch of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one failed scenario.
type ScenarioFailure struct {
	Name   string   `json:"name,omitempty"`
	Path   string   `json:"path"`
	Errors []string `json:"errors"`
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Name: name, Path: path, Errors: errs})
}

// RunSuite loads and runs every scenario file. A scenario that cannot be
// loaded or run counts as failed; the suite itself never stops early.
func RunSuite(paths []string, opts SuiteOptions) *SuiteResult {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	result := &SuiteResult{}
	for _, path := range paths {
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail("", path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}
		run, err := RunWithLogger(scenario, logger)
		if err != nil {
			result.fail(scenario.Name, path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		if !run.Pass {
			result.fail(scenario.Name, path, run.Errors...)
			continue
		}

		if opts.GoldenDir != "" {
			data, err := Snapshot(scenario.Name, run)
			if err == nil {
				err = CompareGolden(filepath.Join(opts.GoldenDir, scenario.Name+".golden"), data, opts.Update)
			}
			if err != nil {
				result.fail(scenario.Name, path, err.Error())
				continue
			}
		}

		logger.Info("scenario passed", "name", scenario.Name, "events", len(run.Trace))
		result.Passed++
	}
	return result
}
