package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stratagem/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Label  string                      `json:"label,omitempty"`
	Nodes  int                         `json:"nodes"`
	Size   int                         `json:"size"`
	Valid  bool                        `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <definition.cue>",
		Short: "Validate a strategy definition",
		Long: `Compile a CUE strategy definition and check it without touching the chain.

Checks the graph structure (index consistency, edges, acyclicity, size),
every operation's parameters, and the affiliates. All errors are reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	def, err := LoadDefinition(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			if outErr := f.Error(loadErr.Code, loadErr.Error(), nil); outErr != nil {
				return outErr
			}
			if loadErr.Code == ErrCodeNotFound {
				return WrapExitError(ExitCommandError, "definition not found", err)
			}
			return WrapExitError(ExitFailure, "compilation failed", err)
		}
		return WrapExitError(ExitCommandError, "failed to load definition", err)
	}

	result := ValidationResult{Label: def.Label, Nodes: len(def.Nodes)}
	for _, n := range def.Nodes {
		result.Size += n.Size()
	}
	result.Errors = CheckDefinition(def)
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		if err := f.Error(ErrCodeInvalid, fmt.Sprintf("%d validation error(s)", len(result.Errors)), result.Errors); err != nil {
			return err
		}
		if f.Format != "json" {
			for _, e := range result.Errors {
				fmt.Fprintf(f.Writer, "  %s\n", e.Error())
			}
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s: %d node(s), size %d\n", result.Label, result.Nodes, result.Size)
	})
}
