package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/stratagem/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the compiled definition with its content hash.
type CompilationResult struct {
	Definition *ir.Definition `json:"definition"`
	GraphHash  string         `json:"graph_hash"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <definition.cue>",
		Short: "Compile a CUE definition to canonical IR",
		Long: `Compile a CUE strategy definition to canonical JSON IR.

The output can be passed to instantiate and update in place of the CUE
source. The graph hash identifies the node list by content.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the IR to this file instead of stdout")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	def, err := LoadDefinition(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			if outErr := f.Error(loadErr.Code, loadErr.Error(), nil); outErr != nil {
				return outErr
			}
		}
		return WrapExitError(ExitFailure, "compilation failed", err)
	}
	if errs := CheckDefinition(def); len(errs) > 0 {
		if err := f.Error(ErrCodeInvalid, fmt.Sprintf("%d validation error(s)", len(errs)), errs); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	hash, err := ir.GraphHash(def.Nodes)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to hash graph", err)
	}

	if opts.Output == "" {
		if f.Format == "json" {
			return f.Success(CompilationResult{Definition: def, GraphHash: hash}, nil)
		}
		data, err := ir.MarshalCanonical(def)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to marshal definition", err)
		}
		fmt.Fprintln(f.Writer, string(data))
		return nil
	}

	data, err := ir.MarshalCanonical(def)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to marshal definition", err)
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	return f.Success(CompilationResult{Definition: def, GraphHash: hash}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ compiled %s (%d node(s)) to %s\n", def.Label, len(def.Nodes), opts.Output)
		fmt.Fprintf(w, "  graph hash: %s\n", hash)
	})
}
