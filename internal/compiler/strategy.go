package compiler

import (
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/stratagem/internal/ir"
)

// CompileStrategy parses a CUE value into a Definition.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the strategy struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`strategy: { label: "dca", nodes: [...] }`)
//	def, err := CompileStrategy(v.LookupPath(cue.ParsePath("strategy")))
//
// Amounts and prices may be written as CUE strings or integers. CUE floats
// are rejected; write fractional prices as strings ("1.25").
func CompileStrategy(v cue.Value) (*ir.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	nodesVal := v.LookupPath(cue.ParsePath("nodes"))
	if !nodesVal.Exists() {
		return nil, &CompileError{Field: "nodes", Message: "nodes are required", Pos: v.Pos()}
	}
	if err := rejectFloats(nodesVal); err != nil {
		return nil, err
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var def ir.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, &CompileError{Field: "strategy", Message: err.Error(), Pos: v.Pos()}
	}
	if def.Label == "" {
		return nil, &CompileError{Field: "label", Message: "label is required", Pos: v.Pos()}
	}
	return &def, nil
}

// CompileStrategySource compiles CUE source holding a top-level `strategy`
// field. filename is used for error positions only.
func CompileStrategySource(filename string, src []byte) (*ir.Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	strategy := v.LookupPath(cue.ParsePath("strategy"))
	if !strategy.Exists() {
		return nil, &CompileError{Field: "strategy", Message: "no top-level strategy field", Pos: v.Pos()}
	}
	return CompileStrategy(strategy)
}

// rejectFloats walks v and fails on the first float literal.
func rejectFloats(v cue.Value) error {
	var found error
	v.Walk(func(x cue.Value) bool {
		if found != nil {
			return false
		}
		if x.Kind() == cue.FloatKind {
			found = &CompileError{
				Field:   x.Path().String(),
				Message: "floats are forbidden; write decimals as strings",
				Pos:     x.Pos(),
			}
			return false
		}
		return true
	}, nil)
	return found
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
