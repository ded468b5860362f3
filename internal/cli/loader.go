package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue/token"
	"github.com/go-playground/validator/v10"

	"github.com/roach88/stratagem/internal/compiler"
	"github.com/roach88/stratagem/internal/ir"
)

// LoadError represents an error that occurred while loading a definition.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDefinition reads a strategy definition: CUE source, or the JSON IR
// written by compile when path ends in .json.
func LoadDefinition(path string) (*ir.Definition, error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definition not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error reading definition: %v", err)}
	}

	if filepath.Ext(path) == ".json" {
		var def ir.Definition
		if err := json.Unmarshal(src, &def); err != nil {
			return nil, &LoadError{Code: ErrCodeCompile, Message: fmt.Sprintf("decode %s: %v", path, err)}
		}
		return &def, nil
	}

	def, err := compiler.CompileStrategySource(path, src)
	if err != nil {
		var cErr *compiler.CompileError
		if errors.As(err, &cErr) {
			return nil, &LoadError{Code: ErrCodeCompile, Message: fmt.Sprintf("%s: %s", cErr.Field, cErr.Message), Pos: cErr.Pos}
		}
		return nil, &LoadError{Code: ErrCodeCompile, Message: err.Error()}
	}
	return def, nil
}

// CheckDefinition runs every chain-independent check on def: graph
// structure, operation parameters, and affiliates. All errors are
// collected.
func CheckDefinition(def *ir.Definition) []compiler.ValidationError {
	var errs []compiler.ValidationError
	var verr compiler.ValidationError
	if err := compiler.ValidateGraph(def.Nodes); errors.As(err, &verr) {
		errs = append(errs, verr)
	}
	errs = append(errs, compiler.ValidateOperations(def.Nodes)...)
	if err := compiler.ValidateAffiliates(def.Affiliates); errors.As(err, &verr) {
		errs = append(errs, verr)
	}
	return errs
}

var affiliateValidator = validator.New()

// parseAffiliate parses "address:bps[:label]".
func parseAffiliate(s string) (ir.Affiliate, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return ir.Affiliate{}, fmt.Errorf("invalid affiliate %q: expected address:bps[:label]", s)
	}
	bps, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return ir.Affiliate{}, fmt.Errorf("invalid affiliate %q: bps: %w", s, err)
	}
	a := ir.Affiliate{Address: parts[0], Bps: bps}
	if len(parts) == 3 {
		a.Label = parts[2]
	}
	if err := affiliateValidator.Struct(a); err != nil {
		return ir.Affiliate{}, fmt.Errorf("invalid affiliate %q: %w", s, err)
	}
	return a, nil
}
