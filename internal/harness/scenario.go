package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/ir"
)

// Scenario is a scripted run against a fresh chain: seed the world,
// instantiate strategies, apply steps, then check the trace and the final
// state.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// World seeds balances, pairs, maker orders, and oracle prices.
	World host.World `yaml:"world,omitempty"`

	// Strategies are instantiated in order before the steps run. Their
	// names can be used wherever a step or assertion takes an address.
	Strategies []StrategySetup `yaml:"strategies"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`

	// dir resolves definition paths.
	dir string
}

// StrategySetup instantiates one strategy from a CUE definition.
type StrategySetup struct {
	Name       string `yaml:"name"`
	Definition string `yaml:"definition"`
	Manager    string `yaml:"manager,omitempty"`
	// Owner overrides the definition's owner.
	Owner string `yaml:"owner,omitempty"`
}

// Step is one action against the chain. Exactly one of its action fields
// is set.
type Step struct {
	Submit  *SubmitStep  `yaml:"submit,omitempty"`
	Status  *StatusStep  `yaml:"status,omitempty"`
	Fund    *FundStep    `yaml:"fund,omitempty"`
	Advance *AdvanceStep `yaml:"advance,omitempty"`
	Fill    *FillStep    `yaml:"fill,omitempty"`

	// Expect applies to submit and status steps. Nil expects success.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// SubmitStep sends a strategy entry or a raw message to a contract.
type SubmitStep struct {
	// Entry is execute, cancel, clear, withdraw, or update. Empty sends Msg
	// as is.
	Entry    string `yaml:"entry,omitempty"`
	Contract string `yaml:"contract"`
	Sender   string `yaml:"sender"`
	Funds    string `yaml:"funds,omitempty"`
	// Coins are the withdraw amounts.
	Coins string `yaml:"coins,omitempty"`
	// Definition is the replacement graph for update.
	Definition string         `yaml:"definition,omitempty"`
	Msg        map[string]any `yaml:"msg,omitempty"`
}

// StatusStep changes a strategy's registry status.
type StatusStep struct {
	Contract string            `yaml:"contract"`
	Sender   string            `yaml:"sender"`
	Status   ir.StrategyStatus `yaml:"status"`
}

// FundStep mints coins to an address.
type FundStep struct {
	Address string `yaml:"address"`
	Coins   string `yaml:"coins"`
}

// AdvanceStep moves the block clock.
type AdvanceStep struct {
	Blocks  uint64 `yaml:"blocks"`
	Seconds int64  `yaml:"seconds"`
}

// FillStep fills part of a resting order.
type FillStep struct {
	Pair   string  `yaml:"pair"`
	Owner  string  `yaml:"owner"`
	Side   ir.Side `yaml:"side"`
	Price  ir.Dec  `yaml:"price"`
	Amount ir.Dec  `yaml:"amount"`
}

// ExpectClause states the outcome of a submit or status step.
type ExpectClause struct {
	// Status is ok or failed.
	Status string `yaml:"status"`
	// Error must appear in the failure text.
	Error string `yaml:"error,omitempty"`
	// Code is the engine error code, e.g. UNAUTHORIZED.
	Code string `yaml:"code,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Kind and Target select messages (trace_contains, trace_count).
	Kind   string `yaml:"kind,omitempty"`
	Target string `yaml:"target,omitempty"`
	// Sender optionally narrows trace_contains.
	Sender string `yaml:"sender,omitempty"`

	Count int `yaml:"count,omitempty"`

	// Steps is the expected kind@target order (trace_order).
	Steps []string `yaml:"steps,omitempty"`

	// Address and Equals check a bank balance (balance).
	Address string `yaml:"address,omitempty"`
	Equals  string `yaml:"equals,omitempty"`

	// Table, Where, and Expect check a state row (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertBalance       = "balance"
	AssertFinalState    = "final_state"
)

// Expected statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// LoadScenario reads and parses a scenario YAML file. Definition paths are
// resolved against the file's directory. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads a scenario, resolving definition paths
// against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.dir = basePath

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// resolve returns path relative to the scenario directory.
func (s *Scenario) resolve(path string) string {
	if filepath.IsAbs(path) || s.dir == "" {
		return path
	}
	return filepath.Join(s.dir, path)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Strategies))
	for i, st := range s.Strategies {
		if st.Name == "" {
			return fmt.Errorf("strategies[%d]: name is required", i)
		}
		if names[st.Name] {
			return fmt.Errorf("strategies[%d]: duplicate name %q", i, st.Name)
		}
		names[st.Name] = true
		if st.Definition == "" {
			return fmt.Errorf("strategies[%d]: definition is required", i)
		}
		if _, err := os.Stat(s.resolve(st.Definition)); os.IsNotExist(err) {
			return fmt.Errorf("strategies[%d]: definition not found: %s", i, st.Definition)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	set := 0
	for _, ok := range []bool{step.Submit != nil, step.Status != nil, step.Fund != nil, step.Advance != nil, step.Fill != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of submit, status, fund, advance, fill is required", i)
	}

	switch {
	case step.Submit != nil:
		sub := step.Submit
		if sub.Contract == "" || sub.Sender == "" {
			return fmt.Errorf("steps[%d].submit: contract and sender are required", i)
		}
		switch sub.Entry {
		case "":
			if len(sub.Msg) == 0 {
				return fmt.Errorf("steps[%d].submit: entry or msg is required", i)
			}
		case "execute", "cancel", "clear", "withdraw":
		case "update":
			if sub.Definition == "" {
				return fmt.Errorf("steps[%d].submit: update needs a definition", i)
			}
		default:
			return fmt.Errorf("steps[%d].submit: unknown entry %q", i, sub.Entry)
		}
	case step.Status != nil:
		if !step.Status.Status.Valid() {
			return fmt.Errorf("steps[%d].status: unknown status %q", i, step.Status.Status)
		}
	case step.Fund != nil:
		if step.Fund.Address == "" || step.Fund.Coins == "" {
			return fmt.Errorf("steps[%d].fund: address and coins are required", i)
		}
	case step.Fill != nil:
		if step.Fill.Pair == "" || step.Fill.Owner == "" {
			return fmt.Errorf("steps[%d].fill: pair and owner are required", i)
		}
	}

	if e := step.Expect; e != nil {
		if step.Submit == nil && step.Status == nil {
			return fmt.Errorf("steps[%d].expect: only submit and status steps have an outcome", i)
		}
		if e.Status != StatusOK && e.Status != StatusFailed {
			return fmt.Errorf("steps[%d].expect: status must be ok or failed", i)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" && a.Target == "" {
			return fmt.Errorf("assertions[%d]: kind or target is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Steps) == 0 {
			return fmt.Errorf("assertions[%d]: steps list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" && a.Target == "" {
			return fmt.Errorf("assertions[%d]: kind or target is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertBalance:
		if a.Address == "" {
			return fmt.Errorf("assertions[%d]: address is required for balance", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
