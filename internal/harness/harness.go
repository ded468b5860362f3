package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/roach88/stratagem/internal/compiler"
	"github.com/roach88/stratagem/internal/engine"
	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/logging"
	"github.com/roach88/stratagem/internal/store"
)

// Harness runs one scenario against a fresh in-memory chain.
type Harness struct {
	scenario  *Scenario
	store     *store.Store
	chain     *host.Chain
	addresses map[string]string
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each run gets its own in-memory database and a sequential transaction
// ID generator, so the same scenario always yields the same trace.
//
// Execution flow:
// 1. Seed the world
// 2. Instantiate strategies (these must succeed)
// 3. Apply steps, checking expect clauses
// 4. Evaluate assertions
//
// An error is returned only when the scenario cannot be run at all. Failed
// expectations and assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, logging.NewNop())
}

// RunWithLogger is Run with a caller-supplied logger for chain and step
// logs.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		store:    st,
		chain: host.New(st,
			host.WithIDGenerator(host.NewSequenceGenerator("tx")),
			host.WithLogger(logger),
		),
		addresses: make(map[string]string),
		logger:    logger,
	}

	ctx := context.Background()
	if err := h.chain.Seed(ctx, scenario.World); err != nil {
		return nil, fmt.Errorf("failed to seed world: %w", err)
	}

	result := NewResult()
	if err := h.instantiate(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to instantiate strategies: %w", err)
	}
	if err := h.executeSteps(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Chain:     h.chain,
		Store:     st,
		Addresses: h.addresses,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// address maps a strategy name to its address. Anything else is already
// an address.
func (h *Harness) address(name string) string {
	return resolveAddress(h.addresses, name)
}

func resolveAddress(addresses map[string]string, name string) string {
	if addr, ok := addresses[name]; ok {
		return addr
	}
	return name
}

func (h *Harness) loadDefinition(path string) (*ir.Definition, error) {
	path = h.scenario.resolve(path)
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return compiler.CompileStrategySource(path, src)
}

// instantiate creates every scenario strategy. Setup transactions are
// traced as step 0.
func (h *Harness) instantiate(ctx context.Context, result *Result) error {
	for _, s := range h.scenario.Strategies {
		def, err := h.loadDefinition(s.Definition)
		if err != nil {
			return fmt.Errorf("strategy %s: %w", s.Name, err)
		}
		owner := def.Owner
		if s.Owner != "" {
			owner = s.Owner
		}
		addr, receipt, err := h.chain.Instantiate(ctx, host.InstantiateRequest{
			Manager:    s.Manager,
			Owner:      owner,
			Label:      def.Label,
			Affiliates: def.Affiliates,
			Nodes:      def.Nodes,
		})
		sender := s.Manager
		if sender == "" {
			sender = h.chain.Registry()
		}
		h.record(result, 0, receipt, "instantiate", addr, sender)
		if err != nil {
			return fmt.Errorf("strategy %s: %w", s.Name, err)
		}
		h.addresses[s.Name] = addr
		result.Addresses[s.Name] = addr

		h.logger.Info("strategy instantiated", "name", s.Name, "address", addr, "tx", receipt.TxID)
	}
	return nil
}

// executeSteps applies each step in order. Operator steps (fund, advance,
// fill) must succeed; submit and status outcomes are checked against the
// step's expect clause.
func (h *Harness) executeSteps(ctx context.Context, result *Result) error {
	for i, step := range h.scenario.Steps {
		n := i + 1
		switch {
		case step.Submit != nil:
			req, entry, err := h.request(step.Submit)
			if err != nil {
				return fmt.Errorf("step %d: %w", n, err)
			}
			receipt, err := h.chain.Submit(ctx, req)
			h.record(result, n, receipt, entry, req.Contract, req.Sender)
			h.check(result, n, step.Expect, err)

		case step.Status != nil:
			s := step.Status
			receipt, err := h.chain.SetStatus(ctx, s.Sender, h.address(s.Contract), s.Status)
			entry := "cancel"
			if s.Status == ir.StatusActive {
				entry = "execute"
			}
			h.record(result, n, receipt, entry, h.address(s.Contract), s.Sender)
			h.check(result, n, step.Expect, err)

		case step.Fund != nil:
			coins, err := ir.ParseCoins(step.Fund.Coins)
			if err != nil {
				return fmt.Errorf("step %d: fund: %w", n, err)
			}
			if err := h.chain.Fund(ctx, h.address(step.Fund.Address), coins...); err != nil {
				return fmt.Errorf("step %d: fund: %w", n, err)
			}

		case step.Advance != nil:
			if _, _, err := h.chain.Advance(ctx, step.Advance.Blocks, step.Advance.Seconds); err != nil {
				return fmt.Errorf("step %d: advance: %w", n, err)
			}

		case step.Fill != nil:
			f := step.Fill
			if _, err := h.chain.FillOrder(ctx, h.address(f.Pair), h.address(f.Owner), f.Side, f.Price, f.Amount); err != nil {
				return fmt.Errorf("step %d: fill: %w", n, err)
			}
		}

		h.logger.Info("scenario step completed", "step", n)
	}
	return nil
}

// request builds the host request for a submit step and names its entry.
func (h *Harness) request(sub *SubmitStep) (host.Request, string, error) {
	contract := h.address(sub.Contract)
	funds, err := ir.ParseCoins(sub.Funds)
	if err != nil {
		return host.Request{}, "", fmt.Errorf("funds: %w", err)
	}

	var msg ir.ExecuteMsg
	switch sub.Entry {
	case "":
		raw, err := json.Marshal(sub.Msg)
		if err != nil {
			return host.Request{}, "", fmt.Errorf("msg: %w", err)
		}
		return host.Request{
			Sender:   sub.Sender,
			Contract: contract,
			Msg:      raw,
			Funds:    funds.Normalize(),
		}, rawEntry(sub.Msg), nil
	case "execute":
		msg = ir.ExecuteExecute()
	case "cancel":
		msg = ir.ExecuteCancel()
	case "clear":
		msg = ir.ExecuteClear()
	case "withdraw":
		coins, err := ir.ParseCoins(sub.Coins)
		if err != nil {
			return host.Request{}, "", fmt.Errorf("coins: %w", err)
		}
		msg = ir.ExecuteMsg{Withdraw: &ir.WithdrawMsg{Amounts: coins}}
	case "update":
		def, err := h.loadDefinition(sub.Definition)
		if err != nil {
			return host.Request{}, "", err
		}
		msg = ir.ExecuteMsg{Update: &ir.UpdateMsg{Nodes: def.Nodes}}
	}

	req, err := host.NewRequest(sub.Sender, contract, msg, funds...)
	return req, sub.Entry, err
}

// rawEntry names a raw message by its top-level keys.
func rawEntry(msg map[string]any) string {
	keys := make([]string, 0, len(msg))
	for k := range msg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, "+")
}

// record appends a transaction and its messages to the trace.
func (h *Harness) record(result *Result, step int, r host.Receipt, entry, contract, sender string) {
	if r.TxID == "" {
		return
	}
	result.Trace = append(result.Trace, TraceEvent{
		Type:     EventTransaction,
		Step:     step,
		TxID:     r.TxID,
		Entry:    entry,
		Contract: contract,
		Sender:   sender,
		Status:   string(r.Status),
		Error:    r.Error,
	})
	for _, m := range r.Messages {
		result.Trace = append(result.Trace, TraceEvent{
			Type:    EventMessage,
			Step:    step,
			TxID:    m.TxID,
			Seq:     m.Seq,
			ID:      m.ID,
			Depth:   m.Depth,
			Kind:    m.Kind,
			Sender:  m.Sender,
			Target:  m.Target,
			Payload: m.Payload,
			Events:  m.Events,
		})
	}
}

// check compares a transaction outcome with its expect clause.
func (h *Harness) check(result *Result, step int, expect *ExpectClause, err error) {
	want := StatusOK
	if expect != nil {
		want = expect.Status
	}

	switch {
	case err == nil && want == StatusFailed:
		result.AddError(fmt.Sprintf("step %d: expected failure, transaction succeeded", step))
	case err != nil && want == StatusOK:
		result.AddError(fmt.Sprintf("step %d: unexpected failure: %v", step, err))
	case err != nil && expect != nil:
		if expect.Error != "" && !strings.Contains(err.Error(), expect.Error) {
			result.AddError(fmt.Sprintf("step %d: error %q does not contain %q", step, err.Error(), expect.Error))
		}
		if expect.Code != "" {
			if code := engine.CodeOf(err); string(code) != expect.Code {
				result.AddError(fmt.Sprintf("step %d: error code %q, want %q", step, code, expect.Code))
			}
		}
	}

	h.logger.Debug("step outcome checked", "step", step, "want", want, "err", err)
}
