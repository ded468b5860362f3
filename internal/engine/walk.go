package engine

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/operation"
	"github.com/roach88/stratagem/internal/store"
)

// walk traverses the graph in mode, starting after previous (nil for the
// start). It commits previous, then visits nodes until one returns
// messages or the graph ends. A pause returns the node's messages followed
// by a Process self-message that resumes after it. On termination the
// mode's terminal step runs.
func (cl *call) walk(ctx context.Context, st store.Strategy, mode ir.Mode, previous *uint16, followup *ir.Followup) (msgs []ir.Msg, err error) {
	ctx, span := cl.c.tracer.Start(ctx, "strategy.walk", trace.WithAttributes(
		attribute.String("strategy.address", st.Address),
		attribute.String("walk.mode", string(mode)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	g := cl.tx.Graph(st.Address)
	n, err := g.Len(ctx)
	if err != nil {
		return nil, err
	}
	quota := NewQuotaEnforcer(n + 1)

	desired := ir.NewDenomSet()
	if followup != nil && followup.Withdraw != nil {
		for _, c := range followup.Withdraw.Amounts {
			desired.Merge(ir.NewDenomSet(c.Denom))
		}
	}

	var current *ir.Node
	if previous != nil {
		node, err := g.Load(ctx, *previous)
		if err != nil {
			return nil, fmt.Errorf("resume after node %d: %w", *previous, err)
		}
		if node.Kind() == ir.NodeKindAction {
			if err := cl.commit(ctx, g, &node, mode); err != nil {
				return nil, err
			}
		}
		current = &node
	}

	satisfied := false
	for {
		next, err := g.Next(ctx, current, mode, satisfied)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		if err := quota.Check(st.Address); err != nil {
			return nil, err
		}

		node, err := g.Load(ctx, *next)
		if err != nil {
			return nil, err
		}
		current = &node

		switch node.Kind() {
		case ir.NodeKindCondition:
			satisfied, err = operation.Evaluate(ctx, cl.deps, node.Condition.Condition)
			if err != nil {
				return nil, cl.nodeError(node.Index, "evaluate", err)
			}
			cl.nodeEvent(node, mode, strconv.FormatBool(satisfied))

		case ir.NodeKindAction:
			out, err := cl.run(ctx, g, &node, mode, desired)
			if err != nil {
				return nil, err
			}
			if len(out) == 0 {
				cl.nodeEvent(node, mode, "idle")
				continue
			}
			cl.nodeEvent(node, mode, fmt.Sprintf("messages=%d", len(out)))

			resume, err := cl.self(ir.ExecuteMsg{Process: &ir.ProcessMsg{
				Mode:     mode,
				Previous: ir.Ptr(node.Index),
				Followup: followup,
			}})
			if err != nil {
				return nil, err
			}
			return append(out, resume), nil
		}
	}

	return cl.terminate(ctx, st, mode, followup)
}

// run applies mode's operation method to an action node and saves the
// returned state before any of its messages are dispatched.
func (cl *call) run(ctx context.Context, g *store.Graph, node *ir.Node, mode ir.Mode, desired ir.DenomSet) ([]ir.Msg, error) {
	op, err := operation.For(node.Action.Action)
	if err != nil {
		return nil, cl.nodeError(node.Index, string(mode), err)
	}

	var (
		msgs   []ir.Msg
		action ir.Action
	)
	switch mode {
	case ir.ModeExecute:
		msgs, action, err = op.Execute(ctx, cl.deps)
	case ir.ModeWithdraw:
		msgs, action, err = op.Withdraw(ctx, cl.deps, desired)
	case ir.ModeCancel:
		msgs, action, err = op.Cancel(ctx, cl.deps)
	default:
		return nil, fmt.Errorf("walk: unknown mode %q", mode)
	}
	if err != nil {
		return nil, cl.nodeError(node.Index, string(mode), err)
	}

	node.Action.Action = action
	if err := g.Save(ctx, *node); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (cl *call) commit(ctx context.Context, g *store.Graph, node *ir.Node, mode ir.Mode) error {
	op, err := operation.For(node.Action.Action)
	if err != nil {
		return cl.nodeError(node.Index, "commit", err)
	}
	action, err := op.Commit(ctx, cl.deps)
	if err != nil {
		return cl.nodeError(node.Index, "commit", err)
	}
	node.Action.Action = action
	if err := g.Save(ctx, *node); err != nil {
		return err
	}
	cl.nodeEvent(*node, mode, "commit")
	return nil
}

// terminate runs the terminal step of a finished walk.
func (cl *call) terminate(ctx context.Context, st store.Strategy, mode ir.Mode, followup *ir.Followup) ([]ir.Msg, error) {
	cl.emit(ir.NewEvent("walk",
		"strategy", st.Address,
		"mode", string(mode),
		"outcome", "done",
	))
	if followup == nil {
		return nil, nil
	}

	switch {
	case mode == ir.ModeWithdraw && followup.Withdraw != nil:
		var out ir.Coins
		for _, c := range followup.Withdraw.Amounts {
			amount := c.Amount
			if amount.IsZero() {
				bal, err := cl.deps.Balance(ctx, st.Address, c.Denom)
				if err != nil {
					return nil, fmt.Errorf("withdraw %s: %w", c.Denom, err)
				}
				amount = bal
			}
			if amount.IsZero() {
				continue
			}
			out = out.Add(ir.Coin{Denom: c.Denom, Amount: amount})
		}
		if len(out) == 0 {
			return nil, nil
		}
		cl.emit(ir.NewEvent("withdraw",
			"strategy", st.Address,
			"to", st.Owner,
			"amount", out.String(),
		))
		return []ir.Msg{ir.BankMsg(st.Owner, out...)}, nil

	case mode == ir.ModeCancel && followup.Update != nil:
		cl.emit(ir.NewEvent("update",
			"strategy", st.Address,
			"nodes", strconv.Itoa(len(followup.Update.Nodes)),
		))
		initMsg, err := cl.self(ir.ExecuteInit(followup.Update.Nodes))
		if err != nil {
			return nil, err
		}
		return []ir.Msg{initMsg}, nil
	}
	return nil, nil
}

func (cl *call) nodeEvent(n ir.Node, mode ir.Mode, outcome string) {
	kind := string(n.Kind())
	if n.Action != nil {
		kind = string(n.Action.Action.Kind())
	} else if n.Condition != nil {
		kind = string(n.Condition.Condition.Kind())
	}
	cl.emit(ir.NewEvent("node",
		"strategy", cl.address(),
		"index", strconv.Itoa(int(n.Index)),
		"kind", kind,
		"mode", string(mode),
		"outcome", outcome,
	))
}
