package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/stratagem/internal/compiler"
	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/operation"
	"github.com/roach88/stratagem/internal/store"
)

const tracerName = "github.com/roach88/stratagem/internal/engine"

// Request is the context of one contract call: who sent it, what funds
// came with it (already credited to the contract), and the block it runs
// in. Env.Contract is the strategy's address.
type Request struct {
	Sender string
	Funds  ir.Coins
	Env    ir.Env
}

// Response is what a call asks the host to dispatch, in order, plus the
// trace events it produced.
type Response struct {
	Messages []ir.Msg
	Events   []ir.Event
}

// Contract is the strategy contract. It holds no state of its own: every
// call reads and writes the strategy through the host's transaction, so
// a failed transaction rolls back the graph, the guard, and the ledger
// together.
type Contract struct {
	tracer trace.Tracer
	logger *slog.Logger
}

// Option configures a Contract.
type Option func(*Contract)

// WithTracer sets the tracer used for call and walk spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Contract) {
		c.tracer = t
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Contract) {
		c.logger = l
	}
}

// New creates a Contract.
func New(opts ...Option) *Contract {
	c := &Contract{
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call is the state of one Execute invocation.
type call struct {
	c      *Contract
	tx     *store.Tx
	deps   operation.Deps
	req    Request
	events []ir.Event
}

// Execute handles one execute message sent to the strategy at
// req.Env.Contract. q must read through tx.
func (c *Contract) Execute(ctx context.Context, tx *store.Tx, q operation.Querier, req Request, msg ir.ExecuteMsg) (resp Response, err error) {
	entry := msg.Name()
	ctx, span := c.tracer.Start(ctx, "strategy."+entry, trace.WithAttributes(
		attribute.String("strategy.address", req.Env.Contract),
		attribute.String("strategy.sender", req.Sender),
		attribute.Int64("block.height", int64(req.Env.Height)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("strategy.messages", len(resp.Messages)))
		span.End()
	}()

	cl := &call{
		c:    c,
		tx:   tx,
		deps: operation.Deps{Querier: q, Env: req.Env, Logger: c.logger.With("strategy", req.Env.Contract)},
		req:  req,
	}

	var msgs []ir.Msg
	switch entry {
	case "instantiate":
		msgs, err = cl.instantiate(ctx, *msg.Instantiate)
	case "init":
		msgs, err = cl.init(ctx, msg.Init.Nodes)
	case "execute":
		msgs, err = cl.execute(ctx)
	case "update":
		msgs, err = cl.update(ctx, msg.Update.Nodes)
	case "withdraw":
		msgs, err = cl.withdraw(ctx, *msg.Withdraw)
	case "cancel":
		msgs, err = cl.cancel(ctx)
	case "process":
		msgs, err = cl.process(ctx, *msg.Process)
	case "clear":
		msgs, err = cl.clear(ctx)
	default:
		return Response{}, fmt.Errorf("execute message must set exactly one entry")
	}
	if err != nil {
		c.logger.Debug("strategy call failed",
			"strategy", req.Env.Contract,
			"entry", entry,
			"sender", req.Sender,
			"error", err,
		)
		return Response{}, err
	}

	c.logger.Debug("strategy call",
		"strategy", req.Env.Contract,
		"entry", entry,
		"sender", req.Sender,
		"messages", len(msgs),
	)
	return Response{Messages: msgs, Events: cl.events}, nil
}

func (cl *call) address() string { return cl.req.Env.Contract }

func (cl *call) emit(e ir.Event) { cl.events = append(cl.events, e) }

// self builds a message from the contract to itself.
func (cl *call) self(msg ir.ExecuteMsg) (ir.Msg, error) {
	return ir.WasmMsg(cl.address(), msg)
}

// withClear appends the Clear that releases the guard once every message
// before it, including all resumptions, has been dispatched.
func (cl *call) withClear(msgs []ir.Msg) ([]ir.Msg, error) {
	clr, err := cl.self(ir.ExecuteClear())
	if err != nil {
		return nil, err
	}
	return append(msgs, clr), nil
}

func (cl *call) instantiate(ctx context.Context, m ir.InstantiateMsg) ([]ir.Msg, error) {
	if err := compiler.ValidateAffiliates(m.Affiliates); err != nil {
		return nil, NewGraphValidationError(cl.address(), err)
	}
	if err := validateStatic(m.Nodes); err != nil {
		return nil, NewGraphValidationError(cl.address(), err)
	}

	owner := m.Owner
	if owner == "" {
		owner = cl.req.Sender
	}
	if err := cl.tx.CreateStrategy(ctx, store.Strategy{
		Address:    cl.address(),
		Owner:      owner,
		Manager:    cl.req.Sender,
		Label:      m.Label,
		Affiliates: m.Affiliates,
		Guard:      true,
		CreatedAt:  cl.req.Env.Height,
	}); err != nil {
		return nil, err
	}
	cl.emit(ir.NewEvent("instantiate",
		"strategy", cl.address(),
		"owner", owner,
		"manager", cl.req.Sender,
	))

	initMsg, err := cl.self(ir.ExecuteInit(m.Nodes))
	if err != nil {
		return nil, err
	}
	return cl.withClear([]ir.Msg{initMsg})
}

// init runs every node's Init, stores the graph, records the denom sets,
// and starts an execute walk.
func (cl *call) init(ctx context.Context, nodes []ir.Node) ([]ir.Msg, error) {
	st, err := cl.authorize(ctx, "init", roleSelf)
	if err != nil {
		return nil, err
	}
	if err := compiler.ValidateGraph(nodes); err != nil {
		return nil, NewGraphValidationError(st.Address, err)
	}

	initialized := make([]ir.Node, len(nodes))
	denoms, escrowed := ir.NewDenomSet(), ir.NewDenomSet()
	for i, n := range nodes {
		switch n.Kind() {
		case ir.NodeKindAction:
			op, err := operation.For(n.Action.Action)
			if err != nil {
				return nil, cl.nodeError(n.Index, "init", err)
			}
			action, err := op.Init(ctx, cl.deps, st.Affiliates)
			if err != nil {
				return nil, cl.nodeError(n.Index, "init", err)
			}
			initialized[i] = ir.Node{Index: n.Index, Action: &ir.ActionNode{Action: action, Next: n.Action.Next}}

			ready, err := operation.For(action)
			if err != nil {
				return nil, cl.nodeError(n.Index, "init", err)
			}
			d, err := ready.Denoms(ctx, cl.deps)
			if err != nil {
				return nil, cl.nodeError(n.Index, "init", err)
			}
			e, err := ready.Escrowed(ctx, cl.deps)
			if err != nil {
				return nil, cl.nodeError(n.Index, "init", err)
			}
			denoms.Merge(d)
			escrowed.Merge(e)
		case ir.NodeKindCondition:
			if err := operation.CheckCondition(ctx, cl.deps, n.Condition.Condition); err != nil {
				return nil, cl.nodeError(n.Index, "init", err)
			}
			initialized[i] = n
		}
	}

	if err := cl.tx.Graph(st.Address).Init(ctx, initialized); err != nil {
		return nil, NewGraphValidationError(st.Address, err)
	}
	if err := cl.tx.SetDenoms(ctx, st.Address, denoms, escrowed, cl.req.Env.Height); err != nil {
		return nil, err
	}
	hash, err := ir.GraphHash(initialized)
	if err != nil {
		return nil, err
	}
	cl.emit(ir.NewEvent("init",
		"strategy", st.Address,
		"nodes", fmt.Sprintf("%d", len(nodes)),
		"graph_hash", hash,
	))

	return cl.walk(ctx, st, ir.ModeExecute, nil, nil)
}

func (cl *call) execute(ctx context.Context) ([]ir.Msg, error) {
	st, err := cl.authorize(ctx, "execute", roleManager|roleOwner)
	if err != nil {
		return nil, err
	}
	if err := cl.lock(ctx, st, "execute"); err != nil {
		return nil, err
	}
	msgs, err := cl.walk(ctx, st, ir.ModeExecute, nil, nil)
	if err != nil {
		return nil, err
	}
	return cl.withClear(msgs)
}

// update cancels every open position of the current graph, then installs
// nodes through a self-sent Init once the cancel walk terminates.
func (cl *call) update(ctx context.Context, nodes []ir.Node) ([]ir.Msg, error) {
	st, err := cl.authorize(ctx, "update", roleManager|roleOwner)
	if err != nil {
		return nil, err
	}
	if err := validateStatic(nodes); err != nil {
		return nil, NewGraphValidationError(st.Address, err)
	}
	if err := cl.lock(ctx, st, "update"); err != nil {
		return nil, err
	}
	msgs, err := cl.walk(ctx, st, ir.ModeCancel, nil, &ir.Followup{Update: &ir.UpdateMsg{Nodes: nodes}})
	if err != nil {
		return nil, err
	}
	return cl.withClear(msgs)
}

func (cl *call) withdraw(ctx context.Context, m ir.WithdrawMsg) ([]ir.Msg, error) {
	st, err := cl.authorize(ctx, "withdraw", roleOwner)
	if err != nil {
		return nil, err
	}
	if err := m.Amounts.Validate(); err != nil {
		return nil, fmt.Errorf("withdraw from %s: %w", st.Address, err)
	}
	for _, c := range m.Amounts {
		if st.Escrowed.Has(c.Denom) {
			return nil, NewEscrowViolationError(st.Address, c.Denom)
		}
	}
	if err := cl.lock(ctx, st, "withdraw"); err != nil {
		return nil, err
	}
	msgs, err := cl.walk(ctx, st, ir.ModeWithdraw, nil, &ir.Followup{Withdraw: &m})
	if err != nil {
		return nil, err
	}
	return cl.withClear(msgs)
}

func (cl *call) cancel(ctx context.Context) ([]ir.Msg, error) {
	st, err := cl.authorize(ctx, "cancel", roleManager|roleOwner)
	if err != nil {
		return nil, err
	}
	if err := cl.lock(ctx, st, "cancel"); err != nil {
		return nil, err
	}
	msgs, err := cl.walk(ctx, st, ir.ModeCancel, nil, nil)
	if err != nil {
		return nil, err
	}
	return cl.withClear(msgs)
}

// process resumes a walk paused after node m.Previous.
func (cl *call) process(ctx context.Context, m ir.ProcessMsg) ([]ir.Msg, error) {
	st, err := cl.authorize(ctx, "process", roleSelf)
	if err != nil {
		return nil, err
	}
	if !m.Mode.Valid() {
		return nil, fmt.Errorf("process: unknown mode %q", m.Mode)
	}
	return cl.walk(ctx, st, m.Mode, m.Previous, m.Followup)
}

func (cl *call) clear(ctx context.Context) ([]ir.Msg, error) {
	st, err := cl.authorize(ctx, "clear", roleSelf|roleOwner)
	if err != nil {
		return nil, err
	}
	if err := cl.tx.SetGuard(ctx, st.Address, false, cl.req.Env.Height); err != nil {
		return nil, err
	}
	cl.emit(ir.NewEvent("clear", "strategy", st.Address))
	return nil, nil
}

// validateStatic checks graph structure and operation parameters without
// consulting the chain.
func validateStatic(nodes []ir.Node) error {
	if err := compiler.ValidateGraph(nodes); err != nil {
		return err
	}
	return compiler.Join(compiler.ValidateOperations(nodes))
}

// nodeError classifies a failure of node index: parameter validation
// failures are graph errors, everything else is an operation failure.
func (cl *call) nodeError(index uint16, stage string, err error) error {
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return NewGraphValidationError(cl.address(), fmt.Errorf("node %d: %w", index, err))
	}
	return NewOperationExecutionError(cl.address(), index, stage, err)
}
