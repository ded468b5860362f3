package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/stratagem/internal/engine"
	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/metrics"
	"github.com/roach88/stratagem/internal/store"
)

// Host errors. Each aborts the transaction that raised it.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrUnknownContract    = errors.New("unknown contract")
	ErrMessageQuota       = errors.New("message quota exceeded")
	ErrReturnBelowMinimum = errors.New("return below minimum")
	ErrTransactionPanic   = errors.New("transaction panicked")
	ErrInvalidFunds       = errors.New("invalid funds")
)

const (
	// DefaultMaxMessages bounds the messages one transaction may dispatch.
	DefaultMaxMessages = 256

	// DefaultRegistry is the address of the strategy registry.
	DefaultRegistry = "registry"

	// ThorchainModule is the target recorded for deposit messages.
	ThorchainModule = "thorchain"
)

// Request is one submitted transaction: Msg is executed on Contract with
// Funds attached.
type Request struct {
	Sender   string          `json:"sender"`
	Contract string          `json:"contract"`
	Msg      json.RawMessage `json:"msg"`
	Funds    ir.Coins        `json:"funds,omitempty"`
}

// NewRequest encodes msg into a Request.
func NewRequest(sender, contract string, msg ir.ExecuteMsg, funds ...ir.Coin) (Request, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s message: %w", msg.Name(), err)
	}
	return Request{Sender: sender, Contract: contract, Msg: raw, Funds: ir.Coins(funds).Normalize()}, nil
}

// Receipt is the outcome of a transaction.
type Receipt struct {
	TxID     string                `json:"tx_id"`
	Status   store.TxStatus        `json:"status"`
	Height   uint64                `json:"height"`
	Time     time.Time             `json:"time"`
	Error    string                `json:"error,omitempty"`
	Messages []store.MessageRecord `json:"messages,omitempty"`
	Events   []ir.Event            `json:"events,omitempty"`
}

// Chain simulates the host chain the strategy contracts run on: a bank
// ledger, order-book pairs, a cross-chain deposit module, an oracle, and
// the strategy registry.
//
// Chain is single-writer. Submit applies one transaction at a time, and
// every transaction is one store transaction, so any error leaves every
// table as it was.
type Chain struct {
	store    *store.Store
	contract *engine.Contract
	ids      IDGenerator
	detector *ContinuationDetector
	queue    *requestQueue
	logger   *slog.Logger
	tracer   trace.Tracer

	maxMessages int
	registry    string
	thor        thorParams

	mu sync.Mutex
}

// Option configures a Chain.
type Option func(*Chain)

// WithIDGenerator sets the transaction ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Chain) { c.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Chain) { c.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Chain) { c.tracer = t }
}

// WithContract sets the strategy contract implementation.
func WithContract(ct *engine.Contract) Option {
	return func(c *Chain) { c.contract = ct }
}

// WithMaxMessages bounds the messages one transaction may dispatch.
func WithMaxMessages(n int) Option {
	return func(c *Chain) { c.maxMessages = n }
}

// WithRegistry sets the registry address.
func WithRegistry(addr string) Option {
	return func(c *Chain) { c.registry = addr }
}

// WithThorchainFee sets the deposit module's fee in basis points and the
// smallest swap it quotes.
func WithThorchainFee(bps uint64, minAmountIn ir.Dec) Option {
	return func(c *Chain) {
		c.thor.feeBps = bps
		c.thor.minAmountIn = minAmountIn
	}
}

// New creates a chain over s.
func New(s *store.Store, opts ...Option) *Chain {
	c := &Chain{
		store:       s,
		ids:         UUIDv7Generator{},
		detector:    NewContinuationDetector(),
		queue:       newRequestQueue(),
		logger:      slog.Default(),
		tracer:      otel.Tracer("github.com/roach88/stratagem/internal/host"),
		maxMessages: DefaultMaxMessages,
		registry:    DefaultRegistry,
		thor:        defaultThorParams(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.contract == nil {
		c.contract = engine.New(engine.WithLogger(c.logger), engine.WithTracer(c.tracer))
	}
	return c
}

// Registry returns the registry address.
func (c *Chain) Registry() string {
	return c.registry
}

// Store returns the underlying store.
func (c *Chain) Store() *store.Store {
	return c.store
}

// Submit applies one transaction.
//
// A rejected transaction returns a failed Receipt together with the error.
// Its state changes are rolled back and the failure is journaled.
func (c *Chain) Submit(ctx context.Context, req Request) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submit(ctx, req, nil)
}

// setupFunc runs inside the transaction before dispatch.
type setupFunc func(ctx context.Context, tx *store.Tx) error

func (c *Chain) submit(ctx context.Context, req Request, setup setupFunc) (Receipt, error) {
	start := time.Now()
	txID := c.ids.Generate()
	entry := entryOf(req.Msg)

	ctx, span := c.tracer.Start(ctx, "chain.submit", trace.WithAttributes(
		attribute.String("tx.id", txID),
		attribute.String("tx.sender", req.Sender),
		attribute.String("tx.contract", req.Contract),
		attribute.String("tx.entry", entry),
	))
	defer span.End()

	rec := store.TxRecord{
		ID:            txID,
		Sender:        req.Sender,
		Contract:      req.Contract,
		Entry:         entry,
		Msg:           req.Msg,
		Funds:         req.Funds.Normalize(),
		Status:        store.TxOK,
		EngineVersion: ir.EngineVersion,
		SchemaVersion: ir.SchemaVersion,
	}

	run, err := c.apply(ctx, req, &rec, setup)
	c.detector.Clear(txID)
	if err != nil {
		rec.Status = store.TxFailed
		rec.Error = err.Error()
	}
	metrics.RecordTransaction(entry, string(rec.Status), time.Since(start).Seconds())

	receipt := Receipt{TxID: txID, Status: rec.Status, Height: rec.Height, Time: rec.Time, Error: rec.Error}
	if err != nil {
		c.journalFailure(ctx, rec)
		metrics.RecordStrategyError(string(engine.CodeOf(err)))

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("transaction rejected",
			"tx_id", txID,
			"contract", req.Contract,
			"entry", entry,
			"error", err,
		)
		return receipt, fmt.Errorf("transaction %s: %w", txID, err)
	}

	receipt.Messages = run.messages
	receipt.Events = run.events
	span.SetAttributes(attribute.Int("tx.messages", len(run.messages)))
	c.logger.Info("transaction committed",
		"tx_id", txID,
		"contract", req.Contract,
		"entry", entry,
		"messages", len(run.messages),
		"height", rec.Height,
	)
	return receipt, nil
}

// apply runs the transaction in one store transaction and commits it.
// rec gains the block the transaction ran in.
// A panic while applying is recovered and returned as ErrTransactionPanic;
// the store transaction is rolled back on every path except a commit.
func (c *Chain) apply(ctx context.Context, req Request, rec *store.TxRecord, setup setupFunc) (run *txRun, err error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("transaction panicked", "tx_id", rec.ID, "panic", p, "stack", string(debug.Stack()))
			run, err = nil, fmt.Errorf("%w: %v", ErrTransactionPanic, p)
		}
		if !committed {
			_ = tx.Rollback()
		}
	}()

	run, err = c.applyIn(ctx, tx, req, rec, setup)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return run, nil
}

func (c *Chain) applyIn(ctx context.Context, tx *store.Tx, req Request, rec *store.TxRecord, setup setupFunc) (*txRun, error) {
	height, at, err := tx.ChainState(ctx)
	if err != nil {
		return nil, err
	}
	rec.Height, rec.Time = height, at

	if err := tx.InsertTransaction(ctx, *rec); err != nil {
		return nil, err
	}
	if setup != nil {
		if err := setup(ctx, tx); err != nil {
			return nil, err
		}
	}

	run := &txRun{
		chain:  c,
		tx:     tx,
		id:     rec.ID,
		clock:  NewClock(),
		height: height,
		time:   at,
	}
	top := ir.Msg{Wasm: &ir.WasmExecute{
		ContractAddr: req.Contract,
		Msg:          req.Msg,
		Funds:        req.Funds.Normalize(),
	}}
	if err := run.dispatch(ctx, req.Sender, top, 0); err != nil {
		return nil, err
	}
	return run, nil
}

// journalFailure records a rolled-back transaction in its own store
// transaction. A journal error is logged; the original error stands.
func (c *Chain) journalFailure(ctx context.Context, rec store.TxRecord) {
	if rec.Height == 0 {
		_ = c.store.View(ctx, func(tx *store.Tx) error {
			h, at, err := tx.ChainState(ctx)
			rec.Height, rec.Time = h, at
			return err
		})
	}
	if len(rec.Msg) == 0 || !json.Valid(rec.Msg) {
		rec.Msg = json.RawMessage(`null`)
	}
	err := c.store.Update(ctx, func(tx *store.Tx) error {
		return tx.InsertTransaction(ctx, rec)
	})
	if err != nil {
		c.logger.Error("failed to journal rejected transaction", "tx_id", rec.ID, "error", err)
	}
}

// entryOf names the strategy entry a raw execute message selects.
func entryOf(raw json.RawMessage) string {
	var msg ir.ExecuteMsg
	if err := json.Unmarshal(raw, &msg); err == nil {
		if name := msg.Name(); name != "" {
			return name
		}
	}
	var fin ir.FinExecuteMsg
	if err := json.Unmarshal(raw, &fin); err == nil {
		switch {
		case fin.Swap != nil && fin.Order == nil:
			return "swap"
		case fin.Order != nil && fin.Swap == nil:
			return "order"
		}
	}
	return "unknown"
}

// txRun is the state of one transaction in flight.
type txRun struct {
	chain  *Chain
	tx     *store.Tx
	id     string
	clock  *Clock
	height uint64
	time   time.Time

	messages []store.MessageRecord
	events   []ir.Event
}

func (r *txRun) env(contract string) ir.Env {
	return ir.Env{Contract: contract, Height: r.height, Time: r.time}
}

// dispatch handles msg from sender, journals it, and then dispatches the
// messages it produced, depth first.
func (r *txRun) dispatch(ctx context.Context, sender string, msg ir.Msg, depth int) error {
	seq := r.clock.Next()
	if seq >= r.chain.maxMessages {
		return fmt.Errorf("%w: limit is %d", ErrMessageQuota, r.chain.maxMessages)
	}
	kind := msg.Kind()
	metrics.RecordMessage(kind)

	var (
		target   string
		children []ir.Msg
		events   []ir.Event
		err      error
	)
	switch {
	case msg.Bank != nil && msg.Wasm == nil && msg.Deposit == nil:
		target = msg.Bank.ToAddress
		err = r.transfer(ctx, sender, target, msg.Bank.Amount)
	case msg.Wasm != nil && msg.Bank == nil && msg.Deposit == nil:
		target = msg.Wasm.ContractAddr
		children, events, err = r.execute(ctx, sender, *msg.Wasm, depth)
	case msg.Deposit != nil && msg.Bank == nil && msg.Wasm == nil:
		target = ThorchainModule
		events, err = r.deposit(ctx, sender, *msg.Deposit)
	default:
		return fmt.Errorf("message must set exactly one of bank, wasm, or deposit")
	}
	if err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %d: %w", seq, err)
	}
	id, err := ir.MessageID(r.id, seq, sender, target, json.RawMessage(payload))
	if err != nil {
		return err
	}
	rec := store.MessageRecord{
		TxID:    r.id,
		Seq:     seq,
		ID:      id,
		Depth:   depth,
		Sender:  sender,
		Target:  target,
		Kind:    kind,
		Payload: payload,
		Events:  events,
	}
	if err := r.tx.InsertMessage(ctx, rec); err != nil {
		return err
	}
	r.messages = append(r.messages, rec)
	r.events = append(r.events, events...)

	for _, child := range children {
		if err := r.dispatch(ctx, target, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// execute moves the attached funds and runs the target contract. Unknown
// addresses below the top level accept the funds and do nothing.
func (r *txRun) execute(ctx context.Context, sender string, w ir.WasmExecute, depth int) ([]ir.Msg, []ir.Event, error) {
	if err := r.transfer(ctx, sender, w.ContractAddr, w.Funds); err != nil {
		return nil, nil, err
	}

	pair, err := r.tx.Pair(ctx, w.ContractAddr)
	switch {
	case err == nil:
		events, err := r.executePair(ctx, sender, pair, w)
		return nil, events, err
	case !errors.Is(err, store.ErrNotFound):
		return nil, nil, err
	}

	var msg ir.ExecuteMsg
	decodeErr := json.Unmarshal(w.Msg, &msg)
	isStrategy, err := r.tx.IsStrategy(ctx, w.ContractAddr)
	if err != nil {
		return nil, nil, err
	}
	if !isStrategy && (decodeErr != nil || msg.Instantiate == nil) {
		if depth == 0 && decodeErr != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrUnknownContract, w.ContractAddr, decodeErr)
		}
		if depth == 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownContract, w.ContractAddr)
		}
		return nil, nil, nil
	}
	if decodeErr != nil {
		return nil, nil, fmt.Errorf("decode execute message for %s: %w", w.ContractAddr, decodeErr)
	}

	if p := msg.Process; p != nil {
		previous := "start"
		if p.Previous != nil {
			previous = strconv.Itoa(int(*p.Previous))
		}
		if !r.chain.detector.Observe(r.id, w.ContractAddr, string(p.Mode), previous) {
			return nil, nil, engine.NewContinuationError(w.ContractAddr, string(p.Mode), previous)
		}
	}

	resp, err := r.chain.contract.Execute(ctx, r.tx, r.querier(), engine.Request{
		Sender: sender,
		Funds:  w.Funds,
		Env:    r.env(w.ContractAddr),
	}, msg)
	if err != nil {
		return nil, nil, err
	}
	return resp.Messages, resp.Events, nil
}

func (r *txRun) querier() *querier {
	return &querier{run: r}
}
