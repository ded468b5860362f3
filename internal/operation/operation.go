package operation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/logging"
)

// Sentinel errors a Querier returns for absent chain state.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrPairNotFound     = errors.New("pair not found")
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrPriceNotFound    = errors.New("oracle price not found")
)

// Querier is the read-only view of the chain an operation may consult.
// Implementations must not mutate state.
type Querier interface {
	// Balance returns address's balance of denom, zero when absent.
	Balance(ctx context.Context, address, denom string) (ir.Dec, error)
	Pair(ctx context.Context, pair string) (ir.PairConfig, error)
	// Book returns up to limit price levels per side, best first.
	Book(ctx context.Context, pair string, limit int) (ir.Book, error)
	// Simulate returns the amount a market swap of offer would return.
	Simulate(ctx context.Context, pair string, offer ir.Coin) (ir.Dec, error)
	// Order returns ErrOrderNotFound when owner has no order at price.
	Order(ctx context.Context, pair, owner string, side ir.Side, price ir.Dec) (ir.OrderState, error)
	Strategy(ctx context.Context, manager, address string) (ir.StrategyInfo, error)
	OraclePrice(ctx context.Context, asset string) (ir.Dec, error)
	ThorchainQuote(ctx context.Context, req ir.ThorQuoteRequest) (ir.ThorQuote, error)
	// StrategyBalances answers the Balances query of the strategy at
	// address: held funds plus funds in open positions.
	StrategyBalances(ctx context.Context, address string) (ir.Coins, error)
}

// Deps bundles what an operation observes during one call.
type Deps struct {
	Querier
	Env ir.Env
	// Logger receives operation diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Log returns the call's logger.
func (d Deps) Log() *slog.Logger {
	if d.Logger == nil {
		return logging.NewNop()
	}
	return d.Logger
}

// Operation is the lifecycle of one action node. Every method returns the
// node's next state; the caller persists it.
type Operation interface {
	// Init validates the operation against the chain and applies the
	// strategy's affiliates. It runs once, before the graph is stored.
	Init(ctx context.Context, deps Deps, affiliates []ir.Affiliate) (ir.Action, error)

	// Execute returns the messages to dispatch. No messages means the walk
	// continues without pausing.
	Execute(ctx context.Context, deps Deps) ([]ir.Msg, ir.Action, error)

	// Commit reconciles state after the messages of the previous Execute,
	// Withdraw, or Cancel have been dispatched.
	Commit(ctx context.Context, deps Deps) (ir.Action, error)

	// Withdraw releases funds of the desired denoms held in positions.
	Withdraw(ctx context.Context, deps Deps, desired ir.DenomSet) ([]ir.Msg, ir.Action, error)

	// Cancel releases every position.
	Cancel(ctx context.Context, deps Deps) ([]ir.Msg, ir.Action, error)

	// Balances reports funds held in positions, restricted to denoms.
	Balances(ctx context.Context, deps Deps, denoms ir.DenomSet) (ir.Coins, error)

	// Denoms lists every denomination the operation touches.
	Denoms(ctx context.Context, deps Deps) (ir.DenomSet, error)

	// Escrowed lists denominations a withdrawal must not touch.
	Escrowed(ctx context.Context, deps Deps) (ir.DenomSet, error)
}

// For returns the Operation implementing a.
func For(a ir.Action) (Operation, error) {
	switch a.Kind() {
	case ir.ActionSwap:
		return swapOp{s: *a.Swap}, nil
	case ir.ActionLimitOrder:
		return limitOrderOp{o: *a.LimitOrder}, nil
	case ir.ActionDistribute:
		return distributionOp{d: *a.Distribute}, nil
	default:
		return nil, fmt.Errorf("action must set exactly one operation")
	}
}
