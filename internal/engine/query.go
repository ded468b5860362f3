package engine

import (
	"context"
	"fmt"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/operation"
	"github.com/roach88/stratagem/internal/store"
)

// Query answers a strategy query. The result is an ir.ConfigResponse or
// ir.Coins.
func (c *Contract) Query(ctx context.Context, tx *store.Tx, q operation.Querier, env ir.Env, msg ir.QueryMsg) (any, error) {
	switch {
	case msg.Config != nil && msg.Balances == nil:
		return c.Config(ctx, tx, env.Contract)
	case msg.Balances != nil && msg.Config == nil:
		return c.Balances(ctx, tx, q, env)
	}
	return nil, fmt.Errorf("query message must set exactly one entry")
}

// Config reports the strategy's identity, graph, and denom sets.
func (c *Contract) Config(ctx context.Context, tx *store.Tx, address string) (ir.ConfigResponse, error) {
	st, err := tx.Strategy(ctx, address)
	if err != nil {
		return ir.ConfigResponse{}, err
	}
	nodes, err := tx.Graph(address).Nodes(ctx)
	if err != nil {
		return ir.ConfigResponse{}, err
	}
	hash, err := ir.GraphHash(nodes)
	if err != nil {
		return ir.ConfigResponse{}, err
	}

	affiliates := st.Affiliates
	if affiliates == nil {
		affiliates = []ir.Affiliate{}
	}
	return ir.ConfigResponse{
		Address:    st.Address,
		Owner:      st.Owner,
		Manager:    st.Manager,
		Label:      st.Label,
		Affiliates: affiliates,
		Nodes:      nodes,
		Denoms:     st.Denoms.Sorted(),
		Escrowed:   st.Escrowed.Sorted(),
		Guarded:    st.Guard,
		GraphHash:  hash,
	}, nil
}

// Balances sums, for every tracked denom, what the contract holds and what
// each action node holds in open positions.
func (c *Contract) Balances(ctx context.Context, tx *store.Tx, q operation.Querier, env ir.Env) (ir.Coins, error) {
	st, err := tx.Strategy(ctx, env.Contract)
	if err != nil {
		return nil, err
	}
	nodes, err := tx.Graph(env.Contract).Nodes(ctx)
	if err != nil {
		return nil, err
	}
	deps := operation.Deps{Querier: q, Env: env, Logger: c.logger}

	var total ir.Coins
	for _, denom := range st.Denoms.Sorted() {
		held, err := q.Balance(ctx, st.Address, denom)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", denom, err)
		}
		total = total.Add(ir.Coin{Denom: denom, Amount: held})
	}
	for _, n := range nodes {
		if n.Action == nil {
			continue
		}
		op, err := operation.For(n.Action.Action)
		if err != nil {
			return nil, NewOperationExecutionError(st.Address, n.Index, "balances", err)
		}
		positions, err := op.Balances(ctx, deps, st.Denoms)
		if err != nil {
			return nil, NewOperationExecutionError(st.Address, n.Index, "balances", err)
		}
		total = total.Add(positions...)
	}
	return total.Normalize(), nil
}
