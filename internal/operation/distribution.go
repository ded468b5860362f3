package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/stratagem/internal/compiler"
	"github.com/roach88/stratagem/internal/ir"
)

type distributionOp struct {
	d ir.Distribution
}

func (op distributionOp) action() ir.Action {
	d := op.d
	d.Denoms = slices.Clone(op.d.Denoms)
	d.Destinations = slices.Clone(op.d.Destinations)
	return ir.Action{Distribute: &d}
}

func (op distributionOp) totalShares() ir.Dec {
	var total ir.Dec
	for _, dest := range op.d.Destinations {
		total = total.Add(dest.Shares)
	}
	return total
}

// Init validates the distribution and appends one bank destination per
// affiliate, sized as bps of the configured total shares.
func (op distributionOp) Init(_ context.Context, _ Deps, affiliates []ir.Affiliate) (ir.Action, error) {
	if err := compiler.Join(compiler.CheckDistribution(op.d)); err != nil {
		return ir.Action{}, err
	}
	next := op.action()
	total := op.totalShares()
	for _, a := range affiliates {
		next.Distribute.Destinations = append(next.Distribute.Destinations, ir.Destination{
			Shares:    total.MulCeil(ir.Bps(a.Bps)),
			Recipient: ir.Recipient{Bank: &ir.BankRecipient{Address: a.Address}},
			Label:     a.Label,
		})
	}
	return next, nil
}

// Execute splits the balance of every denom by share. Each destination gets
// floor(balance * shares / total); the last takes what is left.
func (op distributionOp) Execute(ctx context.Context, deps Deps) ([]ir.Msg, ir.Action, error) {
	var balances ir.Coins
	for _, denom := range op.d.Denoms {
		amount, err := deps.Balance(ctx, deps.Env.Contract, denom)
		if err != nil {
			return nil, ir.Action{}, fmt.Errorf("query %s balance: %w", denom, err)
		}
		balances = append(balances, ir.Coin{Denom: denom, Amount: amount})
	}
	balances = balances.Normalize()

	next := op.action()
	if len(balances) == 0 {
		return nil, next, nil
	}

	total := op.totalShares()
	remaining := balances
	last := len(op.d.Destinations) - 1
	var msgs []ir.Msg

	for i := range next.Distribute.Destinations {
		dest := &next.Distribute.Destinations[i]
		ratio, err := dest.Shares.Quo(total)
		if err != nil {
			return nil, ir.Action{}, err
		}

		var share ir.Coins
		for _, c := range balances {
			amount := c.Amount.MulFloor(ratio)
			if i == last {
				amount = remaining.AmountOf(c.Denom)
			}
			if amount.IsZero() {
				continue
			}
			coin := ir.Coin{Denom: c.Denom, Amount: amount}
			if remaining, err = remaining.Sub(coin); err != nil {
				return nil, ir.Action{}, err
			}
			share = append(share, coin)
		}
		if len(share) == 0 {
			continue
		}

		msg, err := sendTo(dest.Recipient, share)
		if err != nil {
			return nil, ir.Action{}, err
		}
		msgs = append(msgs, msg)
		dest.Distributions = dest.Distributions.Add(share...)
	}
	return msgs, next, nil
}

func sendTo(r ir.Recipient, coins ir.Coins) (ir.Msg, error) {
	switch {
	case r.Bank != nil:
		return ir.BankMsg(r.Bank.Address, coins...), nil
	case r.Contract != nil:
		payload := r.Contract.Msg
		if len(payload) == 0 {
			payload = json.RawMessage(`{}`)
		}
		return ir.WasmMsg(r.Contract.Address, payload, coins...)
	case r.Deposit != nil:
		return ir.DepositMsg(r.Deposit.Memo, coins...), nil
	default:
		return ir.Msg{}, fmt.Errorf("recipient must be exactly one of bank, contract, or deposit")
	}
}

func (op distributionOp) Commit(_ context.Context, _ Deps) (ir.Action, error) {
	return op.action(), nil
}

func (op distributionOp) Withdraw(_ context.Context, _ Deps, _ ir.DenomSet) ([]ir.Msg, ir.Action, error) {
	return nil, op.action(), nil
}

func (op distributionOp) Cancel(_ context.Context, _ Deps) ([]ir.Msg, ir.Action, error) {
	return nil, op.action(), nil
}

func (op distributionOp) Balances(_ context.Context, _ Deps, _ ir.DenomSet) (ir.Coins, error) {
	return nil, nil
}

func (op distributionOp) Denoms(_ context.Context, _ Deps) (ir.DenomSet, error) {
	return ir.NewDenomSet(op.d.Denoms...), nil
}

func (op distributionOp) Escrowed(_ context.Context, _ Deps) (ir.DenomSet, error) {
	return ir.NewDenomSet(op.d.Denoms...), nil
}
