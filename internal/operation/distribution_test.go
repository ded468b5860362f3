package operation_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/testutil"
)

func bankDest(address string, shares int64) ir.Destination {
	return ir.Destination{
		Shares:    ir.NewDec(shares),
		Recipient: ir.Recipient{Bank: &ir.BankRecipient{Address: address}},
	}
}

func TestDistributionInitAppendsAffiliates(t *testing.T) {
	ctx := context.Background()
	d := ir.Distribution{
		Denoms:       []string{"uusk"},
		Destinations: []ir.Destination{bankDest("owner", 10_000)},
	}
	next, err := mustOp(t, ir.Action{Distribute: &d}).Init(ctx, testutil.NewMarket().Deps(strategy, 1), []ir.Affiliate{
		{Address: "app", Bps: 100, Label: "frontend"},
		{Address: "ref", Bps: 5},
	})
	require.NoError(t, err)

	dests := next.Distribute.Destinations
	require.Len(t, dests, 3)
	assert.Equal(t, "100", dests[1].Shares.String())
	assert.Equal(t, "app", dests[1].Recipient.Bank.Address)
	assert.Equal(t, "frontend", dests[1].Label)
	assert.Equal(t, "5", dests[2].Shares.String())
	assert.Len(t, d.Destinations, 1, "init must not alias the input")
}

func TestDistributionInitRejectsLowShares(t *testing.T) {
	d := ir.Distribution{
		Denoms:       []string{"uusk"},
		Destinations: []ir.Destination{bankDest("owner", 100)},
	}
	_, err := mustOp(t, ir.Action{Distribute: &d}).Init(context.Background(), testutil.NewMarket().Deps(strategy, 1), nil)
	assert.ErrorContains(t, err, "total shares must be at least 10000")
}

func TestDistributionExecuteSplitsByShare(t *testing.T) {
	ctx := context.Background()
	m := testutil.NewMarket()
	m.Fund(strategy, ir.NewCoin(1000, "uusk"), ir.NewCoin(10, "ukuji"))

	d := ir.Distribution{
		Denoms: []string{"uusk", "ukuji"},
		Destinations: []ir.Destination{
			bankDest("alice", 7000),
			bankDest("bob", 3000),
		},
	}
	msgs, next, err := mustOp(t, ir.Action{Distribute: &d}).Execute(ctx, m.Deps(strategy, 1))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "alice", msgs[0].Bank.ToAddress)
	assert.Equal(t, "7ukuji,700uusk", msgs[0].Bank.Amount.String())
	assert.Equal(t, "bob", msgs[1].Bank.ToAddress)
	assert.Equal(t, "3ukuji,300uusk", msgs[1].Bank.Amount.String())

	dests := next.Distribute.Destinations
	assert.Equal(t, "7ukuji,700uusk", dests[0].Distributions.String())
	assert.Equal(t, "3ukuji,300uusk", dests[1].Distributions.String())
	assert.Empty(t, d.Destinations[0].Distributions)

	// Totals accumulate across executions.
	msgs, next, err = mustOp(t, next).Execute(ctx, m.Deps(strategy, 2))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "14ukuji,1400uusk", next.Distribute.Destinations[0].Distributions.String())
}

func TestDistributionRemainderGoesToLast(t *testing.T) {
	ctx := context.Background()
	m := testutil.NewMarket()
	m.Fund(strategy, ir.NewCoin(10, "uusk"))

	d := ir.Distribution{
		Denoms: []string{"uusk"},
		Destinations: []ir.Destination{
			bankDest("a", 3333),
			bankDest("b", 3333),
			bankDest("c", 3334),
		},
	}
	msgs, _, err := mustOp(t, ir.Action{Distribute: &d}).Execute(ctx, m.Deps(strategy, 1))
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "3uusk", msgs[0].Bank.Amount.String())
	assert.Equal(t, "3uusk", msgs[1].Bank.Amount.String())
	assert.Equal(t, "4uusk", msgs[2].Bank.Amount.String())
}

func TestDistributionSkipsZeroShares(t *testing.T) {
	ctx := context.Background()
	m := testutil.NewMarket()
	m.Fund(strategy, ir.NewCoin(1, "uusk"))

	d := ir.Distribution{
		Denoms: []string{"uusk"},
		Destinations: []ir.Destination{
			bankDest("a", 5000),
			bankDest("b", 5000),
		},
	}
	msgs, next, err := mustOp(t, ir.Action{Distribute: &d}).Execute(ctx, m.Deps(strategy, 1))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "b", msgs[0].Bank.ToAddress)
	assert.Len(t, next.Distribute.Destinations, 2, "destinations that received nothing are kept")
}

func TestDistributionEmptyBalance(t *testing.T) {
	d := ir.Distribution{
		Denoms:       []string{"uusk"},
		Destinations: []ir.Destination{bankDest("a", 10_000)},
	}
	msgs, _, err := mustOp(t, ir.Action{Distribute: &d}).Execute(context.Background(), testutil.NewMarket().Deps(strategy, 1))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDistributionRecipients(t *testing.T) {
	ctx := context.Background()
	m := testutil.NewMarket()
	m.Fund(strategy, ir.NewCoin(100, "uusk"))

	d := ir.Distribution{
		Denoms: []string{"uusk"},
		Destinations: []ir.Destination{
			{
				Shares: ir.NewDec(5000),
				Recipient: ir.Recipient{Contract: &ir.ContractRecipient{
					Address: "vault",
					Msg:     json.RawMessage(`{"deposit":{}}`),
				}},
			},
			{
				Shares:    ir.NewDec(5000),
				Recipient: ir.Recipient{Deposit: &ir.DepositRecipient{Memo: "=:BTC.BTC:bc1q"}},
			},
		},
	}
	msgs, _, err := mustOp(t, ir.Action{Distribute: &d}).Execute(ctx, m.Deps(strategy, 1))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.NotNil(t, msgs[0].Wasm)
	assert.Equal(t, "vault", msgs[0].Wasm.ContractAddr)
	assert.JSONEq(t, `{"deposit":{}}`, string(msgs[0].Wasm.Msg))
	assert.Equal(t, "50uusk", msgs[0].Wasm.Funds.String())

	require.NotNil(t, msgs[1].Deposit)
	assert.Equal(t, "=:BTC.BTC:bc1q", msgs[1].Deposit.Memo)
	assert.Equal(t, "50uusk", msgs[1].Deposit.Coins.String())
}

func TestDistributionSets(t *testing.T) {
	ctx := context.Background()
	d := ir.Distribution{
		Denoms:       []string{"uusk", "ukuji"},
		Destinations: []ir.Destination{bankDest("a", 10_000)},
	}
	op := mustOp(t, ir.Action{Distribute: &d})
	deps := testutil.NewMarket().Deps(strategy, 1)

	denoms, err := op.Denoms(ctx, deps)
	require.NoError(t, err)
	assert.Equal(t, []string{"ukuji", "uusk"}, denoms.Sorted())

	escrowed, err := op.Escrowed(ctx, deps)
	require.NoError(t, err)
	assert.Equal(t, []string{"ukuji", "uusk"}, escrowed.Sorted())
}
