package host

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/store"
)

func linearScalarSwap(scalar string) []ir.Node {
	return []ir.Node{{
		Index: 0,
		Action: &ir.ActionNode{Action: ir.Action{Swap: &ir.Swap{
			SwapAmount:           ir.NewCoin(1000, "uusk"),
			MinimumReceiveAmount: ir.NewCoin(1, "ukuji"),
			MaximumSlippageBps:   500,
			Adjustment: ir.SwapAmountAdjustment{LinearScalar: &ir.LinearScalar{
				BaseReceiveAmount: ir.NewCoin(990, "ukuji"),
				Scalar:            ir.MustDec(scalar),
			}},
			Routes: []ir.SwapRoute{{Fin: &ir.FinRoute{PairAddress: pairAddr}}},
		}}},
	}}
}

// requireUsable fails unless the store answers within a second.
func requireUsable(t *testing.T, c *Chain) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err := c.Height(ctx)
	require.NoError(t, err, "store must not be left inside an open transaction")
}

func TestExtremeScalarIsRejected(t *testing.T) {
	c := newTestChain(t)
	ctx := context.Background()

	req, err := NewRequest(DefaultRegistry, "strategy-1", ir.ExecuteMsg{Instantiate: &ir.InstantiateMsg{
		Owner: ownerAddr,
		Label: "scalar",
		Nodes: linearScalarSwap("2"),
	}})
	require.NoError(t, err)
	req.Msg = json.RawMessage(strings.Replace(string(req.Msg), `"scalar":"2"`, `"scalar":"1e99999"`, 1))
	require.Contains(t, string(req.Msg), "1e99999")

	r, err := c.Submit(ctx, req)
	require.Error(t, err)
	assert.Equal(t, store.TxFailed, r.Status)
	assert.Contains(t, err.Error(), "magnitude out of range")

	requireUsable(t, c)
}

func TestLargeScalarExecutesWithoutOverflow(t *testing.T) {
	c := newTestChain(t)
	addr := instantiate(t, c, linearScalarSwap("1e100"))
	require.NoError(t, c.Fund(context.Background(), addr, ir.NewCoin(1000, "uusk")))

	require.NotPanics(t, func() {
		_, _ = submit(t, c, ownerAddr, addr, ir.ExecuteExecute())
	})
	requireUsable(t, c)
}

func TestPanicRollsBackAndReleasesStore(t *testing.T) {
	c := newTestChain(t)
	ctx := context.Background()
	addr := instantiate(t, c, branchGraph())

	req, err := NewRequest(ownerAddr, addr, ir.ExecuteExecute())
	require.NoError(t, err)

	var r Receipt
	require.NotPanics(t, func() {
		r, err = c.submit(ctx, req, func(ctx context.Context, tx *store.Tx) error {
			if err := tx.SetBalance(ctx, ownerAddr, "uusk", ir.NewDec(7)); err != nil {
				return err
			}
			panic("decimal mul: overflow")
		})
	})
	require.ErrorIs(t, err, ErrTransactionPanic)
	assert.Equal(t, store.TxFailed, r.Status)

	requireUsable(t, c)
	assert.Equal(t, "", balance(t, c, ownerAddr), "writes before the panic are rolled back")

	failed, _, err := c.Transaction(ctx, r.TxID)
	require.NoError(t, err)
	assert.Equal(t, store.TxFailed, failed.Status)
	assert.Contains(t, failed.Error, "transaction panicked")
}

func TestStoreUpdateRollsBackOnPanic(t *testing.T) {
	c := newTestChain(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = c.Store().Update(ctx, func(tx *store.Tx) error {
			if err := tx.SetBalance(ctx, ownerAddr, "uusk", ir.NewDec(7)); err != nil {
				return err
			}
			panic("boom")
		})
	})
	requireUsable(t, c)
	assert.Equal(t, "", balance(t, c, ownerAddr))
}

func TestFractionalWithdrawIsRejected(t *testing.T) {
	c := newTestChain(t)
	ctx := context.Background()
	addr := instantiate(t, c, branchGraph())
	require.NoError(t, c.Fund(ctx, addr, ir.NewCoin(10, "ukuji")))

	req := Request{
		Sender:   ownerAddr,
		Contract: addr,
		Msg:      json.RawMessage(`{"withdraw":{"amounts":[{"denom":"ukuji","amount":"0.5"}]}}`),
	}
	r, err := c.Submit(ctx, req)
	require.Error(t, err)
	assert.Equal(t, store.TxFailed, r.Status)
	assert.Contains(t, err.Error(), "not a whole number")

	assert.Equal(t, "10ukuji", balance(t, c, addr))
	assert.Equal(t, "", balance(t, c, ownerAddr))
}

func TestFractionalFundsAreRejected(t *testing.T) {
	c := newTestChain(t)
	ctx := context.Background()
	addr := instantiate(t, c, branchGraph())
	require.NoError(t, c.Fund(ctx, ownerAddr, ir.NewCoin(10, "uusk")))

	req, err := NewRequest(ownerAddr, addr, ir.ExecuteExecute(), ir.Coin{Denom: "uusk", Amount: ir.MustDec("2.5")})
	require.NoError(t, err)
	_, err = c.Submit(ctx, req)
	require.ErrorIs(t, err, ErrInvalidFunds)
	assert.Equal(t, "10uusk", balance(t, c, ownerAddr))

	err = c.Fund(ctx, ownerAddr, ir.Coin{Denom: "uusk", Amount: ir.MustDec("0.5")})
	require.ErrorIs(t, err, ErrInvalidFunds)

	_, err = c.FillOrder(ctx, pairAddr, makerAddr, ir.SideBase, ir.MustDec("1.01"), ir.MustDec("1.5"))
	assert.ErrorContains(t, err, "not a whole number")
	assert.Error(t, c.PlaceOrder(ctx, pairAddr, makerAddr, ir.SideBase, ir.MustDec("1.2"), ir.MustDec("10.5")))
}
