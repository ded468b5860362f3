package host

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/logging"
	"github.com/roach88/stratagem/internal/store"
)

const (
	pairAddr  = "pair"
	ownerAddr = "owner"
	makerAddr = "maker"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "host.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newTestChain returns a chain with a ukuji/uusk pair whose maker asks at
// 1.01 and bids at 0.99.
func newTestChain(t *testing.T, opts ...Option) *Chain {
	t.Helper()
	opts = append([]Option{
		WithIDGenerator(NewSequenceGenerator("tx")),
		WithLogger(logging.NewNop()),
	}, opts...)
	c := New(createTestStore(t), opts...)

	ctx := context.Background()
	require.NoError(t, c.SetPair(ctx, ir.PairConfig{Address: pairAddr, Base: "ukuji", Quote: "uusk"}))
	require.NoError(t, c.PlaceOrder(ctx, pairAddr, makerAddr, ir.SideBase, ir.MustDec("1.01"), ir.NewDec(1_000_000)))
	require.NoError(t, c.PlaceOrder(ctx, pairAddr, makerAddr, ir.SideQuote, ir.MustDec("0.99"), ir.NewDec(1_000_000)))
	return c
}

func instantiate(t *testing.T, c *Chain, nodes []ir.Node) string {
	t.Helper()
	addr, _, err := c.Instantiate(context.Background(), InstantiateRequest{
		Owner: ownerAddr,
		Label: "test",
		Nodes: nodes,
	})
	require.NoError(t, err)
	return addr
}

func submit(t *testing.T, c *Chain, sender, contract string, msg ir.ExecuteMsg, funds ...ir.Coin) (Receipt, error) {
	t.Helper()
	req, err := NewRequest(sender, contract, msg, funds...)
	require.NoError(t, err)
	return c.Submit(context.Background(), req)
}

func balance(t *testing.T, c *Chain, address string) string {
	t.Helper()
	coins, err := c.Balances(context.Background(), address)
	require.NoError(t, err)
	return coins.String()
}

func graphHash(t *testing.T, c *Chain, address string) string {
	t.Helper()
	var hash string
	require.NoError(t, c.Store().View(context.Background(), func(tx *store.Tx) error {
		nodes, err := tx.Graph(address).Nodes(context.Background())
		if err != nil {
			return err
		}
		hash, err = ir.GraphHash(nodes)
		return err
	}))
	return hash
}

func strategyRow(t *testing.T, c *Chain, address string) store.Strategy {
	t.Helper()
	var st store.Strategy
	require.NoError(t, c.Store().View(context.Background(), func(tx *store.Tx) error {
		var err error
		st, err = tx.Strategy(context.Background(), address)
		return err
	}))
	return st
}

// steps renders a receipt's messages as kind@target.
func steps(r Receipt) []string {
	out := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, m.Kind+"@"+m.Target)
	}
	return out
}

// branchGraph checks for 1000uusk: failing, it distributes uusk to alice;
// succeeding, it swaps 1000uusk for ukuji and rests the proceeds as an ask
// at 1.2.
func branchGraph() []ir.Node {
	price := ir.MustDec("1.2")
	return []ir.Node{
		{Index: 0, Condition: &ir.ConditionNode{
			Condition: ir.Condition{BalanceAvailable: &ir.BalanceAvailable{Amount: ir.NewCoin(1000, "uusk")}},
			OnSuccess: ir.Ptr(2),
			OnFailure: ir.Ptr(1),
		}},
		{Index: 1, Action: &ir.ActionNode{Action: ir.Action{Distribute: &ir.Distribution{
			Denoms: []string{"uusk"},
			Destinations: []ir.Destination{{
				Shares:    ir.NewDec(10_000),
				Recipient: ir.Recipient{Bank: &ir.BankRecipient{Address: "alice"}},
			}},
		}}}},
		{Index: 2, Action: &ir.ActionNode{Action: ir.Action{Swap: &ir.Swap{
			SwapAmount:           ir.NewCoin(1000, "uusk"),
			MinimumReceiveAmount: ir.NewCoin(900, "ukuji"),
			MaximumSlippageBps:   100,
			Adjustment:           ir.SwapAmountAdjustment{Fixed: &ir.FixedAdjustment{}},
			Routes:               []ir.SwapRoute{{Fin: &ir.FinRoute{PairAddress: pairAddr}}},
		}}, Next: ir.Ptr(3)}},
		{Index: 3, Action: &ir.ActionNode{Action: ir.Action{LimitOrder: &ir.LimitOrder{
			PairAddress: pairAddr,
			BidDenom:    "ukuji",
			Side:        ir.SideBase,
			Strategy:    ir.PriceStrategy{Fixed: &price},
		}}}},
	}
}
