package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/store"
	"github.com/roach88/stratagem/internal/testutil"
)

const (
	strategyAddr = "strategy"
	ownerAddr    = "owner"
	registryAddr = "registry"
	pairAddr     = "pair"
)

// fixture runs the contract against a store transaction and a fake market,
// dispatching responses depth first the way the host does. Pair and bank
// messages are applied to the market so later reads observe them.
type fixture struct {
	t        *testing.T
	ctx      context.Context
	tx       *store.Tx
	market   *testutil.Market
	contract *Contract
	clock    *testutil.BlockClock

	// steps lists every delivered message: strategy entries by name,
	// external messages as kind@target.
	steps    []string
	external []ir.Msg
	events   []ir.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })

	m := testutil.NewMarket()
	m.AddPair(pairAddr, "ukuji", "uusk", "1.01", "0.99")

	return &fixture{
		t:        t,
		ctx:      ctx,
		tx:       tx,
		market:   m,
		contract: New(WithLogger(slog.New(slog.DiscardHandler))),
		clock:    testutil.NewBlockClock(1),
	}
}

func (f *fixture) env() ir.Env {
	return f.clock.Env(strategyAddr)
}

// call runs one entry without dispatching its response.
func (f *fixture) call(sender string, msg ir.ExecuteMsg) (Response, error) {
	return f.contract.Execute(f.ctx, f.tx, f.market, Request{Sender: sender, Env: f.env()}, msg)
}

// dispatch runs one entry and everything its response sends.
func (f *fixture) dispatch(sender string, msg ir.ExecuteMsg) error {
	resp, err := f.call(sender, msg)
	if err != nil {
		return err
	}
	step := msg.Name()
	if msg.Process != nil && msg.Process.Previous != nil {
		step += "@" + strconv.Itoa(int(*msg.Process.Previous))
	}
	f.steps = append(f.steps, step)
	f.events = append(f.events, resp.Events...)

	for _, m := range resp.Messages {
		if err := f.deliver(m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fixture) deliver(m ir.Msg) error {
	if m.Wasm != nil && m.Wasm.ContractAddr == strategyAddr {
		var exec ir.ExecuteMsg
		if err := json.Unmarshal(m.Wasm.Msg, &exec); err != nil {
			return err
		}
		return f.dispatch(strategyAddr, exec)
	}

	f.external = append(f.external, m)
	switch {
	case m.Bank != nil:
		f.steps = append(f.steps, "bank@"+m.Bank.ToAddress)
		return f.debitAndCredit(m.Bank.Amount, m.Bank.ToAddress)
	case m.Wasm != nil && m.Wasm.ContractAddr == pairAddr:
		var exec ir.FinExecuteMsg
		if err := json.Unmarshal(m.Wasm.Msg, &exec); err != nil {
			return err
		}
		if exec.Swap != nil {
			f.steps = append(f.steps, "swap@"+pairAddr)
			return f.applySwap(m.Wasm.Funds)
		}
		f.steps = append(f.steps, "order@"+pairAddr)
		return f.applyOrder(*exec.Order, m.Wasm.Funds)
	default:
		f.steps = append(f.steps, m.Kind())
		return nil
	}
}

func (f *fixture) debitAndCredit(coins ir.Coins, to string) error {
	for _, c := range coins {
		rest, err := f.market.Balances[strategyAddr].Sub(c)
		if err != nil {
			return err
		}
		f.market.Balances[strategyAddr] = rest
	}
	if to != "" {
		f.market.Fund(to, coins...)
	}
	return nil
}

func (f *fixture) applySwap(funds ir.Coins) error {
	if err := f.debitAndCredit(funds, ""); err != nil {
		return err
	}
	out, err := f.market.Simulate(f.ctx, pairAddr, funds[0])
	if err != nil {
		return err
	}
	f.market.Fund(strategyAddr, ir.Coin{Denom: "ukuji", Amount: out})
	return nil
}

func (f *fixture) applyOrder(o ir.FinOrder, funds ir.Coins) error {
	pair := f.market.Pairs[pairAddr]
	key := testutil.OrderKey(pairAddr, strategyAddr, o.Side, o.Price)
	if o.Amount.IsZero() {
		existing, ok := f.market.Orders[key]
		if !ok {
			return fmt.Errorf("no order at %s", o.Price)
		}
		delete(f.market.Orders, key)
		f.market.Fund(strategyAddr,
			ir.Coin{Denom: pair.OfferDenom(o.Side), Amount: existing.Remaining},
			ir.Coin{Denom: pair.AskDenom(o.Side), Amount: existing.Filled},
		)
		return nil
	}
	if err := f.debitAndCredit(funds, ""); err != nil {
		return err
	}
	f.market.Orders[key] = ir.OrderState{
		Owner:     strategyAddr,
		Side:      o.Side,
		Price:     o.Price,
		Offer:     o.Amount,
		Remaining: o.Amount,
	}
	return nil
}

// nodeTrace renders the node events as index:outcome.
func (f *fixture) nodeTrace() []string {
	var out []string
	for _, e := range f.events {
		if e.Type == "node" {
			out = append(out, e.Attributes["index"]+":"+e.Attributes["outcome"])
		}
	}
	return out
}

func (f *fixture) reset() {
	f.steps, f.external, f.events = nil, nil, nil
}

func (f *fixture) instantiate(nodes []ir.Node) {
	f.t.Helper()
	require.NoError(f.t, f.dispatch(registryAddr, ir.ExecuteMsg{Instantiate: &ir.InstantiateMsg{
		Owner: ownerAddr,
		Label: "test",
		Nodes: nodes,
	}}))
	f.reset()
}

func (f *fixture) node(i uint16) ir.Node {
	f.t.Helper()
	n, err := f.tx.Graph(strategyAddr).Load(f.ctx, i)
	require.NoError(f.t, err)
	return n
}

func (f *fixture) graphHash() string {
	f.t.Helper()
	nodes, err := f.tx.Graph(strategyAddr).Nodes(f.ctx)
	require.NoError(f.t, err)
	return ir.MustGraphHash(nodes)
}

func fixedSwap() ir.Swap {
	return ir.Swap{
		SwapAmount:           ir.NewCoin(1000, "uusk"),
		MinimumReceiveAmount: ir.NewCoin(900, "ukuji"),
		MaximumSlippageBps:   100,
		Adjustment:           ir.SwapAmountAdjustment{Fixed: &ir.FixedAdjustment{}},
		Routes:               []ir.SwapRoute{{Fin: &ir.FinRoute{PairAddress: pairAddr}}},
	}
}

func askOrder(price string) ir.LimitOrder {
	p := ir.MustDec(price)
	return ir.LimitOrder{
		PairAddress: pairAddr,
		BidDenom:    "ukuji",
		Side:        ir.SideBase,
		Strategy:    ir.PriceStrategy{Fixed: &p},
	}
}

// branchGraph is the four-node graph: 0 checks for 1000uusk, failing to
// the distribution at 1 and succeeding to the swap at 2, which feeds the
// limit order at 3.
func branchGraph() []ir.Node {
	swap := fixedSwap()
	order := askOrder("1.2")
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
		{Index: 2, Action: &ir.ActionNode{Action: ir.Action{Swap: &swap}, Next: ir.Ptr(3)}},
		{Index: 3, Action: &ir.ActionNode{Action: ir.Action{LimitOrder: &order}}},
	}
}

// decodeOrder returns the Fin order a message carries.
func decodeOrder(t *testing.T, m ir.Msg) ir.FinOrder {
	t.Helper()
	require.NotNil(t, m.Wasm)
	var exec ir.FinExecuteMsg
	require.NoError(t, json.Unmarshal(m.Wasm.Msg, &exec))
	require.NotNil(t, exec.Order)
	return *exec.Order
}
