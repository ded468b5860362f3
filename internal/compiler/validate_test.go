package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratagem/internal/ir"
)

func blocks(i uint16, onSuccess, onFailure *uint16) ir.Node {
	return ir.Node{Index: i, Condition: &ir.ConditionNode{
		Condition: ir.Condition{BlocksCompleted: &ir.BlocksCompleted{Height: 1}},
		OnSuccess: onSuccess,
		OnFailure: onFailure,
	}}
}

func distribute(i uint16, next *uint16) ir.Node {
	return ir.Node{Index: i, Action: &ir.ActionNode{
		Action: ir.Action{Distribute: &ir.Distribution{
			Denoms: []string{"uusk"},
			Destinations: []ir.Destination{{
				Shares:    ir.NewDec(10_000),
				Recipient: ir.Recipient{Bank: &ir.BankRecipient{Address: "owner"}},
			}},
		}},
		Next: next,
	}}
}

func requireCode(t *testing.T, err error, code string) ValidationError {
	t.Helper()
	require.Error(t, err)
	var verr ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %T", err)
	assert.Equal(t, code, verr.Code, verr.Error())
	return verr
}

func TestValidateGraphAcceptsDAG(t *testing.T) {
	nodes := []ir.Node{
		blocks(0, ir.Ptr(2), ir.Ptr(1)),
		distribute(1, nil),
		distribute(2, ir.Ptr(3)),
		distribute(3, nil),
	}
	assert.NoError(t, ValidateGraph(nodes))
}

func TestValidateGraphEmpty(t *testing.T) {
	requireCode(t, ValidateGraph(nil), ErrGraphEmpty)
}

func TestValidateGraphIndexMismatch(t *testing.T) {
	nodes := []ir.Node{distribute(0, nil), distribute(5, nil)}
	verr := requireCode(t, ValidateGraph(nodes), ErrIndexMismatch)
	assert.Equal(t, "nodes[1].index", verr.Field)
}

func TestValidateGraphMalformedNode(t *testing.T) {
	nodes := []ir.Node{{Index: 0}}
	requireCode(t, ValidateGraph(nodes), ErrMalformedNode)
}

func TestValidateGraphDanglingEdge(t *testing.T) {
	nodes := []ir.Node{blocks(0, ir.Ptr(1), ir.Ptr(7)), distribute(1, nil)}
	verr := requireCode(t, ValidateGraph(nodes), ErrDanglingEdge)
	assert.Contains(t, verr.Message, "0 → 7")
}

func TestValidateGraphCycles(t *testing.T) {
	tests := []struct {
		name  string
		nodes []ir.Node
		path  string
	}{
		{
			name:  "self loop",
			nodes: []ir.Node{distribute(0, ir.Ptr(0))},
			path:  "0 → 0",
		},
		{
			name: "two node loop",
			nodes: []ir.Node{
				distribute(0, ir.Ptr(1)),
				distribute(1, ir.Ptr(0)),
			},
			path: "0 → 1 → 0",
		},
		{
			name: "loop behind a condition",
			nodes: []ir.Node{
				blocks(0, ir.Ptr(1), nil),
				distribute(1, ir.Ptr(2)),
				distribute(2, ir.Ptr(1)),
			},
			path: "1 → 2 → 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := requireCode(t, ValidateGraph(tt.nodes), ErrGraphCycle)
			assert.Contains(t, verr.Message, tt.path)
		})
	}
}

func TestValidateGraphCheckOrder(t *testing.T) {
	// A graph that is both cyclic and oversized reports the cycle first.
	nodes := make([]ir.Node, ir.MaxNodes+1)
	for i := range nodes {
		nodes[i] = distribute(uint16(i), ir.Ptr(uint16((i+1)%len(nodes))))
	}
	requireCode(t, ValidateGraph(nodes), ErrGraphCycle)
}

func TestValidateGraphTooLarge(t *testing.T) {
	t.Run("node count", func(t *testing.T) {
		nodes := make([]ir.Node, ir.MaxNodes+1)
		for i := range nodes {
			nodes[i] = blocks(uint16(i), nil, nil)
		}
		requireCode(t, ValidateGraph(nodes), ErrGraphTooLarge)
	})

	t.Run("total size", func(t *testing.T) {
		// 13 limit orders weigh 52.
		nodes := make([]ir.Node, 13)
		for i := range nodes {
			nodes[i] = ir.Node{Index: uint16(i), Action: &ir.ActionNode{Action: ir.Action{LimitOrder: &ir.LimitOrder{}}}}
		}
		verr := requireCode(t, ValidateGraph(nodes), ErrGraphTooLarge)
		assert.Contains(t, verr.Message, "52")
	})
}

func TestValidateAffiliates(t *testing.T) {
	assert.NoError(t, ValidateAffiliates(nil))
	assert.NoError(t, ValidateAffiliates([]ir.Affiliate{
		{Address: "a", Bps: 150, Label: "app"},
		{Address: "b", Bps: 50},
	}))

	requireCode(t, ValidateAffiliates([]ir.Affiliate{{Address: "", Bps: 10}}), ErrInvalidAffiliate)
	requireCode(t, ValidateAffiliates([]ir.Affiliate{{Address: "a", Bps: 0}}), ErrInvalidAffiliate)
	requireCode(t, ValidateAffiliates([]ir.Affiliate{
		{Address: "a", Bps: 150},
		{Address: "b", Bps: 51},
	}), ErrAffiliateBpsTooHigh)
}

func TestCheckSwap(t *testing.T) {
	valid := ir.Swap{
		SwapAmount:           ir.NewCoin(1000, "uusk"),
		MinimumReceiveAmount: ir.NewCoin(1, "ukuji"),
		MaximumSlippageBps:   100,
		Adjustment:           ir.SwapAmountAdjustment{Fixed: &ir.FixedAdjustment{}},
		Routes:               []ir.SwapRoute{{Fin: &ir.FinRoute{PairAddress: "pair"}}},
	}
	assert.Empty(t, CheckSwap(valid))

	zero := valid
	zero.SwapAmount = ir.NewCoin(0, "uusk")
	assert.NotEmpty(t, CheckSwap(zero))

	slippage := valid
	slippage.MaximumSlippageBps = 10_001
	assert.NotEmpty(t, CheckSwap(slippage))

	noRoutes := valid
	noRoutes.Routes = nil
	assert.NotEmpty(t, CheckSwap(noRoutes))

	scalar := valid
	scalar.Adjustment = ir.SwapAmountAdjustment{LinearScalar: &ir.LinearScalar{
		BaseReceiveAmount: ir.NewCoin(10, "uatom"),
		Scalar:            ir.NewDec(1),
	}}
	errs := CheckSwap(scalar)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "base receive amount denom")

	interval := uint64(51)
	thor := valid
	thor.Routes = []ir.SwapRoute{{Thorchain: &ir.ThorchainRoute{StreamingInterval: &interval}}}
	assert.NotEmpty(t, CheckSwap(thor))
}

func TestCheckSwapRejectsNonTokenAmounts(t *testing.T) {
	base := ir.Swap{
		SwapAmount:           ir.NewCoin(1000, "uusk"),
		MinimumReceiveAmount: ir.NewCoin(1, "ukuji"),
		MaximumSlippageBps:   100,
		Adjustment: ir.SwapAmountAdjustment{LinearScalar: &ir.LinearScalar{
			BaseReceiveAmount: ir.NewCoin(10, "ukuji"),
			Scalar:            ir.MustDec("1.5"),
		}},
		Routes: []ir.SwapRoute{{Fin: &ir.FinRoute{PairAddress: "pair"}}},
	}
	require.Empty(t, CheckSwap(base))

	half := ir.MustDec("0.5")
	tests := []struct {
		name  string
		field string
		edit  func(s *ir.Swap)
	}{
		{"fractional swap amount", "swap.swap_amount", func(s *ir.Swap) { s.SwapAmount.Amount = ir.MustDec("1000.5") }},
		{"fractional minimum receive", "swap.minimum_receive_amount", func(s *ir.Swap) { s.MinimumReceiveAmount.Amount = half }},
		{"swap amount over maximum", "swap.swap_amount", func(s *ir.Swap) { s.SwapAmount.Amount = ir.MaxAmount.Add(ir.NewDec(1)) }},
		{"fractional base receive", "swap.adjustment.linear_scalar.base_receive_amount", func(s *ir.Swap) {
			s.Adjustment.LinearScalar.BaseReceiveAmount.Amount = ir.MustDec("10.25")
		}},
		{"fractional minimum swap", "swap.adjustment.linear_scalar.minimum_swap_amount", func(s *ir.Swap) {
			c := ir.Coin{Denom: "uusk", Amount: half}
			s.Adjustment.LinearScalar.MinimumSwapAmount = &c
		}},
		{"negative scalar", "swap.adjustment.linear_scalar.scalar", func(s *ir.Swap) {
			s.Adjustment.LinearScalar.Scalar = ir.NewDec(-1)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			ls := *base.Adjustment.LinearScalar
			s.Adjustment.LinearScalar = &ls
			tt.edit(&s)

			errs := CheckSwap(s)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
			assert.Equal(t, ErrInvalidSwap, errs[0].Code)
		})
	}
}

func TestCheckLimitOrder(t *testing.T) {
	price := ir.MustDec("1.5")
	valid := ir.LimitOrder{
		PairAddress: "pair",
		BidDenom:    "uusk",
		Side:        ir.SideQuote,
		Strategy:    ir.PriceStrategy{Fixed: &price},
	}
	assert.Empty(t, CheckLimitOrder(valid))

	small := valid
	bid := ir.NewDec(999)
	small.BidAmount = &bid
	assert.NotEmpty(t, CheckLimitOrder(small))

	fractional := valid
	fracBid := ir.MustDec("1000.5")
	fractional.BidAmount = &fracBid
	errs := CheckLimitOrder(fractional)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "not a whole number")

	current := valid
	current.CurrentOrder = &ir.StaleOrder{Price: price}
	assert.NotEmpty(t, CheckLimitOrder(current))

	both := valid
	pct := uint64(1)
	both.Strategy.Offset = &ir.OffsetPrice{Direction: ir.DirectionAbove, Offset: ir.Offset{Percent: &pct}}
	assert.NotEmpty(t, CheckLimitOrder(both))
}

func TestCheckDistribution(t *testing.T) {
	valid := *distribute(0, nil).Action.Action.Distribute
	assert.Empty(t, CheckDistribution(valid))

	dup := valid
	dup.Denoms = []string{"uusk", "uusk"}
	assert.NotEmpty(t, CheckDistribution(dup))

	low := valid
	low.Destinations = []ir.Destination{{
		Shares:    ir.NewDec(9_999),
		Recipient: ir.Recipient{Deposit: &ir.DepositRecipient{Memo: "=:BTC.BTC:bc1"}},
	}}
	errs := CheckDistribution(low)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "at least 10000")

	zero := valid
	zero.Destinations = append([]ir.Destination{{
		Shares:    ir.Dec{},
		Recipient: ir.Recipient{Bank: &ir.BankRecipient{Address: "x"}},
	}}, valid.Destinations...)
	assert.NotEmpty(t, CheckDistribution(zero))

	fractional := valid
	fractional.Destinations = []ir.Destination{{
		Shares:    ir.MustDec("10000.5"),
		Recipient: ir.Recipient{Bank: &ir.BankRecipient{Address: "x"}},
	}}
	errs = CheckDistribution(fractional)
	require.Len(t, errs, 1)
	assert.Equal(t, "distribute.destinations[0].shares", errs[0].Field)
}

func TestCheckConditionBalanceThresholds(t *testing.T) {
	whole := ir.Condition{BalanceAvailable: &ir.BalanceAvailable{Amount: ir.NewCoin(100, "uusk")}}
	assert.Empty(t, CheckCondition(whole))

	fractional := ir.Condition{BalanceAvailable: &ir.BalanceAvailable{
		Amount: ir.Coin{Denom: "uusk", Amount: ir.MustDec("0.5")},
	}}
	errs := CheckCondition(fractional)
	require.Len(t, errs, 1)
	assert.Equal(t, "balance_available.amount", errs[0].Field)

	strategy := ir.Condition{StrategyBalanceAvailable: &ir.StrategyBalanceAvailable{
		Amount: ir.Coin{Denom: "uusk", Amount: ir.NewDec(-5)},
	}}
	errs = CheckCondition(strategy)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "negative")
}

func TestCheckConditionComposite(t *testing.T) {
	empty := ir.Condition{Composite: &ir.Composite{Threshold: ir.ThresholdAll}}
	assert.NotEmpty(t, CheckCondition(empty))

	nested := ir.Condition{Composite: &ir.Composite{
		Threshold: ir.ThresholdAny,
		Conditions: []ir.Condition{
			{BlocksCompleted: &ir.BlocksCompleted{Height: 10}},
			{Not: &ir.Condition{OraclePrice: &ir.OraclePrice{Asset: "BTC.BTC", Direction: "sideways"}}},
		},
	}}
	errs := CheckCondition(nested)
	require.Len(t, errs, 1)
	assert.Equal(t, "composite.conditions[1].oracle_price.direction", errs[0].Field)
}

func TestValidateOperationsTagsNodes(t *testing.T) {
	nodes := []ir.Node{
		distribute(0, nil),
		{Index: 1, Action: &ir.ActionNode{Action: ir.Action{}}},
	}
	errs := ValidateOperations(nodes)
	require.Len(t, errs, 1)
	assert.Equal(t, "nodes[1].action.action", errs[0].Field)
	assert.Equal(t, ErrMalformedOperation, errs[0].Code)

	assert.Error(t, Join(errs))
	assert.NoError(t, Join(nil))
}
