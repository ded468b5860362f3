package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratagem/internal/ir"
)

func TestBranchGraphFailureBranch(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	f.market.Fund(strategyAddr, ir.NewCoin(500, "uusk"))
	untouched := ir.MustGraphHash([]ir.Node{f.node(2), f.node(3)})

	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteExecute()))

	assert.Equal(t, []string{"execute", "bank@alice", "process@1", "clear"}, f.steps)
	assert.Equal(t, []string{"0:false", "1:messages=1", "1:commit"}, f.nodeTrace())
	require.Len(t, f.external, 1)
	assert.Equal(t, "500uusk", f.external[0].Bank.Amount.String())

	assert.Equal(t, untouched, ir.MustGraphHash([]ir.Node{f.node(2), f.node(3)}), "nodes 2 and 3 never ran")
	assert.Equal(t, "500uusk", f.node(1).Action.Action.Distribute.Destinations[0].Distributions.String())
}

func TestBranchGraphSuccessBranch(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	f.market.Fund(strategyAddr, ir.NewCoin(5000, "uusk"))

	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteExecute()))

	assert.Equal(t, []string{
		"execute",
		"swap@pair",
		"process@2",
		"order@pair",
		"process@3",
		"clear",
	}, f.steps)
	assert.Equal(t, []string{
		"0:true",
		"2:messages=1",
		"2:commit",
		"3:messages=1",
		"3:commit",
	}, f.nodeTrace())

	require.Len(t, f.external, 2)
	order := decodeOrder(t, f.external[1])
	assert.Equal(t, "1.2", order.Price.String())
	assert.Equal(t, "990", order.Amount.String(), "the order spends what the swap returned")

	current := f.node(3).Action.Action.LimitOrder.CurrentOrder
	require.NotNil(t, current)
	assert.Equal(t, "1.2", current.Price.String())
	assert.Empty(t, f.node(1).Action.Action.Distribute.Destinations[0].Distributions)
}

// The successor of a paused node runs only in the Process that committed it.
func TestPauseResumeOrdering(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	f.market.Fund(strategyAddr, ir.NewCoin(5000, "uusk"))

	resp, err := f.call(ownerAddr, ir.ExecuteExecute())
	require.NoError(t, err)
	require.Len(t, resp.Messages, 3, "swap, process, clear")

	var resume ir.ExecuteMsg
	require.NoError(t, json.Unmarshal(resp.Messages[1].Wasm.Msg, &resume))
	require.NotNil(t, resume.Process)
	assert.Equal(t, ir.ModeExecute, resume.Process.Mode)
	require.NotNil(t, resume.Process.Previous)
	assert.Equal(t, uint16(2), *resume.Process.Previous)
	assert.Nil(t, f.node(3).Action.Action.LimitOrder.CurrentOrder, "node 3 has not run")

	// Apply the swap, then resume.
	require.NoError(t, f.deliver(resp.Messages[0]))
	f.reset()
	resp, err = f.call(strategyAddr, resume)
	require.NoError(t, err)
	f.events = resp.Events

	assert.Equal(t, []string{"2:commit", "3:messages=1"}, f.nodeTrace())
	require.Len(t, resp.Messages, 2, "order, process")
	assert.Equal(t, "990ukuji", resp.Messages[0].Wasm.Funds.String())
}

func TestResumeFromUnknownNodeFails(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	_, err := f.call(strategyAddr, ir.ExecuteMsg{Process: &ir.ProcessMsg{Mode: ir.ModeExecute, Previous: ir.Ptr(9)}})
	assert.ErrorContains(t, err, "resume after node 9")
}

func TestWalkTerminatesWithinNodeCount(t *testing.T) {
	f := newFixture(t)
	nodes := make([]ir.Node, ir.MaxNodes)
	for i := range nodes {
		n := ir.Node{Index: uint16(i), Condition: &ir.ConditionNode{
			Condition: ir.Condition{BlocksCompleted: &ir.BlocksCompleted{Height: 1}},
		}}
		if i+1 < len(nodes) {
			n.Condition.OnSuccess = ir.Ptr(uint16(i + 1))
		}
		nodes[i] = n
	}
	require.NoError(t, f.dispatch(registryAddr, ir.ExecuteMsg{Instantiate: &ir.InstantiateMsg{Owner: ownerAddr, Nodes: nodes}}))

	trace := f.nodeTrace()
	assert.Len(t, trace, ir.MaxNodes)
	assert.Equal(t, "49:true", trace[len(trace)-1])
}

func TestWalkStopsOnMissingEdge(t *testing.T) {
	f := newFixture(t)
	nodes := []ir.Node{
		{Index: 0, Condition: &ir.ConditionNode{
			Condition: ir.Condition{BlocksCompleted: &ir.BlocksCompleted{Height: 10}},
			OnSuccess: ir.Ptr(1),
		}},
		{Index: 1, Action: &ir.ActionNode{Action: ir.Action{Swap: ptrSwap()}}},
	}
	f.market.Fund(strategyAddr, ir.NewCoin(5000, "uusk"))
	f.instantiate(nodes)

	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteExecute()))
	assert.Equal(t, []string{"execute", "clear"}, f.steps)
	assert.Equal(t, []string{"0:false"}, f.nodeTrace())

	f.reset()
	f.clock.Advance(9, 0)
	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteExecute()))
	assert.Equal(t, []string{"execute", "swap@pair", "process@1", "clear"}, f.steps)
}

func TestConditionFailureAbortsWalk(t *testing.T) {
	f := newFixture(t)
	f.market.Prices["BTC.BTC"] = ir.MustDec("60000")
	f.instantiate([]ir.Node{
		{Index: 0, Condition: &ir.ConditionNode{
			Condition: ir.Condition{OraclePrice: &ir.OraclePrice{
				Asset:     "BTC.BTC",
				Direction: ir.DirectionAbove,
				Price:     ir.MustDec("50000"),
			}},
			OnSuccess: ir.Ptr(1),
		}},
		{Index: 1, Action: &ir.ActionNode{Action: ir.Action{Swap: ptrSwap()}}},
	})
	delete(f.market.Prices, "BTC.BTC")

	_, err := f.call(ownerAddr, ir.ExecuteExecute())
	require.Error(t, err)
	assert.True(t, IsOperationExecutionError(err), "got %v", err)

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "evaluate", re.Details["stage"])
	assert.Equal(t, "0", re.Details["index"])
}

func TestUpdateCancelsBeforeInit(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	f.market.Fund(strategyAddr, ir.NewCoin(5000, "uusk"))
	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteExecute()))
	f.reset()

	replacement := askOrder("1.3")
	next := []ir.Node{{Index: 0, Action: &ir.ActionNode{Action: ir.Action{LimitOrder: &replacement}}}}
	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteMsg{Update: &ir.UpdateMsg{Nodes: next}}))

	assert.Equal(t, []string{
		"update",
		"order@pair",
		"process@3",
		"init",
		"order@pair",
		"process@0",
		"clear",
	}, f.steps)

	require.Len(t, f.external, 2)
	cancel := decodeOrder(t, f.external[0])
	assert.Equal(t, "1.2", cancel.Price.String())
	assert.True(t, cancel.Amount.IsZero(), "first message withdraws the old order")
	placed := decodeOrder(t, f.external[1])
	assert.Equal(t, "1.3", placed.Price.String())
	assert.Equal(t, "990", placed.Amount.String())

	n, err := f.tx.Graph(strategyAddr).Len(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateBlocksExecuteUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	f.market.Fund(strategyAddr, ir.NewCoin(5000, "uusk"))
	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteExecute()))

	replacement := askOrder("1.3")
	next := []ir.Node{{Index: 0, Action: &ir.ActionNode{Action: ir.Action{LimitOrder: &replacement}}}}
	resp, err := f.call(ownerAddr, ir.ExecuteMsg{Update: &ir.UpdateMsg{Nodes: next}})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 3, "cancel order, process, clear")
	assert.True(t, decodeOrder(t, resp.Messages[0]).Amount.IsZero())

	_, err = f.call(ownerAddr, ir.ExecuteExecute())
	assert.True(t, IsReentrancyError(err), "got %v", err)

	n, err := f.tx.Graph(strategyAddr).Len(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "the old graph is still installed")
}

func TestUpdateRejectsInvalidGraphBeforeCancelling(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	before := f.graphHash()

	cyclic := []ir.Node{
		{Index: 0, Action: &ir.ActionNode{Action: ir.Action{Swap: ptrSwap()}, Next: ir.Ptr(0)}},
	}
	_, err := f.call(ownerAddr, ir.ExecuteMsg{Update: &ir.UpdateMsg{Nodes: cyclic}})
	require.Error(t, err)
	assert.True(t, IsGraphValidationError(err), "got %v", err)
	assert.Equal(t, before, f.graphHash())

	st, err := f.tx.Strategy(f.ctx, strategyAddr)
	require.NoError(t, err)
	assert.False(t, st.Guard)
}

func TestWithdrawEscrowedDenomEmitsNothing(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	f.market.Fund(strategyAddr, ir.NewCoin(5000, "uusk"))

	resp, err := f.call(ownerAddr, ir.ExecuteMsg{Withdraw: &ir.WithdrawMsg{Amounts: ir.Coins{ir.NewCoin(100, "uusk")}}})
	require.Error(t, err)
	assert.True(t, IsEscrowViolationError(err), "got %v", err)
	assert.Empty(t, resp.Messages)
	assert.Empty(t, f.external)

	st, err := f.tx.Strategy(f.ctx, strategyAddr)
	require.NoError(t, err)
	assert.False(t, st.Guard, "rejected before the guard is set")
}

func TestWithdrawRejectsFractionalAmounts(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	f.market.Fund(strategyAddr, ir.NewCoin(10, "ukuji"))

	var msg ir.ExecuteMsg
	require.NoError(t, json.Unmarshal([]byte(`{"withdraw":{"amounts":[{"denom":"ukuji","amount":"0.5"}]}}`), &msg))

	resp, err := f.call(ownerAddr, msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a whole number")
	assert.Empty(t, resp.Messages)

	st, err := f.tx.Strategy(f.ctx, strategyAddr)
	require.NoError(t, err)
	assert.False(t, st.Guard)
}

func TestWithdrawReleasesPositionThenPaysOwner(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	f.market.Fund(strategyAddr, ir.NewCoin(5000, "uusk"))
	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteExecute()))
	f.reset()

	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteMsg{Withdraw: &ir.WithdrawMsg{
		Amounts: ir.Coins{ir.NewCoin(0, "ukuji")},
	}}))

	assert.Equal(t, []string{"withdraw", "order@pair", "process@3", "bank@owner", "clear"}, f.steps)
	require.Len(t, f.external, 2)
	assert.Equal(t, "990ukuji", f.external[1].Bank.Amount.String())
	assert.Nil(t, f.node(3).Action.Action.LimitOrder.CurrentOrder)
}

func TestWithdrawSkipsEmptyBalances(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())

	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteMsg{Withdraw: &ir.WithdrawMsg{
		Amounts: ir.Coins{ir.NewCoin(0, "ukuji")},
	}}))
	assert.Equal(t, []string{"withdraw", "clear"}, f.steps)
}

func TestCancelToleratesVanishedOrder(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	f.market.Fund(strategyAddr, ir.NewCoin(5000, "uusk"))
	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteExecute()))
	require.NotNil(t, f.node(3).Action.Action.LimitOrder.CurrentOrder)
	for key := range f.market.Orders {
		delete(f.market.Orders, key)
	}
	f.reset()

	require.NoError(t, f.dispatch(registryAddr, ir.ExecuteCancel()))
	assert.NotContains(t, f.steps, "order@pair")
	assert.Nil(t, f.node(3).Action.Action.LimitOrder.CurrentOrder)
}

func TestCancelWalksActionsInIndexOrder(t *testing.T) {
	f := newFixture(t)
	f.instantiate(branchGraph())
	f.market.Fund(strategyAddr, ir.NewCoin(5000, "uusk"))
	require.NoError(t, f.dispatch(ownerAddr, ir.ExecuteExecute()))
	f.reset()

	require.NoError(t, f.dispatch(registryAddr, ir.ExecuteCancel()))
	assert.Equal(t, []string{"cancel", "order@pair", "process@3", "clear"}, f.steps)
	assert.Equal(t, []string{"1:idle", "2:idle", "3:messages=1", "3:commit"}, f.nodeTrace())
	assert.Nil(t, f.node(3).Action.Action.LimitOrder.CurrentOrder)
	assert.Equal(t, "990ukuji,4000uusk", f.market.Balances[strategyAddr].String())
}
