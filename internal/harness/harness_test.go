package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/ir"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
	require.NoError(t, err)
	return s
}

func TestScenarios(t *testing.T) {
	for _, name := range []string{"four_node_success", "four_node_failure", "withdraw_rules"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.NotEmpty(t, result.Trace)
		})
	}
}

func TestRunRecordsTransactionsAndMessages(t *testing.T) {
	result, err := Run(loadTestScenario(t, "four_node_success"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, map[string]string{"dca": "strategy-1"}, result.Addresses)

	var txs []TraceEvent
	for _, e := range result.Trace {
		if e.Type == EventTransaction {
			txs = append(txs, e)
		}
	}
	require.Len(t, txs, 2)
	assert.Equal(t, "tx-1", txs[0].TxID)
	assert.Equal(t, "instantiate", txs[0].Entry)
	assert.Equal(t, 0, txs[0].Step)
	assert.Equal(t, "tx-2", txs[1].TxID)
	assert.Equal(t, "execute", txs[1].Entry)
	assert.Equal(t, "owner", txs[1].Sender)
	assert.Equal(t, 2, txs[1].Step)

	var labels []string
	for _, m := range result.Messages() {
		if m.TxID == "tx-2" {
			labels = append(labels, m.Label())
		}
	}
	assert.Equal(t, []string{
		"wasm@strategy-1",
		"wasm@pair",
		"wasm@strategy-1",
		"wasm@pair",
		"wasm@strategy-1",
		"wasm@strategy-1",
	}, labels)
}

func TestRunIsDeterministic(t *testing.T) {
	s := loadTestScenario(t, "four_node_success")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRunReportsUnmetExpectations(t *testing.T) {
	s := &Scenario{
		Name:        "wrong_expectations",
		Description: "every expectation is wrong",
		dir:         "testdata/scenarios",
		Strategies:  []StrategySetup{{Name: "payout", Definition: "../strategies/payout.cue"}},
		Steps: []Step{
			{Fund: &FundStep{Address: "payout", Coins: "10uusk"}},
			{Submit: &SubmitStep{Entry: "withdraw", Contract: "payout", Sender: "owner", Coins: "5uusk"}, Expect: &ExpectClause{Status: StatusFailed}},
			{Submit: &SubmitStep{Entry: "withdraw", Contract: "payout", Sender: "mallory", Coins: "5uusk"}},
			{Submit: &SubmitStep{Entry: "withdraw", Contract: "payout", Sender: "mallory", Coins: "5uusk"}, Expect: &ExpectClause{Status: StatusFailed, Code: "REENTRANT", Error: "nope"}},
		},
		Assertions: []Assertion{{Type: AssertBalance, Address: "payout", Equals: "10uusk"}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "step 2: expected failure")
	assert.Contains(t, result.Errors[1], "step 3: unexpected failure")
	assert.Contains(t, result.Errors[2], `does not contain "nope"`)
	assert.Contains(t, result.Errors[3], `error code "UNAUTHORIZED", want "REENTRANT"`)
	assert.Contains(t, result.Errors[4], "Assertion failed: balance")
}

func TestRunRawMessageAndOperatorSteps(t *testing.T) {
	s := &Scenario{
		Name:        "raw_swap",
		Description: "a raw fin swap after a partial fill",
		World: host.World{
			Balances: map[string]string{"alice": "300uusk"},
			Pairs:    []ir.PairConfig{{Address: "pair", Base: "ukuji", Quote: "uusk"}},
			Orders: []host.WorldOrder{
				{Pair: "pair", Owner: "maker", Side: ir.SideBase, Price: ir.MustDec("1"), Amount: ir.NewDec(100)},
				{Pair: "pair", Owner: "maker", Side: ir.SideBase, Price: ir.MustDec("2"), Amount: ir.NewDec(100)},
			},
		},
		Steps: []Step{
			{Advance: &AdvanceStep{Blocks: 5, Seconds: 30}},
			{Fill: &FillStep{Pair: "pair", Owner: "maker", Side: ir.SideBase, Price: ir.MustDec("1"), Amount: ir.NewDec(50)}},
			{Submit: &SubmitStep{Contract: "pair", Sender: "alice", Funds: "200uusk", Msg: map[string]any{"swap": map[string]any{}}}},
		},
		Assertions: []Assertion{
			// 50ukuji at 1 then 75ukuji at 2.
			{Type: AssertBalance, Address: "alice", Equals: "125ukuji,100uusk"},
			{Type: AssertFinalState, Table: "chain_state", Where: map[string]any{"id": 1}, Expect: map[string]any{"height": 6}},
			{Type: AssertFinalState, Table: "transactions", Where: map[string]any{"id": "tx-1"}, Expect: map[string]any{"entry": "swap", "height": 6}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.NotEmpty(t, result.Trace)
	assert.Equal(t, "swap", result.Trace[0].Entry)
	assert.Equal(t, "wasm@pair", result.Messages()[0].Label())
}

func TestRunFailsOnBadOperatorStep(t *testing.T) {
	s := &Scenario{
		Name:        "bad_fund",
		Description: "fund with garbage",
		Steps:       []Step{{Fund: &FundStep{Address: "a", Coins: "lots"}}},
		Assertions:  []Assertion{{Type: AssertBalance, Address: "a"}},
	}
	_, err := Run(s)
	assert.ErrorContains(t, err, "step 1: fund")
}
