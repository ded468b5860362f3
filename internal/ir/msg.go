package ir

import (
	"encoding/json"
	"fmt"
)

// Msg is an effect message a contract asks the host to dispatch.
// Exactly one field is set.
type Msg struct {
	Bank    *BankSend    `json:"bank,omitempty"`
	Wasm    *WasmExecute `json:"wasm,omitempty"`
	Deposit *Deposit     `json:"deposit,omitempty"`
}

// BankSend transfers coins from the sender to ToAddress.
type BankSend struct {
	ToAddress string `json:"to_address"`
	Amount    Coins  `json:"amount"`
}

// WasmExecute runs a contract with Msg, attaching Funds.
type WasmExecute struct {
	ContractAddr string          `json:"contract_addr"`
	Msg          json.RawMessage `json:"msg"`
	Funds        Coins           `json:"funds,omitempty"`
}

// Deposit sends Coins cross-chain; Memo carries the instruction.
type Deposit struct {
	Memo  string `json:"memo"`
	Coins Coins  `json:"coins"`
}

// Kind names the message variant for traces and metrics.
func (m Msg) Kind() string {
	switch {
	case m.Bank != nil:
		return "bank"
	case m.Wasm != nil:
		return "wasm"
	case m.Deposit != nil:
		return "deposit"
	}
	return ""
}

// BankMsg builds a bank transfer message.
func BankMsg(to string, amount ...Coin) Msg {
	return Msg{Bank: &BankSend{ToAddress: to, Amount: Coins(amount).Normalize()}}
}

// WasmMsg builds a contract execution message, encoding payload as JSON.
func WasmMsg(contract string, payload any, funds ...Coin) (Msg, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Msg{}, fmt.Errorf("encode wasm msg for %s: %w", contract, err)
	}
	return Msg{Wasm: &WasmExecute{
		ContractAddr: contract,
		Msg:          raw,
		Funds:        Coins(funds).Normalize(),
	}}, nil
}

// DepositMsg builds a cross-chain deposit message.
func DepositMsg(memo string, coins ...Coin) Msg {
	return Msg{Deposit: &Deposit{Memo: memo, Coins: Coins(coins).Normalize()}}
}

// ExecuteMsg is the strategy contract's execute interface.
// Exactly one field is set.
type ExecuteMsg struct {
	Instantiate *InstantiateMsg `json:"instantiate,omitempty"`
	Init        *InitMsg        `json:"init,omitempty"`
	Execute     *struct{}       `json:"execute,omitempty"`
	Update      *UpdateMsg      `json:"update,omitempty"`
	Withdraw    *WithdrawMsg    `json:"withdraw,omitempty"`
	Cancel      *struct{}       `json:"cancel,omitempty"`
	Process     *ProcessMsg     `json:"process,omitempty"`
	Clear       *struct{}       `json:"clear,omitempty"`
}

// Name returns the variant name, or "" when malformed.
func (m ExecuteMsg) Name() string {
	var name string
	count := 0
	for _, v := range []struct {
		set  bool
		name string
	}{
		{m.Instantiate != nil, "instantiate"},
		{m.Init != nil, "init"},
		{m.Execute != nil, "execute"},
		{m.Update != nil, "update"},
		{m.Withdraw != nil, "withdraw"},
		{m.Cancel != nil, "cancel"},
		{m.Process != nil, "process"},
		{m.Clear != nil, "clear"},
	} {
		if v.set {
			name = v.name
			count++
		}
	}
	if count != 1 {
		return ""
	}
	return name
}

// InstantiateMsg creates a strategy. The sender becomes its manager.
type InstantiateMsg struct {
	Owner      string      `json:"owner"`
	Label      string      `json:"label"`
	Affiliates []Affiliate `json:"affiliates,omitempty"`
	Nodes      []Node      `json:"nodes"`
}

// InitMsg installs and starts a graph.
type InitMsg struct {
	Nodes []Node `json:"nodes"`
}

// UpdateMsg replaces the graph.
type UpdateMsg struct {
	Nodes []Node `json:"nodes"`
}

// WithdrawMsg requests coins for the owner. A zero amount means the full
// balance of that denom.
type WithdrawMsg struct {
	Amounts Coins `json:"amounts"`
}

// ProcessMsg resumes a paused walk after Previous's messages were applied.
type ProcessMsg struct {
	Mode     Mode      `json:"mode"`
	Previous *uint16   `json:"previous,omitempty"`
	Followup *Followup `json:"followup,omitempty"`
}

// Followup is the terminal step a walk carries across pauses.
type Followup struct {
	Withdraw *WithdrawMsg `json:"withdraw,omitempty"`
	Update   *UpdateMsg   `json:"update,omitempty"`
}

// ExecuteInit builds an Init message.
func ExecuteInit(nodes []Node) ExecuteMsg { return ExecuteMsg{Init: &InitMsg{Nodes: nodes}} }

// ExecuteExecute builds an Execute message.
func ExecuteExecute() ExecuteMsg { return ExecuteMsg{Execute: &struct{}{}} }

// ExecuteCancel builds a Cancel message.
func ExecuteCancel() ExecuteMsg { return ExecuteMsg{Cancel: &struct{}{}} }

// ExecuteClear builds a Clear message.
func ExecuteClear() ExecuteMsg { return ExecuteMsg{Clear: &struct{}{}} }

// QueryMsg is the strategy contract's query interface.
type QueryMsg struct {
	Config   *struct{} `json:"config,omitempty"`
	Balances *struct{} `json:"balances,omitempty"`
}

// ConfigResponse answers QueryMsg.Config.
type ConfigResponse struct {
	Address    string      `json:"address"`
	Owner      string      `json:"owner"`
	Manager    string      `json:"manager"`
	Label      string      `json:"label"`
	Affiliates []Affiliate `json:"affiliates"`
	Nodes      []Node      `json:"nodes"`
	Denoms     []string    `json:"denoms"`
	Escrowed   []string    `json:"escrowed"`
	Guarded    bool        `json:"guarded"`
	GraphHash  string      `json:"graph_hash"`
}

// FinExecuteMsg is the execute interface of an order-book pair.
type FinExecuteMsg struct {
	Swap  *FinSwap  `json:"swap,omitempty"`
	Order *FinOrder `json:"order,omitempty"`
}

// FinSwap trades the attached funds at market.
type FinSwap struct {
	MinReturn *Dec `json:"min_return,omitempty"`
}

// FinOrder sets the sender's order at Price to offer Amount in total.
// The attached funds cover any increase; an Amount of zero withdraws it.
type FinOrder struct {
	Side   Side `json:"side"`
	Price  Dec  `json:"price"`
	Amount Dec  `json:"amount"`
}

// Event records one step of contract execution for the trace.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewEvent builds an event from alternating key/value pairs.
func NewEvent(typ string, kv ...string) Event {
	e := Event{Type: typ}
	if len(kv) > 0 {
		e.Attributes = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Attributes[kv[i]] = kv[i+1]
		}
	}
	return e
}
