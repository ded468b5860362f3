package ir

import "encoding/json"

// Action is the closed set of operations an action node can run.
// Exactly one field is set; Kind reports which.
type Action struct {
	Swap       *Swap         `json:"swap,omitempty"`
	LimitOrder *LimitOrder   `json:"limit_order,omitempty"`
	Distribute *Distribution `json:"distribute,omitempty"`
}

// ActionKind names an operation variant.
type ActionKind string

const (
	ActionSwap       ActionKind = "swap"
	ActionLimitOrder ActionKind = "limit_order"
	ActionDistribute ActionKind = "distribute"
)

// Kind returns the set variant, or "" when zero or several are set.
func (a Action) Kind() ActionKind {
	var kind ActionKind
	count := 0
	if a.Swap != nil {
		kind, count = ActionSwap, count+1
	}
	if a.LimitOrder != nil {
		kind, count = ActionLimitOrder, count+1
	}
	if a.Distribute != nil {
		kind, count = ActionDistribute, count+1
	}
	if count != 1 {
		return ""
	}
	return kind
}

// Size is the operation's weight toward MaxStrategySize.
func (a Action) Size() int {
	switch a.Kind() {
	case ActionSwap:
		return len(a.Swap.Routes)*4 + 1
	case ActionLimitOrder:
		return 4
	case ActionDistribute:
		return len(a.Distribute.Destinations) + 1
	default:
		return 1
	}
}

// Swap exchanges SwapAmount for at least MinimumReceiveAmount over the
// best of its routes.
type Swap struct {
	SwapAmount           Coin                 `json:"swap_amount"`
	MinimumReceiveAmount Coin                 `json:"minimum_receive_amount"`
	MaximumSlippageBps   uint64               `json:"maximum_slippage_bps"`
	Adjustment           SwapAmountAdjustment `json:"adjustment"`
	Routes               []SwapRoute          `json:"routes"`
}

// SwapAmountAdjustment scales the swap before quoting.
type SwapAmountAdjustment struct {
	Fixed        *FixedAdjustment `json:"fixed,omitempty"`
	LinearScalar *LinearScalar    `json:"linear_scalar,omitempty"`
}

// FixedAdjustment swaps the configured amount, capped at the balance.
type FixedAdjustment struct{}

// LinearScalar grows the swap when the price improves on the base price
// and shrinks it when the price worsens, proportionally to Scalar.
type LinearScalar struct {
	BaseReceiveAmount Coin  `json:"base_receive_amount"`
	MinimumSwapAmount *Coin `json:"minimum_swap_amount,omitempty"`
	Scalar            Dec   `json:"scalar"`
}

// SwapRoute is one venue a swap may execute on.
type SwapRoute struct {
	Fin       *FinRoute       `json:"fin,omitempty"`
	Thorchain *ThorchainRoute `json:"thorchain,omitempty"`
}

// FinRoute swaps against an order-book pair contract.
type FinRoute struct {
	PairAddress string `json:"pair_address"`
}

// ThorchainRoute swaps through a cross-chain deposit with a streaming memo.
type ThorchainRoute struct {
	StreamingInterval    *uint64        `json:"streaming_interval,omitempty"`
	MaxStreamingQuantity *uint64        `json:"max_streaming_quantity,omitempty"`
	AffiliateCode        *string        `json:"affiliate_code,omitempty"`
	AffiliateBps         *uint64        `json:"affiliate_bps,omitempty"`
	LatestSwap           *StreamingSwap `json:"latest_swap,omitempty"`
}

// StreamingSwap caches the last deposit a thorchain route sent.
type StreamingSwap struct {
	SwapAmount            Coin   `json:"swap_amount"`
	ExpectedReceiveAmount Coin   `json:"expected_receive_amount"`
	StartingBlock         uint64 `json:"starting_block"`
	Memo                  string `json:"memo"`
}

// LimitOrder keeps a resting order on a pair, re-pricing it as the book
// moves. CurrentOrder caches the price of the order it last placed.
type LimitOrder struct {
	PairAddress  string        `json:"pair_address"`
	BidDenom     string        `json:"bid_denom"`
	BidAmount    *Dec          `json:"bid_amount,omitempty"`
	Side         Side          `json:"side"`
	Strategy     PriceStrategy `json:"strategy"`
	CurrentOrder *StaleOrder   `json:"current_order,omitempty"`
}

// StaleOrder is the cached identity of a placed order; its amounts must be
// re-read from the pair.
type StaleOrder struct {
	Price Dec `json:"price"`
}

// PriceStrategy picks the order price.
type PriceStrategy struct {
	Fixed  *Dec         `json:"fixed,omitempty"`
	Offset *OffsetPrice `json:"offset,omitempty"`
}

// OffsetPrice follows the top of the book at a distance. Without a
// Tolerance any price change re-places the order.
type OffsetPrice struct {
	Direction Direction `json:"direction"`
	Offset    Offset    `json:"offset"`
	Tolerance *Offset   `json:"tolerance,omitempty"`
}

// Offset is an absolute or percentage price distance.
type Offset struct {
	Exact   *Dec    `json:"exact,omitempty"`
	Percent *uint64 `json:"percent,omitempty"`
}

// Distribution splits the contract's balance of Denoms across
// Destinations by share.
type Distribution struct {
	Denoms       []string      `json:"denoms"`
	Destinations []Destination `json:"destinations"`
}

// Destination receives Shares/total of every distributed denom.
// Distributions accumulates everything it has been sent.
type Destination struct {
	Shares        Dec       `json:"shares"`
	Recipient     Recipient `json:"recipient"`
	Label         string    `json:"label,omitempty"`
	Distributions Coins     `json:"distributions,omitempty"`
}

// Recipient is where a destination's share is sent.
type Recipient struct {
	Bank     *BankRecipient     `json:"bank,omitempty"`
	Contract *ContractRecipient `json:"contract,omitempty"`
	Deposit  *DepositRecipient  `json:"deposit,omitempty"`
}

// BankRecipient receives a plain transfer.
type BankRecipient struct {
	Address string `json:"address"`
}

// ContractRecipient is executed with Msg and the share attached as funds.
type ContractRecipient struct {
	Address string          `json:"address"`
	Msg     json.RawMessage `json:"msg"`
}

// DepositRecipient receives the share as a cross-chain deposit.
type DepositRecipient struct {
	Memo string `json:"memo"`
}

// Key identifies the recipient: its address, or the memo for deposits.
func (r Recipient) Key() string {
	switch {
	case r.Bank != nil:
		return r.Bank.Address
	case r.Contract != nil:
		return r.Contract.Address
	case r.Deposit != nil:
		return r.Deposit.Memo
	}
	return ""
}
