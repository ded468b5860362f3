package ir

import "time"

// Condition is the closed set of predicates a condition node can carry.
// Exactly one field is set; Kind reports which.
type Condition struct {
	TimestampElapsed         *TimestampElapsed         `json:"timestamp_elapsed,omitempty"`
	BlocksCompleted          *BlocksCompleted          `json:"blocks_completed,omitempty"`
	CanSwap                  *Swap                     `json:"can_swap,omitempty"`
	LimitOrderFilled         *LimitOrderFilled         `json:"limit_order_filled,omitempty"`
	BalanceAvailable         *BalanceAvailable         `json:"balance_available,omitempty"`
	StrategyBalanceAvailable *StrategyBalanceAvailable `json:"strategy_balance_available,omitempty"`
	StrategyStatus           *StrategyStatusCondition  `json:"strategy_status,omitempty"`
	OraclePrice              *OraclePrice              `json:"oracle_price,omitempty"`
	Not                      *Condition                `json:"not,omitempty"`
	Composite                *Composite                `json:"composite,omitempty"`
}

// ConditionKind names a predicate variant.
type ConditionKind string

const (
	ConditionTimestampElapsed         ConditionKind = "timestamp_elapsed"
	ConditionBlocksCompleted          ConditionKind = "blocks_completed"
	ConditionCanSwap                  ConditionKind = "can_swap"
	ConditionLimitOrderFilled         ConditionKind = "limit_order_filled"
	ConditionBalanceAvailable         ConditionKind = "balance_available"
	ConditionStrategyBalanceAvailable ConditionKind = "strategy_balance_available"
	ConditionStrategyStatus           ConditionKind = "strategy_status"
	ConditionOraclePrice              ConditionKind = "oracle_price"
	ConditionNot                      ConditionKind = "not"
	ConditionComposite                ConditionKind = "composite"
)

// TimestampElapsed holds once block time reaches Timestamp.
type TimestampElapsed struct {
	Timestamp time.Time `json:"timestamp"`
}

// BlocksCompleted holds once block height reaches Height.
type BlocksCompleted struct {
	Height uint64 `json:"height"`
}

// LimitOrderFilled holds when the order at Price has nothing remaining, or
// when at least MinimumFilledAmount has filled. Owner defaults to the
// strategy itself.
type LimitOrderFilled struct {
	PairAddress         string `json:"pair_address"`
	Owner               string `json:"owner,omitempty"`
	Side                Side   `json:"side"`
	Price               Dec    `json:"price"`
	MinimumFilledAmount *Dec   `json:"minimum_filled_amount,omitempty"`
}

// BalanceAvailable holds when Address (default: the strategy) holds at
// least Amount.
type BalanceAvailable struct {
	Address string `json:"address,omitempty"`
	Amount  Coin   `json:"amount"`
}

// StrategyBalanceAvailable holds when the strategy's total balance,
// including funds in open positions, is at least Amount.
type StrategyBalanceAvailable struct {
	Amount Coin `json:"amount"`
}

// StrategyStatusCondition holds when the registry reports Status for
// ContractAddress.
type StrategyStatusCondition struct {
	ManagerContract string         `json:"manager_contract"`
	ContractAddress string         `json:"contract_address"`
	Status          StrategyStatus `json:"status"`
}

// OraclePrice compares the oracle price of Asset against Price.
type OraclePrice struct {
	Asset     string    `json:"asset"`
	Direction Direction `json:"direction"`
	Price     Dec       `json:"price"`
}

// Threshold selects AND or OR semantics for a composite.
type Threshold string

const (
	ThresholdAll Threshold = "all"
	ThresholdAny Threshold = "any"
)

// Composite combines sub-conditions, evaluated left to right with
// short-circuiting.
type Composite struct {
	Conditions []Condition `json:"conditions"`
	Threshold  Threshold   `json:"threshold"`
}

// Kind returns the set variant, or "" when zero or several are set.
func (c Condition) Kind() ConditionKind {
	var kind ConditionKind
	count := 0
	set := func(present bool, k ConditionKind) {
		if present {
			kind = k
			count++
		}
	}
	set(c.TimestampElapsed != nil, ConditionTimestampElapsed)
	set(c.BlocksCompleted != nil, ConditionBlocksCompleted)
	set(c.CanSwap != nil, ConditionCanSwap)
	set(c.LimitOrderFilled != nil, ConditionLimitOrderFilled)
	set(c.BalanceAvailable != nil, ConditionBalanceAvailable)
	set(c.StrategyBalanceAvailable != nil, ConditionStrategyBalanceAvailable)
	set(c.StrategyStatus != nil, ConditionStrategyStatus)
	set(c.OraclePrice != nil, ConditionOraclePrice)
	set(c.Not != nil, ConditionNot)
	set(c.Composite != nil, ConditionComposite)
	if count != 1 {
		return ""
	}
	return kind
}

// Size is the predicate's weight toward MaxStrategySize.
func (c Condition) Size() int {
	switch c.Kind() {
	case ConditionTimestampElapsed, ConditionBlocksCompleted,
		ConditionBalanceAvailable, ConditionStrategyBalanceAvailable:
		return 1
	case ConditionCanSwap, ConditionLimitOrderFilled,
		ConditionStrategyStatus, ConditionOraclePrice:
		return 2
	case ConditionNot:
		return c.Not.Size() + 1
	case ConditionComposite:
		total := 1
		for _, sub := range c.Composite.Conditions {
			total += sub.Size()
		}
		return total
	default:
		return 1
	}
}
