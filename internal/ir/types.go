package ir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Graph ceilings. MaxStrategySize bounds the summed node sizes (work per
// full walk); MaxNodes bounds the node table itself.
const (
	MaxNodes              = 50
	MaxStrategySize       = 50
	MaxTotalAffiliateBps  = 200
	MinimumTotalShares    = 10_000
	MinimumLimitOrderBid  = 1_000
	MaxSlippageBps        = 10_000
	ThorchainAffiliate    = "rj"
	ThorchainAffiliateBps = 10
)

// Node is one vertex of a strategy graph. Exactly one of Condition or
// Action is set. Index equals the node's position in the graph.
type Node struct {
	Index     uint16         `json:"index"`
	Condition *ConditionNode `json:"condition,omitempty"`
	Action    *ActionNode    `json:"action,omitempty"`
}

// ConditionNode branches on a predicate. A nil edge terminates the walk.
type ConditionNode struct {
	Condition Condition `json:"condition"`
	OnSuccess *uint16   `json:"on_success,omitempty"`
	OnFailure *uint16   `json:"on_failure,omitempty"`
}

// ActionNode runs an operation and continues to Next.
type ActionNode struct {
	Action Action  `json:"action"`
	Next   *uint16 `json:"next,omitempty"`
}

// NodeKind names the node variant.
type NodeKind string

const (
	NodeKindCondition NodeKind = "condition"
	NodeKindAction    NodeKind = "action"
)

// Kind returns the node variant, or "" when the node is malformed.
func (n Node) Kind() NodeKind {
	switch {
	case n.Condition != nil && n.Action == nil:
		return NodeKindCondition
	case n.Action != nil && n.Condition == nil:
		return NodeKindAction
	default:
		return ""
	}
}

// Edges returns every outgoing edge that is present.
func (n Node) Edges() []uint16 {
	var edges []uint16
	switch n.Kind() {
	case NodeKindCondition:
		if n.Condition.OnSuccess != nil {
			edges = append(edges, *n.Condition.OnSuccess)
		}
		if n.Condition.OnFailure != nil {
			edges = append(edges, *n.Condition.OnFailure)
		}
	case NodeKindAction:
		if n.Action.Next != nil {
			edges = append(edges, *n.Action.Next)
		}
	}
	return edges
}

// Size is the node's contribution to MaxStrategySize.
func (n Node) Size() int {
	switch n.Kind() {
	case NodeKindCondition:
		return n.Condition.Condition.Size()
	case NodeKindAction:
		return n.Action.Action.Size()
	default:
		return 1
	}
}

// Ptr returns a pointer to i, for building edges.
func Ptr(i uint16) *uint16 { return &i }

// Mode selects the edge and lifecycle semantics of a walk.
type Mode string

const (
	ModeExecute  Mode = "execute"
	ModeWithdraw Mode = "withdraw"
	ModeCancel   Mode = "cancel"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeExecute, ModeWithdraw, ModeCancel:
		return true
	}
	return false
}

// Affiliate receives a fee share from distributions and routes.
type Affiliate struct {
	Address string `json:"address" yaml:"address" validate:"required"`
	Bps     uint64 `json:"bps" yaml:"bps" validate:"gt=0,lte=200"`
	Label   string `json:"label" yaml:"label"`
}

// Side is the side of an order book an order rests on.
// A base-side order offers the base denom; a quote-side order offers quote.
type Side string

const (
	SideBase  Side = "base"
	SideQuote Side = "quote"
)

// Direction compares a price against a threshold.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// StrategyStatus is the registry's lifecycle status of a strategy.
type StrategyStatus string

const (
	StatusActive   StrategyStatus = "active"
	StatusPaused   StrategyStatus = "paused"
	StatusArchived StrategyStatus = "archived"
)

// Valid reports whether s is a known status.
func (s StrategyStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusArchived:
		return true
	}
	return false
}

// Definition is an authored strategy: what the registry instantiates.
type Definition struct {
	Label      string      `json:"label"`
	Owner      string      `json:"owner,omitempty"`
	Affiliates []Affiliate `json:"affiliates,omitempty"`
	Nodes      []Node      `json:"nodes"`
}

// Env is the block context a contract call observes.
type Env struct {
	Contract string    `json:"contract"`
	Height   uint64    `json:"height"`
	Time     time.Time `json:"time"`
}

// DecodeNodes parses a JSON node array.
func DecodeNodes(data []byte) ([]Node, error) {
	var nodes []Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	return nodes, nil
}
