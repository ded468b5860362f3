package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/stratagem/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// Graph structure errors (E200-E209), checked in this order
	ErrGraphEmpty    = "E200" // graph has no nodes
	ErrIndexMismatch = "E201" // node at position i does not declare index i
	ErrDanglingEdge  = "E202" // edge targets a missing node
	ErrGraphCycle    = "E203" // edges form a cycle
	ErrGraphTooLarge = "E204" // node count or total size over the ceiling
	ErrMalformedNode = "E205" // node is neither exactly a condition nor an action

	// Operation parameter errors (E210-E219)
	ErrInvalidSwap         = "E210"
	ErrInvalidLimitOrder   = "E211"
	ErrInvalidDistribution = "E212"
	ErrInvalidCondition    = "E213"
	ErrMalformedOperation  = "E214" // union with zero or several variants

	// Affiliate errors (E220-E229)
	ErrInvalidAffiliate    = "E220"
	ErrAffiliateBpsTooHigh = "E221"
)

// ValidationError represents a graph or parameter validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

func nodeField(i int, rest string) string {
	if rest == "" {
		return fmt.Sprintf("nodes[%d]", i)
	}
	return fmt.Sprintf("nodes[%d].%s", i, rest)
}

// ValidateGraph checks the structural invariants of a graph, failing on the
// first violation:
//
//  1. index consistency (node i declares index i)
//  2. edge references (every present edge is < len)
//  3. acyclicity (Kahn's algorithm)
//  4. size ceiling (node count and summed node size)
//
// The returned error is a ValidationError.
func ValidateGraph(nodes []ir.Node) error {
	if len(nodes) == 0 {
		return ValidationError{Field: "nodes", Message: "graph must have at least one node", Code: ErrGraphEmpty}
	}

	for i, n := range nodes {
		if int(n.Index) != i {
			return ValidationError{
				Field:   nodeField(i, "index"),
				Message: fmt.Sprintf("node at position %d declares index %d", i, n.Index),
				Code:    ErrIndexMismatch,
			}
		}
	}

	for i, n := range nodes {
		if n.Kind() == "" {
			return ValidationError{
				Field:   nodeField(i, ""),
				Message: "node must set exactly one of condition or action",
				Code:    ErrMalformedNode,
			}
		}
	}

	for i, n := range nodes {
		for _, target := range n.Edges() {
			if int(target) >= len(nodes) {
				return ValidationError{
					Field:   nodeField(i, "edges"),
					Message: fmt.Sprintf("edge %d → %d references a missing node (graph has %d)", i, target, len(nodes)),
					Code:    ErrDanglingEdge,
				}
			}
		}
	}

	adj := buildAdjacency(nodes)
	if remaining := kahnRemainder(adj); len(remaining) > 0 {
		msg := fmt.Sprintf("cycle detected among nodes %v", remaining)
		if path := cyclePath(adj); len(path) > 0 {
			msg += fmt.Sprintf(" (%s)", formatPath(path))
		}
		return ValidationError{Field: "nodes", Message: msg, Code: ErrGraphCycle}
	}

	if len(nodes) > ir.MaxNodes {
		return ValidationError{
			Field:   "nodes",
			Message: fmt.Sprintf("graph has %d nodes, maximum is %d", len(nodes), ir.MaxNodes),
			Code:    ErrGraphTooLarge,
		}
	}
	total := 0
	for _, n := range nodes {
		total += n.Size()
	}
	if total > ir.MaxStrategySize {
		return ValidationError{
			Field:   "nodes",
			Message: fmt.Sprintf("graph size %d exceeds maximum %d", total, ir.MaxStrategySize),
			Code:    ErrGraphTooLarge,
		}
	}
	return nil
}

// ValidateAffiliates checks each affiliate and the combined fee.
func ValidateAffiliates(affiliates []ir.Affiliate) error {
	var total uint64
	for i, a := range affiliates {
		field := fmt.Sprintf("affiliates[%d]", i)
		if strings.TrimSpace(a.Address) == "" {
			return ValidationError{Field: field + ".address", Message: "address is required", Code: ErrInvalidAffiliate}
		}
		if a.Bps == 0 {
			return ValidationError{Field: field + ".bps", Message: "bps must be positive", Code: ErrInvalidAffiliate}
		}
		total += a.Bps
	}
	if total > ir.MaxTotalAffiliateBps {
		return ValidationError{
			Field:   "affiliates",
			Message: fmt.Sprintf("total affiliate bps %d exceeds maximum %d", total, ir.MaxTotalAffiliateBps),
			Code:    ErrAffiliateBpsTooHigh,
		}
	}
	return nil
}

// ValidateOperations runs the chain-independent parameter checks of every
// node. Returns all errors found (does not fail-fast).
func ValidateOperations(nodes []ir.Node) []ValidationError {
	var errs []ValidationError
	for i, n := range nodes {
		switch n.Kind() {
		case ir.NodeKindAction:
			errs = append(errs, tag(i, "action", CheckAction(n.Action.Action))...)
		case ir.NodeKindCondition:
			errs = append(errs, tag(i, "condition", CheckCondition(n.Condition.Condition))...)
		}
	}
	return errs
}

func tag(i int, kind string, errs []ValidationError) []ValidationError {
	for j := range errs {
		errs[j].Field = nodeField(i, kind+"."+errs[j].Field)
	}
	return errs
}

// CheckAction runs the static checks of one operation.
func CheckAction(a ir.Action) []ValidationError {
	switch a.Kind() {
	case ir.ActionSwap:
		return CheckSwap(*a.Swap)
	case ir.ActionLimitOrder:
		return CheckLimitOrder(*a.LimitOrder)
	case ir.ActionDistribute:
		return CheckDistribution(*a.Distribute)
	default:
		return []ValidationError{{Field: "action", Message: "action must set exactly one operation", Code: ErrMalformedOperation}}
	}
}

// CheckSwap validates swap parameters.
func CheckSwap(s ir.Swap) []ValidationError {
	var errs []ValidationError
	bad := func(field, msg string) {
		errs = append(errs, ValidationError{Field: "swap." + field, Message: msg, Code: ErrInvalidSwap})
	}

	amount := func(field string, d ir.Dec) {
		if err := ir.CheckAmount(d); err != nil {
			bad(field, err.Error())
		}
	}

	if s.SwapAmount.Amount.IsZero() || s.SwapAmount.Amount.IsNegative() {
		bad("swap_amount", "swap amount must be positive")
	} else {
		amount("swap_amount", s.SwapAmount.Amount)
	}
	amount("minimum_receive_amount", s.MinimumReceiveAmount.Amount)
	if s.SwapAmount.Denom == "" || s.MinimumReceiveAmount.Denom == "" {
		bad("denom", "swap and receive denoms are required")
	}
	if s.SwapAmount.Denom == s.MinimumReceiveAmount.Denom {
		bad("minimum_receive_amount", "cannot swap a denom into itself")
	}
	if s.MaximumSlippageBps > ir.MaxSlippageBps {
		bad("maximum_slippage_bps", fmt.Sprintf("maximum slippage bps cannot exceed %d", ir.MaxSlippageBps))
	}
	if len(s.Routes) == 0 {
		bad("routes", "no swap routes provided")
	}

	adj := s.Adjustment
	switch {
	case adj.Fixed != nil && adj.LinearScalar == nil:
	case adj.LinearScalar != nil && adj.Fixed == nil:
		ls := adj.LinearScalar
		if ls.BaseReceiveAmount.Amount.IsZero() {
			bad("adjustment.linear_scalar.base_receive_amount", "base receive amount cannot be zero")
		} else {
			amount("adjustment.linear_scalar.base_receive_amount", ls.BaseReceiveAmount.Amount)
		}
		if ls.MinimumSwapAmount != nil {
			amount("adjustment.linear_scalar.minimum_swap_amount", ls.MinimumSwapAmount.Amount)
		}
		if ls.Scalar.IsNegative() {
			bad("adjustment.linear_scalar.scalar", "scalar cannot be negative")
		}
		if ls.BaseReceiveAmount.Denom != s.MinimumReceiveAmount.Denom {
			bad("adjustment.linear_scalar.base_receive_amount", "base receive amount denom must match minimum receive amount denom")
		}
		if ls.MinimumSwapAmount != nil && ls.MinimumSwapAmount.Denom != s.SwapAmount.Denom {
			bad("adjustment.linear_scalar.minimum_swap_amount", "minimum swap amount denom must match swap amount denom")
		}
	default:
		bad("adjustment", "adjustment must be exactly one of fixed or linear_scalar")
	}

	for i, r := range s.Routes {
		field := fmt.Sprintf("routes[%d]", i)
		switch {
		case r.Fin != nil && r.Thorchain == nil:
			if r.Fin.PairAddress == "" {
				bad(field+".fin.pair_address", "pair address is required")
			}
		case r.Thorchain != nil && r.Fin == nil:
			t := r.Thorchain
			if t.StreamingInterval != nil && (*t.StreamingInterval == 0 || *t.StreamingInterval > 50) {
				bad(field+".thorchain.streaming_interval", "streaming interval must be between 1 and 50 blocks")
			}
			if t.MaxStreamingQuantity != nil && (*t.MaxStreamingQuantity == 0 || *t.MaxStreamingQuantity > 14_400) {
				bad(field+".thorchain.max_streaming_quantity", "maximum streaming quantity must be between 1 and 14,400")
			}
		default:
			bad(field, "route must be exactly one of fin or thorchain")
		}
	}
	return errs
}

// CheckLimitOrder validates limit order parameters.
func CheckLimitOrder(o ir.LimitOrder) []ValidationError {
	var errs []ValidationError
	bad := func(field, msg string) {
		errs = append(errs, ValidationError{Field: "limit_order." + field, Message: msg, Code: ErrInvalidLimitOrder})
	}

	if o.PairAddress == "" {
		bad("pair_address", "pair address is required")
	}
	if o.BidDenom == "" {
		bad("bid_denom", "bid denom is required")
	}
	if o.Side != ir.SideBase && o.Side != ir.SideQuote {
		bad("side", fmt.Sprintf("side must be base or quote, got %q", o.Side))
	}
	if o.BidAmount != nil {
		if o.BidAmount.Cmp(ir.NewDec(ir.MinimumLimitOrderBid)) < 0 {
			bad("bid_amount", fmt.Sprintf("bid amount cannot be less than %d", ir.MinimumLimitOrderBid))
		} else if err := ir.CheckAmount(*o.BidAmount); err != nil {
			bad("bid_amount", err.Error())
		}
	}
	if o.CurrentOrder != nil {
		bad("current_order", "cannot initialise a limit order with a current order already set")
	}

	ps := o.Strategy
	switch {
	case ps.Fixed != nil && ps.Offset == nil:
		if ps.Fixed.IsZero() || ps.Fixed.IsNegative() {
			bad("strategy.fixed", "fixed price must be positive")
		}
	case ps.Offset != nil && ps.Fixed == nil:
		if d := ps.Offset.Direction; d != ir.DirectionAbove && d != ir.DirectionBelow {
			bad("strategy.offset.direction", fmt.Sprintf("direction must be above or below, got %q", d))
		}
		if msg := checkOffset(ps.Offset.Offset); msg != "" {
			bad("strategy.offset.offset", msg)
		}
		if ps.Offset.Tolerance != nil {
			if msg := checkOffset(*ps.Offset.Tolerance); msg != "" {
				bad("strategy.offset.tolerance", msg)
			}
		}
	default:
		bad("strategy", "strategy must be exactly one of fixed or offset")
	}
	return errs
}

func checkOffset(o ir.Offset) string {
	switch {
	case o.Exact != nil && o.Percent == nil:
		if o.Exact.IsNegative() {
			return "exact offset cannot be negative"
		}
	case o.Percent != nil && o.Exact == nil:
	default:
		return "offset must be exactly one of exact or percent"
	}
	return ""
}

// CheckDistribution validates distribution parameters.
func CheckDistribution(d ir.Distribution) []ValidationError {
	var errs []ValidationError
	bad := func(field, msg string) {
		errs = append(errs, ValidationError{Field: "distribute." + field, Message: msg, Code: ErrInvalidDistribution})
	}

	if len(d.Denoms) == 0 {
		bad("denoms", "denoms cannot be empty")
	}
	if len(ir.NewDenomSet(d.Denoms...)) != len(d.Denoms) {
		bad("denoms", "denoms cannot contain duplicates")
	}
	if len(d.Destinations) == 0 {
		bad("destinations", "destinations cannot be empty")
	}

	var total ir.Dec
	for i, dest := range d.Destinations {
		field := fmt.Sprintf("destinations[%d]", i)
		if dest.Shares.IsZero() || dest.Shares.IsNegative() {
			bad(field+".shares", "destination shares cannot be zero")
		} else if err := ir.CheckAmount(dest.Shares); err != nil {
			bad(field+".shares", err.Error())
		}
		total = total.Add(dest.Shares)

		r := dest.Recipient
		switch {
		case r.Bank != nil && r.Contract == nil && r.Deposit == nil:
			if strings.TrimSpace(r.Bank.Address) == "" {
				bad(field+".recipient.bank.address", "address is required")
			}
		case r.Contract != nil && r.Bank == nil && r.Deposit == nil:
			if strings.TrimSpace(r.Contract.Address) == "" {
				bad(field+".recipient.contract.address", "address is required")
			}
		case r.Deposit != nil && r.Bank == nil && r.Contract == nil:
		default:
			bad(field+".recipient", "recipient must be exactly one of bank, contract, or deposit")
		}
	}
	if len(d.Destinations) > 0 && total.Cmp(ir.NewDec(ir.MinimumTotalShares)) < 0 {
		bad("destinations", fmt.Sprintf("total shares must be at least %d", ir.MinimumTotalShares))
	}
	return errs
}

// CheckCondition runs the static checks of a predicate, recursing into
// not and composite.
func CheckCondition(c ir.Condition) []ValidationError {
	bad := func(field, msg string) []ValidationError {
		return []ValidationError{{Field: field, Message: msg, Code: ErrInvalidCondition}}
	}

	switch c.Kind() {
	case ir.ConditionTimestampElapsed, ir.ConditionBlocksCompleted:
		return nil
	case ir.ConditionCanSwap:
		return CheckSwap(*c.CanSwap)
	case ir.ConditionLimitOrderFilled:
		lf := c.LimitOrderFilled
		if lf.PairAddress == "" {
			return bad("limit_order_filled.pair_address", "pair address is required")
		}
		if lf.Side != ir.SideBase && lf.Side != ir.SideQuote {
			return bad("limit_order_filled.side", fmt.Sprintf("side must be base or quote, got %q", lf.Side))
		}
		if lf.Price.IsZero() || lf.Price.IsNegative() {
			return bad("limit_order_filled.price", "price must be positive")
		}
	case ir.ConditionBalanceAvailable:
		if err := c.BalanceAvailable.Amount.Validate(); err != nil {
			return bad("balance_available.amount", err.Error())
		}
	case ir.ConditionStrategyBalanceAvailable:
		if err := c.StrategyBalanceAvailable.Amount.Validate(); err != nil {
			return bad("strategy_balance_available.amount", err.Error())
		}
	case ir.ConditionStrategyStatus:
		s := c.StrategyStatus
		if s.ManagerContract == "" || s.ContractAddress == "" {
			return bad("strategy_status", "manager and contract addresses are required")
		}
		if !s.Status.Valid() {
			return bad("strategy_status.status", fmt.Sprintf("unknown status %q", s.Status))
		}
	case ir.ConditionOraclePrice:
		o := c.OraclePrice
		if o.Asset == "" {
			return bad("oracle_price.asset", "asset is required")
		}
		if o.Direction != ir.DirectionAbove && o.Direction != ir.DirectionBelow {
			return bad("oracle_price.direction", fmt.Sprintf("direction must be above or below, got %q", o.Direction))
		}
	case ir.ConditionNot:
		return CheckCondition(*c.Not)
	case ir.ConditionComposite:
		comp := c.Composite
		if len(comp.Conditions) == 0 {
			return bad("composite.conditions", "composite must have at least one condition")
		}
		if comp.Threshold != ir.ThresholdAll && comp.Threshold != ir.ThresholdAny {
			return bad("composite.threshold", fmt.Sprintf("threshold must be all or any, got %q", comp.Threshold))
		}
		var errs []ValidationError
		for i, sub := range comp.Conditions {
			for _, e := range CheckCondition(sub) {
				e.Field = fmt.Sprintf("composite.conditions[%d].%s", i, e.Field)
				errs = append(errs, e)
			}
		}
		return errs
	default:
		return bad("condition", "condition must set exactly one predicate")
	}
	return nil
}

// Join folds validation errors into a single error, or nil.
func Join(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return ValidationError{
		Field:   errs[0].Field,
		Message: strings.Join(parts, "; "),
		Code:    errs[0].Code,
	}
}
