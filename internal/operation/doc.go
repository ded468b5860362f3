// Package operation implements the behavior behind each node of a strategy
// graph.
//
// Actions implement Operation. For picks the implementation for an
// ir.Action:
//
//   - swap: best quote across fin and thorchain routes, with amount
//     adjustment and slippage checks
//   - limit_order: a resting order re-priced from a fixed price or an
//     offset from the top of the book
//   - distribute: share-weighted payouts of the strategy's balances
//
// Conditions are evaluated by Evaluate and checked at init by
// CheckCondition.
//
// Operations never touch state directly. They read through a Querier and
// return effect messages plus their next state; the engine persists the
// state and the host dispatches the messages.
package operation
