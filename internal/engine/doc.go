// Package engine implements the strategy contract.
//
// A strategy is a graph of condition and action nodes stored through
// store.Graph. The contract handles the execute messages of the strategy
// (instantiate, init, execute, update, withdraw, cancel, process, clear)
// and its two queries (config, balances).
//
// WALK:
//
// Every entry that moves funds runs a walk in one of three modes. A walk
// commits the node it resumes after, then visits nodes through Graph.Next
// until an action returns messages. Those messages are returned followed
// by a Process self-message naming the action, and the walk pauses. The
// host dispatches depth first, so the Process runs only after every
// message before it, and their replies, have been applied.
//
// GUARD:
//
// Top-level entries set a persisted guard and end their response with a
// Clear self-message. A top-level entry that finds the guard set fails
// with a reentrancy error. The owner may send Clear to recover a wedged
// guard.
//
// ERRORS:
//
// Every failure is a RuntimeError (or StepsExceededError) and aborts the
// host transaction, which rolls back the graph, the guard, and balances.
// Nothing is swallowed during a walk.
package engine
