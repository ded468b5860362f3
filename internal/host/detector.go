package host

import "sync"

// ContinuationDetector tracks the Process continuations dispatched in each
// transaction.
//
// A strategy resumes its walk by sending itself Process{mode, previous}.
// In a well-formed graph every (contract, mode, previous) triple can occur
// at most once per transaction: the walk only moves forward. Seeing the
// same triple twice means the graph or the contract state was corrupted,
// and the transaction is aborted rather than looping until the message
// quota trips.
//
// History is in-memory and scoped to a transaction ID. The chain clears
// it when the transaction commits or rolls back.
type ContinuationDetector struct {
	mu      sync.Mutex
	history map[string]map[string]bool // map[tx_id]map[continuation_key]bool
}

// NewContinuationDetector creates an empty detector.
func NewContinuationDetector() *ContinuationDetector {
	return &ContinuationDetector{
		history: make(map[string]map[string]bool),
	}
}

func continuationKey(contract, mode, previous string) string {
	return contract + "|" + mode + "|" + previous
}

// Seen reports whether the continuation already ran in this transaction.
func (d *ContinuationDetector) Seen(txID, contract, mode, previous string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.history[txID] == nil {
		return false
	}
	return d.history[txID][continuationKey(contract, mode, previous)]
}

// Record marks the continuation as dispatched.
func (d *ContinuationDetector) Record(txID, contract, mode, previous string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.history[txID] == nil {
		d.history[txID] = make(map[string]bool)
	}
	d.history[txID][continuationKey(contract, mode, previous)] = true
}

// Observe records the continuation and reports whether it was new.
func (d *ContinuationDetector) Observe(txID, contract, mode, previous string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := d.history[txID]
	if seen == nil {
		seen = make(map[string]bool)
		d.history[txID] = seen
	}
	key := continuationKey(contract, mode, previous)
	if seen[key] {
		return false
	}
	seen[key] = true
	return true
}

// Clear drops the history of a transaction.
func (d *ContinuationDetector) Clear(txID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.history, txID)
}

// HistorySize returns the number of transactions with tracked history.
func (d *ContinuationDetector) HistorySize() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.history)
}

// TxHistorySize returns the number of continuations tracked for a
// transaction.
func (d *ContinuationDetector) TxHistorySize(txID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.history[txID])
}
