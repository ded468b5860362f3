package harness

import (
	"encoding/json"

	"github.com/roach88/stratagem/internal/ir"
)

// Trace event types.
const (
	EventTransaction = "transaction"
	EventMessage     = "message"
)

// TraceEvent is one transaction or one dispatched message.
type TraceEvent struct {
	Type string `json:"type"`
	Step int    `json:"step"`
	TxID string `json:"tx_id"`

	// Transaction fields.
	Entry    string `json:"entry,omitempty"`
	Contract string `json:"contract,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`

	// Message fields.
	Seq     int             `json:"seq,omitempty"`
	ID      string          `json:"id,omitempty"`
	Depth   int             `json:"depth,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Events  []ir.Event      `json:"events,omitempty"`

	Sender string `json:"sender"`
}

// Label renders a message event as kind@target.
func (e TraceEvent) Label() string {
	return e.Kind + "@" + e.Target
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every transaction followed by its messages, in order.
	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`

	// Addresses maps scenario strategy names to their chain addresses.
	Addresses map[string]string `json:"addresses,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Addresses: make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Messages returns the message events of the trace.
func (r *Result) Messages() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventMessage {
			out = append(out, e)
		}
	}
	return out
}
