package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Last   int
	Target string // optional - filter messages to one target
}

// TraceResult holds a journaled transaction and its message tree.
type TraceResult struct {
	Transaction store.TxRecord        `json:"transaction"`
	Messages    []store.MessageRecord `json:"messages"`
	Stats       TraceStats            `json:"stats"`
}

// TraceStats summarizes a trace.
type TraceStats struct {
	Messages int            `json:"messages"`
	Events   int            `json:"events"`
	MaxDepth int            `json:"max_depth"`
	ByKind   map[string]int `json:"by_kind"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [tx-id]",
		Short: "Show the journaled messages of a transaction",
		Long: `Show a transaction from the journal with every message it dispatched,
in dispatch order and indented by depth.

Without a transaction ID, lists the most recent transactions.

Examples:
  stratagem trace tx-3
  stratagem trace tx-3 --target pair
  stratagem trace --last 20 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runTraceList(opts, cmd)
			}
			return runTrace(opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Last, "last", 10, "transactions to list when no ID is given")
	cmd.Flags().StringVar(&opts.Target, "target", "", "only show messages sent to this address")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command, id string) error {
	chain, closeChain, err := opts.openChain()
	if err != nil {
		return err
	}
	defer closeChain()

	rec, msgs, err := chain.Transaction(cmdContext(cmd), id)
	if errors.Is(err, store.ErrNotFound) {
		f := opts.formatter(cmd)
		if outErr := f.Error(ErrCodeNotFound, fmt.Sprintf("transaction %s not found", id), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, fmt.Sprintf("transaction %s not found", id))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read transaction", err)
	}

	result := TraceResult{Transaction: rec, Messages: filterMessages(msgs, opts.Target)}
	result.Stats = traceStats(result.Messages)

	return opts.formatter(cmd).Success(result, func(w io.Writer) {
		writeTrace(w, result, opts.Verbose)
	})
}

func runTraceList(opts *TraceOptions, cmd *cobra.Command) error {
	if opts.Last <= 0 {
		return NewExitError(ExitCommandError, "--last must be positive")
	}
	chain, closeChain, err := opts.openChain()
	if err != nil {
		return err
	}
	defer closeChain()

	txs, err := chain.Transactions(cmdContext(cmd), opts.Last)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list transactions", err)
	}
	return opts.formatter(cmd).Success(txs, func(w io.Writer) {
		if len(txs) == 0 {
			fmt.Fprintln(w, "No transactions")
			return
		}
		for _, tx := range txs {
			fmt.Fprintf(w, "%-10s %-7s %s -> %s.%s (height %d)", tx.ID, tx.Status, tx.Sender, tx.Contract, tx.Entry, tx.Height)
			if tx.Error != "" {
				fmt.Fprintf(w, ": %s", tx.Error)
			}
			fmt.Fprintln(w)
		}
	})
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func filterMessages(msgs []store.MessageRecord, target string) []store.MessageRecord {
	if target == "" {
		return msgs
	}
	var out []store.MessageRecord
	for _, m := range msgs {
		if m.Target == target {
			out = append(out, m)
		}
	}
	return out
}

func traceStats(msgs []store.MessageRecord) TraceStats {
	stats := TraceStats{Messages: len(msgs), ByKind: map[string]int{}}
	for _, m := range msgs {
		stats.Events += len(m.Events)
		stats.ByKind[m.Kind]++
		if m.Depth > stats.MaxDepth {
			stats.MaxDepth = m.Depth
		}
	}
	return stats
}

func writeTrace(w io.Writer, r TraceResult, verbose bool) {
	tx := r.Transaction
	fmt.Fprintf(w, "Transaction %s: %s\n", tx.ID, tx.Status)
	fmt.Fprintf(w, "  %s -> %s.%s", tx.Sender, tx.Contract, tx.Entry)
	if len(tx.Funds) > 0 {
		fmt.Fprintf(w, " with %s", tx.Funds)
	}
	fmt.Fprintf(w, "\n  height %d at %s\n", tx.Height, tx.Time.UTC().Format("2006-01-02T15:04:05Z"))
	if tx.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", tx.Error)
	}

	fmt.Fprintln(w, "\nMessages:")
	if len(r.Messages) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, m := range r.Messages {
		indent := strings.Repeat("  ", m.Depth+1)
		fmt.Fprintf(w, "%s[%d] %s@%s from %s\n", indent, m.Seq, m.Kind, m.Target, m.Sender)
		if verbose {
			fmt.Fprintf(w, "%s    payload: %s\n", indent, m.Payload)
			fmt.Fprintf(w, "%s    id: %s\n", indent, truncateID(m.ID))
		}
		for _, e := range m.Events {
			fmt.Fprintf(w, "%s    event %s%s\n", indent, e.Type, formatAttributes(e))
		}
	}

	fmt.Fprintln(w, "\nStatistics:")
	fmt.Fprintf(w, "  Messages:  %d\n", r.Stats.Messages)
	fmt.Fprintf(w, "  Events:    %d\n", r.Stats.Events)
	fmt.Fprintf(w, "  Max depth: %d\n", r.Stats.MaxDepth)
}

func formatAttributes(e ir.Event) string {
	if len(e.Attributes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Attributes[k]
	}
	return " {" + strings.Join(parts, ", ") + "}"
}

// truncateID shortens a content address for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16] + "..."
}
