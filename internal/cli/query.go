package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/store"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <config|balances> <address>",
		Short: "Query a strategy",
		Long: `Query a strategy.

  config    owner, manager, label, affiliates, graph, denoms, and escrow
  balances  held coins plus coins locked in open positions`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"config", "balances"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var msg ir.QueryMsg
			switch args[0] {
			case "config":
				msg.Config = &struct{}{}
			case "balances":
				msg.Balances = &struct{}{}
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown query %q: must be config or balances", args[0]))
			}
			return runQuery(rootOpts, cmd, args[1], msg)
		},
	}
	return cmd
}

func runQuery(opts *RootOptions, cmd *cobra.Command, address string, msg ir.QueryMsg) error {
	chain, closeChain, err := opts.openChain()
	if err != nil {
		return err
	}
	defer closeChain()

	result, err := chain.Query(cmdContext(cmd), address, msg)
	if err != nil {
		code := ErrCodeGeneric
		if errors.Is(err, host.ErrUnknownContract) || errors.Is(err, store.ErrNotFound) {
			code = ErrCodeNotFound
		}
		f := opts.formatter(cmd)
		if outErr := f.Error(code, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "query failed", err)
	}
	return opts.formatter(cmd).Success(result, func(w io.Writer) {
		switch r := result.(type) {
		case ir.ConfigResponse:
			writeConfig(w, r)
		case ir.Coins:
			if len(r) == 0 {
				fmt.Fprintln(w, "(no balances)")
			}
			for _, c := range r {
				fmt.Fprintln(w, c.String())
			}
		default:
			fmt.Fprintln(w, r)
		}
	})
}

func writeConfig(w io.Writer, c ir.ConfigResponse) {
	fmt.Fprintf(w, "address:  %s\n", c.Address)
	fmt.Fprintf(w, "label:    %s\n", c.Label)
	fmt.Fprintf(w, "owner:    %s\n", c.Owner)
	fmt.Fprintf(w, "manager:  %s\n", c.Manager)
	fmt.Fprintf(w, "nodes:    %d (hash %s)\n", len(c.Nodes), c.GraphHash)
	fmt.Fprintf(w, "denoms:   %v\n", c.Denoms)
	fmt.Fprintf(w, "escrowed: %v\n", c.Escrowed)
	fmt.Fprintf(w, "guarded:  %t\n", c.Guarded)
	for _, a := range c.Affiliates {
		fmt.Fprintf(w, "affiliate: %s %dbps %s\n", a.Address, a.Bps, a.Label)
	}
}
