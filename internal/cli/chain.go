package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/ir"
)

// NewChainCommand creates the chain command group: operator actions that
// move the simulated chain without a strategy transaction.
func NewChainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Operate the simulated chain",
	}
	cmd.AddCommand(newChainSeedCommand(rootOpts))
	cmd.AddCommand(newChainFundCommand(rootOpts))
	cmd.AddCommand(newChainAdvanceCommand(rootOpts))
	cmd.AddCommand(newChainFillCommand(rootOpts))
	return cmd
}

func newChainSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <world.yaml>",
		Short: "Seed balances, pairs, orders, and oracle prices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			world, err := host.LoadWorld(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load world", err)
			}
			return rootOpts.withChain(cmd, "chain", func(ctx context.Context, chain *host.Chain) error {
				if err := chain.Seed(ctx, world); err != nil {
					return WrapExitError(ExitFailure, "failed to seed world", err)
				}
				summary := map[string]int{
					"balances": len(world.Balances),
					"pairs":    len(world.Pairs),
					"orders":   len(world.Orders),
					"prices":   len(world.Prices),
				}
				return rootOpts.formatter(cmd).Success(summary, func(w io.Writer) {
					fmt.Fprintf(w, "seeded %d balance(s), %d pair(s), %d order(s), %d price(s)\n",
						summary["balances"], summary["pairs"], summary["orders"], summary["prices"])
				})
			})
		},
	}
}

func newChainFundCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fund <address> <coins>",
		Short: "Mint coins to an address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			coins, err := ir.ParseCoins(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid coins", err)
			}
			return rootOpts.withChain(cmd, args[0], func(ctx context.Context, chain *host.Chain) error {
				if err := chain.Fund(ctx, args[0], coins...); err != nil {
					return WrapExitError(ExitFailure, "fund failed", err)
				}
				balance, err := chain.Balances(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "balance failed", err)
				}
				return rootOpts.formatter(cmd).Success(map[string]any{"address": args[0], "balance": balance}, func(w io.Writer) {
					fmt.Fprintf(w, "%s holds %s\n", args[0], balance)
				})
			})
		},
	}
}

func newChainAdvanceCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		blocks  uint64
		seconds int64
	)
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Move the block clock forward",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withChain(cmd, "chain", func(ctx context.Context, chain *host.Chain) error {
				height, at, err := chain.Advance(ctx, blocks, seconds)
				if err != nil {
					return WrapExitError(ExitFailure, "advance failed", err)
				}
				return rootOpts.formatter(cmd).Success(map[string]any{"height": height, "time": at}, func(w io.Writer) {
					fmt.Fprintf(w, "height %d, time %s\n", height, at.UTC().Format("2006-01-02T15:04:05Z"))
				})
			})
		},
	}
	cmd.Flags().Uint64Var(&blocks, "blocks", 1, "blocks to advance")
	cmd.Flags().Int64Var(&seconds, "seconds", 0, "seconds to advance")
	return cmd
}

func newChainFillCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fill <pair> <owner> <side> <price> <amount>",
		Short: "Fill part of a resting order",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			side := ir.Side(args[2])
			if side != ir.SideBase && side != ir.SideQuote {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown side %q: must be base or quote", args[2]))
			}
			price, err := ir.ParseDec(args[3])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid price", err)
			}
			amount, err := ir.ParseDec(args[4])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid amount", err)
			}
			return rootOpts.withChain(cmd, args[0], func(ctx context.Context, chain *host.Chain) error {
				order, err := chain.FillOrder(ctx, args[0], args[1], side, price, amount)
				if err != nil {
					return WrapExitError(ExitFailure, "fill failed", err)
				}
				return rootOpts.formatter(cmd).Success(order, func(w io.Writer) {
					fmt.Fprintf(w, "order %s %s@%s: remaining %s, filled %s\n",
						order.Owner, order.Side, order.Price, order.Remaining, order.Filled)
				})
			})
		},
	}
}
