package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/lock"
)

// InvokeOptions holds the flags shared by the transaction commands.
type InvokeOptions struct {
	*RootOptions
	Sender string
	Funds  string
}

func (o *InvokeOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Sender, "sender", "", "transaction sender (required)")
	cmd.Flags().StringVar(&o.Funds, "funds", "", "coins attached to the transaction, e.g. 100uusk")
	_ = cmd.MarkFlagRequired("sender")
}

// submit sends msg to contract under the strategy's lock and reports the
// receipt.
func (o *InvokeOptions) submit(cmd *cobra.Command, contract string, msg ir.ExecuteMsg) error {
	funds, err := ir.ParseCoins(o.Funds)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --funds", err)
	}
	req, err := host.NewRequest(o.Sender, contract, msg, funds...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid request", err)
	}

	return o.withChain(cmd, contract, func(ctx context.Context, chain *host.Chain) error {
		receipt, txErr := chain.Submit(ctx, req)
		return o.formatter(cmd).Receipt(receipt, txErr)
	})
}

// withChain opens the chain and runs fn holding the lock on key.
func (o *RootOptions) withChain(cmd *cobra.Command, key string, fn func(context.Context, *host.Chain) error) error {
	chain, closeChain, err := o.openChain()
	if err != nil {
		return err
	}
	defer closeChain()

	ctx := cmdContext(cmd)
	l := o.Config.Lock
	lockCtx := ctx
	if l.Wait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, l.Wait)
		defer cancel()
	}
	var fnErr error
	err = lock.WithLock(lockCtx, o.locker(), key, l.TTL, func(context.Context) error {
		fnErr = fn(ctx, chain)
		return nil
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to lock strategy", err)
	}
	return fnErr
}

// NewInstantiateCommand creates the instantiate command.
func NewInstantiateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		manager, owner, label, funds string
		affiliates                   []string
	)

	cmd := &cobra.Command{
		Use:   "instantiate <definition.cue>",
		Short: "Create a strategy from a definition",
		Long: `Create a strategy at a fresh address and start it.

The manager (default: the registry) sends the transaction and tracks the
strategy. Owner and label default to the definition's values.

Example:
  stratagem instantiate dca.cue --owner alice --affiliate app:20:frontend`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := LoadDefinition(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load definition", err)
			}
			req := host.InstantiateRequest{
				Manager:    manager,
				Owner:      def.Owner,
				Label:      def.Label,
				Affiliates: def.Affiliates,
				Nodes:      def.Nodes,
			}
			if owner != "" {
				req.Owner = owner
			}
			if label != "" {
				req.Label = label
			}
			for _, s := range affiliates {
				a, err := parseAffiliate(s)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --affiliate", err)
				}
				req.Affiliates = append(req.Affiliates, a)
			}
			if req.Funds, err = ir.ParseCoins(funds); err != nil {
				return WrapExitError(ExitCommandError, "invalid --funds", err)
			}

			return rootOpts.withChain(cmd, "instantiate", func(ctx context.Context, chain *host.Chain) error {
				addr, receipt, txErr := chain.Instantiate(ctx, req)
				f := rootOpts.formatter(cmd)
				if txErr != nil {
					return f.Receipt(receipt, txErr)
				}
				return f.Success(map[string]any{"address": addr, "receipt": receipt}, func(w io.Writer) {
					fmt.Fprintf(w, "instantiated %s at %s\n", req.Label, addr)
					writeReceipt(w, receipt)
				})
			})
		},
	}

	cmd.Flags().StringVar(&manager, "manager", "", "manager contract (default: the registry)")
	cmd.Flags().StringVar(&owner, "owner", "", "strategy owner (default: the definition's owner)")
	cmd.Flags().StringVar(&label, "label", "", "strategy label (default: the definition's label)")
	cmd.Flags().StringArrayVar(&affiliates, "affiliate", nil, "affiliate as address:bps[:label] (repeatable)")
	cmd.Flags().StringVar(&funds, "funds", "", "coins sent with the instantiation")

	return cmd
}

// NewEntryCommand creates a command that sends an argument-free entry
// (execute, cancel, or clear) to a strategy.
func NewEntryCommand(rootOpts *RootOptions, entry string) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}
	build := map[string]func() ir.ExecuteMsg{
		"execute": ir.ExecuteExecute,
		"cancel":  ir.ExecuteCancel,
		"clear":   ir.ExecuteClear,
	}[entry]

	cmd := &cobra.Command{
		Use:   entry + " <address>",
		Short: fmt.Sprintf("Send %s to a strategy", entry),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.submit(cmd, args[0], build())
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <address> <definition.cue>",
		Short: "Replace a strategy's graph",
		Long: `Replace a strategy's graph. Open positions of the old graph are
cancelled before the new graph is installed and started.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := LoadDefinition(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load definition", err)
			}
			return opts.submit(cmd, args[0], ir.ExecuteMsg{Update: &ir.UpdateMsg{Nodes: def.Nodes}})
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewWithdrawCommand creates the withdraw command.
func NewWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}
	var coins string

	cmd := &cobra.Command{
		Use:   "withdraw <address>",
		Short: "Withdraw coins to the strategy owner",
		Long: `Withdraw coins to the strategy owner. A zero amount withdraws the
full balance of that denom. Escrowed denoms cannot be withdrawn.

Example:
  stratagem withdraw strategy-1 --sender alice --coins 100uatom,0ukuji`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amounts, err := ir.ParseCoins(coins)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --coins", err)
			}
			return opts.submit(cmd, args[0], ir.ExecuteMsg{Withdraw: &ir.WithdrawMsg{Amounts: amounts}})
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&coins, "coins", "", "amounts to withdraw (required)")
	_ = cmd.MarkFlagRequired("coins")
	return cmd
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var sender string

	cmd := &cobra.Command{
		Use:   "status <address> <active|paused|archived>",
		Short: "Change a strategy's registry status",
		Long: `Change a strategy's registry status. Activating executes the strategy;
pausing or archiving cancels it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := ir.StrategyStatus(args[1])
			if !status.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q: must be active, paused, or archived", args[1]))
			}
			return rootOpts.withChain(cmd, args[0], func(ctx context.Context, chain *host.Chain) error {
				receipt, txErr := chain.SetStatus(ctx, sender, args[0], status)
				return rootOpts.formatter(cmd).Receipt(receipt, txErr)
			})
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "manager sending the change (required)")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}
