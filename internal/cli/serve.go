package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr  string
	World string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API over the simulated chain",
		Long: `Open the database and serve the HTTP API. Transactions from every
request are applied one at a time by a single chain loop; requests for the
same strategy also serialize on the configured lock.

Example:
  stratagem serve --db ./stratagem.db --addr 127.0.0.1:8080
  stratagem serve --config stratagem.yaml --world world.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.World, "world", "", "world file to seed before serving (default from config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.World != "" {
		cfg.Chain.World = opts.World
	}
	logger := opts.logger()

	chain, closeChain, err := opts.openChain()
	if err != nil {
		return err
	}
	defer closeChain()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmdContext(cmd)
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Chain.World != "" {
		world, err := host.LoadWorld(cfg.Chain.World)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load world", err)
		}
		if err := chain.Seed(ctx, world); err != nil {
			return WrapExitError(ExitFailure, "failed to seed world", err)
		}
		logger.Info("world seeded", "path", cfg.Chain.World)
	}

	srv := server.New(chain,
		server.WithLogger(logger),
		server.WithLocker(opts.locker()),
		server.WithLockTimeouts(cfg.Lock.TTL, cfg.Lock.Wait),
		server.WithKeepers(cfg.Server.Keepers, cfg.Server.KeeperRate, cfg.Server.KeeperBurst),
	)

	logger.Info("serving", "addr", cfg.Server.Addr, "db", cfg.DB, "lock", cfg.Lock.Backend)
	err = srv.ListenAndServe(ctx, server.ServeConfig{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped")
	return nil
}
