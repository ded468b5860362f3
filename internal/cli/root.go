package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/stratagem/internal/config"
	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/lock"
	"github.com/roach88/stratagem/internal/logging"
	"github.com/roach88/stratagem/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	DB         string
	ConfigPath string

	// Config is loaded before any subcommand runs. Flags override it.
	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the stratagem CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "stratagem",
		Short: "Stratagem - strategy graphs on a simulated chain",
		Long: `Author, instantiate, and drive strategy graphs against a simulated
chain backed by a local SQLite database.

A strategy is a DAG of conditions and operations (swaps, limit orders,
distributions) written in CUE. Executing it walks the graph, pausing
whenever an operation must settle before the next node runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "path to SQLite database (default from config, stratagem.db)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewInstantiateCommand(opts))
	for _, entry := range []string{"execute", "cancel", "clear"} {
		cmd.AddCommand(NewEntryCommand(opts, entry))
	}
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewWithdrawCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewChainCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// load reads the config file, applies flag overrides, and installs the
// process logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if cmd.Flags().Changed("db") {
		cfg.DB = o.DB
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	o.Config = cfg
	o.DB = cfg.DB

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	o.Logger = logging.NewWriter(cmd.ErrOrStderr(), level, logging.Format(cfg.Log.Format))
	slog.SetDefault(o.Logger)
	return nil
}

// formatter returns an output formatter bound to cmd's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openChain opens the database and a chain configured from o.Config. The
// returned close function releases the store.
func (o *RootOptions) openChain() (*host.Chain, func(), error) {
	st, err := store.Open(o.DB)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	c := o.Config.Chain
	chain := host.New(st,
		host.WithLogger(o.logger()),
		host.WithMaxMessages(c.MaxMessages),
		host.WithRegistry(c.Registry),
		host.WithThorchainFee(c.ThorchainFeeBps, ir.NewDec(0)),
	)
	closer := func() {
		if err := st.Close(); err != nil {
			o.logger().Error("error closing database", "err", err)
		}
	}
	return chain, closer, nil
}

// locker builds the per-strategy lock from o.Config.
func (o *RootOptions) locker() lock.Locker {
	l := o.Config.Lock
	if l.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: l.RedisAddr})
		return lock.NewRedis(client, l.Prefix)
	}
	return lock.NewMemory()
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return logging.NewNop()
	}
	return o.Logger
}
