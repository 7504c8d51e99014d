package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/ieshan/sqlrun"
	"github.com/ieshan/sqlrun/drivers"
	"github.com/ieshan/sqlrun/internal/config"
	"github.com/ieshan/sqlrun/internal/logging"
	"github.com/spf13/viper"
)

// connectionName is the manager key the CLI registers its DSN under.
const connectionName = "default"

// CLI represents the complete command structure for the sqlrun application
type CLI struct {
	Driver   string `help:"Database driver (sqlite, libsql, mysql, postgres)"`
	DSN      string `name:"dsn" help:"Data source name; falls back to DATABASE_URL"`
	Splitter string `help:"Statement splitter: plain (split on every ;) or quoted (quote-aware)"`
	Strict   bool   `help:"Fail when a script ends without a terminating semicolon"`
	LogLevel string `help:"Log level (debug, info, warn, error)"`

	Exec    ExecCmd    `cmd:"" help:"Execute SQL script files statement by statement"`
	Migrate MigrateCmd `cmd:"" help:"Run SQL migration files, each inside a transaction"`
	Flush   FlushCmd   `cmd:"" help:"Delete all rows from every table"`
	Drop    DropCmd    `cmd:"" help:"Drop every table"`
	Watch   WatchCmd   `cmd:"" help:"Re-run a SQL script whenever it changes"`
	Split   SplitCmd   `cmd:"" help:"Print the statements a script would be split into"`
}

// Runtime carries what every command needs once flags and config are resolved.
type Runtime struct {
	Ctx     context.Context
	Config  *config.Config
	Manager *sqlrun.ConnectionManager
	Out     io.Writer
}

// RunnerOptions translates the configuration into Runner options.
func (rt *Runtime) RunnerOptions() []sqlrun.Option {
	var opts []sqlrun.Option
	if rt.Config.Splitter == config.SplitterQuoted {
		opts = append(opts, sqlrun.WithSplitter(sqlrun.SplitQuoted))
	}
	if rt.Config.Strict {
		opts = append(opts, sqlrun.WithStrict())
	}
	return opts
}

// Execute runs the Kong-based CLI
func Execute() {
	if err := config.Init(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("sqlrun"),
		kong.Description("Execute SQL scripts statement by statement against a database."),
		kong.UsageOnError(),
	)

	if err := run(kctx, &cli); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context, cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cli, os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Manager.CloseAll() }()

	return kctx.Run(rt)
}

func updateConfig(cli *CLI) {
	if cli.Driver != "" {
		viper.Set("driver", cli.Driver)
	}
	if cli.DSN != "" {
		viper.Set("dsn", cli.DSN)
	}
	if cli.Splitter != "" {
		viper.Set("splitter", cli.Splitter)
	}
	if cli.Strict {
		viper.Set("strict", true)
	}
	if cli.LogLevel != "" {
		viper.Set("log_level", cli.LogLevel)
	}
}

func newRuntime(ctx context.Context, cli *CLI, out io.Writer) (*Runtime, error) {
	updateConfig(cli)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logging.Init(os.Stderr, cfg.LogLevel); err != nil {
		return nil, err
	}
	if !drivers.Supported(cfg.Driver) {
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	manager := sqlrun.NewConnectionManager()
	drivers.Register(manager)
	manager.SetDsn(connectionName, cfg.Driver, cfg.DSN)

	return &Runtime{
		Ctx:     ctx,
		Config:  cfg,
		Manager: manager,
		Out:     out,
	}, nil
}
