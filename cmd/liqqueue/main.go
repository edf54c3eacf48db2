package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voantyh/tapioca-bar-audit/config"
)

const usage = `usage: liqqueue [-config path] [-verbose] [-format text|json] <command> [flags]

commands:
  init         initialize the queue from the config file
  deposit      credit an account in the custody ledger
  approve      let an operator act for an owner
  liquidity    add liquidity to a swap pool
  bid          place a bid in a pool
  bid-stable   place a bid paying with another asset (swapped)
  activate     move a pending bid into the order book
  cancel       withdraw a pending (not yet activated) bid
  remove       withdraw an activated, untouched bid
  execute      liquidate against the order books (market only)
  redeem       claim the liquidated asset owed to an account
  book         print order books
  status       print queue meta, pending bids and balances due
  events       print the event log
  keeper       activate mature bids in a loop
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("liqqueue failed", "err", err)
		os.Exit(1)
	}
}

// run parsea los flags globales, carga la configuración y despacha el comando.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("liqqueue", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.Usage = func() { fmt.Fprint(stdout, usage) }
	configPath := fs.String("config", "config/config.yaml", "path to config file")
	verbose := fs.Bool("verbose", false, "set log level to debug")
	logFormat := fs.String("format", "", "log format: text|json (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}

	a, err := openApp(ctx, cfg, stdout)
	if err != nil {
		return err
	}
	defer a.close()

	slog.Debug("liqqueue command", "command", fs.Arg(0), "config", *configPath, "dsn", cfg.Storage.DSN)
	return cmd(ctx, a, fs.Args()[1:])
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Los logs van a stderr: stdout queda para las tablas.
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
