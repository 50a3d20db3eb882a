// Command budgetctl reads and edits a budgetsync record from the terminal.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"budgetsync/internal/cli"
	"budgetsync/internal/client"
	"budgetsync/internal/config"
)

// globals are shared by every subcommand.
type globals struct {
	baseURL    string
	uid        string
	currency   string
	ledgerPath string
	timeout    flagDuration
}

func (g *globals) api() *client.API {
	return client.NewAPI(g.baseURL, g.timeout.Duration)
}

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()

	g := &globals{timeout: flagDuration{client.DefaultTimeout}}
	flag.StringVar(&g.baseURL, "url", cfg.APIBaseURL, "Base URL of the budgetsync server.")
	flag.StringVar(&g.uid, "uid", os.Getenv("BUDGETSYNC_UID"), "User id of the record.")
	flag.StringVar(&g.currency, "currency", cfg.Currency, "ISO currency code used for display.")
	flag.StringVar(&g.ledgerPath, "ledger", os.Getenv("BUDGETSYNC_LEDGER"), "Local expense ledger file (default: per user, under the user config directory).")
	flag.Var(&g.timeout, "timeout", "Per-request timeout.")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range commands(g, cfg) {
		commander.Register(c, "")
	}

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(int(commander.Execute(ctx)))
}
