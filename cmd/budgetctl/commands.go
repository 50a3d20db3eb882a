package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/subcommands"

	"budgetsync/internal/client"
	"budgetsync/internal/config"
	"budgetsync/internal/core"
)

func commands(g *globals, cfg *config.Config) []subcommands.Command {
	return []subcommands.Command{
		&getCmd{g: g},
		&setBudgetCmd{g: g},
		&pushExpenseCmd{g: g},
		&addExpenseCmd{g: g},
		&historyCmd{g: g},
		&allocateCmd{g: g},
		&editCmd{g: g},
		&watchCmd{g: g, interval: cfg.PollInterval},
	}
}

type getCmd struct{ g *globals }

func (*getCmd) Name() string     { return "get" }
func (*getCmd) Synopsis() string { return "print the budget, expenses and allocation status" }
func (*getCmd) Usage() string {
	return `budgetctl -uid <uid> get

  Fetches the record once and prints the overview, followed by the monthly
  trend from the local ledger when it has entries.
`
}
func (*getCmd) SetFlags(*flag.FlagSet) {}

func (c *getCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := requireUID(c.g); err != nil {
		return fail(err)
	}
	ov, err := c.g.api().GetOverview(ctx, c.g.uid)
	if err != nil {
		return fail(err)
	}
	renderOverview(os.Stdout, ov, c.g.currency)

	ledger, err := c.g.openLedger()
	if err != nil {
		return fail(err)
	}
	if len(ledger.Entries("")) > 0 {
		now := time.Now()
		renderTrend(os.Stdout, ledger.Trend(now.Year(), core.DefaultTrendMonths), ledger.MonthSpent(now), now, c.g.currency)
	}
	return subcommands.ExitSuccess
}

type setBudgetCmd struct{ g *globals }

func (*setBudgetCmd) Name() string     { return "set-budget" }
func (*setBudgetCmd) Synopsis() string { return "set the total budget" }
func (*setBudgetCmd) Usage() string {
	return `budgetctl -uid <uid> set-budget <amount>

  Stores <amount> as the total budget. The amount may be negative.
`
}
func (*setBudgetCmd) SetFlags(*flag.FlagSet) {}

func (c *setBudgetCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := requireUID(c.g); err != nil {
		return fail(err)
	}
	if f.NArg() != 1 {
		return usage(c)
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(f.Arg(0)), ",", "."), 64)
	if err != nil || !core.IsFinite(amount) {
		return fail(fmt.Errorf("invalid amount %q", f.Arg(0)))
	}
	stored, err := c.g.api().SetTotalBudget(ctx, c.g.uid, amount)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Total budget: %s\n", core.FormatAmount(stored, c.g.currency))
	return subcommands.ExitSuccess
}

type pushExpenseCmd struct{ g *globals }

func (*pushExpenseCmd) Name() string     { return "push-expense" }
func (*pushExpenseCmd) Synopsis() string { return "set the spent amount of one or more categories" }
func (*pushExpenseCmd) Usage() string {
	return `budgetctl -uid <uid> push-expense <category>=<amount> [...]

  Merges the given amounts into the expense snapshot. Each amount replaces
  the category's previous value; other categories are kept.
`
}
func (*pushExpenseCmd) SetFlags(*flag.FlagSet) {}

func (c *pushExpenseCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := requireUID(c.g); err != nil {
		return fail(err)
	}
	if f.NArg() == 0 {
		return usage(c)
	}
	amounts, err := parseAmounts(f.Args())
	if err != nil {
		return fail(err)
	}
	res, err := c.g.api().PushExpense(ctx, c.g.uid, core.Delta(amounts))
	if err != nil {
		return fail(err)
	}
	if res.Created {
		fmt.Println("Expense data created.")
	} else {
		fmt.Println("Expense data updated successfully.")
	}
	renderAmounts(os.Stdout, res.Snapshot, c.g.currency)
	return subcommands.ExitSuccess
}

type allocateCmd struct{ g *globals }

func (*allocateCmd) Name() string     { return "allocate" }
func (*allocateCmd) Synopsis() string { return "set the budget allocated to one or more categories" }
func (*allocateCmd) Usage() string {
	return `budgetctl -uid <uid> allocate <category>=<amount> [...]
`
}
func (*allocateCmd) SetFlags(*flag.FlagSet) {}

func (c *allocateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := requireUID(c.g); err != nil {
		return fail(err)
	}
	if f.NArg() == 0 {
		return usage(c)
	}
	amounts, err := parseAmounts(f.Args())
	if err != nil {
		return fail(err)
	}
	alloc, err := c.g.api().SetAllocations(ctx, c.g.uid, core.Allocations(amounts))
	if err != nil {
		return fail(err)
	}
	renderAmounts(os.Stdout, alloc, c.g.currency)
	return subcommands.ExitSuccess
}

type watchCmd struct {
	g        *globals
	interval time.Duration
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "poll the record and print the overview on every change" }
func (*watchCmd) Usage() string {
	return `budgetctl -uid <uid> watch [-interval 1s]

  Polls the server until interrupted. Responses that arrive out of order
  are discarded; failures are reported and the next tick tries again.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.interval, "interval", c.interval, "Polling interval.")
}

func (c *watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := requireUID(c.g); err != nil {
		return fail(err)
	}
	ledger, err := c.g.openLedger()
	if err != nil {
		return fail(err)
	}
	p := client.NewPoller(c.g.api(), c.g.uid,
		client.WithInterval(c.interval),
		client.WithLedger(ledger),
		client.WithErrorHandler(func(err error) {
			fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		}),
	)

	var last string
	p.Subscribe(func(s client.State) {
		var b strings.Builder
		renderOverview(&b, s.Overview, c.g.currency)
		renderTrend(&b, s.Trend, s.MonthSpent, s.UpdatedAt, c.g.currency)
		if out := b.String(); out != last {
			last = out
			fmt.Printf("--- %s (seq %d)\n%s", s.UpdatedAt.Format(time.TimeOnly), s.Seq, out)
		}
	})

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// parseAmounts reads "category=amount" pairs. Amounts accept a decimal
// comma and must not be negative.
func parseAmounts(args []string) (map[string]float64, error) {
	out := make(map[string]float64, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected <category>=<amount>, got %q", arg)
		}
		v, err := core.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func requireUID(g *globals) error {
	if strings.TrimSpace(g.uid) == "" {
		return errors.New("missing -uid (or BUDGETSYNC_UID)")
	}
	return nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

func usage(c subcommands.Command) subcommands.ExitStatus {
	fmt.Fprint(os.Stderr, c.Usage())
	return subcommands.ExitUsageError
}

// flagDuration lets the global -timeout flag carry a default.
type flagDuration struct{ time.Duration }

func (d *flagDuration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if v <= 0 {
		return errors.New("must be positive")
	}
	d.Duration = v
	return nil
}
