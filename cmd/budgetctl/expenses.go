package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"budgetsync/internal/client"
	"budgetsync/internal/core"
)

// openLedger opens the -ledger file, or a per-user file under the user config
// directory.
func (g *globals) openLedger() (*client.Ledger, error) {
	path := g.ledgerPath
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locate ledger: %w", err)
		}
		path = filepath.Join(dir, "budgetsync", "ledger-"+url.PathEscape(g.uid)+".json")
	}
	return client.OpenLedger(path)
}

type addExpenseCmd struct {
	g    *globals
	date string
}

func (*addExpenseCmd) Name() string { return "add-expense" }
func (*addExpenseCmd) Synopsis() string {
	return "record one dated expense and raise its category total"
}
func (*addExpenseCmd) Usage() string {
	return `budgetctl -uid <uid> add-expense [-date YYYY-MM-DD] <category> <amount>

  Adds <amount> to the category's current total on the server and keeps the
  dated entry in the local ledger for the monthly trend and history.
`
}

func (c *addExpenseCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "Day of the expense (default today).")
}

func (c *addExpenseCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := requireUID(c.g); err != nil {
		return fail(err)
	}
	if f.NArg() != 2 {
		return usage(c)
	}
	amount, err := core.ParseAmount(f.Arg(1))
	if err != nil {
		return fail(err)
	}
	entry := core.DatedAmount{Category: strings.TrimSpace(f.Arg(0)), Amount: amount}
	if c.date != "" {
		if entry.Date, err = core.ParseDate(c.date); err != nil {
			return fail(err)
		}
	}

	ledger, err := c.g.openLedger()
	if err != nil {
		return fail(err)
	}
	p := client.NewPoller(c.g.api(), c.g.uid, client.WithLedger(ledger))
	if err := p.PollOnce(ctx); err != nil {
		return fail(err)
	}
	res, err := p.AddExpense(ctx, entry)
	if err != nil {
		return fail(err)
	}

	s := p.State()
	fmt.Printf("%s is now %s. Spent this month: %s\n",
		entry.Category,
		core.FormatAmount(res.Snapshot[entry.Category], c.g.currency),
		core.FormatAmount(s.MonthSpent, c.g.currency))
	return subcommands.ExitSuccess
}

type historyCmd struct {
	g        *globals
	category string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list the dated expenses in the local ledger" }
func (*historyCmd) Usage() string {
	return `budgetctl -uid <uid> history [-category <name>]
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.category, "category", "", "Only list this category.")
}

func (c *historyCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := requireUID(c.g); err != nil {
		return fail(err)
	}
	ledger, err := c.g.openLedger()
	if err != nil {
		return fail(err)
	}
	renderHistory(os.Stdout, ledger.Entries(c.category), c.g.currency)
	return subcommands.ExitSuccess
}

type editCmd struct{ g *globals }

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "edit the total budget interactively" }
func (*editCmd) Usage() string {
	return `budgetctl -uid <uid> edit [amount]

  Without an amount, prompts for the new balance. An empty line keeps the
  current value; an invalid or rejected value prompts again.
`
}
func (*editCmd) SetFlags(*flag.FlagSet) {}

func (c *editCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := requireUID(c.g); err != nil {
		return fail(err)
	}
	p := client.NewPoller(c.g.api(), c.g.uid)
	if err := p.PollOnce(ctx); err != nil {
		return fail(err)
	}
	field := client.NewField(client.FieldBalance, p.State().TotalBudget, p.SetTotalBudget)

	if f.NArg() > 0 {
		if err := field.Edit(f.Arg(0)); err != nil {
			return fail(err)
		}
		if _, err := field.Submit(ctx); err != nil {
			return fail(err)
		}
	} else if err := editLoop(ctx, field, os.Stdin, os.Stdout, c.g.currency); err != nil {
		return fail(err)
	}
	fmt.Printf("Total budget: %s\n", core.FormatAmount(field.Value(), c.g.currency))
	return subcommands.ExitSuccess
}

// editLoop prompts until a draft is saved or the user gives up with an empty
// line or end of input.
func editLoop(ctx context.Context, field *client.Field, in io.Reader, out io.Writer, currency string) error {
	lines := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "%s [%s]: ", field.Name(), core.FormatAmount(field.Value(), currency))
		if !lines.Scan() {
			fmt.Fprintln(out)
			_ = field.Cancel()
			return lines.Err()
		}
		draft := strings.TrimSpace(lines.Text())
		if draft == "" {
			return field.Cancel()
		}
		if err := field.Edit(draft); err != nil {
			return err
		}
		if _, err := field.Submit(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintln(out, err)
			continue
		}
		return nil
	}
}

func renderHistory(w io.Writer, entries []core.DatedAmount, currency string) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No expenses recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Date\tCategory\tAmount")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Date.Format(core.DateLayout), e.Category, core.FormatAmount(e.Amount, currency))
	}
	tw.Flush()
}

// renderTrend prints the monthly buckets of the current year and the spend of
// the current month.
func renderTrend(w io.Writer, trend []float64, monthSpent float64, now time.Time, currency string) {
	fmt.Fprintf(w, "Spent in %s: %s\n", now.Month(), core.FormatAmount(monthSpent, currency))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for i, v := range trend {
		fmt.Fprintf(tw, "%s\t%s\t\n", time.Month(i + 1).String()[:3], core.FormatAmount(v, currency))
	}
	tw.Flush()
}
