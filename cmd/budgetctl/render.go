package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"budgetsync/internal/core"
)

func renderOverview(w io.Writer, ov core.Overview, currency string) {
	fmt.Fprintf(w, "Budget %s  Spent %s  Remaining %s  (%.1f%%, %s)\n",
		core.FormatAmount(ov.TotalBudget, currency),
		core.FormatAmount(ov.TotalSpent, currency),
		core.FormatAmount(ov.Remaining, currency),
		ov.Utilization, ov.Severity)
	if len(ov.Categories) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Category\tSpent\tAllocated\tUsed\tShare\tStatus\t")
	for _, c := range ov.Categories {
		status := string(c.Severity)
		if c.OverBudget > 0 {
			status += " +" + core.FormatAmount(c.OverBudget, currency)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f%%\t%.1f%%\t%s\t\n",
			c.Category,
			core.FormatAmount(c.Spent, currency),
			core.FormatAmount(c.Allocated, currency),
			c.Utilization, c.Share, status)
	}
	tw.Flush()
}

func renderAmounts(w io.Writer, amounts map[string]float64, currency string) {
	names := make([]string, 0, len(amounts))
	for k := range amounts {
		names = append(names, k)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, k := range names {
		fmt.Fprintf(tw, "%s\t%s\t\n", k, core.FormatAmount(amounts[k], currency))
	}
	tw.Flush()
}
