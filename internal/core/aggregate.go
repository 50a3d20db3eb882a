package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTrendMonths is the number of calendar months bucketed by MonthlyTrend
// when callers have no preference.
const DefaultTrendMonths = 6

// Severity band upper bounds, inclusive.
const (
	SafeLimit     = 75.0
	WarningLimit  = 90.0
	CriticalLimit = 100.0
)

var hundred = decimal.NewFromInt(100)

func dec(v float64) decimal.Decimal {
	if !IsFinite(v) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// CategoryTotals projects the snapshot into per-category totals. The snapshot
// already holds one consolidated amount per category so this is a copy.
func CategoryTotals(s Snapshot) map[string]float64 {
	return map[string]float64(s.Clone())
}

// MonthlyTrend sums amounts into monthCount buckets indexed by 0-based
// calendar month. Entries whose month falls outside [0, monthCount) are
// dropped.
func MonthlyTrend(expenses []DatedAmount, monthCount int) []float64 {
	if monthCount <= 0 {
		return []float64{}
	}
	buckets := make([]decimal.Decimal, monthCount)
	for i := range buckets {
		buckets[i] = decimal.Zero
	}
	for _, e := range expenses {
		m := e.Date.MonthIndex()
		if m < 0 || m >= monthCount {
			continue
		}
		buckets[m] = buckets[m].Add(dec(e.Amount))
	}
	out := make([]float64, monthCount)
	for i, b := range buckets {
		out[i] = b.InexactFloat64()
	}
	return out
}

// MonthTotal sums the amounts dated in month, in any year.
func MonthTotal(expenses []DatedAmount, month time.Month) float64 {
	total := decimal.Zero
	for _, e := range expenses {
		if e.Date.Month() == month {
			total = total.Add(dec(e.Amount))
		}
	}
	return total.InexactFloat64()
}

// FilterCategory returns the entries of category in their original order. An
// empty category returns every entry.
func FilterCategory(expenses []DatedAmount, category string) []DatedAmount {
	out := make([]DatedAmount, 0, len(expenses))
	for _, e := range expenses {
		if category == "" || e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// UtilizationRatio returns spent as a percentage of allocated, or 0 when
// nothing is allocated.
func UtilizationRatio(spent, allocated float64) float64 {
	if !IsFinite(allocated) || allocated <= 0 {
		return 0
	}
	return dec(spent).Div(dec(allocated)).Mul(hundred).InexactFloat64()
}

// SeverityOf maps a utilization percentage onto its band:
// Safe <= 75 < Warning <= 90 < Critical <= 100 < Exceeded.
func SeverityOf(ratio float64) Severity {
	switch {
	case ratio > CriticalLimit:
		return SeverityExceeded
	case ratio > WarningLimit:
		return SeverityCritical
	case ratio > SafeLimit:
		return SeverityWarning
	default:
		return SeveritySafe
	}
}

// OverBudgetAmount is max(0, spent-allocated).
func OverBudgetAmount(spent, allocated float64) float64 {
	over := dec(spent).Sub(dec(allocated))
	if over.IsNegative() {
		return 0
	}
	return over.InexactFloat64()
}

// GoalProgress is the completion percentage of a savings goal.
func GoalProgress(current, target float64) float64 {
	return UtilizationRatio(current, target)
}

// BuildOverview derives the full view from the total budget, the live snapshot
// and the per-category allocations. Categories are the union of snapshot and
// allocation keys, sorted by name. OverBudget is only set when the band is
// Exceeded.
func BuildOverview(totalBudget float64, snapshot Snapshot, allocations Allocations) Overview {
	total := decimal.Zero
	for _, v := range snapshot {
		total = total.Add(dec(v))
	}
	totalSpent := total.InexactFloat64()

	names := make([]string, 0, len(snapshot)+len(allocations))
	seen := make(map[string]struct{}, len(snapshot)+len(allocations))
	for _, m := range []map[string]float64{snapshot, allocations} {
		for k := range m {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			names = append(names, k)
		}
	}
	sort.Strings(names)

	ov := Overview{
		TotalBudget: totalBudget,
		TotalSpent:  totalSpent,
		Remaining:   dec(totalBudget).Sub(total).InexactFloat64(),
		Utilization: UtilizationRatio(totalSpent, totalBudget),
		Categories:  make([]CategoryStatus, 0, len(names)),
	}
	ov.Severity = SeverityOf(ov.Utilization)
	if ov.Severity == SeverityExceeded {
		ov.OverBudget = OverBudgetAmount(totalSpent, totalBudget)
	}

	for _, name := range names {
		spent := snapshot[name]
		allocated := allocations[name]
		st := CategoryStatus{
			Category:    name,
			Spent:       spent,
			Allocated:   allocated,
			Utilization: UtilizationRatio(spent, allocated),
			Share:       UtilizationRatio(spent, totalSpent),
		}
		st.Severity = SeverityOf(st.Utilization)
		if st.Severity == SeverityExceeded {
			st.OverBudget = OverBudgetAmount(spent, allocated)
		}
		ov.Categories = append(ov.Categories, st)
	}
	return ov
}
