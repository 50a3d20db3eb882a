package sheets

import (
	"context"
	"time"

	"budgetsync/internal/core"
)

// Ports for outbound adapters.
type (
	// OverviewExporter appends a point-in-time copy of one user's overview to
	// an external sheet.
	OverviewExporter interface {
		ExportOverview(ctx context.Context, uid string, ov core.Overview, at time.Time) (rowRef string, err error)
	}
)

// TotalRow labels the summary row written before the per-category rows.
const TotalRow = "Total"

// Row is one exported line.
type Row struct {
	At          time.Time
	UserID      string
	Category    string
	Spent       float64
	Allocated   float64
	Utilization float64
	Severity    core.Severity
}

// Rows flattens an overview into a summary row followed by one row per
// category, in the overview's category order.
func Rows(uid string, ov core.Overview, at time.Time) []Row {
	out := make([]Row, 0, len(ov.Categories)+1)
	out = append(out, Row{
		At:          at,
		UserID:      uid,
		Category:    TotalRow,
		Spent:       ov.TotalSpent,
		Allocated:   ov.TotalBudget,
		Utilization: ov.Utilization,
		Severity:    ov.Severity,
	})
	for _, c := range ov.Categories {
		out = append(out, Row{
			At:          at,
			UserID:      uid,
			Category:    c.Category,
			Spent:       c.Spent,
			Allocated:   c.Allocated,
			Utilization: c.Utilization,
			Severity:    c.Severity,
		})
	}
	return out
}
