// Package notify delivers budget severity alerts.
package notify

import (
	"context"
	"fmt"
	"time"

	"budgetsync/internal/core"
	applog "budgetsync/internal/log"
)

// Alert reports that a category moved into a higher severity band.
type Alert struct {
	UserID      string
	Category    string
	Spent       float64
	Allocated   float64
	Utilization float64
	Previous    core.Severity
	Severity    core.Severity
	OverBudget  float64
	At          time.Time
}

type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// NewAlert builds an alert from a category status.
func NewAlert(uid string, st core.CategoryStatus, previous core.Severity, at time.Time) Alert {
	return Alert{
		UserID:      uid,
		Category:    st.Category,
		Spent:       st.Spent,
		Allocated:   st.Allocated,
		Utilization: st.Utilization,
		Previous:    previous,
		Severity:    st.Severity,
		OverBudget:  st.OverBudget,
		At:          at,
	}
}

// Title is the one-line headline, e.g. "Food is critical (95.0%)".
func (a Alert) Title() string {
	return fmt.Sprintf("%s is %s (%.1f%%)", a.Category, a.Severity, a.Utilization)
}

// Describe renders the amounts in currency.
func (a Alert) Describe(currency string) string {
	s := fmt.Sprintf("Spent %s of %s allocated",
		core.FormatAmount(a.Spent, currency),
		core.FormatAmount(a.Allocated, currency))
	if a.OverBudget > 0 {
		s += fmt.Sprintf(", over budget by %s", core.FormatAmount(a.OverBudget, currency))
	}
	return s + "."
}

// LogNotifier writes alerts to the log. Used when no chat channel is
// configured.
type LogNotifier struct {
	logger   *applog.Logger
	currency string
}

func NewLogNotifier(logger *applog.Logger, currency string) *LogNotifier {
	if logger == nil {
		logger = applog.Default(applog.ComponentNotify)
	}
	return &LogNotifier{logger: logger, currency: currency}
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	n.logger.WarnContext(ctx, a.Title(),
		applog.FieldOperation, applog.OpAlert,
		applog.FieldUserID, a.UserID,
		applog.FieldCategory, a.Category,
		applog.FieldSeverity, string(a.Severity),
		"previous", string(a.Previous),
		"detail", a.Describe(n.currency),
	)
	return nil
}
