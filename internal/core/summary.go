package core

// Severity classifies a utilization percentage.
type Severity string

const (
	SeveritySafe     Severity = "safe"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeverityExceeded Severity = "exceeded"
)

// Rank orders severities from Safe (0) to Exceeded (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	case SeverityExceeded:
		return 3
	default:
		return 0
	}
}

// DatedAmount is a single dated spend used for the monthly trend and the
// transaction history.
type DatedAmount struct {
	Date     Date    `json:"date"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// Validate applies the delta rules to the category and amount and requires a
// valid date.
func (e DatedAmount) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	return validateAmounts(map[string]float64{e.Category: e.Amount})
}

// CategoryStatus is the derived view of one category.
type CategoryStatus struct {
	Category    string   `json:"category"`
	Spent       float64  `json:"spent"`
	Allocated   float64  `json:"allocated"`
	Utilization float64  `json:"utilization"`
	Severity    Severity `json:"severity"`
	OverBudget  float64  `json:"overBudget,omitempty"`
	// Share is the category's percentage of total spend.
	Share float64 `json:"share"`
}

// Overview is everything the client derives from one budget + snapshot pair.
type Overview struct {
	TotalBudget float64          `json:"totalBudget"`
	TotalSpent  float64          `json:"totalSpent"`
	Remaining   float64          `json:"remaining"`
	Utilization float64          `json:"utilization"`
	Severity    Severity         `json:"severity"`
	OverBudget  float64          `json:"overBudget,omitempty"`
	Categories  []CategoryStatus `json:"categories"`
}

// Category returns the status for name, if present.
func (o Overview) Category(name string) (CategoryStatus, bool) {
	for _, c := range o.Categories {
		if c.Category == name {
			return c, true
		}
	}
	return CategoryStatus{}, false
}
