package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// MaxCategoryLength bounds category names accepted in deltas and allocations.
const MaxCategoryLength = 100

type (
	// Snapshot maps an expense category to its accumulated amount.
	// A user has exactly one live snapshot.
	Snapshot map[string]float64

	// Delta is a partial snapshot pushed by a client.
	Delta map[string]float64

	// Allocations maps a category to its allocated budget.
	Allocations map[string]float64

	Date struct {
		time.Time
	}

	SavingsGoal struct {
		Name          string  `json:"name"`
		TargetAmount  float64 `json:"targetAmount"`
		CurrentAmount float64 `json:"currentAmount"`
		Deadline      Date    `json:"deadline"`
	}

	// FinancialRecord is the per-user document. TotalBudget and
	// ExpenseSnapshot are written independently of each other.
	FinancialRecord struct {
		UserID            string        `json:"userId"`
		TotalBudget       float64       `json:"totalBudget"`
		ExpenseSnapshot   Snapshot      `json:"expenseAmount"`
		BudgetAllocations Allocations   `json:"budgetAllocations"`
		SavingsGoals      []SavingsGoal `json:"savingsGoals"`
	}

	// MergeResult is what a merge-upsert hands back to its caller.
	MergeResult struct {
		Snapshot Snapshot
		Created  bool
	}
)

var (
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrEmptyDelta     = errors.New("empty delta")
	ErrEmptyCategory  = errors.New("empty category")
	ErrCategoryLength = fmt.Errorf("category too long (max %d characters)", MaxCategoryLength)
	ErrEmptyUserID    = errors.New("empty user id")
)

// DateLayout is the calendar-day format accepted by ParseDate.
const DateLayout = time.DateOnly

// Validate rejects the zero date and dates before the Unix epoch, which only
// show up when a date was never set or was parsed from a truncated value.
func (d Date) Validate() error {
	if d.IsZero() || d.Year() < 1970 {
		return fmt.Errorf("%w: %s", ErrInvalidDate, d.Format(DateLayout))
	}
	return nil
}

// ParseDate reads a YYYY-MM-DD calendar day in UTC.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	d := Date{Time: t}
	if err := d.Validate(); err != nil {
		return Date{}, err
	}
	return d, nil
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// MonthIndex returns the 0-based calendar month (January = 0).
func (d Date) MonthIndex() int {
	return int(d.Time.Month()) - 1
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateUserID rejects blank user identifiers. Any other string is opaque.
func ValidateUserID(uid string) error {
	if strings.TrimSpace(uid) == "" {
		return ErrEmptyUserID
	}
	return nil
}

// Validate checks a delta before it is merged: it must be non-empty, every
// category must be a non-blank name and every amount a finite non-negative
// number.
func (d Delta) Validate() error {
	if len(d) == 0 {
		return ErrEmptyDelta
	}
	return validateAmounts(d)
}

// Validate applies the delta rules to an allocation update.
func (a Allocations) Validate() error {
	if len(a) == 0 {
		return ErrEmptyDelta
	}
	return validateAmounts(a)
}

func validateAmounts(m map[string]float64) error {
	for category, amount := range m {
		if strings.TrimSpace(category) == "" {
			return ErrEmptyCategory
		}
		if len(category) > MaxCategoryLength {
			return ErrCategoryLength
		}
		if !IsFinite(amount) || amount < 0 {
			return fmt.Errorf("%w for category %q", ErrInvalidAmount, category)
		}
	}
	return nil
}

// Clone returns an independent copy. A nil snapshot clones to an empty one.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy. A nil value clones to an empty one.
func (a Allocations) Clone() Allocations {
	return Allocations(Snapshot(a).Clone())
}
