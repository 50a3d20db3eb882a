// Package records defines the Record Store Gateway ports: per-user get/set
// access to the financial record with upsert semantics and no business logic
// beyond the merge rule in core.
package records

import (
	"context"
	"errors"

	"budgetsync/internal/core"
)

// ErrNotFound signals that the record is absent. GetLatestExpenseSnapshot
// returns it together with an empty snapshot; a record that exists but holds
// no snapshot yields an empty snapshot and a nil error.
var ErrNotFound = errors.New("record not found")

type (
	BudgetStore interface {
		GetTotalBudget(ctx context.Context, uid string) (float64, error)
		// SetTotalBudget upserts the record and returns the stored amount.
		SetTotalBudget(ctx context.Context, uid string, amount float64) (float64, error)
	}

	SnapshotStore interface {
		GetLatestExpenseSnapshot(ctx context.Context, uid string) (core.Snapshot, error)
		// MergeExpenseSnapshot merges delta into the live snapshot in one
		// atomic step and persists the result as the only snapshot.
		MergeExpenseSnapshot(ctx context.Context, uid string, delta core.Delta) (core.MergeResult, error)
	}

	AllocationStore interface {
		GetAllocations(ctx context.Context, uid string) (core.Allocations, error)
		// SetAllocations merges update into the stored allocations.
		SetAllocations(ctx context.Context, uid string, update core.Allocations) (core.Allocations, error)
	}

	// Store is implemented by every backend.
	Store interface {
		BudgetStore
		SnapshotStore
		AllocationStore
		Close() error
	}
)
