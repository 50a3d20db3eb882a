// Package recordstest holds behaviour tests shared by every records.Store
// backend.
package recordstest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"budgetsync/internal/core"
	"budgetsync/internal/records"
)

// RunStoreTests exercises the gateway contract against a fresh store per
// subtest.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) records.Store) {
	t.Helper()

	t.Run("budget not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetTotalBudget(context.Background(), "nobody")
		if !errors.Is(err, records.ErrNotFound) {
			t.Fatalf("GetTotalBudget on absent record = %v, want ErrNotFound", err)
		}
	})

	t.Run("budget upsert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		got, err := s.SetTotalBudget(ctx, "u1", 2500)
		if err != nil || got != 2500 {
			t.Fatalf("SetTotalBudget = %v, %v", got, err)
		}
		got, err = s.SetTotalBudget(ctx, "u1", -10)
		if err != nil || got != -10 {
			t.Fatalf("SetTotalBudget(-10) = %v, %v", got, err)
		}
		got, err = s.GetTotalBudget(ctx, "u1")
		if err != nil || got != -10 {
			t.Fatalf("GetTotalBudget = %v, %v", got, err)
		}
	})

	t.Run("snapshot absent", func(t *testing.T) {
		s := newStore(t)
		snap, err := s.GetLatestExpenseSnapshot(context.Background(), "nobody")
		if !errors.Is(err, records.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		if snap == nil || len(snap) != 0 {
			t.Fatalf("snapshot = %v, want empty non-nil", snap)
		}
	})

	t.Run("record without snapshot", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.SetTotalBudget(ctx, "u1", 100); err != nil {
			t.Fatalf("SetTotalBudget: %v", err)
		}
		snap, err := s.GetLatestExpenseSnapshot(ctx, "u1")
		if err != nil {
			t.Fatalf("err = %v, want nil for existing record", err)
		}
		if len(snap) != 0 {
			t.Fatalf("snapshot = %v, want empty", snap)
		}
	})

	t.Run("merge scenarios", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		res, err := s.MergeExpenseSnapshot(ctx, "u1", core.Delta{"Food": 300})
		if err != nil {
			t.Fatalf("merge A: %v", err)
		}
		if !res.Created || !reflect.DeepEqual(res.Snapshot, core.Snapshot{"Food": 300}) {
			t.Fatalf("merge A = %+v", res)
		}

		res, err = s.MergeExpenseSnapshot(ctx, "u1", core.Delta{"Rent": 200})
		if err != nil {
			t.Fatalf("merge B: %v", err)
		}
		if res.Created || !reflect.DeepEqual(res.Snapshot, core.Snapshot{"Food": 300, "Rent": 200}) {
			t.Fatalf("merge B = %+v", res)
		}

		res, err = s.MergeExpenseSnapshot(ctx, "u1", core.Delta{"Food": 500})
		if err != nil {
			t.Fatalf("merge C: %v", err)
		}
		want := core.Snapshot{"Food": 500, "Rent": 200}
		if !reflect.DeepEqual(res.Snapshot, want) {
			t.Fatalf("merge C = %v, want %v", res.Snapshot, want)
		}

		stored, err := s.GetLatestExpenseSnapshot(ctx, "u1")
		if err != nil || !reflect.DeepEqual(stored, want) {
			t.Fatalf("stored = %v, %v; want %v", stored, err, want)
		}
	})

	t.Run("merge on budget-only record is an update", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.SetTotalBudget(ctx, "u1", 100); err != nil {
			t.Fatalf("SetTotalBudget: %v", err)
		}
		res, err := s.MergeExpenseSnapshot(ctx, "u1", core.Delta{"Food": 1})
		if err != nil || res.Created {
			t.Fatalf("merge = %+v, %v; want update", res, err)
		}
		budget, err := s.GetTotalBudget(ctx, "u1")
		if err != nil || budget != 100 {
			t.Fatalf("budget changed by merge: %v, %v", budget, err)
		}
	})

	t.Run("budget write keeps snapshot", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.MergeExpenseSnapshot(ctx, "u1", core.Delta{"Food": 1}); err != nil {
			t.Fatalf("merge: %v", err)
		}
		budget, err := s.GetTotalBudget(ctx, "u1")
		if err != nil || budget != 0 {
			t.Fatalf("budget of snapshot-only record = %v, %v; want 0", budget, err)
		}
		if _, err := s.SetTotalBudget(ctx, "u1", 10); err != nil {
			t.Fatalf("SetTotalBudget: %v", err)
		}
		snap, err := s.GetLatestExpenseSnapshot(ctx, "u1")
		if err != nil || snap["Food"] != 1 {
			t.Fatalf("snapshot after budget write = %v, %v", snap, err)
		}
	})

	t.Run("concurrent merges keep every key", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const n = 16
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.MergeExpenseSnapshot(ctx, "u1", core.Delta{fmt.Sprintf("cat-%02d", i): float64(i)})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent merge: %v", err)
			}
		}
		snap, err := s.GetLatestExpenseSnapshot(ctx, "u1")
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(snap) != n {
			t.Fatalf("snapshot has %d keys, want %d (lost update): %v", len(snap), n, snap)
		}
	})

	t.Run("allocations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.GetAllocations(ctx, "u1"); !errors.Is(err, records.ErrNotFound) {
			t.Fatalf("GetAllocations on absent record = %v, want ErrNotFound", err)
		}
		if _, err := s.SetAllocations(ctx, "u1", core.Allocations{"Rent": 900}); err != nil {
			t.Fatalf("SetAllocations: %v", err)
		}
		got, err := s.SetAllocations(ctx, "u1", core.Allocations{"Food": 300})
		if err != nil {
			t.Fatalf("SetAllocations: %v", err)
		}
		want := core.Allocations{"Rent": 900, "Food": 300}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("allocations = %v, want %v", got, want)
		}
		got, err = s.GetAllocations(ctx, "u1")
		if err != nil || !reflect.DeepEqual(got, want) {
			t.Fatalf("GetAllocations = %v, %v", got, err)
		}
		snap, err := s.GetLatestExpenseSnapshot(ctx, "u1")
		if err != nil || len(snap) != 0 {
			t.Fatalf("allocations leaked into snapshot: %v, %v", snap, err)
		}
	})
}
