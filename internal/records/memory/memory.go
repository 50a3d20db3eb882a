package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"budgetsync/internal/core"
	"budgetsync/internal/records"
)

type record struct {
	totalBudget float64
	snapshot    core.Snapshot
	allocations core.Allocations
}

// Store keeps records in process memory. A single mutex serialises every
// read-merge-write so concurrent merges for one user never lose a delta.
type Store struct {
	mu      sync.Mutex
	records map[string]*record
}

var _ records.Store = (*Store)(nil)

func New() *Store {
	return &Store{records: make(map[string]*record)}
}

// NewFromFile seeds the store from a JSON array of financial records.
// A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed []core.FinancialRecord
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	for _, fr := range seed {
		if fr.UserID == "" {
			continue
		}
		r := &record{totalBudget: fr.TotalBudget}
		if len(fr.ExpenseSnapshot) > 0 {
			r.snapshot = fr.ExpenseSnapshot.Clone()
		}
		if len(fr.BudgetAllocations) > 0 {
			r.allocations = fr.BudgetAllocations.Clone()
		}
		s.records[fr.UserID] = r
	}
	return s, nil
}

func (s *Store) GetTotalBudget(_ context.Context, uid string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[uid]
	if !ok {
		return 0, records.ErrNotFound
	}
	return r.totalBudget, nil
}

func (s *Store) SetTotalBudget(_ context.Context, uid string, amount float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(uid).totalBudget = amount
	return amount, nil
}

func (s *Store) GetLatestExpenseSnapshot(_ context.Context, uid string) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[uid]
	if !ok {
		return core.Snapshot{}, records.ErrNotFound
	}
	return r.snapshot.Clone(), nil
}

func (s *Store) MergeExpenseSnapshot(_ context.Context, uid string, delta core.Delta) (core.MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.records[uid]
	r := s.upsert(uid)
	r.snapshot = core.MergeSnapshot(r.snapshot, delta)
	return core.MergeResult{Snapshot: r.snapshot.Clone(), Created: !existed}, nil
}

func (s *Store) GetAllocations(_ context.Context, uid string) (core.Allocations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[uid]
	if !ok {
		return core.Allocations{}, records.ErrNotFound
	}
	return r.allocations.Clone(), nil
}

func (s *Store) SetAllocations(_ context.Context, uid string, update core.Allocations) (core.Allocations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.upsert(uid)
	r.allocations = core.MergeAllocations(r.allocations, update)
	return r.allocations.Clone(), nil
}

func (s *Store) Close() error { return nil }

// upsert must be called with mu held.
func (s *Store) upsert(uid string) *record {
	r, ok := s.records[uid]
	if !ok {
		r = &record{}
		s.records[uid] = r
	}
	return r
}
