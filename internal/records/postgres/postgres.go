// Package postgres stores financial records in PostgreSQL, one row per user
// with the snapshot and allocations held as jsonb objects.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"budgetsync/internal/core"
	"budgetsync/internal/records"
)

const schema = `
CREATE TABLE IF NOT EXISTS financial_records (
	user_id            TEXT PRIMARY KEY,
	total_budget       DOUBLE PRECISION NOT NULL DEFAULT 0,
	expense_snapshot   JSONB,
	budget_allocations JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	qGetTotalBudget = `SELECT total_budget FROM financial_records WHERE user_id = $1`

	qUpsertTotalBudget = `
INSERT INTO financial_records (user_id, total_budget) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE
SET total_budget = EXCLUDED.total_budget, updated_at = now()
RETURNING total_budget`

	qGetSnapshot = `SELECT expense_snapshot FROM financial_records WHERE user_id = $1`

	// The jsonb || operator is a right-biased key-wise union, which is the
	// merge rule. xmax = 0 only holds for a freshly inserted row.
	qMergeSnapshot = `
INSERT INTO financial_records (user_id, expense_snapshot) VALUES ($1, $2::jsonb)
ON CONFLICT (user_id) DO UPDATE
SET expense_snapshot = COALESCE(financial_records.expense_snapshot, '{}'::jsonb) || EXCLUDED.expense_snapshot,
    updated_at = now()
RETURNING expense_snapshot, (xmax = 0) AS inserted`

	qGetAllocations = `SELECT budget_allocations FROM financial_records WHERE user_id = $1`

	qMergeAllocations = `
INSERT INTO financial_records (user_id, budget_allocations) VALUES ($1, $2::jsonb)
ON CONFLICT (user_id) DO UPDATE
SET budget_allocations = COALESCE(financial_records.budget_allocations, '{}'::jsonb) || EXCLUDED.budget_allocations,
    updated_at = now()
RETURNING budget_allocations`
)

type Store struct {
	pool *pgxpool.Pool
}

var _ records.Store = (*Store)(nil)

// New opens a pool for dsn and creates the table if needed.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("missing PostgreSQL DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping PostgreSQL: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	slog.InfoContext(ctx, "Connected to PostgreSQL")
	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) GetTotalBudget(ctx context.Context, uid string) (float64, error) {
	var amount float64
	err := s.pool.QueryRow(ctx, qGetTotalBudget, uid).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, records.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get total budget: %w", err)
	}
	return amount, nil
}

func (s *Store) SetTotalBudget(ctx context.Context, uid string, amount float64) (float64, error) {
	var stored float64
	if err := s.pool.QueryRow(ctx, qUpsertTotalBudget, uid, amount).Scan(&stored); err != nil {
		return 0, fmt.Errorf("upsert total budget: %w", err)
	}
	return stored, nil
}

func (s *Store) GetLatestExpenseSnapshot(ctx context.Context, uid string) (core.Snapshot, error) {
	m, err := s.getObject(ctx, qGetSnapshot, uid)
	if err != nil {
		return core.Snapshot{}, err
	}
	return core.Snapshot(m), nil
}

func (s *Store) MergeExpenseSnapshot(ctx context.Context, uid string, delta core.Delta) (core.MergeResult, error) {
	payload, err := json.Marshal(delta)
	if err != nil {
		return core.MergeResult{}, fmt.Errorf("encode delta: %w", err)
	}

	var (
		raw      []byte
		inserted bool
	)
	if err := s.pool.QueryRow(ctx, qMergeSnapshot, uid, string(payload)).Scan(&raw, &inserted); err != nil {
		return core.MergeResult{}, fmt.Errorf("merge expense snapshot: %w", err)
	}
	snap, err := decodeObject(raw)
	if err != nil {
		return core.MergeResult{}, err
	}

	slog.InfoContext(ctx, "Expense snapshot merged in PostgreSQL",
		"uid", uid,
		"delta_categories", len(delta),
		"snapshot_categories", len(snap),
		"created", inserted)
	return core.MergeResult{Snapshot: core.Snapshot(snap), Created: inserted}, nil
}

func (s *Store) GetAllocations(ctx context.Context, uid string) (core.Allocations, error) {
	m, err := s.getObject(ctx, qGetAllocations, uid)
	if err != nil {
		return core.Allocations{}, err
	}
	return core.Allocations(m), nil
}

func (s *Store) SetAllocations(ctx context.Context, uid string, update core.Allocations) (core.Allocations, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return core.Allocations{}, fmt.Errorf("encode allocations: %w", err)
	}
	var raw []byte
	if err := s.pool.QueryRow(ctx, qMergeAllocations, uid, string(payload)).Scan(&raw); err != nil {
		return core.Allocations{}, fmt.Errorf("merge allocations: %w", err)
	}
	m, err := decodeObject(raw)
	if err != nil {
		return core.Allocations{}, err
	}
	return core.Allocations(m), nil
}

func (s *Store) getObject(ctx context.Context, query, uid string) (map[string]float64, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, query, uid).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	return decodeObject(raw)
}

// decodeObject turns a jsonb object (or SQL NULL) into a non-nil map.
func decodeObject(raw []byte) (map[string]float64, error) {
	out := make(map[string]float64)
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode jsonb object: %w", err)
	}
	return out, nil
}
