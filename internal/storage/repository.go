package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"budgetsync/internal/core"
	"budgetsync/internal/records"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists financial records in SQLite. The pool is capped
// at one connection so write transactions are serialised and a merge's
// read-modify-write can never interleave with another.
type SQLiteRepository struct {
	db *sql.DB
}

var _ records.Store = (*SQLiteRepository)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) GetTotalBudget(ctx context.Context, uid string) (float64, error) {
	var amount float64
	err := r.db.QueryRowContext(ctx, qGetTotalBudget, uid).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, records.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get total budget: %w", err)
	}
	return amount, nil
}

func (r *SQLiteRepository) SetTotalBudget(ctx context.Context, uid string, amount float64) (float64, error) {
	var stored float64
	if err := r.db.QueryRowContext(ctx, qUpsertTotalBudget, uid, amount).Scan(&stored); err != nil {
		return 0, fmt.Errorf("upsert total budget: %w", err)
	}
	slog.DebugContext(ctx, "Total budget saved to SQLite", "uid", uid, "total_budget", stored)
	return stored, nil
}

func (r *SQLiteRepository) GetLatestExpenseSnapshot(ctx context.Context, uid string) (core.Snapshot, error) {
	if err := r.recordExists(ctx, uid); err != nil {
		return core.Snapshot{}, err
	}
	snap, err := listAmounts(ctx, r.db, qListSnapshot, uid)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("list snapshot: %w", err)
	}
	return core.Snapshot(snap), nil
}

// MergeExpenseSnapshot upserts the record and every delta entry, then reads
// back the merged snapshot, all inside one transaction.
func (r *SQLiteRepository) MergeExpenseSnapshot(ctx context.Context, uid string, delta core.Delta) (core.MergeResult, error) {
	var res core.MergeResult
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		created, err := ensureRecord(ctx, tx, uid)
		if err != nil {
			return err
		}
		for category, amount := range delta {
			if _, err := tx.ExecContext(ctx, qUpsertSnapshotEntry, uid, category, amount); err != nil {
				return fmt.Errorf("upsert snapshot entry %q: %w", category, err)
			}
		}
		if _, err := tx.ExecContext(ctx, qTouchRecord, uid); err != nil {
			return fmt.Errorf("touch record: %w", err)
		}
		snap, err := listAmounts(ctx, tx, qListSnapshot, uid)
		if err != nil {
			return fmt.Errorf("list snapshot: %w", err)
		}
		res = core.MergeResult{Snapshot: core.Snapshot(snap), Created: created}
		return nil
	})
	if err != nil {
		return core.MergeResult{}, err
	}

	slog.InfoContext(ctx, "Expense snapshot merged in SQLite",
		"uid", uid,
		"delta_categories", len(delta),
		"snapshot_categories", len(res.Snapshot),
		"created", res.Created)
	return res, nil
}

func (r *SQLiteRepository) GetAllocations(ctx context.Context, uid string) (core.Allocations, error) {
	if err := r.recordExists(ctx, uid); err != nil {
		return core.Allocations{}, err
	}
	alloc, err := listAmounts(ctx, r.db, qListAllocations, uid)
	if err != nil {
		return core.Allocations{}, fmt.Errorf("list allocations: %w", err)
	}
	return core.Allocations(alloc), nil
}

func (r *SQLiteRepository) SetAllocations(ctx context.Context, uid string, update core.Allocations) (core.Allocations, error) {
	var out core.Allocations
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := ensureRecord(ctx, tx, uid); err != nil {
			return err
		}
		for category, amount := range update {
			if _, err := tx.ExecContext(ctx, qUpsertAllocation, uid, category, amount); err != nil {
				return fmt.Errorf("upsert allocation %q: %w", category, err)
			}
		}
		alloc, err := listAmounts(ctx, tx, qListAllocations, uid)
		if err != nil {
			return fmt.Errorf("list allocations: %w", err)
		}
		out = core.Allocations(alloc)
		return nil
	})
	if err != nil {
		return core.Allocations{}, err
	}
	return out, nil
}

func (r *SQLiteRepository) recordExists(ctx context.Context, uid string) error {
	var one int
	err := r.db.QueryRowContext(ctx, qRecordExists, uid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return records.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ensureRecord creates the record if absent and reports whether it did.
func ensureRecord(ctx context.Context, tx *sql.Tx, uid string) (bool, error) {
	res, err := tx.ExecContext(ctx, qEnsureRecord, uid)
	if err != nil {
		return false, fmt.Errorf("ensure record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensure record rows: %w", err)
	}
	return n == 1, nil
}

func listAmounts(ctx context.Context, q queryer, query, uid string) (map[string]float64, error) {
	rows, err := q.QueryContext(ctx, query, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			category string
			amount   float64
		)
		if err := rows.Scan(&category, &amount); err != nil {
			return nil, err
		}
		out[category] = amount
	}
	return out, rows.Err()
}
