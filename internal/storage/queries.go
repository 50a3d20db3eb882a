package storage

const (
	qRecordExists = `SELECT 1 FROM financial_records WHERE user_id = ?`

	qEnsureRecord = `INSERT INTO financial_records (user_id) VALUES (?)
ON CONFLICT (user_id) DO NOTHING`

	qGetTotalBudget = `SELECT total_budget FROM financial_records WHERE user_id = ?`

	qUpsertTotalBudget = `INSERT INTO financial_records (user_id, total_budget) VALUES (?, ?)
ON CONFLICT (user_id) DO UPDATE SET total_budget = excluded.total_budget, updated_at = CURRENT_TIMESTAMP
RETURNING total_budget`

	qTouchRecord = `UPDATE financial_records SET updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`

	qListSnapshot = `SELECT category, amount FROM expense_snapshots WHERE user_id = ?`

	qUpsertSnapshotEntry = `INSERT INTO expense_snapshots (user_id, category, amount) VALUES (?, ?, ?)
ON CONFLICT (user_id, category) DO UPDATE SET amount = excluded.amount, updated_at = CURRENT_TIMESTAMP`

	qListAllocations = `SELECT category, amount FROM budget_allocations WHERE user_id = ?`

	qUpsertAllocation = `INSERT INTO budget_allocations (user_id, category, amount) VALUES (?, ?, ?)
ON CONFLICT (user_id, category) DO UPDATE SET amount = excluded.amount, updated_at = CURRENT_TIMESTAMP`
)
