package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"budgetsync/internal/core"
	ports "budgetsync/internal/sheets"
)

// Exporter keeps exported rows in process. Used when no spreadsheet is
// configured and in tests.
type Exporter struct {
	mu      sync.Mutex
	rows    []ports.Row
	exports int
}

var _ ports.OverviewExporter = (*Exporter)(nil)

func New() *Exporter { return &Exporter{} }

// ExportOverview stores the rows and returns a synthetic reference.
func (e *Exporter) ExportOverview(_ context.Context, uid string, ov core.Overview, at time.Time) (string, error) {
	if err := core.ValidateUserID(uid); err != nil {
		return "", err
	}
	rows := ports.Rows(uid, ov, at)

	e.mu.Lock()
	defer e.mu.Unlock()
	start := len(e.rows) + 1
	e.rows = append(e.rows, rows...)
	e.exports++
	return fmt.Sprintf("mem:%d-%d", start, len(e.rows)), nil
}

// Rows returns a copy of every exported row, oldest first.
func (e *Exporter) Rows() []ports.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ports.Row(nil), e.rows...)
}

// Exports is the number of ExportOverview calls that succeeded.
func (e *Exporter) Exports() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exports
}
