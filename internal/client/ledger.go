package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"budgetsync/internal/core"
)

// Ledger is the client-side list of dated expenses behind the monthly trend
// and the transaction history. The server only keeps category totals, so the
// ledger lives with the client, optionally persisted to a JSON file.
type Ledger struct {
	path string

	mu      sync.Mutex
	entries []core.DatedAmount
}

// NewLedger returns an empty ledger that is never written to disk.
func NewLedger() *Ledger {
	return &Ledger{}
}

// OpenLedger loads path, treating a missing file as an empty ledger. Every
// later Add rewrites the file.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	for i, e := range l.entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("ledger %s entry %d: %w", path, i, err)
		}
	}
	return l, nil
}

// Add validates every entry and appends them in one step. Nothing is added
// when any entry is invalid or the file cannot be written.
func (l *Ledger) Add(entries ...core.DatedAmount) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	next := append(append([]core.DatedAmount(nil), l.entries...), entries...)
	if err := l.save(next); err != nil {
		return err
	}
	l.entries = next
	return nil
}

// Entries returns the entries of category sorted by date, oldest first. An
// empty category returns everything.
func (l *Ledger) Entries(category string) []core.DatedAmount {
	l.mu.Lock()
	out := core.FilterCategory(l.entries, category)
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}

// Trend buckets entries dated in year into the first months calendar months.
func (l *Ledger) Trend(year, months int) []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return core.MonthlyTrend(l.inYear(year), months)
}

// MonthSpent is the total dated in the month containing at.
func (l *Ledger) MonthSpent(at time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return core.MonthTotal(l.inYear(at.Year()), at.Month())
}

func (l *Ledger) inYear(year int) []core.DatedAmount {
	out := make([]core.DatedAmount, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Date.Year() == year {
			out = append(out, e)
		}
	}
	return out
}

// save replaces the file through a temp file in the same directory.
func (l *Ledger) save(entries []core.DatedAmount) error {
	if l.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
