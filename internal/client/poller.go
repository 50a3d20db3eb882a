package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetsync/internal/core"
	applog "budgetsync/internal/log"
)

// DefaultPollInterval matches the one-second refresh of the web dashboard.
const DefaultPollInterval = time.Second

// Source is the subset of API the Poller needs.
type Source interface {
	GetTotalBudget(ctx context.Context, uid string) (float64, error)
	SetTotalBudget(ctx context.Context, uid string, amount float64) (float64, error)
	GetExpenseSnapshot(ctx context.Context, uid string) (core.Snapshot, error)
	PushExpense(ctx context.Context, uid string, delta core.Delta) (core.MergeResult, error)
	GetAllocations(ctx context.Context, uid string) (core.Allocations, error)
}

// State is the last applied view of one user's record.
type State struct {
	Seq         uint64
	HasRecord   bool
	TotalBudget float64
	Snapshot    core.Snapshot
	Allocations core.Allocations
	Overview    core.Overview
	// Trend and MonthSpent come from the client-side ledger: the first
	// core.DefaultTrendMonths months of the current year and the current
	// month's total.
	Trend      []float64
	MonthSpent float64
	UpdatedAt  time.Time
}

func (s State) clone() State {
	s.Snapshot = s.Snapshot.Clone()
	s.Allocations = s.Allocations.Clone()
	s.Overview.Categories = append([]core.CategoryStatus(nil), s.Overview.Categories...)
	s.Trend = append([]float64(nil), s.Trend...)
	return s
}

// Poller keeps a local State in sync with the server. A poll is stamped with a
// sequence number when it is sent; a response is applied only if its number is
// above the last applied one, so a slow response can never overwrite a newer
// one. A write is stamped when its confirmation arrives, which ranks it above
// every poll sent while it was in flight.
type Poller struct {
	src      Source
	uid      string
	interval time.Duration
	onError  func(error)
	ledger   *Ledger
	now      func() time.Time
	logger   *applog.Logger

	mu          sync.Mutex
	issued      uint64
	applied     uint64
	state       State
	subscribers []func(State)
}

type PollerOption func(*Poller)

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithErrorHandler receives every failed poll or write. The poller itself
// only logs and waits for the next tick.
func WithErrorHandler(fn func(error)) PollerOption {
	return func(p *Poller) { p.onError = fn }
}

// WithLedger keeps dated expenses in l instead of a private in-memory ledger.
func WithLedger(l *Ledger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.ledger = l
		}
	}
}

func WithClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPoller(src Source, uid string, opts ...PollerOption) *Poller {
	p := &Poller{
		src:      src,
		uid:      uid,
		interval: DefaultPollInterval,
		ledger:   NewLedger(),
		now:      time.Now,
		logger:   applog.Default(applog.ComponentClient),
		state: State{
			Snapshot:    core.Snapshot{},
			Allocations: core.Allocations{},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers fn to receive every applied State. Calls happen on the
// goroutine that applied the update.
func (p *Poller) Subscribe(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

// State returns a copy of the last applied state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Run polls immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.report(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce fetches budget, snapshot and allocations concurrently and applies
// them as one update. A missing record is a valid empty state.
func (p *Poller) PollOnce(ctx context.Context) error {
	seq := p.next()

	var (
		budget      float64
		snap        = core.Snapshot{}
		alloc       = core.Allocations{}
		hasBudget   bool
		hasSnapshot bool
		hasAlloc    bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := p.src.GetTotalBudget(gctx, p.uid)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		budget, hasBudget = v, err == nil
		return err
	})
	g.Go(func() error {
		v, err := p.src.GetExpenseSnapshot(gctx, p.uid)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err == nil {
			snap, hasSnapshot = v, true
		}
		return err
	})
	g.Go(func() error {
		v, err := p.src.GetAllocations(gctx, p.uid)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err == nil {
			alloc, hasAlloc = v, true
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("poll %d: %w", seq, err)
	}

	p.apply(seq, func(s *State) {
		s.HasRecord = hasBudget || hasSnapshot || hasAlloc
		s.TotalBudget = budget
		s.Snapshot = snap
		s.Allocations = alloc
	})
	return nil
}

// SetTotalBudget writes the budget and applies the confirmed value.
func (p *Poller) SetTotalBudget(ctx context.Context, amount float64) (float64, error) {
	stored, err := p.src.SetTotalBudget(ctx, p.uid, amount)
	if err != nil {
		return 0, err
	}
	p.apply(p.next(), func(s *State) {
		s.HasRecord = true
		s.TotalBudget = stored
	})
	return stored, nil
}

// PushExpense merges delta and applies the server's merged snapshot.
func (p *Poller) PushExpense(ctx context.Context, delta core.Delta) (core.MergeResult, error) {
	res, err := p.src.PushExpense(ctx, p.uid, delta)
	if err != nil {
		return core.MergeResult{}, err
	}
	p.apply(p.next(), func(s *State) {
		s.HasRecord = true
		s.Snapshot = res.Snapshot.Clone()
	})
	return res, nil
}

// AddExpense records one dated spend. The category total is raised by
// e.Amount over the last applied snapshot and pushed; once the server
// confirms it the entry goes into the ledger. A zero date means today.
func (p *Poller) AddExpense(ctx context.Context, e core.DatedAmount) (core.MergeResult, error) {
	if e.Date.IsZero() {
		e.Date = core.DateOf(p.now())
	}
	if err := e.Validate(); err != nil {
		return core.MergeResult{}, err
	}

	p.mu.Lock()
	base := p.state.Snapshot[e.Category]
	p.mu.Unlock()

	res, err := p.PushExpense(ctx, core.Delta{e.Category: base + e.Amount})
	if err != nil {
		return core.MergeResult{}, err
	}
	if err := p.ledger.Add(e); err != nil {
		return res, fmt.Errorf("expense saved but not logged: %w", err)
	}
	p.refreshLedger()
	return res, nil
}

// History lists the ledger entries of category, or all of them.
func (p *Poller) History(category string) []core.DatedAmount {
	return p.ledger.Entries(category)
}

// refreshLedger recomputes the ledger figures of the applied state without
// taking a sequence number.
func (p *Poller) refreshLedger() {
	p.mu.Lock()
	p.fillLedger(&p.state)
	snapshot := p.state.clone()
	subs := append([]func(State){}, p.subscribers...)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot.clone())
	}
}

func (p *Poller) fillLedger(s *State) {
	now := p.now()
	s.Trend = p.ledger.Trend(now.Year(), core.DefaultTrendMonths)
	s.MonthSpent = p.ledger.MonthSpent(now)
}

func (p *Poller) next() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued++
	return p.issued
}

// apply runs mutate and notifies subscribers if seq is newer than anything
// applied so far. It reports whether the update was applied.
func (p *Poller) apply(seq uint64, mutate func(*State)) bool {
	p.mu.Lock()
	if seq <= p.applied {
		p.mu.Unlock()
		p.logger.Debug("Discarded stale response", applog.FieldSequence, seq, "applied", p.applied)
		return false
	}
	p.applied = seq
	mutate(&p.state)
	p.state.Seq = seq
	p.state.UpdatedAt = p.now()
	p.state.Overview = core.BuildOverview(p.state.TotalBudget, p.state.Snapshot, p.state.Allocations)
	p.fillLedger(&p.state)

	snapshot := p.state.clone()
	subs := append([]func(State){}, p.subscribers...)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot.clone())
	}
	return true
}

func (p *Poller) report(err error) {
	p.logger.Warn("Sync failed", applog.FieldOperation, applog.OpPoll, applog.FieldError, err)
	if p.onError != nil {
		p.onError(err)
	}
}
