package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetsync/internal/amqp"
	"budgetsync/internal/cache"
	"budgetsync/internal/core"
	applog "budgetsync/internal/log"
	"budgetsync/internal/records"
)

// Error kinds surfaced to callers. Every error returned by RecordService
// matches exactly one of them under errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage failure")
)

// DefaultStoreTimeout bounds a single store operation.
const DefaultStoreTimeout = 5 * time.Second

// Publisher is satisfied by *amqp.Client.
type Publisher interface {
	PublishRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error
}

// RecordService validates input, calls the record store with a bounded
// timeout and publishes a change event after every successful write.
type RecordService struct {
	store     records.Store
	publisher Publisher
	timeout   time.Duration
	overviews cache.Cache[core.Overview]
	logger    *applog.Logger

	// generations counts writes per user. An overview loaded across a
	// write is returned but not cached.
	genMu       sync.Mutex
	generations map[string]uint64
}

type Option func(*RecordService)

// WithPublisher enables change events. Without it writes publish nothing.
func WithPublisher(p Publisher) Option {
	return func(s *RecordService) { s.publisher = p }
}

func WithTimeout(d time.Duration) Option {
	return func(s *RecordService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithOverviewCache caches overviews per user until the next write.
func WithOverviewCache(c cache.Cache[core.Overview]) Option {
	return func(s *RecordService) { s.overviews = c }
}

func NewRecordService(store records.Store, opts ...Option) *RecordService {
	s := &RecordService{
		store:       store,
		timeout:     DefaultStoreTimeout,
		logger:      applog.Default(applog.ComponentRecords),
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RecordService) GetTotalBudget(ctx context.Context, uid string) (float64, error) {
	if err := validateUID(uid); err != nil {
		return 0, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	amount, err := s.store.GetTotalBudget(ctx, uid)
	if err != nil {
		return 0, s.classify(ctx, applog.OpGetBudget, uid, err)
	}
	return amount, nil
}

// SetTotalBudget accepts any finite amount. Negative budgets are stored as is.
func (s *RecordService) SetTotalBudget(ctx context.Context, uid string, amount float64) (float64, error) {
	if err := validateUID(uid); err != nil {
		return 0, err
	}
	if !core.IsFinite(amount) {
		return 0, fmt.Errorf("%w: total budget must be a finite number", ErrValidation)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	stored, err := s.store.SetTotalBudget(opCtx, uid, amount)
	if err != nil {
		return 0, s.classify(ctx, applog.OpSetBudget, uid, err)
	}

	s.afterWrite(ctx, uid, amqp.ChangeBudget, false)
	return stored, nil
}

// GetExpenseSnapshot returns the live snapshot. A missing record and a record
// without any expenses both report ErrNotFound.
func (s *RecordService) GetExpenseSnapshot(ctx context.Context, uid string) (core.Snapshot, error) {
	if err := validateUID(uid); err != nil {
		return core.Snapshot{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	snap, err := s.store.GetLatestExpenseSnapshot(ctx, uid)
	if err != nil {
		return core.Snapshot{}, s.classify(ctx, applog.OpGetSnapshot, uid, err)
	}
	if len(snap) == 0 {
		return core.Snapshot{}, fmt.Errorf("%s %s: %w", applog.OpGetSnapshot, uid, ErrNotFound)
	}
	return snap, nil
}

// PushExpenseDelta validates delta and merges it into the user's snapshot.
func (s *RecordService) PushExpenseDelta(ctx context.Context, uid string, delta core.Delta) (core.MergeResult, error) {
	if err := validateUID(uid); err != nil {
		return core.MergeResult{}, err
	}
	if err := delta.Validate(); err != nil {
		return core.MergeResult{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.store.MergeExpenseSnapshot(opCtx, uid, delta)
	if err != nil {
		return core.MergeResult{}, s.classify(ctx, applog.OpMergeSnapshot, uid, err)
	}

	s.afterWrite(ctx, uid, amqp.ChangeExpenses, res.Created)
	return res, nil
}

func (s *RecordService) GetAllocations(ctx context.Context, uid string) (core.Allocations, error) {
	if err := validateUID(uid); err != nil {
		return core.Allocations{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	alloc, err := s.store.GetAllocations(ctx, uid)
	if err != nil {
		return core.Allocations{}, s.classify(ctx, applog.OpGetAllocations, uid, err)
	}
	return alloc, nil
}

func (s *RecordService) SetAllocations(ctx context.Context, uid string, update core.Allocations) (core.Allocations, error) {
	if err := validateUID(uid); err != nil {
		return core.Allocations{}, err
	}
	if err := update.Validate(); err != nil {
		return core.Allocations{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	alloc, err := s.store.SetAllocations(opCtx, uid, update)
	if err != nil {
		return core.Allocations{}, s.classify(ctx, applog.OpSetAllocations, uid, err)
	}

	s.afterWrite(ctx, uid, amqp.ChangeAllocations, false)
	return alloc, nil
}

// Overview loads the budget, snapshot and allocations concurrently and
// aggregates them. It reports ErrNotFound only when the record is absent.
func (s *RecordService) Overview(ctx context.Context, uid string) (core.Overview, error) {
	if err := validateUID(uid); err != nil {
		return core.Overview{}, err
	}
	if s.overviews != nil {
		if ov, ok := s.overviews.Get(uid); ok {
			return ov, nil
		}
	}
	gen := s.generation(uid)

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var (
		budget float64
		snap   core.Snapshot
		alloc  core.Allocations
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		budget, err = s.store.GetTotalBudget(gctx, uid)
		return err
	})
	g.Go(func() (err error) {
		snap, err = s.store.GetLatestExpenseSnapshot(gctx, uid)
		return err
	})
	g.Go(func() (err error) {
		alloc, err = s.store.GetAllocations(gctx, uid)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Overview{}, s.classify(ctx, applog.OpOverview, uid, err)
	}

	ov := core.BuildOverview(budget, snap, alloc)
	s.cacheOverview(uid, gen, ov)
	return ov, nil
}

// Close releases the underlying store.
func (s *RecordService) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close record store: %w", err)
	}
	return nil
}

// opContext bounds a single store call. Writes publish on the caller's
// context so a slow store does not eat into the publish timeout.
func (s *RecordService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// afterWrite drops the cached overview and publishes a change event. A
// publish failure is logged and never fails the write.
func (s *RecordService) afterWrite(ctx context.Context, uid string, kind amqp.ChangeKind, created bool) {
	s.invalidate(uid)
	if s.publisher == nil {
		return
	}
	msg := amqp.NewRecordChangedMessage(uid, kind, created)
	if err := s.publisher.PublishRecordChanged(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish record changed message",
			applog.FieldUserID, uid,
			applog.FieldKind, kind,
			applog.FieldError, err)
	}
}

func (s *RecordService) generation(uid string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[uid]
}

// cacheOverview stores ov only if no write for uid finished since gen was
// read.
func (s *RecordService) cacheOverview(uid string, gen uint64, ov core.Overview) {
	if s.overviews == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[uid] != gen {
		return
	}
	s.overviews.Set(uid, ov)
}

func (s *RecordService) invalidate(uid string) {
	if s.overviews == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[uid]++
	s.overviews.Delete(uid)
}

// classify maps a store error onto one of the exported error kinds. Storage
// errors are logged once, here, on the request logger when ctx carries one;
// callers only map ErrStorage to a response.
func (s *RecordService) classify(ctx context.Context, op, uid string, err error) error {
	if errors.Is(err, records.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", op, uid, ErrNotFound)
	}
	applog.LogError(ctx, "Record store operation failed", err, op,
		applog.NewFields().WithComponent(applog.ComponentRecords).WithRecord(uid, 0))
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func validateUID(uid string) error {
	if err := core.ValidateUserID(uid); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}
