package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetsync/internal/amqp"
	"budgetsync/internal/core"
	applog "budgetsync/internal/log"
	"budgetsync/internal/notify"
	"budgetsync/internal/services"
	"budgetsync/internal/sheets"
)

// OverviewSource loads the aggregated view of one record.
type OverviewSource interface {
	Overview(ctx context.Context, uid string) (core.Overview, error)
}

// RecordWorker reacts to record change events: it exports the fresh
// overview to a sheet and alerts when a category climbs into a worse
// severity band.
type RecordWorker struct {
	overviews OverviewSource
	exporter  sheets.OverviewExporter
	notifier  notify.Notifier
	logger    *applog.Logger
	now       func() time.Time

	mu   sync.Mutex
	last map[string]map[string]core.Severity // uid -> category -> last alerted band
}

type Option func(*RecordWorker)

// WithExporter enables sheet export. Without it events only drive alerts.
func WithExporter(e sheets.OverviewExporter) Option {
	return func(w *RecordWorker) { w.exporter = e }
}

func WithNotifier(n notify.Notifier) Option {
	return func(w *RecordWorker) { w.notifier = n }
}

func WithLogger(l *applog.Logger) Option {
	return func(w *RecordWorker) { w.logger = l }
}

func NewRecordWorker(src OverviewSource, opts ...Option) *RecordWorker {
	w := &RecordWorker{
		overviews: src,
		logger:    applog.Default(applog.ComponentWorker),
		now:       time.Now,
		last:      make(map[string]map[string]core.Severity),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleRecordChanged processes a single change event from AMQP. A record
// that no longer resolves is acknowledged and skipped.
func (w *RecordWorker) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	log := w.logger.With(applog.FieldUserID, msg.UserID, applog.FieldKind, string(msg.Kind))
	log.DebugContext(ctx, "Processing record changed message", "id", msg.ID, applog.FieldCreated, msg.Created)

	ov, err := w.overviews.Overview(ctx, msg.UserID)
	if errors.Is(err, services.ErrNotFound) {
		log.WarnContext(ctx, "Record not found, skipping", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load overview: %w", err)
	}

	at := w.now()
	g, gctx := errgroup.WithContext(ctx)
	if w.exporter != nil {
		g.Go(func() error {
			ref, err := w.exporter.ExportOverview(gctx, msg.UserID, ov, at)
			if err != nil {
				return fmt.Errorf("export overview: %w", err)
			}
			log.InfoContext(gctx, "Exported overview", applog.FieldOperation, applog.OpExport, "sheets_ref", ref)
			return nil
		})
	}
	if w.notifier != nil {
		g.Go(func() error {
			return w.alert(gctx, msg.UserID, ov, at)
		})
	}
	return g.Wait()
}

// alert notifies every category whose band rose to Warning or worse since
// the last event. A band that drops is remembered so a later rise alerts
// again. A failed notification leaves the previous band in place.
func (w *RecordWorker) alert(ctx context.Context, uid string, ov core.Overview, at time.Time) error {
	var errs []error
	for _, st := range ov.Categories {
		prev := w.lastSeverity(uid, st.Category)
		if !escalated(prev, st.Severity) {
			w.setSeverity(uid, st.Category, st.Severity)
			continue
		}
		if err := w.notifier.Notify(ctx, notify.NewAlert(uid, st, prev, at)); err != nil {
			errs = append(errs, fmt.Errorf("alert %s: %w", st.Category, err))
			continue
		}
		w.setSeverity(uid, st.Category, st.Severity)
		w.logger.InfoContext(ctx, "Sent severity alert",
			applog.FieldOperation, applog.OpAlert,
			applog.FieldUserID, uid,
			applog.FieldCategory, st.Category,
			applog.FieldSeverity, string(st.Severity))
	}
	return errors.Join(errs...)
}

func escalated(prev, cur core.Severity) bool {
	return cur.Rank() >= core.SeverityWarning.Rank() && cur.Rank() > prev.Rank()
}

func (w *RecordWorker) lastSeverity(uid, category string) core.Severity {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.last[uid][category]; ok {
		return s
	}
	return core.SeveritySafe
}

func (w *RecordWorker) setSeverity(uid, category string, s core.Severity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	byCat, ok := w.last[uid]
	if !ok {
		byCat = make(map[string]core.Severity)
		w.last[uid] = byCat
	}
	byCat[category] = s
}
