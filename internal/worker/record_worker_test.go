package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budgetsync/internal/amqp"
	"budgetsync/internal/core"
	"budgetsync/internal/notify"
	"budgetsync/internal/records/memory"
	"budgetsync/internal/services"
	sheetsmem "budgetsync/internal/sheets/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, a notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type fixture struct {
	svc      *services.RecordService
	exporter *sheetsmem.Exporter
	notifier *recordingNotifier
	worker   *RecordWorker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc := services.NewRecordService(memory.New())
	f := &fixture{
		svc:      svc,
		exporter: sheetsmem.New(),
		notifier: &recordingNotifier{},
	}
	f.worker = NewRecordWorker(svc, WithExporter(f.exporter), WithNotifier(f.notifier))
	f.worker.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) push(t *testing.T, delta core.Delta) {
	t.Helper()
	if _, err := f.svc.PushExpenseDelta(context.Background(), "u1", delta); err != nil {
		t.Fatal(err)
	}
	msg := amqp.NewRecordChangedMessage("u1", amqp.ChangeExpenses, false)
	if err := f.worker.HandleRecordChanged(context.Background(), msg); err != nil {
		t.Fatalf("HandleRecordChanged: %v", err)
	}
}

func TestHandleRecordChanged_AlertsOnEscalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.SetAllocations(ctx, "u1", core.Allocations{"Food": 400, "Rent": 1000}); err != nil {
		t.Fatal(err)
	}

	f.push(t, core.Delta{"Food": 100, "Rent": 500}) // safe, safe
	if f.notifier.count() != 0 {
		t.Fatalf("alerts = %d, want 0", f.notifier.count())
	}

	f.push(t, core.Delta{"Food": 380}) // critical
	if f.notifier.count() != 1 {
		t.Fatalf("alerts = %d, want 1", f.notifier.count())
	}
	a := f.notifier.alerts[0]
	if a.Category != "Food" || a.Severity != core.SeverityCritical || a.Previous != core.SeveritySafe {
		t.Fatalf("alert = %+v", a)
	}

	f.push(t, core.Delta{"Food": 390}) // still critical
	if f.notifier.count() != 1 {
		t.Fatalf("repeat band alerted: %d", f.notifier.count())
	}

	f.push(t, core.Delta{"Food": 500}) // exceeded
	if f.notifier.count() != 2 || f.notifier.alerts[1].OverBudget != 100 {
		t.Fatalf("alerts = %+v", f.notifier.alerts)
	}

	f.push(t, core.Delta{"Food": 10})  // back to safe
	f.push(t, core.Delta{"Food": 320}) // warning again
	if f.notifier.count() != 3 || f.notifier.alerts[2].Severity != core.SeverityWarning {
		t.Fatalf("alerts = %+v", f.notifier.alerts)
	}

	if f.exporter.Exports() != 6 {
		t.Fatalf("exports = %d, want 6", f.exporter.Exports())
	}
}

func TestHandleRecordChanged_MissingRecordIsSkipped(t *testing.T) {
	f := newFixture(t)
	msg := amqp.NewRecordChangedMessage("ghost", amqp.ChangeBudget, false)
	if err := f.worker.HandleRecordChanged(context.Background(), msg); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if f.exporter.Exports() != 0 {
		t.Fatal("missing record should not be exported")
	}
}

func TestHandleRecordChanged_NotifyFailureKeepsBand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.svc.SetAllocations(ctx, "u1", core.Allocations{"Food": 100})
	_, _ = f.svc.PushExpenseDelta(ctx, "u1", core.Delta{"Food": 95})

	boom := errors.New("discord down")
	f.notifier.err = boom
	msg := amqp.NewRecordChangedMessage("u1", amqp.ChangeExpenses, false)
	if err := f.worker.HandleRecordChanged(ctx, msg); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	f.notifier.err = nil
	if err := f.worker.HandleRecordChanged(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("alerts = %d, want 1 after recovery", f.notifier.count())
	}
}

type failingExporter struct{}

func (failingExporter) ExportOverview(context.Context, string, core.Overview, time.Time) (string, error) {
	return "", errors.New("quota exceeded")
}

func TestHandleRecordChanged_ExportFailure(t *testing.T) {
	svc := services.NewRecordService(memory.New())
	_, _ = svc.SetTotalBudget(context.Background(), "u1", 10)
	w := NewRecordWorker(svc, WithExporter(failingExporter{}))

	err := w.HandleRecordChanged(context.Background(), amqp.NewRecordChangedMessage("u1", amqp.ChangeBudget, true))
	if err == nil {
		t.Fatal("expected export error")
	}
}

func TestEscalated(t *testing.T) {
	tests := []struct {
		prev, cur core.Severity
		want      bool
	}{
		{core.SeveritySafe, core.SeveritySafe, false},
		{core.SeveritySafe, core.SeverityWarning, true},
		{core.SeverityWarning, core.SeverityWarning, false},
		{core.SeverityCritical, core.SeverityWarning, false},
		{core.SeverityCritical, core.SeverityExceeded, true},
	}
	for _, tt := range tests {
		if got := escalated(tt.prev, tt.cur); got != tt.want {
			t.Errorf("escalated(%s, %s) = %v, want %v", tt.prev, tt.cur, got, tt.want)
		}
	}
}
