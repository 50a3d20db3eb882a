package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budgetsync/internal/core"
	applog "budgetsync/internal/log"
	"budgetsync/internal/middleware/ratelimit"
	"budgetsync/internal/records"
	"budgetsync/internal/records/memory"
	"budgetsync/internal/services"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	svc := services.NewRecordService(memory.New())
	srv := NewServer(":0", svc, Options{RateLimit: ratelimit.Config{RequestsPerMinute: 1000}})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := do(t, srv, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db down") }

func TestReadyReportsStoreFailure(t *testing.T) {
	srv := NewServer(":0", services.NewRecordService(memory.New()), Options{Pinger: failingPinger{}})
	defer srv.Shutdown(context.Background())

	if rr := do(t, srv, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
}

func TestTotalBudget(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/totalBudget/get/u1", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("GET absent status=%d, want 404", rr.Code)
	}
	if msg := decode[messageResponse](t, rr).Message; msg != "Budget not found" {
		t.Fatalf("message = %q", msg)
	}

	rr = do(t, srv, http.MethodPost, "/totalBudget/push/u1", `{"totalBudget": 2500.5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST status=%d body=%s", rr.Code, rr.Body)
	}
	if got := decode[totalBudgetResponse](t, rr).TotalBudget; got != 2500.5 {
		t.Fatalf("POST totalBudget = %v", got)
	}

	rr = do(t, srv, http.MethodGet, "/totalBudget/get/u1", "")
	if rr.Code != http.StatusOK || decode[totalBudgetResponse](t, rr).TotalBudget != 2500.5 {
		t.Fatalf("GET after POST = %d %s", rr.Code, rr.Body)
	}

	// Negative budgets are accepted.
	if rr := do(t, srv, http.MethodPost, "/totalBudget/push/u1", `{"totalBudget": -10}`); rr.Code != http.StatusOK {
		t.Fatalf("negative budget status=%d", rr.Code)
	}
}

func TestTotalBudget_RejectsNonNumbers(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []string{
		`{"totalBudget": "100"}`,
		`{"totalBudget": null}`,
		`{"totalBudget": true}`,
		`{}`,
		`not json`,
		`{"totalBudget": 1} {"totalBudget": 2}`,
	} {
		rr := do(t, srv, http.MethodPost, "/totalBudget/push/u1", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: status=%d, want 400", body, rr.Code)
		}
	}

	// Nothing was created.
	if rr := do(t, srv, http.MethodGet, "/totalBudget/get/u1", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("rejected pushes created a record: %d", rr.Code)
	}
}

func TestExpensePushScenarios(t *testing.T) {
	srv := newTestServer(t)

	// A: first push creates the record.
	rr := do(t, srv, http.MethodPost, "/expense/push/u1", `{"Food": 300, "Rent": 200}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("A status=%d body=%s", rr.Code, rr.Body)
	}
	a := decode[expenseResponse](t, rr)
	if a.Message != msgExpensesCreated || a.ExpenseAmount["Food"] != 300 || a.ExpenseAmount["Rent"] != 200 {
		t.Fatalf("A body = %+v", a)
	}

	// B: overwrite Food, add Travel, keep Rent.
	rr = do(t, srv, http.MethodPost, "/expense/push/u1", `{"Food": 350, "Travel": 100}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("B status=%d body=%s", rr.Code, rr.Body)
	}
	b := decode[expenseResponse](t, rr)
	want := map[string]float64{"Food": 350, "Rent": 200, "Travel": 100}
	if b.Message != msgExpensesUpdated || fmt.Sprint(b.ExpenseAmount) != fmt.Sprint(want) {
		t.Fatalf("B body = %+v, want %v", b, want)
	}

	// C: zero is a value, not a deletion.
	rr = do(t, srv, http.MethodPost, "/expense/push/u1", `{"Rent": 0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("C status=%d", rr.Code)
	}
	c := decode[expenseResponse](t, rr)
	if v, ok := c.ExpenseAmount["Rent"]; !ok || v != 0 || len(c.ExpenseAmount) != 3 {
		t.Fatalf("C body = %+v", c)
	}

	rr = do(t, srv, http.MethodGet, "/expense/get/u1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET status=%d", rr.Code)
	}
	got := decode[expenseResponse](t, rr)
	if got.Message != "" || got.ExpenseAmount["Food"] != 350 || got.ExpenseAmount["Travel"] != 100 {
		t.Fatalf("GET body = %s", rr.Body)
	}
}

func TestExpensePushOnBudgetOnlyRecordIsUpdate(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodPost, "/totalBudget/push/u1", `{"totalBudget": 100}`)
	if rr := do(t, srv, http.MethodGet, "/expense/get/u1", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("GET expense on budget-only record = %d, want 404", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/expense/push/u1", `{"Food": 1}`); rr.Code != http.StatusOK {
		t.Fatalf("push on existing record = %d, want 200", rr.Code)
	}
}

func TestExpensePush_Invalid(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []string{
		`[1, 2]`,
		`"food"`,
		`null`,
		`{}`,
		`{"Food": "300"}`,
		`{"Food": -1}`,
		`{"": 5}`,
		`{"Food": {"x": 1}}`,
	} {
		rr := do(t, srv, http.MethodPost, "/expense/push/u1", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: status=%d, want 400", body, rr.Code)
			continue
		}
		if msg := decode[messageResponse](t, rr).Message; msg == "" {
			t.Errorf("body %s: empty error message", body)
		}
	}

	if rr := do(t, srv, http.MethodGet, "/expense/get/u1", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("invalid pushes created data: %d", rr.Code)
	}
}

func TestAllocationsAndOverview(t *testing.T) {
	srv := newTestServer(t)

	if rr := do(t, srv, http.MethodGet, "/overview/get/u1", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("overview absent = %d, want 404", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/allocations/get/u1", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("allocations absent = %d, want 404", rr.Code)
	}

	do(t, srv, http.MethodPost, "/totalBudget/push/u1", `{"totalBudget": 1000}`)
	rr := do(t, srv, http.MethodPost, "/allocations/push/u1", `{"Food": 400, "Rent": 500}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("allocations push = %d %s", rr.Code, rr.Body)
	}
	if got := decode[allocationsResponse](t, rr).BudgetAllocations; got["Food"] != 400 || got["Rent"] != 500 {
		t.Fatalf("allocations = %v", got)
	}
	do(t, srv, http.MethodPost, "/expense/push/u1", `{"Food": 380, "Rent": 200}`)

	rr = do(t, srv, http.MethodGet, "/overview/get/u1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("overview = %d %s", rr.Code, rr.Body)
	}
	ov := decode[core.Overview](t, rr)
	if ov.TotalSpent != 580 || ov.Remaining != 420 || len(ov.Categories) != 2 {
		t.Fatalf("overview = %+v", ov)
	}
	if food, _ := ov.Category("Food"); food.Severity != core.SeverityCritical {
		t.Fatalf("Food severity = %s, want critical", food.Severity)
	}
}

type brokenService struct{ RecordService }

func (brokenService) GetTotalBudget(context.Context, string) (float64, error) {
	return 0, fmt.Errorf("get_total_budget: %w: %w", services.ErrStorage, errors.New("mongo: connection pool exhausted at 10.0.0.5"))
}

func (brokenService) PushExpenseDelta(context.Context, string, core.Delta) (core.MergeResult, error) {
	return core.MergeResult{}, fmt.Errorf("merge: %w: %w", services.ErrStorage, errors.New("disk I/O error"))
}

func TestStorageFailureIsOpaque(t *testing.T) {
	srv := NewServer(":0", brokenService{}, Options{})
	defer srv.Shutdown(context.Background())

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/totalBudget/get/u1", ""},
		{http.MethodPost, "/expense/push/u1", `{"Food": 1}`},
	} {
		rr := do(t, srv, tc.method, tc.path, tc.body)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("%s %s status=%d, want 500", tc.method, tc.path, rr.Code)
		}
		if body := strings.TrimSpace(rr.Body.String()); body != `{"message":"An error occurred"}` {
			t.Fatalf("%s %s body = %s", tc.method, tc.path, body)
		}
	}
}

// downStore fails every budget read.
type downStore struct {
	records.Store
}

func (downStore) GetTotalBudget(context.Context, string) (float64, error) {
	return 0, errors.New("connection reset by peer")
}

func TestStorageFailureLoggedOnceWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Output: &buf, Component: applog.ComponentHTTP})
	srv := NewServer(":0", services.NewRecordService(downStore{Store: memory.New()}), Options{Logger: logger})
	defer srv.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/totalBudget/get/u1", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rr.Code)
	}

	out := buf.String()
	if n := strings.Count(out, "level=ERROR"); n != 1 {
		t.Fatalf("logged %d errors, want 1:\n%s", n, out)
	}
	for _, want := range []string{"Record store operation failed", "uid=u1", "req-42", "connection reset by peer"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	if srv.Metrics().TotalRequests != 1 {
		t.Errorf("TotalRequests = %d", srv.Metrics().TotalRequests)
	}
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	svc := services.NewRecordService(memory.New())
	srv := NewServer(":0", svc, Options{RateLimit: ratelimit.Config{RequestsPerMinute: 2}})
	defer srv.Shutdown(context.Background())

	for i := 0; i < 2; i++ {
		if rr := do(t, srv, http.MethodPost, "/totalBudget/push/u1", `{"totalBudget": 1}`); rr.Code != http.StatusOK {
			t.Fatalf("push %d = %d", i, rr.Code)
		}
	}
	if rr := do(t, srv, http.MethodPost, "/totalBudget/push/u1", `{"totalBudget": 1}`); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third push = %d, want 429", rr.Code)
	}
	for i := 0; i < 5; i++ {
		if rr := do(t, srv, http.MethodGet, "/totalBudget/get/u1", ""); rr.Code != http.StatusOK {
			t.Fatalf("GET %d = %d, reads must not be limited", i, rr.Code)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)
	if rr := do(t, srv, http.MethodGet, "/nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}
