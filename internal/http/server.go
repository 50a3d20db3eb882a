// Package http serves the financial record API as JSON over net/http.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"budgetsync/internal/core"
	applog "budgetsync/internal/log"
	"budgetsync/internal/middleware/ratelimit"
	"budgetsync/internal/middleware/security"
	"budgetsync/internal/middleware/trace"
)

// RecordService is the gateway the handlers call. *services.RecordService
// implements it.
type RecordService interface {
	GetTotalBudget(ctx context.Context, uid string) (float64, error)
	SetTotalBudget(ctx context.Context, uid string, amount float64) (float64, error)
	GetExpenseSnapshot(ctx context.Context, uid string) (core.Snapshot, error)
	PushExpenseDelta(ctx context.Context, uid string, delta core.Delta) (core.MergeResult, error)
	GetAllocations(ctx context.Context, uid string) (core.Allocations, error)
	SetAllocations(ctx context.Context, uid string, update core.Allocations) (core.Allocations, error)
	Overview(ctx context.Context, uid string) (core.Overview, error)
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures NewServer. Zero values select the defaults.
type Options struct {
	Pinger    Pinger
	Logger    *applog.Logger
	RateLimit ratelimit.Config
	CORS      *security.CORSConfig
	Headers   *security.HeadersConfig
	// Detector defaults to one over Routes trusting the private networks.
	Detector *security.Detector
}

// Routes are the path prefixes the server answers; anything else is logged
// as suspicious.
var Routes = []string{
	"/healthz",
	"/readyz",
	"/totalBudget/get/",
	"/totalBudget/push/",
	"/expense/get/",
	"/expense/push/",
	"/allocations/get/",
	"/allocations/push/",
	"/overview/get/",
}

type Server struct {
	http.Server
	records     RecordService
	pinger      Pinger
	parser      *RequestParser
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, records RecordService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Default(applog.ComponentHTTP)
	}
	corsCfg := security.DefaultCORSConfig()
	if opts.CORS != nil {
		corsCfg = *opts.CORS
	}
	headersCfg := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headersCfg = *opts.Headers
	}

	detector := opts.Detector
	if detector == nil {
		detector = security.NewDetector(Routes)
	}
	s := &Server{
		records:     records,
		pinger:      opts.Pinger,
		parser:      NewRequestParser(),
		rateLimiter: ratelimit.NewLimiter(opts.RateLimit),
		detector:    detector,
		tracer:      trace.NewMiddleware(detector.ExtractClientIP),
	}

	mux := http.NewServeMux()
	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	})

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /totalBudget/get/{uid}", s.handleGetTotalBudget)
	mux.Handle("POST /totalBudget/push/{uid}", limited(http.HandlerFunc(s.handlePushTotalBudget)))
	mux.HandleFunc("GET /expense/get/{uid}", s.handleGetExpense)
	mux.Handle("POST /expense/push/{uid}", limited(http.HandlerFunc(s.handlePushExpense)))
	mux.HandleFunc("GET /allocations/get/{uid}", s.handleGetAllocations)
	mux.Handle("POST /allocations/push/{uid}", limited(http.HandlerFunc(s.handlePushAllocations)))
	mux.HandleFunc("GET /overview/get/{uid}", s.handleGetOverview)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found")
	})

	// Outermost first.
	var handler http.Handler = mux
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(headersCfg).Middleware(handler)
	handler = security.CORS(corsCfg)(handler)
	handler = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = applog.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Metrics returns request counters from the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}
