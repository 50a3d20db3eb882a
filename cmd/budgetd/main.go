package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetsync/internal/amqp"
	"budgetsync/internal/backend"
	"budgetsync/internal/cache"
	"budgetsync/internal/cli"
	"budgetsync/internal/core"
	apphttp "budgetsync/internal/http"
	applog "budgetsync/internal/log"
	"budgetsync/internal/middleware/ratelimit"
	"budgetsync/internal/middleware/security"
	"budgetsync/internal/services"
)

const overviewCacheSize = 1000

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend)).CreateBackend(startCtx, backendCfg)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	overviews := cache.NewLRUCache[core.Overview](overviewCacheSize, cfg.OverviewTTL)
	caches := cache.NewManager()
	caches.Register(overviews)
	caches.StartCleanup(time.Minute)

	opts := []services.Option{
		services.WithTimeout(cfg.StoreTimeout),
		services.WithOverviewCache(overviews),
	}

	// Change events are optional: without a broker the server still serves.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change events", applog.FieldError, err)
			amqpClient = nil
		} else {
			opts = append(opts, services.WithPublisher(amqpClient))
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	svc := services.NewRecordService(res.Store, opts...)

	corsCfg := security.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.AllowedOrigins
	detector := security.NewDetector(apphttp.Routes)
	if len(cfg.TrustedProxies) > 0 {
		if err := detector.TrustProxies(cfg.TrustedProxies); err != nil {
			logger.Error("Invalid trusted proxies", applog.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Configured trusted proxies", "proxies", cfg.TrustedProxies)
	}
	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Pinger:    res.Pinger,
		Logger:    logger.WithComponent(applog.ComponentHTTP),
		RateLimit: ratelimit.Config{RequestsPerMinute: cfg.RateLimit, CleanupInterval: 5 * time.Minute},
		CORS:      &corsCfg,
		Detector:  detector,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err)
			}
		}
		if err := svc.Close(); err != nil {
			logger.Error("Record store close error", applog.FieldError, err)
		}
	})

	logger.Info("Starting budgetsync server", "port", cfg.Port, "backend", cfg.DataBackend, applog.FieldOperation, applog.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
