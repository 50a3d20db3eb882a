package main

import (
	"context"
	"errors"
	"os"
	"time"

	"budgetsync/internal/amqp"
	"budgetsync/internal/backend"
	"budgetsync/internal/cli"
	applog "budgetsync/internal/log"
	"budgetsync/internal/notify"
	"budgetsync/internal/notify/discord"
	"budgetsync/internal/services"
	gsheet "budgetsync/internal/sheets/google"
	"budgetsync/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting budget-worker", applog.FieldOperation, applog.OpStartup)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend)).CreateBackend(startCtx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	svc := services.NewRecordService(res.Store, services.WithTimeout(cfg.StoreTimeout))

	opts := []worker.Option{worker.WithLogger(logger.WithComponent(applog.ComponentWorker))}

	if cfg.SheetsEnabled() {
		sheetsClient, err := gsheet.New(startCtx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		opts = append(opts, worker.WithExporter(sheetsClient))
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	var discordNotifier *discord.Notifier
	if cfg.DiscordEnabled() {
		discordNotifier, err = discord.New(cfg.DiscordBotToken, cfg.DiscordChannelID, cfg.Currency)
		if err != nil {
			logger.Error("Failed to initialize Discord notifier", applog.FieldError, err)
			os.Exit(1)
		}
		opts = append(opts, worker.WithNotifier(discordNotifier))
		logger.Info("Discord alerts enabled", "channel_id", cfg.DiscordChannelID)
	} else {
		opts = append(opts, worker.WithNotifier(notify.NewLogNotifier(logger.WithComponent(applog.ComponentNotify), cfg.Currency)))
		logger.Info("Discord alerts disabled - alerts go to the log")
	}

	recordWorker := worker.NewRecordWorker(svc, opts...)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down worker...")
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", applog.FieldError, err)
		}
		if discordNotifier != nil {
			_ = discordNotifier.Close()
		}
		if err := svc.Close(); err != nil {
			logger.Error("Record store close error", applog.FieldError, err)
		}
	})

	if err := amqpClient.ConsumeRecordChanged(ctx, recordWorker.HandleRecordChanged); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
