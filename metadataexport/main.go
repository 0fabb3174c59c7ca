package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/natserract/idmcexport/metadataexport/schema/postgres"
	"github.com/natserract/idmcexport/metadataexport/services"
	"github.com/natserract/idmcexport/pkg/collaborator"
	"github.com/natserract/idmcexport/pkg/config"
	httpclient "github.com/natserract/idmcexport/pkg/http"
	"github.com/natserract/idmcexport/pkg/logging"
	"github.com/natserract/idmcexport/pkg/notify"
	"github.com/natserract/idmcexport/pkg/runlock"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

// run returns the process exit status so deferred cleanup still happens.
func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Initialize logger
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorders []services.RunRecorder

	// Run ledger is optional - graceful degradation if DB not available
	if cfg.LedgerEnabled {
		db, err := postgres.New(ctx, postgres.NewConfig(), logger)
		if err != nil {
			logger.Warn("Failed to connect to database, continuing without run ledger", zap.Error(err))
		} else {
			defer db.Close()
			if err := db.InitSchema(ctx); err != nil {
				logger.Warn("Failed to initialize run ledger schema, continuing without it", zap.Error(err))
			} else {
				logger.Info("Run ledger enabled")
				recorders = append(recorders, services.NewRunLedgerService(db, logger))
			}
		}
	}

	if cfg.WebhookURL != "" {
		hook := notify.NewWebhook(cfg.WebhookURL, httpclient.NewClientWithLogger(logger), logger)
		recorders = append(recorders, services.NewWebhookRecorder(hook))
	}

	orchestrator := services.NewOrchestrator(
		services.OptionsFromConfig(cfg),
		collaborator.NewRunner(logger),
		logger,
		recorders...,
	)

	report, err := orchestrator.Run(ctx)
	switch {
	case errors.Is(err, runlock.ErrHeld):
		// Overlapping cron invocation; the running one owns the outcome
		fmt.Fprintf(os.Stderr, "Another export run is in progress, exiting\n")
		return 0
	case err != nil:
		logger.Error("Export run aborted", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("Export run %s finished: %s (exit code %d)\n", report.ID, report.Status, report.ExitCode)
	fmt.Printf("  Steps: %d succeeded, %d failed, %d skipped\n",
		report.Count(services.StepSucceeded),
		report.Count(services.StepFailed),
		report.Count(services.StepSkipped))
	if report.ArtifactPath != "" {
		fmt.Printf("  Artifact: %s\n", report.ArtifactPath)
	}

	return report.ExitCode
}
