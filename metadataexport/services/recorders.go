package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/natserract/idmcexport/metadataexport/schema/postgres"
	"go.uber.org/zap"
)

// RunStore is the part of the Postgres ledger the orchestrator writes to
type RunStore interface {
	UpsertRun(ctx context.Context, run postgres.ExportRun) error
}

// RunLedgerService records every run and its steps in export_runs
type RunLedgerService struct {
	store  RunStore
	logger *zap.Logger
}

// NewRunLedgerService creates a new run ledger service
func NewRunLedgerService(store RunStore, logger *zap.Logger) *RunLedgerService {
	return &RunLedgerService{
		store:  store,
		logger: logger,
	}
}

// RecordRun saves the report, replacing an earlier row for the same run
func (l *RunLedgerService) RecordRun(ctx context.Context, report *RunReport) error {
	steps, err := json.Marshal(report.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps for run %s: %w", report.ID, err)
	}

	row := postgres.ExportRun{
		ID:             report.ID,
		StartedAt:      pgtype.Timestamptz{Time: report.StartedAt, Valid: !report.StartedAt.IsZero()},
		FinishedAt:     pgtype.Timestamptz{Time: report.FinishedAt, Valid: !report.FinishedAt.IsZero()},
		ExportFilename: report.ExportFilename,
		ArtifactPath:   pgtype.Text{String: report.ArtifactPath, Valid: report.ArtifactPath != ""},
		Status:         string(report.Status),
		ExitCode:       int32(report.ExitCode),
		Steps:          steps,
	}

	if err := l.store.UpsertRun(ctx, row); err != nil {
		l.logger.Error("Failed to record run in ledger",
			zap.String("run_id", report.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to record run %s: %w", report.ID, err)
	}

	l.logger.Info("Recorded run in ledger",
		zap.String("run_id", report.ID.String()),
		zap.String("status", string(report.Status)))
	return nil
}

// Notifier delivers a JSON payload somewhere outside the job
type Notifier interface {
	Send(ctx context.Context, payload interface{}) error
}

// WebhookRecorder publishes every finished run through a Notifier
type WebhookRecorder struct {
	notifier Notifier
}

func NewWebhookRecorder(notifier Notifier) *WebhookRecorder {
	return &WebhookRecorder{notifier: notifier}
}

func (w *WebhookRecorder) RecordRun(ctx context.Context, report *RunReport) error {
	return w.notifier.Send(ctx, report)
}
