/*
Copyright 2026 The FactoryOps Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/metrics"
	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/queue"
	"github.com/factoryops/factoryops/pkg/storage/objectstore"
)

// ReportStore is the durable lifecycle of reports rows.
type ReportStore interface {
	GetAny(ctx context.Context, reportID string) (*models.Report, error)
	MarkRunning(ctx context.Context, reportID string) error
	MarkComplete(ctx context.Context, reportID, fileURL string, sizeBytes int64) error
	MarkFailed(ctx context.Context, reportID, errorMessage string) error
}

// ArtifactWriter uploads rendered reports and mints download links.
type ArtifactWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Worker consumes generate_report tasks.
type Worker struct {
	reports    ReportStore
	aggregator *Aggregator
	artifacts  ArtifactWriter
	logger     *zap.Logger
}

// NewWorker wires the report worker.
func NewWorker(reports ReportStore, aggregator *Aggregator, artifacts ArtifactWriter, logger *zap.Logger) *Worker {
	return &Worker{
		reports:    reports,
		aggregator: aggregator,
		artifacts:  artifacts,
		logger:     logger,
	}
}

// HandleTask renders one report to a terminal state. Failures surface to the
// queue for its single retry.
func (w *Worker) HandleTask(ctx context.Context, task *asynq.Task) error {
	var payload queue.GenerateReportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error("report.bad_task_payload", zap.Error(err))
		return nil
	}

	report, err := w.reports.GetAny(ctx, payload.ReportID)
	if err != nil {
		w.logger.Warn("report.row_missing",
			zap.String("report_id", payload.ReportID), zap.Error(err))
		return nil
	}

	if err := w.reports.MarkRunning(ctx, report.ID); err != nil {
		return fmt.Errorf("marking report %s running: %w", report.ID, err)
	}
	w.logger.Info("report.started",
		zap.String("report_id", report.ID),
		zap.String("format", string(report.Format)))
	started := time.Now()

	fileURL, size, err := w.generate(ctx, report)
	if err != nil {
		metrics.JobDuration.WithLabelValues("report", "failed").
			Observe(time.Since(started).Seconds())
		if markErr := w.reports.MarkFailed(ctx, report.ID, err.Error()); markErr != nil {
			w.logger.Error("report.mark_failed_failed",
				zap.String("report_id", report.ID), zap.Error(markErr))
		}
		w.logger.Error("report.failed", zap.String("report_id", report.ID), zap.Error(err))
		return err
	}

	if err := w.reports.MarkComplete(ctx, report.ID, fileURL, size); err != nil {
		return fmt.Errorf("marking report %s complete: %w", report.ID, err)
	}
	metrics.JobDuration.WithLabelValues("report", "complete").
		Observe(time.Since(started).Seconds())
	w.logger.Info("report.complete",
		zap.String("report_id", report.ID),
		zap.Int64("size_bytes", size))
	return nil
}

func (w *Worker) generate(ctx context.Context, report *models.Report) (string, int64, error) {
	data, err := w.aggregator.Build(ctx, report)
	if err != nil {
		return "", 0, err
	}

	var body []byte
	switch report.Format {
	case models.FormatPDF:
		body, err = RenderPDF(data)
	case models.FormatExcel:
		body, err = RenderExcel(data)
	case models.FormatJSON:
		body, err = RenderJSON(data)
	default:
		return "", 0, fmt.Errorf("unknown report format %q", report.Format)
	}
	if err != nil {
		return "", 0, fmt.Errorf("rendering %s report: %w", report.Format, err)
	}

	key := objectstore.ReportKey(report.FactoryID, report.ID, report.Format.Ext())
	if err := w.artifacts.Put(ctx, key, body, report.Format.ContentType()); err != nil {
		return "", 0, fmt.Errorf("uploading report artifact: %w", err)
	}
	url, err := w.artifacts.PresignedURL(ctx, key, objectstore.ReportURLTTL)
	if err != nil {
		return "", 0, fmt.Errorf("presigning report artifact: %w", err)
	}
	return url, int64(len(body)), nil
}

// RenderJSON renders the aggregated data dictionary verbatim.
func RenderJSON(data *Data) ([]byte, error) {
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report json: %w", err)
	}
	return body, nil
}
