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

package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/metrics"
	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/queue"
	"github.com/factoryops/factoryops/pkg/storage/objectstore"
	"github.com/factoryops/factoryops/pkg/storage/timeseries"
)

// JobStore is the durable lifecycle of analytics_jobs rows.
type JobStore interface {
	GetAny(ctx context.Context, jobID string) (*models.AnalyticsJob, error)
	MarkRunning(ctx context.Context, jobID string) error
	MarkComplete(ctx context.Context, jobID, resultURL string) error
	MarkFailed(ctx context.Context, jobID, errorMessage string) error
}

// WindowReader fetches the telemetry window a job runs over.
type WindowReader interface {
	QueryWindow(ctx context.Context, factoryID int64, deviceIDs []int64, start, end time.Time) ([]timeseries.Sample, error)
}

// ArtifactStore uploads results and mints download links.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Worker consumes run_analytics_job tasks.
type Worker struct {
	jobs      JobStore
	telemetry WindowReader
	artifacts ArtifactStore
	logger    *zap.Logger
}

// NewWorker wires the analytics worker.
func NewWorker(jobs JobStore, telemetry WindowReader, artifacts ArtifactStore, logger *zap.Logger) *Worker {
	return &Worker{jobs: jobs, telemetry: telemetry, artifacts: artifacts, logger: logger}
}

// HandleTask runs one job to a terminal state. Transient failures are
// surfaced to the queue for its single retry; precondition failures are
// terminal immediately.
func (w *Worker) HandleTask(ctx context.Context, task *asynq.Task) error {
	var payload queue.RunAnalyticsJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// A malformed payload can never succeed; drop it.
		w.logger.Error("analytics.bad_task_payload", zap.Error(err))
		return nil
	}

	job, err := w.jobs.GetAny(ctx, payload.JobID)
	if err != nil {
		// The row may have been cancelled between enqueue and execution.
		w.logger.Warn("analytics.job_missing", zap.String("job_id", payload.JobID), zap.Error(err))
		return nil
	}

	if err := w.jobs.MarkRunning(ctx, job.ID); err != nil {
		return fmt.Errorf("marking job %s running: %w", job.ID, err)
	}
	w.logger.Info("analytics.job_started",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)))
	started := time.Now()

	resultURL, err := w.execute(ctx, job)
	if err != nil {
		metrics.JobDuration.WithLabelValues("analytics", "failed").
			Observe(time.Since(started).Seconds())
		if markErr := w.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			w.logger.Error("analytics.mark_failed_failed",
				zap.String("job_id", job.ID), zap.Error(markErr))
		}
		if errors.Is(err, ErrInsufficientData) {
			w.logger.Warn("analytics.insufficient_data",
				zap.String("job_id", job.ID), zap.Error(err))
			return nil
		}
		w.logger.Error("analytics.job_failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return err
	}

	if err := w.jobs.MarkComplete(ctx, job.ID, resultURL); err != nil {
		return fmt.Errorf("marking job %s complete: %w", job.ID, err)
	}
	metrics.JobDuration.WithLabelValues("analytics", "complete").
		Observe(time.Since(started).Seconds())
	w.logger.Info("analytics.job_complete", zap.String("job_id", job.ID))
	return nil
}

func (w *Worker) execute(ctx context.Context, job *models.AnalyticsJob) (string, error) {
	runner, ok := Runners[job.JobType]
	if !ok {
		return "", fmt.Errorf("unknown job type %q", job.JobType)
	}

	samples, err := w.telemetry.QueryWindow(ctx, job.FactoryID,
		job.DeviceIDs, job.DateRangeStart, job.DateRangeEnd)
	if err != nil {
		return "", fmt.Errorf("fetching telemetry window: %w", err)
	}

	frame := NewFrame(samples)
	result, err := runner(frame, jobSeed(job.ID))
	if err != nil {
		return "", err
	}
	result["job_id"] = job.ID
	result["job_type"] = job.JobType
	result["generated_at"] = time.Now().UTC()

	body, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}

	key := objectstore.AnalyticsKey(job.FactoryID, job.ID)
	if err := w.artifacts.Put(ctx, key, body, "application/json"); err != nil {
		return "", fmt.Errorf("uploading result: %w", err)
	}
	url, err := w.artifacts.PresignedURL(ctx, key, objectstore.AnalyticsURLTTL)
	if err != nil {
		return "", fmt.Errorf("presigning result: %w", err)
	}
	return url, nil
}

// jobSeed derives a stable model seed from the job id, so a retried job
// reproduces its run.
func jobSeed(jobID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(jobID))
	return int64(h.Sum64())
}
