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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/factoryops/factoryops/pkg/models"
)

// ErrNotDeletable is returned when a cancel hits a running or complete job.
var ErrNotDeletable = errors.New("job is not in a deletable state")

const jobColumns = `id, factory_id, created_by, job_type, device_ids,
	date_range_start, date_range_end, status, result_url, error_message,
	started_at, completed_at, created_at`

// AnalyticsJobRepository is the durable record of asynchronous model runs.
// The row is the source of truth for job state; the queue only carries the
// job id.
type AnalyticsJobRepository struct {
	db *sqlx.DB
}

// NewAnalyticsJobRepository creates an analytics job repository.
func NewAnalyticsJobRepository(db *sqlx.DB) *AnalyticsJobRepository {
	return &AnalyticsJobRepository{db: db}
}

// Create persists a pending job and assigns its id.
func (r *AnalyticsJobRepository) Create(ctx context.Context, job *models.AnalyticsJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = models.StatusPending
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO analytics_jobs
		     (id, factory_id, created_by, job_type, device_ids,
		      date_range_start, date_range_end, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.FactoryID, job.CreatedBy, job.JobType, job.DeviceIDs,
		job.DateRangeStart, job.DateRangeEnd, job.Status)
	if err != nil {
		return fmt.Errorf("inserting analytics job: %w", err)
	}
	return nil
}

// Get fetches a job scoped to its factory.
func (r *AnalyticsJobRepository) Get(ctx context.Context, factoryID int64, jobID string) (*models.AnalyticsJob, error) {
	var job models.AnalyticsJob
	err := r.db.GetContext(ctx, &job,
		`SELECT `+jobColumns+` FROM analytics_jobs
		 WHERE factory_id = $1 AND id = $2`, factoryID, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("analytics job %s: %w", jobID, err)
	}
	return &job, nil
}

// GetAny fetches a job without tenant scoping; the worker resolves the
// factory from the row itself.
func (r *AnalyticsJobRepository) GetAny(ctx context.Context, jobID string) (*models.AnalyticsJob, error) {
	var job models.AnalyticsJob
	err := r.db.GetContext(ctx, &job,
		`SELECT `+jobColumns+` FROM analytics_jobs WHERE id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("analytics job %s: %w", jobID, err)
	}
	return &job, nil
}

// List returns a factory's jobs, newest first.
func (r *AnalyticsJobRepository) List(ctx context.Context, factoryID int64, limit int) ([]models.AnalyticsJob, error) {
	var jobs []models.AnalyticsJob
	err := r.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM analytics_jobs
		 WHERE factory_id = $1 ORDER BY created_at DESC LIMIT $2`,
		factoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing analytics jobs: %w", err)
	}
	return jobs, nil
}

// Delete cancels a job. Only pending and failed jobs may be removed; the
// state check and the delete are one statement so a concurrent start cannot
// slip between them.
func (r *AnalyticsJobRepository) Delete(ctx context.Context, factoryID int64, jobID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM analytics_jobs
		 WHERE factory_id = $1 AND id = $2 AND status IN ('pending', 'failed')`,
		factoryID, jobID)
	if err != nil {
		return fmt.Errorf("deleting analytics job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, factoryID, jobID); err != nil {
			return err
		}
		return ErrNotDeletable
	}
	return nil
}

// MarkRunning transitions pending -> running and stamps started_at.
func (r *AnalyticsJobRepository) MarkRunning(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE analytics_jobs
		 SET status = 'running', started_at = NOW(), error_message = NULL
		 WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("marking job %s running: %w", jobID, err)
	}
	return nil
}

// MarkComplete transitions running -> complete with the artifact location.
func (r *AnalyticsJobRepository) MarkComplete(ctx context.Context, jobID, resultURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE analytics_jobs
		 SET status = 'complete', result_url = $2, completed_at = NOW()
		 WHERE id = $1`, jobID, resultURL)
	if err != nil {
		return fmt.Errorf("marking job %s complete: %w", jobID, err)
	}
	return nil
}

// MarkFailed transitions running -> failed with a diagnostic.
func (r *AnalyticsJobRepository) MarkFailed(ctx context.Context, jobID, errorMessage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE analytics_jobs
		 SET status = 'failed', error_message = $2, completed_at = NOW()
		 WHERE id = $1`, jobID, errorMessage)
	if err != nil {
		return fmt.Errorf("marking job %s failed: %w", jobID, err)
	}
	return nil
}
