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
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/factoryops/factoryops/pkg/models"
)

// Report artifacts are kept for 90 days after creation.
const reportRetention = 90 * 24 * time.Hour

const reportColumns = `id, factory_id, created_by, title, device_ids,
	date_range_start, date_range_end, format, include_analytics,
	analytics_job_id, status, file_url, file_size_bytes, error_message,
	expires_at, created_at, started_at, completed_at`

// ReportRepository is the durable record of report-generation requests.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a report repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create persists a pending report request and assigns its id and expiry.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	report.Status = models.StatusPending
	expires := time.Now().UTC().Add(reportRetention)
	report.ExpiresAt = &expires
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reports
		     (id, factory_id, created_by, title, device_ids,
		      date_range_start, date_range_end, format, include_analytics,
		      analytics_job_id, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		report.ID, report.FactoryID, report.CreatedBy, report.Title,
		report.DeviceIDs, report.DateRangeStart, report.DateRangeEnd,
		report.Format, report.IncludeAnalytics, report.AnalyticsJobID,
		report.Status, report.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}
	return nil
}

// Get fetches a report scoped to its factory.
func (r *ReportRepository) Get(ctx context.Context, factoryID int64, reportID string) (*models.Report, error) {
	var report models.Report
	err := r.db.GetContext(ctx, &report,
		`SELECT `+reportColumns+` FROM reports
		 WHERE factory_id = $1 AND id = $2`, factoryID, reportID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", reportID, err)
	}
	return &report, nil
}

// GetAny fetches a report without tenant scoping, for the worker.
func (r *ReportRepository) GetAny(ctx context.Context, reportID string) (*models.Report, error) {
	var report models.Report
	err := r.db.GetContext(ctx, &report,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, reportID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", reportID, err)
	}
	return &report, nil
}

// List returns a factory's reports, newest first.
func (r *ReportRepository) List(ctx context.Context, factoryID int64, limit int) ([]models.Report, error) {
	var reports []models.Report
	err := r.db.SelectContext(ctx, &reports,
		`SELECT `+reportColumns+` FROM reports
		 WHERE factory_id = $1 ORDER BY created_at DESC LIMIT $2`,
		factoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return reports, nil
}

// Delete removes a pending or failed report request.
func (r *ReportRepository) Delete(ctx context.Context, factoryID int64, reportID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM reports
		 WHERE factory_id = $1 AND id = $2 AND status IN ('pending', 'failed')`,
		factoryID, reportID)
	if err != nil {
		return fmt.Errorf("deleting report %s: %w", reportID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, factoryID, reportID); err != nil {
			return err
		}
		return ErrNotDeletable
	}
	return nil
}

// MarkRunning transitions pending -> running and stamps started_at.
func (r *ReportRepository) MarkRunning(ctx context.Context, reportID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reports
		 SET status = 'running', started_at = NOW(), error_message = NULL
		 WHERE id = $1`, reportID)
	if err != nil {
		return fmt.Errorf("marking report %s running: %w", reportID, err)
	}
	return nil
}

// MarkComplete transitions running -> complete with the artifact location
// and size.
func (r *ReportRepository) MarkComplete(ctx context.Context, reportID, fileURL string, sizeBytes int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reports
		 SET status = 'complete', file_url = $2, file_size_bytes = $3,
		     completed_at = NOW()
		 WHERE id = $1`, reportID, fileURL, sizeBytes)
	if err != nil {
		return fmt.Errorf("marking report %s complete: %w", reportID, err)
	}
	return nil
}

// MarkFailed transitions running -> failed with a diagnostic.
func (r *ReportRepository) MarkFailed(ctx context.Context, reportID, errorMessage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reports
		 SET status = 'failed', error_message = $2, completed_at = NOW()
		 WHERE id = $1`, reportID, errorMessage)
	if err != nil {
		return fmt.Errorf("marking report %s failed: %w", reportID, err)
	}
	return nil
}
