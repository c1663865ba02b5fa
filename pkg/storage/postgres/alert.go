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

	"github.com/jmoiron/sqlx"

	"github.com/factoryops/factoryops/pkg/models"
)

// AlertRepository persists rule firings and the per-(rule, device) cooldown
// rows that throttle them.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates an alert repository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// CreateAlert inserts a firing and returns its id.
func (r *AlertRepository) CreateAlert(ctx context.Context, alert *models.Alert) (int64, error) {
	err := r.db.GetContext(ctx, &alert.ID,
		`INSERT INTO alerts
		     (factory_id, rule_id, device_id, triggered_at, severity, message,
		      telemetry_snapshot, notification_sent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		 RETURNING id`,
		alert.FactoryID, alert.RuleID, alert.DeviceID, alert.TriggeredAt,
		alert.Severity, alert.Message, alert.TelemetrySnapshot)
	if err != nil {
		return 0, fmt.Errorf("inserting alert for rule %d: %w", alert.RuleID, err)
	}
	return alert.ID, nil
}

// GetByID fetches one alert.
func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*models.Alert, error) {
	var alert models.Alert
	err := r.db.GetContext(ctx, &alert,
		`SELECT id, factory_id, rule_id, device_id, triggered_at, resolved_at,
		        severity, message, telemetry_snapshot, notification_sent,
		        created_at
		 FROM alerts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("alert %d: %w", id, err)
	}
	return &alert, nil
}

// ListInRange returns the alerts of the given devices inside [start, end],
// newest first, capped at limit.
func (r *AlertRepository) ListInRange(
	ctx context.Context,
	factoryID int64,
	deviceIDs []int64,
	start, end time.Time,
	limit int,
) ([]models.Alert, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, factory_id, rule_id, device_id, triggered_at, resolved_at,
		        severity, message, telemetry_snapshot, notification_sent,
		        created_at
		 FROM alerts
		 WHERE factory_id = ? AND device_id IN (?)
		   AND triggered_at BETWEEN ? AND ?
		 ORDER BY triggered_at DESC
		 LIMIT ?`,
		factoryID, deviceIDs, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("building alert range query: %w", err)
	}
	var alerts []models.Alert
	if err := r.db.SelectContext(ctx, &alerts, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	return alerts, nil
}

// SeverityCount is one bucket of the open-alert histogram.
type SeverityCount struct {
	Severity models.Severity `db:"severity"`
	Count    int64           `db:"count"`
}

// CountOpenBySeverity buckets a factory's unresolved alerts by severity.
func (r *AlertRepository) CountOpenBySeverity(ctx context.Context, factoryID int64) ([]SeverityCount, error) {
	var counts []SeverityCount
	err := r.db.SelectContext(ctx, &counts,
		`SELECT severity, COUNT(*) AS count
		 FROM alerts
		 WHERE factory_id = $1 AND resolved_at IS NULL
		 GROUP BY severity`, factoryID)
	if err != nil {
		return nil, fmt.Errorf("counting open alerts: %w", err)
	}
	return counts, nil
}

// CountBySeverityInRange buckets the period's alerts by severity. The
// histogram covers every alert of the period, independent of any cap on the
// rendered alert log.
func (r *AlertRepository) CountBySeverityInRange(
	ctx context.Context,
	factoryID int64,
	deviceIDs []int64,
	start, end time.Time,
) (map[models.Severity]int, error) {
	if len(deviceIDs) == 0 {
		return map[models.Severity]int{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT severity, COUNT(*) AS count
		 FROM alerts
		 WHERE factory_id = ? AND device_id IN (?)
		   AND triggered_at BETWEEN ? AND ?
		 GROUP BY severity`,
		factoryID, deviceIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("building severity count query: %w", err)
	}
	var counts []SeverityCount
	if err := r.db.SelectContext(ctx, &counts, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("counting alerts by severity: %w", err)
	}
	out := make(map[models.Severity]int, len(counts))
	for _, c := range counts {
		out[c.Severity] = int(c.Count)
	}
	return out, nil
}

// MarkNotificationSent flags an alert after at least one channel delivered.
func (r *AlertRepository) MarkNotificationSent(ctx context.Context, alertID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET notification_sent = TRUE WHERE id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("marking alert %d sent: %w", alertID, err)
	}
	return nil
}

// GetCooldown returns the cooldown row for (rule, device), or nil when the
// rule has never fired for that device.
func (r *AlertRepository) GetCooldown(ctx context.Context, ruleID, deviceID int64) (*models.RuleCooldown, error) {
	var cooldown models.RuleCooldown
	err := r.db.GetContext(ctx, &cooldown,
		`SELECT rule_id, device_id, last_triggered
		 FROM rule_cooldowns WHERE rule_id = $1 AND device_id = $2`,
		ruleID, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cooldown (%d,%d): %w", ruleID, deviceID, err)
	}
	return &cooldown, nil
}

// UpsertCooldown records a firing time for (rule, device).
func (r *AlertRepository) UpsertCooldown(ctx context.Context, ruleID, deviceID int64, lastTriggered time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rule_cooldowns (rule_id, device_id, last_triggered)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (rule_id, device_id)
		 DO UPDATE SET last_triggered = EXCLUDED.last_triggered`,
		ruleID, deviceID, lastTriggered)
	if err != nil {
		return fmt.Errorf("upserting cooldown (%d,%d): %w", ruleID, deviceID, err)
	}
	return nil
}
