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

// Package reporting aggregates a telemetry period into a report document and
// renders it as PDF, Excel or JSON.
package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/analytics"
	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/storage/objectstore"
	"github.com/factoryops/factoryops/pkg/storage/timeseries"
)

// The alerts log is capped; a noisy period should not produce a thousand-page
// report.
const maxAlerts = 100

// DeviceSection is one device with its per-parameter summary statistics.
type DeviceSection struct {
	Device     models.Device              `json:"device"`
	Parameters map[string]analytics.Stats `json:"parameters"`
}

// Data is the aggregated report content, independent of output format.
type Data struct {
	Title          string                  `json:"title"`
	FactoryID      int64                   `json:"factory_id"`
	PeriodStart    time.Time               `json:"period_start"`
	PeriodEnd      time.Time               `json:"period_end"`
	GeneratedAt    time.Time               `json:"generated_at"`
	Devices        []DeviceSection         `json:"devices"`
	Alerts         []models.Alert          `json:"alerts"`
	SeverityCounts map[models.Severity]int `json:"severity_counts"`
	Analytics      map[string]any          `json:"analytics,omitempty"`
}

// DeviceLister fetches the requested devices of one factory.
type DeviceLister interface {
	ListByIDs(ctx context.Context, factoryID int64, ids []int64) ([]models.Device, error)
}

// AlertLister fetches the alerts of the reporting period. The list feeds the
// capped alerts log; the severity counts cover the whole period.
type AlertLister interface {
	ListInRange(ctx context.Context, factoryID int64, deviceIDs []int64, start, end time.Time, limit int) ([]models.Alert, error)
	CountBySeverityInRange(ctx context.Context, factoryID int64, deviceIDs []int64, start, end time.Time) (map[models.Severity]int, error)
}

// WindowReader fetches the telemetry window.
type WindowReader interface {
	QueryWindow(ctx context.Context, factoryID int64, deviceIDs []int64, start, end time.Time) ([]timeseries.Sample, error)
}

// AnalyticsSource resolves an embedded analytics artifact.
type AnalyticsSource interface {
	GetAny(ctx context.Context, jobID string) (*models.AnalyticsJob, error)
}

// ArtifactReader downloads stored artifacts.
type ArtifactReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Aggregator assembles report data from the stores.
type Aggregator struct {
	devices   DeviceLister
	alerts    AlertLister
	telemetry WindowReader
	jobs      AnalyticsSource
	artifacts ArtifactReader
	logger    *zap.Logger
}

// NewAggregator wires the report data sources.
func NewAggregator(
	devices DeviceLister,
	alerts AlertLister,
	telemetry WindowReader,
	jobs AnalyticsSource,
	artifacts ArtifactReader,
	logger *zap.Logger,
) *Aggregator {
	return &Aggregator{
		devices:   devices,
		alerts:    alerts,
		telemetry: telemetry,
		jobs:      jobs,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Build aggregates everything the renderers need for one report request.
func (a *Aggregator) Build(ctx context.Context, report *models.Report) (*Data, error) {
	devices, err := a.devices.ListByIDs(ctx, report.FactoryID, report.DeviceIDs)
	if err != nil {
		return nil, fmt.Errorf("listing report devices: %w", err)
	}

	samples, err := a.telemetry.QueryWindow(ctx, report.FactoryID,
		report.DeviceIDs, report.DateRangeStart, report.DateRangeEnd)
	if err != nil {
		return nil, fmt.Errorf("fetching report telemetry: %w", err)
	}
	frame := analytics.NewFrame(samples)
	stats := frame.StatsByDevice()

	sections := make([]DeviceSection, 0, len(devices))
	for _, d := range devices {
		params := stats[d.ID]
		if params == nil {
			params = map[string]analytics.Stats{}
		}
		sections = append(sections, DeviceSection{Device: d, Parameters: params})
	}

	alerts, err := a.alerts.ListInRange(ctx, report.FactoryID, report.DeviceIDs,
		report.DateRangeStart, report.DateRangeEnd, maxAlerts)
	if err != nil {
		return nil, fmt.Errorf("listing report alerts: %w", err)
	}
	severityCounts, err := a.alerts.CountBySeverityInRange(ctx, report.FactoryID,
		report.DeviceIDs, report.DateRangeStart, report.DateRangeEnd)
	if err != nil {
		return nil, fmt.Errorf("counting report alerts: %w", err)
	}

	title := "Factory Report"
	if report.Title != nil && *report.Title != "" {
		title = *report.Title
	}

	data := &Data{
		Title:          title,
		FactoryID:      report.FactoryID,
		PeriodStart:    report.DateRangeStart,
		PeriodEnd:      report.DateRangeEnd,
		GeneratedAt:    time.Now().UTC(),
		Devices:        sections,
		Alerts:         alerts,
		SeverityCounts: severityCounts,
	}
	data.Analytics = a.embeddedAnalytics(ctx, report)
	return data, nil
}

// embeddedAnalytics fetches the referenced job artifact when requested and
// complete; anything else degrades to a report without the section.
func (a *Aggregator) embeddedAnalytics(ctx context.Context, report *models.Report) map[string]any {
	if !report.IncludeAnalytics || report.AnalyticsJobID == nil {
		return nil
	}
	job, err := a.jobs.GetAny(ctx, *report.AnalyticsJobID)
	if err != nil || job.Status != models.StatusComplete {
		a.logger.Warn("report.analytics_unavailable",
			zap.String("report_id", report.ID),
			zap.String("job_id", *report.AnalyticsJobID))
		return nil
	}
	raw, err := a.artifacts.Get(ctx, objectstore.AnalyticsKey(job.FactoryID, job.ID))
	if err != nil {
		a.logger.Warn("report.analytics_fetch_failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		a.logger.Warn("report.analytics_decode_failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	return result
}
