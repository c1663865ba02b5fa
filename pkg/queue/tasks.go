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

// Package queue defines the asynchronous task types and their routing. The
// queue carries identifiers and small snapshots only; durable state lives in
// Postgres.
package queue

import (
	"time"

	"github.com/factoryops/factoryops/pkg/models"
)

// Task type names, one handler each.
const (
	TaskEvaluateRules     = "evaluate_rules"
	TaskRunAnalyticsJob   = "run_analytics_job"
	TaskGenerateReport    = "generate_report"
	TaskSendNotifications = "send_notifications"
)

// Queue names. Rule evaluation is latency-sensitive and outweighs the batch
// queues.
const (
	QueueRuleEngine    = "rule_engine"
	QueueAnalytics     = "analytics"
	QueueReporting     = "reporting"
	QueueNotifications = "notifications"
)

// Priorities gives every worker process the same weighting.
var Priorities = map[string]int{
	QueueRuleEngine:    6,
	QueueNotifications: 3,
	QueueAnalytics:     2,
	QueueReporting:     1,
}

// EvaluateRulesPayload carries one telemetry sample to the rule engine.
type EvaluateRulesPayload struct {
	FactoryID int64              `json:"factory_id"`
	DeviceID  int64              `json:"device_id"`
	Metrics   map[string]float64 `json:"metrics"`
	Timestamp time.Time          `json:"timestamp"`
}

// RunAnalyticsJobPayload references a durable analytics_jobs row.
type RunAnalyticsJobPayload struct {
	JobID string `json:"job_id"`
}

// GenerateReportPayload references a durable reports row.
type GenerateReportPayload struct {
	ReportID string `json:"report_id"`
}

// SendNotificationsPayload fans one alert out to the factory's users.
type SendNotificationsPayload struct {
	AlertID  int64          `json:"alert_id"`
	Channels models.JSONMap `json:"channels"`
}
