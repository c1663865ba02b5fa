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

// Package models holds the shared domain types. Every row type carries its
// factory scope explicitly; cross-factory access is a bug, not a feature.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Severity classifies rules and the alerts they produce. Alert severity is
// copied from the rule at firing time so later rule edits do not mutate
// history.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RuleScope selects which devices a rule applies to.
type RuleScope string

const (
	// ScopeDevice rules apply to the devices linked through rule_devices.
	ScopeDevice RuleScope = "device"
	// ScopeGlobal rules apply to every device in the factory.
	ScopeGlobal RuleScope = "global"
)

// ScheduleType gates when a rule is eligible to fire.
type ScheduleType string

const (
	ScheduleAlways     ScheduleType = "always"
	ScheduleTimeWindow ScheduleType = "time_window"
	ScheduleDateRange  ScheduleType = "date_range"
)

// DataType is the discovered type of a measurement channel.
type DataType string

const (
	DataTypeFloat  DataType = "float"
	DataTypeInt    DataType = "int"
	DataTypeString DataType = "string"
)

// JobType selects the analytics model to run.
type JobType string

const (
	JobTypeAnomaly           JobType = "anomaly"
	JobTypeFailurePrediction JobType = "failure_prediction"
	JobTypeEnergyForecast    JobType = "energy_forecast"
	JobTypeAICopilot         JobType = "ai_copilot"
)

// JobStatus is the lifecycle state shared by analytics jobs and reports.
// Transitions are pending -> running -> (complete|failed); nothing else.
type JobStatus string

const (
	StatusPending  JobStatus = "pending"
	StatusRunning  JobStatus = "running"
	StatusComplete JobStatus = "complete"
	StatusFailed   JobStatus = "failed"
)

// Deletable reports whether a job in this state may be cancelled by a user.
func (s JobStatus) Deletable() bool {
	return s == StatusPending || s == StatusFailed
}

// ReportFormat selects the report renderer.
type ReportFormat string

const (
	FormatPDF   ReportFormat = "pdf"
	FormatExcel ReportFormat = "excel"
	FormatJSON  ReportFormat = "json"
)

// Ext returns the artifact file extension for the format.
func (f ReportFormat) Ext() string {
	if f == FormatExcel {
		return "xlsx"
	}
	return string(f)
}

// ContentType returns the artifact MIME type for the format.
func (f ReportFormat) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// UserRole is the coarse permission tier inside a factory.
type UserRole string

const (
	RoleOwner    UserRole = "owner"
	RoleOperator UserRole = "operator"
)

// Factory is the tenant boundary. Slug identifies it on the broker topic;
// Timezone anchors rule schedule windows.
type Factory struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	Timezone  string    `db:"timezone" json:"timezone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Device is a telemetry source, unique per (factory_id, device_key).
type Device struct {
	ID           int64      `db:"id" json:"id"`
	FactoryID    int64      `db:"factory_id" json:"factory_id"`
	DeviceKey    string     `db:"device_key" json:"device_key"`
	Name         *string    `db:"name" json:"name,omitempty"`
	Manufacturer *string    `db:"manufacturer" json:"manufacturer,omitempty"`
	Model        *string    `db:"model" json:"model,omitempty"`
	Region       *string    `db:"region" json:"region,omitempty"`
	APIKey       *string    `db:"api_key" json:"-"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastSeen     *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// DeviceParameter is a measurement channel discovered from ingress. A row
// exists iff at least one ingested message carried the key for the device.
type DeviceParameter struct {
	ID            int64     `db:"id" json:"id"`
	FactoryID     int64     `db:"factory_id" json:"factory_id"`
	DeviceID      int64     `db:"device_id" json:"device_id"`
	ParameterKey  string    `db:"parameter_key" json:"parameter_key"`
	DisplayName   *string   `db:"display_name" json:"display_name,omitempty"`
	Unit          *string   `db:"unit" json:"unit,omitempty"`
	DataType      DataType  `db:"data_type" json:"data_type"`
	IsKPISelected bool      `db:"is_kpi_selected" json:"is_kpi_selected"`
	DiscoveredAt  time.Time `db:"discovered_at" json:"discovered_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// JSONMap is a free-form JSON column (telemetry snapshots, schedule configs,
// permission bags, notification channel sets).
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
	return json.Unmarshal(raw, m)
}

// Int64List is a JSON-encoded list of ids (device sets on jobs and reports).
type Int64List []int64

// Value implements driver.Valuer.
func (l Int64List) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]int64{})
	}
	return json.Marshal([]int64(l))
}

// Scan implements sql.Scanner.
func (l *Int64List) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Int64List", src)
	}
	return json.Unmarshal(raw, (*[]int64)(l))
}

// Rule is a user-defined alerting rule. Conditions holds the serialized
// condition tree; pkg/rules owns its structure and evaluation.
type Rule struct {
	ID                   int64           `db:"id" json:"id"`
	FactoryID            int64           `db:"factory_id" json:"factory_id"`
	Name                 string          `db:"name" json:"name"`
	Description          *string         `db:"description" json:"description,omitempty"`
	Scope                RuleScope       `db:"scope" json:"scope"`
	Conditions           json.RawMessage `db:"conditions" json:"conditions"`
	CooldownMinutes      int             `db:"cooldown_minutes" json:"cooldown_minutes"`
	IsActive             bool            `db:"is_active" json:"is_active"`
	ScheduleType         ScheduleType    `db:"schedule_type" json:"schedule_type"`
	ScheduleConfig       JSONMap         `db:"schedule_config" json:"schedule_config,omitempty"`
	Severity             Severity        `db:"severity" json:"severity"`
	NotificationChannels JSONMap         `db:"notification_channels" json:"notification_channels,omitempty"`
	CreatedBy            *int64          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// Cooldown returns the suppression window as a duration.
func (r *Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// Alert is a historical rule firing.
type Alert struct {
	ID                int64      `db:"id" json:"id"`
	FactoryID         int64      `db:"factory_id" json:"factory_id"`
	RuleID            int64      `db:"rule_id" json:"rule_id"`
	DeviceID          int64      `db:"device_id" json:"device_id"`
	TriggeredAt       time.Time  `db:"triggered_at" json:"triggered_at"`
	ResolvedAt        *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	Severity          Severity   `db:"severity" json:"severity"`
	Message           string     `db:"message" json:"message"`
	TelemetrySnapshot JSONMap    `db:"telemetry_snapshot" json:"telemetry_snapshot,omitempty"`
	NotificationSent  bool       `db:"notification_sent" json:"notification_sent"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// RuleCooldown records the last firing per (rule, device). A row exists only
// for rules that have fired at least once for that device.
type RuleCooldown struct {
	RuleID        int64     `db:"rule_id" json:"rule_id"`
	DeviceID      int64     `db:"device_id" json:"device_id"`
	LastTriggered time.Time `db:"last_triggered" json:"last_triggered"`
}

// User belongs to one factory and receives alert notifications.
type User struct {
	ID             int64      `db:"id" json:"id"`
	FactoryID      int64      `db:"factory_id" json:"factory_id"`
	Email          string     `db:"email" json:"email"`
	WhatsAppNumber *string    `db:"whatsapp_number" json:"whatsapp_number,omitempty"`
	HashedPassword string     `db:"hashed_password" json:"-"`
	Role           UserRole   `db:"role" json:"role"`
	Permissions    JSONMap    `db:"permissions" json:"permissions,omitempty"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	LastLogin      *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// AnalyticsJob is a durable asynchronous model run.
type AnalyticsJob struct {
	ID             string     `db:"id" json:"job_id"`
	FactoryID      int64      `db:"factory_id" json:"factory_id"`
	CreatedBy      int64      `db:"created_by" json:"created_by"`
	JobType        JobType    `db:"job_type" json:"job_type"`
	DeviceIDs      Int64List  `db:"device_ids" json:"device_ids"`
	DateRangeStart time.Time  `db:"date_range_start" json:"date_range_start"`
	DateRangeEnd   time.Time  `db:"date_range_end" json:"date_range_end"`
	Status         JobStatus  `db:"status" json:"status"`
	ResultURL      *string    `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage   *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Report is a durable report-generation request and its artifact.
type Report struct {
	ID               string       `db:"id" json:"report_id"`
	FactoryID        int64        `db:"factory_id" json:"factory_id"`
	CreatedBy        int64        `db:"created_by" json:"created_by"`
	Title            *string      `db:"title" json:"title,omitempty"`
	DeviceIDs        Int64List    `db:"device_ids" json:"device_ids"`
	DateRangeStart   time.Time    `db:"date_range_start" json:"date_range_start"`
	DateRangeEnd     time.Time    `db:"date_range_end" json:"date_range_end"`
	Format           ReportFormat `db:"format" json:"format"`
	IncludeAnalytics bool         `db:"include_analytics" json:"include_analytics"`
	AnalyticsJobID   *string      `db:"analytics_job_id" json:"analytics_job_id,omitempty"`
	Status           JobStatus    `db:"status" json:"status"`
	FileURL          *string      `db:"file_url" json:"file_url,omitempty"`
	FileSizeBytes    *int64       `db:"file_size_bytes" json:"file_size_bytes,omitempty"`
	ErrorMessage     *string      `db:"error_message" json:"error_message,omitempty"`
	ExpiresAt        *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	StartedAt        *time.Time   `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}
