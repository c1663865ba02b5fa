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

package rules

import (
	"context"
	"time"

	"go.uber.org/zap"

	obs "github.com/factoryops/factoryops/pkg/metrics"
	"github.com/factoryops/factoryops/pkg/models"
)

// RuleStore supplies the rules applicable to a device: active rules of the
// factory that are global-scoped or linked to the device.
type RuleStore interface {
	ActiveRulesForDevice(ctx context.Context, factoryID, deviceID int64) ([]models.Rule, error)
}

// AlertStore persists alerts and the per-(rule,device) cooldown rows.
type AlertStore interface {
	GetCooldown(ctx context.Context, ruleID, deviceID int64) (*models.RuleCooldown, error)
	CreateAlert(ctx context.Context, alert *models.Alert) (int64, error)
	UpsertCooldown(ctx context.Context, ruleID, deviceID int64, lastTriggered time.Time) error
}

// Notifier enqueues the notification job for a fired alert.
type Notifier interface {
	EnqueueNotification(ctx context.Context, alertID int64, channels models.JSONMap) error
}

// Evaluator runs the per-rule procedure for one telemetry sample. Rules fire
// independently: a failure in one rule is logged and never aborts the others.
type Evaluator struct {
	rules    RuleStore
	alerts   AlertStore
	notifier Notifier
	logger   *zap.Logger
}

// NewEvaluator creates an evaluator. notifier may be nil when alert fan-out
// is disabled (tests).
func NewEvaluator(rules RuleStore, alerts AlertStore, notifier Notifier, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		rules:    rules,
		alerts:   alerts,
		notifier: notifier,
		logger:   logger,
	}
}

// EvaluateDevice evaluates every applicable rule against one sample and
// returns the number of alerts fired. The returned error is reserved for
// failures that should be retried by the queue (rule lookup); per-rule
// failures are contained.
func (e *Evaluator) EvaluateDevice(
	ctx context.Context,
	factory *models.Factory,
	deviceID int64,
	metrics map[string]float64,
	ts time.Time,
) (int, error) {
	applicable, err := e.rules.ActiveRulesForDevice(ctx, factory.ID, deviceID)
	if err != nil {
		return 0, err
	}

	loc, err := time.LoadLocation(factory.Timezone)
	if err != nil {
		e.logger.Warn("rule.bad_factory_timezone",
			zap.Int64("factory_id", factory.ID),
			zap.String("timezone", factory.Timezone))
		loc = time.UTC
	}

	fired := 0
	for i := range applicable {
		rule := &applicable[i]
		if e.evaluateRule(ctx, rule, factory.ID, deviceID, metrics, ts, loc) {
			fired++
		}
	}
	return fired, nil
}

// evaluateRule runs one rule through the schedule gate, cooldown gate and
// condition tree, emitting an alert when all three pass.
func (e *Evaluator) evaluateRule(
	ctx context.Context,
	rule *models.Rule,
	factoryID, deviceID int64,
	metrics map[string]float64,
	ts time.Time,
	loc *time.Location,
) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule.evaluation_panicked",
				zap.Int64("rule_id", rule.ID),
				zap.Int64("device_id", deviceID),
				zap.Any("panic", r))
			fired = false
		}
	}()

	// 1. Schedule gate, fail-open on malformed config.
	admit, schedErr := Scheduled(rule, ts, loc)
	if schedErr != nil {
		e.logger.Warn("rule.schedule_config_invalid",
			zap.Int64("rule_id", rule.ID),
			zap.Error(schedErr))
	}
	if !admit {
		return false
	}

	// 2. Cooldown gate.
	cooldown, err := e.alerts.GetCooldown(ctx, rule.ID, deviceID)
	if err != nil {
		e.logger.Error("rule.cooldown_lookup_failed",
			zap.Int64("rule_id", rule.ID),
			zap.Int64("device_id", deviceID),
			zap.Error(err))
		return false
	}
	if cooldown != nil && ts.Sub(cooldown.LastTriggered) < rule.Cooldown() {
		return false
	}

	// 3. Condition evaluation. Malformed trees evaluate to false.
	root, err := ParseNode(rule.Conditions)
	if err != nil {
		e.logger.Warn("rule.conditions_invalid",
			zap.Int64("rule_id", rule.ID),
			zap.Error(err))
		return false
	}
	if !root.Eval(metrics) {
		return false
	}

	// 4. Emit: severity is copied from the rule so later edits do not
	// rewrite alert history.
	snapshot := make(models.JSONMap, len(metrics))
	for k, v := range metrics {
		snapshot[k] = v
	}
	alert := &models.Alert{
		FactoryID:         factoryID,
		RuleID:            rule.ID,
		DeviceID:          deviceID,
		TriggeredAt:       ts,
		Severity:          rule.Severity,
		Message:           RenderMessage(rule.Name, root, metrics),
		TelemetrySnapshot: snapshot,
	}
	alertID, err := e.alerts.CreateAlert(ctx, alert)
	if err != nil {
		e.logger.Error("rule.alert_insert_failed",
			zap.Int64("rule_id", rule.ID),
			zap.Int64("device_id", deviceID),
			zap.Error(err))
		return false
	}

	if err := e.alerts.UpsertCooldown(ctx, rule.ID, deviceID, ts); err != nil {
		// The alert exists; a missed cooldown update means at worst one
		// extra alert inside the window, which at-least-once semantics allow.
		e.logger.Error("rule.cooldown_upsert_failed",
			zap.Int64("rule_id", rule.ID),
			zap.Int64("device_id", deviceID),
			zap.Error(err))
	}

	if e.notifier != nil {
		if err := e.notifier.EnqueueNotification(ctx, alertID, rule.NotificationChannels); err != nil {
			e.logger.Error("rule.notification_enqueue_failed",
				zap.Int64("alert_id", alertID),
				zap.Error(err))
		}
	}

	obs.AlertsFired.WithLabelValues(string(rule.Severity)).Inc()
	e.logger.Info("rule.alert_fired",
		zap.Int64("factory_id", factoryID),
		zap.Int64("rule_id", rule.ID),
		zap.Int64("device_id", deviceID),
		zap.Int64("alert_id", alertID),
		zap.String("severity", string(rule.Severity)))
	return true
}
