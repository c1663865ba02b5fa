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

package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/metrics"
	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/queue"
)

// AlertSource joins the alert with its rule and device for presentation.
type AlertSource interface {
	GetByID(ctx context.Context, id int64) (*models.Alert, error)
	MarkNotificationSent(ctx context.Context, alertID int64) error
}

// RuleSource names the rule that fired.
type RuleSource interface {
	GetByID(ctx context.Context, id int64) (*models.Rule, error)
}

// DeviceSource names the device that triggered.
type DeviceSource interface {
	GetByID(ctx context.Context, id int64) (*models.Device, error)
}

// UserSource lists the notification audience.
type UserSource interface {
	ActiveByFactory(ctx context.Context, factoryID int64) ([]models.User, error)
}

// Worker consumes send_notifications tasks and fans each alert out to every
// active user over the enabled channels.
type Worker struct {
	alerts   AlertSource
	rules    RuleSource
	devices  DeviceSource
	users    UserSource
	email    Transport
	whatsapp Transport
	logger   *zap.Logger
}

// NewWorker wires the notification worker. Either transport may be nil when
// the deployment has no such provider.
func NewWorker(
	alerts AlertSource,
	rules RuleSource,
	devices DeviceSource,
	users UserSource,
	email Transport,
	whatsapp Transport,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		alerts:   alerts,
		rules:    rules,
		devices:  devices,
		users:    users,
		email:    email,
		whatsapp: whatsapp,
		logger:   logger,
	}
}

// HandleTask delivers one alert. Lookup failures surface to the queue retry;
// per-user-per-channel delivery failures are logged and swallowed.
func (w *Worker) HandleTask(ctx context.Context, task *asynq.Task) error {
	var payload queue.SendNotificationsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error("notification.bad_task_payload", zap.Error(err))
		return nil
	}

	alert, err := w.alerts.GetByID(ctx, payload.AlertID)
	if err != nil {
		return fmt.Errorf("loading alert %d: %w", payload.AlertID, err)
	}
	rule, err := w.rules.GetByID(ctx, alert.RuleID)
	if err != nil {
		return fmt.Errorf("loading rule %d: %w", alert.RuleID, err)
	}
	device, err := w.devices.GetByID(ctx, alert.DeviceID)
	if err != nil {
		return fmt.Errorf("loading device %d: %w", alert.DeviceID, err)
	}
	users, err := w.users.ActiveByFactory(ctx, alert.FactoryID)
	if err != nil {
		return fmt.Errorf("loading factory %d users: %w", alert.FactoryID, err)
	}

	msg := renderMessage(alert, rule, device)
	emailOn := channelEnabled(payload.Channels, ChannelEmail)
	whatsappOn := channelEnabled(payload.Channels, ChannelWhatsApp)

	delivered := 0
	for _, user := range users {
		if emailOn && w.email != nil && user.Email != "" {
			delivered += w.deliver(ctx, w.email, user.Email, msg, alert.ID)
		}
		if whatsappOn && w.whatsapp != nil && user.WhatsAppNumber != nil && *user.WhatsAppNumber != "" {
			delivered += w.deliver(ctx, w.whatsapp, *user.WhatsAppNumber, msg, alert.ID)
		}
	}

	if err := w.alerts.MarkNotificationSent(ctx, alert.ID); err != nil {
		w.logger.Error("notification.mark_sent_failed",
			zap.Int64("alert_id", alert.ID), zap.Error(err))
	}
	w.logger.Info("notification.fanout_complete",
		zap.Int64("alert_id", alert.ID),
		zap.Int("recipients", len(users)),
		zap.Int("delivered", delivered))
	return nil
}

func (w *Worker) deliver(ctx context.Context, t Transport, recipient string, msg Message, alertID int64) int {
	if err := t.Send(ctx, recipient, msg); err != nil {
		metrics.NotificationsDelivered.WithLabelValues(t.Name(), "failed").Inc()
		w.logger.Warn("notification.delivery_failed",
			zap.Int64("alert_id", alertID),
			zap.String("channel", t.Name()),
			zap.String("recipient", recipient),
			zap.Error(err))
		return 0
	}
	metrics.NotificationsDelivered.WithLabelValues(t.Name(), "ok").Inc()
	return 1
}

func renderMessage(alert *models.Alert, rule *models.Rule, device *models.Device) Message {
	deviceLabel := device.DeviceKey
	if device.Name != nil && *device.Name != "" {
		deviceLabel = *device.Name
	}
	return Message{
		Subject: fmt.Sprintf("[%s] %s", alert.Severity, rule.Name),
		Body: fmt.Sprintf("Device: %s\nTriggered: %s\n\n%s",
			deviceLabel,
			alert.TriggeredAt.Format("2006-01-02 15:04:05 MST"),
			alert.Message),
	}
}

func channelEnabled(channels models.JSONMap, name string) bool {
	enabled, ok := channels[name].(bool)
	return ok && enabled
}
