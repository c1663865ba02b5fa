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

package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	obs "github.com/factoryops/factoryops/pkg/metrics"
	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/queue"
	"github.com/factoryops/factoryops/pkg/storage/postgres"
)

// Resolver is the read-through cache in front of the metadata store.
type Resolver interface {
	FactoryBySlug(ctx context.Context, slug string) (*models.Factory, error)
	DeviceByKey(ctx context.Context, factoryID int64, deviceKey string) (*models.Device, error)
}

// ParameterDiscoverer registers newly seen measurement channels.
type ParameterDiscoverer interface {
	Discover(ctx context.Context, factoryID, deviceID int64, types map[string]models.DataType) error
}

// MetricWriter persists samples to the time-series store.
type MetricWriter interface {
	WriteMetrics(ctx context.Context, factoryID, deviceID int64, metrics map[string]float64, ts time.Time) error
}

// DeviceToucher advances device liveness.
type DeviceToucher interface {
	TouchLastSeen(ctx context.Context, deviceID int64, ts time.Time) error
}

// Enqueuer hands the sample to the rule engine.
type Enqueuer interface {
	EnqueueRuleEvaluation(ctx context.Context, p queue.EvaluateRulesPayload) error
}

// Pipeline processes one broker message end to end. Every failure drops the
// message with a structured log line; nothing here panics or retries, so a
// poison message can never block the subscription.
type Pipeline struct {
	resolver   Resolver
	parameters ParameterDiscoverer
	metrics    MetricWriter
	devices    DeviceToucher
	enqueuer   Enqueuer
	logger     *zap.Logger
	now        func() time.Time
}

// NewPipeline wires the per-message stages.
func NewPipeline(
	resolver Resolver,
	parameters ParameterDiscoverer,
	metrics MetricWriter,
	devices DeviceToucher,
	enqueuer Enqueuer,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		resolver:   resolver,
		parameters: parameters,
		metrics:    metrics,
		devices:    devices,
		enqueuer:   enqueuer,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle runs one message through the pipeline. It never returns an error:
// the broker contract is fire-and-forget.
func (p *Pipeline) Handle(ctx context.Context, topic string, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("telemetry.handler_panicked",
				zap.String("topic", topic),
				zap.Any("panic", r))
		}
	}()

	slug, deviceKey, err := ParseTopic(topic)
	if err != nil {
		p.logger.Warn("telemetry.invalid_topic",
			zap.String("topic", topic),
			zap.Error(err))
		obs.MessagesDropped.WithLabelValues("invalid_topic").Inc()
		return
	}

	payload, err := ParsePayload(body, p.now().UTC())
	if err != nil {
		p.logger.Warn("telemetry.invalid_payload",
			zap.String("topic", topic),
			zap.Error(err))
		obs.MessagesDropped.WithLabelValues("invalid_payload").Inc()
		return
	}

	factory, err := p.resolver.FactoryBySlug(ctx, slug)
	if errors.Is(err, postgres.ErrNotFound) {
		p.logger.Warn("telemetry.unknown_factory", zap.String("slug", slug))
		obs.MessagesDropped.WithLabelValues("unknown_factory").Inc()
		return
	}
	if err != nil {
		p.logger.Error("telemetry.factory_resolve_failed",
			zap.String("slug", slug),
			zap.Error(err))
		obs.MessagesDropped.WithLabelValues("factory_resolve_failed").Inc()
		return
	}

	device, err := p.resolver.DeviceByKey(ctx, factory.ID, deviceKey)
	if err != nil {
		p.logger.Error("telemetry.device_resolve_failed",
			zap.String("slug", slug),
			zap.String("device_key", deviceKey),
			zap.Error(err))
		obs.MessagesDropped.WithLabelValues("device_resolve_failed").Inc()
		return
	}

	if err := p.parameters.Discover(ctx, factory.ID, device.ID, payload.Types); err != nil {
		p.logger.Error("telemetry.parameter_discovery_failed",
			zap.Int64("device_id", device.ID),
			zap.Error(err))
		obs.MessagesDropped.WithLabelValues("parameter_discovery_failed").Inc()
		return
	}

	if err := p.metrics.WriteMetrics(ctx, factory.ID, device.ID, payload.Metrics, payload.Timestamp); err != nil {
		p.logger.Error("telemetry.write_failed",
			zap.Int64("device_id", device.ID),
			zap.Int("metric_count", len(payload.Metrics)),
			zap.Error(err))
		obs.MessagesDropped.WithLabelValues("write_failed").Inc()
		return
	}

	// The sample is persisted; liveness and rule fan-out are best-effort.
	if err := p.devices.TouchLastSeen(ctx, device.ID, payload.Timestamp); err != nil {
		p.logger.Warn("telemetry.last_seen_failed",
			zap.Int64("device_id", device.ID),
			zap.Error(err))
	}

	if err := p.enqueuer.EnqueueRuleEvaluation(ctx, queue.EvaluateRulesPayload{
		FactoryID: factory.ID,
		DeviceID:  device.ID,
		Metrics:   payload.Metrics,
		Timestamp: payload.Timestamp,
	}); err != nil {
		p.logger.Warn("telemetry.rule_enqueue_failed",
			zap.Int64("device_id", device.ID),
			zap.Error(err))
	}

	obs.MessagesProcessed.Inc()
	p.logger.Debug("telemetry.ingested",
		zap.Int64("factory_id", factory.ID),
		zap.Int64("device_id", device.ID),
		zap.Int("metric_count", len(payload.Metrics)))
}
