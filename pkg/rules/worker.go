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
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/queue"
)

// FactorySource resolves the tenant a sample belongs to.
type FactorySource interface {
	GetByID(ctx context.Context, id int64) (*models.Factory, error)
}

// Worker consumes evaluate_rules tasks.
type Worker struct {
	factories FactorySource
	evaluator *Evaluator
	logger    *zap.Logger
}

// NewWorker wires the rule engine worker.
func NewWorker(factories FactorySource, evaluator *Evaluator, logger *zap.Logger) *Worker {
	return &Worker{factories: factories, evaluator: evaluator, logger: logger}
}

// HandleTask evaluates one telemetry sample against its factory's rules.
// Lookup failures surface to the queue retry; per-rule failures are already
// contained by the evaluator.
func (w *Worker) HandleTask(ctx context.Context, task *asynq.Task) error {
	var payload queue.EvaluateRulesPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error("rule.bad_task_payload", zap.Error(err))
		return nil
	}

	factory, err := w.factories.GetByID(ctx, payload.FactoryID)
	if err != nil {
		return fmt.Errorf("loading factory %d: %w", payload.FactoryID, err)
	}

	fired, err := w.evaluator.EvaluateDevice(ctx, factory,
		payload.DeviceID, payload.Metrics, payload.Timestamp)
	if err != nil {
		return fmt.Errorf("evaluating device %d: %w", payload.DeviceID, err)
	}
	if fired > 0 {
		w.logger.Info("rule.evaluation_fired",
			zap.Int64("device_id", payload.DeviceID),
			zap.Int("alerts", fired))
	}
	return nil
}
