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

package rules_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/queue"
	"github.com/factoryops/factoryops/pkg/rules"
)

type fakeFactorySource struct {
	factory *models.Factory
	err     error
}

func (f *fakeFactorySource) GetByID(_ context.Context, _ int64) (*models.Factory, error) {
	return f.factory, f.err
}

func evaluateTask(payload queue.EvaluateRulesPayload) *asynq.Task {
	raw, err := json.Marshal(payload)
	Expect(err).NotTo(HaveOccurred())
	return asynq.NewTask(queue.TaskEvaluateRules, raw)
}

var _ = Describe("Rule engine worker", func() {
	var (
		factories  *fakeFactorySource
		ruleStore  *fakeRuleStore
		alertStore *fakeAlertStore
		worker     *rules.Worker
		now        time.Time
	)

	BeforeEach(func() {
		factories = &fakeFactorySource{
			factory: &models.Factory{ID: 1, Slug: "acme", Timezone: "UTC"},
		}
		ruleStore = &fakeRuleStore{rules: []models.Rule{{
			ID:              1,
			FactoryID:       1,
			Name:            "High Temperature",
			Scope:           models.ScopeGlobal,
			Conditions:      json.RawMessage(`{"parameter": "temperature", "operator": "gt", "value": 80}`),
			CooldownMinutes: 15,
			IsActive:        true,
			ScheduleType:    models.ScheduleAlways,
			Severity:        models.SeverityHigh,
		}}}
		alertStore = newFakeAlertStore()
		evaluator := rules.NewEvaluator(ruleStore, alertStore, &fakeNotifier{}, zap.NewNop())
		worker = rules.NewWorker(factories, evaluator, zap.NewNop())
		now = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	})

	It("evaluates the sample against the factory's rules", func() {
		task := evaluateTask(queue.EvaluateRulesPayload{
			FactoryID: 1, DeviceID: 7,
			Metrics:   map[string]float64{"temperature": 85.5},
			Timestamp: now,
		})

		Expect(worker.HandleTask(context.Background(), task)).To(Succeed())
		Expect(alertStore.alerts).To(HaveLen(1))
	})

	It("surfaces factory lookup failures for queue retry", func() {
		factories.err = errors.New("connection refused")
		task := evaluateTask(queue.EvaluateRulesPayload{FactoryID: 1, DeviceID: 7})

		Expect(worker.HandleTask(context.Background(), task)).To(HaveOccurred())
	})

	It("drops an undecodable task without retrying", func() {
		task := asynq.NewTask(queue.TaskEvaluateRules, []byte("{"))

		Expect(worker.HandleTask(context.Background(), task)).To(Succeed())
	})
})
