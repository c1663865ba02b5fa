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

package queue

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NewServer builds the worker-side queue server. Rule evaluations back off
// exponentially in seconds; analytics and report retries wait a fixed minute
// so transient store outages have time to clear.
func NewServer(redisURL string, concurrency int, logger *zap.Logger) (*asynq.Server, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing queue redis url: %w", err)
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      Priorities,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			switch task.Type() {
			case TaskRunAnalyticsJob, TaskGenerateReport:
				return time.Minute
			default:
				return time.Duration(math.Pow(2, float64(n))) * time.Second
			}
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("queue.task_failed",
				zap.String("task", task.Type()),
				zap.Error(err))
		}),
	})
	return srv, nil
}
