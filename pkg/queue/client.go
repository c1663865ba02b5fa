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
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/factoryops/factoryops/pkg/models"
)

// Client enqueues tasks onto their home queues with per-type retry budgets.
type Client struct {
	client *asynq.Client
}

// NewClient connects an enqueue-only client to the queue broker.
func NewClient(redisURL string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing queue redis url: %w", err)
	}
	return &Client{client: asynq.NewClient(opt)}, nil
}

// Close releases the broker connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueRuleEvaluation hands one telemetry sample to the rule engine.
func (c *Client) EnqueueRuleEvaluation(ctx context.Context, p EvaluateRulesPayload) error {
	return c.enqueue(ctx, TaskEvaluateRules, p, QueueRuleEngine, 3, 0)
}

// EnqueueAnalyticsJob schedules one model run. Failed runs are retried once
// after a minute.
func (c *Client) EnqueueAnalyticsJob(ctx context.Context, jobID string) error {
	return c.enqueue(ctx, TaskRunAnalyticsJob,
		RunAnalyticsJobPayload{JobID: jobID}, QueueAnalytics, 1, 30*time.Minute)
}

// EnqueueReport schedules one report generation. Failed runs are retried
// once after a minute.
func (c *Client) EnqueueReport(ctx context.Context, reportID string) error {
	return c.enqueue(ctx, TaskGenerateReport,
		GenerateReportPayload{ReportID: reportID}, QueueReporting, 1, 30*time.Minute)
}

// EnqueueNotification fans one alert out to its channels.
func (c *Client) EnqueueNotification(ctx context.Context, alertID int64, channels models.JSONMap) error {
	return c.enqueue(ctx, TaskSendNotifications,
		SendNotificationsPayload{AlertID: alertID, Channels: channels},
		QueueNotifications, 3, 0)
}

func (c *Client) enqueue(
	ctx context.Context,
	taskType string,
	payload any,
	queueName string,
	maxRetry int,
	timeout time.Duration,
) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", taskType, err)
	}
	opts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.MaxRetry(maxRetry),
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	if _, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, raw), opts...); err != nil {
		return fmt.Errorf("enqueueing %s: %w", taskType, err)
	}
	return nil
}
