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

package analytics_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/analytics"
	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/queue"
	"github.com/factoryops/factoryops/pkg/storage/timeseries"
)

type fakeJobStore struct {
	job       *models.AnalyticsJob
	getErr    error
	running   []string
	completed map[string]string
	failed    map[string]string
}

func newFakeJobStore(job *models.AnalyticsJob) *fakeJobStore {
	return &fakeJobStore{
		job:       job,
		completed: map[string]string{},
		failed:    map[string]string{},
	}
}

func (f *fakeJobStore) GetAny(_ context.Context, jobID string) (*models.AnalyticsJob, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.job, nil
}

func (f *fakeJobStore) MarkRunning(_ context.Context, jobID string) error {
	f.running = append(f.running, jobID)
	return nil
}

func (f *fakeJobStore) MarkComplete(_ context.Context, jobID, resultURL string) error {
	f.completed[jobID] = resultURL
	return nil
}

func (f *fakeJobStore) MarkFailed(_ context.Context, jobID, msg string) error {
	f.failed[jobID] = msg
	return nil
}

type fakeWindowReader struct {
	samples []timeseries.Sample
	err     error
}

func (f *fakeWindowReader) QueryWindow(_ context.Context, _ int64, _ []int64, _, _ time.Time) ([]timeseries.Sample, error) {
	return f.samples, f.err
}

type fakeArtifactStore struct {
	uploads map[string][]byte
	putErr  error
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{uploads: map[string][]byte{}}
}

func (f *fakeArtifactStore) Put(_ context.Context, key string, data []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeArtifactStore) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://minio.local/" + key + "?signed", nil
}

func analyticsTask(jobID string) *asynq.Task {
	raw, err := json.Marshal(queue.RunAnalyticsJobPayload{JobID: jobID})
	Expect(err).NotTo(HaveOccurred())
	return asynq.NewTask(queue.TaskRunAnalyticsJob, raw)
}

var _ = Describe("Analytics worker", func() {
	var (
		jobs      *fakeJobStore
		telemetry *fakeWindowReader
		artifacts *fakeArtifactStore
		worker    *analytics.Worker
		ctx       context.Context
	)

	const jobID = "3c0d1a34-9f5e-46a5-a0cd-6f35aafb8c21"

	BeforeEach(func() {
		jobs = newFakeJobStore(&models.AnalyticsJob{
			ID:        jobID,
			FactoryID: 1,
			JobType:   models.JobTypeAnomaly,
			DeviceIDs: models.Int64List{1},
			Status:    models.StatusPending,
		})
		telemetry = &fakeWindowReader{samples: steadySamples(100, "voltage")}
		artifacts = newFakeArtifactStore()
		worker = analytics.NewWorker(jobs, telemetry, artifacts, zap.NewNop())
		ctx = context.Background()
	})

	It("runs a job to complete with an uploaded artifact", func() {
		Expect(worker.HandleTask(ctx, analyticsTask(jobID))).To(Succeed())

		Expect(jobs.running).To(ConsistOf(jobID))
		Expect(jobs.completed).To(HaveKey(jobID))
		Expect(jobs.completed[jobID]).To(ContainSubstring("1/analytics/" + jobID + ".json"))

		body := artifacts.uploads["1/analytics/"+jobID+".json"]
		var result map[string]any
		Expect(json.Unmarshal(body, &result)).To(Succeed())
		Expect(result).To(HaveKey("anomaly_count"))
		Expect(result).To(HaveKey("anomalies"))
	})

	It("fails terminally on insufficient data without retry", func() {
		telemetry.samples = steadySamples(3, "voltage")

		Expect(worker.HandleTask(ctx, analyticsTask(jobID))).To(Succeed())
		Expect(jobs.failed).To(HaveKey(jobID))
		Expect(jobs.completed).To(BeEmpty())
	})

	It("surfaces transient telemetry failures to the queue", func() {
		telemetry.err = errors.New("influx timeout")

		err := worker.HandleTask(ctx, analyticsTask(jobID))
		Expect(err).To(HaveOccurred())
		Expect(jobs.failed[jobID]).To(ContainSubstring("influx timeout"))
	})

	It("surfaces artifact upload failures to the queue", func() {
		artifacts.putErr = errors.New("bucket unavailable")

		err := worker.HandleTask(ctx, analyticsTask(jobID))
		Expect(err).To(HaveOccurred())
		Expect(jobs.failed).To(HaveKey(jobID))
	})

	It("drops a task whose job row is gone", func() {
		jobs.getErr = errors.New("not found")

		Expect(worker.HandleTask(ctx, analyticsTask(jobID))).To(Succeed())
		Expect(jobs.running).To(BeEmpty())
	})
})
