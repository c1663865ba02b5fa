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

package reporting_test

import (
	"bytes"
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
	"github.com/factoryops/factoryops/pkg/reporting"
	"github.com/factoryops/factoryops/pkg/storage/timeseries"
)

type fakeReportStore struct {
	report    *models.Report
	getErr    error
	running   []string
	completed map[string]int64
	failed    map[string]string
}

func newFakeReportStore(report *models.Report) *fakeReportStore {
	return &fakeReportStore{
		report:    report,
		completed: map[string]int64{},
		failed:    map[string]string{},
	}
}

func (f *fakeReportStore) GetAny(_ context.Context, _ string) (*models.Report, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.report, nil
}

func (f *fakeReportStore) MarkRunning(_ context.Context, id string) error {
	f.running = append(f.running, id)
	return nil
}

func (f *fakeReportStore) MarkComplete(_ context.Context, id, _ string, size int64) error {
	f.completed[id] = size
	return nil
}

func (f *fakeReportStore) MarkFailed(_ context.Context, id, msg string) error {
	f.failed[id] = msg
	return nil
}

type fakeDeviceLister struct{ devices []models.Device }

func (f *fakeDeviceLister) ListByIDs(_ context.Context, _ int64, _ []int64) ([]models.Device, error) {
	return f.devices, nil
}

type fakeAlertLister struct {
	alerts []models.Alert
	counts map[models.Severity]int
}

func (f *fakeAlertLister) ListInRange(_ context.Context, _ int64, _ []int64, _, _ time.Time, _ int) ([]models.Alert, error) {
	return f.alerts, nil
}

func (f *fakeAlertLister) CountBySeverityInRange(_ context.Context, _ int64, _ []int64, _, _ time.Time) (map[models.Severity]int, error) {
	if f.counts != nil {
		return f.counts, nil
	}
	counts := map[models.Severity]int{}
	for _, a := range f.alerts {
		counts[a.Severity]++
	}
	return counts, nil
}

type fakeWindowReader struct {
	samples []timeseries.Sample
	err     error
}

func (f *fakeWindowReader) QueryWindow(_ context.Context, _ int64, _ []int64, _, _ time.Time) ([]timeseries.Sample, error) {
	return f.samples, f.err
}

type fakeJobSource struct {
	job *models.AnalyticsJob
	err error
}

func (f *fakeJobSource) GetAny(_ context.Context, _ string) (*models.AnalyticsJob, error) {
	return f.job, f.err
}

type fakeArtifacts struct {
	stored  map[string][]byte
	uploads map[string][]byte
	putErr  error
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{stored: map[string][]byte{}, uploads: map[string][]byte{}}
}

func (f *fakeArtifacts) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := f.stored[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

func (f *fakeArtifacts) Put(_ context.Context, key string, data []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeArtifacts) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://minio.local/" + key + "?signed", nil
}

func reportTask(reportID string) *asynq.Task {
	raw, err := json.Marshal(queue.GenerateReportPayload{ReportID: reportID})
	Expect(err).NotTo(HaveOccurred())
	return asynq.NewTask(queue.TaskGenerateReport, raw)
}

var _ = Describe("Report worker", func() {
	var (
		store     *fakeReportStore
		devices   *fakeDeviceLister
		alerts    *fakeAlertLister
		telemetry *fakeWindowReader
		jobSource *fakeJobSource
		artifacts *fakeArtifacts
		worker    *reporting.Worker
		ctx       context.Context
	)

	const reportID = "0b54a9f1-2a2b-48a1-8e6b-12f0c33d6a77"
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	name := "Press 7"

	BeforeEach(func() {
		store = newFakeReportStore(&models.Report{
			ID:             reportID,
			FactoryID:      1,
			DeviceIDs:      models.Int64List{42},
			DateRangeStart: start,
			DateRangeEnd:   end,
			Format:         models.FormatJSON,
		})
		devices = &fakeDeviceLister{devices: []models.Device{
			{ID: 42, FactoryID: 1, DeviceKey: "press-007", Name: &name, IsActive: true},
		}}
		alerts = &fakeAlertLister{alerts: []models.Alert{
			{ID: 1, FactoryID: 1, DeviceID: 42, Severity: models.SeverityHigh,
				TriggeredAt: start.Add(time.Hour), Message: "[R] power (900) gt 800"},
		}}
		telemetry = &fakeWindowReader{samples: []timeseries.Sample{
			{Time: start, DeviceID: 42, Parameter: "power", Value: 740},
			{Time: start.Add(time.Hour), DeviceID: 42, Parameter: "power", Value: 760},
		}}
		jobSource = &fakeJobSource{}
		artifacts = newFakeArtifacts()

		aggregator := reporting.NewAggregator(devices, alerts, telemetry,
			jobSource, artifacts, zap.NewNop())
		worker = reporting.NewWorker(store, aggregator, artifacts, zap.NewNop())
		ctx = context.Background()
	})

	It("generates a json report and records size and url", func() {
		Expect(worker.HandleTask(ctx, reportTask(reportID))).To(Succeed())

		Expect(store.running).To(ConsistOf(reportID))
		Expect(store.completed).To(HaveKey(reportID))

		body := artifacts.uploads["1/reports/"+reportID+".json"]
		Expect(body).NotTo(BeEmpty())
		Expect(store.completed[reportID]).To(Equal(int64(len(body))))

		var data reporting.Data
		Expect(json.Unmarshal(body, &data)).To(Succeed())
		Expect(data.Devices).To(HaveLen(1))
		Expect(data.Devices[0].Parameters["power"].Min).To(Equal(740.0))
		Expect(data.Devices[0].Parameters["power"].Max).To(Equal(760.0))
		Expect(data.Alerts).To(HaveLen(1))
		Expect(data.SeverityCounts[models.SeverityHigh]).To(Equal(1))
	})

	It("computes the severity histogram over the whole period, not the capped log", func() {
		// Store-side the log is capped; the histogram query is not.
		alerts.counts = map[models.Severity]int{
			models.SeverityHigh:   240,
			models.SeverityMedium: 17,
		}

		Expect(worker.HandleTask(ctx, reportTask(reportID))).To(Succeed())

		var data reporting.Data
		Expect(json.Unmarshal(artifacts.uploads["1/reports/"+reportID+".json"], &data)).
			To(Succeed())
		Expect(data.Alerts).To(HaveLen(1))
		Expect(data.SeverityCounts[models.SeverityHigh]).To(Equal(240))
		Expect(data.SeverityCounts[models.SeverityMedium]).To(Equal(17))
	})

	It("renders a pdf artifact", func() {
		store.report.Format = models.FormatPDF

		Expect(worker.HandleTask(ctx, reportTask(reportID))).To(Succeed())

		body := artifacts.uploads["1/reports/"+reportID+".pdf"]
		Expect(bytes.HasPrefix(body, []byte("%PDF"))).To(BeTrue())
	})

	It("renders an excel artifact under the xlsx extension", func() {
		store.report.Format = models.FormatExcel

		Expect(worker.HandleTask(ctx, reportTask(reportID))).To(Succeed())

		body := artifacts.uploads["1/reports/"+reportID+".xlsx"]
		// xlsx is a zip container.
		Expect(bytes.HasPrefix(body, []byte("PK"))).To(BeTrue())
	})

	It("embeds a complete analytics artifact when requested", func() {
		jobID := "9d0b5c1e-7e58-4f2a-8af0-0f2f4f7f3b10"
		store.report.IncludeAnalytics = true
		store.report.AnalyticsJobID = &jobID
		jobSource.job = &models.AnalyticsJob{
			ID: jobID, FactoryID: 1, Status: models.StatusComplete,
		}
		artifacts.stored["1/analytics/"+jobID+".json"] =
			[]byte(`{"anomaly_count": 3, "summary": "3 anomalies"}`)

		Expect(worker.HandleTask(ctx, reportTask(reportID))).To(Succeed())

		var data reporting.Data
		Expect(json.Unmarshal(artifacts.uploads["1/reports/"+reportID+".json"], &data)).
			To(Succeed())
		Expect(data.Analytics).To(HaveKeyWithValue("anomaly_count", 3.0))
	})

	It("proceeds without analytics when the referenced job is not complete", func() {
		jobID := "9d0b5c1e-7e58-4f2a-8af0-0f2f4f7f3b10"
		store.report.IncludeAnalytics = true
		store.report.AnalyticsJobID = &jobID
		jobSource.job = &models.AnalyticsJob{
			ID: jobID, FactoryID: 1, Status: models.StatusRunning,
		}

		Expect(worker.HandleTask(ctx, reportTask(reportID))).To(Succeed())
		Expect(store.completed).To(HaveKey(reportID))

		var data reporting.Data
		Expect(json.Unmarshal(artifacts.uploads["1/reports/"+reportID+".json"], &data)).
			To(Succeed())
		Expect(data.Analytics).To(BeNil())
	})

	It("fails the report on telemetry errors and surfaces the retry", func() {
		telemetry.err = errors.New("influx down")

		err := worker.HandleTask(ctx, reportTask(reportID))
		Expect(err).To(HaveOccurred())
		Expect(store.failed[reportID]).To(ContainSubstring("influx down"))
	})

	It("fails the report when the upload fails", func() {
		artifacts.putErr = errors.New("bucket unavailable")

		err := worker.HandleTask(ctx, reportTask(reportID))
		Expect(err).To(HaveOccurred())
		Expect(store.failed).To(HaveKey(reportID))
	})
})
