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
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/factoryops/factoryops/pkg/analytics"
	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/storage/timeseries"
)

// steadySamples produces n rows of near-constant telemetry with one extreme
// outlier at the end.
func steadySamples(n int, param string) []timeseries.Sample {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	samples := make([]timeseries.Sample, 0, n)
	for i := 0; i < n; i++ {
		value := 100.0 + float64(i%3)
		if i == n-1 {
			value = 10000
		}
		samples = append(samples, timeseries.Sample{
			Time:      t0.Add(time.Duration(i) * time.Hour),
			DeviceID:  1,
			Parameter: param,
			Value:     value,
		})
	}
	return samples
}

var _ = Describe("Isolation forest", func() {
	It("scores an obvious outlier above the inliers", func() {
		X := make([][]float64, 0, 101)
		for i := 0; i < 100; i++ {
			X = append(X, []float64{100 + float64(i%5)})
		}
		X = append(X, []float64{10000})

		forest := analytics.FitIsolationForest(X, 1)
		scores := forest.Scores(X)

		outlier := scores[len(scores)-1]
		for _, s := range scores[:len(scores)-1] {
			Expect(outlier).To(BeNumerically(">", s))
		}
	})

	It("is deterministic for a fixed seed", func() {
		X := [][]float64{{1}, {2}, {3}, {100}}
		a := analytics.FitIsolationForest(X, 7).Scores(X)
		b := analytics.FitIsolationForest(X, 7).Scores(X)
		Expect(a).To(Equal(b))
	})

	It("picks a threshold matching the contamination fraction", func() {
		scores := []float64{0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1, 0.05}
		threshold := analytics.AnomalyThreshold(scores, 0.2)
		Expect(threshold).To(Equal(0.8))
	})
})

var _ = Describe("Model runners", func() {
	Describe("anomaly", func() {
		It("fails on fewer than 10 rows", func() {
			f := analytics.NewFrame(steadySamples(5, "voltage"))
			_, err := analytics.Runners[models.JobTypeAnomaly](f, 1)
			Expect(err).To(MatchError(analytics.ErrInsufficientData))
		})

		It("reports anomalies sorted by score descending", func() {
			f := analytics.NewFrame(steadySamples(100, "voltage"))
			result, err := analytics.Runners[models.JobTypeAnomaly](f, 1)
			Expect(err).NotTo(HaveOccurred())

			Expect(result).To(HaveKey("anomaly_count"))
			Expect(result["anomaly_score"]).To(BeNumerically(">", 0))

			anomalies := result["anomalies"].([]map[string]any)
			Expect(anomalies).NotTo(BeEmpty())
			Expect(len(anomalies)).To(BeNumerically("<=", 50))
			for i := 1; i < len(anomalies); i++ {
				Expect(anomalies[i-1]["score"].(float64)).
					To(BeNumerically(">=", anomalies[i]["score"].(float64)))
			}
		})

		It("names the parameters that deviate on the anomalous row", func() {
			f := analytics.NewFrame(steadySamples(100, "voltage"))
			result, err := analytics.Runners[models.JobTypeAnomaly](f, 1)
			Expect(err).NotTo(HaveOccurred())

			anomalies := result["anomalies"].([]map[string]any)
			Expect(anomalies[0]["affected_parameters"]).To(ContainElement("voltage"))
		})
	})

	Describe("failure_prediction", func() {
		It("fails on fewer than 20 rows", func() {
			f := analytics.NewFrame(steadySamples(15, "voltage"))
			_, err := analytics.Runners[models.JobTypeFailurePrediction](f, 1)
			Expect(err).To(MatchError(analytics.ErrInsufficientData))
		})

		It("buckets the probability into a risk level", func() {
			f := analytics.NewFrame(steadySamples(100, "voltage"))
			result, err := analytics.Runners[models.JobTypeFailurePrediction](f, 1)
			Expect(err).NotTo(HaveOccurred())

			probability := result["failure_probability"].(float64)
			Expect(probability).To(BeNumerically(">=", 0))
			Expect(probability).To(BeNumerically("<=", 1))
			Expect(result["risk_level"]).To(BeElementOf("low", "medium", "high"))
			Expect(result["summary"]).NotTo(BeEmpty())
		})
	})

	Describe("energy_forecast", func() {
		It("fails without a power column", func() {
			f := analytics.NewFrame(steadySamples(100, "voltage"))
			_, err := analytics.Runners[models.JobTypeEnergyForecast](f, 1)
			Expect(err).To(MatchError(analytics.ErrInsufficientData))
		})

		It("fails on fewer than 24 power rows", func() {
			f := analytics.NewFrame(steadySamples(10, "power"))
			_, err := analytics.Runners[models.JobTypeEnergyForecast](f, 1)
			Expect(err).To(MatchError(analytics.ErrInsufficientData))
		})

		It("produces a 7-day hourly horizon with confidence bands", func() {
			f := analytics.NewFrame(steadySamples(200, "power"))
			result, err := analytics.Runners[models.JobTypeEnergyForecast](f, 1)
			Expect(err).NotTo(HaveOccurred())

			Expect(result["horizon_days"]).To(Equal(7))
			forecast := result["forecast"].([]analytics.ForecastPoint)
			Expect(forecast).To(HaveLen(7 * 24))
			for _, p := range forecast {
				Expect(p.YhatLower).To(BeNumerically("<=", p.Yhat))
				Expect(p.YhatUpper).To(BeNumerically(">=", p.Yhat))
				Expect(math.IsNaN(p.Yhat)).To(BeFalse())
			}
			Expect(forecast[1].Timestamp.Sub(forecast[0].Timestamp)).To(Equal(time.Hour))
		})
	})

	Describe("ai_copilot", func() {
		It("runs every model whose preconditions hold", func() {
			f := analytics.NewFrame(steadySamples(100, "power"))
			result, err := analytics.Runners[models.JobTypeAICopilot](f, 1)
			Expect(err).NotTo(HaveOccurred())

			used := result["models_used"].([]string)
			Expect(used).To(ConsistOf("anomaly", "failure_prediction", "energy_forecast"))
			results := result["results"].(map[string]any)
			Expect(results).To(HaveKey("anomaly"))
			Expect(results).To(HaveKey("energy_forecast"))
		})

		It("skips models whose preconditions fail", func() {
			f := analytics.NewFrame(steadySamples(30, "voltage"))
			result, err := analytics.Runners[models.JobTypeAICopilot](f, 1)
			Expect(err).NotTo(HaveOccurred())

			used := result["models_used"].([]string)
			Expect(used).NotTo(ContainElement("energy_forecast"))
		})

		It("fails when nothing can run", func() {
			f := analytics.NewFrame(steadySamples(3, "voltage"))
			_, err := analytics.Runners[models.JobTypeAICopilot](f, 1)
			Expect(err).To(MatchError(analytics.ErrInsufficientData))
		})
	})
})
