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

package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/factoryops/factoryops/pkg/models"
)

// ErrInsufficientData marks a job whose telemetry window cannot support the
// requested model. It is terminal: the job fails without retry.
var ErrInsufficientData = errors.New("insufficient data for model")

// Model input minimums.
const (
	anomalyMinRows  = 10
	failureMinRows  = 20
	forecastMinRows = 24

	anomalyContamination = 0.05
	failureContamination = 0.10

	rollingWindow = 10

	forecastHorizonDays = 7
	forecastStep        = time.Hour

	topAnomalies = 50
)

// Runner executes one model over a prepared frame. seed keeps retried jobs
// deterministic.
type Runner func(f *Frame, seed int64) (map[string]any, error)

// Runners is the dispatch table; adding a job type means adding one entry
// and one function.
var Runners = map[models.JobType]Runner{
	models.JobTypeAnomaly:           runAnomaly,
	models.JobTypeFailurePrediction: runFailurePrediction,
	models.JobTypeEnergyForecast:    runEnergyForecast,
	models.JobTypeAICopilot:         runAICopilot,
}

func runAnomaly(f *Frame, seed int64) (map[string]any, error) {
	if f.Len() < anomalyMinRows || len(f.Columns()) == 0 {
		return nil, fmt.Errorf("%w: anomaly needs >=%d rows with a numeric column, got %d rows",
			ErrInsufficientData, anomalyMinRows, f.Len())
	}
	f.FillMedian()
	X := f.Matrix()

	forest := FitIsolationForest(X, seed)
	scores := forest.Scores(X)
	threshold := AnomalyThreshold(scores, anomalyContamination)

	type scored struct {
		row   int
		score float64
	}
	var anomalous []scored
	for i, s := range scores {
		if s >= threshold {
			anomalous = append(anomalous, scored{row: i, score: s})
		}
	}
	sort.Slice(anomalous, func(i, j int) bool {
		return anomalous[i].score > anomalous[j].score
	})

	colMeans, colStds := columnMoments(f)
	top := anomalous
	if len(top) > topAnomalies {
		top = top[:topAnomalies]
	}
	entries := make([]map[string]any, 0, len(top))
	for _, a := range top {
		entries = append(entries, map[string]any{
			"device_id":           f.DeviceID(a.row),
			"timestamp":           f.Time(a.row),
			"score":               a.score,
			"affected_parameters": affectedParameters(f, a.row, colMeans, colStds),
		})
	}

	return map[string]any{
		"anomaly_count": len(anomalous),
		"anomaly_score": float64(len(anomalous)) / float64(f.Len()),
		"anomalies":     entries,
	}, nil
}

func runFailurePrediction(f *Frame, seed int64) (map[string]any, error) {
	if f.Len() < failureMinRows {
		return nil, fmt.Errorf("%w: failure prediction needs >=%d rows, got %d",
			ErrInsufficientData, failureMinRows, f.Len())
	}
	f.FillMedian()
	features := f.RollingFeatures(rollingWindow)

	forest := FitIsolationForest(features, seed)
	scores := forest.Scores(features)
	threshold := AnomalyThreshold(scores, failureContamination)

	anomalous := 0
	for _, s := range scores {
		if s >= threshold {
			anomalous++
		}
	}
	probability := float64(anomalous) / float64(len(scores))

	risk := "high"
	switch {
	case probability < 0.1:
		risk = "low"
	case probability < 0.25:
		risk = "medium"
	}

	return map[string]any{
		"failure_probability": probability,
		"risk_level":          risk,
		"summary": fmt.Sprintf(
			"%d of %d rolling windows show anomalous behavior (%s risk)",
			anomalous, len(scores), risk),
	}, nil
}

func runEnergyForecast(f *Frame, _ int64) (map[string]any, error) {
	if !f.HasColumn("power") {
		return nil, fmt.Errorf("%w: energy forecast needs a power column", ErrInsufficientData)
	}
	var (
		times  []time.Time
		values []float64
	)
	for i := 0; i < f.Len(); i++ {
		if v, ok := f.Value(i, "power"); ok {
			times = append(times, f.Time(i))
			values = append(values, v)
		}
	}
	if len(values) < forecastMinRows {
		return nil, fmt.Errorf("%w: energy forecast needs >=%d power rows, got %d",
			ErrInsufficientData, forecastMinRows, len(values))
	}

	horizon := forecastHorizonDays * 24
	forecast, err := Forecast(times, values, horizon, forecastStep)
	if err != nil {
		return nil, fmt.Errorf("fitting forecast: %w", err)
	}

	var total float64
	for _, p := range forecast {
		total += p.Yhat
	}
	return map[string]any{
		"horizon_days": forecastHorizonDays,
		"forecast":     forecast,
		"summary": fmt.Sprintf(
			"forecast mean power %.1f over the next %d days",
			total/float64(len(forecast)), forecastHorizonDays),
	}, nil
}

// runAICopilot runs every model whose preconditions hold and combines their
// outputs. It fails only when no model can run at all.
func runAICopilot(f *Frame, seed int64) (map[string]any, error) {
	candidates := []struct {
		name string
		run  Runner
	}{
		{string(models.JobTypeAnomaly), runAnomaly},
		{string(models.JobTypeFailurePrediction), runFailurePrediction},
		{string(models.JobTypeEnergyForecast), runEnergyForecast},
	}

	used := []string{}
	results := map[string]any{}
	for _, c := range candidates {
		result, err := c.run(f, seed)
		if errors.Is(err, ErrInsufficientData) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("copilot model %s: %w", c.name, err)
		}
		used = append(used, c.name)
		results[c.name] = result
	}
	if len(used) == 0 {
		return nil, fmt.Errorf("%w: no model preconditions hold for %d rows",
			ErrInsufficientData, f.Len())
	}

	return map[string]any{
		"models_used": used,
		"results":     results,
		"summary":     fmt.Sprintf("ran %d of %d models", len(used), len(candidates)),
	}, nil
}

func columnMoments(f *Frame) (means, stds map[string]float64) {
	means = map[string]float64{}
	stds = map[string]float64{}
	for _, c := range f.Columns() {
		mean, std := meanStd(f.Column(c))
		means[c] = mean
		stds[c] = std
	}
	return means, stds
}

// affectedParameters names the columns of one row that sit more than two
// standard deviations from the column mean.
func affectedParameters(f *Frame, row int, means, stds map[string]float64) []string {
	var out []string
	for _, c := range f.Columns() {
		v, ok := f.Value(row, c)
		if !ok || stds[c] == 0 {
			continue
		}
		if math.Abs(v-means[c]) > 2*stds[c] {
			out = append(out, c)
		}
	}
	return out
}
