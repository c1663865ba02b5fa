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
	"fmt"
	"math"
	"time"
)

// Seasonal regression forecaster: linear trend plus daily and weekly Fourier
// terms, fitted by least squares. No yearly component; telemetry windows are
// days, not years.

const (
	dailyHarmonics  = 3
	weeklyHarmonics = 2
	hoursPerDay     = 24.0
	hoursPerWeek    = 168.0
)

// ForecastPoint is one future sample with its confidence band.
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Yhat      float64   `json:"yhat"`
	YhatLower float64   `json:"yhat_lower"`
	YhatUpper float64   `json:"yhat_upper"`
}

// Forecast fits the seasonal model to (times, values) and extrapolates
// horizon points at the given step from the last observation.
func Forecast(times []time.Time, values []float64, horizon int, step time.Duration) ([]ForecastPoint, error) {
	if len(times) != len(values) || len(times) < 2 {
		return nil, fmt.Errorf("forecast needs at least 2 observations, got %d", len(times))
	}

	origin := times[0]
	design := make([][]float64, len(times))
	for i, t := range times {
		design[i] = featureRow(t.Sub(origin).Hours())
	}

	coeffs, err := leastSquares(design, values)
	if err != nil {
		return nil, err
	}

	// Residual spread drives the confidence band.
	var sumSq float64
	for i, row := range design {
		r := values[i] - dot(coeffs, row)
		sumSq += r * r
	}
	sigma := math.Sqrt(sumSq / float64(len(values)))
	band := 1.96 * sigma

	last := times[len(times)-1]
	out := make([]ForecastPoint, horizon)
	for i := range out {
		at := last.Add(time.Duration(i+1) * step)
		yhat := dot(coeffs, featureRow(at.Sub(origin).Hours()))
		out[i] = ForecastPoint{
			Timestamp: at,
			Yhat:      yhat,
			YhatLower: yhat - band,
			YhatUpper: yhat + band,
		}
	}
	return out, nil
}

func featureRow(hours float64) []float64 {
	row := []float64{1, hours}
	for k := 1; k <= dailyHarmonics; k++ {
		w := 2 * math.Pi * float64(k) * hours / hoursPerDay
		row = append(row, math.Sin(w), math.Cos(w))
	}
	for k := 1; k <= weeklyHarmonics; k++ {
		w := 2 * math.Pi * float64(k) * hours / hoursPerWeek
		row = append(row, math.Sin(w), math.Cos(w))
	}
	return row
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// leastSquares solves the normal equations XᵀXβ = Xᵀy by Gaussian
// elimination with partial pivoting. A tiny ridge term keeps short or
// degenerate inputs solvable.
func leastSquares(X [][]float64, y []float64) ([]float64, error) {
	p := len(X[0])
	ata := make([][]float64, p)
	atb := make([]float64, p)
	for i := range ata {
		ata[i] = make([]float64, p)
	}
	for r, row := range X {
		for i := 0; i < p; i++ {
			atb[i] += row[i] * y[r]
			for j := 0; j < p; j++ {
				ata[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < p; i++ {
		ata[i][i] += 1e-8
	}

	for col := 0; col < p; col++ {
		pivot := col
		for r := col + 1; r < p; r++ {
			if math.Abs(ata[r][col]) > math.Abs(ata[pivot][col]) {
				pivot = r
			}
		}
		ata[col], ata[pivot] = ata[pivot], ata[col]
		atb[col], atb[pivot] = atb[pivot], atb[col]
		if ata[col][col] == 0 {
			return nil, fmt.Errorf("singular design matrix")
		}
		for r := col + 1; r < p; r++ {
			factor := ata[r][col] / ata[col][col]
			for c := col; c < p; c++ {
				ata[r][c] -= factor * ata[col][c]
			}
			atb[r] -= factor * atb[col]
		}
	}

	coeffs := make([]float64, p)
	for i := p - 1; i >= 0; i-- {
		s := atb[i]
		for j := i + 1; j < p; j++ {
			s -= ata[i][j] * coeffs[j]
		}
		coeffs[i] = s / ata[i][i]
	}
	return coeffs, nil
}
