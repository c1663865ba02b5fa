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

// Package analytics runs the statistical models behind analytics jobs:
// anomaly detection, failure prediction and energy forecasting over telemetry
// windows.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/factoryops/factoryops/pkg/storage/timeseries"
)

// Frame is a wide telemetry table: one row per (timestamp, device), one
// column per parameter. Missing cells are NaN until FillMedian.
type Frame struct {
	times   []time.Time
	devices []int64
	columns []string
	data    map[string][]float64
}

type rowKey struct {
	unixNano int64
	deviceID int64
}

// NewFrame pivots raw samples into wide form. Rows are ordered by
// (timestamp, device); columns are ordered by name.
func NewFrame(samples []timeseries.Sample) *Frame {
	keySet := map[rowKey]struct{}{}
	colSet := map[string]struct{}{}
	for _, s := range samples {
		keySet[rowKey{s.Time.UnixNano(), s.DeviceID}] = struct{}{}
		colSet[s.Parameter] = struct{}{}
	}

	keys := make([]rowKey, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].unixNano != keys[j].unixNano {
			return keys[i].unixNano < keys[j].unixNano
		}
		return keys[i].deviceID < keys[j].deviceID
	})
	rowIndex := make(map[rowKey]int, len(keys))
	for i, k := range keys {
		rowIndex[k] = i
	}

	columns := make([]string, 0, len(colSet))
	for c := range colSet {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	f := &Frame{
		times:   make([]time.Time, len(keys)),
		devices: make([]int64, len(keys)),
		columns: columns,
		data:    make(map[string][]float64, len(columns)),
	}
	for i, k := range keys {
		f.times[i] = time.Unix(0, k.unixNano).UTC()
		f.devices[i] = k.deviceID
	}
	for _, c := range columns {
		col := make([]float64, len(keys))
		for i := range col {
			col[i] = math.NaN()
		}
		f.data[c] = col
	}
	for _, s := range samples {
		f.data[s.Parameter][rowIndex[rowKey{s.Time.UnixNano(), s.DeviceID}]] = s.Value
	}
	return f
}

// Len returns the row count.
func (f *Frame) Len() int { return len(f.times) }

// Columns returns the parameter names in order.
func (f *Frame) Columns() []string { return f.columns }

// Time returns the timestamp of row i.
func (f *Frame) Time(i int) time.Time { return f.times[i] }

// DeviceID returns the device of row i.
func (f *Frame) DeviceID(i int) int64 { return f.devices[i] }

// Value returns the cell (i, column); ok is false for missing cells.
func (f *Frame) Value(i int, column string) (float64, bool) {
	col, exists := f.data[column]
	if !exists {
		return 0, false
	}
	v := col[i]
	return v, !math.IsNaN(v)
}

// HasColumn reports whether the frame carries the parameter.
func (f *Frame) HasColumn(column string) bool {
	_, ok := f.data[column]
	return ok
}

// Column returns the raw values of one column, NaN for missing cells.
func (f *Frame) Column(column string) []float64 {
	return f.data[column]
}

// FillMedian replaces missing cells with the column median, in place.
// Columns with no observed value at all fill with zero.
func (f *Frame) FillMedian() {
	for _, c := range f.columns {
		col := f.data[c]
		present := make([]float64, 0, len(col))
		for _, v := range col {
			if !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		fill := 0.0
		if len(present) > 0 {
			sort.Float64s(present)
			mid := len(present) / 2
			if len(present)%2 == 1 {
				fill = present[mid]
			} else {
				fill = (present[mid-1] + present[mid]) / 2
			}
		}
		for i, v := range col {
			if math.IsNaN(v) {
				col[i] = fill
			}
		}
	}
}

// Matrix returns the frame as rows × columns, in column order. Call
// FillMedian first; NaNs poison distance-free models all the same.
func (f *Frame) Matrix() [][]float64 {
	rows := make([][]float64, f.Len())
	for i := range rows {
		row := make([]float64, len(f.columns))
		for j, c := range f.columns {
			row[j] = f.data[c][i]
		}
		rows[i] = row
	}
	return rows
}

// RollingFeatures builds a feature matrix of per-column rolling mean and
// standard deviation over the trailing window. Row r of the output
// corresponds to frame row r+window-1.
func (f *Frame) RollingFeatures(window int) [][]float64 {
	n := f.Len()
	if n < window {
		return nil
	}
	out := make([][]float64, 0, n-window+1)
	for end := window; end <= n; end++ {
		features := make([]float64, 0, 2*len(f.columns))
		for _, c := range f.columns {
			col := f.data[c][end-window : end]
			mean, std := meanStd(col)
			features = append(features, mean, std)
		}
		out = append(out, features)
	}
	return out
}

// Stats summarizes one column of one device.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// StatsByDevice computes per-device per-parameter summary statistics over
// observed cells only.
func (f *Frame) StatsByDevice() map[int64]map[string]Stats {
	out := map[int64]map[string]Stats{}
	for i := 0; i < f.Len(); i++ {
		device := f.devices[i]
		if out[device] == nil {
			out[device] = map[string]Stats{}
		}
		for _, c := range f.columns {
			v := f.data[c][i]
			if math.IsNaN(v) {
				continue
			}
			s, seen := out[device][c]
			if !seen {
				s = Stats{Min: v, Max: v}
			}
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
			s.Avg += v // running sum; divided below
			s.Count++
			out[device][c] = s
		}
	}
	for _, cols := range out {
		for c, s := range cols {
			s.Avg /= float64(s.Count)
			cols[c] = s
		}
	}
	return out
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std
}
