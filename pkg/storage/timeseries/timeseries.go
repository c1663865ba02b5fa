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

// Package timeseries reads and writes telemetry samples in InfluxDB. One
// measurement, device_metrics, tagged by factory, device and parameter so
// every query stays tenant-scoped.
package timeseries

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

const measurement = "device_metrics"

// Sample is one (time, device, parameter, value) observation.
type Sample struct {
	Time      time.Time
	DeviceID  int64
	Parameter string
	Value     float64
}

// Store wraps one Influx org/bucket pair.
type Store struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	query  api.QueryAPI
	bucket string
}

// New creates the time-series store.
func New(url, token, org, bucket string) *Store {
	client := influxdb2.NewClient(url, token)
	return &Store{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
		query:  client.QueryAPI(org),
		bucket: bucket,
	}
}

// Close releases the underlying HTTP client.
func (s *Store) Close() {
	s.client.Close()
}

// WriteMetrics persists every metric of one telemetry message as points
// sharing the message timestamp.
func (s *Store) WriteMetrics(
	ctx context.Context,
	factoryID, deviceID int64,
	metrics map[string]float64,
	ts time.Time,
) error {
	for parameter, value := range metrics {
		point := influxdb2.NewPoint(measurement,
			map[string]string{
				"factory_id": strconv.FormatInt(factoryID, 10),
				"device_id":  strconv.FormatInt(deviceID, 10),
				"parameter":  parameter,
			},
			map[string]any{"value": value},
			ts)
		if err := s.write.WritePoint(ctx, point); err != nil {
			return fmt.Errorf("writing point %s: %w", parameter, err)
		}
	}
	return nil
}

// QueryWindow returns every sample of the given devices inside [start, end),
// ordered by time.
func (s *Store) QueryWindow(
	ctx context.Context,
	factoryID int64,
	deviceIDs []int64,
	start, end time.Time,
) ([]Sample, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r.factory_id == %q)
  |> filter(fn: (r) => %s)
  |> filter(fn: (r) => r._field == "value")
  |> sort(columns: ["_time"])`,
		s.bucket,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		measurement,
		strconv.FormatInt(factoryID, 10),
		deviceFilter(deviceIDs))

	result, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("querying window: %w", err)
	}
	defer result.Close()

	var samples []Sample
	for result.Next() {
		record := result.Record()
		value, ok := record.Value().(float64)
		if !ok {
			continue
		}
		deviceID, err := strconv.ParseInt(fmt.Sprint(record.ValueByKey("device_id")), 10, 64)
		if err != nil {
			continue
		}
		samples = append(samples, Sample{
			Time:      record.Time(),
			DeviceID:  deviceID,
			Parameter: fmt.Sprint(record.ValueByKey("parameter")),
			Value:     value,
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("reading window result: %w", result.Err())
	}
	return samples, nil
}

func deviceFilter(ids []int64) string {
	if len(ids) == 0 {
		return "true"
	}
	clause := ""
	for i, id := range ids {
		if i > 0 {
			clause += " or "
		}
		clause += fmt.Sprintf("r.device_id == %q", strconv.FormatInt(id, 10))
	}
	return clause
}
