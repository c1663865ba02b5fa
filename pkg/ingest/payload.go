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

package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/factoryops/factoryops/pkg/models"
)

// Payload is a validated telemetry message body.
type Payload struct {
	// Timestamp is the sample time, or the server wall-clock when the
	// message carried none.
	Timestamp time.Time
	// Metrics is the non-empty numeric measurement map.
	Metrics map[string]float64
	// Types records whether each metric arrived as an integer or a float,
	// for parameter discovery.
	Types map[string]models.DataType
}

// ParsePayload validates a raw message body. Every metric value must be
// numeric and the map non-empty; a missing timestamp defaults to now.
func ParsePayload(data []byte, now time.Time) (*Payload, error) {
	var raw struct {
		Timestamp *string                    `json:"timestamp"`
		Metrics   map[string]json.RawMessage `json:"metrics"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("payload is not a json object: %w", err)
	}
	if len(raw.Metrics) == 0 {
		return nil, fmt.Errorf("payload has no metrics")
	}

	p := &Payload{
		Timestamp: now,
		Metrics:   make(map[string]float64, len(raw.Metrics)),
		Types:     make(map[string]models.DataType, len(raw.Metrics)),
	}
	if raw.Timestamp != nil {
		ts, err := time.Parse(time.RFC3339, *raw.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("timestamp %q: %w", *raw.Timestamp, err)
		}
		p.Timestamp = ts
	}

	for key, rawValue := range raw.Metrics {
		// Unmarshalling null into a float64 is a no-op, not an error.
		if string(rawValue) == "null" {
			return nil, fmt.Errorf("metric %q is not numeric", key)
		}
		var value float64
		if err := json.Unmarshal(rawValue, &value); err != nil {
			return nil, fmt.Errorf("metric %q is not numeric", key)
		}
		p.Metrics[key] = value
		if value == math.Trunc(value) && !isFloatLiteral(rawValue) {
			p.Types[key] = models.DataTypeInt
		} else {
			p.Types[key] = models.DataTypeFloat
		}
	}
	return p, nil
}

// isFloatLiteral reports whether the JSON literal was written with a decimal
// point or exponent, so "3" discovers as int but "3.0" as float.
func isFloatLiteral(raw json.RawMessage) bool {
	for _, b := range raw {
		if b == '.' || b == 'e' || b == 'E' {
			return true
		}
	}
	return false
}
