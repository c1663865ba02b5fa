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

// Package ingest consumes telemetry from the broker and fans each message
// into the time-series store, parameter discovery and the rule engine. A bad
// message is logged and dropped; the subscriber never crashes and never
// requeues broker-side.
package ingest

import (
	"fmt"
	"strings"
)

// TopicPattern is the wildcard subscription covering every tenant and device.
const TopicPattern = "factories/+/devices/+/telemetry"

// ParseTopic extracts (factory slug, device key) from a telemetry topic.
// Exactly five segments in fixed positions; anything else rejects the
// message.
func ParseTopic(topic string) (slug, deviceKey string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 {
		return "", "", fmt.Errorf("topic %q: want 5 segments, got %d", topic, len(parts))
	}
	if parts[0] != "factories" || parts[2] != "devices" || parts[4] != "telemetry" {
		return "", "", fmt.Errorf("topic %q: not a telemetry topic", topic)
	}
	if parts[1] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("topic %q: empty slug or device key", topic)
	}
	return parts[1], parts[3], nil
}
