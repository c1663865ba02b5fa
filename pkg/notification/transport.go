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

// Package notification delivers fired alerts to factory users over email and
// WhatsApp. Each transport sits behind a circuit breaker so a dead provider
// sheds load instead of stalling the queue.
package notification

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// Channel names as they appear in rule notification_channels configs.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// Message is one rendered alert notification.
type Message struct {
	Subject string
	Body    string
}

// Transport delivers a message to one recipient address.
type Transport interface {
	Name() string
	Send(ctx context.Context, recipient string, msg Message) error
}

// newBreaker builds the shared breaker settings: trip after 5 consecutive
// failures, probe again after 30s.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
