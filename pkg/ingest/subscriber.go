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
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Subscriber options.
type SubscriberOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
}

// Subscriber holds the broker session. paho reconnects with exponential
// backoff capped at a minute; the subscription is re-established inside the
// OnConnect hook so it survives every reconnect. Dispatch stays ordered (the
// paho default): messages of one session run through the pipeline serially,
// in receive order.
type Subscriber struct {
	client   mqtt.Client
	pipeline *Pipeline
	logger   *zap.Logger
}

// NewSubscriber configures the broker session without connecting.
func NewSubscriber(opts SubscriberOptions, pipeline *Pipeline, logger *zap.Logger) *Subscriber {
	s := &Subscriber{pipeline: pipeline, logger: logger}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Host, opts.Port)).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second).
		SetMaxReconnectInterval(60 * time.Second).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt.connection_lost", zap.Error(err))
		})

	s.client = mqtt.NewClient(clientOpts)
	return s
}

// Start connects and blocks until ctx is cancelled, then disconnects
// cleanly.
func (s *Subscriber) Start(ctx context.Context) error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}
	<-ctx.Done()
	s.client.Disconnect(250)
	s.logger.Info("mqtt.disconnected")
	return nil
}

func (s *Subscriber) onConnect(client mqtt.Client) {
	s.logger.Info("mqtt.connected", zap.String("topic", TopicPattern))
	token := client.Subscribe(TopicPattern, 1, func(_ mqtt.Client, msg mqtt.Message) {
		s.pipeline.Handle(context.Background(), msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		s.logger.Error("mqtt.subscribe_failed", zap.Error(token.Error()))
	}
}
