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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("Subscriber session options", func() {
	var subscriber *Subscriber

	BeforeEach(func() {
		subscriber = NewSubscriber(SubscriberOptions{
			Host:     "emqx",
			Port:     1883,
			ClientID: "factoryops-ingest",
		}, nil, zap.NewNop())
	})

	It("keeps ordered dispatch so one session processes messages serially", func() {
		reader := subscriber.client.OptionsReader()
		Expect(reader.Order()).To(BeTrue())
	})

	It("reconnects automatically with the backoff cap", func() {
		reader := subscriber.client.OptionsReader()
		Expect(reader.AutoReconnect()).To(BeTrue())
		Expect(reader.ConnectRetry()).To(BeTrue())
		Expect(reader.MaxReconnectInterval()).To(Equal(60 * time.Second))
	})
})
