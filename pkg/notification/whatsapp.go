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

package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// WhatsAppOptions configures the gateway transport.
type WhatsAppOptions struct {
	APIURL string
	From   string
}

// WhatsAppTransport posts messages to an HTTP gateway.
type WhatsAppTransport struct {
	apiURL  string
	from    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewWhatsAppTransport creates the gateway transport.
func NewWhatsAppTransport(opts WhatsAppOptions) *WhatsAppTransport {
	return &WhatsAppTransport{
		apiURL:  opts.APIURL,
		from:    opts.From,
		client:  &http.Client{Timeout: 15 * time.Second},
		breaker: newBreaker("whatsapp"),
	}
}

// Name implements Transport.
func (t *WhatsAppTransport) Name() string { return ChannelWhatsApp }

// Send implements Transport. The subject folds into the body; WhatsApp has
// no subject line.
func (t *WhatsAppTransport) Send(ctx context.Context, recipient string, msg Message) error {
	_, err := t.breaker.Execute(func() (any, error) {
		payload, err := json.Marshal(map[string]string{
			"from": t.from,
			"to":   recipient,
			"body": msg.Subject + "\n" + msg.Body,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding gateway payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL,
			bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("building gateway request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("calling gateway: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("gateway returned %s", resp.Status)
		}
		return nil, nil
	})
	return err
}
