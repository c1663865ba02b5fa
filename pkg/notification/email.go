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
	"context"
	"fmt"

	"github.com/sony/gobreaker"
	"github.com/wneessen/go-mail"
)

// EmailOptions configures the SMTP transport.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailTransport sends over SMTP.
type EmailTransport struct {
	client  *mail.Client
	from    string
	breaker *gobreaker.CircuitBreaker
}

// NewEmailTransport dials nothing; the connection is made per send.
func NewEmailTransport(opts EmailOptions) (*EmailTransport, error) {
	client, err := mail.NewClient(opts.Host,
		mail.WithPort(opts.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(opts.Username),
		mail.WithPassword(opts.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("building smtp client: %w", err)
	}
	return &EmailTransport{
		client:  client,
		from:    opts.From,
		breaker: newBreaker("smtp"),
	}, nil
}

// Name implements Transport.
func (t *EmailTransport) Name() string { return ChannelEmail }

// Send implements Transport.
func (t *EmailTransport) Send(ctx context.Context, recipient string, msg Message) error {
	_, err := t.breaker.Execute(func() (any, error) {
		m := mail.NewMsg()
		if err := m.From(t.from); err != nil {
			return nil, fmt.Errorf("setting sender: %w", err)
		}
		if err := m.To(recipient); err != nil {
			return nil, fmt.Errorf("setting recipient: %w", err)
		}
		m.Subject(msg.Subject)
		m.SetBodyString(mail.TypeTextPlain, msg.Body)
		if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
			return nil, fmt.Errorf("sending mail: %w", err)
		}
		return nil, nil
	})
	return err
}
