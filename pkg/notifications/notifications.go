// Package notifications sends user-facing notices about payment outcomes.
//
// Sends are best-effort: a Dispatcher runs them in the background and a
// failure is logged and counted, never returned to the caller. Email
// rendering lives behind the relay endpoint and is out of scope here.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voceacampusului/vocea/pkg/async"
	"github.com/voceacampusului/vocea/pkg/observability"
)

// Kind names a notification template.
type Kind string

const (
	KindPaymentConfirmed      Kind = "payment_confirmed"
	KindPaymentFailed         Kind = "payment_failed"
	KindSubscriptionRenewed   Kind = "subscription_renewed"
	KindSubscriptionFailed    Kind = "subscription_payment_failed"
	KindSubscriptionCancelled Kind = "subscription_cancelled"
)

// Payload is the template data of a notification.
type Payload map[string]any

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, kind Kind, payload Payload) error
}

// HTTPSender posts notifications as JSON to a relay endpoint.
type HTTPSender struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPSender creates a relay sender. token, when set, is sent as a
// bearer token.
func NewHTTPSender(endpoint, token string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type relayMessage struct {
	Kind    Kind      `json:"kind"`
	Payload Payload   `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

func (s *HTTPSender) Send(ctx context.Context, kind Kind, payload Payload) error {
	body, err := json.Marshal(relayMessage{Kind: kind, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RelayError{StatusCode: resp.StatusCode}
	}
	return nil
}

// RelayError is a non-2xx relay response.
type RelayError struct {
	StatusCode int
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("notification relay returned %d", e.StatusCode)
}

// Temporary reports whether the relay may accept the same message later.
func (e *RelayError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// LogSender writes notifications to the log. Used when no relay is configured.
type LogSender struct {
	logger logrus.FieldLogger
}

func NewLogSender(logger logrus.FieldLogger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, kind Kind, payload Payload) error {
	s.logger.WithFields(logrus.Fields{
		"kind":    kind,
		"payload": payload,
	}).Info("notification")
	return nil
}

// Dispatcher sends notifications in the background.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

func NewDispatcher(sender Sender, timeout time.Duration, metrics *observability.Metrics, logger logrus.FieldLogger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{sender: sender, timeout: timeout, metrics: metrics, logger: logger}
}

// Dispatch sends without waiting. The returned channel closes once the
// attempt has finished; callers normally ignore it.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, payload Payload) <-chan struct{} {
	return async.SafeGo(ctx, d.logger, d.timeout, "notify "+string(kind), func(ctx context.Context) error {
		err := d.sender.Send(ctx, kind, payload)
		d.metrics.RecordNotification(string(kind), err)
		return err
	})
}
