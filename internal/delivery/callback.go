package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/messaging"
	"github.com/truthlayer-systems/truthfeed/internal/metrics"
	"github.com/truthlayer-systems/truthfeed/internal/models"
)

// Envelope is the unit handed to the outbound callback queue. Delivery is
// at-least-once; consumers deduplicate on EventID.
type Envelope struct {
	DeliveryID     string        `json:"delivery_id"`
	SubscriptionID string        `json:"subscription_id"`
	Endpoint       string        `json:"endpoint"`
	Event          *models.Event `json:"event"`
	Attempt        int           `json:"attempt"`
	EnqueuedAt     time.Time     `json:"enqueued_at"`
}

// WebhookSender posts a delivery envelope to the subscriber's endpoint.
type WebhookSender struct {
	client  *http.Client
	timeout time.Duration
}

// NewWebhookSender creates a webhook sender with the given per-request timeout.
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Send posts the envelope's event as JSON. Non-2xx responses are errors.
func (s *WebhookSender) Send(ctx context.Context, env *Envelope) error {
	payload := map[string]interface{}{
		"delivery_id":     env.DeliveryID,
		"subscription_id": env.SubscriptionID,
		"event":           env.Event,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "TruthFeed/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// CallbackQueue decouples producer latency from delivery latency. With a
// broker configured, envelopes are published to a queue subject and a worker
// group posts them; without one, envelopes are delivered on a local goroutine
// with the same retry policy.
type CallbackQueue struct {
	broker      messaging.Client
	sender      *WebhookSender
	logger      *logging.Logger
	maxAttempts int
	retryWait   time.Duration
}

// NewCallbackQueue creates a callback delivery queue. broker may be nil.
func NewCallbackQueue(broker messaging.Client, sender *WebhookSender, logger *logging.Logger) *CallbackQueue {
	return &CallbackQueue{
		broker:      broker,
		sender:      sender,
		logger:      logger,
		maxAttempts: 5,
		retryWait:   2 * time.Second,
	}
}

// Start subscribes the worker group to the delivery subject. No-op without a
// broker.
func (q *CallbackQueue) Start(ctx context.Context) error {
	if q.broker == nil {
		return nil
	}
	_, err := q.broker.QueueSubscribe(messaging.SubjectDeliveries, "delivery-workers", func(ctx context.Context, msg *messaging.Message) error {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			return fmt.Errorf("unmarshal delivery envelope: %w", err)
		}
		q.attempt(ctx, &env)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe delivery workers: %w", err)
	}
	return nil
}

// Enqueue hands an event to the outbound queue for a callback subscription.
func (q *CallbackQueue) Enqueue(ctx context.Context, sub *models.Subscription, event *models.Event) error {
	env := &Envelope{
		DeliveryID:     uuid.New().String(),
		SubscriptionID: sub.ID,
		Endpoint:       sub.Endpoint,
		Event:          event,
		Attempt:        0,
		EnqueuedAt:     time.Now().UTC(),
	}

	if q.broker != nil {
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal delivery envelope: %w", err)
		}
		return q.broker.Publish(ctx, messaging.SubjectDeliveries, data)
	}

	go q.attempt(context.Background(), env)
	return nil
}

// attempt posts the envelope, retrying with linear backoff. Delivery failures
// are logged and counted; they never propagate back to the append path.
func (q *CallbackQueue) attempt(ctx context.Context, env *Envelope) {
	for env.Attempt < q.maxAttempts {
		env.Attempt++
		err := q.sender.Send(ctx, env)
		if err == nil {
			metrics.Deliveries.WithLabelValues(models.DeliveryCallback, "ok").Inc()
			return
		}

		q.logger.WarnContext(ctx, "callback delivery failed",
			logging.SubscriptionID(env.SubscriptionID),
			logging.EventID(env.Event.ID),
			"attempt", env.Attempt,
			logging.Error(err))

		select {
		case <-ctx.Done():
			metrics.Deliveries.WithLabelValues(models.DeliveryCallback, "cancelled").Inc()
			return
		case <-time.After(q.retryWait * time.Duration(env.Attempt)):
		}
	}
	metrics.Deliveries.WithLabelValues(models.DeliveryCallback, "failed").Inc()
}
