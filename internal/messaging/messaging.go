// Package messaging abstracts the broker used for outbound event delivery so
// the delivery pipeline is not coupled to a specific implementation.
package messaging

import (
	"context"
	"time"
)

// Message is a message sent to or received from the broker.
type Message struct {
	// Subject is the topic the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Timestamp is when the message was published.
	Timestamp time.Time
}

// Handler processes a received message. Returning an error indicates
// processing failure and may trigger redelivery depending on implementation.
type Handler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription to a subject.
type Subscription interface {
	// Unsubscribe stops receiving messages on this subscription.
	Unsubscribe() error

	// Subject returns the subject this subscription listens on.
	Subject() string
}

// Client publishes and subscribes to broker subjects.
type Client interface {
	// Publish sends a message to the specified subject, fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe creates a fan-out subscription to the subject.
	Subscribe(subject string, handler Handler) (Subscription, error)

	// QueueSubscribe creates a queue subscription: messages are load-balanced
	// across subscribers in the same queue group so each is processed once.
	QueueSubscribe(subject, queue string, handler Handler) (Subscription, error)

	// Close releases resources and unsubscribes all active subscriptions.
	Close() error
}

// Subjects used by the delivery pipeline.
const (
	// SubjectDeliveries is the queue subject feeding callback delivery workers.
	SubjectDeliveries = "truthfeed.deliveries"

	// StreamSubjectPrefix prefixes per-subscription stream fan-out subjects:
	// truthfeed.stream.<subscription_id>.
	StreamSubjectPrefix = "truthfeed.stream."
)
