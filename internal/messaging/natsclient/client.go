// Package natsclient provides a NATS implementation of the messaging
// interfaces.
package natsclient

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/truthlayer-systems/truthfeed/internal/messaging"
)

// Client implements messaging.Client using NATS.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs []*subscription
}

// Config holds NATS client configuration.
type Config struct {
	// URL is the NATS server URL (e.g. "nats://localhost:4222").
	URL string

	// Name identifies the connection on the server.
	Name string

	// MaxReconnects caps reconnection attempts; -1 means infinite.
	MaxReconnects int

	// ReconnectWait is the delay between reconnection attempts.
	ReconnectWait time.Duration

	// Timeout is the connection timeout.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "truthfeed",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// New connects to NATS with the given configuration.
func New(cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Publish sends a message to the specified subject.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe creates a fan-out subscription to the subject.
func (c *Client) Subscribe(subject string, handler messaging.Handler) (messaging.Subscription, error) {
	natsSub, err := c.conn.Subscribe(subject, c.wrap(handler))
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	return c.track(natsSub), nil
}

// QueueSubscribe creates a queue-group subscription to the subject.
func (c *Client) QueueSubscribe(subject, queue string, handler messaging.Handler) (messaging.Subscription, error) {
	natsSub, err := c.conn.QueueSubscribe(subject, queue, c.wrap(handler))
	if err != nil {
		return nil, fmt.Errorf("queue subscribe to %s: %w", subject, err)
	}
	return c.track(natsSub), nil
}

func (c *Client) wrap(handler messaging.Handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		m := &messaging.Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now().UTC(),
		}
		if err := handler(context.Background(), m); err != nil {
			log.Printf("handler error on %s: %v", msg.Subject, err)
		}
	}
}

func (c *Client) track(natsSub *nats.Subscription) *subscription {
	sub := &subscription{sub: natsSub}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Close drains all subscriptions and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.subs {
		_ = s.Unsubscribe()
	}
	c.subs = nil
	c.conn.Close()
	return nil
}

type subscription struct {
	sub *nats.Subscription
}

func (s *subscription) Unsubscribe() error {
	if !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}

func (s *subscription) Subject() string {
	return s.sub.Subject
}
