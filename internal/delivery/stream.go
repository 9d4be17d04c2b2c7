package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/messaging"
	"github.com/truthlayer-systems/truthfeed/internal/metrics"
	"github.com/truthlayer-systems/truthfeed/internal/models"
)

// streamConn serializes writes to one websocket connection. Multiple
// dispatcher workers may push to the same subscription concurrently, and the
// connection permits at most one concurrent writer.
type streamConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func (c *streamConn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// StreamHub tracks open stream connections per subscription. Stream delivery
// is best-effort: if no connection is attached the event is silently dropped,
// with no buffering. A broker mirror subject lets other services tap the
// stream without holding the socket.
type StreamHub struct {
	mu       sync.RWMutex
	conns    map[string]*streamConn
	broker   messaging.Client
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewStreamHub creates a stream hub. broker may be nil.
func NewStreamHub(broker messaging.Client, logger *logging.Logger) *StreamHub {
	return &StreamHub{
		conns:  make(map[string]*streamConn),
		broker: broker,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Attach upgrades the request to a websocket and registers it for the
// subscription, replacing any previous connection.
func (h *StreamHub) Attach(w http.ResponseWriter, r *http.Request, subscriptionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if old, ok := h.conns[subscriptionID]; ok {
		_ = old.conn.Close()
	}
	h.conns[subscriptionID] = &streamConn{conn: conn}
	h.mu.Unlock()

	// Reader loop detects client close and detaches.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.Detach(subscriptionID)
				return
			}
		}
	}()

	return nil
}

// Detach removes and closes the subscription's connection if present.
func (h *StreamHub) Detach(subscriptionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sc, ok := h.conns[subscriptionID]; ok {
		_ = sc.conn.Close()
		delete(h.conns, subscriptionID)
	}
}

// Push writes the event to the subscription's open connection, dropping it if
// the connection is gone. The broker mirror publish is fire-and-forget.
func (h *StreamHub) Push(ctx context.Context, sub *models.Subscription, event *models.Event) {
	if h.broker != nil {
		if data, err := json.Marshal(event); err == nil {
			_ = h.broker.Publish(ctx, messaging.StreamSubjectPrefix+sub.ID, data)
		}
	}

	h.mu.RLock()
	sc, ok := h.conns[sub.ID]
	h.mu.RUnlock()

	if !ok {
		metrics.Deliveries.WithLabelValues(models.DeliveryStream, "dropped").Inc()
		return
	}

	if err := sc.writeJSON(event); err != nil {
		h.logger.WarnContext(ctx, "stream write failed, detaching",
			logging.SubscriptionID(sub.ID), logging.Error(err))
		h.Detach(sub.ID)
		metrics.Deliveries.WithLabelValues(models.DeliveryStream, "failed").Inc()
		return
	}
	metrics.Deliveries.WithLabelValues(models.DeliveryStream, "ok").Inc()
}
