package delivery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/models"
)

func attachedConn(t *testing.T, hub *StreamHub, subscriptionID string) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, hub.Attach(w, r, subscriptionID))
	}))
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPushConcurrentWriters(t *testing.T) {
	hub := NewStreamHub(nil, logging.Default())
	sub := &models.Subscription{ID: "sub-1", DeliveryMode: models.DeliveryStream}
	conn := attachedConn(t, hub, sub.ID)

	const writers, perWriter = 8, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				hub.Push(context.Background(), sub, &models.Event{
					ID: fmt.Sprintf("ev-%d-%d", w, i),
				})
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	seen := make(map[string]bool)
	for i := 0; i < writers*perWriter; i++ {
		var ev models.Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.False(t, seen[ev.ID], "event delivered twice: %s", ev.ID)
		seen[ev.ID] = true
	}
	assert.Len(t, seen, writers*perWriter)
}

func TestPushWithoutConnectionDrops(t *testing.T) {
	hub := NewStreamHub(nil, logging.Default())
	sub := &models.Subscription{ID: "sub-gone", DeliveryMode: models.DeliveryStream}

	// No connection attached; must not panic or block.
	hub.Push(context.Background(), sub, &models.Event{ID: "ev-1"})
}

func TestDetachClosesConnection(t *testing.T) {
	hub := NewStreamHub(nil, logging.Default())
	sub := &models.Subscription{ID: "sub-2", DeliveryMode: models.DeliveryStream}
	conn := attachedConn(t, hub, sub.ID)

	hub.Detach(sub.ID)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server side closed the connection")
}
