package delivery

import (
	"sync"

	"github.com/truthlayer-systems/truthfeed/internal/metrics"
	"github.com/truthlayer-systems/truthfeed/internal/models"
)

// PollStore buffers events per poll-mode subscription until the subscriber
// drains them. Buffers are bounded by the subscription's rate limit; when
// full, the oldest events are evicted first.
type PollStore struct {
	mu      sync.Mutex
	buffers map[string][]*models.Event
}

// NewPollStore creates an empty poll buffer store.
func NewPollStore() *PollStore {
	return &PollStore{buffers: make(map[string][]*models.Event)}
}

// Push appends the event to the subscription's buffer, evicting from the
// front when the buffer exceeds the subscription's per-period limit.
func (p *PollStore) Push(sub *models.Subscription, event *models.Event) {
	capacity := sub.RateLimit.MaxPerPeriod
	if capacity <= 0 {
		capacity = 100
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	buf := append(p.buffers[sub.ID], event)
	if len(buf) > capacity {
		buf = buf[len(buf)-capacity:]
	}
	p.buffers[sub.ID] = buf
	metrics.Deliveries.WithLabelValues(models.DeliveryPoll, "ok").Inc()
}

// Drain returns and clears the subscription's buffered events.
func (p *PollStore) Drain(subscriptionID string) []*models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := p.buffers[subscriptionID]
	delete(p.buffers, subscriptionID)
	return buf
}

// Drop discards any buffered events for a deactivated subscription.
func (p *PollStore) Drop(subscriptionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.buffers, subscriptionID)
}
