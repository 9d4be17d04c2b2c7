package models

import "time"

// Delivery modes.
const (
	DeliveryCallback = "callback"
	DeliveryStream   = "stream"
	DeliveryPoll     = "poll"
)

// Filter operators.
const (
	OpEquals      = "equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
)

// Filter is a single predicate evaluated against an appended event. All
// filters on a subscription must match (logical AND) for delivery.
type Filter struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// RateLimit caps deliveries per subscription. Deliveries beyond MaxPerPeriod
// within Period are deferred to the next period, never dropped.
type RateLimit struct {
	MaxPerPeriod int           `json:"max_per_period"`
	Period       time.Duration `json:"period"`
}

// Subscription is a standing request to receive events matching a feed set
// and filter predicates. Subscriptions are deactivated on unsubscribe but
// never physically deleted, for audit continuity.
type Subscription struct {
	ID            string     `json:"id"`
	SubscriberID  string     `json:"subscriber_id"`
	Feeds         []FeedKey  `json:"feeds"`
	Filters       []Filter   `json:"filters,omitempty"`
	DeliveryMode  string     `json:"delivery_mode"`
	Endpoint      string     `json:"endpoint,omitempty"`
	RateLimit     RateLimit  `json:"rate_limit"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// WantsFeed reports whether the subscription's feed set includes the given
// feed. A subscription to a global feed key (no subject) also matches
// per-subject feeds of the same type.
func (s *Subscription) WantsFeed(key FeedKey) bool {
	for _, f := range s.Feeds {
		if f.FeedType != key.FeedType {
			continue
		}
		if f.SubjectID == "" || f.SubjectID == key.SubjectID {
			return true
		}
	}
	return false
}
