// Package subscription manages standing requests to receive feed events and
// matches appended events against the active subscription set.
package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/registry"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

// Default rate limit applied when a subscription request leaves it unset.
const (
	defaultMaxPerPeriod = 100
	defaultPeriod       = time.Minute
)

// Manager creates, deactivates and matches subscriptions.
type Manager struct {
	repo     repository.Repository
	registry *registry.Registry
}

// NewManager creates a subscription manager.
func NewManager(repo repository.Repository, reg *registry.Registry) *Manager {
	return &Manager{repo: repo, registry: reg}
}

// Subscribe validates and stores a new subscription and bumps the subscriber
// count on every referenced feed that already exists. Malformed filters are
// rejected here, never at match time.
func (m *Manager) Subscribe(ctx context.Context, req *models.CreateSubscriptionRequest) (*models.Subscription, error) {
	if req.SubscriberID == "" {
		return nil, fmt.Errorf("subscriber id is required")
	}
	if len(req.Feeds) == 0 {
		return nil, fmt.Errorf("subscription requires a non-empty feed set")
	}
	switch req.DeliveryMode {
	case models.DeliveryCallback:
		if req.Endpoint == "" {
			return nil, fmt.Errorf("callback delivery requires an endpoint")
		}
	case models.DeliveryStream, models.DeliveryPoll:
	default:
		return nil, fmt.Errorf("unknown delivery mode %q", req.DeliveryMode)
	}
	if err := ValidateFilters(req.Filters); err != nil {
		return nil, err
	}

	limit := models.RateLimit{MaxPerPeriod: req.MaxPerPeriod, Period: time.Duration(req.PeriodSecs) * time.Second}
	if limit.MaxPerPeriod <= 0 {
		limit.MaxPerPeriod = defaultMaxPerPeriod
	}
	if limit.Period <= 0 {
		limit.Period = defaultPeriod
	}

	sub := &models.Subscription{
		ID:           uuid.New().String(),
		SubscriberID: req.SubscriberID,
		Feeds:        req.Feeds,
		Filters:      req.Filters,
		DeliveryMode: req.DeliveryMode,
		Endpoint:     req.Endpoint,
		RateLimit:    limit,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := m.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	for _, key := range req.Feeds {
		feed, err := m.registry.Lookup(ctx, key)
		if err != nil {
			continue // feed may not exist yet; count attaches on registration
		}
		if err := m.registry.IncrementSubscribers(ctx, feed.ID); err != nil {
			return nil, fmt.Errorf("increment subscribers on %s: %w", key, err)
		}
	}

	return sub, nil
}

// Unsubscribe deactivates a subscription. The record is kept for audit
// continuity; in-flight deliveries may be cancelled, enqueued ones drain.
func (m *Manager) Unsubscribe(ctx context.Context, id string) error {
	sub, err := m.repo.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	if !sub.Active {
		return nil
	}

	if err := m.repo.DeactivateSubscription(ctx, id, time.Now().UTC()); err != nil {
		return err
	}

	for _, key := range sub.Feeds {
		feed, err := m.registry.Lookup(ctx, key)
		if err != nil {
			continue
		}
		if err := m.registry.DecrementSubscribers(ctx, feed.ID); err != nil {
			return fmt.Errorf("decrement subscribers on %s: %w", key, err)
		}
	}
	return nil
}

// Get returns a subscription by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.Subscription, error) {
	return m.repo.GetSubscription(ctx, id)
}

// Match returns the active subscriptions whose feed set includes the event's
// feed and whose filters all evaluate true against the event.
func (m *Manager) Match(ctx context.Context, event *models.Event) ([]*models.Subscription, error) {
	subs, err := m.repo.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}

	key := models.FeedKey{FeedType: event.FeedType, SubjectID: event.SubjectID}
	var matched []*models.Subscription
	for _, sub := range subs {
		if !sub.WantsFeed(key) {
			continue
		}
		if !MatchesEvent(sub.Filters, event) {
			continue
		}
		matched = append(matched, sub)
	}
	return matched, nil
}
