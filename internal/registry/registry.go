// Package registry holds feed definitions and resolves (type, subject) pairs.
// Registration is idempotent: registering an existing key returns the stored
// feed rather than creating a duplicate.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

// Defaults applied when a feed is created implicitly on first append.
type Defaults struct {
	UpdateFrequency string
	RetentionDays   int
}

// Registry looks up and registers feeds.
type Registry struct {
	repo     repository.Repository
	defaults Defaults
}

// New creates a feed registry backed by the given repository.
func New(repo repository.Repository, defaults Defaults) *Registry {
	if defaults.UpdateFrequency == "" {
		defaults.UpdateFrequency = models.FrequencyEventDriven
	}
	if defaults.RetentionDays <= 0 {
		defaults.RetentionDays = 90
	}
	return &Registry{repo: repo, defaults: defaults}
}

// Register creates a feed for the given key, or returns the existing one.
// Zero frequency/retention fall back to the registry defaults.
func (r *Registry) Register(ctx context.Context, key models.FeedKey, frequency string, retentionDays int) (*models.Feed, error) {
	if key.FeedType == "" {
		return nil, fmt.Errorf("feed type is required")
	}

	if existing, err := r.repo.GetFeed(ctx, key); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrFeedNotFound) {
		return nil, fmt.Errorf("lookup feed %s: %w", key, err)
	}

	if frequency == "" {
		frequency = r.defaults.UpdateFrequency
	}
	if retentionDays <= 0 {
		retentionDays = r.defaults.RetentionDays
	}

	// Subscriptions may predate the feed; start the count from the ones
	// already wanting this key.
	subscriberCount, err := r.countSubscribers(ctx, key)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	feed := &models.Feed{
		ID:              uuid.New().String(),
		FeedType:        key.FeedType,
		SubjectID:       key.SubjectID,
		UpdateFrequency: frequency,
		RetentionDays:   retentionDays,
		SubscriberCount: subscriberCount,
		IntegrityStatus: models.IntegrityPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = r.repo.CreateFeed(ctx, feed)
	if errors.Is(err, repository.ErrFeedExists) {
		// Lost a concurrent registration race; the stored feed wins.
		return r.repo.GetFeed(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("create feed %s: %w", key, err)
	}
	return feed, nil
}

// countSubscribers counts active subscriptions whose feed set covers the key.
func (r *Registry) countSubscribers(ctx context.Context, key models.FeedKey) (int, error) {
	subs, err := r.repo.ListActiveSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("count subscribers for %s: %w", key, err)
	}
	count := 0
	for _, sub := range subs {
		if sub.WantsFeed(key) {
			count++
		}
	}
	return count, nil
}

// Lookup resolves a feed by key. Returns repository.ErrFeedNotFound for
// unknown keys.
func (r *Registry) Lookup(ctx context.Context, key models.FeedKey) (*models.Feed, error) {
	return r.repo.GetFeed(ctx, key)
}

// Ensure resolves a feed, creating it with defaults on first use.
func (r *Registry) Ensure(ctx context.Context, key models.FeedKey) (*models.Feed, error) {
	feed, err := r.repo.GetFeed(ctx, key)
	if errors.Is(err, repository.ErrFeedNotFound) {
		return r.Register(ctx, key, "", 0)
	}
	return feed, err
}

// IncrementSubscribers bumps the feed's subscriber count. Atomic relative to
// concurrent subscribe/unsubscribe calls on the same feed.
func (r *Registry) IncrementSubscribers(ctx context.Context, feedID string) error {
	return r.repo.AdjustSubscriberCount(ctx, feedID, 1)
}

// DecrementSubscribers lowers the feed's subscriber count, floored at zero.
func (r *Registry) DecrementSubscribers(ctx context.Context, feedID string) error {
	return r.repo.AdjustSubscriberCount(ctx, feedID, -1)
}

// List returns all registered feeds.
func (r *Registry) List(ctx context.Context) ([]*models.Feed, error) {
	return r.repo.ListFeeds(ctx)
}
