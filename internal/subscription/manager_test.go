package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/registry"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

func newTestManager(t *testing.T) (*Manager, *registry.Registry, repository.Repository) {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	reg := registry.New(repo, registry.Defaults{})
	return NewManager(repo, reg), reg, repo
}

func TestSubscribeValidation(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *models.CreateSubscriptionRequest
	}{
		{
			name: "missing subscriber",
			req: &models.CreateSubscriptionRequest{
				Feeds:        []models.FeedKey{{FeedType: models.FeedComplianceEvents}},
				DeliveryMode: models.DeliveryPoll,
			},
		},
		{
			name: "empty feed set",
			req: &models.CreateSubscriptionRequest{
				SubscriberID: "svc-1",
				DeliveryMode: models.DeliveryPoll,
			},
		},
		{
			name: "unknown delivery mode",
			req: &models.CreateSubscriptionRequest{
				SubscriberID: "svc-1",
				Feeds:        []models.FeedKey{{FeedType: models.FeedComplianceEvents}},
				DeliveryMode: "carrier-pigeon",
			},
		},
		{
			name: "callback without endpoint",
			req: &models.CreateSubscriptionRequest{
				SubscriberID: "svc-1",
				Feeds:        []models.FeedKey{{FeedType: models.FeedComplianceEvents}},
				DeliveryMode: models.DeliveryCallback,
			},
		},
		{
			name: "malformed filter",
			req: &models.CreateSubscriptionRequest{
				SubscriberID: "svc-1",
				Feeds:        []models.FeedKey{{FeedType: models.FeedComplianceEvents}},
				DeliveryMode: models.DeliveryPoll,
				Filters:      []models.Filter{{Field: "x", Operator: "bogus", Value: 1}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Subscribe(ctx, tt.req)
			assert.Error(t, err)
		})
	}
}

func TestSubscribeDefaultsRateLimit(t *testing.T) {
	m, _, _ := newTestManager(t)

	sub, err := m.Subscribe(context.Background(), &models.CreateSubscriptionRequest{
		SubscriberID: "svc-1",
		Feeds:        []models.FeedKey{{FeedType: models.FeedComplianceEvents}},
		DeliveryMode: models.DeliveryPoll,
	})
	require.NoError(t, err)

	assert.True(t, sub.Active)
	assert.Equal(t, 100, sub.RateLimit.MaxPerPeriod)
	assert.Equal(t, time.Minute, sub.RateLimit.Period)
}

func TestSubscribeBumpsSubscriberCount(t *testing.T) {
	m, reg, _ := newTestManager(t)
	ctx := context.Background()

	key := models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}
	feed, err := reg.Register(ctx, key, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, feed.SubscriberCount)

	_, err = m.Subscribe(ctx, &models.CreateSubscriptionRequest{
		SubscriberID: "svc-1",
		Feeds:        []models.FeedKey{key},
		DeliveryMode: models.DeliveryPoll,
	})
	require.NoError(t, err)

	feed, err = reg.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.SubscriberCount)
}

func TestUnsubscribeDeactivatesNotDeletes(t *testing.T) {
	m, _, repo := newTestManager(t)
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, &models.CreateSubscriptionRequest{
		SubscriberID: "svc-1",
		Feeds:        []models.FeedKey{{FeedType: models.FeedComplianceEvents}},
		DeliveryMode: models.DeliveryStream,
	})
	require.NoError(t, err)

	require.NoError(t, m.Unsubscribe(ctx, sub.ID))

	stored, err := repo.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.NotNil(t, stored.DeactivatedAt)

	// Second unsubscribe is a no-op, not an error.
	assert.NoError(t, m.Unsubscribe(ctx, sub.ID))
}

func TestUnsubscribeUnknown(t *testing.T) {
	m, _, _ := newTestManager(t)
	err := m.Unsubscribe(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrSubscriptionNotFound)
}

func TestMatchFiltersAndFeedSet(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	matching, err := m.Subscribe(ctx, &models.CreateSubscriptionRequest{
		SubscriberID: "svc-match",
		Feeds:        []models.FeedKey{{FeedType: models.FeedComplianceEvents}},
		DeliveryMode: models.DeliveryPoll,
		Filters: []models.Filter{
			{Field: "framework", Operator: models.OpEquals, Value: "GDPR"},
		},
	})
	require.NoError(t, err)

	_, err = m.Subscribe(ctx, &models.CreateSubscriptionRequest{
		SubscriberID: "svc-other-feed",
		Feeds:        []models.FeedKey{{FeedType: models.FeedAuditActivity}},
		DeliveryMode: models.DeliveryPoll,
	})
	require.NoError(t, err)

	filtered, err := m.Subscribe(ctx, &models.CreateSubscriptionRequest{
		SubscriberID: "svc-filtered-out",
		Feeds:        []models.FeedKey{{FeedType: models.FeedComplianceEvents}},
		DeliveryMode: models.DeliveryPoll,
		Filters: []models.Filter{
			{Field: "framework", Operator: models.OpEquals, Value: "HIPAA"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, m.Unsubscribe(ctx, filtered.ID))

	event := &models.Event{
		FeedType:  models.FeedComplianceEvents,
		SubjectID: "org-1",
		EventType: "control_failed",
		Payload:   map[string]interface{}{"framework": "GDPR"},
	}

	matched, err := m.Match(ctx, event)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, matching.ID, matched[0].ID)
}
