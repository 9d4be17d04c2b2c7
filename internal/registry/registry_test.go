package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := New(repository.NewInMemoryRepository(), Defaults{})
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}

	first, err := reg.Register(ctx, key, models.FrequencyRealtime, 30)
	require.NoError(t, err)

	second, err := reg.Register(ctx, key, models.FrequencyPeriodic, 7)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.FrequencyRealtime, second.UpdateFrequency, "existing definition wins")
	assert.Equal(t, 30, second.RetentionDays)
}

func TestRegisterAppliesDefaults(t *testing.T) {
	reg := New(repository.NewInMemoryRepository(), Defaults{})

	feed, err := reg.Register(context.Background(), models.FeedKey{FeedType: models.FeedTrustScore}, "", 0)
	require.NoError(t, err)

	assert.Equal(t, models.FrequencyEventDriven, feed.UpdateFrequency)
	assert.Equal(t, 90, feed.RetentionDays)
	assert.Equal(t, models.IntegrityPending, feed.IntegrityStatus)
	assert.False(t, feed.Dormant)
}

func TestRegisterRequiresFeedType(t *testing.T) {
	reg := New(repository.NewInMemoryRepository(), Defaults{})

	_, err := reg.Register(context.Background(), models.FeedKey{SubjectID: "org-1"}, "", 0)
	assert.Error(t, err)
}

func TestLookupUnknownFeed(t *testing.T) {
	reg := New(repository.NewInMemoryRepository(), Defaults{})

	_, err := reg.Lookup(context.Background(), models.FeedKey{FeedType: "nope"})
	assert.ErrorIs(t, err, repository.ErrFeedNotFound)
}

func TestEnsureCreatesOnFirstUse(t *testing.T) {
	reg := New(repository.NewInMemoryRepository(), Defaults{RetentionDays: 14})
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedAuditActivity, SubjectID: "org-2"}

	feed, err := reg.Ensure(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 14, feed.RetentionDays)

	again, err := reg.Ensure(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, feed.ID, again.ID)
}

func TestSubscriberCountFloorsAtZero(t *testing.T) {
	reg := New(repository.NewInMemoryRepository(), Defaults{})
	ctx := context.Background()

	feed, err := reg.Register(ctx, models.FeedKey{FeedType: models.FeedComplianceEvents}, "", 0)
	require.NoError(t, err)

	require.NoError(t, reg.IncrementSubscribers(ctx, feed.ID))
	require.NoError(t, reg.IncrementSubscribers(ctx, feed.ID))
	require.NoError(t, reg.DecrementSubscribers(ctx, feed.ID))
	require.NoError(t, reg.DecrementSubscribers(ctx, feed.ID))
	require.NoError(t, reg.DecrementSubscribers(ctx, feed.ID))

	stored, err := reg.Lookup(ctx, feed.Key())
	require.NoError(t, err)
	assert.Equal(t, 0, stored.SubscriberCount)
}

func TestRegisterCountsPreexistingSubscribers(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	reg := New(repo, Defaults{})
	ctx := context.Background()

	require.NoError(t, repo.CreateSubscription(ctx, &models.Subscription{
		ID:           "sub-global",
		SubscriberID: "watcher-1",
		Feeds:        []models.FeedKey{{FeedType: models.FeedComplianceEvents}},
		DeliveryMode: models.DeliveryPoll,
		Active:       true,
	}))
	require.NoError(t, repo.CreateSubscription(ctx, &models.Subscription{
		ID:           "sub-other-subject",
		SubscriberID: "watcher-2",
		Feeds:        []models.FeedKey{{FeedType: models.FeedComplianceEvents, SubjectID: "org-other"}},
		DeliveryMode: models.DeliveryPoll,
		Active:       true,
	}))
	require.NoError(t, repo.CreateSubscription(ctx, &models.Subscription{
		ID:           "sub-inactive",
		SubscriberID: "watcher-3",
		Feeds:        []models.FeedKey{{FeedType: models.FeedComplianceEvents}},
		DeliveryMode: models.DeliveryPoll,
		Active:       false,
	}))

	feed, err := reg.Register(ctx, models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.SubscriberCount, "only the active global subscription counts")
}

func TestListFeeds(t *testing.T) {
	reg := New(repository.NewInMemoryRepository(), Defaults{})
	ctx := context.Background()

	_, err := reg.Register(ctx, models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}, "", 0)
	require.NoError(t, err)
	_, err = reg.Register(ctx, models.FeedKey{FeedType: models.FeedRegulatoryUpdate}, "", 0)
	require.NoError(t, err)

	feeds, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, feeds, 2)
}
