package archive

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"
	"github.com/truthlayer-systems/truthfeed/internal/hashchain"
	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/registry"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

type fakeColdStore struct {
	stored []*models.Event
	err    error
}

func (f *fakeColdStore) Store(_ context.Context, events []*models.Event) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, events...)
	return nil
}

type fakeAnchor struct {
	ref string
	err error
}

func (f *fakeAnchor) Anchor(_ context.Context, _ string) (string, error) {
	return f.ref, f.err
}

// seedChain inserts a hash-linked event sequence with the given ages.
func seedChain(t *testing.T, repo repository.Repository, feed *models.Feed, ages []time.Duration) []*models.Event {
	t.Helper()
	now := time.Now().UTC()
	prev := hashchain.GenesisHash
	events := make([]*models.Event, 0, len(ages))
	for i, age := range ages {
		proof, err := hashchain.LinkHash(map[string]interface{}{"seq": i + 1})
		require.NoError(t, err)
		ev := &models.Event{
			ID:                uuid.New().String(),
			FeedID:            feed.ID,
			FeedType:          feed.FeedType,
			SubjectID:         feed.SubjectID,
			EventType:         "control_passed",
			Payload:           map[string]interface{}{},
			SequenceNumber:    int64(i + 1),
			PreviousEventHash: prev,
			IntegrityProof:    proof,
			AnchorStatus:      models.AnchorConfirmed,
			CreatedAt:         now.Add(-age),
		}
		require.NoError(t, repo.InsertEvent(context.Background(), ev))
		prev = proof
		events = append(events, ev)
	}
	return events
}

func TestRunPrunesExpiredPrefix(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	reg := registry.New(repo, registry.Defaults{})
	feed, err := reg.Register(context.Background(), models.FeedKey{
		FeedType: models.FeedComplianceEvents, SubjectID: "org-1",
	}, "", 7)
	require.NoError(t, err)

	// Two expired events, one fresh.
	events := seedChain(t, repo, feed, []time.Duration{
		10 * 24 * time.Hour,
		8 * 24 * time.Hour,
		time.Hour,
	})

	cold := &fakeColdStore{}
	a := New(repo, cold, &fakeAnchor{ref: "cp-anchor"}, Config{}, logging.Default())
	a.Run(context.Background())

	require.Len(t, cold.stored, 2, "expired events copied to cold storage")

	cp, err := repo.GetCheckpoint(context.Background(), feed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp.SequenceNumber)
	assert.Equal(t, events[1].IntegrityProof, cp.EventHash)
	assert.Equal(t, int64(2), cp.PrunedCount)
	assert.Equal(t, "cp-anchor", cp.AnchorReference)

	remaining, err := repo.ListEvents(context.Background(), feed.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, int64(3), remaining[0].SequenceNumber)
	assert.Equal(t, cp.EventHash, remaining[0].PreviousEventHash,
		"remaining head links to the checkpoint genesis")
}

func TestRunAccumulatesPrunedCount(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	reg := registry.New(repo, registry.Defaults{})
	feed, err := reg.Register(context.Background(), models.FeedKey{
		FeedType: models.FeedComplianceEvents, SubjectID: "org-1",
	}, "", 7)
	require.NoError(t, err)

	require.NoError(t, repo.SaveCheckpoint(context.Background(), &models.ArchiveCheckpoint{
		ID: "cp-0", FeedID: feed.ID, SequenceNumber: 0, EventHash: hashchain.GenesisHash,
		PrunedCount: 5, CreatedAt: time.Now().UTC(),
	}))
	seedChain(t, repo, feed, []time.Duration{10 * 24 * time.Hour})

	a := New(repo, &fakeColdStore{}, nil, Config{}, logging.Default())
	a.Run(context.Background())

	cp, err := repo.GetCheckpoint(context.Background(), feed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), cp.PrunedCount)
}

func TestRunColdStoreFailureKeepsHotCopy(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	reg := registry.New(repo, registry.Defaults{})
	feed, err := reg.Register(context.Background(), models.FeedKey{
		FeedType: models.FeedComplianceEvents, SubjectID: "org-1",
	}, "", 7)
	require.NoError(t, err)
	seedChain(t, repo, feed, []time.Duration{10 * 24 * time.Hour})

	a := New(repo, &fakeColdStore{err: errors.New("index unavailable")}, nil, Config{}, logging.Default())
	a.Run(context.Background())

	remaining, err := repo.ListEvents(context.Background(), feed.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1, "nothing deleted when the cold copy failed")

	_, err = repo.GetCheckpoint(context.Background(), feed.ID)
	assert.ErrorIs(t, err, repository.ErrCheckpointNotFound)
}

func TestRunAnchorFailureStillCheckpoints(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	reg := registry.New(repo, registry.Defaults{})
	feed, err := reg.Register(context.Background(), models.FeedKey{
		FeedType: models.FeedComplianceEvents, SubjectID: "org-1",
	}, "", 7)
	require.NoError(t, err)
	seedChain(t, repo, feed, []time.Duration{10 * 24 * time.Hour})

	a := New(repo, &fakeColdStore{}, &fakeAnchor{err: errors.New("anchoring down")}, Config{}, logging.Default())
	a.Run(context.Background())

	cp, err := repo.GetCheckpoint(context.Background(), feed.ID)
	require.NoError(t, err)
	assert.Empty(t, cp.AnchorReference)
}

func TestRunMarksIdleFeedsDormant(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	reg := registry.New(repo, registry.Defaults{})
	ctx := context.Background()

	idle, err := reg.Register(ctx, models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-idle"}, "", 0)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateFeedAfterAppend(ctx, idle.ID, 1, time.Now().UTC().Add(-60*24*time.Hour)))

	active, err := reg.Register(ctx, models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-active"}, "", 0)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateFeedAfterAppend(ctx, active.ID, 1, time.Now().UTC()))

	a := New(repo, nil, nil, Config{IdleWindow: 30 * 24 * time.Hour}, logging.Default())
	a.Run(ctx)

	stored, err := repo.GetFeedByID(ctx, idle.ID)
	require.NoError(t, err)
	assert.True(t, stored.Dormant)

	stored, err = repo.GetFeedByID(ctx, active.ID)
	require.NoError(t, err)
	assert.False(t, stored.Dormant)
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	a := New(repository.NewInMemoryRepository(), nil, nil, Config{ManifestDir: dir}, logging.Default())

	feed := &models.Feed{ID: "feed-1", FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}
	cp := &models.ArchiveCheckpoint{
		ID: "cp-1", FeedID: "feed-1", SequenceNumber: 42,
		EventHash: "abcd", PrunedCount: 42, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, a.writeManifest(feed, cp))

	path := fmt.Sprintf("%s/feed-1-42.yaml", dir)
	assert.FileExists(t, path)
}
