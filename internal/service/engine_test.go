package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthlayer-systems/truthfeed/internal/hashchain"
	"github.com/truthlayer-systems/truthfeed/internal/integrity"
	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/registry"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

type fakeAnchor struct {
	ref string
	err error
}

func (f *fakeAnchor) Anchor(_ context.Context, _ string) (string, error) {
	return f.ref, f.err
}

func newTestEngine(t *testing.T, anchors *fakeAnchor) (*Engine, repository.Repository) {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	reg := registry.New(repo, registry.Defaults{})
	im := integrity.NewManager(repo)

	var eng *Engine
	if anchors == nil {
		eng = NewEngine(repo, reg, im, nil, nil, EngineConfig{}, logging.Default())
	} else {
		eng = NewEngine(repo, reg, im, anchors, nil, EngineConfig{}, logging.Default())
	}
	return eng, repo
}

func appendReq(eventType string) *models.AppendEventRequest {
	return &models.AppendEventRequest{
		EventType:       eventType,
		ConfidenceScore: 0.9,
		Payload:         map[string]interface{}{"framework": "SOC2", "control": "CC6.1"},
	}
}

func TestAppendEventChainsSequentially(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeAnchor{ref: "anchor-ref"})
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}

	var prev *models.Event
	for i := 1; i <= 3; i++ {
		ev, err := eng.AppendEvent(ctx, key, appendReq(fmt.Sprintf("check-%d", i)))
		require.NoError(t, err)

		assert.Equal(t, int64(i), ev.SequenceNumber)
		assert.NotEmpty(t, ev.IntegrityProof)
		assert.Equal(t, models.AnchorConfirmed, ev.AnchorStatus)
		assert.Equal(t, "anchor-ref", ev.AnchorReference)

		if prev == nil {
			assert.Equal(t, hashchain.GenesisHash, ev.PreviousEventHash)
		} else {
			assert.Equal(t, prev.IntegrityProof, ev.PreviousEventHash)
		}
		prev = ev
	}

	events, err := eng.Events(ctx, key, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
}

func TestAppendEventAnchorUnavailableFallsBackToPending(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeAnchor{err: errors.New("anchoring down")})
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}

	ev, err := eng.AppendEvent(ctx, key, appendReq("check"))
	require.NoError(t, err, "anchoring unavailability must not fail the append")

	assert.Equal(t, models.AnchorPending, ev.AnchorStatus)
	assert.Empty(t, ev.AnchorReference)
}

func TestAppendEventValidation(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedComplianceEvents}

	tests := []struct {
		name string
		req  *models.AppendEventRequest
	}{
		{"nil request", nil},
		{"missing event type", &models.AppendEventRequest{Payload: map[string]interface{}{"a": 1}, ConfidenceScore: 0.5}},
		{"missing payload", &models.AppendEventRequest{EventType: "check", ConfidenceScore: 0.5}},
		{"confidence above range", &models.AppendEventRequest{EventType: "check", Payload: map[string]interface{}{"a": 1}, ConfidenceScore: 1.5}},
		{"confidence below range", &models.AppendEventRequest{EventType: "check", Payload: map[string]interface{}{"a": 1}, ConfidenceScore: -0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.AppendEvent(ctx, key, tt.req)
			assert.Error(t, err)
		})
	}
}

func TestAppendEventUpdatesSubjectChain(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	reg := registry.New(repo, registry.Defaults{})
	im := integrity.NewManager(repo)
	eng := NewEngine(repo, reg, im, nil, nil, EngineConfig{}, logging.Default())
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}

	_, err := eng.AppendEvent(ctx, key, appendReq("check"))
	require.NoError(t, err)

	// The chain update runs asynchronously after the durable append.
	require.Eventually(t, func() bool {
		state, err := im.State(ctx, "org-1")
		return err == nil && state.EntryCount == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestVerifyFeedDetectsTampering(t *testing.T) {
	eng, repo := newTestEngine(t, nil)
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}

	for i := 0; i < 3; i++ {
		_, err := eng.AppendEvent(ctx, key, appendReq("check"))
		require.NoError(t, err)
	}

	ok, err := eng.VerifyFeed(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	feed, err := eng.Feed(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.IntegrityVerified, feed.IntegrityStatus)

	// Remove the chain prefix without a checkpoint; the remaining head no
	// longer links to genesis.
	_, err = repo.DeleteEventsThrough(ctx, feed.ID, 1)
	require.NoError(t, err)

	ok, err = eng.VerifyFeed(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	feed, err = eng.Feed(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.IntegrityDisputed, feed.IntegrityStatus)
}

func TestAppendEventContinuesFromCheckpoint(t *testing.T) {
	eng, repo := newTestEngine(t, nil)
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}

	first, err := eng.AppendEvent(ctx, key, appendReq("check"))
	require.NoError(t, err)

	feed, err := eng.Feed(ctx, key)
	require.NoError(t, err)

	// Simulate archival: the event is pruned, a checkpoint takes its place.
	_, err = repo.DeleteEventsThrough(ctx, feed.ID, first.SequenceNumber)
	require.NoError(t, err)
	require.NoError(t, repo.SaveCheckpoint(ctx, &models.ArchiveCheckpoint{
		ID:             "cp-1",
		FeedID:         feed.ID,
		SequenceNumber: first.SequenceNumber,
		EventHash:      first.IntegrityProof,
		PrunedCount:    1,
		CreatedAt:      time.Now().UTC(),
	}))

	next, err := eng.AppendEvent(ctx, key, appendReq("check"))
	require.NoError(t, err)

	assert.Equal(t, first.SequenceNumber+1, next.SequenceNumber)
	assert.Equal(t, first.IntegrityProof, next.PreviousEventHash)

	ok, err := eng.VerifyFeed(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "chain verifies against the checkpoint genesis")
}

func TestVerifyFeedFullyPrunedBehindCheckpoint(t *testing.T) {
	eng, repo := newTestEngine(t, nil)
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}

	last, err := eng.AppendEvent(ctx, key, appendReq("check"))
	require.NoError(t, err)

	feed, err := eng.Feed(ctx, key)
	require.NoError(t, err)

	// Archive the entire hot log; only the checkpoint remains.
	_, err = repo.DeleteEventsThrough(ctx, feed.ID, last.SequenceNumber)
	require.NoError(t, err)
	require.NoError(t, repo.SaveCheckpoint(ctx, &models.ArchiveCheckpoint{
		ID:             "cp-1",
		FeedID:         feed.ID,
		SequenceNumber: last.SequenceNumber,
		EventHash:      last.IntegrityProof,
		PrunedCount:    1,
		CreatedAt:      time.Now().UTC(),
	}))

	ok, err := eng.VerifyFeed(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	feed, err = eng.Feed(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.IntegrityVerified, feed.IntegrityStatus,
		"checkpointed chain with no hot events is intact, not pending")
}

func TestVerifyFeedEmptyWithoutCheckpointStaysPending(t *testing.T) {
	eng, repo := newTestEngine(t, nil)
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}

	reg := registry.New(repo, registry.Defaults{})
	_, err := reg.Register(ctx, key, "", 0)
	require.NoError(t, err)

	ok, err := eng.VerifyFeed(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	feed, err := eng.Feed(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.IntegrityPending, feed.IntegrityStatus)
}

func TestAppendEventSerializesPerFeed(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}

	const n = 20
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := eng.AppendEvent(ctx, key, appendReq("concurrent"))
			done <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-done)
	}

	events, err := eng.Events(ctx, key, 0, n+1)
	require.NoError(t, err)
	require.Len(t, events, n)

	prev := hashchain.GenesisHash
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.SequenceNumber)
		assert.Equal(t, prev, ev.PreviousEventHash)
		prev = ev.IntegrityProof
	}
}

func TestAppendEventWakesDormantFeed(t *testing.T) {
	eng, repo := newTestEngine(t, nil)
	ctx := context.Background()
	key := models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}

	_, err := eng.AppendEvent(ctx, key, appendReq("check"))
	require.NoError(t, err)

	feed, err := eng.Feed(ctx, key)
	require.NoError(t, err)
	require.NoError(t, repo.SetFeedDormant(ctx, feed.ID, true))

	_, err = eng.AppendEvent(ctx, key, appendReq("check"))
	require.NoError(t, err)

	feed, err = eng.Feed(ctx, key)
	require.NoError(t, err)
	assert.False(t, feed.Dormant)
}
