package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthlayer-systems/truthfeed/internal/hashchain"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

func testEvent(id, subject, proof, status string) *models.Event {
	return &models.Event{
		ID:             id,
		FeedType:       models.FeedComplianceEvents,
		SubjectID:      subject,
		IntegrityProof: proof,
		AnchorStatus:   status,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestUpdateFirstEntryLinksToGenesis(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	m := NewManager(repo)
	ctx := context.Background()

	result, err := m.Update(ctx, "org-1", testEvent("ev-1", "org-1", "aaaa", models.AnchorConfirmed))
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Entry.Position)
	assert.Equal(t, hashchain.GenesisHash, result.Entry.PreviousHash)
	assert.Equal(t, hashchain.ChainHash("aaaa", hashchain.GenesisHash), result.Entry.Hash)
	assert.Equal(t, 1.0, result.IntegrityScore)
	assert.Equal(t, models.IntegrityVerified, result.Status)
}

func TestUpdateChainsAcrossFeeds(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	m := NewManager(repo)
	ctx := context.Background()

	first, err := m.Update(ctx, "org-1", testEvent("ev-1", "org-1", "aaaa", models.AnchorConfirmed))
	require.NoError(t, err)

	second := testEvent("ev-2", "org-1", "bbbb", models.AnchorConfirmed)
	second.FeedType = models.FeedAuditActivity
	result, err := m.Update(ctx, "org-1", second)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.Entry.Position)
	assert.Equal(t, first.Entry.Hash, result.Entry.PreviousHash)
	assert.NotEqual(t, first.MerkleRoot, result.MerkleRoot)
}

func TestUpdatePendingAnchorLowersScore(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	m := NewManager(repo)
	ctx := context.Background()

	_, err := m.Update(ctx, "org-1", testEvent("ev-1", "org-1", "aaaa", models.AnchorConfirmed))
	require.NoError(t, err)
	result, err := m.Update(ctx, "org-1", testEvent("ev-2", "org-1", "bbbb", models.AnchorPending))
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.IntegrityScore, 1e-9)
	assert.Equal(t, models.IntegrityPending, result.Status)
}

func TestConfirmRestoresVerifiedStatus(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	m := NewManager(repo)
	ctx := context.Background()

	_, err := m.Update(ctx, "org-1", testEvent("ev-1", "org-1", "aaaa", models.AnchorPending))
	require.NoError(t, err)

	require.NoError(t, m.Confirm(ctx, "org-1", "ev-1"))

	state, err := m.State(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.IntegrityVerified, state.Status)
	assert.Equal(t, 1.0, state.IntegrityScore)
	assert.Equal(t, state.EntryCount, state.ConfirmedCount)
}

func TestUpdateDetectsCorruption(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	m := NewManager(repo)
	ctx := context.Background()

	_, err := m.Update(ctx, "org-1", testEvent("ev-1", "org-1", "aaaa", models.AnchorConfirmed))
	require.NoError(t, err)

	// Inject a tampered entry behind the manager's back.
	require.NoError(t, repo.AppendChainEntry(ctx, &models.ChainEntry{
		ID:           "tampered",
		SubjectID:    "org-1",
		EventID:      "ev-x",
		Position:     2,
		PreviousHash: "not-the-real-previous-hash",
		Hash:         "cccc",
		Confirmed:    true,
		CreatedAt:    time.Now().UTC(),
	}))

	_, err = m.Update(ctx, "org-1", testEvent("ev-3", "org-1", "dddd", models.AnchorConfirmed))
	assert.ErrorIs(t, err, ErrChainCorrupted)

	state, err := m.State(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.IntegrityDisputed, state.Status)
}

func TestVerifyWalksFullChain(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	m := NewManager(repo)
	ctx := context.Background()

	for i, proof := range []string{"aaaa", "bbbb", "cccc"} {
		_, err := m.Update(ctx, "org-1", testEvent(
			string(rune('a'+i)), "org-1", proof, models.AnchorConfirmed))
		require.NoError(t, err)
	}

	ok, err := m.Verify(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyEmptyChain(t *testing.T) {
	m := NewManager(repository.NewInMemoryRepository())

	ok, err := m.Verify(context.Background(), "unknown")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateRequiresSubject(t *testing.T) {
	m := NewManager(repository.NewInMemoryRepository())

	_, err := m.Update(context.Background(), "", testEvent("ev-1", "", "aaaa", models.AnchorConfirmed))
	assert.Error(t, err)
}
