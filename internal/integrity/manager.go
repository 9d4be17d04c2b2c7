// Package integrity maintains per-subject temporal integrity chains: one
// hash-linked entry per event touching the subject across any feed, a rolling
// Merkle root over all entries, and an integrity score.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/truthlayer-systems/truthfeed/internal/hashchain"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

// ErrChainCorrupted means a subject's chain has a missing or mismatched
// previous hash. The chain is marked disputed and requires manual
// reconciliation; it is never auto-healed.
var ErrChainCorrupted = errors.New("integrity chain corrupted")

// Manager serializes chain updates per subject. A subject's chain spans
// multiple feed types, so serialization is per subject, not per feed.
type Manager struct {
	repo repository.Repository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates an integrity chain manager.
func NewManager(repo repository.Repository) *Manager {
	return &Manager{
		repo:  repo,
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) subjectLock(subjectID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[subjectID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[subjectID] = l
	}
	return l
}

// Update appends a chain entry for the event and recomputes the subject's
// Merkle root and integrity score. No partial updates: on a broken chain the
// entry is rejected and the chain is marked disputed.
func (m *Manager) Update(ctx context.Context, subjectID string, event *models.Event) (*models.IntegrityUpdateResult, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required")
	}

	l := m.subjectLock(subjectID)
	l.Lock()
	defer l.Unlock()

	prevHash := hashchain.GenesisHash
	var position int64 = 1

	last, err := m.repo.LastChainEntry(ctx, subjectID)
	switch {
	case err == nil:
		if last.Hash == "" {
			if serr := m.repo.SetChainStatus(ctx, subjectID, models.IntegrityDisputed); serr != nil {
				return nil, fmt.Errorf("mark chain disputed: %w", serr)
			}
			return nil, ErrChainCorrupted
		}
		prevHash = last.Hash
		position = last.Position + 1
	case errors.Is(err, repository.ErrSubjectNotFound):
		// First entry for this subject.
	default:
		return nil, fmt.Errorf("read last chain entry for %s: %w", subjectID, err)
	}

	entry := &models.ChainEntry{
		ID:           uuid.New().String(),
		SubjectID:    subjectID,
		EventID:      event.ID,
		FeedType:     event.FeedType,
		Position:     position,
		PreviousHash: prevHash,
		Hash:         hashchain.ChainHash(event.IntegrityProof, prevHash),
		Confirmed:    event.AnchorStatus == models.AnchorConfirmed,
		CreatedAt:    time.Now().UTC(),
	}

	if err := m.repo.AppendChainEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("append chain entry for %s: %w", subjectID, err)
	}

	return m.recompute(ctx, subjectID, entry)
}

// recompute rebuilds the Merkle root and integrity score over the full entry
// list. O(n) per append; acceptable at current scale, the documented limit.
func (m *Manager) recompute(ctx context.Context, subjectID string, entry *models.ChainEntry) (*models.IntegrityUpdateResult, error) {
	entries, err := m.repo.ListChainEntries(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list chain entries for %s: %w", subjectID, err)
	}

	hashes := make([]string, 0, len(entries))
	var confirmed int64
	prev := hashchain.GenesisHash
	for _, e := range entries {
		if e.PreviousHash != prev {
			if serr := m.repo.SetChainStatus(ctx, subjectID, models.IntegrityDisputed); serr != nil {
				return nil, fmt.Errorf("mark chain disputed: %w", serr)
			}
			return nil, ErrChainCorrupted
		}
		prev = e.Hash
		hashes = append(hashes, e.Hash)
		if e.Confirmed {
			confirmed++
		}
	}

	total := int64(len(entries))
	score := 0.0
	if total > 0 {
		score = float64(confirmed) / float64(total)
	}

	status := models.IntegrityPending
	if total > 0 && confirmed == total {
		status = models.IntegrityVerified
	}

	state := &models.IntegrityChain{
		SubjectID:      subjectID,
		EntryCount:     total,
		ConfirmedCount: confirmed,
		MerkleRoot:     hashchain.MerkleRoot(hashes),
		IntegrityScore: score,
		Status:         status,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := m.repo.SaveChainState(ctx, state); err != nil {
		return nil, fmt.Errorf("save chain state for %s: %w", subjectID, err)
	}

	return &models.IntegrityUpdateResult{
		Entry:          entry,
		MerkleRoot:     state.MerkleRoot,
		IntegrityScore: state.IntegrityScore,
		Status:         state.Status,
	}, nil
}

// Confirm marks the chain entry for an event as confirmed (its anchor landed)
// and refreshes the subject's rolled-up state.
func (m *Manager) Confirm(ctx context.Context, subjectID, eventID string) error {
	l := m.subjectLock(subjectID)
	l.Lock()
	defer l.Unlock()

	if err := m.repo.ConfirmChainEntry(ctx, subjectID, eventID); err != nil {
		return fmt.Errorf("confirm chain entry for %s: %w", subjectID, err)
	}

	_, err := m.recompute(ctx, subjectID, nil)
	return err
}

// State returns the subject's current rolled-up chain state.
func (m *Manager) State(ctx context.Context, subjectID string) (*models.IntegrityChain, error) {
	return m.repo.GetChainState(ctx, subjectID)
}

// Verify re-walks the subject's full chain and reports whether every entry
// links to its predecessor and the stored Merkle root matches.
func (m *Manager) Verify(ctx context.Context, subjectID string) (bool, error) {
	entries, err := m.repo.ListChainEntries(ctx, subjectID)
	if err != nil {
		return false, fmt.Errorf("list chain entries for %s: %w", subjectID, err)
	}
	if len(entries) == 0 {
		return true, nil
	}

	hashes := make([]string, 0, len(entries))
	prev := hashchain.GenesisHash
	for _, e := range entries {
		if e.PreviousHash != prev {
			return false, nil
		}
		prev = e.Hash
		hashes = append(hashes, e.Hash)
	}

	state, err := m.repo.GetChainState(ctx, subjectID)
	if err != nil {
		return false, fmt.Errorf("get chain state for %s: %w", subjectID, err)
	}
	return state.MerkleRoot == hashchain.MerkleRoot(hashes), nil
}
