package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/truthlayer-systems/truthfeed/internal/models"
)

// InMemoryRepository keeps all state in process memory. Used for tests and
// single-node development; the interface contract matches the PostgreSQL
// implementation, including sort order of list results.
type InMemoryRepository struct {
	mu sync.RWMutex

	feeds       map[string]*models.Feed // by ID
	feedsByKey  map[models.FeedKey]*models.Feed
	events      map[string][]*models.Event // by feed ID, sequence order
	eventsByID  map[string]*models.Event
	checkpoints map[string]*models.ArchiveCheckpoint // by feed ID, latest

	chainEntries map[string][]*models.ChainEntry // by subject ID, position order
	chainState   map[string]*models.IntegrityChain

	attestations map[string][]models.Attestation
	validations  map[string][]models.ExpertValidation
	trustScores  map[string]*models.TrustScoreRecord

	subscriptions map[string]*models.Subscription
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		feeds:         make(map[string]*models.Feed),
		feedsByKey:    make(map[models.FeedKey]*models.Feed),
		events:        make(map[string][]*models.Event),
		eventsByID:    make(map[string]*models.Event),
		checkpoints:   make(map[string]*models.ArchiveCheckpoint),
		chainEntries:  make(map[string][]*models.ChainEntry),
		chainState:    make(map[string]*models.IntegrityChain),
		attestations:  make(map[string][]models.Attestation),
		validations:   make(map[string][]models.ExpertValidation),
		trustScores:   make(map[string]*models.TrustScoreRecord),
		subscriptions: make(map[string]*models.Subscription),
	}
}

func (r *InMemoryRepository) CreateFeed(_ context.Context, f *models.Feed) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.feedsByKey[f.Key()]; exists {
		return ErrFeedExists
	}
	cp := *f
	r.feeds[cp.ID] = &cp
	r.feedsByKey[cp.Key()] = &cp
	return nil
}

func (r *InMemoryRepository) GetFeed(_ context.Context, key models.FeedKey) (*models.Feed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, exists := r.feedsByKey[key]
	if !exists {
		return nil, ErrFeedNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *InMemoryRepository) GetFeedByID(_ context.Context, id string) (*models.Feed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, exists := r.feeds[id]
	if !exists {
		return nil, ErrFeedNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *InMemoryRepository) ListFeeds(_ context.Context) ([]*models.Feed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Feed, 0, len(r.feeds))
	for _, f := range r.feeds {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) UpdateFeedAfterAppend(_ context.Context, feedID string, lastSeq int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, exists := r.feeds[feedID]
	if !exists {
		return ErrFeedNotFound
	}
	f.LastSequence = lastSeq
	f.LastEventAt = at
	f.UpdatedAt = at
	f.Dormant = false
	return nil
}

func (r *InMemoryRepository) AdjustSubscriberCount(_ context.Context, feedID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, exists := r.feeds[feedID]
	if !exists {
		return ErrFeedNotFound
	}
	f.SubscriberCount += delta
	if f.SubscriberCount < 0 {
		f.SubscriberCount = 0
	}
	return nil
}

func (r *InMemoryRepository) SetFeedDormant(_ context.Context, feedID string, dormant bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, exists := r.feeds[feedID]
	if !exists {
		return ErrFeedNotFound
	}
	f.Dormant = dormant
	return nil
}

func (r *InMemoryRepository) SetFeedIntegrityStatus(_ context.Context, feedID string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, exists := r.feeds[feedID]
	if !exists {
		return ErrFeedNotFound
	}
	f.IntegrityStatus = status
	return nil
}

func (r *InMemoryRepository) InsertEvent(_ context.Context, e *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *e
	r.events[cp.FeedID] = append(r.events[cp.FeedID], &cp)
	r.eventsByID[cp.ID] = &cp
	return nil
}

func (r *InMemoryRepository) LastEvent(_ context.Context, feedID string) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	evs := r.events[feedID]
	if len(evs) == 0 {
		return nil, ErrEventNotFound
	}
	cp := *evs[len(evs)-1]
	return &cp, nil
}

func (r *InMemoryRepository) ListEvents(_ context.Context, feedID string, sinceSeq int64, limit int) ([]*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Event
	for _, e := range r.events[feedID] {
		if e.SequenceNumber <= sinceSeq {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *InMemoryRepository) ListEventsBetween(_ context.Context, feedID string, from, to time.Time) ([]*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Event
	for _, e := range r.events[feedID] {
		if e.CreatedAt.Before(from) || e.CreatedAt.After(to) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryRepository) ListEventsBefore(_ context.Context, feedID string, cutoff time.Time) ([]*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Event
	for _, e := range r.events[feedID] {
		if !e.CreatedAt.Before(cutoff) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryRepository) DeleteEventsThrough(_ context.Context, feedID string, seq int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	evs := r.events[feedID]
	kept := evs[:0]
	var removed int64
	for _, e := range evs {
		if e.SequenceNumber <= seq {
			delete(r.eventsByID, e.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.events[feedID] = kept
	return removed, nil
}

func (r *InMemoryRepository) ListPendingAnchors(_ context.Context, limit int) ([]*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Event
	for _, evs := range r.events {
		for _, e := range evs {
			if e.AnchorStatus != models.AnchorPending {
				continue
			}
			cp := *e
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (r *InMemoryRepository) SetEventAnchor(_ context.Context, eventID, anchorRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.eventsByID[eventID]
	if !exists {
		return ErrEventNotFound
	}
	e.AnchorReference = anchorRef
	e.AnchorStatus = models.AnchorConfirmed
	return nil
}

func (r *InMemoryRepository) SaveCheckpoint(_ context.Context, cp *models.ArchiveCheckpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *cp
	r.checkpoints[c.FeedID] = &c
	return nil
}

func (r *InMemoryRepository) GetCheckpoint(_ context.Context, feedID string) (*models.ArchiveCheckpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.checkpoints[feedID]
	if !exists {
		return nil, ErrCheckpointNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryRepository) AppendChainEntry(_ context.Context, e *models.ChainEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *e
	r.chainEntries[cp.SubjectID] = append(r.chainEntries[cp.SubjectID], &cp)
	return nil
}

func (r *InMemoryRepository) ConfirmChainEntry(_ context.Context, subjectID, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.chainEntries[subjectID] {
		if e.EventID == eventID {
			e.Confirmed = true
			return nil
		}
	}
	return ErrSubjectNotFound
}

func (r *InMemoryRepository) LastChainEntry(_ context.Context, subjectID string) (*models.ChainEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.chainEntries[subjectID]
	if len(entries) == 0 {
		return nil, ErrSubjectNotFound
	}
	cp := *entries[len(entries)-1]
	return &cp, nil
}

func (r *InMemoryRepository) ListChainEntries(_ context.Context, subjectID string) ([]*models.ChainEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.chainEntries[subjectID]
	out := make([]*models.ChainEntry, 0, len(entries))
	for _, e := range entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryRepository) SaveChainState(_ context.Context, c *models.IntegrityChain) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	r.chainState[cp.SubjectID] = &cp
	return nil
}

func (r *InMemoryRepository) GetChainState(_ context.Context, subjectID string) (*models.IntegrityChain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.chainState[subjectID]
	if !exists {
		return nil, ErrSubjectNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryRepository) SetChainStatus(_ context.Context, subjectID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.chainState[subjectID]
	if !exists {
		c = &models.IntegrityChain{SubjectID: subjectID}
		r.chainState[subjectID] = c
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) InsertAttestation(_ context.Context, a *models.Attestation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attestations[a.SubjectID] = append(r.attestations[a.SubjectID], *a)
	return nil
}

func (r *InMemoryRepository) InsertValidation(_ context.Context, v *models.ExpertValidation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.validations[v.SubjectID] = append(r.validations[v.SubjectID], *v)
	return nil
}

func (r *InMemoryRepository) ListAttestations(_ context.Context, subjectID string) ([]models.Attestation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]models.Attestation(nil), r.attestations[subjectID]...), nil
}

func (r *InMemoryRepository) ListValidations(_ context.Context, subjectID string) ([]models.ExpertValidation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]models.ExpertValidation(nil), r.validations[subjectID]...), nil
}

func (r *InMemoryRepository) SaveTrustScore(_ context.Context, rec *models.TrustScoreRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rec
	r.trustScores[cp.SubjectID] = &cp
	return nil
}

func (r *InMemoryRepository) GetTrustScore(_ context.Context, subjectID string) (*models.TrustScoreRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.trustScores[subjectID]
	if !exists {
		return nil, ErrSubjectNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *InMemoryRepository) CreateSubscription(_ context.Context, s *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *s
	r.subscriptions[cp.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetSubscription(_ context.Context, id string) (*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.subscriptions[id]
	if !exists {
		return nil, ErrSubscriptionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *InMemoryRepository) DeactivateSubscription(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.subscriptions[id]
	if !exists {
		return ErrSubscriptionNotFound
	}
	s.Active = false
	s.DeactivatedAt = &at
	return nil
}

func (r *InMemoryRepository) ListActiveSubscriptions(_ context.Context) ([]*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Subscription
	for _, s := range r.subscriptions {
		if !s.Active {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) Close() error {
	return nil
}
