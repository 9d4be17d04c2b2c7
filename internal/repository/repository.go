package repository

import (
	"context"
	"errors"
	"time"

	"github.com/truthlayer-systems/truthfeed/internal/models"
)

var (
	ErrFeedNotFound         = errors.New("feed not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrCheckpointNotFound   = errors.New("archive checkpoint not found")
	ErrFeedExists           = errors.New("feed already registered")
)

// Repository defines persistence for feeds, events, chains, trust evidence
// and subscriptions. Two implementations exist: PostgreSQL for production and
// an in-memory store for tests and single-node development.
type Repository interface {
	// Feed operations
	CreateFeed(ctx context.Context, f *models.Feed) error
	GetFeed(ctx context.Context, key models.FeedKey) (*models.Feed, error)
	GetFeedByID(ctx context.Context, id string) (*models.Feed, error)
	ListFeeds(ctx context.Context) ([]*models.Feed, error)
	UpdateFeedAfterAppend(ctx context.Context, feedID string, lastSeq int64, at time.Time) error
	AdjustSubscriberCount(ctx context.Context, feedID string, delta int) error
	SetFeedDormant(ctx context.Context, feedID string, dormant bool) error
	SetFeedIntegrityStatus(ctx context.Context, feedID string, status string) error

	// Event log operations
	InsertEvent(ctx context.Context, e *models.Event) error
	LastEvent(ctx context.Context, feedID string) (*models.Event, error)
	ListEvents(ctx context.Context, feedID string, sinceSeq int64, limit int) ([]*models.Event, error)
	ListEventsBetween(ctx context.Context, feedID string, from, to time.Time) ([]*models.Event, error)
	ListEventsBefore(ctx context.Context, feedID string, cutoff time.Time) ([]*models.Event, error)
	DeleteEventsThrough(ctx context.Context, feedID string, seq int64) (int64, error)
	ListPendingAnchors(ctx context.Context, limit int) ([]*models.Event, error)
	SetEventAnchor(ctx context.Context, eventID, anchorRef string) error

	// Archive checkpoint operations
	SaveCheckpoint(ctx context.Context, cp *models.ArchiveCheckpoint) error
	GetCheckpoint(ctx context.Context, feedID string) (*models.ArchiveCheckpoint, error)

	// Temporal integrity chain operations
	AppendChainEntry(ctx context.Context, e *models.ChainEntry) error
	ConfirmChainEntry(ctx context.Context, subjectID, eventID string) error
	LastChainEntry(ctx context.Context, subjectID string) (*models.ChainEntry, error)
	ListChainEntries(ctx context.Context, subjectID string) ([]*models.ChainEntry, error)
	SaveChainState(ctx context.Context, c *models.IntegrityChain) error
	GetChainState(ctx context.Context, subjectID string) (*models.IntegrityChain, error)
	SetChainStatus(ctx context.Context, subjectID, status string) error

	// Trust evidence operations
	InsertAttestation(ctx context.Context, a *models.Attestation) error
	InsertValidation(ctx context.Context, v *models.ExpertValidation) error
	ListAttestations(ctx context.Context, subjectID string) ([]models.Attestation, error)
	ListValidations(ctx context.Context, subjectID string) ([]models.ExpertValidation, error)
	SaveTrustScore(ctx context.Context, r *models.TrustScoreRecord) error
	GetTrustScore(ctx context.Context, subjectID string) (*models.TrustScoreRecord, error)

	// Subscription operations
	CreateSubscription(ctx context.Context, s *models.Subscription) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	DeactivateSubscription(ctx context.Context, id string, at time.Time) error
	ListActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error)

	// Utility
	Close() error
}
