// Package service implements the append pipeline and feed read paths, tying
// the registry, hash chain, anchoring, integrity chains and delivery together.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/truthlayer-systems/truthfeed/internal/anchor"
	"github.com/truthlayer-systems/truthfeed/internal/delivery"
	"github.com/truthlayer-systems/truthfeed/internal/hashchain"
	"github.com/truthlayer-systems/truthfeed/internal/integrity"
	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/metrics"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/registry"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

// eventDigest is the canonical content an event's integrity proof covers.
// Changing this struct changes every proof; existing chains would stop
// verifying.
type eventDigest struct {
	FeedType          string                 `json:"feed_type"`
	SubjectID         string                 `json:"subject_id"`
	EventType         string                 `json:"event_type"`
	Payload           map[string]interface{} `json:"payload"`
	ConfidenceScore   float64                `json:"confidence_score"`
	SequenceNumber    int64                  `json:"sequence_number"`
	PreviousEventHash string                 `json:"previous_event_hash"`
}

// Engine runs the event append pipeline. Appends to a single feed serialize
// on a per-feed mutex; appends to different feeds run concurrently.
type Engine struct {
	repo       repository.Repository
	registry   *registry.Registry
	integrity  *integrity.Manager
	anchors    anchor.Service
	dispatcher *delivery.Dispatcher
	logger     *logging.Logger

	feedLocks     *keyedMutex
	anchorTimeout time.Duration
}

// EngineConfig carries the engine's tunables.
type EngineConfig struct {
	AnchorTimeout time.Duration
}

// NewEngine wires the append pipeline. dispatcher may be nil, in which case
// appended events are not fanned out (useful for offline tooling).
func NewEngine(repo repository.Repository, reg *registry.Registry, im *integrity.Manager, anchors anchor.Service, dispatcher *delivery.Dispatcher, cfg EngineConfig, logger *logging.Logger) *Engine {
	if cfg.AnchorTimeout <= 0 {
		cfg.AnchorTimeout = 5 * time.Second
	}
	return &Engine{
		repo:          repo,
		registry:      reg,
		integrity:     im,
		anchors:       anchors,
		dispatcher:    dispatcher,
		logger:        logger,
		feedLocks:     newKeyedMutex(),
		anchorTimeout: cfg.AnchorTimeout,
	}
}

// AppendEvent validates, chains, anchors and durably appends one event, then
// kicks off the asynchronous integrity update and subscription matching. The
// returned event is the durable record; anchoring unavailability is reported
// through AnchorStatus, never as an error.
func (e *Engine) AppendEvent(ctx context.Context, key models.FeedKey, req *models.AppendEventRequest) (*models.Event, error) {
	start := time.Now()

	if err := validateAppend(req); err != nil {
		metrics.AppendErrors.Inc()
		return nil, err
	}

	feed, err := e.registry.Ensure(ctx, key)
	if err != nil {
		metrics.AppendErrors.Inc()
		return nil, fmt.Errorf("resolve feed %s: %w", key, err)
	}

	l := e.feedLocks.get(key.String())
	l.Lock()
	defer l.Unlock()

	prevHash, seq, err := e.chainHead(ctx, feed.ID)
	if err != nil {
		metrics.AppendErrors.Inc()
		return nil, err
	}

	event := &models.Event{
		ID:                uuid.New().String(),
		FeedID:            feed.ID,
		FeedType:          feed.FeedType,
		SubjectID:         feed.SubjectID,
		EventType:         req.EventType,
		Payload:           req.Payload,
		ConfidenceScore:   req.ConfidenceScore,
		SequenceNumber:    seq,
		PreviousEventHash: prevHash,
		CreatedAt:         time.Now().UTC(),
	}

	proof, err := hashchain.LinkHash(digestOf(event))
	if err != nil {
		metrics.AppendErrors.Inc()
		return nil, fmt.Errorf("compute integrity proof: %w", err)
	}
	event.IntegrityProof = proof

	event.AnchorStatus = models.AnchorPending
	if e.anchors != nil {
		anchorCtx, cancel := context.WithTimeout(ctx, e.anchorTimeout)
		ref, aerr := e.anchors.Anchor(anchorCtx, proof)
		cancel()
		if aerr != nil {
			metrics.AnchorFailures.Inc()
			e.logger.Warn("anchoring unavailable, appending pending",
				logging.Feed(key.String()),
				logging.Sequence(seq),
				logging.Error(aerr))
		} else {
			event.AnchorStatus = models.AnchorConfirmed
			event.AnchorReference = ref
		}
	}

	if err := e.repo.InsertEvent(ctx, event); err != nil {
		metrics.AppendErrors.Inc()
		return nil, fmt.Errorf("append event to %s: %w", key, err)
	}
	if err := e.repo.UpdateFeedAfterAppend(ctx, feed.ID, seq, event.CreatedAt); err != nil {
		return nil, fmt.Errorf("update feed %s after append: %w", key, err)
	}
	if feed.Dormant {
		if err := e.repo.SetFeedDormant(ctx, feed.ID, false); err != nil {
			e.logger.Error("wake dormant feed", logging.Feed(key.String()), logging.Error(err))
		}
	}

	metrics.EventsAppended.WithLabelValues(feed.FeedType, event.AnchorStatus).Inc()
	metrics.AppendDuration.Observe(time.Since(start).Seconds())

	e.logger.Info("event appended",
		logging.Feed(key.String()),
		logging.EventID(event.ID),
		logging.Sequence(seq))

	go e.afterAppend(context.WithoutCancel(ctx), event)

	return event, nil
}

// afterAppend runs the non-durable stages: the subject integrity chain update
// and subscription fan-out. Failures here never affect the durable append.
func (e *Engine) afterAppend(ctx context.Context, event *models.Event) {
	if event.SubjectID != "" {
		start := time.Now()
		_, err := e.integrity.Update(ctx, event.SubjectID, event)
		metrics.MerkleRecomputeDuration.Observe(time.Since(start).Seconds())
		if errors.Is(err, integrity.ErrChainCorrupted) {
			metrics.ChainsDisputed.Inc()
			e.logger.Error("subject chain corrupted",
				logging.Subject(event.SubjectID),
				logging.EventID(event.ID))
		} else if err != nil {
			e.logger.Error("integrity chain update",
				logging.Subject(event.SubjectID),
				logging.EventID(event.ID),
				logging.Error(err))
		}
	}

	if e.dispatcher != nil {
		e.dispatcher.EventAppended(ctx, event)
	}
}

// chainHead returns the previous hash and next sequence number for a feed.
// An empty log falls back to the archive checkpoint when one exists, so the
// chain stays continuous across pruning.
func (e *Engine) chainHead(ctx context.Context, feedID string) (string, int64, error) {
	last, err := e.repo.LastEvent(ctx, feedID)
	if err == nil {
		return last.IntegrityProof, last.SequenceNumber + 1, nil
	}
	if !errors.Is(err, repository.ErrEventNotFound) {
		return "", 0, fmt.Errorf("read feed head: %w", err)
	}

	cp, cerr := e.repo.GetCheckpoint(ctx, feedID)
	if cerr == nil {
		return cp.EventHash, cp.SequenceNumber + 1, nil
	}
	if !errors.Is(cerr, repository.ErrCheckpointNotFound) {
		return "", 0, fmt.Errorf("read archive checkpoint: %w", cerr)
	}

	return hashchain.GenesisHash, 1, nil
}

// Feed resolves a feed by key.
func (e *Engine) Feed(ctx context.Context, key models.FeedKey) (*models.Feed, error) {
	return e.registry.Lookup(ctx, key)
}

// Events reads a feed's events ordered by sequence, starting after sinceSeq.
func (e *Engine) Events(ctx context.Context, key models.FeedKey, sinceSeq int64, limit int) ([]*models.Event, error) {
	feed, err := e.registry.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.repo.ListEvents(ctx, feed.ID, sinceSeq, limit)
}

// VerifyFeed re-walks a feed's event log from its verification genesis (the
// archive checkpoint when one exists) and checks every link and proof. The
// feed's integrity status is updated to reflect the result.
func (e *Engine) VerifyFeed(ctx context.Context, key models.FeedKey) (bool, error) {
	feed, err := e.registry.Lookup(ctx, key)
	if err != nil {
		return false, err
	}

	genesis := hashchain.GenesisHash
	var sinceSeq int64
	cp, cerr := e.repo.GetCheckpoint(ctx, feed.ID)
	switch {
	case cerr == nil:
		genesis = cp.EventHash
		sinceSeq = cp.SequenceNumber
	case !errors.Is(cerr, repository.ErrCheckpointNotFound):
		return false, fmt.Errorf("read archive checkpoint: %w", cerr)
	}

	const batch = 500
	prev := genesis
	seq := sinceSeq
	ok := true
	empty := true
	for ok {
		events, err := e.repo.ListEvents(ctx, feed.ID, seq, batch)
		if err != nil {
			return false, fmt.Errorf("list events for %s: %w", key, err)
		}
		if len(events) == 0 {
			break
		}
		empty = false
		ok, prev, seq = verifyChainLinks(events, prev, seq)
		if len(events) < batch {
			break
		}
	}

	status := models.IntegrityVerified
	if !ok {
		status = models.IntegrityDisputed
	}
	// A fully pruned log behind a checkpoint is an intact chain; only a feed
	// with no events and no checkpoint has nothing to attest to yet.
	if empty && cerr != nil {
		status = models.IntegrityPending
	}
	if serr := e.repo.SetFeedIntegrityStatus(ctx, feed.ID, status); serr != nil {
		return ok, fmt.Errorf("update feed integrity status: %w", serr)
	}
	return ok, nil
}

// verifyChainLinks checks one batch of events against the running chain head
// and returns the verdict plus the new head for the next batch.
func verifyChainLinks(events []*models.Event, prev string, seq int64) (bool, string, int64) {
	for _, ev := range events {
		if ev.SequenceNumber != seq+1 || ev.PreviousEventHash != prev {
			return false, prev, seq
		}
		proof, err := hashchain.LinkHash(digestOf(ev))
		if err != nil || proof != ev.IntegrityProof {
			return false, prev, seq
		}
		prev = ev.IntegrityProof
		seq = ev.SequenceNumber
	}
	return true, prev, seq
}

func digestOf(ev *models.Event) eventDigest {
	return eventDigest{
		FeedType:          ev.FeedType,
		SubjectID:         ev.SubjectID,
		EventType:         ev.EventType,
		Payload:           ev.Payload,
		ConfidenceScore:   ev.ConfidenceScore,
		SequenceNumber:    ev.SequenceNumber,
		PreviousEventHash: ev.PreviousEventHash,
	}
}

func validateAppend(req *models.AppendEventRequest) error {
	if req == nil {
		return fmt.Errorf("request body is required")
	}
	if req.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if req.Payload == nil {
		return fmt.Errorf("payload is required")
	}
	if req.ConfidenceScore < 0 || req.ConfidenceScore > 1 {
		return fmt.Errorf("confidence_score must be between 0 and 1")
	}
	return nil
}
