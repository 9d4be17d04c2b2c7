// Package archive prunes expired events to cold storage on a schedule,
// leaving an anchored checkpoint behind so chain verification of the
// remaining log still succeeds.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/truthlayer-systems/truthfeed/internal/anchor"
	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/metrics"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

// Config controls the archival schedule and dormancy sweep.
type Config struct {
	Schedule    string
	IdleWindow  time.Duration
	ManifestDir string
}

// DefaultConfig returns the default archival settings: one run per day at
// 03:00 and a 30-day dormancy window.
func DefaultConfig() Config {
	return Config{
		Schedule:   "0 3 * * *",
		IdleWindow: 30 * 24 * time.Hour,
	}
}

// Archiver runs retention pruning across all feeds.
type Archiver struct {
	repo    repository.Repository
	cold    ColdStore
	anchors anchor.Service
	logger  *logging.Logger
	config  Config
	cron    *cron.Cron
}

// New creates an archiver. cold may be nil, in which case pruning is skipped
// entirely (events are retained) and only the dormancy sweep runs.
func New(repo repository.Repository, cold ColdStore, anchors anchor.Service, cfg Config, logger *logging.Logger) *Archiver {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 3 * * *"
	}
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = 30 * 24 * time.Hour
	}
	return &Archiver{
		repo:    repo,
		cold:    cold,
		anchors: anchors,
		logger:  logger,
		config:  cfg,
		cron:    cron.New(),
	}
}

// Start registers the cron schedule and begins running.
func (a *Archiver) Start() error {
	_, err := a.cron.AddFunc(a.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		a.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("register archive schedule %q: %w", a.config.Schedule, err)
	}
	a.cron.Start()
	a.logger.Info("archiver started", "schedule", a.config.Schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (a *Archiver) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()
	a.logger.Info("archiver stopped")
}

// Run performs one full archival pass: per-feed retention pruning followed by
// the dormancy sweep. Per-feed failures are logged and counted, never fatal
// to the pass.
func (a *Archiver) Run(ctx context.Context) {
	feeds, err := a.repo.ListFeeds(ctx)
	if err != nil {
		metrics.ArchiveErrors.Inc()
		a.logger.Error("list feeds for archival", logging.Error(err))
		return
	}

	now := time.Now().UTC()
	for _, feed := range feeds {
		if a.cold != nil {
			if err := a.pruneFeed(ctx, feed, now); err != nil {
				metrics.ArchiveErrors.Inc()
				a.logger.Error("prune feed",
					logging.Feed(feed.Key().String()),
					logging.Error(err))
			}
		}
		a.sweepDormant(ctx, feed, now)
	}
}

// pruneFeed moves the feed's expired prefix to cold storage. Order matters:
// cold copy first, then the anchored checkpoint, then the hot delete. A
// failure at any step leaves the hot copy intact for the next run.
func (a *Archiver) pruneFeed(ctx context.Context, feed *models.Feed, now time.Time) error {
	cutoff := now.AddDate(0, 0, -feed.RetentionDays)
	expired, err := a.repo.ListEventsBefore(ctx, feed.ID, cutoff)
	if err != nil {
		return fmt.Errorf("list expired events: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	if err := a.cold.Store(ctx, expired); err != nil {
		return fmt.Errorf("copy to cold storage: %w", err)
	}

	last := expired[len(expired)-1]
	cp := &models.ArchiveCheckpoint{
		ID:             uuid.New().String(),
		FeedID:         feed.ID,
		SequenceNumber: last.SequenceNumber,
		EventHash:      last.IntegrityProof,
		PrunedCount:    int64(len(expired)),
		CreatedAt:      now,
	}
	if prev, err := a.repo.GetCheckpoint(ctx, feed.ID); err == nil {
		cp.PrunedCount += prev.PrunedCount
	} else if !errors.Is(err, repository.ErrCheckpointNotFound) {
		return fmt.Errorf("read previous checkpoint: %w", err)
	}

	if a.anchors != nil {
		ref, err := a.anchors.Anchor(ctx, cp.EventHash)
		if err != nil {
			metrics.AnchorFailures.Inc()
			a.logger.Warn("checkpoint anchoring unavailable",
				logging.Feed(feed.Key().String()),
				logging.Error(err))
		} else {
			cp.AnchorReference = ref
		}
	}

	if err := a.repo.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := a.writeManifest(feed, cp); err != nil {
		a.logger.Warn("write checkpoint manifest",
			logging.Feed(feed.Key().String()),
			logging.Error(err))
	}

	deleted, err := a.repo.DeleteEventsThrough(ctx, feed.ID, last.SequenceNumber)
	if err != nil {
		return fmt.Errorf("delete pruned events: %w", err)
	}

	metrics.EventsArchived.WithLabelValues(feed.FeedType).Add(float64(deleted))
	a.logger.Info("feed pruned",
		logging.Feed(feed.Key().String()),
		logging.Sequence(last.SequenceNumber),
		"pruned", deleted)
	return nil
}

func (a *Archiver) sweepDormant(ctx context.Context, feed *models.Feed, now time.Time) {
	if feed.Dormant || feed.LastEventAt.IsZero() {
		return
	}
	if now.Sub(feed.LastEventAt) < a.config.IdleWindow {
		return
	}
	if err := a.repo.SetFeedDormant(ctx, feed.ID, true); err != nil {
		a.logger.Error("mark feed dormant",
			logging.Feed(feed.Key().String()),
			logging.Error(err))
		return
	}
	a.logger.Info("feed marked dormant", logging.Feed(feed.Key().String()))
}

// checkpointManifest is the yaml document written next to the cold-storage
// index for operator inspection.
type checkpointManifest struct {
	FeedID          string    `yaml:"feed_id"`
	FeedType        string    `yaml:"feed_type"`
	SubjectID       string    `yaml:"subject_id,omitempty"`
	SequenceNumber  int64     `yaml:"sequence_number"`
	EventHash       string    `yaml:"event_hash"`
	PrunedCount     int64     `yaml:"pruned_count"`
	AnchorReference string    `yaml:"anchor_reference,omitempty"`
	CreatedAt       time.Time `yaml:"created_at"`
}

func (a *Archiver) writeManifest(feed *models.Feed, cp *models.ArchiveCheckpoint) error {
	if a.config.ManifestDir == "" {
		return nil
	}
	doc := checkpointManifest{
		FeedID:          cp.FeedID,
		FeedType:        feed.FeedType,
		SubjectID:       feed.SubjectID,
		SequenceNumber:  cp.SequenceNumber,
		EventHash:       cp.EventHash,
		PrunedCount:     cp.PrunedCount,
		AnchorReference: cp.AnchorReference,
		CreatedAt:       cp.CreatedAt,
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.config.ManifestDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%d.yaml", cp.FeedID, cp.SequenceNumber)
	return os.WriteFile(filepath.Join(a.config.ManifestDir, name), raw, 0o644)
}
