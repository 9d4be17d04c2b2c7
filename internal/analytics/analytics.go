// Package analytics computes per-window feed statistics from the event log.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

// Service computes read-only feed statistics.
type Service struct {
	repo repository.Repository
}

// New creates an analytics service.
func New(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

// FeedStats aggregates events in [from, to] for the given feed: total count,
// per-type breakdown, mean confidence and the share of anchored events.
func (s *Service) FeedStats(ctx context.Context, key models.FeedKey, from, to time.Time) (*models.FeedStats, error) {
	feed, err := s.repo.GetFeed(ctx, key)
	if err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, fmt.Errorf("window end must be after start")
	}

	events, err := s.repo.ListEventsBetween(ctx, feed.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", key, err)
	}

	stats := &models.FeedStats{
		FeedType:     feed.FeedType,
		SubjectID:    feed.SubjectID,
		From:         from,
		To:           to,
		EventCount:   int64(len(events)),
		EventsByType: make(map[string]int64),
	}

	var confidenceSum float64
	var anchored int64
	for _, ev := range events {
		stats.EventsByType[ev.EventType]++
		confidenceSum += ev.ConfidenceScore
		if ev.AnchorStatus == models.AnchorConfirmed {
			anchored++
		}
	}
	if stats.EventCount > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.EventCount)
		stats.VerificationRate = float64(anchored) / float64(stats.EventCount)
	}
	return stats, nil
}
