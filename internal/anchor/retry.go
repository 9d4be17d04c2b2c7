package anchor

import (
	"context"
	"sync"
	"time"

	"github.com/truthlayer-systems/truthfeed/internal/integrity"
	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/metrics"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

// RetryWorker periodically re-submits events whose anchor is still pending.
// The sweep interval doubles after an empty-handed round, capped at
// MaxInterval, and resets once any event anchors successfully.
type RetryWorker struct {
	repo      repository.Repository
	service   Service
	integrity *integrity.Manager
	logger    *logging.Logger

	interval    time.Duration
	maxInterval time.Duration
	batchSize   int

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// RetryConfig controls the retry sweep cadence.
type RetryConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	BatchSize   int
}

// DefaultRetryConfig returns sensible retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Interval:    30 * time.Second,
		MaxInterval: 10 * time.Minute,
		BatchSize:   100,
	}
}

// NewRetryWorker creates a retry worker for pending anchors.
func NewRetryWorker(repo repository.Repository, service Service, im *integrity.Manager, cfg RetryConfig, logger *logging.Logger) *RetryWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = 10 * cfg.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &RetryWorker{
		repo:        repo,
		service:     service,
		integrity:   im,
		logger:      logger,
		interval:    cfg.Interval,
		maxInterval: cfg.MaxInterval,
		batchSize:   cfg.BatchSize,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (w *RetryWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info("anchor retry worker started", "interval", w.interval.String())
}

// Stop signals the loop to exit and waits for it.
func (w *RetryWorker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("anchor retry worker stopped")
}

func (w *RetryWorker) run(ctx context.Context) {
	defer w.wg.Done()

	wait := w.interval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-timer.C:
			anchored, pending := w.sweep(ctx)
			if pending > 0 && anchored == 0 {
				wait *= 2
				if wait > w.maxInterval {
					wait = w.maxInterval
				}
			} else {
				wait = w.interval
			}
			timer.Reset(wait)
		}
	}
}

// sweep resubmits one batch of pending events and returns how many were
// anchored plus how many remain pending.
func (w *RetryWorker) sweep(ctx context.Context) (anchored, pending int) {
	events, err := w.repo.ListPendingAnchors(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("list pending anchors", logging.Error(err))
		return 0, 0
	}
	metrics.AnchorsPending.Set(float64(len(events)))
	if len(events) == 0 {
		return 0, 0
	}

	for _, event := range events {
		select {
		case <-ctx.Done():
			return anchored, len(events) - anchored
		case <-w.stopChan:
			return anchored, len(events) - anchored
		default:
		}

		metrics.AnchorRetries.Inc()
		ref, err := w.service.Anchor(ctx, event.IntegrityProof)
		if err != nil {
			w.logger.Warn("anchor retry failed",
				logging.EventID(event.ID),
				logging.Subject(event.SubjectID),
				logging.Error(err))
			continue
		}

		if err := w.repo.SetEventAnchor(ctx, event.ID, ref); err != nil {
			w.logger.Error("record anchor reference",
				logging.EventID(event.ID),
				logging.Error(err))
			continue
		}
		// Global feed events carry no subject and hence no chain entry.
		if event.SubjectID != "" {
			if err := w.integrity.Confirm(ctx, event.SubjectID, event.ID); err != nil {
				w.logger.Error("confirm chain entry",
					logging.EventID(event.ID),
					logging.Subject(event.SubjectID),
					logging.Error(err))
				continue
			}
		}

		anchored++
		w.logger.Info("anchor confirmed on retry",
			logging.EventID(event.ID),
			logging.Subject(event.SubjectID))
	}
	return anchored, len(events) - anchored
}
