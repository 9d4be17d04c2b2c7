// Package delivery dispatches matched events to subscribers over the three
// delivery modes and enforces per-subscription rate limits. Dispatch runs
// asynchronously after a successful append and never blocks the append path.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/truthlayer-systems/truthfeed/internal/logging"
	"github.com/truthlayer-systems/truthfeed/internal/metrics"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/subscription"
)

// Config configures the dispatcher worker pool.
type Config struct {
	Workers   int
	QueueSize int
}

type job struct {
	sub   *models.Subscription
	event *models.Event
}

// Dispatcher matches appended events against active subscriptions and hands
// deliveries to the per-mode transports.
type Dispatcher struct {
	subs      *subscription.Manager
	limiter   Limiter
	streams   *StreamHub
	polls     *PollStore
	callbacks *CallbackQueue
	logger    *logging.Logger

	jobs     chan job
	workers  int
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a delivery dispatcher.
func NewDispatcher(subs *subscription.Manager, limiter Limiter, streams *StreamHub, polls *PollStore, callbacks *CallbackQueue, logger *logging.Logger, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &Dispatcher{
		subs:      subs,
		limiter:   limiter,
		streams:   streams,
		polls:     polls,
		callbacks: callbacks,
		logger:    logger,
		jobs:      make(chan job, cfg.QueueSize),
		workers:   cfg.Workers,
	}
}

// Start launches the worker pool and the callback queue consumer.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	d.stopChan = make(chan struct{})
	d.mu.Unlock()

	if err := d.callbacks.Start(ctx); err != nil {
		return err
	}

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	return nil
}

// Stop lets enqueued deliveries drain, then stops the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()

	d.wg.Wait()
}

// EventAppended runs the matching pass for a freshly appended event and
// enqueues one delivery job per matched subscription.
func (d *Dispatcher) EventAppended(ctx context.Context, event *models.Event) {
	matched, err := d.subs.Match(ctx, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "subscription matching failed",
			logging.EventID(event.ID), logging.Error(err))
		return
	}

	for _, sub := range matched {
		d.enqueue(job{sub: sub, event: event})
	}
}

func (d *Dispatcher) enqueue(j job) {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running {
		return
	}

	select {
	case d.jobs <- j:
		metrics.DeliveryQueueDepth.Set(float64(len(d.jobs)))
	default:
		// Queue full: deliver inline rather than drop.
		d.deliver(context.Background(), j)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			// Drain what is already enqueued.
			for {
				select {
				case j := <-d.jobs:
					d.deliver(ctx, j)
				default:
					return
				}
			}
		case j := <-d.jobs:
			metrics.DeliveryQueueDepth.Set(float64(len(d.jobs)))
			d.deliver(ctx, j)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	// Subscription may have been deactivated since matching.
	current, err := d.subs.Get(ctx, j.sub.ID)
	if err != nil || !current.Active {
		metrics.Deliveries.WithLabelValues(j.sub.DeliveryMode, "cancelled").Inc()
		return
	}

	allowed, err := d.limiter.Allow(ctx, j.sub.ID, j.sub.RateLimit.MaxPerPeriod, j.sub.RateLimit.Period)
	if err != nil {
		d.logger.WarnContext(ctx, "rate limit check failed, delivering anyway",
			logging.SubscriptionID(j.sub.ID), logging.Error(err))
		allowed = true
	}
	if !allowed {
		// Defer to the next period, never drop.
		metrics.RateLimitDeferrals.Inc()
		wait := j.sub.RateLimit.Period
		time.AfterFunc(wait, func() { d.enqueue(j) })
		return
	}

	switch j.sub.DeliveryMode {
	case models.DeliveryCallback:
		if err := d.callbacks.Enqueue(ctx, j.sub, j.event); err != nil {
			d.logger.ErrorContext(ctx, "failed to enqueue callback delivery",
				logging.SubscriptionID(j.sub.ID), logging.EventID(j.event.ID), logging.Error(err))
			metrics.Deliveries.WithLabelValues(models.DeliveryCallback, "enqueue_failed").Inc()
		}
	case models.DeliveryStream:
		d.streams.Push(ctx, j.sub, j.event)
	case models.DeliveryPoll:
		d.polls.Push(j.sub, j.event)
	}
}
