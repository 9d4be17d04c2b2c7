package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Append pipeline metrics
	EventsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthfeed_events_appended_total",
			Help: "Total number of events appended, by feed type and anchor status",
		},
		[]string{"feed_type", "anchor_status"},
	)

	AppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "truthfeed_append_duration_seconds",
			Help:    "Duration of the durable append path in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AppendErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "truthfeed_append_errors_total",
			Help: "Total number of failed append attempts",
		},
	)

	// Anchoring metrics
	AnchorFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "truthfeed_anchor_failures_total",
			Help: "Total number of failed anchoring calls",
		},
	)

	AnchorsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "truthfeed_anchors_pending",
			Help: "Number of events awaiting an anchor reference",
		},
	)

	AnchorRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "truthfeed_anchor_retries_total",
			Help: "Total number of background anchor retry attempts",
		},
	)

	// Integrity chain metrics
	MerkleRecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "truthfeed_merkle_recompute_duration_seconds",
			Help:    "Duration of per-subject Merkle root recomputation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ChainsDisputed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "truthfeed_chains_disputed_total",
			Help: "Total number of subject chains marked disputed",
		},
	)

	// Delivery metrics
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthfeed_deliveries_total",
			Help: "Total number of deliveries, by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	DeliveryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "truthfeed_delivery_queue_depth",
			Help: "Current depth of the delivery job queue",
		},
	)

	RateLimitDeferrals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "truthfeed_rate_limit_deferrals_total",
			Help: "Total number of deliveries deferred to the next rate-limit period",
		},
	)

	// Archival metrics
	EventsArchived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthfeed_events_archived_total",
			Help: "Total number of events moved to cold storage, by feed type",
		},
		[]string{"feed_type"},
	)

	ArchiveErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "truthfeed_archive_errors_total",
			Help: "Total number of archival run errors",
		},
	)
)
