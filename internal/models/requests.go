package models

import "time"

// AppendEventRequest is the body of POST /api/v1/feeds/{type}[/{subject}]/events.
type AppendEventRequest struct {
	EventType       string                 `json:"event_type"`
	Payload         map[string]interface{} `json:"payload"`
	ConfidenceScore float64                `json:"confidence_score"`
}

// CreateSubscriptionRequest is the body of POST /api/v1/subscriptions.
type CreateSubscriptionRequest struct {
	SubscriberID string    `json:"subscriber_id"`
	Feeds        []FeedKey `json:"feeds"`
	Filters      []Filter  `json:"filters,omitempty"`
	DeliveryMode string    `json:"delivery_mode"`
	Endpoint     string    `json:"endpoint,omitempty"`
	MaxPerPeriod int       `json:"max_per_period,omitempty"`
	PeriodSecs   int       `json:"period_seconds,omitempty"`
}

// CreateAttestationRequest is the body of POST /api/v1/subjects/{id}/attestations.
type CreateAttestationRequest struct {
	Type   string  `json:"type"`
	Value  float64 `json:"value"`
	Source string  `json:"source,omitempty"`
}

// CreateValidationRequest is the body of POST /api/v1/subjects/{id}/validations.
type CreateValidationRequest struct {
	ValidatorID string  `json:"validator_id"`
	Confidence  float64 `json:"confidence"`
	Stake       float64 `json:"stake"`
}

// FeedStats is the per-window analytics result for a feed.
type FeedStats struct {
	FeedType         string           `json:"feed_type"`
	SubjectID        string           `json:"subject_id,omitempty"`
	From             time.Time        `json:"from"`
	To               time.Time        `json:"to"`
	EventCount       int64            `json:"event_count"`
	EventsByType     map[string]int64 `json:"events_by_type"`
	AvgConfidence    float64          `json:"avg_confidence"`
	VerificationRate float64          `json:"verification_rate"`
}
