package models

import "time"

// Update frequency for a feed.
const (
	FrequencyRealtime    = "real-time"
	FrequencyEventDriven = "event-driven"
	FrequencyPeriodic    = "periodic"
)

// Integrity status values shared by feeds and subject chains.
const (
	IntegrityVerified = "verified"
	IntegrityPending  = "pending"
	IntegrityDisputed = "disputed"
)

// Well-known feed types. Feeds for new subjects are created on first append,
// but the type vocabulary is fixed by configuration.
const (
	FeedTrustScore       = "trust_score"
	FeedComplianceEvents = "compliance_events"
	FeedRegulatoryUpdate = "regulatory_updates"
	FeedAttestations     = "expert_attestations"
	FeedAuditActivity    = "audit_activity"
)

// FeedKey identifies a feed by type and optional subject.
// An empty SubjectID means the feed is global for its type.
type FeedKey struct {
	FeedType  string `json:"feed_type"`
	SubjectID string `json:"subject_id,omitempty"`
}

// String renders the key in the "type/subject" form used in log lines,
// lock keys and API paths.
func (k FeedKey) String() string {
	if k.SubjectID == "" {
		return k.FeedType
	}
	return k.FeedType + "/" + k.SubjectID
}

// Feed is a typed, append-only event sequence. Feeds are never deleted;
// archival may mark them dormant after a configured idle window.
type Feed struct {
	ID              string    `json:"id"`
	FeedType        string    `json:"feed_type"`
	SubjectID       string    `json:"subject_id,omitempty"`
	UpdateFrequency string    `json:"update_frequency"`
	RetentionDays   int       `json:"retention_days"`
	SubscriberCount int       `json:"subscriber_count"`
	IntegrityStatus string    `json:"integrity_status"`
	Dormant         bool      `json:"dormant"`
	LastSequence    int64     `json:"last_sequence"`
	LastEventAt     time.Time `json:"last_event_at,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Key returns the registry lookup key for the feed.
func (f *Feed) Key() FeedKey {
	return FeedKey{FeedType: f.FeedType, SubjectID: f.SubjectID}
}
