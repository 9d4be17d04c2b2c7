package models

import "time"

// Anchor status values. An event appended while the anchoring service is
// unavailable carries AnchorPending until the background retry succeeds.
const (
	AnchorConfirmed = "anchored"
	AnchorPending   = "pending"
)

// Event is a single appended fact. Events are immutable once appended; only
// archival removes expired ones. For every feed the events ordered by
// SequenceNumber form an unbroken hash chain:
//
//	event[n].PreviousEventHash == event[n-1].IntegrityProof
//
// with the genesis sentinel standing in for event[0]'s predecessor.
type Event struct {
	ID                string                 `json:"id"`
	FeedID            string                 `json:"feed_id"`
	FeedType          string                 `json:"feed_type"`
	SubjectID         string                 `json:"subject_id,omitempty"`
	EventType         string                 `json:"event_type"`
	Payload           map[string]interface{} `json:"payload"`
	ConfidenceScore   float64                `json:"confidence_score"`
	SequenceNumber    int64                  `json:"sequence_number"`
	PreviousEventHash string                 `json:"previous_event_hash"`
	IntegrityProof    string                 `json:"integrity_proof"`
	AnchorStatus      string                 `json:"anchor_status"`
	AnchorReference   string                 `json:"anchor_reference,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

// ArchiveCheckpoint records the point up to which a feed's events were pruned.
// The checkpoint's EventHash becomes the feed's new verification genesis: the
// first remaining event must link to it, and the checkpoint itself is anchored
// so the pruned prefix stays externally attestable.
type ArchiveCheckpoint struct {
	ID              string    `json:"id"`
	FeedID          string    `json:"feed_id"`
	SequenceNumber  int64     `json:"sequence_number"`
	EventHash       string    `json:"event_hash"`
	PrunedCount     int64     `json:"pruned_count"`
	AnchorReference string    `json:"anchor_reference,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
