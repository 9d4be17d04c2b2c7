package models

import "time"

// ChainEntry is one link in a subject's temporal integrity chain. A subject's
// chain spans every feed type that touches the subject, ordered by Position.
type ChainEntry struct {
	ID           string    `json:"id"`
	SubjectID    string    `json:"subject_id"`
	EventID      string    `json:"event_id"`
	FeedType     string    `json:"feed_type"`
	Position     int64     `json:"position"`
	PreviousHash string    `json:"previous_hash"`
	Hash         string    `json:"hash"`
	Confirmed    bool      `json:"confirmed"`
	CreatedAt    time.Time `json:"created_at"`
}

// IntegrityChain is the rolled-up state of a subject's chain: a Merkle root
// over all entry hashes and an integrity score (confirmed entries / total).
// The root changes iff the ordered entry set changes, which makes it the
// externally verifiable fingerprint of the subject's full history.
type IntegrityChain struct {
	SubjectID      string    `json:"subject_id"`
	EntryCount     int64     `json:"entry_count"`
	ConfirmedCount int64     `json:"confirmed_count"`
	MerkleRoot     string    `json:"merkle_root"`
	IntegrityScore float64   `json:"integrity_score"`
	Status         string    `json:"status"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IntegrityUpdateResult is returned from a chain update so the caller can
// expose the fresh root and score without a second read.
type IntegrityUpdateResult struct {
	Entry          *ChainEntry `json:"entry"`
	MerkleRoot     string      `json:"merkle_root"`
	IntegrityScore float64     `json:"integrity_score"`
	Status         string      `json:"status"`
}
