package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/truthlayer-systems/truthfeed/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) CreateFeed(ctx context.Context, f *models.Feed) error {
	query := `
		INSERT INTO feeds (id, feed_type, subject_id, update_frequency, retention_days,
			subscriber_count, integrity_status, dormant, last_sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (feed_type, subject_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		f.ID, f.FeedType, f.SubjectID, f.UpdateFrequency, f.RetentionDays,
		f.SubscriberCount, f.IntegrityStatus, f.Dormant, f.LastSequence,
		f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create feed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedExists
	}

	return nil
}

const feedColumns = `
	id, feed_type, subject_id, update_frequency, retention_days,
	subscriber_count, integrity_status, dormant, last_sequence,
	last_event_at, created_at, updated_at
`

func scanFeed(row pgx.Row) (*models.Feed, error) {
	f := &models.Feed{}
	var lastEventAt *time.Time
	err := row.Scan(
		&f.ID, &f.FeedType, &f.SubjectID, &f.UpdateFrequency, &f.RetentionDays,
		&f.SubscriberCount, &f.IntegrityStatus, &f.Dormant, &f.LastSequence,
		&lastEventAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastEventAt != nil {
		f.LastEventAt = *lastEventAt
	}
	return f, nil
}

func (r *PostgresRepository) GetFeed(ctx context.Context, key models.FeedKey) (*models.Feed, error) {
	query := fmt.Sprintf(`SELECT %s FROM feeds WHERE feed_type = $1 AND subject_id = $2`, feedColumns)

	f, err := scanFeed(r.pool.QueryRow(ctx, query, key.FeedType, key.SubjectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFeedNotFound
		}
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) GetFeedByID(ctx context.Context, id string) (*models.Feed, error) {
	query := fmt.Sprintf(`SELECT %s FROM feeds WHERE id = $1`, feedColumns)

	f, err := scanFeed(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFeedNotFound
		}
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) ListFeeds(ctx context.Context) ([]*models.Feed, error) {
	query := fmt.Sprintf(`SELECT %s FROM feeds ORDER BY created_at`, feedColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var out []*models.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateFeedAfterAppend(ctx context.Context, feedID string, lastSeq int64, at time.Time) error {
	query := `
		UPDATE feeds
		SET last_sequence = $2, last_event_at = $3, updated_at = $3, dormant = FALSE
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, feedID, lastSeq, at)
	if err != nil {
		return fmt.Errorf("failed to update feed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedNotFound
	}
	return nil
}

func (r *PostgresRepository) AdjustSubscriberCount(ctx context.Context, feedID string, delta int) error {
	query := `
		UPDATE feeds
		SET subscriber_count = GREATEST(subscriber_count + $2, 0)
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, feedID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust subscriber count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedNotFound
	}
	return nil
}

func (r *PostgresRepository) SetFeedDormant(ctx context.Context, feedID string, dormant bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE feeds SET dormant = $2 WHERE id = $1`, feedID, dormant)
	if err != nil {
		return fmt.Errorf("failed to set feed dormant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedNotFound
	}
	return nil
}

func (r *PostgresRepository) SetFeedIntegrityStatus(ctx context.Context, feedID string, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE feeds SET integrity_status = $2 WHERE id = $1`, feedID, status)
	if err != nil {
		return fmt.Errorf("failed to set feed integrity status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedNotFound
	}
	return nil
}

func (r *PostgresRepository) InsertEvent(ctx context.Context, e *models.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO events (id, feed_id, feed_type, subject_id, event_type, payload,
			confidence_score, sequence_number, previous_event_hash, integrity_proof,
			anchor_status, anchor_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.pool.Exec(ctx, query,
		e.ID, e.FeedID, e.FeedType, e.SubjectID, e.EventType, payload,
		e.ConfidenceScore, e.SequenceNumber, e.PreviousEventHash, e.IntegrityProof,
		e.AnchorStatus, e.AnchorReference, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

const eventColumns = `
	id, feed_id, feed_type, subject_id, event_type, payload,
	confidence_score, sequence_number, previous_event_hash, integrity_proof,
	anchor_status, anchor_reference, created_at
`

func scanEvent(row pgx.Row) (*models.Event, error) {
	e := &models.Event{}
	var payload []byte
	err := row.Scan(
		&e.ID, &e.FeedID, &e.FeedType, &e.SubjectID, &e.EventType, &payload,
		&e.ConfidenceScore, &e.SequenceNumber, &e.PreviousEventHash, &e.IntegrityProof,
		&e.AnchorStatus, &e.AnchorReference, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
	}
	return e, nil
}

func (r *PostgresRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*models.Event, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) LastEvent(ctx context.Context, feedID string) (*models.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM events WHERE feed_id = $1
		ORDER BY sequence_number DESC LIMIT 1
	`, eventColumns)

	e, err := scanEvent(r.pool.QueryRow(ctx, query, feedID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get last event: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) ListEvents(ctx context.Context, feedID string, sinceSeq int64, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT %s FROM events
		WHERE feed_id = $1 AND sequence_number > $2
		ORDER BY sequence_number
		LIMIT $3
	`, eventColumns)

	return r.queryEvents(ctx, query, feedID, sinceSeq, limit)
}

func (r *PostgresRepository) ListEventsBetween(ctx context.Context, feedID string, from, to time.Time) ([]*models.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM events
		WHERE feed_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY sequence_number
	`, eventColumns)

	return r.queryEvents(ctx, query, feedID, from, to)
}

func (r *PostgresRepository) ListEventsBefore(ctx context.Context, feedID string, cutoff time.Time) ([]*models.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM events
		WHERE feed_id = $1 AND created_at < $2
		ORDER BY sequence_number
	`, eventColumns)

	return r.queryEvents(ctx, query, feedID, cutoff)
}

func (r *PostgresRepository) DeleteEventsThrough(ctx context.Context, feedID string, seq int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM events WHERE feed_id = $1 AND sequence_number <= $2`, feedID, seq)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListPendingAnchors(ctx context.Context, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT %s FROM events
		WHERE anchor_status = 'pending'
		ORDER BY created_at
		LIMIT $1
	`, eventColumns)

	return r.queryEvents(ctx, query, limit)
}

func (r *PostgresRepository) SetEventAnchor(ctx context.Context, eventID, anchorRef string) error {
	query := `
		UPDATE events
		SET anchor_reference = $2, anchor_status = 'anchored'
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, eventID, anchorRef)
	if err != nil {
		return fmt.Errorf("failed to set event anchor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *PostgresRepository) SaveCheckpoint(ctx context.Context, cp *models.ArchiveCheckpoint) error {
	query := `
		INSERT INTO archive_checkpoints (id, feed_id, sequence_number, event_hash,
			pruned_count, anchor_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		cp.ID, cp.FeedID, cp.SequenceNumber, cp.EventHash,
		cp.PrunedCount, cp.AnchorReference, cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetCheckpoint(ctx context.Context, feedID string) (*models.ArchiveCheckpoint, error) {
	query := `
		SELECT id, feed_id, sequence_number, event_hash, pruned_count, anchor_reference, created_at
		FROM archive_checkpoints
		WHERE feed_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	cp := &models.ArchiveCheckpoint{}
	err := r.pool.QueryRow(ctx, query, feedID).Scan(
		&cp.ID, &cp.FeedID, &cp.SequenceNumber, &cp.EventHash,
		&cp.PrunedCount, &cp.AnchorReference, &cp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return cp, nil
}

func (r *PostgresRepository) AppendChainEntry(ctx context.Context, e *models.ChainEntry) error {
	query := `
		INSERT INTO chain_entries (id, subject_id, event_id, feed_type, position,
			previous_hash, hash, confirmed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.SubjectID, e.EventID, e.FeedType, e.Position,
		e.PreviousHash, e.Hash, e.Confirmed, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append chain entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ConfirmChainEntry(ctx context.Context, subjectID, eventID string) error {
	query := `UPDATE chain_entries SET confirmed = TRUE WHERE subject_id = $1 AND event_id = $2`

	tag, err := r.pool.Exec(ctx, query, subjectID, eventID)
	if err != nil {
		return fmt.Errorf("failed to confirm chain entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubjectNotFound
	}
	return nil
}

const chainEntryColumns = `
	id, subject_id, event_id, feed_type, position, previous_hash, hash, confirmed, created_at
`

func scanChainEntry(row pgx.Row) (*models.ChainEntry, error) {
	e := &models.ChainEntry{}
	err := row.Scan(
		&e.ID, &e.SubjectID, &e.EventID, &e.FeedType, &e.Position,
		&e.PreviousHash, &e.Hash, &e.Confirmed, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *PostgresRepository) LastChainEntry(ctx context.Context, subjectID string) (*models.ChainEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM chain_entries WHERE subject_id = $1
		ORDER BY position DESC LIMIT 1
	`, chainEntryColumns)

	e, err := scanChainEntry(r.pool.QueryRow(ctx, query, subjectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to get last chain entry: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) ListChainEntries(ctx context.Context, subjectID string) ([]*models.ChainEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM chain_entries WHERE subject_id = $1 ORDER BY position
	`, chainEntryColumns)

	rows, err := r.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chain entries: %w", err)
	}
	defer rows.Close()

	var out []*models.ChainEntry
	for rows.Next() {
		e, err := scanChainEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chain entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SaveChainState(ctx context.Context, c *models.IntegrityChain) error {
	query := `
		INSERT INTO chain_state (subject_id, entry_count, confirmed_count, merkle_root,
			integrity_score, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subject_id) DO UPDATE SET
			entry_count = EXCLUDED.entry_count,
			confirmed_count = EXCLUDED.confirmed_count,
			merkle_root = EXCLUDED.merkle_root,
			integrity_score = EXCLUDED.integrity_score,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		c.SubjectID, c.EntryCount, c.ConfirmedCount, c.MerkleRoot,
		c.IntegrityScore, c.Status, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save chain state: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetChainState(ctx context.Context, subjectID string) (*models.IntegrityChain, error) {
	query := `
		SELECT subject_id, entry_count, confirmed_count, merkle_root, integrity_score, status, updated_at
		FROM chain_state WHERE subject_id = $1
	`

	c := &models.IntegrityChain{}
	err := r.pool.QueryRow(ctx, query, subjectID).Scan(
		&c.SubjectID, &c.EntryCount, &c.ConfirmedCount, &c.MerkleRoot,
		&c.IntegrityScore, &c.Status, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to get chain state: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) SetChainStatus(ctx context.Context, subjectID, status string) error {
	query := `
		INSERT INTO chain_state (subject_id, entry_count, confirmed_count, merkle_root,
			integrity_score, status, updated_at)
		VALUES ($1, 0, 0, '', 0, $2, $3)
		ON CONFLICT (subject_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query, subjectID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set chain status: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertAttestation(ctx context.Context, a *models.Attestation) error {
	query := `
		INSERT INTO attestations (id, subject_id, type, value, weight, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.SubjectID, a.Type, a.Value, a.Weight, a.Source, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attestation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertValidation(ctx context.Context, v *models.ExpertValidation) error {
	query := `
		INSERT INTO expert_validations (id, subject_id, validator_id, confidence, stake, weight, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		v.ID, v.SubjectID, v.ValidatorID, v.Confidence, v.Stake, v.Weight, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert validation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListAttestations(ctx context.Context, subjectID string) ([]models.Attestation, error) {
	query := `
		SELECT id, subject_id, type, value, weight, source, created_at
		FROM attestations WHERE subject_id = $1 ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attestations: %w", err)
	}
	defer rows.Close()

	var out []models.Attestation
	for rows.Next() {
		var a models.Attestation
		if err := rows.Scan(&a.ID, &a.SubjectID, &a.Type, &a.Value, &a.Weight, &a.Source, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attestation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListValidations(ctx context.Context, subjectID string) ([]models.ExpertValidation, error) {
	query := `
		SELECT id, subject_id, validator_id, confidence, stake, weight, created_at
		FROM expert_validations WHERE subject_id = $1 ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list validations: %w", err)
	}
	defer rows.Close()

	var out []models.ExpertValidation
	for rows.Next() {
		var v models.ExpertValidation
		if err := rows.Scan(&v.ID, &v.SubjectID, &v.ValidatorID, &v.Confidence, &v.Stake, &v.Weight, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan validation: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SaveTrustScore(ctx context.Context, rec *models.TrustScoreRecord) error {
	query := `
		INSERT INTO trust_scores (subject_id, score, evidence_count, computed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id) DO UPDATE SET
			score = EXCLUDED.score,
			evidence_count = EXCLUDED.evidence_count,
			computed_at = EXCLUDED.computed_at
	`

	_, err := r.pool.Exec(ctx, query, rec.SubjectID, rec.Score, rec.EvidenceCount, rec.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to save trust score: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetTrustScore(ctx context.Context, subjectID string) (*models.TrustScoreRecord, error) {
	query := `
		SELECT subject_id, score, evidence_count, computed_at
		FROM trust_scores WHERE subject_id = $1
	`

	rec := &models.TrustScoreRecord{}
	err := r.pool.QueryRow(ctx, query, subjectID).Scan(
		&rec.SubjectID, &rec.Score, &rec.EvidenceCount, &rec.ComputedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to get trust score: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) CreateSubscription(ctx context.Context, s *models.Subscription) error {
	feeds, err := json.Marshal(s.Feeds)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription feeds: %w", err)
	}
	filters, err := json.Marshal(s.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription filters: %w", err)
	}

	query := `
		INSERT INTO subscriptions (id, subscriber_id, feeds, filters, delivery_mode,
			endpoint, max_per_period, period_seconds, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID, s.SubscriberID, feeds, filters, s.DeliveryMode,
		s.Endpoint, s.RateLimit.MaxPerPeriod, int(s.RateLimit.Period.Seconds()),
		s.Active, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	s := &models.Subscription{}
	var feeds, filters []byte
	var periodSecs int
	err := row.Scan(
		&s.ID, &s.SubscriberID, &feeds, &filters, &s.DeliveryMode,
		&s.Endpoint, &s.RateLimit.MaxPerPeriod, &periodSecs,
		&s.Active, &s.CreatedAt, &s.DeactivatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(feeds, &s.Feeds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription feeds: %w", err)
	}
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &s.Filters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subscription filters: %w", err)
		}
	}
	s.RateLimit.Period = time.Duration(periodSecs) * time.Second
	return s, nil
}

const subscriptionColumns = `
	id, subscriber_id, feeds, filters, delivery_mode, endpoint,
	max_per_period, period_seconds, active, created_at, deactivated_at
`

func (r *PostgresRepository) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE id = $1`, subscriptionColumns)

	s, err := scanSubscription(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) DeactivateSubscription(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE subscriptions SET active = FALSE, deactivated_at = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (r *PostgresRepository) ListActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE active ORDER BY created_at`, subscriptionColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
