// Package trust computes aggregate trust scores from weighted evidence:
// typed attestations with fixed weights and stake-weighted expert validations.
package trust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/truthlayer-systems/truthfeed/internal/models"
	"github.com/truthlayer-systems/truthfeed/internal/repository"
)

// typeWeights fixes the evidentiary weight per attestation type.
// Compliance-sourced evidence outweighs self-reported claims.
var typeWeights = map[string]float64{
	models.AttestationComplianceAudit:  1.0,
	models.AttestationCertification:    0.9,
	models.AttestationRegulatoryFiling: 0.8,
	models.AttestationThirdParty:       0.6,
	models.AttestationSelfReported:     0.3,
}

const defaultTypeWeight = 0.5

// WeightForType returns the fixed weight for an attestation type.
func WeightForType(attestationType string) float64 {
	if w, ok := typeWeights[attestationType]; ok {
		return w
	}
	return defaultTypeWeight
}

// ChainStates reads a subject's rolled-up integrity chain state.
type ChainStates interface {
	State(ctx context.Context, subjectID string) (*models.IntegrityChain, error)
}

// Aggregator recomputes trust scores from the current evidence set.
type Aggregator struct {
	repo   repository.Repository
	chains ChainStates
}

// NewAggregator creates a trust score aggregator. chains may be nil, in which
// case returned records carry no chain integrity fields.
func NewAggregator(repo repository.Repository, chains ChainStates) *Aggregator {
	return &Aggregator{repo: repo, chains: chains}
}

// RecordAttestation stores a new attestation and recomputes the subject's
// score. The attestation's weight is fixed by its type.
func (a *Aggregator) RecordAttestation(ctx context.Context, subjectID string, req *models.CreateAttestationRequest) (*models.Attestation, error) {
	if req.Value < 0 || req.Value > 1 {
		return nil, fmt.Errorf("attestation value must be in [0,1], got %v", req.Value)
	}

	att := &models.Attestation{
		ID:        uuid.New().String(),
		SubjectID: subjectID,
		Type:      req.Type,
		Value:     req.Value,
		Weight:    WeightForType(req.Type),
		Source:    req.Source,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.repo.InsertAttestation(ctx, att); err != nil {
		return nil, fmt.Errorf("insert attestation for %s: %w", subjectID, err)
	}

	if _, err := a.Compute(ctx, subjectID); err != nil {
		return nil, err
	}
	return att, nil
}

// RecordValidation stores a new expert validation and recomputes the score.
// The validation's effective weight (stake normalized across validators) is
// derived at computation time, so stored weights never go stale.
func (a *Aggregator) RecordValidation(ctx context.Context, subjectID string, req *models.CreateValidationRequest) (*models.ExpertValidation, error) {
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, fmt.Errorf("validation confidence must be in [0,1], got %v", req.Confidence)
	}
	if req.Stake <= 0 {
		return nil, fmt.Errorf("validation stake must be positive, got %v", req.Stake)
	}

	val := &models.ExpertValidation{
		ID:          uuid.New().String(),
		SubjectID:   subjectID,
		ValidatorID: req.ValidatorID,
		Confidence:  req.Confidence,
		Stake:       req.Stake,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.repo.InsertValidation(ctx, val); err != nil {
		return nil, fmt.Errorf("insert validation for %s: %w", subjectID, err)
	}

	if _, err := a.Compute(ctx, subjectID); err != nil {
		return nil, err
	}
	return val, nil
}

// Compute recalculates the subject's aggregate score as a pure function of
// current evidence: score = Σ(value·weight) / Σ(weight). With no evidence the
// score is 0, a "no data" state distinct from a low score (EvidenceCount 0).
func (a *Aggregator) Compute(ctx context.Context, subjectID string) (*models.TrustScoreRecord, error) {
	attestations, err := a.repo.ListAttestations(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list attestations for %s: %w", subjectID, err)
	}
	validations, err := a.repo.ListValidations(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list validations for %s: %w", subjectID, err)
	}

	var totalStake float64
	for _, v := range validations {
		totalStake += v.Stake
	}
	for i := range validations {
		if totalStake > 0 {
			validations[i].Weight = validations[i].Stake / totalStake
		}
	}

	record := &models.TrustScoreRecord{
		SubjectID:     subjectID,
		Score:         Aggregate(attestations, validations),
		EvidenceCount: len(attestations) + len(validations),
		Attestations:  attestations,
		Validations:   validations,
		ComputedAt:    time.Now().UTC(),
	}

	if err := a.repo.SaveTrustScore(ctx, record); err != nil {
		return nil, fmt.Errorf("save trust score for %s: %w", subjectID, err)
	}
	return record, nil
}

// Aggregate folds evidence into a single normalized score using the stored
// weights. Pure: the same evidence set yields the same value regardless of
// call order.
func Aggregate(attestations []models.Attestation, validations []models.ExpertValidation) float64 {
	var weightedSum, totalWeight float64
	for _, att := range attestations {
		weightedSum += att.Value * att.Weight
		totalWeight += att.Weight
	}
	for _, v := range validations {
		weightedSum += v.Confidence * v.Weight
		totalWeight += v.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// Get returns the subject's stored record with evidence and the current chain
// integrity attached, recomputing lazily when no cached record exists yet.
// Chain fields are joined at read time; the stored score never goes stale
// against the chain.
func (a *Aggregator) Get(ctx context.Context, subjectID string) (*models.TrustScoreRecord, error) {
	record, err := a.repo.GetTrustScore(ctx, subjectID)
	switch {
	case errors.Is(err, repository.ErrSubjectNotFound):
		if record, err = a.Compute(ctx, subjectID); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		record.Attestations, err = a.repo.ListAttestations(ctx, subjectID)
		if err != nil {
			return nil, fmt.Errorf("list attestations for %s: %w", subjectID, err)
		}
		record.Validations, err = a.repo.ListValidations(ctx, subjectID)
		if err != nil {
			return nil, fmt.Errorf("list validations for %s: %w", subjectID, err)
		}
	}

	if a.chains != nil {
		state, err := a.chains.State(ctx, subjectID)
		switch {
		case err == nil:
			record.ChainIntegrity = state.IntegrityScore
			record.IntegrityStatus = state.Status
		case errors.Is(err, repository.ErrSubjectNotFound):
			record.IntegrityStatus = models.IntegrityPending
		default:
			return nil, fmt.Errorf("chain state for %s: %w", subjectID, err)
		}
	}
	return record, nil
}
