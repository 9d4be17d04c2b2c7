package models

import "time"

// Attestation source types, ordered roughly by evidentiary strength.
// Compliance-sourced evidence carries more weight than self-reported claims.
const (
	AttestationComplianceAudit  = "compliance_audit"
	AttestationCertification    = "certification"
	AttestationRegulatoryFiling = "regulatory_filing"
	AttestationThirdParty       = "third_party"
	AttestationSelfReported     = "self_reported"
)

// Attestation is a weighted claim about a subject's trustworthiness from a
// defined source type. Weight is fixed by the attestation type.
type Attestation struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Type      string    `json:"type"`
	Value     float64   `json:"value"`
	Weight    float64   `json:"weight"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpertValidation is a stake-weighted professional assessment. The effective
// weight is the validator's stake normalized across all validations for the
// subject.
type ExpertValidation struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	ValidatorID string    `json:"validator_id"`
	Confidence  float64   `json:"confidence"`
	Stake       float64   `json:"stake"`
	Weight      float64   `json:"weight"`
	CreatedAt   time.Time `json:"created_at"`
}

// TrustScoreRecord is the aggregate trust score for a subject together with
// the evidence that produced it. Score 0 with zero evidence is a "no data"
// state, not a low score; EvidenceCount disambiguates the two.
type TrustScoreRecord struct {
	SubjectID       string             `json:"subject_id"`
	Score           float64            `json:"score"`
	EvidenceCount   int                `json:"evidence_count"`
	Attestations    []Attestation      `json:"attestations,omitempty"`
	Validations     []ExpertValidation `json:"validations,omitempty"`
	ChainIntegrity  float64            `json:"chain_integrity_score"`
	IntegrityStatus string             `json:"integrity_status"`
	ComputedAt      time.Time          `json:"computed_at"`
}
