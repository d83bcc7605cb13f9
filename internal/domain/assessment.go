package domain

import (
	"time"
)

// Assessment is the complete risk verdict for one scored transaction.
type Assessment struct {
	ID      string `json:"id"`
	ChainID string `json:"chainId"`
	TxID    string `json:"txId"`

	// Model outputs
	RiskScore         float64 `json:"risk_score"`         // 0-100, rounded to 2 decimals
	IsAttack          bool    `json:"is_attack"`
	AttackProbability float64 `json:"attack_probability"` // 0-1
	AttackType        string  `json:"attack_type"`
	Confidence        float64 `json:"confidence"` // 0 at the decision boundary, 1 at certainty

	// Routing decision
	ProtectionMethod    string  `json:"protection_method"`
	Recommendation      string  `json:"recommendation"`
	EstimatedSavingsUSD float64 `json:"estimated_savings_usd"`

	// Override rules that fired and escalated the protection method
	Overrides []OverrideResult `json:"overrides,omitempty"`

	// Processing metadata
	ModelVersion    string    `json:"modelVersion"`
	InferenceTimeMs float64   `json:"inference_time_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// AssessmentStats aggregates the persisted verdicts for one chain.
type AssessmentStats struct {
	TotalScored     int64   `json:"total_scored"`
	TotalAttacks    int64   `json:"total_attacks"`
	TotalSavingsUSD float64 `json:"total_savings_usd"`
}

// BatchResult carries the ordered assessments for a batch request.
// Assessments[i] always corresponds to input record i; a nil entry means
// that record was rejected and the matching BatchError says why.
type BatchResult struct {
	Assessments []*Assessment `json:"predictions"`
	Errors      []BatchError  `json:"errors,omitempty"`
	Total       int           `json:"total_transactions"`
	TotalTimeMs float64       `json:"total_inference_time_ms"`
}

// BatchError reports a rejected batch record without failing the batch.
type BatchError struct {
	Index  int    `json:"index"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// Attack type labels. AttackNone is used for transactions classified normal.
const (
	AttackNone      = "none"
	AttackSandwich  = "sandwich"
	AttackFrontrun  = "frontrun"
	AttackBackrun   = "backrun"
	AttackArbitrage = "arbitrage"
	AttackUnknown   = "unknown_mev"
)

// Protection methods, least to most protective.
const (
	ProtectionPublic   = "public"
	ProtectionTimelock = "timelock"
	ProtectionPrivate  = "private"
)

// ProtectionRank orders methods so callers can compare protectiveness.
// Higher rank means more protective.
func ProtectionRank(method string) int {
	switch method {
	case ProtectionPublic:
		return 0
	case ProtectionTimelock:
		return 1
	case ProtectionPrivate:
		return 2
	default:
		return -1
	}
}

// Recommendation strings per risk tier.
const (
	RecommendationLow    = "Low risk - Standard submission recommended"
	RecommendationMedium = "Medium risk - Consider private mempool routing"
	RecommendationHigh   = "High risk - Private mempool strongly recommended"
)
