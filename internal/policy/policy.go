// Package policy turns a blended attack probability into the routing
// verdict: risk score, protection method, attack-type label, confidence and
// the estimated savings from protected submission. Decisions are pure
// functions of the probability and the raw transaction; given a probability
// in [0,1] this stage cannot fail.
package policy

import (
	"math"

	"github.com/opensource-web3/kestrel/internal/domain"
)

// Risk tier boundaries in score points. Scores below the timelock floor
// route to the public mempool, scores at or above the private floor to a
// private relay.
const (
	TimelockFloor = 30.0
	PrivateFloor  = 70.0
)

// Attack-type pattern constants. The first-match order and the thresholds
// are observed behavior, kept as-is rather than re-derived.
const (
	frontrunMaxPosition = 0.2
	frontrunGasFactor   = 1.5
	sandwichMinSlippage = 1.0
	backrunMinPosition  = 0.7
)

// MEV share of transaction value assumed captured per risk tier, used for
// the savings estimate.
const (
	lowRiskMEVShare  = 0.001
	midRiskMEVShare  = 0.005
	highRiskMEVShare = 0.015
)

// Decide maps the ensemble probability and the raw transaction onto an
// assessment. Identity, version and timing fields are left for the caller to
// fill. Protection strictly escalates with probability: for p1 < p2 the
// method chosen for p2 is never less protective.
func Decide(p float64, tx *domain.Transaction, cfg domain.ScoringConfig) *domain.Assessment {
	riskScore := round2(p * 100)
	isAttack := p >= cfg.DecisionThreshold

	a := &domain.Assessment{
		TxID:                tx.ID,
		ChainID:             tx.ChainID,
		RiskScore:           riskScore,
		IsAttack:            isAttack,
		AttackProbability:   round4(p),
		AttackType:          domain.AttackNone,
		Confidence:          round4(math.Abs(p-0.5) * 2),
		ProtectionMethod:    protectionFor(riskScore),
		Recommendation:      recommendationFor(riskScore),
		EstimatedSavingsUSD: estimateSavings(riskScore, tx.ValueETH, cfg.RefAssetPriceUSD),
	}
	if isAttack {
		a.AttackType = attackType(tx, cfg.ArbLiquidityFloor)
	}
	return a
}

func protectionFor(riskScore float64) string {
	switch {
	case riskScore < TimelockFloor:
		return domain.ProtectionPublic
	case riskScore < PrivateFloor:
		return domain.ProtectionTimelock
	default:
		return domain.ProtectionPrivate
	}
}

func recommendationFor(riskScore float64) string {
	switch {
	case riskScore < TimelockFloor:
		return domain.RecommendationLow
	case riskScore < PrivateFloor:
		return domain.RecommendationMedium
	default:
		return domain.RecommendationHigh
	}
}

// attackType labels an attack-classed transaction by the first matching
// pattern. A record satisfying several patterns keeps the first label.
func attackType(tx *domain.Transaction, arbLiquidityFloor float64) string {
	switch {
	case tx.PositionInBlock < frontrunMaxPosition && tx.GasPriceGwei > tx.NetworkGasPrice*frontrunGasFactor:
		return domain.AttackFrontrun
	case tx.HasBundle == 1 && tx.SlippageTol > sandwichMinSlippage:
		return domain.AttackSandwich
	case tx.PositionInBlock > backrunMinPosition:
		return domain.AttackBackrun
	case tx.LiquidityDepth > arbLiquidityFloor:
		return domain.AttackArbitrage
	default:
		return domain.AttackUnknown
	}
}

// estimateSavings prices the MEV a protected submission avoids: a per-tier
// share of transaction value at the configured reference price. A price
// oracle would replace the reference price in production.
func estimateSavings(riskScore, valueETH, refPriceUSD float64) float64 {
	share := lowRiskMEVShare
	switch {
	case riskScore >= PrivateFloor:
		share = highRiskMEVShare
	case riskScore >= TimelockFloor:
		share = midRiskMEVShare
	}
	return round2(valueETH * refPriceUSD * share)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
