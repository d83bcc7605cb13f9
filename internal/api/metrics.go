package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opensource-web3/kestrel/internal/domain"
)

var (
	scoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_scores_total",
		Help: "Transactions scored, by chain and protection method",
	}, []string{"chain", "protection"})

	attacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_attacks_detected_total",
		Help: "Attack-classed transactions, by chain and attack type",
	}, []string{"chain", "attack_type"})

	scoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kestrel_score_duration_seconds",
		Help:    "End-to-end latency of score requests",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	cachedVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_cached_verdicts_total",
		Help: "Score requests answered from the verdict cache, by chain",
	}, []string{"chain"})

	modelReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_model_reloads_total",
		Help: "Successful model snapshot reloads",
	})
)

// recordScore updates the per-verdict counters for one completed assessment.
// Request latency is observed separately so batch requests count once.
func recordScore(chainID string, a *domain.Assessment) {
	scoresTotal.WithLabelValues(chainID, a.ProtectionMethod).Inc()
	if a.IsAttack {
		attacksTotal.WithLabelValues(chainID, a.AttackType).Inc()
	}
}
