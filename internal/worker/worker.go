// Package worker provides async transaction scoring from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-web3/kestrel/internal/domain"
	"github.com/opensource-web3/kestrel/internal/features"
	"github.com/opensource-web3/kestrel/internal/pipeline"
	"github.com/opensource-web3/kestrel/internal/rules"
)

// Cache TTLs for async verdicts, matching the synchronous scoring path.
// Counters roll over hourly; the stats endpoint reports them as
// last-hour tallies.
const (
	verdictTTL    = 5 * time.Minute
	counterWindow = time.Hour
)

// Worker consumes submitted transactions from the EventBus, scores them
// and publishes the verdicts back.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	engine    *pipeline.Engine
	overrides *rules.Engine

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// ChainIDs is the list of chains to process (empty = the global
	// dev/test stream)
	ChainIDs []string
}

// NewWorker creates a new async worker. Repository and cache may be nil;
// persistence and verdict caching are then skipped.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, engine *pipeline.Engine, overrides *rules.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		cache:     cache,
		engine:    engine,
		overrides: overrides,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing submissions for the given chains.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.ChainIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, chainID := range cfg.ChainIDs {
		if err := w.startChainWorker(chainID); err != nil {
			slog.Error("failed to start worker for chain",
				"chain_id", chainID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"chain_count", len(cfg.ChainIDs),
	)

	return nil
}

// startGlobalWorker starts a worker on the "_global" stream (for testing/dev).
// Production deployments subscribe per chain.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicTransactionSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startChainWorker starts a worker for a specific chain.
func (w *Worker) startChainWorker(chainID string) error {
	sub, err := w.bus.Subscribe(w.ctx, chainID, domain.TopicTransactionSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.processTransaction(ctx, chainID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("chain worker started",
		"chain_id", chainID,
		"topic", domain.TopicTransactionSubmitted,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processTransaction(ctx, msg.ChainID, msg)
}

// processTransaction scores one submitted transaction end to end.
func (w *Worker) processTransaction(ctx context.Context, chainID string, msg *domain.Message) error {
	start := time.Now()

	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		slog.Error("failed to parse submitted transaction",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// The payload's chain wins over the subscription's
	if tx.ChainID != "" {
		chainID = tx.ChainID
	}
	tx.ChainID = chainID

	slog.Debug("scoring submitted transaction",
		"tx_id", tx.ID,
		"chain_id", chainID,
	)

	assessment, err := w.engine.Score(ctx, &tx)
	if err != nil {
		// Malformed submissions are dropped, not retried
		slog.Error("async scoring failed",
			"tx_id", tx.ID,
			"chain_id", chainID,
			"error", err,
		)
		return err
	}
	assessment.ChainID = chainID

	if w.overrides != nil {
		w.overrides.Apply(&tx, features.Derive(&tx), assessment)
	}

	if w.repo != nil {
		if err := w.repo.SaveTransaction(ctx, chainID, &tx); err != nil {
			slog.Error("failed to save transaction",
				"tx_id", tx.ID,
				"error", err,
			)
		}
		if err := w.repo.SaveAssessment(ctx, chainID, assessment); err != nil {
			slog.Error("failed to save assessment",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	if w.cache != nil {
		_ = w.cache.SetAssessment(ctx, chainID, tx.ID, assessment, verdictTTL)
		_, _ = w.cache.IncrementCounter(ctx, chainID, domain.CounterScored, counterWindow)
		if assessment.IsAttack {
			_, _ = w.cache.IncrementCounter(ctx, chainID, domain.CounterAttacks, counterWindow)
		}
	}

	resultPayload, _ := json.Marshal(assessment)
	if err := w.bus.Publish(ctx, chainID, domain.TopicAssessmentCompleted, resultPayload); err != nil {
		slog.Error("failed to publish assessment",
			"tx_id", tx.ID,
			"error", err,
		)
	}

	if assessment.IsAttack {
		if err := w.bus.Publish(ctx, chainID, domain.TopicAttackDetected, resultPayload); err != nil {
			slog.Error("failed to publish attack alert",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	slog.Info("transaction scored",
		"tx_id", tx.ID,
		"chain_id", chainID,
		"risk_score", assessment.RiskScore,
		"attack_type", assessment.AttackType,
		"protection", assessment.ProtectionMethod,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
