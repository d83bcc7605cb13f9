package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-web3/kestrel/internal/domain"
	"github.com/opensource-web3/kestrel/internal/features"
	"github.com/opensource-web3/kestrel/internal/pipeline"
	"github.com/opensource-web3/kestrel/internal/repository"
	"github.com/opensource-web3/kestrel/internal/rules"
)

// Cache TTLs for the synchronous scoring path, matching the async worker.
// Counters roll over hourly and feed the stats endpoint's last-hour tallies.
const (
	verdictTTL    = 5 * time.Minute
	counterWindow = time.Hour
)

// maxBatchSize bounds a single batch request.
const maxBatchSize = 1000

// Handler holds dependencies for API handlers. The scoring engine and the
// override engine are required; repository, cache and bus may be nil, which
// skips persistence, verdict caching and alert publishing respectively.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *pipeline.Engine
	overrides *rules.Engine
	version   string
	startedAt time.Time
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *pipeline.Engine, overrides *rules.Engine, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		overrides: overrides,
		version:   version,
		startedAt: time.Now().UTC(),
	}
}

// Score handles POST /score requests. The body is one raw transaction
// record; the response is the complete risk assessment.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	chainID := GetChainID(ctx)

	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	// The header's chain wins over anything in the payload
	tx.ChainID = chainID

	// Identical resubmissions inside the TTL are answered from cache
	if h.cache != nil {
		if cached, err := h.cache.GetAssessment(ctx, chainID, tx.ID); err == nil && cached != nil {
			cachedVerdictsTotal.WithLabelValues(chainID).Inc()
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	a, err := h.engine.Score(ctx, &tx)
	if err != nil {
		writeScoreError(w, err)
		return
	}
	a.ChainID = chainID

	h.finishAssessment(ctx, chainID, &tx, a)

	recordScore(chainID, a)
	scoreDuration.Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, a)
}

// BatchRequest is the request body for POST /score/batch.
type BatchRequest struct {
	Transactions []*domain.Transaction `json:"transactions"`
}

// ScoreBatch handles POST /score/batch requests. Records are scored
// independently in input order; rejected records are reported in the
// response without failing the batch.
func (h *Handler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	chainID := GetChainID(ctx)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions is required",
		})
		return
	}
	if len(req.Transactions) > maxBatchSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("batch size %d exceeds limit of %d", len(req.Transactions), maxBatchSize),
		})
		return
	}

	for _, tx := range req.Transactions {
		if tx == nil {
			continue
		}
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		tx.ChainID = chainID
	}

	res, err := h.engine.ScoreBatch(ctx, req.Transactions)
	if err != nil {
		writeScoreError(w, err)
		return
	}

	for i, a := range res.Assessments {
		if a == nil {
			continue
		}
		a.ChainID = chainID
		h.finishAssessment(ctx, chainID, req.Transactions[i], a)
		recordScore(chainID, a)
	}

	scoreDuration.Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, res)
}

// finishAssessment runs the post-score path shared by the scoring handlers:
// override escalation, persistence, verdict caching, counters and the
// attack alert.
func (h *Handler) finishAssessment(ctx context.Context, chainID string, tx *domain.Transaction, a *domain.Assessment) {
	if h.overrides != nil {
		h.overrides.Apply(tx, features.Derive(tx), a)
	}

	if h.repo != nil {
		if err := h.repo.SaveTransaction(ctx, chainID, tx); err != nil {
			slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		}
		if err := h.repo.SaveAssessment(ctx, chainID, a); err != nil {
			slog.Error("failed to save assessment", "assessment_id", a.ID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetAssessment(ctx, chainID, tx.ID, a, verdictTTL); err != nil {
			slog.Warn("failed to cache verdict", "tx_id", tx.ID, "error", err)
		}
		h.cache.IncrementCounter(ctx, chainID, domain.CounterScored, counterWindow)
		if a.IsAttack {
			h.cache.IncrementCounter(ctx, chainID, domain.CounterAttacks, counterWindow)
		}
	}

	if h.bus != nil && a.IsAttack {
		if payload, err := json.Marshal(a); err == nil {
			if err := h.bus.Publish(ctx, chainID, domain.TopicAttackDetected, payload); err != nil {
				slog.Warn("failed to publish attack alert", "tx_id", tx.ID, "error", err)
			}
		}
	}
}

// writeScoreError maps scoring failures onto HTTP statuses: 503 while no
// model is loaded, 400 for a rejected field, 500 otherwise.
func writeScoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrModelNotReady) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model not ready",
		})
		return
	}

	var fe *domain.FieldError
	if errors.As(err, &fe) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fe.Error(),
			"field": fe.Field,
		})
		return
	}

	slog.Error("scoring failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "scoring failed",
	})
}

// GetAssessment retrieves a persisted assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chainID := GetChainID(ctx)
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	a, err := h.repo.GetAssessment(ctx, chainID, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get assessment", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get assessment",
		})
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// GetTransaction retrieves a persisted transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chainID := GetChainID(ctx)
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, chainID, txID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetModel returns the active model snapshot's metadata, payload omitted.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	art, err := h.engine.Model()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model not ready",
		})
		return
	}

	writeJSON(w, http.StatusOK, art)
}

// ReloadModel loads the newest stored artifact into the scoring engine.
// The previous snapshot keeps serving until the swap succeeds.
func (h *Handler) ReloadModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chainID := GetChainID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	art, err := h.repo.LatestArtifact(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no model artifact available",
		})
		return
	}
	if err != nil {
		slog.Error("failed to load latest artifact", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load artifact",
		})
		return
	}

	if err := h.engine.Load(art); err != nil {
		slog.Error("failed to load model", "version", art.Version, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load model: " + err.Error(),
		})
		return
	}

	modelReloadsTotal.Inc()

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]string{
			"artifactId": art.ID,
			"version":    art.Version,
		})
		if err := h.bus.Publish(ctx, chainID, domain.TopicModelLoaded, payload); err != nil {
			slog.Warn("failed to publish model loaded event", "error", err)
		}
	}

	slog.Info("model reloaded", "version", art.Version)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "model reloaded",
		"version": art.Version,
	})
}

// StatsResponse is the response for GET /stats.
type StatsResponse struct {
	ChainID         string      `json:"chain_id"`
	ScoredLastHour  int64       `json:"scored_last_hour"`
	AttacksLastHour int64       `json:"attacks_detected_last_hour"`
	TotalScored     int64       `json:"total_scored"`
	TotalAttacks    int64       `json:"total_attacks"`
	TotalSavingsUSD float64     `json:"total_savings_usd"`
	Model           *ModelStats `json:"model,omitempty"`
}

// ModelStats summarizes the active model snapshot.
type ModelStats struct {
	Version              string                        `json:"version"`
	ModelType            string                        `json:"model_type"`
	FeatureCount         int                           `json:"feature_count"`
	SupportedAttackTypes []string                      `json:"supported_attack_types"`
	Metrics              map[string]domain.EvalMetrics `json:"metrics,omitempty"`
	TrainedAt            time.Time                     `json:"trained_at"`
}

// Stats returns chain-scoped scoring statistics: last-hour counters from
// the cache, all-time totals from the repository and active model metadata.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chainID := GetChainID(ctx)

	resp := StatsResponse{ChainID: chainID}

	if h.cache != nil {
		resp.ScoredLastHour, _ = h.cache.GetCounter(ctx, chainID, domain.CounterScored)
		resp.AttacksLastHour, _ = h.cache.GetCounter(ctx, chainID, domain.CounterAttacks)
	}

	if h.repo != nil {
		stats, err := h.repo.AssessmentStats(ctx, chainID)
		if err != nil {
			slog.Error("failed to aggregate assessments", "error", err)
		} else {
			resp.TotalScored = stats.TotalScored
			resp.TotalAttacks = stats.TotalAttacks
			resp.TotalSavingsUSD = stats.TotalSavingsUSD
		}
	}

	if art, err := h.engine.Model(); err == nil {
		resp.Model = &ModelStats{
			Version:      art.Version,
			ModelType:    art.ModelType,
			FeatureCount: len(art.Columns),
			SupportedAttackTypes: []string{
				domain.AttackSandwich, domain.AttackFrontrun,
				domain.AttackBackrun, domain.AttackArbitrage,
			},
			Metrics:   art.Metrics,
			TrainedAt: art.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         status,
		"model_loaded":   h.engine.Ready(),
		"version":        h.version,
		"uptime_seconds": math.Round(time.Since(h.startedAt).Seconds()),
	})
}

// Ready reports whether the server can score traffic. Readiness requires a
// loaded model snapshot; scoring requests return 503 until then.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ready":  false,
			"reason": "model not ready",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready": true,
	})
}

// OverrideRequest is the request body for POST /overrides.
type OverrideRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	EscalateTo  string `json:"escalateTo"`
	Enabled     bool   `json:"enabled"`

	// Global applies the rule on every chain instead of the caller's.
	Global bool `json:"global,omitempty"`
}

// ListOverrides returns the override rules active for the caller's chain:
// its own rules plus the global ones.
func (h *Handler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	chainID := GetChainID(r.Context())

	overrides := make([]*domain.OverrideRule, 0)
	for _, rule := range h.overrides.Loaded() {
		if rule.ChainID == "" || rule.ChainID == chainID {
			overrides = append(overrides, rule)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"overrides": overrides,
		"count":     len(overrides),
	})
}

// CreateOverride validates, persists and hot-loads a new override rule.
// The rule is scoped to the caller's chain unless the request marks it
// global.
func (h *Handler) CreateOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chainID := GetChainID(ctx)

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleChain := chainID
	if req.Global {
		ruleChain = ""
	}

	rule := &domain.OverrideRule{
		ID:          req.ID,
		ChainID:     ruleChain,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		EscalateTo:  req.EscalateTo,
		Enabled:     req.Enabled,
	}

	// Compile check before anything is stored
	if err := h.overrides.Validate(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveOverride(ctx, rule.ChainID, rule); err != nil {
			slog.Error("failed to save override rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save override rule",
			})
			return
		}
	}

	if rule.Enabled {
		if err := h.overrides.Load(rule); err != nil {
			slog.Error("failed to load override rule", "id", rule.ID, "error", err)
		}
	}

	slog.Info("override rule created", "id", rule.ID, "chain_id", rule.ChainID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule": rule,
	})
}

// DeleteOverride disables an override rule in storage and rebuilds the
// engine so it drops out of evaluation. Pass ?global=true to address a
// global rule.
func (h *Handler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chainID := GetChainID(ctx)
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	ruleChain := chainID
	if r.URL.Query().Get("global") == "true" {
		ruleChain = ""
	}

	err := h.repo.DeleteOverride(ctx, ruleChain, ruleID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "override rule not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to delete override rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete override rule",
		})
		return
	}

	if _, err := h.reloadOverrideEngine(ctx); err != nil {
		slog.Error("failed to reload override rules after delete", "error", err)
	}

	slog.Info("override rule deleted", "id", ruleID, "chain_id", ruleChain)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "override rule disabled",
	})
}

// ReloadOverrides replaces the engine's rule set with every enabled rule
// in storage, across all chains.
func (h *Handler) ReloadOverrides(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	count, err := h.reloadOverrideEngine(r.Context())
	if err != nil {
		slog.Error("failed to reload override rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload override rules",
		})
		return
	}

	slog.Info("override rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "override rules reloaded",
		"count":   count,
	})
}

// reloadOverrideEngine swaps in the stored rule set. An empty chain filter
// lists every rule, so rules scoped to other chains survive the reload.
func (h *Handler) reloadOverrideEngine(ctx context.Context) (int, error) {
	stored, err := h.repo.ListOverrides(ctx, "")
	if err != nil {
		return 0, err
	}
	if err := h.overrides.Reload(stored); err != nil {
		return 0, err
	}
	return h.overrides.Count(), nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
