// Package pipeline wires the scoring stages together. The Trainer runs the
// offline path (corpus, feature fit, ensemble fit, held-out evaluation) and
// assembles a versioned artifact; the Engine serves scores from an immutable
// snapshot of one loaded artifact.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-web3/kestrel/internal/domain"
	"github.com/opensource-web3/kestrel/internal/features"
	"github.com/opensource-web3/kestrel/internal/model"
	"github.com/opensource-web3/kestrel/internal/policy"
)

// ErrModelNotReady is returned when scoring is attempted before a model
// snapshot has been loaded.
var ErrModelNotReady = errors.New("model not ready")

var tracer = otel.Tracer("kestrel-pipeline")

// artifactPayload is the single serialized unit inside Artifact.Payload.
// Transform and ensemble travel together so they can never drift apart.
type artifactPayload struct {
	Transform *features.Transform `json:"transform"`
	Ensemble  *model.Ensemble     `json:"ensemble"`
}

// snapshot is one immutable loaded model. The engine swaps whole snapshots,
// so a score in flight keeps the transform and learners it started with.
type snapshot struct {
	meta      domain.Artifact // payload stripped
	transform *features.Transform
	ensemble  *model.Ensemble
	loadedAt  time.Time
}

// Engine scores transactions against the active model snapshot.
type Engine struct {
	cfg  domain.ScoringConfig
	log  *slog.Logger
	snap atomic.Pointer[snapshot]
}

// NewEngine creates an engine with no model loaded. Score returns
// ErrModelNotReady until Load succeeds.
func NewEngine(cfg domain.ScoringConfig, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, log: log}
}

// Load decodes an artifact and publishes it as the active snapshot. The
// previous snapshot stays in service until the swap; a decode or validation
// failure leaves it untouched.
func (e *Engine) Load(art *domain.Artifact) error {
	if art == nil || len(art.Payload) == 0 {
		return fmt.Errorf("load model: empty artifact")
	}
	var p artifactPayload
	if err := json.Unmarshal(art.Payload, &p); err != nil {
		return fmt.Errorf("load model %s: decode payload: %w", art.ID, err)
	}
	if p.Transform == nil || len(p.Transform.Columns) == 0 {
		return fmt.Errorf("load model %s: payload missing feature transform", art.ID)
	}
	if !p.Ensemble.Fitted() {
		return fmt.Errorf("load model %s: payload holds an unfitted ensemble", art.ID)
	}
	if p.Ensemble.Fast.NumFeatures != len(p.Transform.Columns) {
		return fmt.Errorf("load model %s: transform emits %d features, ensemble expects %d",
			art.ID, len(p.Transform.Columns), p.Ensemble.Fast.NumFeatures)
	}

	meta := *art
	meta.Payload = nil
	e.snap.Store(&snapshot{
		meta:      meta,
		transform: p.Transform,
		ensemble:  p.Ensemble,
		loadedAt:  time.Now().UTC(),
	})
	e.log.Info("model snapshot loaded",
		"artifact_id", art.ID,
		"version", art.Version,
		"features", len(p.Transform.Columns))
	return nil
}

// Ready reports whether a model snapshot is loaded.
func (e *Engine) Ready() bool {
	return e.snap.Load() != nil
}

// Model returns the active snapshot's artifact metadata, payload omitted.
func (e *Engine) Model() (*domain.Artifact, error) {
	s := e.snap.Load()
	if s == nil {
		return nil, ErrModelNotReady
	}
	meta := s.meta
	return &meta, nil
}

// Score validates one transaction and runs the full scoring path:
// derivation, transform, ensemble vote, routing decision.
func (e *Engine) Score(ctx context.Context, tx *domain.Transaction) (*domain.Assessment, error) {
	s := e.snap.Load()
	if s == nil {
		return nil, ErrModelNotReady
	}
	if tx == nil {
		return nil, &domain.FieldError{Field: "transaction", Reason: "missing"}
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	_, span := tracer.Start(ctx, "engine.score",
		trace.WithAttributes(attribute.String("tx.id", tx.ID)))
	defer span.End()
	start := time.Now()

	row, err := s.transform.Apply(features.Derive(tx))
	if err != nil {
		return nil, fmt.Errorf("apply transform: %w", err)
	}
	p, err := s.ensemble.PredictOne(row)
	if err != nil {
		return nil, fmt.Errorf("ensemble predict: %w", err)
	}

	a := policy.Decide(p, tx, e.cfg)
	a.ID = uuid.New().String()
	a.ModelVersion = s.meta.Version
	a.InferenceTimeMs = elapsedMs(start)
	a.Timestamp = time.Now().UTC()

	span.SetAttributes(
		attribute.Float64("risk.score", a.RiskScore),
		attribute.String("attack.type", a.AttackType),
		attribute.String("protection.method", a.ProtectionMethod),
	)
	return a, nil
}

// ScoreBatch scores records independently, preserving input order. A record
// that fails validation is reported in Errors and leaves a nil slot; it
// never aborts the rest of the batch.
func (e *Engine) ScoreBatch(ctx context.Context, txs []*domain.Transaction) (*domain.BatchResult, error) {
	if e.snap.Load() == nil {
		return nil, ErrModelNotReady
	}
	ctx, span := tracer.Start(ctx, "engine.score_batch",
		trace.WithAttributes(attribute.Int("batch.size", len(txs))))
	defer span.End()
	start := time.Now()

	res := &domain.BatchResult{
		Assessments: make([]*domain.Assessment, len(txs)),
		Total:       len(txs),
	}
	for i, tx := range txs {
		a, err := e.Score(ctx, tx)
		if err != nil {
			var fe *domain.FieldError
			if errors.As(err, &fe) {
				res.Errors = append(res.Errors, domain.BatchError{Index: i, Field: fe.Field, Reason: fe.Reason})
				continue
			}
			return nil, err
		}
		res.Assessments[i] = a
	}
	res.TotalTimeMs = elapsedMs(start)
	return res, nil
}

// elapsedMs reports wall time in milliseconds, rounded to two decimals to
// match the wire format.
func elapsedMs(start time.Time) float64 {
	return math.Round(float64(time.Since(start).Microseconds())/10) / 100
}
