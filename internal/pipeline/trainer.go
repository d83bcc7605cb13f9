package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-web3/kestrel/internal/corpus"
	"github.com/opensource-web3/kestrel/internal/domain"
	"github.com/opensource-web3/kestrel/internal/features"
	"github.com/opensource-web3/kestrel/internal/model"
)

// Metric map keys in Artifact.Metrics, one per base learner plus the vote.
const (
	MetricFast     = "fast"
	MetricAccurate = "accurate"
	MetricEnsemble = "ensemble"
)

const (
	baseVersion       = "1.0.0"
	modelTypeEnsemble = "ensemble"

	// Below this the stratified split degenerates and held-out metrics
	// mean nothing.
	minTrainCorpus = 50
)

// TrainerConfig controls the offline training job.
type TrainerConfig struct {
	CorpusSize    int
	CorpusSeed    int64
	Ratios        corpus.Ratios
	TrainFraction float64
	TopK          int
	Ensemble      model.EnsembleConfig
}

// DefaultTrainerConfig mirrors the shipped training job: a 100k corpus,
// an 80/20 stratified split and the default ensemble.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		CorpusSize:    100000,
		CorpusSeed:    corpus.DefaultSeed,
		Ratios:        corpus.DefaultRatios(),
		TrainFraction: 0.8,
		TopK:          features.DefaultTopK,
		Ensemble:      model.DefaultEnsembleConfig(),
	}
}

// Trainer runs the offline pipeline: corpus, feature fit, ensemble fit,
// held-out evaluation, artifact assembly. Training is all-or-nothing; a
// failed run returns an error and no artifact.
type Trainer struct {
	cfg TrainerConfig
	log *slog.Logger
}

// NewTrainer creates a trainer. A nil logger falls back to slog.Default.
func NewTrainer(cfg TrainerConfig, log *slog.Logger) *Trainer {
	if log == nil {
		log = slog.Default()
	}
	return &Trainer{cfg: cfg, log: log}
}

// Train generates a fresh corpus from the configured seed and trains on it.
func (t *Trainer) Train(ctx context.Context) (*domain.Artifact, error) {
	examples, err := corpus.NewGenerator(t.cfg.CorpusSeed).Generate(t.cfg.CorpusSize, t.cfg.Ratios)
	if err != nil {
		return nil, fmt.Errorf("generate corpus: %w", err)
	}
	return t.TrainOn(ctx, examples)
}

// TrainOn trains on an existing labeled corpus, e.g. one loaded from CSV.
func (t *Trainer) TrainOn(ctx context.Context, examples []corpus.Example) (*domain.Artifact, error) {
	_, span := tracer.Start(ctx, "pipeline.train")
	defer span.End()
	start := time.Now()

	if t.cfg.TrainFraction <= 0 || t.cfg.TrainFraction >= 1 {
		return nil, fmt.Errorf("train fraction %v: must be in (0,1)", t.cfg.TrainFraction)
	}
	if len(examples) < minTrainCorpus {
		return nil, fmt.Errorf("corpus too small: %d rows, need at least %d", len(examples), minTrainCorpus)
	}

	records := make([]features.Record, len(examples))
	labels := make([]int, len(examples))
	for i := range examples {
		records[i] = features.Derive(&examples[i].Tx)
		labels[i] = examples[i].IsAttack
	}

	rng := rand.New(rand.NewSource(t.cfg.CorpusSeed))
	trainIdx, valIdx := stratifiedSplit(labels, t.cfg.TrainFraction, rng)
	if len(trainIdx) == 0 || len(valIdx) == 0 {
		return nil, fmt.Errorf("split left an empty side: %d train, %d validation", len(trainIdx), len(valIdx))
	}

	trainRecs, trainLabels := subsetRecords(records, labels, trainIdx)
	valRecs, valLabels := subsetRecords(records, labels, valIdx)

	transform, err := features.Fit(trainRecs, trainLabels, t.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("fit feature transform: %w", err)
	}
	xTrain, err := transform.ApplyAll(trainRecs)
	if err != nil {
		return nil, fmt.Errorf("scale training rows: %w", err)
	}
	xVal, err := transform.ApplyAll(valRecs)
	if err != nil {
		return nil, fmt.Errorf("scale validation rows: %w", err)
	}

	t.log.Info("training ensemble",
		"train_rows", len(xTrain),
		"validation_rows", len(xVal),
		"features", len(transform.Columns))

	ens := model.NewEnsemble(t.cfg.Ensemble)
	if err := ens.Fit(xTrain, trainLabels); err != nil {
		return nil, fmt.Errorf("fit ensemble: %w", err)
	}

	metrics, err := holdoutMetrics(ens, xVal, valLabels)
	if err != nil {
		return nil, fmt.Errorf("evaluate on held-out split: %w", err)
	}

	payload, err := json.Marshal(artifactPayload{Transform: transform, Ensemble: ens})
	if err != nil {
		return nil, fmt.Errorf("serialize model state: %w", err)
	}

	now := time.Now().UTC()
	art := &domain.Artifact{
		ID:         uuid.New().String(),
		Version:    newVersion(now),
		ModelType:  modelTypeEnsemble,
		CreatedAt:  now,
		CorpusSeed: t.cfg.CorpusSeed,
		CorpusSize: len(examples),
		Columns:    transform.Columns,
		Metrics:    metrics,
		Payload:    payload,
	}

	em := metrics[MetricEnsemble]
	t.log.Info("training complete",
		"version", art.Version,
		"duration_ms", time.Since(start).Milliseconds(),
		"accuracy", em.Accuracy,
		"f1", em.F1,
		"auc", em.AUC)
	return art, nil
}

// holdoutMetrics evaluates each base learner and the blended vote on the
// validation split, all against the same decision threshold.
func holdoutMetrics(ens *model.Ensemble, x [][]float64, y []int) (map[string]domain.EvalMetrics, error) {
	fast, err := ens.Fast.Predict(x)
	if err != nil {
		return nil, err
	}
	accurate, err := ens.Accurate.Predict(x)
	if err != nil {
		return nil, err
	}
	blended, err := ens.Predict(x)
	if err != nil {
		return nil, err
	}
	th := ens.Config.Threshold
	return map[string]domain.EvalMetrics{
		MetricFast:     model.Evaluate(fast, y, th),
		MetricAccurate: model.Evaluate(accurate, y, th),
		MetricEnsemble: model.Evaluate(blended, y, th),
	}, nil
}

// newVersion stamps artifacts like "1.0.0-20250825T093012Z" so retrains
// sort chronologically.
func newVersion(now time.Time) string {
	return baseVersion + "-" + now.Format("20060102T150405Z")
}

// stratifiedSplit partitions row indices into train and validation sides,
// preserving the class balance. Shuffling happens within each class, so the
// split is deterministic for a given source.
func stratifiedSplit(labels []int, trainFrac float64, rng *rand.Rand) (train, val []int) {
	byClass := make(map[int][]int)
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes) // map order is random; the draw must not be

	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		cut := int(trainFrac * float64(len(idx)))
		train = append(train, idx[:cut]...)
		val = append(val, idx[cut:]...)
	}
	return train, val
}

func subsetRecords(records []features.Record, labels []int, idx []int) ([]features.Record, []int) {
	recs := make([]features.Record, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		recs[i] = records[j]
		ys[i] = labels[j]
	}
	return recs, ys
}
