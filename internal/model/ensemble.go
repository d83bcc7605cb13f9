// Package model implements the two-learner scoring ensemble: a bagged forest
// tuned for throughput, a gradient-boosted learner tuned for accuracy, and
// the soft-voting combiner that blends their probabilities. Fitted models are
// immutable and serialize to a single JSON document, so a model version
// travels as one artifact.
package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFitted is returned when predictions are requested before Fit.
	ErrNotFitted = errors.New("model: not fitted")

	// ErrBadTrainingSet is returned when the training matrix cannot
	// support a fit.
	ErrBadTrainingSet = errors.New("model: bad training set")

	// ErrDimension is returned when a prediction row does not match the
	// fitted feature width.
	ErrDimension = errors.New("model: feature dimension mismatch")
)

// EnsembleConfig holds the voting weights and decision threshold. The
// accurate learner outvotes the fast one 1.5 to 1.
type EnsembleConfig struct {
	FastWeight     float64 `json:"fastWeight"`
	AccurateWeight float64 `json:"accurateWeight"`
	Threshold      float64 `json:"threshold"`
	Seed           int64   `json:"seed"`
}

// DefaultEnsembleConfig returns the shipped voting configuration.
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{
		FastWeight:     1.0,
		AccurateWeight: 1.5,
		Threshold:      0.5,
		Seed:           42,
	}
}

// Ensemble combines the two base learners by weighted soft voting:
//
//	p = (fastWeight·p_fast + accurateWeight·p_accurate) / (fastWeight + accurateWeight)
//
// A transaction is classed as an attack when p reaches the threshold.
type Ensemble struct {
	Config   EnsembleConfig `json:"config"`
	Fast     *Forest        `json:"fast"`
	Accurate *Boosting      `json:"accurate"`
}

// NewEnsemble returns an unfitted ensemble. Both base learners carry their
// default hyperparameters, seeded from the ensemble seed.
func NewEnsemble(cfg EnsembleConfig) *Ensemble {
	fc := DefaultForestConfig()
	fc.Seed = cfg.Seed
	bc := DefaultBoostingConfig()
	bc.Seed = cfg.Seed
	return &Ensemble{
		Config:   cfg,
		Fast:     NewForest(fc),
		Accurate: NewBoosting(bc),
	}
}

// Fit trains both base learners on the same rows and labels. The learners
// are independent, so they fit concurrently; either failure aborts the fit
// and leaves the ensemble unusable rather than half-trained.
func (e *Ensemble) Fit(x [][]float64, y []int) error {
	if e.Config.FastWeight+e.Config.AccurateWeight <= 0 {
		return fmt.Errorf("%w: voting weights must sum to a positive value", ErrBadTrainingSet)
	}
	var g errgroup.Group
	g.Go(func() error { return e.Fast.Fit(x, y) })
	g.Go(func() error { return e.Accurate.Fit(x, y) })
	return g.Wait()
}

// Fitted reports whether both base learners have been trained.
func (e *Ensemble) Fitted() bool {
	return e != nil &&
		e.Fast != nil && len(e.Fast.Roots) > 0 &&
		e.Accurate != nil && len(e.Accurate.Roots) > 0
}

// PredictOne returns the blended attack probability for one scaled row.
func (e *Ensemble) PredictOne(row []float64) (float64, error) {
	if !e.Fitted() {
		return 0, ErrNotFitted
	}
	pf, err := e.Fast.PredictOne(row)
	if err != nil {
		return 0, err
	}
	pa, err := e.Accurate.PredictOne(row)
	if err != nil {
		return 0, err
	}
	wsum := e.Config.FastWeight + e.Config.AccurateWeight
	return (e.Config.FastWeight*pf + e.Config.AccurateWeight*pa) / wsum, nil
}

// Predict scores every row, preserving input order.
func (e *Ensemble) Predict(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		p, err := e.PredictOne(row)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// IsAttack applies the decision threshold to a blended probability.
func (e *Ensemble) IsAttack(p float64) bool {
	return p >= e.Config.Threshold
}

// Save serializes the fitted ensemble to one JSON document.
func (e *Ensemble) Save() ([]byte, error) {
	if !e.Fitted() {
		return nil, ErrNotFitted
	}
	return json.Marshal(e)
}

// Load deserializes an ensemble previously produced by Save.
func Load(data []byte) (*Ensemble, error) {
	var e Ensemble
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("model: decode ensemble: %w", err)
	}
	if !e.Fitted() {
		return nil, fmt.Errorf("%w: payload holds no fitted learners", ErrNotFitted)
	}
	return &e, nil
}

// checkTrainingSet validates shape and class coverage, returning the feature
// width.
func checkTrainingSet(x [][]float64, y []int) (int, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("%w: no rows", ErrBadTrainingSet)
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d rows vs %d labels", ErrBadTrainingSet, len(x), len(y))
	}
	d := len(x[0])
	if d == 0 {
		return 0, fmt.Errorf("%w: rows carry no features", ErrBadTrainingSet)
	}
	var pos, neg int
	for i, row := range x {
		if len(row) != d {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrBadTrainingSet, i, len(row), d)
		}
		switch y[i] {
		case 0:
			neg++
		case 1:
			pos++
		default:
			return 0, fmt.Errorf("%w: label %d at row %d is not binary", ErrBadTrainingSet, y[i], i)
		}
	}
	if pos == 0 || neg == 0 {
		return 0, fmt.Errorf("%w: need both classes, got %d attack and %d normal", ErrBadTrainingSet, pos, neg)
	}
	return d, nil
}

// balancedWeights gives each class the same total weight, compensating for
// the skewed attack ratio in the corpus: w = n / (2·n_class).
func balancedWeights(y []int) []float64 {
	var pos int
	for _, v := range y {
		if v == 1 {
			pos++
		}
	}
	n := len(y)
	wPos := float64(n) / (2 * float64(pos))
	wNeg := float64(n) / (2 * float64(n-pos))
	w := make([]float64, n)
	for i, v := range y {
		if v == 1 {
			w[i] = wPos
		} else {
			w[i] = wNeg
		}
	}
	return w
}

func floatLabels(y []int) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = float64(v)
	}
	return out
}
