package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// BoostingConfig bounds the gradient-boosted accurate learner.
type BoostingConfig struct {
	Stages         int     `json:"stages"`
	LearningRate   float64 `json:"learningRate"`
	MaxDepth       int     `json:"maxDepth"`
	MaxLeaves      int     `json:"maxLeaves"`
	MinSamplesLeaf int     `json:"minSamplesLeaf"`
	RowSubsample   float64 `json:"rowSubsample"`
	ColSubsample   float64 `json:"colSubsample"`
	Seed           int64   `json:"seed"`
}

// DefaultBoostingConfig returns the accurate-learner hyperparameters the
// shipped model trains with.
func DefaultBoostingConfig() BoostingConfig {
	return BoostingConfig{
		Stages:         200,
		LearningRate:   0.05,
		MaxDepth:       12,
		MaxLeaves:      31,
		MinSamplesLeaf: 20,
		RowSubsample:   0.8,
		ColSubsample:   0.8,
		Seed:           42,
	}
}

// Boosting is the accurate learner: leaf-bounded regression trees fit in
// sequence on the log-loss gradient, each stage correcting the running score
// by a damped Newton step. Its probability is the logistic of the summed
// stage scores.
type Boosting struct {
	Config      BoostingConfig `json:"config"`
	NumFeatures int            `json:"numFeatures"`
	Init        float64        `json:"init"` // initial log-odds
	Roots       []*Node        `json:"roots"`
}

// NewBoosting returns an unfitted boosted learner with the given
// configuration.
func NewBoosting(cfg BoostingConfig) *Boosting {
	return &Boosting{Config: cfg}
}

// Fit trains the boosted stages on scaled feature rows and binary labels.
// Rows carry balanced class weights. Every stage sees a fresh row subsample
// and column subsample drawn from the seeded stream, so a fit is fully
// reproducible.
func (b *Boosting) Fit(x [][]float64, y []int) error {
	d, err := checkTrainingSet(x, y)
	if err != nil {
		return err
	}
	cfg := b.Config
	if cfg.Stages <= 0 {
		return fmt.Errorf("%w: boosting needs at least one stage, got %d", ErrBadTrainingSet, cfg.Stages)
	}
	if cfg.LearningRate <= 0 {
		return fmt.Errorf("%w: learning rate must be positive, got %v", ErrBadTrainingSet, cfg.LearningRate)
	}

	n := len(x)
	target := floatLabels(y)
	w := balancedWeights(y)

	// Initial score is the weighted base-rate log-odds. Balanced weights
	// center it at zero.
	var sw, swt float64
	for i := range target {
		sw += w[i]
		swt += w[i] * target[i]
	}
	p0 := swt / sw
	b.Init = math.Log(p0 / (1 - p0))

	rowCount := int(cfg.RowSubsample * float64(n))
	if rowCount < 1 {
		rowCount = 1
	}
	if rowCount > n {
		rowCount = n
	}
	colCount := int(cfg.ColSubsample * float64(d))
	if colCount < 1 {
		colCount = 1
	}
	if colCount > d {
		colCount = d
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	score := make([]float64, n)
	prob := make([]float64, n)
	resid := make([]float64, n)
	for i := range score {
		score[i] = b.Init
	}

	// Leaf values are damped Newton steps on the log-loss: the weighted
	// residual sum over the leaf divided by the weighted Hessian sum.
	leafValue := func(rows []int) float64 {
		var num, den float64
		for _, r := range rows {
			num += w[r] * resid[r]
			den += w[r] * prob[r] * (1 - prob[r])
		}
		if den < 1e-12 {
			return 0
		}
		return num / den
	}

	roots := make([]*Node, 0, cfg.Stages)
	for m := 0; m < cfg.Stages; m++ {
		for i := range score {
			prob[i] = sigmoid(score[i])
			resid[i] = target[i] - prob[i]
		}

		rows := rng.Perm(n)[:rowCount]
		var cols []int
		if colCount < d {
			cols = rng.Perm(d)[:colCount]
			sort.Ints(cols)
		}

		root := growTree(x, resid, w, rows, growConfig{
			maxDepth:        cfg.MaxDepth,
			maxLeaves:       cfg.MaxLeaves,
			minSamplesSplit: 2 * cfg.MinSamplesLeaf,
			minSamplesLeaf:  cfg.MinSamplesLeaf,
			features:        cols,
		}, leafValue)
		roots = append(roots, root)

		for i := range score {
			score[i] += cfg.LearningRate * root.predict(x[i])
		}
	}

	b.NumFeatures = d
	b.Roots = roots
	return nil
}

// PredictOne returns the attack probability for one scaled feature row.
func (b *Boosting) PredictOne(row []float64) (float64, error) {
	if b == nil || len(b.Roots) == 0 {
		return 0, ErrNotFitted
	}
	if len(row) != b.NumFeatures {
		return 0, fmt.Errorf("%w: row has %d features, model expects %d", ErrDimension, len(row), b.NumFeatures)
	}
	score := b.Init
	for _, root := range b.Roots {
		score += b.Config.LearningRate * root.predict(row)
	}
	return sigmoid(score), nil
}

// Predict scores every row, preserving input order.
func (b *Boosting) Predict(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		p, err := b.PredictOne(row)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
