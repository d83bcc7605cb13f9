package model

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestConfig bounds the bagged-forest fast learner.
type ForestConfig struct {
	Trees           int   `json:"trees"`
	MaxDepth        int   `json:"maxDepth"`
	MinSamplesSplit int   `json:"minSamplesSplit"`
	MinSamplesLeaf  int   `json:"minSamplesLeaf"`
	Seed            int64 `json:"seed"`
}

// DefaultForestConfig returns the fast-learner hyperparameters the shipped
// model trains with.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:           100,
		MaxDepth:        15,
		MinSamplesSplit: 20,
		MinSamplesLeaf:  10,
		Seed:            42,
	}
}

// Forest is the fast learner: a bagging ensemble of decision trees, each fit
// on a bootstrap resample with √d candidate features per split. Its
// probability is the mean leaf probability across trees.
type Forest struct {
	Config      ForestConfig `json:"config"`
	NumFeatures int          `json:"numFeatures"`
	Roots       []*Node      `json:"roots"`
}

// NewForest returns an unfitted forest with the given configuration.
func NewForest(cfg ForestConfig) *Forest {
	return &Forest{Config: cfg}
}

// Fit trains the forest on scaled feature rows and binary labels. Class
// weights are balanced so the attack minority carries the same total weight
// as the normal majority. Trees fit in parallel; each tree derives its own
// seed from the configured base, so the result does not depend on goroutine
// scheduling.
func (f *Forest) Fit(x [][]float64, y []int) error {
	d, err := checkTrainingSet(x, y)
	if err != nil {
		return err
	}
	cfg := f.Config
	if cfg.Trees <= 0 {
		return fmt.Errorf("%w: forest needs at least one tree, got %d", ErrBadTrainingSet, cfg.Trees)
	}

	target := floatLabels(y)
	w := balancedWeights(y)
	maxFeatures := int(math.Sqrt(float64(d)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	roots := make([]*Node, cfg.Trees)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range roots {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
			rows := make([]int, len(x))
			for j := range rows {
				rows[j] = rng.Intn(len(x))
			}
			roots[i] = growTree(x, target, w, rows, growConfig{
				maxDepth:        cfg.MaxDepth,
				minSamplesSplit: cfg.MinSamplesSplit,
				minSamplesLeaf:  cfg.MinSamplesLeaf,
				maxFeatures:     maxFeatures,
				rng:             rng,
			}, meanLeaf(target, w))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.NumFeatures = d
	f.Roots = roots
	return nil
}

// PredictOne returns the attack probability for one scaled feature row.
func (f *Forest) PredictOne(row []float64) (float64, error) {
	if f == nil || len(f.Roots) == 0 {
		return 0, ErrNotFitted
	}
	if len(row) != f.NumFeatures {
		return 0, fmt.Errorf("%w: row has %d features, model expects %d", ErrDimension, len(row), f.NumFeatures)
	}
	var sum float64
	for _, root := range f.Roots {
		sum += root.predict(row)
	}
	return sum / float64(len(f.Roots)), nil
}

// Predict scores every row, preserving input order.
func (f *Forest) Predict(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		p, err := f.PredictOne(row)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
