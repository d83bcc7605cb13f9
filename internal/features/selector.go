package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrNotFitted is returned when a transform is applied before Fit.
	ErrNotFitted = errors.New("features: transform not fitted")

	// ErrMissingColumn is returned when a record lacks a selected column.
	ErrMissingColumn = errors.New("features: missing column")

	// ErrBadCorpus is returned when the training corpus cannot support a fit.
	ErrBadCorpus = errors.New("features: bad corpus")
)

// DefaultTopK is the number of columns kept after univariate ranking.
const DefaultTopK = 25

// Transform holds the frozen output of a fit: the selected column subset in
// canonical order and the per-column robust scaling parameters. A fitted
// Transform is immutable; every Apply on the same input yields the same
// vector for the lifetime of the model version that carries it.
type Transform struct {
	Columns []string  `json:"columns"`
	Center  []float64 `json:"center"`
	Scale   []float64 `json:"scale"`
}

// Fit ranks every column by its ANOVA F-statistic against the binary labels,
// keeps the top k in canonical column order, and freezes the median and
// interquartile range of each kept column as scaling parameters.
func Fit(records []Record, labels []int, k int) (*Transform, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrBadCorpus)
	}
	if len(records) != len(labels) {
		return nil, fmt.Errorf("%w: %d records vs %d labels", ErrBadCorpus, len(records), len(labels))
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrBadCorpus, k)
	}

	all := AllColumns()
	if k > len(all) {
		k = len(all)
	}

	var pos, neg int
	for _, y := range labels {
		if y == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return nil, fmt.Errorf("%w: need both classes, got %d positive %d negative", ErrBadCorpus, pos, neg)
	}

	scores := make([]float64, len(all))
	for i, col := range all {
		vals := make([]float64, len(records))
		for j, rec := range records {
			v, ok := rec[col]
			if !ok {
				return nil, fmt.Errorf("%w: %s in record %d", ErrMissingColumn, col, j)
			}
			vals[j] = v
		}
		scores[i] = fStatistic(vals, labels)
	}

	// Rank by score, then re-sort the winners so the selected subset keeps
	// the canonical column order rather than the score order.
	order := make([]int, len(all))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	kept := append([]int(nil), order[:k]...)
	sort.Ints(kept)

	t := &Transform{
		Columns: make([]string, k),
		Center:  make([]float64, k),
		Scale:   make([]float64, k),
	}
	col := make([]float64, len(records))
	for i, idx := range kept {
		name := all[idx]
		t.Columns[i] = name
		for j, rec := range records {
			col[j] = rec[name]
		}
		sort.Float64s(col)
		t.Center[i] = percentile(col, 50)
		iqr := percentile(col, 75) - percentile(col, 25)
		if iqr < 1e-12 {
			// Constant column within the quartiles: center only.
			iqr = 1
		}
		t.Scale[i] = iqr
	}
	return t, nil
}

// Apply projects a derived record onto the selected columns and scales each
// value with the frozen center and spread.
func (t *Transform) Apply(rec Record) ([]float64, error) {
	if t == nil || len(t.Columns) == 0 {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(t.Columns))
	for i, col := range t.Columns {
		v, ok := rec[col]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
		out[i] = (v - t.Center[i]) / t.Scale[i]
	}
	return out, nil
}

// ApplyAll transforms a batch of records into a row-major matrix.
func (t *Transform) ApplyAll(records []Record) ([][]float64, error) {
	out := make([][]float64, len(records))
	for i, rec := range records {
		row, err := t.Apply(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = row
	}
	return out, nil
}

// fStatistic computes the one-way ANOVA F value of a column split by binary
// class labels: between-group variance over within-group variance. Columns
// that separate the classes perfectly score +Inf; constant columns score 0.
func fStatistic(vals []float64, labels []int) float64 {
	var n0, n1 int
	var sum0, sum1 float64
	for i, v := range vals {
		if labels[i] == 1 {
			n1++
			sum1 += v
		} else {
			n0++
			sum0 += v
		}
	}
	mean0 := sum0 / float64(n0)
	mean1 := sum1 / float64(n1)
	grand := (sum0 + sum1) / float64(n0+n1)

	var ssw float64
	for i, v := range vals {
		if labels[i] == 1 {
			ssw += (v - mean1) * (v - mean1)
		} else {
			ssw += (v - mean0) * (v - mean0)
		}
	}
	ssb := float64(n0)*(mean0-grand)*(mean0-grand) + float64(n1)*(mean1-grand)*(mean1-grand)

	dfb := 1.0
	dfw := float64(n0 + n1 - 2)
	if dfw <= 0 {
		return 0
	}
	msw := ssw / dfw
	if msw < 1e-12 {
		if ssb < 1e-12 {
			return 0
		}
		return math.Inf(1)
	}
	return (ssb / dfb) / msw
}

// percentile interpolates linearly between the two nearest ranks of an
// ascending-sorted slice. p is in [0,100].
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
