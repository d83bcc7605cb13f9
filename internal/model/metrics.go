package model

import (
	"sort"

	"github.com/opensource-web3/kestrel/internal/domain"
)

// Evaluate computes held-out classification metrics for a score vector
// against its true labels at the given decision threshold. Precision, recall
// and F1 report 0 when their denominator is empty rather than dividing by
// zero.
func Evaluate(scores []float64, labels []int, threshold float64) domain.EvalMetrics {
	var m domain.EvalMetrics
	for i, s := range scores {
		attack := s >= threshold
		switch {
		case attack && labels[i] == 1:
			m.TruePos++
		case attack && labels[i] == 0:
			m.FalsePos++
		case !attack && labels[i] == 1:
			m.FalseNeg++
		default:
			m.TrueNeg++
		}
	}
	n := len(scores)
	if n > 0 {
		m.Accuracy = float64(m.TruePos+m.TrueNeg) / float64(n)
	}
	if m.TruePos+m.FalsePos > 0 {
		m.Precision = float64(m.TruePos) / float64(m.TruePos+m.FalsePos)
	}
	if m.TruePos+m.FalseNeg > 0 {
		m.Recall = float64(m.TruePos) / float64(m.TruePos+m.FalseNeg)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.AUC = rocAUC(scores, labels)
	return m
}

// rocAUC integrates the ROC curve with the trapezoidal rule, sweeping the
// decision threshold down through the sorted scores. Tied scores advance the
// curve diagonally in one step. Returns 0 when either class is absent.
func rocAUC(scores []float64, labels []int) float64 {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	var tp, fp, prevTP, prevFP, area float64
	i := 0
	for i < len(idx) {
		s := scores[idx[i]]
		for i < len(idx) && scores[idx[i]] == s {
			if labels[idx[i]] == 1 {
				tp++
			} else {
				fp++
			}
			i++
		}
		area += (fp - prevFP) * (tp + prevTP) / 2
		prevTP, prevFP = tp, fp
	}
	if tp == 0 || fp == 0 {
		return 0
	}
	return area / (tp * fp)
}
