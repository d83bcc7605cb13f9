package model

import (
	"math"
	"testing"
)

func TestEvaluate(t *testing.T) {
	t.Run("HandComputedCase", func(t *testing.T) {
		scores := []float64{0.9, 0.8, 0.4, 0.2}
		labels := []int{1, 1, 1, 0}

		m := Evaluate(scores, labels, 0.5)

		if m.TruePos != 2 || m.FalseNeg != 1 || m.TrueNeg != 1 || m.FalsePos != 0 {
			t.Fatalf("confusion = tp %d fp %d fn %d tn %d", m.TruePos, m.FalsePos, m.FalseNeg, m.TrueNeg)
		}
		if m.Accuracy != 0.75 {
			t.Errorf("accuracy = %v, want 0.75", m.Accuracy)
		}
		if m.Precision != 1 {
			t.Errorf("precision = %v, want 1", m.Precision)
		}
		if math.Abs(m.Recall-2.0/3) > 1e-12 {
			t.Errorf("recall = %v, want 2/3", m.Recall)
		}
		if math.Abs(m.F1-0.8) > 1e-12 {
			t.Errorf("f1 = %v, want 0.8", m.F1)
		}
		if m.AUC != 1 {
			t.Errorf("auc = %v, want 1 for perfect ranking", m.AUC)
		}
	})

	t.Run("ThresholdIsInclusive", func(t *testing.T) {
		m := Evaluate([]float64{0.5}, []int{1}, 0.5)
		if m.TruePos != 1 {
			t.Errorf("score equal to the threshold should class as attack")
		}
	})

	t.Run("ZeroDenominatorsReportZero", func(t *testing.T) {
		// Nothing predicted positive, nothing actually positive.
		m := Evaluate([]float64{0.1, 0.2}, []int{0, 0}, 0.5)
		if m.Precision != 0 || m.Recall != 0 || m.F1 != 0 {
			t.Errorf("expected zeroed ratios, got precision %v recall %v f1 %v", m.Precision, m.Recall, m.F1)
		}
		if m.Accuracy != 1 {
			t.Errorf("accuracy = %v, want 1", m.Accuracy)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		m := Evaluate(nil, nil, 0.5)
		if m.Accuracy != 0 || m.AUC != 0 {
			t.Errorf("empty evaluation should be all zero, got %+v", m)
		}
	})
}

func TestROCAUC(t *testing.T) {
	t.Run("PerfectRanking", func(t *testing.T) {
		auc := rocAUC([]float64{0.9, 0.8, 0.2, 0.1}, []int{1, 1, 0, 0})
		if auc != 1 {
			t.Errorf("auc = %v, want 1", auc)
		}
	})

	t.Run("InvertedRanking", func(t *testing.T) {
		auc := rocAUC([]float64{0.1, 0.2, 0.8, 0.9}, []int{1, 1, 0, 0})
		if auc != 0 {
			t.Errorf("auc = %v, want 0", auc)
		}
	})

	t.Run("TiedScoresWalkTheDiagonal", func(t *testing.T) {
		auc := rocAUC([]float64{0.5, 0.5}, []int{1, 0})
		if auc != 0.5 {
			t.Errorf("auc = %v, want 0.5", auc)
		}
	})

	t.Run("HalfRight", func(t *testing.T) {
		// One positive ranked above both negatives, one below.
		auc := rocAUC([]float64{0.9, 0.6, 0.5, 0.1}, []int{1, 0, 0, 1})
		if auc != 0.5 {
			t.Errorf("auc = %v, want 0.5", auc)
		}
	})

	t.Run("SingleClass", func(t *testing.T) {
		if auc := rocAUC([]float64{0.9, 0.8}, []int{1, 1}); auc != 0 {
			t.Errorf("auc without negatives = %v, want 0", auc)
		}
	})
}
