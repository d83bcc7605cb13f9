package domain

import "time"

// Artifact is one versioned, trained model bundle. The payload holds the
// complete serialized state: retained columns, scaling statistics, both base
// learners and the voting weights. It is written and loaded as a single unit
// so the selector, scaler and learners can never drift apart.
type Artifact struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	ModelType string    `json:"modelType"` // "ensemble"
	CreatedAt time.Time `json:"createdAt"`

	// Training provenance
	CorpusSeed int64 `json:"corpusSeed"`
	CorpusSize int   `json:"corpusSize"`

	// Retained feature columns in apply order, duplicated out of the payload
	// for listing without a full decode.
	Columns []string `json:"columns"`

	// Held-out evaluation per learner plus the combined ensemble.
	Metrics map[string]EvalMetrics `json:"metrics"`

	// Complete serialized model state.
	Payload []byte `json:"payload"`
}

// EvalMetrics is a binary-classification evaluation over a held-out split.
type EvalMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	AUC       float64 `json:"auc"`

	// Confusion matrix counts
	TrueNeg  int `json:"tn"`
	FalsePos int `json:"fp"`
	FalseNeg int `json:"fn"`
	TruePos  int `json:"tp"`
}
