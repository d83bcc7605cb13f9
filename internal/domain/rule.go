package domain

// OverrideRule is a CEL-expressed policy check applied after the model verdict.
// When its expression evaluates true for a transaction, the assessment's
// protection method is raised to at least EscalateTo. Overrides can only
// escalate, never relax, so the probability-to-protection ordering holds even
// with rules active.
type OverrideRule struct {
	ID          string `json:"id"`
	ChainID     string `json:"chainId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is a CEL predicate over the raw transaction attributes,
	// the derived features and the model verdict.
	Expression string `json:"expression"`

	// EscalateTo is the minimum protection method when the rule matches:
	// "timelock" or "private".
	EscalateTo string `json:"escalateTo"`

	// Whether the rule is active
	Enabled bool `json:"enabled"`
}

// OverrideResult is the outcome of evaluating one override rule.
type OverrideResult struct {
	RuleID     string `json:"ruleId"`
	Matched    bool   `json:"matched"`
	EscalateTo string `json:"escalateTo,omitempty"`
	Reason     string `json:"reason,omitempty"`
	ProcessMs  int64  `json:"processMs,omitempty"`
}
