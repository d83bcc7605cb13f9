package domain

import (
	"fmt"
	"time"
)

// Transaction is a pending transaction submitted for MEV risk scoring.
// All numeric fields carry physical bounds checked by Validate; scoring
// never sees an unvalidated record.
type Transaction struct {
	// Core identifiers
	ID      string `json:"id"`
	ChainID string `json:"chainId"`

	// Gas parameters
	GasPriceGwei    float64 `json:"gas_price_gwei"`
	GasLimit        int64   `json:"gas_limit"`
	ValueETH        float64 `json:"value_eth"`
	SlippageTol     float64 `json:"slippage_tolerance"`
	PriorityFeeGwei float64 `json:"priority_fee_gwei"`

	// Block timing
	PositionInBlock float64 `json:"position_in_block"`
	BlockCongestion float64 `json:"block_congestion"`

	// Token pair
	TokenPairVolatility float64 `json:"token_pair_volatility"`
	LiquidityDepth      float64 `json:"liquidity_depth"`

	// Sender history
	SenderTxCount     int64   `json:"sender_tx_count"`
	SenderSuccessRate float64 `json:"sender_success_rate"`
	SenderAvgGasPrice float64 `json:"sender_avg_gas_price"`

	// Contract interaction
	IsContract      int     `json:"is_contract"`
	ContractAgeDays float64 `json:"contract_age_days"`

	// Network conditions
	NetworkGasPrice float64 `json:"network_gas_price"`
	PendingTxCount  int64   `json:"pending_tx_count"`

	// Clock
	HourOfDay int `json:"hour_of_day"`
	DayOfWeek int `json:"day_of_week"`

	// MEV submission markers
	UsesFlashbots int `json:"uses_flashbots"`
	HasBundle     int `json:"has_bundle"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// FieldError reports a single out-of-bounds or malformed attribute.
// It distinguishes bad input from pipeline-state failures at the API boundary.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

// Validate checks every attribute against its physical bounds.
// Returns the first violation as a *FieldError; a valid record returns nil.
func (t *Transaction) Validate() error {
	checks := []struct {
		field  string
		ok     bool
		reason string
	}{
		{"gas_price_gwei", t.GasPriceGwei > 0, "must be > 0"},
		{"gas_limit", t.GasLimit > 0, "must be > 0"},
		{"value_eth", t.ValueETH >= 0, "must be >= 0"},
		{"slippage_tolerance", t.SlippageTol >= 0, "must be >= 0"},
		{"priority_fee_gwei", t.PriorityFeeGwei >= 0, "must be >= 0"},
		{"position_in_block", t.PositionInBlock >= 0 && t.PositionInBlock <= 1, "must be in [0,1]"},
		{"block_congestion", t.BlockCongestion >= 0 && t.BlockCongestion <= 1, "must be in [0,1]"},
		{"token_pair_volatility", t.TokenPairVolatility > 0, "must be > 0"},
		{"liquidity_depth", t.LiquidityDepth > 0, "must be > 0"},
		{"sender_tx_count", t.SenderTxCount > 0, "must be > 0"},
		{"sender_success_rate", t.SenderSuccessRate >= 0 && t.SenderSuccessRate <= 1, "must be in [0,1]"},
		{"sender_avg_gas_price", t.SenderAvgGasPrice > 0, "must be > 0"},
		{"is_contract", t.IsContract == 0 || t.IsContract == 1, "must be 0 or 1"},
		{"contract_age_days", t.ContractAgeDays >= 0, "must be >= 0"},
		{"network_gas_price", t.NetworkGasPrice > 0, "must be > 0"},
		{"pending_tx_count", t.PendingTxCount > 0, "must be > 0"},
		{"hour_of_day", t.HourOfDay >= 0 && t.HourOfDay <= 23, "must be in [0,23]"},
		{"day_of_week", t.DayOfWeek >= 0 && t.DayOfWeek <= 6, "must be in [0,6]"},
		{"uses_flashbots", t.UsesFlashbots == 0 || t.UsesFlashbots == 1, "must be 0 or 1"},
		{"has_bundle", t.HasBundle == 0 || t.HasBundle == 1, "must be 0 or 1"},
	}
	for _, c := range checks {
		if !c.ok {
			return &FieldError{Field: c.field, Reason: c.reason}
		}
	}
	return nil
}
