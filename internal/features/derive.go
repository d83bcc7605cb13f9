// Package features turns raw transaction attributes into the enriched,
// selected and scaled vectors consumed by the ensemble.
package features

import (
	"math"

	"github.com/opensource-web3/kestrel/internal/domain"
)

// epsilon guards the one derivation that can otherwise divide by zero.
const epsilon = 0.001

// Raw attribute columns, in canonical order.
const (
	ColGasPriceGwei        = "gas_price_gwei"
	ColGasLimit            = "gas_limit"
	ColValueETH            = "value_eth"
	ColSlippageTolerance   = "slippage_tolerance"
	ColPriorityFeeGwei     = "priority_fee_gwei"
	ColPositionInBlock     = "position_in_block"
	ColBlockCongestion     = "block_congestion"
	ColTokenPairVolatility = "token_pair_volatility"
	ColLiquidityDepth      = "liquidity_depth"
	ColSenderTxCount       = "sender_tx_count"
	ColSenderSuccessRate   = "sender_success_rate"
	ColSenderAvgGasPrice   = "sender_avg_gas_price"
	ColIsContract          = "is_contract"
	ColContractAgeDays     = "contract_age_days"
	ColNetworkGasPrice     = "network_gas_price"
	ColPendingTxCount      = "pending_tx_count"
	ColHourOfDay           = "hour_of_day"
	ColDayOfWeek           = "day_of_week"
	ColUsesFlashbots       = "uses_flashbots"
	ColHasBundle           = "has_bundle"
)

// Derived signal columns, in canonical order.
const (
	ColGasPriceRatio            = "gas_price_ratio"
	ColTotalGasCost             = "total_gas_cost"
	ColPriorityRatio            = "priority_ratio"
	ColGasEfficiency            = "gas_efficiency"
	ColIsEarlyBlock             = "is_early_block"
	ColIsLateBlock              = "is_late_block"
	ColCongestionPressure       = "congestion_pressure"
	ColSenderActivityLevel      = "sender_activity_level"
	ColSenderReliability        = "sender_reliability"
	ColSenderGasAggression      = "sender_gas_aggression"
	ColLiquidityVolatilityRatio = "liquidity_volatility_ratio"
	ColSlippagePremium          = "slippage_premium"
	ColMEVScoreV1               = "mev_score_v1"
	ColFrontrunIndicator        = "frontrun_indicator"
	ColSandwichIndicator        = "sandwich_indicator"
	ColIsPeakHours              = "is_peak_hours"
	ColIsWeekend                = "is_weekend"
)

// rawColumns and derivedColumns fix the canonical column ordering used by the
// selector. Selected columns are always reported in this order, regardless of
// their discriminative rank.
var rawColumns = []string{
	ColGasPriceGwei, ColGasLimit, ColValueETH, ColSlippageTolerance,
	ColPriorityFeeGwei, ColPositionInBlock, ColBlockCongestion,
	ColTokenPairVolatility, ColLiquidityDepth, ColSenderTxCount,
	ColSenderSuccessRate, ColSenderAvgGasPrice, ColIsContract,
	ColContractAgeDays, ColNetworkGasPrice, ColPendingTxCount,
	ColHourOfDay, ColDayOfWeek, ColUsesFlashbots, ColHasBundle,
}

var derivedColumns = []string{
	ColGasPriceRatio, ColTotalGasCost, ColPriorityRatio, ColGasEfficiency,
	ColIsEarlyBlock, ColIsLateBlock, ColCongestionPressure,
	ColSenderActivityLevel, ColSenderReliability, ColSenderGasAggression,
	ColLiquidityVolatilityRatio, ColSlippagePremium,
	ColMEVScoreV1, ColFrontrunIndicator, ColSandwichIndicator,
	ColIsPeakHours, ColIsWeekend,
}

// AllColumns returns every enriched column name in canonical order:
// raw attributes first, derived signals after.
func AllColumns() []string {
	cols := make([]string, 0, len(rawColumns)+len(derivedColumns))
	cols = append(cols, rawColumns...)
	cols = append(cols, derivedColumns...)
	return cols
}

// DerivedColumns returns the derived signal names in canonical order.
func DerivedColumns() []string {
	cols := make([]string, len(derivedColumns))
	copy(cols, derivedColumns)
	return cols
}

// Record is an enriched feature record: every raw attribute plus every
// derived signal, keyed by column name.
type Record map[string]float64

// peakHours are the hours with elevated MEV bot activity.
var peakHours = map[int]bool{
	9: true, 10: true, 14: true, 15: true, 16: true, 20: true, 21: true,
}

// Derive computes the enriched feature record for a validated transaction.
// Pure and total: no I/O, no state, and two invocations on the same input
// produce identical output. Division is safe because Validate guarantees
// positive denominators everywhere epsilon is not applied.
func Derive(tx *domain.Transaction) Record {
	rec := make(Record, len(rawColumns)+len(derivedColumns))

	rec[ColGasPriceGwei] = tx.GasPriceGwei
	rec[ColGasLimit] = float64(tx.GasLimit)
	rec[ColValueETH] = tx.ValueETH
	rec[ColSlippageTolerance] = tx.SlippageTol
	rec[ColPriorityFeeGwei] = tx.PriorityFeeGwei
	rec[ColPositionInBlock] = tx.PositionInBlock
	rec[ColBlockCongestion] = tx.BlockCongestion
	rec[ColTokenPairVolatility] = tx.TokenPairVolatility
	rec[ColLiquidityDepth] = tx.LiquidityDepth
	rec[ColSenderTxCount] = float64(tx.SenderTxCount)
	rec[ColSenderSuccessRate] = tx.SenderSuccessRate
	rec[ColSenderAvgGasPrice] = tx.SenderAvgGasPrice
	rec[ColIsContract] = float64(tx.IsContract)
	rec[ColContractAgeDays] = tx.ContractAgeDays
	rec[ColNetworkGasPrice] = tx.NetworkGasPrice
	rec[ColPendingTxCount] = float64(tx.PendingTxCount)
	rec[ColHourOfDay] = float64(tx.HourOfDay)
	rec[ColDayOfWeek] = float64(tx.DayOfWeek)
	rec[ColUsesFlashbots] = float64(tx.UsesFlashbots)
	rec[ColHasBundle] = float64(tx.HasBundle)

	// Gas signals
	gasPriceRatio := tx.GasPriceGwei / tx.NetworkGasPrice
	totalGasCost := tx.GasPriceGwei * float64(tx.GasLimit) / 1e9
	rec[ColGasPriceRatio] = gasPriceRatio
	rec[ColTotalGasCost] = totalGasCost
	rec[ColPriorityRatio] = tx.PriorityFeeGwei / tx.GasPriceGwei
	rec[ColGasEfficiency] = tx.ValueETH / (totalGasCost + epsilon)

	// Block timing signals
	rec[ColIsEarlyBlock] = b2f(tx.PositionInBlock < 0.2)
	rec[ColIsLateBlock] = b2f(tx.PositionInBlock > 0.8)
	rec[ColCongestionPressure] = tx.BlockCongestion * float64(tx.PendingTxCount) / 100

	// Sender behavior signals
	activity := math.Log1p(float64(tx.SenderTxCount))
	rec[ColSenderActivityLevel] = activity
	rec[ColSenderReliability] = tx.SenderSuccessRate * activity
	rec[ColSenderGasAggression] = tx.SenderAvgGasPrice / tx.NetworkGasPrice

	// Token and liquidity signals
	rec[ColLiquidityVolatilityRatio] = tx.TokenPairVolatility * math.Log1p(tx.LiquidityDepth)
	rec[ColSlippagePremium] = tx.SlippageTol * tx.ValueETH

	// Composite bot indicators
	rec[ColMEVScoreV1] = gasPriceRatio*0.3 +
		float64(tx.UsesFlashbots)*0.25 +
		float64(tx.HasBundle)*0.25 +
		b2f(tx.SenderSuccessRate > 0.9)*0.2

	rec[ColFrontrunIndicator] = b2f(
		tx.PositionInBlock < 0.2 &&
			gasPriceRatio > 1.5 &&
			tx.PriorityFeeGwei > 5)

	rec[ColSandwichIndicator] = b2f(
		gasPriceRatio > 1.3 &&
			tx.SlippageTol > 1.0 &&
			tx.HasBundle == 1)

	// Clock signals
	rec[ColIsPeakHours] = b2f(peakHours[tx.HourOfDay])
	rec[ColIsWeekend] = b2f(tx.DayOfWeek >= 5)

	return rec
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
