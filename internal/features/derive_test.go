package features

import (
	"math"
	"testing"

	"github.com/opensource-web3/kestrel/internal/domain"
)

func benignTx() *domain.Transaction {
	return &domain.Transaction{
		ID:                  "tx-001",
		ChainID:             "1",
		GasPriceGwei:        30,
		GasLimit:            150000,
		ValueETH:            1.0,
		SlippageTol:         0.5,
		PriorityFeeGwei:     3,
		PositionInBlock:     0.5,
		BlockCongestion:     0.5,
		TokenPairVolatility: 0.02,
		LiquidityDepth:      1e9,
		SenderTxCount:       100,
		SenderSuccessRate:   0.95,
		SenderAvgGasPrice:   30,
		IsContract:          0,
		ContractAgeDays:     0,
		NetworkGasPrice:     30,
		PendingTxCount:      150,
		HourOfDay:           12,
		DayOfWeek:           2,
		UsesFlashbots:       0,
		HasBundle:           0,
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDerive(t *testing.T) {
	t.Run("RawColumnsCopied", func(t *testing.T) {
		tx := benignTx()
		rec := Derive(tx)

		if rec[ColGasPriceGwei] != 30 {
			t.Errorf("expected gas_price_gwei 30, got %v", rec[ColGasPriceGwei])
		}
		if rec[ColGasLimit] != 150000 {
			t.Errorf("expected gas_limit 150000, got %v", rec[ColGasLimit])
		}
		if rec[ColSenderTxCount] != 100 {
			t.Errorf("expected sender_tx_count 100, got %v", rec[ColSenderTxCount])
		}
		if rec[ColHasBundle] != 0 {
			t.Errorf("expected has_bundle 0, got %v", rec[ColHasBundle])
		}
	})

	t.Run("GasSignals", func(t *testing.T) {
		rec := Derive(benignTx())

		if !approx(rec[ColGasPriceRatio], 1.0) {
			t.Errorf("expected gas_price_ratio 1.0, got %v", rec[ColGasPriceRatio])
		}
		// 30 * 150000 / 1e9 = 0.0045 ETH
		if !approx(rec[ColTotalGasCost], 0.0045) {
			t.Errorf("expected total_gas_cost 0.0045, got %v", rec[ColTotalGasCost])
		}
		if !approx(rec[ColPriorityRatio], 0.1) {
			t.Errorf("expected priority_ratio 0.1, got %v", rec[ColPriorityRatio])
		}
		// 1.0 / (0.0045 + 0.001)
		if !approx(rec[ColGasEfficiency], 1.0/0.0055) {
			t.Errorf("expected gas_efficiency %.4f, got %v", 1.0/0.0055, rec[ColGasEfficiency])
		}
	})

	t.Run("SenderSignals", func(t *testing.T) {
		rec := Derive(benignTx())

		want := math.Log1p(100)
		if !approx(rec[ColSenderActivityLevel], want) {
			t.Errorf("expected sender_activity_level %.4f, got %v", want, rec[ColSenderActivityLevel])
		}
		if !approx(rec[ColSenderReliability], 0.95*want) {
			t.Errorf("expected sender_reliability %.4f, got %v", 0.95*want, rec[ColSenderReliability])
		}
		if !approx(rec[ColSenderGasAggression], 1.0) {
			t.Errorf("expected sender_gas_aggression 1.0, got %v", rec[ColSenderGasAggression])
		}
	})

	t.Run("CompositeScore", func(t *testing.T) {
		rec := Derive(benignTx())

		// ratio 1.0 * 0.3, no flashbots, no bundle, success 0.95 > 0.9 adds 0.2
		if !approx(rec[ColMEVScoreV1], 0.5) {
			t.Errorf("expected mev_score_v1 0.5, got %v", rec[ColMEVScoreV1])
		}
	})

	t.Run("IndicatorsQuietForBenign", func(t *testing.T) {
		rec := Derive(benignTx())

		for _, col := range []string{ColIsEarlyBlock, ColIsLateBlock, ColFrontrunIndicator, ColSandwichIndicator, ColIsPeakHours, ColIsWeekend} {
			if rec[col] != 0 {
				t.Errorf("expected %s to be 0 for benign tx, got %v", col, rec[col])
			}
		}
	})

	t.Run("FrontrunIndicatorFires", func(t *testing.T) {
		tx := benignTx()
		tx.PositionInBlock = 0.1
		tx.GasPriceGwei = 50 // ratio 1.67 against network 30
		tx.PriorityFeeGwei = 6

		rec := Derive(tx)

		if rec[ColIsEarlyBlock] != 1 {
			t.Error("expected is_early_block 1 at position 0.1")
		}
		if rec[ColFrontrunIndicator] != 1 {
			t.Error("expected frontrun_indicator to fire")
		}
	})

	t.Run("SandwichIndicatorFires", func(t *testing.T) {
		tx := benignTx()
		tx.GasPriceGwei = 45 // ratio 1.5
		tx.SlippageTol = 2.0
		tx.HasBundle = 1

		rec := Derive(tx)

		if rec[ColSandwichIndicator] != 1 {
			t.Error("expected sandwich_indicator to fire")
		}
	})

	t.Run("IndicatorBoundaryIsExclusive", func(t *testing.T) {
		tx := benignTx()
		tx.PositionInBlock = 0.2 // boundary: strictly less-than required

		rec := Derive(tx)

		if rec[ColIsEarlyBlock] != 0 {
			t.Error("position 0.2 must not count as early block")
		}

		tx.PositionInBlock = 0.8
		rec = Derive(tx)
		if rec[ColIsLateBlock] != 0 {
			t.Error("position 0.8 must not count as late block")
		}
	})

	t.Run("ClockSignals", func(t *testing.T) {
		tx := benignTx()
		tx.HourOfDay = 14
		tx.DayOfWeek = 6

		rec := Derive(tx)

		if rec[ColIsPeakHours] != 1 {
			t.Error("expected hour 14 to be peak")
		}
		if rec[ColIsWeekend] != 1 {
			t.Error("expected day 6 to be weekend")
		}
	})

	t.Run("AllColumnsPresent", func(t *testing.T) {
		rec := Derive(benignTx())

		all := AllColumns()
		if len(all) != 37 {
			t.Fatalf("expected 37 columns, got %d", len(all))
		}
		if len(rec) != len(all) {
			t.Errorf("expected record with %d columns, got %d", len(all), len(rec))
		}
		for _, col := range all {
			if _, ok := rec[col]; !ok {
				t.Errorf("missing column %s", col)
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		tx := benignTx()
		a := Derive(tx)
		b := Derive(tx)

		for col, v := range a {
			if b[col] != v {
				t.Errorf("column %s differs across invocations: %v vs %v", col, v, b[col])
			}
		}
	})
}
