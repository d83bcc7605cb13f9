package corpus

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/opensource-web3/kestrel/internal/domain"
)

// csvHeader fixes the column layout of exported corpora.
var csvHeader = []string{
	"gas_price_gwei", "gas_limit", "value_eth", "slippage_tolerance",
	"priority_fee_gwei", "position_in_block", "block_congestion",
	"token_pair_volatility", "liquidity_depth", "sender_tx_count",
	"sender_success_rate", "sender_avg_gas_price", "is_contract",
	"contract_age_days", "network_gas_price", "pending_tx_count",
	"hour_of_day", "day_of_week", "uses_flashbots", "has_bundle",
	"attack_type", "is_attack",
}

// WriteCSV exports a corpus with a header row. Floats use the shortest
// round-tripping representation, so a write/read cycle is lossless.
func WriteCSV(w io.Writer, examples []Example) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("corpus: write header: %w", err)
	}
	for i, ex := range examples {
		tx := ex.Tx
		rec := []string{
			ftoa(tx.GasPriceGwei),
			strconv.FormatInt(tx.GasLimit, 10),
			ftoa(tx.ValueETH),
			ftoa(tx.SlippageTol),
			ftoa(tx.PriorityFeeGwei),
			ftoa(tx.PositionInBlock),
			ftoa(tx.BlockCongestion),
			ftoa(tx.TokenPairVolatility),
			ftoa(tx.LiquidityDepth),
			strconv.FormatInt(tx.SenderTxCount, 10),
			ftoa(tx.SenderSuccessRate),
			ftoa(tx.SenderAvgGasPrice),
			strconv.Itoa(tx.IsContract),
			ftoa(tx.ContractAgeDays),
			ftoa(tx.NetworkGasPrice),
			strconv.FormatInt(tx.PendingTxCount, 10),
			strconv.Itoa(tx.HourOfDay),
			strconv.Itoa(tx.DayOfWeek),
			strconv.Itoa(tx.UsesFlashbots),
			strconv.Itoa(tx.HasBundle),
			ex.AttackType,
			strconv.Itoa(ex.IsAttack),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("corpus: write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads a corpus previously produced by WriteCSV.
func ReadCSV(r io.Reader) ([]Example, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("corpus: read header: %w", err)
	}
	if len(header) != len(csvHeader) {
		return nil, fmt.Errorf("corpus: header has %d columns, want %d", len(header), len(csvHeader))
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, fmt.Errorf("corpus: column %d is %q, want %q", i, header[i], name)
		}
	}

	var out []Example
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("corpus: line %d: %w", line, err)
		}
		ex, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("corpus: line %d: %w", line, err)
		}
		out = append(out, ex)
	}
	return out, nil
}

func parseRow(rec []string) (Example, error) {
	var (
		ex   Example
		tx   domain.Transaction
		errs []error
	)
	f := func(i int) float64 {
		v, err := strconv.ParseFloat(rec[i], 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("column %s: %w", csvHeader[i], err))
		}
		return v
	}
	n := func(i int) int64 {
		v, err := strconv.ParseInt(rec[i], 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("column %s: %w", csvHeader[i], err))
		}
		return v
	}

	tx.GasPriceGwei = f(0)
	tx.GasLimit = n(1)
	tx.ValueETH = f(2)
	tx.SlippageTol = f(3)
	tx.PriorityFeeGwei = f(4)
	tx.PositionInBlock = f(5)
	tx.BlockCongestion = f(6)
	tx.TokenPairVolatility = f(7)
	tx.LiquidityDepth = f(8)
	tx.SenderTxCount = n(9)
	tx.SenderSuccessRate = f(10)
	tx.SenderAvgGasPrice = f(11)
	tx.IsContract = int(n(12))
	tx.ContractAgeDays = f(13)
	tx.NetworkGasPrice = f(14)
	tx.PendingTxCount = n(15)
	tx.HourOfDay = int(n(16))
	tx.DayOfWeek = int(n(17))
	tx.UsesFlashbots = int(n(18))
	tx.HasBundle = int(n(19))
	ex.AttackType = rec[20]
	ex.IsAttack = int(n(21))

	if len(errs) > 0 {
		return Example{}, errs[0]
	}
	ex.Tx = tx
	return ex, nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
