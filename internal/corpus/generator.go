// Package corpus synthesizes the labeled training corpus: five seeded
// per-class stochastic profiles with deliberately imperfect overlap. The
// output is statistically distinguishable so the scoring ensemble can be
// trained and validated; it is not a model of real mempool behavior.
package corpus

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/opensource-web3/kestrel/internal/domain"
)

// ErrBadRatios is returned when the class ratios are negative or do not sum
// to one.
var ErrBadRatios = errors.New("corpus: class ratios must be non-negative and sum to 1")

// DefaultSeed is the seed the shipped artifacts were trained with.
const DefaultSeed int64 = 42

// Class labels carried by corpus records.
const (
	ClassNormal    = "normal"
	ClassSandwich  = "sandwich"
	ClassFrontrun  = "frontrun"
	ClassBackrun   = "backrun"
	ClassArbitrage = "arbitrage"
)

// Ratios splits the corpus across the five classes.
type Ratios struct {
	Normal    float64 `json:"normal"`
	Sandwich  float64 `json:"sandwich"`
	Frontrun  float64 `json:"frontrun"`
	Backrun   float64 `json:"backrun"`
	Arbitrage float64 `json:"arbitrage"`
}

// DefaultRatios returns the shipped class mix.
func DefaultRatios() Ratios {
	return Ratios{
		Normal:    0.60,
		Sandwich:  0.15,
		Frontrun:  0.10,
		Backrun:   0.08,
		Arbitrage: 0.07,
	}
}

func (r Ratios) validate() error {
	sum := 0.0
	for _, v := range []float64{r.Normal, r.Sandwich, r.Frontrun, r.Backrun, r.Arbitrage} {
		if v < 0 {
			return ErrBadRatios
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: sum is %v", ErrBadRatios, sum)
	}
	return nil
}

// Example is one labeled corpus record. AttackType holds the class name,
// ClassNormal for benign traffic.
type Example struct {
	Tx         domain.Transaction
	AttackType string
	IsAttack   int
}

// Generator draws reproducible corpora. Each class samples from its own
// named stream derived from the base seed, so one class's count never
// perturbs another class's draws.
type Generator struct {
	seed    int64
	streams map[string]*rand.Rand
}

// NewGenerator returns a generator for the given base seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{seed: seed, streams: make(map[string]*rand.Rand)}
}

// stream returns the named random stream, creating it on first use.
func (g *Generator) stream(name string) *rand.Rand {
	if r, ok := g.streams[name]; ok {
		return r
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	r := rand.New(rand.NewSource(int64(h.Sum64()) ^ g.seed))
	g.streams[name] = r
	return r
}

// Generate draws n labeled examples split across the classes by ratio. Class
// counts truncate, int(ratio × n) per class, so a few records may be lost to
// rounding. The combined corpus is shuffled before return. Streams rewind on
// every call: the same generator and arguments always reproduce the same
// corpus.
func (g *Generator) Generate(n int, ratios Ratios) ([]Example, error) {
	if n <= 0 {
		return nil, fmt.Errorf("corpus: sample count must be positive, got %d", n)
	}
	if err := ratios.validate(); err != nil {
		return nil, err
	}

	g.streams = make(map[string]*rand.Rand)

	classes := []struct {
		name   string
		count  int
		attack int
		draw   func(*rand.Rand) domain.Transaction
	}{
		{ClassNormal, int(ratios.Normal * float64(n)), 0, drawNormal},
		{ClassSandwich, int(ratios.Sandwich * float64(n)), 1, drawSandwich},
		{ClassFrontrun, int(ratios.Frontrun * float64(n)), 1, drawFrontrun},
		{ClassBackrun, int(ratios.Backrun * float64(n)), 1, drawBackrun},
		{ClassArbitrage, int(ratios.Arbitrage * float64(n)), 1, drawArbitrage},
	}

	out := make([]Example, 0, n)
	for _, c := range classes {
		r := g.stream(c.name)
		for i := 0; i < c.count; i++ {
			out = append(out, Example{Tx: c.draw(r), AttackType: c.name, IsAttack: c.attack})
		}
	}

	shuffle := g.stream("shuffle")
	shuffle.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

// drawNormal profiles everyday user traffic: market-rate gas, small values,
// positions spread through the block, no MEV submission markers.
func drawNormal(r *rand.Rand) domain.Transaction {
	return domain.Transaction{
		GasPriceGwei:        clip(normal(r, 30, 10), 10, 100),
		GasLimit:            int64(clip(normal(r, 150000, 50000), 21000, 500000)),
		ValueETH:            clip(exponential(r, 0.5), 0.01, 100),
		SlippageTol:         clip(normal(r, 0.5, 0.2), 0.1, 5),
		PriorityFeeGwei:     clip(normal(r, 2, 1), 0.1, 10),
		PositionInBlock:     r.Float64(),
		BlockCongestion:     clip(normal(r, 0.5, 0.2), 0, 1),
		TokenPairVolatility: clip(normal(r, 0.02, 0.01), 0.001, 0.1),
		LiquidityDepth:      logNormal(r, 10, 2),
		SenderTxCount:       int64(clip(logNormal(r, 5, 2), 1, 10000)),
		SenderSuccessRate:   beta(r, 8, 2),
		SenderAvgGasPrice:   clip(normal(r, 30, 5), 10, 100),
		IsContract:          bernoulli(r, 0.1),
		ContractAgeDays:     clip(exponential(r, 100), 0, 1000),
		NetworkGasPrice:     clip(normal(r, 30, 10), 10, 100),
		PendingTxCount:      poisson(r, 150),
		HourOfDay:           r.Intn(24),
		DayOfWeek:           r.Intn(7),
		UsesFlashbots:       0,
		HasBundle:           0,
	}
}

// drawSandwich profiles sandwich bots: high gas to get ahead of the victim,
// early block positions, loose slippage, hyperactive senders with near-perfect
// success, weekday peak hours.
func drawSandwich(r *rand.Rand) domain.Transaction {
	return domain.Transaction{
		GasPriceGwei:        clip(normal(r, 50, 15), 30, 200),
		GasLimit:            int64(clip(normal(r, 200000, 30000), 100000, 500000)),
		ValueETH:            clip(exponential(r, 2), 0.1, 50),
		SlippageTol:         clip(normal(r, 2, 1), 0.5, 10),
		PriorityFeeGwei:     clip(normal(r, 5, 2), 1, 20),
		PositionInBlock:     beta(r, 2, 5),
		BlockCongestion:     clip(normal(r, 0.7, 0.15), 0.3, 1),
		TokenPairVolatility: clip(normal(r, 0.05, 0.02), 0.02, 0.15),
		LiquidityDepth:      logNormal(r, 9, 1.5),
		SenderTxCount:       int64(clip(logNormal(r, 8, 1), 100, 50000)),
		SenderSuccessRate:   beta(r, 9, 1),
		SenderAvgGasPrice:   clip(normal(r, 45, 10), 25, 150),
		IsContract:          0, // EOAs, not contracts
		ContractAgeDays:     0,
		NetworkGasPrice:     clip(normal(r, 35, 12), 15, 100),
		PendingTxCount:      poisson(r, 200),
		HourOfDay:           choice(r, []int{8, 9, 10, 14, 15, 16, 20, 21}),
		DayOfWeek:           r.Intn(5),
		UsesFlashbots:       bernoulli(r, 0.3),
		HasBundle:           bernoulli(r, 0.4),
	}
}

// drawFrontrun profiles frontrun bots: very high gas and priority fees, and
// positions concentrated at the top of the block.
func drawFrontrun(r *rand.Rand) domain.Transaction {
	return domain.Transaction{
		GasPriceGwei:        clip(normal(r, 60, 20), 40, 300),
		GasLimit:            int64(clip(normal(r, 180000, 40000), 80000, 400000)),
		ValueETH:            clip(exponential(r, 1.5), 0.05, 30),
		SlippageTol:         clip(normal(r, 1.5, 0.8), 0.3, 8),
		PriorityFeeGwei:     clip(normal(r, 7, 3), 2, 30),
		PositionInBlock:     beta(r, 1, 10),
		BlockCongestion:     clip(normal(r, 0.65, 0.2), 0.2, 1),
		TokenPairVolatility: clip(normal(r, 0.04, 0.015), 0.015, 0.12),
		LiquidityDepth:      logNormal(r, 9.5, 1.8),
		SenderTxCount:       int64(clip(logNormal(r, 7.5, 1.2), 50, 30000)),
		SenderSuccessRate:   beta(r, 8, 2),
		SenderAvgGasPrice:   clip(normal(r, 50, 12), 30, 150),
		IsContract:          bernoulli(r, 0.2),
		ContractAgeDays:     clip(exponential(r, 80), 0, 500),
		NetworkGasPrice:     clip(normal(r, 38, 13), 15, 100),
		PendingTxCount:      poisson(r, 180),
		HourOfDay:           choice(r, []int{9, 10, 11, 14, 15, 16}),
		DayOfWeek:           r.Intn(5),
		UsesFlashbots:       bernoulli(r, 0.5),
		HasBundle:           bernoulli(r, 0.3),
	}
}

// drawBackrun profiles backrun bots: moderate gas, positions concentrated
// late in the block, timing spread around the clock.
func drawBackrun(r *rand.Rand) domain.Transaction {
	return domain.Transaction{
		GasPriceGwei:        clip(normal(r, 40, 12), 25, 150),
		GasLimit:            int64(clip(normal(r, 160000, 35000), 70000, 400000)),
		ValueETH:            clip(exponential(r, 1), 0.05, 20),
		SlippageTol:         clip(normal(r, 1, 0.5), 0.2, 5),
		PriorityFeeGwei:     clip(normal(r, 3, 1.5), 0.5, 15),
		PositionInBlock:     beta(r, 5, 2),
		BlockCongestion:     clip(normal(r, 0.6, 0.18), 0.2, 1),
		TokenPairVolatility: clip(normal(r, 0.035, 0.012), 0.01, 0.1),
		LiquidityDepth:      logNormal(r, 9.8, 1.6),
		SenderTxCount:       int64(clip(logNormal(r, 7, 1.3), 40, 25000)),
		SenderSuccessRate:   beta(r, 7, 2),
		SenderAvgGasPrice:   clip(normal(r, 38, 9), 20, 120),
		IsContract:          bernoulli(r, 0.15),
		ContractAgeDays:     clip(exponential(r, 90), 0, 600),
		NetworkGasPrice:     clip(normal(r, 33, 11), 15, 100),
		PendingTxCount:      poisson(r, 170),
		HourOfDay:           r.Intn(24),
		DayOfWeek:           r.Intn(7),
		UsesFlashbots:       bernoulli(r, 0.4),
		HasBundle:           bernoulli(r, 0.2),
	}
}

// drawArbitrage profiles arbitrage extraction: complex routing with large
// gas limits, heavy-tailed trade sizes, deep-liquidity pairs and router
// contracts.
func drawArbitrage(r *rand.Rand) domain.Transaction {
	return domain.Transaction{
		GasPriceGwei:        clip(normal(r, 45, 13), 28, 180),
		GasLimit:            int64(clip(normal(r, 220000, 50000), 100000, 600000)),
		ValueETH:            clip(exponential(r, 3), 0.2, 100),
		SlippageTol:         clip(normal(r, 0.8, 0.4), 0.1, 4),
		PriorityFeeGwei:     clip(normal(r, 4, 2), 0.5, 18),
		PositionInBlock:     r.Float64(),
		BlockCongestion:     clip(normal(r, 0.55, 0.2), 0.1, 1),
		TokenPairVolatility: clip(normal(r, 0.045, 0.018), 0.02, 0.13),
		LiquidityDepth:      logNormal(r, 10.5, 1.5),
		SenderTxCount:       int64(clip(logNormal(r, 8.5, 0.8), 200, 100000)),
		SenderSuccessRate:   beta(r, 9, 1),
		SenderAvgGasPrice:   clip(normal(r, 42, 11), 25, 130),
		IsContract:          bernoulli(r, 0.7),
		ContractAgeDays:     clip(exponential(r, 120), 10, 800),
		NetworkGasPrice:     clip(normal(r, 36, 12), 15, 100),
		PendingTxCount:      poisson(r, 160),
		HourOfDay:           r.Intn(24),
		DayOfWeek:           r.Intn(7),
		UsesFlashbots:       bernoulli(r, 0.6),
		HasBundle:           bernoulli(r, 0.5),
	}
}
