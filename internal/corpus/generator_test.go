package corpus

import (
	"bytes"
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func TestGenerate(t *testing.T) {
	t.Run("ExactClassCounts", func(t *testing.T) {
		g := NewGenerator(DefaultSeed)
		examples, err := g.Generate(10000, DefaultRatios())
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}

		counts := map[string]int{}
		for _, ex := range examples {
			counts[ex.AttackType]++
		}
		want := map[string]int{
			ClassNormal:    6000,
			ClassSandwich:  1500,
			ClassFrontrun:  1000,
			ClassBackrun:   800,
			ClassArbitrage: 700,
		}
		for class, n := range want {
			if counts[class] != n {
				t.Errorf("%s count = %d, want %d", class, counts[class], n)
			}
		}
		if len(examples) != 10000 {
			t.Errorf("total = %d, want 10000", len(examples))
		}
	})

	t.Run("TruncationDropsRemainders", func(t *testing.T) {
		g := NewGenerator(DefaultSeed)
		examples, err := g.Generate(33, DefaultRatios())
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		// int(0.60·33)+int(0.15·33)+int(0.10·33)+int(0.08·33)+int(0.07·33) = 30
		if len(examples) != 30 {
			t.Errorf("total = %d, want 30 after per-class truncation", len(examples))
		}
	})

	t.Run("Reproducible", func(t *testing.T) {
		a, err := NewGenerator(42).Generate(2000, DefaultRatios())
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		b, err := NewGenerator(42).Generate(2000, DefaultRatios())
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("same seed produced different corpora")
		}
	})

	t.Run("RepeatCallsRewind", func(t *testing.T) {
		g := NewGenerator(42)
		a, _ := g.Generate(500, DefaultRatios())
		b, _ := g.Generate(500, DefaultRatios())
		if !reflect.DeepEqual(a, b) {
			t.Errorf("second call on the same generator diverged")
		}
	})

	t.Run("SeedsDiffer", func(t *testing.T) {
		a, _ := NewGenerator(1).Generate(500, DefaultRatios())
		b, _ := NewGenerator(2).Generate(500, DefaultRatios())
		if reflect.DeepEqual(a, b) {
			t.Errorf("different seeds produced identical corpora")
		}
	})

	t.Run("EveryRecordValidates", func(t *testing.T) {
		g := NewGenerator(DefaultSeed)
		examples, err := g.Generate(5000, DefaultRatios())
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		for i, ex := range examples {
			if err := ex.Tx.Validate(); err != nil {
				t.Fatalf("record %d (%s) fails validation: %v", i, ex.AttackType, err)
			}
		}
	})

	t.Run("Shuffled", func(t *testing.T) {
		g := NewGenerator(DefaultSeed)
		examples, err := g.Generate(5000, DefaultRatios())
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		seen := map[string]bool{}
		for _, ex := range examples[:100] {
			seen[ex.AttackType] = true
		}
		if len(seen) < 2 {
			t.Errorf("first 100 records hold a single class; corpus not shuffled")
		}
	})

	t.Run("LabelsMatchClass", func(t *testing.T) {
		g := NewGenerator(DefaultSeed)
		examples, err := g.Generate(1000, DefaultRatios())
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		for _, ex := range examples {
			wantAttack := 1
			if ex.AttackType == ClassNormal {
				wantAttack = 0
			}
			if ex.IsAttack != wantAttack {
				t.Fatalf("%s record has is_attack=%d", ex.AttackType, ex.IsAttack)
			}
		}
	})

	t.Run("ClassProfilesSeparate", func(t *testing.T) {
		g := NewGenerator(DefaultSeed)
		examples, err := g.Generate(20000, DefaultRatios())
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}

		gasMean := map[string]float64{}
		posMean := map[string]float64{}
		count := map[string]float64{}
		for _, ex := range examples {
			gasMean[ex.AttackType] += ex.Tx.GasPriceGwei
			posMean[ex.AttackType] += ex.Tx.PositionInBlock
			count[ex.AttackType]++
		}
		for class := range gasMean {
			gasMean[class] /= count[class]
			posMean[class] /= count[class]
		}

		if gasMean[ClassSandwich] < gasMean[ClassNormal]+10 {
			t.Errorf("sandwich gas mean %v not clearly above normal %v", gasMean[ClassSandwich], gasMean[ClassNormal])
		}
		if posMean[ClassFrontrun] > 0.2 {
			t.Errorf("frontrun position mean %v, want concentration near the top of the block", posMean[ClassFrontrun])
		}
		if posMean[ClassBackrun] < 0.6 {
			t.Errorf("backrun position mean %v, want concentration late in the block", posMean[ClassBackrun])
		}
	})

	t.Run("BadInputs", func(t *testing.T) {
		g := NewGenerator(DefaultSeed)
		if _, err := g.Generate(0, DefaultRatios()); err == nil {
			t.Errorf("expected error for n=0")
		}

		neg := DefaultRatios()
		neg.Normal = -0.1
		neg.Sandwich = 0.85
		if _, err := g.Generate(100, neg); !errors.Is(err, ErrBadRatios) {
			t.Errorf("expected ErrBadRatios for negative ratio, got %v", err)
		}

		short := Ratios{Normal: 0.5}
		if _, err := g.Generate(100, short); !errors.Is(err, ErrBadRatios) {
			t.Errorf("expected ErrBadRatios for ratios summing to 0.5, got %v", err)
		}
	})
}

func TestCSVRoundTrip(t *testing.T) {
	g := NewGenerator(DefaultSeed)
	examples, err := g.Generate(300, DefaultRatios())
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, examples); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	back, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if !reflect.DeepEqual(examples, back) {
		t.Errorf("corpus changed across a CSV round trip")
	}
}

func TestReadCSVRejectsForeignHeader(t *testing.T) {
	if _, err := ReadCSV(bytes.NewBufferString("a,b,c\n1,2,3\n")); err == nil {
		t.Errorf("expected header rejection")
	}
}

func TestSamplers(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	t.Run("BetaStaysInUnitInterval", func(t *testing.T) {
		params := [][2]float64{{8, 2}, {2, 5}, {9, 1}, {1, 10}, {5, 2}}
		for _, p := range params {
			for i := 0; i < 2000; i++ {
				v := beta(r, p[0], p[1])
				if v < 0 || v > 1 {
					t.Fatalf("beta(%v,%v) = %v outside [0,1]", p[0], p[1], v)
				}
			}
		}
	})

	t.Run("BetaMean", func(t *testing.T) {
		var sum float64
		const n = 20000
		for i := 0; i < n; i++ {
			sum += beta(r, 2, 5)
		}
		mean := sum / n
		// Expected mean a/(a+b) = 2/7.
		if mean < 0.25 || mean > 0.32 {
			t.Errorf("beta(2,5) mean = %v, want near 0.286", mean)
		}
	})

	t.Run("PoissonMean", func(t *testing.T) {
		var sum float64
		const n = 5000
		for i := 0; i < n; i++ {
			sum += float64(poisson(r, 150))
		}
		mean := sum / n
		if mean < 145 || mean > 155 {
			t.Errorf("poisson(150) mean = %v, want near 150", mean)
		}
	})

	t.Run("ClipBounds", func(t *testing.T) {
		if v := clip(-5, 0, 1); v != 0 {
			t.Errorf("clip(-5,0,1) = %v", v)
		}
		if v := clip(5, 0, 1); v != 1 {
			t.Errorf("clip(5,0,1) = %v", v)
		}
		if v := clip(0.5, 0, 1); v != 0.5 {
			t.Errorf("clip(0.5,0,1) = %v", v)
		}
	})
}
