// Benchmark tool for testing Kestrel against a labeled attack corpus.
//
// Usage:
//
//	go run cmd/benchmark/main.go -n 5000 -url http://localhost:8080
//	go run cmd/benchmark/main.go -csv corpus.csv -url http://localhost:8080
//
// This tool:
//  1. Generates labeled MEV transaction data (or reads a corpus CSV)
//  2. Sends each transaction to Kestrel for scoring
//  3. Compares Kestrel's verdict with the actual attack labels
//  4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-web3/kestrel/internal/corpus"
)

// ScoreResponse is the subset of the assessment the benchmark reads.
type ScoreResponse struct {
	ID               string  `json:"id"`
	RiskScore        float64 `json:"risk_score"`
	IsAttack         bool    `json:"is_attack"`
	AttackType       string  `json:"attack_type"`
	ProtectionMethod string  `json:"protection_method"`
	InferenceTimeMs  float64 `json:"inference_time_ms"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Attack flagged as attack
	FalsePositives int64 // Normal flagged as attack
	TrueNegatives  int64 // Normal scored benign
	FalseNegatives int64 // Attack scored benign (missed!)

	TotalProcessed int64
	TotalAttacks   int64
	TotalNormal    int64
	TotalErrors    int64

	// Routing distribution
	RoutedPublic   int64
	RoutedTimelock int64
	RoutedPrivate  int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	n := flag.Int("n", 5000, "Number of transactions to generate")
	seed := flag.Int64("seed", 99, "Corpus generator seed (distinct from the training seed)")
	csvPath := flag.String("csv", "", "Read a labeled corpus CSV instead of generating one")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	chainID := flag.String("chain", "benchmark-test", "Chain ID for requests")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	attacksOnly := flag.Bool("attacks-only", false, "Only test attack transactions")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           KESTREL BENCHMARK - MEV Attack Detection            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	if *csvPath != "" {
		fmt.Printf("\nCorpus:      %s\n", *csvPath)
	} else {
		fmt.Printf("\nCorpus:      %d generated (seed %d)\n", *n, *seed)
	}
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Chain ID:    %s\n", *chainID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running with a trained model:")
		fmt.Println("  go run cmd/train/main.go")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Load or generate the labeled corpus
	examples, err := loadExamples(*csvPath, *n, *seed, *attacksOnly)
	if err != nil {
		fmt.Printf("ERROR: failed to load corpus: %v\n", err)
		os.Exit(1)
	}

	attackCount := 0
	for i := range examples {
		if examples[i].IsAttack == 1 {
			attackCount++
		}
	}
	fmt.Printf("✓ Loaded %d transactions\n", len(examples))
	fmt.Printf("  - Attacks: %d (%.2f%%)\n", attackCount, 100*float64(attackCount)/float64(len(examples)))
	fmt.Printf("  - Normal:  %d (%.2f%%)\n", len(examples)-attackCount, 100*float64(len(examples)-attackCount)/float64(len(examples)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(examples, *baseURL, *chainID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func loadExamples(csvPath string, n int, seed int64, attacksOnly bool) ([]corpus.Example, error) {
	var examples []corpus.Example
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		examples, err = corpus.ReadCSV(f)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		examples, err = corpus.NewGenerator(seed).Generate(n, corpus.DefaultRatios())
		if err != nil {
			return nil, err
		}
	}

	if !attacksOnly {
		return examples, nil
	}
	filtered := examples[:0]
	for i := range examples {
		if examples[i].IsAttack == 1 {
			filtered = append(filtered, examples[i])
		}
	}
	return filtered, nil
}

func runBenchmark(examples []corpus.Example, baseURL, chainID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan corpus.Example, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for ex := range work {
				start := time.Now()
				result, err := scoreTransaction(client, baseURL, chainID, ex)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				}

				// Track actual labels
				actual := ex.IsAttack == 1
				if actual {
					atomic.AddInt64(&metrics.TotalAttacks, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNormal, 1)
				}

				// Calculate confusion matrix
				predicted := result.IsAttack

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				switch result.ProtectionMethod {
				case "public":
					atomic.AddInt64(&metrics.RoutedPublic, 1)
				case "timelock":
					atomic.AddInt64(&metrics.RoutedTimelock, 1)
				case "private":
					atomic.AddInt64(&metrics.RoutedPrivate, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s %-9s | Value: %9.3f ETH | Slippage: %5.2f%% | Risk: %6.2f | Kestrel: %-9s | Route: %s\n",
						status,
						ex.AttackType,
						ex.Tx.ValueETH,
						ex.Tx.SlippageTol,
						result.RiskScore,
						result.AttackType,
						result.ProtectionMethod,
					)
				}
			}
		}()
	}

	// Send work
	for _, ex := range examples {
		work <- ex
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func scoreTransaction(client *http.Client, baseURL, chainID string, ex corpus.Example) (*ScoreResponse, error) {
	body, err := json.Marshal(ex.Tx)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Chain-ID", chainID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Attacks:    %d\n", m.TotalAttacks)
	fmt.Printf("   Total Normal:     %d\n", m.TotalNormal)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   Attack      Normal")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  A  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           N  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged, how many were actual attacks)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of attacks, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalAttacks > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalAttacks) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalAttacks) * 100
		fmt.Printf("   Attacks Caught:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalAttacks, detectionRate)
		fmt.Printf("   Attacks Missed:    %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalAttacks, missRate)
	}
	if m.TotalNormal > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNormal) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNormal, falseAlarmRate)
	}

	fmt.Printf("\n🛡️  ROUTING DISTRIBUTION\n")
	scored := m.TotalProcessed - m.TotalErrors
	if scored > 0 {
		fmt.Printf("   Public:    %6d (%.2f%%)\n", m.RoutedPublic, 100*float64(m.RoutedPublic)/float64(scored))
		fmt.Printf("   Timelock:  %6d (%.2f%%)\n", m.RoutedTimelock, 100*float64(m.RoutedTimelock)/float64(scored))
		fmt.Printf("   Private:   %6d (%.2f%%)\n", m.RoutedPrivate, 100*float64(m.RoutedPrivate)/float64(scored))
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most attacks")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some attacks")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant attacks being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most attacks are being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
