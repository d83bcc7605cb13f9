// Training tool for the Kestrel scoring ensemble.
//
// Usage:
//
//	go run cmd/train/main.go [-size 100000] [-seed 42] [-db ./kestrel.db]
//
// This tool:
//  1. Generates a labeled attack corpus (or reads one from CSV)
//  2. Fits the feature transform and trains both base learners
//  3. Reports held-out metrics per learner and for the blended vote
//  4. Stores the versioned artifact so the server can load it
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/opensource-web3/kestrel/internal/corpus"
	"github.com/opensource-web3/kestrel/internal/domain"
	"github.com/opensource-web3/kestrel/internal/pipeline"
	"github.com/opensource-web3/kestrel/internal/repository"
)

func main() {
	size := flag.Int("size", 100000, "Corpus size to generate")
	seed := flag.Int64("seed", corpus.DefaultSeed, "Corpus generator seed")
	csvPath := flag.String("csv", "", "Train from a labeled corpus CSV instead of generating one")
	dbPath := flag.String("db", "./kestrel.db", "SQLite database to store the artifact (empty = don't store)")
	exportCSV := flag.String("export-csv", "", "Also write the generated corpus to this CSV path")
	flag.Parse()

	// Trainer progress goes to stderr so the report stays clean
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            KESTREL TRAIN - MEV Detection Ensemble             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	cfg := pipeline.DefaultTrainerConfig()
	cfg.CorpusSize = *size
	cfg.CorpusSeed = *seed
	trainer := pipeline.NewTrainer(cfg, logger)

	ctx := context.Background()
	start := time.Now()

	var (
		art *domain.Artifact
		err error
	)
	if *csvPath != "" {
		fmt.Printf("\nCorpus:  %s\n\n", *csvPath)
		examples, readErr := readCorpusCSV(*csvPath)
		if readErr != nil {
			fmt.Printf("ERROR: failed to read corpus: %v\n", readErr)
			os.Exit(1)
		}
		art, err = trainer.TrainOn(ctx, examples)
	} else {
		fmt.Printf("\nCorpus:  %d generated examples (seed %d)\n\n", *size, *seed)
		if *exportCSV != "" {
			if exportErr := exportCorpus(*exportCSV, *size, *seed); exportErr != nil {
				fmt.Printf("ERROR: failed to export corpus: %v\n", exportErr)
				os.Exit(1)
			}
			fmt.Printf("✓ Corpus written to %s\n\n", *exportCSV)
		}
		art, err = trainer.Train(ctx)
	}
	if err != nil {
		fmt.Printf("ERROR: training failed: %v\n", err)
		os.Exit(1)
	}

	printReport(art, time.Since(start))

	if *dbPath == "" {
		fmt.Println("No database path given - artifact not stored.")
		return
	}

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: *dbPath})
	if err != nil {
		fmt.Printf("ERROR: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.SaveArtifact(ctx, art); err != nil {
		fmt.Printf("ERROR: failed to store artifact: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Artifact %s stored in %s\n", art.Version, *dbPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  go run cmd/kestrel/main.go            # picks up the newest artifact on boot")
	fmt.Println("  curl -X POST -H 'X-Chain-ID: ethereum' localhost:8080/model/reload   # hot-swap on a running server")
	fmt.Println()
}

func readCorpusCSV(path string) ([]corpus.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return corpus.ReadCSV(f)
}

func exportCorpus(path string, size int, seed int64) error {
	examples, err := corpus.NewGenerator(seed).Generate(size, corpus.DefaultRatios())
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return corpus.WriteCSV(f, examples)
}

func printReport(art *domain.Artifact, duration time.Duration) {
	fmt.Printf("\n📊 TRAINED ARTIFACT\n")
	fmt.Printf("   Version:     %s\n", art.Version)
	fmt.Printf("   Model Type:  %s\n", art.ModelType)
	fmt.Printf("   Corpus:      %d rows (seed %d)\n", art.CorpusSize, art.CorpusSeed)
	fmt.Printf("   Features:    %d retained columns\n", len(art.Columns))
	fmt.Printf("   Duration:    %v\n", duration.Round(time.Millisecond))

	fmt.Printf("\n📈 HELD-OUT METRICS\n")
	fmt.Println("   ┌──────────┬──────────┬───────────┬──────────┬──────────┬──────────┐")
	fmt.Println("   │ Learner  │ Accuracy │ Precision │  Recall  │    F1    │   AUC    │")
	fmt.Println("   ├──────────┼──────────┼───────────┼──────────┼──────────┼──────────┤")
	for _, key := range []string{pipeline.MetricFast, pipeline.MetricAccurate, pipeline.MetricEnsemble} {
		m, ok := art.Metrics[key]
		if !ok {
			continue
		}
		fmt.Printf("   │ %-8s │  %.4f  │  %.4f   │  %.4f  │  %.4f  │  %.4f  │\n",
			key, m.Accuracy, m.Precision, m.Recall, m.F1, m.AUC)
	}
	fmt.Println("   └──────────┴──────────┴───────────┴──────────┴──────────┴──────────┘")

	if em, ok := art.Metrics[pipeline.MetricEnsemble]; ok {
		fmt.Printf("\n🎯 ENSEMBLE CONFUSION MATRIX\n")
		fmt.Println("                         Predicted")
		fmt.Println("                    Attack      Normal")
		fmt.Println("              ┌──────────┬──────────┐")
		fmt.Printf("   Actual  A  │ %8d │ %8d │  (TP, FN)\n", em.TruePos, em.FalseNeg)
		fmt.Println("              ├──────────┼──────────┤")
		fmt.Printf("           N  │ %8d │ %8d │  (FP, TN)\n", em.FalsePos, em.TrueNeg)
		fmt.Println("              └──────────┴──────────┘")
	}
	fmt.Println()
}
