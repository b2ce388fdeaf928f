package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/aggregate"
	"github.com/formstat/formstat/internal/dataset"
	"github.com/formstat/formstat/internal/decay"
	"github.com/formstat/formstat/internal/encoder"
	"github.com/formstat/formstat/internal/model"
	"github.com/formstat/formstat/internal/storage"
)

var (
	trainName     string
	trainCutoff   string
	trainAlpha    float64
	trainHalfLife float64
	trainPolicy   string
	trainColumns  string
	trainWorkers  int
	trainHidden   string
	trainEpochs   int
	trainLR       float64
	trainSeed     int64
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a form encoder on a supervised training set",
	Long: `Build the training set for a cutoff date, train an autoencoder that
compresses the decayed aggregates, and store the model under a name.
The model records its column order, alpha and policy so that later
encoding uses exactly the training-time geometry.

Example:
  formstat train --name base --cutoff 2024-01-15 --hidden 16,8 --epochs 300`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&trainName, "name", "base", "name to store the model under")
	trainCmd.Flags().StringVar(&trainCutoff, "cutoff", "", "cutoff date YYYY-MM-DD (required)")
	trainCmd.Flags().Float64Var(&trainAlpha, "alpha", decay.DefaultAlpha, "exponential decay rate per day")
	trainCmd.Flags().Float64Var(&trainHalfLife, "half-life", 0, "half-life in days; overrides --alpha when set")
	trainCmd.Flags().StringVar(&trainPolicy, "policy", "drop-cell", "missing-value policy: drop-cell, drop-row or fill-zero")
	trainCmd.Flags().StringVar(&trainColumns, "columns", "", "comma-separated feature columns (default: all)")
	trainCmd.Flags().IntVar(&trainWorkers, "workers", 1, "entities aggregated concurrently")
	trainCmd.Flags().StringVar(&trainHidden, "hidden", "", "hidden layer sizes, e.g. 16,8 (default: derived from input size)")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 200, "training epochs")
	trainCmd.Flags().Float64Var(&trainLR, "lr", 0.01, "learning rate")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 42, "weight initialization seed")
	_ = trainCmd.MarkFlagRequired("cutoff")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cutoff, err := time.Parse(time.DateOnly, trainCutoff)
	if err != nil {
		return fmt.Errorf("invalid cutoff %q (want YYYY-MM-DD)", trainCutoff)
	}
	policy, err := aggregate.ParsePolicy(trainPolicy)
	if err != nil {
		return err
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	table, err := db.LoadTable(model.EntityPlayer, "")
	if err != nil {
		return fmt.Errorf("load observations: %w", err)
	}

	alpha, err := resolveAlpha(trainAlpha, trainHalfLife)
	if err != nil {
		return err
	}
	ds, err := dataset.Build(table, cutoff, dataset.BuildOptions{
		Alpha:   alpha,
		Policy:  policy,
		Columns: splitColumns(trainColumns),
		Workers: trainWorkers,
	})
	if err != nil {
		return fmt.Errorf("build training set: %w", err)
	}
	reportBuildStats(ds.Stats)
	if len(ds.Pairs) == 0 {
		return fmt.Errorf("no training pairs for cutoff %s", trainCutoff)
	}

	hidden := encoder.DefaultHidden(len(ds.Columns))
	if trainHidden != "" {
		hidden, err = parseHidden(trainHidden)
		if err != nil {
			return err
		}
	}

	enc, err := encoder.New(len(ds.Columns), hidden, trainSeed)
	if err != nil {
		return fmt.Errorf("build encoder: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Training %s on %d pair(s): %d inputs → %d latent, %d epoch(s)\n",
		trainName, len(ds.Pairs), enc.InputSize(), enc.LatentSize(), trainEpochs)
	loss, err := enc.Train(ds.Inputs(), ds.Targets(), trainEpochs, trainLR)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	encJSON, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	spec := storage.ModelSpec{
		Columns: ds.Columns,
		Alpha:   ds.Alpha,
		Policy:  policy.String(),
		Latent:  enc.LatentSize(),
		Encoder: encJSON,
	}
	if err := db.SaveModel(trainName, spec); err != nil {
		return fmt.Errorf("save model: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Saved model %q: %d column(s) → %d latent, final loss %.6f\n",
		trainName, len(ds.Columns), enc.LatentSize(), loss)
	return nil
}

func parseHidden(s string) ([]int, error) {
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid --hidden %q (want positive sizes like 16,8)", s)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}
