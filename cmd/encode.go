package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/aggregate"
	"github.com/formstat/formstat/internal/dataset"
	"github.com/formstat/formstat/internal/encoder"
	"github.com/formstat/formstat/internal/model"
	"github.com/formstat/formstat/internal/report"
	"github.com/formstat/formstat/internal/storage"
)

var (
	encModel  string
	encCutoff string
	encAll    bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode [<entity>...]",
	Short: "Encode entities to latent form vectors",
	Long: `Aggregate each entity's history as of the cutoff with a stored model's
training-time columns, alpha and policy, run the encoder, and store the
latent vector. Entities without history before the cutoff are skipped
with a warning; one missing entity never aborts a batch.

Examples:
  formstat encode alderete --cutoff 2024-01-15
  formstat encode --all --cutoff 2024-01-15 --model base`,
	Args: cobra.ArbitraryArgs,
	RunE: runEncode,
}

func init() {
	encodeCmd.Flags().StringVar(&encModel, "model", "base", "stored model name")
	encodeCmd.Flags().StringVar(&encCutoff, "cutoff", "", "cutoff date YYYY-MM-DD (required)")
	encodeCmd.Flags().BoolVar(&encAll, "all", false, "encode every entity in the store")
	_ = encodeCmd.MarkFlagRequired("cutoff")
}

func runEncode(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !encAll {
		return fmt.Errorf("name at least one entity or pass --all")
	}
	cutoff, err := time.Parse(time.DateOnly, encCutoff)
	if err != nil {
		return fmt.Errorf("invalid cutoff %q (want YYYY-MM-DD)", encCutoff)
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	rec, err := db.GetModel(encModel)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no model %q stored — run 'formstat train' first", encModel)
	}

	enc := new(encoder.Autoencoder)
	if err := json.Unmarshal(rec.Spec.Encoder, enc); err != nil {
		return fmt.Errorf("decode model %q: %w", encModel, err)
	}
	policy, err := aggregate.ParsePolicy(rec.Spec.Policy)
	if err != nil {
		return fmt.Errorf("model %q: %w", encModel, err)
	}

	table, err := db.LoadTable(model.EntityPlayer, "")
	if err != nil {
		return fmt.Errorf("load observations: %w", err)
	}

	targets := args
	if encAll {
		targets = table.Entities()
	}

	opts := dataset.InferOptions{
		Alpha:   rec.Spec.Alpha,
		Policy:  policy,
		Columns: rec.Spec.Columns,
	}
	cutoffDay := model.DayOf(cutoff).Format(time.DateOnly)

	encoded, skipped := 0, 0
	var last []float64
	for _, entity := range targets {
		vec, err := dataset.Infer(table, entity, cutoff, enc, opts)
		if errors.Is(err, aggregate.ErrNoHistory) {
			fmt.Fprintf(os.Stderr, "SKIP %s: no history before %s\n", entity, cutoffDay)
			skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("encode %s: %w", entity, err)
		}
		if err := db.SaveLatent(entity, cutoffDay, encModel, vec); err != nil {
			return fmt.Errorf("store latent for %s: %w", entity, err)
		}
		encoded++
		last = vec
	}

	if encoded == 0 {
		return fmt.Errorf("no entity could be encoded for cutoff %s", cutoffDay)
	}
	if encoded == 1 && len(targets) == 1 {
		report.PrintLatent(os.Stdout, targets[0], cutoffDay, encModel, last)
		return nil
	}
	fmt.Fprintf(os.Stdout, "Encoded %d entit(ies) with model %q, %d skipped.\n", encoded, encModel, skipped)
	return nil
}
