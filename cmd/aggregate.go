package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/aggregate"
	"github.com/formstat/formstat/internal/decay"
	"github.com/formstat/formstat/internal/model"
	"github.com/formstat/formstat/internal/report"
	"github.com/formstat/formstat/internal/storage"
)

var (
	aggCutoff   string
	aggAlpha    float64
	aggHalfLife float64
	aggPolicy   string
	aggColumns  string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <entity> [<entity>...]",
	Short: "Time-decayed feature vector for one or more entities",
	Long: `Summarize each entity's observation history strictly before the cutoff
date into one weighted-mean vector, recent rows counting more. With
several entities the vectors are printed side by side over a shared
column set.

Examples:
  formstat aggregate alderete
  formstat aggregate alderete benitez --cutoff 2024-01-15 --alpha 0.2
  formstat aggregate alderete --half-life 7 --policy fill-zero`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().StringVar(&aggCutoff, "cutoff", "", "cutoff date YYYY-MM-DD (default: include all history)")
	aggregateCmd.Flags().Float64Var(&aggAlpha, "alpha", decay.DefaultAlpha, "exponential decay rate per day")
	aggregateCmd.Flags().Float64Var(&aggHalfLife, "half-life", 0, "half-life in days; overrides --alpha when set")
	aggregateCmd.Flags().StringVar(&aggPolicy, "policy", "drop-cell", "missing-value policy: drop-cell, drop-row or fill-zero")
	aggregateCmd.Flags().StringVar(&aggColumns, "columns", "", "comma-separated feature columns (default: all)")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	cutoff, err := parseCutoff(aggCutoff)
	if err != nil {
		return err
	}
	policy, err := aggregate.ParsePolicy(aggPolicy)
	if err != nil {
		return err
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	table, err := db.LoadTable("", "")
	if err != nil {
		return fmt.Errorf("load observations: %w", err)
	}
	if table.Len() == 0 {
		return fmt.Errorf("no observations stored")
	}

	alpha, err := resolveAlpha(aggAlpha, aggHalfLife)
	if err != nil {
		return err
	}
	opts := aggregate.Options{
		Alpha:   alpha,
		Policy:  policy,
		Columns: splitColumns(aggColumns),
	}

	var vectors []model.FeatureVector
	for _, entity := range args {
		vec, err := aggregate.Aggregate(table, entity, cutoff, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "SKIP %s: %v\n", entity, err)
			continue
		}
		vectors = append(vectors, *vec)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("no entity had usable history before %s", cutoff.Format(time.DateOnly))
	}

	fmt.Fprintf(os.Stdout, "\nCutoff: %s  |  Alpha: %g  |  Policy: %s\n\n",
		cutoff.Format(time.DateOnly), opts.Alpha, policy)
	report.PrintVectors(os.Stdout, vectors)
	return nil
}

// parseCutoff reads a YYYY-MM-DD cutoff flag. Empty means tomorrow (UTC),
// which makes every stored observation count as history.
func parseCutoff(s string) (time.Time, error) {
	if s == "" {
		return model.DayOf(time.Now().UTC()).AddDate(0, 0, 1), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cutoff %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// resolveAlpha picks the decay rate: an explicit half-life wins over alpha.
// The rate must be positive; zero or negative values would silently disable
// decay instead of weighting recent rows more.
func resolveAlpha(alpha, halfLife float64) (float64, error) {
	if halfLife > 0 {
		return decay.AlphaForHalfLife(halfLife), nil
	}
	if alpha <= 0 {
		return 0, fmt.Errorf("alpha must be positive, got %g", alpha)
	}
	return alpha, nil
}

func splitColumns(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var cols []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}
