package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/decay"
	"github.com/formstat/formstat/internal/model"
	"github.com/formstat/formstat/internal/report"
	"github.com/formstat/formstat/internal/storage"
)

var (
	trendCutoff   string
	trendAlpha    float64
	trendHalfLife float64
)

var trendCmd = &cobra.Command{
	Use:   "trend <entity> <column>",
	Short: "One feature column across an entity's history",
	Long: `Print a feature column row by row in date order, together with the decay
weight each row carries at the cutoff and the weighted mean accumulated
so far. The last accumulated value is exactly what 'aggregate' reports
for that column.`,
	Args: cobra.ExactArgs(2),
	RunE: runTrend,
}

func init() {
	trendCmd.Flags().StringVar(&trendCutoff, "cutoff", "", "cutoff date YYYY-MM-DD (default: include all history)")
	trendCmd.Flags().Float64Var(&trendAlpha, "alpha", decay.DefaultAlpha, "exponential decay rate per day")
	trendCmd.Flags().Float64Var(&trendHalfLife, "half-life", 0, "half-life in days; overrides --alpha when set")
}

func runTrend(cmd *cobra.Command, args []string) error {
	entityID, column := args[0], args[1]

	cutoff, err := parseCutoff(trendCutoff)
	if err != nil {
		return err
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	rows, err := db.LoadEntityObservations(entityID)
	if err != nil {
		return fmt.Errorf("load observations: %w", err)
	}

	cutoffDay := model.DayOf(cutoff)
	var history []model.Observation
	for _, r := range rows {
		if model.DayOf(r.Date).Before(cutoffDay) {
			history = append(history, r)
		}
	}
	if len(history) == 0 {
		fmt.Fprintf(os.Stderr, "No observations for %q before %s\n", entityID, cutoffDay.Format(time.DateOnly))
		return nil
	}

	alpha, err := resolveAlpha(trendAlpha, trendHalfLife)
	if err != nil {
		return err
	}
	report.PrintTrend(os.Stdout, column, history, cutoff, alpha)
	return nil
}
