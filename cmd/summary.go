package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/report"
	"github.com/formstat/formstat/internal/storage"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show a high-level overview of the database",
	Long: `Display aggregate statistics about the stored data: entity and
observation counts, feature columns, team matches, trained models and
the covered date range.`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	ov, err := db.Overview()
	if err != nil {
		return fmt.Errorf("get overview: %w", err)
	}
	if ov.Observations == 0 && ov.TeamMatches == 0 {
		fmt.Fprintln(os.Stdout, "No data stored yet. Run 'formstat import <file.csv>' to add some.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "\n=== Database Summary ===\n\n")
	report.PrintOverview(os.Stdout, *ov)

	if ov.Models > 0 {
		models, err := db.ListModels()
		if err != nil {
			return fmt.Errorf("list models: %w", err)
		}
		fmt.Fprintf(os.Stdout, "\n--- Models ---\n\n")
		report.PrintModelList(os.Stdout, models)
	}
	return nil
}
