package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/report"
	"github.com/formstat/formstat/internal/storage"
)

var showLast int

var showCmd = &cobra.Command{
	Use:   "show <entity>",
	Short: "Show an entity's stored observation history",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().IntVar(&showLast, "last", 0, "only show the N most recent rows")
}

func runShow(cmd *cobra.Command, args []string) error {
	entityID := args[0]

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	info, err := db.GetEntity(entityID)
	if err != nil {
		return fmt.Errorf("query entity: %w", err)
	}
	if info == nil {
		fmt.Fprintf(os.Stderr, "No entity %q found\n", entityID)
		return nil
	}

	rows, err := db.LoadEntityObservations(entityID)
	if err != nil {
		return fmt.Errorf("load observations: %w", err)
	}
	if showLast > 0 && len(rows) > showLast {
		rows = rows[len(rows)-showLast:]
	}

	fmt.Fprintf(os.Stdout, "\nEntity: %s  |  Type: %s  |  Observations: %d  |  Range: %s → %s\n\n",
		info.ID, info.Type, info.Observations, info.FirstDate, info.LastDate)
	report.PrintHistory(os.Stdout, rows)
	return nil
}
