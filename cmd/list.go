package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/model"
	"github.com/formstat/formstat/internal/report"
	"github.com/formstat/formstat/internal/storage"
)

var listType string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored entities",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listType, "type", "", "filter by entity type: player or team")
}

func runList(cmd *cobra.Command, args []string) error {
	switch listType {
	case "", "player", "team":
	default:
		return fmt.Errorf("unknown --type %q (want player or team)", listType)
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	entities, err := db.ListEntities(model.EntityType(listType))
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}
	if len(entities) == 0 {
		fmt.Fprintln(os.Stdout, "No entities stored yet. Run 'formstat import <file.csv>' to add data.")
		return nil
	}

	report.PrintEntityList(os.Stdout, entities)
	return nil
}
