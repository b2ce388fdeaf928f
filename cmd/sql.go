package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/report"
	"github.com/formstat/formstat/internal/storage"
)

var sqlCmd = &cobra.Command{
	Use:   "sql <query>",
	Short: "Run a raw SQL query against the database",
	Long: `Run an arbitrary SQL query against the database and print results as a table.

Schema overview:
  entities(id, type, name)
  observations(id, entity_id, obs_date, source)
  observation_values(observation_id, column_name, value)
  team_matches(team, match_date, venue, gf, ga, sh, sot, dist, fk, pk, pkatt, result)
  models(name, created_at, spec)
  latents(entity_id, cutoff_date, model_name, vector, created_at)

Feature cells live in observation_values, one row per (observation, column):
  SELECT o.entity_id, o.obs_date, v.value
  FROM observation_values v JOIN observations o ON o.id = v.observation_id
  WHERE v.column_name = 'Goals'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSQL,
}

func runSQL(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	cols, rows, err := db.QueryRaw(query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return nil
	}

	report.PrintQueryResult(os.Stdout, cols, rows)
	fmt.Fprintf(os.Stdout, "\n(%d rows)\n", len(rows))
	return nil
}
