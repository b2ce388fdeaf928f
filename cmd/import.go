package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/fetch"
	"github.com/formstat/formstat/internal/ingest"
	"github.com/formstat/formstat/internal/model"
	"github.com/formstat/formstat/internal/storage"
)

var (
	importType    string
	importTeam    string
	importSource  string
	importPer90   bool
	importMinutes string
)

var importCmd = &cobra.Command{
	Use:   "import <path-or-url>",
	Short: "Import a CSV of observations into the database",
	Long: `Read a CSV of per-match observation rows from a local file or an HTTP(S)
URL and store it. Compressed inputs (.gz, .zst, .bz2) are decompressed
transparently.

Player CSVs need an identifier column and a date column; every numeric
column becomes a feature. Cells like "12 (4)" split into Total and
Successful columns, "31/40" into Successful and Total, and "90'" is read
as minutes. A Score column together with Home/Away becomes "Goals for"
and "Goals against".

Team CSVs (--type team) need team and date columns plus the usual match
stat columns (gf, ga, sh, sot, dist, fk, pk, pkatt).

Examples:
  formstat import matches.csv
  formstat import --per90 https://example.com/stats.csv.gz
  formstat import --type team --team olimpia teams.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importType, "type", "player", "entity type of the rows: player or team")
	importCmd.Flags().StringVar(&importTeam, "team", "", "keep only this team's rows (team CSVs)")
	importCmd.Flags().StringVar(&importSource, "source", "", "source label stored with the rows (default: file name)")
	importCmd.Flags().BoolVar(&importPer90, "per90", false, "normalize feature columns to per-90-minutes rates")
	importCmd.Flags().StringVar(&importMinutes, "minutes-column", "Minutes played", "minutes column used by --per90")
}

func runImport(cmd *cobra.Command, args []string) error {
	src := args[0]

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	r, err := fetch.NewClient().Open(cmd.Context(), src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer r.Close()

	source := importSource
	if source == "" {
		source = sourceLabel(src)
	}

	switch importType {
	case "player":
		return importPlayers(db, r, source)
	case "team":
		return importTeams(db, r)
	default:
		return fmt.Errorf("unknown --type %q (want player or team)", importType)
	}
}

func importPlayers(db *storage.DB, r io.Reader, source string) error {
	table, err := ingest.ReadPlayerCSV(r)
	if err != nil {
		return fmt.Errorf("read csv: %w", err)
	}

	if importPer90 {
		table, err = ingest.Per90(table, importMinutes,
			"Position", "Home/Away", "Goals for", "Goals against")
		if err != nil {
			return fmt.Errorf("per-90 normalize: %w", err)
		}
	}

	if err := db.InsertObservations(model.EntityPlayer, source, table.Rows()); err != nil {
		return fmt.Errorf("store observations: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Imported %d observation row(s) for %d entit(ies), %d feature column(s).\n",
		table.Len(), len(table.Entities()), len(table.Columns()))
	return nil
}

func importTeams(db *storage.DB, r io.Reader) error {
	matches, err := ingest.ReadTeamCSV(r, importTeam)
	if err != nil {
		return fmt.Errorf("read csv: %w", err)
	}
	if len(matches) == 0 {
		fmt.Fprintln(os.Stdout, "No matching rows found.")
		return nil
	}

	if err := db.InsertTeamMatches(matches); err != nil {
		return fmt.Errorf("store matches: %w", err)
	}

	teams := make(map[string]bool)
	for _, m := range matches {
		teams[m.Team] = true
	}
	fmt.Fprintf(os.Stdout, "Imported %d match row(s) for %d team(s).\n", len(matches), len(teams))
	return nil
}

// sourceLabel derives a stable source tag from a path or URL.
func sourceLabel(src string) string {
	s := src
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return filepath.Base(s)
}
