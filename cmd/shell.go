package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/aggregate"
	"github.com/formstat/formstat/internal/form"
	"github.com/formstat/formstat/internal/model"
	"github.com/formstat/formstat/internal/report"
	"github.com/formstat/formstat/internal/storage"
)

var (
	cPrompt   = color.New(color.FgCyan, color.Bold)
	cMuted    = color.New(color.Faint)
	cError    = color.New(color.FgRed, color.Bold)
	cWarn     = color.New(color.FgYellow)
	cCmd      = color.New(color.FgYellow, color.Bold)
	cGreeting = color.New(color.Bold)
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive REPL session",
	Long:  "Open a persistent session against the database. Type 'help' for available commands.",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func runShell(_ *cobra.Command, _ []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	cGreeting.Println("formstat shell")
	cMuted.Println("type 'help' or 'exit'")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		cPrompt.Print("formstat")
		cMuted.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		tokens := strings.Fields(line)
		cmd, args := tokens[0], tokens[1:]

		switch cmd {
		case "exit", "quit":
			return nil
		case "help":
			shellHelp()
		case "list":
			shellList(db, args)
		case "show":
			if len(args) == 0 {
				cError.Fprintln(os.Stderr, "usage: show <entity>")
				continue
			}
			shellShow(db, args[0])
		case "agg":
			if len(args) == 0 {
				cError.Fprintln(os.Stderr, "usage: agg <entity> [<entity>...] [<cutoff>]")
				continue
			}
			shellAggregate(db, args)
		case "form":
			if len(args) == 0 {
				cError.Fprintln(os.Stderr, "usage: form <team> [<date>]")
				continue
			}
			shellForm(db, args)
		default:
			cWarn.Fprintf(os.Stderr, "unknown command %q — type 'help'\n", cmd)
		}
	}
	return nil
}

func shellHelp() {
	fmt.Println()
	type entry struct{ cmd, desc string }
	rows := []entry{
		{"list [player|team]", "list stored entities"},
		{"show <entity>", "show an entity's observation history"},
		{"agg <entity> [...] [<cutoff>]", "decayed aggregate, optionally as of YYYY-MM-DD"},
		{"form <team> [<date>]", "recent-form summary for a team"},
		{"help", "show this message"},
		{"exit / quit", "close the session"},
	}
	for _, r := range rows {
		fmt.Print("  ")
		cCmd.Printf("%-32s", r.cmd)
		fmt.Println(r.desc)
	}
	fmt.Println()
}

func shellList(db *storage.DB, args []string) {
	typ := ""
	if len(args) > 0 {
		typ = args[0]
	}
	switch typ {
	case "", "player", "team":
	default:
		cError.Fprintf(os.Stderr, "unknown type %q (want player or team)\n", typ)
		return
	}

	entities, err := db.ListEntities(model.EntityType(typ))
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	if len(entities) == 0 {
		cMuted.Println("No entities stored yet.")
		return
	}
	report.PrintEntityList(os.Stdout, entities)
}

func shellShow(db *storage.DB, entityID string) {
	info, err := db.GetEntity(entityID)
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	if info == nil {
		cWarn.Fprintf(os.Stderr, "no entity %q found\n", entityID)
		return
	}
	rows, err := db.LoadEntityObservations(entityID)
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	report.PrintHistory(os.Stdout, rows)
}

func shellAggregate(db *storage.DB, args []string) {
	// A trailing YYYY-MM-DD token is the cutoff; everything else is entities.
	cutoff := model.DayOf(time.Now().UTC()).AddDate(0, 0, 1)
	if t, err := time.Parse(time.DateOnly, args[len(args)-1]); err == nil {
		cutoff = t
		args = args[:len(args)-1]
	}
	if len(args) == 0 {
		cError.Fprintln(os.Stderr, "usage: agg <entity> [<entity>...] [<cutoff>]")
		return
	}

	table, err := db.LoadTable("", "")
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}

	var vectors []model.FeatureVector
	for _, entity := range args {
		vec, err := aggregate.Aggregate(table, entity, cutoff, aggregate.Options{})
		if err != nil {
			cWarn.Fprintf(os.Stderr, "skip %s: %v\n", entity, err)
			continue
		}
		vectors = append(vectors, *vec)
	}
	if len(vectors) == 0 {
		return
	}
	report.PrintVectors(os.Stdout, vectors)
}

func shellForm(db *storage.DB, args []string) {
	team := args[0]
	date := time.Now().UTC()
	if len(args) > 1 {
		t, err := time.Parse(time.DateOnly, args[1])
		if err != nil {
			cError.Fprintf(os.Stderr, "invalid date %q (want YYYY-MM-DD)\n", args[1])
			return
		}
		date = t
	}

	matches, err := db.LoadTeamMatches(team)
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	f, err := form.Compute(matches, team, date, form.Options{})
	if err != nil {
		cWarn.Fprintf(os.Stderr, "%v\n", err)
		return
	}
	report.PrintTeamForm(os.Stdout, f)
}
