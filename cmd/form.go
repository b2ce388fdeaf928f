package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/aggregate"
	"github.com/formstat/formstat/internal/decay"
	"github.com/formstat/formstat/internal/form"
	"github.com/formstat/formstat/internal/model"
	"github.com/formstat/formstat/internal/report"
	"github.com/formstat/formstat/internal/storage"
)

var (
	formDate     string
	formWindow   int
	formAlpha    float64
	formHalfLife float64
	formMatches  bool
)

var formCmd = &cobra.Command{
	Use:   "form <team>",
	Short: "Recent-form summary for a team",
	Long: `Summarize a team's most recent matches before a date: win/draw/loss
record, points, and recency-weighted averages of the match stats.

Examples:
  formstat form olimpia
  formstat form olimpia --date 2024-01-20 --window 5 --matches`,
	Args: cobra.ExactArgs(1),
	RunE: runForm,
}

func init() {
	formCmd.Flags().StringVar(&formDate, "date", "", "form date YYYY-MM-DD (default: today)")
	formCmd.Flags().IntVar(&formWindow, "window", form.DefaultWindow, "max matches included")
	formCmd.Flags().Float64Var(&formAlpha, "alpha", decay.DefaultAlpha, "exponential decay rate per day")
	formCmd.Flags().Float64Var(&formHalfLife, "half-life", 0, "half-life in days; overrides --alpha when set")
	formCmd.Flags().BoolVar(&formMatches, "matches", false, "also print the matches included")
}

func runForm(cmd *cobra.Command, args []string) error {
	team := args[0]

	date := time.Now().UTC()
	if formDate != "" {
		var err error
		date, err = time.Parse(time.DateOnly, formDate)
		if err != nil {
			return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", formDate)
		}
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	matches, err := db.LoadTeamMatches(team)
	if err != nil {
		return fmt.Errorf("load matches: %w", err)
	}

	alpha, err := resolveAlpha(formAlpha, formHalfLife)
	if err != nil {
		return err
	}
	f, err := form.Compute(matches, team, date, form.Options{
		Window: formWindow,
		Alpha:  alpha,
	})
	if errors.Is(err, aggregate.ErrNoHistory) {
		fmt.Fprintf(os.Stderr, "No matches for %q before %s\n", team, model.DayOf(date).Format(time.DateOnly))
		return nil
	}
	if err != nil {
		return fmt.Errorf("compute form: %w", err)
	}

	report.PrintTeamForm(os.Stdout, f)

	if formMatches {
		fmt.Fprintln(os.Stdout)
		report.PrintMatches(os.Stdout, windowMatches(matches, team, date, f.MatchesIncluded))
	}
	return nil
}

// windowMatches returns the matches the form summary included, oldest first.
func windowMatches(matches []model.TeamMatch, team string, date time.Time, n int) []model.TeamMatch {
	day := model.DayOf(date)
	var prior []model.TeamMatch
	for _, m := range matches {
		if m.Team == team && model.DayOf(m.Date).Before(day) {
			prior = append(prior, m)
		}
	}
	sort.SliceStable(prior, func(i, j int) bool { return prior[i].Date.Before(prior[j].Date) })
	if len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	return prior
}
