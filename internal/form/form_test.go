package form

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/formstat/formstat/internal/aggregate"
	"github.com/formstat/formstat/internal/model"
)

const (
	teamHome = "olimpia"
	teamAway = "cerro"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func match(team, day string, gf, ga float64) model.TeamMatch {
	return model.TeamMatch{
		Team:          team,
		Date:          date(day),
		GoalsFor:      gf,
		GoalsAgainst:  ga,
		Shots:         10,
		ShotsOnTarget: 4,
	}
}

func TestComputeRecord(t *testing.T) {
	matches := []model.TeamMatch{
		match(teamHome, "2024-01-01", 2, 0), // win
		match(teamHome, "2024-01-08", 1, 1), // draw
		match(teamHome, "2024-01-12", 0, 3), // loss
		match(teamAway, "2024-01-12", 3, 0), // other team, ignored
	}

	f, err := Compute(matches, teamHome, date("2024-01-15"), Options{})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if f.Wins != 1 || f.Draws != 1 || f.Losses != 1 {
		t.Errorf("record: want 1-1-1, got %d-%d-%d", f.Wins, f.Draws, f.Losses)
	}
	if got := f.Points(); got != 4 {
		t.Errorf("points: want 4, got %d", got)
	}
	if f.MatchesIncluded != 3 {
		t.Errorf("matches included: want 3, got %d", f.MatchesIncluded)
	}
}

func TestComputeWindowLimitsMatches(t *testing.T) {
	var matches []model.TeamMatch
	// Ten wins followed by two recent heavy losses.
	for d := 1; d <= 10; d++ {
		matches = append(matches, match(teamHome, time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC).Format(time.DateOnly), 2, 0))
	}
	matches = append(matches,
		match(teamHome, "2024-01-12", 0, 4),
		match(teamHome, "2024-01-13", 0, 4),
	)

	f, err := Compute(matches, teamHome, date("2024-01-15"), Options{Window: 2})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if f.MatchesIncluded != 2 {
		t.Errorf("window 2: want 2 matches included, got %d", f.MatchesIncluded)
	}
	if f.Wins != 0 || f.Losses != 2 {
		t.Errorf("window must keep only the most recent matches: got %d-%d-%d", f.Wins, f.Draws, f.Losses)
	}
	if f.AvgGoalsAgainst != 4 {
		t.Errorf("avg goals against: want 4, got %v", f.AvgGoalsAgainst)
	}
}

func TestComputeExcludesTargetDayAndLater(t *testing.T) {
	matches := []model.TeamMatch{
		match(teamHome, "2024-01-10", 1, 0),
		match(teamHome, "2024-01-15", 9, 0),
		match(teamHome, "2024-01-20", 9, 0),
	}

	f, err := Compute(matches, teamHome, date("2024-01-15"), Options{})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if f.MatchesIncluded != 1 {
		t.Errorf("matches on/after the target leaked in: included %d", f.MatchesIncluded)
	}
	if f.AvgGoalsFor != 1 {
		t.Errorf("avg goals for: want 1, got %v", f.AvgGoalsFor)
	}
}

func TestComputeRecencyWeighting(t *testing.T) {
	matches := []model.TeamMatch{
		match(teamHome, "2024-01-01", 0, 0),
		match(teamHome, "2024-01-14", 4, 0),
	}

	f, err := Compute(matches, teamHome, date("2024-01-15"), Options{Alpha: 0.1})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// The day-old match must dominate the two-week-old one.
	if f.AvgGoalsFor <= 2.0 || f.AvgGoalsFor >= 4.0 {
		t.Errorf("decayed average should lean toward the recent match: got %v", f.AvgGoalsFor)
	}

	w1 := math.Exp(-0.1 * 14)
	w2 := math.Exp(-0.1 * 1)
	want := (w1*0 + w2*4) / (w1 + w2)
	if math.Abs(f.AvgGoalsFor-want) > 1e-9 {
		t.Errorf("avg goals for: want %.6f, got %.6f", want, f.AvgGoalsFor)
	}
}

func TestComputeWindowTieIsDeterministic(t *testing.T) {
	// Two matches on the same day at the window boundary: the earlier
	// slice entry must win the window slot, every time.
	matches := []model.TeamMatch{
		match(teamHome, "2024-01-10", 2, 0), // win, listed first
		match(teamHome, "2024-01-10", 0, 2), // loss, same day
	}

	first, err := Compute(matches, teamHome, date("2024-01-15"), Options{Window: 1})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if first.MatchesIncluded != 1 || first.Wins != 1 || first.Losses != 0 {
		t.Errorf("tied window cut: want the first-listed match (1W), got %d-%d-%d",
			first.Wins, first.Draws, first.Losses)
	}

	for i := 0; i < 5; i++ {
		again, err := Compute(matches, teamHome, date("2024-01-15"), Options{Window: 1})
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if *again != *first {
			t.Fatalf("repeated computes differ on tied dates:\n%+v\n%+v", first, again)
		}
	}
}

func TestComputeNoHistory(t *testing.T) {
	matches := []model.TeamMatch{
		match(teamHome, "2024-01-20", 2, 0),
	}
	_, err := Compute(matches, teamHome, date("2024-01-15"), Options{})
	if !errors.Is(err, aggregate.ErrNoHistory) {
		t.Errorf("want ErrNoHistory, got %v", err)
	}
	_, err = Compute(nil, teamHome, date("2024-01-15"), Options{})
	if !errors.Is(err, aggregate.ErrNoHistory) {
		t.Errorf("no matches at all: want ErrNoHistory, got %v", err)
	}
}

func TestComputeDerivedColumns(t *testing.T) {
	m := match(teamHome, "2024-01-10", 3, 1)
	m.Penalties = 1
	m.PenaltyAttempts = 2

	f, err := Compute([]model.TeamMatch{m}, teamHome, date("2024-01-15"), Options{})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if f.AvgGoalDiff != 2 {
		t.Errorf("avg goal diff: want 2, got %v", f.AvgGoalDiff)
	}
	if math.Abs(f.AvgShotAccuracy-0.4) > 1e-9 {
		t.Errorf("avg shot accuracy: want 0.4, got %v", f.AvgShotAccuracy)
	}
	if math.Abs(f.AvgPKConversion-0.5) > 1e-9 {
		t.Errorf("avg pk conversion: want 0.5, got %v", f.AvgPKConversion)
	}
}
