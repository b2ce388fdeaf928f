// Package form summarizes a team's recent matches as of a target date. It
// takes the N most recent matches strictly before the date, then applies the
// same exponential recency weighting as player aggregation, so a team's form
// is bounded by match count rather than calendar span.
package form

import (
	"fmt"
	"sort"
	"time"

	"github.com/formstat/formstat/internal/aggregate"
	"github.com/formstat/formstat/internal/decay"
	"github.com/formstat/formstat/internal/model"
)

// DefaultWindow is the number of most recent matches considered.
const DefaultWindow = 7

// Options configures one form computation.
type Options struct {
	// Window caps how many matches are included; values below 1 mean
	// DefaultWindow.
	Window int
	// Alpha is the decay rate; zero means the package default.
	Alpha float64
}

// Compute builds the recent-form summary for one team. Matches on or after
// the target date never contribute. A team with no prior matches yields
// aggregate.ErrNoHistory.
func Compute(matches []model.TeamMatch, team string, target time.Time, opts Options) (*model.TeamForm, error) {
	if team == "" {
		return nil, fmt.Errorf("compute form: empty team")
	}
	window := opts.Window
	if window < 1 {
		window = DefaultWindow
	}
	alpha := opts.Alpha
	if alpha == 0 {
		alpha = decay.DefaultAlpha
	}

	targetDay := model.DayOf(target)
	var prior []model.TeamMatch
	for _, m := range matches {
		if m.Team == team && model.DayOf(m.Date).Before(targetDay) {
			prior = append(prior, m)
		}
	}
	if len(prior) == 0 {
		return nil, fmt.Errorf("team %s: %w", team, aggregate.ErrNoHistory)
	}

	// Stable so same-day matches keep their caller order and the window
	// cut is deterministic.
	sort.SliceStable(prior, func(i, j int) bool { return prior[i].Date.After(prior[j].Date) })
	if len(prior) > window {
		prior = prior[:window]
	}

	f := &model.TeamForm{
		Team:            team,
		FormDate:        targetDay,
		MatchesIncluded: len(prior),
	}

	var totalW float64
	for _, m := range prior {
		switch m.Result() {
		case "win":
			f.Wins++
		case "loss":
			f.Losses++
		default:
			f.Draws++
		}

		w := decay.Weight(decay.AgeDays(target, m.Date), alpha)
		totalW += w
		f.AvgGoalsFor += w * m.GoalsFor
		f.AvgGoalsAgainst += w * m.GoalsAgainst
		f.AvgShots += w * m.Shots
		f.AvgShotsOnTarget += w * m.ShotsOnTarget
		f.AvgDistance += w * m.Distance
		f.AvgFreeKicks += w * m.FreeKicks
		f.AvgPenalties += w * m.Penalties
		f.AvgPenaltyAttempts += w * m.PenaltyAttempts
		f.AvgGoalDiff += w * m.GoalDiff()
		f.AvgShotAccuracy += w * m.ShotAccuracy()
		f.AvgPKConversion += w * m.PKConversion()
	}

	f.AvgGoalsFor /= totalW
	f.AvgGoalsAgainst /= totalW
	f.AvgShots /= totalW
	f.AvgShotsOnTarget /= totalW
	f.AvgDistance /= totalW
	f.AvgFreeKicks /= totalW
	f.AvgPenalties /= totalW
	f.AvgPenaltyAttempts /= totalW
	f.AvgGoalDiff /= totalW
	f.AvgShotAccuracy /= totalW
	f.AvgPKConversion /= totalW
	return f, nil
}
