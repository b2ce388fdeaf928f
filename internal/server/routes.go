package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/formstat/formstat/internal/aggregate"
	"github.com/formstat/formstat/internal/form"
	"github.com/formstat/formstat/internal/model"
)

type entityJSON struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Name         string `json:"name,omitempty"`
	Observations int    `json:"observations"`
	FirstDate    string `json:"first_date,omitempty"`
	LastDate     string `json:"last_date,omitempty"`
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	switch typ {
	case "", string(model.EntityPlayer), string(model.EntityTeam):
	default:
		jsonError(w, http.StatusBadRequest, "type must be player or team")
		return
	}

	entities, err := s.db.ListEntities(model.EntityType(typ))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]entityJSON, len(entities))
	for i, e := range entities {
		out[i] = entityJSON{
			ID:           e.ID,
			Type:         string(e.Type),
			Name:         e.Name,
			Observations: e.Observations,
			FirstDate:    e.FirstDate,
			LastDate:     e.LastDate,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(out),
		"entities": out,
	})
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	cutoff, ok := parseDate(w, r, "cutoff", allHistoryCutoff())
	if !ok {
		return
	}
	alpha, ok := parseAlpha(w, r)
	if !ok {
		return
	}
	policy, err := aggregate.ParsePolicy(r.URL.Query().Get("policy"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.db.LoadEntityObservations(entityID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(rows) == 0 {
		jsonError(w, http.StatusNotFound, "no observations for entity "+entityID)
		return
	}

	table, err := model.NewTable(rows)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	vec, err := aggregate.Aggregate(table, entityID, cutoff, aggregate.Options{Alpha: alpha, Policy: policy})
	if errors.Is(err, aggregate.ErrNoHistory) {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity":  entityID,
		"cutoff":  cutoff.Format(time.DateOnly),
		"policy":  policy.String(),
		"columns": vec.Columns,
		"values":  vec.Values,
	})
}

func (s *Server) handleLatent(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	modelName := r.URL.Query().Get("model")
	if modelName == "" {
		jsonError(w, http.StatusBadRequest, "model parameter required")
		return
	}

	cutoff := r.URL.Query().Get("cutoff")
	var vec []float64
	var err error
	if cutoff == "" {
		cutoff, vec, err = s.db.LatestLatent(entityID, modelName)
	} else {
		if _, perr := time.Parse(time.DateOnly, cutoff); perr != nil {
			jsonError(w, http.StatusBadRequest, "cutoff must be YYYY-MM-DD")
			return
		}
		vec, err = s.db.GetLatent(entityID, cutoff, modelName)
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if vec == nil {
		jsonError(w, http.StatusNotFound, "no latent vector for entity "+entityID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity": entityID,
		"cutoff": cutoff,
		"model":  modelName,
		"vector": vec,
	})
}

func (s *Server) handleTeamForm(w http.ResponseWriter, r *http.Request) {
	team := chi.URLParam(r, "team")

	date, ok := parseDate(w, r, "date", model.DayOf(time.Now().UTC()))
	if !ok {
		return
	}
	alpha, ok := parseAlpha(w, r)
	if !ok {
		return
	}
	window := 0
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			jsonError(w, http.StatusBadRequest, "window must be a positive integer")
			return
		}
		window = n
	}

	matches, err := s.db.LoadTeamMatches(team)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	f, err := form.Compute(matches, team, date, form.Options{Window: window, Alpha: alpha})
	if errors.Is(err, aggregate.ErrNoHistory) {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"team":             f.Team,
		"date":             f.FormDate.Format(time.DateOnly),
		"matches_included": f.MatchesIncluded,
		"wins":             f.Wins,
		"draws":            f.Draws,
		"losses":           f.Losses,
		"points":           f.Points(),
		"avg": map[string]float64{
			"goals_for":        f.AvgGoalsFor,
			"goals_against":    f.AvgGoalsAgainst,
			"shots":            f.AvgShots,
			"shots_on_target":  f.AvgShotsOnTarget,
			"distance":         f.AvgDistance,
			"free_kicks":       f.AvgFreeKicks,
			"penalties":        f.AvgPenalties,
			"penalty_attempts": f.AvgPenaltyAttempts,
			"goal_diff":        f.AvgGoalDiff,
			"shot_accuracy":    f.AvgShotAccuracy,
			"pk_conversion":    f.AvgPKConversion,
		},
	})
}

// allHistoryCutoff is the default cutoff when none is given: tomorrow,
// so every stored observation counts as history.
func allHistoryCutoff() time.Time {
	return model.DayOf(time.Now().UTC()).AddDate(0, 0, 1)
}

func parseDate(w http.ResponseWriter, r *http.Request, param string, fallback time.Time) (time.Time, bool) {
	v := r.URL.Query().Get(param)
	if v == "" {
		return fallback, true
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		jsonError(w, http.StatusBadRequest, param+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func parseAlpha(w http.ResponseWriter, r *http.Request) (float64, bool) {
	v := r.URL.Query().Get("alpha")
	if v == "" {
		return 0, true
	}
	a, err := strconv.ParseFloat(v, 64)
	if err != nil || a <= 0 {
		jsonError(w, http.StatusBadRequest, "alpha must be a positive number")
		return 0, false
	}
	return a, true
}
