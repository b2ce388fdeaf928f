package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EntityType distinguishes the two kinds of tracked entities.
type EntityType string

const (
	EntityPlayer EntityType = "player"
	EntityTeam   EntityType = "team"
)

// Reserved bookkeeping column names. These identify or order rows and are
// never feature columns, regardless of how an input file labels them.
var reservedColumns = map[string]bool{
	"entity": true,
	"player": true,
	"team":   true,
	"date":   true,
	"age":    true,
	"weight": true,
}

// IsReserved reports whether name is a bookkeeping column excluded from
// feature aggregation.
func IsReserved(name string) bool {
	return reservedColumns[strings.ToLower(name)]
}

// DayOf truncates t to calendar-day precision in UTC. All date comparisons
// in the aggregation engine happen at day precision.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// ---- Observations ----

// Observation is one per-entity, per-date record of named numeric values.
// Observations are immutable once handed to the aggregation engine; derived
// quantities (ages, weights) are computed in private working state, never
// written back.
type Observation struct {
	EntityID string
	Date     time.Time
	Values   map[string]float64
}

// Table is an ordered collection of observations plus the ordered union of
// their feature columns. Reserved bookkeeping names never appear in the
// column set.
type Table struct {
	columns []string
	rows    []Observation
}

// NewTable validates rows and builds a Table. Every row must carry an entity
// identifier and a date; a row without either makes the whole input
// structurally invalid, since no entity could be aggregated from it.
// Column order is first-seen order across rows.
func NewTable(rows []Observation) (*Table, error) {
	t := &Table{rows: make([]Observation, len(rows))}
	copy(t.rows, rows)

	seen := make(map[string]bool)
	for i, r := range t.rows {
		if r.EntityID == "" {
			return nil, fmt.Errorf("row %d: missing entity identifier", i)
		}
		if r.Date.IsZero() {
			return nil, fmt.Errorf("row %d (entity %s): missing date", i, r.EntityID)
		}
		cols := make([]string, 0, len(r.Values))
		for c := range r.Values {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			if seen[c] || IsReserved(c) {
				continue
			}
			seen[c] = true
			t.columns = append(t.columns, c)
		}
	}
	return t, nil
}

// Columns returns the table's feature columns in their canonical order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of observation rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the table's observations. Callers must not mutate the
// returned rows.
func (t *Table) Rows() []Observation { return t.rows }

// Entities returns the distinct entity identifiers in ascending order.
func (t *Table) Entities() []string {
	set := make(map[string]bool)
	for _, r := range t.rows {
		set[r.EntityID] = true
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EntityRows returns the rows belonging to one entity, in table order.
func (t *Table) EntityRows(entityID string) []Observation {
	var out []Observation
	for _, r := range t.rows {
		if r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out
}

// Partition splits the table at a cutoff date: history holds rows strictly
// before the cutoff day, groundTruth holds rows exactly on it. Rows after
// the cutoff fall in neither. The two parts share column order with the
// parent and are disjoint by construction.
func (t *Table) Partition(cutoff time.Time) (history, groundTruth *Table) {
	day := DayOf(cutoff)
	history = &Table{columns: t.columns}
	groundTruth = &Table{columns: t.columns}
	for _, r := range t.rows {
		d := DayOf(r.Date)
		switch {
		case d.Before(day):
			history.rows = append(history.rows, r)
		case d.Equal(day):
			groundTruth.rows = append(groundTruth.rows, r)
		}
	}
	return history, groundTruth
}

// FilterEntities returns a table restricted to rows whose entity is in keep,
// preserving row and column order.
func (t *Table) FilterEntities(keep map[string]bool) *Table {
	out := &Table{columns: t.columns}
	for _, r := range t.rows {
		if keep[r.EntityID] {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// ---- Aggregation output ----

// FeatureVector is one entity's aggregated features: parallel column and
// value slices so callers can rely on a fixed, explicit ordering.
type FeatureVector struct {
	EntityID string
	Columns  []string
	Values   []float64
}

// Value returns the value for a column and whether it is present.
func (v *FeatureVector) Value(col string) (float64, bool) {
	for i, c := range v.Columns {
		if c == col {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Map returns the vector as a column→value map.
func (v *FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.Columns))
	for i, c := range v.Columns {
		m[c] = v.Values[i]
	}
	return m
}

// TrainingPair couples an entity's aggregated history with its actual
// outcome on the cutoff date. Both slices follow the owning dataset's
// column order.
type TrainingPair struct {
	EntityID    string
	Features    []float64
	GroundTruth []float64
}

// ---- Team matches and form ----

// TeamMatch is one fixed-schema team match record.
type TeamMatch struct {
	Team  string
	Date  time.Time
	Venue string // "home" or "away"

	GoalsFor        float64
	GoalsAgainst    float64
	Shots           float64
	ShotsOnTarget   float64
	Distance        float64 // avg pass/carry distance, as reported upstream
	FreeKicks       float64
	Penalties       float64
	PenaltyAttempts float64
}

func (m *TeamMatch) GoalDiff() float64 {
	return m.GoalsFor - m.GoalsAgainst
}

func (m *TeamMatch) ShotAccuracy() float64 {
	if m.Shots == 0 {
		return 0
	}
	return m.ShotsOnTarget / m.Shots
}

func (m *TeamMatch) PKConversion() float64 {
	if m.PenaltyAttempts == 0 {
		return 0
	}
	return m.Penalties / m.PenaltyAttempts
}

// Result classifies the match outcome for this team.
func (m *TeamMatch) Result() string {
	switch {
	case m.GoalsFor > m.GoalsAgainst:
		return "win"
	case m.GoalsFor < m.GoalsAgainst:
		return "loss"
	default:
		return "draw"
	}
}

// TeamForm summarizes a team's recent matches as of a target date: decayed
// averages over the window plus the plain win/draw/loss record.
type TeamForm struct {
	Team            string
	FormDate        time.Time
	MatchesIncluded int

	Wins   int
	Draws  int
	Losses int

	AvgGoalsFor        float64
	AvgGoalsAgainst    float64
	AvgShots           float64
	AvgShotsOnTarget   float64
	AvgDistance        float64
	AvgFreeKicks       float64
	AvgPenalties       float64
	AvgPenaltyAttempts float64
	AvgGoalDiff        float64
	AvgShotAccuracy    float64
	AvgPKConversion    float64
}

// Points is the league points earned over the included matches.
func (f *TeamForm) Points() int {
	return 3*f.Wins + f.Draws
}

// ---- Store summaries ----

// EntityInfo is a lightweight record for list commands.
type EntityInfo struct {
	ID           string
	Type         EntityType
	Name         string
	Observations int
	FirstDate    string
	LastDate     string
}

// ModelInfo is a lightweight record describing a stored encoder model.
type ModelInfo struct {
	Name      string
	CreatedAt string
	Inputs    int
	Latent    int
	Alpha     float64
}

// Overview holds database-wide counts for the summary command.
type Overview struct {
	Entities     int
	Players      int
	Teams        int
	Observations int
	Columns      int
	TeamMatches  int
	Models       int
	Latents      int
	FirstDate    string
	LastDate     string
}
