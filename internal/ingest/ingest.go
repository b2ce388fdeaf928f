// Package ingest reads scraped match-stat CSV exports into typed rows,
// applying the cleanup the raw exports need: composite "12 (4)" cells,
// "x/y" ratio cells, minute strings like "90'", mixed date layouts,
// letter-coded positions and score strings.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/formstat/formstat/internal/model"
)

var (
	minutesPattern   = regexp.MustCompile(`^(\d+)'$`)
	compositePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*\((\d+(?:\.\d+)?)\)$`)
	ratioPattern     = regexp.MustCompile(`^(\d+(?:\.\d+)?)/(\d+(?:\.\d+)?)$`)
)

// positionValues orders positions along a single defensive-to-offensive axis.
var positionValues = map[string]float64{
	"G": 0,
	"D": 1.0 / 3,
	"M": 2.0 / 3,
	"F": 1,
}

// dateLayouts covers the layouts seen in the exports: ISO, compact
// year-first and compact day-first.
var dateLayouts = []string{time.DateOnly, "20060102", "02012006"}

// ReadPlayerCSV parses a per-player match export into a Table. The
// identifier and date columns are located by header name; every other
// column becomes a numeric feature column where its cells parse, and
// stays missing where they do not. Composite cells expand into
// "<base> Total" and "<base> Successful" columns; a "Score" column
// combined with a home/away column expands into "Goals for" and
// "Goals against".
func ReadPlayerCSV(r io.Reader) (*model.Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	idCol := findColumn(header, "player_id", "entity_id", "id", "player", "entity", "name")
	if idCol < 0 {
		return nil, fmt.Errorf("no identifier column in header %v", header)
	}
	dateCol := findColumn(header, "date")
	if dateCol < 0 {
		return nil, fmt.Errorf("no date column in header %v", header)
	}
	venueCol := findColumn(header, "home/away", "venue")
	scoreCol := findColumn(header, "score")
	posCol := findColumn(header, "position")

	var rows []model.Observation
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++

		entity := strings.TrimSpace(rec[idCol])
		if entity == "" {
			return nil, fmt.Errorf("row %d: empty identifier", line)
		}
		date, err := parseDate(rec[dateCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		home := true
		if venueCol >= 0 {
			home = isHome(rec[venueCol])
		}

		vals := make(map[string]float64, len(rec))
		for i, cell := range rec {
			if i == idCol || i == dateCol || i == scoreCol {
				continue
			}
			name := strings.TrimSpace(header[i])
			cell = strings.TrimSpace(cell)
			if name == "" || cell == "" {
				continue
			}
			switch i {
			case venueCol:
				if home {
					vals[name] = 1
				} else {
					vals[name] = 0
				}
			case posCol:
				if v, ok := positionValues[strings.ToUpper(cell)]; ok {
					vals[name] = v
				}
			default:
				addCell(vals, name, cell)
			}
		}
		if scoreCol >= 0 {
			if gf, ga, ok := parseScore(rec[scoreCol], home); ok {
				vals["Goals for"] = gf
				vals["Goals against"] = ga
			}
		}

		rows = append(rows, model.Observation{EntityID: entity, Date: date, Values: vals})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data rows")
	}
	return model.NewTable(rows)
}

// Per90 returns a copy of t with every feature column divided by the
// row's minutes and the minutes column rescaled to matches-of-90.
// Columns named in exclude are carried over unchanged. Rows without
// positive minutes cannot be rate-normalized; their feature cells
// become missing and their minutes become 0.
func Per90(t *model.Table, minutesColumn string, exclude ...string) (*model.Table, error) {
	if t == nil || t.Len() == 0 {
		return nil, fmt.Errorf("empty table")
	}
	if minutesColumn == "" {
		return nil, fmt.Errorf("minutes column required")
	}
	found := false
	for _, c := range t.Columns() {
		if c == minutesColumn {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("column %q not in table", minutesColumn)
	}
	keep := make(map[string]bool, len(exclude))
	for _, c := range exclude {
		keep[c] = true
	}

	rows := make([]model.Observation, 0, t.Len())
	for _, row := range t.Rows() {
		out := model.Observation{
			EntityID: row.EntityID,
			Date:     row.Date,
			Values:   make(map[string]float64, len(row.Values)),
		}
		minutes, ok := row.Values[minutesColumn]
		if ok && minutes > 0 {
			for col, v := range row.Values {
				switch {
				case col == minutesColumn:
					out.Values[col] = minutes / 90
				case keep[col]:
					out.Values[col] = v
				default:
					out.Values[col] = v / minutes
				}
			}
		} else {
			for col, v := range row.Values {
				if keep[col] {
					out.Values[col] = v
				}
			}
			out.Values[minutesColumn] = 0
		}
		rows = append(rows, out)
	}
	return model.NewTable(rows)
}

// ReadTeamCSV parses a team match-stat export. When team is non-empty
// only that team's rows are returned. Unparseable numeric cells read
// as 0, matching how the upstream exports treat gaps.
func ReadTeamCSV(r io.Reader, team string) ([]model.TeamMatch, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	teamCol := findColumn(header, "team")
	if teamCol < 0 {
		return nil, fmt.Errorf("no team column in header %v", header)
	}
	dateCol := findColumn(header, "date", "match_date")
	if dateCol < 0 {
		return nil, fmt.Errorf("no date column in header %v", header)
	}
	venueCol := findColumn(header, "venue", "home/away")
	gfCol := findColumn(header, "gf", "goals_for")
	gaCol := findColumn(header, "ga", "goals_against")
	shCol := findColumn(header, "sh", "shots")
	sotCol := findColumn(header, "sot", "shots_on_target")
	distCol := findColumn(header, "dist", "distance")
	fkCol := findColumn(header, "fk", "free_kicks")
	pkCol := findColumn(header, "pk", "penalties")
	pkattCol := findColumn(header, "pkatt", "penalty_attempts")

	var matches []model.TeamMatch
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++

		name := strings.TrimSpace(rec[teamCol])
		if name == "" {
			return nil, fmt.Errorf("row %d: empty team", line)
		}
		if team != "" && !strings.EqualFold(name, team) {
			continue
		}
		date, err := parseDate(rec[dateCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		m := model.TeamMatch{
			Team:            name,
			Date:            date,
			GoalsFor:        numericCell(rec, gfCol),
			GoalsAgainst:    numericCell(rec, gaCol),
			Shots:           numericCell(rec, shCol),
			ShotsOnTarget:   numericCell(rec, sotCol),
			Distance:        numericCell(rec, distCol),
			FreeKicks:       numericCell(rec, fkCol),
			Penalties:       numericCell(rec, pkCol),
			PenaltyAttempts: numericCell(rec, pkattCol),
		}
		if venueCol >= 0 {
			m.Venue = canonicalVenue(rec[venueCol])
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// addCell parses one raw cell into vals, expanding composite and ratio
// cells into paired Total/Successful columns. Cells that parse as
// nothing numeric are dropped.
func addCell(vals map[string]float64, name, cell string) {
	if m := compositePattern.FindStringSubmatch(cell); m != nil {
		base := baseName(name)
		vals[base+" Total"] = mustFloat(m[1])
		vals[base+" Successful"] = mustFloat(m[2])
		return
	}
	if m := ratioPattern.FindStringSubmatch(cell); m != nil {
		base := baseName(name)
		vals[base+" Successful"] = mustFloat(m[1])
		vals[base+" Total"] = mustFloat(m[2])
		return
	}
	if m := minutesPattern.FindStringSubmatch(cell); m != nil {
		vals[name] = mustFloat(m[1])
		return
	}
	cell = strings.TrimSuffix(strings.TrimSuffix(cell, "%"), " km")
	if v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
		vals[name] = v
	}
}

// baseName strips a trailing parenthetical from a header name, so
// "Dribbles (won)" keys its expanded columns as "Dribbles ...".
func baseName(name string) string {
	if i := strings.Index(name, " ("); i >= 0 {
		return name[:i]
	}
	return strings.TrimSpace(name)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.DayOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseScore splits a "2-1" score into goals for and against from the
// perspective given by home.
func parseScore(s string, home bool) (gf, ga float64, ok bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "–", "-")
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	a, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	if home {
		return h, a, true
	}
	return a, h, true
}

func isHome(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "1", "h", "home", "true":
		return true
	}
	return false
}

func canonicalVenue(cell string) string {
	if isHome(cell) {
		return "home"
	}
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "0", "a", "away", "false":
		return "away"
	}
	return ""
}

// numericCell reads rec[i] as a float, tolerating "%" and "km"
// suffixes. Missing columns and unparseable cells read as 0.
func numericCell(rec []string, i int) float64 {
	if i < 0 || i >= len(rec) {
		return 0
	}
	cell := strings.TrimSpace(rec[i])
	cell = strings.TrimSuffix(cell, "%")
	cell = strings.TrimSuffix(cell, "km")
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0
	}
	return v
}

// findColumn returns the index of the first header matching any of
// names, tried in priority order, or -1.
func findColumn(header []string, names ...string) int {
	for _, want := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i
			}
		}
	}
	return -1
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
