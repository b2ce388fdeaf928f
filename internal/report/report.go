// Package report renders store contents and aggregation results as
// text tables on a writer.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/formstat/formstat/internal/decay"
	"github.com/formstat/formstat/internal/model"
)

const absent = "—"

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignRight},
		},
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignCenter},
		},
	}))
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func anyCells(cells []string) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

// PrintEntityList prints one row per entity with its observation count
// and date range.
func PrintEntityList(w io.Writer, entities []model.EntityInfo) {
	table := newTable(w)
	table.Header("ID", "TYPE", "NAME", "OBS", "FIRST", "LAST")

	for _, e := range entities {
		name := e.Name
		if name == "" {
			name = absent
		}
		table.Append(e.ID, string(e.Type), name, strconv.Itoa(e.Observations), e.FirstDate, e.LastDate)
	}
	table.Render()
}

// PrintHistory prints an entity's observation rows in date order, one
// column per feature. Cells a row never carried render as "—".
func PrintHistory(w io.Writer, rows []model.Observation) {
	cols := historyColumns(rows)

	header := make([]string, 0, len(cols)+1)
	header = append(header, "DATE")
	header = append(header, cols...)

	table := newTable(w)
	table.Header(anyCells(header)...)

	for _, r := range rows {
		line := make([]string, 0, len(cols)+1)
		line = append(line, r.Date.Format(time.DateOnly))
		for _, c := range cols {
			if v, ok := r.Values[c]; ok {
				line = append(line, formatValue(v))
			} else {
				line = append(line, absent)
			}
		}
		table.Append(anyCells(line)...)
	}
	table.Render()
}

func historyColumns(rows []model.Observation) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range rows {
		for c := range r.Values {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// PrintVectors prints feature vectors side by side, one column per
// entity. Columns missing from a vector render as "—".
func PrintVectors(w io.Writer, vectors []model.FeatureVector) {
	seen := make(map[string]bool)
	var cols []string
	for _, v := range vectors {
		for _, c := range v.Columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	sort.Strings(cols)

	header := make([]string, 0, len(vectors)+1)
	header = append(header, "COLUMN")
	for _, v := range vectors {
		header = append(header, v.EntityID)
	}

	table := newTable(w)
	table.Header(anyCells(header)...)

	for _, c := range cols {
		line := make([]string, 0, len(vectors)+1)
		line = append(line, c)
		for i := range vectors {
			if v, ok := vectors[i].Value(c); ok {
				line = append(line, formatValue(v))
			} else {
				line = append(line, absent)
			}
		}
		table.Append(anyCells(line)...)
	}
	table.Render()
}

// PrintTrend prints one feature column across an entity's history,
// with the decay weight each row would carry at the given cutoff and
// the weighted mean accumulated up to that row.
func PrintTrend(w io.Writer, column string, rows []model.Observation, cutoff time.Time, alpha float64) {
	table := newTable(w)
	table.Header("DATE", "VALUE", "WEIGHT", "WEIGHTED MEAN")

	var num, den float64
	for _, r := range rows {
		day := r.Date.Format(time.DateOnly)
		v, ok := r.Values[column]
		if !ok {
			table.Append(day, absent, absent, absent)
			continue
		}
		wt := decay.Weight(decay.AgeDays(cutoff, r.Date), alpha)
		num += wt * v
		den += wt
		table.Append(day, formatValue(v), strconv.FormatFloat(wt, 'f', 4, 64), formatValue(num/den))
	}
	table.Render()
}

// PrintTeamForm prints a form summary header and the averaged stats.
func PrintTeamForm(w io.Writer, f *model.TeamForm) {
	fmt.Fprintf(w, "\nTeam: %s  |  As of: %s  |  Matches: %d  |  Record: %dW-%dD-%dL  |  Points: %d\n\n",
		f.Team, f.FormDate.Format(time.DateOnly), f.MatchesIncluded, f.Wins, f.Draws, f.Losses, f.Points())

	table := newTable(w)
	table.Header("GF", "GA", "GOAL_DIFF", "SH", "SOT", "SHOT_ACC", "DIST", "FK", "PK_CONV")
	table.Append(
		fmt.Sprintf("%.2f", f.AvgGoalsFor),
		fmt.Sprintf("%.2f", f.AvgGoalsAgainst),
		fmt.Sprintf("%+.2f", f.AvgGoalDiff),
		fmt.Sprintf("%.1f", f.AvgShots),
		fmt.Sprintf("%.1f", f.AvgShotsOnTarget),
		fmt.Sprintf("%.0f%%", f.AvgShotAccuracy*100),
		fmt.Sprintf("%.1f", f.AvgDistance),
		fmt.Sprintf("%.1f", f.AvgFreeKicks),
		fmt.Sprintf("%.0f%%", f.AvgPKConversion*100),
	)
	table.Render()
}

// PrintMatches prints team match rows, most recent last.
func PrintMatches(w io.Writer, matches []model.TeamMatch) {
	table := newTable(w)
	table.Header("DATE", "TEAM", "VENUE", "GF", "GA", "RESULT", "SH", "SOT")

	for i := range matches {
		m := &matches[i]
		venue := m.Venue
		if venue == "" {
			venue = absent
		}
		table.Append(
			m.Date.Format(time.DateOnly),
			m.Team,
			venue,
			fmt.Sprintf("%.0f", m.GoalsFor),
			fmt.Sprintf("%.0f", m.GoalsAgainst),
			m.Result(),
			fmt.Sprintf("%.0f", m.Shots),
			fmt.Sprintf("%.0f", m.ShotsOnTarget),
		)
	}
	table.Render()
}

// PrintModelList prints the stored encoder models.
func PrintModelList(w io.Writer, models []model.ModelInfo) {
	table := newTable(w)
	table.Header("NAME", "CREATED", "INPUTS", "LATENT", "ALPHA")

	for _, m := range models {
		table.Append(m.Name, m.CreatedAt, strconv.Itoa(m.Inputs), strconv.Itoa(m.Latent),
			strconv.FormatFloat(m.Alpha, 'g', -1, 64))
	}
	table.Render()
}

// PrintLatent prints a stored latent vector, one dimension per column.
func PrintLatent(w io.Writer, entityID, cutoff, modelName string, vec []float64) {
	fmt.Fprintf(w, "\nEntity: %s  |  Cutoff: %s  |  Model: %s\n\n", entityID, cutoff, modelName)

	header := make([]string, len(vec))
	line := make([]string, len(vec))
	for i, v := range vec {
		header[i] = fmt.Sprintf("Z%d", i)
		line[i] = formatValue(v)
	}

	table := newTable(w)
	table.Header(anyCells(header)...)
	table.Append(anyCells(line)...)
	table.Render()
}

// PrintOverview prints database-wide counts.
func PrintOverview(w io.Writer, o model.Overview) {
	table := newTable(w)
	table.Header("METRIC", "VALUE")

	rows := []struct {
		name  string
		value string
	}{
		{"Entities", strconv.Itoa(o.Entities)},
		{"Players", strconv.Itoa(o.Players)},
		{"Teams", strconv.Itoa(o.Teams)},
		{"Observations", strconv.Itoa(o.Observations)},
		{"Feature columns", strconv.Itoa(o.Columns)},
		{"Team matches", strconv.Itoa(o.TeamMatches)},
		{"Models", strconv.Itoa(o.Models)},
		{"Latent vectors", strconv.Itoa(o.Latents)},
	}
	for _, r := range rows {
		table.Append(r.name, r.value)
	}
	if o.FirstDate != "" {
		table.Append("First date", o.FirstDate)
		table.Append("Last date", o.LastDate)
	}
	table.Render()
}

// PrintQueryResult prints an arbitrary query result set.
func PrintQueryResult(w io.Writer, columns []string, rows [][]string) {
	table := newTable(w)
	table.Header(anyCells(columns)...)
	for _, r := range rows {
		table.Append(anyCells(r)...)
	}
	table.Render()
}
