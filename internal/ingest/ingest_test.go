package ingest

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/formstat/formstat/internal/model"
)

const playerHeader = "Player_ID,Player,Team,Position,Home/Away,Date,Score,Minutes played,Goals,Dribbles (won),Accurate passes,Expected Goals (xG)"

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: want %v, got %v", name, want, got)
	}
}

func TestReadPlayerCSVCleanup(t *testing.T) {
	csv := playerHeader + "\n" +
		"p01,Juan Alderete,olimpia,M,1,2024-01-01,2-1,90',1,12 (4),31/40,0.32\n"

	tab, err := ReadPlayerCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadPlayerCSV: %v", err)
	}
	rows := tab.EntityRows("p01")
	if len(rows) != 1 {
		t.Fatalf("want 1 row for p01, got %d", len(rows))
	}
	v := rows[0].Values

	approx(t, "Position", v["Position"], 2.0/3)
	approx(t, "Home/Away", v["Home/Away"], 1)
	approx(t, "Minutes played", v["Minutes played"], 90)
	approx(t, "Goals", v["Goals"], 1)
	approx(t, "Dribbles Total", v["Dribbles Total"], 12)
	approx(t, "Dribbles Successful", v["Dribbles Successful"], 4)
	approx(t, "Accurate passes Successful", v["Accurate passes Successful"], 31)
	approx(t, "Accurate passes Total", v["Accurate passes Total"], 40)
	approx(t, "Expected Goals (xG)", v["Expected Goals (xG)"], 0.32)
	approx(t, "Goals for", v["Goals for"], 2)
	approx(t, "Goals against", v["Goals against"], 1)

	if _, ok := v["Dribbles (won)"]; ok {
		t.Error("composite source column must not survive expansion")
	}
	for _, col := range tab.Columns() {
		if col == "Player" || col == "Team" {
			t.Errorf("column %q must not become a feature column", col)
		}
	}
	if !rows[0].Date.Equal(date("2024-01-01")) {
		t.Errorf("date: want 2024-01-01, got %v", rows[0].Date)
	}
}

func TestReadPlayerCSVAwayScore(t *testing.T) {
	csv := playerHeader + "\n" +
		"p02,Diego Barrios,cerro,F,0,2024-01-01,2-1,45',0,3 (1),10/12,0.1\n"

	tab, err := ReadPlayerCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadPlayerCSV: %v", err)
	}
	v := tab.EntityRows("p02")[0].Values
	approx(t, "Goals for", v["Goals for"], 1)
	approx(t, "Goals against", v["Goals against"], 2)
	approx(t, "Home/Away", v["Home/Away"], 0)
}

func TestReadPlayerCSVDateFormats(t *testing.T) {
	csv := "Player_ID,Date,Goals\n" +
		"p01,2024-01-15,1\n" +
		"p01,15012024,2\n" +
		"p01,20240115,3\n"

	tab, err := ReadPlayerCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadPlayerCSV: %v", err)
	}
	want := date("2024-01-15")
	for i, row := range tab.EntityRows("p01") {
		if !row.Date.Equal(want) {
			t.Errorf("row %d: want %v, got %v", i, want, row.Date)
		}
	}
}

func TestReadPlayerCSVDropsProseCells(t *testing.T) {
	csv := "Player_ID,Date,Goals,Notes Attack\n" +
		"p01,2024-01-01,2,had a quiet first half\n"

	tab, err := ReadPlayerCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadPlayerCSV: %v", err)
	}
	v := tab.EntityRows("p01")[0].Values
	if _, ok := v["Notes Attack"]; ok {
		t.Error("prose cell must stay missing, not become a value")
	}
	approx(t, "Goals", v["Goals"], 2)
}

func TestReadPlayerCSVStructuralErrors(t *testing.T) {
	if _, err := ReadPlayerCSV(strings.NewReader("Date,Goals\n2024-01-01,1\n")); err == nil {
		t.Error("missing identifier column: want error")
	}
	if _, err := ReadPlayerCSV(strings.NewReader("Player_ID,Goals\np01,1\n")); err == nil {
		t.Error("missing date column: want error")
	}
	if _, err := ReadPlayerCSV(strings.NewReader("Player_ID,Date,Goals\n,2024-01-01,1\n")); err == nil {
		t.Error("empty identifier cell: want error")
	}
	if _, err := ReadPlayerCSV(strings.NewReader("Player_ID,Date,Goals\np01,not-a-date,1\n")); err == nil {
		t.Error("unparseable date: want error")
	}
}

func TestPer90(t *testing.T) {
	tab, err := model.NewTable([]model.Observation{
		{EntityID: "p01", Date: date("2024-01-01"), Values: map[string]float64{
			"Minutes played": 45, "Goals": 1, "Position": 1,
		}},
		{EntityID: "p02", Date: date("2024-01-01"), Values: map[string]float64{
			"Minutes played": 0, "Goals": 3, "Position": 0,
		}},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	out, err := Per90(tab, "Minutes played", "Position")
	if err != nil {
		t.Fatalf("Per90: %v", err)
	}

	v1 := out.EntityRows("p01")[0].Values
	approx(t, "Goals per minute", v1["Goals"], 1.0/45)
	approx(t, "Minutes played", v1["Minutes played"], 0.5)
	approx(t, "Position", v1["Position"], 1)

	v2 := out.EntityRows("p02")[0].Values
	if _, ok := v2["Goals"]; ok {
		t.Error("zero-minute row: feature cells must become missing")
	}
	approx(t, "zero minutes", v2["Minutes played"], 0)
	if _, ok := v2["Position"]; !ok {
		t.Error("excluded column must be carried through unchanged")
	}

	orig := tab.EntityRows("p01")[0].Values
	approx(t, "input Goals unchanged", orig["Goals"], 1)
	approx(t, "input minutes unchanged", orig["Minutes played"], 45)
}

func TestPer90UnknownColumn(t *testing.T) {
	tab, err := model.NewTable([]model.Observation{
		{EntityID: "p01", Date: date("2024-01-01"), Values: map[string]float64{"Goals": 1}},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if _, err := Per90(tab, "Minutes played"); err == nil {
		t.Error("unknown minutes column: want error")
	}
}

func TestReadTeamCSV(t *testing.T) {
	csv := "match_id,date,team,opponent,gf,ga,sh,sot,dist,fk,pk,pkatt\n" +
		"m1,20240110,olimpia,cerro,2,1,14,6,108.4 km,12,1,1\n" +
		"m2,20240117,olimpia,guarani,0,0,9,2,101.2 km,8,0,0\n" +
		"m3,20240110,cerro,olimpia,1,2,11,3,99.0 km,10,0,0\n"

	matches, err := ReadTeamCSV(strings.NewReader(csv), "olimpia")
	if err != nil {
		t.Fatalf("ReadTeamCSV: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("want 2 matches for olimpia, got %d", len(matches))
	}

	m := matches[0]
	if !m.Date.Equal(date("2024-01-10")) {
		t.Errorf("date: want 2024-01-10, got %v", m.Date)
	}
	approx(t, "gf", m.GoalsFor, 2)
	approx(t, "ga", m.GoalsAgainst, 1)
	approx(t, "sh", m.Shots, 14)
	approx(t, "sot", m.ShotsOnTarget, 6)
	approx(t, "dist", m.Distance, 108.4)
	approx(t, "fk", m.FreeKicks, 12)
	approx(t, "pk", m.Penalties, 1)
	approx(t, "pkatt", m.PenaltyAttempts, 1)
	if got := m.Result(); got != "win" {
		t.Errorf("result: want win, got %s", got)
	}
	if got := matches[1].Result(); got != "draw" {
		t.Errorf("result: want draw, got %s", got)
	}
}

func TestReadTeamCSVAllTeams(t *testing.T) {
	csv := "date,team,gf,ga\n" +
		"2024-01-10,olimpia,2,1\n" +
		"2024-01-10,cerro,1,2\n"

	matches, err := ReadTeamCSV(strings.NewReader(csv), "")
	if err != nil {
		t.Fatalf("ReadTeamCSV: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("want all 2 matches, got %d", len(matches))
	}
	if matches[0].Team != "olimpia" || matches[1].Team != "cerro" {
		t.Errorf("teams: got %s, %s", matches[0].Team, matches[1].Team)
	}
}

func TestReadTeamCSVVenueAndGaps(t *testing.T) {
	csv := "date,team,venue,gf,ga,sh\n" +
		"2024-01-10,olimpia,home,2,1,\n" +
		"2024-01-17,olimpia,0,1,1,N/A\n"

	matches, err := ReadTeamCSV(strings.NewReader(csv), "olimpia")
	if err != nil {
		t.Fatalf("ReadTeamCSV: %v", err)
	}
	if matches[0].Venue != "home" {
		t.Errorf("venue: want home, got %q", matches[0].Venue)
	}
	if matches[1].Venue != "away" {
		t.Errorf("venue: want away, got %q", matches[1].Venue)
	}
	approx(t, "empty cell reads as 0", matches[0].Shots, 0)
	approx(t, "unparseable cell reads as 0", matches[1].Shots, 0)
}
