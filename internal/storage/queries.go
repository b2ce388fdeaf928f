package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/formstat/formstat/internal/model"
)

// InsertObservations bulk-inserts observation rows in a transaction.
// Re-importing the same (entity, date, source) replaces the old row and
// its values, so imports are idempotent. Non-finite cells are not
// stored; they are missing values either way.
func (db *DB) InsertObservations(typ model.EntityType, source string, rows []model.Observation) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entStmt, err := tx.Prepare(`INSERT OR IGNORE INTO entities(id, type, name) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer entStmt.Close()

	obsStmt, err := tx.Prepare(`INSERT OR REPLACE INTO observations(entity_id, obs_date, source) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer obsStmt.Close()

	valStmt, err := tx.Prepare(`INSERT INTO observation_values(observation_id, column_name, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer valStmt.Close()

	for _, r := range rows {
		day := model.DayOf(r.Date).Format(time.DateOnly)
		if _, err := entStmt.Exec(r.EntityID, string(typ), r.EntityID); err != nil {
			return fmt.Errorf("insert entity %s: %w", r.EntityID, err)
		}
		res, err := obsStmt.Exec(r.EntityID, day, source)
		if err != nil {
			return fmt.Errorf("insert observation %s@%s: %w", r.EntityID, day, err)
		}
		obsID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for col, v := range r.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if _, err := valStmt.Exec(obsID, col, v); err != nil {
				return fmt.Errorf("insert value %s/%s: %w", r.EntityID, col, err)
			}
		}
	}
	return tx.Commit()
}

// LoadTable loads stored observations into a Table, optionally
// restricted to one entity type and/or one import source (empty means
// no restriction). Rows come back ordered by date then entity, so
// table construction is deterministic.
func (db *DB) LoadTable(typ model.EntityType, source string) (*model.Table, error) {
	query := `
		SELECT o.id, o.entity_id, o.obs_date, v.column_name, v.value
		FROM observations o
		JOIN entities e ON e.id = o.entity_id
		LEFT JOIN observation_values v ON v.observation_id = o.id`
	var conds []string
	var args []interface{}
	if typ != "" {
		conds = append(conds, `e.type = ?`)
		args = append(args, string(typ))
	}
	if source != "" {
		conds = append(conds, `o.source = ?`)
		args = append(args, source)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY o.obs_date, o.entity_id, o.id`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	obs, err := foldObservationRows(rows)
	if err != nil {
		return nil, err
	}
	return model.NewTable(obs)
}

// LoadEntityObservations returns one entity's observation rows in date
// order, across all sources.
func (db *DB) LoadEntityObservations(entityID string) ([]model.Observation, error) {
	rows, err := db.conn.Query(`
		SELECT o.id, o.entity_id, o.obs_date, v.column_name, v.value
		FROM observations o
		LEFT JOIN observation_values v ON v.observation_id = o.id
		WHERE o.entity_id = ?
		ORDER BY o.obs_date, o.id`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return foldObservationRows(rows)
}

// foldObservationRows collapses an (observation, value) join back into
// Observation structs. The join is LEFT so observations with no stored
// cells still appear, with empty value maps.
func foldObservationRows(rows *sql.Rows) ([]model.Observation, error) {
	var (
		out   []model.Observation
		curID int64 = -1
	)
	for rows.Next() {
		var (
			id           int64
			entity, date string
			col          sql.NullString
			val          sql.NullFloat64
		)
		if err := rows.Scan(&id, &entity, &date, &col, &val); err != nil {
			return nil, err
		}
		if id != curID {
			d, err := model.ParseDate(date)
			if err != nil {
				return nil, fmt.Errorf("observation %d: %w", id, err)
			}
			out = append(out, model.Observation{
				EntityID: entity,
				Date:     d,
				Values:   make(map[string]float64),
			})
			curID = id
		}
		if col.Valid {
			out[len(out)-1].Values[col.String] = val.Float64
		}
	}
	return out, rows.Err()
}

// GetEntity returns one entity's info, or nil if it is not stored.
func (db *DB) GetEntity(id string) (*model.EntityInfo, error) {
	var info model.EntityInfo
	var typ string
	err := db.conn.QueryRow(`
		SELECT e.id, e.type, e.name, COUNT(o.id),
		       COALESCE(MIN(o.obs_date), ''), COALESCE(MAX(o.obs_date), '')
		FROM entities e
		LEFT JOIN observations o ON o.entity_id = e.id
		WHERE e.id = ?
		GROUP BY e.id`, id).
		Scan(&info.ID, &typ, &info.Name, &info.Observations, &info.FirstDate, &info.LastDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info.Type = model.EntityType(typ)
	return &info, nil
}

// ListEntities returns entity summaries ordered by id. Pass a type to
// restrict the list; team summaries are drawn from the match table.
func (db *DB) ListEntities(typ model.EntityType) ([]model.EntityInfo, error) {
	switch typ {
	case model.EntityTeam:
		return db.listTeamEntities()
	case "":
		players, err := db.listObservationEntities(model.EntityPlayer)
		if err != nil {
			return nil, err
		}
		teams, err := db.listTeamEntities()
		if err != nil {
			return nil, err
		}
		return append(players, teams...), nil
	default:
		return db.listObservationEntities(typ)
	}
}

func (db *DB) listObservationEntities(typ model.EntityType) ([]model.EntityInfo, error) {
	rows, err := db.conn.Query(`
		SELECT e.id, e.name, COUNT(o.id),
		       COALESCE(MIN(o.obs_date), ''), COALESCE(MAX(o.obs_date), '')
		FROM entities e
		LEFT JOIN observations o ON o.entity_id = e.id
		WHERE e.type = ?
		GROUP BY e.id
		ORDER BY e.id`, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EntityInfo
	for rows.Next() {
		info := model.EntityInfo{Type: typ}
		if err := rows.Scan(&info.ID, &info.Name, &info.Observations, &info.FirstDate, &info.LastDate); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (db *DB) listTeamEntities() ([]model.EntityInfo, error) {
	rows, err := db.conn.Query(`
		SELECT team, COUNT(1), MIN(match_date), MAX(match_date)
		FROM team_matches
		GROUP BY team
		ORDER BY team`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EntityInfo
	for rows.Next() {
		info := model.EntityInfo{Type: model.EntityTeam}
		if err := rows.Scan(&info.ID, &info.Observations, &info.FirstDate, &info.LastDate); err != nil {
			return nil, err
		}
		info.Name = info.ID
		out = append(out, info)
	}
	return out, rows.Err()
}

// ListColumns returns the distinct feature column names in the store.
func (db *DB) ListColumns() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT column_name FROM observation_values ORDER BY column_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertTeamMatches bulk-inserts team match rows in a transaction.
// Uses INSERT OR REPLACE on (team, match_date) for idempotency.
func (db *DB) InsertTeamMatches(matches []model.TeamMatch) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entStmt, err := tx.Prepare(`INSERT OR IGNORE INTO entities(id, type, name) VALUES (?, 'team', ?)`)
	if err != nil {
		return err
	}
	defer entStmt.Close()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO team_matches(
			team, match_date, venue,
			gf, ga, sh, sot, dist, fk, pk, pkatt, result
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range matches {
		if _, err := entStmt.Exec(m.Team, m.Team); err != nil {
			return fmt.Errorf("insert team %s: %w", m.Team, err)
		}
		_, err := stmt.Exec(
			m.Team, model.DayOf(m.Date).Format(time.DateOnly), m.Venue,
			m.GoalsFor, m.GoalsAgainst, m.Shots, m.ShotsOnTarget,
			m.Distance, m.FreeKicks, m.Penalties, m.PenaltyAttempts,
			m.Result(),
		)
		if err != nil {
			return fmt.Errorf("insert team_matches for %s: %w", m.Team, err)
		}
	}
	return tx.Commit()
}

// LoadTeamMatches returns stored team matches ordered by date then
// team. Pass an empty team to load every team's matches.
func (db *DB) LoadTeamMatches(team string) ([]model.TeamMatch, error) {
	query := `
		SELECT team, match_date, venue, gf, ga, sh, sot, dist, fk, pk, pkatt
		FROM team_matches`
	args := []interface{}{}
	if team != "" {
		query += ` WHERE team = ?`
		args = append(args, team)
	}
	query += ` ORDER BY match_date, team`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TeamMatch
	for rows.Next() {
		var m model.TeamMatch
		var date string
		if err := rows.Scan(&m.Team, &date, &m.Venue,
			&m.GoalsFor, &m.GoalsAgainst, &m.Shots, &m.ShotsOnTarget,
			&m.Distance, &m.FreeKicks, &m.Penalties, &m.PenaltyAttempts); err != nil {
			return nil, err
		}
		m.Date, err = model.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("team match %s: %w", m.Team, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListTeams returns the distinct team names with stored matches.
func (db *DB) ListTeams() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT team FROM team_matches ORDER BY team`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ModelSpec is the persisted description of a trained encoder: the
// feature columns it expects, the aggregation settings it was trained
// with, and the serialized network.
type ModelSpec struct {
	Columns []string        `json:"columns"`
	Alpha   float64         `json:"alpha"`
	Policy  string          `json:"policy"`
	Latent  int             `json:"latent"`
	Encoder json.RawMessage `json:"encoder"`
}

// ModelRecord is one stored model row.
type ModelRecord struct {
	Name      string
	CreatedAt string
	Spec      ModelSpec
}

// SaveModel stores or replaces a trained model under name.
func (db *DB) SaveModel(name string, spec ModelSpec) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode model spec: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT OR REPLACE INTO models(name, created_at, spec)
		VALUES (?, ?, ?)`, name, nowUTC(), string(data))
	if err != nil {
		return fmt.Errorf("save model %s: %w", name, err)
	}
	return nil
}

// GetModel returns a stored model, or nil if no model has that name.
func (db *DB) GetModel(name string) (*ModelRecord, error) {
	var rec ModelRecord
	var data string
	err := db.conn.QueryRow(`SELECT name, created_at, spec FROM models WHERE name = ?`, name).
		Scan(&rec.Name, &rec.CreatedAt, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Spec); err != nil {
		return nil, fmt.Errorf("decode model spec %s: %w", name, err)
	}
	return &rec, nil
}

// ListModels returns summaries of all stored models, newest first.
func (db *DB) ListModels() ([]model.ModelInfo, error) {
	rows, err := db.conn.Query(`SELECT name, created_at, spec FROM models ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ModelInfo
	for rows.Next() {
		var name, createdAt, data string
		if err := rows.Scan(&name, &createdAt, &data); err != nil {
			return nil, err
		}
		var spec ModelSpec
		if err := json.Unmarshal([]byte(data), &spec); err != nil {
			return nil, fmt.Errorf("decode model spec %s: %w", name, err)
		}
		out = append(out, model.ModelInfo{
			Name:      name,
			CreatedAt: createdAt,
			Inputs:    len(spec.Columns),
			Latent:    spec.Latent,
			Alpha:     spec.Alpha,
		})
	}
	return out, rows.Err()
}

// QueryRaw executes an arbitrary query and returns its columns and rows
// as strings. Used by the sql and shell commands.
func (db *DB) QueryRaw(query string) ([]string, [][]string, error) {
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]string
	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		rec := make([]string, len(cols))
		for i, v := range raw {
			if v.Valid {
				rec[i] = v.String
			} else {
				rec[i] = "NULL"
			}
		}
		out = append(out, rec)
	}
	return cols, out, rows.Err()
}

// Overview returns store-wide counts for the summary command.
func (db *DB) Overview() (*model.Overview, error) {
	var o model.Overview
	err := db.conn.QueryRow(`
		SELECT
		  (SELECT COUNT(1) FROM entities),
		  (SELECT COUNT(1) FROM entities WHERE type = 'player'),
		  (SELECT COUNT(1) FROM entities WHERE type = 'team'),
		  (SELECT COUNT(1) FROM observations),
		  (SELECT COUNT(DISTINCT column_name) FROM observation_values),
		  (SELECT COUNT(1) FROM team_matches),
		  (SELECT COUNT(1) FROM models),
		  (SELECT COUNT(1) FROM latents),
		  COALESCE((SELECT MIN(d) FROM (
		      SELECT obs_date AS d FROM observations
		      UNION ALL SELECT match_date FROM team_matches)), ''),
		  COALESCE((SELECT MAX(d) FROM (
		      SELECT obs_date AS d FROM observations
		      UNION ALL SELECT match_date FROM team_matches)), '')`).
		Scan(&o.Entities, &o.Players, &o.Teams, &o.Observations, &o.Columns,
			&o.TeamMatches, &o.Models, &o.Latents, &o.FirstDate, &o.LastDate)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
