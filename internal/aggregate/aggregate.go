// Package aggregate turns an entity's historical observations into a single
// time-decayed feature vector as of a cutoff date. Only rows strictly before
// the cutoff contribute; each contributes per column with weight
// exp(-alpha·age), newer rows dominating.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/formstat/formstat/internal/decay"
	"github.com/formstat/formstat/internal/model"
)

// ErrNoHistory is returned when an entity has no usable rows strictly before
// the cutoff. Callers must treat the entity as absent, never as a zero
// vector: a fabricated zero vector is indistinguishable from a genuinely
// weak entity and would bias anything trained on it. A zero total weight can
// only arise from an empty history (weights are strictly positive for finite
// ages), so both degenerate cases collapse into this one error.
var ErrNoHistory = errors.New("no history before cutoff")

// MissingPolicy controls how missing or non-finite cells are handled during
// aggregation. A cell is inadmissible when its column is absent from the row
// or its value is NaN/±Inf.
type MissingPolicy int

const (
	// DropCell excludes an inadmissible cell from that column's weighted
	// sum and weighted total only; the row still contributes its other
	// columns. The default, and the safest: one bad cell never discards
	// otherwise-valid data.
	DropCell MissingPolicy = iota
	// DropRow excludes a row from all columns if any requested cell in it
	// is inadmissible.
	DropRow
	// FillZero substitutes 0 for inadmissible cells before weighting.
	FillZero
)

func (p MissingPolicy) String() string {
	switch p {
	case DropRow:
		return "drop-row"
	case FillZero:
		return "fill-zero"
	default:
		return "drop-cell"
	}
}

// ParsePolicy parses a policy name as used in CLI flags and API parameters.
func ParsePolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop-cell":
		return DropCell, nil
	case "drop-row":
		return DropRow, nil
	case "fill-zero":
		return FillZero, nil
	default:
		return DropCell, fmt.Errorf("unknown missing-value policy %q (want drop-cell, drop-row or fill-zero)", s)
	}
}

// Options configures one aggregation call.
type Options struct {
	// Alpha is the decay rate; zero means decay.DefaultAlpha.
	Alpha float64
	// Columns restricts the output to these columns, in this order.
	// Nil means all of the table's feature columns.
	Columns []string
	// Policy is the missing-value policy (default DropCell).
	Policy MissingPolicy
}

func (o Options) alpha() float64 {
	if o.Alpha == 0 {
		return decay.DefaultAlpha
	}
	return o.Alpha
}

// Aggregate computes the weighted-mean feature vector for one entity as of
// cutoff. Rows on or after the cutoff day are excluded before any age is
// computed, so no future observation can leak into the result. The input
// table is read-only throughout; ages and weights live in working state
// scoped to this call.
//
// Returns ErrNoHistory when the entity has no rows before the cutoff, or
// when no requested column has a single admissible cell: both mean there is
// no usable history to summarize.
func Aggregate(t *model.Table, entityID string, cutoff time.Time, opts Options) (*model.FeatureVector, error) {
	if t == nil {
		return nil, fmt.Errorf("aggregate: nil table")
	}
	if entityID == "" {
		return nil, fmt.Errorf("aggregate: empty entity identifier")
	}

	cutoffDay := model.DayOf(cutoff)
	var rows []model.Observation
	for _, r := range t.EntityRows(entityID) {
		if model.DayOf(r.Date).Before(cutoffDay) {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("entity %s: %w", entityID, ErrNoHistory)
	}

	cols := opts.Columns
	if cols == nil {
		cols = t.Columns()
	}
	// Reserved bookkeeping names are never aggregated, even when requested.
	kept := cols[:0:0]
	for _, c := range cols {
		if !model.IsReserved(c) {
			kept = append(kept, c)
		}
	}
	cols = kept

	if opts.Policy == DropRow {
		rows = dropRowsWithBadCells(rows, cols)
		if len(rows) == 0 {
			return nil, fmt.Errorf("entity %s: %w", entityID, ErrNoHistory)
		}
	}

	alpha := opts.alpha()
	weights := make([]float64, len(rows))
	for i, r := range rows {
		weights[i] = decay.Weight(decay.AgeDays(cutoff, r.Date), alpha)
	}

	vec := &model.FeatureVector{EntityID: entityID}
	for _, col := range cols {
		var sum, total float64
		for i, r := range rows {
			v, ok := r.Values[col]
			if !ok || !isFinite(v) {
				if opts.Policy != FillZero {
					continue
				}
				v = 0
			}
			sum += weights[i] * v
			total += weights[i]
		}
		// A column with no admissible cell is omitted rather than emitted
		// as NaN; the output never carries non-finite values.
		if total == 0 {
			continue
		}
		vec.Columns = append(vec.Columns, col)
		vec.Values = append(vec.Values, sum/total)
	}
	if len(vec.Columns) == 0 {
		return nil, fmt.Errorf("entity %s: %w", entityID, ErrNoHistory)
	}
	return vec, nil
}

// dropRowsWithBadCells implements the DropRow policy: any inadmissible cell
// among the requested columns disqualifies the whole row.
func dropRowsWithBadCells(rows []model.Observation, cols []string) []model.Observation {
	out := rows[:0:0]
	for _, r := range rows {
		ok := true
		for _, c := range cols {
			v, present := r.Values[c]
			if !present || !isFinite(v) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
