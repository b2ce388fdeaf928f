// Package dataset builds supervised training sets from an observation table
// and runs the aggregate-then-encode inference path. A training pair couples
// an entity's time-decayed historical aggregate with the entity's actual
// performance on the cutoff date; only entities observed both strictly
// before and exactly on the cutoff can produce a pair.
package dataset

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/formstat/formstat/internal/aggregate"
	"github.com/formstat/formstat/internal/decay"
	"github.com/formstat/formstat/internal/model"
)

// BuildOptions configures one training-set build.
type BuildOptions struct {
	// Alpha is the decay rate; zero means the package default.
	Alpha float64
	// Policy is the missing-value policy applied during aggregation.
	Policy aggregate.MissingPolicy
	// Columns restricts candidate feature columns. Nil means all table
	// columns.
	Columns []string
	// Workers bounds the number of goroutines aggregating entities
	// concurrently. Values below 2 build serially. Output is identical
	// either way.
	Workers int
}

// BuildStats reports how the eligible entity set shrank to the emitted
// pairs. Skips are local and recoverable; they are surfaced here so callers
// can report them instead of silently dropping entities.
type BuildStats struct {
	Entities               int
	Eligible               int
	Pairs                  int
	SkippedNoHistory       []string
	SkippedNoCommonColumns []string
}

// Dataset is an ordered training set: every pair's Features and GroundTruth
// follow Columns exactly, so downstream consumers see one fixed input
// geometry. Pairs are ordered by ascending entity identifier.
type Dataset struct {
	Cutoff  time.Time
	Alpha   float64
	Columns []string
	Pairs   []model.TrainingPair
	Stats   BuildStats
}

// Inputs returns the feature vectors of all pairs, row per entity.
func (d *Dataset) Inputs() [][]float64 {
	out := make([][]float64, len(d.Pairs))
	for i, p := range d.Pairs {
		out[i] = p.Features
	}
	return out
}

// Targets returns the ground-truth vectors of all pairs, row per entity.
func (d *Dataset) Targets() [][]float64 {
	out := make([][]float64, len(d.Pairs))
	for i, p := range d.Pairs {
		out[i] = p.GroundTruth
	}
	return out
}

// Build constructs the training set for one cutoff date.
//
// The table is partitioned into history (strictly before the cutoff day)
// and ground truth (exactly on it); only entities present on both sides are
// eligible. Each eligible entity is aggregated over its history, then its
// aggregate is reconciled against its ground-truth row, and the final
// column set is the intersection across every surviving entity so all pairs
// share one column order and dimensionality. Entities that lose all columns
// in reconciliation are skipped and counted, never silently dropped.
//
// Build is deterministic: the same table, cutoff and options produce the
// same pairs in the same order regardless of Workers.
func Build(t *model.Table, cutoff time.Time, opts BuildOptions) (*Dataset, error) {
	if t == nil || t.Len() == 0 {
		return nil, fmt.Errorf("build training set: empty table")
	}

	alpha := opts.Alpha
	if alpha == 0 {
		alpha = decay.DefaultAlpha
	}

	history, truth := t.Partition(cutoff)
	eligible := intersect(history.Entities(), truth.Entities())

	ds := &Dataset{
		Cutoff: model.DayOf(cutoff),
		Alpha:  alpha,
		Stats: BuildStats{
			Entities: len(t.Entities()),
			Eligible: len(eligible),
		},
	}
	if len(eligible) == 0 {
		return ds, nil
	}

	keep := make(map[string]bool, len(eligible))
	for _, e := range eligible {
		keep[e] = true
	}
	history = history.FilterEntities(keep)

	aggOpts := aggregate.Options{Alpha: alpha, Columns: opts.Columns, Policy: opts.Policy}
	vectors := aggregateAll(history, eligible, cutoff, aggOpts, opts.Workers)

	type candidate struct {
		entity string
		vec    *model.FeatureVector
		truth  map[string]float64
		common map[string]bool
	}
	var candidates []candidate
	for i, e := range eligible {
		vec, err := vectors[i].vec, vectors[i].err
		if err != nil {
			// Eligibility guarantees history rows exist, but every cell can
			// still be inadmissible; treat it as a skip, not a failure.
			ds.Stats.SkippedNoHistory = append(ds.Stats.SkippedNoHistory, e)
			continue
		}
		truthVals := finiteValues(truth.EntityRows(e)[0])
		common := make(map[string]bool)
		for _, c := range vec.Columns {
			if _, ok := truthVals[c]; ok {
				common[c] = true
			}
		}
		if len(common) == 0 {
			ds.Stats.SkippedNoCommonColumns = append(ds.Stats.SkippedNoCommonColumns, e)
			continue
		}
		candidates = append(candidates, candidate{entity: e, vec: vec, truth: truthVals, common: common})
	}
	if len(candidates) == 0 {
		return ds, nil
	}

	// The dataset-wide column set is the meet of every entity's reconciled
	// set, in the table's canonical order, so one entity with a narrow
	// upstream slice narrows the whole set rather than corrupting ordering.
	order := opts.Columns
	if order == nil {
		order = t.Columns()
	}
	for _, c := range order {
		inAll := true
		for _, cand := range candidates {
			if !cand.common[c] {
				inAll = false
				break
			}
		}
		if inAll {
			ds.Columns = append(ds.Columns, c)
		}
	}
	if len(ds.Columns) == 0 {
		return nil, fmt.Errorf("build training set: no feature column is shared by all %d entities", len(candidates))
	}

	for _, cand := range candidates {
		pair := model.TrainingPair{
			EntityID:    cand.entity,
			Features:    make([]float64, len(ds.Columns)),
			GroundTruth: make([]float64, len(ds.Columns)),
		}
		for i, c := range ds.Columns {
			v, _ := cand.vec.Value(c)
			pair.Features[i] = v
			pair.GroundTruth[i] = cand.truth[c]
		}
		ds.Pairs = append(ds.Pairs, pair)
	}
	ds.Stats.Pairs = len(ds.Pairs)
	return ds, nil
}

type aggResult struct {
	vec *model.FeatureVector
	err error
}

// aggregateAll aggregates each entity into a result slot, optionally across
// a bounded pool of goroutines. Entities are independent, so no locking is
// needed: each goroutine writes only its own slot.
func aggregateAll(history *model.Table, entities []string, cutoff time.Time, opts aggregate.Options, workers int) []aggResult {
	results := make([]aggResult, len(entities))
	if workers < 2 {
		for i, e := range entities {
			v, err := aggregate.Aggregate(history, e, cutoff, opts)
			results[i] = aggResult{vec: v, err: err}
		}
		return results
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, e := range entities {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, e string) {
			defer wg.Done()
			defer func() { <-sem }()
			v, err := aggregate.Aggregate(history, e, cutoff, opts)
			results[i] = aggResult{vec: v, err: err}
		}(i, e)
	}
	wg.Wait()
	return results
}

// finiteValues returns the finite-valued feature cells of one row. A
// non-finite ground-truth cell cannot serve as a supervision target and is
// treated as missing.
func finiteValues(o model.Observation) map[string]float64 {
	out := make(map[string]float64, len(o.Values))
	for c, v := range o.Values {
		if model.IsReserved(c) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[c] = v
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	var out []string
	for _, s := range a {
		if set[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Encoder is the boundary to the learned compressor: it consumes a
// fixed-length feature vector and returns its latent encoding.
type Encoder interface {
	Encode(x []float64) ([]float64, error)
}

// InferOptions configures one inference call.
type InferOptions struct {
	// Alpha is the decay rate; zero means the package default.
	Alpha float64
	// Policy is the missing-value policy applied during aggregation.
	Policy aggregate.MissingPolicy
	// Columns is the encoder's training-time column order. Required: the
	// encoder's input geometry is meaningless without it.
	Columns []string
}

// Infer aggregates one entity's history and encodes the result to a latent
// vector. Columns the aggregate could not produce are filled with zero here,
// at the inference boundary only — never inside the weighted mean itself.
//
// An entity with no usable history yields aggregate.ErrNoHistory. Batch
// callers should treat that as a per-entity warning and continue; it is the
// expected outcome for entities that simply have not played before the
// cutoff.
func Infer(t *model.Table, entityID string, cutoff time.Time, enc Encoder, opts InferOptions) ([]float64, error) {
	if enc == nil {
		return nil, fmt.Errorf("infer %s: nil encoder", entityID)
	}
	if len(opts.Columns) == 0 {
		return nil, fmt.Errorf("infer %s: no column order given", entityID)
	}

	vec, err := aggregate.Aggregate(t, entityID, cutoff, aggregate.Options{
		Alpha:   opts.Alpha,
		Columns: opts.Columns,
		Policy:  opts.Policy,
	})
	if err != nil {
		return nil, err
	}

	x := make([]float64, len(opts.Columns))
	for i, c := range opts.Columns {
		if v, ok := vec.Value(c); ok {
			x[i] = v
		}
	}
	return enc.Encode(x)
}
