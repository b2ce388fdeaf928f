package dataset

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/formstat/formstat/internal/aggregate"
	"github.com/formstat/formstat/internal/model"
)

const (
	entityA = "acosta"
	entityB = "benitez"
	entityC = "coronel"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func obs(entity, day string, vals map[string]float64) model.Observation {
	return model.Observation{EntityID: entity, Date: date(day), Values: vals}
}

func mustTable(t *testing.T, rows []model.Observation) *model.Table {
	t.Helper()
	tbl, err := model.NewTable(rows)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func TestBuildEligibility(t *testing.T) {
	cutoff := date("2024-01-15")
	tbl := mustTable(t, []model.Observation{
		// A has history and a ground-truth row: eligible.
		obs(entityA, "2024-01-01", map[string]float64{"goals": 1}),
		obs(entityA, "2024-01-15", map[string]float64{"goals": 2}),
		// B has only a ground-truth row: no history, no pair.
		obs(entityB, "2024-01-15", map[string]float64{"goals": 3}),
		// C has only history: nothing to supervise against, no pair.
		obs(entityC, "2024-01-08", map[string]float64{"goals": 0}),
	})

	ds, err := Build(tbl, cutoff, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ds.Stats.Eligible != 1 {
		t.Errorf("eligible: want 1, got %d", ds.Stats.Eligible)
	}
	if len(ds.Pairs) != 1 || ds.Pairs[0].EntityID != entityA {
		t.Fatalf("want exactly one pair for %s, got %+v", entityA, ds.Pairs)
	}
}

func TestBuildPairValues(t *testing.T) {
	cutoff := date("2024-01-15")
	tbl := mustTable(t, []model.Observation{
		obs(entityA, "2024-01-01", map[string]float64{"goals": 1.0}),
		obs(entityA, "2024-01-08", map[string]float64{"goals": 3.0}),
		obs(entityA, "2024-01-15", map[string]float64{"goals": 2.0}),
	})

	ds, err := Build(tbl, cutoff, BuildOptions{Alpha: 0.1})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ds.Pairs) != 1 {
		t.Fatalf("want 1 pair, got %d", len(ds.Pairs))
	}

	w1, w2 := math.Exp(-1.4), math.Exp(-0.7)
	wantFeature := (w1*1.0 + w2*3.0) / (w1 + w2)
	p := ds.Pairs[0]
	if math.Abs(p.Features[0]-wantFeature) > 1e-9 {
		t.Errorf("features: want %.6f, got %.6f", wantFeature, p.Features[0])
	}
	if p.GroundTruth[0] != 2.0 {
		t.Errorf("ground truth: want 2.0 (the cutoff-day row), got %v", p.GroundTruth[0])
	}
}

func TestBuildColumnReconciliation(t *testing.T) {
	cutoff := date("2024-01-15")
	// B's rows never carry dist, so the dataset-wide column set must
	// exclude it for every pair, and both pairs share one column order.
	tbl := mustTable(t, []model.Observation{
		obs(entityA, "2024-01-08", map[string]float64{"goals": 1, "passes": 30, "dist": 9.5}),
		obs(entityA, "2024-01-15", map[string]float64{"goals": 2, "passes": 25, "dist": 8.0}),
		obs(entityB, "2024-01-08", map[string]float64{"goals": 0, "passes": 40}),
		obs(entityB, "2024-01-15", map[string]float64{"goals": 1, "passes": 44}),
	})

	ds, err := Build(tbl, cutoff, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ds.Pairs) != 2 {
		t.Fatalf("want 2 pairs, got %d", len(ds.Pairs))
	}
	for _, c := range ds.Columns {
		if c == "dist" {
			t.Fatalf("dist is not shared by all entities, columns = %v", ds.Columns)
		}
	}
	if len(ds.Columns) != 2 {
		t.Errorf("want 2 shared columns, got %v", ds.Columns)
	}
	for _, p := range ds.Pairs {
		if len(p.Features) != len(ds.Columns) || len(p.GroundTruth) != len(ds.Columns) {
			t.Errorf("pair %s: vector length %d/%d, want %d", p.EntityID, len(p.Features), len(p.GroundTruth), len(ds.Columns))
		}
	}
}

func TestBuildSkipsNoCommonColumns(t *testing.T) {
	cutoff := date("2024-01-15")
	tbl := mustTable(t, []model.Observation{
		obs(entityA, "2024-01-08", map[string]float64{"goals": 1}),
		obs(entityA, "2024-01-15", map[string]float64{"goals": 2}),
		// B's history and ground truth have no column in common.
		obs(entityB, "2024-01-08", map[string]float64{"passes": 40}),
		obs(entityB, "2024-01-15", map[string]float64{"tackles": 3}),
	})

	ds, err := Build(tbl, cutoff, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want := []string{entityB}; !reflect.DeepEqual(ds.Stats.SkippedNoCommonColumns, want) {
		t.Errorf("SkippedNoCommonColumns: want %v, got %v", want, ds.Stats.SkippedNoCommonColumns)
	}
	if len(ds.Pairs) != 1 || ds.Pairs[0].EntityID != entityA {
		t.Errorf("want one surviving pair for %s, got %+v", entityA, ds.Pairs)
	}
}

func TestBuildSkipsAllInadmissibleHistory(t *testing.T) {
	cutoff := date("2024-01-15")
	tbl := mustTable(t, []model.Observation{
		obs(entityA, "2024-01-08", map[string]float64{"goals": math.NaN()}),
		obs(entityA, "2024-01-15", map[string]float64{"goals": 2}),
		obs(entityB, "2024-01-08", map[string]float64{"goals": 1}),
		obs(entityB, "2024-01-15", map[string]float64{"goals": 0}),
	})

	ds, err := Build(tbl, cutoff, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want := []string{entityA}; !reflect.DeepEqual(ds.Stats.SkippedNoHistory, want) {
		t.Errorf("SkippedNoHistory: want %v, got %v", want, ds.Stats.SkippedNoHistory)
	}
	if len(ds.Pairs) != 1 || ds.Pairs[0].EntityID != entityB {
		t.Errorf("want one pair for %s, got %+v", entityB, ds.Pairs)
	}
}

func TestBuildNonFiniteGroundTruthCell(t *testing.T) {
	cutoff := date("2024-01-15")
	tbl := mustTable(t, []model.Observation{
		obs(entityA, "2024-01-08", map[string]float64{"goals": 1, "passes": 30}),
		obs(entityA, "2024-01-15", map[string]float64{"goals": 2, "passes": math.NaN()}),
	})

	ds, err := Build(tbl, cutoff, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// A NaN label cannot supervise: passes drops out of the column set.
	if !reflect.DeepEqual(ds.Columns, []string{"goals"}) {
		t.Errorf("columns: want [goals], got %v", ds.Columns)
	}
	for _, p := range ds.Pairs {
		for i, v := range p.GroundTruth {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("pair %s: non-finite ground truth at %s", p.EntityID, ds.Columns[i])
			}
		}
	}
}

func TestBuildDeterministicOrder(t *testing.T) {
	cutoff := date("2024-01-15")
	rows := []model.Observation{
		obs(entityC, "2024-01-08", map[string]float64{"goals": 1}),
		obs(entityC, "2024-01-15", map[string]float64{"goals": 1}),
		obs(entityA, "2024-01-08", map[string]float64{"goals": 2}),
		obs(entityA, "2024-01-15", map[string]float64{"goals": 0}),
		obs(entityB, "2024-01-08", map[string]float64{"goals": 3}),
		obs(entityB, "2024-01-15", map[string]float64{"goals": 2}),
	}
	tbl := mustTable(t, rows)

	first, err := Build(tbl, cutoff, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var ids []string
	for _, p := range first.Pairs {
		ids = append(ids, p.EntityID)
	}
	if want := []string{entityA, entityB, entityC}; !reflect.DeepEqual(ids, want) {
		t.Errorf("pair order: want %v, got %v", want, ids)
	}

	second, err := Build(tbl, cutoff, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated builds differ")
	}
}

func TestBuildParallelMatchesSerial(t *testing.T) {
	cutoff := date("2024-01-15")
	var rows []model.Observation
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("player-%02d", i)
		rows = append(rows,
			obs(id, "2024-01-01", map[string]float64{"goals": float64(i % 4), "passes": float64(20 + i)}),
			obs(id, "2024-01-08", map[string]float64{"goals": float64(i % 3), "passes": float64(35 - i%7)}),
			obs(id, "2024-01-15", map[string]float64{"goals": float64(i % 2), "passes": float64(28 + i%5)}),
		)
	}
	tbl := mustTable(t, rows)

	serial, err := Build(tbl, cutoff, BuildOptions{Workers: 1})
	if err != nil {
		t.Fatalf("serial Build: %v", err)
	}
	parallel, err := Build(tbl, cutoff, BuildOptions{Workers: 8})
	if err != nil {
		t.Fatalf("parallel Build: %v", err)
	}
	if !reflect.DeepEqual(serial, parallel) {
		t.Errorf("parallel build differs from serial build")
	}
	if len(serial.Pairs) != 25 {
		t.Errorf("want 25 pairs, got %d", len(serial.Pairs))
	}
}

func TestBuildEmptyTable(t *testing.T) {
	if _, err := Build(nil, date("2024-01-15"), BuildOptions{}); err == nil {
		t.Error("nil table: want error, got nil")
	}
	tbl := mustTable(t, nil)
	if _, err := Build(tbl, date("2024-01-15"), BuildOptions{}); err == nil {
		t.Error("empty table: want error, got nil")
	}
}

func TestBuildNoEligibleEntities(t *testing.T) {
	tbl := mustTable(t, []model.Observation{
		obs(entityA, "2024-01-08", map[string]float64{"goals": 1}),
	})
	ds, err := Build(tbl, date("2024-01-15"), BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ds.Stats.Eligible != 0 || len(ds.Pairs) != 0 {
		t.Errorf("want empty dataset, got eligible=%d pairs=%d", ds.Stats.Eligible, len(ds.Pairs))
	}
}

type captureEncoder struct {
	in []float64
}

func (c *captureEncoder) Encode(x []float64) ([]float64, error) {
	c.in = append([]float64(nil), x...)
	return []float64{float64(len(x))}, nil
}

func TestInferFillsMissingColumnsWithZero(t *testing.T) {
	tbl := mustTable(t, []model.Observation{
		obs(entityA, "2024-01-10", map[string]float64{"goals": 2.0}),
	})

	enc := &captureEncoder{}
	out, err := Infer(tbl, entityA, date("2024-01-15"), enc, InferOptions{
		Columns: []string{"goals", "dist"},
	})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if len(out) != 1 || out[0] != 2 {
		t.Errorf("latent passthrough: want [2], got %v", out)
	}
	want := []float64{2.0, 0.0}
	if !reflect.DeepEqual(enc.in, want) {
		t.Errorf("encoder input: want %v (dist zero-filled at boundary), got %v", want, enc.in)
	}
}

func TestInferNoHistory(t *testing.T) {
	tbl := mustTable(t, []model.Observation{
		obs(entityA, "2024-01-15", map[string]float64{"goals": 2.0}),
	})

	_, err := Infer(tbl, entityA, date("2024-01-15"), &captureEncoder{}, InferOptions{
		Columns: []string{"goals"},
	})
	if !errors.Is(err, aggregate.ErrNoHistory) {
		t.Errorf("want ErrNoHistory, got %v", err)
	}
}

func TestInferRequiresColumns(t *testing.T) {
	tbl := mustTable(t, []model.Observation{
		obs(entityA, "2024-01-10", map[string]float64{"goals": 2.0}),
	})
	if _, err := Infer(tbl, entityA, date("2024-01-15"), &captureEncoder{}, InferOptions{}); err == nil {
		t.Error("missing column order: want error, got nil")
	}
}
