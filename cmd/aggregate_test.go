package cmd

import (
	"math"
	"testing"

	"github.com/formstat/formstat/internal/decay"
)

func TestResolveAlpha(t *testing.T) {
	got, err := resolveAlpha(0.2, 0)
	if err != nil || got != 0.2 {
		t.Errorf("resolveAlpha(0.2, 0) = %v, %v; want 0.2", got, err)
	}

	// An explicit half-life wins over alpha.
	got, err = resolveAlpha(0.2, 30)
	if err != nil {
		t.Fatalf("resolveAlpha with half-life: %v", err)
	}
	if want := decay.AlphaForHalfLife(30); math.Abs(got-want) > 1e-12 {
		t.Errorf("half-life alpha: want %v, got %v", want, got)
	}

	for _, alpha := range []float64{0, -0.1} {
		if _, err := resolveAlpha(alpha, 0); err == nil {
			t.Errorf("resolveAlpha(%v, 0): want error, got nil", alpha)
		}
	}
}
