// Package decay implements the exponential temporal weighting applied to
// historical observations. One sign convention is used everywhere: age is
// measured backwards from the target date (age = target − observation, in
// days) and weight = exp(-alpha·age), so the most recent observation always
// carries the largest weight.
package decay

import (
	"math"
	"time"
)

// DefaultAlpha is the decay rate used by every call site unless overridden.
const DefaultAlpha = 0.1

// Weight returns exp(-alpha·ageDays). For non-negative age and positive
// alpha the result lies in (0, 1] and is strictly decreasing in age.
// Negative ages are clamped to zero so a caller bug yields weight 1 rather
// than a weight above 1. alpha <= 0 disables decay (uniform weight 1).
func Weight(ageDays, alpha float64) float64 {
	if alpha <= 0 {
		return 1.0
	}
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-alpha * ageDays)
}

// AgeDays returns the whole number of calendar days from date back to
// target, comparing at day precision in UTC.
func AgeDays(target, date time.Time) float64 {
	t := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return t.Sub(d).Hours() / 24
}

// AlphaForHalfLife converts a half-life in days to the equivalent decay
// rate: alpha = ln 2 / halfLife. Non-positive half-lives disable decay.
func AlphaForHalfLife(halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 0
	}
	return math.Ln2 / halfLifeDays
}
