// Package points converts a material classification into a ledger award.
package points

import (
	"math"

	"github.com/example/recycle-points/internal/material"
)

// MinConfidenceMultiplier keeps low-confidence but real classifications from
// rounding to nothing.
const MinConfidenceMultiplier = 0.3

var baseByMaterial = map[material.Type]float64{
	material.Plastic:   10,
	material.Cardboard: 8,
	material.Paper:     5,
	material.Glass:     12,
	material.Metal:     15,
	material.Aluminum:  20,
	material.Unknown:   0,
}

// Ordered by how readily each resin is recycled in practice; code 1 is the
// most accepted and code 7 the least.
var ricMultiplier = map[int]float64{
	1: 1.2,
	2: 1.1,
	3: 0.7,
	4: 0.8,
	5: 0.9,
	6: 0.6,
	7: 0.5,
}

// Base returns the base award for a material.
func Base(t material.Type) float64 {
	return baseByMaterial[t]
}

// RICMultiplier returns the multiplier for a resin code, 1 when absent or out of range.
func RICMultiplier(ric *int) float64 {
	if ric == nil {
		return 1
	}
	if m, ok := ricMultiplier[*ric]; ok {
		return m
	}
	return 1
}

// Calculate returns the points awarded for a scan. It is deterministic and
// has no side effects. Unknown material always yields 0; anything else
// yields at least 1.
func Calculate(t material.Type, ric *int, confidence int) int64 {
	if !t.Known() {
		return 0
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	factor := math.Max(float64(confidence)/100, MinConfidenceMultiplier)

	raw := Base(t) * RICMultiplier(ric) * factor
	awarded := int64(math.Round(raw))
	if awarded < 1 {
		awarded = 1
	}
	return awarded
}

// ForClassification is Calculate applied to a normalized classification.
func ForClassification(c material.Classification) int64 {
	return Calculate(c.Type, c.RICCode, c.Confidence)
}
