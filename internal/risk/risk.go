// FilePath: internal/risk/risk.go

// Package risk implements the VTT-style mold growth model: a bounded index in
// [0, 6] evolved in one-hour steps from temperature and relative humidity.
package risk

import "math"

const (
	// IndexMax is the ceiling of the mold growth index.
	IndexMax = 6.0

	// Rate clamps in index-units per hour.
	MaxGrowthRate = 0.1
	MaxDecayRate  = -0.005

	// Valid temperature domain for the critical-humidity polynomial.
	tempDomainMin = 0.0
	tempDomainMax = 50.0
)

// Risk level names, from the discretized index.
const (
	LevelLow      = "low"
	LevelModerate = "moderate"
	LevelElevated = "elevated"
	LevelHigh     = "high"
	LevelCritical = "critical"
)

// levelThresholds are the lower bounds of each level above low.
var levelThresholds = []struct {
	index float64
	name  string
}{
	{0.5, LevelModerate},
	{1.5, LevelElevated},
	{3.0, LevelHigh},
	{5.0, LevelCritical},
}

// CriticalRH returns the minimum relative humidity (%) at which mold growth is
// thermodynamically favorable at the given temperature. Outside the valid
// temperature domain growth is impossible, expressed as 100%.
func CriticalRH(tempC float64) float64 {
	if tempC < tempDomainMin || tempC > tempDomainMax {
		return 100.0
	}
	rh := -0.00267*math.Pow(tempC, 3) + 0.160*math.Pow(tempC, 2) - 3.13*tempC + 100.0
	return clamp(rh, 65.0, 100.0)
}

// GrowthRatePerHour returns the hourly change of the index for the given
// conditions. Below the critical humidity the index relaxes slowly toward
// zero; above it the rate is the product of temperature favorability,
// humidity excess and index saturation.
func GrowthRatePerHour(tempC, rh, currentIndex float64) float64 {
	rhCrit := CriticalRH(tempC)
	if rh <= rhCrit {
		if currentIndex > 0 {
			return MaxDecayRate
		}
		return 0
	}

	// Peaked around 20-30C, falling off toward the domain edges.
	tempFactor := math.Exp(-math.Pow(tempC-25.0, 2) / 200.0)

	// Saturates once RH exceeds the critical threshold by 20 points.
	humidityFactor := math.Min((rh-rhCrit)/20.0, 1.0)

	// Diminishing returns near the index ceiling.
	saturationFactor := 1.0 - currentIndex/IndexMax

	rate := MaxGrowthRate * tempFactor * humidityFactor * saturationFactor
	return clamp(rate, MaxDecayRate, MaxGrowthRate)
}

// Evolve advances the index by a single one-hour step at the given conditions.
func Evolve(currentIndex, tempC, rh float64) float64 {
	next := currentIndex + GrowthRatePerHour(tempC, rh, currentIndex)
	return clamp(next, 0, IndexMax)
}

// Forecast projects the index hoursAhead hours into the future, holding
// temperature and humidity constant at the latest observed values. This is a
// persistence forecast, not a weather model.
func Forecast(currentIndex, tempC, rh float64, hoursAhead int) float64 {
	index := clamp(currentIndex, 0, IndexMax)
	for h := 0; h < hoursAhead; h++ {
		index = Evolve(index, tempC, rh)
	}
	return index
}

// Level discretizes the continuous index into a named risk level.
func Level(index float64) string {
	level := LevelLow
	for _, t := range levelThresholds {
		if index >= t.index {
			level = t.name
		}
	}
	return level
}

// HoursToNextLevel linearly extrapolates the time until the index crosses the
// next level boundary. Returns nil when the index is not growing or no higher
// boundary exists.
func HoursToNextLevel(currentIndex, rate float64) *float64 {
	if rate <= 0 {
		return nil
	}
	for _, t := range levelThresholds {
		if currentIndex < t.index {
			hours := (t.index - currentIndex) / rate
			return &hours
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
