package blueprint

import (
	"hash/fnv"
	"math"
)

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Normalized rounds scores and percentages to two decimals.
func (m MetricSnapshot) Normalized() MetricSnapshot {
	m.RiskScore = Round2(m.RiskScore)
	m.AutomationConfidence = Round2(m.AutomationConfidence)
	m.CoveragePercentage = Round2(m.CoveragePercentage)
	return m
}

// Illustrative maps (key, salt) into [lo, hi) deterministically. It fills
// metric fields a source record does not carry, so reruns over the same
// data produce the same snapshot.
func Illustrative(key, salt string, lo, hi float64) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(salt))
	frac := float64(h.Sum32()%1000) / 1000
	return lo + (hi-lo)*frac
}
