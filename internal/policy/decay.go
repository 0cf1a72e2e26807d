package policy

import (
	"math"
	"time"
)

// DefaultHalfLife is the 90-day exponential decay half-life shared by both
// sub-engines: the decayed weight of an event at age Δ is
// w * 2^(-Δ/halfLife).
const DefaultHalfLife = 90 * 24 * time.Hour

// decayedWeight applies exponential half-life decay to weight w for an
// event that occurred age ago.
func decayedWeight(w float64, age, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	if age <= 0 {
		return w
	}
	exponent := float64(age) / float64(halfLife)
	return w * math.Pow(2, -exponent)
}
