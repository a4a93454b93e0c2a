package memory

import (
	"math"
	"time"
)

// Retention math. Retrieval-time ranking and scheduled decay share one
// exponential family so access boosts and sweeps are expressed in the
// same unitless importance currency.

// retention computes the Ebbinghaus retention term for a record:
//
//	retention = importance * exp(-dt / strength)
//	strength  = baseStrength * (1 + ln(1 + accessCount))
//
// dt is the time since last access. Frequently accessed memories have
// a larger strength and therefore decay slower.
func retention(rec *Record, now time.Time, baseStrength time.Duration) float64 {
	dt := now.Sub(rec.LastAccessedAt).Hours()
	if dt < 0 {
		dt = 0
	}
	strength := baseStrength.Hours() * (1 + math.Log1p(float64(rec.AccessCount)))
	if strength <= 0 {
		return 0
	}
	return rec.Importance * math.Exp(-dt/strength)
}

// compositeScore ranks a retrieval candidate: native similarity
// weighted by retention. Pure similarity ignores staleness; the
// retention factor biases ranking toward memories that are relevant
// and not yet forgotten.
func compositeScore(similarity float64, rec *Record, now time.Time, baseStrength time.Duration) float64 {
	return similarity * retention(rec, now, baseStrength)
}

// decayedImportance applies the scheduled multiplicative decay:
//
//	new = importance * decayRate^intervals
//
// where intervals is the (fractional) number of sweep intervals since
// the record was last decayed. Deterministic in its inputs.
func decayedImportance(importance, decayRate, intervals float64) float64 {
	if intervals <= 0 {
		return importance
	}
	return importance * math.Pow(decayRate, intervals)
}

// elapsedIntervals converts wall time since the last decay into sweep
// intervals.
func elapsedIntervals(rec *Record, now time.Time, sweepInterval time.Duration) float64 {
	since := rec.DecayedAt
	if since.IsZero() {
		since = rec.CreatedAt
	}
	elapsed := now.Sub(since)
	if elapsed <= 0 {
		return 0
	}
	return float64(elapsed) / float64(sweepInterval)
}
