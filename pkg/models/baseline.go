package models

import (
	"math"
	"time"
)

// BaselineKey identifies one (entity, metric) baseline profile.
type BaselineKey struct {
	Entity string
	Metric string
}

// BaselineProfile is a rolling mean/stddev over the last WINDOW_SIZE
// samples for one (entity, metric). Activates after MIN_SAMPLES; updated
// with exponential smoothing, but never from a sample that triggered a
// BASELINE_DEVIATION (contamination prevention).
type BaselineProfile struct {
	Key         BaselineKey `json:"key"`
	SampleCount int         `json:"sample_count"`
	Mean        float64     `json:"mean"`
	Variance    float64     `json:"variance"`
	Active      bool        `json:"active"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// StdDev returns the square root of Variance.
func (b BaselineProfile) StdDev() float64 {
	if b.Variance <= 0 {
		return 0
	}
	return math.Sqrt(b.Variance)
}
