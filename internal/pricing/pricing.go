// Package pricing computes fares for solo and pooled airport rides: a
// distance/time base fare scaled by independently computed time-of-day,
// weekend, surge and pool multipliers.
package pricing

import (
	"math"
	"time"
)

const (
	// fare amounts based on business rules

	fareFlag      = 5.00
	farePerKm     = 0.50
	farePerMinute = 0.25

	peakMultiplier    = 1.5
	weekendMultiplier = 1.2
	poolDiscount      = 0.75
	surgeCeiling      = 2.0
)

// Breakdown carries every factor of a fare so the estimate endpoint can
// return them individually.
type Breakdown struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
	BaseFare    float64 `json:"base_fare"`
	Peak        float64 `json:"peak_multiplier"`
	Weekend     float64 `json:"weekend_multiplier"`
	Surge       float64 `json:"surge_multiplier"`
	Pool        float64 `json:"pool_multiplier"`
	FinalPrice  float64 `json:"final_price"`
}

// BaseFare is the undiscounted fare for a distance and duration.
func BaseFare(distanceKm, minutes float64) float64 {
	return fareFlag + distanceKm*farePerKm + minutes*farePerMinute
}

// PeakMultiplier returns 1.5 during the 09:00-11:00 and 17:00-19:00 local
// rush windows, else 1.0.
func PeakMultiplier(t time.Time) float64 {
	h := t.Hour()
	if (h >= 9 && h < 11) || (h >= 17 && h < 19) {
		return peakMultiplier
	}
	return 1.0
}

// WeekendMultiplier returns 1.2 on Saturday and Sunday, else 1.0.
func WeekendMultiplier(t time.Time) float64 {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return weekendMultiplier
	}
	return 1.0
}

// SurgeMultiplier is a monotonic step function of pending-queue depth.
func SurgeMultiplier(queueSize int) float64 {
	switch {
	case queueSize < 5:
		return 1.0
	case queueSize < 10:
		return 1.1
	case queueSize < 20:
		return 1.25
	case queueSize < 50:
		return 1.5
	default:
		return math.Min(surgeCeiling, 1.0+float64(queueSize)/100.0)
	}
}

// PoolMultiplier discounts pooled rides.
func PoolMultiplier(pooled bool) float64 {
	if pooled {
		return poolDiscount
	}
	return 1.0
}

// Quote computes the full breakdown for one ride. The final price is rounded
// up to the nearest cent: ceiling, not nearest, so rounding never
// undercharges.
func Quote(distanceKm, minutes float64, at time.Time, queueSize int, pooled bool) Breakdown {
	b := Breakdown{
		DistanceKm:  distanceKm,
		DurationMin: minutes,
		BaseFare:    BaseFare(distanceKm, minutes),
		Peak:        PeakMultiplier(at),
		Weekend:     WeekendMultiplier(at),
		Surge:       SurgeMultiplier(queueSize),
		Pool:        PoolMultiplier(pooled),
	}
	raw := b.BaseFare * b.Peak * b.Weekend * b.Surge * b.Pool
	b.FinalPrice = CeilCents(raw)
	return b
}

// SplitEvenly divides a pool fare across members, each share rounded to the
// nearest cent independently. The shares may sum to slightly more or less
// than the total (at most half a cent per member either way); that drift is
// accepted, not reconciled.
func SplitEvenly(total float64, members int) float64 {
	if members <= 0 {
		return 0
	}
	return RoundCents(total / float64(members))
}

func CeilCents(v float64) float64 {
	return math.Ceil(v*100) / 100
}

func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
