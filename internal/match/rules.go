// Package match implements the batch grouping engine: the pairwise
// compatibility rule and the greedy builder that partitions a drained batch
// into pool proposals.
package match

import (
	"github.com/parthgupta9/ride-pooling/internal/geo"
	"github.com/parthgupta9/ride-pooling/internal/models"
)

const (
	// SeatCapacity is the vehicle seat cap per pool.
	SeatCapacity = 4

	// MaxPickupProximityKm rejects candidates whose pickup is farther than
	// this from any existing member's pickup.
	MaxPickupProximityKm = 2.0
)

// Rule evaluates whether a candidate may join a partially built pool. Zero
// value is ready to use; the fields exist so tests can tighten or relax the
// thresholds.
type Rule struct {
	ProximityKm float64
}

func (r Rule) proximityKm() float64 {
	if r.ProximityKm > 0 {
		return r.ProximityKm
	}
	return MaxPickupProximityKm
}

// Accepts reports whether cand may join a pool with the given members and
// remaining seat capacity. Every existing member must accept the candidate;
// the first failing member short-circuits. Order affects only which member
// is blamed, never the boolean result.
func (r Rule) Accepts(members []models.Snapshot, cand models.Snapshot, availableSeats int) bool {
	if cand.Passengers > availableSeats {
		return false
	}
	for _, m := range members {
		if !r.pairCompatible(m, cand) {
			return false
		}
	}
	return true
}

func (r Rule) pairCompatible(member, cand models.Snapshot) bool {
	if member.Luggage+cand.Luggage > (member.Passengers+cand.Passengers)*models.LuggagePerSeat {
		return false
	}
	pickupKm := geo.DistanceKm(member.Pickup, cand.Pickup)
	if pickupKm > r.proximityKm() {
		return false
	}
	detourKm := pickupKm + geo.DistanceKm(member.Dropoff, cand.Dropoff)
	return geo.TravelMinutes(detourKm) <= cand.MaxDetour()
}
