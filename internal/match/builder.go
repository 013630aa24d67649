package match

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/parthgupta9/ride-pooling/internal/geo"
	"github.com/parthgupta9/ride-pooling/internal/models"
	"github.com/parthgupta9/ride-pooling/internal/pricing"
)

// DefaultBatchSize bounds how many pending requests one cycle drains.
const DefaultBatchSize = 5

// ErrInvariant marks a proposal that breaches the seat or luggage caps.
// Reaching it means an algorithm bug, not a runtime condition, so callers
// treat it as fatal rather than retryable.
var ErrInvariant = errors.New("pool invariant violation")

// Proposal is an uncommitted pool produced by one builder pass.
type Proposal struct {
	Members     []models.Snapshot
	Passengers  int
	Luggage     int
	DistanceKm  float64
	DurationMin float64
	Fare        pricing.Breakdown
	PerMember   float64
}

// MemberIDs returns the member request IDs in pool order.
func (p *Proposal) MemberIDs() []string {
	ids := make([]string, len(p.Members))
	for i, m := range p.Members {
		ids[i] = m.ID
	}
	return ids
}

// Validate re-checks the capacity invariants a correct builder upholds by
// construction.
func (p *Proposal) Validate() error {
	if p.Passengers > SeatCapacity {
		return fmt.Errorf("%w: %d passengers exceed %d seats", ErrInvariant, p.Passengers, SeatCapacity)
	}
	if p.Luggage > p.Passengers*models.LuggagePerSeat {
		return fmt.Errorf("%w: %d luggage exceeds cap for %d passengers", ErrInvariant, p.Luggage, p.Passengers)
	}
	return nil
}

// Builder groups a batch with a deterministic greedy nearest-neighbor pass.
// It is not a globally optimal assignment and must not be mistaken for one:
// once a request is placed it is never moved to a better-fitting later pool.
type Builder struct {
	Rule Rule
}

// Build partitions the batch into pool proposals covering every request
// exactly once, a pool of one being valid. now and queueSize feed the fare
// multipliers; identical input order and content yield identical output.
func (b *Builder) Build(batch []models.Snapshot, now time.Time, queueSize int) []*Proposal {
	if len(batch) == 0 {
		return nil
	}

	// cheap proximity proxy, not true clustering; stable sort keeps
	// arrival order for ties
	ordered := make([]models.Snapshot, len(batch))
	copy(ordered, batch)
	sort.SliceStable(ordered, func(i, j int) bool {
		return proxyKey(ordered[i]) < proxyKey(ordered[j])
	})

	claimed := make([]bool, len(ordered))
	var out []*Proposal

	for i := range ordered {
		if claimed[i] {
			continue
		}
		claimed[i] = true
		members := []models.Snapshot{ordered[i]}
		seatsLeft := SeatCapacity - ordered[i].Passengers

		for j := i + 1; j < len(ordered) && seatsLeft > 0; j++ {
			if claimed[j] {
				continue
			}
			if !b.Rule.Accepts(members, ordered[j], seatsLeft) {
				continue
			}
			members = append(members, ordered[j])
			seatsLeft -= ordered[j].Passengers
			claimed[j] = true
		}

		out = append(out, b.Propose(members, now, queueSize))
	}
	return out
}

// Propose finalizes a pool over the given members: route length by path
// concatenation (each member's own leg plus the chained dropoff-to-next-pickup
// hops, in pool order), duration and fare from the policy models. The commit
// path reuses it to reprice a pool that shrank after lost transition races.
func (b *Builder) Propose(members []models.Snapshot, now time.Time, queueSize int) *Proposal {
	p := &Proposal{Members: members}
	for i, m := range members {
		p.Passengers += m.Passengers
		p.Luggage += m.Luggage
		p.DistanceKm += geo.DistanceKm(m.Pickup, m.Dropoff)
		if i > 0 {
			p.DistanceKm += geo.DistanceKm(members[i-1].Dropoff, m.Pickup)
		}
	}
	p.DurationMin = geo.TravelMinutes(p.DistanceKm)
	p.Fare = pricing.Quote(p.DistanceKm, p.DurationMin, now, queueSize, len(members) > 1)
	p.PerMember = pricing.SplitEvenly(p.Fare.FinalPrice, len(members))
	return p
}

func proxyKey(s models.Snapshot) float64 {
	return math.Abs(s.Pickup.Lat) + math.Abs(s.Pickup.Lon)
}
