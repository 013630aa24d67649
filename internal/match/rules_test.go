package match

import (
	"testing"

	"github.com/parthgupta9/ride-pooling/internal/models"
)

var (
	jfk         = models.Coord{Lat: 40.6413, Lon: -73.7781}
	timesSquare = models.Coord{Lat: 40.7580, Lon: -73.9855}
)

func snap(id string, pickup, dropoff models.Coord, passengers, luggage int, detour float64) models.Snapshot {
	return models.Snapshot{
		ID:           id,
		RiderID:      "rider-" + id,
		Pickup:       pickup,
		Dropoff:      dropoff,
		Passengers:   passengers,
		Luggage:      luggage,
		MaxDetourMin: detour,
	}
}

func TestAcceptsIdenticalRoute(t *testing.T) {
	var r Rule
	members := []models.Snapshot{snap("a", jfk, timesSquare, 1, 0, 10)}
	cand := snap("b", jfk, timesSquare, 1, 0, 10)
	if !r.Accepts(members, cand, 3) {
		t.Fatal("identical route should be compatible")
	}
}

func TestRejectsInsufficientSeats(t *testing.T) {
	var r Rule
	members := []models.Snapshot{snap("a", jfk, timesSquare, 2, 0, 10)}
	cand := snap("b", jfk, timesSquare, 3, 0, 10)
	if r.Accepts(members, cand, 2) {
		t.Fatal("3 passengers must not fit 2 seats")
	}
}

func TestLuggageCap(t *testing.T) {
	var r Rule
	// 10+10 units for 1+1 passengers sits exactly at the 20-unit cap
	members := []models.Snapshot{snap("a", jfk, timesSquare, 1, 10, 10)}
	cand := snap("b", jfk, timesSquare, 1, 10, 10)
	if !r.Accepts(members, cand, 3) {
		t.Fatal("20 units for 2 passengers is exactly at the cap")
	}
	// snapshots are not re-validated here, so an oversized member exercises
	// the rejection branch directly
	members[0].Luggage = 15
	cand.Luggage = 6
	if r.Accepts(members, cand, 3) {
		t.Fatal("21 units for 2 passengers must be rejected")
	}
}

func TestRejectsDistantPickup(t *testing.T) {
	var r Rule
	members := []models.Snapshot{snap("a", jfk, timesSquare, 1, 0, 60)}
	// ~50 km north of JFK
	far := models.Coord{Lat: 41.1, Lon: -73.7781}
	cand := snap("b", far, timesSquare, 1, 0, 60)
	if r.Accepts(members, cand, 3) {
		t.Fatal("pickup 50 km away must fail the 2 km proximity check")
	}
}

func TestRejectsDetourBeyondTolerance(t *testing.T) {
	var r Rule
	members := []models.Snapshot{snap("a", jfk, timesSquare, 1, 0, 10)}
	// pickup within 2 km but dropoff far enough that the summed detour
	// exceeds the candidate's 1 minute tolerance
	nearPickup := models.Coord{Lat: 40.6500, Lon: -73.7781}
	farDropoff := models.Coord{Lat: 40.9000, Lon: -73.9855}
	cand := snap("b", nearPickup, farDropoff, 1, 0, 1)
	if r.Accepts(members, cand, 3) {
		t.Fatal("detour beyond tolerance accepted")
	}
}

func TestDefaultDetourApplied(t *testing.T) {
	s := snap("a", jfk, timesSquare, 1, 0, 0)
	if s.MaxDetour() != models.DefaultMaxDetourMin {
		t.Fatalf("expected default detour, got %f", s.MaxDetour())
	}
}

func TestAllMembersMustAccept(t *testing.T) {
	var r Rule
	// first member shares the route, second tolerates no detour and sits
	// at the far end of the proximity radius
	strict := snap("strict", models.Coord{Lat: 40.6550, Lon: -73.7781}, models.Coord{Lat: 40.7700, Lon: -73.9855}, 1, 0, 10)
	members := []models.Snapshot{
		snap("a", jfk, timesSquare, 1, 0, 10),
		strict,
	}
	cand := snap("b", jfk, timesSquare, 1, 0, 10)
	accepted := r.Accepts(members, cand, 2)
	// compatibility with one member does not override rejection by another;
	// recompute pairwise to pin the semantics
	pairA := r.Accepts(members[:1], cand, 2)
	pairStrict := r.Accepts(members[1:], cand, 2)
	if accepted != (pairA && pairStrict) {
		t.Fatalf("pool acceptance %v must equal AND of pairwise results (%v, %v)", accepted, pairA, pairStrict)
	}
}
