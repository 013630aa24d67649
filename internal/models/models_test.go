package models

import (
	"math"
	"testing"
)

var (
	okPickup  = Coord{Lat: 40.6413, Lon: -73.7781}
	okDropoff = Coord{Lat: 40.7580, Lon: -73.9855}
)

func TestNewRequestDefaults(t *testing.T) {
	r, err := NewRequest("id", "rider", okPickup, okDropoff, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusPending {
		t.Fatalf("new request must start pending, got %s", r.Status)
	}
	if r.MaxDetourMin != DefaultMaxDetourMin {
		t.Fatalf("unset detour must default to %v, got %v", DefaultMaxDetourMin, r.MaxDetourMin)
	}
	if r.PoolID != nil {
		t.Fatal("new request must not carry a pool ref")
	}
}

func TestNewRequestBounds(t *testing.T) {
	cases := []struct {
		name       string
		pickup     Coord
		dropoff    Coord
		passengers int
		luggage    int
	}{
		{"zero passengers", okPickup, okDropoff, 0, 0},
		{"five passengers", okPickup, okDropoff, 5, 0},
		{"negative luggage", okPickup, okDropoff, 1, -1},
		{"eleven luggage", okPickup, okDropoff, 1, 11},
		{"lat out of range", Coord{Lat: 91, Lon: 0}, okDropoff, 1, 0},
		{"lon out of range", okPickup, Coord{Lat: 0, Lon: 181}, 1, 0},
		{"nan coordinate", Coord{Lat: math.NaN(), Lon: 0}, okDropoff, 1, 0},
	}
	for _, tc := range cases {
		if _, err := NewRequest("id", "rider", tc.pickup, tc.dropoff, tc.passengers, tc.luggage, 10); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to RequestStatus }{
		{StatusPending, StatusAssigned},
		{StatusPending, StatusCancelled},
		{StatusAssigned, StatusCompleted},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}
	denied := []struct{ from, to RequestStatus }{
		{StatusAssigned, StatusCancelled},
		{StatusCancelled, StatusAssigned},
		{StatusCompleted, StatusPending},
		{StatusAssigned, StatusPending},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s must be denied", tc.from, tc.to)
		}
	}
}

func TestSnapshotCarriesMatchingFields(t *testing.T) {
	r, err := NewRequest("id", "rider", okPickup, okDropoff, 2, 3, 15)
	if err != nil {
		t.Fatal(err)
	}
	s := r.Snapshot()
	if s.ID != r.ID || s.RiderID != r.RiderID || s.Passengers != 2 || s.Luggage != 3 || s.MaxDetourMin != 15 {
		t.Fatalf("snapshot mismatch: %+v", s)
	}
}
