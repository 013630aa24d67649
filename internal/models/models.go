package models

import (
	"fmt"
	"math"
	"time"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coord) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// RequestStatus is the lifecycle state of a pooling request. Status is the
// single source of truth for whether a request has been claimed; every
// transition away from Pending goes through the store's conditional
// transition primitive.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusAssigned  RequestStatus = "assigned"
	StatusCancelled RequestStatus = "cancelled"
	StatusCompleted RequestStatus = "completed"
)

type PoolStatus string

const (
	PoolAssigned  PoolStatus = "assigned"
	PoolCompleted PoolStatus = "completed"
	PoolCancelled PoolStatus = "cancelled"
)

const (
	MinPassengers = 1
	MaxPassengers = 4
	MinLuggage    = 0
	MaxLuggage    = 10

	// LuggagePerSeat caps pool luggage at 10 units per aggregate passenger.
	LuggagePerSeat = 10

	// DefaultMaxDetourMin applies when a request leaves the detour unset.
	DefaultMaxDetourMin = 10.0

	MinRating = 1
	MaxRating = 5
)

type Request struct {
	ID           string        `json:"id"`
	RiderID      string        `json:"rider_id"`
	Pickup       Coord         `json:"pickup"`
	Dropoff      Coord         `json:"dropoff"`
	Passengers   int           `json:"passengers"`
	Luggage      int           `json:"luggage"`
	MaxDetourMin float64       `json:"max_detour_min"`
	Status       RequestStatus `json:"status"`
	PoolID       *string       `json:"pool_id,omitempty"`
	Rating       *int          `json:"rating,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewRequest validates bounds at construction so malformed input never
// reaches the queue or the store.
func NewRequest(id, riderID string, pickup, dropoff Coord, passengers, luggage int, maxDetourMin float64) (*Request, error) {
	if riderID == "" {
		return nil, fmt.Errorf("rider_id is required")
	}
	if !pickup.Valid() {
		return nil, fmt.Errorf("pickup coordinate out of range")
	}
	if !dropoff.Valid() {
		return nil, fmt.Errorf("dropoff coordinate out of range")
	}
	if passengers < MinPassengers || passengers > MaxPassengers {
		return nil, fmt.Errorf("passengers must be between %d and %d", MinPassengers, MaxPassengers)
	}
	if luggage < MinLuggage || luggage > MaxLuggage {
		return nil, fmt.Errorf("luggage must be between %d and %d", MinLuggage, MaxLuggage)
	}
	if maxDetourMin <= 0 {
		maxDetourMin = DefaultMaxDetourMin
	}
	now := time.Now().UTC()
	return &Request{
		ID:           id,
		RiderID:      riderID,
		Pickup:       pickup,
		Dropoff:      dropoff,
		Passengers:   passengers,
		Luggage:      luggage,
		MaxDetourMin: maxDetourMin,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Snapshot is the immutable subset of a request carried through the queue.
// The matcher works only on snapshots, so a mutation of the canonical record
// between enqueue and drain cannot leak into an in-flight batch.
type Snapshot struct {
	ID           string    `json:"id"`
	RiderID      string    `json:"rider_id"`
	Pickup       Coord     `json:"pickup"`
	Dropoff      Coord     `json:"dropoff"`
	Passengers   int       `json:"passengers"`
	Luggage      int       `json:"luggage"`
	MaxDetourMin float64   `json:"max_detour_min"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

func (r *Request) Snapshot() Snapshot {
	return Snapshot{
		ID:           r.ID,
		RiderID:      r.RiderID,
		Pickup:       r.Pickup,
		Dropoff:      r.Dropoff,
		Passengers:   r.Passengers,
		Luggage:      r.Luggage,
		MaxDetourMin: r.MaxDetourMin,
		EnqueuedAt:   time.Now().UTC(),
	}
}

// MaxDetour returns the tolerated detour, falling back to the default for
// snapshots built before validation applied it.
func (s Snapshot) MaxDetour() float64 {
	if s.MaxDetourMin <= 0 {
		return DefaultMaxDetourMin
	}
	return s.MaxDetourMin
}

type Pool struct {
	ID          string     `json:"id"`
	MemberIDs   []string   `json:"member_ids"`
	Passengers  int        `json:"passengers"`
	Luggage     int        `json:"luggage"`
	Pickup      Coord      `json:"pickup"`
	Dropoff     Coord      `json:"dropoff"`
	DistanceKm  float64    `json:"distance_km"`
	DurationMin float64    `json:"duration_min"`
	Fare        float64    `json:"fare"`
	PerMember   float64    `json:"per_member"`
	Status      PoolStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// allowedTransitions encodes the request lifecycle as code.
var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:  {StatusAssigned, StatusCancelled},
	StatusAssigned: {StatusCompleted},
}

func CanTransition(from, to RequestStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
