// Package storage persists requests and pools. The conditional transition is
// the concurrency primitive the whole engine leans on: it is the only way a
// request leaves Pending, so a cancellation and a batch assignment can never
// both succeed on the same request.
package storage

import (
	"context"
	"errors"

	"github.com/parthgupta9/ride-pooling/internal/models"
)

var ErrNotFound = errors.New("not found")

// Store defines persistence operations for requests and pools.
type Store interface {
	CreateRequest(ctx context.Context, r *models.Request) error
	GetRequest(ctx context.Context, id string) (*models.Request, error)
	ListRequestsByStatus(ctx context.Context, status models.RequestStatus, limit, offset int) ([]*models.Request, error)

	// TransitionRequest atomically moves a request from one status to
	// another, attaching poolID when assigning. It returns false without
	// error when the request is no longer in the expected status; first
	// valid transition wins.
	TransitionRequest(ctx context.Context, id string, from, to models.RequestStatus, poolID *string) (bool, error)

	// SetRating records the rider's rating; false without error when the
	// request is not completed yet.
	SetRating(ctx context.Context, id string, rating int) (bool, error)

	CreatePool(ctx context.Context, p *models.Pool) error
	GetPool(ctx context.Context, id string) (*models.Pool, error)
	ListPoolsByStatus(ctx context.Context, status models.PoolStatus, limit, offset int) ([]*models.Pool, error)

	// UpdatePoolStatus conditionally moves a pool between statuses, same
	// first-wins contract as TransitionRequest.
	UpdatePoolStatus(ctx context.Context, id string, from, to models.PoolStatus) (bool, error)
}
