// Package pooling is the core engine surface: request intake, cancellation,
// fare estimates and the batch cycle that turns pending requests into
// committed pools.
package pooling

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/parthgupta9/ride-pooling/internal/dispatch"
	"github.com/parthgupta9/ride-pooling/internal/geo"
	"github.com/parthgupta9/ride-pooling/internal/match"
	"github.com/parthgupta9/ride-pooling/internal/models"
	"github.com/parthgupta9/ride-pooling/internal/observability"
	"github.com/parthgupta9/ride-pooling/internal/pricing"
	"github.com/parthgupta9/ride-pooling/internal/queue"
	"github.com/parthgupta9/ride-pooling/internal/storage"
)

// EventPublisher publishes committed pools to the event stream; optional.
type EventPublisher interface {
	PublishPool(pool *models.Pool, riderIDs []string) error
}

type Service struct {
	Store    storage.Store
	Queue    queue.Queue
	Notifier dispatch.Notifier
	Events   EventPublisher
	Builder  *match.Builder
	Logger   *slog.Logger

	// EstimateCache is optional; when set, Estimate serves repeat quotes
	// from it.
	EstimateCache *pricing.Cache

	// BatchSize bounds one drain; zero means match.DefaultBatchSize.
	BatchSize int

	// Now is overridable for deterministic fare tests.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) batchSize() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return match.DefaultBatchSize
}

type SubmitCommand struct {
	RiderID      string       `json:"rider_id"`
	Pickup       models.Coord `json:"pickup"`
	Dropoff      models.Coord `json:"dropoff"`
	Passengers   int          `json:"passengers"`
	Luggage      int          `json:"luggage"`
	MaxDetourMin float64      `json:"max_detour_min"`
}

type SubmitResult struct {
	RequestID       string            `json:"request_id"`
	InitialEstimate pricing.Breakdown `json:"initial_estimate"`
}

// Submit validates, persists and enqueues a new request, returning its ID
// and an initial pooled-fare estimate. Fails fast on validation; nothing is
// enqueued on error.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*SubmitResult, error) {
	req, err := models.NewRequest(newID(), cmd.RiderID, cmd.Pickup, cmd.Dropoff,
		cmd.Passengers, cmd.Luggage, cmd.MaxDetourMin)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	if err := s.Store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if err := s.Queue.Enqueue(ctx, req.Snapshot()); err != nil {
		return nil, fmt.Errorf("enqueue request: %w", err)
	}
	depth, _ := s.Queue.Len(ctx)
	observability.QueueDepth.Set(float64(depth))

	est := s.Estimate(ctx, req.Pickup, req.Dropoff, req.Passengers, true, depth)
	return &SubmitResult{RequestID: req.ID, InitialEstimate: est}, nil
}

// Cancel honors a cancellation only while the request is still Pending. Once
// a pool is committed the cancel is rejected as a conflict; pool membership
// is never rewritten.
func (s *Service) Cancel(ctx context.Context, requestID string) error {
	ok, err := s.Store.TransitionRequest(ctx, requestID, models.StatusPending, models.StatusCancelled, nil)
	if err != nil {
		return err
	}
	if !ok {
		req, err := s.Store.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		return &ConflictError{ID: requestID, Status: string(req.Status)}
	}
	// remove the queued entry if it has not been drained yet; losing this
	// race is fine, the drained snapshot loses the status race instead
	if _, err := s.Queue.Remove(ctx, requestID); err != nil {
		s.Logger.Warn("queue remove after cancel failed", "request_id", requestID, "error", err)
	}
	observability.RequestsCancelled.Inc()
	return nil
}

// CompletePool closes out a finished ride: the pool moves Assigned to
// Completed, then every member still Assigned follows. A member that already
// left Assigned is skipped, same first-wins contract as the commit path.
func (s *Service) CompletePool(ctx context.Context, poolID string) error {
	ok, err := s.Store.UpdatePoolStatus(ctx, poolID, models.PoolAssigned, models.PoolCompleted)
	if err != nil {
		return err
	}
	if !ok {
		pool, err := s.Store.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		return &ConflictError{ID: poolID, Status: string(pool.Status)}
	}
	pool, err := s.Store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	for _, id := range pool.MemberIDs {
		// keep the pool ref on the completed request
		if _, err := s.Store.TransitionRequest(ctx, id, models.StatusAssigned, models.StatusCompleted, &pool.ID); err != nil {
			s.Logger.Warn("member completion failed", "request_id", id, "pool_id", poolID, "error", err)
		}
	}
	observability.PoolsCompleted.Inc()
	return nil
}

// RateRequest records the rider's 1-5 rating once the ride is completed.
func (s *Service) RateRequest(ctx context.Context, requestID string, rating int) error {
	if rating < models.MinRating || rating > models.MaxRating {
		return &ValidationError{Reason: fmt.Sprintf("rating must be between %d and %d", models.MinRating, models.MaxRating)}
	}
	ok, err := s.Store.SetRating(ctx, requestID, rating)
	if err != nil {
		return err
	}
	if !ok {
		req, err := s.Store.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		return &ConflictError{ID: requestID, Status: string(req.Status)}
	}
	return nil
}

// Estimate is read-only: it quotes a fare for a leg without touching any
// state.
func (s *Service) Estimate(_ context.Context, pickup, dropoff models.Coord, passengers int, pooled bool, queueSize int) pricing.Breakdown {
	at := s.now()
	if s.EstimateCache != nil {
		if b, ok := s.EstimateCache.Get(pickup, dropoff, passengers, pooled, queueSize, at); ok {
			return b
		}
	}
	km := geo.DistanceKm(pickup, dropoff)
	min := geo.TravelMinutes(km)
	b := pricing.Quote(km, min, at, queueSize, pooled)
	if s.EstimateCache != nil {
		s.EstimateCache.Set(pickup, dropoff, passengers, pooled, queueSize, at, b)
	}
	return b
}

// RunCycleOnce groups one batch and commits the result. It is the timerless
// entry point: deterministic for identical batches, usable directly from
// tests. Commit order per proposal follows the engine contract: conditionally
// transition each member first, then create the pool record from the members
// that won their transition. A member that already left Pending is skipped,
// never overwritten, and the pool shrinks around it.
func (s *Service) RunCycleOnce(ctx context.Context, batch []models.Snapshot) ([]*models.Pool, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	queueSize, err := s.Queue.Len(ctx)
	if err != nil {
		queueSize = len(batch)
	}

	proposals := s.Builder.Build(batch, s.now(), queueSize)
	pools := make([]*models.Pool, 0, len(proposals))
	for _, prop := range proposals {
		if err := prop.Validate(); err != nil {
			observability.InvariantViolations.Inc()
			return pools, fmt.Errorf("refusing to commit pool: %w", err)
		}
		pool, err := s.commit(ctx, prop, queueSize)
		if err != nil {
			return pools, err
		}
		if pool != nil {
			pools = append(pools, pool)
		}
	}
	return pools, nil
}

func (s *Service) commit(ctx context.Context, prop *match.Proposal, queueSize int) (*models.Pool, error) {
	poolID := newID()

	survivors := make([]models.Snapshot, 0, len(prop.Members))
	for _, m := range prop.Members {
		ok, err := s.Store.TransitionRequest(ctx, m.ID, models.StatusPending, models.StatusAssigned, &poolID)
		if err != nil {
			return nil, fmt.Errorf("transition %s: %w", m.ID, err)
		}
		if !ok {
			// a concurrent path (cancellation) won; skip, don't overwrite
			s.Logger.Info("member lost transition race, skipping", "request_id", m.ID, "pool_id", poolID)
			continue
		}
		observability.RequestsAssigned.Inc()
		survivors = append(survivors, m)
	}
	if len(survivors) == 0 {
		s.Logger.Info("every member left pending before commit, pool dropped", "pool_id", poolID)
		return nil, nil
	}
	if len(survivors) < len(prop.Members) {
		// the pool shrinks around the lost members: aggregates, route and
		// fare are repriced over the survivors only
		prop = s.Builder.Propose(survivors, s.now(), queueSize)
	}

	pool := &models.Pool{
		ID:          poolID,
		MemberIDs:   prop.MemberIDs(),
		Passengers:  prop.Passengers,
		Luggage:     prop.Luggage,
		Pickup:      prop.Members[0].Pickup,
		Dropoff:     prop.Members[len(prop.Members)-1].Dropoff,
		DistanceKm:  prop.DistanceKm,
		DurationMin: prop.DurationMin,
		Fare:        prop.Fare.FinalPrice,
		PerMember:   prop.PerMember,
		Status:      models.PoolAssigned,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.Store.CreatePool(ctx, pool); err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	observability.PoolsCreated.Inc()

	riderIDs := make([]string, 0, len(survivors))
	for _, m := range survivors {
		riderIDs = append(riderIDs, m.RiderID)
		s.notifyAsync(m, pool, len(survivors))
	}

	if s.Events != nil {
		if err := s.Events.PublishPool(pool, riderIDs); err != nil {
			s.Logger.Warn("pool event publish failed", "pool_id", pool.ID, "error", err)
		}
	}
	return pool, nil
}

// notifyAsync delivers the assignment without blocking the cycle; a failure
// is logged and counted, never rolled back.
func (s *Service) notifyAsync(m models.Snapshot, pool *models.Pool, members int) {
	payload := dispatch.Assignment{
		RequestID: m.ID,
		PoolID:    pool.ID,
		Members:   members,
		Share:     pool.PerMember,
		PickupETA: pool.DurationMin,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Notifier.Notify(ctx, m.RiderID, payload); err != nil {
			observability.NotifyFailures.Inc()
			s.Logger.Warn("notify failed", "rider_id", m.RiderID, "request_id", m.ID, "error", err)
		}
	}()
}

// DrainAndRun pulls up to one batch from the queue and runs a cycle over it.
// An empty queue is a no-op. Called by the scheduler on every tick.
func (s *Service) DrainAndRun(ctx context.Context) ([]*models.Pool, error) {
	batch, err := s.Queue.DequeueUpTo(ctx, s.batchSize())
	if err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}
	if depth, err := s.Queue.Len(ctx); err == nil {
		observability.QueueDepth.Set(float64(depth))
	}
	if len(batch) == 0 {
		return nil, nil
	}
	return s.RunCycleOnce(ctx, batch)
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
