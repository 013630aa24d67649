package pooling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/parthgupta9/ride-pooling/internal/match"
	"github.com/parthgupta9/ride-pooling/internal/models"
	"github.com/parthgupta9/ride-pooling/internal/queue"
	"github.com/parthgupta9/ride-pooling/internal/storage"
)

var (
	jfk         = models.Coord{Lat: 40.6413, Lon: -73.7781}
	timesSquare = models.Coord{Lat: 40.7580, Lon: -73.9855}
	offPeak     = time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{calls: make(map[string]int)}
}

func (n *recordingNotifier) Notify(_ context.Context, riderID string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[riderID]++
	return nil
}

func (n *recordingNotifier) count(riderID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[riderID]
}

func newService(t *testing.T) (*Service, *storage.MemoryStore, *queue.Memory, *recordingNotifier) {
	t.Helper()
	store := storage.NewMemoryStore()
	q := queue.NewMemory()
	n := newRecordingNotifier()
	svc := &Service{
		Store:    store,
		Queue:    q,
		Notifier: n,
		Builder:  &match.Builder{},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return offPeak },
	}
	return svc, store, q, n
}

func submitCmd(riderID string) SubmitCommand {
	return SubmitCommand{
		RiderID:      riderID,
		Pickup:       jfk,
		Dropoff:      timesSquare,
		Passengers:   1,
		Luggage:      0,
		MaxDetourMin: 10,
	}
}

func TestSubmitValidRequest(t *testing.T) {
	svc, store, q, _ := newService(t)
	ctx := context.Background()

	res, err := svc.Submit(ctx, submitCmd("rider-1"))
	if err != nil {
		t.Fatal(err)
	}
	if res.RequestID == "" {
		t.Fatal("expected a request ID")
	}
	if res.InitialEstimate.FinalPrice <= 0 {
		t.Fatal("expected a positive initial estimate")
	}

	req, err := store.GetRequest(ctx, res.RequestID)
	if err != nil {
		t.Fatal(err)
	}
	if req.Status != models.StatusPending {
		t.Fatalf("new request must be pending, got %s", req.Status)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("expected 1 queued entry, got %d", n)
	}
}

func TestSubmitRejectsOutOfRange(t *testing.T) {
	svc, _, q, _ := newService(t)
	ctx := context.Background()

	bad := submitCmd("rider-1")
	bad.Passengers = 5
	if _, err := svc.Submit(ctx, bad); !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	bad = submitCmd("rider-1")
	bad.Luggage = 11
	if _, err := svc.Submit(ctx, bad); !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	bad = submitCmd("rider-1")
	bad.Pickup = models.Coord{Lat: 91, Lon: 0}
	if _, err := svc.Submit(ctx, bad); !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("rejected requests must never be enqueued, found %d", n)
	}
}

func TestCancelPending(t *testing.T) {
	svc, store, q, _ := newService(t)
	ctx := context.Background()

	res, err := svc.Submit(ctx, submitCmd("rider-1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(ctx, res.RequestID); err != nil {
		t.Fatal(err)
	}
	req, _ := store.GetRequest(ctx, res.RequestID)
	if req.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", req.Status)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatal("cancelled request must be removed from the queue")
	}
}

func TestCancelAfterAssignmentConflicts(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()

	res, err := svc.Submit(ctx, submitCmd("rider-1"))
	if err != nil {
		t.Fatal(err)
	}
	pools, err := svc.DrainAndRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pools) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(pools))
	}

	err = svc.Cancel(ctx, res.RequestID)
	if !IsConflict(err) {
		t.Fatalf("cancel after assignment must conflict, got %v", err)
	}
	// pool membership unchanged
	pool, err := store.GetPool(ctx, pools[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pool.MemberIDs) != 1 || pool.MemberIDs[0] != res.RequestID {
		t.Fatalf("pool membership must be unchanged, got %v", pool.MemberIDs)
	}
}

func TestCancelUnknownRequest(t *testing.T) {
	svc, _, _, _ := newService(t)
	if err := svc.Cancel(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunCycleAssignsAndNotifies(t *testing.T) {
	svc, store, _, notifier := newService(t)
	ctx := context.Background()

	ids := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		res, err := svc.Submit(ctx, submitCmd(fmt.Sprintf("rider-%d", i)))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, res.RequestID)
	}

	pools, err := svc.DrainAndRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pools) != 1 {
		t.Fatalf("four compatible riders should share one pool, got %d", len(pools))
	}

	for _, id := range ids {
		req, err := store.GetRequest(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if req.Status != models.StatusAssigned {
			t.Fatalf("request %s not assigned", id)
		}
		if req.PoolID == nil || *req.PoolID != pools[0].ID {
			t.Fatalf("request %s missing pool ref", id)
		}
	}

	// notifications are async; wait briefly
	deadline := time.Now().Add(2 * time.Second)
	for i := 0; i < 4; i++ {
		rider := fmt.Sprintf("rider-%d", i)
		for notifier.count(rider) == 0 {
			if time.Now().After(deadline) {
				t.Fatalf("rider %s never notified", rider)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestCommitSkipsMemberThatLostRace(t *testing.T) {
	svc, store, q, _ := newService(t)
	ctx := context.Background()

	a, _ := svc.Submit(ctx, submitCmd("rider-a"))
	b, _ := svc.Submit(ctx, submitCmd("rider-b"))

	// drain the batch, then cancel b before the cycle commits: the
	// conditional transition must skip b, not overwrite it
	batch, err := q.DequeueUpTo(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := store.TransitionRequest(ctx, b.RequestID, models.StatusPending, models.StatusCancelled, nil)
	if err != nil || !ok {
		t.Fatalf("cancel setup failed: ok=%v err=%v", ok, err)
	}

	pools, err := svc.RunCycleOnce(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(pools) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(pools))
	}

	reqA, _ := store.GetRequest(ctx, a.RequestID)
	reqB, _ := store.GetRequest(ctx, b.RequestID)
	if reqA.Status != models.StatusAssigned {
		t.Fatalf("a should be assigned, got %s", reqA.Status)
	}
	if reqB.Status != models.StatusCancelled {
		t.Fatalf("b's cancellation must not be overwritten, got %s", reqB.Status)
	}
	if reqB.PoolID != nil {
		t.Fatal("b must not carry a pool ref")
	}

	// the committed pool shrinks around the lost member and is repriced as
	// a solo ride
	pool, err := store.GetPool(ctx, pools[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pool.MemberIDs) != 1 || pool.MemberIDs[0] != a.RequestID {
		t.Fatalf("committed pool must exclude the cancelled member, got %v", pool.MemberIDs)
	}
	if pool.Passengers != 1 {
		t.Fatalf("pool aggregates must cover survivors only, got %d passengers", pool.Passengers)
	}
	solo := svc.Estimate(ctx, jfk, timesSquare, 1, false, 0)
	if pool.Fare != solo.FinalPrice || pool.PerMember != solo.FinalPrice {
		t.Fatalf("shrunk pool must be repriced solo: fare=%f per_member=%f want %f",
			pool.Fare, pool.PerMember, solo.FinalPrice)
	}
}

func TestCommitDropsPoolWhenAllMembersLost(t *testing.T) {
	svc, store, q, _ := newService(t)
	ctx := context.Background()

	a, _ := svc.Submit(ctx, submitCmd("rider-a"))
	b, _ := svc.Submit(ctx, submitCmd("rider-b"))
	batch, err := q.DequeueUpTo(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{a.RequestID, b.RequestID} {
		if ok, err := store.TransitionRequest(ctx, id, models.StatusPending, models.StatusCancelled, nil); err != nil || !ok {
			t.Fatalf("cancel setup failed for %s: ok=%v err=%v", id, ok, err)
		}
	}

	pools, err := svc.RunCycleOnce(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(pools) != 0 {
		t.Fatalf("no survivors means no pool, got %d", len(pools))
	}
	stored, err := store.ListPoolsByStatus(ctx, models.PoolAssigned, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 0 {
		t.Fatalf("no pool record must be created, found %d", len(stored))
	}
}

func TestCompletePoolAndRate(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()

	a, _ := svc.Submit(ctx, submitCmd("rider-a"))
	b, _ := svc.Submit(ctx, submitCmd("rider-b"))
	pools, err := svc.DrainAndRun(ctx)
	if err != nil || len(pools) != 1 {
		t.Fatalf("setup failed: pools=%v err=%v", pools, err)
	}

	if err := svc.CompletePool(ctx, pools[0].ID); err != nil {
		t.Fatal(err)
	}
	pool, _ := store.GetPool(ctx, pools[0].ID)
	if pool.Status != models.PoolCompleted {
		t.Fatalf("pool should be completed, got %s", pool.Status)
	}
	for _, id := range []string{a.RequestID, b.RequestID} {
		req, _ := store.GetRequest(ctx, id)
		if req.Status != models.StatusCompleted {
			t.Fatalf("member %s should be completed, got %s", id, req.Status)
		}
		if req.PoolID == nil || *req.PoolID != pool.ID {
			t.Fatalf("member %s lost its pool ref", id)
		}
	}

	// second completion loses the status race
	if err := svc.CompletePool(ctx, pools[0].ID); !IsConflict(err) {
		t.Fatalf("double completion must conflict, got %v", err)
	}

	if err := svc.RateRequest(ctx, a.RequestID, 5); err != nil {
		t.Fatal(err)
	}
	req, _ := store.GetRequest(ctx, a.RequestID)
	if req.Rating == nil || *req.Rating != 5 {
		t.Fatalf("rating not recorded: %+v", req.Rating)
	}
}

func TestRateRejectsOutOfRange(t *testing.T) {
	svc, _, _, _ := newService(t)
	if err := svc.RateRequest(context.Background(), "any", 0); !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if err := svc.RateRequest(context.Background(), "any", 6); !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRateBeforeCompletionConflicts(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	res, err := svc.Submit(ctx, submitCmd("rider-1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.RateRequest(ctx, res.RequestID, 4); !IsConflict(err) {
		t.Fatalf("rating a pending request must conflict, got %v", err)
	}
}

func TestRunCycleEmptyBatchNoOp(t *testing.T) {
	svc, _, _, _ := newService(t)
	pools, err := svc.DrainAndRun(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pools != nil {
		t.Fatalf("empty queue must be a no-op, got %d pools", len(pools))
	}
}

func TestEstimateSurgeAtQueueSixty(t *testing.T) {
	svc, _, _, _ := newService(t)
	b := svc.Estimate(context.Background(), jfk, timesSquare, 1, false, 60)
	if b.Surge != 1.6 {
		t.Fatalf("surge at queue size 60 must be 1.6, got %f", b.Surge)
	}
}

func TestEstimateIsReadOnly(t *testing.T) {
	svc, store, q, _ := newService(t)
	ctx := context.Background()
	_ = svc.Estimate(ctx, jfk, timesSquare, 2, true, 0)
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatal("estimate must not enqueue")
	}
	if got, _ := store.ListRequestsByStatus(ctx, models.StatusPending, 10, 0); len(got) != 0 {
		t.Fatal("estimate must not create requests")
	}
}

func TestSoloPoolFareMatchesSoloQuote(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, submitCmd("rider-1")); err != nil {
		t.Fatal(err)
	}
	pools, err := svc.DrainAndRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pools) != 1 || len(pools[0].MemberIDs) != 1 {
		t.Fatalf("expected one solo pool, got %v", pools)
	}
	est := svc.Estimate(ctx, jfk, timesSquare, 1, false, 0)
	if pools[0].Fare != est.FinalPrice {
		t.Fatalf("solo pool fare %f must equal solo quote %f", pools[0].Fare, est.FinalPrice)
	}
}
