package queue

import (
	"context"
	"fmt"
	"testing"

	"github.com/parthgupta9/ride-pooling/internal/models"
)

func TestMemoryFIFO(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, models.Snapshot{ID: fmt.Sprintf("r%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	out, err := q.DequeueUpTo(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].ID != "r0" || out[1].ID != "r1" {
		t.Fatalf("expected r0,r1 got %v", out)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("expected 1 remaining, got %d", n)
	}
}

func TestMemoryDequeueShortBatch(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	_ = q.Enqueue(ctx, models.Snapshot{ID: "only"})
	out, err := q.DequeueUpTo(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("fewer than n available is not an error, got %d", len(out))
	}
	out, err = q.DequeueUpTo(ctx, 5)
	if err != nil || out != nil {
		t.Fatalf("empty queue must be a no-op, got %v err=%v", out, err)
	}
}

func TestMemoryRemove(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	_ = q.Enqueue(ctx, models.Snapshot{ID: "a"})
	_ = q.Enqueue(ctx, models.Snapshot{ID: "b"})
	_ = q.Enqueue(ctx, models.Snapshot{ID: "c"})

	ok, err := q.Remove(ctx, "b")
	if err != nil || !ok {
		t.Fatalf("expected removal, ok=%v err=%v", ok, err)
	}
	ok, _ = q.Remove(ctx, "b")
	if ok {
		t.Fatal("second removal of same ID must report not found")
	}
	out, _ := q.DequeueUpTo(ctx, 5)
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "c" {
		t.Fatalf("removal must preserve FIFO order of the rest, got %v", out)
	}
}
