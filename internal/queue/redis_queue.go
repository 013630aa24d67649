package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/parthgupta9/ride-pooling/internal/models"
)

// Redis implements Queue on a Redis list, snapshots JSON-encoded. RPUSH/LPOP
// keeps FIFO order across processes.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(addr, password, key string) *Redis {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &Redis{client: c, key: key}
}

func (q *Redis) Enqueue(ctx context.Context, s models.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return q.client.RPush(ctx, q.key, b).Err()
}

func (q *Redis) DequeueUpTo(ctx context.Context, n int) ([]models.Snapshot, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := q.client.LPopCount(ctx, q.key, n).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.Snapshot, 0, len(vals))
	for _, v := range vals {
		var s models.Snapshot
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			// a corrupt entry is dropped, not retried; it can never match
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Remove scans the list for the entry with the given request ID and LREMs
// that exact payload. The scan races concurrent pops; losing the race means
// the entry was already drained, reported as not found.
func (q *Redis) Remove(ctx context.Context, requestID string) (bool, error) {
	vals, err := q.client.LRange(ctx, q.key, 0, -1).Result()
	if err != nil {
		return false, err
	}
	for _, v := range vals {
		var s models.Snapshot
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			continue
		}
		if s.ID != requestID {
			continue
		}
		n, err := q.client.LRem(ctx, q.key, 1, v).Result()
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
	return false, nil
}

func (q *Redis) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return int(n), err
}

func (q *Redis) Close() error {
	return q.client.Close()
}
