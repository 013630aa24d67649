// Package dispatch delivers assignment notifications to riders. Delivery is
// fire-and-forget: the engine never rolls back an assignment because a
// notification failed.
package dispatch

import (
	"context"
	"log/slog"
)

// Notifier pushes a payload to one rider.
type Notifier interface {
	Notify(ctx context.Context, riderID string, payload any) error
}

// Assignment is the payload sent when a rider's request lands in a pool.
type Assignment struct {
	RequestID string  `json:"request_id"`
	PoolID    string  `json:"pool_id"`
	Members   int     `json:"members"`
	Share     float64 `json:"share"`
	PickupETA float64 `json:"pickup_eta_min"`
}

// LogNotifier is the fallback sink for local runs without a push channel.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l *LogNotifier) Notify(_ context.Context, riderID string, payload any) error {
	l.Logger.Info("notify", "rider_id", riderID, "payload", payload)
	return nil
}
