// Package scheduler drives the matching engine: a fixed-interval timer where
// each tick drains one batch and commits its pools. Two states only, idle
// and running; a tick that fires mid-cycle is dropped, never queued, so at
// most one cycle is ever active.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/parthgupta9/ride-pooling/internal/match"
	"github.com/parthgupta9/ride-pooling/internal/models"
	"github.com/parthgupta9/ride-pooling/internal/observability"
)

// DefaultTickInterval bounds worst-case staleness of a pending request.
const DefaultTickInterval = 500 * time.Millisecond

// DefaultMaxSkippedTicks is how many consecutive dropped ticks are tolerated
// before the overrun is escalated.
const DefaultMaxSkippedTicks = 4

// Cycler runs one matching cycle; implemented by pooling.Service.
type Cycler interface {
	DrainAndRun(ctx context.Context) ([]*models.Pool, error)
}

type Scheduler struct {
	Cycler       Cycler
	Logger       *slog.Logger
	TickInterval time.Duration

	// MaxSkippedTicks caps consecutive dropped ticks before ErrorHandler
	// fires; a cycle that persistently outlives the interval would
	// otherwise silently degrade throughput.
	MaxSkippedTicks int

	// ErrorHandler receives non-transient failures (invariant violations,
	// persistent overruns). Nil means log-only.
	ErrorHandler func(error)

	running atomic.Bool
	skipped atomic.Int64
}

func (s *Scheduler) tickInterval() time.Duration {
	if s.TickInterval > 0 {
		return s.TickInterval
	}
	return DefaultTickInterval
}

func (s *Scheduler) maxSkipped() int64 {
	if s.MaxSkippedTicks > 0 {
		return int64(s.MaxSkippedTicks)
	}
	return DefaultMaxSkippedTicks
}

// Run blocks until ctx is cancelled, firing a cycle per tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()

	s.Logger.Info("scheduler started", "tick_interval", s.tickInterval().String())
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one cycle unless the previous one is still in flight, in which
// case the tick is dropped. Exported so tests can drive the scheduler
// without the timer.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		observability.CyclesSkipped.Inc()
		n := s.skipped.Add(1)
		s.Logger.Warn("tick dropped, cycle still running", "consecutive_skips", n)
		if n >= s.maxSkipped() {
			s.escalate(fmt.Errorf("matching cycle overran %d consecutive ticks", n))
		}
		return
	}
	defer s.running.Store(false)
	s.skipped.Store(0)

	start := time.Now()
	pools, err := s.Cycler.DrainAndRun(ctx)
	observability.CyclesTotal.Inc()
	observability.CycleDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		// invariant breaches are algorithm bugs, loud and escalated;
		// anything else is treated as transient infra trouble and retried
		// on the next tick
		if isInvariant(err) {
			s.Logger.Error("matching invariant violated", "error", err)
			s.escalate(err)
			return
		}
		s.Logger.Warn("cycle failed, retrying next tick", "error", err)
		return
	}
	if len(pools) > 0 {
		s.Logger.Info("cycle complete", "pools", len(pools), "duration_ms", time.Since(start).Milliseconds())
	}
}

func isInvariant(err error) bool {
	return errors.Is(err, match.ErrInvariant)
}

func (s *Scheduler) escalate(err error) {
	if s.ErrorHandler != nil {
		s.ErrorHandler(err)
		return
	}
	s.Logger.Error("scheduler fault", "error", err)
}
