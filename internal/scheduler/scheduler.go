package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every aligned interval.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
}

// Scheduler drives execution of the observation loop on a wall-clock grid.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function at each aligned instant until ctx
// is cancelled. Ticks that came due while a previous iteration overran, or
// while the process was suspended, collapse into a single invocation; the
// loop never runs back-to-back to catch up.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	next := s.NextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.NextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.logger.Info().Time("tick", next).Msg("executing scheduled tick")

		if err := tick(ctx, next); err != nil {
			s.logger.Error().Err(err).Time("tick", next).Msg("tick execution failed")
		}

		// Recompute from the clock rather than adding Interval so an
		// overrunning iteration skips straight to the next grid point.
		next = s.NextTick(time.Now().UTC())
	}
}

// NextTick returns the earliest instant after now that lands on the sub-hour
// grid: (minute*60 + second) mod interval_seconds == 0. When now is already
// on the grid the following grid point is chosen.
func (s *Scheduler) NextTick(now time.Time) time.Time {
	intervalSecs := int64(s.opts.Interval / time.Second)
	elapsed := int64(now.Minute())*60 + int64(now.Second())
	rem := elapsed % intervalSecs
	delay := intervalSecs - rem
	return now.Truncate(time.Second).Add(time.Duration(delay) * time.Second)
}
