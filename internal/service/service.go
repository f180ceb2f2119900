// Package service runs the observation loop: it drives the freshness engine
// at the scheduler's cadence, persists fresh readings, and keeps the status
// snapshot current.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gigawatch/internal/freshness"
	"gigawatch/internal/metrics"
	"gigawatch/internal/scheduler"
	"gigawatch/internal/storage"
)

// Fetcher is the freshness engine as the service consumes it.
type Fetcher interface {
	Fetch(ctx context.Context, force bool) (freshness.Result, error)
}

// Inserter is the single store write the service performs.
type Inserter interface {
	InsertDataStatus(ctx context.Context, percent, mb int, at time.Time) (int64, bool, error)
}

// Options tune the service loop.
type Options struct {
	Interval          time.Duration
	InitialRunTimeout time.Duration
}

// Service owns the long-lived scheduler task.
type Service struct {
	engine Fetcher
	store  Inserter
	board  *scheduler.Board
	sched  *scheduler.Scheduler
	opts   Options
	logger zerolog.Logger

	mu   sync.Mutex
	done chan struct{}
}

// New constructs the observation service.
func New(engine Fetcher, store Inserter, board *scheduler.Board, sched *scheduler.Scheduler, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		engine: engine,
		store:  store,
		board:  board,
		sched:  sched,
		opts:   opts,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Start launches the background loop. It is safe to call repeatedly: a live
// task is left alone, a finished one is replaced. Only one loop ever runs.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
			// previous task finished; restart below
		default:
			return
		}
	}

	done := make(chan struct{})
	s.done = done
	go func() {
		defer close(done)
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("observation loop terminated")
		}
	}()
}

// Running reports whether the background task is alive.
func (s *Service) Running() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Status returns the current snapshot together with derived task liveness.
func (s *Service) Status() (scheduler.Status, bool) {
	return s.board.Snapshot(), s.Running()
}

// Run executes the startup sequence and then blocks in the periodic loop
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info().Msg("background task started")
	s.board.Update(func(st *scheduler.Status) {
		st.Started = true
	})

	// Initial run, bounded by a hard wall-clock cap. The engine honours
	// cancellation in its poll sleep and gateway I/O, so a synchronous call
	// with a deadline context is enough to enforce the cap.
	initCtx, cancel := context.WithTimeout(ctx, s.opts.InitialRunTimeout)
	s.runOnce(initCtx)
	if errors.Is(initCtx.Err(), context.DeadlineExceeded) {
		s.logger.Warn().Msg("initial run timed out; continuing to schedule")
		s.board.Update(func(st *scheduler.Status) {
			st.LastError = "initial run timed out"
		})
	}
	cancel()

	next := s.sched.NextTick(time.Now().UTC())
	s.board.Update(func(st *scheduler.Status) {
		st.NextIterationAt = next
	})
	s.logger.Info().
		Time("next_run", next).
		Dur("cadence", s.opts.Interval).
		Msg("periodic schedule armed")

	return s.sched.Run(ctx, s.tick)
}

func (s *Service) tick(ctx context.Context, _ time.Time) error {
	s.runOnce(ctx)
	s.board.Update(func(st *scheduler.Status) {
		st.NextIterationAt = time.Now().UTC().Add(s.opts.Interval)
	})
	return nil
}

// runOnce performs one full iteration: status bookkeeping, one engine
// invocation, and the store write on a fresh outcome. No failure escapes;
// everything is absorbed into the status snapshot.
func (s *Service) runOnce(ctx context.Context) {
	s.logger.Debug().Msg("run start")
	metrics.Ticks.Inc()

	s.board.Update(func(st *scheduler.Status) {
		st.LastLoopAt = time.Now().UTC()
		st.LastEvent = "polling for data status"
	})

	result, err := s.engine.Fetch(ctx, false)
	if err != nil {
		metrics.TickErrors.Inc()
		s.logger.Error().Err(err).Msg("unexpected engine error")
		s.board.Update(func(st *scheduler.Status) {
			st.LastError = fmt.Sprintf("unexpected error: %v", err)
		})
		return
	}

	switch result.Kind {
	case freshness.KindFresh:
		s.storeFresh(ctx, result)
	case freshness.KindLoading:
		s.logger.Info().Bool("stale", result.Stale).Msg("loading")
		s.board.Update(func(st *scheduler.Status) {
			st.LastEvent = fmt.Sprintf("loading (stale=%v)", result.Stale)
		})
	case freshness.KindError:
		metrics.TickErrors.Inc()
		s.logger.Error().Err(result.Err).Bool("stale", result.Stale).Msg("freshness error")
		s.board.Update(func(st *scheduler.Status) {
			st.LastError = result.Err.Error()
			st.LastEvent = fmt.Sprintf("error (stale=%v)", result.Stale)
		})
	}

	s.logger.Debug().Msg("run complete")
}

func (s *Service) storeFresh(ctx context.Context, result freshness.Result) {
	ds := result.Status
	s.logger.Info().
		Int("remaining_percentage", ds.RemainingPercentage).
		Int("remaining_data_mb", ds.RemainingDataMB).
		Time("date_time", ds.DateTime).
		Dur("age", time.Since(ds.DateTime)).
		Msg("fresh data")

	_, inserted, err := s.store.InsertDataStatus(ctx, ds.RemainingPercentage, ds.RemainingDataMB, ds.DateTime)
	if err != nil {
		s.logger.Error().Err(err).Msg("db insert error")
		s.board.Update(func(st *scheduler.Status) {
			st.LastError = fmt.Sprintf("db insert error: %v", err)
		})
		return
	}
	if inserted {
		metrics.ObservationsInserted.Inc()
	}

	metrics.RemainingPercentage.Set(float64(ds.RemainingPercentage))
	metrics.RemainingDataMB.Set(float64(ds.RemainingDataMB))

	s.board.Update(func(st *scheduler.Status) {
		st.LastEvent = "stored fresh data"
	})
}

var _ Inserter = (*storage.Store)(nil)
