// Package sweeper periodically deletes rooms that have outlived the expiry window.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/handfill/internal/rooms"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Parallelism bounds concurrent delete transactions in one sweep.
const Parallelism = 4

type Sweeper struct {
	rooms    *rooms.Client
	logger   *zap.Logger
	interval time.Duration
	sched    gocron.Scheduler
}

// New builds a stopped sweeper. clock drives the schedule only; expiry is judged by the rooms client.
func New(rc *rooms.Client, clock clockwork.Clock, logger *zap.Logger, interval time.Duration) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	return &Sweeper{rooms: rc, logger: logger, interval: interval, sched: sched}, nil
}

// Start schedules Sweep every interval until Stop. ctx bounds each run.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("sweep failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.sched.Start()
	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Sweeper) Stop() error {
	return s.sched.Shutdown()
}

// Sweep runs one pass over every room and returns how many were deleted. A failure on one
// room does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	codes, err := s.rooms.Codes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rooms: %w", err)
	}

	var (
		deleted atomic.Int32
		mu      sync.Mutex
		errs    error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Parallelism)
	for _, code := range codes {
		g.Go(func() error {
			ok, err := s.rooms.DeleteExpiredRoom(gctx, code)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("sweep %s: %w", code, err))
				mu.Unlock()
				return nil
			}
			if ok {
				deleted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(deleted.Load())
	if n > 0 {
		s.logger.Info("expired rooms deleted", zap.Int("count", n), zap.Int("scanned", len(codes)))
	}
	return n, errs
}
