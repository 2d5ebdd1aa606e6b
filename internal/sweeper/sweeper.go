// Package sweeper expires overdue offers on a fixed interval.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Expirer is the claim ledger operation the sweeper drives.
type Expirer interface {
	SweepExpiredOffers(ctx context.Context, limit int) (int, error)
}

type Config struct {
	Interval time.Duration
	Batch    int
	// Timeout bounds a single run.
	Timeout time.Duration
}

type Sweeper struct {
	expirer Expirer
	logger  *slog.Logger
	cfg     Config
	sched   gocron.Scheduler

	// base parents every scheduled run; Run cancels it on shutdown.
	base   context.Context
	cancel context.CancelFunc
}

func New(expirer Expirer, logger *slog.Logger, cfg Config) (*Sweeper, error) {
	const op = "sweeper.New"

	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}

	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}

	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	base, cancel := context.WithCancel(context.Background())

	s := &Sweeper{
		expirer: expirer,
		logger:  logger,
		cfg:     cfg,
		sched:   sched,
		base:    base,
		cancel:  cancel,
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.Interval),
		gocron.NewTask(func() { s.RunOnce(s.base) }),
		gocron.WithName("expire-offers"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = sched.Shutdown()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return s, nil
}

// RunOnce performs one sweep and logs its outcome.
func (s *Sweeper) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	n, err := s.expirer.SweepExpiredOffers(ctx, s.cfg.Batch)
	if err != nil {
		s.logger.Error("offer sweep failed", "expired", n, "error", err)
		return
	}

	if n > 0 {
		s.logger.Info("expired offers", "count", n, "took", time.Since(start))
	}
}

// Run starts the schedule and blocks until ctx is done. A sweep still in
// flight at that point has its context cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("offer sweeper started", "interval", s.cfg.Interval, "batch", s.cfg.Batch)
	s.sched.Start()

	<-ctx.Done()

	s.logger.Info("stopping offer sweeper")
	s.cancel()
	return s.sched.Shutdown()
}
