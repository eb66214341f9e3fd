package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
)

type Recomputer interface {
	Run(ctx context.Context, req domain.RecomputeRequest) (domain.RecomputeSummary, error)
}

type StoreLister interface {
	ListStores(ctx context.Context) ([]string, error)
}

type Options struct {
	Timeout time.Duration
	Logger  *zap.Logger
	Now     func() time.Time
}

// Scheduler periodically recomputes the current period of every store in the
// ledger. Finalized periods are skipped.
type Scheduler struct {
	cron     *cron.Cron
	stores   StoreLister
	runner   Recomputer
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
	stopCtx  context.Context
	stopFunc context.CancelFunc
}

// New parses spec as a standard five-field cron expression (descriptors such
// as "@every 15m" are accepted too).
func New(spec string, stores StoreLister, runner Recomputer, opts Options) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty recompute schedule")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	stopCtx, stopFunc := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		stores:   stores,
		runner:   runner,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		now:      opts.Now,
		stopCtx:  stopCtx,
		stopFunc: stopFunc,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(s.stopCtx) }); err != nil {
		stopFunc()
		return nil, fmt.Errorf("parse recompute schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("recompute scheduler started", zap.Int("entries", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop cancels an in-flight run and waits for it until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stopFunc()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("recompute scheduler stopped")
}

// RunOnce recomputes the current period for each store and reports how many
// stores were recomputed.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	period := domain.PeriodOf(s.now())
	stores, err := s.stores.ListStores(ctx)
	if err != nil {
		s.logger.Error("list ledger stores", zap.Error(err))
		return 0
	}

	done := 0
	for _, storeID := range stores {
		if ctx.Err() != nil {
			break
		}
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		summary, err := s.runner.Run(runCtx, domain.RecomputeRequest{StoreID: storeID, Period: string(period)})
		cancel()

		fields := []zap.Field{zap.String("store_id", storeID), zap.String("period", string(period))}
		switch {
		case errors.Is(err, store.ErrPeriodFinalized):
			s.logger.Info("scheduled recompute skipped, period finalized", fields...)
		case err != nil:
			s.logger.Error("scheduled recompute failed", append(fields, zap.Error(err))...)
		default:
			done++
			s.logger.Info("scheduled recompute done", append(fields,
				zap.Int("generated", summary.GeneratedCount),
				zap.Int("failed", summary.FailedCount))...)
		}
	}
	return done
}
