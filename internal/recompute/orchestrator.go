package recompute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"posconsole/backend/internal/cache"
	"posconsole/backend/internal/commission"
	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
	"posconsole/backend/internal/xid"
)

const maxSaveAttempts = 5

// Invalidator drops derived read models once a period's rows change.
type Invalidator interface {
	Invalidate(ctx context.Context, storeID string, period domain.Period)
}

type Options struct {
	Workers int
	Timeout time.Duration
	Logger  *zap.Logger
}

// Orchestrator rebuilds SellerMonthlyStats from the ledger. It is the only
// writer of stats rows and the place the finalization gate is enforced.
type Orchestrator struct {
	repo        store.Repository
	ledger      store.Ledger
	jobs        cache.JobStore
	invalidator Invalidator
	logger      *zap.Logger
	workers     int
	timeout     time.Duration
	now         func() time.Time

	stopCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func New(repo store.Repository, ledger store.Ledger, jobs cache.JobStore, invalidator Invalidator, opts Options) *Orchestrator {
	if jobs == nil {
		jobs = cache.NewMemoryJobStore(0)
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	stopCtx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		repo:        repo,
		ledger:      ledger,
		jobs:        jobs,
		invalidator: invalidator,
		logger:      opts.Logger,
		workers:     opts.Workers,
		timeout:     opts.Timeout,
		now:         time.Now,
		stopCtx:     stopCtx,
		stop:        stop,
	}
}

// target is one seller's aggregates together with the stats row version
// observed before the ledger was read.
type target struct {
	seller  domain.Seller
	agg     commission.Aggregates
	version int
	err     error
}

// Run recomputes one period synchronously. A finalized period fails fast with
// store.ErrPeriodFinalized; per-seller failures are reported in the summary
// and never abort the batch.
func (o *Orchestrator) Run(ctx context.Context, req domain.RecomputeRequest) (domain.RecomputeSummary, error) {
	period, err := o.checkGate(ctx, req)
	if err != nil {
		return domain.RecomputeSummary{}, err
	}

	summary := domain.RecomputeSummary{
		StoreID:  req.StoreID,
		Period:   period,
		SellerID: req.SellerID,
		Failures: []domain.RecomputeFailure{},
	}

	rule, err := o.ruleFor(ctx, req.StoreID, period)
	if err != nil {
		return summary, fmt.Errorf("load rule in force: %w", err)
	}

	sellers, err := o.ledger.ListSellers(ctx, req.StoreID)
	if err != nil {
		return summary, fmt.Errorf("list sellers: %w", err)
	}
	if req.SellerID != "" && !containsSeller(sellers, req.SellerID) {
		return summary, fmt.Errorf("seller %s: %w", req.SellerID, store.ErrNotFound)
	}

	penalties, err := o.repo.ListSellerPenalties(ctx, req.StoreID, period, req.SellerID)
	if err != nil {
		return summary, fmt.Errorf("list seller penalties: %w", err)
	}
	penaltiesBySeller := make(map[string][]domain.SellerPenalty, len(penalties))
	for _, p := range penalties {
		penaltiesBySeller[p.SellerID] = append(penaltiesBySeller[p.SellerID], p)
	}

	// Team context is built from every seller of the store, even for a
	// single-seller run, so scores stay comparable across runs.
	targets := o.aggregate(ctx, req.StoreID, period, sellers)
	teamAggs := make([]commission.Aggregates, 0, len(targets))
	for _, t := range targets {
		if t.err == nil {
			teamAggs = append(teamAggs, t.agg)
		}
	}
	team := commission.TeamContextOf(teamAggs)

	failures := make([]*domain.RecomputeFailure, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := range targets {
		i := i
		t := targets[i]
		if req.SellerID != "" && t.seller.ID != req.SellerID {
			continue
		}
		g.Go(func() error {
			if err := o.computeOne(gctx, req.StoreID, period, t, rule, penaltiesBySeller[t.seller.ID], team); err != nil {
				failures[i] = &domain.RecomputeFailure{SellerID: t.seller.ID, Error: err.Error()}
				o.logger.Warn("seller recompute failed",
					zap.String("store_id", req.StoreID),
					zap.String("period", string(period)),
					zap.String("seller_id", t.seller.ID),
					zap.Error(err))
				return nil
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, t := range targets {
		if req.SellerID != "" && t.seller.ID != req.SellerID {
			continue
		}
		if failures[i] != nil {
			summary.Failures = append(summary.Failures, *failures[i])
			continue
		}
		summary.GeneratedCount++
	}
	summary.FailedCount = len(summary.Failures)

	if summary.GeneratedCount > 0 && o.invalidator != nil {
		o.invalidator.Invalidate(context.WithoutCancel(ctx), req.StoreID, period)
	}

	o.logger.Info("recompute finished",
		zap.String("store_id", req.StoreID),
		zap.String("period", string(period)),
		zap.String("seller_id", req.SellerID),
		zap.Int("generated", summary.GeneratedCount),
		zap.Int("failed", summary.FailedCount))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (o *Orchestrator) checkGate(ctx context.Context, req domain.RecomputeRequest) (domain.Period, error) {
	if strings.TrimSpace(req.StoreID) == "" {
		return "", fmt.Errorf("store_id is required: %w", store.ErrInvalidInput)
	}
	period, err := domain.ParsePeriod(req.Period)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, store.ErrInvalidInput)
	}

	state, err := o.repo.GetPeriodState(ctx, req.StoreID, period)
	if err != nil {
		return "", fmt.Errorf("load period state: %w", err)
	}
	if state.Status == domain.PeriodFinalized {
		return "", fmt.Errorf("%s %s: %w", req.StoreID, period, store.ErrPeriodFinalized)
	}
	return period, nil
}

// ruleFor returns the rule in force on the period's last day, or failing that
// on its first day (a rule retired mid-month).
func (o *Orchestrator) ruleFor(ctx context.Context, storeID string, period domain.Period) (*domain.ObjectiveRule, error) {
	rule, err := o.repo.FindRuleInForce(ctx, storeID, period.End())
	if err != nil || rule != nil {
		return rule, err
	}
	return o.repo.FindRuleInForce(ctx, storeID, period.Start())
}

func (o *Orchestrator) aggregate(ctx context.Context, storeID string, period domain.Period, sellers []domain.Seller) []target {
	targets := make([]target, len(sellers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, seller := range sellers {
		i, seller := i, seller
		targets[i].seller = seller
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				targets[i].err = err
				return nil
			}
			targets[i] = o.loadTarget(gctx, storeID, period, seller)
			return nil
		})
	}
	_ = g.Wait()
	return targets
}

// loadTarget reads the stored row version first and the ledger second. A
// write landing in between bumps the version, so a save built from these
// facts can never overwrite a row derived from a later ledger read.
func (o *Orchestrator) loadTarget(ctx context.Context, storeID string, period domain.Period, seller domain.Seller) target {
	t := target{seller: seller}

	existing, err := o.repo.GetSellerStats(ctx, storeID, period, seller.ID)
	switch {
	case err == nil:
		t.version = existing.Version
	case errors.Is(err, store.ErrNotFound):
	default:
		t.err = fmt.Errorf("read stats version: %w", err)
		return t
	}

	facts, err := o.ledger.SellerLedgerFacts(ctx, storeID, seller.ID, period)
	if err != nil {
		t.err = fmt.Errorf("read ledger: %w", err)
		return t
	}
	agg, err := commission.Aggregate(facts)
	if err != nil {
		t.err = err
		return t
	}
	agg.SellerName = seller.Name
	t.agg = agg
	return t
}

// computeOne saves with the version seen before the ledger read. A concurrent
// write means the facts may be stale, so the seller is reloaded and recomputed
// rather than the save blindly retried.
func (o *Orchestrator) computeOne(
	ctx context.Context,
	storeID string,
	period domain.Period,
	t target,
	rule *domain.ObjectiveRule,
	penalties []domain.SellerPenalty,
	team commission.TeamContext,
) error {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		if attempt > 0 {
			t = o.loadTarget(ctx, storeID, period, t.seller)
		}
		if t.err != nil {
			return t.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		stats := commission.Compute(commission.Input{
			StoreID:    storeID,
			Period:     period,
			Aggregates: t.agg,
			Rule:       rule,
			Penalties:  penalties,
			Team:       team,
		}, o.now())

		_, err := o.repo.SaveSellerStats(ctx, stats, t.version)
		if !errors.Is(err, store.ErrConcurrentModification) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func containsSeller(sellers []domain.Seller, id string) bool {
	for _, seller := range sellers {
		if seller.ID == id {
			return true
		}
	}
	return false
}

// Submit checks the finalization gate synchronously and then runs the
// recompute in the background. The returned job can be polled with Job.
func (o *Orchestrator) Submit(ctx context.Context, req domain.RecomputeRequest, requestedBy string) (domain.RecomputeJob, error) {
	period, err := o.checkGate(ctx, req)
	if err != nil {
		return domain.RecomputeJob{}, err
	}
	req.Period = string(period)

	job := domain.RecomputeJob{
		ID:          xid.New("recompute"),
		Status:      domain.JobPending,
		Summary:     domain.RecomputeSummary{StoreID: req.StoreID, Period: period, SellerID: req.SellerID},
		RequestedBy: requestedBy,
		CreatedAt:   o.now().UTC(),
	}
	if err := o.jobs.PutJob(ctx, job); err != nil {
		return domain.RecomputeJob{}, fmt.Errorf("store job: %w", err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runJob(job, req)
	}()
	return job, nil
}

func (o *Orchestrator) runJob(job domain.RecomputeJob, req domain.RecomputeRequest) {
	ctx, cancel := context.WithTimeout(o.stopCtx, o.timeout)
	defer cancel()

	started := o.now().UTC()
	job.Status = domain.JobRunning
	job.StartedAt = &started
	o.putJob(ctx, job)

	summary, err := o.Run(ctx, req)
	finished := o.now().UTC()
	job.FinishedAt = &finished
	job.Summary = summary
	job.Status = domain.JobCompleted
	if err != nil {
		job.Status = domain.JobFailed
		job.Error = err.Error()
		o.logger.Error("recompute job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	o.putJob(context.WithoutCancel(ctx), job)
}

func (o *Orchestrator) putJob(ctx context.Context, job domain.RecomputeJob) {
	if err := o.jobs.PutJob(ctx, job); err != nil {
		o.logger.Warn("store recompute job status", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (o *Orchestrator) Job(ctx context.Context, id string) (domain.RecomputeJob, error) {
	job, ok, err := o.jobs.GetJob(ctx, id)
	if err != nil {
		return domain.RecomputeJob{}, err
	}
	if !ok {
		return domain.RecomputeJob{}, store.ErrNotFound
	}
	return job, nil
}

// Close cancels running jobs and waits for them, bounded by ctx.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every submitted job has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
