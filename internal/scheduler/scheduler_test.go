package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
)

type staticStores []string

func (s staticStores) ListStores(context.Context) ([]string, error) {
	return s, nil
}

type fakeRunner struct {
	mu        sync.Mutex
	requests  []domain.RecomputeRequest
	finalized map[string]bool
	broken    map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, req domain.RecomputeRequest) (domain.RecomputeSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.finalized[req.StoreID] {
		return domain.RecomputeSummary{}, store.ErrPeriodFinalized
	}
	if f.broken[req.StoreID] {
		return domain.RecomputeSummary{}, errors.New("ledger offline")
	}
	return domain.RecomputeSummary{StoreID: req.StoreID, Period: domain.Period(req.Period), GeneratedCount: 3}, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func TestRunOnceRecomputesCurrentPeriodPerStore(t *testing.T) {
	runner := &fakeRunner{
		finalized: map[string]bool{"closed": true},
		broken:    map[string]bool{"flaky": true},
	}
	s, err := New("@every 1h", staticStores{"shop", "closed", "flaky", "annex"}, runner, Options{Now: fixedNow})
	require.NoError(t, err)

	done := s.RunOnce(context.Background())

	assert.Equal(t, 2, done)
	require.Len(t, runner.requests, 4)
	for _, req := range runner.requests {
		assert.Equal(t, "2026-03", req.Period)
		assert.Empty(t, req.SellerID)
	}
}

func TestRunOnceStopsWhenCancelled(t *testing.T) {
	runner := &fakeRunner{}
	s, err := New("*/5 * * * *", staticStores{"a", "b"}, runner, Options{Now: fixedNow})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 0, s.RunOnce(ctx))
	assert.Empty(t, runner.requests)
}

func TestNewRejectsBadSchedules(t *testing.T) {
	_, err := New("", staticStores{}, &fakeRunner{}, Options{})
	assert.Error(t, err)

	_, err = New("every tuesday", staticStores{}, &fakeRunner{}, Options{})
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	s, err := New("@every 1h", staticStores{}, &fakeRunner{}, Options{})
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Error(t, s.stopCtx.Err())
}
