package cache

import (
	"context"
	"sync"
	"time"

	"posconsole/backend/internal/domain"
)

type LeaderboardCache interface {
	Get(ctx context.Context, key string) (*domain.RankedBoard, bool, error)
	Set(ctx context.Context, key string, value *domain.RankedBoard, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopLeaderboardCache struct{}

func (NoopLeaderboardCache) Get(_ context.Context, _ string) (*domain.RankedBoard, bool, error) {
	return nil, false, nil
}

func (NoopLeaderboardCache) Set(_ context.Context, _ string, _ *domain.RankedBoard, _ time.Duration) error {
	return nil
}

func (NoopLeaderboardCache) Delete(_ context.Context, _ string) error {
	return nil
}

// MemoryLeaderboardCache is the in-process LeaderboardCache used when redis is
// not configured. Boards are copied in and out so callers never share rows.
type MemoryLeaderboardCache struct {
	mu         sync.Mutex
	boards     map[string]memoryBoard
	defaultTTL time.Duration
	now        func() time.Time
}

type memoryBoard struct {
	board     domain.RankedBoard
	expiresAt time.Time
}

func NewMemoryLeaderboardCache(defaultTTL time.Duration) *MemoryLeaderboardCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &MemoryLeaderboardCache{
		boards:     make(map[string]memoryBoard),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (c *MemoryLeaderboardCache) Get(_ context.Context, key string) (*domain.RankedBoard, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.boards[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.boards, key)
		return nil, false, nil
	}
	board := copyBoard(entry.board)
	return &board, true, nil
}

func (c *MemoryLeaderboardCache) Set(_ context.Context, key string, value *domain.RankedBoard, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, entry := range c.boards {
		if !now.Before(entry.expiresAt) {
			delete(c.boards, k)
		}
	}
	c.boards[key] = memoryBoard{board: copyBoard(*value), expiresAt: now.Add(ttl)}
	return nil
}

func (c *MemoryLeaderboardCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.boards, key)
	return nil
}

func copyBoard(board domain.RankedBoard) domain.RankedBoard {
	board.Rows = append([]domain.RankedStats(nil), board.Rows...)
	return board
}

// JobStore keeps recompute job status so a caller can poll a job handle.
type JobStore interface {
	PutJob(ctx context.Context, job domain.RecomputeJob) error
	GetJob(ctx context.Context, id string) (domain.RecomputeJob, bool, error)
}

// MemoryJobStore is the in-process JobStore used when redis is not configured.
// Finished jobs are dropped after the retention window.
type MemoryJobStore struct {
	mu        sync.RWMutex
	jobs      map[string]memoryJob
	retention time.Duration
	now       func() time.Time
}

type memoryJob struct {
	job       domain.RecomputeJob
	expiresAt time.Time
}

func NewMemoryJobStore(retention time.Duration) *MemoryJobStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MemoryJobStore{
		jobs:      make(map[string]memoryJob),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryJobStore) PutJob(_ context.Context, job domain.RecomputeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, entry := range s.jobs {
		if now.After(entry.expiresAt) {
			delete(s.jobs, id)
		}
	}
	s.jobs[job.ID] = memoryJob{job: job, expiresAt: now.Add(s.retention)}
	return nil
}

func (s *MemoryJobStore) GetJob(_ context.Context, id string) (domain.RecomputeJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.jobs[id]
	if !ok || s.now().After(entry.expiresAt) {
		return domain.RecomputeJob{}, false, nil
	}
	return entry.job, true, nil
}
