package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"posconsole/backend/internal/domain"
)

// RedisCache serves both the leaderboard cache and the recompute job store
// from one client.
type RedisCache struct {
	client       *redis.Client
	jobRetention time.Duration
}

func NewRedisCache(addr string, password string, db int) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCache{client: client, jobRetention: 24 * time.Hour}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string) (*domain.RankedBoard, bool, error) {
	var board domain.RankedBoard
	ok, err := c.getJSON(ctx, key, &board)
	if err != nil || !ok {
		return nil, false, err
	}
	return &board, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value *domain.RankedBoard, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	return c.setJSON(ctx, key, value, ttl)
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) PutJob(ctx context.Context, job domain.RecomputeJob) error {
	return c.setJSON(ctx, jobKey(job.ID), job, c.jobRetention)
}

func (c *RedisCache) GetJob(ctx context.Context, id string) (domain.RecomputeJob, bool, error) {
	var job domain.RecomputeJob
	ok, err := c.getJSON(ctx, jobKey(id), &job)
	if err != nil || !ok {
		return domain.RecomputeJob{}, false, err
	}
	return job, true, nil
}

func (c *RedisCache) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func jobKey(id string) string {
	return "posconsole:recompute-job:" + id
}
