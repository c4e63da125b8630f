package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/krishkalaria12/snap-forge/apperr"
	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "snapforge:job:"

// RedisStore shares job state between replicas. Every Put refreshes the TTL.
type RedisStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

// redisJob carries the owner, which the public JSON form of Job hides.
type redisJob struct {
	Job
	OwnerID uint `json:"owner_id"`
}

func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func (s *RedisStore) Put(ctx context.Context, job Job) error {
	raw, err := json.Marshal(redisJob{Job: job, OwnerID: job.OwnerID})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisKeyPrefix+job.ID, raw, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (Job, error) {
	raw, err := s.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Job{}, apperr.NotFound("request %s not found", id)
	}
	if err != nil {
		return Job{}, fmt.Errorf("redis get job: %w", err)
	}

	var rj redisJob
	if err := json.Unmarshal(raw, &rj); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	rj.Job.OwnerID = rj.OwnerID
	return rj.Job, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

var _ Store = (*RedisStore)(nil)
