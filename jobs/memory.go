package jobs

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/krishkalaria12/snap-forge/apperr"
)

const defaultMemorySize = 10_000

// MemoryStore holds jobs in process, evicting by age and by count.
type MemoryStore struct {
	cache *expirable.LRU[string, Job]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = defaultMemorySize
	}
	return &MemoryStore{cache: expirable.NewLRU[string, Job](size, nil, ttl)}
}

func (m *MemoryStore) Put(_ context.Context, job Job) error {
	m.cache.Add(job.ID, job)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	job, ok := m.cache.Get(id)
	if !ok {
		return Job{}, apperr.NotFound("request %s not found", id)
	}
	return job, nil
}

var _ Store = (*MemoryStore)(nil)
