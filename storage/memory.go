package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/krishkalaria12/snap-forge/models"
)

// MemoryStore is an in-process BlobStore used by tests and local runs
// without a bucket. Failures can be injected per operation.
type MemoryStore struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	deletes []string

	UploadErr error
	// DeleteErr fails deletes of the listed keys.
	DeleteErr map[string]error
}

func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:    bucket,
		objects:   make(map[string][]byte),
		DeleteErr: make(map[string]error),
	}
}

func (m *MemoryStore) Bucket() string { return m.bucket }

func (m *MemoryStore) Upload(_ context.Context, data []byte, contentType, pathHint string) (models.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UploadErr != nil {
		return models.BlobInfo{}, m.UploadErr
	}
	if len(data) == 0 {
		return models.BlobInfo{}, errors.New("refusing to upload empty object")
	}
	key := ObjectKey(pathHint)
	m.objects[key] = append([]byte(nil), data...)
	return models.BlobInfo{
		Bucket:      m.bucket,
		Path:        key,
		PublicURL:   PublicURL(m.bucket, key),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletes = append(m.deletes, key)
	if err := m.DeleteErr[key]; err != nil {
		return false, err
	}
	if _, ok := m.objects[key]; !ok {
		return false, nil
	}
	delete(m.objects, key)
	return true, nil
}

func (m *MemoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; !ok {
		return "", errors.New("object not found")
	}
	return PublicURL(m.bucket, key) + "?X-Goog-Expires=" + ttl.String(), nil
}

func (m *MemoryStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Deletes lists every key a delete was attempted for, in call order.
func (m *MemoryStore) Deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

var _ BlobStore = (*MemoryStore)(nil)
