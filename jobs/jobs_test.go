package jobs

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreExpires(t *testing.T) {
	s := NewMemoryStore(10, 50*time.Millisecond)
	job := NewJob(1)
	require.NoError(t, s.Put(context.Background(), job))

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	assert.Eventually(t, func() bool {
		_, err := s.Get(context.Background(), job.ID)
		return errors.Is(err, apperr.ErrNotFound)
	}, time.Second, 10*time.Millisecond)
}

func TestRunnerRecordsCompletion(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	r := NewRunner(store, logger.NewNop(), time.Second)

	release := make(chan struct{})
	job, err := r.Start(context.Background(), 4, func(ctx context.Context) (Outcome, error) {
		<-release
		return Outcome{VideoURL: "https://storage.googleapis.com/b/v.mp4", AssetID: 12}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)

	close(release)
	r.Wait()

	got, err := GetOwned(context.Background(), store, 4, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, uint(12), got.AssetID)
	assert.Equal(t, "https://storage.googleapis.com/b/v.mp4", got.VideoURL)
	assert.Empty(t, got.Error)
}

func TestRunnerSurvivesCancelledRequest(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	r := NewRunner(store, logger.NewNop(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	job, err := r.Start(ctx, 4, func(ctx context.Context) (Outcome, error) {
		return Outcome{}, apperr.ExternalProvider("fal", 500, "boom", nil)
	})
	require.NoError(t, err)
	cancel()
	r.Wait()

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "fal API error: boom", got.Error)
}

func TestRunnerHidesInternalErrors(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	r := NewRunner(store, logger.NewNop(), time.Second)

	job, err := r.Start(context.Background(), 4, func(ctx context.Context) (Outcome, error) {
		return Outcome{}, errors.New("pq: connection refused")
	})
	require.NoError(t, err)
	r.Wait()

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Internal server error", got.Error)
}

func TestGetOwnedHidesOtherUsersJobs(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	job := NewJob(1)
	require.NoError(t, store.Put(context.Background(), job))

	_, err := GetOwned(context.Background(), store, 2, job.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, addr, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	job := NewJob(9)
	job.Status = StatusCompleted
	job.VideoURL = "https://x/v.mp4"
	require.NoError(t, s.Put(ctx, job))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(9), got.OwnerID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, job.VideoURL, got.VideoURL)

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
