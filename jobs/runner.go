package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/logger"
)

// Outcome is what a finished job reports back to the client.
type Outcome struct {
	VideoURL string
	AssetID  uint
}

type Work func(ctx context.Context) (Outcome, error)

// Runner executes work in the background and records its progress in a Store.
// Work outlives the request that started it but is bounded by timeout.
type Runner struct {
	store   Store
	log     *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRunner(store Store, log *logger.Logger, timeout time.Duration) *Runner {
	return &Runner{store: store, log: log.With("service", "JobRunner"), timeout: timeout}
}

// Start stores a pending job for ownerID and runs work asynchronously.
func (r *Runner) Start(ctx context.Context, ownerID uint, work Work) (Job, error) {
	job := NewJob(ownerID)
	if err := r.store.Put(ctx, job); err != nil {
		return Job{}, apperr.Internal("failed to record job", err)
	}

	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(bg, job, work)
	}()
	return job, nil
}

// Wait blocks until every started job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, job Job, work Work) {
	job = r.update(ctx, job, func(j *Job) { j.Status = StatusProcessing })

	wctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := work(wctx)
	if err != nil {
		r.log.Error("job failed", "request_id", job.ID, "owner_id", job.OwnerID, "error", err)
		r.update(ctx, job, func(j *Job) {
			j.Status = StatusFailed
			j.Error = apperr.PublicMessage(err)
		})
		return
	}
	r.update(ctx, job, func(j *Job) {
		j.Status = StatusCompleted
		j.VideoURL = out.VideoURL
		j.AssetID = out.AssetID
	})
	r.log.Info("job completed", "request_id", job.ID, "asset_id", out.AssetID)
}

func (r *Runner) update(ctx context.Context, job Job, mutate func(*Job)) Job {
	mutate(&job)
	job.UpdatedAt = time.Now().UTC()
	if err := r.store.Put(ctx, job); err != nil {
		r.log.Warn("failed to store job status", "request_id", job.ID, "status", job.Status, "error", err)
	}
	return job
}

// GetOwned returns the job only if ownerID started it.
func GetOwned(ctx context.Context, store Store, ownerID uint, id string) (Job, error) {
	job, err := store.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.OwnerID != ownerID {
		return Job{}, apperr.NotFound("request %s not found", id)
	}
	return job, nil
}
