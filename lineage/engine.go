// Package lineage deletes generated assets together with the sources nothing
// else uses, and rolls back sources whose generation failed.
//
// Rows are the source of truth for whether an object is referenced, so rows
// are always removed first and blobs second. A crash in between can only leave
// an object without a row, never a row without its object.
package lineage

import (
	"context"
	"time"

	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/metrics"
	"github.com/krishkalaria12/snap-forge/models"
	"github.com/krishkalaria12/snap-forge/repository"
	"github.com/krishkalaria12/snap-forge/storage"
	"golang.org/x/sync/errgroup"
)

type Repository interface {
	DeleteGeneratedWithSources(ctx context.Context, ownerID, assetID uint) (*repository.DeletionResult, error)
	DeleteUnreferencedSources(ctx context.Context, ownerID uint, ids []uint) ([]models.Asset, error)
}

type Engine struct {
	repo        Repository
	blobs       storage.BlobStore
	log         *logger.Logger
	metrics     *metrics.Metrics
	blobTimeout time.Duration
}

func NewEngine(repo Repository, blobs storage.BlobStore, log *logger.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		repo:        repo,
		blobs:       blobs,
		log:         log.With("service", "LineageEngine"),
		metrics:     m,
		blobTimeout: 30 * time.Second,
	}
}

type DeleteResult struct {
	DeletedSourceCount int `json:"deleted_source_count"`
}

// DeleteGenerated removes a generated asset owned by ownerID and garbage
// collects its unreferenced sources. Blob deletion failures are logged and
// counted but never fail the call once the rows are committed.
func (e *Engine) DeleteGenerated(ctx context.Context, ownerID, assetID uint) (DeleteResult, error) {
	res, err := e.repo.DeleteGeneratedWithSources(ctx, ownerID, assetID)
	if err != nil {
		return DeleteResult{}, err
	}

	keys := make([]string, 0, len(res.DeletedSources)+1)
	keys = append(keys, res.Generated.StorageKey)
	for _, src := range res.DeletedSources {
		keys = append(keys, src.StorageKey)
	}
	e.deleteBlobs(ctx, keys)

	e.metrics.DeletedSources(len(res.DeletedSources))
	e.log.Info("deleted generated asset",
		"owner_id", ownerID,
		"asset_id", assetID,
		"deleted_sources", len(res.DeletedSources),
		"retained_sources", len(res.RetainedSources))
	return DeleteResult{DeletedSourceCount: len(res.DeletedSources)}, nil
}

// Rollback removes sources uploaded for a request whose provider call failed.
// It keeps going when the request context was cancelled, since the client
// hanging up is exactly when orphaned uploads would otherwise be left behind.
// It returns the number of sources removed.
func (e *Engine) Rollback(ctx context.Context, ownerID uint, sources []models.Asset) int {
	if len(sources) == 0 {
		return 0
	}
	ctx = context.WithoutCancel(ctx)

	ids := make([]uint, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.ID)
	}
	deleted, err := e.repo.DeleteUnreferencedSources(ctx, ownerID, ids)
	if err != nil {
		e.log.Error("source rollback failed, uploads left in place", "owner_id", ownerID, "source_ids", ids, "error", err)
		return 0
	}

	keys := make([]string, 0, len(deleted))
	for _, s := range deleted {
		keys = append(keys, s.StorageKey)
	}
	e.deleteBlobs(ctx, keys)

	e.metrics.Rollback(len(deleted))
	e.log.Warn("rolled back source uploads", "owner_id", ownerID, "requested", len(ids), "deleted", len(deleted))
	return len(deleted)
}

// DiscardBlob deletes an object whose row insert failed.
func (e *Engine) DiscardBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	e.deleteBlobs(ctx, []string{key})
}

func (e *Engine) deleteBlobs(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(4)
	for _, key := range keys {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, e.blobTimeout)
			defer cancel()

			found, err := e.blobs.Delete(dctx, key)
			if err != nil {
				e.metrics.OrphanedBlob()
				e.log.Warn("blob delete failed, object orphaned", "key", key, "error", err)
				return nil
			}
			if !found {
				e.log.Debug("blob already absent", "key", key)
			}
			return nil
		})
	}
	_ = g.Wait()
}
