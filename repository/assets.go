package repository

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/database"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/models"
	"github.com/krishkalaria12/snap-forge/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssetRepository owns the assets table and the lineage join table. Every
// mutation runs in a single transaction.
type AssetRepository struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

type Option func(*AssetRepository)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *AssetRepository) { r.now = now }
}

func NewAssetRepository(db *gorm.DB, log *logger.Logger, opts ...Option) *AssetRepository {
	r := &AssetRepository{
		db:  db,
		log: log.With("repo", "AssetRepository"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DeletionResult is what the row-level part of a generated-asset deletion
// removed. The caller owns the blob cleanup for every asset listed here.
type DeletionResult struct {
	Generated      models.Asset
	DeletedSources []models.Asset
	// RetainedSources are sources still referenced by another generated asset.
	RetainedSources []uint
}

func (r *AssetRepository) CreateSource(ctx context.Context, ownerID uint, blob models.BlobInfo, originalFilename string) (*models.Asset, error) {
	if err := checkBlob(blob); err != nil {
		return nil, err
	}

	asset := &models.Asset{
		OwnerID:          ownerID,
		Role:             models.RoleSource,
		StorageBucket:    blob.Bucket,
		StorageKey:       blob.Path,
		PublicURL:        blob.PublicURL,
		OriginalFilename: originalFilename,
		ContentType:      blob.ContentType,
		SizeBytes:        blob.Size,
		Format:           formatOf(blob, originalFilename),
		CreatedAt:        r.timestamp(),
	}
	if err := r.db.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, fmt.Errorf("insert source asset: %w", err)
	}
	return asset, nil
}

// CreateGenerated inserts a generated asset and one lineage link per source
// id. Source ownership is not checked, but every id must be a source asset.
func (r *AssetRepository) CreateGenerated(ctx context.Context, ownerID uint, blob models.BlobInfo, prompt, model string, sourceIDs []uint) (*models.Asset, error) {
	if err := checkBlob(blob); err != nil {
		return nil, err
	}
	ids := uniqueIDs(sourceIDs)

	asset := &models.Asset{
		OwnerID:          ownerID,
		Role:             models.RoleGenerated,
		StorageBucket:    blob.Bucket,
		StorageKey:       blob.Path,
		PublicURL:        blob.PublicURL,
		OriginalFilename: path.Base(blob.Path),
		ContentType:      blob.ContentType,
		SizeBytes:        blob.Size,
		Format:           formatOf(blob, ""),
		Prompt:           &prompt,
		Model:            &model,
		CreatedAt:        r.timestamp(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(ids) > 0 {
			var sources []models.Asset
			if err := lock(tx, "SHARE").
				Select("id", "role").
				Where("id IN ?", ids).
				Find(&sources).Error; err != nil {
				return err
			}
			found := make(map[uint]bool, len(sources))
			for _, s := range sources {
				if s.Role == models.RoleSource {
					found[s.ID] = true
				}
			}
			for _, id := range ids {
				if !found[id] {
					return apperr.NotFound("source asset %d not found", id)
				}
			}
		}

		if err := tx.Create(asset).Error; err != nil {
			return fmt.Errorf("insert generated asset: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		links := make([]models.LineageLink, 0, len(ids))
		for _, id := range ids {
			links = append(links, models.LineageLink{
				SourceAssetID:    id,
				GeneratedAssetID: asset.ID,
				CreatedAt:        asset.CreatedAt,
			})
		}
		if err := tx.Omit(clause.Associations).Create(&links).Error; err != nil {
			return fmt.Errorf("insert lineage links: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// GetOwned loads one asset of the owner, with sources attached for generated
// assets.
func (r *AssetRepository) GetOwned(ctx context.Context, ownerID, assetID uint) (*models.Asset, error) {
	db := r.db.WithContext(ctx)

	var asset models.Asset
	err := db.Where("id = ? AND owner_id = ?", assetID, ownerID).First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("asset %d not found", assetID)
	}
	if err != nil {
		return nil, err
	}

	if asset.Role == models.RoleGenerated {
		items := []models.Asset{asset}
		if err := attachSources(db, items); err != nil {
			return nil, err
		}
		asset = items[0]
	}
	return &asset, nil
}

// GetPaginatedHistory returns one page of the owner's assets of the given
// role, newest first with id as the tie breaker, plus the total count.
func (r *AssetRepository) GetPaginatedHistory(ctx context.Context, ownerID uint, role models.AssetRole, page, pageSize int) ([]models.Asset, int64, error) {
	if !role.Valid() {
		return nil, 0, apperr.Validation("unknown asset role %q", role)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	db := r.db.WithContext(ctx)
	scope := db.Model(&models.Asset{}).Where("owner_id = ? AND role = ?", ownerID, role)

	var total int64
	if err := scope.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	items := []models.Asset{}
	size := int64(pageSize)
	if int64(page-1) >= (total+size-1)/size {
		return items, total, nil
	}
	offset := (page - 1) * pageSize

	if err := db.Where("owner_id = ? AND role = ?", ownerID, role).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}

	if role == models.RoleGenerated {
		if err := attachSources(db, items); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

// CountReferences is the number of lineage links using the source asset.
func (r *AssetRepository) CountReferences(ctx context.Context, sourceAssetID uint) (int64, error) {
	return countReferences(r.db.WithContext(ctx), sourceAssetID)
}

// DeleteGeneratedWithSources removes a generated asset, its lineage links and
// every linked source that no other generated asset references, in one
// transaction. Blob objects are left for the caller to delete after commit.
//
// The generated row and the snapshot of its sources are locked FOR UPDATE in
// id order, so two deletions sharing a source serialize on it and only the
// last one to release a reference removes the source row.
func (r *AssetRepository) DeleteGeneratedWithSources(ctx context.Context, ownerID, assetID uint) (*DeletionResult, error) {
	result := &DeletionResult{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lock(tx, "UPDATE").
			Where("id = ? AND owner_id = ? AND role = ?", assetID, ownerID, models.RoleGenerated).
			First(&result.Generated).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("not found or no permission to delete")
		}
		if err != nil {
			return err
		}

		var sourceIDs []uint
		if err := tx.Model(&models.LineageLink{}).
			Where("generated_asset_id = ?", assetID).
			Order("source_asset_id").
			Pluck("source_asset_id", &sourceIDs).Error; err != nil {
			return fmt.Errorf("snapshot sources: %w", err)
		}

		var sources []models.Asset
		if len(sourceIDs) > 0 {
			if err := lock(tx, "UPDATE").
				Where("id IN ? AND role = ?", sourceIDs, models.RoleSource).
				Order("id").
				Find(&sources).Error; err != nil {
				return fmt.Errorf("lock sources: %w", err)
			}
		}

		if err := tx.Where("generated_asset_id = ?", assetID).Delete(&models.LineageLink{}).Error; err != nil {
			return fmt.Errorf("delete lineage links: %w", err)
		}
		if err := tx.Delete(&models.Asset{}, assetID).Error; err != nil {
			return fmt.Errorf("delete generated asset: %w", err)
		}

		for _, src := range sources {
			refs, err := countReferences(tx, src.ID)
			if err != nil {
				return err
			}
			if refs > 0 {
				result.RetainedSources = append(result.RetainedSources, src.ID)
				continue
			}
			deleted, err := deleteIfUnreferenced(tx, src.ID)
			if err != nil {
				return err
			}
			if deleted {
				result.DeletedSources = append(result.DeletedSources, src)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Debug("deleted generated asset",
		"asset_id", assetID,
		"deleted_sources", len(result.DeletedSources),
		"retained_sources", len(result.RetainedSources))
	return result, nil
}

// DeleteUnreferencedSources removes the owner's source rows among ids that no
// lineage link points at, and returns the rows it removed. It backs the
// rollback of uploads whose generation failed.
func (r *AssetRepository) DeleteUnreferencedSources(ctx context.Context, ownerID uint, ids []uint) ([]models.Asset, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var deleted []models.Asset
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sources []models.Asset
		if err := lock(tx, "UPDATE").
			Where("id IN ? AND owner_id = ? AND role = ?", ids, ownerID, models.RoleSource).
			Order("id").
			Find(&sources).Error; err != nil {
			return err
		}
		for _, src := range sources {
			ok, err := deleteIfUnreferenced(tx, src.ID)
			if err != nil {
				return err
			}
			if ok {
				deleted = append(deleted, src)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *AssetRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// lock adds a row lock on Postgres. SQLite has no row locks; it serializes
// writers on the database instead.
func lock(tx *gorm.DB, strength string) *gorm.DB {
	if database.IsPostgres(tx) {
		return tx.Clauses(clause.Locking{Strength: strength})
	}
	return tx
}

func countReferences(db *gorm.DB, sourceAssetID uint) (int64, error) {
	var n int64
	if err := db.Model(&models.LineageLink{}).
		Where("source_asset_id = ?", sourceAssetID).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}
	return n, nil
}

// deleteIfUnreferenced is a conditional delete: a row that vanished or gained
// a reference since it was read is skipped, not reported as an error.
func deleteIfUnreferenced(tx *gorm.DB, sourceAssetID uint) (bool, error) {
	res := tx.Where("id = ? AND role = ?", sourceAssetID, models.RoleSource).
		Where("NOT EXISTS (SELECT 1 FROM asset_lineages WHERE asset_lineages.source_asset_id = assets.id)").
		Delete(&models.Asset{})
	if res.Error != nil {
		return false, fmt.Errorf("delete source asset %d: %w", sourceAssetID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func attachSources(db *gorm.DB, items []models.Asset) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}

	var links []models.LineageLink
	if err := db.Where("generated_asset_id IN ?", ids).
		Order("source_asset_id").
		Find(&links).Error; err != nil {
		return fmt.Errorf("load lineage links: %w", err)
	}
	if len(links) == 0 {
		return nil
	}

	sourceIDs := make([]uint, 0, len(links))
	for _, l := range links {
		sourceIDs = append(sourceIDs, l.SourceAssetID)
	}
	var sources []models.Asset
	if err := db.Where("id IN ?", uniqueIDs(sourceIDs)).Find(&sources).Error; err != nil {
		return fmt.Errorf("load source assets: %w", err)
	}
	byID := make(map[uint]models.Asset, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}

	index := make(map[uint]int, len(items))
	for i, it := range items {
		index[it.ID] = i
		items[i].Sources = []models.Asset{}
	}
	for _, l := range links {
		src, ok := byID[l.SourceAssetID]
		if !ok {
			continue
		}
		i := index[l.GeneratedAssetID]
		items[i].Sources = append(items[i].Sources, src)
	}
	return nil
}

func checkBlob(blob models.BlobInfo) error {
	var missing []string
	if blob.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if blob.Path == "" {
		missing = append(missing, "path")
	}
	if blob.PublicURL == "" {
		missing = append(missing, "public_url")
	}
	if blob.ContentType == "" {
		missing = append(missing, "content_type")
	}
	if blob.Size <= 0 {
		missing = append(missing, "size")
	}
	if len(missing) > 0 {
		return apperr.StorageInconsistency("blob info missing "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func formatOf(blob models.BlobInfo, filename string) string {
	if f, ok := storage.FormatForContentType(blob.ContentType); ok {
		return f
	}
	for _, name := range []string{filename, blob.Path} {
		if ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), "."); ext != "" {
			return ext
		}
	}
	return "bin"
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
