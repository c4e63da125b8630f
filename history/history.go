package history

import (
	"context"
	"time"

	"github.com/krishkalaria12/snap-forge/models"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Repository interface {
	GetPaginatedHistory(ctx context.Context, ownerID uint, role models.AssetRole, page, pageSize int) ([]models.Asset, int64, error)
	GetOwned(ctx context.Context, ownerID, assetID uint) (*models.Asset, error)
}

type SourceSummary struct {
	ID               uint      `json:"id"`
	PublicURL        string    `json:"gcs_public_url"`
	OriginalFilename string    `json:"original_filename"`
	Format           string    `json:"format"`
	ContentType      string    `json:"content_type"`
	CreatedAt        time.Time `json:"created_at"`
}

type Item struct {
	ID           uint             `json:"id"`
	Role         models.AssetRole `json:"role"`
	PublicURL    string           `json:"gcs_public_url"`
	StorageKey   string           `json:"-"`
	Format       string           `json:"format"`
	ContentType  string           `json:"content_type"`
	SizeBytes    int64            `json:"size_bytes"`
	Prompt       *string          `json:"prompt"`
	Model        *string          `json:"model"`
	CreatedAt    time.Time        `json:"created_at"`
	SourceImages []SourceSummary  `json:"source_images"`
}

type Page struct {
	Items []Item `json:"items"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Pages int    `json:"pages"`
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns one 1-based page of the owner's assets. size is clamped to
// [1, MaxPageSize]; a page past the end is empty rather than an error.
func (s *Service) List(ctx context.Context, ownerID uint, role models.AssetRole, page, size int) (*Page, error) {
	page, size = Clamp(page, size)

	assets, total, err := s.repo.GetPaginatedHistory(ctx, ownerID, role, page, size)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(assets))
	for _, a := range assets {
		items = append(items, ToItem(a))
	}
	return &Page{
		Items: items,
		Total: total,
		Page:  page,
		Size:  size,
		Pages: PageCount(total, size),
	}, nil
}

func (s *Service) Get(ctx context.Context, ownerID, assetID uint) (*Item, error) {
	a, err := s.repo.GetOwned(ctx, ownerID, assetID)
	if err != nil {
		return nil, err
	}
	item := ToItem(*a)
	return &item, nil
}

func Clamp(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// PageCount is ceil(total/size), and 0 when there is nothing to show.
func PageCount(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

func ToItem(a models.Asset) Item {
	sources := make([]SourceSummary, 0, len(a.Sources))
	for _, s := range a.Sources {
		sources = append(sources, SourceSummary{
			ID:               s.ID,
			PublicURL:        s.PublicURL,
			OriginalFilename: s.OriginalFilename,
			Format:           s.Format,
			ContentType:      s.ContentType,
			CreatedAt:        s.CreatedAt,
		})
	}
	return Item{
		ID:           a.ID,
		Role:         a.Role,
		PublicURL:    a.PublicURL,
		StorageKey:   a.StorageKey,
		Format:       a.Format,
		ContentType:  a.ContentType,
		SizeBytes:    a.SizeBytes,
		Prompt:       a.Prompt,
		Model:        a.Model,
		CreatedAt:    a.CreatedAt,
		SourceImages: sources,
	}
}
