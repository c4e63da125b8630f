package models

import (
	"time"
)

type AssetRole string

const (
	RoleSource    AssetRole = "source"
	RoleGenerated AssetRole = "generated"
)

func (r AssetRole) Valid() bool {
	return r == RoleSource || r == RoleGenerated
}

// Asset is either an uploaded input (source) or a provider output
// (generated). Both roles share one table; Prompt and Model are only set for
// generated rows.
type Asset struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	OwnerID          uint      `json:"owner_id" gorm:"not null;index:idx_assets_owner_role_created,priority:1"`
	Role             AssetRole `json:"role" gorm:"type:varchar(16);not null;index:idx_assets_owner_role_created,priority:2"`
	StorageBucket    string    `json:"storage_bucket" gorm:"not null"`
	StorageKey       string    `json:"storage_key" gorm:"not null;uniqueIndex"`
	PublicURL        string    `json:"public_url" gorm:"not null"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type" gorm:"not null"`
	SizeBytes        int64     `json:"size_bytes" gorm:"not null"`
	Format           string    `json:"format" gorm:"not null"`
	Prompt           *string   `json:"prompt,omitempty" gorm:"type:text"`
	Model            *string   `json:"model,omitempty"`
	CreatedAt        time.Time `json:"created_at" gorm:"not null;index:idx_assets_owner_role_created,priority:3"`

	// Sources is filled by the repository for generated assets.
	Sources []Asset `json:"source_images,omitempty" gorm:"-"`
}

// LineageLink records that a generated asset was produced from a source
// asset. The pair is the primary key.
type LineageLink struct {
	SourceAssetID    uint      `gorm:"primaryKey;index"`
	GeneratedAssetID uint      `gorm:"primaryKey"`
	CreatedAt        time.Time `gorm:"not null"`

	Source    Asset `gorm:"foreignKey:SourceAssetID;constraint:OnDelete:RESTRICT"`
	Generated Asset `gorm:"foreignKey:GeneratedAssetID;constraint:OnDelete:RESTRICT"`
}

func (LineageLink) TableName() string {
	return "asset_lineages"
}

// BlobInfo describes an object that has already been written to the blob
// store.
type BlobInfo struct {
	Bucket      string
	Path        string
	PublicURL   string
	ContentType string
	Size        int64
}
