package storage

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/krishkalaria12/snap-forge/models"
)

const (
	FolderSource    = "images_source"
	FolderGenerated = "images_generated"
	FolderVideos    = "videos_generated"
)

// BlobStore is the object store contract the asset pipeline relies on.
// Delete reports false when the object did not exist, which callers treat as
// success.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, contentType, pathHint string) (models.BlobInfo, error)
	Delete(ctx context.Context, key string) (bool, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Bucket() string
}

// ObjectKey turns a hint such as "images_source/cat.png" into a unique key in
// the same folder that keeps the hint's extension.
func ObjectKey(pathHint string) string {
	hint := strings.TrimLeft(strings.TrimSpace(pathHint), "/")
	dir, file := path.Split(hint)
	ext := strings.ToLower(path.Ext(file))
	if i := strings.Index(ext, "?"); i >= 0 {
		ext = ext[:i]
	}
	return dir + uuid.NewString() + ext
}

func PublicURL(bucket, key string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + key
}

// ContentTypeForFormat maps an output format to the MIME type stored with the
// object.
func ContentTypeForFormat(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

// FormatForContentType is the inverse of ContentTypeForFormat for the types
// the service accepts as uploads.
func FormatForContentType(contentType string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return "png", true
	case "image/jpeg", "image/jpg":
		return "jpeg", true
	case "image/webp":
		return "webp", true
	case "video/mp4":
		return "mp4", true
	default:
		return "", false
	}
}
