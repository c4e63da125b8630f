package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/models"
	"google.golang.org/api/option"
)

type GCSStore struct {
	cl         *storage.Client
	log        *logger.Logger
	bucketName string
}

func NewGCSStore(ctx context.Context, log *logger.Logger, projectID, bucketName, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if projectID != "" {
		opts = append(opts, option.WithQuotaProject(projectID))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{
		cl:         client,
		log:        log.With("service", "GCSStore", "bucket", bucketName),
		bucketName: bucketName,
	}, nil
}

func (s *GCSStore) Bucket() string { return s.bucketName }

func (s *GCSStore) Upload(ctx context.Context, data []byte, contentType, pathHint string) (models.BlobInfo, error) {
	if len(data) == 0 {
		return models.BlobInfo{}, errors.New("refusing to upload empty object")
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second*50)
	defer cancel()

	objectPath := ObjectKey(pathHint)

	wc := s.cl.Bucket(s.bucketName).Object(objectPath).NewWriter(ctx)
	wc.ContentType = contentType
	wc.CacheControl = "public, max-age=86400"
	if _, err := io.Copy(wc, bytes.NewReader(data)); err != nil {
		_ = wc.Close()
		return models.BlobInfo{}, fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return models.BlobInfo{}, fmt.Errorf("Writer.Close: %w", err)
	}

	s.log.Debug("uploaded object", "path", objectPath, "size", len(data))
	return models.BlobInfo{
		Bucket:      s.bucketName,
		Path:        objectPath,
		PublicURL:   PublicURL(s.bucketName, objectPath),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := s.cl.Bucket(s.bucketName).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, s.bucketName, err)
	}
	return true, nil
}

// SignedURL returns a V4 GET URL for a private object.
func (s *GCSStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	}

	signedURL, err := s.cl.Bucket(s.bucketName).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return signedURL, nil
}

// MakeBucketPublic grants allUsers read access so PublicURL links resolve.
func (s *GCSStore) MakeBucketPublic(ctx context.Context) error {
	bucket := s.cl.Bucket(s.bucketName)

	policy, err := bucket.IAM().Policy(ctx)
	if err != nil {
		return err
	}
	policy.Add("allUsers", "roles/storage.objectViewer")
	if err := bucket.IAM().SetPolicy(ctx, policy); err != nil {
		return err
	}
	s.log.Info("bucket is publicly readable")
	return nil
}

func (s *GCSStore) Close() error {
	return s.cl.Close()
}

var _ BlobStore = (*GCSStore)(nil)
