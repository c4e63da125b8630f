// Package generation runs one provider call end to end: upload the request's
// source images, call the provider, store the output and record its lineage.
//
// A Generated asset is only written once the provider succeeded and its bytes
// are in the bucket. Any failure after the sources were stored removes them
// again, even when the client has gone away.
package generation

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/jobs"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/metrics"
	"github.com/krishkalaria12/snap-forge/models"
	"github.com/krishkalaria12/snap-forge/providers"
	"github.com/krishkalaria12/snap-forge/storage"
	"golang.org/x/sync/errgroup"
)

const (
	MaxUploadBytes = 25 << 20
	maxBatchImages = 16
	uploadTimeout  = 50 * time.Second
)

type Repository interface {
	CreateSource(ctx context.Context, ownerID uint, blob models.BlobInfo, originalFilename string) (*models.Asset, error)
	CreateGenerated(ctx context.Context, ownerID uint, blob models.BlobInfo, prompt, model string, sourceIDs []uint) (*models.Asset, error)
}

// Cleanup is the compensation side, implemented by lineage.Engine.
type Cleanup interface {
	Rollback(ctx context.Context, ownerID uint, sources []models.Asset) int
	DiscardBlob(ctx context.Context, key string)
}

// Upload is one file received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Service struct {
	repo    Repository
	blobs   storage.BlobStore
	cleanup Cleanup
	log     *logger.Logger
	metrics *metrics.Metrics

	images          map[string]providers.ImageProvider
	defaultImage    string
	video           providers.VideoProvider
	upscaler        providers.Upscaler
	filters         *providers.FilterEngine
	runner          *jobs.Runner
	providerTimeout time.Duration
}

type Option func(*Service)

// WithImageProvider registers an image provider under its Name. The first one
// registered is the default.
func WithImageProvider(p providers.ImageProvider) Option {
	return func(s *Service) {
		if s.defaultImage == "" {
			s.defaultImage = p.Name()
		}
		s.images[p.Name()] = p
	}
}

func WithVideoProvider(p providers.VideoProvider, runner *jobs.Runner) Option {
	return func(s *Service) {
		s.video = p
		s.runner = runner
	}
}

func WithUpscaler(u providers.Upscaler) Option {
	return func(s *Service) { s.upscaler = u }
}

func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) { s.providerTimeout = d }
}

func NewService(repo Repository, blobs storage.BlobStore, cleanup Cleanup, log *logger.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		blobs:           blobs,
		cleanup:         cleanup,
		log:             log.With("service", "GenerationService"),
		metrics:         m,
		images:          make(map[string]providers.ImageProvider),
		filters:         providers.NewFilterEngine(),
		providerTimeout: 90 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// call runs the provider with the sources already stored. It receives the
// request context bounded by the provider timeout.
type call func(ctx context.Context, sources []models.Asset) (*providers.Result, error)

type plan struct {
	ownerID  uint
	provider string
	prompt   string
	folder   string
	call     call
}

func (s *Service) GenerateImage(ctx context.Context, ownerID uint, providerName string, req providers.ImageRequest) (*models.Asset, error) {
	p, err := s.imageProvider(providerName)
	if err != nil {
		return nil, err
	}
	if err := requirePrompt(req.Prompt); err != nil {
		return nil, err
	}
	return s.execute(ctx, plan{
		ownerID:  ownerID,
		provider: p.Name(),
		prompt:   req.Prompt,
		folder:   storage.FolderGenerated,
		call: func(ctx context.Context, _ []models.Asset) (*providers.Result, error) {
			return p.Generate(ctx, req)
		},
	}, nil)
}

// EditImages stores every image, and the mask when present, as sources of
// the single generated result.
func (s *Service) EditImages(ctx context.Context, ownerID uint, providerName string, req providers.ImageRequest, images []Upload, mask *Upload) (*models.Asset, error) {
	p, err := s.imageProvider(providerName)
	if err != nil {
		return nil, err
	}
	if err := requirePrompt(req.Prompt); err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, apperr.Validation("at least one image is required")
	}
	if len(images) > maxBatchImages {
		return nil, apperr.Validation("too many images (max %d)", maxBatchImages)
	}

	images = append([]Upload(nil), images...)
	if err := normalizeAll(images); err != nil {
		return nil, err
	}
	uploads := append([]Upload(nil), images...)
	if mask != nil {
		m := *mask
		if err := normalizeUpload(&m); err != nil {
			return nil, err
		}
		mask = &m
		uploads = append(uploads, m)
	}
	return s.execute(ctx, plan{
		ownerID:  ownerID,
		provider: p.Name(),
		prompt:   req.Prompt,
		folder:   storage.FolderGenerated,
		call: func(ctx context.Context, _ []models.Asset) (*providers.Result, error) {
			inputs := toImages(images)
			var m *providers.Image
			if mask != nil {
				mi := toImage(*mask)
				m = &mi
			}
			return p.Edit(ctx, req, inputs, m)
		},
	}, uploads)
}

// ApplyFilters runs the local filter chain. Parameters are checked before
// anything is uploaded.
func (s *Service) ApplyFilters(ctx context.Context, ownerID uint, img Upload, params map[string]string) (*models.Asset, error) {
	if _, err := providers.ParseFilters(params); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if err := normalizeUpload(&img); err != nil {
		return nil, err
	}
	if err := providers.CheckImage(img.Data); err != nil {
		return nil, err
	}
	return s.execute(ctx, plan{
		ownerID:  ownerID,
		provider: s.filters.Name(),
		prompt:   describeFilters(params),
		folder:   storage.FolderGenerated,
		call: func(_ context.Context, _ []models.Asset) (*providers.Result, error) {
			return s.filters.Apply(img.Data, params)
		},
	}, []Upload{img})
}

func (s *Service) Upscale(ctx context.Context, ownerID uint, img Upload, req providers.UpscaleRequest) (*models.Asset, error) {
	if s.upscaler == nil {
		return nil, apperr.Validation("upscaling is not configured")
	}
	if err := normalizeUpload(&img); err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = "upscale"
	}
	return s.execute(ctx, plan{
		ownerID:  ownerID,
		provider: s.upscaler.Name(),
		prompt:   prompt,
		folder:   storage.FolderGenerated,
		call: func(ctx context.Context, _ []models.Asset) (*providers.Result, error) {
			return s.upscaler.Upscale(ctx, toImage(img), req)
		},
	}, []Upload{img})
}

// StartVideo stores the source image synchronously, then runs the video
// provider as a background job. The provider reads the image from its public
// URL.
func (s *Service) StartVideo(ctx context.Context, ownerID uint, img Upload, req providers.VideoRequest) (jobs.Job, error) {
	if s.video == nil || s.runner == nil {
		return jobs.Job{}, apperr.Validation("video generation is not configured")
	}
	if err := requirePrompt(req.Prompt); err != nil {
		return jobs.Job{}, err
	}
	sources, err := s.storeSources(ctx, ownerID, []Upload{img})
	if err != nil {
		return jobs.Job{}, err
	}

	p := plan{
		ownerID:  ownerID,
		provider: s.video.Name(),
		prompt:   req.Prompt,
		folder:   storage.FolderVideos,
		call: func(ctx context.Context, sources []models.Asset) (*providers.Result, error) {
			r := req
			r.ImageURL = sources[0].PublicURL
			return s.video.Generate(ctx, r)
		},
	}
	job, err := s.runner.Start(ctx, ownerID, func(ctx context.Context) (jobs.Outcome, error) {
		asset, err := s.complete(ctx, p, sources)
		if err != nil {
			return jobs.Outcome{}, err
		}
		return jobs.Outcome{VideoURL: asset.PublicURL, AssetID: asset.ID}, nil
	})
	if err != nil {
		s.cleanup.Rollback(ctx, ownerID, sources)
		return jobs.Job{}, err
	}
	return job, nil
}

func (s *Service) execute(ctx context.Context, p plan, uploads []Upload) (*models.Asset, error) {
	sources, err := s.storeSources(ctx, p.ownerID, uploads)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, p, sources)
}

// complete calls the provider and persists its output. Every failure rolls
// back the sources stored for this request.
func (s *Service) complete(ctx context.Context, p plan, sources []models.Asset) (*models.Asset, error) {
	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	result, err := p.call(pctx, sources)
	cancel()
	if err == nil && (result == nil || len(result.Data) == 0) {
		err = apperr.ExternalProvider(p.provider, 0, "empty payload", nil)
	}
	s.metrics.ProviderCall(p.provider, err)
	if err != nil {
		s.log.Warn("provider call failed", "provider", p.provider, "owner_id", p.ownerID, "sources", len(sources), "error", err)
		s.cleanup.Rollback(ctx, p.ownerID, sources)
		return nil, err
	}

	format := result.Format
	if format == "" {
		format = providers.DefaultOutputFormat
	}
	contentType := result.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeForFormat(format)
	}
	uctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	blob, err := s.blobs.Upload(uctx, result.Data, contentType, p.folder+"/output."+format)
	cancel()
	if err != nil {
		s.cleanup.Rollback(ctx, p.ownerID, sources)
		return nil, apperr.Internal("failed to upload generated output", err)
	}

	model := result.Model
	if model == "" {
		model = p.provider
	}
	asset, err := s.repo.CreateGenerated(ctx, p.ownerID, blob, p.prompt, model, ids(sources))
	if err != nil {
		s.log.Error("failed to record generated asset", "owner_id", p.ownerID, "key", blob.Path, "error", err)
		s.cleanup.DiscardBlob(ctx, blob.Path)
		s.cleanup.Rollback(ctx, p.ownerID, sources)
		if apperr.KindOf(err) == apperr.KindInternal {
			return nil, apperr.StorageInconsistency("failed to record generated asset", err)
		}
		return nil, err
	}

	asset.Sources = sources
	s.metrics.Generated(model)
	s.log.Info("generated asset stored", "owner_id", p.ownerID, "asset_id", asset.ID, "model", model, "sources", len(sources))
	return asset, nil
}

// storeSources uploads every file in parallel and then records one source row
// per object. On failure nothing from this call is left behind.
func (s *Service) storeSources(ctx context.Context, ownerID uint, uploads []Upload) ([]models.Asset, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if err := normalizeAll(uploads); err != nil {
		return nil, err
	}

	blobs := make([]models.BlobInfo, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, u := range uploads {
		g.Go(func() error {
			uctx, cancel := context.WithTimeout(gctx, uploadTimeout)
			defer cancel()
			info, err := s.blobs.Upload(uctx, u.Data, u.ContentType, storage.FolderSource+"/"+u.Filename)
			if err != nil {
				return fmt.Errorf("upload %s: %w", u.Filename, err)
			}
			blobs[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, b := range blobs {
			s.cleanup.DiscardBlob(ctx, b.Path)
		}
		return nil, apperr.Internal("failed to upload source image", err)
	}

	sources := make([]models.Asset, 0, len(uploads))
	for i, b := range blobs {
		asset, err := s.repo.CreateSource(ctx, ownerID, b, uploads[i].Filename)
		if err != nil {
			s.log.Error("failed to record source asset", "owner_id", ownerID, "key", b.Path, "error", err)
			for _, rest := range blobs[i:] {
				s.cleanup.DiscardBlob(ctx, rest.Path)
			}
			s.cleanup.Rollback(ctx, ownerID, sources)
			if apperr.KindOf(err) == apperr.KindInternal {
				return nil, apperr.StorageInconsistency("failed to record source asset", err)
			}
			return nil, err
		}
		sources = append(sources, *asset)
	}
	return sources, nil
}

func (s *Service) imageProvider(name string) (providers.ImageProvider, error) {
	if name == "" {
		name = s.defaultImage
	}
	p, ok := s.images[strings.ToLower(name)]
	if !ok {
		return nil, apperr.Validation("unknown provider %q", name)
	}
	return p, nil
}

func normalizeAll(uploads []Upload) error {
	for i := range uploads {
		if err := normalizeUpload(&uploads[i]); err != nil {
			return err
		}
	}
	return nil
}

// normalizeUpload checks size and type and strips any client path from the
// filename. It is idempotent.
func normalizeUpload(u *Upload) error {
	if len(u.Data) == 0 {
		return apperr.Validation("uploaded file %q is empty", u.Filename)
	}
	if len(u.Data) > MaxUploadBytes {
		return apperr.Validation("uploaded file %q is too large (max %d MB)", u.Filename, MaxUploadBytes>>20)
	}
	ct := strings.ToLower(strings.TrimSpace(u.ContentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	format, ok := storage.FormatForContentType(ct)
	if !ok || !strings.HasPrefix(ct, "image/") {
		return apperr.Validation("unsupported image type %q", u.ContentType)
	}
	u.ContentType = ct
	u.Filename = path.Base(strings.ReplaceAll(strings.TrimSpace(u.Filename), "\\", "/"))
	if u.Filename == "" || u.Filename == "." || u.Filename == "/" {
		u.Filename = "upload." + format
	}
	return nil
}

func requirePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return apperr.Validation("prompt is required")
	}
	return nil
}

func describeFilters(params map[string]string) string {
	parts := make([]string, 0, len(params))
	for k, v := range params {
		if !providers.SupportedFilter(k) {
			continue
		}
		if v == "" {
			parts = append(parts, k)
		} else {
			parts = append(parts, k+"="+v)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func toImage(u Upload) providers.Image {
	return providers.Image{Filename: u.Filename, ContentType: u.ContentType, Data: u.Data}
}

func toImages(us []Upload) []providers.Image {
	out := make([]providers.Image, 0, len(us))
	for _, u := range us {
		out = append(out, toImage(u))
	}
	return out
}

func ids(assets []models.Asset) []uint {
	out := make([]uint, 0, len(assets))
	for _, a := range assets {
		out = append(out, a.ID)
	}
	return out
}
