package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/generation"
	"github.com/krishkalaria12/snap-forge/history"
	"github.com/krishkalaria12/snap-forge/middleware"
	"github.com/krishkalaria12/snap-forge/providers"
)

type ImageParams struct {
	Provider          string `json:"provider" form:"provider" validate:"omitempty,oneof=openai gemini"`
	Prompt            string `json:"prompt" form:"prompt" validate:"required,max=4000"`
	Model             string `json:"model" form:"model" validate:"omitempty,max=64"`
	Size              string `json:"size" form:"size" validate:"omitempty,oneof=auto 256x256 512x512 1024x1024 1536x1024 1024x1536 1792x1024 1024x1792"`
	Quality           string `json:"quality" form:"quality" validate:"omitempty,oneof=auto low medium high standard hd"`
	Background        string `json:"background" form:"background" validate:"omitempty,oneof=auto transparent opaque"`
	OutputFormat      string `json:"output_format" form:"output_format" validate:"omitempty,oneof=png jpeg jpg webp"`
	OutputCompression *int   `json:"output_compression" form:"output_compression" validate:"omitempty,min=0,max=100"`
}

func (p ImageParams) request() providers.ImageRequest {
	return providers.ImageRequest{
		Model:             p.Model,
		Prompt:            p.Prompt,
		Size:              p.Size,
		Quality:           p.Quality,
		Background:        p.Background,
		OutputFormat:      p.OutputFormat,
		OutputCompression: p.OutputCompression,
	}
}

type UpscaleParams struct {
	Style              string   `form:"upscaler_style" validate:"omitempty,max=64"`
	Prompt             string   `form:"prompt" validate:"omitempty,max=1000"`
	CreativityStrength *int     `form:"creativity_strength" validate:"omitempty,min=1,max=10"`
	Multiplier         *float64 `form:"upscale_multiplier" validate:"omitempty,min=1,max=2"`
}

func (h *Handler) GenerateImage(c *fiber.Ctx) error {
	userID, err := middleware.CheckUserLoggedIn(c)
	if err != nil {
		return err
	}

	var params ImageParams
	if err := h.bind(c, &params); err != nil {
		return err
	}

	asset, err := h.gen.GenerateImage(c.UserContext(), userID, params.Provider, params.request())
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "Successfully generated image", history.ToItem(*asset))
}

// EditImage takes one "image" file and an optional "mask".
func (h *Handler) EditImage(c *fiber.Ctx) error {
	userID, err := middleware.CheckUserLoggedIn(c)
	if err != nil {
		return err
	}

	var params ImageParams
	if err := h.bind(c, &params); err != nil {
		return err
	}
	img, err := formUpload(c, "image")
	if err != nil {
		return err
	}
	var mask *generation.Upload
	if fh, err := c.FormFile("mask"); err == nil {
		m, err := readUpload(fh)
		if err != nil {
			return err
		}
		mask = &m
	}

	asset, err := h.gen.EditImages(c.UserContext(), userID, params.Provider, params.request(), []generation.Upload{img}, mask)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "Successfully edited image", history.ToItem(*asset))
}

// BatchEdit takes several files under "images" (or "images[]") and produces
// one result linked to all of them.
func (h *Handler) BatchEdit(c *fiber.Ctx) error {
	userID, err := middleware.CheckUserLoggedIn(c)
	if err != nil {
		return err
	}

	var params ImageParams
	if err := h.bind(c, &params); err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return apperr.Validation("multipart form expected")
	}
	files := append(form.File["images"], form.File["images[]"]...)
	if len(files) == 0 {
		return apperr.Validation("images is required")
	}
	uploads := make([]generation.Upload, 0, len(files))
	for _, fh := range files {
		u, err := readUpload(fh)
		if err != nil {
			return err
		}
		uploads = append(uploads, u)
	}

	asset, err := h.gen.EditImages(c.UserContext(), userID, params.Provider, params.request(), uploads, nil)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "Successfully edited images", history.ToItem(*asset))
}

// ApplyFilter reads filters from the query string, e.g.
// ?resize=800x600&grayscale=&brightness_increase=20.
func (h *Handler) ApplyFilter(c *fiber.Ctx) error {
	userID, err := middleware.CheckUserLoggedIn(c)
	if err != nil {
		return err
	}

	img, err := formUpload(c, "image")
	if err != nil {
		return err
	}

	asset, err := h.gen.ApplyFilters(c.UserContext(), userID, img, c.Queries())
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "Successfully processed image", history.ToItem(*asset))
}

func (h *Handler) UpscaleImage(c *fiber.Ctx) error {
	userID, err := middleware.CheckUserLoggedIn(c)
	if err != nil {
		return err
	}

	var params UpscaleParams
	if err := h.bind(c, &params); err != nil {
		return err
	}
	img, err := formUpload(c, "image")
	if err != nil {
		return err
	}

	asset, err := h.gen.Upscale(c.UserContext(), userID, img, providers.UpscaleRequest{
		Style:              params.Style,
		Prompt:             params.Prompt,
		CreativityStrength: params.CreativityStrength,
		Multiplier:         params.Multiplier,
	})
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "Successfully upscaled image", history.ToItem(*asset))
}

func formUpload(c *fiber.Ctx, field string) (generation.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return generation.Upload{}, apperr.Validation("%s is required", field)
	}
	return readUpload(fh)
}

func readUpload(fh *multipart.FileHeader) (generation.Upload, error) {
	if fh.Size > generation.MaxUploadBytes {
		return generation.Upload{}, apperr.Validation("uploaded file %q is too large (max %d MB)", fh.Filename, generation.MaxUploadBytes>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return generation.Upload{}, apperr.Validation("Error opening the file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, generation.MaxUploadBytes+1))
	if err != nil {
		return generation.Upload{}, apperr.Validation("Error reading the file")
	}
	contentType := fh.Header.Get(fiber.HeaderContentType)
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = http.DetectContentType(data)
	}
	return generation.Upload{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}
