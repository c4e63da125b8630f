package providers

import "strings"

var compressibleFormats = map[string]bool{"jpeg": true, "webp": true}

// OpenAIImageParams builds the request fields for an images call. Fields equal
// to the provider default are left out entirely.
func OpenAIImageParams(req ImageRequest) map[string]any {
	req = req.Normalized()
	params := map[string]any{
		"model":  req.Model,
		"prompt": req.Prompt,
		"size":   req.Size,
		"n":      1,
	}
	if req.Quality != "" {
		params["quality"] = req.Quality
	}
	if req.Background != DefaultBackground {
		params["background"] = req.Background
	}
	if req.OutputFormat != DefaultOutputFormat {
		params["output_format"] = req.OutputFormat
	}
	if req.OutputCompression != nil && compressibleFormats[req.OutputFormat] {
		params["output_compression"] = *req.OutputCompression
	}
	return params
}

const (
	KlingEndpoint         = "fal-ai/kling-video/v2/master/image-to-video"
	DefaultDuration       = "5"
	DefaultAspectRatio    = "16:9"
	DefaultNegativePrompt = "blur, distort, and low quality"
	DefaultCFGScale       = 0.5
)

var (
	validDurations    = map[string]bool{"5": true, "10": true}
	validAspectRatios = map[string]bool{"16:9": true, "9:16": true, "1:1": true}
)

// VideoRequest is an image-to-video call. ImageURL must be fetchable by the
// provider, which is why the source is uploaded before submitting.
type VideoRequest struct {
	Prompt         string
	ImageURL       string
	Duration       string
	AspectRatio    string
	NegativePrompt string
	CFGScale       *float64
}

// KlingVideoParams builds the queue arguments, substituting defaults for unset
// or unsupported values.
func KlingVideoParams(req VideoRequest) map[string]any {
	duration := strings.TrimSuffix(strings.TrimSpace(req.Duration), "s")
	if !validDurations[duration] {
		duration = DefaultDuration
	}
	aspect := strings.TrimSpace(req.AspectRatio)
	if !validAspectRatios[aspect] {
		aspect = DefaultAspectRatio
	}
	negative := req.NegativePrompt
	if strings.TrimSpace(negative) == "" {
		negative = DefaultNegativePrompt
	}
	cfg := DefaultCFGScale
	if req.CFGScale != nil && *req.CFGScale >= 0 && *req.CFGScale <= 1 {
		cfg = *req.CFGScale
	}
	return map[string]any{
		"prompt":          req.Prompt,
		"image_url":       req.ImageURL,
		"duration":        duration,
		"aspect_ratio":    aspect,
		"negative_prompt": negative,
		"cfg_scale":       cfg,
	}
}

const (
	DefaultUpscaleMultiplier  = 1.5
	DefaultCreativityStrength = 5
	DefaultUpscalerStyle      = "GENERAL"
)

var upscalerStyles = map[string]bool{
	"GENERAL": true, "CINEMATIC": true, "2D ART & ILLUSTRATION": true,
	"CG ART & GAME ASSETS": true, "REALISTIC": true,
}

type UpscaleRequest struct {
	Style              string
	Prompt             string
	CreativityStrength *int
	Multiplier         *float64
}

// LeonardoUpscaleParams builds the universal upscaler body. initImageID is the
// id returned by the init-image upload.
func LeonardoUpscaleParams(req UpscaleRequest, initImageID string) map[string]any {
	style := strings.ToUpper(strings.TrimSpace(req.Style))
	if !upscalerStyles[style] {
		style = DefaultUpscalerStyle
	}
	creativity := DefaultCreativityStrength
	if req.CreativityStrength != nil && *req.CreativityStrength >= 1 && *req.CreativityStrength <= 10 {
		creativity = *req.CreativityStrength
	}
	multiplier := DefaultUpscaleMultiplier
	if req.Multiplier != nil && *req.Multiplier >= 1 && *req.Multiplier <= 2 {
		multiplier = *req.Multiplier
	}
	params := map[string]any{
		"upscalerStyle":      style,
		"creativityStrength": creativity,
		"upscaleMultiplier":  multiplier,
		"initImageId":        initImageID,
	}
	if p := strings.TrimSpace(req.Prompt); p != "" {
		params["prompt"] = p
	}
	return params
}
