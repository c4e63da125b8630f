package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/storage"
	"google.golang.org/genai"
)

const (
	geminiName       = "Gemini"
	GeminiImageModel = "gemini-2.5-flash-image-preview"
)

func injectSysPrompt(prompt string) string {
	return fmt.Sprintf(`You are an AI image generation assistant. Create detailed, visual descriptions for image generation models. Focus on:

- Clear visual elements (colors, composition, lighting, style)
- Specific artistic techniques or photographic styles when relevant
- Safe, appropriate content only
- Realistic and achievable image concepts

Transform user requests into precise, descriptive prompts that will produce high-quality images.

User request: %s`, prompt)
}

// GeminiImage generates and edits images through the Gemini API.
type GeminiImage struct {
	client *genai.Client
	model  string
	log    *logger.Logger
}

func NewGeminiImage(ctx context.Context, apiKey string, log *logger.Logger) (*GeminiImage, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiImage{client: client, model: GeminiImageModel, log: log.With("provider", geminiName)}, nil
}

func (g *GeminiImage) Name() string { return "gemini" }

func (g *GeminiImage) Generate(ctx context.Context, req ImageRequest) (*Result, error) {
	return g.call(ctx, genai.Text(injectSysPrompt(req.Prompt)))
}

// Edit sends the prompt followed by every input image as inline parts. Gemini
// has no mask input, so a mask is sent as one more image.
func (g *GeminiImage) Edit(ctx context.Context, req ImageRequest, images []Image, mask *Image) (*Result, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, img := range images {
		parts = append(parts, imagePart(img))
	}
	if mask != nil {
		parts = append(parts, imagePart(*mask))
	}
	return g.call(ctx, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)})
}

func (g *GeminiImage) call(ctx context.Context, contents []*genai.Content) (*Result, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{})
	if err != nil {
		g.log.Warn("generate content failed", "error", err)
		return nil, failure(geminiName, 0, "failed to generate image", err)
	}
	return imageFromResponse(result, g.model)
}

// imageFromResponse returns the first inline image part of the first
// candidate.
func imageFromResponse(result *genai.GenerateContentResponse, model string) (*Result, error) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil ||
		len(result.Candidates[0].Content.Parts) == 0 {
		return nil, failure(geminiName, 0, "no image content in response", nil)
	}

	for _, part := range result.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		contentType := part.InlineData.MIMEType
		if contentType == "" {
			contentType = http.DetectContentType(part.InlineData.Data)
		}
		format, ok := storage.FormatForContentType(contentType)
		if !ok {
			format = DefaultOutputFormat
			contentType = storage.ContentTypeForFormat(format)
		}
		return &Result{
			Data:        part.InlineData.Data,
			ContentType: contentType,
			Format:      format,
			Model:       model,
		}, nil
	}
	return nil, failure(geminiName, 0, "no image data found in response", nil)
}

func imagePart(img Image) *genai.Part {
	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	return genai.NewPartFromBytes(img.Data, contentType)
}

var _ ImageProvider = (*GeminiImage)(nil)
