// Package providers shapes requests to the image, video and upscale providers
// and turns their responses into raw bytes. Every failure leaves this package
// as an *apperr.Error of kind ExternalProvider.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/krishkalaria12/snap-forge/apperr"
)

const (
	DefaultImageModel   = "gpt-image-1"
	DefaultSize         = "1024x1024"
	DefaultQuality      = "auto"
	DefaultBackground   = "auto"
	DefaultOutputFormat = "png"

	maxErrorBody = 1 << 12
)

// ImageRequest is the provider independent description of one image call.
type ImageRequest struct {
	Model             string
	Prompt            string
	Size              string
	Quality           string
	Background        string
	OutputFormat      string
	OutputCompression *int
}

// Normalized fills unset fields with the service defaults.
func (r ImageRequest) Normalized() ImageRequest {
	if r.Model == "" {
		r.Model = DefaultImageModel
	}
	if r.Size == "" {
		r.Size = DefaultSize
	}
	if r.Quality == "" {
		r.Quality = DefaultQuality
	}
	if r.Background == "" {
		r.Background = DefaultBackground
	}
	r.OutputFormat = strings.ToLower(r.OutputFormat)
	if r.OutputFormat == "" {
		r.OutputFormat = DefaultOutputFormat
	}
	if r.OutputFormat == "jpg" {
		r.OutputFormat = "jpeg"
	}
	return r
}

// Image is an input file handed to a provider.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Result is a provider's output, always as bytes.
type Result struct {
	Data        []byte
	ContentType string
	Format      string
	Model       string
}

type ImageProvider interface {
	Name() string
	Generate(ctx context.Context, req ImageRequest) (*Result, error)
	Edit(ctx context.Context, req ImageRequest, images []Image, mask *Image) (*Result, error)
}

type VideoProvider interface {
	Name() string
	Generate(ctx context.Context, req VideoRequest) (*Result, error)
}

type Upscaler interface {
	Name() string
	Upscale(ctx context.Context, img Image, req UpscaleRequest) (*Result, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// failure wraps err as an ExternalProvider error unless it already is one.
func failure(provider string, status int, message string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.KindExternalProvider {
		return ae
	}
	if message == "" && err != nil {
		message = err.Error()
	}
	return apperr.ExternalProvider(provider, status, message, err)
}

// statusError reads the provider's error body and reduces it to one message.
// It understands {"error":{"message":...}}, {"error":"..."}, {"detail":...}
// and falls back to the raw text.
func statusError(provider string, res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))

	var payload struct {
		Error  json.RawMessage `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		var nested struct {
			Message string `json:"message"`
		}
		var plain string
		switch {
		case json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "":
			msg = nested.Message
		case json.Unmarshal(payload.Error, &plain) == nil && plain != "":
			msg = plain
		case json.Unmarshal(payload.Detail, &plain) == nil && plain != "":
			msg = plain
		case len(payload.Detail) > 0 && string(payload.Detail) != "null":
			msg = string(payload.Detail)
		}
	}
	if msg == "" {
		msg = http.StatusText(res.StatusCode)
	}
	return apperr.ExternalProvider(provider, res.StatusCode, msg, nil)
}

// decodeJSON reads a 2xx JSON body into out, or turns anything else into a
// provider error.
func decodeJSON(provider string, res *http.Response, out any) error {
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return statusError(provider, res)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return failure(provider, res.StatusCode, "malformed response", fmt.Errorf("decode response: %w", err))
	}
	return nil
}
