package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/storage"
)

const openAIName = "OpenAI"

// OpenAIImage calls the OpenAI images REST API for generation and edits.
type OpenAIImage struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func NewOpenAIImage(apiKey, baseURL string, timeout time.Duration, log *logger.Logger) *OpenAIImage {
	return &OpenAIImage{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
		log:     log.With("provider", openAIName),
	}
}

func (o *OpenAIImage) Name() string { return "openai" }

type openAIImagesResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

func (o *OpenAIImage) Generate(ctx context.Context, req ImageRequest) (*Result, error) {
	req = req.Normalized()
	body, err := json.Marshal(OpenAIImageParams(req))
	if err != nil {
		return nil, failure(openAIName, 0, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, failure(openAIName, 0, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return o.do(ctx, httpReq, req)
}

// Edit sends one or more images, and an optional mask, as multipart form data.
// A single image uses the "image" field; several use "image[]".
func (o *OpenAIImage) Edit(ctx context.Context, req ImageRequest, images []Image, mask *Image) (*Result, error) {
	if len(images) == 0 {
		return nil, failure(openAIName, 0, "at least one image is required", nil)
	}
	req = req.Normalized()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	params := OpenAIImageParams(req)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fmt.Sprint(params[k])); err != nil {
			return nil, failure(openAIName, 0, "failed to encode request", err)
		}
	}

	field := "image"
	if len(images) > 1 {
		field = "image[]"
	}
	for _, img := range images {
		if err := writeFilePart(w, field, img); err != nil {
			return nil, failure(openAIName, 0, "failed to encode request", err)
		}
	}
	if mask != nil {
		if err := writeFilePart(w, "mask", *mask); err != nil {
			return nil, failure(openAIName, 0, "failed to encode request", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, failure(openAIName, 0, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/images/edits", &buf)
	if err != nil {
		return nil, failure(openAIName, 0, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	return o.do(ctx, httpReq, req)
}

func (o *OpenAIImage) do(ctx context.Context, httpReq *http.Request, req ImageRequest) (*Result, error) {
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	res, err := o.client.Do(httpReq)
	if err != nil {
		return nil, failure(openAIName, 0, "request failed", err)
	}
	defer res.Body.Close()

	var out openAIImagesResponse
	if err := decodeJSON(openAIName, res, &out); err != nil {
		o.log.Warn("images call failed", "model", req.Model, "error", err)
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, failure(openAIName, res.StatusCode, "no image returned", nil)
	}

	var data []byte
	switch item := out.Data[0]; {
	case item.B64JSON != "":
		data, err = base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, failure(openAIName, res.StatusCode, "malformed image payload", err)
		}
	case item.URL != "":
		data, _, err = fetch(ctx, o.client, openAIName, item.URL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, failure(openAIName, res.StatusCode, "no image returned", nil)
	}
	if len(data) == 0 {
		return nil, failure(openAIName, res.StatusCode, "empty image payload", nil)
	}

	return &Result{
		Data:        data,
		ContentType: storage.ContentTypeForFormat(req.OutputFormat),
		Format:      req.OutputFormat,
		Model:       req.Model,
	}, nil
}

func writeFilePart(w *multipart.Writer, field string, img Image) error {
	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	filename := img.Filename
	if filename == "" {
		filename = "image"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(img.Data)
	return err
}

var _ ImageProvider = (*OpenAIImage)(nil)
