package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/storage"
)

const leonardoName = "Leonardo"

// LeonardoUpscaler runs the universal upscaler: register an init image, post
// the bytes to the presigned form, start the variation and poll it.
type LeonardoUpscaler struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *logger.Logger
	backoff PollBackoff
}

func NewLeonardoUpscaler(apiKey, baseURL string, timeout time.Duration, log *logger.Logger) *LeonardoUpscaler {
	return &LeonardoUpscaler{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
		log:     log.With("provider", leonardoName),
	}
}

func (l *LeonardoUpscaler) WithPollBackoff(b PollBackoff) *LeonardoUpscaler {
	l.backoff = b
	return l
}

func (l *LeonardoUpscaler) Name() string { return "leonardo-universal-upscaler" }

type leonardoInitImage struct {
	UploadInitImage struct {
		ID     string `json:"id"`
		URL    string `json:"url"`
		Fields string `json:"fields"`
	} `json:"uploadInitImage"`
}

type leonardoUpscaleJob struct {
	UniversalUpscaler struct {
		ID string `json:"id"`
	} `json:"universalUpscaler"`
}

type leonardoVariation struct {
	Variations []struct {
		ID     string `json:"id"`
		URL    string `json:"url"`
		Status string `json:"status"`
	} `json:"generated_image_variation_generic"`
}

func (l *LeonardoUpscaler) Upscale(ctx context.Context, img Image, req UpscaleRequest) (*Result, error) {
	if len(img.Data) == 0 {
		return nil, failure(leonardoName, 0, "image is empty", nil)
	}
	ext := initImageExtension(img)

	var init leonardoInitImage
	if err := l.doJSON(ctx, http.MethodPost, "/init-image", map[string]string{"extension": ext}, &init); err != nil {
		return nil, err
	}
	up := init.UploadInitImage
	if up.ID == "" || up.URL == "" {
		return nil, failure(leonardoName, 0, "incomplete init-image response", nil)
	}
	if err := l.uploadPresigned(ctx, up.URL, up.Fields, img); err != nil {
		return nil, err
	}

	var job leonardoUpscaleJob
	if err := l.doJSON(ctx, http.MethodPost, "/variations/universal-upscaler", LeonardoUpscaleParams(req, up.ID), &job); err != nil {
		return nil, err
	}
	variationID := job.UniversalUpscaler.ID
	if variationID == "" {
		return nil, failure(leonardoName, 0, "no variation id in upscale response", nil)
	}
	l.log.Info("upscale started", "variation_id", variationID, "init_image_id", up.ID)

	var resultURL string
	err := poll(ctx, leonardoName, l.backoff, func() error {
		var v leonardoVariation
		if err := l.doJSON(ctx, http.MethodGet, "/variations/"+variationID, nil, &v); err != nil {
			return err
		}
		if len(v.Variations) == 0 {
			return errPending
		}
		switch item := v.Variations[0]; strings.ToUpper(item.Status) {
		case "COMPLETE":
			if item.URL == "" {
				return failure(leonardoName, 0, "variation complete without url", nil)
			}
			resultURL = item.URL
			return nil
		case "FAILED":
			return failure(leonardoName, 0, fmt.Sprintf("variation %s failed", variationID), nil)
		default:
			return errPending
		}
	})
	if err != nil {
		return nil, err
	}

	data, contentType, err := fetch(ctx, l.client, leonardoName, resultURL)
	if err != nil {
		return nil, err
	}
	format, ok := storage.FormatForContentType(contentType)
	if !ok {
		format = strings.TrimPrefix(strings.ToLower(path.Ext(strings.SplitN(resultURL, "?", 2)[0])), ".")
		if format == "jpg" {
			format = "jpeg"
		}
		if format == "" {
			format = "jpeg"
		}
		contentType = storage.ContentTypeForFormat(format)
	}
	return &Result{Data: data, ContentType: contentType, Format: format, Model: l.Name()}, nil
}

// uploadPresigned posts the image to the storage form returned by init-image.
// fields is a JSON object encoded as a string; the store answers 204.
func (l *LeonardoUpscaler) uploadPresigned(ctx context.Context, url, fields string, img Image) error {
	form := map[string]string{}
	if fields != "" {
		if err := json.Unmarshal([]byte(fields), &form); err != nil {
			return failure(leonardoName, 0, "malformed presigned fields", err)
		}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, form[k]); err != nil {
			return failure(leonardoName, 0, "failed to encode upload", err)
		}
	}
	if err := writeFilePart(w, "file", img); err != nil {
		return failure(leonardoName, 0, "failed to encode upload", err)
	}
	if err := w.Close(); err != nil {
		return failure(leonardoName, 0, "failed to encode upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return failure(leonardoName, 0, "failed to build upload", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	res, err := l.client.Do(req)
	if err != nil {
		return failure(leonardoName, 0, "failed to upload image", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return failure(leonardoName, res.StatusCode, fmt.Sprintf("failed to upload image to Leonardo. Status: %d", res.StatusCode), nil)
	}
	return nil
}

func (l *LeonardoUpscaler) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	payload := bytes.NewReader(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return failure(leonardoName, 0, "failed to encode request", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+endpoint, payload)
	if err != nil {
		return failure(leonardoName, 0, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+l.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := l.client.Do(req)
	if err != nil {
		return failure(leonardoName, 0, "request failed", err)
	}
	defer res.Body.Close()
	return decodeJSON(leonardoName, res, out)
}

func initImageExtension(img Image) string {
	if format, ok := storage.FormatForContentType(img.ContentType); ok {
		if format == "jpeg" {
			return "jpg"
		}
		return format
	}
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(img.Filename)), "."); ext != "" {
		return ext
	}
	return "jpg"
}

var _ Upscaler = (*LeonardoUpscaler)(nil)
