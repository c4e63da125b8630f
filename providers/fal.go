package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/krishkalaria12/snap-forge/logger"
)

const falName = "fal"

// FalVideo runs image-to-video jobs on the fal.ai queue: submit, poll the
// status until completed, read the result and download the video.
type FalVideo struct {
	apiKey   string
	baseURL  string
	endpoint string
	client   *http.Client
	log      *logger.Logger
	backoff  PollBackoff
}

func NewFalVideo(apiKey, baseURL string, timeout time.Duration, log *logger.Logger) *FalVideo {
	return &FalVideo{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		endpoint: KlingEndpoint,
		client:   newHTTPClient(timeout),
		log:      log.With("provider", falName),
	}
}

// WithPollBackoff replaces the status polling schedule.
func (f *FalVideo) WithPollBackoff(b PollBackoff) *FalVideo {
	f.backoff = b
	return f
}

func (f *FalVideo) Name() string { return "kling" }

type falQueueResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type falStatus struct {
	Status string `json:"status"`
}

type falVideoResult struct {
	Video struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"video"`
}

func (f *FalVideo) Generate(ctx context.Context, req VideoRequest) (*Result, error) {
	if req.ImageURL == "" {
		return nil, failure(falName, 0, "image url is required", nil)
	}

	var queued falQueueResponse
	if err := f.doJSON(ctx, http.MethodPost, f.baseURL+"/"+f.endpoint, KlingVideoParams(req), &queued); err != nil {
		return nil, err
	}
	if queued.RequestID == "" {
		return nil, failure(falName, 0, "no request id in submit response", nil)
	}
	statusURL, responseURL := f.requestURLs(queued)
	f.log.Info("video job submitted", "request_id", queued.RequestID)

	err := poll(ctx, falName, f.backoff, func() error {
		var st falStatus
		if err := f.doJSON(ctx, http.MethodGet, statusURL, nil, &st); err != nil {
			return err
		}
		switch strings.ToUpper(st.Status) {
		case "COMPLETED":
			return nil
		case "IN_QUEUE", "IN_PROGRESS":
			return errPending
		default:
			return failure(falName, 0, fmt.Sprintf("request %s ended with status %q", queued.RequestID, st.Status), nil)
		}
	})
	if err != nil {
		return nil, err
	}

	var result falVideoResult
	if err := f.doJSON(ctx, http.MethodGet, responseURL, nil, &result); err != nil {
		return nil, err
	}
	if result.Video.URL == "" {
		return nil, failure(falName, 0, "no video url in result", nil)
	}
	data, contentType, err := fetch(ctx, f.client, falName, result.Video.URL)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "video/") {
		contentType = "video/mp4"
	}
	return &Result{Data: data, ContentType: contentType, Format: "mp4", Model: f.endpoint}, nil
}

// requestURLs prefers the URLs returned on submit. The queue addresses a
// request by app id, the first two segments of the endpoint path.
func (f *FalVideo) requestURLs(q falQueueResponse) (string, string) {
	app := f.endpoint
	if parts := strings.SplitN(app, "/", 3); len(parts) >= 2 {
		app = parts[0] + "/" + parts[1]
	}
	base := f.baseURL + "/" + app + "/requests/" + q.RequestID
	statusURL, responseURL := q.StatusURL, q.ResponseURL
	if statusURL == "" {
		statusURL = base + "/status"
	}
	if responseURL == "" {
		responseURL = base
	}
	return statusURL, responseURL
}

func (f *FalVideo) doJSON(ctx context.Context, method, url string, body any, out any) error {
	payload := bytes.NewReader(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return failure(falName, 0, "failed to encode request", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return failure(falName, 0, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Key "+f.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := f.client.Do(req)
	if err != nil {
		return failure(falName, 0, "request failed", err)
	}
	defer res.Body.Close()
	return decodeJSON(falName, res, out)
}

var _ VideoProvider = (*FalVideo)(nil)
