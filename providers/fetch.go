package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxFetchBytes = 200 << 20

// fetch downloads a provider-hosted result. Providers that answer with a URL
// instead of inline bytes are resolved here before returning to the caller.
func fetch(ctx context.Context, client *http.Client, provider, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", failure(provider, 0, "invalid result url", err)
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, "", failure(provider, 0, "failed to download result", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, "", failure(provider, res.StatusCode, fmt.Sprintf("failed to download result: status %d", res.StatusCode), nil)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxFetchBytes+1))
	if err != nil {
		return nil, "", failure(provider, res.StatusCode, "failed to download result", err)
	}
	if len(data) > maxFetchBytes {
		return nil, "", failure(provider, res.StatusCode, "result too large", nil)
	}
	if len(data) == 0 {
		return nil, "", failure(provider, res.StatusCode, "empty result", nil)
	}
	contentType := res.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return data, contentType, nil
}
