package providers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPoll(maxRetries uint64) PollBackoff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), maxRetries)
	}
}

func TestFalVideoSubmitPollFetch(t *testing.T) {
	var polls atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/" + KlingEndpoint:
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Key fal-key", r.Header.Get("Authorization"))
			var args map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
			assert.Equal(t, "https://bucket/src.png", args["image_url"])
			assert.Equal(t, "5", args["duration"])
			_, _ = io.WriteString(w, `{"request_id":"req-1"}`)
		case "/fal-ai/kling-video/requests/req-1/status":
			if polls.Add(1) < 3 {
				_, _ = io.WriteString(w, `{"status":"IN_PROGRESS"}`)
				return
			}
			_, _ = io.WriteString(w, `{"status":"COMPLETED"}`)
		case "/fal-ai/kling-video/requests/req-1":
			_, _ = io.WriteString(w, `{"video":{"url":"`+srv.URL+`/out.mp4"}}`)
		case "/out.mp4":
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("mp4bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	f := NewFalVideo("fal-key", srv.URL, 5*time.Second, logger.NewNop()).WithPollBackoff(fastPoll(10))
	res, err := f.Generate(t.Context(), VideoRequest{Prompt: "waves", ImageURL: "https://bucket/src.png"})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4bytes"), res.Data)
	assert.Equal(t, "mp4", res.Format)
	assert.Equal(t, "video/mp4", res.ContentType)
	assert.Equal(t, int32(3), polls.Load())
}

func TestFalVideoFailures(t *testing.T) {
	cases := map[string]struct {
		handler http.HandlerFunc
		msg     string
	}{
		"submit rejected": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = io.WriteString(w, `{"detail":"image_url is invalid"}`)
			},
			msg: "fal API error: image_url is invalid",
		},
		"never completes": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPost {
					_, _ = io.WriteString(w, `{"request_id":"r"}`)
					return
				}
				_, _ = io.WriteString(w, `{"status":"IN_QUEUE"}`)
			},
			msg: "fal API error: timed out waiting for result",
		},
		"missing video url": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				switch {
				case r.Method == http.MethodPost:
					_, _ = io.WriteString(w, `{"request_id":"r"}`)
				case r.URL.Path == "/fal-ai/kling-video/requests/r/status":
					_, _ = io.WriteString(w, `{"status":"COMPLETED"}`)
				default:
					_, _ = io.WriteString(w, `{"video":{}}`)
				}
			},
			msg: "fal API error: no video url in result",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			t.Cleanup(srv.Close)

			f := NewFalVideo("k", srv.URL, 5*time.Second, logger.NewNop()).WithPollBackoff(fastPoll(2))
			_, err := f.Generate(t.Context(), VideoRequest{Prompt: "p", ImageURL: "https://x/y.png"})
			require.Error(t, err)
			var ae *apperr.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, apperr.KindExternalProvider, ae.Kind)
			assert.Equal(t, tc.msg, ae.Message)
		})
	}
}

func TestFalVideoUsesReturnedURLs(t *testing.T) {
	f := NewFalVideo("k", "https://queue.fal.run", time.Second, logger.NewNop())
	s, r := f.requestURLs(falQueueResponse{RequestID: "abc", StatusURL: "https://q/s", ResponseURL: "https://q/r"})
	assert.Equal(t, "https://q/s", s)
	assert.Equal(t, "https://q/r", r)

	s, r = f.requestURLs(falQueueResponse{RequestID: "abc"})
	assert.Equal(t, "https://queue.fal.run/fal-ai/kling-video/requests/abc/status", s)
	assert.Equal(t, "https://queue.fal.run/fal-ai/kling-video/requests/abc", r)
}
