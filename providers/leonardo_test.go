package providers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type leonardoServer struct {
	*httptest.Server
	uploadStatus int
	finalStatus  string
	polls        atomic.Int32

	mu     sync.Mutex
	params map[string]any
}

func (ls *leonardoServer) upscaleParams() map[string]any {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.params
}

func newLeonardoServer(t *testing.T) *leonardoServer {
	t.Helper()
	ls := &leonardoServer{uploadStatus: http.StatusNoContent, finalStatus: "COMPLETE"}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/init-image":
			assert.Equal(t, "Bearer leo-key", r.Header.Get("Authorization"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "png", body["extension"])
			_, _ = io.WriteString(w, `{"uploadInitImage":{"id":"init-9","url":"`+ls.URL+`/presigned","fields":"{\"key\":\"k1\",\"policy\":\"p\"}"}}`)
		case "/presigned":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "k1", r.FormValue("key"))
			assert.Len(t, r.MultipartForm.File["file"], 1)
			w.WriteHeader(ls.uploadStatus)
		case "/variations/universal-upscaler":
			var params map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
			ls.mu.Lock()
			ls.params = params
			ls.mu.Unlock()
			_, _ = io.WriteString(w, `{"universalUpscaler":{"id":"var-1"}}`)
		case "/variations/var-1":
			if ls.polls.Add(1) < 2 {
				_, _ = io.WriteString(w, `{"generated_image_variation_generic":[{"id":"var-1","status":"PENDING"}]}`)
				return
			}
			_, _ = io.WriteString(w, `{"generated_image_variation_generic":[{"id":"var-1","status":"`+ls.finalStatus+`","url":"`+ls.URL+`/result.jpg"}]}`)
		case "/result.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("bigger"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *leonardoServer) upscaler() *LeonardoUpscaler {
	return NewLeonardoUpscaler("leo-key", ls.URL, 5*time.Second, logger.NewNop()).WithPollBackoff(fastPoll(5))
}

var pngInput = Image{Filename: "in.png", ContentType: "image/png", Data: []byte("png")}

func TestLeonardoUpscaleFlow(t *testing.T) {
	ls := newLeonardoServer(t)

	res, err := ls.upscaler().Upscale(t.Context(), pngInput, UpscaleRequest{})
	require.NoError(t, err)
	assert.Equal(t, []byte("bigger"), res.Data)
	assert.Equal(t, "jpeg", res.Format)
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.Equal(t, "init-9", ls.upscaleParams()["initImageId"])
	assert.Equal(t, "GENERAL", ls.upscaleParams()["upscalerStyle"])
	assert.Equal(t, int32(2), ls.polls.Load())
}

func TestLeonardoPresignedUploadMustReturn204(t *testing.T) {
	ls := newLeonardoServer(t)
	ls.uploadStatus = http.StatusForbidden

	_, err := ls.upscaler().Upscale(t.Context(), pngInput, UpscaleRequest{})
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusForbidden, ae.Status)
	assert.Nil(t, ls.upscaleParams(), "upscaler must not start after a failed upload")
}

func TestLeonardoFailedVariation(t *testing.T) {
	ls := newLeonardoServer(t)
	ls.finalStatus = "FAILED"

	_, err := ls.upscaler().Upscale(t.Context(), pngInput, UpscaleRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrExternalProvider))
	assert.Contains(t, err.Error(), "var-1 failed")
}

func TestInitImageExtension(t *testing.T) {
	assert.Equal(t, "jpg", initImageExtension(Image{ContentType: "image/jpeg"}))
	assert.Equal(t, "webp", initImageExtension(Image{ContentType: "image/webp"}))
	assert.Equal(t, "gif", initImageExtension(Image{Filename: "x.GIF"}))
	assert.Equal(t, "jpg", initImageExtension(Image{}))
}
