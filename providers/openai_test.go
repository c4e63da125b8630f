package providers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAI(t *testing.T, h http.HandlerFunc) *OpenAIImage {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewOpenAIImage("sk-test", srv.URL+"/v1", 5*time.Second, logger.NewNop())
}

func TestOpenAIGenerateInlineBytes(t *testing.T) {
	var got map[string]any
	o := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"data":[{"b64_json":"`+base64.StdEncoding.EncodeToString([]byte("jpegbytes"))+`"}]}`)
	})

	res, err := o.Generate(t.Context(), ImageRequest{Prompt: "cat", OutputFormat: "jpeg", OutputCompression: intPtr(70)})
	require.NoError(t, err)
	assert.Equal(t, []byte("jpegbytes"), res.Data)
	assert.Equal(t, "jpeg", res.Format)
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.Equal(t, "gpt-image-1", res.Model)
	assert.Equal(t, float64(70), got["output_compression"])
	assert.Equal(t, "jpeg", got["output_format"])
}

func TestOpenAIGenerateFetchesURL(t *testing.T) {
	var base string
	o := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/result.png" {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("pngbytes"))
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"url":"`+base+`/result.png"}]}`)
	})
	base = o.baseURL[:len(o.baseURL)-len("/v1")]

	res, err := o.Generate(t.Context(), ImageRequest{Prompt: "cat"})
	require.NoError(t, err)
	assert.Equal(t, []byte("pngbytes"), res.Data)
	assert.Equal(t, "png", res.Format)
}

func TestOpenAIErrorsBecomeProviderErrors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		msg    string
	}{
		"api error": {http.StatusBadRequest, `{"error":{"message":"Invalid size"}}`, "OpenAI API error: Invalid size"},
		"empty data": {http.StatusOK, `{"data":[]}`, "OpenAI API error: no image returned"},
		"bad base64": {http.StatusOK, `{"data":[{"b64_json":"***"}]}`, "OpenAI API error: malformed image payload"},
		"not json": {http.StatusOK, `<html>`, "OpenAI API error: malformed response"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			o := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := o.Generate(t.Context(), ImageRequest{Prompt: "cat"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrExternalProvider))

			var ae *apperr.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tc.msg, ae.Message)
			assert.Equal(t, tc.status, ae.Status)
		})
	}
}

func TestOpenAIEditMultipart(t *testing.T) {
	o := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/edits", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "make it blue", r.FormValue("prompt"))
		assert.Equal(t, "1", r.FormValue("n"))
		assert.Len(t, r.MultipartForm.File["image"], 1)
		assert.Len(t, r.MultipartForm.File["mask"], 1)
		_, _ = io.WriteString(w, `{"data":[{"b64_json":"`+base64.StdEncoding.EncodeToString([]byte("out"))+`"}]}`)
	})

	img := Image{Filename: "a.png", ContentType: "image/png", Data: []byte("a")}
	mask := Image{Filename: "m.png", ContentType: "image/png", Data: []byte("m")}
	res, err := o.Edit(t.Context(), ImageRequest{Prompt: "make it blue"}, []Image{img}, &mask)
	require.NoError(t, err)
	assert.Equal(t, []byte("out"), res.Data)
}

func TestOpenAIBatchEditUsesArrayField(t *testing.T) {
	o := newOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Len(t, r.MultipartForm.File["image[]"], 3)
		assert.Empty(t, r.MultipartForm.File["mask"])
		_, _ = io.WriteString(w, `{"data":[{"b64_json":"`+base64.StdEncoding.EncodeToString([]byte("out"))+`"}]}`)
	})

	imgs := []Image{
		{Filename: "a.png", Data: []byte("a")},
		{Filename: "b.png", Data: []byte("b")},
		{Filename: "c.png", Data: []byte("c")},
	}
	_, err := o.Edit(t.Context(), ImageRequest{Prompt: "merge"}, imgs, nil)
	require.NoError(t, err)
}

func TestOpenAIEditRequiresImage(t *testing.T) {
	o := NewOpenAIImage("k", "http://127.0.0.1:0", time.Second, logger.NewNop())
	_, err := o.Edit(t.Context(), ImageRequest{Prompt: "x"}, nil, nil)
	assert.True(t, errors.Is(err, apperr.ErrExternalProvider))
}
