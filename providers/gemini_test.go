package providers

import (
	"errors"
	"testing"

	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestImageFromResponsePicksInlineImage(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here you go"},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("png")}},
			}},
		}},
	}

	res, err := imageFromResponse(resp, GeminiImageModel)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), res.Data)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, GeminiImageModel, res.Model)
}

func TestImageFromResponseWithoutImage(t *testing.T) {
	for name, resp := range map[string]*genai.GenerateContentResponse{
		"nil":           nil,
		"no candidates": {},
		"text only": {Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "sorry"}}},
		}}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := imageFromResponse(resp, GeminiImageModel)
			assert.True(t, errors.Is(err, apperr.ErrExternalProvider))
		})
	}
}

func TestInjectSysPromptKeepsRequest(t *testing.T) {
	assert.Contains(t, injectSysPrompt("a lighthouse at dusk"), "User request: a lighthouse at dusk")
}
