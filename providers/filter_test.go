package providers

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFilterEngineResizeKeepsPNG(t *testing.T) {
	res, err := NewFilterEngine().Apply(testPNG(t, 40, 20), map[string]string{"resize": "20x10", "grayscale": ""})
	require.NoError(t, err)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, FilterModel, res.Model)

	out, err := png.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, 20, out.Bounds().Dx())
	assert.Equal(t, 10, out.Bounds().Dy())

	r, g, b, _ := out.At(5, 5).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestFilterEngineRejectsBadInput(t *testing.T) {
	cases := map[string]struct {
		src    []byte
		params map[string]string
	}{
		"no filters":      {testPNG(t, 4, 4), map[string]string{"unknown": "1"}},
		"bad dimensions":  {testPNG(t, 4, 4), map[string]string{"resize": "big"}},
		"blur too strong": {testPNG(t, 4, 4), map[string]string{"gaussian_blur": "99"}},
		"pixelate range":  {testPNG(t, 4, 4), map[string]string{"pixelate": "51"}},
		"not an image":    {[]byte("hello"), map[string]string{"invert": ""}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewFilterEngine().Apply(tc.src, tc.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation), err.Error())
		})
	}
}

func TestFilterOrderIgnoresQueryOrder(t *testing.T) {
	src := testPNG(t, 30, 30)
	a, err := NewFilterEngine().Apply(src, map[string]string{"invert": "", "resize": "10x10", "brightness_decrease": "20"})
	require.NoError(t, err)
	b, err := NewFilterEngine().Apply(src, map[string]string{"brightness_decrease": "20", "invert": "", "resize": "10x10"})
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)

	filters, err := ParseFilters(map[string]string{"invert": "", "resize": "10x10", "brightness_decrease": "20"})
	require.NoError(t, err)
	assert.Len(t, filters, 3)
}

func TestSupportedFilter(t *testing.T) {
	assert.True(t, SupportedFilter("rotate"))
	assert.False(t, SupportedFilter("page"))
}

func TestCheckImage(t *testing.T) {
	require.NoError(t, CheckImage(testPNG(t, 4, 4)))

	for name, src := range map[string][]byte{
		"garbage":   []byte("not an image"),
		"truncated": testPNG(t, 16, 16)[:40],
		"too wide":  testPNG(t, MaxImageWidth+1, 1),
	} {
		t.Run(name, func(t *testing.T) {
			err := CheckImage(src)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "%v", err)
		})
	}
}
