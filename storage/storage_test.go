package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKeyKeepsFolderAndExtension(t *testing.T) {
	key := ObjectKey("images_source/Cat Photo.PNG")
	assert.True(t, strings.HasPrefix(key, "images_source/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
	assert.NotEqual(t, key, ObjectKey("images_source/Cat Photo.PNG"))

	assert.False(t, strings.HasPrefix(ObjectKey("/x.jpg"), "/"))
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://storage.googleapis.com/b/images_generated/a.png", PublicURL("b", "images_generated/a.png"))
}

func TestFormatContentTypeRoundTrip(t *testing.T) {
	for _, f := range []string{"png", "jpeg", "webp", "mp4"} {
		got, ok := FormatForContentType(ContentTypeForFormat(f))
		require.True(t, ok, f)
		assert.Equal(t, f, got)
	}
	_, ok := FormatForContentType("application/pdf")
	assert.False(t, ok)
}

func TestMemoryStoreDeleteSemantics(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("bucket")

	info, err := m.Upload(ctx, []byte("img"), "image/png", "images_source/a.png")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, "bucket", info.Bucket)
	assert.True(t, m.Has(info.Path))

	ok, err := m.Delete(ctx, info.Path)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Delete(ctx, info.Path)
	require.NoError(t, err)
	assert.False(t, ok, "second delete reports not found")

	m.DeleteErr["broken"] = errors.New("503")
	_, err = m.Delete(ctx, "broken")
	assert.Error(t, err)
	assert.Equal(t, []string{info.Path, info.Path, "broken"}, m.Deletes())
}

func TestMemoryStoreRejectsEmpty(t *testing.T) {
	_, err := NewMemoryStore("b").Upload(context.Background(), nil, "image/png", "x.png")
	assert.Error(t, err)
}
