package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/krishkalaria12/snap-forge/database/dbtest"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/models"
	"github.com/krishkalaria12/snap-forge/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner uint = 2

func seed(t *testing.T, n int) (*Service, *repository.AssetRepository) {
	t.Helper()
	repo := repository.NewAssetRepository(dbtest.New(t), logger.NewNop())
	ctx := context.Background()
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("images_generated/%d.png", i)
		blob := models.BlobInfo{Bucket: "b", Path: key, PublicURL: "https://storage.googleapis.com/b/" + key, ContentType: "image/png", Size: 10}
		_, err := repo.CreateGenerated(ctx, owner, blob, "p", "m", nil)
		require.NoError(t, err)
	}
	return NewService(repo), repo
}

func TestClamp(t *testing.T) {
	cases := []struct{ page, size, wantPage, wantSize int }{
		{0, 0, 1, 1},
		{-3, 10, 1, 10},
		{2, 500, 2, 100},
		{5, 100, 5, 100},
	}
	for _, c := range cases {
		p, s := Clamp(c.page, c.size)
		assert.Equal(t, c.wantPage, p)
		assert.Equal(t, c.wantSize, s)
	}
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, 0, PageCount(0, 10))
	assert.Equal(t, 1, PageCount(1, 10))
	assert.Equal(t, 1, PageCount(10, 10))
	assert.Equal(t, 3, PageCount(25, 10))
}

func TestListEmpty(t *testing.T) {
	svc, _ := seed(t, 0)
	page, err := svc.List(context.Background(), owner, models.RoleGenerated, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
	assert.Equal(t, 0, page.Pages)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestListPagesAreDisjoint(t *testing.T) {
	svc, _ := seed(t, 25)
	ctx := context.Background()

	seen := map[uint]bool{}
	for p := 1; p <= 3; p++ {
		page, err := svc.List(ctx, owner, models.RoleGenerated, p, 10)
		require.NoError(t, err)
		assert.Equal(t, 3, page.Pages)
		assert.Equal(t, int64(25), page.Total)
		for _, it := range page.Items {
			assert.False(t, seen[it.ID], "item %d on two pages", it.ID)
			seen[it.ID] = true
		}
	}
	assert.Len(t, seen, 25)

	past, err := svc.List(ctx, owner, models.RoleGenerated, 9, 10)
	require.NoError(t, err)
	assert.Empty(t, past.Items)
	assert.Equal(t, 9, past.Page)
}

func TestListClampsSize(t *testing.T) {
	svc, _ := seed(t, 3)
	page, err := svc.List(context.Background(), owner, models.RoleGenerated, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, MaxPageSize, page.Size)
	assert.Len(t, page.Items, 3)
}

func TestItemCarriesSources(t *testing.T) {
	repo := repository.NewAssetRepository(dbtest.New(t), logger.NewNop())
	ctx := context.Background()
	src, err := repo.CreateSource(ctx, owner, models.BlobInfo{Bucket: "b", Path: "images_source/a.png", PublicURL: "https://storage.googleapis.com/b/images_source/a.png", ContentType: "image/png", Size: 3}, "a.png")
	require.NoError(t, err)
	gen, err := repo.CreateGenerated(ctx, owner, models.BlobInfo{Bucket: "b", Path: "images_generated/o.png", PublicURL: "https://storage.googleapis.com/b/images_generated/o.png", ContentType: "image/png", Size: 3}, "p", "m", []uint{src.ID})
	require.NoError(t, err)

	item, err := NewService(repo).Get(ctx, owner, gen.ID)
	require.NoError(t, err)
	require.Len(t, item.SourceImages, 1)
	assert.Equal(t, "a.png", item.SourceImages[0].OriginalFilename)
	assert.Equal(t, src.PublicURL, item.SourceImages[0].PublicURL)
}
