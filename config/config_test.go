package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/snap")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GSC_BUCKET_NAME", "bucket")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "bucket", s.GCSBucketName)
	assert.Equal(t, 8*24*time.Hour, s.TokenTTL)
	assert.Equal(t, 90*time.Second, s.ProviderTimeout)
	assert.Equal(t, "https://api.openai.com/v1", s.OpenAIBaseURL)
	assert.False(t, s.GCSMakePublic)
}

func TestLoadMakePublicFlag(t *testing.T) {
	setRequired(t)
	t.Setenv("GCS_MAKE_PUBLIC", "true")

	s, err := Load()
	require.NoError(t, err)
	assert.True(t, s.GCSMakePublic)

	t.Setenv("GCS_MAKE_PUBLIC", "sometimes")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GCS_MAKE_PUBLIC")
}

func TestLoadReportsAllMissing(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("GSC_BUCKET_NAME", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "GSC_BUCKET_NAME")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROVIDER_TIMEOUT_SECONDS")
}
