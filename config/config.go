package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var loadOnce sync.Once

// loadEnv reads .env once. A missing file is fine: the process environment is
// the source of truth in containers.
func loadEnv() {
	loadOnce.Do(func() {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	})
}

// Get returns the value of envVar after .env has been loaded.
func Get(envVar string) string {
	loadEnv()
	return strings.TrimSpace(os.Getenv(envVar))
}

func GetOr(envVar, fallback string) string {
	if v := Get(envVar); v != "" {
		return v
	}
	return fallback
}

type Settings struct {
	Port     string
	LogMode  string
	Issuer   string
	Audience string

	DatabaseURL string

	JWTSecret string
	TokenTTL  time.Duration

	GCSProjectID       string
	GCSBucketName      string
	GCSCredentialsFile string
	GCSMakePublic      bool
	SignedURLTTL       time.Duration

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	GeminiAPIKey    string
	FalAPIKey       string
	FalBaseURL      string
	LeonardoAPIKey  string
	LeonardoBaseURL string
	ProviderTimeout time.Duration

	RedisAddr string
	JobTTL    time.Duration
}

// Load builds Settings from the environment. All missing required keys are
// reported in a single error.
func Load() (*Settings, error) {
	loadEnv()

	var missing []string
	required := func(key string) string {
		v := Get(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	s := &Settings{
		Port:     GetOr("PORT", "3000"),
		LogMode:  GetOr("LOG_MODE", "dev"),
		Issuer:   GetOr("JWT_ISSUER", "snap-forge-app"),
		Audience: GetOr("JWT_AUDIENCE", "snap-forge-app"),

		DatabaseURL: required("DATABASE_URL"),
		JWTSecret:   required("JWT_SECRET"),

		GCSProjectID:       Get("GSC_PROJECT_ID"),
		GCSBucketName:      required("GSC_BUCKET_NAME"),
		GCSCredentialsFile: GetOr("GOOGLE_APPLICATION_CREDENTIALS", "./credentials.json"),

		OpenAIAPIKey:    Get("OPENAI_API_KEY"),
		OpenAIBaseURL:   GetOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GeminiAPIKey:    Get("GEMINI_API_KEY"),
		FalAPIKey:       Get("FAL_KEY"),
		FalBaseURL:      GetOr("FAL_QUEUE_URL", "https://queue.fal.run"),
		LeonardoAPIKey:  Get("LEONARDO_API_KEY"),
		LeonardoBaseURL: GetOr("LEONARDO_API_URL", "https://cloud.leonardo.ai/api/rest/v1"),

		RedisAddr: Get("REDIS_ADDR"),
	}

	var err error
	if s.TokenTTL, err = durationOr("ACCESS_TOKEN_EXPIRE_MINUTES", time.Minute, 60*24*8); err != nil {
		return nil, err
	}
	if s.ProviderTimeout, err = durationOr("PROVIDER_TIMEOUT_SECONDS", time.Second, 90); err != nil {
		return nil, err
	}
	if s.SignedURLTTL, err = durationOr("SIGNED_URL_TTL_MINUTES", time.Minute, 15); err != nil {
		return nil, err
	}
	if s.JobTTL, err = durationOr("JOB_TTL_MINUTES", time.Minute, 60); err != nil {
		return nil, err
	}

	if s.GCSMakePublic, err = boolOr("GCS_MAKE_PUBLIC", false); err != nil {
		return nil, err
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return s, nil
}

func durationOr(key string, unit time.Duration, fallback int) (time.Duration, error) {
	raw := Get(key)
	if raw == "" {
		return time.Duration(fallback) * unit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return time.Duration(n) * unit, nil
}

func boolOr(key string, fallback bool) (bool, error) {
	raw := Get(key)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return b, nil
}
