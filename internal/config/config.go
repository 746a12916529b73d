// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const mib = 1024 * 1024

// StorageKind selects the storage backend.
type StorageKind string

const (
	StorageLocal  StorageKind = "local"
	StorageObject StorageKind = "object"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port          string
	AppEnv        string
	LogLevel      string
	PublicBaseURL string // e.g. "https://share.example.com"; empty means derive from the request

	StorageKind         StorageKind
	UploadDir           string // local storage only
	MaxUploadSize       int64
	RandomSegmentLength int
	MultipartThreshold  int64
	PartSize            int

	// Object storage (S3-compatible: MinIO locally, any S3 provider in production)
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool

	CacheEnabled bool
	CacheHost    string
	CachePort    int
	CacheTTL     time.Duration
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, reading from environment")
	}

	var errs []error
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		AppEnv:        getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),

		StorageKind:         StorageKind(strings.ToLower(getEnv("STORAGE_KIND", string(StorageLocal)))),
		UploadDir:           getEnv("UPLOAD_DIR", "/tmp/uploads"),
		MaxUploadSize:       getInt64(&errs, "MAX_UPLOAD_SIZE", 10*mib),
		RandomSegmentLength: int(getInt64(&errs, "RAND_SEGMENT_LENGTH", 6)),
		MultipartThreshold:  getInt64(&errs, "MULTIPART_THRESHOLD", 5*mib),
		PartSize:            int(getInt64(&errs, "MULTIPART_PART_SIZE", 5*mib)),

		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
		StorageSecretKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
		StorageBucket:    getEnv("STORAGE_BUCKET", "uploads"),
		StorageUseSSL:    getEnv("STORAGE_USE_SSL", "false") == "true",

		CacheEnabled: getEnv("CACHE_ENABLED", "false") == "true",
		CacheHost:    getEnv("CACHE_HOST", "localhost"),
		CachePort:    int(getInt64(&errs, "CACHE_PORT", 6379)),
		CacheTTL:     getDuration(&errs, "CACHE_TTL", 24*time.Hour),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageKind {
	case StorageLocal:
		if c.UploadDir == "" {
			errs = append(errs, errors.New("UPLOAD_DIR is required for local storage"))
		}
	case StorageObject:
		if c.StorageBucket == "" || c.StorageEndpoint == "" {
			errs = append(errs, errors.New("STORAGE_ENDPOINT and STORAGE_BUCKET are required for object storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_KIND must be %q or %q, got %q", StorageLocal, StorageObject, c.StorageKind))
	}
	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_SIZE must be positive"))
	}
	if c.RandomSegmentLength < 1 {
		errs = append(errs, errors.New("RAND_SEGMENT_LENGTH must be at least 1"))
	}
	if c.MultipartThreshold <= 0 {
		errs = append(errs, errors.New("MULTIPART_THRESHOLD must be positive"))
	}
	// S3 rejects parts below 5 MiB except for the last one.
	if c.PartSize < 5*mib {
		errs = append(errs, errors.New("MULTIPART_PART_SIZE must be at least 5 MiB"))
	}
	if c.CacheEnabled && c.StorageKind != StorageObject {
		errs = append(errs, errors.New("CACHE_ENABLED requires STORAGE_KIND=object"))
	}
	return errors.Join(errs...)
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt64(errs *[]error, key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getDuration(errs *[]error, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
