package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/DukeRupert/genapi/internal/domain"
)

// Ledger backends
const (
	LedgerMemory   = "memory"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Generation providers
const (
	ProviderPollinations = "pollinations"
	ProviderGemini       = "gemini"
	ProviderMock         = "mock"
)

// Archive providers
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveR2    = "r2"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string
	Region   string // Reported by /health and the X-RapidAPI-Region header

	// Ledger Configuration
	LedgerBackend       string // "memory", "sqlite", "postgres" or "redis"
	SQLitePath          string
	DatabaseUrl         string
	RedisURL            string
	RedisKeyPrefix      string
	LedgerPruneInterval time.Duration // 0 disables the janitor

	// Upstream Provider Configuration
	ImageProvider          string // "pollinations" or "mock"
	TextProvider           string // "pollinations", "gemini" or "mock"
	PollinationsImageURL   string
	PollinationsTextURL    string
	GeminiAPIKey           string
	GeminiModel            string
	UpstreamTimeout        time.Duration
	UpstreamMaxRetries     int
	UpstreamRetryBaseDelay time.Duration

	// Reseller gateway
	// If set, requests must carry a matching X-RapidAPI-Proxy-Secret
	RapidAPIProxySecret string

	// Gift codes added to the built-in set, parsed from GIFT_CODES
	ExtraGiftCodes    map[string]domain.SubscriptionTier
	GiftAttemptLimit  int
	GiftAttemptWindow time.Duration

	// Image Archive Configuration
	ArchiveProvider string // "none", "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string // Base directory for local file storage
	LocalStorageURL  string // Base URL for accessing local files

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string // Optional custom domain URL

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),
		Region:   getEnv("REGION", "global"),

		// Ledger defaults to the in-process map
		LedgerBackend:       strings.ToLower(getEnv("LEDGER_BACKEND", LedgerMemory)),
		SQLitePath:          getEnv("SQLITE_PATH", "genapi.db"),
		DatabaseUrl:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		RedisKeyPrefix:      getEnv("REDIS_KEY_PREFIX", "genapi"),
		LedgerPruneInterval: getEnvDuration("LEDGER_PRUNE_INTERVAL", time.Hour),

		// Upstream defaults
		ImageProvider:          strings.ToLower(getEnv("IMAGE_PROVIDER", ProviderPollinations)),
		TextProvider:           strings.ToLower(getEnv("TEXT_PROVIDER", ProviderPollinations)),
		PollinationsImageURL:   getEnv("POLLINATIONS_IMAGE_URL", ""),
		PollinationsTextURL:    getEnv("POLLINATIONS_TEXT_URL", ""),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", ""),
		UpstreamTimeout:        getEnvDuration("UPSTREAM_TIMEOUT", 60*time.Second),
		UpstreamMaxRetries:     getEnvInt("UPSTREAM_MAX_RETRIES", 1),
		UpstreamRetryBaseDelay: getEnvDuration("UPSTREAM_RETRY_BASE_DELAY", time.Second),

		RapidAPIProxySecret: getEnv("RAPIDAPI_PROXY_SECRET", ""),

		GiftAttemptLimit:  getEnvInt("GIFT_ATTEMPT_LIMIT", 10),
		GiftAttemptWindow: getEnvDuration("GIFT_ATTEMPT_WINDOW", 15*time.Minute),

		// Archive is off unless asked for
		ArchiveProvider:  strings.ToLower(getEnv("ARCHIVE_PROVIDER", ArchiveNone)),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/archive"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	codes, err := parseGiftCodes(getEnv("GIFT_CODES", ""))
	if err != nil {
		return nil, err
	}
	cfg.ExtraGiftCodes = codes

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got: %d", cfg.Port)
	}

	// Validate ledger configuration
	switch cfg.LedgerBackend {
	case LedgerMemory:
	case LedgerSQLite:
		if cfg.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when LEDGER_BACKEND is 'sqlite'")
		}
	case LedgerPostgres:
		if cfg.DatabaseUrl == "" {
			return fmt.Errorf("DATABASE_URL is required when LEDGER_BACKEND is 'postgres'")
		}
	case LedgerRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when LEDGER_BACKEND is 'redis'")
		}
	default:
		return fmt.Errorf("LEDGER_BACKEND must be one of 'memory', 'sqlite', 'postgres' or 'redis', got: %s", cfg.LedgerBackend)
	}
	if cfg.LedgerPruneInterval < 0 {
		return fmt.Errorf("LEDGER_PRUNE_INTERVAL must not be negative, got: %s", cfg.LedgerPruneInterval)
	}

	// Validate provider configuration
	switch cfg.ImageProvider {
	case ProviderPollinations, ProviderMock:
	default:
		return fmt.Errorf("IMAGE_PROVIDER must be either 'pollinations' or 'mock', got: %s", cfg.ImageProvider)
	}
	switch cfg.TextProvider {
	case ProviderPollinations, ProviderMock:
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when TEXT_PROVIDER is 'gemini'")
		}
	default:
		return fmt.Errorf("TEXT_PROVIDER must be one of 'pollinations', 'gemini' or 'mock', got: %s", cfg.TextProvider)
	}
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got: %s", cfg.UpstreamTimeout)
	}
	if cfg.UpstreamMaxRetries < 1 {
		return fmt.Errorf("UPSTREAM_MAX_RETRIES must be at least 1, got: %d", cfg.UpstreamMaxRetries)
	}

	if cfg.GiftAttemptLimit < 1 {
		return fmt.Errorf("GIFT_ATTEMPT_LIMIT must be at least 1, got: %d", cfg.GiftAttemptLimit)
	}
	if cfg.GiftAttemptWindow <= 0 {
		return fmt.Errorf("GIFT_ATTEMPT_WINDOW must be positive, got: %s", cfg.GiftAttemptWindow)
	}

	// Validate archive configuration
	switch cfg.ArchiveProvider {
	case ArchiveNone:
	case ArchiveLocal:
		if cfg.LocalStoragePath == "" {
			return fmt.Errorf("LOCAL_STORAGE_PATH is required when ARCHIVE_PROVIDER is 'local'")
		}
	case ArchiveR2:
		if cfg.R2AccountID == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when ARCHIVE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID is required when ARCHIVE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return fmt.Errorf("R2_SECRET_ACCESS_KEY is required when ARCHIVE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when ARCHIVE_PROVIDER is 'r2'")
		}
	default:
		return fmt.Errorf("ARCHIVE_PROVIDER must be one of 'none', 'local' or 'r2', got: %s", cfg.ArchiveProvider)
	}

	return nil
}

// parseGiftCodes parses "CODE:tier,CODE2:tier". Codes are upper-cased; an
// unknown tier is an error.
func parseGiftCodes(s string) (map[string]domain.SubscriptionTier, error) {
	codes := make(map[string]domain.SubscriptionTier)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		code, tierName, ok := strings.Cut(entry, ":")
		code = domain.NormalizeGiftCode(code)
		if !ok || code == "" {
			return nil, fmt.Errorf("GIFT_CODES entry %q must look like CODE:tier", entry)
		}

		tier, known := domain.ParseTier(strings.TrimSpace(tierName))
		if !known {
			return nil, fmt.Errorf("GIFT_CODES entry %q names unknown tier %q", entry, strings.TrimSpace(tierName))
		}
		codes[code] = tier
	}
	return codes, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
