package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	ArchiveBaseURL string

	LedgerBaseURL string
	LedgerNetwork string

	BodyCode string
	BodyName string

	ConfirmationTimeoutSeconds int
	ConfirmationSweepSeconds   int
	ConfirmationSweepBatch     int

	VerifyCacheTTLSeconds int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitMaxKeys       int

	PolicyBundlePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                   addr,
		PostgresDSN:                os.Getenv("POSTGRES_DSN"),
		LogLevel:                   envDefault("LOG_LEVEL", "info"),
		ArchiveBaseURL:             os.Getenv("ARCHIVE_BASE_URL"),
		LedgerBaseURL:              os.Getenv("LEDGER_BASE_URL"),
		LedgerNetwork:              envDefault("LEDGER_NETWORK", "mainnet"),
		BodyCode:                   os.Getenv("CERTIFICATION_BODY_CODE"),
		BodyName:                   os.Getenv("CERTIFICATION_BODY_NAME"),
		ConfirmationTimeoutSeconds: envIntDefault("CONFIRMATION_TIMEOUT_SECONDS", 30),
		ConfirmationSweepSeconds:   envIntDefault("CONFIRMATION_SWEEP_SECONDS", 15),
		ConfirmationSweepBatch:     envIntDefault("CONFIRMATION_SWEEP_BATCH", 50),
		VerifyCacheTTLSeconds:      envIntDefault("VERIFY_CACHE_TTL_SECONDS", 60),
		RateLimitRequests:          envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:     envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitMaxKeys:           envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		PolicyBundlePath:           os.Getenv("POLICY_BUNDLE_PATH"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		RedisPassword:              os.Getenv("REDIS_PASSWORD"),
		RedisDB:                    envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func (c Config) ConfirmationTimeout() time.Duration {
	return time.Duration(c.ConfirmationTimeoutSeconds) * time.Second
}

func (c Config) ConfirmationSweepInterval() time.Duration {
	return time.Duration(c.ConfirmationSweepSeconds) * time.Second
}

func (c Config) VerifyCacheTTL() time.Duration {
	return time.Duration(c.VerifyCacheTTLSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
