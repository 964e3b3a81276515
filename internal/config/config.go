// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pawbox/pawbox/internal/storage"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Google Identity Services
	GoogleClientID string

	// Server
	ServerPort string
	BaseURL    string

	// Backend (解析・図面生成サービス)
	APIBaseURL     string
	BackendTimeout time.Duration
	UploadMaxSize  int64

	// Client storage
	StorageBackend       storage.Backend
	RedisURL             string
	ClientCookieMaxAge   int
	ClientIdleTTL        time.Duration
	StorageRetentionDays int

	// Rate Limit
	RateLimitGeneral   int
	RateLimitBlueprint int

	// Showcase import
	ShowcaseFeedURLs []string
	ImportInterval   time.Duration
	ImportTimeout    time.Duration
	ImportMaxSize    int64

	// Cookie
	CookieSecure bool
	CookieDomain string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込むが、既存の環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	backend, err := storage.ParseBackend(getEnvString("STORAGE_BACKEND", string(storage.BackendPostgres)))
	if err != nil {
		return nil, fmt.Errorf("STORAGE_BACKEND: %w", err)
	}
	cfg.StorageBackend = backend

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.APIBaseURL = strings.TrimRight(getEnvString("API_BASE_URL", "http://localhost:5000"), "/")
	cfg.BackendTimeout = getEnvDuration("BACKEND_TIMEOUT", 60*time.Second)
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", 10485760)
	cfg.RedisURL = getEnvString("REDIS_URL", "redis://localhost:6379/0")
	cfg.ClientCookieMaxAge = getEnvInt("CLIENT_COOKIE_MAX_AGE", 31536000)
	cfg.ClientIdleTTL = getEnvDuration("CLIENT_IDLE_TTL", 30*time.Minute)
	cfg.StorageRetentionDays = getEnvInt("STORAGE_RETENTION_DAYS", 30)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitBlueprint = getEnvInt("RATE_LIMIT_BLUEPRINT", 10)
	cfg.ShowcaseFeedURLs = getEnvList("SHOWCASE_FEED_URLS")
	cfg.ImportInterval = getEnvDuration("IMPORT_INTERVAL", 30*time.Minute)
	cfg.ImportTimeout = getEnvDuration("IMPORT_TIMEOUT", 10*time.Second)
	cfg.ImportMaxSize = getEnvInt64("IMPORT_MAX_SIZE", 5242880)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
