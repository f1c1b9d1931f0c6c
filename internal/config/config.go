package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Change feed (LISTEN/NOTIFY)
	ListenerMinReconnect time.Duration
	ListenerMaxReconnect time.Duration

	// Cache
	RedisURL string
	CacheTTL time.Duration

	// Listing
	Location        *time.Location
	StreamHeartbeat time.Duration

	// Rate Limit（req/min/IP）
	RateLimitGeneral int
	RateLimitWrite   int

	// Cleanup
	PostRetentionDays int
	CleanupInterval   time.Duration

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envファイルがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envが存在しない場合は環境変数のみを使用する
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	loc, err := time.LoadLocation(getEnvString("TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	// Optional fields with defaults
	cfg.ListenerMinReconnect = getEnvDuration("LISTENER_MIN_RECONNECT", 10*time.Second)
	cfg.ListenerMaxReconnect = getEnvDuration("LISTENER_MAX_RECONNECT", time.Minute)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", time.Minute)
	cfg.StreamHeartbeat = getEnvDuration("STREAM_HEARTBEAT", 25*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitWrite = getEnvInt("RATE_LIMIT_WRITE", 10)
	cfg.PostRetentionDays = getEnvInt("POST_RETENTION_DAYS", 0)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

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
