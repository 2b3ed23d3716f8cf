package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// DefaultAPITimeout はバックエンドAPI呼び出しのデフォルトタイムアウト。
// loginサブコマンドは設定ファイルなしでもこの値で動作する。
const DefaultAPITimeout = 15 * time.Second

type Config struct {
	// Database
	DatabaseURL string

	// Token
	TokenTTL       time.Duration // ディープリンクトークンの有効期間
	TokenRetention time.Duration // 期限切れトークンをDBに残す期間（クリーンアップ対象判定用）

	// Provider
	ProviderBaseURL string        // 認可Cookieを交換するプロバイダーAPIのベースURL
	InstructionsURL string        // ユーザーに案内するプロバイダーのログインURL
	ExchangeTimeout time.Duration // プロバイダー交換リクエストのタイムアウト

	// Bridge
	SharedSecret string // ブリッジボットがトークン発行に使う共有シークレット

	// Rate Limit（req/min単位）
	RateLimitLogin  int // check/startエンドポイントのレート
	RateLimitSubmit int // submitエンドポイントのレート

	// Server
	ServerPort string
	BaseURL    string // ディープリンクの公開プレフィックス（例: https://bridge.example.com）

	// Client（loginサブコマンド用）
	APITimeout time.Duration // バックエンドAPI呼び出しのタイムアウト
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.ProviderBaseURL = os.Getenv("PROVIDER_BASE_URL")
	if cfg.ProviderBaseURL == "" {
		missing = append(missing, "PROVIDER_BASE_URL")
	}

	cfg.SharedSecret = os.Getenv("SHARED_SECRET")
	if cfg.SharedSecret == "" {
		missing = append(missing, "SHARED_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.SharedSecret) < 32 {
		return nil, fmt.Errorf("SHARED_SECRET must be at least 32 characters")
	}

	// Optional fields with defaults
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 1*time.Hour)
	cfg.TokenRetention = getEnvDuration("TOKEN_RETENTION", 24*time.Hour)
	cfg.InstructionsURL = getEnvString("INSTRUCTIONS_URL", strings.TrimRight(cfg.ProviderBaseURL, "/"))
	cfg.ExchangeTimeout = getEnvDuration("EXCHANGE_TIMEOUT", 10*time.Second)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 30)
	cfg.RateLimitSubmit = getEnvInt("RATE_LIMIT_SUBMIT", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.APITimeout = getEnvDuration("API_TIMEOUT", DefaultAPITimeout)

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
