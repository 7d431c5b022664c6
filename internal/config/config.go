// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AuthMode は認可ゲートウェイの動作モードを表す。
type AuthMode string

const (
	// AuthModeSession はサーバーサイドセッション＋Cookieによる認可を示す。
	AuthModeSession AuthMode = "session"
	// AuthModeBearer はBearerアクセストークンのJWKS検証による認可を示す。
	// フロントエンドがトークンを保持する構成もサーバー側はこのモードになる。
	AuthModeBearer AuthMode = "bearer"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth0
	Auth0Domain       string
	Auth0ClientID     string
	Auth0ClientSecret string
	Auth0RedirectURL  string
	Auth0Audience     string

	// Auth
	AuthMode        AuthMode
	SessionSecret   string
	SessionMaxAge   int
	UpstreamTimeout time.Duration

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Issuer はIdPのissuer URLを返す（末尾スラッシュ付き）。
// トークンのissクレームはこの値と完全一致する必要がある。
func (c *Config) Issuer() string {
	return "https://" + c.Auth0Domain + "/"
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// AUTH_MODEに応じて必須となる変数が変わる:
// sessionモードはクライアント資格情報とセッション秘密鍵、bearerモードはaudienceが必須。
func Load() (*Config, error) {
	cfg := &Config{}

	mode := AuthMode(getEnvString("AUTH_MODE", string(AuthModeSession)))
	if mode != AuthModeSession && mode != AuthModeBearer {
		return nil, fmt.Errorf("invalid AUTH_MODE: %q (must be %q or %q)", mode, AuthModeSession, AuthModeBearer)
	}
	cfg.AuthMode = mode

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.Auth0Domain = os.Getenv("AUTH0_DOMAIN")
	if cfg.Auth0Domain == "" {
		missing = append(missing, "AUTH0_DOMAIN")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.Auth0ClientID = os.Getenv("AUTH0_CLIENT_ID")
	cfg.Auth0ClientSecret = os.Getenv("AUTH0_CLIENT_SECRET")
	cfg.Auth0RedirectURL = os.Getenv("AUTH0_REDIRECT_URL")
	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	cfg.Auth0Audience = os.Getenv("AUTH0_AUDIENCE")

	if mode == AuthModeSession {
		if cfg.Auth0ClientID == "" {
			missing = append(missing, "AUTH0_CLIENT_ID")
		}
		if cfg.Auth0ClientSecret == "" {
			missing = append(missing, "AUTH0_CLIENT_SECRET")
		}
		if cfg.Auth0RedirectURL == "" {
			missing = append(missing, "AUTH0_REDIRECT_URL")
		}
		if cfg.SessionSecret == "" {
			missing = append(missing, "SESSION_SECRET")
		}
	} else {
		if cfg.Auth0Audience == "" {
			missing = append(missing, "AUTH0_AUDIENCE")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

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
