package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTResetSecret   string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ResetTokenTTL    time.Duration

	// Password reset
	OTPTTL          time.Duration
	ResetRetention  time.Duration
	CleanupInterval time.Duration

	// Mail
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	SMTPFrom    string
	MailAppName string

	// Rate Limit
	RateLimitAuth int // 認証系エンドポイントのIPあたりreq/min

	// Server
	AppEnv      string
	ServerPort  string
	MetricsPort string

	// Cookie
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// IsProduction は本番環境で動作しているかどうかを返す。
// Cookieのsecure属性とSameSite属性の切り替えに使用する。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
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

	cfg.JWTAccessSecret = os.Getenv("JWT_ACCESS_SECRET")
	if cfg.JWTAccessSecret == "" {
		missing = append(missing, "JWT_ACCESS_SECRET")
	}

	cfg.JWTRefreshSecret = os.Getenv("JWT_REFRESH_SECRET")
	if cfg.JWTRefreshSecret == "" {
		missing = append(missing, "JWT_REFRESH_SECRET")
	}

	cfg.JWTResetSecret = os.Getenv("JWT_RESET_SECRET")
	if cfg.JWTResetSecret == "" {
		missing = append(missing, "JWT_RESET_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// トークン種別ごとに異なるシークレットを要求する
	if cfg.JWTAccessSecret == cfg.JWTRefreshSecret ||
		cfg.JWTAccessSecret == cfg.JWTResetSecret ||
		cfg.JWTRefreshSecret == cfg.JWTResetSecret {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET, JWT_REFRESH_SECRET and JWT_RESET_SECRET must all differ")
	}

	// Optional fields with defaults
	cfg.AccessTokenTTL = getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute)
	cfg.RefreshTokenTTL = getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour)
	cfg.ResetTokenTTL = getEnvDuration("RESET_TOKEN_TTL", 5*time.Minute)
	cfg.OTPTTL = getEnvDuration("OTP_TTL", 10*time.Minute)
	cfg.ResetRetention = getEnvDuration("RESET_RETENTION", 7*24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = getEnvString("SMTP_USER", "")
	cfg.SMTPPass = getEnvString("SMTP_PASS", "")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "no-reply@localhost")
	cfg.MailAppName = getEnvString("MAIL_APP_NAME", "Mail App")
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 20)
	cfg.AppEnv = getEnvString("APP_ENV", "development")
	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
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
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
