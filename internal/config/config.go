// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// データベース設定
	DBHost     string // PostgreSQL ホスト
	DBPort     string // PostgreSQL ポート
	DBUser     string // 接続ユーザー
	DBPassword string // 接続パスワード
	DBName     string // データベース名
	DBSSLMode  string // sslmode パラメータ

	// セッション設定
	SessionStoreSecret string // セッション値をストア内で暗号化する鍵の元
	SessionSecret      string // セッションCookie署名用の秘密鍵
	RedisURL           string // セッション・ログイン試行・メール購読で共用する Redis

	// サーバー設定
	Port    string // HTTPサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// 認証設定
	BcryptCost int // パスワードハッシュのコスト

	// ログ設定
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// メール購読ワーカー設定
	MailingConcurrency int
}

// Load は環境変数から設定を読み込みます。
// .env.local / .env ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := FromEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// FromEnv は検証を行わずに環境変数から Config を組み立てます。
func FromEnv() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", ""),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		SessionStoreSecret: getEnv("SESSION_STORE_SECRET", ""),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),

		Port:    getEnv("PORT", ""),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		BcryptCost: getEnvAsInt("BCRYPT_COST", 12),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MailingConcurrency: getEnvAsInt("MAILING_CONCURRENCY", 2),
	}
}

func loadEnvFile() {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			return
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
// 不足しているキーはまとめて報告します。
func (c *Config) Validate() error {
	var errs []error

	required := []struct {
		key   string
		value string
	}{
		{"DB_HOST", c.DBHost},
		{"DB_USER", c.DBUser},
		{"DB_PASSWORD", c.DBPassword},
		{"DB_NAME", c.DBName},
		{"SESSION_STORE_SECRET", c.SessionStoreSecret},
		{"SESSION_SECRET", c.SessionSecret},
		{"PORT", c.Port},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}

	if c.Port != "" {
		if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
			errs = append(errs, fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port))
		}
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL must not be empty"))
	}
	if c.SessionSecret != "" && c.SessionSecret == c.SessionStoreSecret {
		errs = append(errs, errors.New("SESSION_SECRET and SESSION_STORE_SECRET must differ"))
	}

	return errors.Join(errs...)
}

// Addr は HTTP サーバーの待ち受けアドレスを返します。
func (c *Config) Addr() string {
	return ":" + c.Port
}

// DatabaseDSN は pgx に渡す接続URLを組み立てます。
func (c *Config) DatabaseDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   net.JoinHostPort(c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// IsRelease は release モードで動作しているかを返します。
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
