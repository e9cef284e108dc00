package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting. It is read once at startup from the
// environment, optionally seeded from a .env file.
type Config struct {
	ListenAddr string
	GinMode    string

	LogLevel  string
	LogFormat string

	// AllowedOrigins is matched against the WebSocket Origin header. Empty allows any.
	AllowedOrigins []string

	JWTSecret    []byte
	TokenTTL     time.Duration
	RequireToken bool

	SearchTimeout    time.Duration
	ClientSendBuffer int
	MaxMessageBytes  int64

	// DatabaseDSN enables the PostgreSQL session audit.
	DatabaseDSN string

	// RedisAddr enables session event publishing.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TelegramBotToken enables the Telegram front-end.
	TelegramBotToken string

	ShutdownTimeout time.Duration
}

// Load reads .env files (missing files are fine) and then the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	var (
		cfg  Config
		errs []error
	)

	cfg.ListenAddr = stringEnv("LISTEN_ADDR", ":8080")
	cfg.GinMode = stringEnv("GIN_MODE", "release")
	cfg.LogLevel = stringEnv("LOG_LEVEL", "info")
	cfg.LogFormat = stringEnv("LOG_FORMAT", "json")
	cfg.AllowedOrigins = listEnv("ALLOWED_ORIGINS")

	if s := os.Getenv("JWT_SECRET"); s != "" {
		cfg.JWTSecret = []byte(s)
	} else {
		secret, err := randomSecret()
		if err != nil {
			errs = append(errs, err)
		}
		cfg.JWTSecret = secret
	}

	cfg.TokenTTL = durationEnv("TOKEN_TTL", 72*time.Hour, &errs)
	cfg.RequireToken = boolEnv("REQUIRE_TOKEN", false, &errs)
	cfg.SearchTimeout = durationEnv("SEARCH_TIMEOUT", 0, &errs)
	cfg.ClientSendBuffer = intEnv("CLIENT_SEND_BUFFER", 256, &errs)
	cfg.MaxMessageBytes = int64(intEnv("MAX_MESSAGE_BYTES", 64*1024, &errs))

	cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = intEnv("REDIS_DB", 0, &errs)
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.ShutdownTimeout = durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second, &errs)

	if cfg.ClientSendBuffer < 1 {
		errs = append(errs, fmt.Errorf("CLIENT_SEND_BUFFER must be positive, got %d", cfg.ClientSendBuffer))
	}
	if cfg.SearchTimeout < 0 {
		errs = append(errs, fmt.Errorf("SEARCH_TIMEOUT must not be negative, got %s", cfg.SearchTimeout))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func stringEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intEnv(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func boolEnv(key string, def bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func durationEnv(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func randomSecret() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	return []byte(hex.EncodeToString(buf)), nil
}
