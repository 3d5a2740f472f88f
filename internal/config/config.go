package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"tree_ton/internal/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRemote   = "remote"

	IdentityTelegram  = "telegram"
	IdentitySynthetic = "synthetic"
)

type Config struct {
	AppPort       string
	AllowedOrigin string
	LogLevel      string
	LogFormat     string

	JWTSecret   string
	AdminSecret string

	BotToken         string
	BotUsername      string
	AdminTelegramIDs []int64
	IdentityMode     string

	StoreBackend  string
	DatabaseURL   string
	RemoteAPIURL  string
	RemoteAPIKey  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TonNetwork     string
	TonAPIKey      string
	TonProofDomain string
	PayoutURL      string
	PayoutToken    string

	EnergyRegenInterval time.Duration
	SessionIdleTTL      time.Duration
	ReferralReward      int64
	CoinsDailyLimit     decimal.Decimal

	APIRateLimit  int
	APIRateWindow time.Duration
	TapRateLimit  int
	TapRateWindow time.Duration
}

// Load reads the configuration from env (and .env when present).
func Load() *Config {
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),

		JWTSecret:   jwtSecret,
		AdminSecret: os.Getenv("ADMIN_SECRET"),

		BotToken:         os.Getenv("BOT_TOKEN"),
		BotUsername:      getEnv("BOT_USERNAME", "realtreeton"),
		AdminTelegramIDs: parseIDs(os.Getenv("ADMIN_TELEGRAM_IDS")),
		IdentityMode:     getEnv("IDENTITY_MODE", IdentityTelegram),

		StoreBackend:  getEnv("STORE_BACKEND", StoreMemory),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RemoteAPIURL:  os.Getenv("REMOTE_API_URL"),
		RemoteAPIKey:  os.Getenv("REMOTE_API_KEY"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TonNetwork:     getEnv("TON_NETWORK", "mainnet"),
		TonAPIKey:      os.Getenv("TONAPI_KEY"),
		TonProofDomain: os.Getenv("TON_PROOF_DOMAIN"),
		PayoutURL:      os.Getenv("PAYOUT_URL"),
		PayoutToken:    os.Getenv("PAYOUT_TOKEN"),

		EnergyRegenInterval: time.Duration(getEnvInt("ENERGY_REGEN_SECONDS", 30)) * time.Second,
		SessionIdleTTL:      time.Duration(getEnvInt("SESSION_IDLE_MINUTES", 30)) * time.Minute,
		ReferralReward:      int64(getEnvInt("REFERRAL_REWARD", 100)),
		CoinsDailyLimit:     decimal.NewFromInt(int64(getEnvInt("COINS_DAILY_LIMIT", 10000))),

		APIRateLimit:  getEnvInt("API_RATE_LIMIT", 120),
		APIRateWindow: time.Duration(getEnvInt("API_RATE_WINDOW_SECONDS", 60)) * time.Second,
		TapRateLimit:  getEnvInt("TAP_RATE_LIMIT", 20),
		TapRateWindow: time.Duration(getEnvInt("TAP_RATE_WINDOW_SECONDS", 1)) * time.Second,
	}

	switch cfg.StoreBackend {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			logger.Fatal("DATABASE_URL is not set")
		}
	case StoreRemote:
		if cfg.RemoteAPIURL == "" {
			logger.Fatal("REMOTE_API_URL is not set")
		}
	case StoreMemory:
	default:
		logger.Fatal("unknown STORE_BACKEND", "value", cfg.StoreBackend)
	}

	if cfg.IdentityMode == IdentityTelegram && cfg.BotToken == "" {
		logger.Fatal("BOT_TOKEN is not set")
	}

	return cfg
}

// IsAdmin reports whether tgID is listed in ADMIN_TELEGRAM_IDS.
func (c *Config) IsAdmin(tgID int64) bool {
	for _, id := range c.AdminTelegramIDs {
		if id == tgID {
			return true
		}
	}
	return false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
		logger.Warn("invalid integer in env, using default", "key", key, "value", v)
	}
	return def
}

// comma separated list
func parseIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
