package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	LogLevel          string
	HTTPListenAddr    string
	DatabaseURL       string
	WhatsAppStorePath string
	WhatsAppLogLevel  string
	OwnerJID          string

	BusinessID  string
	SellerName  string
	WalkInLabel string

	ResolverMinConfidence float64
	EntityThreshold       float64
	InventoryCacheTTL     time.Duration
	SeedDemoInventory     bool

	GeminiAPIKeys  []string
	GeminiModel    string
	GeminiTimeout  time.Duration
	GeminiCooldown time.Duration
	NLUTimeout     time.Duration

	MetricsNamespace string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
}

// Load returns configuration populated from environment variables with fallbacks.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:            getenvDefault("APP_ENV", "development"),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		HTTPListenAddr:    getenvDefault("HTTP_LISTEN_ADDR", ":8080"),
		DatabaseURL:       trimmedEnv("DATABASE_URL"),
		WhatsAppStorePath: getenvDefault("WHATSAPP_STORE_PATH", "data/wa-store.db"),
		WhatsAppLogLevel:  getenvDefault("WHATSAPP_LOG_LEVEL", "INFO"),
		OwnerJID:          trimmedEnv("OWNER_JID"),
		BusinessID:        getenvDefault("BUSINESS_ID", "default"),
		SellerName:        getenvDefault("SELLER_NAME", "Pharmacy"),
		WalkInLabel:       getenvDefault("WALK_IN_LABEL", "Walk-in Customer"),
		GeminiAPIKeys:     splitAndTrim(trimmedEnv("GEMINI_KEYS")),
		GeminiModel:       getenvDefault("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		MetricsNamespace:  getenvDefault("METRICS_NAMESPACE", "dava_bot"),
		RedisAddr:         getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     trimmedEnv("REDIS_PASSWORD"),
	}

	var err error
	if cfg.ResolverMinConfidence, err = floatEnv("RESOLVER_MIN_CONFIDENCE", 0.7); err != nil {
		return nil, err
	}
	if cfg.EntityThreshold, err = floatEnv("ENTITY_CONFIDENCE_THRESHOLD", 0.7); err != nil {
		return nil, err
	}
	if cfg.InventoryCacheTTL, err = durationEnv("INVENTORY_CACHE_TTL", "5m"); err != nil {
		return nil, err
	}
	if cfg.GeminiTimeout, err = durationEnv("GEMINI_TIMEOUT", "20s"); err != nil {
		return nil, err
	}
	if cfg.GeminiCooldown, err = durationEnv("GEMINI_COOLDOWN", "24h"); err != nil {
		return nil, err
	}
	if cfg.NLUTimeout, err = durationEnv("NLU_TIMEOUT", "8s"); err != nil {
		return nil, err
	}

	if redisDBStr := getenvDefault("REDIS_DB", "0"); redisDBStr != "" {
		db, convErr := strconv.Atoi(redisDBStr)
		if convErr != nil {
			return nil, fmt.Errorf("invalid REDIS_DB value: %w", convErr)
		}
		cfg.RedisDB = db
	}
	cfg.RedisTLS = strings.EqualFold(getenvDefault("REDIS_TLS", "false"), "true")
	cfg.SeedDemoInventory = strings.EqualFold(getenvDefault("SEED_DEMO_INVENTORY", "false"), "true")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ResolverMinConfidence <= 0 || cfg.ResolverMinConfidence > 1 {
		return nil, fmt.Errorf("RESOLVER_MIN_CONFIDENCE must be in (0, 1]")
	}
	if cfg.EntityThreshold <= 0 || cfg.EntityThreshold > 1 {
		return nil, fmt.Errorf("ENTITY_CONFIDENCE_THRESHOLD must be in (0, 1]")
	}

	return cfg, nil
}

// NLUEnabled reports whether the Gemini fallback is configured. Without
// keys the bot runs rules-only.
func (c *Config) NLUEnabled() bool { return len(c.GeminiAPIKeys) > 0 }

func getenvDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func trimmedEnv(key string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return ""
}

func splitAndTrim(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}

func durationEnv(key, fallback string) (time.Duration, error) {
	val := getenvDefault(key, fallback)
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return dur, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return f, nil
}
