package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	AutoMigrate           bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StoreID               string
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	LogLevel              string
	LogEncoding           string
	RecomputeWorkers      int
	RecomputeTimeout      time.Duration
	RecomputeSchedule     string
	LedgerFixture         string
	SeedAdminPassword     string
}

const (
	defaultTokenTTLMinutes  = 480
	defaultRecomputeWorkers = 4
	defaultRecomputeTimeout = 120
)

// Load reads the flat environment surface. Secrets are trimmed and never
// defaulted; malformed numbers fall back to their defaults.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DEFAULT_STORE_ID", "main-store")
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", defaultTokenTTLMinutes)
	v.SetDefault("MANAGER_PIN", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "json")
	v.SetDefault("RECOMPUTE_WORKERS", defaultRecomputeWorkers)
	v.SetDefault("RECOMPUTE_TIMEOUT_SECONDS", defaultRecomputeTimeout)
	v.SetDefault("RECOMPUTE_SCHEDULE", "")
	v.SetDefault("LEDGER_FIXTURE", "")
	v.SetDefault("SEED_ADMIN_PASSWORD", "")

	cfg := Config{
		Port:                  strings.TrimSpace(v.GetString("PORT")),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		AutoMigrate:           v.GetBool("AUTO_MIGRATE"),
		RedisAddr:             strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               max(v.GetInt("REDIS_DB"), 0),
		StoreID:               strings.TrimSpace(v.GetString("DEFAULT_STORE_ID")),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveOr(v.GetInt("ACCESS_TOKEN_TTL_MINUTES"), defaultTokenTTLMinutes),
		ManagerPIN:            strings.TrimSpace(v.GetString("MANAGER_PIN")),
		LogLevel:              strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		LogEncoding:           strings.ToLower(strings.TrimSpace(v.GetString("LOG_ENCODING"))),
		RecomputeWorkers:      positiveOr(v.GetInt("RECOMPUTE_WORKERS"), defaultRecomputeWorkers),
		RecomputeTimeout:      time.Duration(positiveOr(v.GetInt("RECOMPUTE_TIMEOUT_SECONDS"), defaultRecomputeTimeout)) * time.Second,
		RecomputeSchedule:     strings.TrimSpace(v.GetString("RECOMPUTE_SCHEDULE")),
		LedgerFixture:         strings.TrimSpace(v.GetString("LEDGER_FIXTURE")),
		SeedAdminPassword:     strings.TrimSpace(v.GetString("SEED_ADMIN_PASSWORD")),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.StoreID == "" {
		cfg.StoreID = "main-store"
	}

	switch cfg.LogEncoding {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("LOG_ENCODING must be json or console, got %q", cfg.LogEncoding)
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func positiveOr(value int, fallback int) int {
	if value < 1 {
		return fallback
	}
	return value
}
