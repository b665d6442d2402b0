package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	KafkaBrokers          []string
	KafkaTopic            string
	AuthSecret            string
	AccessTokenTTLMinutes int
	OwnerEnrollmentCode   string
	Timezone              string
	CloseDayTimeout       time.Duration
	CloseDayMaxRetries    int
	CloseDayConcurrency   int
	CloseDayDeadline      time.Duration
	ReportHistoryLimit    int
	IdempotencyTTL        time.Duration
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURL     string
	LogLevel              string
}

// Load reads configuration from the environment and, when CONFIG_FILE names
// one, from a config file. Secrets have no defaults.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_TOPIC", "barapp.events")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("CLOSE_DAY_TIMEOUT_SECONDS", 5)
	v.SetDefault("CLOSE_DAY_MAX_RETRIES", 3)
	v.SetDefault("CLOSE_DAY_CONCURRENCY", 8)
	v.SetDefault("CLOSE_DAY_DEADLINE_SECONDS", 120)
	v.SetDefault("REPORT_HISTORY_LIMIT", 30)
	v.SetDefault("IDEMPOTENCY_TTL_HOURS", 24)
	v.SetDefault("LOG_LEVEL", "info")

	if file := strings.TrimSpace(v.GetString("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("config file not readable, using environment only", "file", file, "error", err)
		}
	}

	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}
	timeout := v.GetInt("CLOSE_DAY_TIMEOUT_SECONDS")
	if timeout < 1 {
		timeout = 5
	}
	retries := v.GetInt("CLOSE_DAY_MAX_RETRIES")
	if retries < 0 {
		retries = 0
	}
	concurrency := v.GetInt("CLOSE_DAY_CONCURRENCY")
	if concurrency < 1 {
		concurrency = 8
	}
	deadline := v.GetInt("CLOSE_DAY_DEADLINE_SECONDS")
	if deadline < 1 {
		deadline = 120
	}
	historyLimit := v.GetInt("REPORT_HISTORY_LIMIT")
	if historyLimit < 1 {
		historyLimit = 30
	}
	idemTTL := v.GetInt("IDEMPOTENCY_TTL_HOURS")
	if idemTTL < 1 {
		idemTTL = 24
	}

	return Config{
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		KafkaBrokers:          splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:            v.GetString("KAFKA_TOPIC"),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		OwnerEnrollmentCode:   strings.TrimSpace(v.GetString("OWNER_ENROLLMENT_CODE")),
		Timezone:              v.GetString("TIMEZONE"),
		CloseDayTimeout:       time.Duration(timeout) * time.Second,
		CloseDayMaxRetries:    retries,
		CloseDayConcurrency:   concurrency,
		CloseDayDeadline:      time.Duration(deadline) * time.Second,
		ReportHistoryLimit:    historyLimit,
		IdempotencyTTL:        time.Duration(idemTTL) * time.Hour,
		GoogleClientID:        v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:    v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:     v.GetString("GOOGLE_REDIRECT_URL"),
		LogLevel:              v.GetString("LOG_LEVEL"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location is the zone that defines the business day. Unknown zones fall back to UTC.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
