// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/rps/internal/auth"
	"github.com/sirupsen/logrus"
)

// Stats backends.
const (
	StatsRedis    = "redis"
	StatsPostgres = "postgres"
	StatsLog      = "log"
)

type Config struct {
	Addr     string
	LogLevel logrus.Level

	WaitTimeout  time.Duration
	MoveTimeout  time.Duration
	IdleTimeout  time.Duration
	StatsTimeout time.Duration

	TokenTTL       time.Duration
	AuthKeyPath    string
	AllowedOrigins []string

	DatabaseURL string
	UseDatabase bool

	StatsBackend  string
	RedisAddr     string
	RedisDB       int
	RoundQueue    string
	StatsMinRound int

	HistorianBatchSize  int
	HistorianFlushDelay time.Duration
}

// Load reads every setting, falling back to defaults for unset variables.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:               ":" + getEnv("PORT", "8080"),
		AuthKeyPath:        os.Getenv("AUTH_PRIVATE_KEY_PATH"),
		AllowedOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		StatsBackend:       strings.ToLower(getEnv("STATS_BACKEND", StatsRedis)),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RoundQueue:         getEnv("ROUND_QUEUE_NAME", "rps_rounds"),
		StatsMinRound:      getEnvInt("STATS_MIN_ROUNDS", 10),
		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
	}

	var err error
	if cfg.LogLevel, err = logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.UseDatabase, err = strconv.ParseBool(getEnv("USE_DATABASE", "true")); err != nil {
		return nil, fmt.Errorf("USE_DATABASE: %w", err)
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"OPPONENT_WAIT_TIMEOUT", "60s", &cfg.WaitTimeout},
		{"MOVE_TIMEOUT", "20s", &cfg.MoveTimeout},
		{"SERIES_IDLE_TIMEOUT", "300s", &cfg.IdleTimeout},
		{"STATS_TIMEOUT", "2s", &cfg.StatsTimeout},
		{"HISTORIAN_FLUSH_DELAY", "500ms", &cfg.HistorianFlushDelay},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("%s: must be positive, got %s", d.key, v)
		}
		*d.dest = v
	}

	if cfg.TokenTTL, err = auth.ParseTTL(os.Getenv("TOKEN_EXPIRE_TIME")); err != nil {
		return nil, fmt.Errorf("TOKEN_EXPIRE_TIME: %w", err)
	}

	switch cfg.StatsBackend {
	case StatsRedis, StatsPostgres, StatsLog:
	default:
		return nil, fmt.Errorf("STATS_BACKEND: unknown backend %q", cfg.StatsBackend)
	}
	if cfg.StatsBackend == StatsPostgres && !cfg.UseDatabase {
		return nil, fmt.Errorf("STATS_BACKEND=postgres requires USE_DATABASE=true")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
