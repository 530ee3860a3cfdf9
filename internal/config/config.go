package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	GracePeriod    time.Duration
	ReapInterval   time.Duration
	WaitingMaxAge  time.Duration
	FinishedMaxAge time.Duration

	MaxConcurrentSessions int

	MessageOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:            ":3001",
		GracePeriod:           45 * time.Second,
		ReapInterval:          time.Minute,
		WaitingMaxAge:         10 * time.Minute,
		FinishedMaxAge:        2 * time.Minute,
		MaxConcurrentSessions: 500,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	} else if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.ListenAddr = ":" + v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessageOverrideDir = strings.TrimSpace(os.Getenv("MESSAGE_OVERRIDE_DIR"))

	if d, ok := envSeconds("GRACE_PERIOD_SECONDS"); ok {
		cfg.GracePeriod = d
	}
	if d, ok := envSeconds("REAP_INTERVAL_SECONDS"); ok {
		cfg.ReapInterval = d
	}
	if d, ok := envSeconds("WAITING_MAX_AGE_SECONDS"); ok {
		cfg.WaitingMaxAge = d
	}
	if d, ok := envSeconds("FINISHED_MAX_AGE_SECONDS"); ok {
		cfg.FinishedMaxAge = d
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_SESSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentSessions = n
		}
	}

	return cfg, nil
}

func envSeconds(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
