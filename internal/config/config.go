package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RunMigrations         bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	CancelMarkerTTLHours  int
	AuthSecret            string
	AccessTokenTTLMinutes int
	CancelTimeoutSeconds  int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	markerTTL, err := strconv.Atoi(getEnv("CANCEL_MARKER_TTL_HOURS", "24"))
	if err != nil || markerTTL < 1 {
		markerTTL = 24
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	cancelTimeout, err := strconv.Atoi(getEnv("CANCEL_TIMEOUT_SECONDS", "10"))
	if err != nil || cancelTimeout < 1 {
		cancelTimeout = 10
	}
	runMigrations, err := strconv.ParseBool(getEnv("RUN_MIGRATIONS", "true"))
	if err != nil {
		runMigrations = true
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RunMigrations:         runMigrations,
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		CancelMarkerTTLHours:  markerTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		CancelTimeoutSeconds:  cancelTimeout,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) CancelTimeout() time.Duration {
	return time.Duration(c.CancelTimeoutSeconds) * time.Second
}

func (c Config) CancelMarkerTTL() time.Duration {
	return time.Duration(c.CancelMarkerTTLHours) * time.Hour
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
