/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event bus backend selection.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	MetricsBind   string
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	InstanceID    string

	// External audio tooling
	FFmpegBin  string
	FFprobeBin string

	// Scheduling and confirmation cadence
	TrackPollInterval   time.Duration // track-change check while waiting
	ConfirmPollInterval time.Duration // sentinel poll during confirmation
	FeedCacheTTL        time.Duration // freshness bound on feed reads
	SafetyMargin        time.Duration // minimum runway left in the hour
	MinConfirmWait      time.Duration // floor on the confirmation timeout
	ConcatTolerance     time.Duration // accepted bundle duration drift

	// Event bus configuration
	EventBus      EventBusBackend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("GJALLAR_ENV", "development"),
		HTTPBind:      getEnv("GJALLAR_HTTP_BIND", "0.0.0.0"),
		HTTPPort:      getEnvInt("GJALLAR_HTTP_PORT", 8080),
		MetricsBind:   getEnv("GJALLAR_METRICS_BIND", "127.0.0.1:9000"),
		DBBackend:     DatabaseBackend(getEnv("GJALLAR_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:         getEnv("GJALLAR_DB_DSN", ""),
		JWTSigningKey: getEnv("GJALLAR_JWT_SIGNING_KEY", ""),
		InstanceID:    getEnv("GJALLAR_INSTANCE_ID", ""),

		FFmpegBin:  getEnv("GJALLAR_FFMPEG_BIN", "ffmpeg"),
		FFprobeBin: getEnv("GJALLAR_FFPROBE_BIN", "ffprobe"),

		TrackPollInterval:   getEnvDurationSeconds("GJALLAR_TRACK_POLL_SECONDS", 5*time.Second),
		ConfirmPollInterval: getEnvDurationSeconds("GJALLAR_CONFIRM_POLL_SECONDS", 2*time.Second),
		FeedCacheTTL:        getEnvDurationSeconds("GJALLAR_FEED_CACHE_SECONDS", 2*time.Second),
		SafetyMargin:        time.Duration(getEnvInt("GJALLAR_SAFETY_MARGIN_MINUTES", 3)) * time.Minute,
		MinConfirmWait:      getEnvDurationSeconds("GJALLAR_MIN_CONFIRM_WAIT_SECONDS", 60*time.Second),
		ConcatTolerance:     time.Duration(getEnvInt("GJALLAR_CONCAT_TOLERANCE_MS", 500)) * time.Millisecond,

		EventBus:      EventBusBackend(getEnv("GJALLAR_EVENT_BUS", string(EventBusMemory))),
		RedisAddr:     getEnv("GJALLAR_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("GJALLAR_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("GJALLAR_REDIS_DB", 0),
		NATSURL:       getEnv("GJALLAR_NATS_URL", "nats://localhost:4222"),

		TracingEnabled:    getEnvBool("GJALLAR_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("GJALLAR_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("GJALLAR_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("GJALLAR_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("GJALLAR_JWT_SIGNING_KEY must be provided")
	}

	if cfg.EventBus != EventBusMemory && cfg.EventBus != EventBusRedis && cfg.EventBus != EventBusNATS {
		return nil, fmt.Errorf("unsupported event bus backend %q", cfg.EventBus)
	}

	if cfg.SafetyMargin <= 0 {
		return nil, fmt.Errorf("GJALLAR_SAFETY_MARGIN_MINUTES must be positive")
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
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDurationSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return def
}
