// Package config loads indexer configuration from the environment, the
// only configuration surface this service has — no chains.json, no
// config.toml — RPC endpoints and database coordinates are both env
// vars.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// defaultPublicRPCURL is used, with a warning, when RPC_URLS is unset.
const defaultPublicRPCURL = "https://ethereum-rpc.publicnode.com"

// Config holds the env-derived settings shared by the daemon and the
// maintenance utility.
type Config struct {
	RPCURLs []string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	NATSURL string

	PollInterval    time.Duration
	ErrorBackoff    time.Duration
	HealthInterval  time.Duration
	StaleThreshold  uint64
	MaxRetries      int
	MetricsAddress  string
}

// Load reads configuration from the process environment, applying
// documented defaults for every field. Env vars are loaded with
// knadh/koanf's env provider; there is no file-backed config layer here,
// only environment variables.
func Load(logger *zerolog.Logger) (*Config, error) {
	ko := koanf.New(".")

	if err := ko.Load(env.Provider("", ".", strings.ToUpper), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	rpcURLs := splitNonEmpty(ko.String("RPC_URLS"), ",")
	if len(rpcURLs) == 0 {
		logger.Warn().
			Str("default", defaultPublicRPCURL).
			Msg("RPC_URLS not set, falling back to public endpoint")
		rpcURLs = []string{defaultPublicRPCURL}
	}

	cfg := &Config{
		RPCURLs: rpcURLs,

		DBHost:     orDefault(ko.String("DB_HOST"), "localhost"),
		DBPort:     intOrDefault(ko.Int("DB_PORT"), 5432),
		DBUser:     orDefault(ko.String("DB_USER"), "postgres"),
		DBPassword: ko.String("DB_PASSWORD"),
		DBName:     orDefault(ko.String("DB_NAME"), "indexer"),

		NATSURL: orDefault(ko.String("NATS_URL"), "nats://127.0.0.1:4222"),

		PollInterval:   durationOrDefault(ko, "POLL_INTERVAL", 2*time.Second),
		ErrorBackoff:   durationOrDefault(ko, "ERROR_BACKOFF", 5*time.Second),
		HealthInterval: durationOrDefault(ko, "HEALTH_INTERVAL", 10*time.Second),
		StaleThreshold: uint64(intOrDefault(ko.Int("STALE_THRESHOLD"), 3)),
		MaxRetries:     intOrDefault(ko.Int("MAX_RETRIES"), 5),
		MetricsAddress: orDefault(ko.String("METRICS_ADDRESS"), ":9090"),
	}

	return cfg, nil
}

// DSN renders a libpq-style connection string for pgxpool.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func splitNonEmpty(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func intOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func durationOrDefault(ko *koanf.Koanf, key string, def time.Duration) time.Duration {
	raw := ko.String(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
