package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kantorcodes/evm-indexer/pkg/config"
)

func clearIndexerEnv(t *testing.T) {
	vars := []string{
		"RPC_URLS", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
		"NATS_URL", "POLL_INTERVAL", "ERROR_BACKOFF", "HEALTH_INTERVAL",
		"STALE_THRESHOLD", "MAX_RETRIES", "METRICS_ADDRESS",
	}
	for _, v := range vars {
		old, had := os.LookupEnv(v)
		os.Unsetenv(v)
		t.Cleanup(func() {
			if had {
				os.Setenv(v, old)
			}
		})
	}
}

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	clearIndexerEnv(t)
	logger := zerolog.Nop()

	cfg, err := config.Load(&logger)
	require.NoError(t, err)

	require.Equal(t, []string{"https://ethereum-rpc.publicnode.com"}, cfg.RPCURLs)
	require.Equal(t, "localhost", cfg.DBHost)
	require.Equal(t, 5432, cfg.DBPort)
	require.Equal(t, 2*time.Second, cfg.PollInterval)
	require.Equal(t, 5*time.Second, cfg.ErrorBackoff)
	require.Equal(t, uint64(3), cfg.StaleThreshold)
	require.Equal(t, 5, cfg.MaxRetries)
}

func TestLoad_ParsesCommaSeparatedRPCURLs(t *testing.T) {
	clearIndexerEnv(t)
	os.Setenv("RPC_URLS", "https://a.example, https://b.example,https://c.example")
	logger := zerolog.Nop()

	cfg, err := config.Load(&logger)
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, cfg.RPCURLs)
}

func TestDSN_RendersLibpqString(t *testing.T) {
	cfg := &config.Config{
		DBHost: "db.internal", DBPort: 5433, DBUser: "idx", DBPassword: "secret", DBName: "chain",
	}
	require.Equal(t, "host=db.internal port=5433 user=idx password=secret dbname=chain sslmode=disable", cfg.DSN())
}
