package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"TRACKER_CONFIG", "FEED_URL", "FEED_TOKEN", "FEED_CHANNEL", "FEED_DIAL_TIMEOUT",
		"STORE_BACKEND", "REDIS_URL", "BADGER_PATH", "STORE_BREAKER_TIMEOUT",
		"HISTORY_CAP", "RETRY_DELAY", "MAX_RETRIES", "SUPERVISOR_INTERVAL", "PORT", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("FEED_URL", "wss://feed.example.com/app")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gps_data", cfg.FeedChannel)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 1001, cfg.HistoryCap)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadRequiresFeedURL(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FEED_URL", "wss://feed.example.com/app")
	t.Setenv("FEED_TOKEN", "tok")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("RETRY_DELAY", "2s")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("HISTORY_CAP", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tok", cfg.FeedToken)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 50, cfg.HistoryCap)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"RETRY_DELAY":   "soon",
		"MAX_RETRIES":   "three",
		"STORE_BACKEND": "postgres",
		"HISTORY_CAP":   "0",
		"LOG_LEVEL":     "verbose",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("FEED_URL", "wss://feed.example.com/app")
			t.Setenv(key, val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	yaml := `
feed_url: wss://from-file.example.com/app
feed_channel: bikes
store_backend: badger
badger_path: /var/lib/tracker
retry_delay: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("TRACKER_CONFIG", path)
	t.Setenv("FEED_CHANNEL", "gps_data")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://from-file.example.com/app", cfg.FeedURL)
	assert.Equal(t, "gps_data", cfg.FeedChannel)
	assert.Equal(t, BackendBadger, cfg.StoreBackend)
	assert.Equal(t, "/var/lib/tracker", cfg.BadgerPath)
	assert.Equal(t, time.Second, cfg.RetryDelay)
}
