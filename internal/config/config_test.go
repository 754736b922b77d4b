package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, BrokerKite, cfg.Broker)
	assert.Equal(t, ProviderRules, cfg.Generation.Provider)
	assert.Equal(t, 15*time.Minute, cfg.Monitor.PollInterval)
	assert.Equal(t, 0.05, cfg.Monitor.ValueThreshold)
	assert.Equal(t, 30, cfg.Monitor.SnapshotHistory)
	assert.Equal(t, 24*time.Hour, cfg.Insights.Cooldown)
	assert.Equal(t, 256, cfg.Insights.CacheSize)
	assert.Equal(t, 6, cfg.Generation.RatePerMinute)
	assert.False(t, cfg.Archive.Enabled())
	assert.Equal(t, 2*time.Minute, cfg.Archive.Timeout)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("BROKER", "Tradernet")
	t.Setenv("MONITOR_POLL_INTERVAL", "5m")
	t.Setenv("INSIGHT_SIGNIFICANCE_THRESHOLD", "0.1")
	t.Setenv("GENERATION_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, BrokerTradernet, cfg.Broker)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.PollInterval)
	assert.Equal(t, 0.1, cfg.Insights.SignificanceThreshold)
	assert.Equal(t, ProviderGemini, cfg.Generation.Provider)
}

func TestFromEnv_FailsFast(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"zero interval", "MONITOR_POLL_INTERVAL", "0s", "MONITOR_POLL_INTERVAL"},
		{"negative interval", "MONITOR_POLL_INTERVAL", "-1m", "MONITOR_POLL_INTERVAL"},
		{"unparseable interval", "MONITOR_POLL_INTERVAL", "soon", "MONITOR_POLL_INTERVAL"},
		{"threshold above one", "INSIGHT_SIGNIFICANCE_THRESHOLD", "1.5", "INSIGHT_SIGNIFICANCE_THRESHOLD"},
		{"history below two", "MONITOR_SNAPSHOT_HISTORY", "1", "MONITOR_SNAPSHOT_HISTORY"},
		{"zero rate", "GENERATION_RATE_PER_MINUTE", "0", "GENERATION_RATE_PER_MINUTE"},
		{"zero cache", "INSIGHT_CACHE_SIZE", "0", "INSIGHT_CACHE_SIZE"},
		{"negative archive timeout", "ARCHIVE_TIMEOUT", "-1s", "ARCHIVE_TIMEOUT"},
		{"unknown broker", "BROKER", "ibkr", "BROKER"},
		{"unknown provider", "GENERATION_PROVIDER", "oracle", "GENERATION_PROVIDER"},
		{"provider without key", "GENERATION_PROVIDER", "openai", "OPENAI_API_KEY"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DATA_DIR", t.TempDir())
			t.Setenv(tc.key, tc.value)

			cfg, err := FromEnv()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_ArchiveCredentialsPaired(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	cfg, err := FromEnv()
	require.NoError(t, err)

	cfg.Archive = ArchiveConfig{Bucket: "snapshots", AccessKeyID: "id"}
	assert.Error(t, cfg.Validate())

	cfg.Archive.SecretAccessKey = "secret"
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Archive.Enabled())
}
