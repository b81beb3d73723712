package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, `{
	  "channels": {
	    "sunbird": {
	      "enabled": true,
	      "outbound_url": "http://transport.local/adapterOutbound",
	      "auth": {"mode": "basic", "username": "test", "password_env": "SUNBIRD_TEST_PASSWORD"}
	    },
	    "telegram": {"enabled": false}
	  },
	  "gateway": {"host": "127.0.0.1", "port": 18790},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`)
	t.Setenv("SUNBIRD_CONFIG", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.True(t, cfg.Channels.Sunbird.Enabled)
	require.Equal(t, "http://transport.local/adapterOutbound", cfg.Channels.Sunbird.OutboundURL)
	require.Equal(t, AuthModeBasic, cfg.Channels.Sunbird.Auth.Mode)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Logging.AddSource)

	require.Equal(t, defaultInboundPath, cfg.Gateway.InboundPath)
	require.Equal(t, defaultRequestTimeoutSecs, cfg.Channels.Sunbird.RequestTimeoutSeconds)
	require.Equal(t, defaultCacheTTLSeconds, cfg.TokenCache.TTLSeconds)
	require.Equal(t, int64(defaultCacheMaxEntries), cfg.TokenCache.MaxEntries)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"channels": {"sunbird": {"outbound_url": "http://file"}}}`)
	t.Setenv("SUNBIRD_CONFIG", path)
	t.Setenv("SUNBIRD_OUTBOUND_URL", "http://env/adapterOutbound")
	t.Setenv("SUNBIRD_INBOX_URL", "http://platform/inbox")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_ALLOW_FROM", " 1, ,2 ")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "http://env/adapterOutbound", cfg.Channels.Sunbird.OutboundURL)
	require.Equal(t, "http://platform/inbox", cfg.Gateway.InboxURL)
	require.Equal(t, "123:abc", cfg.Channels.Telegram.Token)
	require.Equal(t, []string{"1", "2"}, cfg.Channels.Telegram.AllowFrom)
	require.Equal(t, AuthModeNone, cfg.Channels.Sunbird.Auth.Mode)
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("SUNBIRD_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadConfigRejectsMalformedJSON(t *testing.T) {
	t.Setenv("SUNBIRD_CONFIG", writeConfig(t, `{"channels":`))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSecretFromEnv(t *testing.T) {
	t.Setenv("SUNBIRD_TEST_SECRET", "hunter2")

	require.Equal(t, "hunter2", SecretFromEnv(" SUNBIRD_TEST_SECRET "))
	require.Equal(t, "", SecretFromEnv(""))
}
