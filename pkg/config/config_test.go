package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duochat/duochat/pkg/chat"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2*time.Second, cfg.Widget.PollInterval.Duration)
	assert.Equal(t, 800*time.Millisecond, cfg.Widget.ReplyDelay.Duration)
	assert.Equal(t, chat.ChannelAI, cfg.DefaultChannel())
	assert.Equal(t, "userSession", cfg.Session.Key)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", cfg.Server.BaseURL)
}

func TestLoadConfigJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"base_url": "https://chat.example.com"},
		"widget": {"default_channel": "support", "poll_interval": "5s"}
	}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", cfg.Server.BaseURL)
	assert.Equal(t, chat.ChannelSupport, cfg.DefaultChannel())
	assert.Equal(t, 5*time.Second, cfg.Widget.PollInterval.Duration)
	// Untouched fields keep their defaults.
	assert.Equal(t, 800*time.Millisecond, cfg.Widget.ReplyDelay.Duration)
}

func TestLoadConfigTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
base_url = "http://10.0.0.2:5000"

[widget]
reply_delay = "1s"
locale = "en"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:5000", cfg.Server.BaseURL)
	assert.Equal(t, time.Second, cfg.Widget.ReplyDelay.Duration)
	assert.Equal(t, "en", cfg.Widget.Locale)
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
widget:
  default_channel: support
  poll_interval: 1500ms
preview:
  port: 9000
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, chat.ChannelSupport, cfg.DefaultChannel())
	assert.Equal(t, 1500*time.Millisecond, cfg.Widget.PollInterval.Duration)
	assert.Equal(t, 9000, cfg.Preview.Port)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DUOCHAT_SERVER_BASE_URL", "http://override:8080")
	t.Setenv("DUOCHAT_WIDGET_POLL_INTERVAL", "250ms")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "http://override:8080", cfg.Server.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Widget.PollInterval.Duration)
}

func TestLoadConfigFromEnvJSON(t *testing.T) {
	t.Setenv("DUOCHAT_CONFIG_JSON", `{"widget":{"default_channel":"support"}}`)

	cfg, err := LoadConfig("/nonexistent/config.json")
	require.NoError(t, err)
	assert.Equal(t, chat.ChannelSupport, cfg.DefaultChannel())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"widget":{"default_channel":"sales"}}`), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.json", "out.toml", "out.yaml"} {
		cfg := DefaultConfig()
		cfg.Widget.PollInterval = Duration{3 * time.Second}
		path := filepath.Join(dir, "nested", name)

		require.NoError(t, SaveConfig(path, cfg))
		loaded, err := LoadConfig(path)
		require.NoError(t, err, name)
		assert.Equal(t, 3*time.Second, loaded.Widget.PollInterval.Duration, name)
	}
}
