package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the config dir in it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "purchasebot")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Slack.BotToken.IsSet())
}

func TestLoadWithFile_YAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
slack:
  bot_token: xoxb-from-file
  channel: "#lab-orders"
  rate_limit: 2.5
storage:
  root: /srv/purchasebot
server:
  http_port: 8080
  shutdown_timeout: 30s
events:
  nats_url: nats://localhost:4222
log:
  level: debug
  format: console
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "xoxb-from-file", cfg.Slack.BotToken.Value())
	assert.Equal(t, "#lab-orders", cfg.Slack.Channel)
	assert.Equal(t, 2.5, cfg.Slack.RateLimit)
	assert.Equal(t, 5, cfg.Slack.RateBurst)
	assert.Equal(t, "/srv/purchasebot", cfg.Storage.Root)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "nats://localhost:4222", cfg.Events.NATSURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "slack:\n  channel: \"#from-file\"\nserver:\n  http_port: 8080\n", 0400)

	t.Setenv("SLACK_CHANNEL", "#from-env")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-from-env")
	t.Setenv("SERVER_HTTP_PORT", "9000")
	t.Setenv("STORAGE_ROOT", "/data")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "45s")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "#from-env", cfg.Slack.Channel)
	assert.Equal(t, "xoxb-from-env", cfg.Slack.BotToken.Value())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/data", cfg.Storage.Root)
}

func TestLoadWithFile_Rejections(t *testing.T) {
	t.Run("outside allowed dirs", func(t *testing.T) {
		setupTestHome(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		_, err := LoadWithFile(path)
		assert.ErrorIs(t, err, ErrConfigPath)
	})

	t.Run("sibling prefix dir", func(t *testing.T) {
		dir := setupTestHome(t)
		evil := dir + "-evil"
		require.NoError(t, os.MkdirAll(evil, 0700))
		_, err := LoadWithFile(filepath.Join(evil, "config.yaml"))
		assert.ErrorIs(t, err, ErrConfigPath)
	})

	t.Run("world readable", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "log:\n  level: info\n", 0644)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})

	t.Run("too large", func(t *testing.T) {
		dir := setupTestHome(t)
		big := make([]byte, maxConfigFileSize+10)
		for i := range big {
			big[i] = '#'
		}
		path := writeConfig(t, dir, string(big), 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("invalid values", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "log:\n  format: xml\n", 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation failed")
	})
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"SLACK_BOT_TOKEN":         "slack.bot_token",
		"SERVER_HTTP_PORT":        "server.http_port",
		"EVENTS_NATS_URL":         "events.nats_url",
		"LOG_LEVEL":               "log.level",
		"PATH":                    "",
		"HOME":                    "",
		"GOPATH_EXTRA":            "",
		"SLACK_":                  "",
		"SERVER_SHUTDOWN_TIMEOUT": "server.shutdown_timeout",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, envKey(in))
		})
	}
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())
	info, err := os.Stat(filepath.Join(home, ".config", "purchasebot"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadWithFile_Telemetry(t *testing.T) {
	setupTestHome(t)
	t.Setenv("TELEMETRY_ENABLED", "true")
	t.Setenv("TELEMETRY_ENDPOINT", "localhost:4318")
	t.Setenv("TELEMETRY_PROTOCOL", "http/protobuf")
	t.Setenv("TELEMETRY_INSECURE", "true")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Telemetry.Endpoint)
	assert.Equal(t, "http/protobuf", cfg.Telemetry.Protocol)
	assert.Equal(t, "purchasebot", cfg.Telemetry.ServiceName)
}
