package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ValidateConfig(cfg))

	assert.Less(t, cfg.ColdStart.SuccessThreshold, cfg.ColdStart.ErrorThreshold)
	assert.Equal(t, 10*time.Second, cfg.ColdStart.Cooldown)
	assert.Equal(t, 3*time.Second, cfg.Retry.Delay)
	assert.False(t, cfg.Retry.UnsafeMethods)
	assert.False(t, cfg.Retry.SkipClientErrors)
	assert.Equal(t, time.Second, cfg.Expiry.Cooldown)
	assert.Equal(t, "/login", cfg.Expiry.LandingPath)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mealdraw.yaml")
	err := os.WriteFile(path, []byte(`
base_url: https://api.example.com
cold_start:
  success_threshold: 2s
  cooldown: 30s
retry:
  delay: 500ms
  unsafe_methods: true
  skip_client_errors: true
guard:
  validate_interval: 1m
`), 0600)
	require.NoError(t, err)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.ColdStart.SuccessThreshold)
	assert.Equal(t, 8*time.Second, cfg.ColdStart.ErrorThreshold, "unset fields keep defaults")
	assert.Equal(t, 30*time.Second, cfg.ColdStart.Cooldown)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Delay)
	assert.True(t, cfg.Retry.UnsafeMethods)
	assert.True(t, cfg.Retry.SkipClientErrors)
	assert.Equal(t, time.Minute, cfg.Guard.ValidateInterval)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(EnvBaseURL, "https://env.example.com")
	t.Setenv(EnvDataDir, "/tmp/mealdraw")
	t.Setenv(EnvWrappingKey, "correct horse battery staple")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.BaseURL)
	assert.Equal(t, "/tmp/mealdraw", cfg.DataDir)
	assert.Equal(t, "correct horse battery staple", cfg.WrappingKey)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("retry: [unterminated"), 0600))
	_, err = LoadConfig(bad)
	require.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.BaseURL = "api" }, "base_url"},
		{"zero threshold", func(c *Config) { c.ColdStart.SuccessThreshold = 0 }, "thresholds"},
		{"negative cooldown", func(c *Config) { c.Expiry.Cooldown = -time.Second }, "cooldowns"},
		{"negative delay", func(c *Config) { c.Retry.Delay = -1 }, "retry delay"},
		{"landing path", func(c *Config) { c.Expiry.LandingPath = "login" }, "expiry.landing_path"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSaveConfig_OmitsWrappingKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WrappingKey = "secret"
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), "success_threshold: 4s")

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.ColdStart, loaded.ColdStart)
	assert.Equal(t, "secret", cfg.WrappingKey, "SaveConfig must not mutate its input")
}

func TestWrappingKeyBytes(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.WrappingKeyBytes()
	require.Error(t, err)

	cfg.WrappingKey = strings.Repeat("ab", 32)
	key, err := cfg.WrappingKeyBytes()
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xab}, 32), key)

	cfg.WrappingKey = "a passphrase"
	k1, err := cfg.WrappingKeyBytes()
	require.NoError(t, err)
	k2, _ := cfg.WrappingKeyBytes()
	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "text"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	LogConfig{Level: "info", Format: "json"}.NewLogger(&buf).Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}
