// Package config loads client configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmcleod/mealdraw/internal/util"
)

// Environment variables that override file values.
const (
	EnvBaseURL     = "MEALDRAW_BASE_URL"
	EnvDataDir     = "MEALDRAW_DATA_DIR"
	EnvWrappingKey = "MEALDRAW_WRAPPING_KEY"
	EnvLogLevel    = "MEALDRAW_LOG_LEVEL"
)

// wrappingKeySalt scopes passphrase-derived wrapping keys to this application.
var wrappingKeySalt = []byte("mealdraw:wrapping-key:v1")

// Config is the complete client configuration.
type Config struct {
	BaseURL     string          `yaml:"base_url"`
	DataDir     string          `yaml:"data_dir"`
	WrappingKey string          `yaml:"wrapping_key,omitempty"`
	Log         LogConfig       `yaml:"log"`
	ColdStart   ColdStartConfig `yaml:"cold_start"`
	Retry       RetryConfig     `yaml:"retry"`
	Expiry      ExpiryConfig    `yaml:"expiry"`
	Guard       GuardConfig     `yaml:"guard"`
	Server      ServerConfig    `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ColdStartConfig struct {
	SuccessThreshold time.Duration `yaml:"success_threshold"`
	ErrorThreshold   time.Duration `yaml:"error_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
	NoticeTimeout    time.Duration `yaml:"notice_timeout"`
}

type RetryConfig struct {
	Delay time.Duration `yaml:"delay"`
	// UnsafeMethods also retries POST and PATCH.
	UnsafeMethods bool `yaml:"unsafe_methods"`
	// SkipClientErrors stops 4xx responses other than 408 and 429 from
	// being retried.
	SkipClientErrors bool `yaml:"skip_client_errors"`
}

type ExpiryConfig struct {
	Cooldown    time.Duration `yaml:"cooldown"`
	LandingPath string        `yaml:"landing_path"`
}

type GuardConfig struct {
	ValidateInterval time.Duration `yaml:"validate_interval"`
	HomePath         string        `yaml:"home_path"`
	LoginPath        string        `yaml:"login_path"`
}

// ServerConfig configures the development backend.
type ServerConfig struct {
	Addr    string        `yaml:"addr"`
	Latency time.Duration `yaml:"latency"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:8080",
		DataDir: "./data",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		ColdStart: ColdStartConfig{
			SuccessThreshold: 4 * time.Second,
			ErrorThreshold:   8 * time.Second,
			Cooldown:         10 * time.Second,
			NoticeTimeout:    3 * time.Second,
		},
		Retry: RetryConfig{
			Delay: 3 * time.Second,
		},
		Expiry: ExpiryConfig{
			Cooldown:    time.Second,
			LandingPath: "/login",
		},
		Guard: GuardConfig{
			ValidateInterval: 5 * time.Minute,
			HomePath:         "/",
			LoginPath:        "/login",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// LoadConfig reads a YAML file on top of the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	cfg.ApplyEnv()

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MEALDRAW_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvWrappingKey); v != "" {
		c.WrappingKey = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// ValidateConfig validates a client configuration
func ValidateConfig(c *Config) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", c.BaseURL)
	}
	if c.ColdStart.SuccessThreshold <= 0 || c.ColdStart.ErrorThreshold <= 0 {
		return fmt.Errorf("cold start thresholds must be positive")
	}
	if c.ColdStart.Cooldown < 0 || c.Expiry.Cooldown < 0 {
		return fmt.Errorf("cooldowns must be non-negative")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry delay must be non-negative")
	}
	for name, p := range map[string]string{
		"expiry.landing_path": c.Expiry.LandingPath,
		"guard.home_path":     c.Guard.HomePath,
		"guard.login_path":    c.Guard.LoginPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/', got %q", name, p)
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// SaveConfig saves configuration to a YAML file. The wrapping key is never written.
func SaveConfig(c *Config, path string) error {
	out := *c
	out.WrappingKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// WrappingKeyBytes resolves the configured wrapping key. A 64-character hex
// string is used as-is; anything else is treated as a passphrase and
// stretched with HKDF.
func (c *Config) WrappingKeyBytes() ([]byte, error) {
	if c.WrappingKey == "" {
		return nil, fmt.Errorf("wrapping key not configured (set %s)", EnvWrappingKey)
	}
	if len(c.WrappingKey) == 2*util.AESKeySize {
		if key, err := util.HexDecode(c.WrappingKey); err == nil {
			return key, nil
		}
	}
	return util.HKDF([]byte(c.WrappingKey), wrappingKeySalt, []byte("snapshot"))
}

// NewLogger builds the slog.Logger described by the log section.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
