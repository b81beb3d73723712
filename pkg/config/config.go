package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	defaultInboundPath        = "/sunbird/inbound"
	defaultGatewayHost        = "0.0.0.0"
	defaultGatewayPort        = 8090
	defaultRequestTimeoutSecs = 30
	defaultCacheTTLSeconds    = 30 * 60
	defaultCacheMaxEntries    = 1000

	AuthModeNone   = "none"
	AuthModeBasic  = "basic"
	AuthModeOAuth2 = "oauth2"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels   ChannelsConfig   `json:"channels"`
	Gateway    GatewayConfig    `json:"gateway"`
	TokenCache TokenCacheConfig `json:"token_cache"`
	Logging    LoggingConfig    `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores per-channel adapter settings.
type ChannelsConfig struct {
	Sunbird  SunbirdConfig  `json:"sunbird"`
	Telegram TelegramConfig `json:"telegram"`
}

// SunbirdConfig configures the web portal adapter and its transport.
type SunbirdConfig struct {
	Enabled               bool       `json:"enabled"`
	OutboundURL           string     `json:"outbound_url"`
	AdminUserID           string     `json:"admin_user_id"`
	RequestTimeoutSeconds int        `json:"request_timeout_seconds"`
	Auth                  AuthConfig `json:"auth"`
}

// AuthConfig selects how outbound transport requests are authorized.
type AuthConfig struct {
	Mode string `json:"mode"`

	Username    string `json:"username"`
	PasswordEnv string `json:"password_env"`

	TokenURL        string   `json:"token_url"`
	ClientID        string   `json:"client_id"`
	ClientSecretEnv string   `json:"client_secret_env"`
	Scopes          []string `json:"scopes"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	InboundPath string `json:"inbound_path"`
	// InboxURL receives canonical inbound messages; empty means log only.
	InboxURL string `json:"inbox_url"`
}

// TokenCacheConfig bounds the shared credential cache.
type TokenCacheConfig struct {
	TTLSeconds int   `json:"ttl_seconds"`
	MaxEntries int64 `json:"max_entries"`
}

// envOverrides lists environment variables that win over file config.
type envOverrides struct {
	OutboundURL       string `envconfig:"SUNBIRD_OUTBOUND_URL"`
	AdminUserID       string `envconfig:"SUNBIRD_ADMIN_USER_ID"`
	InboxURL          string `envconfig:"SUNBIRD_INBOX_URL"`
	TelegramBotToken  string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramAllowFrom string `envconfig:"TELEGRAM_ALLOW_FROM"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset values with their defaults.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Gateway.Host) == "" {
		c.Gateway.Host = defaultGatewayHost
	}
	if c.Gateway.Port <= 0 {
		c.Gateway.Port = defaultGatewayPort
	}
	if strings.TrimSpace(c.Gateway.InboundPath) == "" {
		c.Gateway.InboundPath = defaultInboundPath
	}
	if c.Channels.Sunbird.RequestTimeoutSeconds <= 0 {
		c.Channels.Sunbird.RequestTimeoutSeconds = defaultRequestTimeoutSecs
	}
	if strings.TrimSpace(c.Channels.Sunbird.Auth.Mode) == "" {
		c.Channels.Sunbird.Auth.Mode = AuthModeNone
	}
	if c.TokenCache.TTLSeconds <= 0 {
		c.TokenCache.TTLSeconds = defaultCacheTTLSeconds
	}
	if c.TokenCache.MaxEntries <= 0 {
		c.TokenCache.MaxEntries = defaultCacheMaxEntries
	}
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment overrides: %w", err)
	}

	if value := strings.TrimSpace(env.OutboundURL); value != "" {
		cfg.Channels.Sunbird.OutboundURL = value
	}
	if value := strings.TrimSpace(env.AdminUserID); value != "" {
		cfg.Channels.Sunbird.AdminUserID = value
	}
	if value := strings.TrimSpace(env.InboxURL); value != "" {
		cfg.Gateway.InboxURL = value
	}
	if value := strings.TrimSpace(env.TelegramBotToken); value != "" {
		cfg.Channels.Telegram.Token = value
	}
	if value := strings.TrimSpace(env.TelegramAllowFrom); value != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(value)
	}

	return nil
}

// SecretFromEnv reads a secret referenced by env var name; an empty name yields "".
func SecretFromEnv(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is SUNBIRD_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("SUNBIRD_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("SUNBIRD_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
