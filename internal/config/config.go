package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/tgifai/tgflow/internal/intent"
)

// ErrConfiguration marks failures that must abort startup.
var ErrConfiguration = errors.New("configuration error")

type (
	Config struct {
		Bot     BotConfig      `yaml:"bot"`
		Polling *PollingConfig `yaml:"polling,omitempty"`
		Webhook *WebhookConfig `yaml:"webhook,omitempty"`
		Admin   AdminConfig    `yaml:"admin"`
		Metrics MetricsConfig  `yaml:"metrics"`
		Stats   StatsConfig    `yaml:"stats"`
		Logging LoggingConfig  `yaml:"logging"`

		intents *intent.Filter
	}

	BotConfig struct {
		Token  string `yaml:"token"`
		APIURL string `yaml:"api_url"`
		// Intents accepts platform names or integer masks.
		Intents []any `yaml:"intents"`
	}

	PollingConfig struct {
		Offset             int64    `yaml:"offset"`
		Limit              int      `yaml:"limit"`
		Timeout            int      `yaml:"timeout"` // seconds
		AllowedUpdates     []string `yaml:"allowed_updates"`
		DropPendingUpdates bool     `yaml:"drop_pending_updates"`
		RetryInterval      int      `yaml:"retry_interval"`     // seconds
		MaxRetryInterval   int      `yaml:"max_retry_interval"` // seconds
	}

	WebhookConfig struct {
		URL                string   `yaml:"url"`
		Host               string   `yaml:"host"`
		Port               int      `yaml:"port"`
		Path               string   `yaml:"path"`
		Certificate        string   `yaml:"certificate"` // path to a PEM file
		IPAddress          string   `yaml:"ip_address"`
		MaxConnections     int      `yaml:"max_connections"`
		SecretToken        string   `yaml:"secret_token"`
		AllowedUpdates     []string `yaml:"allowed_updates"`
		DropPendingUpdates bool     `yaml:"drop_pending_updates"`
	}

	AdminConfig struct {
		// Bind enables the health endpoint when non-empty, e.g. "127.0.0.1:8081".
		Bind string `yaml:"bind"`
	}

	MetricsConfig struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
		Path    string `yaml:"path"`
	}

	StatsConfig struct {
		// Schedule is a cron expression ("@every 5m", "0 * * * *"); empty disables.
		Schedule string `yaml:"schedule"`
	}

	LoggingConfig struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // json, text
		Output     string `yaml:"output"` // stdout, file, both
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
	}
)

// IntentFilter returns the filter parsed by Validate. It is nil when no
// intents were configured, meaning the platform default set.
func (c *Config) IntentFilter() *intent.Filter {
	if c == nil {
		return nil
	}
	return c.intents
}

// Clone .
func (c *Config) Clone() (*Config, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	raw, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var cloned Config
	if err := sonic.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("unmarshal config clone: %w", err)
	}
	cloned.intents = c.intents

	return &cloned, nil
}

// Hash .
func (c *Config) Hash() string {
	json := sonic.Config{SortMapKeys: true, UseNumber: true}.Froze()
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
