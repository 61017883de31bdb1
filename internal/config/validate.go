package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/tgifai/tgflow/internal/intent"
)

const (
	defaultPollTimeoutSec      = 30
	defaultPollLimit           = 100
	defaultRetryIntervalSec    = 3
	defaultMaxRetryIntervalSec = 30
	defaultWebhookHost         = "0.0.0.0"
	defaultWebhookPort         = 8443
	defaultWebhookPath         = "/"
	defaultMetricsAddr         = ":9091"
	defaultMetricsPath         = "/metrics"
)

var statsParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate applies defaults and rejects configurations the bot cannot start
// with. Every failure wraps ErrConfiguration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config cannot be nil", ErrConfiguration)
	}

	c.Bot.Token = strings.TrimSpace(c.Bot.Token)
	if c.Bot.Token == "" {
		return fmt.Errorf("%w: bot token cannot be empty", ErrConfiguration)
	}
	if len(c.Bot.Intents) > 0 {
		f, err := intent.Parse(c.Bot.Intents)
		if err != nil {
			return fmt.Errorf("%w: bot.intents: %w", ErrConfiguration, err)
		}
		c.intents = f
	}

	if c.Polling != nil && c.Webhook != nil {
		return fmt.Errorf("%w: polling and webhook are mutually exclusive", ErrConfiguration)
	}
	if c.Polling == nil && c.Webhook == nil {
		c.Polling = &PollingConfig{}
	}
	if c.Polling != nil {
		c.Polling.applyDefaults()
	}
	if c.Webhook != nil {
		if err := c.Webhook.validate(); err != nil {
			return fmt.Errorf("%w: webhook: %w", ErrConfiguration, err)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			c.Metrics.Addr = defaultMetricsAddr
		}
		if c.Metrics.Path == "" {
			c.Metrics.Path = defaultMetricsPath
		}
	}

	c.Stats.Schedule = strings.TrimSpace(c.Stats.Schedule)
	if c.Stats.Schedule != "" {
		if _, err := statsParser.Parse(c.Stats.Schedule); err != nil {
			return fmt.Errorf("%w: stats.schedule %q: %w", ErrConfiguration, c.Stats.Schedule, err)
		}
	}
	return nil
}

func (p *PollingConfig) applyDefaults() {
	if p.Timeout <= 0 {
		p.Timeout = defaultPollTimeoutSec
	}
	if p.Limit <= 0 || p.Limit > defaultPollLimit {
		p.Limit = defaultPollLimit
	}
	if p.RetryInterval <= 0 {
		p.RetryInterval = defaultRetryIntervalSec
	}
	if p.MaxRetryInterval < p.RetryInterval {
		p.MaxRetryInterval = max(defaultMaxRetryIntervalSec, p.RetryInterval)
	}
}

func (w *WebhookConfig) validate() error {
	w.URL = strings.TrimSpace(w.URL)
	if w.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(w.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid url %q", w.URL)
	}
	if w.Host == "" {
		w.Host = defaultWebhookHost
	}
	if w.Port <= 0 {
		w.Port = defaultWebhookPort
	}
	if w.Port > 65535 {
		return fmt.Errorf("invalid port %d", w.Port)
	}
	if w.Path == "" {
		w.Path = u.Path
	}
	if w.Path == "" {
		w.Path = defaultWebhookPath
	}
	if !strings.HasPrefix(w.Path, "/") {
		w.Path = "/" + w.Path
	}
	if w.MaxConnections < 0 || w.MaxConnections > 100 {
		return fmt.Errorf("max_connections must be within 1..100")
	}
	return nil
}
