package bot

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	hzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tgifai/tgflow/internal/config"
	"github.com/tgifai/tgflow/internal/dispatch"
	"github.com/tgifai/tgflow/internal/intent"
	"github.com/tgifai/tgflow/internal/pkg/logs"
	"github.com/tgifai/tgflow/internal/pkg/utils"
	"github.com/tgifai/tgflow/internal/transport"
	"github.com/tgifai/tgflow/internal/transport/polling"
	"github.com/tgifai/tgflow/internal/transport/webhook"
)

const maxPollLimit = 100

type PollingOptions struct {
	Offset             int64
	Limit              int
	Timeout            time.Duration
	AllowedUpdates     []string
	DropPendingUpdates bool

	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

type WebhookOptions struct {
	URL  string
	Host string
	Port int
	Path string
	// Certificate is a PEM file uploaded with setWebhook for self-signed setups.
	Certificate        string
	IPAddress          string
	MaxConnections     int
	SecretToken        string
	AllowedUpdates     []string
	DropPendingUpdates bool

	ServerOptions []hzconfig.Option
}

// LoginOptions selects exactly one transport. Both nil means polling with
// defaults.
type LoginOptions struct {
	Polling *PollingOptions
	Webhook *WebhookOptions
}

// LoginOptionsFrom maps a validated config onto LoginOptions.
func LoginOptionsFrom(cfg *config.Config) LoginOptions {
	var opts LoginOptions
	if p := cfg.Polling; p != nil {
		opts.Polling = &PollingOptions{
			Offset:             p.Offset,
			Limit:              p.Limit,
			Timeout:            time.Duration(p.Timeout) * time.Second,
			AllowedUpdates:     p.AllowedUpdates,
			DropPendingUpdates: p.DropPendingUpdates,
			RetryInterval:      time.Duration(p.RetryInterval) * time.Second,
			MaxRetryInterval:   time.Duration(p.MaxRetryInterval) * time.Second,
		}
	}
	if w := cfg.Webhook; w != nil {
		opts.Webhook = &WebhookOptions{
			URL:                w.URL,
			Host:               w.Host,
			Port:               w.Port,
			Path:               w.Path,
			Certificate:        w.Certificate,
			IPAddress:          w.IPAddress,
			MaxConnections:     w.MaxConnections,
			SecretToken:        w.SecretToken,
			AllowedUpdates:     w.AllowedUpdates,
			DropPendingUpdates: w.DropPendingUpdates,
		}
	}
	return opts
}

// Login resolves the bot identity, emits "ready", prepares the selected
// transport with the platform and starts it in the background. Use Done and
// Err to follow the transport, Disconnect to stop it.
func (b *Bot) Login(ctx context.Context, opts LoginOptions) (err error) {
	if opts.Polling != nil && opts.Webhook != nil {
		return fmt.Errorf("%w: polling and webhook are mutually exclusive", config.ErrConfiguration)
	}
	if opts.Polling == nil && opts.Webhook == nil {
		opts.Polling = &PollingOptions{}
	}

	b.mu.Lock()
	if b.loggedIn {
		b.mu.Unlock()
		return ErrAlreadyLoggedIn
	}
	b.loggedIn = true
	b.mu.Unlock()
	defer func() {
		if err != nil {
			b.mu.Lock()
			b.loggedIn = false
			b.mu.Unlock()
		}
	}()

	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("resolve bot identity: %w", err)
	}
	b.mu.Lock()
	b.me = me
	b.mu.Unlock()
	logs.CtxInfo(ctx, "[bot] logged in as @%s (id=%d)", me.Username, me.ID)
	b.bus.Emit(ctx, dispatch.KeyReady, b.lifecycleContext(""))

	var tr transport.Transport
	if opts.Webhook != nil {
		tr, err = b.prepareWebhook(ctx, opts.Webhook)
	} else {
		tr, err = b.preparePolling(ctx, opts.Polling)
	}
	if err != nil {
		return err
	}
	b.run(ctx, tr)
	return nil
}

func (b *Bot) preparePolling(ctx context.Context, opts *PollingOptions) (transport.Transport, error) {
	if opts.Limit < 0 || opts.Limit > maxPollLimit {
		return nil, fmt.Errorf("%w: polling limit %d outside 1..%d", config.ErrConfiguration, opts.Limit, maxPollLimit)
	}
	if err := b.api.DeleteWebhook(ctx, opts.DropPendingUpdates); err != nil {
		return nil, fmt.Errorf("delete webhook: %w", err)
	}
	return polling.New(b.api, b.pipeline, polling.Options{
		Offset:           opts.Offset,
		Limit:            opts.Limit,
		Timeout:          opts.Timeout,
		AllowedUpdates:   b.allowedUpdates(opts.AllowedUpdates),
		RetryInterval:    opts.RetryInterval,
		MaxRetryInterval: opts.MaxRetryInterval,
	}), nil
}

func (b *Bot) prepareWebhook(ctx context.Context, opts *WebhookOptions) (transport.Transport, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid webhook url %q", config.ErrConfiguration, opts.URL)
	}
	if utils.IsPrivateHost(u.Hostname()) {
		logs.CtxWarn(ctx, "[bot] webhook host %s is private, the platform will not reach it", u.Hostname())
	}

	path := opts.Path
	if path == "" {
		path = u.Path
	}

	params := &bot.SetWebhookParams{
		URL:                opts.URL,
		IPAddress:          opts.IPAddress,
		MaxConnections:     opts.MaxConnections,
		AllowedUpdates:     b.allowedUpdates(opts.AllowedUpdates),
		DropPendingUpdates: opts.DropPendingUpdates,
		SecretToken:        opts.SecretToken,
	}
	if opts.Certificate != "" {
		f, err := os.Open(opts.Certificate)
		if err != nil {
			return nil, fmt.Errorf("%w: open webhook certificate: %w", config.ErrConfiguration, err)
		}
		defer f.Close()
		params.Certificate = &models.InputFileUpload{Filename: filepath.Base(opts.Certificate), Data: f}
	}
	if err := b.api.SetWebhook(ctx, params); err != nil {
		return nil, fmt.Errorf("set webhook: %w", err)
	}

	return webhook.New(b.pipeline, webhook.Options{
		Host:          opts.Host,
		Port:          opts.Port,
		Path:          path,
		SecretToken:   opts.SecretToken,
		ServerOptions: opts.ServerOptions,
	}), nil
}

func (b *Bot) allowedUpdates(explicit []string) []string {
	if len(explicit) > 0 {
		return explicit
	}
	return intent.Decode(b.intents)
}

func (b *Bot) run(ctx context.Context, tr transport.Transport) {
	runCtx := context.WithoutCancel(ctx)
	done := make(chan struct{})

	b.mu.Lock()
	b.transport = tr
	b.done = done
	b.err = nil
	b.mu.Unlock()

	go func() {
		defer close(done)
		err := tr.Start(runCtx)
		if err != nil {
			logs.CtxError(runCtx, "[bot] %s transport exited: %v", tr.Name(), err)
		}
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
	}()
}

// Done is closed when the active transport exits. Before Login it is
// already closed.
func (b *Bot) Done() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return b.done
}

// Err is the transport's exit error once Done is closed.
func (b *Bot) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// State reports the active transport's state, Idle before Login.
func (b *Bot) State() transport.State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.transport == nil {
		return transport.Idle
	}
	return b.transport.State()
}

// Disconnect stops the active transport and emits "disconnect" with reason.
// Handlers already running are not interrupted.
func (b *Bot) Disconnect(ctx context.Context, reason string) error {
	b.mu.Lock()
	tr, done := b.transport, b.done
	b.loggedIn = false
	b.mu.Unlock()

	var err error
	if tr != nil {
		logs.CtxInfo(ctx, "[bot] disconnecting %s transport: %s", tr.Name(), reason)
		err = tr.Stop(ctx)
		select {
		case <-done:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	}
	b.bus.Emit(ctx, dispatch.KeyDisconnect, b.lifecycleContext(reason))
	return err
}

func (b *Bot) lifecycleContext(reason string) *dispatch.Context {
	c := &dispatch.Context{Reason: reason}
	b.bind(c)
	return c
}
