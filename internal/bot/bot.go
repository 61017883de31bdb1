// Package bot is the entry point most programs use: it owns one event bus,
// the platform client and, after Login, one active transport.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot/models"

	"github.com/tgifai/tgflow/internal/api"
	"github.com/tgifai/tgflow/internal/config"
	"github.com/tgifai/tgflow/internal/dispatch"
	"github.com/tgifai/tgflow/internal/intent"
	"github.com/tgifai/tgflow/internal/reaction"
	"github.com/tgifai/tgflow/internal/transport"
)

var ErrAlreadyLoggedIn = errors.New("bot is already logged in")

type Bot struct {
	api      api.Client
	bus      *dispatch.Bus
	pipeline *dispatch.Pipeline
	intents  *intent.Filter

	mu        sync.RWMutex
	me        *models.User
	session   any
	loggedIn  bool
	transport transport.Transport
	done      chan struct{}
	err       error
}

type options struct {
	client    api.Client
	serverURL string
	intents   *intent.Filter
	busOpts   []dispatch.Option
}

type Option func(*options)

// WithAPI replaces the platform client, mostly for tests.
func WithAPI(c api.Client) Option {
	return func(o *options) { o.client = c }
}

func WithServerURL(url string) Option {
	return func(o *options) { o.serverURL = url }
}

// WithIntents sets the update kinds requested when LoginOptions leave
// allowed_updates empty.
func WithIntents(f *intent.Filter) Option {
	return func(o *options) { o.intents = f }
}

func WithErrorHook(fn func(ctx context.Context, err *dispatch.HandlerError)) Option {
	return func(o *options) { o.busOpts = append(o.busOpts, dispatch.WithErrorHook(fn)) }
}

// New builds a bot. It fails with config.ErrConfiguration when token is empty.
func New(token string, opts ...Option) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: bot token is required", config.ErrConfiguration)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	client := o.client
	if client == nil {
		tg, err := api.New(token, api.WithServerURL(o.serverURL))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		client = tg
	}

	b := &Bot{
		api:     client,
		bus:     dispatch.NewBus(o.busOpts...),
		intents: o.intents,
	}
	b.pipeline = dispatch.NewPipeline(b.bus, b.bind)
	return b, nil
}

func (b *Bot) API() api.Client { return b.api }

func (b *Bot) Bus() *dispatch.Bus { return b.bus }

// Me is the identity resolved by Login, nil before.
func (b *Bot) Me() *models.User {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.me
}

// Use attaches an opaque session object to every subsequent Context.
func (b *Bot) Use(session any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = session
}

// Intents returns the filter set with WithIntents, possibly nil.
func (b *Bot) Intents() *intent.Filter { return b.intents }

// HandleRaw feeds one raw update through the pipeline, as a transport would.
func (b *Bot) HandleRaw(ctx context.Context, raw []byte) error {
	return b.pipeline.HandleRaw(ctx, raw)
}

// HandlerCount is the number of handlers registered across all keys.
func (b *Bot) HandlerCount() int {
	n := 0
	for _, key := range b.bus.Keys() {
		n += b.bus.Len(key)
	}
	return n
}

// Wait blocks until every dispatched update has finished its handlers.
func (b *Bot) Wait() { b.bus.Wait() }

// AwaitReaction collects reaction updates on this bot's bus.
func (b *Bot) AwaitReaction(ctx context.Context, opts reaction.Options) ([]reaction.Entry, error) {
	return reaction.Await(ctx, b.bus, opts)
}

func (b *Bot) bind(c *dispatch.Context) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c.API = b.api
	c.Me = b.me
	c.Session = b.session
}

func (b *Bot) username() string {
	if me := b.Me(); me != nil {
		return me.Username
	}
	return ""
}
