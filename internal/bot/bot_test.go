package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgifai/tgflow/internal/api/apitest"
	"github.com/tgifai/tgflow/internal/config"
	"github.com/tgifai/tgflow/internal/dispatch"
	"github.com/tgifai/tgflow/internal/intent"
	"github.com/tgifai/tgflow/internal/pattern"
	"github.com/tgifai/tgflow/internal/reaction"
	"github.com/tgifai/tgflow/internal/transport"
	"github.com/tgifai/tgflow/internal/transport/webhook"
)

func newBot(t *testing.T, opts ...Option) (*Bot, *apitest.Fake) {
	t.Helper()
	fake := &apitest.Fake{Me: &models.User{ID: 99, IsBot: true, Username: "bot1"}}
	b, err := New("123:abc", append([]Option{WithAPI(fake)}, opts...)...)
	require.NoError(t, err)
	return b, fake
}

// counter records handler invocations across dispatch goroutines.
type counter struct {
	mu   sync.Mutex
	hits []string
}

func (c *counter) handler(tag string) dispatch.Handler {
	return func(context.Context, *dispatch.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.hits = append(c.hits, tag)
		return nil
	}
}

func (c *counter) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.hits...)
}

func feed(t *testing.T, b *Bot, raw string) {
	t.Helper()
	require.NoError(t, b.HandleRaw(context.Background(), []byte(raw)))
	b.Wait()
}

func text(kind, s string) string {
	return fmt.Sprintf(`{"update_id":1,%q:{"message_id":2,"date":1,"chat":{"id":3,"type":"group"},"text":%q}}`, kind, s)
}

func TestNew_EmptyToken(t *testing.T) {
	_, err := New(" ")
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestLogin_Polling(t *testing.T) {
	b, fake := newBot(t)
	var (
		mu     sync.Mutex
		ready  *models.User
		reason string
	)
	b.On(dispatch.KeyReady, func(_ context.Context, c *dispatch.Context) error {
		mu.Lock()
		defer mu.Unlock()
		ready = c.Me
		return nil
	})
	b.On(dispatch.KeyDisconnect, func(_ context.Context, c *dispatch.Context) error {
		mu.Lock()
		defer mu.Unlock()
		reason = c.Reason
		return nil
	})

	require.NoError(t, b.Login(context.Background(), LoginOptions{Polling: &PollingOptions{DropPendingUpdates: true}}))
	assert.ErrorIs(t, b.Login(context.Background(), LoginOptions{}), ErrAlreadyLoggedIn)

	assert.Equal(t, []bool{true}, fake.DeleteWebhooks)
	assert.Equal(t, "bot1", b.Me().Username)
	require.Eventually(t, func() bool { return len(fake.Calls()) > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, transport.Running, b.State())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Disconnect(ctx, "bye"))

	<-b.Done()
	assert.NoError(t, b.Err())
	assert.Equal(t, transport.Stopped, b.State())
	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, ready)
	assert.Equal(t, int64(99), ready.ID)
	assert.Equal(t, "bye", reason)
}

func TestLogin_AllowedUpdatesFromIntents(t *testing.T) {
	f, err := intent.New(intent.Message, intent.CallbackQuery)
	require.NoError(t, err)
	b, fake := newBot(t, WithIntents(f))

	require.NoError(t, b.Login(context.Background(), LoginOptions{}))
	defer b.Disconnect(context.Background(), "")

	require.Eventually(t, func() bool { return len(fake.Calls()) > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"message", "callback_query"}, fake.Calls()[0].AllowedUpdates)
}

func TestLogin_Errors(t *testing.T) {
	b, _ := newBot(t)
	err := b.Login(context.Background(), LoginOptions{Polling: &PollingOptions{}, Webhook: &WebhookOptions{}})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	err = b.Login(context.Background(), LoginOptions{Polling: &PollingOptions{Limit: 101}})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	failing, fake := newBot(t)
	fake.Err = errors.New("unreachable")
	assert.Error(t, failing.Login(context.Background(), LoginOptions{}))
	assert.Nil(t, failing.Me())
	assert.Equal(t, transport.Idle, failing.State())

	// a failed login can be retried
	fake.Err = nil
	require.NoError(t, failing.Login(context.Background(), LoginOptions{}))
	require.NoError(t, failing.Disconnect(context.Background(), ""))
}

func TestPrepareWebhook(t *testing.T) {
	b, fake := newBot(t)
	tr, err := b.prepareWebhook(context.Background(), &WebhookOptions{
		URL:            "https://127.0.0.1:8443/tg/hook",
		Host:           "127.0.0.1",
		Port:           8443,
		SecretToken:    "s3cret",
		MaxConnections: 10,
		AllowedUpdates: []string{"message"},
	})
	require.NoError(t, err)
	assert.Equal(t, webhook.Name, tr.Name())
	assert.Equal(t, transport.Idle, tr.State())

	require.Len(t, fake.Webhooks, 1)
	params := fake.Webhooks[0]
	assert.Equal(t, "https://127.0.0.1:8443/tg/hook", params.URL)
	assert.Equal(t, "s3cret", params.SecretToken)
	assert.Equal(t, 10, params.MaxConnections)
	assert.Equal(t, []string{"message"}, params.AllowedUpdates)

	_, err = b.prepareWebhook(context.Background(), &WebhookOptions{URL: "not a url"})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = b.prepareWebhook(context.Background(), &WebhookOptions{URL: "https://127.0.0.1/x", Certificate: "/nonexistent/cert.pem"})
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestCommand(t *testing.T) {
	b, _ := newBot(t)
	var got []*pattern.Command
	var mu sync.Mutex
	b.Command(pattern.Lit("like"), func(_ context.Context, c *dispatch.Context) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c.Command)
		return nil
	})

	feed(t, b, text("message", "/like ok  now"))
	feed(t, b, text("message", "/likeable"))
	feed(t, b, text("message", "/like@bot1"))

	require.Len(t, got, 1)
	assert.Equal(t, "/like", got[0].Command)
	assert.Equal(t, []string{"ok", "now"}, got[0].Args)
	assert.Equal(t, "/like ok now", got[0].Payload)

	require.NoError(t, b.Login(context.Background(), LoginOptions{}))
	defer b.Disconnect(context.Background(), "")

	feed(t, b, text("message", "/like@bot1"))
	assert.Len(t, got, 2)
}

func TestStartHelpSettings(t *testing.T) {
	b, _ := newBot(t)
	c := &counter{}
	b.Start(c.handler("start"))
	b.Help(c.handler("help"))
	b.Settings(c.handler("settings"))

	feed(t, b, text("message", "/start"))
	feed(t, b, text("message", "/help me"))
	feed(t, b, text("message", "/settings"))
	feed(t, b, text("message", "start"))

	assert.Equal(t, []string{"start", "help", "settings"}, c.get())
}

func TestAction(t *testing.T) {
	b, fake := newBot(t)
	c := &counter{}
	b.Action(pattern.Any("like", "dislike"), c.handler("answered"), true)
	b.Action(pattern.MustRe(`^page_\d+$`), c.handler("page"), false)

	cb := func(data string) string {
		return fmt.Sprintf(`{"update_id":5,"callback_query":{"id":"q1","from":{"id":1,"is_bot":false,"first_name":"a"},"chat_instance":"c","data":%q}}`, data)
	}
	feed(t, b, cb("like"))
	feed(t, b, cb("likes"))
	feed(t, b, cb("page_2"))

	assert.Equal(t, []string{"answered", "page"}, c.get())
	assert.Equal(t, 1, fake.AnsweredCount())
}

func TestHearsInlineGame(t *testing.T) {
	b, _ := newBot(t)
	c := &counter{}
	b.Hears(pattern.Lit("hello"), c.handler("hears"))
	b.InlineQuery(pattern.Any("cat", "dog"), c.handler("inline"))
	b.GameQuery(pattern.Lit("tetris"), c.handler("game"))

	feed(t, b, text("message", "oh hello there"))
	feed(t, b, text("message", "bye"))
	feed(t, b, `{"update_id":6,"inline_query":{"id":"i","from":{"id":1,"is_bot":false,"first_name":"a"},"query":"hotdog","offset":""}}`)
	feed(t, b, `{"update_id":7,"callback_query":{"id":"g","from":{"id":1,"is_bot":false,"first_name":"a"},"chat_instance":"c","game_short_name":"tetris_pro"}}`)

	assert.Equal(t, []string{"hears", "inline", "game"}, c.get())
}

func TestReactionHandler(t *testing.T) {
	b, _ := newBot(t)
	c := &counter{}
	b.Reaction([]string{"👍"}, reaction.ModeNew, c.handler("new"))
	b.Reaction([]string{"👍"}, reaction.ModeOld, c.handler("old"))
	b.Reaction([]string{"👍"}, reaction.ModeBoth, c.handler("both"))

	react := func(oldList, newList string) string {
		return fmt.Sprintf(`{"update_id":8,"message_reaction":{"chat":{"id":1,"type":"group"},"message_id":4,"user":{"id":11,"is_bot":false,"first_name":"C"},"date":1,"old_reaction":%s,"new_reaction":%s}}`, oldList, newList)
	}
	thumbs := `[{"type":"emoji","emoji":"👍"}]`

	feed(t, b, react(`[]`, thumbs))
	assert.Equal(t, []string{"new", "both"}, c.get())

	feed(t, b, react(thumbs, `[]`))
	assert.Equal(t, []string{"new", "both", "old", "both"}, c.get())

	feed(t, b, react(`[]`, `[{"type":"emoji","emoji":"🔥"}]`))
	assert.Len(t, c.get(), 4, "the mode all variant must not fire on unrelated reactions")
}

func TestEntityHandlers(t *testing.T) {
	b, _ := newBot(t)
	c := &counter{}
	b.TextHashtag(pattern.Lit("#go"), c.handler("hashtag"))
	b.TextEmail(pattern.MustRe(`@example\.com$`), c.handler("email"))
	regs := b.TextLink(pattern.Lit("https://go.dev"), c.handler("link"))
	require.Len(t, regs, 2)

	entity := func(kind, body, etype string, offset, length int) string {
		return fmt.Sprintf(`{"update_id":9,%q:{"message_id":2,"date":1,"chat":{"id":3,"type":"channel"},"text":%q,"entities":[{"type":%q,"offset":%d,"length":%d}]}}`,
			kind, body, etype, offset, length)
	}

	feed(t, b, entity("message", "love #go", "hashtag", 5, 3))
	feed(t, b, entity("channel_post", "love #go", "hashtag", 5, 3))
	feed(t, b, entity("message", "love #gopher", "hashtag", 5, 7))
	feed(t, b, entity("message", "mail me@example.com", "email", 5, 14))
	feed(t, b, entity("channel_post", "see https://go.dev", "url", 4, 14))

	assert.Equal(t, []string{"hashtag", "hashtag", "email", "link"}, c.get())

	b.Off(regs...)
	feed(t, b, entity("message", "see https://go.dev", "url", 4, 14))
	assert.Len(t, c.get(), 4)
}

func TestUseSession(t *testing.T) {
	b, _ := newBot(t)
	type store struct{ name string }
	b.Use(&store{name: "mem"})

	var got any
	b.On("message", func(_ context.Context, c *dispatch.Context) error {
		got = c.Session
		return nil
	})
	feed(t, b, text("message", "x"))
	require.IsType(t, &store{}, got)
	assert.Equal(t, "mem", got.(*store).name)
}

func TestHandlerCount(t *testing.T) {
	b, _ := newBot(t)
	assert.Zero(t, b.HandlerCount())

	noop := func(context.Context, *dispatch.Context) error { return nil }
	b.On("message", noop)
	b.Start(noop)
	regs := b.TextEmail(pattern.Lit("a@b.c"), noop)
	assert.Equal(t, 4, b.HandlerCount())

	b.Off(regs...)
	assert.Equal(t, 2, b.HandlerCount())
}

func TestAwaitReaction(t *testing.T) {
	b, _ := newBot(t)
	done := make(chan error, 1)
	go func() {
		_, err := b.AwaitReaction(context.Background(), reaction.Options{Emoji: []string{"👍"}, Timeout: 5 * time.Second})
		done <- err
	}()
	require.Eventually(t, func() bool { return b.Bus().Len("message_reaction") == 1 }, time.Second, time.Millisecond)

	feed(t, b, `{"update_id":8,"message_reaction":{"chat":{"id":1,"type":"group"},"message_id":4,"user":{"id":11,"is_bot":false,"first_name":"C"},"date":1,"old_reaction":[],"new_reaction":[{"type":"emoji","emoji":"👍"}]}}`)
	assert.NoError(t, <-done)
}

func TestLoginOptionsFrom(t *testing.T) {
	cfg := &config.Config{
		Polling: &config.PollingConfig{Offset: 4, Limit: 50, Timeout: 20, DropPendingUpdates: true, RetryInterval: 2, MaxRetryInterval: 8},
	}
	opts := LoginOptionsFrom(cfg)
	require.NotNil(t, opts.Polling)
	assert.Nil(t, opts.Webhook)
	assert.Equal(t, int64(4), opts.Polling.Offset)
	assert.Equal(t, 20*time.Second, opts.Polling.Timeout)
	assert.Equal(t, 8*time.Second, opts.Polling.MaxRetryInterval)
	assert.True(t, opts.Polling.DropPendingUpdates)

	cfg = &config.Config{Webhook: &config.WebhookConfig{URL: "https://x.dev/h", Port: 8443, SecretToken: "t", IPAddress: "1.2.3.4"}}
	opts = LoginOptionsFrom(cfg)
	require.NotNil(t, opts.Webhook)
	assert.Equal(t, "1.2.3.4", opts.Webhook.IPAddress)
	assert.Equal(t, "t", opts.Webhook.SecretToken)
}
