package dispatch

import (
	"context"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgifai/tgflow/internal/api/apitest"
	"github.com/tgifai/tgflow/internal/pattern"
	"github.com/tgifai/tgflow/internal/update"
)

func newContext(t *testing.T, raw string) (*Context, *apitest.Fake) {
	t.Helper()
	u, err := update.Normalize([]byte(raw))
	require.NoError(t, err)
	fake := &apitest.Fake{}
	return &Context{Update: u, API: fake}, fake
}

const textMessage = `{"update_id":1,"message":{"message_id":3,"date":1,"chat":{"id":5,"type":"private"},"text":"hi"}}`

func TestContext_ReplyQuotesMessage(t *testing.T) {
	c, fake := newContext(t, textMessage)

	_, err := c.Reply(context.Background(), "pong", WithParseMode(models.ParseModeHTML))
	require.NoError(t, err)
	require.Len(t, fake.Sent, 1)

	sent := fake.Sent[0]
	assert.Equal(t, int64(5), sent.ChatID)
	assert.Equal(t, "pong", sent.Text)
	assert.Equal(t, models.ParseModeHTML, sent.ParseMode)
	require.NotNil(t, sent.ReplyParameters)
	assert.Equal(t, 3, sent.ReplyParameters.MessageID)
}

func TestContext_DeleteAndReact(t *testing.T) {
	c, fake := newContext(t, textMessage)

	require.NoError(t, c.Delete(context.Background()))
	require.NoError(t, c.React(context.Background(), "👍"))

	require.Len(t, fake.Deleted, 1)
	assert.Equal(t, 3, fake.Deleted[0].MessageID)
	require.Len(t, fake.Reactions, 1)
	require.Len(t, fake.Reactions[0].Reaction, 1)
	assert.Equal(t, "👍", fake.Reactions[0].Reaction[0].ReactionTypeEmoji.Emoji)
}

func TestContext_AnswerCallback(t *testing.T) {
	c, fake := newContext(t, `{"update_id":2,"callback_query":{"id":"cb9","from":{"id":1,"is_bot":false,"first_name":"a"},"chat_instance":"c","data":"d"}}`)

	require.NoError(t, c.AnswerCallback(context.Background(), "done", true))
	require.Len(t, fake.Answered, 1)
	assert.Equal(t, "cb9", fake.Answered[0].CallbackQueryID)
	assert.True(t, fake.Answered[0].ShowAlert)
}

func TestContext_Unsupported(t *testing.T) {
	c, fake := newContext(t, `{"update_id":4,"poll":{"id":"p"}}`)
	ctx := context.Background()

	_, err := c.Reply(ctx, "x")
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, c.AnswerCallback(ctx, "", false), ErrUnsupported)
	assert.ErrorIs(t, c.Delete(ctx), ErrUnsupported)
	assert.ErrorIs(t, c.React(ctx, "👍"), ErrUnsupported)
	assert.Empty(t, fake.Sent)
}

func TestContext_WithCopies(t *testing.T) {
	c, _ := newContext(t, textMessage)
	cmd := pattern.ParseCommand("/start a")
	cp := c.With(&cmd)
	assert.Nil(t, c.Command)
	assert.Equal(t, "/start", cp.Command.Command)
	assert.Equal(t, c.Update.ID(), cp.Update.ID())
}
