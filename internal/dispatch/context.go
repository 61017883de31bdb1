package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tgifai/tgflow/internal/api"
	"github.com/tgifai/tgflow/internal/pattern"
	"github.com/tgifai/tgflow/internal/update"
)

// ErrUnsupported is returned by a bound operation the update cannot serve,
// for example Reply on a poll update.
var ErrUnsupported = errors.New("operation not available for this update")

// Context is one update plus the operations bound to its chat, sender and
// message. A Context is built per update and never shared between updates.
type Context struct {
	Update update.Update
	API    api.Client
	// Me is the bot identity, nil until it has been resolved.
	Me *models.User
	// Session is the opaque object attached with Bot.Use.
	Session any

	// Command is set for handlers registered through command matching.
	Command *pattern.Command
	// Reason is set on the disconnect notification.
	Reason string
}

type SendOption func(*bot.SendMessageParams)

func WithParseMode(mode models.ParseMode) SendOption {
	return func(p *bot.SendMessageParams) { p.ParseMode = mode }
}

func WithReplyMarkup(markup models.ReplyMarkup) SendOption {
	return func(p *bot.SendMessageParams) { p.ReplyMarkup = markup }
}

// Send posts text to the chat the update came from.
func (c *Context) Send(ctx context.Context, text string, opts ...SendOption) (*models.Message, error) {
	chatID, ok := c.Update.ChatID()
	if !ok || c.API == nil {
		return nil, fmt.Errorf("send: %w", ErrUnsupported)
	}
	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	for _, opt := range opts {
		opt(params)
	}
	return c.API.SendMessage(ctx, params)
}

// Reply is Send quoting the update's message when there is one.
func (c *Context) Reply(ctx context.Context, text string, opts ...SendOption) (*models.Message, error) {
	if msgID, ok := c.Update.MessageID(); ok && c.Update.Kind().IsMessage() {
		opts = append([]SendOption{func(p *bot.SendMessageParams) {
			p.ReplyParameters = &models.ReplyParameters{MessageID: msgID}
		}}, opts...)
	}
	return c.Send(ctx, text, opts...)
}

// AnswerCallback acknowledges a callback query. An empty text only stops the
// client-side progress indicator.
func (c *Context) AnswerCallback(ctx context.Context, text string, showAlert bool) error {
	cq := c.Update.CallbackQuery()
	if cq == nil || c.API == nil {
		return fmt.Errorf("answer callback: %w", ErrUnsupported)
	}
	return c.API.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cq.ID,
		Text:            text,
		ShowAlert:       showAlert,
	})
}

// Delete removes the message the update refers to.
func (c *Context) Delete(ctx context.Context) error {
	chatID, okChat := c.Update.ChatID()
	msgID, okMsg := c.Update.MessageID()
	if !okChat || !okMsg || c.API == nil {
		return fmt.Errorf("delete: %w", ErrUnsupported)
	}
	return c.API.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: msgID})
}

// React sets the bot's reaction on the update's message. An empty emoji
// clears it.
func (c *Context) React(ctx context.Context, emoji string) error {
	chatID, okChat := c.Update.ChatID()
	msgID, okMsg := c.Update.MessageID()
	if !okChat || !okMsg || c.API == nil {
		return fmt.Errorf("react: %w", ErrUnsupported)
	}
	params := &bot.SetMessageReactionParams{
		ChatID:    chatID,
		MessageID: msgID,
		Reaction:  []models.ReactionType{},
	}
	if emoji != "" {
		params.Reaction = []models.ReactionType{{
			Type:              models.ReactionTypeTypeEmoji,
			ReactionTypeEmoji: &models.ReactionTypeEmoji{Emoji: emoji},
		}}
	}
	return c.API.SetMessageReaction(ctx, params)
}

// With returns a shallow copy carrying cmd, so handlers of the same update do
// not observe each other's match results.
func (c *Context) With(cmd *pattern.Command) *Context {
	cp := *c
	cp.Command = cmd
	return &cp
}
