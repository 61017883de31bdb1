// Package api is the outbound side of the bot: the calls the dispatch core
// needs from the platform, behind an interface so transports and contexts can
// be exercised without the network.
package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// GetUpdatesParams mirrors the getUpdates method arguments.
type GetUpdatesParams struct {
	Offset         int64    `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout,omitempty"` // seconds
	AllowedUpdates []string `json:"allowed_updates"`
}

// Client is the platform surface consumed by the transports and by the
// operations bound to each dispatch context.
type Client interface {
	// GetUpdates returns the raw update objects, undecoded, so the
	// normalizer sees exactly what the platform sent.
	GetUpdates(ctx context.Context, params GetUpdatesParams) ([]json.RawMessage, error)
	GetMe(ctx context.Context) (*models.User, error)
	DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) error

	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) error
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) error
	SetMessageReaction(ctx context.Context, params *bot.SetMessageReactionParams) error
}

// Error is a failed platform call as reported by the platform itself.
type Error struct {
	Method      string
	Code        int
	Description string
	// RetryAfter is set on flood-control responses, in seconds.
	RetryAfter int
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %d %s (retry after %ds)", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %d %s", e.Method, e.Code, e.Description)
}

// Fatal reports codes that will not go away by retrying: a revoked token or
// a method the server does not know.
func (e *Error) Fatal() bool {
	return e.Code == 401 || e.Code == 404
}
