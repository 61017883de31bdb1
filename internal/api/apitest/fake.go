// Package apitest provides an in-memory api.Client for tests.
package apitest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tgifai/tgflow/internal/api"
)

var _ api.Client = (*Fake)(nil)

// Fake records outbound calls. GetUpdatesFunc, when set, serves getUpdates;
// otherwise getUpdates blocks like an idle long poll until ctx is done.
type Fake struct {
	Me             *models.User
	GetUpdatesFunc func(ctx context.Context, params api.GetUpdatesParams) ([]json.RawMessage, error)
	Err            error

	mu             sync.Mutex
	UpdatesCalls   []api.GetUpdatesParams
	DeleteWebhooks []bool
	Webhooks       []*bot.SetWebhookParams
	Sent           []*bot.SendMessageParams
	Answered       []*bot.AnswerCallbackQueryParams
	Deleted        []*bot.DeleteMessageParams
	Reactions      []*bot.SetMessageReactionParams
}

func (f *Fake) GetUpdates(ctx context.Context, params api.GetUpdatesParams) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.UpdatesCalls = append(f.UpdatesCalls, params)
	fn := f.GetUpdatesFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, params)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *Fake) GetMe(context.Context) (*models.User, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Me == nil {
		return &models.User{ID: 1, IsBot: true, Username: "test_bot"}, nil
	}
	return f.Me, nil
}

func (f *Fake) DeleteWebhook(_ context.Context, drop bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteWebhooks = append(f.DeleteWebhooks, drop)
	return f.Err
}

func (f *Fake) SetWebhook(_ context.Context, params *bot.SetWebhookParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Webhooks = append(f.Webhooks, params)
	return f.Err
}

func (f *Fake) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, params)
	if f.Err != nil {
		return nil, f.Err
	}
	return &models.Message{ID: len(f.Sent), Text: params.Text}, nil
}

func (f *Fake) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Answered = append(f.Answered, params)
	return f.Err
}

func (f *Fake) DeleteMessage(_ context.Context, params *bot.DeleteMessageParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, params)
	return f.Err
}

func (f *Fake) SetMessageReaction(_ context.Context, params *bot.SetMessageReactionParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reactions = append(f.Reactions, params)
	return f.Err
}

// SentTexts returns the text of every SendMessage call so far.
func (f *Fake) SentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Sent))
	for _, p := range f.Sent {
		out = append(out, p.Text)
	}
	return out
}

// Calls returns a copy of the recorded getUpdates parameters.
func (f *Fake) Calls() []api.GetUpdatesParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.GetUpdatesParams(nil), f.UpdatesCalls...)
}

// AnsweredCount returns the number of AnswerCallbackQuery calls so far.
func (f *Fake) AnsweredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Answered)
}
