package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tgifai/tgflow/internal/pkg/logs"
)

const (
	DefaultServerURL = "https://api.telegram.org"

	dialTimeout = 10 * time.Second
	// pollGrace is added on top of the server-side long-poll wait.
	pollGrace = 10 * time.Second
)

var _ Client = (*Telegram)(nil)

// Telegram issues typed calls through go-telegram/bot and long-polls
// getUpdates itself: the library keeps its polling loop private, and the
// cursor here has to stay under this process's control.
type Telegram struct {
	token     string
	serverURL string
	bot       *bot.Bot
	http      *client.Client
}

type Option func(*Telegram)

func WithServerURL(url string) Option {
	return func(t *Telegram) {
		if url = strings.TrimRight(strings.TrimSpace(url), "/"); url != "" {
			t.serverURL = url
		}
	}
}

func New(token string, opts ...Option) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram bot token cannot be empty")
	}
	t := &Telegram{token: token, serverURL: DefaultServerURL}
	for _, opt := range opts {
		opt(t)
	}

	b, err := bot.New(token,
		bot.WithSkipGetMe(),
		bot.WithServerURL(t.serverURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = b

	hc, err := client.NewClient(client.WithDialTimeout(dialTimeout))
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	t.http = hc
	return t, nil
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *Telegram) GetUpdates(ctx context.Context, params GetUpdatesParams) ([]json.RawMessage, error) {
	if params.AllowedUpdates == nil {
		params.AllowedUpdates = []string{}
	}
	body, err := sonic.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode getUpdates: %w", err)
	}

	timeout := time.Duration(params.Timeout)*time.Second + pollGrace
	// hertz does not abort an in-flight request on ctx cancellation, so the
	// call runs aside and an abandoned response is released by its goroutine.
	done := make(chan rawResponse, 1)
	go func() {
		done <- t.post(ctx, t.methodURL("getUpdates"), body, timeout)
	}()

	var res rawResponse
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("getUpdates: %w", ctx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("getUpdates: %w", res.err)
	}

	var env envelope
	if err := sonic.Unmarshal(res.body, &env); err != nil {
		return nil, fmt.Errorf("getUpdates: decode response (HTTP %d): %w", res.status, err)
	}
	if !env.OK {
		apiErr := &Error{Method: "getUpdates", Code: env.ErrorCode, Description: env.Description}
		if apiErr.Code == 0 {
			apiErr.Code = res.status
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return nil, apiErr
	}

	var updates []json.RawMessage
	if err := sonic.Unmarshal(env.Result, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: decode result: %w", err)
	}
	return updates, nil
}

type rawResponse struct {
	body   []byte
	status int
	err    error
}

func (t *Telegram) post(ctx context.Context, uri string, body []byte, timeout time.Duration) rawResponse {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.SetMethod(consts.MethodPost)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.SetBody(body)

	if err := t.http.DoTimeout(ctx, req, resp, timeout); err != nil {
		return rawResponse{err: err}
	}
	// resp is recycled on return
	return rawResponse{body: append([]byte(nil), resp.Body()...), status: resp.StatusCode()}
}

func (t *Telegram) GetMe(ctx context.Context) (*models.User, error) {
	me, err := t.bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("getMe: %w", err)
	}
	return me, nil
}

func (t *Telegram) DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error {
	ok, err := t.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: dropPendingUpdates})
	return expectOK("deleteWebhook", ok, err)
}

func (t *Telegram) SetWebhook(ctx context.Context, params *bot.SetWebhookParams) error {
	ok, err := t.bot.SetWebhook(ctx, params)
	return expectOK("setWebhook", ok, err)
}

func (t *Telegram) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	msg, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("sendMessage: %w", err)
	}
	return msg, nil
}

func (t *Telegram) AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) error {
	ok, err := t.bot.AnswerCallbackQuery(ctx, params)
	return expectOK("answerCallbackQuery", ok, err)
}

func (t *Telegram) DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) error {
	ok, err := t.bot.DeleteMessage(ctx, params)
	return expectOK("deleteMessage", ok, err)
}

func (t *Telegram) SetMessageReaction(ctx context.Context, params *bot.SetMessageReactionParams) error {
	ok, err := t.bot.SetMessageReaction(ctx, params)
	return expectOK("setMessageReaction", ok, err)
}

func (t *Telegram) methodURL(method string) string {
	return t.serverURL + "/bot" + t.token + "/" + method
}

func expectOK(method string, ok bool, err error) error {
	if err != nil {
		logs.Debug("[api] %s failed: %v", method, err)
		return fmt.Errorf("%s: %w", method, err)
	}
	if !ok {
		return &Error{Method: method, Description: "platform returned false"}
	}
	return nil
}
