package bot

import (
	"context"

	"github.com/go-telegram/bot/models"

	"github.com/tgifai/tgflow/internal/dispatch"
	"github.com/tgifai/tgflow/internal/pattern"
	"github.com/tgifai/tgflow/internal/pkg/logs"
	"github.com/tgifai/tgflow/internal/reaction"
	"github.com/tgifai/tgflow/internal/update"
)

// Registration identifies one handler on one key.
type Registration struct {
	Key string
	ID  dispatch.HandlerID
}

var (
	keyMessageText      = dispatch.Qualified(update.KindMessage, dispatch.QualText)
	keyCallbackData     = dispatch.Qualified(update.KindCallbackQuery, dispatch.QualData)
	keyCallbackGameName = dispatch.Qualified(update.KindCallbackQuery, dispatch.QualGameShortName)
)

// On registers h for an event key: a kind ("message"), a qualified kind
// ("message:text") or a lifecycle key ("ready", "disconnect").
func (b *Bot) On(key string, h dispatch.Handler) Registration {
	return Registration{Key: key, ID: b.bus.On(key, h)}
}

// Off removes registrations made by any helper.
func (b *Bot) Off(regs ...Registration) {
	for _, r := range regs {
		b.bus.Off(r.Key, r.ID)
	}
}

// Command handles text messages whose first token is /name, or
// /name@<bot username> once Login resolved the username. The handler sees the
// parsed command on Context.Command.
func (b *Bot) Command(p pattern.Pattern, h dispatch.Handler) Registration {
	match := pattern.CompileCommand(p, b.username)
	return b.On(keyMessageText, func(ctx context.Context, c *dispatch.Context) error {
		text := c.Update.Text()
		if !match(text) {
			return nil
		}
		cmd := pattern.ParseCommand(text)
		return h(ctx, c.With(&cmd))
	})
}

func (b *Bot) Start(h dispatch.Handler) Registration    { return b.Command(pattern.Lit("start"), h) }
func (b *Bot) Help(h dispatch.Handler) Registration     { return b.Command(pattern.Lit("help"), h) }
func (b *Bot) Settings(h dispatch.Handler) Registration { return b.Command(pattern.Lit("settings"), h) }

// Action handles callback queries whose data equals the pattern. With answer
// set the query is acknowledged before h runs.
func (b *Bot) Action(p pattern.Pattern, h dispatch.Handler, answer bool) Registration {
	match := pattern.Compile(p, pattern.Exact)
	return b.On(keyCallbackData, func(ctx context.Context, c *dispatch.Context) error {
		cq := c.Update.CallbackQuery()
		if cq == nil || !match(cq.Data) {
			return nil
		}
		if answer {
			if err := c.AnswerCallback(ctx, "", false); err != nil {
				logs.CtxWarn(ctx, "[bot] auto-answer callback %s: %v", cq.ID, err)
			}
		}
		return h(ctx, c)
	})
}

// Hears handles text messages containing the pattern.
func (b *Bot) Hears(p pattern.Pattern, h dispatch.Handler) Registration {
	match := pattern.Compile(p, pattern.Contains)
	return b.On(keyMessageText, func(ctx context.Context, c *dispatch.Context) error {
		if !match(c.Update.Text()) {
			return nil
		}
		return h(ctx, c)
	})
}

// InlineQuery handles inline queries whose query contains the pattern.
func (b *Bot) InlineQuery(p pattern.Pattern, h dispatch.Handler) Registration {
	match := pattern.Compile(p, pattern.Contains)
	return b.On(string(update.KindInlineQuery), func(ctx context.Context, c *dispatch.Context) error {
		q := c.Update.InlineQuery()
		if q == nil || !match(q.Query) {
			return nil
		}
		return h(ctx, c)
	})
}

// GameQuery handles callback queries whose game short name contains the
// pattern.
func (b *Bot) GameQuery(p pattern.Pattern, h dispatch.Handler) Registration {
	match := pattern.Compile(p, pattern.Contains)
	return b.On(keyCallbackGameName, func(ctx context.Context, c *dispatch.Context) error {
		cq := c.Update.CallbackQuery()
		if cq == nil || !match(cq.GameShortName) {
			return nil
		}
		return h(ctx, c)
	})
}

// Reaction handles reaction updates that add (ModeNew), remove (ModeOld) or
// do either (ModeBoth) one of emoji.
func (b *Bot) Reaction(emoji []string, mode reaction.Mode, h dispatch.Handler) Registration {
	targets := append([]string(nil), emoji...)
	return b.On(string(update.KindMessageReaction), func(ctx context.Context, c *dispatch.Context) error {
		r := c.Update.MessageReaction()
		if r == nil || !reaction.Matches(reaction.Compute(r), mode, targets) {
			return nil
		}
		return h(ctx, c)
	})
}

func (b *Bot) TextLink(p pattern.Pattern, h dispatch.Handler) []Registration {
	return b.onEntity(p, h, models.MessageEntityTypeURL, models.MessageEntityTypeTextLink)
}

func (b *Bot) TextMention(p pattern.Pattern, h dispatch.Handler) []Registration {
	return b.onEntity(p, h, models.MessageEntityTypeMention, models.MessageEntityTypeTextMention)
}

func (b *Bot) TextEmail(p pattern.Pattern, h dispatch.Handler) []Registration {
	return b.onEntity(p, h, models.MessageEntityTypeEmail)
}

func (b *Bot) TextHashtag(p pattern.Pattern, h dispatch.Handler) []Registration {
	return b.onEntity(p, h, models.MessageEntityTypeHashtag)
}

func (b *Bot) TextCashtag(p pattern.Pattern, h dispatch.Handler) []Registration {
	return b.onEntity(p, h, models.MessageEntityTypeCashtag)
}

func (b *Bot) TextPhoneNumber(p pattern.Pattern, h dispatch.Handler) []Registration {
	return b.onEntity(p, h, models.MessageEntityTypePhoneNumber)
}

// onEntity registers on messages and channel posts; h runs once per update
// when any entity of the given types equals the pattern.
func (b *Bot) onEntity(p pattern.Pattern, h dispatch.Handler, types ...models.MessageEntityType) []Registration {
	match := pattern.Compile(p, pattern.Exact)
	handler := func(ctx context.Context, c *dispatch.Context) error {
		for _, text := range update.EntityTexts(c.Update.Message(), types...) {
			if match(text) {
				return h(ctx, c)
			}
		}
		return nil
	}
	return []Registration{
		b.On(string(update.KindMessage), handler),
		b.On(string(update.KindChannelPost), handler),
	}
}
