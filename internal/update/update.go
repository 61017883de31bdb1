// Package update turns raw platform payloads into a closed tagged union.
package update

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/go-telegram/bot/models"
)

const idField = "update_id"

// Update is one normalized platform event. Exactly one variant is populated;
// the zero value has no kind and is never produced by Normalize.
type Update struct {
	id      int64
	kind    Kind
	payload any
	raw     []byte

	from      *models.User
	chat      *models.Chat
	messageID int
}

// envelope picks the identity fields shared by most variants without caring
// which concrete payload type carries them.
type envelope struct {
	From      *models.User `json:"from"`
	User      *models.User `json:"user"`
	Chat      *models.Chat `json:"chat"`
	MessageID int          `json:"message_id"`
	Message   *struct {
		Chat      *models.Chat `json:"chat"`
		MessageID int          `json:"message_id"`
	} `json:"message"`
}

// MalformedUpdateError is returned for payloads that do not carry exactly one
// variant. Retrying such a payload cannot succeed.
type MalformedUpdateError struct {
	ID     int64
	HasID  bool
	Fields []string
	Err    error
}

func (e *MalformedUpdateError) Error() string {
	id := "unknown"
	if e.HasID {
		id = fmt.Sprint(e.ID)
	}
	switch {
	case e.Err != nil:
		return fmt.Sprintf("malformed update %s: %v", id, e.Err)
	case len(e.Fields) == 0:
		return fmt.Sprintf("malformed update %s: no variant present", id)
	default:
		return fmt.Sprintf("malformed update %s: %d variants present %v", id, len(e.Fields), e.Fields)
	}
}

func (e *MalformedUpdateError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is a *MalformedUpdateError.
func IsMalformed(err error) bool {
	var m *MalformedUpdateError
	return errors.As(err, &m)
}

// PeekID reads only update_id, so a cursor can advance past payloads that
// fail to normalize.
func PeekID(raw []byte) (int64, bool) {
	var head struct {
		ID *int64 `json:"update_id"`
	}
	if err := sonic.Unmarshal(raw, &head); err != nil || head.ID == nil {
		return 0, false
	}
	return *head.ID, true
}

// Normalize classifies one raw update. Unknown but well-formed variants are
// kept with their raw payload so newer platform kinds still reach "on" handlers.
func Normalize(raw []byte) (Update, error) {
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(raw, &fields); err != nil {
		return Update{}, &MalformedUpdateError{Err: fmt.Errorf("decode: %w", err)}
	}

	u := Update{raw: raw}
	var (
		hasID   bool
		present []string
	)
	for name, value := range fields {
		if name == idField {
			if err := sonic.Unmarshal(value, &u.id); err != nil {
				return Update{}, &MalformedUpdateError{Err: fmt.Errorf("decode update_id: %w", err)}
			}
			hasID = true
			continue
		}
		if isNull(value) {
			continue
		}
		present = append(present, name)
	}
	sort.Strings(present)

	if !hasID {
		return Update{}, &MalformedUpdateError{Fields: present, Err: errors.New("update_id is missing")}
	}
	if len(present) != 1 {
		return Update{}, &MalformedUpdateError{ID: u.id, HasID: true, Fields: present}
	}

	u.kind = Kind(present[0])
	value := fields[present[0]]
	payload, err := decodePayload(u.kind, value)
	if err != nil {
		return Update{}, &MalformedUpdateError{ID: u.id, HasID: true, Fields: present, Err: err}
	}
	u.payload = payload

	var env envelope
	if err := sonic.Unmarshal(value, &env); err == nil {
		u.from = env.From
		if u.from == nil {
			u.from = env.User
		}
		u.chat = env.Chat
		u.messageID = env.MessageID
		if env.Message != nil {
			if u.chat == nil {
				u.chat = env.Message.Chat
			}
			if u.messageID == 0 {
				u.messageID = env.Message.MessageID
			}
		}
	}
	return u, nil
}

func decodePayload(kind Kind, value json.RawMessage) (any, error) {
	var target any
	switch {
	case kind.IsMessage():
		target = &models.Message{}
	case kind == KindInlineQuery:
		target = &models.InlineQuery{}
	case kind == KindChosenInlineResult:
		target = &models.ChosenInlineResult{}
	case kind == KindCallbackQuery:
		target = &models.CallbackQuery{}
	case kind == KindShippingQuery:
		target = &models.ShippingQuery{}
	case kind == KindPreCheckoutQuery:
		target = &models.PreCheckoutQuery{}
	case kind == KindPoll:
		target = &models.Poll{}
	case kind == KindPollAnswer:
		target = &models.PollAnswer{}
	case kind == KindMyChatMember, kind == KindChatMember:
		target = &models.ChatMemberUpdated{}
	case kind == KindChatJoinRequest:
		target = &models.ChatJoinRequest{}
	case kind == KindMessageReaction:
		target = &models.MessageReactionUpdated{}
	case kind == KindMessageReactionCount:
		target = &models.MessageReactionCountUpdated{}
	default:
		return value, nil
	}
	if err := sonic.Unmarshal(value, target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return target, nil
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

func (u Update) ID() int64  { return u.id }
func (u Update) Kind() Kind { return u.kind }

// Raw returns the payload the update was built from.
func (u Update) Raw() []byte { return u.raw }

// Payload returns the variant value: a pointer to the matching models type,
// or json.RawMessage for kinds this package does not model.
func (u Update) Payload() any { return u.payload }

// Message returns the message of message-bearing variants.
func (u Update) Message() *models.Message {
	m, _ := u.payload.(*models.Message)
	return m
}

func (u Update) CallbackQuery() *models.CallbackQuery {
	v, _ := u.payload.(*models.CallbackQuery)
	return v
}

func (u Update) InlineQuery() *models.InlineQuery {
	v, _ := u.payload.(*models.InlineQuery)
	return v
}

func (u Update) ChosenInlineResult() *models.ChosenInlineResult {
	v, _ := u.payload.(*models.ChosenInlineResult)
	return v
}

func (u Update) ShippingQuery() *models.ShippingQuery {
	v, _ := u.payload.(*models.ShippingQuery)
	return v
}

func (u Update) PreCheckoutQuery() *models.PreCheckoutQuery {
	v, _ := u.payload.(*models.PreCheckoutQuery)
	return v
}

func (u Update) Poll() *models.Poll {
	v, _ := u.payload.(*models.Poll)
	return v
}

func (u Update) PollAnswer() *models.PollAnswer {
	v, _ := u.payload.(*models.PollAnswer)
	return v
}

// ChatMember serves both my_chat_member and chat_member.
func (u Update) ChatMember() *models.ChatMemberUpdated {
	v, _ := u.payload.(*models.ChatMemberUpdated)
	return v
}

func (u Update) ChatJoinRequest() *models.ChatJoinRequest {
	v, _ := u.payload.(*models.ChatJoinRequest)
	return v
}

func (u Update) MessageReaction() *models.MessageReactionUpdated {
	v, _ := u.payload.(*models.MessageReactionUpdated)
	return v
}

func (u Update) MessageReactionCount() *models.MessageReactionCountUpdated {
	v, _ := u.payload.(*models.MessageReactionCountUpdated)
	return v
}

// Text is the message text, falling back to the caption.
func (u Update) Text() string {
	m := u.Message()
	if m == nil {
		return ""
	}
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// ChatID resolves the originating chat for variants that have one.
func (u Update) ChatID() (int64, bool) {
	if u.chat == nil {
		return 0, false
	}
	return u.chat.ID, true
}

// MessageID resolves the message the update is about: the message itself, the
// message a callback button was attached to, or the message reacted to.
func (u Update) MessageID() (int, bool) {
	return u.messageID, u.messageID != 0
}

// Sender resolves the acting user for variants that have one.
func (u Update) Sender() *models.User {
	return u.from
}
