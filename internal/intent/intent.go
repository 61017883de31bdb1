// Package intent encodes the set of update categories a bot opts into as a
// bit mask, and converts it to the platform's allowed_updates list.
package intent

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/gg/gconv"
)

// Bit is one or more intent flags.
type Bit uint32

const (
	Message Bit = 1 << iota
	EditedMessage
	ChannelPost
	EditedChannelPost
	InlineQuery
	ChosenInlineResult
	CallbackQuery
	ShippingQuery
	PreCheckoutQuery
	Poll
	PollAnswer
	MyChatMember
	ChatMember
	ChatJoinRequest
	MessageReaction
	MessageReactionCount
)

// All has every canonical intent set.
const All = Message | EditedMessage | ChannelPost | EditedChannelPost | InlineQuery |
	ChosenInlineResult | CallbackQuery | ShippingQuery | PreCheckoutQuery | Poll |
	PollAnswer | MyChatMember | ChatMember | ChatJoinRequest | MessageReaction |
	MessageReactionCount

// canonical is the declaration order used by Names and Decode. The names are
// the wire values of allowed_updates and must not change.
var canonical = []struct {
	bit  Bit
	name string
}{
	{Message, "message"},
	{EditedMessage, "edited_message"},
	{ChannelPost, "channel_post"},
	{EditedChannelPost, "edited_channel_post"},
	{InlineQuery, "inline_query"},
	{ChosenInlineResult, "chosen_inline_result"},
	{CallbackQuery, "callback_query"},
	{ShippingQuery, "shipping_query"},
	{PreCheckoutQuery, "pre_checkout_query"},
	{Poll, "poll"},
	{PollAnswer, "poll_answer"},
	{MyChatMember, "my_chat_member"},
	{ChatMember, "chat_member"},
	{ChatJoinRequest, "chat_join_request"},
	{MessageReaction, "message_reaction"},
	{MessageReactionCount, "message_reaction_count"},
}

// InvalidIntentError reports a value that cannot be used as an intent.
type InvalidIntentError struct {
	Value any
}

func (e *InvalidIntentError) Error() string {
	return fmt.Sprintf("specified intent %v is not correct", e.Value)
}

// Filter is a mutable intent mask. It is configured before the transport
// starts and only read afterwards, so it carries no locking.
type Filter struct {
	bits Bit
}

func New(bits ...Bit) (*Filter, error) {
	f := &Filter{}
	if err := f.Add(bits...); err != nil {
		return nil, err
	}
	return f, nil
}

// Add sets every given bit. Values with bits outside All are rejected and
// leave the mask untouched.
func (f *Filter) Add(bits ...Bit) error {
	if err := validate(bits); err != nil {
		return err
	}
	for _, b := range bits {
		f.bits |= b
	}
	return nil
}

// Remove clears every given bit.
func (f *Filter) Remove(bits ...Bit) error {
	if err := validate(bits); err != nil {
		return err
	}
	for _, b := range bits {
		f.bits &^= b
	}
	return nil
}

// Has reports whether all bits of bit are set, so composite masks work.
func (f *Filter) Has(bit Bit) bool {
	if f == nil {
		return false
	}
	return f.bits&bit == bit
}

func (f *Filter) Mask() Bit {
	if f == nil {
		return 0
	}
	return f.bits
}

// Names lists the platform names of the set intents in canonical order.
func (f *Filter) Names() []string {
	names := make([]string, 0, len(canonical))
	for _, one := range canonical {
		if f.Has(one.bit) {
			names = append(names, one.name)
		}
	}
	return names
}

// Decode is Names for a possibly absent filter; nil yields an empty list.
func Decode(f *Filter) []string {
	if f == nil {
		return []string{}
	}
	return f.Names()
}

// Lookup returns the bit registered under the platform name.
func Lookup(name string) (Bit, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, one := range canonical {
		if one.name == name {
			return one.bit, true
		}
	}
	return 0, false
}

// Parse builds a filter from loosely typed config values: platform names or
// integer masks, e.g. ["message", "callback_query", 16384].
func Parse(values []any) (*Filter, error) {
	f := &Filter{}
	for _, v := range values {
		b, err := parseOne(v)
		if err != nil {
			return nil, err
		}
		f.bits |= b
	}
	return f, nil
}

func parseOne(v any) (Bit, error) {
	var n int64
	switch x := v.(type) {
	case string:
		if b, found := Lookup(x); found {
			return b, nil
		}
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, &InvalidIntentError{Value: v}
		}
		n = i
	case float32, float64:
		// JSON numbers decode as float64; only whole values name a flag.
		f := gconv.To[float64](x)
		if math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxUint32 {
			return 0, &InvalidIntentError{Value: v}
		}
		n = int64(f)
	case bool, nil:
		return 0, &InvalidIntentError{Value: v}
	default:
		n = gconv.To[int64](v)
	}
	if n <= 0 || int64(Bit(n)) != n || Bit(n)&^All != 0 {
		return 0, &InvalidIntentError{Value: v}
	}
	return Bit(n), nil
}

func validate(bits []Bit) error {
	var errs []error
	for _, b := range bits {
		if b&^All != 0 {
			errs = append(errs, &InvalidIntentError{Value: uint32(b)})
		}
	}
	return errors.Join(errs...)
}
