package update

// Kind is the update variant discriminator. Values equal the top-level field
// names of the platform payload.
type Kind string

const (
	KindMessage              Kind = "message"
	KindEditedMessage        Kind = "edited_message"
	KindChannelPost          Kind = "channel_post"
	KindEditedChannelPost    Kind = "edited_channel_post"
	KindInlineQuery          Kind = "inline_query"
	KindChosenInlineResult   Kind = "chosen_inline_result"
	KindCallbackQuery        Kind = "callback_query"
	KindShippingQuery        Kind = "shipping_query"
	KindPreCheckoutQuery     Kind = "pre_checkout_query"
	KindPoll                 Kind = "poll"
	KindPollAnswer           Kind = "poll_answer"
	KindMyChatMember         Kind = "my_chat_member"
	KindChatMember           Kind = "chat_member"
	KindChatJoinRequest      Kind = "chat_join_request"
	KindMessageReaction      Kind = "message_reaction"
	KindMessageReactionCount Kind = "message_reaction_count"
)

// IsMessage reports whether the variant carries a *models.Message.
func (k Kind) IsMessage() bool {
	switch k {
	case KindMessage, KindEditedMessage, KindChannelPost, KindEditedChannelPost:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }
