package consts

// CtxKey is the type used for context value keys across the framework.
type CtxKey string

const (
	CtxKeyTransport CtxKey = "transport"
	CtxKeyChatID    CtxKey = "chat_id"
)
