package dispatch

import "github.com/tgifai/tgflow/internal/update"

// Lifecycle keys carry a Context with no update.
const (
	KeyReady      = "ready"
	KeyDisconnect = "disconnect"
)

const (
	QualText          = "text"
	QualData          = "data"
	QualGameShortName = "game_short_name"
)

// Qualified joins a kind with a sub-field name, e.g. "message:text".
func Qualified(kind update.Kind, field string) string {
	return string(kind) + ":" + field
}

// Keys lists every event key an update is emitted under: the base kind first,
// then one qualified key per non-empty sub-field.
func Keys(u update.Update) []string {
	keys := []string{string(u.Kind())}
	switch {
	case u.Kind().IsMessage():
		if m := u.Message(); m != nil && m.Text != "" {
			keys = append(keys, Qualified(u.Kind(), QualText))
		}
	case u.Kind() == update.KindCallbackQuery:
		cq := u.CallbackQuery()
		if cq == nil {
			break
		}
		if cq.Data != "" {
			keys = append(keys, Qualified(u.Kind(), QualData))
		}
		if cq.GameShortName != "" {
			keys = append(keys, Qualified(u.Kind(), QualGameShortName))
		}
	}
	return keys
}
