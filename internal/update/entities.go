package update

import (
	"unicode/utf16"

	"github.com/go-telegram/bot/models"
)

// Entity is a message entity together with the text it covers.
type Entity struct {
	Type   models.MessageEntityType
	Offset int
	Length int
	// Text is the covered substring. For text_link it is the link target and
	// for text_mention the mentioned user's username when present.
	Text string
	User *models.User
}

// Entities resolves the entities of a message (or its caption). Offsets are
// counted in UTF-16 code units by the platform.
func Entities(m *models.Message) []Entity {
	if m == nil {
		return nil
	}
	text, raw := m.Text, m.Entities
	if text == "" {
		text, raw = m.Caption, m.CaptionEntities
	}
	if len(raw) == 0 {
		return nil
	}

	units := utf16.Encode([]rune(text))
	out := make([]Entity, 0, len(raw))
	for _, e := range raw {
		one := Entity{Type: e.Type, Offset: e.Offset, Length: e.Length, User: e.User}
		if e.Offset >= 0 && e.Length >= 0 && e.Offset+e.Length <= len(units) {
			one.Text = string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
		}
		switch e.Type {
		case models.MessageEntityTypeTextLink:
			one.Text = e.URL
		case models.MessageEntityTypeTextMention:
			if e.User != nil && e.User.Username != "" {
				one.Text = "@" + e.User.Username
			}
		}
		out = append(out, one)
	}
	return out
}

// EntityTexts returns the covered text of every entity whose type is listed.
func EntityTexts(m *models.Message, types ...models.MessageEntityType) []string {
	var out []string
	for _, e := range Entities(m) {
		for _, t := range types {
			if e.Type == t {
				out = append(out, e.Text)
				break
			}
		}
	}
	return out
}
