// Package reaction computes reaction changes and collects reaction updates.
package reaction

import (
	"github.com/bytedance/gg/gslice"
	"github.com/go-telegram/bot/models"
)

// Mode selects which side of a reaction change is matched.
type Mode string

const (
	ModeNew  Mode = "new"
	ModeOld  Mode = "old"
	ModeBoth Mode = "both"
)

// Delta splits a reaction change into emoji and custom emoji, each as the
// full new list and the added, kept and removed parts.
type Delta struct {
	Emoji        []string
	EmojiAdded   []string
	EmojiKept    []string
	EmojiRemoved []string

	CustomEmoji        []string
	CustomEmojiAdded   []string
	CustomEmojiKept    []string
	CustomEmojiRemoved []string
}

// Compute derives a Delta from a reaction update. Added is new minus old,
// kept is new intersected with old, removed is old minus new.
func Compute(r *models.MessageReactionUpdated) Delta {
	if r == nil {
		return Delta{}
	}
	newEmoji, newCustom := split(r.NewReaction)
	oldEmoji, oldCustom := split(r.OldReaction)

	d := Delta{Emoji: newEmoji, CustomEmoji: newCustom}
	d.EmojiAdded, d.EmojiKept = partition(newEmoji, oldEmoji)
	d.EmojiRemoved, _ = partition(oldEmoji, newEmoji)
	d.CustomEmojiAdded, d.CustomEmojiKept = partition(newCustom, oldCustom)
	d.CustomEmojiRemoved, _ = partition(oldCustom, newCustom)
	return d
}

// Added returns every added reaction, emoji first.
func (d Delta) Added() []string {
	return append(append([]string{}, d.EmojiAdded...), d.CustomEmojiAdded...)
}

// Removed returns every removed reaction, emoji first.
func (d Delta) Removed() []string {
	return append(append([]string{}, d.EmojiRemoved...), d.CustomEmojiRemoved...)
}

func split(reactions []models.ReactionType) (emoji, custom []string) {
	emoji, custom = []string{}, []string{}
	for _, r := range reactions {
		switch {
		case r.Type == models.ReactionTypeTypeEmoji && r.ReactionTypeEmoji != nil:
			emoji = append(emoji, r.ReactionTypeEmoji.Emoji)
		case r.Type == models.ReactionTypeTypeCustomEmoji && r.ReactionTypeCustomEmoji != nil:
			custom = append(custom, r.ReactionTypeCustomEmoji.CustomEmojiID)
		}
	}
	return emoji, custom
}

// partition splits items into those absent from and those present in other.
func partition(items, other []string) (absent, present []string) {
	absent, present = []string{}, []string{}
	for _, it := range items {
		if gslice.Contains(other, it) {
			present = append(present, it)
		} else {
			absent = append(absent, it)
		}
	}
	return absent, present
}

// Intersects reports whether any of targets appears in set.
func Intersects(set, targets []string) bool {
	for _, t := range targets {
		if gslice.Contains(set, t) {
			return true
		}
	}
	return false
}

// Matches reports whether the added (ModeNew), removed (ModeOld) or either
// (ModeBoth, and the empty mode) side of d contains any of targets.
func Matches(d Delta, mode Mode, targets []string) bool {
	switch mode {
	case ModeNew:
		return Intersects(d.Added(), targets)
	case ModeOld:
		return Intersects(d.Removed(), targets)
	default:
		return Intersects(d.Added(), targets) || Intersects(d.Removed(), targets)
	}
}
