package pattern

import (
	"regexp"
	"strings"
	"unicode"
)

// UsernameFunc returns the bot's own username, or "" while it is unknown.
type UsernameFunc func() string

// CommandToken returns the leading run of text up to the first whitespace.
func CommandToken(text string) string {
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		return text[:i]
	}
	return text
}

// CompileCommand matches the command token of a message text. A literal name
// "like" accepts "/like", and "/like@<username>" once username resolves to a
// non-empty value. A regexp is tested against the whole token, slash included.
func CompileCommand(p Pattern, username UsernameFunc) Matcher {
	var names []string
	switch p := p.(type) {
	case Literal:
		names = []string{strings.TrimPrefix(string(p), "/")}
	case Set:
		for _, n := range p {
			names = append(names, strings.TrimPrefix(n, "/"))
		}
	case Regexp:
		return func(text string) bool {
			token := CommandToken(text)
			return strings.HasPrefix(token, "/") && p.re.MatchString(token)
		}
	default:
		return func(string) bool { return false }
	}

	return func(text string) bool {
		token := CommandToken(text)
		for _, name := range names {
			if token == "/"+name {
				return true
			}
			if u := usernameOf(username); u != "" && token == "/"+name+"@"+u {
				return true
			}
		}
		return false
	}
}

func usernameOf(fn UsernameFunc) string {
	if fn == nil {
		return ""
	}
	return fn()
}

// Command is the parsed form of a command message.
type Command struct {
	// Command is the leading token, slash and mention included.
	Command string
	// Args are the whitespace-separated words after the token.
	Args []string
	// Payload is the whole text with whitespace runs collapsed to one space.
	Payload string
}

var spaces = regexp.MustCompile(`\s+`)

func ParseCommand(text string) Command {
	fields := strings.Fields(text)
	cmd := Command{
		Command: CommandToken(text),
		Args:    []string{},
		Payload: strings.TrimSpace(spaces.ReplaceAllString(text, " ")),
	}
	if len(fields) > 1 {
		cmd.Args = fields[1:]
	}
	return cmd
}
