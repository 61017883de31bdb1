// Package pattern holds the text matching rules shared by the command,
// action, hears and entity registrations.
package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/gg/gslice"
)

// Pattern is one of Literal, Set or Regexp. The set is closed.
type Pattern interface {
	pattern()
	String() string
}

type Literal string

type Set []string

type Regexp struct{ re *regexp.Regexp }

func (Literal) pattern() {}
func (Set) pattern()     {}
func (Regexp) pattern()  {}

func (l Literal) String() string { return string(l) }
func (s Set) String() string     { return "[" + strings.Join(s, ", ") + "]" }
func (r Regexp) String() string  { return "/" + r.re.String() + "/" }

func Lit(s string) Pattern { return Literal(s) }

// Any matches when any of the given strings matches.
func Any(s ...string) Pattern { return Set(s) }

func Re(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return Regexp{re: re}, nil
}

func MustRe(expr string) Pattern {
	p, err := Re(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func FromRegexp(re *regexp.Regexp) Pattern { return Regexp{re: re} }

// Rule is how a literal compares with a candidate at a given call site.
type Rule int

const (
	// Exact is used by action and entity handlers.
	Exact Rule = iota
	// Contains is used by hears, inline query and game query handlers.
	Contains
)

// Matcher reports whether a candidate satisfies a compiled pattern.
type Matcher func(candidate string) bool

// Compile selects the evaluation function once, at registration.
func Compile(p Pattern, rule Rule) Matcher {
	switch p := p.(type) {
	case Literal:
		target := string(p)
		if rule == Contains {
			return func(c string) bool { return strings.Contains(c, target) }
		}
		return func(c string) bool { return c == target }
	case Set:
		targets := append([]string(nil), p...)
		if rule == Contains {
			return func(c string) bool {
				for _, t := range targets {
					if strings.Contains(c, t) {
						return true
					}
				}
				return false
			}
		}
		return func(c string) bool { return gslice.Contains(targets, c) }
	case Regexp:
		return p.re.MatchString
	default:
		return func(string) bool { return false }
	}
}
