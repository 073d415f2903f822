package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrBadPattern is returned when pattern text cannot be compiled.
var ErrBadPattern = errors.New("bad pattern")

var aliasRefRegexp = regexp.MustCompile(`^\[[^\]]+\]$`)

// Kind classifies a compiled pattern.
type Kind int

const (
	// KindGlob matches with `*` and `?` wildcards against the whole target.
	KindGlob Kind = iota
	// KindRegex matches with a regular expression (search semantics).
	KindRegex
	// KindAliasRef names an alias. It is never a match subject; it only
	// appears in command position and is substituted at match time.
	KindAliasRef
)

// Rank orders pattern kinds for candidate selection. Regex patterns outrank
// globs; alias references never compete.
func (k Kind) Rank() int {
	switch k {
	case KindRegex:
		return 2
	case KindGlob:
		return 1
	case KindAliasRef:
		return 0
	}

	return 0
}

func (k Kind) String() string {
	switch k {
	case KindGlob:
		return "glob"
	case KindRegex:
		return "regex"
	case KindAliasRef:
		return "alias"
	}

	return "unknown"
}

// Pattern is a compiled matcher with its classification.
type Pattern struct {
	re *regexp.Regexp

	// Raw is the pattern text as written in the configuration, without the
	// leading `~` for regex patterns.
	Raw string

	// Alias is the referenced alias name when Kind is [KindAliasRef].
	Alias string

	Kind Kind
}

// Compile classifies and compiles raw pattern text.
//
// Classification order: a leading `~` forces a regex; a `[name]` bracket form
// is an alias reference; anything else is a glob. Compilation never fails for
// globs and alias references. Malformed regex text fails with
// [ErrBadPattern], carrying the offending text and the regexp engine message.
func Compile(raw string, caseSensitive bool) (*Pattern, error) {
	if rest, ok := strings.CutPrefix(raw, "~"); ok {
		re, err := regexp.Compile(reFlags(caseSensitive) + rest)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrBadPattern, raw, err)
		}

		return &Pattern{Kind: KindRegex, Raw: rest, re: re}, nil
	}

	if aliasRefRegexp.MatchString(raw) {
		return &Pattern{
			Kind:  KindAliasRef,
			Raw:   raw,
			Alias: raw[1 : len(raw)-1],
		}, nil
	}

	// Glob translation produces valid regex text for any input, so this
	// compile cannot fail.
	re := regexp.MustCompile(reFlags(caseSensitive) + globToRegexp(raw))

	return &Pattern{Kind: KindGlob, Raw: raw, re: re}, nil
}

// MustCompile compiles raw pattern text and panics on error.
func MustCompile(raw string, caseSensitive bool) *Pattern {
	p, err := Compile(raw, caseSensitive)
	if err != nil {
		panic(err)
	}

	return p
}

// AliasName reports whether s is a `[name]` alias reference, and if so
// returns the inner name. Used for both pattern and command positions.
func AliasName(s string) (string, bool) {
	if aliasRefRegexp.MatchString(s) {
		return s[1 : len(s)-1], true
	}

	return "", false
}

// Match reports whether the pattern matches the target. Globs match the
// whole string; regex patterns use ordinary search semantics, so authors
// anchor them explicitly when needed. Alias references never match.
func (p *Pattern) Match(target string) bool {
	if p.re == nil {
		return false
	}

	return p.re.MatchString(target)
}

// Captures returns the capture groups of a regex match against target,
// excluding the full match. Globs and alias references have no captures.
func (p *Pattern) Captures(target string) []string {
	if p.Kind != KindRegex {
		return nil
	}

	m := p.re.FindStringSubmatch(target)
	if m == nil {
		return nil
	}

	return m[1:]
}

func (p *Pattern) String() string {
	return fmt.Sprintf("%s(%s)", p.Kind, p.Raw)
}

// globToRegexp translates a glob to anchored regex text. `*` matches any run
// of characters including `/` (the tool matches whole strings, not path
// segments), `?` matches exactly one character, everything else is literal.
func globToRegexp(glob string) string {
	var b strings.Builder

	b.WriteString(`\A`)

	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	b.WriteString(`\z`)

	return b.String()
}

func reFlags(caseSensitive bool) string {
	if caseSensitive {
		return "(?s)"
	}

	return "(?si)"
}
