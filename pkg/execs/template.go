package execs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
)

// ErrBadTemplate is returned when a command template cannot be tokenized.
var ErrBadTemplate = errors.New("bad command template")

// Render tokenizes a command template (quote-aware, supporting escaped
// quotes) and substitutes the matched target and any regex captures.
//
// `%s` is replaced with the target; if no token contains `%s`, the target is
// appended as a final argument. `%1`, `%2`, ... are replaced with the
// corresponding capture groups.
func Render(template, target string, captures []string) ([]string, error) {
	tokens, err := shellwords.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrBadTemplate, template, err)
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w %q: %w", ErrBadTemplate, template, ErrEmptyCommand)
	}

	argv := make([]string, 0, len(tokens)+1)
	placed := false

	for _, tok := range tokens {
		tok = substituteCaptures(tok, captures)
		if strings.Contains(tok, "%s") {
			tok = strings.ReplaceAll(tok, "%s", target)
			placed = true
		}

		argv = append(argv, tok)
	}

	if !placed {
		argv = append(argv, target)
	}

	return argv, nil
}

// RenderLine substitutes target and captures into the template as a single
// shell command line, quoting the substituted values. Used when candidates
// run through a shell (`--sh`) instead of being spawned directly.
func RenderLine(template, target string, captures []string) string {
	line := template

	// Highest index first, so %12 is not clobbered by %1.
	for i := len(captures) - 1; i >= 0; i-- {
		line = strings.ReplaceAll(line, "%"+strconv.Itoa(i+1), quote(captures[i]))
	}

	if strings.Contains(line, "%s") {
		line = strings.ReplaceAll(line, "%s", quote(target))
	} else {
		line += " " + quote(target)
	}

	return line
}

func substituteCaptures(tok string, captures []string) string {
	// Highest index first, so %12 is not clobbered by %1.
	for i := len(captures) - 1; i >= 0; i-- {
		tok = strings.ReplaceAll(tok, "%"+strconv.Itoa(i+1), captures[i])
	}

	return tok
}

// quote wraps s in single quotes when it contains characters the shell would
// interpret. Single quotes inside s are closed, escaped, and reopened.
func quote(s string) string {
	if s == "" {
		return "''"
	}

	if strings.IndexFunc(s, needsQuoting) == -1 {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}

	return !strings.ContainsRune("@%+=:,./-_", r)
}
