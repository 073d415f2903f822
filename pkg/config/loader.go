package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/mattn/go-shellwords"

	"github.com/runrunrun/rrr/pkg/pattern"
	"github.com/runrunrun/rrr/pkg/rule"
)

var (
	// ErrIncludeCycle is returned when an include target is already being
	// expanded on the active inclusion stack.
	ErrIncludeCycle = errors.New("include cycle")

	// ErrInvalidLine is returned for lines that parse as none of the
	// recognized forms.
	ErrInvalidLine = errors.New("invalid line")
)

var aliasLineRegexp = regexp.MustCompile(`^\[([^\]]+)\]\s+(.+)$`)

// IncludeFilter decides which files of an included directory count as
// configuration files to expand.
type IncludeFilter func(name string) bool

// DefaultIncludeFilter skips hidden files and accepts only `.conf` files.
func DefaultIncludeFilter(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".conf")
}

// Loader parses configuration files into a [rule.Config], expanding
// `:include` and `:import` directives recursively.
type Loader struct {
	cfg           *rule.Config
	onStack       map[string]struct{}
	includeFilter IncludeFilter
	current       string
	stack         []string
	order         int
	caseSensitive bool
}

// LoaderOpt configures a [Loader].
type LoaderOpt func(*Loader)

// WithCaseSensitive makes pattern matching case-sensitive. Matching is
// case-insensitive by default.
func WithCaseSensitive(caseSensitive bool) LoaderOpt {
	return func(l *Loader) {
		l.caseSensitive = caseSensitive
	}
}

// WithIncludeFilter replaces [DefaultIncludeFilter] for directory includes.
func WithIncludeFilter(f IncludeFilter) LoaderOpt {
	return func(l *Loader) {
		l.includeFilter = f
	}
}

// NewLoader creates a [Loader].
func NewLoader(opts ...LoaderOpt) *Loader {
	l := &Loader{
		cfg:           rule.NewConfig(),
		current:       rule.DefaultProfile,
		onStack:       make(map[string]struct{}),
		includeFilter: DefaultIncludeFilter,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load parses the configuration file at path, expanding includes and imports
// recursively.
func (l *Loader) Load(path string) error {
	return l.loadFile(path)
}

// Build freezes and returns the loaded configuration.
func (l *Loader) Build() *rule.Config {
	return l.cfg
}

// loadFile reads one configuration file line by line. The file's canonical
// path is held on the active inclusion stack for the duration, so any
// re-entrant include of the same file fails with [ErrIncludeCycle]. The
// deferred pop runs on every exit path, including parse failures.
func (l *Loader) loadFile(path string) error {
	canon, err := canonicalize(path)
	if err != nil {
		return fmt.Errorf("include %q: %w", path, err)
	}

	if _, active := l.onStack[canon]; active {
		return fmt.Errorf("%w: %q is already being included", ErrIncludeCycle, canon)
	}

	l.onStack[canon] = struct{}{}
	l.stack = append(l.stack, canon)

	defer func() {
		delete(l.onStack, canon)
		l.stack = l.stack[:len(l.stack)-1]
	}()

	f, err := os.Open(canon)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only file.

	slog.Debug("loading config file", slog.String("path", canon))

	scanner := bufio.NewScanner(f)
	lineno := 0

	for scanner.Scan() {
		lineno++

		err := l.parseLine(canon, lineno, scanner.Text())
		if err != nil {
			return fmt.Errorf("%s:%d: %w", canon, lineno, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read config %q: %w", canon, err)
	}

	return nil
}

func (l *Loader) parseLine(file string, lineno int, raw string) error {
	line := strings.TrimSpace(stripComment(raw))
	if line == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(line, ":"):
		return l.parseDirective(file, lineno, line)

	case strings.HasPrefix(line, "["):
		m := aliasLineRegexp.FindStringSubmatch(line)
		if m == nil {
			return fmt.Errorf("%w: %q: alias definitions are `[name] command`", ErrInvalidLine, line)
		}

		l.cfg.Aliases().Define(m[1], strings.TrimSpace(m[2]))

		return nil

	default:
		return l.parseRule(file, lineno, line)
	}
}

func (l *Loader) parseDirective(file string, lineno int, line string) error {
	name, rest := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i != -1 {
		name, rest = line[:i], line[i+1:]
	}

	target, err := parseTarget(rest)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	switch name {
	case ":profile":
		l.cfg.EnsureProfile(target)
		l.current = target

		return nil

	case ":include":
		return l.include(target)

	case ":import":
		return l.importTarget(target, rule.Origin{File: file, Line: lineno})

	default:
		return fmt.Errorf("%w: unknown directive %q", ErrInvalidLine, name)
	}
}

func (l *Loader) parseRule(file string, lineno int, line string) error {
	rawPattern, template, err := splitHead(line)
	if err != nil {
		return err
	}

	if template == "" {
		return fmt.Errorf("%w: %q: rule lines are `pattern command`", ErrInvalidLine, line)
	}

	p, err := pattern.Compile(rawPattern, l.caseSensitive)
	if err != nil {
		return err
	}

	l.addRule(&rule.Rule{
		Pattern:  p,
		Template: template,
		Origin:   rule.Origin{File: file, Line: lineno},
	})

	return nil
}

// addRule assigns the next source order and appends to the active profile.
func (l *Loader) addRule(r *rule.Rule) {
	l.order++
	r.Order = l.order
	r.Profile = l.current

	if name, ok := pattern.AliasName(r.Template); ok {
		r.AliasRef = name
	}

	l.cfg.EnsureProfile(l.current).Add(r)
}

// include expands a file or directory target. Directories are visited
// recursively in lexicographic order; files are filtered by the include
// filter. A file named directly is always expanded.
func (l *Loader) include(target string) error {
	path, err := expandPath(target)
	if err != nil {
		return fmt.Errorf("include %q: %w", target, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("include %q: %w", target, err)
	}

	if info.IsDir() {
		return l.includeDir(path)
	}

	return l.loadFile(path)
}

func (l *Loader) includeDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("include %q: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)

		switch {
		case entry.IsDir():
			if strings.HasPrefix(name, ".") {
				continue
			}

			if err := l.includeDir(path); err != nil {
				return err
			}

		case l.includeFilter(name):
			if err := l.loadFile(path); err != nil {
				return err
			}
		}
	}

	return nil
}

// parseTarget unquotes a directive target, which may be quoted when it
// contains spaces.
func parseTarget(rest string) (string, error) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", fmt.Errorf("%w: missing target", ErrInvalidLine)
	}

	parts, err := shellwords.Parse(rest)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidLine, rest, err)
	}

	if len(parts) != 1 {
		return "", fmt.Errorf("%w: %q: expected a single target", ErrInvalidLine, rest)
	}

	return parts[0], nil
}

// splitHead splits a rule line into its quote-aware first field (the
// pattern, unquoted and unescaped) and the raw remainder (the command
// template, with its own quoting preserved for the executor).
func splitHead(line string) (head, rest string, err error) {
	var (
		quote rune
		esc   bool
		end   = len(line)
	)

	for i, r := range line {
		switch {
		case esc:
			esc = false
		case r == '\\':
			esc = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case unicode.IsSpace(r):
			end = i
		}

		if end == i {
			break
		}
	}

	if quote != 0 || esc {
		return "", "", fmt.Errorf("%w: %q: unterminated quote", ErrInvalidLine, line)
	}

	parts, err := shellwords.Parse(line[:end])
	if err != nil || len(parts) != 1 {
		return "", "", fmt.Errorf("%w: %q: malformed pattern field", ErrInvalidLine, line)
	}

	return parts[0], strings.TrimSpace(line[end:]), nil
}

// stripComment removes an unquoted `#` comment. A `#` only starts a comment
// at the beginning of the line or after whitespace, so `file#1.txt` stays a
// pattern.
func stripComment(line string) string {
	var (
		quote rune
		esc   bool
		prev  rune = ' '
	)

	for i, r := range line {
		switch {
		case esc:
			esc = false
		case r == '\\':
			esc = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '#' && unicode.IsSpace(prev):
			return line[:i]
		}

		prev = r
	}

	return line
}

// expandPath expands a leading tilde and environment-variable tokens.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %q: %w", path, err)
		}

		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	return os.ExpandEnv(path), nil
}

// canonicalize resolves path to an absolute, symlink-free form so that the
// inclusion stack compares paths by identity.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err //nolint:wrapcheck // Caller adds context.
	}

	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err //nolint:wrapcheck // Caller adds context.
	}

	return canon, nil
}
