package rule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/runrunrun/rrr/pkg/pattern"
)

// DefaultProfile collects all rules preceding the first `:profile`
// directive. It always exists, even when empty.
const DefaultProfile = "default"

var (
	// ErrUndefinedAlias is returned when a referenced alias was never defined
	// by the time matching occurs.
	ErrUndefinedAlias = errors.New("undefined alias")

	// ErrUnknownProfile is returned when a profile was never declared.
	ErrUnknownProfile = errors.New("unknown profile")

	// ErrNoMatch is returned when no rule in the active profile matches the
	// target.
	ErrNoMatch = errors.New("no match")
)

// Origin records where a rule was declared, for diagnostics.
type Origin struct {
	// File is the configuration file the rule was parsed from.
	File string
	// Imported is the desktop-entry file the rule was generated from, empty
	// for hand-written rules.
	Imported string
	// Line is the 1-based line number within File.
	Line int
}

func (o Origin) String() string {
	if o.Imported != "" {
		return fmt.Sprintf("%s:%d (imported %s)", o.File, o.Line, o.Imported)
	}

	return fmt.Sprintf("%s:%d", o.File, o.Line)
}

// Rule associates a compiled pattern with a command template.
type Rule struct {
	Pattern *pattern.Pattern

	// Template is the command template. When AliasRef is non-empty the
	// template is looked up in the alias table at match time instead.
	Template string

	// AliasRef is the alias name referenced in command position, empty for
	// inline templates.
	AliasRef string

	// Profile is the name of the profile the rule belongs to.
	Profile string

	Origin Origin

	// Order is a monotonically increasing counter assigned at parse time,
	// used to break ties by recency.
	Order int
}

// AliasTable maps alias names to command templates. It behaves like global
// state across the whole configuration: it is built once during loading,
// frozen before matching begins, and consulted lazily at match time, so
// aliases may be defined after their first reference.
type AliasTable struct {
	m map[string]string
}

// NewAliasTable creates an empty [AliasTable].
func NewAliasTable() *AliasTable {
	return &AliasTable{m: make(map[string]string)}
}

// Define registers an alias. The last definition wins, for all subsequent
// and previously-registered references.
func (t *AliasTable) Define(name, template string) {
	t.m[name] = template
}

// Resolve returns the command template for name. Resolution is single-level:
// the returned template is not itself scanned for further alias references.
func (t *AliasTable) Resolve(name string) (string, error) {
	template, ok := t.m[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUndefinedAlias, name)
	}

	return template, nil
}

// Set is a named, non-inheriting partition of the rule list.
type Set struct {
	Name  string
	rules []*Rule
}

// Add appends a rule. Earlier rules are never removed; recency is expressed
// through [Rule.Order].
func (s *Set) Add(r *Rule) {
	s.rules = append(s.rules, r)
}

// Rules returns the rules in declaration order.
func (s *Set) Rules() []*Rule {
	return s.rules
}

// Config is one loaded configuration: the alias table plus the rule sets,
// partitioned by profile. It is built once per invocation and immutable
// thereafter; the matcher holds only read access to it.
type Config struct {
	profiles map[string]*Set
	aliases  *AliasTable
}

// NewConfig creates a [Config] containing only the empty default profile.
func NewConfig() *Config {
	return &Config{
		profiles: map[string]*Set{
			DefaultProfile: {Name: DefaultProfile},
		},
		aliases: NewAliasTable(),
	}
}

// Aliases returns the global alias table.
func (c *Config) Aliases() *AliasTable {
	return c.aliases
}

// EnsureProfile returns the named rule set, creating it if a `:profile`
// directive names it for the first time. An empty name selects the default
// profile.
func (c *Config) EnsureProfile(name string) *Set {
	if name == "" {
		name = DefaultProfile
	}

	s, ok := c.profiles[name]
	if !ok {
		s = &Set{Name: name}
		c.profiles[name] = s
	}

	return s
}

// Profile returns the named rule set, or [ErrUnknownProfile] if no
// `:profile` directive ever declared it. The default profile always exists.
func (c *Config) Profile(name string) (*Set, error) {
	if name == "" {
		name = DefaultProfile
	}

	s, ok := c.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}

	return s, nil
}

// ProfileNames returns the declared profile names, sorted.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// ResolvedCommand is one candidate emitted by the matcher: an alias-resolved
// command template plus the capture groups of the matching pattern.
type ResolvedCommand struct {
	Template string
	Rule     *Rule
	Captures []string
}

// Resolve matches target against the named profile's rules and returns the
// candidates, most preferred first.
//
// A rule is a candidate if its pattern matches the target. Candidates are
// ordered by (kind rank, declaration order), both descending: regex rules
// outrank globs, and later rules of the same kind outrank earlier ones.
// Alias references in command position are resolved here, at selection time.
func (c *Config) Resolve(target, profileName string) ([]ResolvedCommand, error) {
	set, err := c.Profile(profileName)
	if err != nil {
		return nil, err
	}

	var matched []*Rule

	for _, r := range set.rules {
		if r.Pattern.Match(target) {
			matched = append(matched, r)
		}
	}

	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: %q in profile %q", ErrNoMatch, target, set.Name)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		ri, rj := matched[i], matched[j]
		if ri.Pattern.Kind.Rank() != rj.Pattern.Kind.Rank() {
			return ri.Pattern.Kind.Rank() > rj.Pattern.Kind.Rank()
		}

		return ri.Order > rj.Order
	})

	candidates := make([]ResolvedCommand, 0, len(matched))

	for _, r := range matched {
		template := r.Template
		if r.AliasRef != "" {
			template, err = c.aliases.Resolve(r.AliasRef)
			if err != nil {
				return nil, fmt.Errorf("rule at %s: %w", r.Origin, err)
			}
		}

		candidates = append(candidates, ResolvedCommand{
			Template: template,
			Rule:     r,
			Captures: r.Pattern.Captures(target),
		})
	}

	return candidates, nil
}
