package rule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runrunrun/rrr/pkg/pattern"
	"github.com/runrunrun/rrr/pkg/rule"
)

func addRule(t *testing.T, c *rule.Config, profile, raw, template string, order int) {
	t.Helper()

	r := &rule.Rule{
		Pattern:  pattern.MustCompile(raw, false),
		Template: template,
		Profile:  profile,
		Order:    order,
	}
	if name, ok := pattern.AliasName(template); ok {
		r.AliasRef = name
	}

	c.EnsureProfile(profile).Add(r)
}

func TestConfig_Resolve_Priority(t *testing.T) {
	t.Parallel()

	t.Run("later rule of the same kind wins", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()
		addRule(t, c, "default", "*.jpg", "feh", 1)
		addRule(t, c, "default", "*.jpg", "imv", 2)

		got, err := c.Resolve("photo.jpg", "default")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "imv", got[0].Template)
		assert.Equal(t, "feh", got[1].Template)
	})

	t.Run("regex outranks glob regardless of order", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()
		addRule(t, c, "default", `~\.jpe?g$`, "gimp", 0)
		addRule(t, c, "default", "*.jpg", "feh", 1)

		got, err := c.Resolve("photo.jpg", "default")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "gimp", got[0].Template)
		assert.Equal(t, "feh", got[1].Template)
	})

	t.Run("non-matching rules are not candidates", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()
		addRule(t, c, "default", "*.png", "feh", 1)
		addRule(t, c, "default", "https://*", "firefox", 2)

		got, err := c.Resolve("https://example.com", "default")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "firefox", got[0].Template)
	})

	t.Run("regex candidates carry captures", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()
		addRule(t, c, "default", `~^(\w+)://`, "open %1", 1)

		got, err := c.Resolve("https://example.com", "default")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, []string{"https"}, got[0].Captures)
	})
}

func TestConfig_Resolve_NoMatch(t *testing.T) {
	t.Parallel()

	c := rule.NewConfig()
	addRule(t, c, "default", "*.png", "feh", 1)

	got, err := c.Resolve("notes.txt", "default")
	require.ErrorIs(t, err, rule.ErrNoMatch)
	assert.Contains(t, err.Error(), "notes.txt")
	assert.Nil(t, got)
}

func TestConfig_Resolve_Aliases(t *testing.T) {
	t.Parallel()

	t.Run("alias reference resolves at match time", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()
		// Forward reference: the rule is added before the alias is defined.
		addRule(t, c, "default", "https://*", "[browser]", 1)
		c.Aliases().Define("browser", "firefox")

		got, err := c.Resolve("https://example.com", "default")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "firefox", got[0].Template)
	})

	t.Run("redefinition overrides prior definitions", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()
		c.Aliases().Define("browser", "firefox")
		addRule(t, c, "default", "https://*", "[browser]", 1)
		c.Aliases().Define("browser", "chromium")

		got, err := c.Resolve("https://example.com", "default")
		require.NoError(t, err)
		assert.Equal(t, "chromium", got[0].Template)
	})

	t.Run("undefined alias fails at match time", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()
		addRule(t, c, "default", "https://*", "[browser]", 1)

		_, err := c.Resolve("https://example.com", "default")
		require.ErrorIs(t, err, rule.ErrUndefinedAlias)
		assert.Contains(t, err.Error(), "browser")
	})

	t.Run("alias resolution is single-level", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()
		c.Aliases().Define("outer", "[inner]")
		c.Aliases().Define("inner", "vim")
		addRule(t, c, "default", "*", "[outer]", 1)

		got, err := c.Resolve("x", "default")
		require.NoError(t, err)
		assert.Equal(t, "[inner]", got[0].Template)
	})
}

func TestConfig_Profiles(t *testing.T) {
	t.Parallel()

	t.Run("default profile always exists", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()

		s, err := c.Profile("default")
		require.NoError(t, err)
		assert.Empty(t, s.Rules())

		s, err = c.Profile("")
		require.NoError(t, err)
		assert.Equal(t, "default", s.Name)
	})

	t.Run("unknown profile is an error", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()

		_, err := c.Profile("work")
		require.ErrorIs(t, err, rule.ErrUnknownProfile)
		assert.Contains(t, err.Error(), "work")
	})

	t.Run("profiles do not inherit", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()
		addRule(t, c, "default", "*.png", "feh", 1)
		c.EnsureProfile("work")

		_, err := c.Resolve("shot.png", "work")
		require.ErrorIs(t, err, rule.ErrNoMatch)
	})

	t.Run("profile names are sorted", func(t *testing.T) {
		t.Parallel()

		c := rule.NewConfig()
		c.EnsureProfile("work")
		c.EnsureProfile("games")

		assert.Equal(t, []string{"default", "games", "work"}, c.ProfileNames())
	})
}

func TestAliasTable(t *testing.T) {
	t.Parallel()

	at := rule.NewAliasTable()
	at.Define("editor", "vim")

	got, err := at.Resolve("editor")
	require.NoError(t, err)
	assert.Equal(t, "vim", got)

	_, err = at.Resolve("pager")
	require.ErrorIs(t, err, rule.ErrUndefinedAlias)
}
