package execs_test

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runrunrun/rrr/pkg/execs"
	"github.com/runrunrun/rrr/pkg/pattern"
	"github.com/runrunrun/rrr/pkg/rule"
)

// fakeSpawner records every spawned argv and returns scripted dispositions
// keyed by the executable name.
type fakeSpawner struct {
	statuses map[string]execs.Status
	errs     map[string]error
	spawned  [][]string
}

func (f *fakeSpawner) spawn(_ context.Context, argv []string) (execs.Status, error) {
	f.spawned = append(f.spawned, argv)
	if err, ok := f.errs[argv[0]]; ok {
		return execs.Status{}, err
	}

	return f.statuses[argv[0]], nil
}

func candidate(t *testing.T, raw, template string, order int) rule.ResolvedCommand {
	t.Helper()

	return rule.ResolvedCommand{
		Template: template,
		Rule: &rule.Rule{
			Pattern:  pattern.MustCompile(raw, false),
			Template: template,
			Order:    order,
		},
	}
}

func TestExecutor_Run_Fallback(t *testing.T) {
	t.Parallel()

	// Candidates arrive most-preferred first: firefox (order 3), then
	// chromium (order 2), then lynx (order 1).
	candidates := []rule.ResolvedCommand{
		candidate(t, "https://*", "firefox", 3),
		candidate(t, "https://*", "chromium", 2),
		candidate(t, "https://*", "lynx", 1),
	}

	t.Run("first success halts the cascade", func(t *testing.T) {
		t.Parallel()

		fs := &fakeSpawner{statuses: map[string]execs.Status{
			"firefox": {Disposition: execs.ExitedZero},
		}}
		e := execs.NewExecutor(execs.WithSpawnFunc(fs.spawn))

		outcome, err := e.Run(t.Context(), candidates, "https://example.com", true)
		require.NoError(t, err)
		require.Len(t, fs.spawned, 1)
		assert.Equal(t, []string{"firefox", "https://example.com"}, fs.spawned[0])
		require.NotNil(t, outcome.Succeeded())
		assert.Equal(t, "firefox", outcome.Succeeded().Argv[0])
	})

	t.Run("failure continues to the next candidate", func(t *testing.T) {
		t.Parallel()

		fs := &fakeSpawner{statuses: map[string]execs.Status{
			"firefox":  {Disposition: execs.ExitedNonZero, Code: 1},
			"chromium": {Disposition: execs.ExitedZero},
		}}
		e := execs.NewExecutor(execs.WithSpawnFunc(fs.spawn))

		outcome, err := e.Run(t.Context(), candidates, "https://example.com", true)
		require.NoError(t, err)
		require.Len(t, outcome.Attempts, 2)
		require.NotNil(t, outcome.Succeeded())
		assert.Equal(t, "chromium", outcome.Succeeded().Argv[0])
	})

	t.Run("signal termination is success and halts", func(t *testing.T) {
		t.Parallel()

		fs := &fakeSpawner{statuses: map[string]execs.Status{
			"firefox": {Disposition: execs.TerminatedBySignal, Signal: syscall.SIGINT},
		}}
		e := execs.NewExecutor(execs.WithSpawnFunc(fs.spawn))

		outcome, err := e.Run(t.Context(), candidates, "https://example.com", true)
		require.NoError(t, err)
		require.Len(t, fs.spawned, 1)
		require.NotNil(t, outcome.Succeeded())
		assert.Equal(t, execs.TerminatedBySignal, outcome.Succeeded().Status.Disposition)
	})

	t.Run("all candidates failing reports every attempt", func(t *testing.T) {
		t.Parallel()

		fs := &fakeSpawner{
			statuses: map[string]execs.Status{
				"firefox":  {Disposition: execs.ExitedNonZero, Code: 1},
				"chromium": {Disposition: execs.ExitedNonZero, Code: 2},
			},
			errs: map[string]error{
				"lynx": errors.New("executable file not found"),
			},
		}
		e := execs.NewExecutor(execs.WithSpawnFunc(fs.spawn))

		outcome, err := e.Run(t.Context(), candidates, "https://example.com", true)
		require.ErrorIs(t, err, execs.ErrAllCandidatesFailed)
		require.Len(t, outcome.Attempts, 3)
		assert.Nil(t, outcome.Succeeded())
		assert.Equal(t, execs.ExitedNonZero, outcome.Attempts[0].Status.Disposition)
		assert.Equal(t, 2, outcome.Attempts[1].Status.Code)
		assert.Contains(t, err.Error(), "firefox")
		assert.Contains(t, err.Error(), "lynx")
	})

	t.Run("without fallback only the first candidate runs", func(t *testing.T) {
		t.Parallel()

		fs := &fakeSpawner{statuses: map[string]execs.Status{
			"firefox":  {Disposition: execs.ExitedNonZero, Code: 1},
			"chromium": {Disposition: execs.ExitedZero},
		}}
		e := execs.NewExecutor(execs.WithSpawnFunc(fs.spawn))

		outcome, err := e.Run(t.Context(), candidates, "https://example.com", false)
		require.ErrorIs(t, err, execs.ErrCommandFailed)
		require.Len(t, fs.spawned, 1)
		assert.Nil(t, outcome.Succeeded())
	})
}

func TestExecutor_Run_Shell(t *testing.T) {
	t.Parallel()

	fs := &fakeSpawner{statuses: map[string]execs.Status{
		"sh": {Disposition: execs.ExitedZero},
	}}
	e := execs.NewExecutor(
		execs.WithSpawnFunc(fs.spawn),
		execs.WithShell([]string{"sh", "-c"}),
	)

	_, err := e.Run(t.Context(), []rule.ResolvedCommand{
		candidate(t, "*", "feh --fullscreen", 1),
	}, "my photo.jpg", false)
	require.NoError(t, err)
	require.Len(t, fs.spawned, 1)
	assert.Equal(t, []string{"sh", "-c", "feh --fullscreen 'my photo.jpg'"}, fs.spawned[0])
}

func TestRender(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		template string
		target   string
		captures []string
		want     []string
		wantErr  error
	}{
		"target appended when no placeholder": {
			template: "feh --fullscreen",
			target:   "shot.png",
			want:     []string{"feh", "--fullscreen", "shot.png"},
		},
		"placeholder substitutes in position": {
			template: "mpv %s --loop",
			target:   "clip.mkv",
			want:     []string{"mpv", "clip.mkv", "--loop"},
		},
		"placeholder inside a token": {
			template: "sh -c 'cat %s'",
			target:   "notes.txt",
			want:     []string{"sh", "-c", "cat notes.txt"},
		},
		"target with spaces stays one argument": {
			template: "feh %s",
			target:   "my photo.jpg",
			want:     []string{"feh", "my photo.jpg"},
		},
		"captures substitute by index": {
			template: "open --scheme %1 %s",
			target:   "https://example.com",
			captures: []string{"https"},
			want:     []string{"open", "--scheme", "https", "https://example.com"},
		},
		"quoted template words with escaped quotes": {
			template: `echo "a \"b\" c"`,
			target:   "x",
			want:     []string{"echo", `a "b" c`, "x"},
		},
		"empty template": {
			template: "",
			target:   "x",
			wantErr:  execs.ErrBadTemplate,
		},
		"unterminated quote": {
			template: `feh "oops`,
			target:   "x",
			wantErr:  execs.ErrBadTemplate,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := execs.Render(tc.template, tc.target, tc.captures)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRenderLine(t *testing.T) {
	t.Parallel()

	got := execs.RenderLine("feh %s", "my photo.jpg", nil)
	assert.Equal(t, "feh 'my photo.jpg'", got)

	got = execs.RenderLine("feh", "shot.png", nil)
	assert.Equal(t, "feh shot.png", got)

	got = execs.RenderLine("open %1", "https://e.com", []string{"it's"})
	assert.True(t, strings.HasPrefix(got, "open 'it'"), got)
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "exit status 0", execs.Status{Disposition: execs.ExitedZero}.String())
	assert.Equal(t, "exit status 3",
		execs.Status{Disposition: execs.ExitedNonZero, Code: 3}.String())
	assert.Equal(t, "terminated by signal interrupt",
		execs.Status{Disposition: execs.TerminatedBySignal, Signal: syscall.SIGINT}.String())
}
