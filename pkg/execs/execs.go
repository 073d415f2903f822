package execs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/runrunrun/rrr/pkg/log"
	"github.com/runrunrun/rrr/pkg/rule"
)

var (
	// ErrEmptyCommand is returned when a command template renders to nothing.
	ErrEmptyCommand = errors.New("empty command")

	// ErrCommandFailed is returned when the single attempted candidate fails
	// and fallback is disabled.
	ErrCommandFailed = errors.New("command failed")

	// ErrAllCandidatesFailed is returned when fallback is enabled and every
	// candidate fails.
	ErrAllCandidatesFailed = errors.New("all candidates failed")
)

// Disposition classifies how an attempted process finished.
type Disposition int

const (
	// ExitedZero: the process exited with status code 0.
	ExitedZero Disposition = iota
	// ExitedNonZero: the process exited with a non-zero status code.
	ExitedNonZero
	// TerminatedBySignal: the process was terminated by a signal.
	TerminatedBySignal
)

// Status is the exit disposition of one spawned process.
type Status struct {
	Disposition Disposition

	// Code is the exit status code, meaningful for [ExitedNonZero].
	Code int

	// Signal is the terminating signal, meaningful for [TerminatedBySignal].
	Signal syscall.Signal
}

// Success reports whether the disposition halts the fallback cascade. Signal
// termination counts as success, not failure: it typically reflects
// deliberate user interruption rather than program failure.
func (s Status) Success() bool {
	return s.Disposition != ExitedNonZero
}

func (s Status) String() string {
	switch s.Disposition {
	case ExitedZero:
		return "exit status 0"
	case ExitedNonZero:
		return fmt.Sprintf("exit status %d", s.Code)
	case TerminatedBySignal:
		return fmt.Sprintf("terminated by signal %s", s.Signal)
	}

	return "unknown"
}

// Attempt records one candidate execution: the argv actually invoked and how
// it went. Err is set when the process could not be spawned at all.
type Attempt struct {
	Err    error
	Argv   []string
	Status Status
}

// Success reports whether this attempt halts the cascade.
func (a Attempt) Success() bool {
	return a.Err == nil && a.Status.Success()
}

func (a Attempt) String() string {
	if a.Err != nil {
		return fmt.Sprintf("%s: %v", strings.Join(a.Argv, " "), a.Err)
	}

	return fmt.Sprintf("%s: %s", strings.Join(a.Argv, " "), a.Status)
}

// Outcome is the result of running a candidate list.
type Outcome struct {
	// Attempts holds every candidate actually attempted, in order.
	Attempts []Attempt

	winner int
}

// Succeeded returns the successful attempt, or nil if all attempts failed.
func (o *Outcome) Succeeded() *Attempt {
	if o.winner < 0 || o.winner >= len(o.Attempts) {
		return nil
	}

	return &o.Attempts[o.winner]
}

// SpawnFunc spawns argv and waits for it to complete, returning its exit
// disposition. A non-nil error means the process could not be spawned.
type SpawnFunc func(ctx context.Context, argv []string) (Status, error)

// Spawn is the default [SpawnFunc]. The child inherits stdin, stdout and
// stderr. SIGINT is ignored in this process while waiting: the interrupt is
// delivered to the child, whose exit disposition then decides the cascade.
func Spawn(ctx context.Context, argv []string) (Status, error) {
	//nolint:gosec // G204: running user-configured commands is the point.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	signal.Ignore(os.Interrupt)
	defer signal.Reset(os.Interrupt)

	err := cmd.Run()
	if err == nil {
		return Status{Disposition: ExitedZero}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return Status{Disposition: TerminatedBySignal, Signal: ws.Signal()}, nil
		}

		return Status{Disposition: ExitedNonZero, Code: exitErr.ExitCode()}, nil
	}

	return Status{}, fmt.Errorf("spawn %q: %w", argv[0], err)
}

// Executor runs candidate commands in descending priority order.
type Executor struct {
	tracer trace.Tracer
	spawn  SpawnFunc
	shell  []string
}

// ExecutorOpt configures an [Executor].
type ExecutorOpt func(*Executor)

// WithSpawnFunc replaces the process-spawn primitive. Tests use this to keep
// cascade behavior hermetic.
func WithSpawnFunc(f SpawnFunc) ExecutorOpt {
	return func(e *Executor) {
		e.spawn = f
	}
}

// WithShell runs each candidate through the given shell command line (e.g.
// ["sh", "-c"]) instead of spawning its argv directly. The rendered template
// is passed as the shell's single trailing argument.
func WithShell(shell []string) ExecutorOpt {
	return func(e *Executor) {
		e.shell = shell
	}
}

// NewExecutor creates an [Executor].
func NewExecutor(opts ...ExecutorOpt) Executor {
	e := Executor{
		tracer: otel.Tracer("executor"),
		spawn:  Spawn,
	}
	for _, opt := range opts {
		opt(&e)
	}

	return e
}

// Render builds the argv for one candidate against the matched target.
func (e Executor) Render(c rule.ResolvedCommand, target string) ([]string, error) {
	if len(e.shell) > 0 {
		return append(append([]string{}, e.shell...), RenderLine(c.Template, target, c.Captures)), nil
	}

	return Render(c.Template, target, c.Captures)
}

// Run attempts candidates in order until one succeeds or the list is
// exhausted. Without fallback only the first (highest-priority) candidate is
// attempted and its outcome returned as-is. Template rendering errors are
// resolution errors, not execution failures, and are never retried.
func (e Executor) Run(
	ctx context.Context,
	candidates []rule.ResolvedCommand,
	target string,
	fallback bool,
) (*Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("target", target),
		attribute.Bool("fallback", fallback),
		attribute.Int("candidates", len(candidates)),
	))
	defer span.End()

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates for %q", ErrEmptyCommand, target)
	}

	n := len(candidates)
	if !fallback && n > 1 {
		n = 1
	}

	outcome := &Outcome{winner: -1}

	for i, c := range candidates[:n] {
		argv, err := e.Render(c, target)
		if err != nil {
			return nil, err
		}

		logger := log.WithContext(ctx).With(
			slog.String("command", strings.Join(argv, " ")),
			slog.String("rule", c.Rule.Origin.String()),
		)

		start := time.Now()

		status, err := e.spawn(ctx, argv)
		attempt := Attempt{Argv: argv, Status: status, Err: err}
		outcome.Attempts = append(outcome.Attempts, attempt)

		if attempt.Success() {
			outcome.winner = i

			logger.DebugContext(ctx, "command succeeded",
				slog.Duration("duration", time.Since(start)),
				slog.String("status", status.String()),
			)

			return outcome, nil
		}

		logger.InfoContext(ctx, "command failed",
			slog.Duration("duration", time.Since(start)),
			slog.String("status", attempt.String()),
			slog.Int("remaining", n-i-1),
		)
	}

	if !fallback {
		return outcome, fmt.Errorf("%w: %s", ErrCommandFailed, outcome.Attempts[0])
	}

	attempted := make([]string, 0, len(outcome.Attempts))
	for _, a := range outcome.Attempts {
		attempted = append(attempted, a.String())
	}

	return outcome, fmt.Errorf("%w for %q: %s",
		ErrAllCandidatesFailed, target, strings.Join(attempted, "; "))
}
