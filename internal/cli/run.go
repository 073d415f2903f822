package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/runrunrun/rrr/pkg/config"
	"github.com/runrunrun/rrr/pkg/execs"
	"github.com/runrunrun/rrr/pkg/rule"
)

const cmdExamples = `  # Open a file with the best-ranked matching rule:
  rrr photo.jpg

  # Open a URI:
  rrr https://example.com

  # Print the resolved command instead of executing it:
  rrr --query photo.jpg

  # On failure, fall back to earlier-declared alternatives:
  rrr --fallback https://example.com

  # Use the rules of a named profile:
  rrr --profile work report.pdf

  # Resolve targets read from stdin, one per line:
  find . -name '*.png' | rrr --stdin`

type RunArgs struct {
	*RootArgs

	ConfigPath    string
	Profile       string
	Shell         string
	Targets       []string
	Fallback      bool
	Query         bool
	DryRun        bool
	CaseSensitive bool
	Stdin         bool
}

func NewRunArgs(rootArgs *RootArgs) *RunArgs {
	return &RunArgs{
		RootArgs: rootArgs,
	}
}

func (ra *RunArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ra.ConfigPath, "config", "", "Path to the main configuration file")
	cmd.Flags().StringVarP(&ra.Profile, "profile", "p", rule.DefaultProfile, "Profile to resolve against")
	cmd.Flags().BoolVarP(&ra.Fallback, "fallback", "f", false,
		"On execution failure, try the previous matching rule until one succeeds")
	cmd.Flags().BoolVarP(&ra.Query, "query", "q", false, "Print the resolved command instead of executing it")
	cmd.Flags().BoolVarP(&ra.DryRun, "dry-run", "n", false, "Resolve but do not execute any matching rule")
	cmd.Flags().BoolVarP(&ra.CaseSensitive, "case-sensitive", "s", false, "Match in case-sensitive mode")
	cmd.Flags().BoolVar(&ra.Stdin, "stdin", false, "Read targets from stdin, one per line")
	cmd.Flags().StringVar(&ra.Shell, "sh", "", "Run commands through this shell (e.g. \"sh -c\")")

	err := cmd.MarkFlagFilename("config", "conf")
	if err != nil {
		panic(fmt.Errorf("mark config flag: %w", err))
	}

	err = cmd.RegisterFlagCompletionFunc("profile", profileCompletion(ra))
	if err != nil {
		panic(fmt.Errorf("register profile completion: %w", err))
	}
}

func NewRunCmd(ra *RunArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run [target]...",
		Short:   "Default command, resolves each target to a command and runs it",
		Example: cmdExamples,
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ra.Targets = args

			return run(cmd, ra)
		},
	}
	ra.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

// Try to load config to get available profile names.
func profileCompletion(ra *RunArgs) func(*cobra.Command, []string, string) ([]cobra.Completion, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
		configPath := ra.ConfigPath
		if configPath == "" {
			var err error

			configPath, err = config.FindDefault()
			if err != nil {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
		}

		l := config.NewLoader()
		if err := l.Load(configPath); err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		return l.Build().ProfileNames(), cobra.ShellCompDirectiveNoFileComp
	}
}

func runCompletion() func(*cobra.Command, []string, string) ([]cobra.Completion, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
		// Targets are file paths (or URIs, which cannot be completed).
		return nil, cobra.ShellCompDirectiveDefault
	}
}

func run(cmd *cobra.Command, ra *RunArgs) error {
	if !ra.Stdin && len(ra.Targets) == 0 {
		return fmt.Errorf("requires at least one target argument (or --stdin)")
	}

	configPath := ra.ConfigPath
	if configPath == "" {
		var err error

		configPath, err = config.FindDefault()
		if err != nil {
			return err
		}
	}

	loader := config.NewLoader(config.WithCaseSensitive(ra.CaseSensitive))

	err := loader.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration %q: %w", configPath, err)
	}

	cfg := loader.Build()

	// Surface an unknown profile before resolving any target.
	if _, err := cfg.Profile(ra.Profile); err != nil {
		return err
	}

	executor, err := newExecutor(ra)
	if err != nil {
		return err
	}

	if ra.Stdin {
		slog.Debug("processing targets from stdin")

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			if err := processTarget(cmd, cfg, executor, ra, scanner.Text()); err != nil {
				return err
			}
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}

		return nil
	}

	for _, target := range ra.Targets {
		if err := processTarget(cmd, cfg, executor, ra, target); err != nil {
			return err
		}
	}

	return nil
}

func newExecutor(ra *RunArgs) (execs.Executor, error) {
	if ra.Shell == "" {
		return execs.NewExecutor(), nil
	}

	shell, err := shellwords.Parse(ra.Shell)
	if err != nil || len(shell) == 0 {
		return execs.Executor{}, fmt.Errorf("invalid shell %q: %w", ra.Shell, err)
	}

	return execs.NewExecutor(execs.WithShell(shell)), nil
}

func processTarget(cmd *cobra.Command, cfg *rule.Config, executor execs.Executor, ra *RunArgs, target string) error {
	candidates, err := cfg.Resolve(target, ra.Profile)
	if err != nil {
		return err
	}

	slog.Debug("resolved target",
		slog.String("target", target),
		slog.Int("candidates", len(candidates)),
		slog.String("rule", candidates[0].Rule.Origin.String()),
	)

	if ra.Query {
		n := len(candidates)
		if !ra.Fallback {
			n = 1
		}

		for _, c := range candidates[:n] {
			argv, err := executor.Render(c, target)
			if err != nil {
				return err
			}

			mustN(fmt.Fprintln(cmd.OutOrStdout(), strings.Join(argv, " ")))
		}

		return nil
	}

	if ra.DryRun {
		argv, err := executor.Render(candidates[0], target)
		if err != nil {
			return err
		}

		slog.Info("dry run",
			slog.String("target", target),
			slog.String("command", strings.Join(argv, " ")),
		)

		return nil
	}

	outcome, err := executor.Run(cmd.Context(), candidates, target, ra.Fallback)
	if err != nil {
		return err
	}

	if a := outcome.Succeeded(); a != nil {
		slog.Debug("command finished",
			slog.String("target", target),
			slog.String("status", a.Status.String()),
		)
	}

	return nil
}
