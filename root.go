package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/appdist/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagEmployeeID string
	flagBaseURL    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags is the parsed form of the persistent flags.
type CLIFlags struct {
	ConfigPath string
	EmployeeID string
	BaseURL    string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries everything a subcommand needs after the root pre-run:
// the resolved config, the logger and the output streams.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext installed by PersistentPreRunE.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext missing: command ran without the root pre-run")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "appdist",
		Short:   "Application distribution forms client",
		Long:    "Drive application-distribution forms (zone, DGM, campus) from the command line or a browser bridge.",
		Version: version,
		// We print errors ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagEmployeeID, "employee-id", "", "employee id the session acts as")
	cmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "distribution backend base URL")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newFormsCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newSubmitCmd())
	cmd.AddCommand(newMapCmd())
	cmd.AddCommand(newAppCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and installs a CLIContext on the command.
func loadConfig(cmd *cobra.Command) error {
	flags := CLIFlags{
		ConfigPath: flagConfigPath,
		EmployeeID: flagEmployeeID,
		BaseURL:    flagBaseURL,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}

	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		EmployeeID: flags.EmployeeID,
		BaseURL:    flags.BaseURL,
	}

	if f := cmd.Flags().Lookup("dry-run"); f != nil && f.Changed {
		dry := f.Value.String() == "true"
		cli.DryRun = &dry
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cc := &CLIContext{
		Flags:  flags,
		Cfg:    resolved,
		Logger: buildLogger(resolved, flags, os.Stderr),
		Out:    cmd.OutOrStdout(),
		Err:    cmd.ErrOrStderr(),
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. The "auto" format picks
// text on a terminal and JSON otherwise.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w *os.File) *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	format := "auto"
	if cfg != nil {
		format = cfg.LogFormat
	}

	if format == "auto" {
		format = "json"
		if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
			format = "text"
		}
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", exit.err)
		}

		os.Exit(exit.code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}

	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}
