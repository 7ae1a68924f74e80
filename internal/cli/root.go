// Package cli implements the reviewmesh command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/logging"
)

// Version is set at build time.
var Version = "0.1.0"

// Exit codes.
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitRuntimeError = 4
)

// app carries global flags and the process streams of one invocation.
type app struct {
	configPath string
	envPath    string
	verbose    bool

	stdout io.Writer
	stderr io.Writer

	// logger overrides the zap logger, for tests.
	logger   logging.Logger
	exitCode int
}

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout, os.Stderr, nil)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, logger logging.Logger) int {
	a := &app{stdout: stdout, stderr: stderr, logger: logger}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		// Cobra already prints usage errors
		return ExitUsageError
	}
	return a.exitCode
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reviewmesh",
		Short:         "AI feedback for tickets, questions and commits",
		Long:          "reviewmesh drafts ticket feedback, answers questions with tool-augmented ticket lookups and reviews git commits using OpenAI compatible or Anthropic providers.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "reviewmesh.yaml", "Path to the configuration file")
	root.PersistentFlags().StringVar(&a.envPath, "env", ".env", "Path to a .env file (ignored when missing)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.analyzeCmd(),
		a.askCmd(),
		a.reviewCmd(),
		a.queueCmd(),
		a.workerCmd(),
		a.modelsCmd(),
		a.serveCmd(),
		a.importCmd(),
		a.versionCmd(),
	)
	return root
}

// fail reports err and records the matching exit code. Returning nil keeps
// cobra from printing usage for runtime failures.
func (a *app) fail(err error) error {
	var e *core.Error
	if errors.As(err, &e) {
		fmt.Fprintf(a.stderr, "Error: %s\n", e.Message)
		if hint := e.Hint(); hint != "" {
			fmt.Fprintf(a.stderr, "Hint: %s\n", hint)
		}
	} else {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
	}
	a.exitCode = exitCodeFor(err)
	return nil
}

func exitCodeFor(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return ExitUsageError
	case core.KindConfig, core.KindTemplate:
		return ExitConfigError
	}
	return ExitRuntimeError
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print reviewmesh version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "reviewmesh version %s\n", Version)
		},
	}
}
