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

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/engine"
)

var (
	version = "0.1.0"
	commit  = "none"
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "stampede",
		Short:   "A stage-driven HTTP load generator",
		Version: version,
		Long: `Stampede ramps virtual users through configured stages against one HTTP
endpoint, checks every response, and decides pass or fail from aggregate
thresholds such as p(95)<2000 on http_req_duration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newProbeCmd())
	root.AddCommand(newTargetCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI with the process arguments and returns the exit code.
// SIGINT and SIGTERM cancel the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return ExecuteArgs(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// ExecuteArgs runs the CLI with args and returns the exit code.
func ExecuteArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return engine.ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(stderr, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}

	fmt.Fprintln(stderr, "Error:", err)
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		return engine.ExitInvalidConfig
	}
	return 1
}
