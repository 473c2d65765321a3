package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/engine"
	"github.com/wesleyorama2/stampede/internal/executor"
	"github.com/wesleyorama2/stampede/internal/logging"
	"github.com/wesleyorama2/stampede/internal/output"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run a load test from a run file, from flags, or from both. Flags override
values from the file.

Run file:
  stampede run --config load.yaml

Flags only:
  stampede run --url http://localhost:8080 \
    --stages "30s:10,1m:10,30s:0" \
    --threshold "http_req_duration=p(95)<2000" \
    --threshold "http_req_failed=rate<0.1"

Exit codes: 0 all thresholds passed, 99 a threshold failed, 104 invalid
configuration, 105 interrupted, 108 aborted by an abortOnFail threshold.`,
		Args: cobra.NoArgs,
		RunE: runLoad,
	}

	fs := cmd.Flags()
	addProfileFlags(fs)
	addLogFlags(fs)
	fs.BoolP("quiet", "q", false, "Print only the final verdict")
	fs.Bool("no-color", false, "Disable colored output")
	return cmd
}

func runLoad(cmd *cobra.Command, args []string) error {
	fs := cmd.Flags()
	quiet, _ := fs.GetBool("quiet")
	noColor, _ := fs.GetBool("no-color")

	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(loggingConfig(fs, noColor))
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("logging: %w", err)}
	}
	defer func() { _ = logger.Sync() }()

	console := output.NewConsole(output.ConsoleConfig{
		Writer:  cmd.OutOrStdout(),
		NoColor: noColor,
		Quiet:   quiet,
	})

	var totalStages int
	eng, err := engine.New(cfg,
		engine.WithLogger(logger),
		engine.WithStageHook(func(c executor.StageChange) { console.PrintStage(c, totalStages) }),
		engine.WithProgress(console.PrintProgress),
	)
	if err != nil {
		return err
	}
	totalStages = len(eng.Schedule().Stages())

	effective := eng.Config()
	console.PrintHeader(effective.Name, effective.TargetURL, eng.Schedule())

	res, runErr := eng.Run(cmd.Context())
	if res == nil {
		return runErr
	}
	if runErr != nil && !errors.Is(runErr, cmd.Context().Err()) {
		logger.Error("run failed", zap.Error(runErr))
	}

	console.PrintSummary(res)
	if code := res.ExitCode(); code != engine.ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}
