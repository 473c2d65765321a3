package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stampede/internal/check"
	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/engine"
	"github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/output"
)

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Send one request to the target and run the checks against it",
		Long: `Probe sends a single GET to the target URL with the run's HTTP settings,
prints the status and timing breakdown, and evaluates the configured checks.
Use it to confirm a run file before starting a load test.

  stampede probe --config load.yaml
  stampede probe --url http://localhost:8080 -H "Authorization: Bearer x"`,
		Args: cobra.NoArgs,
		RunE: runProbe,
	}

	fs := cmd.Flags()
	addProfileFlags(fs)
	fs.Bool("no-color", false, "Disable colored output")
	return cmd
}

func runProbe(cmd *cobra.Command, args []string) error {
	noColor, _ := cmd.Flags().GetBool("no-color")

	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	config.ApplyDefaults(cfg)
	if cfg.TargetURL == "" {
		return &config.ConfigError{Err: fmt.Errorf("targetUrl is required")}
	}

	checks, err := check.Compile(cfg.Checks)
	if err != nil {
		return &config.ConfigError{Err: err}
	}

	hc := engine.ClientConfig(cfg.HTTP)
	client := http.NewClient(hc, http.WithHeaders(cfg.HTTP.Headers))
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(cmd.Context(), hc.Timeout)
	defer cancel()

	result := client.Get(ctx, cfg.TargetURL)

	recorder := check.NewRecorder(nil)
	ok := check.Evaluate(checks, result, recorder)

	console := output.NewConsole(output.ConsoleConfig{Writer: cmd.OutOrStdout(), NoColor: noColor})
	console.PrintProbe(result, recorder.Results())

	if !ok || result.Err != nil {
		return &ExitError{Code: 1}
	}
	return nil
}
