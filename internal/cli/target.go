package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stampede/internal/logging"
	"github.com/wesleyorama2/stampede/internal/target"
)

func newTargetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Serve a mock endpoint with a fixed status and latency",
		Long: `Target serves GET / with the configured status, delay and jitter, plus
/status/{code}, /delay/{ms} and /health. Point a run at it to try out a
configuration without touching a real service.

  stampede target --addr :8080 --status 200 --delay 10ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			addr, _ := fs.GetString("addr")
			status, _ := fs.GetInt("status")
			delay, _ := fs.GetDuration("delay")
			jitter, _ := fs.GetDuration("jitter")
			body, _ := fs.GetString("body")
			seed, _ := fs.GetInt64("seed")

			lc := loggingConfig(fs, false)
			logger, err := logging.New(lc)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			srv := target.NewServer(addr, target.Config{
				Status: status,
				Delay:  delay,
				Jitter: jitter,
				Body:   body,
				Seed:   seed,
			}, logger)
			return srv.ListenAndServe(cmd.Context())
		},
	}

	fs := cmd.Flags()
	fs.String("addr", ":8080", "Listen address")
	fs.Int("status", 200, "Status code for /")
	fs.Duration("delay", 0, "Delay before / answers")
	fs.Duration("jitter", 0, "Random extra delay, up to this much")
	fs.String("body", "OK", "Response body for /")
	fs.Int64("seed", time.Now().UnixNano(), "Seed for the jitter")
	addLogFlags(fs)
	lvl := fs.Lookup("log-level")
	lvl.DefValue = "info"
	_ = lvl.Value.Set("info")
	return cmd
}
