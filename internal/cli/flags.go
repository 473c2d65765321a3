package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/logging"
)

// addProfileFlags registers the flags that build or override a RunConfig.
func addProfileFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Run file (YAML or JSON)")
	fs.StringP("url", "u", "", "Target URL")
	fs.String("name", "", "Run name")
	fs.String("stages", "", `Stages as "duration:target,..." (e.g. "2m:20,5m:20,2m:0")`)
	fs.Int("vus", 0, "Constant number of VUs (with --duration)")
	fs.String("duration", "", "Run duration for --vus")
	fs.Int("start-vus", 0, "VUs at the start of the first stage")
	fs.StringArray("threshold", nil, `Threshold as "metric=expression" (repeatable)`)
	fs.String("sleep", "", "Pause at the end of each iteration (default 1s)")
	fs.String("graceful-stop", "", "Time in-flight iterations get after the last stage")
	fs.String("graceful-ramp-down", "", "Time a VU removed by a ramp-down gets to finish")
	fs.String("timeout", "", "Per-request timeout")
	fs.Bool("insecure", false, "Skip TLS certificate verification")
	fs.StringArrayP("header", "H", nil, `Request header as "Key: Value" (repeatable)`)
}

func addLogFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "warn", "Log level: debug, info, warn, error")
	fs.String("log-format", "console", "Log format: console, json")
	fs.String("log-file", "", "Also write JSON logs to this file (rotated)")
}

// loadRunConfig reads --config if given and applies flag overrides on top.
// Every problem is a *config.ConfigError.
func loadRunConfig(cmd *cobra.Command) (*config.RunConfig, error) {
	fs := cmd.Flags()

	cfg := &config.RunConfig{}
	if path, _ := fs.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := applyFlags(fs, cfg); err != nil {
		return nil, &config.ConfigError{Err: err}
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, cfg *config.RunConfig) error {
	if fs.Changed("url") {
		cfg.TargetURL, _ = fs.GetString("url")
		cfg.TargetURLAlias = ""
	}
	if fs.Changed("name") {
		cfg.Name, _ = fs.GetString("name")
	}
	if fs.Changed("start-vus") {
		cfg.StartVUs, _ = fs.GetInt("start-vus")
	}

	if fs.Changed("stages") {
		raw, _ := fs.GetString("stages")
		st, err := config.ParseStages(raw)
		if err != nil {
			return fmt.Errorf("--stages: %w", err)
		}
		cfg.Stages = st
		cfg.VUs, cfg.Duration = 0, 0
	}
	if fs.Changed("vus") || fs.Changed("duration") {
		if fs.Changed("vus") {
			cfg.VUs, _ = fs.GetInt("vus")
		}
		if fs.Changed("duration") {
			d, err := durationFlag(fs, "duration")
			if err != nil {
				return err
			}
			cfg.Duration = d
		}
		if !fs.Changed("stages") {
			cfg.Stages = nil
		}
	}

	thresholds, _ := fs.GetStringArray("threshold")
	for _, raw := range thresholds {
		metric, expr, ok := strings.Cut(raw, "=")
		metric, expr = strings.TrimSpace(metric), strings.TrimSpace(expr)
		if !ok || metric == "" || expr == "" {
			return fmt.Errorf("--threshold %q: want metric=expression", raw)
		}
		if cfg.Thresholds == nil {
			cfg.Thresholds = make(map[string]config.ThresholdList)
		}
		cfg.Thresholds[metric] = append(cfg.Thresholds[metric], config.ThresholdConfig{Threshold: expr})
	}

	if fs.Changed("sleep") {
		d, err := durationFlag(fs, "sleep")
		if err != nil {
			return err
		}
		cfg.Sleep = &d
	}
	if fs.Changed("graceful-stop") {
		d, err := durationFlag(fs, "graceful-stop")
		if err != nil {
			return err
		}
		cfg.GracefulStop = &d
	}
	if fs.Changed("graceful-ramp-down") {
		d, err := durationFlag(fs, "graceful-ramp-down")
		if err != nil {
			return err
		}
		cfg.GracefulRampDown = &d
	}
	if fs.Changed("timeout") {
		d, err := durationFlag(fs, "timeout")
		if err != nil {
			return err
		}
		cfg.HTTP.Timeout = d
	}
	if fs.Changed("insecure") {
		cfg.HTTP.InsecureSkipVerify, _ = fs.GetBool("insecure")
	}

	headers, _ := fs.GetStringArray("header")
	for _, h := range headers {
		key, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("--header %q: want \"Key: Value\"", h)
		}
		if cfg.HTTP.Headers == nil {
			cfg.HTTP.Headers = make(map[string]string)
		}
		cfg.HTTP.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return nil
}

// durationFlag parses a duration flag the same way run files do, so
// "--sleep 2" means two seconds.
func durationFlag(fs *pflag.FlagSet, name string) (config.Duration, error) {
	raw, _ := fs.GetString(name)
	d, err := config.ParseDurationString(raw)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	return config.Duration(d), nil
}

func loggingConfig(fs *pflag.FlagSet, noColor bool) logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = fs.GetString("log-level")
	cfg.Format, _ = fs.GetString("log-format")
	cfg.NoColor = noColor
	if path, _ := fs.GetString("log-file"); path != "" {
		cfg.Output = logging.OutputBoth
		cfg.FilePath = path
	}
	return cfg
}
