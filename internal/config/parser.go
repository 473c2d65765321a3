package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/stampede/internal/stages"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultSleep            = time.Second
	DefaultGracefulStop     = 30 * time.Second
	DefaultGracefulRampDown = 30 * time.Second
	DefaultHTTPTimeout      = 60 * time.Second
	DefaultUserAgent        = "stampede/1.0"
)

// LoadConfig loads a run configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*RunConfig, error) {
	var config RunConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("failed to parse JSON config: %w", err)}
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("failed to parse YAML config: %w", err)}
		}
	default:
		// Try YAML by default
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)}
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ParseStages parses the compact stage syntax used on the command line:
//
//	2m:20,5m:20,2m:40,5m:40,2m:0
func ParseStages(s string) ([]StageConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	out := make([]StageConfig, 0, len(parts))
	for i, part := range parts {
		dur, target, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("stage %d: expected duration:target, got %q", i+1, part)
		}
		d, err := ParseDurationString(dur)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(target))
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target %q", i+1, target)
		}
		out = append(out, StageConfig{Duration: Duration(d), Target: n})
	}
	return out, nil
}

// ApplyDefaults fills unset fields. It is idempotent.
func ApplyDefaults(config *RunConfig) {
	if config.TargetURL == "" && config.TargetURLAlias != "" {
		config.TargetURL = config.TargetURLAlias
	}
	config.TargetURLAlias = ""

	if config.Name == "" {
		config.Name = "stampede"
	}
	if config.Sleep == nil {
		config.Sleep = DurationPtr(DefaultSleep)
	}
	if config.GracefulStop == nil {
		config.GracefulStop = DurationPtr(DefaultGracefulStop)
	}
	if config.GracefulRampDown == nil {
		config.GracefulRampDown = DurationPtr(DefaultGracefulRampDown)
	}
	if config.HTTP.Timeout == 0 {
		config.HTTP.Timeout = Duration(DefaultHTTPTimeout)
	}
	if config.HTTP.MaxIdleConnsPerHost == 0 {
		config.HTTP.MaxIdleConnsPerHost = 100
	}
	if config.HTTP.UserAgent == "" {
		config.HTTP.UserAgent = DefaultUserAgent
	}
}

// Profile converts the configured load shape into a start value and stages.
// vus/duration becomes a single flat stage that starts at full load.
func (c *RunConfig) Profile() (int, []stages.Stage) {
	if len(c.Stages) == 0 && c.VUs > 0 {
		return c.VUs, []stages.Stage{{Duration: time.Duration(c.Duration), Target: c.VUs, Name: "constant"}}
	}

	out := make([]stages.Stage, len(c.Stages))
	for i, st := range c.Stages {
		out[i] = stages.Stage{Duration: time.Duration(st.Duration), Target: st.Target, Name: st.Name}
	}
	return c.StartVUs, out
}

// Clone returns a deep copy, so a running engine is unaffected by later
// changes to the caller's value.
func (c *RunConfig) Clone() *RunConfig {
	out := *c

	out.Stages = append([]StageConfig(nil), c.Stages...)
	out.Checks = append([]CheckConfig(nil), c.Checks...)

	out.Sleep = cloneDuration(c.Sleep)
	out.GracefulStop = cloneDuration(c.GracefulStop)
	out.GracefulRampDown = cloneDuration(c.GracefulRampDown)
	if c.Thresholds != nil {
		out.Thresholds = make(map[string]ThresholdList, len(c.Thresholds))
		for k, v := range c.Thresholds {
			out.Thresholds[k] = append(ThresholdList(nil), v...)
		}
	}
	out.Tags = cloneMap(c.Tags)
	out.HTTP.Headers = cloneMap(c.HTTP.Headers)

	return &out
}

func cloneDuration(d *Duration) *Duration {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
