// Package config provides run-file parsing and validation.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RunConfig is the root configuration for a load run.
//
// Example YAML:
//
//	name: simple-load-test
//	targetUrl: http://test-app-service.default.svc.cluster.local
//	stages:
//	  - { duration: 2m, target: 20 }
//	  - { duration: 5m, target: 20 }
//	  - { duration: 2m, target: 0 }
//	thresholds:
//	  http_req_duration: ["p(95)<2000"]
//	  http_req_failed: ["rate<0.1"]
//	sleep: 1s
type RunConfig struct {
	// Name of the run (for logging and the summary)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description of the run (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// TargetURL is the endpoint every iteration requests
	TargetURL string `json:"targetUrl,omitempty" yaml:"targetUrl,omitempty"`

	// TargetURLAlias accepts the snake_case spelling; ApplyDefaults folds it into TargetURL
	TargetURLAlias string `json:"target_url,omitempty" yaml:"target_url,omitempty"`

	// StartVUs is the VU count at elapsed time zero
	StartVUs int `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`

	// Stages defines the ramping profile
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// VUs and Duration are a shortcut for one flat stage (constant load)
	VUs      int      `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Thresholds maps a metric name to its pass/fail expressions
	Thresholds map[string]ThresholdList `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Sleep is the pause at the end of each iteration (default 1s)
	Sleep *Duration `json:"sleep,omitempty" yaml:"sleep,omitempty"`

	// Checks are evaluated against every response (default: status is 200)
	Checks []CheckConfig `json:"checks,omitempty" yaml:"checks,omitempty"`

	// GracefulStop is how long in-flight iterations may run past the end of
	// the last stage (default 30s, 0 means none)
	GracefulStop *Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// GracefulRampDown is how long a VU removed by a ramp-down may finish its
	// iteration (default 30s, 0 means none)
	GracefulRampDown *Duration `json:"gracefulRampDown,omitempty" yaml:"gracefulRampDown,omitempty"`

	// HTTP client settings
	HTTP HTTPSettings `json:"http,omitempty" yaml:"http,omitempty"`

	// Tags are attached to the run log
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// StageConfig defines a single stage of the ramping profile.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m", or integer seconds)
	Duration Duration `json:"duration" yaml:"duration"`

	// Target VU count at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for logging)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// HTTPSettings contains HTTP client settings.
type HTTPSettings struct {
	// Timeout is the per-request timeout (default 60s)
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxConnectionsPerHost limits connections per host (0 = unlimited)
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// DisableKeepAlives opens a new connection for every request
	DisableKeepAlives bool `json:"disableKeepAlives,omitempty" yaml:"disableKeepAlives,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are sent with every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// CheckConfig defines a response check.
type CheckConfig struct {
	// Name shown in the summary; generated from the other fields when empty
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Type is one of: status, duration, body, header, jsonpath, jsonschema
	Type string `json:"type" yaml:"type"`

	// Condition is the comparison: eq, ne, lt, lte, gt, gte, in, contains,
	// not_contains, matches, exists, not_exists
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Value is the expected value
	Value FlexString `json:"value,omitempty" yaml:"value,omitempty"`

	// Header is the header name for header checks
	Header string `json:"header,omitempty" yaml:"header,omitempty"`

	// Path is the JSONPath for jsonpath checks
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Schema is an inline JSON schema for jsonschema checks
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// ThresholdConfig is one threshold expression. In a run file it is either a
// plain string or an object:
//
//	http_req_failed:
//	  - "rate<0.1"
//	  - threshold: "rate<0.5"
//	    abortOnFail: true
//	    delayAbortEval: 30s
type ThresholdConfig struct {
	Threshold      string   `json:"threshold" yaml:"threshold"`
	AbortOnFail    bool     `json:"abortOnFail,omitempty" yaml:"abortOnFail,omitempty"`
	DelayAbortEval Duration `json:"delayAbortEval,omitempty" yaml:"delayAbortEval,omitempty"`
}

// thresholdObject avoids recursing into the custom unmarshalers.
type thresholdObject ThresholdConfig

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *ThresholdConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = ThresholdConfig{Threshold: node.Value}
		return nil
	}
	var obj thresholdObject
	if err := node.Decode(&obj); err != nil {
		return err
	}
	*t = ThresholdConfig(obj)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ThresholdConfig) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = ThresholdConfig{Threshold: s}
		return nil
	}
	var obj thresholdObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*t = ThresholdConfig(obj)
	return nil
}

// ThresholdList is the list of thresholds for one metric. A single string or
// object is accepted in place of a list.
type ThresholdList []ThresholdConfig

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *ThresholdList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		var one ThresholdConfig
		if err := node.Decode(&one); err != nil {
			return err
		}
		*l = ThresholdList{one}
		return nil
	}
	var many []ThresholdConfig
	if err := node.Decode(&many); err != nil {
		return err
	}
	*l = many
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ThresholdList) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if !strings.HasPrefix(trimmed, "[") {
		var one ThresholdConfig
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*l = ThresholdList{one}
		return nil
	}
	var many []ThresholdConfig
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// FlexString is a string that also accepts bare JSON numbers and booleans,
// so `"value": 200` and `"value": "200"` mean the same thing.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return fmt.Errorf("expected a scalar value, got %s", raw)
	}
	*f = FlexString(raw)
	return nil
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings
// or integer seconds.
type Duration time.Duration

// GetDuration returns the duration or a default if zero.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes if present
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DurationPtr is a convenience for optional Duration fields.
func DurationPtr(d time.Duration) *Duration {
	v := Duration(d)
	return &v
}
