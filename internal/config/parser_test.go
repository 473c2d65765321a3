package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{
			name:     "standard seconds",
			input:    "30s",
			expected: 30 * time.Second,
		},
		{
			name:     "standard minutes",
			input:    "2m",
			expected: 2 * time.Minute,
		},
		{
			name:     "milliseconds",
			input:    "500ms",
			expected: 500 * time.Millisecond,
		},
		{
			name:     "combined duration",
			input:    "1h30m",
			expected: 90 * time.Minute,
		},
		{
			name:     "integer as seconds",
			input:    "30",
			expected: 30 * time.Second,
		},
		{
			name:     "padded",
			input:    " 10s ",
			expected: 10 * time.Second,
		},
		{
			name:     "empty string",
			input:    "",
			expected: 0,
		},
		{
			name:    "trailing garbage",
			input:   "30abc",
			wantErr: true,
		},
		{
			name:    "invalid format",
			input:   "abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDurationString() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseDurationString() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseConfig_YAML(t *testing.T) {
	yamlConfig := `
name: simple-load-test
targetUrl: http://test-app-service.default.svc.cluster.local
startVUs: 5
stages:
  - duration: 2m
    target: 20
  - duration: 5m
    target: 20
    name: hold
  - duration: 120
    target: 0
thresholds:
  http_req_duration: ["p(95)<2000", "avg<500"]
  http_req_failed: "rate<0.1"
  checks:
    - threshold: "rate>0.9"
      abortOnFail: true
      delayAbortEval: 10s
sleep: 500ms
checks:
  - type: status
    value: 200
  - type: jsonpath
    path: $.status
    condition: eq
    value: ok
http:
  timeout: 5s
  headers:
    Accept: application/json
`

	config, err := ParseConfig([]byte(yamlConfig), "test.yaml")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if config.Name != "simple-load-test" {
		t.Errorf("Name = %q, want %q", config.Name, "simple-load-test")
	}
	if config.TargetURL != "http://test-app-service.default.svc.cluster.local" {
		t.Errorf("TargetURL = %q", config.TargetURL)
	}
	if config.StartVUs != 5 {
		t.Errorf("StartVUs = %d, want 5", config.StartVUs)
	}

	if len(config.Stages) != 3 {
		t.Fatalf("len(Stages) = %d, want 3", len(config.Stages))
	}
	if time.Duration(config.Stages[0].Duration) != 2*time.Minute {
		t.Errorf("Stages[0].Duration = %v, want 2m", config.Stages[0].Duration)
	}
	if config.Stages[1].Name != "hold" {
		t.Errorf("Stages[1].Name = %q, want hold", config.Stages[1].Name)
	}
	if time.Duration(config.Stages[2].Duration) != 2*time.Minute {
		t.Errorf("Stages[2].Duration = %v, want 2m (integer seconds)", config.Stages[2].Duration)
	}

	if got := len(config.Thresholds["http_req_duration"]); got != 2 {
		t.Errorf("len(http_req_duration thresholds) = %d, want 2", got)
	}
	failed := config.Thresholds["http_req_failed"]
	if len(failed) != 1 || failed[0].Threshold != "rate<0.1" {
		t.Errorf("http_req_failed thresholds = %+v", failed)
	}
	checks := config.Thresholds["checks"]
	if len(checks) != 1 || !checks[0].AbortOnFail || time.Duration(checks[0].DelayAbortEval) != 10*time.Second {
		t.Errorf("checks thresholds = %+v", checks)
	}

	if config.Sleep == nil || time.Duration(*config.Sleep) != 500*time.Millisecond {
		t.Errorf("Sleep = %v, want 500ms", config.Sleep)
	}
	if len(config.Checks) != 2 || config.Checks[0].Value != "200" {
		t.Errorf("Checks = %+v", config.Checks)
	}
	if time.Duration(config.HTTP.Timeout) != 5*time.Second {
		t.Errorf("HTTP.Timeout = %v, want 5s", config.HTTP.Timeout)
	}
	if config.HTTP.Headers["Accept"] != "application/json" {
		t.Errorf("HTTP.Headers = %v", config.HTTP.Headers)
	}
}

func TestParseConfig_JSON(t *testing.T) {
	jsonConfig := `{
		"name": "json-run",
		"target_url": "https://api.example.com/health",
		"vus": 10,
		"duration": "1m",
		"thresholds": {
			"http_req_duration": "p95<300",
			"checks": [{"threshold": "rate>0.99", "abortOnFail": true}]
		},
		"sleep": "0s",
		"checks": [{"type": "status", "condition": "lt", "value": 400}]
	}`

	config, err := ParseConfig([]byte(jsonConfig), "run.json")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if config.TargetURLAlias != "https://api.example.com/health" {
		t.Errorf("TargetURLAlias = %q", config.TargetURLAlias)
	}
	if config.VUs != 10 || time.Duration(config.Duration) != time.Minute {
		t.Errorf("VUs/Duration = %d/%v", config.VUs, config.Duration)
	}
	if th := config.Thresholds["http_req_duration"]; len(th) != 1 || th[0].Threshold != "p95<300" {
		t.Errorf("http_req_duration = %+v", th)
	}
	if th := config.Thresholds["checks"]; len(th) != 1 || !th[0].AbortOnFail {
		t.Errorf("checks = %+v", th)
	}
	if config.Sleep == nil || *config.Sleep != 0 {
		t.Errorf("Sleep = %v, want explicit 0", config.Sleep)
	}
	if config.Checks[0].Value != "400" {
		t.Errorf("Checks[0].Value = %q, want 400", config.Checks[0].Value)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	if _, err := ParseConfig([]byte("stages: [oops"), "bad.yaml"); err == nil {
		t.Error("ParseConfig() should fail on malformed YAML")
	}
	if _, err := ParseConfig([]byte(`{"stages": 1`), "bad.json"); err == nil {
		t.Error("ParseConfig() should fail on malformed JSON")
	}
	if _, err := ParseConfig([]byte("sleep: forever"), ""); err == nil {
		t.Error("ParseConfig() should fail on a bad duration")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yml")
	content := "targetUrl: http://localhost:8080\nvus: 2\nduration: 10s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.VUs != 2 {
		t.Errorf("VUs = %d, want 2", config.VUs)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadConfig() should fail for a missing file")
	}
}

func TestParseStages(t *testing.T) {
	got, err := ParseStages("2m:20, 5m:20,30:0")
	if err != nil {
		t.Fatalf("ParseStages() error = %v", err)
	}
	want := []StageConfig{
		{Duration: Duration(2 * time.Minute), Target: 20},
		{Duration: Duration(5 * time.Minute), Target: 20},
		{Duration: Duration(30 * time.Second), Target: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"2m", "2m:x", "soon:5"} {
		if _, err := ParseStages(bad); err == nil {
			t.Errorf("ParseStages(%q) should fail", bad)
		}
	}

	if got, err := ParseStages(""); err != nil || got != nil {
		t.Errorf("ParseStages(\"\") = %v, %v", got, err)
	}
}

func TestApplyDefaults(t *testing.T) {
	config := &RunConfig{TargetURLAlias: "http://x"}
	ApplyDefaults(config)

	if config.TargetURL != "http://x" || config.TargetURLAlias != "" {
		t.Errorf("target alias not folded: %q / %q", config.TargetURL, config.TargetURLAlias)
	}
	if config.Sleep == nil || time.Duration(*config.Sleep) != DefaultSleep {
		t.Errorf("Sleep = %v, want %v", config.Sleep, DefaultSleep)
	}
	if config.GracefulStop == nil || time.Duration(*config.GracefulStop) != DefaultGracefulStop {
		t.Errorf("GracefulStop = %v", config.GracefulStop)
	}
	if config.GracefulRampDown == nil || time.Duration(*config.GracefulRampDown) != DefaultGracefulRampDown {
		t.Errorf("GracefulRampDown = %v", config.GracefulRampDown)
	}
	if time.Duration(config.HTTP.Timeout) != DefaultHTTPTimeout {
		t.Errorf("HTTP.Timeout = %v", config.HTTP.Timeout)
	}
	if config.HTTP.UserAgent != DefaultUserAgent {
		t.Errorf("HTTP.UserAgent = %q", config.HTTP.UserAgent)
	}

	// An explicit zero sleep survives.
	zero := &RunConfig{Sleep: DurationPtr(0)}
	ApplyDefaults(zero)
	if *zero.Sleep != 0 {
		t.Errorf("explicit zero sleep overwritten: %v", *zero.Sleep)
	}
}

func TestApplyDefaults_ExplicitZeroGrace(t *testing.T) {
	config, err := ParseConfig([]byte("gracefulStop: 0s\ngracefulRampDown: 0\n"), "run.yaml")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	ApplyDefaults(config)

	if config.GracefulStop == nil || *config.GracefulStop != 0 {
		t.Errorf("GracefulStop = %v, want explicit 0", config.GracefulStop)
	}
	if config.GracefulRampDown == nil || *config.GracefulRampDown != 0 {
		t.Errorf("GracefulRampDown = %v, want explicit 0", config.GracefulRampDown)
	}
}

func TestProfile(t *testing.T) {
	staged := &RunConfig{
		StartVUs: 3,
		Stages: []StageConfig{
			{Duration: Duration(time.Minute), Target: 10, Name: "up"},
			{Duration: Duration(time.Minute), Target: 0},
		},
	}
	start, st := staged.Profile()
	if start != 3 || len(st) != 2 || st[0].Target != 10 || st[0].Name != "up" || st[1].Duration != time.Minute {
		t.Errorf("Profile() = %d, %+v", start, st)
	}

	constant := &RunConfig{VUs: 7, Duration: Duration(30 * time.Second)}
	start, st = constant.Profile()
	if start != 7 || len(st) != 1 || st[0].Target != 7 || st[0].Duration != 30*time.Second {
		t.Errorf("Profile() = %d, %+v", start, st)
	}
}

func TestClone(t *testing.T) {
	orig := &RunConfig{
		Stages:     []StageConfig{{Duration: Duration(time.Second), Target: 1}},
		Thresholds: map[string]ThresholdList{"checks": {{Threshold: "rate>0.9"}}},
		Sleep:      DurationPtr(time.Second),
		HTTP:       HTTPSettings{Headers: map[string]string{"A": "1"}},

		GracefulStop: DurationPtr(time.Second),
	}
	cp := orig.Clone()
	*cp.GracefulStop = 0

	cp.Stages[0].Target = 99
	cp.Thresholds["checks"][0].Threshold = "rate>0"
	*cp.Sleep = 0
	cp.HTTP.Headers["A"] = "2"

	if orig.Stages[0].Target != 1 {
		t.Error("Clone() shares Stages")
	}
	if orig.Thresholds["checks"][0].Threshold != "rate>0.9" {
		t.Error("Clone() shares Thresholds")
	}
	if time.Duration(*orig.Sleep) != time.Second {
		t.Error("Clone() shares Sleep")
	}
	if orig.HTTP.Headers["A"] != "1" {
		t.Error("Clone() shares Headers")
	}
	if time.Duration(*orig.GracefulStop) != time.Second {
		t.Error("Clone() shares GracefulStop")
	}
}
