package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/engine"
	"github.com/wesleyorama2/stampede/internal/target"
)

func startTarget(t *testing.T, cfg target.Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(target.NewHandler(cfg))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := ExecuteArgs(ctx, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Passes(t *testing.T) {
	srv := startTarget(t, target.Config{})

	code, out, _ := execute(t, "run",
		"--url", srv.URL,
		"--stages", "1s:3",
		"--start-vus", "1",
		"--sleep", "50ms",
		"--threshold", "http_req_duration=p(95)<2000",
		"--no-color",
	)

	assert.Equal(t, engine.ExitOK, code)
	assert.Contains(t, out, "Passed")
	assert.Contains(t, out, "http_req_duration")
	assert.Contains(t, out, "p(95)<2000")
}

func TestRun_FailingThresholdExits99(t *testing.T) {
	srv := startTarget(t, target.Config{Status: 500})

	code, out, _ := execute(t, "run",
		"--url", srv.URL,
		"--vus", "2",
		"--duration", "1s",
		"--sleep", "50ms",
		"--threshold", "http_req_failed=rate<0.1",
		"--quiet",
		"--no-color",
	)

	assert.Equal(t, engine.ExitThresholdsFailed, code)
	assert.Contains(t, out, "Failed")
	assert.NotContains(t, out, "Metrics:")
}

func TestRun_FromConfigFile(t *testing.T) {
	srv := startTarget(t, target.Config{})

	path := filepath.Join(t.TempDir(), "load.yaml")
	data := []byte(`name: file run
targetUrl: ` + srv.URL + `
startVUs: 1
stages:
  - { duration: 1s, target: 2 }
sleep: 50ms
thresholds:
  http_req_failed: ["rate<0.1"]
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	code, out, _ := execute(t, "run", "--config", path, "--no-color")

	assert.Equal(t, engine.ExitOK, code)
	assert.Contains(t, out, "file run")
}

func TestRun_InvalidConfigExits104(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no target", []string{"run", "--stages", "1s:1"}},
		{"bad stages", []string{"run", "--url", "http://localhost", "--stages", "1s"}},
		{"bad threshold flag", []string{"run", "--url", "http://localhost", "--vus", "1", "--duration", "1s", "--threshold", "nope"}},
		{"bad threshold expression", []string{"run", "--url", "http://localhost", "--vus", "1", "--duration", "1s", "--threshold", "http_req_duration=fastest<1"}},
		{"missing file", []string{"run", "--config", "/does/not/exist.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := execute(t, tt.args...)
			assert.Equal(t, engine.ExitInvalidConfig, code)
			assert.Contains(t, stderr, "Error:")
		})
	}
}

func TestRun_InterruptedExits105(t *testing.T) {
	srv := startTarget(t, target.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := ExecuteArgs(ctx, []string{"run",
		"--url", srv.URL,
		"--vus", "1",
		"--duration", "1m",
		"--sleep", "20ms",
		"--graceful-stop", "100ms",
		"--no-color",
	}, &stdout, &stderr)

	assert.Equal(t, engine.ExitInterrupted, code)
	assert.Contains(t, stdout.String(), "Interrupted")
}

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addProfileFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--url", "http://example.com",
		"--stages", "30s:10,1m:10,30s:0",
		"--threshold", "http_req_duration=p(95)<2000",
		"--threshold", "http_req_duration = p(99)<3000",
		"--sleep", "2",
		"--timeout", "5s",
		"-H", "Authorization: Bearer x",
	}))

	cfg := &config.RunConfig{
		TargetURLAlias: "http://old.example.com",
		VUs:            5,
		Duration:       config.Duration(time.Minute),
		Name:           "kept",
	}
	require.NoError(t, applyFlags(fs, cfg))

	assert.Equal(t, "http://example.com", cfg.TargetURL)
	assert.Empty(t, cfg.TargetURLAlias)
	assert.Equal(t, "kept", cfg.Name)
	assert.Zero(t, cfg.VUs)
	assert.Zero(t, cfg.Duration)
	require.Len(t, cfg.Stages, 3)
	assert.Equal(t, config.Duration(time.Minute), cfg.Stages[1].Duration)
	assert.Equal(t, 0, cfg.Stages[2].Target)

	require.Len(t, cfg.Thresholds["http_req_duration"], 2)
	assert.Equal(t, "p(99)<3000", cfg.Thresholds["http_req_duration"][1].Threshold)

	require.NotNil(t, cfg.Sleep)
	assert.Equal(t, config.Duration(2*time.Second), *cfg.Sleep)
	assert.Equal(t, config.Duration(5*time.Second), cfg.HTTP.Timeout)
	assert.Equal(t, "Bearer x", cfg.HTTP.Headers["Authorization"])
}

func TestApplyFlags_VUsReplacesStages(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addProfileFlags(fs)
	require.NoError(t, fs.Parse([]string{"--vus", "10", "--duration", "30s"}))

	cfg := &config.RunConfig{Stages: []config.StageConfig{{Duration: config.Duration(time.Second), Target: 1}}}
	require.NoError(t, applyFlags(fs, cfg))

	assert.Nil(t, cfg.Stages)
	assert.Equal(t, 10, cfg.VUs)
	assert.Equal(t, config.Duration(30*time.Second), cfg.Duration)
}

func TestApplyFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"header without colon", []string{"-H", "nope"}},
		{"bad sleep", []string{"--sleep", "soon"}},
		{"threshold without metric", []string{"--threshold", "=rate<0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			addProfileFlags(fs)
			require.NoError(t, fs.Parse(tt.args))
			assert.Error(t, applyFlags(fs, &config.RunConfig{}))
		})
	}
}

func TestProbe(t *testing.T) {
	srv := startTarget(t, target.Config{})

	code, out, _ := execute(t, "probe", "--url", srv.URL, "--no-color")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "RESPONSE: 200")
	assert.Contains(t, out, "status is 200")
}

func TestProbe_FailedCheckExits1(t *testing.T) {
	srv := startTarget(t, target.Config{Status: 503})

	code, out, _ := execute(t, "probe", "--url", srv.URL+"/", "--no-color")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "✗ status is 200")
}

func TestProbe_UsesRunHTTPSettings(t *testing.T) {
	srv := startTarget(t, target.Config{Delay: 500 * time.Millisecond})

	path := filepath.Join(t.TempDir(), "load.yaml")
	data := []byte(`targetUrl: ` + srv.URL + `
vus: 1
duration: 1s
http:
  timeout: 50ms
  disableKeepAlives: true
  maxConnectionsPerHost: 1
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	code, out, _ := execute(t, "probe", "--config", path, "--no-color")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "ERROR:")
	assert.Contains(t, out, "timeout")
}

func TestVersion(t *testing.T) {
	code, out, _ := execute(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "stampede "+version)
}

func TestUnknownCommandExits1(t *testing.T) {
	code, _, stderr := execute(t, "stomp")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown command")
}
