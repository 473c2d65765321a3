package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *RunConfig {
	c := &RunConfig{
		TargetURL: "http://localhost:8080/",
		Stages: []StageConfig{
			{Duration: Duration(10 * time.Second), Target: 5},
			{Duration: Duration(10 * time.Second), Target: 0},
		},
		Thresholds: map[string]ThresholdList{
			"http_req_duration": {{Threshold: "p(95)<500"}},
		},
		Checks: []CheckConfig{{Type: "status", Value: "200"}},
	}
	ApplyDefaults(c)
	return c
}

func TestValidate_MinimalValid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	constant := &RunConfig{TargetURL: "https://example.com", VUs: 1, Duration: Duration(time.Second)}
	ApplyDefaults(constant)
	assert.NoError(t, constant.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *RunConfig)
		field  string
	}{
		{"missing target", func(c *RunConfig) { c.TargetURL = "" }, "targetUrl"},
		{"bad scheme", func(c *RunConfig) { c.TargetURL = "ftp://host/file" }, "targetUrl"},
		{"no host", func(c *RunConfig) { c.TargetURL = "http://" }, "targetUrl"},
		{"no stages", func(c *RunConfig) { c.Stages = nil }, "stages"},
		{"both shapes", func(c *RunConfig) { c.VUs = 3 }, "stages"},
		{"negative stage duration", func(c *RunConfig) { c.Stages[1].Duration = Duration(-time.Second) }, "stages[1].duration"},
		{"negative target", func(c *RunConfig) { c.Stages[0].Target = -1 }, "stages[0].target"},
		{"zero total", func(c *RunConfig) {
			c.Stages = []StageConfig{{Duration: 0, Target: 5}}
		}, "stages"},
		{"negative start", func(c *RunConfig) { c.StartVUs = -2 }, "startVUs"},
		{"negative sleep", func(c *RunConfig) { c.Sleep = DurationPtr(-time.Second) }, "sleep"},
		{"negative graceful stop", func(c *RunConfig) { c.GracefulStop = DurationPtr(-1) }, "gracefulStop"},
		{"empty threshold", func(c *RunConfig) {
			c.Thresholds["checks"] = ThresholdList{{Threshold: " "}}
		}, "thresholds.checks[0]"},
		{"negative delay", func(c *RunConfig) {
			c.Thresholds["checks"] = ThresholdList{{Threshold: "rate>0.9", DelayAbortEval: Duration(-time.Second)}}
		}, "thresholds.checks[0].delayAbortEval"},
		{"bad check type", func(c *RunConfig) { c.Checks[0].Type = "cookie" }, "checks[0].type"},
		{"missing check type", func(c *RunConfig) { c.Checks[0].Type = "" }, "checks[0].type"},
		{"negative timeout", func(c *RunConfig) { c.HTTP.Timeout = Duration(-time.Second) }, "http.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))

			var verrs *ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Contains(t, verrs.Fields(), tt.field)
		})
	}
}

func TestValidate_ConstantShape(t *testing.T) {
	c := &RunConfig{TargetURL: "http://localhost", VUs: 0, Duration: Duration(time.Second)}
	ApplyDefaults(c)

	var verrs *ValidationErrors
	require.True(t, errors.As(c.Validate(), &verrs))
	assert.Equal(t, []string{"vus"}, verrs.Fields())
}

func TestValidationErrors_Error(t *testing.T) {
	errs := &ValidationErrors{}
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("targetUrl", "targetUrl is required")
	assert.Equal(t, "validation error on field 'targetUrl': targetUrl is required", errs.Error())

	errs.Add("", "something else")
	assert.Contains(t, errs.Error(), "2 validation errors")
	assert.Contains(t, errs.Error(), "validation error: something else")
}
