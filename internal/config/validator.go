package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the field names with errors, in order.
func (e *ValidationErrors) Fields() []string {
	out := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err.Field
	}
	return out
}

// ConfigError is returned for anything wrong with the run configuration. It
// is always detected before the run starts.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var validCheckTypes = map[string]bool{
	"status": true, "duration": true, "body": true,
	"header": true, "jsonpath": true, "jsonschema": true,
}

// Validate validates the run configuration. Call ApplyDefaults first.
//
// Returns nil if valid, or a *ConfigError wrapping *ValidationErrors.
func (c *RunConfig) Validate() error {
	errs := &ValidationErrors{}

	validateTarget(c.TargetURL, errs)
	validateProfile(c, errs)

	if c.Sleep != nil && *c.Sleep < 0 {
		errs.Add("sleep", "sleep cannot be negative")
	}
	if c.GracefulStop != nil && *c.GracefulStop < 0 {
		errs.Add("gracefulStop", "gracefulStop cannot be negative")
	}
	if c.GracefulRampDown != nil && *c.GracefulRampDown < 0 {
		errs.Add("gracefulRampDown", "gracefulRampDown cannot be negative")
	}

	validateThresholds(c.Thresholds, errs)

	for i, chk := range c.Checks {
		prefix := fmt.Sprintf("checks[%d]", i)
		if chk.Type == "" {
			errs.Add(prefix+".type", "type is required")
		} else if !validCheckTypes[strings.ToLower(chk.Type)] {
			errs.Add(prefix+".type", fmt.Sprintf("invalid check type: %s", chk.Type))
		}
	}

	validateHTTP(&c.HTTP, errs)

	if errs.HasErrors() {
		return &ConfigError{Err: errs}
	}
	return nil
}

func validateTarget(target string, errs *ValidationErrors) {
	if target == "" {
		errs.Add("targetUrl", "targetUrl is required")
		return
	}

	u, err := url.Parse(target)
	if err != nil {
		errs.Add("targetUrl", fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("targetUrl", fmt.Sprintf("unsupported scheme %q (want http or https)", u.Scheme))
	}
	if u.Host == "" {
		errs.Add("targetUrl", "URL has no host")
	}
}

func validateProfile(c *RunConfig, errs *ValidationErrors) {
	if c.StartVUs < 0 {
		errs.Add("startVUs", "startVUs cannot be negative")
	}

	constant := c.VUs != 0 || c.Duration != 0
	switch {
	case len(c.Stages) > 0 && constant:
		errs.Add("stages", "use either stages or vus/duration, not both")
	case len(c.Stages) == 0 && !constant:
		errs.Add("stages", "at least one stage (or vus and duration) is required")
	case constant:
		if c.VUs <= 0 {
			errs.Add("vus", "vus must be greater than 0")
		}
		if c.Duration <= 0 {
			errs.Add("duration", "duration must be greater than 0")
		}
		return
	}

	var total Duration
	for i, st := range c.Stages {
		prefix := fmt.Sprintf("stages[%d]", i)
		if st.Duration < 0 {
			errs.Add(prefix+".duration", "duration cannot be negative")
		}
		if st.Target < 0 {
			errs.Add(prefix+".target", "target cannot be negative")
		}
		total += st.Duration
	}
	if len(c.Stages) > 0 && total <= 0 {
		errs.Add("stages", "total stage duration must be greater than 0")
	}
}

// validateThresholds checks shape only; expressions are parsed when the
// engine compiles them.
func validateThresholds(thresholds map[string]ThresholdList, errs *ValidationErrors) {
	for metric, list := range thresholds {
		if strings.TrimSpace(metric) == "" {
			errs.Add("thresholds", "metric name cannot be empty")
			continue
		}
		if len(list) == 0 {
			errs.Add("thresholds."+metric, "at least one threshold is required")
		}
		for i, th := range list {
			prefix := fmt.Sprintf("thresholds.%s[%d]", metric, i)
			if strings.TrimSpace(th.Threshold) == "" {
				errs.Add(prefix, "threshold expression cannot be empty")
			}
			if th.DelayAbortEval < 0 {
				errs.Add(prefix+".delayAbortEval", "delayAbortEval cannot be negative")
			}
		}
	}
}

func validateHTTP(s *HTTPSettings, errs *ValidationErrors) {
	if s.Timeout < 0 {
		errs.Add("http.timeout", "timeout cannot be negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("http.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("http.maxIdleConnsPerHost", "cannot be negative")
	}
}
