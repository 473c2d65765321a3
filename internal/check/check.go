package check

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/http"
)

// Check types accepted in a run file.
const (
	TypeStatus     = "status"
	TypeDuration   = "duration"
	TypeBody       = "body"
	TypeHeader     = "header"
	TypeJSONPath   = "jsonpath"
	TypeJSONSchema = "jsonschema"
)

// DefaultName is the check applied when a run file defines none.
const DefaultName = "status is 200"

var (
	// ErrUnknownType is returned for a check type that is not supported.
	ErrUnknownType = errors.New("unknown check type")

	// ErrUnknownCondition is returned for a condition the check type does not support.
	ErrUnknownCondition = errors.New("unknown check condition")
)

// Check is a named predicate over a request result.
type Check struct {
	name string
	fn   func(*http.Result) bool
}

// New wraps fn as a named check.
func New(name string, fn func(*http.Result) bool) Check {
	return Check{name: name, fn: fn}
}

// Name returns the check name used in the summary.
func (c Check) Name() string {
	return c.name
}

// Evaluate applies the check to r.
func (c Check) Evaluate(r *http.Result) bool {
	return c.fn(r)
}

// StatusIs checks for an exact status code.
func StatusIs(code int) Check {
	return New(fmt.Sprintf("status is %d", code), func(r *http.Result) bool {
		return r.StatusCode == code
	})
}

// Defaults returns the checks applied when none are configured.
func Defaults() []Check {
	return []Check{StatusIs(200)}
}

// Evaluate applies every check to r, records each outcome in rec, and
// reports whether all of them passed.
func Evaluate(checks []Check, r *http.Result, rec *Recorder) bool {
	all := true
	for _, c := range checks {
		if !rec.Record(c.Name(), c.Evaluate(r)) {
			all = false
		}
	}
	return all
}

// Compile turns run-file check definitions into checks. Regular expressions
// and JSON schemas are compiled here, once.
func Compile(defs []config.CheckConfig) ([]Check, error) {
	if len(defs) == 0 {
		return Defaults(), nil
	}

	checks := make([]Check, 0, len(defs))
	for i, def := range defs {
		c, err := compileOne(def)
		if err != nil {
			return nil, fmt.Errorf("checks[%d]: %w", i, err)
		}
		checks = append(checks, c)
	}
	return checks, nil
}

func compileOne(def config.CheckConfig) (Check, error) {
	var (
		fn  func(*http.Result) bool
		err error
	)

	value := string(def.Value)
	switch strings.ToLower(def.Type) {
	case TypeStatus:
		fn, err = statusPredicate(def.Condition, value)
	case TypeDuration:
		fn, err = durationPredicate(def.Condition, value)
	case TypeBody:
		fn, err = bodyPredicate(def.Condition, value)
	case TypeHeader:
		fn, err = headerPredicate(def.Header, def.Condition, value)
	case TypeJSONPath:
		fn, err = jsonPathPredicate(def.Path, def.Condition, value)
	case TypeJSONSchema:
		fn, err = jsonSchemaPredicate(def.Schema)
	default:
		return Check{}, fmt.Errorf("%w: %q", ErrUnknownType, def.Type)
	}
	if err != nil {
		return Check{}, err
	}

	name := def.Name
	if name == "" {
		name = defaultName(def)
	}
	return New(name, fn), nil
}

// defaultName renders a readable name like "status is 200" or
// "header Content-Type contains json".
func defaultName(def config.CheckConfig) string {
	cond := def.Condition
	subject := strings.ToLower(def.Type)
	switch {
	case cond == "" && subject == TypeJSONPath:
		cond = "exists"
	case cond == "" && subject == TypeDuration:
		cond = "lt"
	}
	if cond == "" || cond == "eq" {
		cond = "is"
	}

	switch subject {
	case TypeHeader:
		subject += " " + def.Header
	case TypeJSONPath:
		subject = def.Path
	case TypeJSONSchema:
		return "body matches schema"
	}

	if def.Value == "" {
		return subject + " " + cond
	}
	return fmt.Sprintf("%s %s %s", subject, cond, def.Value)
}

func statusPredicate(cond, value string) (func(*http.Result) bool, error) {
	if cond == "in" {
		allowed := make(map[int]bool)
		for _, part := range strings.Split(value, ",") {
			code, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("invalid status code %q", part)
			}
			allowed[code] = true
		}
		return func(r *http.Result) bool { return allowed[r.StatusCode] }, nil
	}

	want, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid status code %q", value)
	}
	cmp, err := compareInts(cond)
	if err != nil {
		return nil, err
	}
	return func(r *http.Result) bool {
		// A request that never got a response has no status to compare
		return r.Err == nil && cmp(int64(r.StatusCode), int64(want))
	}, nil
}

func durationPredicate(cond, value string) (func(*http.Result) bool, error) {
	limit, err := parseMillis(value)
	if err != nil {
		return nil, err
	}
	if cond == "" {
		cond = "lt"
	}
	cmp, err := compareInts(cond)
	if err != nil {
		return nil, err
	}
	return func(r *http.Result) bool {
		return r.Err == nil && cmp(int64(r.Duration), int64(limit))
	}, nil
}

// parseMillis accepts a Go duration ("500ms") or a bare number of milliseconds.
func parseMillis(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func bodyPredicate(cond, value string) (func(*http.Result) bool, error) {
	switch cond {
	case "", "contains":
		return func(r *http.Result) bool { return strings.Contains(r.BodyString(), value) }, nil
	case "not_contains":
		return func(r *http.Result) bool { return r.Err == nil && !strings.Contains(r.BodyString(), value) }, nil
	case "eq":
		return func(r *http.Result) bool { return r.Err == nil && r.BodyString() == value }, nil
	case "matches":
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", value, err)
		}
		return func(r *http.Result) bool { return re.Match(r.Body) }, nil
	default:
		return nil, fmt.Errorf("%w %q for body", ErrUnknownCondition, cond)
	}
}

func headerPredicate(header, cond, value string) (func(*http.Result) bool, error) {
	if header == "" {
		return nil, errors.New("header check requires a header name")
	}

	switch cond {
	case "exists":
		return func(r *http.Result) bool { return len(r.Header.Values(header)) > 0 }, nil
	case "", "eq":
		return func(r *http.Result) bool { return r.GetHeader(header) == value }, nil
	case "contains":
		return func(r *http.Result) bool {
			v := r.GetHeader(header)
			return v != "" && strings.Contains(v, value)
		}, nil
	case "matches":
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", value, err)
		}
		return func(r *http.Result) bool { return re.MatchString(r.GetHeader(header)) }, nil
	default:
		return nil, fmt.Errorf("%w %q for header", ErrUnknownCondition, cond)
	}
}

func compareInts(cond string) (func(a, b int64) bool, error) {
	switch cond {
	case "", "eq":
		return func(a, b int64) bool { return a == b }, nil
	case "ne":
		return func(a, b int64) bool { return a != b }, nil
	case "lt":
		return func(a, b int64) bool { return a < b }, nil
	case "lte":
		return func(a, b int64) bool { return a <= b }, nil
	case "gt":
		return func(a, b int64) bool { return a > b }, nil
	case "gte":
		return func(a, b int64) bool { return a >= b }, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCondition, cond)
	}
}
