package check

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/http"
)

type countingObserver struct {
	mu           sync.Mutex
	passes, fail int
}

func (o *countingObserver) RecordCheck(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.passes++
	} else {
		o.fail++
	}
}

func TestRecorder_Record(t *testing.T) {
	obs := &countingObserver{}
	rec := NewRecorder(obs)

	assert.True(t, rec.Record("status is 200", true))
	assert.False(t, rec.Record("status is 200", false))
	rec.Record("body ok", true)
	rec.Record("status is 200", true)

	results := rec.Results()
	require.Len(t, results, 2)

	assert.Equal(t, "status is 200", results[0].Name)
	assert.Equal(t, int64(2), results[0].Passes)
	assert.Equal(t, int64(1), results[0].Fails)
	assert.InDelta(t, 2.0/3.0, results[0].PassRate(), 1e-9)

	assert.Equal(t, "body ok", results[1].Name)
	assert.Equal(t, 1.0, results[1].PassRate())

	assert.Equal(t, 3, obs.passes)
	assert.Equal(t, 1, obs.fail)

	r, ok := rec.Get("body ok")
	require.True(t, ok)
	assert.Equal(t, int64(1), r.Total())

	_, ok = rec.Get("missing")
	assert.False(t, ok)
}

func TestRecorder_Concurrent(t *testing.T) {
	rec := NewRecorder(nil)

	var wg sync.WaitGroup
	for vu := 0; vu < 50; vu++ {
		wg.Add(1)
		go func(vu int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				rec.Record("a", i%4 != 0)
				rec.Record("b", true)
			}
		}(vu)
	}
	wg.Wait()

	a, _ := rec.Get("a")
	assert.Equal(t, int64(10000), a.Total())
	assert.Equal(t, int64(2500), a.Fails)
	assert.Equal(t, 0.75, a.PassRate())

	assert.Len(t, rec.Results(), 2)
}

func TestRecorder_FirstSeenOrderUnderConcurrency(t *testing.T) {
	rec := NewRecorder(nil)
	const names = 50

	var wg sync.WaitGroup
	for i := 0; i < names; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("check %02d", i)
			rec.Record(name, true)
			rec.Record(name, false)
		}(i)
	}

	// Every snapshot taken while names arrive extends the previous one.
	var prev []Result
	for len(prev) < names {
		cur := rec.Results()
		require.GreaterOrEqual(t, len(cur), len(prev))
		for i := range prev {
			require.Equal(t, prev[i].Name, cur[i].Name)
		}
		prev = cur
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, r := range rec.Results() {
		assert.False(t, seen[r.Name], "duplicate %s", r.Name)
		seen[r.Name] = true
		assert.Equal(t, int64(1), r.Passes)
		assert.Equal(t, int64(1), r.Fails)
	}
	assert.Len(t, seen, names)
}

func TestResult_PassRateEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Result{}.PassRate())
}

func okResult() *http.Result {
	return &http.Result{
		StatusCode: 200,
		Header:     nethttp.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
		Body:       []byte(`{"status":"ok","users":[{"name":"ada","id":1},{"name":"linus","id":2}],"meta":null}`),
		Duration:   120 * time.Millisecond,
		Success:    true,
	}
}

func failedResult() *http.Result {
	return &http.Result{
		Err: &http.RequestError{Kind: http.ErrorKindConnect, Op: "request", URL: "http://x", Err: errors.New("refused")},
	}
}

func TestDefaults(t *testing.T) {
	checks, err := Compile(nil)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, DefaultName, checks[0].Name())

	assert.True(t, checks[0].Evaluate(okResult()))
	assert.False(t, checks[0].Evaluate(&http.Result{StatusCode: 500}))
	assert.False(t, checks[0].Evaluate(failedResult()))
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name     string
		def      config.CheckConfig
		wantName string
		ok       bool
	}{
		{"status eq", config.CheckConfig{Type: "status", Condition: "eq", Value: "200"}, "status is 200", true},
		{"status ne", config.CheckConfig{Type: "status", Condition: "ne", Value: "500"}, "status ne 500", true},
		{"status lt", config.CheckConfig{Type: "status", Condition: "lt", Value: "300"}, "status lt 300", true},
		{"status in", config.CheckConfig{Type: "status", Condition: "in", Value: "200, 204"}, "status in 200, 204", true},
		{"status in miss", config.CheckConfig{Type: "status", Condition: "in", Value: "201,204"}, "status in 201,204", false},
		{"duration lt", config.CheckConfig{Type: "duration", Condition: "lt", Value: "500ms"}, "duration lt 500ms", true},
		{"duration bare ms", config.CheckConfig{Type: "duration", Condition: "lt", Value: "100"}, "duration lt 100", false},
		{"duration default cond", config.CheckConfig{Type: "duration", Value: "1s"}, "duration lt 1s", true},
		{"body contains", config.CheckConfig{Type: "body", Condition: "contains", Value: `"status":"ok"`}, `body contains "status":"ok"`, true},
		{"body not contains", config.CheckConfig{Type: "body", Condition: "not_contains", Value: "error"}, "body not_contains error", true},
		{"body matches", config.CheckConfig{Type: "body", Condition: "matches", Value: `"id":\d+`}, `body matches "id":\d+`, true},
		{"header contains", config.CheckConfig{Type: "header", Header: "Content-Type", Condition: "contains", Value: "json"}, "header Content-Type contains json", true},
		{"header exists", config.CheckConfig{Type: "header", Header: "X-Missing", Condition: "exists"}, "header X-Missing exists", false},
		{"header eq", config.CheckConfig{Type: "header", Header: "content-type", Value: "application/json; charset=utf-8"}, "header content-type is application/json; charset=utf-8", true},
		{"jsonpath eq", config.CheckConfig{Type: "jsonpath", Path: "$.users[1].name", Condition: "eq", Value: "linus"}, "$.users[1].name is linus", true},
		{"jsonpath exists", config.CheckConfig{Type: "jsonpath", Path: "$.status"}, "$.status exists", true},
		{"jsonpath null", config.CheckConfig{Type: "jsonpath", Path: "$.meta", Condition: "eq", Value: "null"}, "$.meta is null", true},
		{"jsonpath not exists", config.CheckConfig{Type: "jsonpath", Path: "$.nope", Condition: "not_exists"}, "$.nope not_exists", true},
		{"named", config.CheckConfig{Name: "is ok", Type: "jsonpath", Path: "$['status']", Condition: "eq", Value: "ok"}, "is ok", true},
		{
			"jsonschema",
			config.CheckConfig{Type: "jsonschema", Schema: `{"type":"object","required":["status","users"],"properties":{"users":{"type":"array"}}}`},
			"body matches schema",
			true,
		},
		{
			"jsonschema mismatch",
			config.CheckConfig{Type: "jsonschema", Schema: `{"type":"object","required":["missing"]}`},
			"body matches schema",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checks, err := Compile([]config.CheckConfig{tt.def})
			require.NoError(t, err)
			require.Len(t, checks, 1)

			assert.Equal(t, tt.wantName, checks[0].Name())
			assert.Equal(t, tt.ok, checks[0].Evaluate(okResult()))
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		def     config.CheckConfig
		wantErr error
	}{
		{"unknown type", config.CheckConfig{Type: "cookie"}, ErrUnknownType},
		{"unknown status cond", config.CheckConfig{Type: "status", Condition: "between", Value: "200"}, ErrUnknownCondition},
		{"unknown body cond", config.CheckConfig{Type: "body", Condition: "starts"}, ErrUnknownCondition},
		{"bad status", config.CheckConfig{Type: "status", Value: "two hundred"}, nil},
		{"bad duration", config.CheckConfig{Type: "duration", Value: "soon"}, nil},
		{"bad regex", config.CheckConfig{Type: "body", Condition: "matches", Value: "("}, nil},
		{"header without name", config.CheckConfig{Type: "header", Value: "x"}, nil},
		{"jsonpath without path", config.CheckConfig{Type: "jsonpath"}, nil},
		{"bad schema", config.CheckConfig{Type: "jsonschema", Schema: `{"type":`}, nil},
		{"empty schema", config.CheckConfig{Type: "jsonschema"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]config.CheckConfig{{Type: "status", Value: "200"}, tt.def})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "checks[1]")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	rec := NewRecorder(nil)
	checks := []Check{
		StatusIs(200),
		New("fast", func(r *http.Result) bool { return r.Duration < 100*time.Millisecond }),
	}

	assert.False(t, Evaluate(checks, okResult(), rec))
	assert.False(t, Evaluate(checks, failedResult(), rec))

	fast := okResult()
	fast.Duration = time.Millisecond
	assert.True(t, Evaluate(checks, fast, rec))

	status, _ := rec.Get("status is 200")
	assert.Equal(t, int64(2), status.Passes)
	assert.Equal(t, int64(1), status.Fails)

	speed, _ := rec.Get("fast")
	assert.Equal(t, int64(2), speed.Passes)
	assert.Equal(t, int64(1), speed.Fails)
}

func TestChecks_OnTransportFailure(t *testing.T) {
	defs := []config.CheckConfig{
		{Type: "status", Condition: "ne", Value: "500"},
		{Type: "duration", Condition: "lt", Value: "1s"},
		{Type: "body", Condition: "not_contains", Value: "error"},
		{Type: "jsonpath", Path: "$.x", Condition: "not_exists"},
	}
	checks, err := Compile(defs)
	require.NoError(t, err)

	for _, c := range checks {
		assert.False(t, c.Evaluate(failedResult()), c.Name())
	}
}

func TestExtractJSON(t *testing.T) {
	body := []byte(`{"users":[{"name":"John"},{"name":"Jane"}],"count":2,"nested":{"k":"v"}}`)

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"$.users[0].name", "John", true},
		{"$.users[1].name", "Jane", true},
		{"$.count", "2", true},
		{"$['nested']['k']", "v", true},
		{`$["nested"]["k"]`, "v", true},
		{"$.nested.k", "v", true},
		{"$.missing", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := ExtractJSON(body, tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	got, ok := ExtractJSON([]byte(`[10,20]`), "$[1]")
	assert.True(t, ok)
	assert.Equal(t, "20", got)

	_, ok = ExtractJSON(nil, "$.a")
	assert.False(t, ok)
}
