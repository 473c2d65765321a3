// Package threshold parses pass/fail expressions over run metrics and
// evaluates them against a metrics snapshot.
package threshold

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/metrics"
)

var (
	// ErrInvalidExpression is returned for an expression that cannot be parsed.
	ErrInvalidExpression = errors.New("invalid threshold expression")

	// ErrUnknownMetric is returned for a threshold on a metric the run never produces.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrAggregationMismatch is returned when the aggregation does not fit the metric kind.
	ErrAggregationMismatch = errors.New("aggregation not supported for metric")
)

// Aggregation names.
const (
	AggPercentile = "p"
	AggAvg        = "avg"
	AggMin        = "min"
	AggMax        = "max"
	AggMed        = "med"
	AggRate       = "rate"
	AggCount      = "count"
	AggValue      = "value"
)

// Matches "p(95)<2000", "p95 < 500ms", "rate<0.1", "count >= 100".
var exprPattern = regexp.MustCompile(
	`^\s*(p\(\s*[0-9]*\.?[0-9]+\s*\)|p[0-9]*\.?[0-9]+|avg|min|max|med|rate|count|value)\s*(===|==|!=|<=|>=|<|>)\s*(\S+)\s*$`,
)

// Threshold is one parsed expression bound to a metric.
type Threshold struct {
	Metric     string
	Expression string

	Aggregation string
	Percentile  float64
	Operator    string

	// Value is in milliseconds for duration-valued trend expressions.
	Value float64

	AbortOnFail    bool
	DelayAbortEval time.Duration
}

// Parse parses expr for the given metric.
func Parse(metric, expr string) (*Threshold, error) {
	m := exprPattern.FindStringSubmatch(expr)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
	}

	t := &Threshold{
		Metric:     metric,
		Expression: strings.TrimSpace(expr),
		Operator:   m[2],
	}

	agg := m[1]
	if strings.HasPrefix(agg, AggPercentile) {
		raw := strings.Trim(strings.TrimPrefix(agg, AggPercentile), "() ")
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || p < 0 || p > 100 {
			return nil, fmt.Errorf("%w: percentile %q must be in [0, 100]", ErrInvalidExpression, raw)
		}
		t.Aggregation = AggPercentile
		t.Percentile = p
	} else {
		t.Aggregation = agg
	}

	v, err := parseValue(m[3])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}
	t.Value = v

	return t, nil
}

// parseValue accepts a bare number or a duration, returned in milliseconds.
func parseValue(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("value %q is neither a number nor a duration", s)
	}
	return float64(d) / float64(time.Millisecond), nil
}

// FromConfig parses a configured threshold for metric.
func FromConfig(metric string, c config.ThresholdConfig) (*Threshold, error) {
	t, err := Parse(metric, c.Threshold)
	if err != nil {
		return nil, err
	}
	t.AbortOnFail = c.AbortOnFail
	t.DelayAbortEval = time.Duration(c.DelayAbortEval)
	return t, nil
}

// Compile parses every configured threshold and checks each against the kind
// of its metric. Results are ordered by metric name, then config order.
func Compile(defs map[string]config.ThresholdList, lookup func(string) (metrics.Kind, bool)) ([]*Threshold, error) {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []*Threshold
	for _, name := range names {
		kind, ok := lookup(name)
		if !ok {
			return nil, fmt.Errorf("thresholds.%s: %w", name, ErrUnknownMetric)
		}
		for i, def := range defs[name] {
			t, err := FromConfig(name, def)
			if err != nil {
				return nil, fmt.Errorf("thresholds.%s[%d]: %w", name, i, err)
			}
			if err := t.Supports(kind); err != nil {
				return nil, fmt.Errorf("thresholds.%s[%d]: %w", name, i, err)
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// Supports reports whether the aggregation can be computed for kind.
func (t *Threshold) Supports(kind metrics.Kind) error {
	var ok bool
	switch kind {
	case metrics.KindTrend:
		switch t.Aggregation {
		case AggPercentile, AggAvg, AggMin, AggMax, AggMed, AggCount:
			ok = true
		}
	case metrics.KindCounter:
		ok = t.Aggregation == AggCount || t.Aggregation == AggRate
	case metrics.KindRate:
		ok = t.Aggregation == AggRate
	case metrics.KindGauge:
		ok = t.Aggregation == AggValue
	}
	if !ok {
		return fmt.Errorf("%w: %s on %s %q", ErrAggregationMismatch, t.aggName(), kind, t.Metric)
	}
	return nil
}

func (t *Threshold) aggName() string {
	if t.Aggregation == AggPercentile {
		return "p(" + strconv.FormatFloat(t.Percentile, 'f', -1, 64) + ")"
	}
	return t.Aggregation
}

// Observed computes the aggregation from s.
func (t *Threshold) Observed(s metrics.Sample) float64 {
	switch t.Aggregation {
	case AggPercentile:
		return s.Percentile(t.Percentile)
	case AggAvg:
		return s.Avg
	case AggMin:
		return s.Min
	case AggMax:
		return s.Max
	case AggMed:
		return s.Med
	case AggRate:
		return s.Rate
	case AggCount:
		// A counter's count is its sum, as in k6.
		if s.Kind == metrics.KindCounter {
			return s.Value
		}
		return float64(s.Count)
	default:
		return s.Value
	}
}

// Compare applies the operator.
func (t *Threshold) Compare(observed float64) bool {
	switch t.Operator {
	case "<":
		return observed < t.Value
	case "<=":
		return observed <= t.Value
	case ">":
		return observed > t.Value
	case ">=":
		return observed >= t.Value
	case "==", "===":
		return observed == t.Value
	case "!=":
		return observed != t.Value
	default:
		return false
	}
}

// Evaluate judges t against the snapshot. A metric with no samples passes
// with NoData set.
func (t *Threshold) Evaluate(snap *metrics.Snapshot) Result {
	r := Result{
		Metric:      t.Metric,
		Expression:  t.Expression,
		AbortOnFail: t.AbortOnFail,
	}

	s, ok := snap.Get(t.Metric)
	if !ok || s.Empty() {
		r.Passed = true
		r.NoData = true
		r.Value = "no data"
		return r
	}

	r.Observed = t.Observed(s)
	r.Passed = t.Compare(r.Observed)
	r.Value = formatValue(s.Kind, t.Aggregation, r.Observed)
	if !r.Passed {
		r.Message = fmt.Sprintf("%s is %s, threshold: %s %s", t.aggName(), r.Value, t.Operator,
			formatValue(s.Kind, t.Aggregation, t.Value))
	}
	return r
}

func formatValue(kind metrics.Kind, agg string, v float64) string {
	switch {
	case kind == metrics.KindTrend && agg != AggCount:
		return strconv.FormatFloat(v, 'f', 2, 64) + "ms"
	case agg == AggCount:
		return strconv.FormatFloat(v, 'f', 0, 64)
	case kind == metrics.KindRate:
		return strconv.FormatFloat(v, 'f', 4, 64)
	default:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
}

// Result is the outcome of one threshold.
type Result struct {
	Metric      string  `json:"metric"`
	Expression  string  `json:"expression"`
	Passed      bool    `json:"passed"`
	NoData      bool    `json:"noData,omitempty"`
	AbortOnFail bool    `json:"abortOnFail,omitempty"`
	Observed    float64 `json:"observed"`
	Value       string  `json:"value"`
	Message     string  `json:"message,omitempty"`
}
