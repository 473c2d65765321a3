package threshold

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

var negated = map[string]string{
	"<":  ">=",
	"<=": ">",
	">":  "<=",
	">=": "<",
	"==": "!=",
	"!=": "==",
}

func TestThresholdProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("both percentile spellings parse the same", prop.ForAll(
		func(p int, limit int) bool {
			a, errA := Parse("m", fmt.Sprintf("p(%d)<%d", p, limit))
			b, errB := Parse("m", fmt.Sprintf("p%d < %dms", p, limit))
			if errA != nil || errB != nil {
				return false
			}
			return a.Percentile == b.Percentile && a.Value == b.Value && a.Operator == b.Operator
		},
		gen.IntRange(0, 100),
		gen.IntRange(0, 1000000),
	))

	properties.Property("an operator and its negation never agree", prop.ForAll(
		func(op string, limit, observed float64) bool {
			a, errA := Parse("m", fmt.Sprintf("avg%s%g", op, limit))
			b, errB := Parse("m", fmt.Sprintf("avg%s%g", negated[op], limit))
			if errA != nil || errB != nil {
				return false
			}
			return a.Compare(observed) != b.Compare(observed)
		},
		gen.OneConstOf("<", "<=", ">", ">=", "==", "!="),
		gen.Float64Range(0, 1e6),
		gen.Float64Range(0, 1e6),
	))

	properties.Property("duration values are milliseconds", prop.ForAll(
		func(ms int64) bool {
			th, err := Parse("m", "max<"+(time.Duration(ms)*time.Millisecond).String())
			return err == nil && math.Abs(th.Value-float64(ms)) < 1e-6
		},
		gen.Int64Range(1, 3600000),
	))

	properties.Property("finish passes iff every threshold passes", prop.ForAll(
		func(fails, total int, limit float64) bool {
			if fails > total {
				fails = total
			}
			snap := failedSnapshot(fails, total)
			rate := mustParseQuiet(metrics.HTTPReqFailed, fmt.Sprintf("rate<%g", limit))
			p95 := mustParseQuiet(metrics.HTTPReqDuration, "p(95)<2000")

			sum, err := NewEvaluator([]*Threshold{rate, p95}, nil).Finish(snap)
			if err != nil {
				return false
			}
			want := rate.Evaluate(snap).Passed && p95.Evaluate(snap).Passed
			return sum.Passed == want
		},
		gen.IntRange(0, 50),
		gen.IntRange(0, 50),
		gen.Float64Range(0, 1),
	))

	properties.Property("same snapshot gives the same decision", prop.ForAll(
		func(fails int) bool {
			snap := failedSnapshot(fails, 20)
			decide := func() bool {
				ev := NewEvaluator([]*Threshold{mustParseQuiet(metrics.HTTPReqFailed, "rate<0.1")}, nil)
				sum, _ := ev.Finish(snap)
				return sum.Passed
			}
			return decide() == decide()
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

func mustParseQuiet(metric, expr string) *Threshold {
	th, err := Parse(metric, expr)
	if err != nil {
		panic(err)
	}
	return th
}
