// Package output prints run progress and the end-of-run summary.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/wesleyorama2/stampede/internal/check"
	"github.com/wesleyorama2/stampede/internal/engine"
	"github.com/wesleyorama2/stampede/internal/executor"
	"github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/stages"
)

const (
	ruleWidth  = 56
	labelWidth = 28
)

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	NoColor     bool
	ForceColors bool

	// Quiet prints only the final verdict line
	Quiet bool
}

// Console writes human-readable run output. Methods may be called from the
// engine's hook goroutines.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	scheme *ColorScheme
	quiet  bool
}

// NewConsole creates a console. Colors are used when the writer is a
// terminal, unless NoColor or NO_COLOR says otherwise.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	scheme := NoColorScheme()
	if !cfg.NoColor && (cfg.ForceColors || UseColors(cfg.Writer)) {
		scheme = DefaultColorScheme()
	}
	return &Console{w: cfg.Writer, scheme: scheme, quiet: cfg.Quiet}
}

func (c *Console) writeln(format string, args ...interface{}) {
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c *Console) rule() string {
	return c.scheme.Rule.Sprint(strings.Repeat("━", ruleWidth))
}

// PrintHeader prints the run banner.
func (c *Console) PrintHeader(name, target string, s *stages.Schedule) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln("%s", c.rule())
	c.writeln("%s", c.scheme.Title.Sprintf("%s - Running", name))
	c.writeln("%s", c.rule())
	c.writeln("  target:   %s", c.scheme.Value.Sprint(target))
	c.writeln("  stages:   %d, up to %d VUs over %s",
		len(s.Stages()), s.MaxTarget(), formatDuration(s.TotalDuration()))
	c.writeln("")
}

// PrintStage prints one line per stage change.
func (c *Console) PrintStage(change executor.StageChange, total int) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	name := change.Name
	if name == "" {
		name = string(change.Phase)
	}
	c.writeln("%s stage %d/%d %s -> %d VUs",
		c.scheme.Dim.Sprintf("[%s]", formatDuration(change.Elapsed)),
		change.Index+1, total,
		c.scheme.Highlight.Sprint(name),
		change.Target,
	)
}

// PrintProgress prints one status line for a progress bucket.
func (c *Console) PrintProgress(b *metrics.TimeBucket) {
	if c.quiet || b == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	errColor := c.scheme.rateColor(1 - b.IntervalErrorRate)
	c.writeln("%s VUs: %d | Reqs: %s | RPS: %.1f | Errors: %s | P95: %s",
		c.scheme.Dim.Sprintf("[%s]", formatDuration(b.Elapsed)),
		b.VUs,
		formatNumber(b.Requests),
		b.IntervalRPS,
		errColor.Sprint(formatPercent(b.IntervalErrorRate)),
		formatMillis(b.P95),
	)
}

// PrintSummary prints the end-of-run summary.
func (c *Console) PrintSummary(r *engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	verdict := c.verdict(r)
	if c.quiet {
		c.writeln("%s", verdict)
		return
	}

	c.writeln("")
	c.writeln("%s", c.rule())
	c.writeln("%s - %s", c.scheme.Title.Sprint(r.Name), verdict)
	c.writeln("%s", c.rule())
	c.writeln("  run:      %s", c.scheme.Dim.Sprint(r.RunID))
	c.writeln("  target:   %s", c.scheme.Value.Sprint(r.TargetURL))
	c.writeln("  duration: %s", c.scheme.Value.Sprint(formatDuration(r.Duration)))
	c.writeln("  VUs:      peak %d, %s iterations, %s dropped",
		r.ExecutorStats.PeakVUs,
		formatNumber(r.ExecutorStats.Iterations),
		formatNumber(r.ExecutorStats.DroppedIterations))
	if r.SteadyRPS > 0 {
		c.writeln("  steady:   %.1f req/s", r.SteadyRPS)
	}
	c.writeln("")

	if len(r.Checks) > 0 {
		c.writeln("%s", c.scheme.Title.Sprint("Checks:"))
		for _, ch := range r.Checks {
			c.writeln("  %s %s %s %s %d %s %d",
				c.scheme.Icon(ch.Fails == 0),
				ch.Name,
				c.scheme.rateColor(ch.PassRate()).Sprint(formatPercent(ch.PassRate())),
				c.scheme.PassIcon(), ch.Passes,
				c.scheme.FailIcon(), ch.Fails)
		}
		c.writeln("")
	}

	if len(r.Thresholds) > 0 {
		c.writeln("%s", c.scheme.Title.Sprint("Thresholds:"))
		for _, t := range r.Thresholds {
			icon := c.scheme.Icon(t.Passed)
			if t.NoData {
				icon = c.scheme.WarnIcon()
			}
			line := fmt.Sprintf("  %s %s %s (actual: %s)", icon, t.Metric, t.Expression, t.Value)
			if t.AbortOnFail {
				line += c.scheme.Dim.Sprint(" [abortOnFail]")
			}
			c.writeln("%s", line)
		}
		c.writeln("")
	}

	if r.Metrics != nil {
		c.writeln("%s", c.scheme.Title.Sprint("Metrics:"))
		for _, line := range c.metricLines(r.Metrics) {
			c.writeln("  %s", line)
		}
		c.writeln("")
	}
}

func (c *Console) verdict(r *engine.Result) string {
	switch {
	case r.Aborted:
		by := ""
		if r.AbortedBy != nil {
			by = fmt.Sprintf(" (%s %s)", r.AbortedBy.Metric, r.AbortedBy.Expression)
		}
		return c.scheme.Fail.Sprintf("Aborted by threshold%s ✗", by)
	case r.Interrupted:
		return c.scheme.Warn.Sprint("Interrupted ⚠")
	case r.Passed:
		return c.scheme.Pass.Sprint("Passed ✓")
	default:
		return c.scheme.Fail.Sprint("Failed ✗")
	}
}

// metricLines renders every metric with data, sorted by name.
func (c *Console) metricLines(snap *metrics.Snapshot) []string {
	names := make([]string, 0, len(snap.Samples))
	for name := range snap.Samples {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		s := snap.Samples[name]
		if s.Empty() {
			continue
		}
		lines = append(lines, dotted(name, labelWidth)+" "+c.metricValue(s))
	}
	return lines
}

func (c *Console) metricValue(s metrics.Sample) string {
	v := c.scheme.Value
	switch s.Kind {
	case metrics.KindTrend:
		return fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s",
			v.Sprint(formatMillis(s.Avg)),
			v.Sprint(formatMillis(s.Min)),
			v.Sprint(formatMillis(s.Med)),
			v.Sprint(formatMillis(s.Max)),
			v.Sprint(formatMillis(s.Percentile(90))),
			v.Sprint(formatMillis(s.Percentile(95))),
		)
	case metrics.KindRate:
		return fmt.Sprintf("%s %s %d %s %d",
			v.Sprint(formatPercent(s.Rate)),
			c.scheme.PassIcon(), s.Passes,
			c.scheme.FailIcon(), s.Count-s.Passes)
	case metrics.KindCounter:
		if s.Name == metrics.DataReceived {
			return fmt.Sprintf("%s %s/s", v.Sprint(formatBytes(s.Value)), formatBytes(s.Rate))
		}
		return fmt.Sprintf("%s %s", v.Sprint(formatNumber(int64(s.Value))), c.scheme.Dim.Sprintf("%.2f/s", s.Rate))
	case metrics.KindGauge:
		return fmt.Sprintf("%s max=%s", v.Sprintf("%.0f", s.Value), v.Sprintf("%.0f", s.Max))
	default:
		return ""
	}
}

// PrintProbe prints a single request with its timing breakdown and the
// outcome of each check.
func (c *Console) PrintProbe(r *http.Result, checks []check.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln("▶ REQUEST: %s %s", c.scheme.Highlight.Sprint(r.Method), r.URL)
	if r.Err != nil {
		c.writeln("◀ %s %s", c.scheme.Fail.Sprint("ERROR:"), r.Err.Error())
	} else {
		status := c.scheme.Pass
		if !r.Success {
			status = c.scheme.Fail
		}
		c.writeln("◀ RESPONSE: %s (%s, %s)",
			status.Sprint(r.Status), formatMillis(millis(r.Duration)), formatBytes(float64(r.Bytes)))
	}

	t := r.Timings
	c.writeln("  Timing:")
	c.writeln("    Blocked:         %s", formatMillis(millis(t.Blocked)))
	c.writeln("    Connecting:      %s", formatMillis(millis(t.Connecting)))
	c.writeln("    TLS Handshaking: %s", formatMillis(millis(t.TLSHandshaking)))
	c.writeln("    Sending:         %s", formatMillis(millis(t.Sending)))
	c.writeln("    Waiting:         %s", formatMillis(millis(t.Waiting)))
	c.writeln("    Receiving:       %s", formatMillis(millis(t.Receiving)))

	if len(checks) > 0 {
		c.writeln("  Checks:")
		for _, ch := range checks {
			c.writeln("    %s %s", c.scheme.Icon(ch.Fails == 0), ch.Name)
		}
	}
}
