package buildlog

import (
	"strings"
	"time"
)

// AssetStatus is what happened to one asset during a build.
type AssetStatus string

const (
	AssetBuilding AssetStatus = "building"
	AssetSkipped  AssetStatus = "skipped"
	AssetCleaned  AssetStatus = "cleaned"
	AssetFailed   AssetStatus = "failed"
)

// Diagnostic is one error or warning with its continuation lines folded
// into Message.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Line     int      `json:"line,omitempty"`
	Column   string   `json:"column,omitempty"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
}

// Asset is the per-asset view of a build.
type Asset struct {
	Path        string       `json:"path"`
	Status      AssetStatus  `json:"status"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Errors counts error diagnostics.
func (a *Asset) Errors() int { return a.count(SeverityError) }

// Warnings counts warning diagnostics.
func (a *Asset) Warnings() int { return a.count(SeverityWarning) }

func (a *Asset) count(sev Severity) int {
	n := 0
	for _, d := range a.Diagnostics {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// Collector accumulates events of one build into per-asset results.
type Collector struct {
	assets     []*Asset
	byPath     map[string]*Asset
	started    time.Time
	summary    *Summary
	elapsed    time.Duration
	terminated bool
	unparsed   int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{byPath: make(map[string]*Asset)}
}

// Add records one event.
func (c *Collector) Add(ev Event) {
	switch ev.Kind {
	case EventBuildBegin:
		c.started = ev.Time
	case EventBuildEnd:
		c.summary = ev.Summary
	case EventElapsedTime:
		c.elapsed = ev.Elapsed
	case EventTerminated:
		c.terminated = true
	case EventBuilding:
		c.asset(ev.Path).Status = AssetBuilding
	case EventSkipping:
		c.asset(ev.Path).Status = AssetSkipped
	case EventCleaning:
		c.asset(ev.Path).Status = AssetCleaned
	case EventDiagnostic:
		a := c.asset(ev.Path)
		if ev.Severity == SeverityError {
			a.Status = AssetFailed
		}
		a.Diagnostics = append(a.Diagnostics, Diagnostic{
			Severity: ev.Severity,
			Line:     ev.Line,
			Column:   ev.Column,
			Code:     ev.Code,
			Message:  ev.Message,
		})
	case EventDiagnosticContinuation:
		a := c.asset(ev.Path)
		if n := len(a.Diagnostics); n > 0 {
			a.Diagnostics[n-1].Message += "\n" + strings.TrimSpace(ev.Message)
		}
	default:
		c.unparsed++
	}
}

func (c *Collector) asset(path string) *Asset {
	key := strings.ToLower(path)
	if a, ok := c.byPath[key]; ok {
		return a
	}
	a := &Asset{Path: path}
	c.byPath[key] = a
	c.assets = append(c.assets, a)
	return a
}

// Assets returns every asset mentioned, in first-seen order.
func (c *Collector) Assets() []*Asset { return c.assets }

// Asset returns the entry for path, or nil.
func (c *Collector) Asset(path string) *Asset { return c.byPath[strings.ToLower(path)] }

// Failed returns the assets with at least one error.
func (c *Collector) Failed() []*Asset {
	var out []*Asset
	for _, a := range c.assets {
		if a.Status == AssetFailed {
			out = append(out, a)
		}
	}
	return out
}

// Errors counts error diagnostics across all assets.
func (c *Collector) Errors() int {
	n := 0
	for _, a := range c.assets {
		n += a.Errors()
	}
	return n
}

// Warnings counts warning diagnostics across all assets.
func (c *Collector) Warnings() int {
	n := 0
	for _, a := range c.assets {
		n += a.Warnings()
	}
	return n
}

// Started returns the build start time printed by the tool.
func (c *Collector) Started() time.Time { return c.started }

// Summary returns the trailing build summary, or nil if none was printed.
func (c *Collector) Summary() *Summary { return c.summary }

// Elapsed returns the elapsed time printed by the tool.
func (c *Collector) Elapsed() time.Duration { return c.elapsed }

// Terminated reports whether the tool printed "build terminated".
func (c *Collector) Terminated() bool { return c.terminated }

// Unrecognized counts lines that matched no rule.
func (c *Collector) Unrecognized() int { return c.unparsed }
