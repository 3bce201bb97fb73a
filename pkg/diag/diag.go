// Package diag collects diagnostics produced while analyzing one method.
// The CFG builder and dataflow engine report here instead of logging, and the
// collected list travels with the analysis result.
package diag

import "fmt"

// Severity of a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one message tied to a pc (-1 when not tied to code).
type Diagnostic struct {
	PC       int      `json:"pc" yaml:"pc" msgpack:"pc"`
	Severity Severity `json:"severity" yaml:"severity" msgpack:"severity"`
	Message  string   `json:"message" yaml:"message" msgpack:"message"`
}

func (d Diagnostic) String() string {
	if d.PC < 0 {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%s at pc %d: %s", d.Severity, d.PC, d.Message)
}

// Sink receives diagnostics.
type Sink interface {
	Report(d Diagnostic)
}

// Collector is a Sink that keeps diagnostics in arrival order and drops exact
// repeats, which fixed-point revisits would otherwise produce. It is not safe
// for concurrent use; each method analysis owns one.
type Collector struct {
	items []Diagnostic
	seen  map[Diagnostic]struct{}
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[Diagnostic]struct{})}
}

// Report implements Sink.
func (c *Collector) Report(d Diagnostic) {
	if c.seen == nil {
		c.seen = make(map[Diagnostic]struct{})
	}
	if _, dup := c.seen[d]; dup {
		return
	}
	c.seen[d] = struct{}{}
	c.items = append(c.items, d)
}

// Warnf reports a warning at pc.
func (c *Collector) Warnf(pc int, format string, args ...interface{}) {
	c.Report(Diagnostic{PC: pc, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)})
}

// Infof reports an informational message at pc.
func (c *Collector) Infof(pc int, format string, args ...interface{}) {
	c.Report(Diagnostic{PC: pc, Severity: SeverityInfo, Message: fmt.Sprintf(format, args...)})
}

// Items returns the collected diagnostics.
func (c *Collector) Items() []Diagnostic {
	return c.items
}

// Warnings counts warning-level diagnostics.
func (c *Collector) Warnings() int {
	n := 0
	for _, d := range c.items {
		if d.Severity == SeverityWarning {
			n++
		}
	}
	return n
}
