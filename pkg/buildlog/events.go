// Package buildlog turns the line-oriented output of the external content
// build tool into structured events.
//
// Classification is a pure function of the line and the previous state, so
// it can run on any goroutine. Parser wraps it for sequential use and
// Collector groups the resulting diagnostics per asset.
package buildlog

import (
	"fmt"
	"time"
)

// EventKind identifies what a line of build output means.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventBuildBegin
	EventBuildEnd
	EventElapsedTime
	EventCleaning
	EventSkipping
	EventBuilding
	EventDiagnostic
	EventDiagnosticContinuation
	EventTerminated
)

var eventKindNames = map[EventKind]string{
	EventUnrecognized:           "unrecognized",
	EventBuildBegin:             "build_begin",
	EventBuildEnd:               "build_end",
	EventElapsedTime:            "elapsed_time",
	EventCleaning:               "cleaning",
	EventSkipping:               "skipping",
	EventBuilding:               "building",
	EventDiagnostic:             "diagnostic",
	EventDiagnosticContinuation: "diagnostic_continuation",
	EventTerminated:             "terminated",
}

// String returns the snake_case kind name.
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsDiagnostic reports whether k is a diagnostic or its continuation.
func (k EventKind) IsDiagnostic() bool {
	return k == EventDiagnostic || k == EventDiagnosticContinuation
}

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Summary is the parsed trailing "Build ..." line.
type Summary struct {
	// Text is everything after "Build ".
	Text string

	// Counts are set only when the tool printed them.
	HasCounts bool
	Succeeded int
	Failed    int
	Skipped   int
}

// Event is one classified line of build output. Which fields are set
// depends on Kind:
//
//	BuildBegin              Time (zero when the timestamp does not parse)
//	BuildEnd                Summary
//	ElapsedTime             Elapsed
//	Cleaning, Skipping      Path
//	Building                Path
//	Diagnostic              Severity, Path, Line, Column, Code, Message
//	DiagnosticContinuation  Path, Message
//
// Raw always holds the original line.
type Event struct {
	Kind EventKind
	Raw  string

	Time    time.Time
	Summary *Summary
	Elapsed time.Duration

	Path     string
	Severity Severity

	// Line is zero when the diagnostic has no position.
	Line int

	// Column is the column text after the line number, e.g. "4", "4-9" or
	// "4,14,9" for a full range.
	Column string

	Code    string
	Message string
}

// String renders the event for logs and the CLI.
func (e Event) String() string {
	switch e.Kind {
	case EventBuildBegin:
		return "build started"
	case EventBuildEnd:
		if e.Summary == nil {
			return "build finished"
		}
		return "build " + e.Summary.Text
	case EventElapsedTime:
		return fmt.Sprintf("elapsed %s", e.Elapsed)
	case EventCleaning, EventSkipping, EventBuilding:
		return fmt.Sprintf("%s %s", e.Kind, e.Path)
	case EventDiagnostic:
		if e.Line > 0 {
			return fmt.Sprintf("%s(%d,%s): %s: %s", e.Path, e.Line, e.Column, e.Severity, e.Message)
		}
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Severity, e.Message)
	case EventDiagnosticContinuation:
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	case EventTerminated:
		return "build terminated"
	default:
		return e.Raw
	}
}
