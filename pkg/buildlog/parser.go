package buildlog

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// State is the one piece of memory the classifier needs: what the previous
// line was and, for diagnostics, which asset it referred to.
type State struct {
	Last EventKind
	Path string
}

// filename matches an optional drive letter followed by anything up to the
// first colon or parenthesis.
const filename = `(?P<file>(?:[a-zA-Z]:)?[^:(]+?)`

var (
	reTerminated = regexp.MustCompile(`(?i)^build terminated`)
	reStarted    = regexp.MustCompile(`^Build started\b\s*(?P<time>.*)$`)
	reSummary    = regexp.MustCompile(`^Build\s+(?P<text>.+)$`)
	reCounts     = regexp.MustCompile(`(?P<ok>\d+)\s+succeeded,\s*(?P<failed>\d+)\s+failed(?:,\s*(?P<skipped>\d+)\s+skipped)?`)
	reElapsed    = regexp.MustCompile(`^Time elapsed\s+(?P<text>.+)$`)
	reDuration   = regexp.MustCompile(`^(\d+):(\d{1,2}):(\d{1,2})(?:\.(\d+))?$`)
	reCleaning   = regexp.MustCompile(`^Cleaning\s+(?P<path>.+)$`)
	reSkipping   = regexp.MustCompile(`^Skipping\s+(?P<path>.+)$`)

	reDiagnostic = regexp.MustCompile(`^` + filename +
		`\s*(?:\((?P<pos>[0-9]+(?:[,-][0-9]+)*)\))?\s*:\s*(?P<sev>(?i:error|warning))\s+(?P<code>[A-Za-z]+[0-9]+)\s*:\s*(?P<msg>.*)$`)
	reMessage = regexp.MustCompile(`^` + filename +
		`\s*(?:\((?P<pos>[0-9]+(?:[,-][0-9]+)*)\))?\s*:\s*(?P<msg>.+)$`)
)

// startedLayouts are tried in order on the "Build started" timestamp.
var startedLayouts = []string{
	"1/2/2006 3:04:05 PM",
	"1/2/2006 15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Classify maps one line of output to an event. The rules are tried in
// order and the first match wins; an unmatched line directly after a
// diagnostic continues it. Blank lines are unrecognized and leave the state
// untouched.
func Classify(prev State, line string) (Event, State) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	ev := Event{Kind: EventUnrecognized, Raw: line}

	if trimmed == "" {
		return ev, prev
	}

	switch {
	case reTerminated.MatchString(trimmed):
		ev.Kind = EventTerminated

	case reStarted.MatchString(trimmed):
		ev.Kind = EventBuildBegin
		ev.Time = parseStarted(group(reStarted, trimmed, "time"))

	case reSummary.MatchString(trimmed):
		ev.Kind = EventBuildEnd
		ev.Summary = parseSummary(group(reSummary, trimmed, "text"))

	case reElapsed.MatchString(trimmed):
		ev.Kind = EventElapsedTime
		ev.Elapsed = parseElapsed(group(reElapsed, trimmed, "text"))

	case reCleaning.MatchString(trimmed):
		ev.Kind = EventCleaning
		ev.Path = strings.TrimSpace(group(reCleaning, trimmed, "path"))

	case reSkipping.MatchString(trimmed):
		ev.Kind = EventSkipping
		ev.Path = strings.TrimSpace(group(reSkipping, trimmed, "path"))

	case reDiagnostic.MatchString(trimmed):
		m := submatches(reDiagnostic, trimmed)
		ev.Kind = EventDiagnostic
		ev.Path = strings.TrimSpace(m["file"])
		ev.Line, ev.Column = parsePosition(m["pos"])
		ev.Severity = Severity(strings.ToLower(m["sev"]))
		ev.Code = m["code"]
		ev.Message = m["code"] + ": " + m["msg"]

	case isRooted(group(reMessage, trimmed, "file")):
		m := submatches(reMessage, trimmed)
		ev.Kind = EventDiagnostic
		ev.Path = strings.TrimSpace(m["file"])
		ev.Line, ev.Column = parsePosition(m["pos"])
		ev.Severity = SeverityError
		ev.Message = strings.TrimSpace(m["msg"])

	case isRooted(trimmed) && !strings.Contains(strings.ToLower(trimmed), "error"):
		ev.Kind = EventBuilding
		ev.Path = trimmed

	// Fragile: a continuation only ends at a line matching an earlier rule,
	// so a change in the tool's message format lets it swallow output.
	case prev.Last.IsDiagnostic():
		ev.Kind = EventDiagnosticContinuation
		ev.Path = prev.Path
		ev.Message = line
	}

	next := State{Last: ev.Kind}
	if ev.Kind.IsDiagnostic() {
		next.Path = ev.Path
	}
	return ev, next
}

// Parser classifies lines in sequence, carrying the state between calls.
// It is not safe for concurrent use.
type Parser struct {
	state State
}

// NewParser creates a parser in the initial state.
func NewParser() *Parser {
	return &Parser{}
}

// Parse classifies the next line.
func (p *Parser) Parse(line string) Event {
	ev, next := Classify(p.state, line)
	p.state = next
	return ev
}

// State returns the state carried into the next line.
func (p *Parser) State() State { return p.state }

// Reset forgets the previous line.
func (p *Parser) Reset() { p.state = State{} }

// isRooted reports whether s is an absolute path on either a POSIX or a
// Windows host.
func isRooted(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '/' || s[0] == '\\' {
		return true
	}
	return len(s) >= 3 && isLetter(s[0]) && s[1] == ':' && (s[2] == '\\' || s[2] == '/')
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// parsePosition splits "12,4" into 12 and "4". Anything after the first
// comma is the column text.
func parsePosition(pos string) (int, string) {
	if pos == "" {
		return 0, ""
	}
	lineText, column, _ := strings.Cut(pos, ",")
	if i := strings.IndexByte(lineText, '-'); i >= 0 {
		lineText = lineText[:i]
	}
	line, err := strconv.Atoi(lineText)
	if err != nil {
		return 0, column
	}
	return line, column
}

func parseStarted(text string) time.Time {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "."))
	for _, layout := range startedLayouts {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseSummary(text string) *Summary {
	s := &Summary{Text: strings.TrimSpace(text)}
	m := submatches(reCounts, text)
	if m == nil {
		return s
	}
	s.HasCounts = true
	s.Succeeded, _ = strconv.Atoi(m["ok"])
	s.Failed, _ = strconv.Atoi(m["failed"])
	s.Skipped, _ = strconv.Atoi(m["skipped"])
	return s
}

// parseElapsed reads hh:mm:ss[.fraction]. Unparseable text yields zero.
func parseElapsed(text string) time.Duration {
	m := reDuration.FindStringSubmatch(strings.TrimSuffix(strings.TrimSpace(text), "."))
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	d := time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(sec)*time.Second
	if frac := m[4]; frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		ns, _ := strconv.Atoi(frac)
		d += time.Duration(ns)
	}
	return d
}

func group(re *regexp.Regexp, s, name string) string {
	m := submatches(re, s)
	return m[name]
}

func submatches(re *regexp.Regexp, s string) map[string]string {
	match := re.FindStringSubmatch(s)
	if match == nil {
		return nil
	}
	out := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if name != "" {
			out[name] = match[i]
		}
	}
	return out
}
