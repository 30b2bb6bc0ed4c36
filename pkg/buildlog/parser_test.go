package buildlog

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	diag := State{Last: EventDiagnostic, Path: "/assets/tex.png"}

	tests := []struct {
		name string
		prev State
		line string
		want Event
	}{
		{
			name: "build started",
			line: "Build started 4/1/2024 10:00:00 AM",
			want: Event{Kind: EventBuildBegin},
		},
		{
			name: "building bare path",
			line: "/assets/tex.png",
			want: Event{Kind: EventBuilding, Path: "/assets/tex.png"},
		},
		{
			name: "building windows path",
			line: `C:\content\tex.png`,
			want: Event{Kind: EventBuilding, Path: `C:\content\tex.png`},
		},
		{
			name: "skipping",
			line: "Skipping /assets/tex.png",
			want: Event{Kind: EventSkipping, Path: "/assets/tex.png"},
		},
		{
			name: "cleaning",
			line: "Cleaning /assets/obj/tex.xnb",
			want: Event{Kind: EventCleaning, Path: "/assets/obj/tex.xnb"},
		},
		{
			name: "diagnostic with position",
			line: "/assets/tex.png(12,4): error TX1001: unsupported format",
			want: Event{
				Kind:     EventDiagnostic,
				Path:     "/assets/tex.png",
				Severity: SeverityError,
				Line:     12,
				Column:   "4",
				Code:     "TX1001",
				Message:  "TX1001: unsupported format",
			},
		},
		{
			name: "diagnostic with column range",
			line: "/fx/a.fx(3,4-9): warning X3206: implicit truncation",
			want: Event{
				Kind:     EventDiagnostic,
				Path:     "/fx/a.fx",
				Severity: SeverityWarning,
				Line:     3,
				Column:   "4-9",
				Code:     "X3206",
				Message:  "X3206: implicit truncation",
			},
		},
		{
			name: "diagnostic with full range",
			line: "/fx/a.fx(3,4,5,9): error X1000: syntax error",
			want: Event{
				Kind:     EventDiagnostic,
				Path:     "/fx/a.fx",
				Severity: SeverityError,
				Line:     3,
				Column:   "4,5,9",
				Code:     "X1000",
				Message:  "X1000: syntax error",
			},
		},
		{
			name: "diagnostic without position",
			line: "/assets/song.mp3: warning SND01: bitrate lowered",
			want: Event{
				Kind:     EventDiagnostic,
				Path:     "/assets/song.mp3",
				Severity: SeverityWarning,
				Code:     "SND01",
				Message:  "SND01: bitrate lowered",
			},
		},
		{
			name: "message without code",
			line: "/assets/model.fbx: Importer crashed",
			want: Event{
				Kind:     EventDiagnostic,
				Path:     "/assets/model.fbx",
				Severity: SeverityError,
				Message:  "Importer crashed",
			},
		},
		{
			name: "continuation after diagnostic",
			prev: diag,
			line: "   at TextureImporter.Import()",
			want: Event{
				Kind:    EventDiagnosticContinuation,
				Path:    "/assets/tex.png",
				Message: "   at TextureImporter.Import()",
			},
		},
		{
			name: "continuation after continuation",
			prev: State{Last: EventDiagnosticContinuation, Path: "/assets/tex.png"},
			line: "more detail",
			want: Event{Kind: EventDiagnosticContinuation, Path: "/assets/tex.png", Message: "more detail"},
		},
		{
			name: "unrecognized without diagnostic",
			line: "more detail",
			want: Event{Kind: EventUnrecognized},
		},
		{
			name: "terminated after diagnostic",
			prev: diag,
			line: "Build terminated!",
			want: Event{Kind: EventTerminated},
		},
		{
			name: "rooted path containing error is not building",
			line: "/assets/error.png",
			want: Event{Kind: EventUnrecognized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Classify(tt.prev, tt.line)
			if got.Kind != tt.want.Kind {
				t.Fatalf("Kind = %s, want %s", got.Kind, tt.want.Kind)
			}
			if got.Path != tt.want.Path {
				t.Errorf("Path = %q, want %q", got.Path, tt.want.Path)
			}
			if got.Severity != tt.want.Severity {
				t.Errorf("Severity = %q, want %q", got.Severity, tt.want.Severity)
			}
			if got.Line != tt.want.Line {
				t.Errorf("Line = %d, want %d", got.Line, tt.want.Line)
			}
			if got.Column != tt.want.Column {
				t.Errorf("Column = %q, want %q", got.Column, tt.want.Column)
			}
			if got.Code != tt.want.Code {
				t.Errorf("Code = %q, want %q", got.Code, tt.want.Code)
			}
			if got.Message != tt.want.Message {
				t.Errorf("Message = %q, want %q", got.Message, tt.want.Message)
			}
			if got.Raw != tt.line {
				t.Errorf("Raw = %q, want %q", got.Raw, tt.line)
			}
		})
	}
}

func TestClassify_BuildStartedTime(t *testing.T) {
	ev, _ := Classify(State{}, "Build started 4/1/2024 10:00:00 AM")
	want := time.Date(2024, time.April, 1, 10, 0, 0, 0, time.Local)
	if !ev.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", ev.Time, want)
	}

	ev, _ = Classify(State{}, "Build started sometime")
	if ev.Kind != EventBuildBegin || !ev.Time.IsZero() {
		t.Errorf("unparsed timestamp: Kind = %s, Time = %v", ev.Kind, ev.Time)
	}
}

func TestClassify_Summary(t *testing.T) {
	ev, _ := Classify(State{}, "Build 3 succeeded, 1 failed, 2 skipped")
	if ev.Kind != EventBuildEnd {
		t.Fatalf("Kind = %s, want build_end", ev.Kind)
	}
	s := ev.Summary
	if !s.HasCounts || s.Succeeded != 3 || s.Failed != 1 || s.Skipped != 2 {
		t.Errorf("unexpected summary %+v", s)
	}

	ev, _ = Classify(State{}, "Build succeeded.")
	if ev.Kind != EventBuildEnd || ev.Summary.HasCounts || ev.Summary.Text != "succeeded." {
		t.Errorf("unexpected summary %+v", ev.Summary)
	}
}

func TestClassify_Elapsed(t *testing.T) {
	tests := []struct {
		line string
		want time.Duration
	}{
		{"Time elapsed 00:00:01.25.", 1250 * time.Millisecond},
		{"Time elapsed 01:02:03", time.Hour + 2*time.Minute + 3*time.Second},
		{"Time elapsed forever", 0},
	}
	for _, tt := range tests {
		ev, _ := Classify(State{}, tt.line)
		if ev.Kind != EventElapsedTime {
			t.Fatalf("%q: Kind = %s", tt.line, ev.Kind)
		}
		if ev.Elapsed != tt.want {
			t.Errorf("%q: Elapsed = %s, want %s", tt.line, ev.Elapsed, tt.want)
		}
	}
}

func TestClassify_BlankLineKeepsState(t *testing.T) {
	prev := State{Last: EventDiagnostic, Path: "/a.png"}
	ev, next := Classify(prev, "   ")
	if ev.Kind != EventUnrecognized {
		t.Errorf("Kind = %s, want unrecognized", ev.Kind)
	}
	if next != prev {
		t.Errorf("state = %+v, want %+v", next, prev)
	}
}

func TestParser_Sequence(t *testing.T) {
	lines := []string{
		"Build started 4/1/2024 10:00:00 AM",
		"/assets/tex.png",
		"/assets/tex.png(12,4): error TX1001: unsupported format",
		"the file header is corrupt",
		"Skipping /assets/song.mp3",
		"trailing noise",
		"Build 0 succeeded, 1 failed, 1 skipped",
	}
	want := []EventKind{
		EventBuildBegin,
		EventBuilding,
		EventDiagnostic,
		EventDiagnosticContinuation,
		EventSkipping,
		EventUnrecognized,
		EventBuildEnd,
	}

	p := NewParser()
	for i, line := range lines {
		ev := p.Parse(line)
		if ev.Kind != want[i] {
			t.Errorf("line %d %q: Kind = %s, want %s", i, line, ev.Kind, want[i])
		}
	}

	if p.State().Last != EventBuildEnd {
		t.Errorf("State().Last = %s", p.State().Last)
	}
	p.Reset()
	if p.State() != (State{}) {
		t.Errorf("Reset left state %+v", p.State())
	}
}

func TestCollector(t *testing.T) {
	p := NewParser()
	c := NewCollector()
	for _, line := range []string{
		"Build started 4/1/2024 10:00:00 AM",
		"/assets/tex.png",
		"/assets/tex.png(12,4): error TX1001: unsupported format",
		"  header is corrupt",
		"/assets/hero.fbx",
		"/assets/hero.fbx: warning MD2: no normals",
		"Skipping /assets/song.mp3",
		"Build 1 succeeded, 1 failed, 1 skipped",
		"Time elapsed 00:00:02.5",
	} {
		c.Add(p.Parse(line))
	}

	if got := len(c.Assets()); got != 3 {
		t.Fatalf("Assets() = %d, want 3", got)
	}
	if c.Errors() != 1 || c.Warnings() != 1 {
		t.Errorf("Errors() = %d, Warnings() = %d", c.Errors(), c.Warnings())
	}

	tex := c.Asset("/assets/tex.png")
	if tex == nil || tex.Status != AssetFailed {
		t.Fatalf("tex asset = %+v", tex)
	}
	if want := "TX1001: unsupported format\nheader is corrupt"; tex.Diagnostics[0].Message != want {
		t.Errorf("Message = %q, want %q", tex.Diagnostics[0].Message, want)
	}

	if hero := c.Asset("/assets/hero.fbx"); hero.Status != AssetBuilding {
		t.Errorf("hero status = %s, want building", hero.Status)
	}
	if song := c.Asset("/assets/song.mp3"); song.Status != AssetSkipped {
		t.Errorf("song status = %s, want skipped", song.Status)
	}
	if failed := c.Failed(); len(failed) != 1 || failed[0] != tex {
		t.Errorf("Failed() = %v", failed)
	}
	if c.Summary() == nil || c.Summary().Failed != 1 {
		t.Errorf("Summary() = %+v", c.Summary())
	}
	if c.Elapsed() != 2500*time.Millisecond {
		t.Errorf("Elapsed() = %s", c.Elapsed())
	}
	if c.Terminated() {
		t.Error("Terminated() = true")
	}
}
