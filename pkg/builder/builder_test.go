package builder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openfroyo/contentkit/pkg/buildlog"
	"github.com/openfroyo/contentkit/pkg/history"
	"github.com/openfroyo/contentkit/pkg/pipeline"
	"github.com/openfroyo/contentkit/pkg/project"
)

type fakeProcess struct {
	out  *io.PipeReader
	w    *io.PipeWriter
	exit chan int
	once sync.Once

	mu     sync.Mutex
	killed bool
}

func (p *fakeProcess) Output() io.Reader { return p.out }

func (p *fakeProcess) Wait() (int, error) { return <-p.exit, nil }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.end(-1)
	return nil
}

func (p *fakeProcess) end(code int) {
	p.once.Do(func() {
		p.w.Close()
		p.exit <- code
	})
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

type fakeLauncher struct {
	lines     []string
	exitCode  int
	launchErr error

	// hold keeps the process running after its output until released.
	hold    bool
	release chan struct{}

	launched chan *fakeProcess

	mu        sync.Mutex
	calls     []Command
	responses []string
}

func newFakeLauncher(lines ...string) *fakeLauncher {
	return &fakeLauncher{
		lines:    lines,
		release:  make(chan struct{}),
		launched: make(chan *fakeProcess, 4),
	}
}

func (l *fakeLauncher) Launch(ctx context.Context, cmd Command) (Process, error) {
	var response string
	for _, arg := range cmd.Args {
		if path, ok := strings.CutPrefix(arg, "/@:"); ok {
			data, _ := os.ReadFile(path)
			response = string(data)
		}
	}
	l.mu.Lock()
	l.calls = append(l.calls, cmd)
	l.responses = append(l.responses, response)
	l.mu.Unlock()

	if l.launchErr != nil {
		return nil, l.launchErr
	}

	r, w := io.Pipe()
	p := &fakeProcess{out: r, w: w, exit: make(chan int, 1)}
	go func() {
		for _, line := range l.lines {
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return
			}
		}
		if l.hold {
			<-l.release
		}
		p.end(l.exitCode)
	}()
	l.launched <- p
	return p, nil
}

func (l *fakeLauncher) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

type recordingView struct {
	history.NopView
	mu    sync.Mutex
	lines []string
}

func (v *recordingView) OutputAppend(text string) {
	v.mu.Lock()
	v.lines = append(v.lines, text)
	v.mu.Unlock()
}

func testProject(t *testing.T) *project.Project {
	t.Helper()
	p := project.New(t.TempDir())
	p.References = []string{"Ext/Foo.dll"}

	tex := project.NewItem("Textures/a.png", "")
	tex.Importer = pipeline.Resolved(&pipeline.ImporterDescription{Name: "TextureImporter"})
	tex.Processor = pipeline.Resolved(&pipeline.ProcessorDescription{Name: "TextureProcessor"})
	tex.Params = map[string]any{"Quality": "Best", "GenerateMipmaps": true}

	data := project.NewItem("data/b.txt", "")
	data.BuildAction = pipeline.BuildActionCopy
	data.Importer = pipeline.None[*pipeline.ImporterDescription]()
	data.Processor = pipeline.None[*pipeline.ProcessorDescription]()

	model := project.NewItem("models/c.foo", "")
	model.Importer = pipeline.Missing[*pipeline.ImporterDescription]("FooImporter")
	model.Processor = pipeline.Missing[*pipeline.ProcessorDescription]("")

	for _, item := range []*project.ContentItem{tex, data, model} {
		if err := p.AddItem(item); err != nil {
			t.Fatalf("AddItem() error = %v", err)
		}
	}
	return p
}

func waitResult(t *testing.T, h *Handle) *Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return res
}

func TestWriteResponseFile(t *testing.T) {
	p := testProject(t)

	var buf bytes.Buffer
	if err := WriteResponseFile(&buf, p, Request{Mode: ModeBuild}); err != nil {
		t.Fatalf("WriteResponseFile() error = %v", err)
	}

	want := strings.Join([]string{
		"/outputDir:bin/$(Platform)",
		"/intermediateDir:obj/$(Platform)",
		"/platform:DesktopGL",
		"/config:",
		"/profile:HiDef",
		"/reference:Ext/Foo.dll",
		"/importer:TextureImporter",
		"/processor:TextureProcessor",
		"/processorParam:GenerateMipmaps=True",
		"/processorParam:Quality=Best",
		"/build:Textures/a.png;Textures/a.png",
		"/copy:data/b.txt;data/b.txt",
		"/importer:FooImporter",
		"/build:models/c.foo;models/c.foo",
	}, "\n") + "\n"
	if got := buf.String(); got != want {
		t.Errorf("response file mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteResponseFile_Modes(t *testing.T) {
	p := testProject(t)

	tests := []struct {
		name    string
		req     Request
		want    []string
		notWant []string
		wantErr error
	}{
		{
			name:    "rebuild single item",
			req:     Request{Mode: ModeRebuild, Items: []string{"models/c.foo"}},
			want:    []string{"/rebuild", "/build:models/c.foo;models/c.foo"},
			notWant: []string{"Textures/a.png", "/copy:"},
		},
		{
			name: "clean",
			req:  Request{Mode: ModeClean},
			want: []string{"/clean"},
		},
		{
			name:    "unknown item",
			req:     Request{Items: []string{"nope.png"}},
			wantErr: pipeline.ErrItemNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := WriteResponseFile(&buf, p, tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("WriteResponseFile() error = %v", err)
			}
			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s+"\n") {
					t.Errorf("output missing %q:\n%s", s, out)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("output unexpectedly contains %q:\n%s", s, out)
				}
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeBuild, "Build": ModeBuild, "rebuild": ModeRebuild, "CLEAN": ModeClean} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	// Item selection goes through Request.Items, not a mode of its own.
	for _, in := range []string{"deploy", "rebuild-items"} {
		if _, err := ParseMode(in); !pipeline.IsClass(err, pipeline.ErrorClassValidation) {
			t.Errorf("ParseMode(%q) error = %v, want validation error", in, err)
		}
	}
}

func TestOrchestrator_Succeeded(t *testing.T) {
	launcher := newFakeLauncher(
		"Build started 4/1/2024 10:00:00 AM",
		"/assets/Textures/a.png",
		"/assets/Textures/a.png: warning TX2: resized",
		"Build 1 succeeded, 0 failed, 0 skipped",
	)
	view := &recordingView{}

	var mu sync.Mutex
	var states []State
	o := New(Config{ToolPath: "mgcb", ExtraArgs: []string{"/quiet"}, WorkDir: t.TempDir()},
		WithLauncher(launcher),
		WithView(view),
		WithListener(func(u Update) {
			if u.Event != nil {
				return
			}
			mu.Lock()
			states = append(states, u.State)
			mu.Unlock()
		}),
	)

	h, err := o.Build(context.Background(), testProject(t), Request{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	res := waitResult(t, h)

	if res.State != StateSucceeded {
		t.Fatalf("State = %s, err = %v", res.State, res.Err)
	}
	if res.ID != h.ID() || res.ID == "" {
		t.Errorf("result ID %q, handle ID %q", res.ID, h.ID())
	}
	if len(res.Events) != 4 {
		t.Errorf("Events = %d, want 4", len(res.Events))
	}
	if res.Collector.Warnings() != 1 {
		t.Errorf("Warnings() = %d, want 1", res.Collector.Warnings())
	}
	if o.State() != StateIdle {
		t.Errorf("orchestrator state = %s, want idle", o.State())
	}
	if o.Last() != res {
		t.Error("Last() does not return the finished result")
	}

	call := launcher.calls[0]
	if call.Path != "mgcb" || call.Args[0] != "/quiet" || !strings.HasPrefix(call.Args[1], "/@:") {
		t.Errorf("unexpected command %+v", call)
	}
	if !strings.Contains(launcher.responses[0], "/build:Textures/a.png;Textures/a.png") {
		t.Errorf("response file not written before launch:\n%s", launcher.responses[0])
	}
	responsePath := strings.TrimPrefix(call.Args[1], "/@:")
	if _, err := os.Stat(responsePath); !os.IsNotExist(err) {
		t.Errorf("response file not removed: %v", err)
	}

	view.mu.Lock()
	if len(view.lines) != 4 || view.lines[1] != "/assets/Textures/a.png" {
		t.Errorf("view lines = %q", view.lines)
	}
	view.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateLaunching, StateRunning, StateSucceeded, StateIdle}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestOrchestrator_FailedOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		lines     []string
		exitCode  int
		launchErr error
		wantClass pipeline.ErrorClass
	}{
		{
			name:      "non-zero exit",
			lines:     []string{"/a.png(1,1): error TX1: bad"},
			exitCode:  1,
			wantClass: pipeline.ErrorClassBuild,
		},
		{
			name:      "terminated with zero exit",
			lines:     []string{"/a.png", "Build terminated!"},
			wantClass: pipeline.ErrorClassProcess,
		},
		{
			name:      "launch failure",
			launchErr: errors.New("no such file"),
			wantClass: pipeline.ErrorClassProcess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := newFakeLauncher(tt.lines...)
			launcher.exitCode = tt.exitCode
			launcher.launchErr = tt.launchErr

			o := New(Config{ToolPath: "mgcb", WorkDir: t.TempDir()}, WithLauncher(launcher))
			h, err := o.Build(context.Background(), testProject(t), Request{})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			res := waitResult(t, h)

			if res.State != StateFailed {
				t.Fatalf("State = %s, want failed", res.State)
			}
			if !pipeline.IsClass(res.Err, tt.wantClass) {
				t.Errorf("Err = %v, want class %s", res.Err, tt.wantClass)
			}
			if o.State() != StateIdle {
				t.Errorf("orchestrator state = %s, want idle", o.State())
			}
		})
	}
}

func TestOrchestrator_RejectsConcurrentBuild(t *testing.T) {
	launcher := newFakeLauncher("/a.png")
	launcher.hold = true

	o := New(Config{ToolPath: "mgcb", WorkDir: t.TempDir()}, WithLauncher(launcher))
	p := testProject(t)

	h, err := o.Build(context.Background(), p, Request{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	<-launcher.launched

	if _, err := o.Build(context.Background(), p, Request{Mode: ModeRebuild}); !errors.Is(err, pipeline.ErrBuildInProgress) {
		t.Fatalf("second Build() error = %v, want ErrBuildInProgress", err)
	}
	if !o.State().Active() {
		t.Errorf("state = %s, want active", o.State())
	}

	close(launcher.release)
	if res := waitResult(t, h); res.State != StateSucceeded {
		t.Errorf("State = %s, want succeeded", res.State)
	}
	if n := launcher.callCount(); n != 1 {
		t.Errorf("launcher called %d times, want 1", n)
	}

	// Idle again, so a new build is accepted.
	launcher.hold = false
	h, err = o.Build(context.Background(), p, Request{})
	if err != nil {
		t.Fatalf("third Build() error = %v", err)
	}
	waitResult(t, h)
}

func TestOrchestrator_Cancel(t *testing.T) {
	launcher := newFakeLauncher("/a.png")
	launcher.hold = true

	o := New(Config{ToolPath: "mgcb", WorkDir: t.TempDir()}, WithLauncher(launcher))

	if err := o.Cancel(); !errors.Is(err, pipeline.ErrNotRunning) {
		t.Fatalf("Cancel() while idle error = %v, want ErrNotRunning", err)
	}

	h, err := o.Build(context.Background(), testProject(t), Request{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	proc := <-launcher.launched

	if err := o.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	res := waitResult(t, h)

	if res.State != StateCancelled {
		t.Errorf("State = %s, want cancelled", res.State)
	}
	if !proc.wasKilled() {
		t.Error("process was not killed")
	}
	// The process is gone; killing it again is harmless.
	if err := proc.Kill(); err != nil {
		t.Errorf("second Kill() error = %v", err)
	}
	if err := o.Cancel(); !errors.Is(err, pipeline.ErrNotRunning) {
		t.Errorf("Cancel() after finish error = %v, want ErrNotRunning", err)
	}
	close(launcher.release)
}

type recordingHistory struct {
	mu      sync.Mutex
	results []*Result
}

func (h *recordingHistory) RecordBuild(ctx context.Context, r *Result) error {
	h.mu.Lock()
	h.results = append(h.results, r)
	h.mu.Unlock()
	return nil
}

type countingRecorder struct {
	mu          sync.Mutex
	started     int
	completed   []string
	diagnostics int
}

func (r *countingRecorder) RecordBuildStarted(mode string) {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordBuildCompleted(mode, status string, duration time.Duration) {
	r.mu.Lock()
	r.completed = append(r.completed, mode+":"+status)
	r.mu.Unlock()
}

func (r *countingRecorder) RecordBuildDiagnostic(severity string) {
	r.mu.Lock()
	r.diagnostics++
	r.mu.Unlock()
}

func TestOrchestrator_HistoryAndMetrics(t *testing.T) {
	launcher := newFakeLauncher("/a.png(1,1): error TX1: bad", "more")
	launcher.exitCode = 2
	hist := &recordingHistory{}
	rec := &countingRecorder{}

	o := New(Config{ToolPath: "mgcb", WorkDir: t.TempDir()},
		WithLauncher(launcher), WithHistory(hist), WithRecorder(rec))
	h, err := o.Build(context.Background(), testProject(t), Request{Mode: ModeRebuild})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	res := waitResult(t, h)

	if len(hist.results) != 1 || hist.results[0] != res {
		t.Fatalf("history recorded %d results", len(hist.results))
	}
	if res.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", res.ExitCode)
	}
	if rec.started != 1 || rec.diagnostics != 1 {
		t.Errorf("started = %d, diagnostics = %d", rec.started, rec.diagnostics)
	}
	if len(rec.completed) != 1 || rec.completed[0] != "rebuild:failed" {
		t.Errorf("completed = %v", rec.completed)
	}
	if a := res.Collector.Asset("/a.png"); a == nil || a.Diagnostics[0].Message != "TX1: bad\nmore" {
		t.Errorf("asset = %+v", a)
	}
	if res.Events[1].Kind != buildlog.EventDiagnosticContinuation {
		t.Errorf("Events[1] = %s", res.Events[1].Kind)
	}
}

func TestLoopDispatcher(t *testing.T) {
	d := NewLoopDispatcher()
	var got []int
	for i := range 3 {
		d.Dispatch(func() { got = append(got, i) })
	}
	if n := d.RunPending(); n != 3 {
		t.Fatalf("RunPending() = %d, want 3", n)
	}
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Errorf("callbacks ran as %v", got)
	}

	d.Dispatch(func() { got = append(got, 3) })
	d.Close()
	d.Run(context.Background())
	if len(got) != 4 {
		t.Errorf("Run did not drain queue: %v", got)
	}

	d.Dispatch(func() { got = append(got, 99) })
	if n := d.RunPending(); n != 0 {
		t.Errorf("dispatch after Close queued %d callbacks", n)
	}
}

func TestLoopDispatcher_Ready(t *testing.T) {
	d := NewLoopDispatcher()
	select {
	case <-d.Ready():
		t.Fatal("Ready signalled with an empty queue")
	default:
	}

	ran := false
	d.Dispatch(func() { ran = true })
	select {
	case <-d.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready not signalled after Dispatch")
	}
	d.RunPending()
	if !ran {
		t.Error("callback did not run")
	}
}
