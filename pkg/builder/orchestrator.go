// Package builder drives the external content build tool: it serializes
// the project into a response file, launches the tool, classifies its
// output and reports progress to the presentation layer.
//
// Only one build runs at a time per Orchestrator. Callbacks are delivered
// through a Dispatcher so they arrive on the presentation goroutine.
package builder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/contentkit/pkg/buildlog"
	"github.com/openfroyo/contentkit/pkg/history"
	"github.com/openfroyo/contentkit/pkg/pipeline"
	"github.com/openfroyo/contentkit/pkg/project"
)

// State of the orchestrator.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether a build is in progress.
func (s State) Active() bool {
	return s == StateLaunching || s == StateRunning
}

// Result is the outcome of one build.
type Result struct {
	ID string

	// Project is the project directory.
	Project  string
	Mode     Mode
	Items    []string
	State    State
	ExitCode int
	Started  time.Time
	Finished time.Time

	// Events holds every classified line in order.
	Events    []buildlog.Event
	Collector *buildlog.Collector

	// Err explains a Failed or Cancelled result.
	Err error
}

// Duration returns the wall time of the build.
func (r *Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Update is delivered to listeners for every state change and every line.
type Update struct {
	BuildID string
	State   State

	// Event is set for output lines.
	Event *buildlog.Event

	// Result is set when the build reached its final state.
	Result *Result
}

// Recorder receives build metrics. *telemetry.Metrics implements it.
type Recorder interface {
	RecordBuildStarted(mode string)
	RecordBuildCompleted(mode, status string, duration time.Duration)
	RecordBuildDiagnostic(severity string)
}

// History persists finished builds. *stores.SQLiteStore implements it.
type History interface {
	RecordBuild(ctx context.Context, r *Result) error
}

// Tracer starts spans. Both trace.Tracer and *telemetry.Tracer satisfy it.
type Tracer interface {
	Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

// Config is the build tool invocation.
type Config struct {
	// ToolPath is the build tool executable.
	ToolPath string

	// ExtraArgs are passed before the response file argument.
	ExtraArgs []string

	// WorkDir holds generated response files. Defaults to os.TempDir().
	WorkDir string

	// KeepResponseFiles disables removal after the build.
	KeepResponseFiles bool
}

// Orchestrator runs builds one at a time.
type Orchestrator struct {
	config     Config
	launcher   Launcher
	dispatcher Dispatcher
	view       history.View
	listeners  []func(Update)
	recorder   Recorder
	history    History
	tracer     Tracer
	logger     zerolog.Logger

	mu      sync.Mutex
	state   State
	current *run
	last    *Result
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLauncher replaces the process launcher.
func WithLauncher(l Launcher) Option {
	return func(o *Orchestrator) { o.launcher = l }
}

// WithDispatcher sets how callbacks reach the presentation goroutine.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithView appends every output line to the view's log.
func WithView(v history.View) Option {
	return func(o *Orchestrator) { o.view = v }
}

// WithListener adds a callback for updates.
func WithListener(fn func(Update)) Option {
	return func(o *Orchestrator) { o.listeners = append(o.listeners, fn) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithHistory sets where finished builds are stored.
func WithHistory(h History) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.With().Str("component", "builder").Logger()
	}
}

// New creates an idle orchestrator.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config:     cfg,
		launcher:   ExecLauncher{},
		dispatcher: ImmediateDispatcher{},
		view:       history.NopView{},
		tracer:     otel.Tracer("contentkit/builder"),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.config.WorkDir == "" {
		o.config.WorkDir = os.TempDir()
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Last returns the result of the most recent finished build, or nil.
func (o *Orchestrator) Last() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Build serializes p and starts the tool in the background. It must be
// called from the goroutine that owns p. A second call while a build is
// active fails with pipeline.ErrBuildInProgress and starts nothing.
func (o *Orchestrator) Build(ctx context.Context, p *project.Project, req Request) (*Handle, error) {
	o.mu.Lock()
	if o.state.Active() {
		o.mu.Unlock()
		return nil, pipeline.ErrBuildInProgress
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		cancel: cancel,
		done:   make(chan struct{}),
		result: &Result{
			ID:        uuid.NewString(),
			Project:   p.Dir,
			Mode:      req.Mode,
			Items:     req.Items,
			Started:   time.Now(),
			Collector: buildlog.NewCollector(),
		},
	}
	o.state = StateLaunching
	o.current = r
	o.mu.Unlock()

	o.logger.Info().Str("build_id", r.result.ID).Str("mode", req.Mode.String()).Msg("Build requested")
	if o.recorder != nil {
		o.recorder.RecordBuildStarted(req.Mode.String())
	}
	o.notify(Update{BuildID: r.result.ID, State: StateLaunching})

	// Serialization reads the model, so it happens here on the owner's
	// goroutine rather than in the background.
	responseFile, err := o.writeResponseFile(p, req)
	if err != nil {
		o.finish(runCtx, r, StateFailed, -1, err)
		cancel()
		return nil, err
	}

	go o.execute(runCtx, r, p.Dir, responseFile)
	return &Handle{run: r}, nil
}

// Cancel requests termination of the active build. The process having
// already exited is not an error. With no active build it returns
// pipeline.ErrNotRunning.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r == nil {
		return pipeline.ErrNotRunning
	}
	o.logger.Info().Str("build_id", r.result.ID).Msg("Build cancel requested")
	return r.requestCancel()
}

func (o *Orchestrator) writeResponseFile(p *project.Project, req Request) (string, error) {
	f, err := os.CreateTemp(o.config.WorkDir, "ckit-*"+ResponseFileExt)
	if err != nil {
		return "", pipeline.NewError(pipeline.ErrorClassProcess, "failed to create response file", err)
	}
	if err := WriteResponseFile(f, p, req); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", pipeline.NewError(pipeline.ErrorClassProcess, "failed to write response file", err)
	}
	return f.Name(), nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, dir, responseFile string) {
	if !o.config.KeepResponseFiles {
		defer os.Remove(responseFile)
	}

	ctx, span := o.tracer.Start(ctx, "builder.build", trace.WithAttributes(
		attribute.String("build.id", r.result.ID),
		attribute.String("build.mode", r.result.Mode.String()),
		attribute.Int("build.items", len(r.result.Items)),
	))
	defer span.End()

	logger := o.logger.With().Str("build_id", r.result.ID).Logger()

	proc, err := o.launcher.Launch(ctx, Command{
		Path: o.config.ToolPath,
		Args: ToolArgs(responseFile, o.config.ExtraArgs),
		Dir:  dir,
	})
	if err != nil {
		state := StateFailed
		if r.isCancelled() || ctx.Err() != nil {
			state = StateCancelled
		}
		err = pipeline.NewError(pipeline.ErrorClassProcess, "failed to launch build tool", err).WithOperation("launch")
		o.endSpan(span, state, err)
		o.finish(ctx, r, state, -1, err)
		return
	}

	if !r.attach(proc) {
		// Cancelled while launching.
		_ = proc.Kill()
	}

	o.setState(StateRunning)
	o.notify(Update{BuildID: r.result.ID, State: StateRunning})
	logger.Info().Str("tool", o.config.ToolPath).Msg("Build running")

	parser := buildlog.NewParser()
	terminated := false
	scanner := bufio.NewScanner(proc.Output())
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if r.isCancelled() {
			continue
		}
		ev := parser.Parse(scanner.Text())
		r.result.Events = append(r.result.Events, ev)
		r.result.Collector.Add(ev)

		switch ev.Kind {
		case buildlog.EventTerminated:
			terminated = true
		case buildlog.EventDiagnostic:
			if o.recorder != nil {
				o.recorder.RecordBuildDiagnostic(string(ev.Severity))
			}
		case buildlog.EventUnrecognized:
			logger.Trace().Str("line", ev.Raw).Msg("Unrecognized build output")
		}
		o.notify(Update{BuildID: r.result.ID, State: StateRunning, Event: &ev})
	}
	scanErr := scanner.Err()

	code, waitErr := proc.Wait()

	state := StateSucceeded
	var buildErr error
	switch {
	case r.isCancelled() || ctx.Err() != nil:
		state = StateCancelled
		buildErr = pipeline.NewError(pipeline.ErrorClassProcess, "build cancelled", ctx.Err())
	case waitErr != nil:
		state = StateFailed
		buildErr = pipeline.NewError(pipeline.ErrorClassProcess, "build tool crashed", waitErr)
	case terminated:
		state = StateFailed
		buildErr = pipeline.NewError(pipeline.ErrorClassProcess, "build terminated", nil)
	case code != 0:
		state = StateFailed
		buildErr = pipeline.NewError(pipeline.ErrorClassBuild, fmt.Sprintf("build tool exited with code %d", code), nil).
			WithCode(fmt.Sprintf("EXIT_%d", code))
	case scanErr != nil:
		state = StateFailed
		buildErr = pipeline.NewError(pipeline.ErrorClassProcess, "failed to read build output", scanErr)
	}

	span.SetAttributes(attribute.Int("build.exit_code", code))
	o.endSpan(span, state, buildErr)
	o.finish(ctx, r, state, code, buildErr)
}

func (o *Orchestrator) endSpan(span trace.Span, state State, err error) {
	span.SetAttributes(attribute.String("build.state", state.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// finish records the final state, stores the result and returns to Idle.
func (o *Orchestrator) finish(ctx context.Context, r *run, state State, code int, err error) {
	res := r.result
	res.State = state
	res.ExitCode = code
	res.Finished = time.Now()
	res.Err = err

	logger := o.logger.With().Str("build_id", res.ID).Str("state", state.String()).Logger()
	if err != nil {
		logger.Warn().Err(err).Int("exit_code", code).Dur("duration", res.Duration()).Msg("Build finished")
	} else {
		logger.Info().Int("exit_code", code).Dur("duration", res.Duration()).Msg("Build finished")
	}

	if o.recorder != nil {
		o.recorder.RecordBuildCompleted(res.Mode.String(), state.String(), res.Duration())
	}
	if o.history != nil {
		if err := o.history.RecordBuild(context.WithoutCancel(ctx), res); err != nil {
			logger.Error().Err(err).Msg("Failed to record build history")
		}
	}

	o.mu.Lock()
	o.state = StateIdle
	o.current = nil
	o.last = res
	o.mu.Unlock()

	o.notify(Update{BuildID: res.ID, State: state, Result: res})
	o.notify(Update{BuildID: res.ID, State: StateIdle})
	close(r.done)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) notify(u Update) {
	o.dispatcher.Dispatch(func() {
		if u.Event != nil {
			o.view.OutputAppend(u.Event.Raw)
		}
		for _, fn := range o.listeners {
			fn(u)
		}
	})
}

// run is the mutable state of one build.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
	result *Result

	mu        sync.Mutex
	proc      Process
	cancelled bool
}

// attach records the process. It returns false if the build was cancelled
// before the process started.
func (r *run) attach(p Process) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proc = p
	return !r.cancelled
}

func (r *run) requestCancel() error {
	r.mu.Lock()
	r.cancelled = true
	proc := r.proc
	r.mu.Unlock()

	var err error
	if proc != nil {
		err = proc.Kill()
	}
	r.cancel()
	return err
}

func (r *run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Handle observes a started build.
type Handle struct {
	run *run
}

// ID returns the build ID.
func (h *Handle) ID() string { return h.run.result.ID }

// Done is closed when the build reaches its final state.
func (h *Handle) Done() <-chan struct{} { return h.run.done }

// Wait blocks until the build finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-h.run.done:
		return h.run.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
