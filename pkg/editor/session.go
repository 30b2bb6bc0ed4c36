// Package editor ties the project model, type registry, command history
// and build orchestrator into one editing session.
//
// A Session is owned by a single goroutine. Background work (build
// progress, manifest changes) reaches it through the configured
// dispatcher, which must deliver callbacks on that goroutine. Without
// WithDispatcher the session queues them itself; the owner drains the
// queue with RunPending or Wait.
package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/contentkit/pkg/actions"
	"github.com/openfroyo/contentkit/pkg/builder"
	"github.com/openfroyo/contentkit/pkg/config"
	"github.com/openfroyo/contentkit/pkg/extensions/standard"
	"github.com/openfroyo/contentkit/pkg/history"
	"github.com/openfroyo/contentkit/pkg/pipeline"
	"github.com/openfroyo/contentkit/pkg/project"
	"github.com/openfroyo/contentkit/pkg/registry"
	"github.com/openfroyo/contentkit/pkg/stores"
	"github.com/openfroyo/contentkit/pkg/telemetry"
)

// Session is an open project.
type Session struct {
	path string
	cfg  *config.Config

	project  *project.Project
	registry *registry.Registry
	stack    *history.Stack
	builder  *builder.Orchestrator
	env      *actions.Env

	view       history.View
	dispatcher builder.Dispatcher
	loop       *builder.LoopDispatcher
	launcher   builder.Launcher
	tel        *telemetry.Telemetry
	store      stores.Store
	logger     zerolog.Logger
	loggerSet  bool

	extensionRefs []string
	templates     []actions.Template

	watcher  *registry.Watcher
	watchCtx context.Context
	watched  []string

	dirty bool
}

// Option configures a Session.
type Option func(*Session)

// WithView sets the presentation layer notified of model changes.
func WithView(v history.View) Option {
	return func(s *Session) { s.view = v }
}

// WithDispatcher sets how background callbacks reach the session goroutine.
// builder.ImmediateDispatcher runs them on whatever goroutine produced
// them and is only safe with a view and listeners that lock.
func WithDispatcher(d builder.Dispatcher) Option {
	return func(s *Session) { s.dispatcher = d }
}

// WithLauncher replaces the build process launcher.
func WithLauncher(l builder.Launcher) Option {
	return func(s *Session) { s.launcher = l }
}

// WithTelemetry wires logging, metrics and tracing.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Session) { s.tel = t }
}

// WithStore records finished builds in the history store.
func WithStore(st stores.Store) Option {
	return func(s *Session) { s.store = st }
}

// WithLogger overrides the telemetry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
		s.loggerSet = true
	}
}

// Open loads the project file at path and resolves its items.
func Open(ctx context.Context, path string, cfg *config.Config, opts ...Option) (*Session, error) {
	p, err := project.Load(path)
	if err != nil {
		return nil, err
	}
	return newSession(ctx, path, p, cfg, opts)
}

// Create starts a new, unsaved project that will be written to path.
func Create(ctx context.Context, path string, cfg *config.Config, opts ...Option) (*Session, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, pipeline.NewError(pipeline.ErrorClassValidation, "project file already exists", nil).
			WithItem(path).WithCode(pipeline.ErrCodeAlreadyExists)
	}
	dir, err := projectDir(path)
	if err != nil {
		return nil, err
	}
	s, err := newSession(ctx, path, project.New(dir), cfg, opts)
	if err != nil {
		return nil, err
	}
	s.dirty = true
	return s, nil
}

func newSession(ctx context.Context, path string, p *project.Project, cfg *config.Config, opts []Option) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Session{
		path:       path,
		cfg:        cfg,
		project:    p,
		view:     history.NopView{},
		launcher: builder.ExecLauncher{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.loop = builder.NewLoopDispatcher()
		s.dispatcher = s.loop
	}
	if !s.loggerSet && s.tel != nil {
		s.logger = s.tel.Logger.Zerolog()
	}
	s.logger = s.logger.With().Str("component", "editor").Logger()

	for _, dir := range cfg.Extensions.Dirs {
		refs, err := registry.ScanDirectory(dir)
		if err != nil {
			s.logger.Warn().Err(err).Str("dir", dir).Msg("Skipping extension directory")
			continue
		}
		s.extensionRefs = append(s.extensionRefs, refs...)
	}

	if cfg.Extensions.TemplatesFile != "" {
		templates, err := actions.LoadTemplates(cfg.Extensions.TemplatesFile)
		if err != nil {
			return nil, err
		}
		s.templates = templates
	}

	s.registry = registry.New(
		registry.WithBuiltin(standard.ModuleName, standard.Register),
		registry.WithLogger(s.logger),
	)

	stackOpts := []history.StackOption{history.WithLogger(s.logger)}
	if s.tel != nil {
		stackOpts = append(stackOpts, history.WithRecorder(s.tel.Metrics))
	}
	s.stack = history.NewStack(s.view, stackOpts...)

	s.env = &actions.Env{
		Project:  p,
		Resolver: s.registry,
		View:     s.view,
		ReloadTypes: func() error {
			return s.ReloadTypes(context.Background())
		},
	}

	builderOpts := []builder.Option{
		builder.WithLauncher(s.launcher),
		builder.WithDispatcher(s.dispatcher),
		builder.WithView(s.view),
		builder.WithLogger(s.logger),
		builder.WithListener(s.onBuildUpdate),
	}
	if s.tel != nil {
		builderOpts = append(builderOpts,
			builder.WithRecorder(s.tel.Metrics),
			builder.WithTracer(s.tel.Tracer),
		)
	}
	if s.store != nil {
		builderOpts = append(builderOpts, builder.WithHistory(s.store))
	}
	s.builder = builder.New(builder.Config{
		ToolPath:          cfg.Builder.ToolPath,
		ExtraArgs:         cfg.Builder.ExtraArgs,
		WorkDir:           cfg.Builder.WorkDir,
		KeepResponseFiles: cfg.Builder.KeepResponseFiles,
	}, builderOpts...)

	if err := s.ReloadTypes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func projectDir(path string) (string, error) {
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve project directory: %w", err)
	}
	return dir, nil
}

// Path returns the project file path.
func (s *Session) Path() string { return s.path }

// Project returns the project model. Mutate it only through session
// operations so changes are undoable.
func (s *Session) Project() *project.Project { return s.project }

// Registry returns the session's type registry.
func (s *Session) Registry() *registry.Registry { return s.registry }

// Stack returns the command history.
func (s *Session) Stack() *history.Stack { return s.stack }

// Builder returns the build orchestrator.
func (s *Session) Builder() *builder.Orchestrator { return s.builder }

// Templates returns the configured item templates.
func (s *Session) Templates() []actions.Template { return s.templates }

// Dirty reports whether the project changed since it was opened or saved.
func (s *Session) Dirty() bool { return s.dirty }

// References returns project references plus manifests found in the
// configured extension directories.
func (s *Session) References() []string {
	refs := slices.Clone(s.project.References)
	return append(refs, s.extensionRefs...)
}

// ReloadTypes reloads the registry from the current references and
// re-resolves every item. Extensions that fail to load are logged and
// skipped; only cancellation is returned as an error.
func (s *Session) ReloadTypes(ctx context.Context) error {
	refs := s.References()

	var loadErr error
	if s.tel != nil {
		spanCtx, span := s.tel.Tracer.StartRegistrySpan(ctx, len(refs))
		loadErr = s.registry.Load(spanCtx, s.project.Dir, refs)
		if loadErr != nil {
			telemetry.RecordError(span, loadErr)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	} else {
		loadErr = s.registry.Load(ctx, s.project.Dir, refs)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if loadErr != nil {
		s.logger.Warn().Err(loadErr).Msg("Some extensions failed to load")
	}

	s.project.ResolveAll(s.registry)
	unresolved := s.Unresolved()
	for _, item := range unresolved {
		s.logger.Warn().
			Str("item", item.DestinationPath).
			Str("importer", item.Importer.String()).
			Str("processor", item.Processor.String()).
			Msg("Content item has unresolved types")
	}

	if s.tel != nil {
		s.tel.Metrics.RecordRegistryLoad(len(s.registry.Importers()), len(s.registry.Processors()), loadErr)
		s.tel.Metrics.SetUnresolvedItems(len(unresolved))
	}
	s.view.UpdateProperties()

	if s.watcher != nil {
		s.rewatch()
	}
	return nil
}

// Unresolved returns the items whose importer or processor is missing.
func (s *Session) Unresolved() []*project.ContentItem {
	var out []*project.ContentItem
	for _, item := range s.project.Items {
		if item.Importer.IsMissing() || item.Processor.IsMissing() {
			out = append(out, item)
		}
	}
	return out
}

// execute runs a command once and records it.
func (s *Session) execute(cmd history.Command) error {
	if err := cmd.Do(); err != nil {
		if r, ok := s.recorder(); ok {
			r.RecordCommand(commandKind(cmd), "do", false)
		}
		return err
	}
	s.stack.Add(cmd)
	s.dirty = true
	return nil
}

func (s *Session) recorder() (history.Recorder, bool) {
	if s.tel == nil {
		return nil, false
	}
	return s.tel.Metrics, true
}

func commandKind(cmd history.Command) string {
	if k, ok := cmd.(interface{ Kind() string }); ok {
		return k.Kind()
	}
	return fmt.Sprintf("%T", cmd)
}

// Include adds files to the project.
func (s *Session) Include(entries ...actions.IncludeEntry) ([]*project.ContentItem, error) {
	a := actions.NewIncludeAction(s.env, entries)
	if err := s.execute(a); err != nil {
		return nil, err
	}
	return a.Items(), nil
}

// IncludeTemplate creates dest from the named template.
func (s *Session) IncludeTemplate(name, dest string) (*project.ContentItem, error) {
	t, ok := actions.FindTemplate(s.templates, name)
	if !ok {
		return nil, pipeline.NewError(pipeline.ErrorClassValidation, fmt.Sprintf("unknown template %q", name), nil).
			WithCode(pipeline.ErrCodeNotFound)
	}
	items, err := s.Include(actions.IncludeEntry{Destination: dest, Mode: actions.IncludeTemplate, Template: t})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// Exclude removes items, or every item under a folder, from the project.
func (s *Session) Exclude(paths ...string) error {
	items, err := s.lookup(paths)
	if err != nil {
		return err
	}
	a, err := actions.NewExcludeAction(s.env, items)
	if err != nil {
		return err
	}
	return s.execute(a)
}

// Move renames an item or folder. newName is a leaf name or a full
// destination path.
func (s *Session) Move(oldPath, newName string) error {
	a, err := actions.NewMoveAction(s.env, oldPath, newName)
	if err != nil {
		return err
	}
	return s.execute(a)
}

// Project-level property names accepted by SetProperty.
const (
	PropOutputDir       = "output_dir"
	PropIntermediateDir = "intermediate_dir"
	PropPlatform        = "platform"
	PropProfile         = "profile"
	PropConfig          = "config"
	PropReferences      = "references"
)

// Item-level property names accepted by SetProperty. Any other name is
// taken as a processor parameter.
const (
	PropImporter    = "importer"
	PropProcessor   = "processor"
	PropBuildAction = "action"
)

// SetProperty changes one property. With no paths it targets the project;
// otherwise it targets the named items or folders. References are given
// comma-separated.
func (s *Session) SetProperty(paths []string, name, value string) error {
	key := strings.ToLower(strings.TrimSpace(name))

	if len(paths) == 0 {
		cmd, err := s.projectProperty(key, value)
		if err != nil {
			return err
		}
		return s.execute(cmd)
	}

	items, err := s.lookup(paths)
	if err != nil {
		return err
	}

	var cmd history.Command
	switch key {
	case PropImporter:
		cmd = actions.SetImporter(s.env, items, value)
	case PropProcessor:
		cmd = actions.SetProcessor(s.env, items, value)
	case PropBuildAction, "build_action":
		action, err := pipeline.ParseBuildAction(value)
		if err != nil {
			return err
		}
		cmd = actions.SetBuildAction(s.env, items, action)
	default:
		cmd = actions.SetParam(s.env, items, name, value)
	}
	return s.execute(cmd)
}

func (s *Session) projectProperty(key, value string) (history.Command, error) {
	switch key {
	case PropOutputDir:
		return actions.SetOutputDir(s.env, value), nil
	case PropIntermediateDir:
		return actions.SetIntermediateDir(s.env, value), nil
	case PropPlatform:
		return actions.SetPlatform(s.env, value), nil
	case PropProfile:
		return actions.SetProfile(s.env, value), nil
	case PropConfig:
		return actions.SetConfig(s.env, value), nil
	case PropReferences:
		var refs []string
		for _, ref := range strings.Split(value, ",") {
			if ref = strings.TrimSpace(ref); ref != "" {
				refs = append(refs, ref)
			}
		}
		return actions.SetReferences(s.env, refs), nil
	default:
		return nil, pipeline.NewError(pipeline.ErrorClassValidation, fmt.Sprintf("unknown project property %q", key), nil)
	}
}

// lookup resolves item or folder paths to items.
func (s *Session) lookup(paths []string) ([]*project.ContentItem, error) {
	var items []*project.ContentItem
	seen := make(map[*project.ContentItem]bool)
	for _, p := range paths {
		found := s.project.ItemsUnder(p)
		if item := s.project.FindItem(p); item != nil {
			found = []*project.ContentItem{item}
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("%s: %w", p, pipeline.ErrItemNotFound)
		}
		for _, item := range found {
			if !seen[item] {
				seen[item] = true
				items = append(items, item)
			}
		}
	}
	return items, nil
}

// Undo reverses the most recent edit.
func (s *Session) Undo() error {
	if !s.stack.CanUndo() {
		return nil
	}
	if err := s.stack.Undo(); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// Redo re-applies the most recently undone edit.
func (s *Session) Redo() error {
	if !s.stack.CanRedo() {
		return nil
	}
	if err := s.stack.Redo(); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// Save writes the project file.
func (s *Session) Save(ctx context.Context) error {
	op := telemetry.StartOperation(ctx, "project.save")
	err := s.project.Save(s.path)
	op.End(err)
	if err != nil {
		return err
	}
	s.dirty = false
	s.logger.Info().Str("path", s.path).Int("items", len(s.project.Items)).Msg("Project saved")
	return nil
}

// Build starts a build of the project. Only one build runs at a time.
func (s *Session) Build(ctx context.Context, req builder.Request) (*builder.Handle, error) {
	return s.builder.Build(ctx, s.project, req)
}

// Wait blocks until the build behind h finishes or ctx is done. Queued
// callbacks run on the calling goroutine meanwhile, so the view and the
// history stack have seen the final update when Wait returns.
func (s *Session) Wait(ctx context.Context, h *builder.Handle) (*builder.Result, error) {
	if s.loop == nil {
		return h.Wait(ctx)
	}
	for {
		select {
		case <-h.Done():
			s.loop.RunPending()
			return h.Wait(ctx)
		case <-s.loop.Ready():
			s.loop.RunPending()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// RunPending runs the callbacks queued for the session goroutine and
// returns how many ran. With a dispatcher set by WithDispatcher it does
// nothing.
func (s *Session) RunPending() int {
	if s.loop == nil {
		return 0
	}
	return s.loop.RunPending()
}

// Cancel stops the running build. Cancelling when no build is running,
// including one that already finished, is a no-op.
func (s *Session) Cancel() error {
	if err := s.builder.Cancel(); err != nil && !errors.Is(err, pipeline.ErrNotRunning) {
		return err
	}
	return nil
}

// onBuildUpdate runs on the session goroutine.
func (s *Session) onBuildUpdate(u builder.Update) {
	s.stack.SetBuilding(u.State.Active())
	if u.Result == nil || s.store == nil || s.cfg.History.Retain <= 0 {
		return
	}
	n, err := s.store.PruneBuilds(context.Background(), u.Result.Project, s.cfg.History.Retain)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to prune build history")
		return
	}
	if n > 0 {
		s.logger.Debug().Int64("pruned", n).Msg("Pruned build history")
	}
}

// WatchReferences reloads types whenever a referenced manifest changes on
// disk, until ctx is done or Close is called. Reloads are delivered
// through the session dispatcher.
func (s *Session) WatchReferences(ctx context.Context) error {
	if s.watcher != nil {
		return nil
	}
	s.watcher = registry.NewWatcher(s.logger)
	s.watchCtx = ctx
	return s.rewatch()
}

func (s *Session) rewatch() error {
	paths := s.registry.ManifestPaths()
	if s.watched != nil && slices.Equal(paths, s.watched) {
		return nil
	}
	s.watched = paths
	if s.watched == nil {
		s.watched = []string{}
	}
	return s.watcher.Watch(s.watchCtx, paths, func() {
		s.dispatcher.Dispatch(func() {
			s.logger.Info().Msg("Extension manifests changed, reloading types")
			if err := s.ReloadTypes(s.watchCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Msg("Failed to reload types")
			}
		})
	})
}

// Close stops watching and clears history. A running build is cancelled.
func (s *Session) Close() error {
	var errs []error
	if s.builder.State().Active() {
		errs = append(errs, s.Cancel())
	}
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
		s.watcher = nil
	}
	if s.loop != nil {
		s.loop.Close()
	}
	s.stack.Clear()
	return errors.Join(errs...)
}
