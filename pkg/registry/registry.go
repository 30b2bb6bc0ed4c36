// Package registry implements the importer/processor type registry.
//
// Extension modules register explicitly: in-process modules supply a
// RegisterFunc, on-disk modules ship a YAML manifest next to the referenced
// module file. A Registry value is owned by one project session, so two
// projects with different references hold independent registries.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/contentkit/pkg/pipeline"
)

// Registry resolves importer and processor descriptions for content items.
type Registry struct {
	// mu protects the registry state.
	mu sync.RWMutex

	// builtin holds in-process modules that are always loaded, in
	// registration order.
	builtin      map[string]RegisterFunc
	builtinOrder []string

	// importers and processors are kept in load order; the first importer
	// accepting an extension wins.
	importers  []*pipeline.ImporterDescription
	processors []*pipeline.ProcessorDescription

	// modules maps module name to the manifest that registered it.
	modules map[string]*Manifest

	// manifestPaths lists on-disk manifests loaded by the last Load.
	manifestPaths []string

	loader *ManifestLoader
	logger zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithBuiltin adds an in-process module loaded on every Load.
func WithBuiltin(name string, fn RegisterFunc) Option {
	return func(r *Registry) {
		if _, exists := r.builtin[name]; !exists {
			r.builtinOrder = append(r.builtinOrder, name)
		}
		r.builtin[name] = fn
	}
}

// WithLogger sets the logger used for registration warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger.With().Str("component", "registry").Logger()
	}
}

// New creates an empty registry. Call Load to populate it.
func New(opts ...Option) *Registry {
	r := &Registry{
		builtin: make(map[string]RegisterFunc),
		modules: make(map[string]*Manifest),
		loader:  NewManifestLoader(""),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load rebuilds the registry from the builtin modules plus every referenced
// extension module. References are resolved relative to baseDir.
//
// A reference that fails to load is logged and skipped; its error is
// returned joined with the others, but the registry is still usable.
func (r *Registry) Load(ctx context.Context, baseDir string, references []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.importers = nil
	r.processors = nil
	r.modules = make(map[string]*Manifest)
	r.manifestPaths = nil
	r.loader.BaseDir = baseDir

	var errs []error

	for _, name := range r.builtinOrder {
		manifest, err := r.builtin[name]()
		if err != nil {
			errs = append(errs, fmt.Errorf("builtin module %s: %w", name, err))
			continue
		}
		if err := r.register(manifest); err != nil {
			errs = append(errs, fmt.Errorf("builtin module %s: %w", name, err))
		}
	}

	for _, ref := range references {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Builtins are already registered above.
		if r.isBuiltin(ref) {
			r.logger.Debug().Str("reference", ref).Msg("Reference names a builtin module")
			continue
		}

		path := r.loader.Resolve(ref)
		manifest, err := r.loader.LoadFromFile(path)
		if err != nil {
			r.logger.Warn().Err(err).Str("reference", ref).Msg("Failed to load extension manifest")
			errs = append(errs, fmt.Errorf("reference %s: %w", ref, err))
			continue
		}
		r.manifestPaths = append(r.manifestPaths, path)
		if err := r.register(manifest); err != nil {
			r.logger.Warn().Err(err).Str("reference", ref).Msg("Failed to register extension")
			errs = append(errs, fmt.Errorf("reference %s: %w", ref, err))
		}
	}

	r.logger.Debug().
		Int("importers", len(r.importers)).
		Int("processors", len(r.processors)).
		Int("modules", len(r.modules)).
		Msg("Registry loaded")

	return errors.Join(errs...)
}

// isBuiltin reports whether a reference names an in-process module, by
// file name without extension ("libs/Foo.Bar.dll" -> "Foo.Bar").
func (r *Registry) isBuiltin(ref string) bool {
	if _, ok := r.builtin[ref]; ok {
		return true
	}
	base := filepath.Base(filepath.FromSlash(ref))
	_, ok := r.builtin[strings.TrimSuffix(base, filepath.Ext(base))]
	return ok
}

// Register adds a module's importers and processors.
func (r *Registry) Register(manifest *Manifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(manifest)
}

func (r *Registry) register(manifest *Manifest) error {
	if manifest == nil {
		return pipeline.NewError(pipeline.ErrorClassValidation, "nil manifest", nil)
	}
	if err := r.loader.Validate(manifest); err != nil {
		return err
	}
	if _, exists := r.modules[manifest.Name]; exists {
		return pipeline.NewError(pipeline.ErrorClassValidation,
			fmt.Sprintf("module %s already registered", manifest.Name), nil).
			WithCode(pipeline.ErrCodeAlreadyExists)
	}

	importers := make([]*pipeline.ImporterDescription, 0, len(manifest.Importers))
	for i := range manifest.Importers {
		imp := manifest.Importers[i]
		imp.Module = manifest.Name
		imp.Extensions = append([]string(nil), imp.Extensions...)
		if imp.DisplayName == "" {
			imp.DisplayName = imp.Name
		}
		if r.findImporterByName(imp.Name) != nil {
			r.logger.Warn().Str("importer", imp.Name).Str("module", manifest.Name).
				Msg("Importer already registered, keeping first")
			continue
		}
		importers = append(importers, &imp)
	}

	processors := make([]*pipeline.ProcessorDescription, 0, len(manifest.Processors))
	for i := range manifest.Processors {
		proc := manifest.Processors[i]
		proc.Module = manifest.Name
		if proc.DisplayName == "" {
			proc.DisplayName = proc.Name
		}
		props := make([]pipeline.PropertyDescription, len(proc.Properties))
		for j, prop := range proc.Properties {
			prop.Values = append([]string(nil), prop.Values...)
			if prop.DisplayName == "" {
				prop.DisplayName = prop.Name
			}
			var def any
			var err error
			if prop.Default == nil {
				def, err = zeroValue(&prop)
			} else {
				def, err = ConvertValue(&prop, prop.Default)
			}
			if err != nil {
				return pipeline.NewError(pipeline.ErrorClassValidation,
					fmt.Sprintf("processor %s property %s default", proc.Name, prop.Name), err)
			}
			prop.Default = def
			props[j] = prop
		}
		proc.Properties = props
		if r.findProcessorByName(proc.Name) != nil {
			r.logger.Warn().Str("processor", proc.Name).Str("module", manifest.Name).
				Msg("Processor already registered, keeping first")
			continue
		}
		processors = append(processors, &proc)
	}

	r.importers = append(r.importers, importers...)
	r.processors = append(r.processors, processors...)
	r.modules[manifest.Name] = manifest

	r.logger.Debug().
		Str("module", manifest.Name).
		Int("importers", len(importers)).
		Int("processors", len(processors)).
		Msg("Module registered")

	return nil
}

// zeroValue is the default for a property whose manifest gives none.
func zeroValue(prop *pipeline.PropertyDescription) (any, error) {
	switch prop.Type {
	case pipeline.PropertyString:
		return "", nil
	case pipeline.PropertyBool:
		return false, nil
	case pipeline.PropertyInt:
		return int64(0), nil
	case pipeline.PropertyFloat:
		return float64(0), nil
	case pipeline.PropertyColor:
		return pipeline.Color{A: 255}, nil
	case pipeline.PropertyEnum:
		if len(prop.Values) == 0 {
			return nil, fmt.Errorf("enum has no values")
		}
		return prop.Values[0], nil
	default:
		return nil, fmt.Errorf("unsupported property type %q", prop.Type)
	}
}

// FindImporter resolves an importer by internal type name, then by display
// name. When name is empty it returns the first importer accepting ext
// (case-insensitive). It returns nil when nothing matches.
func (r *Registry) FindImporter(name, ext string) *pipeline.ImporterDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name != "" {
		if imp := r.findImporterByName(name); imp != nil {
			return imp
		}
		for _, imp := range r.importers {
			if imp.DisplayName == name {
				return imp
			}
		}
		return nil
	}

	for _, imp := range r.importers {
		if imp.Accepts(ext) {
			return imp
		}
	}
	return nil
}

// FindProcessor resolves a processor by internal type name, then by display
// name. When name is empty it returns the importer's default processor.
// It returns nil when nothing matches.
func (r *Registry) FindProcessor(name string, importer *pipeline.ImporterDescription) *pipeline.ProcessorDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name != "" {
		if proc := r.findProcessorByName(name); proc != nil {
			return proc
		}
		for _, proc := range r.processors {
			if proc.DisplayName == name {
				return proc
			}
		}
		return nil
	}

	if importer != nil && importer.DefaultProcessor != "" {
		return r.findProcessorByName(importer.DefaultProcessor)
	}
	return nil
}

// CompatibleProcessors returns the processors accepting importer's output.
func (r *Registry) CompatibleProcessors(importer *pipeline.ImporterDescription) []*pipeline.ProcessorDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*pipeline.ProcessorDescription
	for _, proc := range r.processors {
		if importer == nil || proc.InputType == importer.OutputType {
			out = append(out, proc)
		}
	}
	return out
}

func (r *Registry) findImporterByName(name string) *pipeline.ImporterDescription {
	for _, imp := range r.importers {
		if imp.Name == name {
			return imp
		}
	}
	return nil
}

func (r *Registry) findProcessorByName(name string) *pipeline.ProcessorDescription {
	for _, proc := range r.processors {
		if proc.Name == name {
			return proc
		}
	}
	return nil
}

// Importers returns all registered importers in load order.
func (r *Registry) Importers() []*pipeline.ImporterDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*pipeline.ImporterDescription(nil), r.importers...)
}

// Processors returns all registered processors in load order.
func (r *Registry) Processors() []*pipeline.ProcessorDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*pipeline.ProcessorDescription(nil), r.processors...)
}

// Modules returns the names of the loaded modules, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ManifestPaths returns the on-disk manifests loaded by the last Load.
func (r *Registry) ManifestPaths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.manifestPaths...)
}

// ScanDirectory returns the manifest files directly inside dir, suitable
// for use as project references.
func ScanDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ManifestExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}
