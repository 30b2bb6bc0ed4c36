package project

import (
	"fmt"
	"maps"
	"path"
	"strings"

	"github.com/openfroyo/contentkit/pkg/pipeline"
	"github.com/openfroyo/contentkit/pkg/registry"
)

// Resolver answers importer and processor queries. *registry.Registry
// implements it.
type Resolver interface {
	FindImporter(name, ext string) *pipeline.ImporterDescription
	FindProcessor(name string, importer *pipeline.ImporterDescription) *pipeline.ProcessorDescription
}

// ContentItem is one source asset tracked by the project.
type ContentItem struct {
	// SourcePath is the original file, slash-separated, relative to the
	// project directory or absolute.
	SourcePath string

	// DestinationPath is the logical project-relative path of the built asset.
	DestinationPath string

	BuildAction pipeline.BuildAction
	Importer    pipeline.Importer
	Processor   pipeline.Processor

	// Params holds exactly the keys of the resolved processor's schema.
	Params map[string]any

	// unresolved keeps parameter text while the processor is missing so a
	// later resolution can convert it instead of losing it.
	unresolved map[string]string
}

// NewItem creates a content item for a source file. Call ResolveTypes (or
// Project.ResolveAll) to fill in the importer and processor.
func NewItem(source, destination string) *ContentItem {
	source = path.Clean(strings.ReplaceAll(source, "\\", "/"))
	if destination == "" {
		destination = source
	}
	return &ContentItem{
		SourcePath:      source,
		DestinationPath: path.Clean(strings.ReplaceAll(destination, "\\", "/")),
		BuildAction:     pipeline.BuildActionBuild,
		Params:          map[string]any{},
	}
}

// Name returns the leaf name of the destination path.
func (c *ContentItem) Name() string {
	return path.Base(c.DestinationPath)
}

// Extension returns the lower-cased source file extension.
func (c *ContentItem) Extension() string {
	return strings.ToLower(path.Ext(c.SourcePath))
}

// IsLinked reports whether the source file lives outside the logical
// destination, i.e. the item was linked rather than copied in.
func (c *ContentItem) IsLinked() bool {
	return c.SourcePath != c.DestinationPath
}

// ResolveTypes recomputes the importer and processor from the currently
// requested names, keeping parameter values that still convert.
func (c *ContentItem) ResolveTypes(r Resolver) {
	c.resolve(r, c.Importer.Name(), c.Processor.Name(), true)
}

// SetImporter requests a different importer. An empty name selects the
// importer by file extension. The processor is kept when it still accepts
// the importer's output, otherwise it falls back to the importer's default.
func (c *ContentItem) SetImporter(r Resolver, name string) {
	c.resolve(r, name, c.Processor.Name(), true)
}

// SetProcessor requests a different processor and resets the parameters to
// the new processor's defaults.
func (c *ContentItem) SetProcessor(r Resolver, name string) {
	keep := name == c.Processor.Name()
	c.resolve(r, c.Importer.Name(), name, keep)
}

// SetBuildAction switches between Build and Copy. Copy items have no
// transformation; switching back to Build resolves by extension.
func (c *ContentItem) SetBuildAction(r Resolver, action pipeline.BuildAction) {
	if action == c.BuildAction {
		return
	}
	c.BuildAction = action
	c.resolve(r, c.Importer.Name(), c.Processor.Name(), true)
}

// SetParam converts value to the declared type and stores it.
func (c *ContentItem) SetParam(key string, value any) error {
	proc, ok := c.Processor.Get()
	if !ok {
		return pipeline.NewError(pipeline.ErrorClassResolution,
			fmt.Sprintf("processor %s is not resolved", c.Processor), nil).WithItem(c.DestinationPath)
	}
	prop, ok := proc.Property(key)
	if !ok {
		return pipeline.NewError(pipeline.ErrorClassValidation,
			fmt.Sprintf("processor %s has no parameter %s", proc.Name, key), nil).
			WithItem(c.DestinationPath).WithCode(pipeline.ErrCodeNotFound)
	}
	converted, err := registry.ConvertValue(prop, value)
	if err != nil {
		return pipeline.NewError(pipeline.ErrorClassValidation,
			fmt.Sprintf("invalid value for %s", key), err).WithItem(c.DestinationPath)
	}
	c.Params[key] = converted
	return nil
}

// FormattedParams returns the parameters as build-tool text, including any
// values held while the processor is unresolved.
func (c *ContentItem) FormattedParams() map[string]string {
	out := make(map[string]string, len(c.Params)+len(c.unresolved))
	maps.Copy(out, c.unresolved)
	for k, v := range c.Params {
		out[k] = registry.FormatValue(v)
	}
	return out
}

// SetStoredParams replaces the parameters with raw text values as read from
// storage. They are converted on the next resolution.
func (c *ContentItem) SetStoredParams(params map[string]string) {
	c.Params = map[string]any{}
	c.unresolved = maps.Clone(params)
}

func (c *ContentItem) resolve(r Resolver, importerName, processorName string, keepParams bool) {
	candidates := make(map[string]any, len(c.Params)+len(c.unresolved))
	if keepParams {
		for k, v := range c.unresolved {
			candidates[k] = v
		}
		maps.Copy(candidates, c.Params)
	}

	if c.BuildAction == pipeline.BuildActionCopy {
		c.Importer = pipeline.None[*pipeline.ImporterDescription]()
		c.Processor = pipeline.None[*pipeline.ProcessorDescription]()
		c.Params = map[string]any{}
		c.unresolved = nil
		return
	}

	imp := r.FindImporter(importerName, c.Extension())
	if imp == nil {
		c.Importer = pipeline.Missing[*pipeline.ImporterDescription](importerName)
	} else {
		c.Importer = pipeline.Resolved(imp)
	}

	var proc *pipeline.ProcessorDescription
	if imp != nil {
		proc = r.FindProcessor(processorName, imp)
		// An unknown or incompatible processor falls back to the
		// importer's default.
		if proc == nil || proc.InputType != imp.OutputType {
			proc = r.FindProcessor("", imp)
			if proc != nil && proc.InputType != imp.OutputType {
				proc = nil
			}
		}
	} else if processorName != "" {
		proc = r.FindProcessor(processorName, nil)
	}

	if proc == nil {
		c.Processor = pipeline.Missing[*pipeline.ProcessorDescription](processorName)
		c.Params = map[string]any{}
		c.unresolved = make(map[string]string, len(candidates))
		for k, v := range candidates {
			c.unresolved[k] = registry.FormatValue(v)
		}
		return
	}

	// A different processor never inherits the old parameters.
	if prev := c.Processor.Name(); prev != "" && prev != proc.Name {
		candidates = map[string]any{}
	}
	c.Processor = pipeline.Resolved(proc)
	c.Params = reconcileParams(proc, candidates)
	c.unresolved = nil
}

// reconcileParams converts stored values to the processor's declared types.
// Values that fail conversion or are no longer declared are dropped;
// declared properties absent from stored are filled with their defaults.
func reconcileParams(proc *pipeline.ProcessorDescription, stored map[string]any) map[string]any {
	params := make(map[string]any, len(proc.Properties))
	for i := range proc.Properties {
		prop := &proc.Properties[i]
		value, ok := stored[prop.Name]
		if !ok {
			params[prop.Name] = prop.Default
			continue
		}
		converted, err := registry.ConvertValue(prop, value)
		if err != nil {
			params[prop.Name] = prop.Default
			continue
		}
		params[prop.Name] = converted
	}
	return params
}

// ItemState is a value snapshot of every mutable field of a ContentItem.
type ItemState struct {
	SourcePath      string
	DestinationPath string
	BuildAction     pipeline.BuildAction
	Importer        pipeline.Importer
	Processor       pipeline.Processor
	Params          map[string]any
	unresolved      map[string]string
}

// Snapshot captures the item's current state.
func (c *ContentItem) Snapshot() ItemState {
	return ItemState{
		SourcePath:      c.SourcePath,
		DestinationPath: c.DestinationPath,
		BuildAction:     c.BuildAction,
		Importer:        c.Importer,
		Processor:       c.Processor,
		Params:          maps.Clone(c.Params),
		unresolved:      maps.Clone(c.unresolved),
	}
}

// Restore puts the item back into a previously captured state.
func (c *ContentItem) Restore(s ItemState) {
	c.SourcePath = s.SourcePath
	c.DestinationPath = s.DestinationPath
	c.BuildAction = s.BuildAction
	c.Importer = s.Importer
	c.Processor = s.Processor
	c.Params = maps.Clone(s.Params)
	if c.Params == nil {
		c.Params = map[string]any{}
	}
	c.unresolved = maps.Clone(s.unresolved)
}

// Clone returns an independent copy of the item.
func (c *ContentItem) Clone() *ContentItem {
	clone := &ContentItem{}
	clone.Restore(c.Snapshot())
	return clone
}
