// Package project provides the project model: the content items, the
// reference list of extension modules and the build target settings.
//
// The model is plain data. It is mutated only through edit commands (see
// package actions) from a single goroutine; hosts with several writers must
// serialize access themselves.
package project

import (
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/openfroyo/contentkit/pkg/pipeline"
)

// Default target settings for new projects.
const (
	DefaultPlatform        = "DesktopGL"
	DefaultProfile         = "HiDef"
	DefaultOutputDir       = "bin/$(Platform)"
	DefaultIntermediateDir = "obj/$(Platform)"
)

// Platforms lists the target platforms the build tool understands.
var Platforms = []string{"Windows", "DesktopGL", "Android", "iOS", "WindowsStoreApp", "PlayStation4", "XboxOne", "Switch"}

// Profiles lists the graphics profiles the build tool understands.
var Profiles = []string{"Reach", "HiDef"}

// Project is the aggregate edited by commands and built by the orchestrator.
type Project struct {
	// Dir is the directory holding the project file. Relative paths are
	// resolved against it. It is not persisted.
	Dir string

	OutputDir       string
	IntermediateDir string

	// References lists extension modules, slash-separated, unique, relative
	// to Dir when inside it.
	References []string

	Platform string
	Profile  string
	Config   string

	Items []*ContentItem
}

// New creates an empty project rooted at dir.
func New(dir string) *Project {
	return &Project{
		Dir:             dir,
		OutputDir:       DefaultOutputDir,
		IntermediateDir: DefaultIntermediateDir,
		Platform:        DefaultPlatform,
		Profile:         DefaultProfile,
	}
}

// NormalizePath returns p with a single '/' separator, cleaned, and made
// relative to the project directory when it lies inside it.
func (p *Project) NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	native := filepath.FromSlash(strings.ReplaceAll(raw, "\\", "/"))
	if filepath.IsAbs(native) && p.Dir != "" {
		if dir, err := filepath.Abs(p.Dir); err == nil {
			if rel, err := filepath.Rel(dir, native); err == nil && !strings.HasPrefix(rel, "..") {
				native = rel
			}
		}
	}
	return path.Clean(filepath.ToSlash(native))
}

// AbsPath resolves a project-relative path to an absolute native path.
func (p *Project) AbsPath(rel string) string {
	native := filepath.FromSlash(rel)
	if filepath.IsAbs(native) {
		return native
	}
	return filepath.Join(p.Dir, native)
}

// NormalizeReferences normalizes and de-duplicates a reference list,
// keeping first occurrences in order.
func (p *Project) NormalizeReferences(refs []string) []string {
	out := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		n := p.NormalizePath(ref)
		if n == "" || seen[strings.ToLower(n)] {
			continue
		}
		seen[strings.ToLower(n)] = true
		out = append(out, n)
	}
	return out
}

// SetReferences replaces the reference list. Callers must reload the
// registry and call ResolveAll afterwards.
func (p *Project) SetReferences(refs []string) {
	p.References = p.NormalizeReferences(refs)
}

// ResolveAll re-resolves every item against r.
func (p *Project) ResolveAll(r Resolver) {
	for _, item := range p.Items {
		item.ResolveTypes(r)
	}
}

// FindItem returns the item with the given destination path.
func (p *Project) FindItem(destination string) *ContentItem {
	destination = p.NormalizePath(destination)
	for _, item := range p.Items {
		if strings.EqualFold(item.DestinationPath, destination) {
			return item
		}
	}
	return nil
}

// ItemsUnder returns the items whose destination lies under folder.
func (p *Project) ItemsUnder(folder string) []*ContentItem {
	folder = strings.TrimSuffix(p.NormalizePath(folder), "/") + "/"
	var out []*ContentItem
	for _, item := range p.Items {
		if strings.HasPrefix(item.DestinationPath, folder) {
			out = append(out, item)
		}
	}
	return out
}

// IndexOf returns the position of item, or -1.
func (p *Project) IndexOf(item *ContentItem) int {
	return slices.Index(p.Items, item)
}

// AddItem appends an item. Destination paths are unique.
func (p *Project) AddItem(item *ContentItem) error {
	return p.InsertItem(len(p.Items), item)
}

// InsertItem inserts an item at index, clamped to the valid range.
func (p *Project) InsertItem(index int, item *ContentItem) error {
	if p.FindItem(item.DestinationPath) != nil {
		return pipeline.NewError(pipeline.ErrorClassCommand, "content item already in project", nil).
			WithItem(item.DestinationPath).WithCode(pipeline.ErrCodeDuplicateItem)
	}
	index = max(0, min(index, len(p.Items)))
	p.Items = slices.Insert(p.Items, index, item)
	return nil
}

// RemoveItem removes item and returns its former index, or -1.
func (p *Project) RemoveItem(item *ContentItem) int {
	idx := p.IndexOf(item)
	if idx >= 0 {
		p.Items = slices.Delete(p.Items, idx, idx+1)
	}
	return idx
}

// State is a value snapshot of the whole project.
type State struct {
	OutputDir       string
	IntermediateDir string
	References      []string
	Platform        string
	Profile         string
	Config          string
	Items           []*ContentItem
	ItemStates      []ItemState
}

// Snapshot captures the project settings, the item order and every item's
// state. Items are kept by identity so Restore mutates the same values.
func (p *Project) Snapshot() State {
	s := State{
		OutputDir:       p.OutputDir,
		IntermediateDir: p.IntermediateDir,
		References:      slices.Clone(p.References),
		Platform:        p.Platform,
		Profile:         p.Profile,
		Config:          p.Config,
		Items:           slices.Clone(p.Items),
		ItemStates:      make([]ItemState, len(p.Items)),
	}
	for i, item := range p.Items {
		s.ItemStates[i] = item.Snapshot()
	}
	return s
}

// Restore puts the project back into a previously captured state.
func (p *Project) Restore(s State) {
	p.OutputDir = s.OutputDir
	p.IntermediateDir = s.IntermediateDir
	p.References = slices.Clone(s.References)
	p.Platform = s.Platform
	p.Profile = s.Profile
	p.Config = s.Config
	p.Items = slices.Clone(s.Items)
	for i, item := range p.Items {
		item.Restore(s.ItemStates[i])
	}
}
