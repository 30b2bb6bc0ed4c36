package actions

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/openfroyo/contentkit/pkg/history"
	"github.com/openfroyo/contentkit/pkg/pipeline"
	"github.com/openfroyo/contentkit/pkg/project"
)

// IncludeMode selects how an included file enters the project.
type IncludeMode int

const (
	// IncludeCopy copies the source file into the project directory.
	IncludeCopy IncludeMode = iota

	// IncludeLink references the source file where it is.
	IncludeLink

	// IncludeTemplate creates a new file from a template.
	IncludeTemplate

	// IncludeFolder creates a directory. It produces a folder node, not an item.
	IncludeFolder
)

// String returns the mode name.
func (m IncludeMode) String() string {
	switch m {
	case IncludeCopy:
		return "copy"
	case IncludeLink:
		return "link"
	case IncludeTemplate:
		return "template"
	case IncludeFolder:
		return "folder"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Template describes a file that new items can be created from.
type Template struct {
	Name       string `yaml:"name"`
	SourcePath string `yaml:"source"`
	Importer   string `yaml:"importer,omitempty"`
	Processor  string `yaml:"processor,omitempty"`
}

// IncludeEntry is one file or folder to include.
type IncludeEntry struct {
	// Source is the file to copy or link. Ignored for templates and folders.
	Source string

	// Destination is the project-relative path of the new item or folder.
	Destination string

	Mode IncludeMode

	// Template is required for IncludeTemplate.
	Template *Template
}

// IncludeAction adds files to the project. Files are materialized on the
// first Do only; redo re-inserts the items. Undo removes the items from the
// model and leaves files on disk.
type IncludeAction struct {
	env     *Env
	entries []IncludeEntry

	items   []*project.ContentItem
	folders []string
	done    bool
}

// NewIncludeAction creates an include for a batch of entries.
func NewIncludeAction(env *Env, entries []IncludeEntry) *IncludeAction {
	return &IncludeAction{env: env, entries: entries}
}

// Kind is the metric label.
func (a *IncludeAction) Kind() string { return "include" }

// Description implements history.Command.
func (a *IncludeAction) Description() string {
	if len(a.entries) == 1 {
		return fmt.Sprintf("Include %s", a.entries[0].Destination)
	}
	return fmt.Sprintf("Include %d items", len(a.entries))
}

// Items returns the items created by the first Do.
func (a *IncludeAction) Items() []*project.ContentItem { return a.items }

// Do implements history.Command.
func (a *IncludeAction) Do() error {
	if !a.done {
		if err := a.firstDo(); err != nil {
			return err
		}
		a.done = true
	}

	p := a.env.Project
	view := a.env.view()
	for _, folder := range a.folders {
		view.AddTreeNode(history.TreeNode{Path: folder, Folder: true})
	}
	for i, item := range a.items {
		if err := p.AddItem(item); err != nil {
			for _, added := range a.items[:i] {
				p.RemoveItem(added)
			}
			return err
		}
		view.AddTreeNode(itemNode(item))
	}
	return nil
}

// Undo implements history.Command.
func (a *IncludeAction) Undo() error {
	p := a.env.Project
	view := a.env.view()
	for i := len(a.items) - 1; i >= 0; i-- {
		p.RemoveItem(a.items[i])
		view.RemoveTreeNode(itemNode(a.items[i]))
	}
	for i := len(a.folders) - 1; i >= 0; i-- {
		view.RemoveTreeNode(history.TreeNode{Path: a.folders[i], Folder: true})
	}
	return nil
}

// firstDo validates the whole batch, then materializes files in order. Any
// error aborts the batch; files already written before the error stay.
func (a *IncludeAction) firstDo() error {
	p := a.env.Project
	seen := make(map[string]bool)
	for _, e := range a.entries {
		dest := p.NormalizePath(e.Destination)
		if dest == "" || dest == "." {
			return a.fail(e, "destination is required", nil)
		}
		if e.Mode == IncludeFolder {
			continue
		}
		key := strings.ToLower(dest)
		if seen[key] || p.FindItem(dest) != nil {
			return a.fail(e, "item already in project", nil).WithCode(pipeline.ErrCodeDuplicateItem)
		}
		seen[key] = true
		if e.Mode == IncludeTemplate && e.Template == nil {
			return a.fail(e, "template is required", nil)
		}
	}

	var items []*project.ContentItem
	var folders []string
	for _, e := range a.entries {
		dest := p.NormalizePath(e.Destination)
		target := p.AbsPath(dest)

		switch e.Mode {
		case IncludeFolder:
			if err := os.MkdirAll(target, 0755); err != nil {
				return a.fail(e, "failed to create folder", err)
			}
			folders = append(folders, dest)
			continue

		case IncludeCopy:
			if err := copyFile(e.Source, target, true); err != nil {
				return a.fail(e, "failed to copy file", err)
			}
			items = append(items, project.NewItem(dest, dest))

		case IncludeLink:
			items = append(items, project.NewItem(linkPath(p, e.Source), dest))

		case IncludeTemplate:
			source := e.Template.SourcePath
			if err := copyFile(source, target, false); err != nil {
				return a.fail(e, "failed to create file from template", err)
			}
			item := project.NewItem(dest, dest)
			if e.Template.Importer != "" {
				item.Importer = pipeline.Missing[*pipeline.ImporterDescription](e.Template.Importer)
			}
			if e.Template.Processor != "" {
				item.Processor = pipeline.Missing[*pipeline.ProcessorDescription](e.Template.Processor)
			}
			items = append(items, item)

		default:
			return a.fail(e, fmt.Sprintf("unknown include mode %s", e.Mode), nil)
		}
	}

	for _, item := range items {
		item.ResolveTypes(a.env.Resolver)
	}
	a.items = items
	a.folders = folders
	return nil
}

func (a *IncludeAction) fail(e IncludeEntry, msg string, err error) *pipeline.Error {
	return pipeline.NewError(pipeline.ErrorClassCommand, msg, err).
		WithItem(e.Destination).WithOperation("include")
}

// linkPath expresses source relative to the project directory when
// possible so the project stays portable.
func linkPath(p *project.Project, source string) string {
	abs, err := filepath.Abs(source)
	if err != nil || p.Dir == "" {
		return filepath.ToSlash(source)
	}
	dir, err := filepath.Abs(p.Dir)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	if rel, err := filepath.Rel(dir, abs); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(abs)
}

// copyFile copies src to dst, creating parent directories. Copying a file
// onto itself is a no-op.
func copyFile(src, dst string, overwrite bool) error {
	srcAbs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if srcAbs == dstAbs {
		return nil
	}

	in, err := os.Open(srcAbs)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dstAbs), 0755); err != nil {
		return err
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		flags = os.O_CREATE | os.O_WRONLY | os.O_EXCL
	}
	out, err := os.OpenFile(dstAbs, flags, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
