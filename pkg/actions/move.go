package actions

import (
	"fmt"
	"path"
	"strings"

	"github.com/openfroyo/contentkit/pkg/history"
	"github.com/openfroyo/contentkit/pkg/pipeline"
	"github.com/openfroyo/contentkit/pkg/project"
)

// MoveAction renames an item, or a folder and every item under it, by
// substituting the leaf name in destination paths. Source paths of items
// that live in the project (not linked) are renamed the same way.
type MoveAction struct {
	env     *Env
	oldPath string
	newPath string
	folder  bool

	items  []*project.ContentItem
	before []project.ItemState
	after  []project.ItemState
}

// NewMoveAction renames the item or folder at oldPath to newName, which is a
// leaf name ("b.png") or a project-relative path ("Textures/b.png").
func NewMoveAction(env *Env, oldPath, newName string) (*MoveAction, error) {
	p := env.Project
	a := &MoveAction{env: env, oldPath: p.NormalizePath(oldPath)}
	if item := p.FindItem(a.oldPath); item != nil {
		a.items = []*project.ContentItem{item}
		a.oldPath = item.DestinationPath
	} else if under := p.ItemsUnder(a.oldPath); len(under) > 0 {
		a.items = under
		a.folder = true
	} else {
		return nil, pipeline.NewError(pipeline.ErrorClassCommand, "nothing to move", nil).
			WithItem(a.oldPath).WithCode(pipeline.ErrCodeItemNotFound)
	}

	a.newPath = p.NormalizePath(newName)
	if !strings.Contains(a.newPath, "/") {
		a.newPath = path.Join(path.Dir(a.oldPath), a.newPath)
	}
	if a.newPath == a.oldPath {
		return nil, pipeline.NewError(pipeline.ErrorClassCommand, "new name equals old name", nil).WithItem(a.oldPath)
	}

	for _, item := range a.items {
		dest := a.substitute(item.DestinationPath)
		if other := p.FindItem(dest); other != nil && other != item {
			return nil, pipeline.NewError(pipeline.ErrorClassCommand, "destination already in project", nil).
				WithItem(dest).WithCode(pipeline.ErrCodeDuplicateItem)
		}
	}

	a.before = make([]project.ItemState, len(a.items))
	a.after = make([]project.ItemState, len(a.items))
	for i, item := range a.items {
		a.before[i] = item.Snapshot()
		moved := item.Clone()
		if !moved.IsLinked() {
			moved.SourcePath = a.substitute(moved.SourcePath)
		}
		moved.DestinationPath = a.substitute(moved.DestinationPath)
		// A new extension selects the importer again.
		if !strings.EqualFold(path.Ext(moved.SourcePath), path.Ext(item.SourcePath)) {
			moved.SetImporter(env.Resolver, "")
		}
		a.after[i] = moved.Snapshot()
	}
	return a, nil
}

// Kind is the metric label.
func (a *MoveAction) Kind() string { return "move" }

// Description implements history.Command.
func (a *MoveAction) Description() string {
	return fmt.Sprintf("Rename %s to %s", path.Base(a.oldPath), path.Base(a.newPath))
}

// OldName returns the leaf name before the move.
func (a *MoveAction) OldName() string { return path.Base(a.oldPath) }

// NewName returns the leaf name after the move.
func (a *MoveAction) NewName() string { return path.Base(a.newPath) }

// Do implements history.Command.
func (a *MoveAction) Do() error {
	a.apply(a.before, a.after, a.oldPath, a.newPath)
	return nil
}

// Undo implements history.Command.
func (a *MoveAction) Undo() error {
	a.apply(a.after, a.before, a.newPath, a.oldPath)
	return nil
}

func (a *MoveAction) apply(from, to []project.ItemState, fromFolder, toFolder string) {
	view := a.env.view()
	if a.folder {
		view.RemoveTreeNode(history.TreeNode{Path: fromFolder, Folder: true})
		view.AddTreeNode(history.TreeNode{Path: toFolder, Folder: true})
	}
	for i, item := range a.items {
		view.RemoveTreeNode(history.TreeNode{Path: from[i].DestinationPath})
		item.Restore(to[i])
		view.AddTreeNode(itemNode(item))
	}
	view.UpdateProperties()
}

func (a *MoveAction) substitute(p string) string {
	if p == a.oldPath {
		return a.newPath
	}
	if strings.HasPrefix(p, a.oldPath+"/") {
		return a.newPath + strings.TrimPrefix(p, a.oldPath)
	}
	return p
}
