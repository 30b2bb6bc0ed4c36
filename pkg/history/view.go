package history

// MenuState is the enablement state the presentation layer mirrors in its
// menus and toolbars.
type MenuState struct {
	CanUndo  bool
	CanRedo  bool
	Building bool
}

// TreeNode identifies one entry in the project tree.
type TreeNode struct {
	// Path is the project-relative destination path.
	Path string

	// Folder marks a directory entry rather than a content item.
	Folder bool
}

// View is the presentation notification interface. Implementations are
// called only from the goroutine that owns the presentation layer.
type View interface {
	AddTreeNode(node TreeNode)
	RemoveTreeNode(node TreeNode)
	UpdateTreeNode(node TreeNode)
	UpdateProperties()
	OutputAppend(text string)
	UpdateMenu(state MenuState)
}

// NopView discards every notification.
type NopView struct{}

func (NopView) AddTreeNode(TreeNode)    {}
func (NopView) RemoveTreeNode(TreeNode) {}
func (NopView) UpdateTreeNode(TreeNode) {}
func (NopView) UpdateProperties()       {}
func (NopView) OutputAppend(string)     {}
func (NopView) UpdateMenu(MenuState)    {}
