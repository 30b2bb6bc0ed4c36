// Package actions implements the reversible edit commands recorded by the
// history stack: include, exclude, move/rename and property updates.
package actions

import (
	"github.com/openfroyo/contentkit/pkg/history"
	"github.com/openfroyo/contentkit/pkg/project"
)

// Env is what every command operates on.
type Env struct {
	Project  *project.Project
	Resolver project.Resolver
	View     history.View

	// ReloadTypes reloads the type registry from Project.References. It is
	// called when a command changes the reference list. May be nil.
	ReloadTypes func() error
}

func (e *Env) view() history.View {
	if e.View == nil {
		return history.NopView{}
	}
	return e.View
}

func itemNode(item *project.ContentItem) history.TreeNode {
	return history.TreeNode{Path: item.DestinationPath}
}
