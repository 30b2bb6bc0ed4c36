package actions

import (
	"fmt"
	"sort"

	"github.com/openfroyo/contentkit/pkg/pipeline"
	"github.com/openfroyo/contentkit/pkg/project"
)

// ExcludeAction removes items from the project without touching files.
// Undo puts them back at their original positions.
type ExcludeAction struct {
	env     *Env
	items   []*project.ContentItem
	indices []int
}

// NewExcludeAction creates an exclusion for items already in the project.
func NewExcludeAction(env *Env, items []*project.ContentItem) (*ExcludeAction, error) {
	for _, item := range items {
		if env.Project.IndexOf(item) < 0 {
			return nil, pipeline.NewError(pipeline.ErrorClassCommand, "item not in project", nil).
				WithItem(item.DestinationPath).WithCode(pipeline.ErrCodeItemNotFound)
		}
	}
	return &ExcludeAction{env: env, items: items}, nil
}

// Kind is the metric label.
func (a *ExcludeAction) Kind() string { return "exclude" }

// Description implements history.Command.
func (a *ExcludeAction) Description() string {
	if len(a.items) == 1 {
		return fmt.Sprintf("Exclude %s", a.items[0].DestinationPath)
	}
	return fmt.Sprintf("Exclude %d items", len(a.items))
}

// Do implements history.Command.
func (a *ExcludeAction) Do() error {
	p := a.env.Project
	view := a.env.view()

	type placed struct {
		item  *project.ContentItem
		index int
	}
	order := make([]placed, 0, len(a.items))
	for _, item := range a.items {
		order = append(order, placed{item, p.IndexOf(item)})
	}
	sort.Slice(order, func(i, j int) bool { return order[i].index < order[j].index })

	a.items = a.items[:0]
	a.indices = a.indices[:0]
	for _, pl := range order {
		if pl.index < 0 {
			continue
		}
		a.items = append(a.items, pl.item)
		a.indices = append(a.indices, pl.index)
	}
	for i := len(a.items) - 1; i >= 0; i-- {
		p.RemoveItem(a.items[i])
		view.RemoveTreeNode(itemNode(a.items[i]))
	}
	return nil
}

// Undo implements history.Command.
func (a *ExcludeAction) Undo() error {
	p := a.env.Project
	view := a.env.view()
	for i, item := range a.items {
		if err := p.InsertItem(a.indices[i], item); err != nil {
			return err
		}
		view.AddTreeNode(itemNode(item))
	}
	return nil
}
