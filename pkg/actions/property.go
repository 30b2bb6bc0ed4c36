package actions

import (
	"fmt"

	"github.com/openfroyo/contentkit/pkg/pipeline"
	"github.com/openfroyo/contentkit/pkg/project"
)

// Stateful is a target whose full mutable state can be captured and put
// back. *project.ContentItem and *project.Project implement it.
type Stateful[S any] interface {
	Snapshot() S
	Restore(S)
}

// UpdatePropertyAction sets one property on a batch of targets. The first
// Do runs the setter and records before/after snapshots; afterwards Do
// restores the after snapshot and Undo the before snapshot.
type UpdatePropertyAction[S any, T Stateful[S]] struct {
	env     *Env
	name    string
	targets []T
	set     func(T) error

	// restored runs after a snapshot is put back (redo, undo).
	restored func() error
	notify  func(T)

	before  []S
	after   []S
	applied bool
}

// NewUpdateProperty creates a property update over targets. set applies the
// new value to one target.
func NewUpdateProperty[S any, T Stateful[S]](env *Env, name string, targets []T, set func(T) error) *UpdatePropertyAction[S, T] {
	return &UpdatePropertyAction[S, T]{
		env:     env,
		name:    name,
		targets: targets,
		set:     set,
	}
}

// OnRestore registers a hook run after redo and undo put a snapshot back.
func (a *UpdatePropertyAction[S, T]) OnRestore(fn func() error) *UpdatePropertyAction[S, T] {
	a.restored = fn
	return a
}

// OnNotify registers the per-target presentation notification.
func (a *UpdatePropertyAction[S, T]) OnNotify(fn func(T)) *UpdatePropertyAction[S, T] {
	a.notify = fn
	return a
}

// Kind is the metric label.
func (a *UpdatePropertyAction[S, T]) Kind() string { return "update_property" }

// Description implements history.Command.
func (a *UpdatePropertyAction[S, T]) Description() string {
	if len(a.targets) == 1 {
		return fmt.Sprintf("Set %s", a.name)
	}
	return fmt.Sprintf("Set %s on %d items", a.name, len(a.targets))
}

// Do implements history.Command.
func (a *UpdatePropertyAction[S, T]) Do() error {
	if a.applied {
		return a.restore(a.after)
	}

	before := make([]S, len(a.targets))
	for i, t := range a.targets {
		before[i] = t.Snapshot()
	}
	for _, t := range a.targets {
		if err := a.set(t); err != nil {
			a.apply(before)
			return pipeline.NewError(pipeline.ErrorClassCommand,
				fmt.Sprintf("failed to set %s", a.name), err).WithOperation("update_property")
		}
	}
	after := make([]S, len(a.targets))
	for i, t := range a.targets {
		after[i] = t.Snapshot()
	}

	a.before, a.after, a.applied = before, after, true
	a.notifyView()
	return nil
}

// Undo implements history.Command.
func (a *UpdatePropertyAction[S, T]) Undo() error {
	if !a.applied {
		return nil
	}
	return a.restore(a.before)
}

func (a *UpdatePropertyAction[S, T]) apply(states []S) {
	for i, t := range a.targets {
		t.Restore(states[i])
	}
}

func (a *UpdatePropertyAction[S, T]) restore(states []S) error {
	a.apply(states)
	if a.restored != nil {
		if err := a.restored(); err != nil {
			return err
		}
	}
	a.notifyView()
	return nil
}

func (a *UpdatePropertyAction[S, T]) notifyView() {
	view := a.env.view()
	if a.notify != nil {
		for _, t := range a.targets {
			a.notify(t)
		}
	}
	view.UpdateProperties()
}

type itemUpdate = UpdatePropertyAction[project.ItemState, *project.ContentItem]

func newItemUpdate(env *Env, name string, items []*project.ContentItem, set func(*project.ContentItem) error) *itemUpdate {
	return NewUpdateProperty[project.ItemState](env, name, items, set).
		OnNotify(func(item *project.ContentItem) {
			env.view().UpdateTreeNode(itemNode(item))
		})
}

// SetImporter changes the importer of items. An empty name selects by
// file extension.
func SetImporter(env *Env, items []*project.ContentItem, name string) *itemUpdate {
	return newItemUpdate(env, "Importer", items, func(item *project.ContentItem) error {
		item.SetImporter(env.Resolver, name)
		return nil
	})
}

// SetProcessor changes the processor of items, resetting their parameters.
func SetProcessor(env *Env, items []*project.ContentItem, name string) *itemUpdate {
	return newItemUpdate(env, "Processor", items, func(item *project.ContentItem) error {
		item.SetProcessor(env.Resolver, name)
		return nil
	})
}

// SetBuildAction switches items between Build and Copy.
func SetBuildAction(env *Env, items []*project.ContentItem, action pipeline.BuildAction) *itemUpdate {
	return newItemUpdate(env, "Build Action", items, func(item *project.ContentItem) error {
		if err := action.Validate(); err != nil {
			return err
		}
		item.SetBuildAction(env.Resolver, action)
		return nil
	})
}

// SetParam sets one processor parameter on items.
func SetParam(env *Env, items []*project.ContentItem, key string, value any) *itemUpdate {
	return newItemUpdate(env, key, items, func(item *project.ContentItem) error {
		return item.SetParam(key, value)
	})
}

type projectUpdate = UpdatePropertyAction[project.State, *project.Project]

func newProjectUpdate(env *Env, name string, set func(*project.Project) error) *projectUpdate {
	return NewUpdateProperty[project.State](env, name, []*project.Project{env.Project}, set)
}

// SetOutputDir changes the project's output directory.
func SetOutputDir(env *Env, dir string) *projectUpdate {
	return newProjectUpdate(env, "Output Directory", func(p *project.Project) error {
		p.OutputDir = p.NormalizePath(dir)
		return nil
	})
}

// SetIntermediateDir changes the project's intermediate directory.
func SetIntermediateDir(env *Env, dir string) *projectUpdate {
	return newProjectUpdate(env, "Intermediate Directory", func(p *project.Project) error {
		p.IntermediateDir = p.NormalizePath(dir)
		return nil
	})
}

// SetPlatform changes the target platform.
func SetPlatform(env *Env, platform string) *projectUpdate {
	return newProjectUpdate(env, "Platform", func(p *project.Project) error {
		if platform == "" {
			return fmt.Errorf("platform is required")
		}
		p.Platform = platform
		return nil
	})
}

// SetProfile changes the target graphics profile.
func SetProfile(env *Env, profile string) *projectUpdate {
	return newProjectUpdate(env, "Graphics Profile", func(p *project.Project) error {
		for _, known := range project.Profiles {
			if known == profile {
				p.Profile = profile
				return nil
			}
		}
		return fmt.Errorf("unknown graphics profile %q", profile)
	})
}

// SetConfig changes the build configuration label.
func SetConfig(env *Env, config string) *projectUpdate {
	return newProjectUpdate(env, "Config", func(p *project.Project) error {
		p.Config = config
		return nil
	})
}

// SetReferences replaces the reference list, reloads the registry and
// re-resolves every item. Undo restores the old list and reloads again.
func SetReferences(env *Env, refs []string) *projectUpdate {
	reload := func() error {
		if env.ReloadTypes == nil {
			return nil
		}
		return env.ReloadTypes()
	}
	return newProjectUpdate(env, "References", func(p *project.Project) error {
		p.SetReferences(refs)
		if err := reload(); err != nil {
			return err
		}
		p.ResolveAll(env.Resolver)
		return nil
	}).OnRestore(func() error {
		// The registry must match the restored reference list; the item
		// states were restored from the snapshot.
		if err := reload(); err != nil {
			return err
		}
		env.Project.ResolveAll(env.Resolver)
		return nil
	})
}
