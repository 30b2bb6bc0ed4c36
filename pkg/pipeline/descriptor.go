package pipeline

// DescriptorState tells which variant a Descriptor holds.
type DescriptorState int

const (
	// DescriptorNone means no transformation applies (Copy items).
	DescriptorNone DescriptorState = iota

	// DescriptorResolved means the registry produced a description.
	DescriptorResolved

	// DescriptorMissing means a name was requested but could not be resolved.
	DescriptorMissing
)

// String returns the state name.
func (s DescriptorState) String() string {
	switch s {
	case DescriptorResolved:
		return "resolved"
	case DescriptorMissing:
		return "missing"
	default:
		return "none"
	}
}

// Named is implemented by the description records a Descriptor can carry.
type Named interface {
	comparable
	TypeName() string
}

// TypeName returns the importer's internal type name.
func (d *ImporterDescription) TypeName() string { return d.Name }

// TypeName returns the processor's internal type name.
func (d *ProcessorDescription) TypeName() string { return d.Name }

// Descriptor is exactly one of Resolved(description), Missing(name) or None.
// The zero value is None.
type Descriptor[D Named] struct {
	state     DescriptorState
	desc      D
	requested string
}

// Resolved wraps a description found in the registry.
func Resolved[D Named](desc D) Descriptor[D] {
	var zero D
	if desc == zero {
		return Descriptor[D]{}
	}
	return Descriptor[D]{state: DescriptorResolved, desc: desc, requested: desc.TypeName()}
}

// Missing records a requested name that the registry could not resolve.
// The name is kept so it survives a save and can be reported by the build.
func Missing[D Named](name string) Descriptor[D] {
	return Descriptor[D]{state: DescriptorMissing, requested: name}
}

// None returns the no-transformation variant.
func None[D Named]() Descriptor[D] {
	return Descriptor[D]{}
}

// State returns the active variant.
func (d Descriptor[D]) State() DescriptorState { return d.state }

// Get returns the description when resolved.
func (d Descriptor[D]) Get() (D, bool) {
	return d.desc, d.state == DescriptorResolved
}

// IsResolved reports whether a description is present.
func (d Descriptor[D]) IsResolved() bool { return d.state == DescriptorResolved }

// IsMissing reports whether resolution failed.
func (d Descriptor[D]) IsMissing() bool { return d.state == DescriptorMissing }

// IsNone reports whether no transformation applies.
func (d Descriptor[D]) IsNone() bool { return d.state == DescriptorNone }

// Name returns the persisted name: the resolved type name, the requested
// name for Missing, or "" for None.
func (d Descriptor[D]) Name() string { return d.requested }

// String is used in logs and the property grid.
func (d Descriptor[D]) String() string {
	switch d.state {
	case DescriptorResolved:
		return d.requested
	case DescriptorMissing:
		if d.requested == "" {
			return "<missing>"
		}
		return d.requested + " <missing>"
	default:
		return "<none>"
	}
}

// Importer is the importer slot of a content item.
type Importer = Descriptor[*ImporterDescription]

// Processor is the processor slot of a content item.
type Processor = Descriptor[*ProcessorDescription]
