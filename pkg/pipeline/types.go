package pipeline

import (
	"fmt"
	"strings"
)

// BuildAction controls whether an item is transformed or copied verbatim.
type BuildAction string

const (
	// BuildActionBuild runs the item through its importer and processor.
	BuildActionBuild BuildAction = "Build"

	// BuildActionCopy copies the source file to the output unchanged.
	BuildActionCopy BuildAction = "Copy"
)

// Validate checks if the build action is valid.
func (a BuildAction) Validate() error {
	switch a {
	case BuildActionBuild, BuildActionCopy:
		return nil
	default:
		return fmt.Errorf("invalid build action: %s", a)
	}
}

// ParseBuildAction parses a build action case-insensitively.
func ParseBuildAction(s string) (BuildAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "build", "":
		return BuildActionBuild, nil
	case "copy":
		return BuildActionCopy, nil
	default:
		return "", fmt.Errorf("invalid build action: %s", s)
	}
}

// PropertyType is the declared type of a processor parameter.
type PropertyType string

const (
	PropertyString PropertyType = "string"
	PropertyBool   PropertyType = "bool"
	PropertyInt    PropertyType = "int"
	PropertyFloat  PropertyType = "float"
	PropertyColor  PropertyType = "color"
	PropertyEnum   PropertyType = "enum"
)

// Validate checks if the property type is one of the supported kinds.
func (t PropertyType) Validate() error {
	switch t {
	case PropertyString, PropertyBool, PropertyInt, PropertyFloat, PropertyColor, PropertyEnum:
		return nil
	default:
		return fmt.Errorf("invalid property type: %s", t)
	}
}

// Color is an RGBA color value used by color-typed processor parameters.
type Color struct {
	R, G, B, A uint8
}

// String formats the color the way the build tool expects it: "R,G,B,A".
func (c Color) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", c.R, c.G, c.B, c.A)
}

// PropertyDescription describes one parameter in a processor's schema.
type PropertyDescription struct {
	// Name is the parameter key passed to the build tool.
	Name string `yaml:"name" validate:"required"`

	// DisplayName is the label shown in the property grid.
	DisplayName string `yaml:"display_name,omitempty"`

	// Type is the declared value type.
	Type PropertyType `yaml:"type" validate:"required,oneof=string bool int float color enum"`

	// Default is the value a freshly constructed processor has. It is stored
	// already converted to Type by the registry.
	Default any `yaml:"default"`

	// Values lists the allowed names for enum-typed parameters.
	Values []string `yaml:"values,omitempty" validate:"required_if=Type enum"`

	// Browsable controls whether the parameter is shown to the user.
	Browsable bool `yaml:"browsable"`
}

// ImporterDescription is a read-only record describing an importer plugin.
type ImporterDescription struct {
	// Name is the internal type name (e.g. "TextureImporter").
	Name string `yaml:"name" validate:"required"`

	// DisplayName is the human-readable name (e.g. "Texture - MonoGame").
	DisplayName string `yaml:"display_name"`

	// Extensions lists accepted source file extensions, including the dot.
	Extensions []string `yaml:"extensions" validate:"required,min=1,dive,required"`

	// DefaultProcessor is the processor chosen when no processor is named.
	DefaultProcessor string `yaml:"default_processor"`

	// OutputType is the type name of the intermediate object produced.
	OutputType string `yaml:"output_type" validate:"required"`

	// Module is the extension module that registered this importer.
	Module string `yaml:"-"`
}

// Accepts reports whether the importer handles the given extension.
// Comparison is case-insensitive and tolerates a missing leading dot.
func (d *ImporterDescription) Accepts(ext string) bool {
	ext = normalizeExt(ext)
	for _, e := range d.Extensions {
		if normalizeExt(e) == ext {
			return true
		}
	}
	return false
}

// ProcessorDescription is a read-only record describing a processor plugin.
type ProcessorDescription struct {
	Name        string `yaml:"name" validate:"required"`
	DisplayName string `yaml:"display_name"`

	// InputType must equal the OutputType of the importer feeding it.
	InputType string `yaml:"input_type" validate:"required"`

	// Properties is the processor's parameter schema in declaration order.
	Properties []PropertyDescription `yaml:"properties" validate:"dive"`

	Module string `yaml:"-"`
}

// Property returns the schema entry for the named parameter.
func (d *ProcessorDescription) Property(name string) (*PropertyDescription, bool) {
	for i := range d.Properties {
		if d.Properties[i].Name == name {
			return &d.Properties[i], true
		}
	}
	return nil, false
}

// Defaults returns a fresh parameter map holding every declared default.
func (d *ProcessorDescription) Defaults() map[string]any {
	params := make(map[string]any, len(d.Properties))
	for _, p := range d.Properties {
		params[p.Name] = p.Default
	}
	return params
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
