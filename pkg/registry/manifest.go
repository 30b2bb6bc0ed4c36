package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/contentkit/pkg/pipeline"
)

// ManifestExt is the file extension of on-disk extension manifests.
const ManifestExt = ".yaml"

// Manifest is what an extension module registers: the importers and
// processors it contributes.
type Manifest struct {
	// Name identifies the module (e.g. "MonoGame.Content.Pipeline").
	Name string `yaml:"name" validate:"required"`

	// Version is informational.
	Version string `yaml:"version,omitempty"`

	Importers  []pipeline.ImporterDescription  `yaml:"importers" validate:"dive"`
	Processors []pipeline.ProcessorDescription `yaml:"processors" validate:"dive"`

	// Path is the file the manifest was loaded from, empty for in-process
	// modules.
	Path string `yaml:"-"`
}

// RegisterFunc is the registration entry point of an extension module.
// The host calls it once per load instead of inspecting the module's code.
type RegisterFunc func() (*Manifest, error)

// ManifestLoader loads and validates extension manifests from disk.
type ManifestLoader struct {
	// BaseDir is the base directory for resolving relative paths.
	BaseDir string

	validate *validator.Validate
}

// NewManifestLoader creates a new manifest loader.
func NewManifestLoader(baseDir string) *ManifestLoader {
	return &ManifestLoader{
		BaseDir:  baseDir,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Resolve returns the manifest file path for a reference entry. References
// may name the manifest directly or name a module whose manifest sits next
// to it with the ManifestExt extension (Foo.dll -> Foo.yaml).
func (m *ManifestLoader) Resolve(reference string) string {
	path := filepath.FromSlash(reference)
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.BaseDir, path)
	}
	if !strings.EqualFold(filepath.Ext(path), ManifestExt) {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ManifestExt
	}
	return path
}

// LoadFromFile loads a manifest from a YAML file.
func (m *ManifestLoader) LoadFromFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	manifest, err := m.LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	manifest.Path = path

	return manifest, nil
}

// LoadFromBytes parses and validates a manifest from raw YAML.
func (m *ManifestLoader) LoadFromBytes(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}

	if err := m.Validate(&manifest); err != nil {
		return nil, err
	}

	return &manifest, nil
}

// Validate checks the manifest structure and the semantic rules the struct
// tags cannot express.
func (m *ManifestLoader) Validate(manifest *Manifest) error {
	if err := m.validate.Struct(manifest); err != nil {
		return pipeline.NewError(pipeline.ErrorClassValidation, "invalid manifest", err)
	}

	seen := make(map[string]bool)
	for _, imp := range manifest.Importers {
		if seen["i:"+imp.Name] {
			return pipeline.NewError(pipeline.ErrorClassValidation,
				fmt.Sprintf("duplicate importer %s", imp.Name), nil)
		}
		seen["i:"+imp.Name] = true
	}
	for _, proc := range manifest.Processors {
		if seen["p:"+proc.Name] {
			return pipeline.NewError(pipeline.ErrorClassValidation,
				fmt.Sprintf("duplicate processor %s", proc.Name), nil)
		}
		seen["p:"+proc.Name] = true

		for _, prop := range proc.Properties {
			if err := prop.Type.Validate(); err != nil {
				return pipeline.NewError(pipeline.ErrorClassValidation,
					fmt.Sprintf("processor %s property %s", proc.Name, prop.Name), err)
			}
		}
	}

	return nil
}
