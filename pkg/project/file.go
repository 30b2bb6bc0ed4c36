package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/contentkit/pkg/pipeline"
)

// FileExt is the extension of project files.
const FileExt = ".ckproj"

type projectFile struct {
	OutputDir       string     `yaml:"output_dir" validate:"required"`
	IntermediateDir string     `yaml:"intermediate_dir" validate:"required"`
	References      []string   `yaml:"references,omitempty" validate:"dive,required"`
	Platform        string     `yaml:"platform" validate:"required"`
	Profile         string     `yaml:"profile" validate:"required,oneof=Reach HiDef"`
	Config          string     `yaml:"config,omitempty"`
	Items           []itemFile `yaml:"items,omitempty" validate:"dive"`
}

type itemFile struct {
	Source      string            `yaml:"source" validate:"required"`
	Destination string            `yaml:"destination,omitempty"`
	Action      string            `yaml:"action,omitempty" validate:"omitempty,oneof=Build Copy"`
	Importer    string            `yaml:"importer,omitempty"`
	Processor   string            `yaml:"processor,omitempty"`
	Params      map[string]string `yaml:"params,omitempty"`
}

var fileValidator = validator.New()

// Load reads a project file. Items carry their stored importer/processor
// names and parameter text; call ResolveAll against a loaded registry to
// resolve them.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	var f projectFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, pipeline.NewError(pipeline.ErrorClassValidation, "failed to parse project file", err).
			WithItem(path)
	}
	if err := fileValidator.Struct(&f); err != nil {
		return nil, pipeline.NewError(pipeline.ErrorClassValidation, "invalid project file", err).
			WithItem(path)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	p := &Project{
		Dir:             dir,
		OutputDir:       f.OutputDir,
		IntermediateDir: f.IntermediateDir,
		Platform:        f.Platform,
		Profile:         f.Profile,
		Config:          f.Config,
	}
	p.References = p.NormalizeReferences(f.References)

	for _, fi := range f.Items {
		item := NewItem(fi.Source, fi.Destination)
		if fi.Action != "" {
			item.BuildAction = pipeline.BuildAction(fi.Action)
		}
		if fi.Importer != "" {
			item.Importer = pipeline.Missing[*pipeline.ImporterDescription](fi.Importer)
		}
		if fi.Processor != "" {
			item.Processor = pipeline.Missing[*pipeline.ProcessorDescription](fi.Processor)
		}
		item.SetStoredParams(fi.Params)
		if err := p.AddItem(item); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	return p, nil
}

// Save writes the project file with '/' separated paths.
func (p *Project) Save(path string) error {
	f := projectFile{
		OutputDir:       p.OutputDir,
		IntermediateDir: p.IntermediateDir,
		References:      p.References,
		Platform:        p.Platform,
		Profile:         p.Profile,
		Config:          p.Config,
	}
	for _, item := range p.Items {
		fi := itemFile{
			Source:    item.SourcePath,
			Action:    string(item.BuildAction),
			Importer:  item.Importer.Name(),
			Processor: item.Processor.Name(),
			Params:    item.FormattedParams(),
		}
		if item.DestinationPath != item.SourcePath {
			fi.Destination = item.DestinationPath
		}
		if len(fi.Params) == 0 {
			fi.Params = nil
		}
		f.Items = append(f.Items, fi)
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}
	return nil
}
