package actions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/contentkit/pkg/pipeline"
)

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadTemplates reads a template list. Relative template sources are
// resolved against the file's directory.
func LoadTemplates(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}

	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, pipeline.NewError(pipeline.ErrorClassValidation, "failed to parse templates", err).
			WithItem(path)
	}

	base := filepath.Dir(path)
	seen := make(map[string]bool, len(f.Templates))
	for i := range f.Templates {
		t := &f.Templates[i]
		if t.Name == "" || t.SourcePath == "" {
			return nil, pipeline.NewError(pipeline.ErrorClassValidation,
				fmt.Sprintf("template %d needs a name and a source", i), nil).WithItem(path)
		}
		key := strings.ToLower(t.Name)
		if seen[key] {
			return nil, pipeline.NewError(pipeline.ErrorClassValidation,
				fmt.Sprintf("duplicate template %q", t.Name), nil).WithItem(path)
		}
		seen[key] = true
		if !filepath.IsAbs(t.SourcePath) {
			t.SourcePath = filepath.Join(base, filepath.FromSlash(t.SourcePath))
		}
	}
	return f.Templates, nil
}

// FindTemplate returns the template with the given name, ignoring case.
func FindTemplate(templates []Template, name string) (*Template, bool) {
	for i := range templates {
		if strings.EqualFold(templates[i].Name, name) {
			return &templates[i], true
		}
	}
	return nil, false
}
