package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/contentkit/pkg/pipeline"
)

const levelsManifest = `
name: Levels
version: "1.2"
importers:
  - name: LevelImporter
    display_name: Level Importer
    extensions: [.lvl]
    default_processor: LevelProcessor
    output_type: LevelContent
processors:
  - name: LevelProcessor
    display_name: Level Processor
    input_type: LevelContent
    properties:
      - name: Compress
        type: bool
        default: true
      - name: Quality
        type: enum
        values: [Low, High]
        default: high
      - name: Tint
        type: color
        default: "#ff000080"
      - name: Scale
        type: float
  - name: PassThroughProcessor
    input_type: RawContent
`

func textureModule() (*Manifest, error) {
	return &Manifest{
		Name: "Builtin",
		Importers: []pipeline.ImporterDescription{{
			Name:             "TextureImporter",
			DisplayName:      "Texture Importer",
			Extensions:       []string{".png", ".jpg"},
			DefaultProcessor: "TextureProcessor",
			OutputType:       "TextureContent",
		}},
		Processors: []pipeline.ProcessorDescription{{
			Name:      "TextureProcessor",
			InputType: "TextureContent",
			Properties: []pipeline.PropertyDescription{
				{Name: "GenerateMipmaps", Type: pipeline.PropertyBool},
				{Name: "ColorKeyColor", Type: pipeline.PropertyColor, Default: "magenta"},
			},
		}},
	}, nil
}

// writeManifest writes a manifest file into dir and returns its path
func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

func newLoadedRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	writeManifest(t, dir, "Levels.yaml", levelsManifest)

	r := New(WithBuiltin("Builtin", textureModule))
	if err := r.Load(context.Background(), dir, []string{"Levels.dll"}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return r, dir
}

func TestManifestLoader_Resolve(t *testing.T) {
	base := t.TempDir()
	loader := NewManifestLoader(base)

	tests := []struct {
		reference string
		want      string
	}{
		{"Levels.yaml", filepath.Join(base, "Levels.yaml")},
		{"ext/Levels.dll", filepath.Join(base, "ext", "Levels.yaml")},
		{"ext/Levels", filepath.Join(base, "ext", "Levels.yaml")},
		{filepath.Join(base, "abs", "Mod.dll"), filepath.Join(base, "abs", "Mod.yaml")},
	}

	for _, tt := range tests {
		t.Run(tt.reference, func(t *testing.T) {
			if got := loader.Resolve(tt.reference); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.reference, got, tt.want)
			}
		})
	}
}

func TestManifestLoader_LoadFromBytes(t *testing.T) {
	loader := NewManifestLoader("")

	manifest, err := loader.LoadFromBytes([]byte(levelsManifest))
	if err != nil {
		t.Fatalf("LoadFromBytes() error = %v", err)
	}
	if manifest.Name != "Levels" {
		t.Errorf("Name = %q, want Levels", manifest.Name)
	}
	if len(manifest.Importers) != 1 || len(manifest.Processors) != 2 {
		t.Fatalf("got %d importers, %d processors", len(manifest.Importers), len(manifest.Processors))
	}
	if got := manifest.Processors[0].Properties[1].Values; len(got) != 2 {
		t.Errorf("enum values = %v", got)
	}
}

func TestManifestLoader_Validate(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{
			name:     "missing name",
			manifest: "importers: []\n",
		},
		{
			name: "importer without extensions",
			manifest: `
name: Bad
importers:
  - name: A
    output_type: X
`,
		},
		{
			name: "unknown property type",
			manifest: `
name: Bad
processors:
  - name: P
    input_type: X
    properties:
      - name: Size
        type: vector
`,
		},
		{
			name: "enum without values",
			manifest: `
name: Bad
processors:
  - name: P
    input_type: X
    properties:
      - name: Mode
        type: enum
`,
		},
		{
			name: "duplicate importer",
			manifest: `
name: Bad
importers:
  - name: A
    extensions: [.a]
    output_type: X
  - name: A
    extensions: [.b]
    output_type: X
`,
		},
		{
			name:     "malformed yaml",
			manifest: "name: [unclosed\n",
		},
	}

	loader := NewManifestLoader("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loader.LoadFromBytes([]byte(tt.manifest)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestRegistry_Load(t *testing.T) {
	r, dir := newLoadedRegistry(t)

	modules := r.Modules()
	if len(modules) != 2 || modules[0] != "Builtin" || modules[1] != "Levels" {
		t.Errorf("Modules() = %v, want [Builtin Levels]", modules)
	}
	if got := r.ManifestPaths(); len(got) != 1 || got[0] != filepath.Join(dir, "Levels.yaml") {
		t.Errorf("ManifestPaths() = %v", got)
	}
	if got := len(r.Importers()); got != 2 {
		t.Errorf("len(Importers()) = %d, want 2", got)
	}
	if got := len(r.Processors()); got != 3 {
		t.Errorf("len(Processors()) = %d, want 3", got)
	}

	imp := r.FindImporter("LevelImporter", "")
	if imp == nil || imp.Module != "Levels" {
		t.Fatalf("FindImporter(LevelImporter) = %+v", imp)
	}
}

func TestRegistry_LoadPartialFailure(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "Levels.yaml", levelsManifest)
	writeManifest(t, dir, "Broken.yaml", "name: [\n")

	r := New(WithBuiltin("Builtin", textureModule))
	err := r.Load(context.Background(), dir, []string{"Missing.dll", "Broken.yaml", "Levels.yaml"})
	if err == nil {
		t.Fatal("expected error for missing and broken references")
	}

	// The good reference still loads.
	if r.FindImporter("", ".lvl") == nil {
		t.Error("Levels module not loaded after partial failure")
	}
	if got := r.ManifestPaths(); len(got) != 1 {
		t.Errorf("ManifestPaths() = %v, want only Levels.yaml", got)
	}
}

func TestRegistry_LoadBuiltinReference(t *testing.T) {
	r := New(WithBuiltin("Builtin", textureModule))
	if err := r.Load(context.Background(), t.TempDir(), []string{"libs/Builtin.dll"}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := r.Modules(); len(got) != 1 {
		t.Errorf("Modules() = %v, want [Builtin]", got)
	}
	if got := r.ManifestPaths(); len(got) != 0 {
		t.Errorf("ManifestPaths() = %v, want none", got)
	}
}

func TestRegistry_LoadReplacesState(t *testing.T) {
	r, dir := newLoadedRegistry(t)

	if err := r.Load(context.Background(), dir, nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.FindImporter("", ".lvl") != nil {
		t.Error("importer from dropped reference still registered")
	}
	if r.FindImporter("", ".png") == nil {
		t.Error("builtin importer missing after reload")
	}
}

func TestRegistry_LoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New()
	err := r.Load(ctx, t.TempDir(), []string{"Levels.yaml"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestRegistry_Register(t *testing.T) {
	r := New()
	manifest, _ := textureModule()
	if err := r.Register(manifest); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	err := r.Register(manifest)
	var perr *pipeline.Error
	if !errors.As(err, &perr) || perr.Code != pipeline.ErrCodeAlreadyExists {
		t.Errorf("second Register() error = %v, want %s", err, pipeline.ErrCodeAlreadyExists)
	}

	if err := r.Register(nil); !pipeline.IsClass(err, pipeline.ErrorClassValidation) {
		t.Errorf("Register(nil) error = %v, want validation error", err)
	}
}

func TestRegistry_FirstRegistrationWins(t *testing.T) {
	r := New(WithBuiltin("Builtin", textureModule))
	if err := r.Load(context.Background(), "", nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	err := r.Register(&Manifest{
		Name: "Override",
		Importers: []pipeline.ImporterDescription{{
			Name:       "TextureImporter",
			Extensions: []string{".tga"},
			OutputType: "TextureContent",
		}},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	imp := r.FindImporter("TextureImporter", "")
	if imp.Module != "Builtin" {
		t.Errorf("TextureImporter module = %q, want Builtin", imp.Module)
	}
	if r.FindImporter("", ".tga") != nil {
		t.Error("shadowed importer should not be registered")
	}
}

func TestRegistry_FindImporter(t *testing.T) {
	r, _ := newLoadedRegistry(t)

	tests := []struct {
		name     string
		typeName string
		ext      string
		want     string
	}{
		{"by type name", "TextureImporter", "", "TextureImporter"},
		{"by display name", "Level Importer", ".png", "LevelImporter"},
		{"name wins over extension", "LevelImporter", ".png", "LevelImporter"},
		{"by extension", "", ".png", "TextureImporter"},
		{"extension case-insensitive", "", ".LVL", "LevelImporter"},
		{"extension without dot", "", "jpg", "TextureImporter"},
		{"unknown name", "NoSuchImporter", ".png", ""},
		{"unknown extension", "", ".xyz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.FindImporter(tt.typeName, tt.ext)
			if tt.want == "" {
				if got != nil {
					t.Errorf("FindImporter() = %s, want nil", got.Name)
				}
				return
			}
			if got == nil || got.Name != tt.want {
				t.Errorf("FindImporter() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestRegistry_FindProcessor(t *testing.T) {
	r, _ := newLoadedRegistry(t)
	level := r.FindImporter("LevelImporter", "")

	tests := []struct {
		name     string
		typeName string
		importer *pipeline.ImporterDescription
		want     string
	}{
		{"by type name", "TextureProcessor", nil, "TextureProcessor"},
		{"by display name", "Level Processor", nil, "LevelProcessor"},
		{"importer default", "", level, "LevelProcessor"},
		{"no name no importer", "", nil, ""},
		{"unknown name ignores default", "Missing", level, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.FindProcessor(tt.typeName, tt.importer)
			if tt.want == "" {
				if got != nil {
					t.Errorf("FindProcessor() = %s, want nil", got.Name)
				}
				return
			}
			if got == nil || got.Name != tt.want {
				t.Errorf("FindProcessor() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestRegistry_CompatibleProcessors(t *testing.T) {
	r, _ := newLoadedRegistry(t)

	got := r.CompatibleProcessors(r.FindImporter("LevelImporter", ""))
	if len(got) != 1 || got[0].Name != "LevelProcessor" {
		t.Errorf("CompatibleProcessors(LevelImporter) = %v", got)
	}
	if all := r.CompatibleProcessors(nil); len(all) != 3 {
		t.Errorf("CompatibleProcessors(nil) returned %d, want 3", len(all))
	}
}

func TestRegistry_ConvertsDefaults(t *testing.T) {
	r, _ := newLoadedRegistry(t)
	proc := r.FindProcessor("LevelProcessor", nil)

	want := map[string]any{
		"Compress": true,
		"Quality":  "High",
		"Tint":     pipeline.Color{R: 255, G: 0, B: 0, A: 128},
		"Scale":    float64(0),
	}
	defaults := proc.Defaults()
	for key, w := range want {
		if defaults[key] != w {
			t.Errorf("default %s = %#v, want %#v", key, defaults[key], w)
		}
	}

	tex := r.FindProcessor("TextureProcessor", nil)
	if got := tex.Defaults()["ColorKeyColor"]; got != (pipeline.Color{R: 255, G: 0, B: 255, A: 255}) {
		t.Errorf("ColorKeyColor default = %#v", got)
	}
	if prop, _ := tex.Property("GenerateMipmaps"); prop.DisplayName != "GenerateMipmaps" {
		t.Errorf("DisplayName = %q, want name fallback", prop.DisplayName)
	}
}

func TestRegistry_InvalidDefault(t *testing.T) {
	r := New()
	err := r.Register(&Manifest{
		Name: "Bad",
		Processors: []pipeline.ProcessorDescription{{
			Name:      "P",
			InputType: "X",
			Properties: []pipeline.PropertyDescription{
				{Name: "Count", Type: pipeline.PropertyInt, Default: "lots"},
			},
		}},
	})
	if !pipeline.IsClass(err, pipeline.ErrorClassValidation) {
		t.Fatalf("Register() error = %v, want validation error", err)
	}
	if len(r.Modules()) != 0 {
		t.Error("failed module must not be registered")
	}
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "a.yaml", levelsManifest)
	writeManifest(t, dir, "b.YAML", levelsManifest)
	writeManifest(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.yaml"), 0755); err != nil {
		t.Fatal(err)
	}

	paths, err := ScanDirectory(dir)
	if err != nil {
		t.Fatalf("ScanDirectory() error = %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("ScanDirectory() = %v, want 2 manifests", paths)
	}

	if _, err := ScanDirectory(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestWatcher_ReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Levels.yaml", levelsManifest)
	other := writeManifest(t, dir, "Other.yaml", levelsManifest)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 10)
	w := NewWatcher(zerolog.Nop())
	w.SetDebounce(10 * time.Millisecond)
	defer w.Close()

	if err := w.Watch(ctx, []string{path}, func() { changed <- struct{}{} }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Unwatched files in the same directory are ignored.
	if err := os.WriteFile(other, []byte(levelsManifest+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
		t.Fatal("change reported for unwatched file")
	case <-time.After(200 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte(levelsManifest+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported for watched file")
	}
}
