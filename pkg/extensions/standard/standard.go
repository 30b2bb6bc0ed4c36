// Package standard is the built-in extension module. It registers the
// importers and processors every project gets without any reference.
package standard

import (
	"github.com/openfroyo/contentkit/pkg/pipeline"
	"github.com/openfroyo/contentkit/pkg/registry"
)

// ModuleName is the name the module registers under.
const ModuleName = "Standard.Content"

// Output type names shared between importers and processors.
const (
	TypeTexture  = "TextureContent"
	TypeFont     = "FontDescription"
	TypeEffect   = "EffectContent"
	TypeAudio    = "AudioContent"
	TypeNode     = "NodeContent"
	TypeXML      = "XmlContent"
	TypeRawBytes = "RawContent"
)

var textureFormats = []string{"Color", "Compressed", "NoChange"}

// Register returns the module manifest.
func Register() (*registry.Manifest, error) {
	return &registry.Manifest{
		Name:    ModuleName,
		Version: "1.0.0",
		Importers: []pipeline.ImporterDescription{
			{
				Name:             "TextureImporter",
				DisplayName:      "Texture Importer",
				Extensions:       []string{".png", ".jpg", ".jpeg", ".bmp", ".tga", ".dds", ".gif"},
				DefaultProcessor: "TextureProcessor",
				OutputType:       TypeTexture,
			},
			{
				Name:             "FontDescriptionImporter",
				DisplayName:      "Sprite Font Importer",
				Extensions:       []string{".spritefont"},
				DefaultProcessor: "FontDescriptionProcessor",
				OutputType:       TypeFont,
			},
			{
				Name:             "EffectImporter",
				DisplayName:      "Effect Importer",
				Extensions:       []string{".fx"},
				DefaultProcessor: "EffectProcessor",
				OutputType:       TypeEffect,
			},
			{
				Name:             "WavImporter",
				DisplayName:      "Wav Importer",
				Extensions:       []string{".wav"},
				DefaultProcessor: "SoundEffectProcessor",
				OutputType:       TypeAudio,
			},
			{
				Name:             "Mp3Importer",
				DisplayName:      "Mp3 Importer",
				Extensions:       []string{".mp3"},
				DefaultProcessor: "SongProcessor",
				OutputType:       TypeAudio,
			},
			{
				Name:             "OggImporter",
				DisplayName:      "Ogg Importer",
				Extensions:       []string{".ogg"},
				DefaultProcessor: "SongProcessor",
				OutputType:       TypeAudio,
			},
			{
				Name:             "FbxImporter",
				DisplayName:      "Fbx Importer",
				Extensions:       []string{".fbx", ".obj"},
				DefaultProcessor: "ModelProcessor",
				OutputType:       TypeNode,
			},
			{
				Name:             "XmlImporter",
				DisplayName:      "Xml Importer",
				Extensions:       []string{".xml"},
				DefaultProcessor: "PassThroughProcessor",
				OutputType:       TypeXML,
			},
		},
		Processors: []pipeline.ProcessorDescription{
			{
				Name:        "TextureProcessor",
				DisplayName: "Texture",
				InputType:   TypeTexture,
				Properties: []pipeline.PropertyDescription{
					{Name: "ColorKeyColor", Type: pipeline.PropertyColor, Default: "255,0,255,255", Browsable: true},
					{Name: "ColorKeyEnabled", Type: pipeline.PropertyBool, Default: true, Browsable: true},
					{Name: "GenerateMipmaps", Type: pipeline.PropertyBool, Default: false, Browsable: true},
					{Name: "PremultiplyAlpha", Type: pipeline.PropertyBool, Default: true, Browsable: true},
					{Name: "ResizeToPowerOfTwo", Type: pipeline.PropertyBool, Default: false, Browsable: true},
					{Name: "MakeSquare", Type: pipeline.PropertyBool, Default: false, Browsable: true},
					{Name: "TextureFormat", Type: pipeline.PropertyEnum, Values: textureFormats, Default: "Color", Browsable: true},
				},
			},
			{
				Name:        "FontDescriptionProcessor",
				DisplayName: "Sprite Font Description",
				InputType:   TypeFont,
				Properties: []pipeline.PropertyDescription{
					{Name: "PremultiplyAlpha", Type: pipeline.PropertyBool, Default: true, Browsable: true},
					{Name: "TextureFormat", Type: pipeline.PropertyEnum, Values: textureFormats, Default: "Compressed", Browsable: true},
				},
			},
			{
				Name:        "EffectProcessor",
				DisplayName: "Effect",
				InputType:   TypeEffect,
				Properties: []pipeline.PropertyDescription{
					{Name: "DebugMode", Type: pipeline.PropertyEnum, Values: []string{"Auto", "Debug", "Optimize"}, Default: "Auto", Browsable: true},
					{Name: "Defines", Type: pipeline.PropertyString, Default: "", Browsable: true},
				},
			},
			{
				Name:        "SoundEffectProcessor",
				DisplayName: "Sound Effect",
				InputType:   TypeAudio,
				Properties: []pipeline.PropertyDescription{
					{Name: "Quality", Type: pipeline.PropertyEnum, Values: []string{"Best", "Medium", "Low"}, Default: "Best", Browsable: true},
				},
			},
			{
				Name:        "SongProcessor",
				DisplayName: "Song",
				InputType:   TypeAudio,
				Properties: []pipeline.PropertyDescription{
					{Name: "Quality", Type: pipeline.PropertyEnum, Values: []string{"Best", "Medium", "Low"}, Default: "Best", Browsable: true},
				},
			},
			{
				Name:        "ModelProcessor",
				DisplayName: "Model",
				InputType:   TypeNode,
				Properties: []pipeline.PropertyDescription{
					{Name: "Scale", Type: pipeline.PropertyFloat, Default: 1.0, Browsable: true},
					{Name: "RotationX", Type: pipeline.PropertyFloat, Default: 0.0, Browsable: true},
					{Name: "RotationY", Type: pipeline.PropertyFloat, Default: 0.0, Browsable: true},
					{Name: "RotationZ", Type: pipeline.PropertyFloat, Default: 0.0, Browsable: true},
					{Name: "GenerateTangentFrames", Type: pipeline.PropertyBool, Default: false, Browsable: true},
					{Name: "SwapWindingOrder", Type: pipeline.PropertyBool, Default: false, Browsable: true},
					{Name: "DefaultEffect", Type: pipeline.PropertyEnum, Values: []string{"BasicEffect", "SkinnedEffect", "EnvironmentMapEffect", "DualTextureEffect", "AlphaTestEffect"}, Default: "BasicEffect", Browsable: true},
				},
			},
			{
				Name:        "PassThroughProcessor",
				DisplayName: "No Processing Required",
				InputType:   TypeXML,
			},
		},
	}, nil
}
