package registry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/openfroyo/contentkit/pkg/pipeline"
)

var namedColors = map[string]pipeline.Color{
	"black":          {R: 0, G: 0, B: 0, A: 255},
	"white":          {R: 255, G: 255, B: 255, A: 255},
	"red":            {R: 255, G: 0, B: 0, A: 255},
	"green":          {R: 0, G: 128, B: 0, A: 255},
	"blue":           {R: 0, G: 0, B: 255, A: 255},
	"magenta":        {R: 255, G: 0, B: 255, A: 255},
	"transparent":    {R: 0, G: 0, B: 0, A: 0},
	"cornflowerblue": {R: 100, G: 149, B: 237, A: 255},
}

// ConvertValue converts a stored or user-entered value to the declared type
// of prop. Values arrive as strings from project files and the command line,
// or already typed from manifests and in-process callers.
func ConvertValue(prop *pipeline.PropertyDescription, value any) (any, error) {
	if value == nil {
		return prop.Default, nil
	}

	switch prop.Type {
	case pipeline.PropertyString:
		return cast.ToStringE(value)
	case pipeline.PropertyBool:
		return cast.ToBoolE(value)
	case pipeline.PropertyInt:
		return toInt(value)
	case pipeline.PropertyFloat:
		return cast.ToFloat64E(value)
	case pipeline.PropertyColor:
		return toColor(value)
	case pipeline.PropertyEnum:
		return toEnum(prop.Values, value)
	default:
		return nil, fmt.Errorf("unsupported property type %q", prop.Type)
	}
}

// FormatValue renders a converted value as the build tool's key=value text.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case pipeline.Color:
		return v.String()
	default:
		return cast.ToString(v)
	}
}

// toInt reads text as base 10, so a leading zero is not octal, and rejects
// floats with a fractional part instead of truncating them.
func toInt(value any) (int64, error) {
	switch v := value.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", v)
		}
		return n, nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	}
	return cast.ToInt64E(value)
}

func floatToInt(f float64) (int64, error) {
	if math.Trunc(f) != f || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func toColor(value any) (pipeline.Color, error) {
	switch v := value.(type) {
	case pipeline.Color:
		return v, nil
	case *pipeline.Color:
		if v == nil {
			return pipeline.Color{}, fmt.Errorf("nil color")
		}
		return *v, nil
	}

	s, err := cast.ToStringE(value)
	if err != nil {
		return pipeline.Color{}, fmt.Errorf("unable to cast %#v to color", value)
	}
	s = strings.TrimSpace(s)

	if c, ok := namedColors[strings.ToLower(s)]; ok {
		return c, nil
	}

	if strings.HasPrefix(s, "#") {
		return parseHexColor(s[1:])
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return pipeline.Color{}, fmt.Errorf("invalid color %q", s)
	}
	channels := [4]uint8{0, 0, 0, 255}
	for i, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return pipeline.Color{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
		channels[i] = uint8(n)
	}
	return pipeline.Color{R: channels[0], G: channels[1], B: channels[2], A: channels[3]}, nil
}

func parseHexColor(hex string) (pipeline.Color, error) {
	if len(hex) != 6 && len(hex) != 8 {
		return pipeline.Color{}, fmt.Errorf("invalid hex color #%s", hex)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return pipeline.Color{}, fmt.Errorf("invalid hex color #%s: %w", hex, err)
	}
	return pipeline.Color{
		R: uint8(n >> 24),
		G: uint8(n >> 16),
		B: uint8(n >> 8),
		A: uint8(n),
	}, nil
}

func toEnum(values []string, value any) (string, error) {
	if idx, ok := value.(int); ok {
		if idx < 0 || idx >= len(values) {
			return "", fmt.Errorf("enum index %d out of range", idx)
		}
		return values[idx], nil
	}

	s, err := cast.ToStringE(value)
	if err != nil {
		return "", err
	}
	for _, v := range values {
		if strings.EqualFold(v, strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%q is not one of %v", s, values)
}
