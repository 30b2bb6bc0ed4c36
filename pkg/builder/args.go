package builder

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/openfroyo/contentkit/pkg/pipeline"
	"github.com/openfroyo/contentkit/pkg/project"
)

// Mode selects what the build tool does.
type Mode int

const (
	// ModeBuild builds items whose sources or settings changed.
	ModeBuild Mode = iota

	// ModeRebuild builds every selected item regardless of its state.
	ModeRebuild

	// ModeClean deletes build outputs.
	ModeClean
)

// String returns the mode name used in logs and metrics.
func (m Mode) String() string {
	switch m {
	case ModeBuild:
		return "build"
	case ModeRebuild:
		return "rebuild"
	case ModeClean:
		return "clean"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "build", "":
		return ModeBuild, nil
	case "rebuild":
		return ModeRebuild, nil
	case "clean":
		return ModeClean, nil
	default:
		return 0, pipeline.NewError(pipeline.ErrorClassValidation, fmt.Sprintf("unknown build mode %q", s), nil)
	}
}

// Request describes one build.
type Request struct {
	Mode Mode

	// Items limits the build to these destination paths. Empty means all.
	Items []string
}

// ResponseFileExt is the extension of generated response files.
const ResponseFileExt = ".mgcb"

// WriteResponseFile serializes the project into the build tool's response
// file format, one switch per line. Items are filtered by req.Items.
func WriteResponseFile(w io.Writer, p *project.Project, req Request) error {
	bw := bufio.NewWriter(w)
	line := func(format string, args ...any) {
		fmt.Fprintf(bw, format+"\n", args...)
	}

	line("/outputDir:%s", p.OutputDir)
	line("/intermediateDir:%s", p.IntermediateDir)
	line("/platform:%s", p.Platform)
	line("/config:%s", p.Config)
	line("/profile:%s", p.Profile)
	switch req.Mode {
	case ModeRebuild:
		line("/rebuild")
	case ModeClean:
		line("/clean")
	}

	for _, ref := range p.References {
		line("/reference:%s", ref)
	}

	items, err := selectItems(p, req.Items)
	if err != nil {
		return err
	}
	for _, item := range items {
		writeItem(line, item)
	}
	return bw.Flush()
}

func writeItem(line func(string, ...any), item *project.ContentItem) {
	if item.BuildAction == pipeline.BuildActionCopy {
		line("/copy:%s;%s", item.SourcePath, item.DestinationPath)
		return
	}

	// Missing descriptors still carry the requested name; the tool reports
	// the failure for this asset only.
	if name := item.Importer.Name(); name != "" {
		line("/importer:%s", name)
	}
	if name := item.Processor.Name(); name != "" {
		line("/processor:%s", name)
	}
	params := item.FormattedParams()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		line("/processorParam:%s=%s", k, params[k])
	}
	line("/build:%s;%s", item.SourcePath, item.DestinationPath)
}

func selectItems(p *project.Project, filter []string) ([]*project.ContentItem, error) {
	if len(filter) == 0 {
		return p.Items, nil
	}
	out := make([]*project.ContentItem, 0, len(filter))
	for _, dest := range filter {
		item := p.FindItem(dest)
		if item == nil {
			return nil, pipeline.NewError(pipeline.ErrorClassValidation, "content item not found", pipeline.ErrItemNotFound).
				WithItem(dest).WithCode(pipeline.ErrCodeItemNotFound)
		}
		if !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out, nil
}

// ToolArgs returns the command line for a response file.
func ToolArgs(responseFile string, extra []string) []string {
	args := slices.Clone(extra)
	return append(args, "/@:"+responseFile)
}
