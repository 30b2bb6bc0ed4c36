package commands

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/contentkit/pkg/actions"
	"github.com/openfroyo/contentkit/pkg/editor"
)

func newIncludeCommand() *cobra.Command {
	var (
		dest     string
		link     bool
		folders  []string
		template string
		as       string
	)

	cmd := &cobra.Command{
		Use:   "include [files...]",
		Short: "Add files to the project",
		Long: `Add files to the project and save it.

Files outside the project directory are copied into it unless --link is
given, in which case the project references them where they are. Files
already inside the project directory keep their relative path.`,
		Example: `  # Copy two textures into Textures/
  ckit include --dest Textures ~/art/hero.png ~/art/enemy.png

  # Reference a shared file without copying it
  ckit include --link ../shared/ui.spritefont

  # Create a new file from a template
  ckit include --template "Sprite Effect" --as Effects/glow.fx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(folders) == 0 && template == "" {
				return errors.New("nothing to include")
			}
			if template != "" && as == "" {
				return errors.New("--as is required with --template")
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			s, err := a.open(ctx, editor.WithView(newConsoleView(false)))
			if err != nil {
				return err
			}
			defer s.Close()

			var entries []actions.IncludeEntry
			for _, f := range folders {
				entries = append(entries, actions.IncludeEntry{Destination: f, Mode: actions.IncludeFolder})
			}
			mode := actions.IncludeCopy
			if link {
				mode = actions.IncludeLink
			}
			for _, file := range args {
				entries = append(entries, actions.IncludeEntry{
					Source:      file,
					Destination: destinationFor(s.Project().Dir, dest, file),
					Mode:        mode,
				})
			}

			var added []string
			if len(entries) > 0 {
				items, err := s.Include(entries...)
				if err != nil {
					return err
				}
				for _, item := range items {
					added = append(added, item.DestinationPath)
				}
			}
			if template != "" {
				item, err := s.IncludeTemplate(template, as)
				if err != nil {
					return err
				}
				added = append(added, item.DestinationPath)
			}

			if err := s.Save(ctx); err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(struct {
					Items   []string `json:"items"`
					Folders []string `json:"folders,omitempty"`
				}{added, folders})
			}
			for _, d := range added {
				item := s.Project().FindItem(d)
				fmt.Printf("  + %-40s %s / %s\n", d, item.Importer, item.Processor)
			}
			for _, unresolved := range s.Unresolved() {
				fmt.Printf("  ! %s has no importer or processor\n", unresolved.DestinationPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "project folder to place files in")
	cmd.Flags().BoolVar(&link, "link", false, "reference files in place instead of copying")
	cmd.Flags().StringSliceVar(&folders, "folder", nil, "create a folder (repeatable)")
	cmd.Flags().StringVar(&template, "template", "", "create a file from this template")
	cmd.Flags().StringVar(&as, "as", "", "project path of the file created from --template")

	return cmd
}

// destinationFor picks the project path for file. Inside the project
// directory it keeps its relative path unless a folder is given.
func destinationFor(projectDir, folder, file string) string {
	if folder != "" {
		return path.Join(filepath.ToSlash(folder), filepath.Base(file))
	}
	abs, err := filepath.Abs(file)
	if err == nil && projectDir != "" {
		if dir, err := filepath.Abs(projectDir); err == nil {
			rel, err := filepath.Rel(dir, abs)
			if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return filepath.ToSlash(rel)
			}
		}
	}
	return filepath.Base(file)
}
