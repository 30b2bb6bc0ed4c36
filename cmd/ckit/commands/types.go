package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/contentkit/pkg/extensions/standard"
	"github.com/openfroyo/contentkit/pkg/pipeline"
	"github.com/openfroyo/contentkit/pkg/registry"
)

func newTypesCommand() *cobra.Command {
	var references []string

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List importers and processors",
		Long: `List the importers and processors available to the project.

With a project file present its references are loaded; otherwise only the
built-in module and any --ref manifests are listed.`,
		Example: `  # Types available to Content.ckproj
  ckit types

  # Types from a manifest, without a project
  ckit types --ref ext/Levels.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			var reg *registry.Registry
			if _, statErr := os.Stat(projectPath); statErr == nil {
				s, err := a.open(ctx)
				if err != nil {
					return err
				}
				defer s.Close()
				reg = s.Registry()
			} else {
				reg = registry.New(
					registry.WithBuiltin(standard.ModuleName, standard.Register),
					registry.WithLogger(a.tel.Logger.Zerolog()),
				)
				wd, _ := os.Getwd()
				if err := reg.Load(ctx, wd, references); err != nil {
					return err
				}
			}

			if jsonOutput {
				return printJSON(struct {
					Modules    []string                         `json:"modules"`
					Importers  []*pipeline.ImporterDescription  `json:"importers"`
					Processors []*pipeline.ProcessorDescription `json:"processors"`
				}{reg.Modules(), reg.Importers(), reg.Processors()})
			}

			fmt.Printf("Modules: %s\n\nImporters:\n", strings.Join(reg.Modules(), ", "))
			for _, imp := range reg.Importers() {
				fmt.Printf("  %-28s %-24s -> %-18s %s\n",
					imp.Name, strings.Join(imp.Extensions, " "), imp.DefaultProcessor, imp.Module)
			}
			fmt.Println("\nProcessors:")
			for _, proc := range reg.Processors() {
				fmt.Printf("  %-28s input %-18s %s\n", proc.Name, proc.InputType, proc.Module)
				for _, prop := range proc.Properties {
					if !prop.Browsable && !verbose {
						continue
					}
					fmt.Printf("      %-24s %-7s default %s\n", prop.Name, prop.Type, registry.FormatValue(prop.Default))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&references, "ref", nil, "extension reference to load without a project (repeatable)")

	return cmd
}
