package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/contentkit/pkg/editor"
	"github.com/openfroyo/contentkit/pkg/project"
)

func newInitCommand() *cobra.Command {
	var (
		platform   string
		profile    string
		references []string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new content project",
		Long: `Create an empty content project file.

The project starts with the default output and intermediate directories.
References name extension manifests (or modules with a manifest next to
them) whose importers and processors the project can use.`,
		Example: `  # Create Content.ckproj in the current directory
  ckit init

  # Create a project for Android with an extension
  ckit init -p game/Content.ckproj --platform Android --ref ext/Levels.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			s, err := editor.Create(ctx, projectPath, a.cfg, editor.WithTelemetry(a.tel))
			if err != nil {
				return err
			}
			defer s.Close()

			p := s.Project()
			p.Platform = platform
			p.Profile = profile
			p.SetReferences(references)
			if len(references) > 0 {
				if err := s.ReloadTypes(ctx); err != nil {
					return err
				}
			}
			if err := s.Save(ctx); err != nil {
				return err
			}

			log.Info().Str("project", projectPath).Str("platform", platform).Msg("Project created")
			fmt.Printf("Created %s (%s, %s)\n", projectPath, p.Platform, p.Profile)
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", project.DefaultPlatform, "target platform")
	cmd.Flags().StringVar(&profile, "profile", project.DefaultProfile, "graphics profile (Reach, HiDef)")
	cmd.Flags().StringSliceVar(&references, "ref", nil, "extension reference (repeatable)")

	return cmd
}
