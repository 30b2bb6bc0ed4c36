package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath  string
	projectPath string
	verbose     bool
	jsonOutput  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ckit",
		Short: "contentkit - content pipeline project tool",
		Long: `contentkit edits content pipeline projects and drives the external
content build tool.

Features:
  - Undoable project edits (include, exclude, rename, properties)
  - Importer/processor registry with YAML extension manifests
  - Build orchestration with parsed, per-asset diagnostics
  - SQLite build history`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: ./ckit.yaml)")
	rootCmd.PersistentFlags().StringVarP(&projectPath, "project", "p", "Content.ckproj", "project file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newBuildCommand("build", "Build changed content", "Incrementally build the project's content."))
	rootCmd.AddCommand(newBuildCommand("rebuild", "Rebuild all content", "Rebuild every item, ignoring incremental state."))
	rootCmd.AddCommand(newBuildCommand("clean", "Remove build output", "Delete the output and intermediate files of the project."))
	rootCmd.AddCommand(newTypesCommand())
	rootCmd.AddCommand(newParseCommand())
	rootCmd.AddCommand(newIncludeCommand())
	rootCmd.AddCommand(newEditCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
