package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/contentkit/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past builds",
		Long: `Inspect builds recorded in the history database.

History is recorded by build, rebuild, clean and edit when history is
enabled in the configuration.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var (
		limit int
		state string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent builds",
		Example: `  # Last ten failed builds of this project
  ckit history list --state failed --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadHistoryApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			filter := stores.BuildFilter{State: state, Limit: limit}
			if !all {
				dir, err := filepath.Abs(filepath.Dir(projectPath))
				if err != nil {
					return err
				}
				filter.Project = dir
			}
			builds, err := a.store.ListBuilds(ctx, filter)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(builds)
			}
			if len(builds) == 0 {
				fmt.Println("No builds recorded")
				return nil
			}
			fmt.Printf("%-36s  %-7s  %-9s  %-19s  %8s  %s\n", "ID", "MODE", "STATE", "STARTED", "DURATION", "ERR/WARN")
			for _, b := range builds {
				fmt.Printf("%-36s  %-7s  %-9s  %-19s  %8s  %d/%d\n",
					b.ID, b.Mode, b.State,
					b.StartedAt.Local().Format(time.DateTime),
					b.Duration().Round(time.Millisecond), b.Errors, b.Warnings)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of builds")
	cmd.Flags().StringVar(&state, "state", "", "only builds in this final state (succeeded, failed, cancelled)")
	cmd.Flags().BoolVar(&all, "all", false, "include builds of every project")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	var output bool

	cmd := &cobra.Command{
		Use:   "show <build-id>",
		Short: "Show one build and its diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadHistoryApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			build, err := a.store.GetBuild(ctx, args[0])
			if err != nil {
				return err
			}
			events, err := a.store.ListBuildEvents(ctx, build.ID)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(struct {
					Build  *stores.BuildRecord        `json:"build"`
					Events []*stores.BuildEventRecord `json:"events"`
				}{build, events})
			}

			fmt.Printf("Build     %s\n", build.ID)
			fmt.Printf("Project   %s\n", build.Project)
			fmt.Printf("Mode      %s\n", build.Mode)
			fmt.Printf("State     %s (exit %d)\n", build.State, build.ExitCode)
			fmt.Printf("Started   %s\n", build.StartedAt.Local().Format(time.DateTime))
			fmt.Printf("Duration  %s\n", build.Duration().Round(time.Millisecond))
			if build.Error != nil {
				fmt.Printf("Error     %s\n", *build.Error)
			}
			fmt.Println()
			for _, rec := range events {
				ev := rec.Event()
				if output {
					fmt.Println(ev.Raw)
					continue
				}
				if ev.Kind.IsDiagnostic() {
					fmt.Println(ev)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&output, "output", false, "print the full tool output instead of diagnostics only")

	return cmd
}

func loadHistoryApp(cmd *cobra.Command) (*app, error) {
	a, err := loadApp(cmd.Context(), true)
	if err != nil {
		return nil, err
	}
	if a.store == nil {
		a.close(cmd.Context())
		return nil, errors.New("build history is disabled in the configuration")
	}
	return a, nil
}
