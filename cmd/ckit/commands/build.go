package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/contentkit/pkg/builder"
	"github.com/openfroyo/contentkit/pkg/buildlog"
	"github.com/openfroyo/contentkit/pkg/editor"
)

func newBuildCommand(name, short, long string) *cobra.Command {
	var items []string

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Long: long + `

Tool output is echoed as it arrives. Each line is classified, and errors
and warnings are grouped per asset in the final report. Interrupting the
command cancels the build.`,
		Example: fmt.Sprintf(`  # Whole project
  ckit %[1]s

  # Only selected items
  ckit %[1]s --item Textures/hero.png --item Fonts/ui.spritefont`, name),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := builder.ParseMode(name)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			s, err := a.open(ctx, editor.WithView(newConsoleView(!jsonOutput)))
			if err != nil {
				return err
			}
			defer s.Close()

			h, err := s.Build(ctx, builder.Request{Mode: mode, Items: items})
			if err != nil {
				return err
			}
			log.Debug().Str("build_id", h.ID()).Str("mode", mode.String()).Msg("Build started")

			// Cancellation reaches the build through ctx; wait for its result
			// while echoing output on this goroutine.
			result, err := s.Wait(context.WithoutCancel(ctx), h)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(newBuildReport(result)); err != nil {
					return err
				}
			} else {
				printBuildReport(result)
			}
			if result.State != builder.StateSucceeded {
				return fmt.Errorf("build %s: %w", result.State, result.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&items, "item", nil, "limit the build to these items (repeatable)")

	return cmd
}

type buildReport struct {
	ID       string            `json:"id"`
	Mode     string            `json:"mode"`
	State    string            `json:"state"`
	ExitCode int               `json:"exit_code"`
	Duration string            `json:"duration"`
	Errors   int               `json:"errors"`
	Warnings int               `json:"warnings"`
	Summary  string            `json:"summary,omitempty"`
	Error    string            `json:"error,omitempty"`
	Assets   []*buildlog.Asset `json:"assets"`
}

func newBuildReport(r *builder.Result) buildReport {
	report := buildReport{
		ID:       r.ID,
		Mode:     r.Mode.String(),
		State:    r.State.String(),
		ExitCode: r.ExitCode,
		Duration: r.Duration().Round(time.Millisecond).String(),
		Errors:   r.Collector.Errors(),
		Warnings: r.Collector.Warnings(),
		Assets:   r.Collector.Assets(),
	}
	if sum := r.Collector.Summary(); sum != nil {
		report.Summary = sum.Text
	}
	if r.Err != nil {
		report.Error = r.Err.Error()
	}
	return report
}

func printBuildReport(r *builder.Result) {
	c := r.Collector
	fmt.Println()
	for _, asset := range c.Assets() {
		if len(asset.Diagnostics) == 0 {
			continue
		}
		fmt.Printf("%s (%s)\n", asset.Path, asset.Status)
		for _, d := range asset.Diagnostics {
			pos := ""
			if d.Line > 0 {
				pos = fmt.Sprintf(" line %d", d.Line)
				if d.Column != "" {
					pos += ", col " + d.Column
				}
			}
			fmt.Printf("  %s%s: %s\n", d.Severity, pos, d.Message)
		}
	}

	fmt.Printf("Build %s in %s: %d error(s), %d warning(s)\n",
		r.State, r.Duration().Round(time.Millisecond), c.Errors(), c.Warnings())
	if sum := c.Summary(); sum != nil && sum.HasCounts {
		fmt.Printf("  %d succeeded, %d failed, %d skipped\n", sum.Succeeded, sum.Failed, sum.Skipped)
	}
}
