package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/contentkit/pkg/buildlog"
)

func newParseCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Classify captured build tool output",
		Long: `Parse a captured log of the content build tool and print the events
recognized in it, followed by the per-asset diagnostics.

Reads standard input when no file is given or the file is "-".`,
		Example: `  # Classify a saved log
  ckit parse build.log

  # Include unrecognized lines
  mgcb /@:Content.mgcb | ckit parse --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = os.Stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open log: %w", err)
				}
				defer f.Close()
				in = f
			}

			parser := buildlog.NewParser()
			collector := buildlog.NewCollector()
			var events []parsedLine

			sc := bufio.NewScanner(in)
			sc.Buffer(make([]byte, 64*1024), 1024*1024)
			for n := 1; sc.Scan(); n++ {
				ev := parser.Parse(sc.Text())
				collector.Add(ev)
				if ev.Kind == buildlog.EventUnrecognized && !all {
					continue
				}
				if jsonOutput {
					events = append(events, newParsedLine(n, ev))
					continue
				}
				fmt.Printf("%5d %-24s %s\n", n, ev.Kind, ev)
			}
			if err := sc.Err(); err != nil {
				return fmt.Errorf("failed to read log: %w", err)
			}

			if jsonOutput {
				return printJSON(struct {
					Events   []parsedLine      `json:"events"`
					Assets   []*buildlog.Asset `json:"assets"`
					Errors   int               `json:"errors"`
					Warnings int               `json:"warnings"`
				}{events, collector.Assets(), collector.Errors(), collector.Warnings()})
			}

			fmt.Printf("\n%d asset(s), %d error(s), %d warning(s), %d unrecognized line(s)\n",
				len(collector.Assets()), collector.Errors(), collector.Warnings(), collector.Unrecognized())
			for _, asset := range collector.Failed() {
				fmt.Printf("  failed: %s\n", asset.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "also print unrecognized lines")

	return cmd
}

type parsedLine struct {
	Line     int    `json:"line"`
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"`
	Severity string `json:"severity,omitempty"`
	Position int    `json:"position,omitempty"`
	Column   string `json:"column,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Raw      string `json:"raw"`
}

func newParsedLine(n int, ev buildlog.Event) parsedLine {
	return parsedLine{
		Line:     n,
		Kind:     ev.Kind.String(),
		Path:     ev.Path,
		Severity: string(ev.Severity),
		Position: ev.Line,
		Column:   ev.Column,
		Code:     ev.Code,
		Message:  ev.Message,
		Raw:      ev.Raw,
	}
}
