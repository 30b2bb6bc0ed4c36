package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/contentkit/pkg/actions"
	"github.com/openfroyo/contentkit/pkg/builder"
	"github.com/openfroyo/contentkit/pkg/editor"
)

const editHelp = `Commands:
  include <file> [dest]        copy a file into the project
  link <file> [dest]           reference a file in place
  template <name> <dest>       create a file from a template
  folder <path>                create a folder
  exclude <path>...            remove items or folders
  move <path> <new-name>       rename an item or folder
  set [path...] <name>=<value> set a property (no path: project)
  undo | redo                  step through history
  build | rebuild | clean      start a build in the background
  cancel                       stop the running build
  status                       show project and history state
  save                         write the project file
  quit [!]                     leave, "quit !" discards changes`

func newEditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit the project interactively",
		Long: `Open the project in an interactive session with undo and redo.

Builds run in the background while editing continues; their output is
printed as it arrives. Extension manifests are reloaded when they change
if extensions.watch_references is set.

` + editHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			d := builder.NewLoopDispatcher()
			defer d.Close()
			view := newConsoleView(true)

			s, err := a.open(ctx, editor.WithView(view), editor.WithDispatcher(d))
			if err != nil {
				return err
			}
			defer s.Close()

			if a.cfg.Extensions.WatchReferences {
				if err := s.WatchReferences(ctx); err != nil {
					log.Warn().Err(err).Msg("Failed to watch extension manifests")
				}
			}

			r := &repl{session: s, out: os.Stdout}
			view.onFinish = r.buildFinished
			return r.run(ctx, d, os.Stdin)
		},
	}

	return cmd
}

type repl struct {
	session *editor.Session
	out     io.Writer
}

var errQuit = errors.New("quit")

func (r *repl) run(ctx context.Context, d *builder.LoopDispatcher, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	fmt.Fprintf(r.out, "Editing %s. Type \"help\" for commands.\n", r.session.Path())
	r.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.Ready():
			d.RunPending()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := r.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			r.prompt()
		}
	}
}

func (r *repl) prompt() {
	marker := ""
	if r.session.Dirty() {
		marker = "*"
	}
	fmt.Fprintf(r.out, "ckit%s> ", marker)
}

func (r *repl) exec(ctx context.Context, line string) error {
	args, err := shellquote.Split(line)
	if err != nil || len(args) == 0 {
		return err
	}
	s := r.session
	cmd, args := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(r.out, editHelp)
		return nil

	case "include", "link":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: %s <file> [dest]", cmd)
		}
		mode := actions.IncludeCopy
		if cmd == "link" {
			mode = actions.IncludeLink
		}
		dest := destinationFor(s.Project().Dir, "", args[0])
		if len(args) == 2 {
			dest = args[1]
		}
		_, err := s.Include(actions.IncludeEntry{Source: args[0], Destination: dest, Mode: mode})
		return err

	case "template":
		if len(args) != 2 {
			return errors.New("usage: template <name> <dest>")
		}
		_, err := s.IncludeTemplate(args[0], args[1])
		return err

	case "folder":
		if len(args) != 1 {
			return errors.New("usage: folder <path>")
		}
		_, err := s.Include(actions.IncludeEntry{Destination: args[0], Mode: actions.IncludeFolder})
		return err

	case "exclude", "rm":
		if len(args) == 0 {
			return errors.New("usage: exclude <path>...")
		}
		return s.Exclude(args...)

	case "move", "mv":
		if len(args) != 2 {
			return errors.New("usage: move <path> <new-name>")
		}
		return s.Move(args[0], args[1])

	case "set":
		if len(args) == 0 {
			return errors.New("usage: set [path...] <name>=<value>")
		}
		name, value, ok := strings.Cut(args[len(args)-1], "=")
		if !ok {
			return errors.New("usage: set [path...] <name>=<value>")
		}
		return s.SetProperty(args[:len(args)-1], name, value)

	case "undo":
		return s.Undo()

	case "redo":
		return s.Redo()

	case "build", "rebuild", "clean":
		mode, err := builder.ParseMode(cmd)
		if err != nil {
			return err
		}
		h, err := s.Build(ctx, builder.Request{Mode: mode, Items: args})
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Build %s started\n", h.ID())
		return nil

	case "cancel":
		return s.Cancel()

	case "status":
		r.status()
		return nil

	case "save":
		return s.Save(ctx)

	case "quit", "exit", "q":
		force := len(args) == 1 && args[0] == "!"
		if s.Dirty() && !force {
			return errors.New(`unsaved changes; "save" first or "quit !" to discard`)
		}
		return errQuit

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (r *repl) status() {
	s := r.session
	p := s.Project()
	menu := s.Stack().MenuState()

	fmt.Fprintf(r.out, "Project   %s (%s, %s)\n", s.Path(), p.Platform, p.Profile)
	fmt.Fprintf(r.out, "Items     %d, %d unresolved\n", len(p.Items), len(s.Unresolved()))
	fmt.Fprintf(r.out, "Modules   %s\n", strings.Join(s.Registry().Modules(), ", "))
	fmt.Fprintf(r.out, "Build     %s\n", s.Builder().State())
	fmt.Fprintf(r.out, "Undo      %v %s\n", menu.CanUndo, strings.Join(s.Stack().UndoDescriptions(), "; "))
	fmt.Fprintf(r.out, "Redo      %v %s\n", menu.CanRedo, strings.Join(s.Stack().RedoDescriptions(), "; "))
	if s.Dirty() {
		fmt.Fprintln(r.out, "Unsaved changes")
	}
}

func (r *repl) buildFinished() {
	last := r.session.Builder().Last()
	if last == nil {
		return
	}
	printBuildReport(last)
	r.prompt()
}
