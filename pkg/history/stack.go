// Package history implements the undo/redo command stack. It is the only
// path through which the project model is mutated.
package history

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Command is a reversible unit of project mutation. Implementations hold
// exactly the state needed to reverse themselves.
type Command interface {
	// Do applies (or re-applies) the mutation.
	Do() error

	// Undo reverses the mutation.
	Undo() error

	// Description is shown in history menus ("Include 3 items").
	Description() string
}

// Recorder receives counts of history operations. *telemetry.Metrics
// implements it.
type Recorder interface {
	RecordCommand(command, op string, ok bool)
}

// Stack records executed commands. Add only records history: the caller
// has already applied the command once. The stack is not safe for
// concurrent use.
type Stack struct {
	undo []Command
	redo []Command

	view     View
	building bool
	recorder Recorder
	logger   zerolog.Logger
}

// StackOption configures a Stack.
type StackOption func(*Stack)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) StackOption {
	return func(s *Stack) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) StackOption {
	return func(s *Stack) {
		s.logger = logger.With().Str("component", "history").Logger()
	}
}

// NewStack creates an empty stack notifying view of menu state changes.
func NewStack(view View, opts ...StackOption) *Stack {
	if view == nil {
		view = NopView{}
	}
	s := &Stack{view: view, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add records an already executed command and invalidates the redo history.
func (s *Stack) Add(cmd Command) {
	s.undo = append(s.undo, cmd)
	s.redo = nil
	s.record(cmd, "do", true)
	s.logger.Debug().Str("command", cmd.Description()).Int("depth", len(s.undo)).Msg("Command recorded")
	s.notify()
}

// Undo reverses the most recent command. It is a no-op when there is
// nothing to undo. On failure the command stays on the undo stack.
func (s *Stack) Undo() error {
	if len(s.undo) == 0 {
		return nil
	}
	cmd := s.undo[len(s.undo)-1]
	if err := cmd.Undo(); err != nil {
		s.record(cmd, "undo", false)
		return fmt.Errorf("undo %s: %w", cmd.Description(), err)
	}
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, cmd)
	s.record(cmd, "undo", true)
	s.logger.Debug().Str("command", cmd.Description()).Msg("Command undone")
	s.notify()
	return nil
}

// Redo re-applies the most recently undone command. It is a no-op when
// there is nothing to redo. On failure the command stays on the redo stack.
func (s *Stack) Redo() error {
	if len(s.redo) == 0 {
		return nil
	}
	cmd := s.redo[len(s.redo)-1]
	if err := cmd.Do(); err != nil {
		s.record(cmd, "redo", false)
		return fmt.Errorf("redo %s: %w", cmd.Description(), err)
	}
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, cmd)
	s.record(cmd, "redo", true)
	s.logger.Debug().Str("command", cmd.Description()).Msg("Command redone")
	s.notify()
	return nil
}

// Clear drops both histories without invoking the discarded commands.
func (s *Stack) Clear() {
	s.undo = nil
	s.redo = nil
	s.notify()
}

// CanUndo reports whether Undo would do anything.
func (s *Stack) CanUndo() bool { return len(s.undo) > 0 }

// CanRedo reports whether Redo would do anything.
func (s *Stack) CanRedo() bool { return len(s.redo) > 0 }

// UndoDescriptions lists the undo history, most recent last.
func (s *Stack) UndoDescriptions() []string { return descriptions(s.undo) }

// RedoDescriptions lists the redo history, most recent last.
func (s *Stack) RedoDescriptions() []string { return descriptions(s.redo) }

// SetBuilding updates the build-in-progress flag mirrored in MenuState.
func (s *Stack) SetBuilding(building bool) {
	if s.building == building {
		return
	}
	s.building = building
	s.notify()
}

// MenuState returns the current enablement state.
func (s *Stack) MenuState() MenuState {
	return MenuState{CanUndo: s.CanUndo(), CanRedo: s.CanRedo(), Building: s.building}
}

func (s *Stack) notify() {
	s.view.UpdateMenu(s.MenuState())
}

func (s *Stack) record(cmd Command, op string, ok bool) {
	if s.recorder != nil {
		s.recorder.RecordCommand(commandName(cmd), op, ok)
	}
}

// commandName is the metric label for a command: its type name.
func commandName(cmd Command) string {
	if n, ok := cmd.(interface{ Kind() string }); ok {
		return n.Kind()
	}
	return fmt.Sprintf("%T", cmd)
}

func descriptions(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Description()
	}
	return out
}
